// Package tick provides a cancelable fixed-period loop. Movement
// maneuvers run on one Loop each; the handle makes cancellation
// explicit and idempotent.
package tick

import (
	"sync"
	"time"
)

// Loop is the handle to a recurring task running in its own goroutine.
// A Loop is created by Start and stopped by Stop; it never restarts.
type Loop struct {
	period time.Duration
	fn     func(time.Time)

	stopOnce sync.Once
	stop     chan struct{} // closed by Stop
	done     chan struct{} // closed when the goroutine exits
}

// Start launches fn at the given period in a new goroutine and returns
// the handle. The first invocation happens one full period after Start.
// The period must be positive.
func Start(period time.Duration, fn func(time.Time)) *Loop {
	l := &Loop{
		period: period,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			// A tick already queued when Stop was called is discarded
			// rather than delivered.
			select {
			case <-l.stop:
				return
			default:
			}
			l.fn(now)
		}
	}
}

// Stop cancels future ticks. It is safe to call repeatedly and from
// within the loop callback itself; it does not wait for an in-flight
// callback to return.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the loop goroutine has
// exited. After Done is closed no further callbacks run.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
