package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Leveler
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNoopDropsEverything(t *testing.T) {
	l := Noop()
	ctx := context.Background()

	// Must not panic, including through With chains.
	l.Debug(ctx, "a")
	l.With(String("k", "v")).Error(ctx, "b", Int("n", 1))
}

func TestNewWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skytrail.log")
	l := New(Config{Level: "debug", Format: "json", File: path})

	l.Info(context.Background(), "hello", String("entity", "veh-1"), Float64("lat", 51.5))

	// The rotated file is created lazily on first write.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %q: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("log file %q is empty after write", path)
	}
}

func TestFieldHelpers(t *testing.T) {
	if f := String("k", "v"); f.Key != "k" || f.Value != "v" {
		t.Fatalf("String() = %+v", f)
	}
	if f := Bool("ok", true); f.Value != true {
		t.Fatalf("Bool() = %+v", f)
	}
	if f := Err(context.Canceled); f.Key != "error" {
		t.Fatalf("Err() key = %q, want error", f.Key)
	}
}
