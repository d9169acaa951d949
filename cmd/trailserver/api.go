package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/skytrail/geo"
	"github.com/signalsfoundry/skytrail/internal/logging"
	"github.com/signalsfoundry/skytrail/model"
	"github.com/signalsfoundry/skytrail/sim"
)

// api is the vehicle command surface. Every mutation goes through the
// world; the render feed picks up the results on its own.
type api struct {
	world      *sim.World
	stepMeters float64
	log        logging.Logger
}

func newAPI(world *sim.World, stepMeters float64, log logging.Logger) *api {
	return &api{world: world, stepMeters: stepMeters, log: log}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /vehicles", a.listVehicles)
	mux.HandleFunc("POST /vehicles", a.addVehicle)
	mux.HandleFunc("DELETE /vehicles/{id}", a.removeVehicle)
	mux.HandleFunc("POST /vehicles/{id}/target", a.setTarget)
	mux.HandleFunc("POST /vehicles/{id}/route", a.setRoute)
	mux.HandleFunc("POST /trails/visibility", a.toggleVisibility)
	mux.HandleFunc("DELETE /trails", a.clearTrails)
}

type positionBody struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt"`
}

func (p positionBody) position() model.Position3D {
	return model.Position3D{Lon: p.Lon, Lat: p.Lat, Alt: p.Alt}
}

type addVehicleBody struct {
	ID string `json:"id"`
	positionBody
}

type targetBody struct {
	positionBody
	StepMeters float64 `json:"stepMeters"`
}

type routeBody struct {
	Waypoints  []positionBody `json:"waypoints"`
	StepMeters float64        `json:"stepMeters"`
}

type vehicleView struct {
	ID           string  `json:"id"`
	Lon          float64 `json:"lon"`
	Lat          float64 `json:"lat"`
	Alt          float64 `json:"alt"`
	Moving       bool    `json:"moving"`
	TrailEntries int     `json:"trailEntries"`
	TrailMeters  float64 `json:"trailMeters"`
}

func (a *api) listVehicles(w http.ResponseWriter, _ *http.Request) {
	snaps := a.world.Snapshot()
	out := make([]vehicleView, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, vehicleView{
			ID:           s.ID,
			Lon:          s.Position.Lon,
			Lat:          s.Position.Lat,
			Alt:          s.Position.Alt,
			Moving:       s.Moving,
			TrailEntries: s.Trail.Count,
			TrailMeters:  s.Trail.DistanceMeters,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) addVehicle(w http.ResponseWriter, r *http.Request) {
	var body addVehicleBody
	if !decode(w, r, &body) {
		return
	}
	if body.ID == "" {
		httpError(w, http.StatusBadRequest, "id is required")
		return
	}
	if _, err := a.world.AddVehicle(body.ID, body.position()); err != nil {
		a.writeWorldError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": body.ID})
}

func (a *api) removeVehicle(w http.ResponseWriter, r *http.Request) {
	if err := a.world.RemoveVehicle(r.PathValue("id")); err != nil {
		a.writeWorldError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) setTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body targetBody
	if !decode(w, r, &body) {
		return
	}
	v, err := a.world.Vehicle(id)
	if err != nil {
		a.writeWorldError(w, err)
		return
	}
	step := body.StepMeters
	if step <= 0 {
		step = a.stepMeters
	}
	target := body.position()
	if err := v.Stepper.MoveToward(target, target.Alt, step, nil); err != nil {
		a.writeWorldError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) setRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body routeBody
	if !decode(w, r, &body) {
		return
	}
	waypoints := make([]model.Position3D, 0, len(body.Waypoints))
	for _, wp := range body.Waypoints {
		waypoints = append(waypoints, wp.position())
	}
	if err := a.world.FollowRoute(id, waypoints, body.StepMeters, nil); err != nil {
		a.writeWorldError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) toggleVisibility(w http.ResponseWriter, _ *http.Request) {
	visible := a.world.Trails().ToggleVisibility()
	writeJSON(w, http.StatusOK, map[string]bool{"visible": visible})
}

func (a *api) clearTrails(w http.ResponseWriter, _ *http.Request) {
	a.world.Trails().ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// writeWorldError maps world sentinels onto HTTP statuses.
func (a *api) writeWorldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrVehicleNotFound):
		httpError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sim.ErrVehicleExists):
		httpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, geo.ErrNonFinite), errors.Is(err, sim.ErrEmptyRoute):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
