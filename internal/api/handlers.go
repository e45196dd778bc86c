package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/signalsfoundry/rail-planner/internal/conflicts"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/model"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body into v. Numbers are kept as json.Number so
// modification parameters survive unchanged.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrInvalidRequest, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidRequest)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidRequest, name, raw)
	}
	return v, nil
}

func intQuery(r *http.Request, name string, def int, required bool) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: missing %s", ErrInvalidRequest, name)
		}
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidRequest, name, raw)
	}
	return v, nil
}

// ---- Network ----

type networkResponse struct {
	Stations []model.Station `json:"stations"`
	Tracks   []model.Track   `json:"tracks"`
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if s.svc.Graph == nil {
		s.writeError(w, r, fmt.Errorf("network: %w", ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, networkResponse{
		Stations: s.svc.Graph.Stations(),
		Tracks:   s.svc.Graph.Tracks(),
	})
}

// routeResponse replaces the +Inf cost of an unreachable route, which JSON
// cannot carry, with a nil cost.
type routeResponse struct {
	From       int      `json:"from"`
	To         int      `json:"to"`
	Reachable  bool     `json:"reachable"`
	Path       []int    `json:"path"`
	TracksUsed []int    `json:"tracks"`
	TotalCost  *float64 `json:"totalCost"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	from, err := intQuery(r, "from", 0, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := intQuery(r, "to", 0, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	priority, err := intQuery(r, "priority", 5, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g := s.svc.Graph
	if g == nil {
		s.writeError(w, r, fmt.Errorf("network: %w", ErrNotFound))
		return
	}
	for _, id := range []int{from, to} {
		if _, ok := g.Station(id); !ok {
			s.writeError(w, r, fmt.Errorf("station %d: %w", id, ErrNotFound))
			return
		}
	}

	route := g.FindRoute(from, to, model.ClampPriority(priority))
	resp := routeResponse{
		From:       from,
		To:         to,
		Reachable:  route.Reachable(),
		Path:       route.Path,
		TracksUsed: route.TracksUsed,
	}
	if resp.Reachable {
		cost := route.TotalCost
		resp.TotalCost = &cost
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	found := conflicts.Detect(s.svc.Fleet.ListTrains(), s.svc.Fleet.ListSchedules())
	writeJSON(w, http.StatusOK, found)
}

// ---- Optimizer ----

type optimizeRequest struct {
	Trains    []model.Train         `json:"trains"`
	Schedules []model.TrainSchedule `json:"schedules"`
}

type fleetOptimization struct {
	Status           string    `json:"status"`
	LastOptimization time.Time `json:"lastOptimization"`
	model.OptimizationResult
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Trains == nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid trains data", ErrInvalidRequest))
		return
	}
	if req.Schedules == nil {
		req.Schedules = []model.TrainSchedule{}
	}
	writeJSON(w, http.StatusOK, s.svc.Optimizer.Optimize(r.Context(), req.Trains, req.Schedules))
}

func (s *Server) handleOptimizeFleet(w http.ResponseWriter, r *http.Request) {
	result := s.svc.Optimizer.Optimize(r.Context(), s.svc.Fleet.ListTrains(), s.svc.Fleet.ListSchedules())
	writeJSON(w, http.StatusOK, fleetOptimization{
		Status:             "active",
		LastOptimization:   s.now(),
		OptimizationResult: result,
	})
}

// ---- Fleet ----

func (s *Server) handleListTrains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Fleet.ListTrains())
}

func (s *Server) handleGetTrain(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, ok := s.svc.Fleet.GetTrain(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("train %d: %w", id, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handlePutTrain(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var t model.Train
	if err := decodeBody(r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if t.ID != 0 && t.ID != id {
		s.writeError(w, r, fmt.Errorf("%w: body id %d does not match path id %d", ErrInvalidRequest, t.ID, id))
		return
	}
	t.ID = id
	if err := s.svc.Fleet.UpdateTrain(t); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, _ := s.svc.Fleet.GetTrain(id)
	logging.FromContext(r.Context(), s.log).Info(r.Context(), "train updated", logging.TrainID(id))
	writeJSON(w, http.StatusOK, stored)
}

// ---- Scenarios ----

type createScenarioRequest struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	BaselineTrains []model.Train `json:"baselineTrains"`
	// Template names a scenario template whose modifications are added to
	// the new scenario.
	Template string `json:"template"`
}

type modificationCreated struct {
	ID string `json:"id"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Scenarios.ListScenarioTemplates())
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Scenarios.ListScenarios())
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, fmt.Errorf("%w: name is required", ErrInvalidRequest))
		return
	}

	var mods []model.ScenarioModification
	if req.Template != "" {
		tpl, ok := s.findTemplate(req.Template)
		if !ok {
			s.writeError(w, r, fmt.Errorf("template %q: %w", req.Template, ErrNotFound))
			return
		}
		mods = tpl.Modifications
	}

	baseline := req.BaselineTrains
	if baseline == nil {
		baseline = s.svc.Fleet.ListTrains()
	}
	sc := s.svc.Scenarios.CreateScenario(req.Name, req.Description, baseline)
	for _, m := range mods {
		s.svc.Scenarios.AddModification(sc.ID, m)
	}
	if len(mods) > 0 {
		sc, _ = s.svc.Scenarios.GetScenario(sc.ID)
	}

	logging.FromContext(r.Context(), s.log).Info(r.Context(), "scenario created",
		logging.ScenarioID(sc.ID),
		logging.Int("modifications", len(mods)),
	)
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) findTemplate(name string) (model.ScenarioTemplate, bool) {
	for _, tpl := range s.svc.Scenarios.ListScenarioTemplates() {
		if tpl.Name == name {
			return tpl, true
		}
	}
	return model.ScenarioTemplate{}, false
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, ok := s.svc.Scenarios.GetScenario(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("scenario %q: %w", id, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.svc.Scenarios.DeleteScenario(id) {
		s.writeError(w, r, fmt.Errorf("scenario %q: %w", id, ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, ok := s.svc.Scenarios.RunScenario(r.Context(), id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("scenario %q: %w", id, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAddModification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var mod model.ScenarioModification
	if err := decodeBody(r, &mod); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !validModification(mod.Type) {
		s.writeError(w, r, fmt.Errorf("%w: unknown modification type %q", ErrInvalidRequest, mod.Type))
		return
	}
	modID, ok := s.svc.Scenarios.AddModification(id, mod)
	if !ok {
		s.writeError(w, r, fmt.Errorf("scenario %q: %w", id, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusCreated, modificationCreated{ID: modID})
}

func validModification(t model.ModificationType) bool {
	switch t {
	case model.ModDelayTrain, model.ModBlockTrack, model.ModChangePriority, model.ModAddTrain, model.ModCancelTrain:
		return true
	}
	return false
}

func (s *Server) handleRemoveModification(w http.ResponseWriter, r *http.Request) {
	id, modID := chi.URLParam(r, "id"), chi.URLParam(r, "modID")
	if !s.svc.Scenarios.RemoveModification(id, modID) {
		s.writeError(w, r, fmt.Errorf("scenario %q: %w", id, ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Simulation ----

type delayRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleSimulationState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Simulation.GetState())
}

func (s *Server) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	s.svc.Simulation.Start()
	writeJSON(w, http.StatusOK, s.svc.Simulation.GetState())
}

func (s *Server) handleSimulationStop(w http.ResponseWriter, r *http.Request) {
	s.svc.Simulation.Stop()
	writeJSON(w, http.StatusOK, s.svc.Simulation.GetState())
}

func (s *Server) handleSimulationStep(w http.ResponseWriter, r *http.Request) {
	s.svc.Simulation.Step()
	writeJSON(w, http.StatusOK, s.svc.Simulation.GetState())
}

func (s *Server) handleDelayTrain(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req delayRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Minutes < 0 {
		s.writeError(w, r, fmt.Errorf("%w: minutes must not be negative", ErrInvalidRequest))
		return
	}
	if !s.svc.Simulation.DelayTrain(id, req.Minutes) {
		s.writeError(w, r, fmt.Errorf("simulated train %d: %w", id, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Simulation.GetState())
}

func (s *Server) handleSimulationStream(w http.ResponseWriter, r *http.Request) {
	if s.svc.Hub == nil {
		s.writeError(w, r, errors.New("simulation stream not configured"))
		return
	}
	initial, err := json.Marshal(Message{Type: MessageSimulationState, Payload: s.svc.Simulation.GetState()})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.svc.Hub.ServeWS(w, r, initial)
}
