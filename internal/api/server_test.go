package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/observability"
	"github.com/signalsfoundry/rail-planner/internal/optimizer"
	"github.com/signalsfoundry/rail-planner/internal/scenario"
	"github.com/signalsfoundry/rail-planner/internal/sim"
	"github.com/signalsfoundry/rail-planner/kb"
	"github.com/signalsfoundry/rail-planner/model"
	"github.com/signalsfoundry/rail-planner/timectrl"
)

var t0 = time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

type fixture struct {
	srv       *httptest.Server
	fleet     *kb.KnowledgeBase
	sim       *sim.Engine
	hub       *Hub
	collector *observability.PlannerCollector
	clock     *timectrl.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	graph, err := core.SampleGraph()
	if err != nil {
		t.Fatalf("SampleGraph: %v", err)
	}
	fleet := kb.NewKnowledgeBase()
	if err := fleet.Seed(kb.SampleTrains()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	collector, err := observability.NewPlannerCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	clock := timectrl.NewManualClock(t0)

	opt := optimizer.New(graph, optimizer.WithMetrics(collector))
	engine := sim.NewEngine(nil, sim.WithClock(clock))
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	unsub := engine.Subscribe(hub.Publish)

	server := NewServer(Services{
		Graph:      graph,
		Fleet:      fleet,
		Optimizer:  opt,
		Scenarios:  scenario.NewEngine(opt, scenario.WithClock(clock)),
		Simulation: engine,
		Hub:        hub,
	}, WithMetrics(collector), WithClock(clock))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		unsub()
		ts.Close()
		cancel()
		engine.Close()
	})
	return &fixture{srv: ts, fleet: fleet, sim: engine, hub: hub, collector: collector, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestRouteEndpoint(t *testing.T) {
	f := newFixture(t)

	var route routeResponse
	resp := f.do(t, http.MethodGet, "/api/v1/routes?from=2&to=5&priority=8", nil, &route)
	expectStatus(t, resp, http.StatusOK)
	if !route.Reachable || len(route.Path) != 3 || route.Path[0] != 2 || route.Path[2] != 5 {
		t.Fatalf("route = %+v", route)
	}
	if route.TotalCost == nil {
		t.Fatalf("reachable route without cost")
	}

	var errBody errorBody
	resp = f.do(t, http.MethodGet, "/api/v1/routes?from=1&to=42", nil, &errBody)
	expectStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodGet, "/api/v1/routes?from=x&to=2", nil, &errBody)
	expectStatus(t, resp, http.StatusBadRequest)
	if errBody.RequestID == "" {
		t.Fatalf("error body missing request id")
	}

	resp = f.do(t, http.MethodGet, "/api/v1/routes?to=2", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestNetworkEndpoint(t *testing.T) {
	f := newFixture(t)
	var net networkResponse
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/network", nil, &net), http.StatusOK)
	if len(net.Stations) != 5 || len(net.Tracks) != 5 {
		t.Fatalf("network = %d stations, %d tracks", len(net.Stations), len(net.Tracks))
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	f := newFixture(t)

	a1, d1 := t0, t0.Add(10*time.Minute)
	a2, d2 := t0.Add(5*time.Minute), t0.Add(15*time.Minute)
	p := 1
	req := optimizeRequest{
		Trains: []model.Train{
			{ID: 1, Number: "EXP001", Type: model.TrainExpress, Priority: 9},
			{ID: 2, Number: "PSG112", Type: model.TrainPassenger, Priority: 6, Delay: 3},
		},
		Schedules: []model.TrainSchedule{
			{ID: 1, TrainID: 1, StationID: 1, ScheduledArrival: &a1, ScheduledDeparture: &d1, PlatformNumber: &p},
			{ID: 2, TrainID: 2, StationID: 1, ScheduledArrival: &a2, ScheduledDeparture: &d2, PlatformNumber: &p},
		},
	}
	var result model.OptimizationResult
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/optimize", req, &result), http.StatusOK)
	if result.ConflictsResolved != 1 || len(result.Suggestions) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if s := result.Suggestions[0]; s.TrainID != 2 || s.Type != model.SuggestDelay {
		t.Fatalf("suggestion = %+v", s)
	}
	if !strings.HasPrefix(result.OptimizationID, "opt_") {
		t.Fatalf("optimization id = %q", result.OptimizationID)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/optimize", `{"schedules": []}`, nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/optimize", `{"trains": [`, nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/optimize", "", nil), http.StatusBadRequest)

	if got := testutil.ToFloat64(f.collector.HTTPRequests.WithLabelValues("/api/v1/optimize", "POST", "400")); got != 3 {
		t.Fatalf("http 400 counter = %v, want 3", got)
	}
}

func TestOptimizeFleetEndpoint(t *testing.T) {
	f := newFixture(t)
	var out fleetOptimization
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/optimize", nil, &out), http.StatusOK)
	if out.Status != "active" || !out.LastOptimization.Equal(t0) {
		t.Fatalf("fleet optimization = %+v", out)
	}
	// The sample fleet has no schedules, leaving only the freight reroute check.
	if len(out.Suggestions) != 1 || out.Suggestions[0].Type != model.SuggestReroute || out.Suggestions[0].TrainID != 2 {
		t.Fatalf("suggestions = %+v", out.Suggestions)
	}
}

func TestConflictsEndpoint(t *testing.T) {
	f := newFixture(t)
	a1, d1 := t0, t0.Add(10*time.Minute)
	a2, d2 := t0.Add(5*time.Minute), t0.Add(15*time.Minute)
	p := 3
	for _, s := range []model.TrainSchedule{
		{ID: 1, TrainID: 1, StationID: 1, ScheduledArrival: &a1, ScheduledDeparture: &d1, PlatformNumber: &p},
		{ID: 2, TrainID: 3, StationID: 1, ScheduledArrival: &a2, ScheduledDeparture: &d2, PlatformNumber: &p},
	} {
		if err := f.fleet.AddSchedule(s); err != nil {
			t.Fatalf("AddSchedule: %v", err)
		}
	}
	var found []model.Conflict
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/conflicts", nil, &found), http.StatusOK)
	if len(found) != 1 || found[0].Location != "1-3" {
		t.Fatalf("conflicts = %+v", found)
	}
}

func TestTrainEndpoints(t *testing.T) {
	f := newFixture(t)

	var trains []model.Train
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/trains", nil, &trains), http.StatusOK)
	if len(trains) != 4 {
		t.Fatalf("trains = %d", len(trains))
	}

	var updated model.Train
	body := model.Train{Number: "FRT205", Type: model.TrainFreight, Priority: 15, Status: model.StatusDelayed, Delay: 9}
	expectStatus(t, f.do(t, http.MethodPut, "/api/v1/trains/2", body, &updated), http.StatusOK)
	if updated.ID != 2 || updated.Priority != 10 || updated.Delay != 9 {
		t.Fatalf("updated = %+v", updated)
	}

	var got model.Train
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/trains/2", nil, &got), http.StatusOK)
	if got.Status != model.StatusDelayed {
		t.Fatalf("stored train = %+v", got)
	}

	expectStatus(t, f.do(t, http.MethodPut, "/api/v1/trains/99", model.Train{Number: "X"}, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPut, "/api/v1/trains/2", model.Train{ID: 3}, nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/trains/abc", nil, nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/trains/77", nil, nil), http.StatusNotFound)
}

func TestScenarioLifecycle(t *testing.T) {
	f := newFixture(t)

	var sc model.Scenario
	resp := f.do(t, http.MethodPost, "/api/v1/scenarios", map[string]any{
		"name":        "Late express",
		"description": "EXP001 held",
	}, &sc)
	expectStatus(t, resp, http.StatusCreated)
	if len(sc.BaselineTrains) != 4 || !sc.CreatedAt.Equal(t0) {
		t.Fatalf("scenario = %+v", sc)
	}

	var created modificationCreated
	resp = f.do(t, http.MethodPost, "/api/v1/scenarios/"+sc.ID+"/modifications", map[string]any{
		"type":       "delay_train",
		"targetId":   1,
		"parameters": map[string]any{"delayMinutes": 10},
	}, &created)
	expectStatus(t, resp, http.StatusCreated)
	if !strings.HasPrefix(created.ID, "mod_") {
		t.Fatalf("modification id = %q", created.ID)
	}

	var results model.ScenarioResults
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios/"+sc.ID+"/run", nil, &results), http.StatusOK)
	if results.ImpactMetrics.TotalDelayChange != 10 || results.ImpactMetrics.AffectedTrains != 1 {
		t.Fatalf("impact = %+v", results.ImpactMetrics)
	}

	var list []model.Scenario
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/scenarios", nil, &list), http.StatusOK)
	if len(list) != 1 || list[0].Results == nil {
		t.Fatalf("list = %+v", list)
	}

	expectStatus(t, f.do(t, http.MethodDelete, "/api/v1/scenarios/"+sc.ID+"/modifications/"+created.ID, nil, nil), http.StatusNoContent)
	var fetched model.Scenario
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/scenarios/"+sc.ID, nil, &fetched), http.StatusOK)
	if len(fetched.Modifications) != 0 {
		t.Fatalf("modifications after removal = %+v", fetched.Modifications)
	}

	expectStatus(t, f.do(t, http.MethodDelete, "/api/v1/scenarios/"+sc.ID, nil, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/scenarios/"+sc.ID, nil, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios/"+sc.ID+"/run", nil, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodDelete, "/api/v1/scenarios/"+sc.ID, nil, nil), http.StatusNotFound)
}

func TestScenarioValidation(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios", map[string]any{"description": "no name"}, nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios", map[string]any{"name": "x", "template": "Nope"}, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios/missing/modifications",
		map[string]any{"type": "cancel_train", "targetId": 1}, nil), http.StatusNotFound)

	var sc model.Scenario
	f.do(t, http.MethodPost, "/api/v1/scenarios", map[string]any{"name": "x"}, &sc)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios/"+sc.ID+"/modifications",
		map[string]any{"type": "teleport_train", "targetId": 1}, nil), http.StatusBadRequest)
}

func TestScenarioFromTemplate(t *testing.T) {
	f := newFixture(t)

	var templates []model.ScenarioTemplate
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/scenario-templates", nil, &templates), http.StatusOK)
	if len(templates) != 4 {
		t.Fatalf("templates = %d, want 4", len(templates))
	}

	var sc model.Scenario
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios", map[string]any{
		"name":     "Maintenance",
		"template": "Track Maintenance Block",
	}, &sc), http.StatusCreated)
	if len(sc.Modifications) != 1 || sc.Modifications[0].Type != model.ModBlockTrack {
		t.Fatalf("modifications = %+v", sc.Modifications)
	}

	var results model.ScenarioResults
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/scenarios/"+sc.ID+"/run", nil, &results), http.StatusOK)
	// EXP001 and PSG112 each gain 20 minutes.
	if results.ImpactMetrics.TotalDelayChange != 40 || results.ImpactMetrics.AffectedTrains != 2 {
		t.Fatalf("impact = %+v", results.ImpactMetrics)
	}
}

func TestSimulationEndpoints(t *testing.T) {
	f := newFixture(t)

	var st model.SimulationState
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/simulation", nil, &st), http.StatusOK)
	if st.IsRunning || len(st.TrainPositions) != 3 {
		t.Fatalf("initial state = %+v", st)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/trains/1/delay", map[string]int{"minutes": 5}, &st), http.StatusOK)
	if st.TrainPositions[0].Speed != 75 || st.Events[0].Type != model.EventDelay {
		t.Fatalf("after delay = %+v", st)
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/trains/99/delay", map[string]int{"minutes": 5}, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/trains/1/delay", map[string]int{"minutes": -1}, nil), http.StatusBadRequest)

	f.clock.Advance(time.Second)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/step", nil, &st), http.StatusOK)
	if !st.CurrentTime.Equal(t0.Add(time.Second)) {
		t.Fatalf("current time after step = %v", st.CurrentTime)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/start", nil, &st), http.StatusOK)
	if !st.IsRunning {
		t.Fatalf("simulation not running after start")
	}
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/simulation/stop", nil, &st), http.StatusOK)
	if st.IsRunning || st.Events[0].Description != "Simulation stopped" {
		t.Fatalf("after stop = %+v", st.Events[0])
	}
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/trains", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id header = %q, want req-123", got)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/trains", nil, nil)
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("generated request id missing")
	}
}

func TestSimulationStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/simulation/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readState := func() model.SimulationState {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type    string                `json:"type"`
			Payload model.SimulationState `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != MessageSimulationState {
			t.Fatalf("message type = %q", msg.Type)
		}
		return msg.Payload
	}

	if first := readState(); !first.CurrentTime.Equal(t0) {
		t.Fatalf("initial snapshot time = %v", first.CurrentTime)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.hub.Clients() != 1 {
		t.Fatalf("hub clients = %d, want 1", f.hub.Clients())
	}

	f.clock.Advance(time.Second)
	f.sim.Step()
	if st := readState(); !st.CurrentTime.Equal(t0.Add(time.Second)) {
		t.Fatalf("tick snapshot time = %v", st.CurrentTime)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for f.hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.hub.Clients() != 0 {
		t.Fatalf("client not unregistered after close")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrNotFound, http.StatusNotFound},
		{kb.ErrTrainNotFound, http.StatusNotFound},
		{ErrInvalidRequest, http.StatusBadRequest},
		{core.ErrInvalidTopology, http.StatusBadRequest},
		{kb.ErrTrainExists, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
