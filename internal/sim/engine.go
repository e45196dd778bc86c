// Package sim runs the live train simulation: positions advance once per
// tick, trains that close on each other raise collision-risk events, and
// every tick publishes a snapshot to subscribers.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/model"
	"github.com/signalsfoundry/rail-planner/timectrl"
)

// SystemLocation is the location recorded on start and stop events.
const SystemLocation = "System"

// MetricsRecorder receives simulation observations.
// *observability.PlannerCollector satisfies it.
type MetricsRecorder interface {
	ObserveTick(activeConflicts int, raised []model.ConflictEvent)
	SetSubscribers(n int)
	SetRunning(running bool)
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithConfig overrides the simulation constants. Zero fields keep their
// defaults.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithClock sets the clock used for timestamps and conflict retention.
func WithClock(c timectrl.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithRunStateHook registers fn to be called after every Start or Stop that
// changes the run state.
func WithRunStateHook(fn func(running bool)) EngineOption {
	return func(e *Engine) { e.runHook = fn }
}

// Engine is the live simulation. All state mutation happens under mu, either
// inside a tick or inside Start, Stop or DelayTrain.
type Engine struct {
	mu    sync.Mutex
	state model.SimulationState

	// runMu serialises Start and Stop so the ticker is created and joined
	// by one caller at a time.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   <-chan struct{}

	subs *registry

	cfg     Config
	clock   timectrl.Clock
	log     logging.Logger
	metrics MetricsRecorder
	runHook func(bool)
}

// NewEngine builds a stopped simulation over positions. A nil positions slice
// loads DefaultPositionSpecs relative to the engine clock.
func NewEngine(positions []model.TrainPosition, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:   DefaultConfig(),
		clock: timectrl.RealClock{},
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	now := e.clock.Now()
	if positions == nil {
		positions = PositionsFromSpecs(DefaultPositionSpecs(), now)
	} else {
		positions = append([]model.TrainPosition(nil), positions...)
		for i := range positions {
			positions[i].Progress = clampProgress(positions[i].Progress)
			positions[i].Speed = max(0, positions[i].Speed)
		}
	}

	e.state = model.SimulationState{
		CurrentTime:    now,
		TrainPositions: positions,
		Conflicts:      []model.ConflictEvent{},
		Events:         []model.SimulationEvent{},
	}
	e.subs = newRegistry(e.cfg.SubscriberBuffer, func(n int) {
		if e.metrics != nil {
			e.metrics.SetSubscribers(n)
		}
	})
	return e
}

// Config returns the active constants.
func (e *Engine) Config() Config { return e.cfg }

// Start begins ticking. It is a no-op while already running.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.state.IsRunning {
		e.mu.Unlock()
		return
	}
	e.state.IsRunning = true
	e.addEventLocked(model.EventDeparture, 0, SystemLocation, "Simulation started")
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	tc := timectrl.NewTimeController(e.clock, e.cfg.TickPeriod, timectrl.RealTime)
	tc.AddListener(func(time.Time) { e.step(true) })
	e.cancel = cancel
	e.done = tc.Start(ctx, 0)

	e.log.Info(ctx, "simulation started", logging.Duration("tick", e.cfg.TickPeriod))
	e.notifyRunState(true)
}

// Stop halts ticking and waits for any in-flight tick to finish, so no tick
// runs after Stop returns. It is a no-op while stopped.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.state.IsRunning {
		e.mu.Unlock()
		return
	}
	e.state.IsRunning = false
	e.addEventLocked(model.EventDeparture, 0, SystemLocation, "Simulation stopped")
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel, e.done = nil, nil
	}

	e.log.Info(context.Background(), "simulation stopped")
	e.notifyRunState(false)
}

// Close stops the simulation and ends every subscription.
func (e *Engine) Close() {
	e.Stop()
	e.subs.close()
}

// IsRunning reports whether the ticker is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsRunning
}

// Step runs exactly one tick whether or not the simulation is running.
func (e *Engine) Step() {
	e.step(false)
}

func (e *Engine) step(onlyIfRunning bool) {
	e.mu.Lock()
	if onlyIfRunning && !e.state.IsRunning {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	e.state.CurrentTime = now

	for i := range e.state.TrainPositions {
		p := &e.state.TrainPositions[i]
		if p.Status != model.PositionMoving || p.Speed <= 0 {
			continue
		}
		p.Progress += (p.Speed / 100) * e.cfg.ProgressRate
		if p.Progress < 1.0 {
			continue
		}
		p.Progress = 0
		p.CurrentTrackID = e.cfg.nextTrack(p.CurrentTrackID)
		p.Status = model.PositionApproachingStation
		e.addEventLocked(model.EventArrival, p.TrainID,
			fmt.Sprintf("Station %d", p.NextStationID),
			fmt.Sprintf("%s arrived at station", p.TrainNumber))
	}

	raised := DetectProximity(e.state.TrainPositions, now, e.cfg)
	e.state.Conflicts = append(retainConflicts(e.state.Conflicts, now, e.cfg.ConflictRetention), raised...)

	snapshot := e.state.Clone()
	active := len(e.state.Conflicts)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ObserveTick(active, raised)
	}
	for _, c := range raised {
		e.log.Debug(context.Background(), "collision risk",
			logging.String("location", c.Location),
			logging.String("severity", string(c.Severity)),
			logging.Any("train_ids", c.TrainIDs),
		)
	}
	e.subs.publish(snapshot)
}

// DelayTrain slows a train by the configured penalty (never below zero) and
// pushes its estimated arrival back by minutes. It reports false for an
// unknown train. Negative minutes are treated as zero.
func (e *Engine) DelayTrain(trainID, minutes int) bool {
	minutes = max(0, minutes)

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.state.TrainPositions {
		p := &e.state.TrainPositions[i]
		if p.TrainID != trainID {
			continue
		}
		p.Speed = max(0, p.Speed-e.cfg.DelaySpeedPenalty)
		p.EstimatedArrival = p.EstimatedArrival.Add(time.Duration(minutes) * time.Minute)
		e.addEventLocked(model.EventDelay, trainID,
			fmt.Sprintf("Track %d", p.CurrentTrackID),
			fmt.Sprintf("%s delayed by %d minutes", p.TrainNumber, minutes))
		return true
	}
	return false
}

// Subscribe registers fn to receive a snapshot after every tick. Delivery is
// asynchronous; a subscriber that falls behind loses its oldest pending
// snapshots rather than slowing the simulation. The returned function
// unsubscribes and may be called from inside fn.
func (e *Engine) Subscribe(fn func(model.SimulationState)) func() {
	return e.subs.add(fn)
}

// Subscribers returns the number of live subscriptions.
func (e *Engine) Subscribers() int {
	return e.subs.count()
}

// GetState returns a deep snapshot of the current state.
func (e *Engine) GetState() model.SimulationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// addEventLocked prepends an event and trims the log to MaxEvents.
func (e *Engine) addEventLocked(kind model.SimulationEventType, trainID int, location, description string) {
	ev := model.SimulationEvent{
		ID:          "event_" + uuid.NewString(),
		Type:        kind,
		TrainID:     trainID,
		Location:    location,
		Timestamp:   e.clock.Now(),
		Description: description,
	}
	events := make([]model.SimulationEvent, 0, min(len(e.state.Events)+1, e.cfg.MaxEvents))
	events = append(events, ev)
	for _, old := range e.state.Events {
		if len(events) >= e.cfg.MaxEvents {
			break
		}
		events = append(events, old)
	}
	e.state.Events = events
}

func (e *Engine) notifyRunState(running bool) {
	if e.metrics != nil {
		e.metrics.SetRunning(running)
	}
	if e.runHook != nil {
		e.runHook(running)
	}
}
