// Package kb holds the fleet knowledge base: the trains and schedules the
// process plans against.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/rail-planner/model"
)

var (
	// ErrTrainNotFound is returned when a train id is not in the fleet.
	ErrTrainNotFound = errors.New("train not found")
	// ErrTrainExists is returned when adding a train whose id is taken.
	ErrTrainExists = errors.New("train already exists")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventTrainAdded EventType = iota
	EventTrainUpdated
	EventScheduleAdded
)

func (t EventType) String() string {
	switch t {
	case EventTrainAdded:
		return "train_added"
	case EventTrainUpdated:
		return "train_updated"
	case EventScheduleAdded:
		return "schedule_added"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when the fleet changes. Schedule is set
// only for EventScheduleAdded.
type Event struct {
	Type     EventType
	Train    model.Train
	Schedule *model.TrainSchedule
}

// KnowledgeBase is an in-memory, thread-safe store for trains and their
// schedules. Values are copied in and out, so callers never share memory
// with the store.
type KnowledgeBase struct {
	mu sync.RWMutex

	trains    map[int]model.Train
	schedules []model.TrainSchedule

	nextSub int
	subs    map[int]func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		trains: make(map[int]model.Train),
		subs:   make(map[int]func(Event)),
	}
}

// AddTrain stores a new train. Priority is clamped into range.
func (kb *KnowledgeBase) AddTrain(t model.Train) error {
	t.Priority = model.ClampPriority(t.Priority)
	t.Delay = max(0, t.Delay)

	kb.mu.Lock()
	if _, exists := kb.trains[t.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("add train %d: %w", t.ID, ErrTrainExists)
	}
	kb.trains[t.ID] = t
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventTrainAdded, Train: t})
	return nil
}

// UpdateTrain replaces an existing train.
func (kb *KnowledgeBase) UpdateTrain(t model.Train) error {
	t.Priority = model.ClampPriority(t.Priority)
	t.Delay = max(0, t.Delay)

	kb.mu.Lock()
	if _, ok := kb.trains[t.ID]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("update train %d: %w", t.ID, ErrTrainNotFound)
	}
	kb.trains[t.ID] = t
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventTrainUpdated, Train: t})
	return nil
}

// GetTrain returns the train with the given id.
func (kb *KnowledgeBase) GetTrain(id int) (model.Train, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	t, ok := kb.trains[id]
	return t, ok
}

// ListTrains returns a snapshot of the fleet ordered by id.
func (kb *KnowledgeBase) ListTrains() []model.Train {
	kb.mu.RLock()
	res := make([]model.Train, 0, len(kb.trains))
	for _, t := range kb.trains {
		res = append(res, t)
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// AddSchedule appends a schedule entry. The train must already be known.
func (kb *KnowledgeBase) AddSchedule(s model.TrainSchedule) error {
	kb.mu.Lock()
	t, ok := kb.trains[s.TrainID]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("add schedule %d: train %d: %w", s.ID, s.TrainID, ErrTrainNotFound)
	}
	s = s.Clone()
	kb.schedules = append(kb.schedules, s)
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	out := s.Clone()
	notify(subs, Event{Type: EventScheduleAdded, Train: t, Schedule: &out})
	return nil
}

// ListSchedules returns every schedule in insertion order.
func (kb *KnowledgeBase) ListSchedules() []model.TrainSchedule {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.TrainSchedule, 0, len(kb.schedules))
	for _, s := range kb.schedules {
		res = append(res, s.Clone())
	}
	return res
}

// SchedulesForTrain returns the schedules of one train ordered by sequence.
func (kb *KnowledgeBase) SchedulesForTrain(trainID int) []model.TrainSchedule {
	kb.mu.RLock()
	var res []model.TrainSchedule
	for _, s := range kb.schedules {
		if s.TrainID == trainID {
			res = append(res, s.Clone())
		}
	}
	kb.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool { return res[i].SequenceOrder < res[j].SequenceOrder })
	return res
}

// Subscribe registers a callback for KB events. Callbacks run synchronously
// on the mutating goroutine, outside the store lock. It returns an
// unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	kb.mu.Lock()
	kb.nextSub++
	id := kb.nextSub
	kb.subs[id] = fn
	kb.mu.Unlock()

	return func() {
		kb.mu.Lock()
		delete(kb.subs, id)
		kb.mu.Unlock()
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

// notify runs outside the lock so subscribers may call back into the KB.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
