package sim

import (
	"sync"

	"github.com/signalsfoundry/rail-planner/model"
)

// subscriber owns a buffered inbox and a delivery goroutine. The callback
// only ever runs on that goroutine, so a subscriber sees snapshots in
// publish order.
type subscriber struct {
	fn    func(model.SimulationState)
	inbox chan model.SimulationState
	stop  chan struct{}
	once  sync.Once
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.stop:
			return
		case st := <-s.inbox:
			select {
			case <-s.stop:
				return
			default:
			}
			s.fn(st)
		}
	}
}

// registry is the set of live subscribers. publish never blocks: when an
// inbox is full the oldest queued snapshot is dropped.
type registry struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*subscriber
	buffer   int
	closed   bool
	onChange func(n int)
}

func newRegistry(buffer int, onChange func(n int)) *registry {
	if buffer <= 0 {
		buffer = 1
	}
	if onChange == nil {
		onChange = func(int) {}
	}
	return &registry{
		subs:     make(map[uint64]*subscriber),
		buffer:   buffer,
		onChange: onChange,
	}
}

// add registers fn and returns its unsubscribe function. Unsubscribe is
// idempotent and safe to call from inside fn.
func (r *registry) add(fn func(model.SimulationState)) func() {
	if fn == nil {
		return func() {}
	}
	s := &subscriber{
		fn:    fn,
		inbox: make(chan model.SimulationState, r.buffer),
		stop:  make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	r.nextID++
	id := r.nextID
	r.subs[id] = s
	n := len(r.subs)
	r.mu.Unlock()

	r.onChange(n)
	go s.run()

	return func() {
		s.once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			n := len(r.subs)
			r.mu.Unlock()
			close(s.stop)
			r.onChange(n)
		})
	}
}

// publish hands each subscriber its own copy of state.
func (r *registry) publish(state model.SimulationState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		snapshot := state.Clone()
		select {
		case s.inbox <- snapshot:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-s.inbox:
		default:
		}
		select {
		case s.inbox <- snapshot:
		default:
		}
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// close stops every delivery goroutine and rejects later subscriptions.
func (r *registry) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := r.subs
	r.subs = make(map[uint64]*subscriber)
	r.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.stop) })
	}
	r.onChange(0)
}
