// Package api hosts the planner engines over HTTP and a WebSocket stream.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/scenario"
	"github.com/signalsfoundry/rail-planner/internal/sim"
	"github.com/signalsfoundry/rail-planner/kb"
	"github.com/signalsfoundry/rail-planner/timectrl"
)

// Services are the engines the adapter exposes. Graph may be nil, in which
// case route queries report not found.
type Services struct {
	Graph      *core.NetworkGraph
	Fleet      *kb.KnowledgeBase
	Optimizer  scenario.Optimizer
	Scenarios  *scenario.Engine
	Simulation *sim.Engine
	Hub        *Hub
}

// Option customises Server construction.
type Option func(*Server)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records every request.
func WithMetrics(m HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock sets the clock used for response timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// Server routes HTTP requests onto the engines. It holds no domain state of
// its own.
type Server struct {
	svc     Services
	log     logging.Logger
	metrics HTTPMetrics
	clock   timectrl.Clock
}

// NewServer builds a Server over svc.
func NewServer(svc Services, opts ...Option) *Server {
	s := &Server{
		svc:   svc,
		log:   logging.Noop(),
		clock: timectrl.RealClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID(s.log))
	r.Use(observeHTTP(s.metrics))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/network", s.handleNetwork)
		r.Get("/routes", s.handleRoute)
		r.Get("/conflicts", s.handleConflicts)

		r.Get("/optimize", s.handleOptimizeFleet)
		r.Post("/optimize", s.handleOptimize)

		r.Get("/trains", s.handleListTrains)
		r.Get("/trains/{id}", s.handleGetTrain)
		r.Put("/trains/{id}", s.handlePutTrain)

		r.Get("/scenario-templates", s.handleTemplates)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", s.handleListScenarios)
			r.Post("/", s.handleCreateScenario)
			r.Get("/{id}", s.handleGetScenario)
			r.Delete("/{id}", s.handleDeleteScenario)
			r.Post("/{id}/run", s.handleRunScenario)
			r.Post("/{id}/modifications", s.handleAddModification)
			r.Delete("/{id}/modifications/{modID}", s.handleRemoveModification)
		})

		r.Route("/simulation", func(r chi.Router) {
			r.Get("/", s.handleSimulationState)
			r.Post("/start", s.handleSimulationStart)
			r.Post("/stop", s.handleSimulationStop)
			r.Post("/step", s.handleSimulationStep)
			r.Post("/trains/{id}/delay", s.handleDelayTrain)
			r.Get("/stream", s.handleSimulationStream)
		})
	})
	return r
}

func (s *Server) now() time.Time { return s.clock.Now() }
