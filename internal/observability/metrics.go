package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/rail-planner/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlannerCollector bundles Prometheus metrics for the planner engines and the
// transports that host them.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	OptimizationDuration prometheus.Histogram
	Suggestions          *prometheus.CounterVec
	ConflictsDetected    prometheus.Counter
	RouteComputations    *prometheus.CounterVec

	ScenariosActive prometheus.Gauge
	ScenarioRuns    prometheus.Counter

	SimTicks           prometheus.Counter
	SimRunning         prometheus.Gauge
	SimActiveConflicts prometheus.Gauge
	SimCollisionRisks  *prometheus.CounterVec
	SimSubscribers     prometheus.Gauge
}

// NewPlannerCollector registers planner metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &PlannerCollector{gatherer: gatherer}
	var err error

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"}), "rail_grpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rail_grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"service", "method"}), "rail_grpc_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route pattern, method, and status.",
	}, []string{"route", "method", "status"}), "rail_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rail_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route", "method"}), "rail_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	if c.OptimizationDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rail_optimization_duration_seconds",
		Help:    "Wall-clock duration of optimizer runs.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}), "rail_optimization_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Suggestions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_optimization_suggestions_total",
		Help: "Optimization suggestions produced, labeled by suggestion type.",
	}, []string{"type"}), "rail_optimization_suggestions_total"); err != nil {
		return nil, err
	}
	if c.ConflictsDetected, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rail_conflicts_detected_total",
		Help: "Schedule conflicts found by the conflict detector during optimizer runs.",
	}), "rail_conflicts_detected_total"); err != nil {
		return nil, err
	}
	if c.RouteComputations, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_route_computations_total",
		Help: "Route searches, labeled by whether the destination was reachable.",
	}, []string{"result"}), "rail_route_computations_total"); err != nil {
		return nil, err
	}

	if c.ScenariosActive, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_scenarios",
		Help: "Current number of stored what-if scenarios.",
	}), "rail_scenarios"); err != nil {
		return nil, err
	}
	if c.ScenarioRuns, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rail_scenario_runs_total",
		Help: "Scenario runs completed.",
	}), "rail_scenario_runs_total"); err != nil {
		return nil, err
	}

	if c.SimTicks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rail_simulation_ticks_total",
		Help: "Simulation ticks executed.",
	}), "rail_simulation_ticks_total"); err != nil {
		return nil, err
	}
	if c.SimRunning, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_simulation_running",
		Help: "1 while the live simulation is running, 0 otherwise.",
	}), "rail_simulation_running"); err != nil {
		return nil, err
	}
	if c.SimActiveConflicts, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_simulation_active_conflicts",
		Help: "Conflict events currently inside the retention window.",
	}), "rail_simulation_active_conflicts"); err != nil {
		return nil, err
	}
	if c.SimCollisionRisks, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_simulation_collision_risks_total",
		Help: "Collision-risk conflict events raised by the simulation, labeled by severity.",
	}, []string{"severity"}), "rail_simulation_collision_risks_total"); err != nil {
		return nil, err
	}
	if c.SimSubscribers, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rail_simulation_subscribers",
		Help: "Current number of simulation state subscribers.",
	}), "rail_simulation_subscribers"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PlannerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlannerCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// ObserveHTTP records one handled HTTP request.
func (c *PlannerCollector) ObserveHTTP(route, method string, code int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route, method).Observe(d.Seconds())
	}
}

// ObserveOptimization records one optimizer run.
func (c *PlannerCollector) ObserveOptimization(d time.Duration, conflicts int, suggestions []model.OptimizationSuggestion) {
	if c == nil {
		return
	}
	if c.OptimizationDuration != nil {
		c.OptimizationDuration.Observe(d.Seconds())
	}
	if c.ConflictsDetected != nil && conflicts > 0 {
		c.ConflictsDetected.Add(float64(conflicts))
	}
	if c.Suggestions != nil {
		for _, s := range suggestions {
			c.Suggestions.WithLabelValues(string(s.Type)).Inc()
		}
	}
}

// ObserveRoute records a route search outcome.
func (c *PlannerCollector) ObserveRoute(reachable bool) {
	if c == nil || c.RouteComputations == nil {
		return
	}
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	c.RouteComputations.WithLabelValues(result).Inc()
}

// SetScenarioCount updates the stored scenario gauge.
func (c *PlannerCollector) SetScenarioCount(n int) {
	if c == nil || c.ScenariosActive == nil {
		return
	}
	c.ScenariosActive.Set(float64(n))
}

// IncScenarioRuns counts a completed scenario run.
func (c *PlannerCollector) IncScenarioRuns() {
	if c == nil || c.ScenarioRuns == nil {
		return
	}
	c.ScenarioRuns.Inc()
}

// ObserveTick records one simulation tick: the size of the retained conflict
// window and the collision risks raised during the tick.
func (c *PlannerCollector) ObserveTick(activeConflicts int, raised []model.ConflictEvent) {
	if c == nil {
		return
	}
	if c.SimTicks != nil {
		c.SimTicks.Inc()
	}
	if c.SimActiveConflicts != nil {
		c.SimActiveConflicts.Set(float64(activeConflicts))
	}
	if c.SimCollisionRisks != nil {
		for _, ev := range raised {
			if ev.Type == model.CollisionRisk {
				c.SimCollisionRisks.WithLabelValues(string(ev.Severity)).Inc()
			}
		}
	}
}

// SetRunning mirrors the simulation run state.
func (c *PlannerCollector) SetRunning(running bool) {
	if c == nil || c.SimRunning == nil {
		return
	}
	if running {
		c.SimRunning.Set(1)
		return
	}
	c.SimRunning.Set(0)
}

// SetSubscribers updates the subscriber gauge.
func (c *PlannerCollector) SetSubscribers(n int) {
	if c == nil || c.SimSubscribers == nil {
		return
	}
	c.SimSubscribers.Set(float64(n))
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
