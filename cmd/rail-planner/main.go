package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/api"
	"github.com/signalsfoundry/rail-planner/internal/config"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/observability"
	"github.com/signalsfoundry/rail-planner/internal/optimizer"
	"github.com/signalsfoundry/rail-planner/internal/scenario"
	"github.com/signalsfoundry/rail-planner/internal/sim"
	"github.com/signalsfoundry/rail-planner/kb"
	"github.com/signalsfoundry/rail-planner/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// simulationService is the health service name that tracks the live
// simulation: SERVING while it runs.
const simulationService = "rail.Simulation"

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rail-planner: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(context.Background(), "rail-planner exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets callers supply pre-bound sockets. Nil entries are opened
// from the configured addresses; an empty metrics address disables the
// metrics server.
type listeners struct {
	http    net.Listener
	grpc    net.Listener
	metrics net.Listener
}

func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	if log == nil {
		log = logging.Noop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	graph, err := loadNetwork(ctx, cfg.Files.Network, log)
	if err != nil {
		return err
	}
	fleet, err := loadFleet(ctx, cfg.Files.Fleet, log)
	if err != nil {
		return err
	}

	opt := optimizer.New(graph,
		optimizer.WithConfig(cfg.Optimizer),
		optimizer.WithLogger(log),
		optimizer.WithMetrics(collector),
	)
	scenarios := scenario.NewEngine(opt,
		scenario.WithLogger(log),
		scenario.WithMetricsRecorder(collector),
	)
	// A fleet edit changes what a baseline run would produce.
	unsubFleet := fleet.Subscribe(func(kb.Event) { scenarios.InvalidateBaseline() })
	defer unsubFleet()

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(simulationService, healthpb.HealthCheckResponse_NOT_SERVING)

	var positions []model.TrainPosition
	if len(cfg.Simulation.Positions) > 0 {
		positions = sim.PositionsFromSpecs(cfg.Simulation.Positions, time.Now())
	}
	engine := sim.NewEngine(positions,
		sim.WithConfig(cfg.Simulation.Config),
		sim.WithLogger(log),
		sim.WithMetricsRecorder(collector),
		sim.WithRunStateHook(func(running bool) {
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if running {
				status = healthpb.HealthCheckResponse_SERVING
			}
			healthSrv.SetServingStatus(simulationService, status)
		}),
	)
	defer engine.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := api.NewHub(log)
	go hub.Run(hubCtx)
	unsubHub := engine.Subscribe(hub.Publish)
	defer unsubHub()

	server := api.NewServer(api.Services{
		Graph:      graph,
		Fleet:      fleet,
		Optimizer:  opt,
		Scenarios:  scenarios,
		Simulation: engine,
		Hub:        hub,
	}, api.WithLogger(log), api.WithMetrics(collector))

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	if lis.grpc == nil {
		if lis.grpc, err = net.Listen("tcp", cfg.Server.GRPCAddr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.Server.GRPCAddr, err)
		}
	}
	if lis.http == nil {
		if lis.http, err = net.Listen("tcp", cfg.Server.HTTPAddr); err != nil {
			lis.grpc.Close()
			return fmt.Errorf("listen http %s: %w", cfg.Server.HTTPAddr, err)
		}
	}

	errCh := make(chan error, 3)
	go func() {
		log.Info(ctx, "starting gRPC health server", logging.String("addr", lis.grpc.Addr().String()))
		if err := grpcServer.Serve(lis.grpc); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	httpSrv := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info(ctx, "starting HTTP API", logging.String("addr", lis.http.Addr().String()))
		if err := httpSrv.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	metricsSrv := serveMetrics(ctx, cfg.Server.MetricsAddr, lis.metrics, collector, log)

	if cfg.Simulation.AutoStart {
		engine.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down rail-planner")
	healthSrv.Shutdown()
	engine.Stop()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
	}
	grpcServer.GracefulStop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(ctx context.Context, addr string, lis net.Listener, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil || (addr == "" && lis == nil) {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		var err error
		if lis != nil {
			err = srv.Serve(lis)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func loadNetwork(ctx context.Context, path string, log logging.Logger) (*core.NetworkGraph, error) {
	if path == "" {
		log.Info(ctx, "no network file configured; using sample network")
		return core.SampleGraph()
	}
	g, summary, err := core.LoadNetworkFile(path)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "loaded network",
		logging.String("path", path),
		logging.Int("stations", len(summary.StationIDs)),
		logging.Int("tracks", len(summary.TrackIDs)),
	)
	return g, nil
}

func loadFleet(ctx context.Context, path string, log logging.Logger) (*kb.KnowledgeBase, error) {
	fleet := kb.NewKnowledgeBase()
	if path == "" {
		log.Info(ctx, "no fleet file configured; using sample fleet")
		return fleet, fleet.Seed(kb.SampleTrains())
	}
	summary, err := fleet.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "loaded fleet",
		logging.String("path", path),
		logging.Int("trains", len(summary.TrainIDs)),
		logging.Int("schedules", summary.Schedules),
	)
	return fleet, nil
}
