package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/rail-planner/core"
	"github.com/signalsfoundry/rail-planner/internal/config"
	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/optimizer"
	"github.com/signalsfoundry/rail-planner/internal/scenario"
	"github.com/signalsfoundry/rail-planner/internal/sim"
	"github.com/signalsfoundry/rail-planner/kb"
	"github.com/signalsfoundry/rail-planner/model"
	"github.com/signalsfoundry/rail-planner/timectrl"
)

type options struct {
	configPath  string
	duration    time.Duration
	tick        time.Duration
	accelerated bool
	delays      string
	template    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	flag.DurationVar(&opts.duration, "duration", 60*time.Second, "total simulation duration")
	flag.DurationVar(&opts.tick, "tick", 0, "tick interval (defaults to simulation.tick_period)")
	flag.BoolVar(&opts.accelerated, "accelerated", true, "run in accelerated mode (vs real-time)")
	flag.StringVar(&opts.delays, "delay", "", "comma-separated train:minutes delays applied at startup, e.g. 1:5,3:10")
	flag.StringVar(&opts.template, "template", "", "run the named scenario template against the fleet before simulating")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.tick > 0 {
		cfg.Simulation.TickPeriod = opts.tick
	}
	logCfg := cfg.Logging
	logCfg.Output = os.Stderr
	log := logging.New(logCfg)

	if opts.template != "" {
		if err := runTemplate(ctx, cfg, opts.template, log, out); err != nil {
			return err
		}
	}

	start := time.Now().UTC()
	clock := timectrl.NewManualClock(start)
	var positions []model.TrainPosition
	if len(cfg.Simulation.Positions) > 0 {
		positions = sim.PositionsFromSpecs(cfg.Simulation.Positions, start)
	}
	engine := sim.NewEngine(positions,
		sim.WithConfig(cfg.Simulation.Config),
		sim.WithClock(clock),
		sim.WithLogger(log),
	)
	defer engine.Close()

	delays, err := parseDelays(opts.delays)
	if err != nil {
		return err
	}
	for _, d := range delays {
		if !engine.DelayTrain(d.trainID, d.minutes) {
			fmt.Fprintf(out, "warning: no simulated train %d to delay\n", d.trainID)
		}
	}

	mode := timectrl.RealTime
	tcClock := timectrl.Clock(timectrl.RealClock{})
	if opts.accelerated {
		mode = timectrl.Accelerated
		tcClock = clock
	}
	tc := timectrl.NewTimeController(tcClock, cfg.Simulation.TickPeriod, mode)

	seen := make(map[string]bool)
	tc.AddListener(func(simTime time.Time) {
		clock.Set(simTime)
		engine.Step()
		printTick(out, engine.GetState(), seen)
	})

	fmt.Fprintf(out, "Starting simulation: duration=%s, tick=%s, mode=%s\n",
		opts.duration, cfg.Simulation.TickPeriod, modeName(mode))
	<-tc.Start(ctx, opts.duration)

	final := engine.GetState()
	fmt.Fprintf(out, "Simulation complete: %d events, %d active conflicts\n", len(final.Events), len(final.Conflicts))
	return nil
}

func printTick(out io.Writer, st model.SimulationState, seen map[string]bool) {
	fmt.Fprintf(out, "[%s]", st.CurrentTime.Format(time.RFC3339))
	for _, p := range st.TrainPositions {
		fmt.Fprintf(out, " %s@T%d %.3f %.0fkm/h %s;", p.TrainNumber, p.CurrentTrackID, p.Progress, p.Speed, p.Status)
	}
	fmt.Fprintln(out)

	// Events are newest first; print unseen ones oldest first.
	for i := len(st.Events) - 1; i >= 0; i-- {
		ev := st.Events[i]
		if seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true
		fmt.Fprintf(out, "  event %-9s %s (%s)\n", ev.Type, ev.Description, ev.Location)
	}
	for _, c := range st.Conflicts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		fmt.Fprintf(out, "  conflict %s %s trains %v on %s\n", c.Severity, c.Type, c.TrainIDs, c.Location)
	}
}

func runTemplate(ctx context.Context, cfg config.Config, name string, log logging.Logger, out io.Writer) error {
	var tpl *model.ScenarioTemplate
	for _, t := range scenario.Templates() {
		if t.Name == name {
			tpl = &t
			break
		}
	}
	if tpl == nil {
		return fmt.Errorf("unknown scenario template %q", name)
	}

	var (
		graph *core.NetworkGraph
		err   error
	)
	if cfg.Files.Network != "" {
		graph, _, err = core.LoadNetworkFile(cfg.Files.Network)
	} else {
		graph, err = core.SampleGraph()
	}
	if err != nil {
		return err
	}
	fleet := kb.NewKnowledgeBase()
	if cfg.Files.Fleet != "" {
		_, err = fleet.LoadFile(cfg.Files.Fleet)
	} else {
		err = fleet.Seed(kb.SampleTrains())
	}
	if err != nil {
		return err
	}

	engine := scenario.NewEngine(optimizer.New(graph, optimizer.WithConfig(cfg.Optimizer), optimizer.WithLogger(log)),
		scenario.WithLogger(log))
	sc := engine.CreateScenario(tpl.Name, tpl.Description, fleet.ListTrains())
	for _, m := range tpl.Modifications {
		engine.AddModification(sc.ID, m)
	}
	results, _ := engine.RunScenario(ctx, sc.ID)

	fmt.Fprintf(out, "Scenario %q\n", tpl.Name)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

type delay struct {
	trainID int
	minutes int
}

func parseDelays(raw string) ([]delay, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []delay
	for _, part := range strings.Split(raw, ",") {
		id, mins, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("delay %q: want train:minutes", part)
		}
		trainID, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("delay %q: bad train id: %w", part, err)
		}
		minutes, err := strconv.Atoi(mins)
		if err != nil || minutes < 0 {
			return nil, fmt.Errorf("delay %q: bad minutes", part)
		}
		out = append(out, delay{trainID: trainID, minutes: minutes})
	}
	return out, nil
}

func modeName(m timectrl.Mode) string {
	if m == timectrl.Accelerated {
		return "accelerated"
	}
	return "real-time"
}
