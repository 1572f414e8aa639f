// Command combfit selects the best recoil/quanta assignment for every
// tagger hit of every event and reports the resulting mass spectra.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/combfit/internal/config"
	"github.com/banshee-data/combfit/internal/monitoring"
	"github.com/banshee-data/combfit/internal/physics"
	"github.com/banshee-data/combfit/internal/physics/pipeline"
	"github.com/banshee-data/combfit/internal/physics/promptrandom"
	"github.com/banshee-data/combfit/internal/physics/source"
	"github.com/banshee-data/combfit/internal/physics/spectra"
	"github.com/banshee-data/combfit/internal/physics/storage/sqlite"
	"github.com/banshee-data/combfit/internal/version"
)

type options struct {
	configPath    string
	input         string
	synthetic     int
	seed          uint64
	dbPath        string
	maxEvents     int64
	workers       int
	metricsListen string
	batch         bool
	diag          bool
	trace         bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, bool, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Tuning config file (.json, .yaml); defaults are used when empty")
	fs.StringVar(&o.input, "input", "", "JSON lines event file, '-' for stdin")
	fs.IntVar(&o.synthetic, "synthetic", 0, "Generate N synthetic events instead of reading -input")
	fs.Uint64Var(&o.seed, "seed", 1, "Seed for -synthetic")
	fs.StringVar(&o.dbPath, "db", "", "SQLite file to record the run and its selections")
	fs.Int64Var(&o.maxEvents, "max-events", 0, "Stop after this many events (0 = all)")
	fs.IntVar(&o.workers, "workers", 0, "Parallel workers (0 = from config)")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9101")
	fs.BoolVar(&o.batch, "batch", false, "Batch mode: no progress lines and no colour")
	fs.BoolVar(&o.diag, "diag", false, "Enable the diagnostics log stream")
	fs.BoolVar(&o.trace, "trace", false, "Enable per-event trace logging")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, false, err
	}
	if *showVersion {
		return o, true, nil
	}
	if (o.input == "") == (o.synthetic <= 0) {
		return o, false, errors.New("exactly one of -input or -synthetic is required")
	}
	if o.maxEvents < 0 {
		return o, false, fmt.Errorf("-max-events must not be negative, got %d", o.maxEvents)
	}
	return o, false, nil
}

func main() {
	o, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if showVersion {
		fmt.Printf("combfit %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	color.NoColor = o.batch || !isatty.IsTerminal(os.Stdout.Fd())
	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatalf("combfit: %v", err)
	}
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func openSource(o options) (source.Source, func() error, error) {
	if o.synthetic > 0 {
		cfg := source.DefaultSyntheticConfig(o.synthetic)
		cfg.Seed = o.seed
		gen, err := source.NewSynthetic(cfg)
		return gen, func() error { return nil }, err
	}
	if o.input == "-" {
		return source.NewJSONLines(os.Stdin), func() error { return nil }, nil
	}
	f, err := os.Open(o.input)
	if err != nil {
		return nil, nil, err
	}
	return source.NewJSONLines(f), f.Close, nil
}

func run(ctx context.Context, o options, out io.Writer) error {
	w := physics.LogWriters{Ops: os.Stderr}
	if o.diag {
		w.Diag = os.Stderr
	}
	if o.trace {
		w.Trace = os.Stderr
	}
	physics.SetLogWriters(w)
	if o.batch {
		monitoring.SetLogger(nil)
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	factory, err := pipeline.FactoryFromTuning(cfg)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sw, err := promptrandom.FromTuning(cfg)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	acc, err := spectra.NewAccumulator(sw, cfg.GetSpectrumBins(), cfg.GetSpectrumMaxMeV())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	physics.Diagf("quanta %d..%d, coplanarity ±%g°, missing mass ±%g MeV, workers %d",
		cfg.GetMinQuanta(), cfg.GetMaxQuanta(), cfg.GetCoplanarityWindowDeg(),
		cfg.GetMissingMassWindowMeV(), cfg.GetWorkers())

	src, closeSrc, err := openSource(o)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)
	if o.metricsListen != "" {
		srv := &http.Server{Addr: o.metricsListen, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				physics.Opsf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sinks := []pipeline.Sink{acc}
	var (
		store *sqlite.Store
		runID string
	)
	if o.dbPath != "" {
		store, err = sqlite.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		r, err := store.StartRun(version.Version, string(cfgJSON))
		if err != nil {
			return err
		}
		runID = r.ID
		physics.Opsf("recording run %s to %s", runID, o.dbPath)
		sinks = append(sinks, store.Sink(runID))
	}

	workers := cfg.GetWorkers()
	if o.workers > 0 {
		workers = o.workers
	}
	interval := cfg.GetProgressInterval()
	if o.batch {
		interval = 0
	}
	runner, err := pipeline.NewRunner(src, factory, pipeline.Options{
		MaxEvents:        o.maxEvents,
		Workers:          workers,
		ProgressInterval: interval,
		Metrics:          metrics,
	}, sinks...)
	if err != nil {
		return err
	}

	stats, runErr := runner.Run(ctx)
	if store != nil {
		if err := store.FinishRun(runID, stats.Events, stats.Selections, stats.String()); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr
	}
	return printSummary(out, stats, acc)
}

func printSummary(w io.Writer, stats pipeline.RunStats, acc *spectra.Accumulator) error {
	head := color.New(color.Bold)
	warn := color.New(color.FgYellow)

	head.Fprintln(w, "Run")
	fmt.Fprintf(w, "  events      %d (skipped %d)\n", stats.Events, stats.Skipped)
	fmt.Fprintf(w, "  tagger hits %d\n", stats.Hits)
	fmt.Fprintf(w, "  selections  %d\n", stats.Selections)
	fmt.Fprintf(w, "  elapsed     %s\n", stats.Elapsed.Round(time.Millisecond))
	if stats.Interrupted {
		warn.Fprintln(w, "  interrupted before the end of input")
	}

	s := stats.Selector
	head.Fprintln(w, "Selector")
	fmt.Fprintf(w, "  trials %d, coplanarity rejects %d, missing mass rejects %d\n",
		s.Trials, s.RejectedCoplanarity, s.RejectedMissingMass)
	fmt.Fprintf(w, "  fits ok %d, failed %d, below cut %d, no selection %d\n",
		s.FitSuccesses, s.FitFailures, s.BelowCut, s.NoSelections)

	prompt, random, outside := acc.Counts()
	head.Fprintln(w, "Spectra")
	fmt.Fprintf(w, "  prompt %d, random %d, outside %d\n", prompt, random, outside)
	return acc.Summary(w)
}
