package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/fetch"
	"github.com/Sriram-PR/sitemap-gen/pkg/metrics"
	"github.com/Sriram-PR/sitemap-gen/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-gen/pkg/source"
	"github.com/Sriram-PR/sitemap-gen/pkg/storage"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
	"github.com/Sriram-PR/sitemap-gen/pkg/watch"
)

// generator runs one full generation with every side concern attached: database, robots check,
// metrics textfile, run ledger and structure file.
type generator struct {
	cfg       *config.Config
	configSHA string
	ledger    storage.RunStore // Optional
	log       *logrus.Logger
}

// newGenerator fingerprints the effective (validated) configuration so runs in the ledger can be
// told apart after config edits.
func newGenerator(cfg *config.Config, ledger storage.RunStore, log *logrus.Logger) *generator {
	var sha string
	if data, err := cfg.Marshal(); err == nil {
		sha = utils.CalculateBytesSHA256(data)
	} else {
		log.Warnf("Could not fingerprint config: %v", err)
	}
	return &generator{cfg: cfg, configSHA: sha, ledger: ledger, log: log}
}

// Run generates into outputDir and records the run. The summary is never nil.
func (g *generator) Run(ctx context.Context, outputDir string) (*orchestrate.RunSummary, error) {
	started := time.Now().UTC()
	summary, err := g.generate(ctx, outputDir)
	if summary == nil {
		// Failed before the orchestrator started
		now := time.Now().UTC()
		summary = &orchestrate.RunSummary{StartedAt: started, FinishedAt: now, Duration: now.Sub(started)}
	}

	if g.ledger != nil {
		rec := orchestrate.BuildRunRecord(uuid.New().String(), outputDir, g.configSHA, summary, err)
		if saveErr := g.ledger.SaveRun(rec); saveErr != nil {
			g.log.Warnf("Failed to record run in ledger: %v", saveErr)
		}
	}

	if err == nil && g.cfg.WriteStructureFile {
		treePath := filepath.Join(g.cfg.StateDir, "output_structure.txt")
		if treeErr := utils.GenerateAndSaveTreeStructure(outputDir, treePath, g.log.WithField("component", "tree")); treeErr != nil {
			g.log.Warnf("Failed to write structure file: %v", treeErr)
		}
	}
	return summary, err
}

func (g *generator) generate(ctx context.Context, outputDir string) (*orchestrate.RunSummary, error) {
	db, err := source.OpenSQL(ctx, g.cfg.Database.Driver, g.cfg.Database.DSN, g.cfg.Database.GetEffectiveDialect(), g.log)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	recorder := metrics.NewPrometheusRecorder(nil)
	opts := []orchestrate.Option{orchestrate.WithRecorder(recorder)}

	var robots *fetch.RobotsChecker
	if g.cfg.RobotsFile != "" {
		fetcher := fetch.NewFetcher(fetch.NewClient(0, g.log), fetch.DefaultRetryPolicy, g.log)
		robots, err = fetch.LoadRobots(ctx, g.cfg.RobotsFile, fetcher, g.log)
		if err != nil {
			// The robots check is advisory
			g.log.Warnf("Robots check disabled: %v", err)
		} else {
			opts = append(opts, orchestrate.WithRobots(robots))
		}
	}

	orch := orchestrate.NewOrchestrator(g.cfg, db.Factory(), g.log, opts...)
	summary, runErr := orch.Run(ctx, outputDir)

	if robots != nil && runErr == nil && !robots.DeclaresSitemap(summary.RootURL) {
		g.log.Warnf("robots.txt does not declare 'Sitemap: %s'", summary.RootURL)
	}

	if g.cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(g.cfg.MetricsFile); err != nil {
			g.log.Warnf("Failed to write metrics file: %v", err)
		}
	}
	return summary, runErr
}

// generateOptions are the parsed generate flags
type generateOptions struct {
	ConfigPath string
	OutputDir  string
	LogLevel   string
	Parallel   int
}

// parseGenerateArgs accepts both the flag form and the legacy "<config> <output>" positional form.
func parseGenerateArgs(args []string, errOut io.Writer) (generateOptions, error) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var opts generateOptions
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML or JSON config file (required)")
	fs.StringVar(&opts.OutputDir, "output", "", "Existing output directory (defaults to output_dir from config)")
	fs.StringVar(&opts.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fs.IntVar(&opts.Parallel, "parallel", -1, "Number of batches processed concurrently (overrides config; 1 = sequential)")

	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: sitemap-gen generate [options]\n       sitemap-gen generate <config> <output>\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(errOut, "\nExamples:\n")
		fmt.Fprintf(errOut, "  sitemap-gen generate -config sitemap.yaml -output ./public\n")
		fmt.Fprintf(errOut, "  sitemap-gen generate sitemap.json ./public\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	rest := fs.Args()
	if opts.ConfigPath == "" && len(rest) > 0 {
		opts.ConfigPath, rest = rest[0], rest[1:]
	}
	if opts.OutputDir == "" && len(rest) > 0 {
		opts.OutputDir, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", rest)
	}
	if opts.ConfigPath == "" {
		fs.Usage()
		return opts, errors.New("a config file is required")
	}
	return opts, nil
}

// runGenerate handles the generate subcommand
func runGenerate(args []string) {
	opts, err := parseGenerateArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(opts.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Stopping after the current page...", sig)
		cancel()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	os.Exit(doGenerate(ctx, opts, log, os.Stdout))
}

// doGenerate is the testable body of the generate command.
func doGenerate(ctx context.Context, opts generateOptions, log *logrus.Logger, stdout io.Writer) int {
	if _, err := os.Stat(opts.ConfigPath); err != nil {
		log.Errorf("Config file not found: %s", opts.ConfigPath)
		return 1
	}

	log.Infof("Loading configuration from %s", opts.ConfigPath)
	cfg, err := loadConfig(opts.ConfigPath, func(w string) { log.Warn(w) })
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if opts.Parallel >= 0 {
		cfg.ParallelBatches = opts.Parallel
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir == "" {
		log.Error("No output directory given (-output or output_dir in config)")
		return 1
	}
	if info, err := os.Stat(outputDir); err != nil || !info.IsDir() {
		log.Errorf("Output directory does not exist: %s", outputDir)
		return 1
	}

	var store storage.RunStore
	ledger, err := storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "run_ledger"))
	if err != nil {
		// Generation does not depend on the ledger
		log.Warnf("Run ledger unavailable: %v", err)
	} else {
		defer ledger.Close()
		store = ledger
	}

	summary, err := newGenerator(cfg, store, log).Run(ctx, outputDir)
	if err != nil {
		log.Errorf("Generation failed (%s): %v", utils.CategorizeError(err), err)
		return exitCodeFor(err)
	}

	fmt.Fprintf(stdout, "Sitemap generated successfully at %s\n", summary.RootURL)
	return 0
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	outputDir := fs.String("output", "", "Existing output directory (defaults to output_dir from config)")
	interval := fs.String("interval", "24h", "Regeneration interval (e.g., 30m, 1h, 24h, 7d)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitemap-gen watch -config sitemap.yaml -output ./public -interval 6h\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)

	every, err := watch.ParseInterval(*interval)
	if err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}
	log.Infof("Watch interval: %s", watch.FormatInterval(every))

	log.Infof("Loading configuration from %s", *configFile)
	cfg, err := loadConfig(*configFile, func(w string) { log.Warn(w) })
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	dir := *outputDir
	if dir == "" {
		dir = cfg.OutputDir
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Fatalf("Output directory does not exist: %s", dir)
	}
	ledger, err := storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "run_ledger"))
	if err != nil {
		log.Fatalf("Failed to open run ledger: %v", err)
	}
	defer ledger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ledger.RunGC(ctx, 10*time.Minute)

	gen := newGenerator(cfg, ledger, log)
	scheduler := watch.NewScheduler(dir, func(ctx context.Context) (*orchestrate.RunSummary, error) {
		return gen.Run(ctx, dir)
	}, every, cfg.StateDir, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, stopping watch...", sig)
		cancel()
	}()

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Watch scheduler error: %v", err)
		ledger.Close()
		os.Exit(1)
	}
	log.Info("Watch mode stopped")
}
