package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
	"github.com/Sriram-PR/sitemap-gen/pkg/storage"
)

const version = "2.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-batches":
		runListBatches(os.Args[2:])
	case "preview":
		runPreview(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("sitemap-gen %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `sitemap-gen - Database driven XML sitemap generator

Usage:
  sitemap-gen <command> [options]

Commands:
  generate      Generate sitemaps from the configured batches
  watch         Regenerate sitemaps on a schedule
  validate      Validate configuration file
  list-batches  List configured batches
  preview       Evaluate a batch URL template against a sample row
  inspect       Walk a generated sitemap tree and count URLs
  history       Show recent generation runs
  mcp-server    Start MCP server for AI tool integration
  version       Show version info

Run 'sitemap-gen <command> -h' for command-specific help.`)
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// loadConfig loads, defaults and validates the config file. Warnings go to warn when it is non-nil.
func loadConfig(path string, warn func(string)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	warnings, err := cfg.Validate()
	if warn != nil {
		for _, w := range warnings {
			warn(w)
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath, func(w string) { fmt.Fprintf(stdout, "WARN: %s\n", w) })
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, b := range cfg.Batches {
		fmt.Fprintf(stdout, "OK: [%s]\n", b.Name)
	}
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListBatches handles the list-batches subcommand
func runListBatches(args []string) {
	fs := flag.NewFlagSet("list-batches", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen list-batches [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListBatches(*configFile, os.Stdout, os.Stderr))
}

// doListBatches lists batches in config order.
func doListBatches(configPath string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Batches in %s:\n\n", configPath)
	for _, b := range cfg.Batches {
		fmt.Fprintf(stdout, "  %s\n", b.Name)
		fmt.Fprintf(stdout, "    URL: %s/%s\n", cfg.BaseURL, b.URL)
		fmt.Fprintf(stdout, "    Order By: %s\n", b.OrderByColumn)
		if b.ModifiedDateColumn != "" {
			fmt.Fprintf(stdout, "    Modified: %s\n", b.ModifiedDateColumn)
		}
		fmt.Fprintf(stdout, "    Max Links: %d, Change Frequency: %s, Priority: %s, Compress: %t\n",
			b.GetEffectiveMaxLinks(), b.GetEffectiveChangeFrequency(),
			sitemap.FormatPriority(b.GetEffectivePriority()), b.GetEffectiveCompress())
		fmt.Fprintln(stdout)
	}
	return 0
}

// runPreview handles the preview subcommand
func runPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	batch := fs.String("batch", "", "Batch name whose URL template is evaluated (required)")
	row := fs.String("row", "", `Sample row as JSON, e.g. '{"Id": 7, "Name": "Blue Shirt"}' (required)`)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen preview [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *batch == "" || *row == "" {
		fmt.Fprintln(os.Stderr, "Error: -batch and -row are required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doPreview(*configFile, *batch, *row, os.Stdout, os.Stderr))
}

// doPreview prints the URL and published loc a row would produce.
func doPreview(configPath, batchName, rowJSON string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	b, ok := cfg.Batch(batchName)
	if !ok {
		fmt.Fprintf(stderr, "Error: batch '%s' not found in config\n", batchName)
		return 1
	}

	var values map[string]any
	dec := json.NewDecoder(strings.NewReader(rowJSON))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		fmt.Fprintf(stderr, "Error: -row must be a JSON object: %v\n", err)
		return 1
	}
	row := models.RowFromMap(values)

	raw, err := parse.NewEvaluator(nil).Evaluate(cfg.BaseURL, b.URL, row)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "URL:     %s\n", raw)
	fmt.Fprintf(stdout, "loc:     %s\n", strings.ToLower(raw))
	if b.ModifiedDateColumn != "" {
		if v, ok := row.Get(b.ModifiedDateColumn); ok {
			if t, err := orchestrate.ParseModified(v); err == nil {
				fmt.Fprintf(stdout, "lastmod: %s\n", sitemap.FormatLastMod(t))
			} else {
				fmt.Fprintf(stdout, "lastmod: generation time (%v)\n", err)
			}
		} else {
			fmt.Fprintf(stderr, "Error: modified date column '%s' missing from row\n", b.ModifiedDateColumn)
			return 1
		}
	}
	return 0
}

// runInspect handles the inspect subcommand
func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	outputDir := fs.String("output", "", "Output directory containing sitemap.xml (required)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen inspect [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *outputDir == "" && fs.NArg() > 0 {
		*outputDir = fs.Arg(0)
	}
	if *outputDir == "" {
		fmt.Fprintln(os.Stderr, "Error: -output is required")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	os.Exit(doInspect(context.Background(), *outputDir, log, os.Stdout, os.Stderr))
}

// doInspect prints one line per sitemap file reachable from sitemap.xml.
func doInspect(ctx context.Context, outputDir string, log *logrus.Logger, stdout, stderr io.Writer) int {
	report, err := sitemap.Inspect(ctx, outputDir, log.WithField("component", "inspect"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, f := range report.Files {
		gz := ""
		if f.Compressed {
			gz = " (gz)"
		}
		fmt.Fprintf(stdout, "%s%-12s %6d  %s%s\n", strings.Repeat("  ", f.Depth), f.Kind, f.Entries, f.Path, gz)
	}
	for _, loc := range report.Unresolved {
		fmt.Fprintf(stdout, "MISSING: %s\n", loc)
	}
	fmt.Fprintf(stdout, "\n%d files, %d URLs\n", len(report.Files), report.TotalURLs)
	if len(report.Unresolved) > 0 {
		return 1
	}
	return 0
}

// runHistory handles the history subcommand
func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	limit := fs.Int("limit", 10, "Maximum number of runs to show")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-gen history [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	os.Exit(doHistory(*configFile, *limit, log, os.Stdout, os.Stderr))
}

// doHistory lists the newest runs from the run ledger.
func doHistory(configPath string, limit int, log *logrus.Logger, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	store, err := storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "run_ledger"))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening run ledger: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.ListRuns(limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return 0
	}

	for _, r := range runs {
		fmt.Fprintf(stdout, "%s  %-9s  %s  %6d URLs  %4d files  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.TotalURLs, r.TotalFiles, r.ID)
		if r.ErrorMessage != "" {
			fmt.Fprintf(stdout, "    %s: %s\n", r.ErrorType, r.ErrorMessage)
		}
	}
	return 0
}

// exitCodeFor maps a run error to a process exit code
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
