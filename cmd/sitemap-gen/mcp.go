package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/mcp"
	"github.com/Sriram-PR/sitemap-gen/pkg/storage"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	outputDir := fs.String("output", "", "Default output directory for generate_sitemaps (defaults to output_dir from config)")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: sitemap-gen mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  sitemap-gen mcp-server -config sitemap.yaml

  # Start with SSE transport on port 8080
  sitemap-gen mcp-server -config sitemap.yaml -transport sse -port 8080

Available MCP Tools:
  list_batches       List configured batches
  preview_url        Evaluate a URL template against a sample row
  generate_sitemaps  Start a background generation
  get_job_status     Poll a generation job
  inspect_output     Count files and URLs under sitemap.xml
  run_history        List recent runs
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doMcpServer(*configFile, *outputDir, *transport, *port, *logLevel, os.Stderr))
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, outputDir, transport string, port int, logLevel string, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr) // MCP protocol uses stdout, logs go to stderr
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	cfg, err := loadConfig(configPath, func(w string) { log.Warn(w) })
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	var ledger storage.RunStore
	store, err := storage.NewBadgerStore(cfg.StateDir, log.WithField("component", "run_ledger"))
	if err != nil {
		log.Warnf("Run ledger unavailable, run_history disabled: %v", err)
	} else {
		defer store.Close()
		ledger = store
	}

	gen := newGenerator(cfg, ledger, log)
	server, err := mcp.NewServer(&mcp.ServerConfig{
		Config:     cfg,
		ConfigPath: configPath,
		OutputDir:  outputDir,
		Generate:   gen.Run,
		Ledger:     ledger,
		Transport:  transport,
		Port:       port,
		Version:    version,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer server.Shutdown(context.Background())

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
