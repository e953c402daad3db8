package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/storage"
)

const serverName = "sitemap-gen"

// GenerateFunc runs one full generation into outputDir
type GenerateFunc func(ctx context.Context, outputDir string) (*orchestrate.RunSummary, error)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	Config     *config.Config
	ConfigPath string
	OutputDir  string // Default output directory for generate_sitemaps
	Generate   GenerateFunc
	Ledger     storage.RunStore // Optional; enables run_history
	Transport  string           // "stdio" or "sse"
	Port       int
	Version    string
	Logger     *logrus.Logger
}

// Server exposes generation, preview and history as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	evaluator  *parse.Evaluator
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Generate == nil {
		return nil, errors.New("generate function is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		mcpServer:  server.NewMCPServer(serverName, cfg.Version, server.WithLogging()),
		cfg:        cfg,
		evaluator:  parse.NewEvaluator(nil),
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	listBatchesTool := mcp.NewTool("list_batches",
		mcp.WithDescription("List the configured batches with their URL templates and output layout"),
	)
	s.mcpServer.AddTool(listBatchesTool, s.handleListBatches)

	previewTool := mcp.NewTool("preview_url",
		mcp.WithDescription("Evaluate a batch's URL template (or an explicit template) against a sample row"),
		mcp.WithString("row",
			mcp.Required(),
			mcp.Description(`Row as a JSON object, e.g. {"Id": 7, "Name": "Blue Shirt"}`),
		),
		mcp.WithString("batch",
			mcp.Description("Batch whose template is used"),
		),
		mcp.WithString("template",
			mcp.Description("Template to evaluate instead of a batch's, e.g. products/{Id}/{Name:NormalizeString('-')}"),
		),
	)
	s.mcpServer.AddTool(previewTool, s.handlePreviewURL)

	generateTool := mcp.NewTool("generate_sitemaps",
		mcp.WithDescription("Start a full sitemap generation in the background. Returns immediately with a job ID."),
		mcp.WithString("output_dir",
			mcp.Description("Existing output directory (defaults to the configured one)"),
		),
	)
	s.mcpServer.AddTool(generateTool, s.handleGenerate)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a generation job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by generate_sitemaps"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	inspectTool := mcp.NewTool("inspect_output",
		mcp.WithDescription("Walk sitemap.xml in an output directory and count files and URLs"),
		mcp.WithString("output_dir",
			mcp.Description("Output directory (defaults to the configured one)"),
		),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspect)

	if s.cfg.Ledger == nil {
		s.log.Info("Run ledger not configured, run_history disabled")
		return
	}
	runHistoryTool := mcp.NewTool("run_history",
		mcp.WithDescription("List recent generation runs, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(runHistoryTool, s.handleRunHistory)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio", "":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		return server.NewSSEServer(s.mcpServer).Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
