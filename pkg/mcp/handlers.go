package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/emit"
	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
)

// handleListBatches handles the list_batches tool
func (s *Server) handleListBatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.cfg.Config
	batches := make([]map[string]interface{}, 0, len(cfg.Batches))
	for _, b := range cfg.Batches {
		batches = append(batches, map[string]interface{}{
			"name":                 b.Name,
			"url_template":         b.URL,
			"order_by_column":      b.OrderByColumn,
			"modified_date_column": b.ModifiedDateColumn,
			"max_links":            b.GetEffectiveMaxLinks(),
			"change_frequency":     b.GetEffectiveChangeFrequency().String(),
			"priority":             b.GetEffectivePriority(),
			"compress":             b.GetEffectiveCompress(),
			"single_file_url":      emit.PublicURL(cfg.BaseURL, "", b.Name, b.GetEffectiveCompress()),
			"sub_index_url":        emit.PublicURL(cfg.BaseURL, b.Name, b.Name, b.GetEffectiveCompress()),
		})
	}

	result := map[string]interface{}{
		"base_url":      cfg.BaseURL,
		"config_path":   s.cfg.ConfigPath,
		"batches":       batches,
		"total_batches": len(batches),
		"functions":     s.evaluator.Funcs().Names(),
	}
	if s.jobManager.IsRunning(s.cfg.OutputDir) {
		result["status"] = "running"
	}
	if s.cfg.Ledger != nil {
		if last, found, err := s.cfg.Ledger.LastRun(); err == nil && found {
			result["last_run"] = map[string]interface{}{
				"id":          last.ID,
				"status":      last.Status,
				"finished_at": last.FinishedAt.Format(time.RFC3339),
				"total_urls":  last.TotalURLs,
			}
		}
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handlePreviewURL handles the preview_url tool
func (s *Server) handlePreviewURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rowJSON := request.GetString("row", "")
	if rowJSON == "" {
		return mcp.NewToolResultError("row parameter is required"), nil
	}
	row, err := parseRow(rowJSON)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	template := request.GetString("template", "")
	batchName := request.GetString("batch", "")
	var batch config.BatchConfig
	if template == "" {
		if batchName == "" {
			return mcp.NewToolResultError("either batch or template is required"), nil
		}
		b, ok := s.cfg.Config.Batch(batchName)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("batch '%s' not found. Available batches: %v", batchName, batchNames(s.cfg.Config))), nil
		}
		batch = b
		template = b.URL
	}

	raw, err := s.evaluator.Evaluate(s.cfg.Config.BaseURL, template, row)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("template evaluation failed: %v", err)), nil
	}

	result := map[string]interface{}{
		"template":      template,
		"url":           raw,
		"published_loc": strings.ToLower(raw),
	}
	if batchName != "" {
		result["batch"] = batchName
	}
	if batch.ModifiedDateColumn != "" {
		if v, ok := row.Get(batch.ModifiedDateColumn); ok {
			if t, err := orchestrate.ParseModified(v); err == nil {
				result["lastmod"] = sitemap.FormatLastMod(t)
			} else {
				result["lastmod_error"] = err.Error()
			}
		} else {
			result["lastmod_error"] = fmt.Sprintf("modified date column '%s' missing from row", batch.ModifiedDateColumn)
		}
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGenerate handles the generate_sitemaps tool
func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outputDir := request.GetString("output_dir", s.cfg.OutputDir)
	if outputDir == "" {
		return mcp.NewToolResultError("output_dir parameter is required (no default configured)"), nil
	}

	job, created := s.jobManager.CreateJob(outputDir)
	if !created {
		result := map[string]interface{}{
			"status":     "already_running",
			"message":    "A generation is already in progress for this output directory",
			"job_id":     job.ID,
			"output_dir": outputDir,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runGenerateJob(job.ID, outputDir)

	result := map[string]interface{}{
		"status":     "started",
		"message":    "Generation started",
		"job_id":     job.ID,
		"output_dir": outputDir,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runGenerateJob runs a generation job in the background
func (s *Server) runGenerateJob(jobID, outputDir string) {
	jobCtx := s.jobManager.Start(jobID)
	jobLog := s.log.WithField("job_id", jobID)
	jobLog.Infof("Generation job started for %s", outputDir)

	summary, err := s.cfg.Generate(jobCtx, outputDir)
	var root string
	var urls, files int
	if summary != nil {
		root, urls, files = summary.RootURL, summary.TotalURLs, summary.TotalFiles
	}

	switch {
	case err == nil:
		s.jobManager.Finish(jobID, JobStatusCompleted, root, urls, files, "")
		jobLog.Infof("Generation job completed: %s", root)
	case errors.Is(err, context.Canceled):
		s.jobManager.Finish(jobID, JobStatusCancelled, root, urls, files, "")
	default:
		s.jobManager.Finish(jobID, JobStatusFailed, root, urls, files, err.Error())
		jobLog.Errorf("Generation job failed: %v", err)
	}
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"output_dir": job.OutputDir,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"url_count":  job.URLCount,
		"file_count": job.FileCount,
	}
	if job.RootURL != "" {
		result["root_url"] = job.RootURL
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleInspect handles the inspect_output tool
func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outputDir := request.GetString("output_dir", s.cfg.OutputDir)
	if outputDir == "" {
		return mcp.NewToolResultError("output_dir parameter is required (no default configured)"), nil
	}
	report, err := sitemap.Inspect(ctx, outputDir, s.log)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}

	files := make([]map[string]interface{}, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, map[string]interface{}{
			"path":       f.Path,
			"url":        f.URL,
			"kind":       f.Kind,
			"compressed": f.Compressed,
			"entries":    f.Entries,
			"depth":      f.Depth,
		})
	}
	result := map[string]interface{}{
		"output_dir": outputDir,
		"files":      files,
		"total_urls": report.TotalURLs,
		"unresolved": report.Unresolved,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleRunHistory handles the run_history tool
func (s *Server) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := min(max(request.GetInt("limit", 10), 1), 100)

	runs, err := s.cfg.Ledger.ListRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run history: %v", err)), nil
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		item := map[string]interface{}{
			"id":          r.ID,
			"status":      r.Status,
			"started_at":  r.StartedAt.Format(time.RFC3339),
			"duration":    r.FinishedAt.Sub(r.StartedAt).String(),
			"total_urls":  r.TotalURLs,
			"total_files": r.TotalFiles,
			"batches":     len(r.Batches),
		}
		if r.RootURL != "" {
			item["root_url"] = r.RootURL
		}
		if r.ErrorType != "" {
			item["error_type"] = r.ErrorType
			item["error_message"] = r.ErrorMessage
		}
		items = append(items, item)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"runs":  items,
		"count": len(items),
	})), nil
}

// parseRow decodes a JSON object into a Row. Numbers keep their literal text.
func parseRow(rowJSON string) (models.Row, error) {
	dec := json.NewDecoder(strings.NewReader(rowJSON))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return models.Row{}, fmt.Errorf("row must be a JSON object: %v", err)
	}
	return models.RowFromMap(values), nil
}

func batchNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Batches))
	for _, b := range cfg.Batches {
		names = append(names, b.Name)
	}
	return names
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
