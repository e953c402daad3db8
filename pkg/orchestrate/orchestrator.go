package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/emit"
	"github.com/Sriram-PR/sitemap-gen/pkg/metrics"
	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
	"github.com/Sriram-PR/sitemap-gen/pkg/source"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// URLPolicy decides whether a published URL may be crawled. *fetch.RobotsChecker implements it.
type URLPolicy interface {
	Allowed(url string) bool
}

// RunSummary contains the result of one generation run
type RunSummary struct {
	RootURL    string
	RootPath   string
	Batches    []models.BatchResult
	TotalURLs  int
	TotalFiles int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// batchOutcome is what one processed batch hands back to the coordinator
type batchOutcome struct {
	result models.BatchResult
	entry  *sitemap.IndexEntry // nil when the batch was skipped
}

// Orchestrator turns every configured batch into sitemap files and writes the root index
type Orchestrator struct {
	cfg       *config.Config
	factory   source.Factory
	evaluator *parse.Evaluator
	emitter   *emit.Emitter
	clock     func() time.Time
	recorder  metrics.Recorder
	robots    URLPolicy
	log       *logrus.Entry
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces the time source used for lastmod stamps
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithEvaluator replaces the template evaluator (and with it the transform registry)
func WithEvaluator(e *parse.Evaluator) Option {
	return func(o *Orchestrator) { o.evaluator = e }
}

// WithEmitter replaces the file emitter
func WithEmitter(e *emit.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithRecorder reports run metrics
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRobots counts URLs that policy disallows. Disallowed URLs are still published.
func WithRobots(policy URLPolicy) Option {
	return func(o *Orchestrator) { o.robots = policy }
}

// NewOrchestrator creates an orchestrator for a validated configuration. factory is called once
// in sequential mode and once per batch when batches run in parallel.
func NewOrchestrator(cfg *config.Config, factory source.Factory, log *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		factory:  factory,
		clock:    func() time.Time { return time.Now().UTC() },
		recorder: metrics.NoopRecorder{},
		log:      log.WithField("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.evaluator == nil {
		o.evaluator = parse.NewEvaluator(nil)
	}
	if o.emitter == nil {
		o.emitter = emit.NewEmitter(cfg.BaseURL, log, emit.WithRecorder(o.recorder))
	}
	return o
}

// Run processes every batch into outputDir and writes sitemap.xml. The returned summary is never
// nil and lists the batches finished before a failure. Files written before a failure are kept.
func (o *Orchestrator) Run(ctx context.Context, outputDir string) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: o.clock()}
	start := time.Now()

	err := o.run(ctx, outputDir, summary)

	summary.FinishedAt = o.clock()
	summary.Duration = time.Since(start)
	for _, b := range summary.Batches {
		summary.TotalURLs += b.Rows
		summary.TotalFiles += len(b.Files)
	}
	if summary.RootPath != "" {
		summary.TotalFiles++
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	o.recorder.ObserveRunDuration(summary.Duration, outcome)

	if err != nil {
		o.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Generation failed after %v: %v", summary.Duration, err)
		return summary, err
	}
	o.recorder.SetLastSuccess(summary.FinishedAt)
	o.logSummary(summary)
	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context, outputDir string, summary *RunSummary) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		return fmt.Errorf("%w: output directory '%s': %w", utils.ErrFilesystem, outputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: output path '%s' is not a directory", utils.ErrFilesystem, outputDir)
	}

	var outcomes []batchOutcome
	if o.cfg.ParallelBatches > 1 && len(o.cfg.Batches) > 1 {
		outcomes, err = o.runParallel(ctx, outputDir)
	} else {
		outcomes, err = o.runSequential(ctx, outputDir)
	}

	root := NewRootIndex()
	for _, oc := range outcomes {
		summary.Batches = append(summary.Batches, oc.result)
		if oc.entry != nil {
			root.Append(*oc.entry)
		}
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := root.Finalize(o.emitter, outputDir)
	if err != nil {
		return fmt.Errorf("writing root index: %w", err)
	}
	summary.RootURL = res.URL
	summary.RootPath = res.Path
	return nil
}

// runSequential processes batches in configuration order over one data source
func (o *Orchestrator) runSequential(ctx context.Context, outputDir string) ([]batchOutcome, error) {
	src, err := o.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: creating data source: %w", utils.ErrDataFetch, err)
	}
	defer src.Close()

	outcomes := make([]batchOutcome, 0, len(o.cfg.Batches))
	for _, b := range o.cfg.Batches {
		if err := ctx.Err(); err != nil {
			o.log.Warnf("Cancelled before batch '%s'", b.Name)
			return outcomes, err
		}
		oc, err := o.processBatch(ctx, src, b, outputDir)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, nil
}

// runParallel processes up to ParallelBatches batches at once. Each batch owns its data source
// and writes its outcome into its own slot, so the root index is assembled in configuration order.
func (o *Orchestrator) runParallel(ctx context.Context, outputDir string) ([]batchOutcome, error) {
	slots := make([]batchOutcome, len(o.cfg.Batches))
	done := make([]bool, len(o.cfg.Batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ParallelBatches)
	o.log.Infof("Processing %d batches with parallelism %d", len(o.cfg.Batches), o.cfg.ParallelBatches)

	for i, b := range o.cfg.Batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := o.factory()
			if err != nil {
				return fmt.Errorf("%w: creating data source for batch '%s': %w", utils.ErrDataFetch, b.Name, err)
			}
			defer src.Close()

			oc, err := o.processBatch(gctx, src, b, outputDir)
			if err != nil {
				return err
			}
			slots[i] = oc
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	outcomes := make([]batchOutcome, 0, len(slots))
	for i, oc := range slots {
		if done[i] {
			outcomes = append(outcomes, oc)
		}
	}
	return outcomes, err
}

// processBatch runs one batch through Start -> FetchingPage -> SingleFile | MultiFile -> Done
func (o *Orchestrator) processBatch(ctx context.Context, src source.DataSource, b config.BatchConfig, outputDir string) (batchOutcome, error) {
	start := time.Now()
	batchLog := o.log.WithField("batch", b.Name)
	maxLinks := b.GetEffectiveMaxLinks()
	result := models.BatchResult{Batch: b.Name}

	src.Configure(source.Query{
		Batch:         b.Name,
		SelectQuery:   b.SelectQuery,
		OrderByColumn: b.OrderByColumn,
		PageSize:      maxLinks,
	})

	rows, err := src.FetchPage(ctx, 0)
	if err != nil {
		return batchOutcome{result: result}, fetchError(err, b.Name, 0)
	}

	var entry *sitemap.IndexEntry
	switch {
	case len(rows) == 0:
		result.Strategy = models.BatchStrategySkipped
		batchLog.Info("First page is empty, skipping batch")
	case len(rows) < maxLinks:
		result.Strategy = models.BatchStrategySingle
		entry, err = o.emitSingle(b, rows, outputDir, &result)
	default:
		result.Strategy = models.BatchStrategyMulti
		entry, err = o.emitMulti(ctx, src, b, rows, outputDir, &result)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.ErrorType = utils.CategorizeError(err)
		return batchOutcome{result: result}, err
	}

	o.recorder.IncBatch(result.Strategy.String())
	o.recorder.AddURLs(b.Name, result.Rows)
	if result.DateFallbacks > 0 {
		batchLog.Warnf("%d row(s) had a missing or unparsable '%s', used generation time", result.DateFallbacks, b.ModifiedDateColumn)
	}
	if result.DisallowedURLs > 0 {
		batchLog.Warnf("%d URL(s) are disallowed by robots.txt", result.DisallowedURLs)
	}
	batchLog.WithFields(logrus.Fields{
		"strategy": result.Strategy,
		"rows":     result.Rows,
		"files":    len(result.Files),
		"duration": result.Duration,
	}).Info("Batch done")
	return batchOutcome{result: result, entry: entry}, nil
}

// emitSingle writes the first page as <output>/<batch>.xml[.gz]
func (o *Orchestrator) emitSingle(b config.BatchConfig, rows []models.Row, outputDir string, result *models.BatchResult) (*sitemap.IndexEntry, error) {
	doc, err := o.buildDocument(b, rows, result)
	if err != nil {
		return nil, err
	}
	res, err := o.emitter.Emit(doc, outputDir, b.Name, b.GetEffectiveCompress(), "")
	if err != nil {
		return nil, utils.WrapErrorf(err, "batch '%s'", b.Name)
	}
	result.Pages = 1
	result.IndexURL = res.URL
	result.Files = append(result.Files, emittedFile(res))
	return &sitemap.IndexEntry{URL: res.URL, LastMod: sitemap.TimePtr(o.clock())}, nil
}

// emitMulti writes one file per page into <output>/<batch>/ until a page comes back empty, then
// writes the batch's sub-index next to them. Only the sub-index goes into the root index.
func (o *Orchestrator) emitMulti(ctx context.Context, src source.DataSource, b config.BatchConfig, firstPage []models.Row, outputDir string, result *models.BatchResult) (*sitemap.IndexEntry, error) {
	folder := filepath.Join(outputDir, b.Name)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating batch folder '%s': %w", utils.ErrFilesystem, folder, err)
	}
	compress := b.GetEffectiveCompress()
	child := sitemap.NewIndex()

	rows := firstPage
	for page := 0; ; page++ {
		if page > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var err error
			if rows, err = src.FetchPage(ctx, page); err != nil {
				return nil, fetchError(err, b.Name, page)
			}
			if len(rows) == 0 {
				break
			}
		}

		doc, err := o.buildDocument(b, rows, result)
		if err != nil {
			return nil, err
		}
		res, err := o.emitter.Emit(doc, folder, fmt.Sprintf("%s-%d", b.Name, page+1), compress, b.Name)
		if err != nil {
			return nil, utils.WrapErrorf(err, "batch '%s' page %d", b.Name, page+1)
		}
		result.Pages++
		result.Files = append(result.Files, emittedFile(res))
		child.Add(sitemap.IndexEntry{URL: res.URL, LastMod: sitemap.TimePtr(o.clock())})
		o.log.WithFields(logrus.Fields{"batch": b.Name, "page": page + 1, "rows": len(rows)}).Debug("Page written")
	}

	res, err := o.emitter.Emit(child, folder, b.Name, compress, b.Name)
	if err != nil {
		return nil, utils.WrapErrorf(err, "batch '%s' sub-index", b.Name)
	}
	result.IndexURL = res.URL
	result.Files = append(result.Files, emittedFile(res))
	return &sitemap.IndexEntry{URL: res.URL, LastMod: sitemap.TimePtr(o.clock())}, nil
}

// buildDocument maps one page of rows to a urlset. A template column missing from a row aborts
// the batch; a missing or unparsable modified date falls back to the clock.
func (o *Orchestrator) buildDocument(b config.BatchConfig, rows []models.Row, result *models.BatchResult) (*sitemap.URLSet, error) {
	doc := sitemap.NewURLSet(len(rows))
	freq := b.GetEffectiveChangeFrequency()
	priority := b.GetEffectivePriority()

	for _, row := range rows {
		loc, err := o.evaluator.Evaluate(o.cfg.BaseURL, b.URL, row)
		if err != nil {
			var missing *utils.MissingColumnError
			if errors.As(err, &missing) {
				missing.Batch = b.Name
			}
			return nil, err
		}
		if o.robots != nil && !o.robots.Allowed(strings.ToLower(loc)) {
			result.DisallowedURLs++
		}

		lastMod, err := o.lastModified(b, row, result)
		if err != nil {
			return nil, err
		}
		doc.Add(sitemap.Entry{
			URL:        loc,
			LastMod:    &lastMod,
			ChangeFreq: freq,
			Priority:   sitemap.PriorityPtr(priority),
		})
	}
	result.Rows += len(rows)
	return doc, nil
}

// lastModified reads the row's modified date. An absent column is a MissingColumnError; a NULL,
// empty or unparsable value falls back to the clock.
func (o *Orchestrator) lastModified(b config.BatchConfig, row models.Row, result *models.BatchResult) (time.Time, error) {
	if b.ModifiedDateColumn == "" {
		return o.clock(), nil
	}
	v, ok := row.Get(b.ModifiedDateColumn)
	if !ok {
		return time.Time{}, &utils.MissingColumnError{Batch: b.Name, Column: b.ModifiedDateColumn}
	}
	t, err := ParseModified(v)
	if err != nil {
		result.DateFallbacks++
		o.log.WithField("batch", b.Name).Debugf("Using generation time: %v", err)
		return o.clock(), nil
	}
	return t, nil
}

// fetchError tags a data source failure with the batch and page. Cancellation passes through.
func fetchError(err error, batch string, page int) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !errors.Is(err, utils.ErrDataFetch) {
		err = fmt.Errorf("%w: %w", utils.ErrDataFetch, err)
	}
	return utils.WrapErrorf(err, "batch '%s' page %d", batch, page)
}

func emittedFile(res emit.EmitResult) models.EmittedFile {
	return models.EmittedFile{
		Path:       res.Path,
		URL:        res.URL,
		Compressed: res.Compressed,
		Bytes:      res.Bytes,
		SHA256:     res.SHA256,
		URLCount:   res.Entries,
	}
}

// logSummary logs a summary of all batch results
func (o *Orchestrator) logSummary(s *RunSummary) {
	o.log.Info("============================================")
	o.log.Infof("Generation completed in %v", s.Duration)
	for _, b := range s.Batches {
		o.log.Infof("  %s: %s - %d URLs, %d files in %v", b.Batch, b.Strategy, b.Rows, len(b.Files), b.Duration)
	}
	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d batches, %d URLs, %d files", len(s.Batches), s.TotalURLs, s.TotalFiles)
	o.log.Infof("Root index: %s", s.RootURL)
	o.log.Info("============================================")
}

// BuildRunRecord converts a run's outcome into the record kept in the run ledger
func BuildRunRecord(id, outputDir, configSHA string, s *RunSummary, runErr error) *models.RunRecord {
	rec := &models.RunRecord{
		ID:           id,
		Status:       models.RunStatusSuccess,
		OutputDir:    outputDir,
		ConfigSHA256: configSHA,
	}
	if s != nil {
		rec.StartedAt = s.StartedAt
		rec.FinishedAt = s.FinishedAt
		rec.RootURL = s.RootURL
		rec.TotalURLs = s.TotalURLs
		rec.TotalFiles = s.TotalFiles
		rec.Batches = s.Batches
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		rec.Status = models.RunStatusCancelled
	default:
		rec.Status = models.RunStatusFailure
	}
	if runErr != nil {
		rec.ErrorType = utils.CategorizeError(runErr)
		rec.ErrorMessage = runErr.Error()
	}
	return rec
}
