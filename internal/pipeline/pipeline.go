// Package pipeline sequences a crawl, document generation, archiving and
// summarization into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/pdf"
	"github.com/JakeFAU/sitepdf/internal/progress"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

// ErrSummaryFailed wraps a summarizer transport failure. The crawl and
// document results of the same run stay valid.
var ErrSummaryFailed = errors.New("summary stage failed")

// CrawlRunner runs one crawl.
type CrawlRunner interface {
	Crawl(ctx context.Context, cfg crawler.CrawlConfig) (crawler.CrawlResult, error)
}

// DocumentGenerator renders and merges captured pages.
type DocumentGenerator interface {
	Generate(ctx context.Context, pages []crawler.CapturedPage, opts pdf.DocumentOptions) (pdf.Result, error)
}

// Request selects which stages run.
type Request struct {
	JobID          string
	Crawl          crawler.CrawlConfig
	IncludePDF     bool
	IncludeTOC     bool
	IncludeArchive bool
	IncludeSummary bool
	DetailLevel    summary.DetailLevel
}

// RequestFor maps stored job parameters onto a Request. An unknown detail
// level falls back to basic.
func RequestFor(jobID string, params crawler.JobParameters) Request {
	level, err := summary.ParseDetailLevel(params.DetailLevel)
	if err != nil {
		level = summary.LevelBasic
	}
	return Request{
		JobID:          jobID,
		Crawl:          params.Crawl,
		IncludePDF:     params.IncludePDF,
		IncludeTOC:     params.IncludeTOC,
		IncludeArchive: params.IncludeArchive,
		IncludeSummary: params.IncludeSummary,
		DetailLevel:    level,
	}
}

// Result aggregates every stage that ran.
type Result struct {
	JobID        string
	Crawl        crawler.CrawlResult
	Document     *pdf.Result
	Archive      []byte
	DocumentHash string
	Summary      *summary.Outcome
	SummaryErr   error
	Warnings     []string
}

// Options carries optional collaborators.
type Options struct {
	Hasher crawler.Hasher
	IDs    crawler.IDGenerator
	Clock  crawler.Clock
	// Progress receives live events for every run. Nil discards them.
	Progress progress.Emitter
}

// Pipeline runs requests against fixed collaborators. A nil summarizer makes
// summary requests produce a warning instead of a summary.
type Pipeline struct {
	crawler    CrawlRunner
	generator  DocumentGenerator
	summarizer summary.Summarizer
	opts       Options
	logger     *zap.Logger
}

// New constructs a Pipeline.
func New(c CrawlRunner, g DocumentGenerator, s summary.Summarizer, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Progress == nil {
		opts.Progress = progress.Nop{}
	}
	return &Pipeline{crawler: c, generator: g, summarizer: s, opts: opts, logger: logger.Named("pipeline")}
}

// Run executes req. Stages after the crawl are independent: skipping one never
// prevents another from running on the same crawl result.
//
// A crawl error (invalid config, session launch, cancellation) returns the
// partial Result and the error. A summarizer transport failure returns the
// full Result with SummaryErr set and an error wrapping ErrSummaryFailed.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{JobID: req.JobID}
	if res.JobID == "" && p.opts.IDs != nil {
		id, err := p.opts.IDs.NewID()
		if err != nil {
			return res, fmt.Errorf("generate job id: %w", err)
		}
		res.JobID = id
	}
	logger := p.logger.With(zap.String("job_id", res.JobID))
	run := &runProgress{emitter: p.opts.Progress, jobID: res.JobID, now: p.now}
	run.emit(progress.Event{Stage: progress.StageJobStart, URL: req.Crawl.RootURL})
	started := time.Now()

	err := p.run(ctx, req, &res, run, logger)
	done := progress.Event{Stage: progress.StageJobDone, Dur: time.Since(started)}
	if err != nil && !errors.Is(err, ErrSummaryFailed) {
		done.Stage = progress.StageJobError
		done.Note = err.Error()
	}
	run.emit(done)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request, res *Result, run *runProgress, logger *zap.Logger) error {
	crawlCfg := req.Crawl
	crawlCfg.OnPage = run.page
	if caller := req.Crawl.OnPage; caller != nil {
		crawlCfg.OnPage = func(pe crawler.PageEvent) {
			caller(pe)
			run.page(pe)
		}
	}
	step := time.Now()
	crawlResult, err := p.crawler.Crawl(ctx, crawlCfg)
	res.Crawl = crawlResult
	run.step(progress.StepCrawl, time.Since(step))
	if err != nil {
		logger.Warn("crawl stage failed", zap.Error(err))
		return err
	}
	pages := crawlResult.Pages
	if len(pages) == 0 {
		res.Warnings = append(res.Warnings, "no pages were captured")
	}

	if req.IncludePDF && len(pages) > 0 {
		step = time.Now()
		err := p.document(ctx, req, res)
		run.step(progress.StepDocument, time.Since(step))
		if err != nil {
			logger.Error("document stage failed", zap.Error(err))
			return err
		}
	}

	if req.IncludeSummary && len(pages) > 0 {
		if p.summarizer == nil {
			res.Warnings = append(res.Warnings, "summary requested but no summarizer is configured")
		} else {
			step = time.Now()
			outcome, err := p.summarizer.Summarize(ctx, pages, req.DetailLevel)
			run.step(progress.StepSummary, time.Since(step))
			if err != nil {
				res.SummaryErr = fmt.Errorf("%w: %w", ErrSummaryFailed, err)
				logger.Warn("summary stage failed", zap.Error(err))
				return res.SummaryErr
			}
			if outcome.Degraded() {
				res.Warnings = append(res.Warnings, "summary reply was not structured; raw text kept as overview")
			}
			res.Summary = &outcome
		}
	}

	logger.Info("pipeline finished",
		zap.Int("pages", crawlResult.TotalPages),
		zap.Int("failed", len(crawlResult.FailedURLs)),
		zap.Bool("document", res.Document != nil),
		zap.Bool("summary", res.Summary != nil),
	)
	return nil
}

// runProgress stamps events of one run with its job ID.
type runProgress struct {
	emitter progress.Emitter
	jobID   string
	now     func() time.Time
}

func (r *runProgress) emit(evt progress.Event) {
	evt.JobID = r.jobID
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

func (r *runProgress) step(name string, took time.Duration) {
	r.emit(progress.Event{Stage: progress.StageStepDone, Step: name, Dur: took})
}

func (r *runProgress) page(pe crawler.PageEvent) {
	evt := progress.Event{
		Stage:   progress.StagePageDone,
		URL:     pe.URL,
		Ordinal: pe.Ordinal,
		Depth:   pe.Depth,
		Dur:     pe.Duration,
	}
	if pe.StatusCode > 0 {
		evt.StatusClass = progress.ClassifyStatus(pe.StatusCode)
	}
	if pe.Err != nil {
		evt.Stage = progress.StagePageFailed
		evt.Note = pe.Err.Error()
	}
	r.emit(evt)
}

func (p *Pipeline) document(ctx context.Context, req Request, res *Result) error {
	doc, err := p.generator.Generate(ctx, res.Crawl.Pages, pdf.DocumentOptions{
		IncludeTOC: req.IncludeTOC,
		Title:      documentTitle(req.Crawl.RootURL),
	})
	if err != nil {
		return fmt.Errorf("generate document: %w", err)
	}
	res.Document = &doc
	res.Warnings = append(res.Warnings, doc.Warnings...)

	if p.opts.Hasher != nil {
		sum, err := p.opts.Hasher.Hash(doc.Merged)
		if err != nil {
			res.Warnings = append(res.Warnings, "document hash skipped: "+err.Error())
		} else {
			res.DocumentHash = sum
		}
	}

	if req.IncludeArchive {
		archive, err := pdf.BuildArchive(doc.Individual, doc.TOC, p.now())
		if err != nil {
			res.Warnings = append(res.Warnings, "page archive skipped: "+err.Error())
		} else {
			res.Archive = archive
		}
	}
	return nil
}

func (p *Pipeline) now() time.Time {
	if p.opts.Clock != nil {
		return p.opts.Clock.Now()
	}
	return time.Now().UTC()
}

func documentTitle(root string) string {
	if u, err := url.Parse(root); err == nil && u.Host != "" {
		return u.Host
	}
	return root
}
