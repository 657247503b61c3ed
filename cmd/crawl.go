package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/clock/system"
	"github.com/JakeFAU/sitepdf/internal/config"
	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/hash/sha256"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	"github.com/JakeFAU/sitepdf/internal/progress"
	progresssinks "github.com/JakeFAU/sitepdf/internal/progress/sinks"
	"github.com/JakeFAU/sitepdf/internal/report"
	"github.com/JakeFAU/sitepdf/internal/server"
	localstorage "github.com/JakeFAU/sitepdf/internal/storage/local"
	"github.com/JakeFAU/sitepdf/internal/summary"
	"github.com/JakeFAU/sitepdf/internal/worker"
)

// pipelineRunner is the part of the pipeline the crawl command uses.
type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// newRunner builds the pipeline. Tests swap it for a fake.
var newRunner = func(cfg config.Config, emitter progress.Emitter, logger *zap.Logger) pipelineRunner {
	return server.NewPipeline(cfg, emitter, logger)
}

type crawlOptions struct {
	url      string
	maxPages int
	maxDepth int
	mode     string
	detail   string
	out      string
	noPDF    bool
	noAI     bool
	noTOC    bool
	archive  bool
	report   bool
	robots   bool
	exclude  []string
	deny     []string
}

func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one site and write its artifacts to a directory",
		Long: `Crawls the site at --url once and writes the merged document (site.pdf),
the optional per-page archive (pages.zip), the summary (summary.json) and the
optional Markdown report (report.md) into --out.`,
		Example: `  sitepdf crawl --url https://example.com --max-pages 20 --mode fast --out ./example
  sitepdf crawl --url https://example.com --detail comprehensive --archive --report`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd.Context(), cmd.OutOrStdout(), rt, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "root URL to crawl (required)")
	f.IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to capture (default crawl.max_pages_default)")
	f.IntVar(&opts.maxDepth, "max-depth", -1, "maximum link depth, -1 uses crawl.max_depth_default")
	f.StringVar(&opts.mode, "mode", "", "capture mode: fast, standard or archive (default crawl.mode_default)")
	f.StringVar(&opts.detail, "detail", string(summary.LevelBasic), "summary detail: basic, detailed or comprehensive")
	f.StringVar(&opts.out, "out", "out", "output directory")
	f.BoolVar(&opts.noPDF, "no-pdf", false, "skip document generation")
	f.BoolVar(&opts.noAI, "no-ai", false, "skip the summary")
	f.BoolVar(&opts.noTOC, "no-toc", false, "omit the table of contents")
	f.BoolVar(&opts.archive, "archive", false, "also write the per-page PDFs as pages.zip")
	f.BoolVar(&opts.report, "report", false, "also write a Markdown report")
	f.BoolVar(&opts.robots, "robots", false, "respect robots.txt")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "regular expression of URLs to skip (repeatable)")
	f.StringSliceVar(&opts.deny, "deny", nil, "domain or *.domain to skip (repeatable)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// request validates opts against cfg before anything is crawled.
func (o crawlOptions) request(cfg config.Config) (pipeline.Request, error) {
	maxPages := o.maxPages
	if maxPages == 0 {
		maxPages = cfg.Crawl.MaxPagesDefault
	}
	if maxPages < 1 || maxPages > cfg.Crawl.MaxPagesLimit {
		return pipeline.Request{}, fmt.Errorf("--max-pages must be between 1 and %d", cfg.Crawl.MaxPagesLimit)
	}
	maxDepth := cfg.DefaultMaxDepth()
	if o.maxDepth >= 0 {
		maxDepth = crawler.IntPtr(o.maxDepth)
	}
	mode, err := crawler.ParseMode(o.mode, cfg.DefaultMode())
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("--mode: %w", err)
	}
	level, err := summary.ParseDetailLevel(o.detail)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("--detail: %w", err)
	}

	req := pipeline.Request{
		Crawl: crawler.CrawlConfig{
			RootURL:         o.url,
			MaxPages:        maxPages,
			MaxDepth:        maxDepth,
			SameDomainOnly:  cfg.Crawl.SameDomainOnly,
			Mode:            mode,
			ExcludePatterns: o.exclude,
			DenyDomains:     o.deny,
			RespectRobots:   o.robots || cfg.Capture.RespectRobots,
		},
		IncludePDF:     !o.noPDF,
		IncludeTOC:     cfg.PDF.IncludeTOC && !o.noTOC,
		IncludeArchive: o.archive || cfg.PDF.IncludeArchive,
		IncludeSummary: !o.noAI,
		DetailLevel:    level,
	}
	if err := req.Crawl.Validate(); err != nil {
		return pipeline.Request{}, err
	}
	return req, nil
}

func runCrawl(ctx context.Context, out io.Writer, rt *runtime, opts crawlOptions) error {
	req, err := opts.request(rt.cfg)
	if err != nil {
		return err
	}
	store, err := localstorage.New(localstorage.Config{BaseDir: opts.out})
	if err != nil {
		return fmt.Errorf("open output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := progress.NewHub(
		progress.Config{Logger: rt.logger.Named("progress_hub")},
		progresssinks.NewLogSink(rt.logger.Named("progress")),
	)
	defer func() {
		if cerr := hub.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.logger.Warn("progress hub close failed", zap.Error(cerr))
		}
	}()

	res, runErr := newRunner(rt.cfg, hub, rt.logger).Run(ctx, req)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrSummaryFailed) {
		return fmt.Errorf("crawl %s: %w", req.Crawl.RootURL, runErr)
	}
	if runErr != nil {
		rt.logger.Warn("summary failed, writing the remaining artifacts", zap.Error(runErr))
	}

	written, err := writeArtifacts(ctx, store, res, report.Input{
		RootURL:     req.Crawl.RootURL,
		GeneratedAt: system.New().Now(),
		Result:      res,
	}, opts.report)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "captured %d pages (%d failed) in %s\n",
		res.Crawl.TotalPages, len(res.Crawl.FailedURLs), res.Crawl.Duration().Round(time.Millisecond))
	for _, a := range written {
		fmt.Fprintf(out, "  %-13s %s\n", a.name, a.uri)
	}
	if res.Document != nil {
		digest, err := verifyDocument(ctx, store, res.DocumentHash)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sha256 %s\n", digest)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}

type writtenArtifact struct {
	name string
	uri  string
}

func writeArtifacts(
	ctx context.Context,
	store crawler.BlobStore,
	res pipeline.Result,
	in report.Input,
	includeReport bool,
) ([]writtenArtifact, error) {
	var written []writtenArtifact
	put := func(name, contentType string, data []byte) error {
		uri, err := store.PutObject(ctx, name, contentType, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, writtenArtifact{name: name, uri: uri})
		return nil
	}

	if res.Document != nil {
		if err := put(worker.DocumentFile, "application/pdf", res.Document.Merged); err != nil {
			return written, err
		}
	}
	if len(res.Archive) > 0 {
		if err := put(worker.ArchiveFile, "application/zip", res.Archive); err != nil {
			return written, err
		}
	}
	if res.Summary != nil {
		data, err := json.MarshalIndent(res.Summary.Summary, "", "  ")
		if err != nil {
			return written, fmt.Errorf("encode summary: %w", err)
		}
		if err := put(worker.SummaryFile, "application/json", data); err != nil {
			return written, err
		}
	}
	if includeReport {
		var buf bytes.Buffer
		if err := report.WriteMarkdown(&buf, in); err != nil {
			return written, err
		}
		if err := put(worker.ReportFile, "text/markdown; charset=utf-8", buf.Bytes()); err != nil {
			return written, err
		}
	}
	return written, nil
}

// verifyDocument re-reads the stored document and checks it against the
// digest computed by the pipeline.
func verifyDocument(ctx context.Context, store crawler.BlobStore, want string) (string, error) {
	rc, err := store.GetObject(ctx, worker.DocumentFile)
	if err != nil {
		return "", fmt.Errorf("read back %s: %w", worker.DocumentFile, err)
	}
	defer rc.Close()
	got, err := sha256.New().HashReader(rc)
	if err != nil {
		return "", err
	}
	if want != "" && got != want {
		return "", fmt.Errorf("%s digest mismatch: stored %s, generated %s", worker.DocumentFile, got, want)
	}
	return got, nil
}
