package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultNavTimeout         = 15 * time.Second
	defaultForbiddenThreshold = 3
)

// Options tunes a Crawler independently of any single crawl.
type Options struct {
	// NavTimeout bounds each page capture. Zero means 15s.
	NavTimeout time.Duration
	// Delay is the minimum gap between two captures. Zero disables it.
	Delay time.Duration
	// Retry decides whether failed captures are retried. Nil means one attempt.
	Retry RetryPolicy
	// Robots overrides the robots.txt policy used when a crawl respects robots.
	Robots RobotsPolicy
	// UserAgent is sent with robots.txt requests.
	UserAgent string
	// ForbiddenThreshold is how many 403s block a host for the rest of a crawl.
	ForbiddenThreshold int
	// KeepErrorPages captures pages answered with a 4xx or 5xx status instead
	// of recording them as failures.
	KeepErrorPages bool
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Crawler walks a site depth-first through a single capture session.
type Crawler struct {
	launcher Launcher
	opts     Options
	pauser   pauseController
	logger   *zap.Logger
}

// New constructs a Crawler.
func New(launcher Launcher, opts Options, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Crawler{
		launcher: launcher,
		opts:     opts,
		pauser:   &timerPauseController{},
		logger:   logger.Named("crawler"),
	}
}

// Crawl runs one bounded depth-first crawl from cfg.RootURL.
//
// The capture session is opened once and closed on every return path. Failed
// captures are recorded in FailedURLs and never abort the crawl; only an
// invalid config, a session launch failure, or ctx cancellation return an
// error. On cancellation the pages collected so far are still returned.
func (c *Crawler) Crawl(ctx context.Context, cfg CrawlConfig) (CrawlResult, error) {
	if err := cfg.Validate(); err != nil {
		return CrawlResult{}, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeArchive
	}
	excludes, err := compilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return CrawlResult{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	result := CrawlResult{
		Pages:      []CapturedPage{},
		FailedURLs: []string{},
		StartedAt:  c.opts.Now(),
	}

	session, err := c.launcher.Open(ctx)
	if err != nil {
		result.FinishedAt = c.opts.Now()
		return result, fmt.Errorf("%w: %w", ErrSessionLaunch, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("close capture session", zap.Error(cerr))
		}
	}()

	run := &crawlRun{
		crawler:   c,
		cfg:       cfg,
		session:   session,
		visited:   newVisitedSet(),
		excludes:  excludes,
		denied:    newDomainPatternBlocklist(cfg.DenyDomains),
		forbidden: newForbiddenTracker(c.opts.ForbiddenThreshold),
		robots:    c.robotsFor(cfg),
		limiter:   newLimiter(c.opts.Delay),
		result:    &result,
	}

	c.logger.Info("crawl started",
		zap.String("root", cfg.RootURL),
		zap.Int("max_pages", cfg.MaxPages),
		zap.String("mode", string(cfg.Mode)),
	)
	walkErr := run.walk(ctx)
	result.TotalPages = len(result.Pages)
	result.FinishedAt = c.opts.Now()
	c.logger.Info("crawl finished",
		zap.String("root", cfg.RootURL),
		zap.Int("pages", result.TotalPages),
		zap.Int("failed", len(result.FailedURLs)),
		zap.Duration("duration", result.Duration()),
	)
	if walkErr != nil {
		return result, fmt.Errorf("crawl %s: %w", cfg.RootURL, walkErr)
	}
	return result, nil
}

func (c *Crawler) robotsFor(cfg CrawlConfig) RobotsPolicy {
	if !cfg.RespectRobots {
		return allowAllPolicy{}
	}
	if c.opts.Robots != nil {
		return c.opts.Robots
	}
	return NewRobotsPolicy(true, c.opts.UserAgent, nil, c.logger)
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// crawlRun holds the state of one traversal. It is used by a single goroutine.
type crawlRun struct {
	crawler   *Crawler
	cfg       CrawlConfig
	session   Session
	visited   *visitedSet
	excludes  []*regexp.Regexp
	denied    *domainPatternBlocklist
	forbidden *forbiddenTracker
	robots    RobotsPolicy
	limiter   *rate.Limiter
	result    *CrawlResult
}

func (r *crawlRun) walk(ctx context.Context) error {
	work := newFrontier(r.cfg.RootURL)
	for work.Len() > 0 {
		if len(r.result.Pages) >= r.cfg.MaxPages {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, _ := work.Pop()
		normalized, ok := r.admit(ctx, entry)
		if !ok {
			continue
		}
		r.visited.MarkIfNew(normalized)

		started := time.Now()
		capture, err := r.captureWithRetry(ctx, entry.url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.recordFailure(entry, err)
			r.notify(failureEvent(entry, time.Since(started), err))
			continue
		}
		page := CapturedPage{
			URL:        entry.url,
			Title:      capture.Title,
			Text:       capture.Text,
			CapturedAt: r.crawler.opts.Now(),
			Depth:      entry.depth,
			StatusCode: capture.StatusCode,
		}
		if r.cfg.Mode.WantsRaster() {
			page.Raster = capture.Raster
		}
		r.result.Pages = append(r.result.Pages, page)
		r.notify(PageEvent{
			URL:        entry.url,
			Depth:      entry.depth,
			Ordinal:    len(r.result.Pages),
			StatusCode: capture.StatusCode,
			Duration:   time.Since(started),
		})
		CapturesTotal.WithLabelValues(string(r.cfg.Mode)).Inc()
		r.crawler.logger.Debug("page captured",
			zap.String("url", entry.url),
			zap.Int("depth", entry.depth),
			zap.Int("links", len(capture.Links)),
		)
		work.PushChildren(r.childLinks(capture.Links), entry.depth)
	}
	return nil
}

// admit applies the visit guard. Checks run in a fixed order: visited, page
// budget, depth, domain scope, then exclusions, deny list, and robots.
func (r *crawlRun) admit(ctx context.Context, entry frontierEntry) (string, bool) {
	normalized, err := NormalizeURL(entry.url)
	if err != nil {
		return "", r.skip("malformed", entry)
	}
	if r.visited.Contains(normalized) {
		return "", r.skip("visited", entry)
	}
	if len(r.result.Pages) >= r.cfg.MaxPages {
		return "", r.skip("max_pages", entry)
	}
	if r.cfg.MaxDepth != nil && entry.depth > *r.cfg.MaxDepth {
		return "", r.skip("max_depth", entry)
	}
	if r.cfg.SameDomainOnly && !IsSameDomain(r.cfg.RootURL, entry.url) {
		return "", r.skip("off_domain", entry)
	}
	for _, re := range r.excludes {
		if re.MatchString(entry.url) {
			return "", r.skip("excluded", entry)
		}
	}
	host := hostOf(entry.url)
	if r.denied.IsBlocked(host) {
		return "", r.skip("denied", entry)
	}
	if r.forbidden.IsBlocked(host) {
		return "", r.skip("forbidden", entry)
	}
	if !r.robots.Allowed(ctx, entry.url) {
		return "", r.skip("robots", entry)
	}
	return normalized, true
}

func (r *crawlRun) skip(reason string, entry frontierEntry) bool {
	SkippedTotal.WithLabelValues(reason).Inc()
	if reason != "visited" {
		r.crawler.logger.Debug("frontier entry skipped",
			zap.String("url", entry.url),
			zap.Int("depth", entry.depth),
			zap.String("reason", reason),
		)
	}
	return false
}

func (r *crawlRun) childLinks(links []string) []string {
	filtered := FilterLinks(links)
	if !r.cfg.SameDomainOnly {
		return filtered
	}
	out := filtered[:0]
	for _, link := range filtered {
		if IsSameDomain(r.cfg.RootURL, link) {
			out = append(out, link)
		}
	}
	return out
}

func (r *crawlRun) captureWithRetry(ctx context.Context, target string) (Capture, error) {
	for attempt := 1; ; attempt++ {
		capture, err := r.captureOnce(ctx, target)
		if err == nil {
			return capture, nil
		}
		retry := r.crawler.opts.Retry
		if ctx.Err() != nil || retry == nil || !retry.ShouldRetry(err, attempt) {
			return Capture{}, err
		}
		delay := retry.Backoff(attempt - 1)
		r.crawler.logger.Debug("retrying capture",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		r.crawler.pauser.Pause(ctx, delay)
	}
}

func (r *crawlRun) captureOnce(ctx context.Context, target string) (Capture, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Capture{}, fmt.Errorf("wait for capture slot: %w", err)
		}
	}
	navCtx, cancel := context.WithTimeout(ctx, r.crawler.opts.NavTimeout)
	defer cancel()

	capture, err := r.session.Capture(navCtx, target, r.cfg.Mode.WantsRaster())
	if err != nil {
		return Capture{}, fmt.Errorf("capture %s: %w", target, err)
	}
	if capture.StatusCode >= http.StatusBadRequest {
		switch capture.StatusCode {
		case http.StatusForbidden:
			ForbiddenHits.Inc()
			if r.forbidden.MarkForbidden(hostOf(target)) {
				r.crawler.logger.Warn("host blocked after repeated 403", zap.String("host", hostOf(target)))
			}
		case http.StatusTooManyRequests:
			RateLimitHits.Inc()
		}
		if !r.crawler.opts.KeepErrorPages {
			return Capture{}, &StatusError{URL: target, Code: capture.StatusCode}
		}
	}
	return capture, nil
}

func (r *crawlRun) notify(evt PageEvent) {
	if r.cfg.OnPage != nil {
		r.cfg.OnPage(evt)
	}
}

func (r *crawlRun) recordFailure(entry frontierEntry, err error) {
	CaptureErrorsTotal.Inc()
	r.result.FailedURLs = append(r.result.FailedURLs, entry.url)
	var statusErr *StatusError
	level := r.crawler.logger.Warn
	if errors.As(err, &statusErr) {
		level = r.crawler.logger.Info
	}
	level("capture failed",
		zap.String("url", entry.url),
		zap.Int("depth", entry.depth),
		zap.Error(err),
	)
}

func failureEvent(entry frontierEntry, took time.Duration, err error) PageEvent {
	evt := PageEvent{URL: entry.url, Depth: entry.depth, Duration: took, Err: err}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		evt.StatusCode = statusErr.Code
	}
	return evt
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
