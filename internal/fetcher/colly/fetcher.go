// Package collyfetcher captures pages over plain HTTP with gocolly, without
// running JavaScript. It backs the fast capture mode.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// ErrRasterUnsupported is returned when a screenshot is requested from a
// session that never renders pages.
var ErrRasterUnsupported = errors.New("static capture cannot rasterize pages")

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	Headers     http.Header
}

// Launcher hands out collector-backed sessions that share one HTTP transport.
type Launcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Launcher.
func New(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    logger.Named("colly"),
	}
}

// Open implements crawler.Launcher.
func (l *Launcher) Open(context.Context) (crawler.Session, error) {
	base := colly.NewCollector(colly.Async(false))
	base.WithTransport(l.transport)
	base.IgnoreRobotsTxt = true
	base.AllowURLRevisit = true
	base.ParseHTTPErrorResponse = true
	base.SetRequestTimeout(l.cfg.Timeout)
	if l.cfg.UserAgent != "" {
		base.UserAgent = l.cfg.UserAgent
	}
	if l.cfg.MaxBodySize > 0 {
		base.MaxBodySize = l.cfg.MaxBodySize
	}
	return &Session{cfg: l.cfg, base: base, logger: l.logger}, nil
}

// Session captures one URL at a time from a cloned collector.
type Session struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// Capture implements crawler.Session.
func (s *Session) Capture(ctx context.Context, target string, raster bool) (crawler.Capture, error) {
	if raster {
		return crawler.Capture{}, ErrRasterUnsupported
	}
	var (
		out      crawler.Capture
		fetchErr error
	)
	collector := s.base.Clone()
	collector.Context = ctx
	s.configureCollectorHooks(collector, &out, &fetchErr)

	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		return crawler.Capture{}, err
	}
	if out.FinalURL == "" {
		out.FinalURL = target
	}
	return out, nil
}

// Close implements crawler.Session. Collectors hold no process resources.
func (s *Session) Close() error {
	return nil
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

func (s *Session) configureCollectorHooks(hooks collectorHooks, out *crawler.Capture, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range s.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		out.StatusCode = r.StatusCode
		out.FinalURL = r.Request.URL.String()
	})
	hooks.OnHTML("html", func(e *colly.HTMLElement) {
		extractDocument(e, out)
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func extractDocument(e *colly.HTMLElement, out *crawler.Capture) {
	out.Title = strings.TrimSpace(e.DOM.Find("title").First().Text())
	e.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if abs := e.Request.AbsoluteURL(href); abs != "" {
			out.Links = append(out.Links, abs)
		}
	})
	body := e.DOM.Find("body")
	body.Find("script, style, noscript, template").Remove()
	out.Text = collapseWhitespace(body.Text())
}

// collapseWhitespace trims every line, squeezes inner runs of spaces, and keeps
// at most one blank line between paragraphs.
func collapseWhitespace(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// runCollector visits url and returns once the visit and its hooks are done.
// The collector must carry ctx so cancellation aborts the request.
func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		<-done
		return fmt.Errorf("colly capture canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
