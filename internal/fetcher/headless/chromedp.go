// Package headless captures pages through a headless Chrome driven by chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

const (
	defaultSettle = time.Second
	linksScript   = `Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`
	textScript    = `document.body ? document.body.innerText : ""`
)

// Config controls the browser used for captures.
type Config struct {
	UserAgent    string
	Settle       time.Duration
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	Headers      http.Header
}

// Launcher starts one headless browser per crawl.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher creates a chromedp-backed crawler.Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1280
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 800
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("headless")}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Open starts the browser process. The returned session owns it until Close.
func (l *Launcher) Open(ctx context.Context) (crawler.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	l.logger.Debug("browser started")
	return &Session{
		cfg:           l.cfg,
		browser:       browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        l.logger,
	}, nil
}

// Session is a running browser. Captures open and close one tab each.
type Session struct {
	cfg           Config
	browser       context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
	logger        *zap.Logger
}

// Capture loads target in a fresh tab and extracts title, text, and links.
// The tab is closed before Capture returns.
func (s *Session) Capture(ctx context.Context, target string, raster bool) (crawler.Capture, error) {
	if s.browser == nil {
		return crawler.Capture{}, errors.New("browser session is closed")
	}
	tabCtx, tabCancel := chromedp.NewContext(s.browser)
	defer tabCancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		out      crawler.Capture
		finalURL string
	)
	actions := chromedp.Tasks{
		s.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
		chromedp.Location(&finalURL),
		chromedp.Title(&out.Title),
		chromedp.Evaluate(textScript, &out.Text),
		chromedp.Evaluate(linksScript, &out.Links),
	}
	if raster {
		actions = append(actions, chromedp.FullScreenshot(&out.Raster, 100))
	}
	if err := chromedp.Run(tabCtx, actions); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.Capture{}, fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return crawler.Capture{}, fmt.Errorf("chromedp run: %w", err)
	}
	out.StatusCode, out.FinalURL = meta.snapshotWithFallbacks(target, finalURL)
	return out, nil
}

// Close stops the browser. Calling it more than once is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		s.browser = nil
		s.logger.Debug("browser stopped")
	})
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// responseMeta remembers the first document response of a navigation.
type responseMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, url := m.status, m.url
	switch {
	case finalURL != "":
		url = finalURL
	case url == "":
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
