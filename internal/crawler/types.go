package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidConfig marks crawl configuration rejected before any fetch.
var ErrInvalidConfig = errors.New("invalid crawl config")

// ErrSessionLaunch is returned when the capture session cannot be opened.
var ErrSessionLaunch = errors.New("launch capture session")

// Mode selects how much of each page is captured.
type Mode string

// Supported capture modes.
const (
	ModeFast     Mode = "fast"
	ModeStandard Mode = "standard"
	ModeArchive  Mode = "archive"
)

// ParseMode maps a user supplied value onto a Mode. Empty maps to fallback.
func ParseMode(raw string, fallback Mode) (Mode, error) {
	switch Mode(raw) {
	case "":
		return fallback, nil
	case ModeFast, ModeStandard, ModeArchive:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, raw)
	}
}

// WantsRaster reports whether pages are captured as full-page screenshots.
func (m Mode) WantsRaster() bool {
	return m == ModeArchive
}

// CrawlConfig describes one crawl. It is not modified while the crawl runs.
type CrawlConfig struct {
	RootURL         string   `json:"url"`
	MaxPages        int      `json:"max_pages"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	SameDomainOnly  bool     `json:"same_domain_only"`
	Mode            Mode     `json:"mode"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	DenyDomains     []string `json:"deny_domains,omitempty"`
	RespectRobots   bool     `json:"respect_robots"`

	// OnPage, when set, is called after every capture attempt from the crawl
	// goroutine. It must not block.
	OnPage func(PageEvent) `json:"-"`
}

// PageEvent reports the outcome of capturing one URL, retries included.
type PageEvent struct {
	URL        string
	Depth      int
	Ordinal    int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Validate checks the configuration and wraps failures with ErrInvalidConfig.
func (c CrawlConfig) Validate() error {
	if _, ok := ParseAbsolute(c.RootURL); !ok {
		return fmt.Errorf("%w: root url %q must be an absolute http(s) url", ErrInvalidConfig, c.RootURL)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("%w: max pages must be at least 1", ErrInvalidConfig)
	}
	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must be non-negative", ErrInvalidConfig)
	}
	if _, err := ParseMode(string(c.Mode), ModeArchive); err != nil {
		return err
	}
	if _, err := compilePatterns(c.ExcludePatterns); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", raw, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// IntPtr is a convenience for building optional depth limits.
func IntPtr(v int) *int {
	return &v
}

// CapturedPage is one successfully captured page.
type CapturedPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Raster     []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
	Depth      int       `json:"depth"`
	StatusCode int       `json:"status_code,omitempty"`
}

// CrawlResult is the outcome of a crawl. TotalPages always equals len(Pages).
type CrawlResult struct {
	Pages      []CapturedPage `json:"pages"`
	TotalPages int            `json:"total_pages"`
	FailedURLs []string       `json:"failed_urls"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Duration returns the wall time of the crawl.
func (r CrawlResult) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Capture is what a Session returns for one URL.
type Capture struct {
	FinalURL   string
	StatusCode int
	Title      string
	Text       string
	Links      []string
	Raster     []byte
}
