package api

import (
	"fmt"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

// crawlRequest is the body of POST /v1/crawl and POST /v1/jobs. Pointer
// fields distinguish "absent" from the zero value so configured defaults apply.
type crawlRequest struct {
	URL             string   `json:"url"`
	MaxPages        *int     `json:"maxPages"`
	MaxDepth        *int     `json:"maxDepth"`
	DetailLevel     string   `json:"detailLevel"`
	Mode            string   `json:"mode"`
	IncludePDF      *bool    `json:"includePDF"`
	IncludeAI       *bool    `json:"includeAI"`
	IncludeTOC      *bool    `json:"includeTOC"`
	IncludeArchive  *bool    `json:"includeArchive"`
	SameDomainOnly  *bool    `json:"sameDomainOnly"`
	RespectRobots   *bool    `json:"respectRobots"`
	ExcludePatterns []string `json:"excludePatterns"`
	DenyDomains     []string `json:"denyDomains"`
}

// fieldError names one rejected request field.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// toJobParameters validates req and fills configured defaults. It reports
// every problem at once.
func (s *Server) toJobParameters(req crawlRequest) (crawler.JobParameters, []fieldError) {
	var problems []fieldError
	fail := func(field, format string, args ...any) {
		problems = append(problems, fieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if req.URL == "" {
		fail("url", "url is required")
	} else if _, ok := crawler.ParseAbsolute(req.URL); !ok {
		fail("url", "url must be an absolute http(s) url")
	}

	limit := s.cfg.Crawl.MaxPagesLimit
	maxPages := valueOrDefault(req.MaxPages, s.cfg.Crawl.MaxPagesDefault)
	if maxPages < 1 || (limit > 0 && maxPages > limit) {
		fail("maxPages", "maxPages must be between 1 and %d", limit)
	}

	maxDepth := s.cfg.DefaultMaxDepth()
	if req.MaxDepth != nil {
		if *req.MaxDepth < 0 {
			fail("maxDepth", "maxDepth must be non-negative")
		}
		maxDepth = crawler.IntPtr(*req.MaxDepth)
	}

	level, err := summary.ParseDetailLevel(req.DetailLevel)
	if err != nil {
		fail("detailLevel", "detailLevel must be one of basic, detailed, comprehensive")
	}

	mode, err := crawler.ParseMode(req.Mode, s.cfg.DefaultMode())
	if err != nil {
		fail("mode", "mode must be one of fast, standard, archive")
	}

	params := crawler.JobParameters{
		Crawl: crawler.CrawlConfig{
			RootURL:         req.URL,
			MaxPages:        maxPages,
			MaxDepth:        maxDepth,
			SameDomainOnly:  valueOrDefault(req.SameDomainOnly, s.cfg.Crawl.SameDomainOnly),
			Mode:            mode,
			ExcludePatterns: req.ExcludePatterns,
			DenyDomains:     req.DenyDomains,
			RespectRobots:   valueOrDefault(req.RespectRobots, s.cfg.Capture.RespectRobots),
		},
		DetailLevel:    string(level),
		IncludePDF:     valueOrDefault(req.IncludePDF, true),
		IncludeTOC:     valueOrDefault(req.IncludeTOC, s.cfg.PDF.IncludeTOC),
		IncludeArchive: valueOrDefault(req.IncludeArchive, s.cfg.PDF.IncludeArchive),
		IncludeSummary: valueOrDefault(req.IncludeAI, s.cfg.Summary.Enabled),
	}
	if len(problems) == 0 {
		if err := params.Crawl.Validate(); err != nil {
			fail("crawl", "%v", err)
		}
	}
	return params, problems
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
