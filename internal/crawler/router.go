package crawler

import "context"

// Runner runs one crawl.
type Runner interface {
	Crawl(ctx context.Context, cfg CrawlConfig) (CrawlResult, error)
}

// Router picks a crawler by mode. Fast crawls go to Static when it is set;
// everything else, and fast crawls without a static crawler, go to Browser.
type Router struct {
	Static  Runner
	Browser Runner
}

// Crawl implements Runner.
func (r Router) Crawl(ctx context.Context, cfg CrawlConfig) (CrawlResult, error) {
	if cfg.Mode == ModeFast && r.Static != nil {
		return r.Static.Crawl(ctx, cfg)
	}
	return r.Browser.Crawl(ctx, cfg)
}
