package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePage struct {
	title  string
	links  []string
	status int
	err    error
}

// fakeLauncher serves captures from an in-memory link graph.
type fakeLauncher struct {
	mu       sync.Mutex
	site     map[string]fakePage
	openErr  error
	opened   int
	closed   int
	captured []string
	rasters  []bool
	inFlight int
	maxOpen  int
	failOnce map[string]bool
}

func newFakeLauncher(site map[string]fakePage) *fakeLauncher {
	return &fakeLauncher{site: site, failOnce: map[string]bool{}}
}

func (l *fakeLauncher) Open(context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return nil, l.openErr
	}
	l.opened++
	return &fakeSession{launcher: l}, nil
}

type fakeSession struct {
	launcher *fakeLauncher
}

func (s *fakeSession) Capture(ctx context.Context, url string, raster bool) (Capture, error) {
	l := s.launcher
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.maxOpen {
		l.maxOpen = l.inFlight
	}
	l.captured = append(l.captured, url)
	l.rasters = append(l.rasters, raster)
	page, ok := l.site[url]
	failNow := l.failOnce[url]
	delete(l.failOnce, url)
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inFlight--
		l.mu.Unlock()
	}()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return Capture{}, errors.New("capture without navigation deadline")
	}
	if failNow {
		return Capture{}, errors.New("transient failure")
	}
	if !ok {
		return Capture{}, errors.New("no such host")
	}
	if page.err != nil {
		return Capture{}, page.err
	}
	status := page.status
	if status == 0 {
		status = http.StatusOK
	}
	capture := Capture{
		FinalURL:   url,
		StatusCode: status,
		Title:      page.title,
		Text:       "body of " + page.title,
		Links:      page.links,
	}
	if raster {
		capture.Raster = []byte("png:" + url)
	}
	return capture, nil
}

func (s *fakeSession) Close() error {
	s.launcher.mu.Lock()
	defer s.launcher.mu.Unlock()
	s.launcher.closed++
	return nil
}

func testClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var n int
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestCrawler(l Launcher, opts Options) *Crawler {
	if opts.Now == nil {
		opts.Now = testClock()
	}
	return New(l, opts, zap.NewNop())
}

func treeSite() map[string]fakePage {
	return map[string]fakePage{
		"https://example.com": {title: "Home", links: []string{
			"https://example.com/a",
			"https://example.com/b",
			"https://other.org/x",
		}},
		"https://example.com/a": {title: "A", links: []string{
			"https://example.com/a/1",
			"https://example.com/",
		}},
		"https://example.com/a/1":      {title: "A1", links: []string{"https://example.com/a/1/deep"}},
		"https://example.com/a/1/deep": {title: "Deep"},
		"https://example.com/b":        {title: "B", links: []string{"https://www.example.com/a?x=1"}},
		"https://other.org/x":          {title: "Other"},
	}
}

func capturedTitles(res CrawlResult) []string {
	out := make([]string, 0, len(res.Pages))
	for _, p := range res.Pages {
		out = append(out, p.Title)
	}
	return out
}

func TestCrawlDepthFirstOrder(t *testing.T) {
	t.Parallel()

	l := newFakeLauncher(treeSite())
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       10,
		SameDomainOnly: true,
		Mode:           ModeStandard,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home", "A", "A1", "Deep", "B"}, capturedTitles(res))
	require.Equal(t, len(res.Pages), res.TotalPages)
	require.Equal(t, []int{0, 1, 2, 3, 1}, []int{
		res.Pages[0].Depth, res.Pages[1].Depth, res.Pages[2].Depth, res.Pages[3].Depth, res.Pages[4].Depth,
	})
	require.Empty(t, res.FailedURLs)
	require.Equal(t, 1, l.opened)
	require.Equal(t, 1, l.closed)
	require.Equal(t, 1, l.maxOpen)
	require.True(t, res.FinishedAt.After(res.StartedAt))
}

func TestCrawlHonorsMaxPages(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{1, 2, 3} {
		l := newFakeLauncher(treeSite())
		res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
			RootURL:        "https://example.com",
			MaxPages:       limit,
			SameDomainOnly: true,
			Mode:           ModeFast,
		})
		require.NoError(t, err)
		require.Len(t, res.Pages, limit)
		require.Len(t, l.captured, limit, "no capture beyond the page budget")
	}
}

func TestCrawlHonorsMaxDepth(t *testing.T) {
	t.Parallel()

	l := newFakeLauncher(treeSite())
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       10,
		MaxDepth:       IntPtr(1),
		SameDomainOnly: true,
		Mode:           ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home", "A", "B"}, capturedTitles(res))
	for _, p := range res.Pages {
		require.LessOrEqual(t, p.Depth, 1)
	}

	zero := newFakeLauncher(treeSite())
	res, err = newTestCrawler(zero, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 10,
		MaxDepth: IntPtr(0),
		Mode:     ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home"}, capturedTitles(res))
}

func TestCrawlTerminatesOnCycles(t *testing.T) {
	t.Parallel()

	site := map[string]fakePage{
		"https://loop.test":   {title: "Root", links: []string{"https://loop.test/a"}},
		"https://loop.test/a": {title: "A", links: []string{"https://loop.test/b", "https://www.loop.test/"}},
		"https://loop.test/b": {title: "B", links: []string{"https://loop.test/a#top", "https://loop.test/?q=1"}},
	}
	l := newFakeLauncher(site)
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://loop.test",
		MaxPages:       100,
		SameDomainOnly: true,
		Mode:           ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Root", "A", "B"}, capturedTitles(res))
	require.Len(t, l.captured, 3)
}

func TestCrawlCrossDomainWhenAllowed(t *testing.T) {
	t.Parallel()

	l := newFakeLauncher(treeSite())
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 10,
		Mode:     ModeFast,
	})
	require.NoError(t, err)
	require.Contains(t, capturedTitles(res), "Other")
}

func TestCrawlRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	site := treeSite()
	site["https://example.com/a"] = fakePage{err: errors.New("navigation timeout")}
	site["https://example.com/b"] = fakePage{title: "B", status: http.StatusNotFound}
	l := newFakeLauncher(site)

	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       10,
		SameDomainOnly: true,
		Mode:           ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home"}, capturedTitles(res))
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, res.FailedURLs)
}

func TestCrawlKeepsErrorPagesWhenConfigured(t *testing.T) {
	t.Parallel()

	site := treeSite()
	site["https://example.com"] = fakePage{
		title:  "Not Found",
		status: http.StatusNotFound,
		links:  site["https://example.com"].links,
	}
	l := newFakeLauncher(site)

	res, err := newTestCrawler(l, Options{KeepErrorPages: true}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       2,
		SameDomainOnly: true,
		Mode:           ModeFast,
	})
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	require.Equal(t, "Not Found", res.Pages[0].Title)
	require.Equal(t, http.StatusNotFound, res.Pages[0].StatusCode)
	require.Empty(t, res.FailedURLs)
}

func TestCrawlRasterOnlyInArchiveMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeFast, ModeStandard, ModeArchive} {
		l := newFakeLauncher(treeSite())
		res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
			RootURL:  "https://example.com",
			MaxPages: 2,
			Mode:     mode,
		})
		require.NoError(t, err)
		for _, p := range res.Pages {
			if mode == ModeArchive {
				require.NotEmpty(t, p.Raster, mode)
			} else {
				require.Nil(t, p.Raster, mode)
			}
		}
	}
}

func TestCrawlSessionLaunchFailure(t *testing.T) {
	t.Parallel()

	l := newFakeLauncher(treeSite())
	l.openErr = errors.New("chrome not found")
	_, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 3,
	})
	require.ErrorIs(t, err, ErrSessionLaunch)
	require.Zero(t, l.closed)
}

func TestCrawlRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []CrawlConfig{
		{RootURL: "not a url", MaxPages: 1},
		{RootURL: "ftp://example.com", MaxPages: 1},
		{RootURL: "https://example.com", MaxPages: 0},
		{RootURL: "https://example.com", MaxPages: 1, MaxDepth: IntPtr(-1)},
		{RootURL: "https://example.com", MaxPages: 1, Mode: "turbo"},
		{RootURL: "https://example.com", MaxPages: 1, ExcludePatterns: []string{"("}},
	}
	for _, cfg := range cases {
		l := newFakeLauncher(treeSite())
		_, err := newTestCrawler(l, Options{}).Crawl(context.Background(), cfg)
		require.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
		require.Zero(t, l.opened, "no session before validation passes")
	}
}

func TestCrawlExclusionsAndDenyList(t *testing.T) {
	t.Parallel()

	l := newFakeLauncher(treeSite())
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:         "https://example.com",
		MaxPages:        10,
		Mode:            ModeFast,
		ExcludePatterns: []string{`/a/1$`},
		DenyDomains:     []string{"*.org"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home", "A", "B"}, capturedTitles(res))
}

func TestCrawlBlocksRepeatedlyForbiddenHost(t *testing.T) {
	t.Parallel()

	site := map[string]fakePage{
		"https://example.com":   {title: "Home", links: []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}},
		"https://example.com/1": {status: http.StatusForbidden},
		"https://example.com/2": {status: http.StatusForbidden},
		"https://example.com/3": {title: "Three"},
	}
	l := newFakeLauncher(site)
	res, err := newTestCrawler(l, Options{ForbiddenThreshold: 2}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 10,
		Mode:     ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home"}, capturedTitles(res))
	require.Len(t, l.captured, 3, "third link is skipped once the host is blocked")
}

type mockRobotsPolicy struct {
	mock.Mock
}

func (m *mockRobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	args := m.Called(ctx, rawURL)
	return args.Bool(0)
}

func TestCrawlConsultsRobotsOnlyWhenRequested(t *testing.T) {
	t.Parallel()

	robots := &mockRobotsPolicy{}
	robots.On("Allowed", mock.Anything, "https://example.com/b").Return(false)
	robots.On("Allowed", mock.Anything, mock.Anything).Return(true)

	l := newFakeLauncher(treeSite())
	res, err := newTestCrawler(l, Options{Robots: robots}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       10,
		SameDomainOnly: true,
		Mode:           ModeFast,
		RespectRobots:  true,
	})
	require.NoError(t, err)
	require.NotContains(t, capturedTitles(res), "B")

	ignored := &mockRobotsPolicy{}
	l = newFakeLauncher(treeSite())
	_, err = newTestCrawler(l, Options{Robots: ignored}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 2,
		Mode:     ModeFast,
	})
	require.NoError(t, err)
	ignored.AssertNotCalled(t, "Allowed", mock.Anything, mock.Anything)
}

type mockRetryPolicy struct {
	mock.Mock
}

func (m *mockRetryPolicy) ShouldRetry(err error, attempt int) bool {
	args := m.Called(err, attempt)
	return args.Bool(0)
}

func (m *mockRetryPolicy) Backoff(attempt int) time.Duration {
	args := m.Called(attempt)
	return args.Get(0).(time.Duration)
}

func TestCrawlRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	retry := &mockRetryPolicy{}
	retry.On("ShouldRetry", mock.Anything, 1).Return(true).Once()
	retry.On("Backoff", 0).Return(time.Millisecond).Once()

	l := newFakeLauncher(map[string]fakePage{"https://example.com": {title: "Home"}})
	l.failOnce["https://example.com"] = true

	res, err := newTestCrawler(l, Options{Retry: retry}).Crawl(context.Background(), CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 1,
		Mode:     ModeFast,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Home"}, capturedTitles(res))
	require.Len(t, l.captured, 2)
	retry.AssertExpectations(t)
}

func TestCrawlCancellationReturnsPartialResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	site := treeSite()
	l := newFakeLauncher(site)
	c := newTestCrawler(cancelAfterFirst{Launcher: l, cancel: cancel}, Options{})

	res, err := c.Crawl(ctx, CrawlConfig{
		RootURL:  "https://example.com",
		MaxPages: 10,
		Mode:     ModeFast,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, res.Pages, 1)
	require.Equal(t, 1, l.closed)
}

// cancelAfterFirst cancels the crawl context once the first capture returns.
type cancelAfterFirst struct {
	Launcher
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Open(ctx context.Context) (Session, error) {
	s, err := c.Launcher.Open(ctx)
	if err != nil {
		return nil, err
	}
	return cancelingSession{Session: s, cancel: c.cancel}, nil
}

type cancelingSession struct {
	Session
	cancel context.CancelFunc
}

func (s cancelingSession) Capture(ctx context.Context, url string, raster bool) (Capture, error) {
	defer s.cancel()
	return s.Session.Capture(ctx, url, raster)
}

func TestCrawlReportsPageEvents(t *testing.T) {
	t.Parallel()

	site := treeSite()
	site["https://example.com/b"] = fakePage{title: "B", status: http.StatusNotFound}
	l := newFakeLauncher(site)

	var events []PageEvent
	res, err := newTestCrawler(l, Options{}).Crawl(context.Background(), CrawlConfig{
		RootURL:        "https://example.com",
		MaxPages:       10,
		SameDomainOnly: true,
		Mode:           ModeFast,
		OnPage:         func(evt PageEvent) { events = append(events, evt) },
	})
	require.NoError(t, err)
	require.Len(t, events, len(res.Pages)+len(res.FailedURLs))

	require.Equal(t, "https://example.com", events[0].URL)
	require.Equal(t, 1, events[0].Ordinal)
	require.NoError(t, events[0].Err)

	var failed []PageEvent
	for _, evt := range events {
		if evt.Err != nil {
			failed = append(failed, evt)
		}
	}
	require.Len(t, failed, 1)
	require.Equal(t, "https://example.com/b", failed[0].URL)
	require.Equal(t, http.StatusNotFound, failed[0].StatusCode)
	require.Zero(t, failed[0].Ordinal)
}
