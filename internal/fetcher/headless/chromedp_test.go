package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLauncherDefaults(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{}, nil)
	require.Equal(t, time.Second, l.cfg.Settle)
	require.Equal(t, 1280, l.cfg.WindowWidth)
	require.Equal(t, 800, l.cfg.WindowHeight)

	custom := NewLauncher(Config{Settle: 250 * time.Millisecond, ExecPath: "/opt/chrome"}, zap.NewNop())
	require.Equal(t, 250*time.Millisecond, custom.cfg.Settle)
	require.Greater(t, len(custom.allocatorOptions()), len(l.allocatorOptions()))
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://example.com/logo.png"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://example.com/missing"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://ads.example.net/frame"},
	})

	status, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "https://example.com/missing", url)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, url := newResponseMeta().snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	status, url = newResponseMeta().snapshotWithFallbacks("https://req", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://req", url)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	headers := toNetworkHeaders(http.Header{
		"X-One":   {"a"},
		"X-Multi": {"a", "b"},
		"X-Empty": {},
	})
	require.Equal(t, "a", headers["X-One"])
	require.Equal(t, []string{"a", "b"}, headers["X-Multi"])
	require.NotContains(t, headers, "X-Empty")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	s := &Session{
		browser:       context.Background(),
		browserCancel: func() { calls++ },
		allocCancel:   func() { calls++ },
		logger:        zap.NewNop(),
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 2, calls)

	_, err := s.Capture(context.Background(), "https://example.com", false)
	require.Error(t, err)
}
