package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainPatternBlocklist(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		bl := newDomainPatternBlocklist([]string{"Example.org"})
		require.NotNil(t, bl)
		require.True(t, bl.IsBlocked("example.org"))
		require.False(t, bl.IsBlocked("sub.example.org"), "exact entries do not cover subdomains")
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		t.Parallel()
		bl := newDomainPatternBlocklist([]string{"*.ru", ".cdn.net"})
		require.NotNil(t, bl)
		cases := map[string]bool{
			"example.ru":      true,
			"sub.domain.ru":   true,
			"ru":              true,
			"img.cdn.net":     true,
			"example.com":     false,
			"notcdn.net":      false,
			"example.ru.evil": false,
		}
		for host, blocked := range cases {
			require.Equal(t, blocked, bl.IsBlocked(host), host)
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, newDomainPatternBlocklist([]string{" ", "*"}))
		var bl *domainPatternBlocklist
		require.False(t, bl.IsBlocked("anything"))
	})
}
