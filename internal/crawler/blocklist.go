package crawler

import "strings"

// domainPatternBlocklist matches hosts against exact names and "*.suffix"
// (or ".suffix") wildcards. A nil blocklist blocks nothing.
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes map[string]struct{}
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	bl := &domainPatternBlocklist{
		exact:    make(map[string]struct{}),
		suffixes: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.ToLower(strings.TrimSpace(raw))
		suffix := strings.TrimPrefix(strings.TrimPrefix(value, "*"), ".")
		switch {
		case suffix == "":
			continue
		case strings.HasPrefix(value, "*.") || strings.HasPrefix(value, "."):
			bl.suffixes[suffix] = struct{}{}
		default:
			bl.exact[value] = struct{}{}
		}
	}
	if len(bl.exact) == 0 && len(bl.suffixes) == 0 {
		return nil
	}
	return bl
}

// IsBlocked reports whether host matches any pattern.
func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for label := host; label != ""; {
		if _, ok := b.suffixes[label]; ok {
			return true
		}
		dot := strings.IndexByte(label, '.')
		if dot < 0 {
			break
		}
		label = label[dot+1:]
	}
	return false
}
