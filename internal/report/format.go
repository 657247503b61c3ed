// Package report renders human-readable crawl reports and small formatting
// helpers shared by the CLI and HTTP surfaces.
package report

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders n bytes with a 1024 base and at most two decimals,
// e.g. "1.5 KB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// SizeMB is n in megabytes rounded to two decimals.
func SizeMB(n int) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}]`)

const maxFilenameRunes = 100

// SanitizeFilename replaces every rune that is not a letter or digit with '_',
// lowercases the result and keeps at most 100 runes.
func SanitizeFilename(name string) string {
	clean := strings.ToLower(unsafeFilename.ReplaceAllString(name, "_"))
	runes := []rune(clean)
	if len(runes) > maxFilenameRunes {
		runes = runes[:maxFilenameRunes]
	}
	return string(runes)
}
