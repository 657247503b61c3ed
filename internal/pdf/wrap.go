package pdf

import "strings"

// MaxBodyLines caps the wrapped body of one captured page.
const MaxBodyLines = 300

// measureFunc returns the drawn width of s in points at the current font.
type measureFunc func(s string) float64

// WrapText greedily packs words into lines no wider than maxWidth.
//
// Text is split on newlines first; blank paragraphs become empty lines. A word
// wider than maxWidth on its own is broken between runes. At most maxLines
// lines are returned.
func WrapText(text string, measure measureFunc, maxWidth float64, maxLines int) []string {
	var lines []string
	full := func() bool { return maxLines > 0 && len(lines) >= maxLines }

	for _, paragraph := range strings.Split(text, "\n") {
		if full() {
			break
		}
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			if measure(word) > maxWidth {
				if current != "" {
					lines = append(lines, current)
				}
				pieces := breakWord(word, measure, maxWidth)
				lines = append(lines, pieces[:len(pieces)-1]...)
				current = pieces[len(pieces)-1]
				continue
			}
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if measure(candidate) <= maxWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}

	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

// breakWord splits word into pieces that each fit maxWidth. A single rune
// wider than maxWidth still forms its own piece.
func breakWord(word string, measure measureFunc, maxWidth float64) []string {
	var pieces []string
	var current []rune
	for _, r := range word {
		next := append(current, r)
		if len(current) > 0 && measure(string(next)) > maxWidth {
			pieces = append(pieces, string(current))
			current = []rune{r}
			continue
		}
		current = next
	}
	if len(current) > 0 {
		pieces = append(pieces, string(current))
	}
	return pieces
}
