package pdf

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	bandHeight     = 60.0
	bandOpacity    = 0.9
	bandPadding    = 10.0
	bandNumberY    = 20.0
	bandNumberSize = 10.0
	bandTitleY     = 38.0
	bandTitleSize  = 12.0
	bandTitleRunes = 50
	bandURLY       = 52.0
	bandURLSize    = 8.0
	bandURLRunes   = 60
)

// stampHeader draws the translucent band with "ordinal / total", the page
// title, and its URL across the top of the current page.
func stampHeader(doc *gofpdf.Fpdf, width float64, ordinal, total int, title, pageURL string, font *FontResolution) {
	c := colorBand
	doc.SetFillColor(c.r, c.g, c.b)
	doc.SetAlpha(bandOpacity, "Normal")
	doc.Rect(0, 0, width, bandHeight, "F")
	doc.SetAlpha(1, "Normal")

	font.use(doc, false, bandNumberSize)
	setTextColor(doc, colorMuted)
	doc.Text(bandPadding, bandNumberY, fmt.Sprintf("%d / %d", ordinal, total))

	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	font.use(doc, false, bandTitleSize)
	setTextColor(doc, colorHeadTitle)
	font.draw(doc, bandPadding, bandTitleY, truncateRunes(title, bandTitleRunes))

	font.use(doc, false, bandURLSize)
	setTextColor(doc, colorHeadURL)
	font.draw(doc, bandPadding, bandURLY, truncateRunes(pageURL, bandURLRunes))
}
