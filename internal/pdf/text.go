package pdf

import (
	"strings"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// RenderText draws page as A4 text: title, muted URL line, a rule, then the
// wrapped body, continuing onto new pages as needed.
func RenderText(page crawler.CapturedPage, font *FontResolution) ([]byte, error) {
	doc := newDocument(pageWidth, pageHeight)
	font.register(doc)
	doc.AddPage()

	title := page.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	y := margin + titleSize
	font.use(doc, true, titleSize)
	setTextColor(doc, colorText)
	font.draw(doc, margin, y, clipRunes(title, titleMaxRunes))

	y += titleGap
	font.use(doc, false, urlSize)
	setTextColor(doc, colorMuted)
	font.draw(doc, margin, y, clipRunes(page.URL, urlMaxRunes))

	y += ruleGap
	r := colorRule
	doc.SetDrawColor(r.r, r.g, r.b)
	doc.SetLineWidth(1)
	doc.Line(margin, y, pageWidth-margin, y)

	y += bodyGap
	font.use(doc, false, bodySize)
	setTextColor(doc, colorText)
	body := font.Prepare(strings.TrimSpace(page.Text))
	for _, line := range WrapText(body, font.measure(doc), bodyWidth, MaxBodyLines) {
		if y > pageHeight-margin-bodyLineHeight {
			doc.AddPage()
			y = margin
		}
		if line != "" {
			font.draw(doc, margin, y, line)
		}
		y += bodyLineHeight
	}
	return output(doc)
}
