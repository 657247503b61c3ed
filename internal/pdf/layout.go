package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// A4 text layout, in points.
const (
	pageWidth  = 595.0
	pageHeight = 842.0
	margin     = 50.0
	bodyWidth  = pageWidth - 2*margin

	titleSize      = 18.0
	titleMaxRunes  = 100
	urlSize        = 9.0
	urlMaxRunes    = 80
	bodySize       = 11.0
	bodyLineHeight = bodySize + 4

	titleGap = 25.0
	ruleGap  = 20.0
	bodyGap  = 30.0
)

type rgb struct{ r, g, b int }

func gray(level float64) rgb {
	v := int(level*255 + 0.5)
	return rgb{v, v, v}
}

var (
	colorText      = gray(0)
	colorMuted     = gray(0.4)
	colorRule      = gray(0.8)
	colorTOCNumber = rgb{38, 99, 235}
	colorTOCTitle  = gray(0.2)
	colorBand      = gray(0.95)
	colorHeadTitle = gray(0.2)
	colorHeadURL   = gray(0.5)
)

func setTextColor(doc *gofpdf.Fpdf, c rgb) {
	doc.SetTextColor(c.r, c.g, c.b)
}

// newDocument starts a point-unit document whose default page is w x h.
func newDocument(w, h float64) *gofpdf.Fpdf {
	doc := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	doc.SetAutoPageBreak(false, 0)
	doc.SetMargins(0, 0, 0)
	doc.SetCreator("sitepdf", true)
	return doc
}

func output(doc *gofpdf.Fpdf) ([]byte, error) {
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// clipRunes keeps the first n runes of s.
func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateRunes keeps the first n runes of s and appends "..." when it cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
