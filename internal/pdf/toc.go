package pdf

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// TOCEntry indexes one captured page. PageNumber is its 1-based crawl ordinal.
type TOCEntry struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	PageNumber int    `json:"pageNumber"`
}

const (
	tocHeading       = "Table of Contents"
	tocHeadingSize   = 24.0
	tocFirstEntryGap = 40.0
	tocLineHeight    = 20.0
	tocNumberX       = margin
	tocNumberSize    = 11.0
	tocTitleX        = 80.0
	tocTitleSize     = 10.0
	tocTitleMaxRunes = 70
)

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_.]`)

// tocLabel is the text drawn for an entry. When the font cannot draw the
// title, an ASCII label built from the URL host and path is used instead.
func tocLabel(entry TOCEntry, font *FontResolution) string {
	label := entry.Title
	if strings.TrimSpace(label) == "" {
		label = entry.URL
	}
	if !font.Covers(label) {
		label = asciiLabel(label, entry.URL)
	}
	return truncateRunes(label, tocTitleMaxRunes)
}

func asciiLabel(title, rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host + u.EscapedPath()
	}
	if stripped := strings.TrimSpace(unsafeLabelChars.ReplaceAllString(title, "")); stripped != "" {
		return stripped
	}
	return rawURL
}

// drawTOC writes the index pages and returns one internal link per entry.
// The caller points each link at its content page once that page exists.
func drawTOC(doc *gofpdf.Fpdf, entries []TOCEntry, font *FontResolution) []int {
	links := make([]int, len(entries))
	doc.AddPageFormat("P", gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight})

	y := margin
	font.use(doc, true, tocHeadingSize)
	setTextColor(doc, colorText)
	doc.Text(margin, y, tocHeading)
	y += tocFirstEntryGap

	for i, entry := range entries {
		if y > pageHeight-margin {
			doc.AddPageFormat("P", gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight})
			y = margin
		}
		font.use(doc, true, tocNumberSize)
		setTextColor(doc, colorTOCNumber)
		doc.Text(tocNumberX, y, strconv.Itoa(entry.PageNumber)+".")

		font.use(doc, false, tocTitleSize)
		setTextColor(doc, colorTOCTitle)
		font.draw(doc, tocTitleX, y, tocLabel(entry, font))

		links[i] = doc.AddLink()
		doc.Link(tocNumberX, y-tocNumberSize, pageWidth-2*margin, tocLineHeight-4, links[i])
		y += tocLineHeight
	}
	return links
}
