package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
)

// ErrNoPages is returned when there is nothing to render or merge.
var ErrNoPages = errors.New("no pages to render")

// PageDocument is the rendered PDF of one captured page.
type PageDocument struct {
	Title string
	URL   string
	PDF   []byte
}

// MergeOptions controls the merged document.
type MergeOptions struct {
	IncludeTOC bool
	Title      string
}

// MergeResult describes the merged document.
type MergeResult struct {
	PDF       []byte
	TOCPages  int
	PageCount int
	// FirstPages holds the physical page number where each document starts.
	FirstPages []int
}

// Merge builds one document: optional index pages, then every page of every
// document in order, each content page stamped with a header band. TOC and
// headers share font.
func Merge(docs []PageDocument, toc []TOCEntry, font *FontResolution, opts MergeOptions) (MergeResult, error) {
	if len(docs) == 0 {
		return MergeResult{}, ErrNoPages
	}
	if len(toc) != len(docs) {
		return MergeResult{}, fmt.Errorf("merge: %d toc entries for %d documents", len(toc), len(docs))
	}

	doc := newDocument(pageWidth, pageHeight)
	if opts.Title != "" {
		doc.SetTitle(opts.Title, true)
	}
	font.register(doc)

	var links []int
	if opts.IncludeTOC {
		links = drawTOC(doc, toc, font)
	}
	tocPages := doc.PageNo()

	importer := gofpdi.NewImporter()
	// gofpdi keys sources by the stream pointer, so every stream stays
	// reachable until the merge is done.
	streams := make([]*io.ReadSeeker, len(docs))
	firstPages := make([]int, len(docs))
	total := len(docs)

	for i, d := range docs {
		dims, err := PageDims(d.PDF)
		if err != nil {
			return MergeResult{}, fmt.Errorf("merge document %d (%s): %w", i+1, d.URL, err)
		}
		rs := io.ReadSeeker(bytes.NewReader(d.PDF))
		streams[i] = &rs

		for p, dim := range dims {
			tpl := importer.ImportPageFromStream(doc, streams[i], p+1, "/MediaBox")
			doc.AddPageFormat("P", gofpdf.SizeType{Wd: dim.Width, Ht: dim.Height})
			importer.UseImportedTemplate(doc, tpl, 0, 0, dim.Width, dim.Height)
			if p == 0 {
				firstPages[i] = doc.PageNo()
				if links != nil {
					doc.SetLink(links[i], 0, -1)
				}
			}
			stampHeader(doc, dim.Width, i+1, total, d.Title, d.URL, font)
		}
		if err := doc.Error(); err != nil {
			return MergeResult{}, fmt.Errorf("merge document %d (%s): %w", i+1, d.URL, err)
		}
	}

	pageCount := doc.PageNo()
	data, err := output(doc)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	return MergeResult{
		PDF:        data,
		TOCPages:   tocPages,
		PageCount:  pageCount,
		FirstPages: firstPages,
	}, nil
}
