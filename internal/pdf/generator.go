package pdf

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// Options configures a Generator.
type Options struct {
	// FontPath points at a TTF/OTF file. Missing or unusable fonts fall back
	// to Helvetica with a warning.
	FontPath string
	// Outline adds one PDF bookmark per captured page.
	Outline bool
}

// DocumentOptions varies per generated document.
type DocumentOptions struct {
	// IncludeTOC prepends index pages to the merged document.
	IncludeTOC bool
	// Title is written to the document metadata.
	Title string
}

// Result is the output of one generation pass.
type Result struct {
	Merged     []byte     `json:"-"`
	Individual [][]byte   `json:"-"`
	TOC        []TOCEntry `json:"toc"`
	TotalSize  int        `json:"totalSize"`
	PageCount  int        `json:"pageCount"`
	TOCPages   int        `json:"tocPages"`
	Warnings   []string   `json:"warnings,omitempty"`
	Font       string     `json:"font"`
}

// Generator renders captured pages and merges them.
type Generator struct {
	opts   Options
	logger *zap.Logger
}

// NewGenerator constructs a Generator.
func NewGenerator(opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{opts: opts, logger: logger.Named("pdf")}
}

// Generate renders every page, then merges them in crawl order. The font is
// resolved once and shared by every document of this pass.
func (g *Generator) Generate(ctx context.Context, pages []crawler.CapturedPage, doc DocumentOptions) (Result, error) {
	if len(pages) == 0 {
		return Result{}, ErrNoPages
	}
	font := ResolveFont(g.opts.FontPath)
	res := Result{Font: font.Source}
	res.Warnings = append(res.Warnings, font.Warnings...)
	for _, w := range font.Warnings {
		g.logger.Warn("font fallback", zap.String("warning", w))
	}

	docs := make([]PageDocument, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("generate pdf: %w", err)
		}
		data, warning, err := renderPage(page, font)
		if err != nil {
			return Result{}, fmt.Errorf("render page %d (%s): %w", i+1, page.URL, err)
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			g.logger.Warn("page rendered as text", zap.String("url", page.URL), zap.String("warning", warning))
		}
		docs = append(docs, PageDocument{Title: page.Title, URL: page.URL, PDF: data})
		res.Individual = append(res.Individual, data)
		res.TOC = append(res.TOC, TOCEntry{Title: tocTitle(page), URL: page.URL, PageNumber: i + 1})
	}

	merged, err := Merge(docs, res.TOC, font, MergeOptions(doc))
	if err != nil {
		return Result{}, fmt.Errorf("generate pdf: %w", err)
	}
	res.Merged = merged.PDF
	res.TOCPages = merged.TOCPages
	res.PageCount = merged.PageCount
	res.Merged, res.Warnings = g.postProcess(res.Merged, res.TOC, merged.FirstPages, res.Warnings)
	res.TotalSize = len(res.Merged)

	g.logger.Info("pdf generated",
		zap.Int("pages", len(pages)),
		zap.Int("pdf_pages", res.PageCount),
		zap.Int("bytes", res.TotalSize),
		zap.Bool("embedded_font", font.Embedded),
	)
	return res, nil
}

// renderPage picks image mode for rasterized captures and text mode
// otherwise. A raster that cannot be embedded falls back to text mode.
func renderPage(page crawler.CapturedPage, font *FontResolution) ([]byte, string, error) {
	if len(page.Raster) > 0 {
		data, err := RenderImage(page.Raster)
		if err == nil {
			return data, "", nil
		}
		warning := fmt.Sprintf("screenshot of %s unusable (%v); rendered as text", page.URL, err)
		data, terr := RenderText(page, font)
		return data, warning, terr
	}
	data, err := RenderText(page, font)
	return data, "", err
}

func tocTitle(page crawler.CapturedPage) string {
	if strings.TrimSpace(page.Title) != "" {
		return page.Title
	}
	return page.URL
}

// postProcess adds the outline and metadata. Failures only produce warnings
// so a usable document is never discarded.
func (g *Generator) postProcess(data []byte, toc []TOCEntry, firstPages []int, warnings []string) ([]byte, []string) {
	if g.opts.Outline {
		targets := make([]outlineTarget, len(toc))
		for i, entry := range toc {
			targets[i] = outlineTarget{
				Title: strconv.Itoa(entry.PageNumber) + ". " + entry.Title,
				Page:  firstPages[i],
			}
		}
		if out, err := addOutline(data, targets); err != nil {
			warnings = append(warnings, "document outline skipped: "+err.Error())
			g.logger.Warn("add outline failed", zap.Error(err))
		} else {
			data = out
		}
	}
	props := map[string]string{"CapturedPages": strconv.Itoa(len(toc))}
	if len(toc) > 0 {
		props["RootURL"] = toc[0].URL
	}
	if out, err := addProperties(data, props); err != nil {
		warnings = append(warnings, "document properties skipped: "+err.Error())
		g.logger.Warn("add properties failed", zap.Error(err))
	} else {
		data = out
	}
	return data, warnings
}
