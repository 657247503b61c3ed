package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/sitepdf/internal/pipeline"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

// Input is everything a report describes.
type Input struct {
	RootURL     string
	GeneratedAt time.Time
	Result      pipeline.Result
}

// WriteMarkdown renders in as a Markdown document to w.
func WriteMarkdown(w io.Writer, in Input) error {
	md := markdown.NewMarkdown(w)

	writeHeader(md, in)
	writeDocument(md, in.Result)
	writePages(md, in.Result)
	writeFailures(md, in.Result)
	writeSummary(md, in.Result)
	writeWarnings(md, in.Result)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by sitepdf at %s*", in.GeneratedAt.UTC().Format(time.RFC3339))

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

func writeHeader(md *markdown.Markdown, in Input) {
	res := in.Result
	md.H1("Site Capture Report")
	md.PlainText("")
	rows := [][]string{
		{"Root URL", "`" + in.RootURL + "`"},
		{"Pages Captured", strconv.Itoa(res.Crawl.TotalPages)},
		{"Failed URLs", strconv.Itoa(len(res.Crawl.FailedURLs))},
		{"Duration", res.Crawl.Duration().Round(time.Millisecond).String()},
	}
	if res.JobID != "" {
		rows = append([][]string{{"Job", "`" + res.JobID + "`"}}, rows...)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")
}

func writeDocument(md *markdown.Markdown, res pipeline.Result) {
	if res.Document == nil {
		return
	}
	doc := res.Document
	md.H2("Document")
	md.PlainText("")
	rows := [][]string{
		{"Size", FormatFileSize(int64(doc.TotalSize))},
		{"PDF Pages", strconv.Itoa(doc.PageCount)},
		{"Index Pages", strconv.Itoa(doc.TOCPages)},
		{"Font", doc.Font},
	}
	if res.DocumentHash != "" {
		rows = append(rows, []string{"SHA-256", "`" + res.DocumentHash + "`"})
	}
	if len(res.Archive) > 0 {
		rows = append(rows, []string{"Page Archive", FormatFileSize(int64(len(res.Archive)))})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")
}

func writePages(md *markdown.Markdown, res pipeline.Result) {
	md.H2("Pages")
	md.PlainText("")
	if len(res.Crawl.Pages) == 0 {
		md.PlainText("No pages were captured.")
		md.PlainText("")
		return
	}
	rows := make([][]string, len(res.Crawl.Pages))
	for i, p := range res.Crawl.Pages {
		title := p.Title
		if strings.TrimSpace(title) == "" {
			title = "Untitled"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			truncate(title, 60),
			p.URL,
			strconv.Itoa(p.Depth),
		}
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Title", "URL", "Depth"}, Rows: rows})
	md.PlainText("")
}

func writeFailures(md *markdown.Markdown, res pipeline.Result) {
	if len(res.Crawl.FailedURLs) == 0 {
		return
	}
	md.H2("Failed URLs")
	md.PlainText("")
	md.Warningf("%d URL(s) could not be captured.", len(res.Crawl.FailedURLs))
	md.PlainText("")
	md.BulletList(res.Crawl.FailedURLs...)
	md.PlainText("")
}

func writeSummary(md *markdown.Markdown, res pipeline.Result) {
	if res.SummaryErr != nil {
		md.H2("Summary")
		md.PlainText("")
		md.Cautionf("Summary unavailable: %v", res.SummaryErr)
		md.PlainText("")
		return
	}
	if res.Summary == nil {
		return
	}
	out := res.Summary
	s := out.Summary
	md.H2("Summary")
	md.PlainText("")
	if out.Degraded() {
		md.Note("The model reply was not structured; it is shown verbatim.")
		md.PlainText("")
	}
	if s.CompanyName != "" {
		md.PlainTextf("**%s**", s.CompanyName)
		md.PlainText("")
	}
	md.PlainText(s.Overview)
	md.PlainText("")

	writeList(md, "Main Services", s.MainServices)
	writeList(md, "Target Customers", s.TargetCustomers)
	writeList(md, "Unique Features", s.UniqueFeatures)
	if s.SWOT != nil {
		writeSWOT(md, s.SWOT)
	}
	if s.CompetitorAnalysis != "" {
		md.H3("Competitor Analysis")
		md.PlainText("")
		md.PlainText(s.CompetitorAnalysis)
		md.PlainText("")
	}
}

func writeSWOT(md *markdown.Markdown, swot *summary.SWOTAnalysis) {
	md.H3("SWOT Analysis")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Strengths", "Weaknesses", "Opportunities", "Threats"},
		Rows: [][]string{{
			joinCell(swot.Strengths),
			joinCell(swot.Weaknesses),
			joinCell(swot.Opportunities),
			joinCell(swot.Threats),
		}},
	})
	md.PlainText("")
}

func writeList(md *markdown.Markdown, title string, items []string) {
	if len(items) == 0 {
		return
	}
	md.H3(title)
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

func writeWarnings(md *markdown.Markdown, res pipeline.Result) {
	if len(res.Warnings) == 0 {
		return
	}
	md.H2("Warnings")
	md.PlainText("")
	md.BulletList(res.Warnings...)
	md.PlainText("")
}

func joinCell(items []string) string {
	return strings.Join(items, "<br>")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
