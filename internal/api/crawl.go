package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	"github.com/JakeFAU/sitepdf/internal/report"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

const defaultDownloadName = "website.pdf"

var pdfMagic = []byte("%PDF-")

type crawlStats struct {
	TotalPages int      `json:"totalPages"`
	FailedURLs []string `json:"failedUrls"`
	Duration   string   `json:"duration"`
}

type pdfPayload struct {
	TotalSize     int    `json:"totalSize"`
	TotalSizeMB   string `json:"totalSizeMB"`
	PageCount     int    `json:"pageCount"`
	PhysicalPages int    `json:"physicalPages"`
	TOCPages      int    `json:"tocPages"`
	Hash          string `json:"hash,omitempty"`
	MergedPDF     string `json:"mergedPdf"`
	Archive       string `json:"archive,omitempty"`
}

type crawlData struct {
	JobID         string           `json:"jobId,omitempty"`
	Crawl         crawlStats       `json:"crawl"`
	PDF           *pdfPayload      `json:"pdf"`
	Summary       *summary.Summary `json:"summary"`
	SummaryStatus string           `json:"summaryStatus,omitempty"`
	SummaryError  string           `json:"summaryError,omitempty"`
	Warnings      []string         `json:"warnings"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request", []fieldError{{Field: "body", Message: err.Error()}})
		return
	}
	params, problems := s.toJobParameters(req)
	if len(problems) > 0 {
		s.writeError(w, http.StatusBadRequest, "invalid request", problems)
		return
	}
	if s.runner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawling is not configured", nil)
		return
	}

	res, err := s.runner.Run(r.Context(), pipeline.RequestFor("", params))
	if err != nil && !errors.Is(err, pipeline.ErrSummaryFailed) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, crawler.ErrInvalidConfig):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.logger.Warn("synchronous crawl failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("url", params.Crawl.RootURL),
			zap.Error(err),
		)
		s.writeError(w, status, err.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: buildCrawlData(res)})
}

func buildCrawlData(res pipeline.Result) crawlData {
	data := crawlData{
		JobID: res.JobID,
		Crawl: crawlStats{
			TotalPages: res.Crawl.TotalPages,
			FailedURLs: res.Crawl.FailedURLs,
			Duration:   strconv.FormatFloat(res.Crawl.Duration().Seconds(), 'f', -1, 64) + "s",
		},
		Warnings: res.Warnings,
	}
	if data.Crawl.FailedURLs == nil {
		data.Crawl.FailedURLs = []string{}
	}
	if data.Warnings == nil {
		data.Warnings = []string{}
	}
	if doc := res.Document; doc != nil {
		data.PDF = &pdfPayload{
			TotalSize:     doc.TotalSize,
			TotalSizeMB:   fmt.Sprintf("%.2f", report.SizeMB(doc.TotalSize)),
			PageCount:     len(doc.TOC),
			PhysicalPages: doc.PageCount,
			TOCPages:      doc.TOCPages,
			Hash:          res.DocumentHash,
			MergedPDF:     base64.StdEncoding.EncodeToString(doc.Merged),
		}
		if len(res.Archive) > 0 {
			data.PDF.Archive = base64.StdEncoding.EncodeToString(res.Archive)
		}
	}
	switch {
	case res.SummaryErr != nil:
		data.SummaryStatus = "failed"
		data.SummaryError = res.SummaryErr.Error()
	case res.Summary != nil:
		data.SummaryStatus = string(res.Summary.Kind)
		sum := res.Summary.Summary
		data.Summary = &sum
	}
	return data
}

type downloadRequest struct {
	PDFBase64 string `json:"pdfBase64"`
	Filename  string `json:"filename"`
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request", []fieldError{{Field: "body", Message: err.Error()}})
		return
	}
	if strings.TrimSpace(req.PDFBase64) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request", []fieldError{{Field: "pdfBase64", Message: "pdfBase64 is required"}})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request", []fieldError{{Field: "pdfBase64", Message: "pdfBase64 is not valid base64"}})
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		s.writeError(w, http.StatusBadRequest, "invalid request", []fieldError{{Field: "pdfBase64", Message: "payload is not a PDF document"}})
		return
	}

	s.writeAttachment(w, "application/pdf", DownloadFilename(req.Filename), data)
}

// DownloadFilename turns a client supplied name into a safe ".pdf" file name.
func DownloadFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultDownloadName
	}
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = name[:len(name)-len(".pdf")]
	}
	base := report.SanitizeFilename(name)
	if strings.Trim(base, "_") == "" {
		return defaultDownloadName
	}
	return base + ".pdf"
}

func (s *Server) writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write attachment failed", zap.Error(err))
	}
}
