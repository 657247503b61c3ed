package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

type artifactKind struct {
	name        string
	contentType string
	attachment  bool
	path        func(crawler.JobArtifacts) string
}

var (
	documentArtifact = artifactKind{
		name:        "site.pdf",
		contentType: "application/pdf",
		attachment:  true,
		path:        func(a crawler.JobArtifacts) string { return a.DocumentPath },
	}
	archiveArtifact = artifactKind{
		name:        "pages.zip",
		contentType: "application/zip",
		attachment:  true,
		path:        func(a crawler.JobArtifacts) string { return a.ArchivePath },
	}
	summaryArtifact = artifactKind{
		name:        "summary.json",
		contentType: "application/json",
		path:        func(a crawler.JobArtifacts) string { return a.SummaryPath },
	}
	reportArtifact = artifactKind{
		name:        "report.md",
		contentType: "text/markdown; charset=utf-8",
		path:        func(a crawler.JobArtifacts) string { return a.ReportPath },
	}
)

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "asynchronous jobs are not configured", nil)
		return
	}
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
	job, err := s.dispatcher.Submit(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, crawler.ErrQueueFull) || errors.Is(err, crawler.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "5")
		}
		s.logger.Warn("job submission failed", zap.Error(err))
		s.writeError(w, status, err.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

// loadJob writes the error response itself and reports whether to continue.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (crawler.Job, bool) {
	if s.jobStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "asynchronous jobs are not configured", nil)
		return crawler.Job{}, false
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found", nil)
			return crawler.Job{}, false
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load job", nil)
		return crawler.Job{}, false
	}
	return job, true
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) listJobPages(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if s.captures == nil {
		s.writeError(w, http.StatusNotImplemented, "capture catalog is not configured", nil)
		return
	}
	pages, err := s.captures.ListCaptures(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("list captures failed", zap.String("job_id", job.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job pages", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "pages": pages})
}

func (s *Server) serveArtifact(kind artifactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := s.loadJob(w, r)
		if !ok {
			return
		}
		if !job.Status.IsTerminal() {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("job is still %s", job.Status), nil)
			return
		}
		path := kind.path(job.Artifacts)
		if path == "" {
			s.writeError(w, http.StatusNotFound, kind.name+" is not available for this job", nil)
			return
		}
		if s.blobStore == nil {
			s.writeError(w, http.StatusServiceUnavailable, "artifact storage is not configured", nil)
			return
		}
		rc, err := s.blobStore.GetObject(r.Context(), path)
		if err != nil {
			if errors.Is(err, crawler.ErrObjectNotFound) {
				s.writeError(w, http.StatusNotFound, kind.name+" is no longer stored", nil)
				return
			}
			s.logger.Error("read artifact failed", zap.String("job_id", job.ID), zap.String("path", path), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to read artifact", nil)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", kind.contentType)
		if kind.attachment {
			filename := job.ID + "-" + kind.name
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			s.logger.Warn("stream artifact failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// cancelJob cancels queued jobs only. Running captures are not interrupted.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	switch {
	case job.Status == crawler.JobStatusRunning:
		s.writeError(w, http.StatusConflict, "job is running and cannot be canceled", nil)
		return
	case job.Status.IsTerminal():
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status), nil)
		return
	}
	err := s.jobStore.UpdateJobStatus(r.Context(), job.ID, crawler.JobStatusCanceled, "canceled via API", job.Counters)
	if err != nil {
		if errors.Is(err, crawler.ErrJobFinished) {
			s.writeError(w, http.StatusConflict, "job finished before it could be canceled", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to cancel job", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": string(crawler.JobStatusCanceled)})
}
