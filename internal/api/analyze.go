package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/pipeline"
)

// Multipart field names. "files[]" is accepted for form libraries that
// append brackets.
const (
	fieldQuery = "query"
	fieldFiles = "files"
)

// handleAnalyze runs the pipeline over a multipart request carrying a query
// and one or more documents. It answers 200 with the report, 400 when the
// query or documents are missing and 500 for any other failure.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("request body exceeds %d bytes", s.maxUploadBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "expected a multipart form with a query and files")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	query := r.FormValue(fieldQuery)
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	headers := append(r.MultipartForm.File[fieldFiles], r.MultipartForm.File[fieldFiles+"[]"]...)
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "At least one document is required")
		return
	}

	uploads := make([]pipeline.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		uploads = append(uploads, u)
	}

	res, err := s.driver.Analyze(r.Context(), query, uploads)
	if err != nil {
		s.logger.Warn("analysis request failed",
			"category", core.GetCategory(err), "code", core.GetCode(err), "guardrail", core.IsGuardrail(err))
		s.respondJSON(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	s.respondJSON(w, http.StatusOK, res.Report)
}

func readUpload(fh *multipart.FileHeader) (pipeline.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return pipeline.Upload{
		Name:      fh.Filename,
		MediaType: mediaType(fh),
		Content:   data,
	}, nil
}

// mediaType prefers the part's declared type and falls back to the file
// extension.
func mediaType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return pipeline.MediaTypeFor(fh.Filename)
}

// errorBody is the 500 payload: the message plus the domain code when known.
func errorBody(err error) map[string]string {
	body := map[string]string{"error": err.Error()}
	var de *core.DomainError
	if errors.As(err, &de) {
		body["error"] = de.Message
		body["code"] = de.Code
		if de.Cause != nil {
			body["detail"] = de.Cause.Error()
		}
	}
	return body
}
