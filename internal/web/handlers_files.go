package web

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tidycsv/internal/core"
	"github.com/JonMunkholm/tidycsv/internal/logging"
)

// uploadResponse is the body of a successful POST /upload.
type uploadResponse struct {
	Data            []core.Record `json:"data"`
	Filename        string        `json:"filename"`
	CleanedFilename string        `json:"cleaned_filename"`
	AttemptID       string        `json:"attempt_id"`
	Rows            int           `json:"rows"`
	Columns         []string      `json:"columns"`
	DurationMS      int64         `json:"duration_ms"`
}

// historyEntry is one element of GET /history.
type historyEntry struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	StoredFilename string    `json:"stored_filename,omitempty"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// identity returns the caller resolved by the session middleware.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (core.Identity, bool) {
	id, ok := s.auth.CurrentIdentity(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication required",
			Message: "Please log in",
			Code:    "AUTH001",
			Status:  http.StatusUnauthorized,
		})
	}
	return id, ok
}

// filenameParam returns the decoded {filename} path segment.
func filenameParam(r *http.Request) string {
	raw := chi.URLParam(r, "filename")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// handleUpload accepts a multipart "file" field and runs it through the
// cleaning pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large"):
			s.rejectUpload(w, r, id, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, s.cfg.Upload.MaxFileSize), http.StatusRequestEntityTooLarge)
		default:
			s.rejectUpload(w, r, id, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		s.rejectUpload(w, r, id, errNoFile, http.StatusBadRequest)
		return
	}

	logging.FromContext(r.Context()).Info("upload received",
		"username", id.Username,
		"filename", header.Filename,
		"size", header.Size,
	)

	result, err := s.service.Upload(r.Context(), id, header.Filename, file)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Data:            result.Records,
		Filename:        result.StoredFilename,
		CleanedFilename: result.CleanedFilename,
		AttemptID:       result.AttemptID,
		Rows:            result.Table.NumRows(),
		Columns:         result.Table.Header(),
		DurationMS:      result.Duration.Milliseconds(),
	})
}

// rejectUpload records an upload refused before it reached the pipeline and
// responds with reason and status.
func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, id core.Identity, reason error, status int) {
	if err := s.service.Reject(r.Context(), id, "", reason); err != nil {
		respondCoreError(w, r, err)
		return
	}
	respondError(w, r, reason, status)
}

// handleHistory returns the caller's upload attempts, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	attempts, err := s.service.History(r.Context(), id)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}

	entries := make([]historyEntry, len(attempts))
	for i, a := range attempts {
		entries[i] = historyEntry{
			ID:             a.ID,
			Filename:       a.OriginalFilename,
			StoredFilename: a.StoredFilename,
			Status:         string(a.Outcome),
			Timestamp:      a.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleDownload streams a cleaned artifact as CSV, or as Parquet with
// ?format=parquet.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	name := filenameParam(r)

	var (
		contentType string
		open        = s.service.Open
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "csv":
		contentType = "text/csv; charset=utf-8"
	case "parquet":
		contentType = "application/vnd.apache.parquet"
		open = s.service.ExportParquet
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "unsupported format",
			Message: fmt.Sprintf("Format %q is not supported", format),
			Action:  "Use format=csv or format=parquet",
			Code:    "VAL003",
			Status:  http.StatusBadRequest,
		})
		return
	}

	rc, info, err := open(r.Context(), id, name)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	http.ServeContent(w, r, info.Name, info.ModifiedAt, rc)
}

// handlePreview returns the first rows of a cleaned artifact as records.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	records, err := s.service.Preview(r.Context(), id, filenameParam(r))
	if err != nil {
		respondCoreError(w, r, err)
		return
	}
	if records == nil {
		records = []core.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDelete removes a cleaned artifact.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	err := s.service.Delete(r.Context(), id, filenameParam(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "File not found"})
	default:
		logging.FromContext(r.Context()).Error("delete failed", "username", id.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": core.UserText(err)})
	}
}
