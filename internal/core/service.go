package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/tidycsv/internal/logging"
)

// DefaultPreviewRows is the number of records returned by Preview.
const DefaultPreviewRows = 10

// Options configures a Service. Zero values select defaults.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	PreviewRows   int
}

// Service is the entry point for all upload operations.
type Service struct {
	store       ArtifactStore
	recorder    Recorder
	limiter     *UploadLimiter
	previewRows int
}

// NewService wires a Service over the given store and recorder.
func NewService(store ArtifactStore, recorder Recorder, opts Options) *Service {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	return &Service{
		store:       store,
		recorder:    recorder,
		limiter:     NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
		previewRows: opts.PreviewRows,
	}
}

// Limiter exposes the upload limiter for status reporting.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Upload ingests one file for id. Exactly one UploadAttempt is recorded per
// call on every exit path, including panics below this frame.
// On failure the returned error is a *Error whose Outcome was recorded.
func (s *Service) Upload(ctx context.Context, id Identity, filename string, r io.Reader) (result *UploadResult, err error) {
	start := time.Now()
	log := logging.WithFields(ctx, "username", id.Username, "original_filename", filename)
	var stored string

	defer func() {
		if p := recover(); p != nil {
			log.Error("upload panicked", "panic", p)
			result = nil
			err = newError(ErrServer, "Unexpected server error", fmt.Errorf("panic: %v", p))
		}

		outcome := OutcomeOf(err)
		attempt, recErr := s.recorder.Record(context.WithoutCancel(ctx), AttemptParams{
			Username:         id.Username,
			OriginalFilename: filename,
			StoredFilename:   stored,
			Outcome:          outcome,
		})
		if recErr != nil {
			log.Error("failed to record upload attempt", "outcome", outcome, "error", recErr)
			if err == nil {
				result = nil
				err = newError(ErrServer, "Could not record upload", recErr)
			}
			return
		}

		attrs := []any{
			"attempt_id", attempt.ID,
			"stored_filename", stored,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case err == nil:
			result.AttemptID = attempt.ID
			result.Duration = time.Since(start)
			log.Info("upload completed", attrs...)
		case IsValidation(err):
			log.Warn("upload rejected", append(attrs, "error", err)...)
		default:
			log.Error("upload failed", append(attrs, "error", err)...)
		}
	}()

	if !s.limiter.TryAcquire() {
		log.Debug("waiting for upload slot", "active", s.limiter.ActiveCount())
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, newError(ErrServer, "Server is busy", err)
		}
	}
	defer s.limiter.Release()

	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(ErrServer, "Could not read upload", err)
	}

	stored, err = s.store.SaveRaw(ctx, filename, data)
	if err != nil {
		return nil, newError(ErrStorage, "Could not save upload", err)
	}

	table, err := ParseTable(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateStructure(table); err != nil {
		return nil, err
	}

	cleaned := Clean(ctx, table)

	cleanedName, err := s.store.SaveCleaned(ctx, stored, cleaned)
	if err != nil {
		return nil, newError(ErrStorage, "Could not save cleaned file", err)
	}

	return &UploadResult{
		StoredFilename:  stored,
		CleanedFilename: cleanedName,
		Table:           cleaned,
		Records:         ToRecords(cleaned, -1),
	}, nil
}

// Reject records an upload request refused before any bytes reached the
// pipeline, such as a missing file part or an oversized body. The attempt is
// recorded as parse_error; filename may be empty when the request never
// named a file. A non-nil return means the attempt could not be recorded.
func (s *Service) Reject(ctx context.Context, id Identity, filename string, reason error) error {
	log := logging.WithFields(ctx, "username", id.Username, "original_filename", filename)

	attempt, err := s.recorder.Record(context.WithoutCancel(ctx), AttemptParams{
		Username:         id.Username,
		OriginalFilename: filename,
		Outcome:          OutcomeParseError,
	})
	if err != nil {
		log.Error("failed to record upload attempt", "outcome", OutcomeParseError, "error", err)
		return newError(ErrServer, "Could not record upload", err)
	}

	log.Warn("upload rejected", "attempt_id", attempt.ID, "outcome", OutcomeParseError, "error", reason)
	return nil
}

// History returns id's attempts, newest first.
func (s *Service) History(ctx context.Context, id Identity) ([]UploadAttempt, error) {
	attempts, err := s.recorder.History(ctx, id.Username)
	if err != nil {
		return nil, newError(ErrStorage, "Could not load upload history", err)
	}
	return attempts, nil
}

// Preview returns the first rows of a cleaned artifact.
func (s *Service) Preview(ctx context.Context, id Identity, name string) ([]Record, error) {
	records, err := s.store.Preview(ctx, name, s.previewRows)
	if err != nil {
		return nil, classifyStoreError(err, "Could not preview file")
	}
	return records, nil
}

// Open returns a reader over a cleaned artifact for download.
func (s *Service) Open(ctx context.Context, id Identity, name string) (io.ReadSeekCloser, ArtifactInfo, error) {
	rc, info, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, ArtifactInfo{}, classifyStoreError(err, "Could not open file")
	}
	return rc, info, nil
}

// ExportParquet converts a cleaned artifact to Parquet when the store
// supports it.
func (s *Service) ExportParquet(ctx context.Context, id Identity, name string) (io.ReadSeekCloser, ArtifactInfo, error) {
	exp, ok := s.store.(ParquetExporter)
	if !ok {
		return nil, ArtifactInfo{}, newError(ErrServer, "Parquet export is not available", nil)
	}
	rc, info, err := exp.ExportParquet(ctx, name)
	if err != nil {
		return nil, ArtifactInfo{}, classifyStoreError(err, "Could not export file")
	}
	return rc, info, nil
}

// Delete removes a cleaned artifact. A missing artifact is reported as
// ErrNotFound.
func (s *Service) Delete(ctx context.Context, id Identity, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return classifyStoreError(err, "Could not delete file")
	}
	logging.FromContext(ctx).Info("cleaned file deleted", "username", id.Username, "filename", name)
	return nil
}

// ListCleaned returns every cleaned artifact.
func (s *Service) ListCleaned(ctx context.Context, id Identity) ([]ArtifactInfo, error) {
	files, err := s.store.ListCleaned(ctx)
	if err != nil {
		return nil, newError(ErrStorage, "Could not list files", err)
	}
	return files, nil
}

// WaitForUploads blocks until in-flight uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ParquetExporter is implemented by stores that can convert a cleaned
// artifact to Parquet.
type ParquetExporter interface {
	ExportParquet(ctx context.Context, cleanedFilename string) (io.ReadSeekCloser, ArtifactInfo, error)
}

func classifyStoreError(err error, msg string) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newError(ErrNotFound, "File not found", err)
	case errors.Is(err, ErrRead):
		return newError(ErrRead, "The stored file could not be read", err)
	default:
		return newError(ErrStorage, msg, err)
	}
}
