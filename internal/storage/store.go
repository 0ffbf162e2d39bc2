// Package storage persists raw uploads and cleaned tables on the local
// filesystem.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

// CleanedPrefix is prepended to the stored name of every cleaned artifact.
const CleanedPrefix = "cleaned_"

// maxCollisionAttempts bounds the _N suffix search in SaveRaw.
const maxCollisionAttempts = 10000

// Store implements core.ArtifactStore over two directories.
type Store struct {
	rawDir     string
	cleanedDir string
}

var _ core.ArtifactStore = (*Store)(nil)
var _ core.ParquetExporter = (*Store)(nil)

// New creates both directories if needed and returns a Store over them.
func New(rawDir, cleanedDir string) (*Store, error) {
	for _, dir := range []string{rawDir, cleanedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return &Store{rawDir: rawDir, cleanedDir: cleanedDir}, nil
}

// RawDir returns the directory holding original uploads.
func (s *Store) RawDir() string { return s.rawDir }

// CleanedDir returns the directory holding cleaned artifacts.
func (s *Store) CleanedDir() string { return s.cleanedDir }

// SaveRaw writes data under the sanitized filename, appending _1, _2, ...
// before the extension until an unused name is found. Files are created
// with O_EXCL, so an existing upload is never overwritten.
func (s *Store) SaveRaw(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := SanitizeFilename(filename)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 0; n < maxCollisionAttempts; n++ {
		candidate := name
		if n > 0 {
			candidate = base + "_" + strconv.Itoa(n) + ext
		}

		path := filepath.Join(s.rawDir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close %s: %w", candidate, err)
		}
		return candidate, nil
	}

	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxCollisionAttempts)
}

// SaveCleaned writes t as cleaned_<stored>, replacing any previous version
// atomically.
func (s *Store) SaveCleaned(ctx context.Context, stored string, t *core.Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validName(stored) {
		return "", fmt.Errorf("invalid stored filename %q", stored)
	}

	var buf bytes.Buffer
	if err := core.WriteCSV(&buf, t); err != nil {
		return "", fmt.Errorf("encode cleaned table: %w", err)
	}

	name := CleanedPrefix + stored
	if err := atomicWriteFile(filepath.Join(s.cleanedDir, name), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

// atomicWriteFile writes content to a hidden temp file in the destination
// directory and renames it over path.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// cleanedPath resolves a cleaned artifact name, rejecting anything that is
// not a plain visible file name.
func (s *Store) cleanedPath(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", core.ErrNotFound, name)
	}
	return filepath.Join(s.cleanedDir, name), nil
}

func notFound(err error, name string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	return err
}

// loadCleaned reads and parses a cleaned artifact.
func (s *Store) loadCleaned(ctx context.Context, name string) (*core.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.cleanedPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFound(err, name)
	}

	t, err := core.ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrRead, name, err)
	}
	return t, nil
}

// Preview returns up to n records of a cleaned artifact.
func (s *Store) Preview(ctx context.Context, name string, n int) ([]core.Record, error) {
	t, err := s.loadCleaned(ctx, name)
	if err != nil {
		return nil, err
	}
	return core.ToRecords(t, n), nil
}

// Open returns the cleaned artifact for streaming to a client.
func (s *Store) Open(ctx context.Context, name string) (io.ReadSeekCloser, core.ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.ArtifactInfo{}, err
	}
	path, err := s.cleanedPath(name)
	if err != nil {
		return nil, core.ArtifactInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, core.ArtifactInfo{}, notFound(err, name)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, core.ArtifactInfo{}, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, core.ArtifactInfo{}, fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}

	return f, artifactInfo(info), nil
}

// Delete removes a cleaned artifact. The raw upload is kept.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.cleanedPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return notFound(err, name)
	}
	return nil
}

// ListCleaned returns every cleaned artifact sorted by name.
func (s *Store) ListCleaned(ctx context.Context) ([]core.ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.cleanedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]core.ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !validName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, artifactInfo(info))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func artifactInfo(info fs.FileInfo) core.ArtifactInfo {
	return core.ArtifactInfo{
		Name:       info.Name(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
}
