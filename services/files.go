package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/trainhub/tms/apperr"
)

// FileStore persists uploaded files (program images, trainee CVs) and is
// the only side effect outside the database. Callers order file writes
// around row writes so a failed insert never leaves an orphaned row and a
// failed upload never leaves a dangling reference.
type FileStore interface {
	Save(ctx context.Context, content io.Reader, folder, filename string) (string, error)
	DeleteByURL(ctx context.Context, url string) error
}

// LocalFileStore writes uploads under a base directory and serves them by
// relative URL. Object names are random so uploads never collide or
// overwrite each other.
type LocalFileStore struct {
	baseDir string
}

func NewLocalFileStore(baseDir string) (*LocalFileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &LocalFileStore{baseDir: baseDir}, nil
}

func (s *LocalFileStore) Save(ctx context.Context, content io.Reader, folder, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.New(apperr.CodeInternal, "failed to create upload folder", err)
	}
	name := uuid.New().String() + strings.ToLower(filepath.Ext(filename))
	dest := filepath.Join(dir, name)

	out, err := os.Create(dest)
	if err != nil {
		return "", apperr.New(apperr.CodeInternal, "failed to create upload file", err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		os.Remove(dest)
		return "", apperr.New(apperr.CodeInternal, "failed to write upload file", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", apperr.New(apperr.CodeInternal, "failed to finalize upload file", err)
	}

	url := "/uploads/" + path.Join(folder, name)
	slog.Info("File saved", "url", url)
	return url, nil
}

func (s *LocalFileStore) DeleteByURL(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, ok := strings.CutPrefix(url, "/uploads/")
	if !ok {
		return apperr.New(apperr.CodeValidation, "unrecognized file url", nil)
	}
	// Clean before joining so a crafted URL cannot escape the base dir.
	rel = filepath.Clean(rel)
	if strings.HasPrefix(rel, "..") {
		return apperr.New(apperr.CodeValidation, "unrecognized file url", nil)
	}
	if err := os.Remove(filepath.Join(s.baseDir, rel)); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to delete file", "error", err, "url", url)
		return apperr.New(apperr.CodeInternal, "failed to delete file", err)
	}
	slog.Info("File deleted", "url", url)
	return nil
}
