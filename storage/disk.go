package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskDocumentStore keeps contract documents under a local directory. It
// backs single-host installs that have no bucket configured.
type DiskDocumentStore struct {
	dir string
}

func NewDiskDocumentStore(dir string) (*DiskDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	return &DiskDocumentStore{dir: filepath.Clean(dir)}, nil
}

// Put writes the document atomically and returns its reference, file://path.
func (s *DiskDocumentStore) Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error) {
	path := filepath.Join(s.dir, filepath.Clean("/"+name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename document: %w", err)
	}
	return "file://" + path, nil
}

// Open reads back a document written by Put.
func (s *DiskDocumentStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, ok := strings.CutPrefix(ref, "file://")
	if !ok || !strings.HasPrefix(filepath.Clean(path), s.dir+string(filepath.Separator)) {
		return nil, fmt.Errorf("document ref %q is not under %s", ref, s.dir)
	}
	return os.Open(path)
}
