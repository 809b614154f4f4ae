package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore persists files under a root directory, one content file plus a
// JSON metadata sidecar per upload. IDs are UUIDs, so file names on disk
// never collide and never contain path separators.
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed and returns a DiskStore.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating file store root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) contentPath(id string) string {
	return filepath.Join(s.root, id+".bin")
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.root, id+".json")
}

// safeID rejects IDs that could escape the root directory.
func safeID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

// Save validates the upload, writes the content and a metadata sidecar, and
// returns the stamped metadata.
func (s *DiskStore) Save(_ context.Context, meta FileMetadata, content io.Reader) (*FileMetadata, error) {
	data, err := validate(meta, content)
	if err != nil {
		return nil, err
	}
	stamp(&meta, data)

	if err := os.WriteFile(s.contentPath(meta.ID), data, 0o640); err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), raw, 0o640); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	out := meta
	return &out, nil
}

// Open returns the file content and its metadata.
func (s *DiskStore) Open(ctx context.Context, id string) (io.ReadCloser, *FileMetadata, error) {
	meta, err := s.Stat(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("opening content: %w", err)
	}
	return f, meta, nil
}

// Delete removes the content file and its metadata sidecar.
func (s *DiskStore) Delete(_ context.Context, id string) error {
	if !safeID(id) {
		return ErrFileNotFound
	}

	if err := os.Remove(s.metaPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("removing metadata: %w", err)
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing content: %w", err)
	}
	return nil
}

// Stat reads the metadata sidecar for a stored file.
func (s *DiskStore) Stat(_ context.Context, id string) (*FileMetadata, error) {
	if !safeID(id) {
		return nil, ErrFileNotFound
	}

	raw, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var meta FileMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &meta, nil
}
