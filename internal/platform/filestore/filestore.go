// Package filestore stores uploaded documents: lab report scans fed to the
// extraction pipeline and attachments on clinical notes. It defines the
// Store interface, an in-memory implementation for tests, and a local-disk
// implementation used by the server.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed upload size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// AllowedContentTypes lists the MIME types the extraction pipeline accepts.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"image/bmp":       true,
}

// IsImage reports whether the content type is a raster image rather than a PDF.
func IsImage(contentType string) bool {
	return AllowedContentTypes[contentType] && contentType != "application/pdf"
}

// FileMetadata describes a stored file.
type FileMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// Store defines the contract for file storage backends.
type Store interface {
	Save(ctx context.Context, meta FileMetadata, content io.Reader) (*FileMetadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *FileMetadata, error)
	Delete(ctx context.Context, id string) error
	Stat(ctx context.Context, id string) (*FileMetadata, error)
}

// validate checks the pieces of metadata the caller must supply, and reads
// the content up to the size limit. It returns the buffered bytes.
func validate(meta FileMetadata, content io.Reader) ([]byte, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return nil, ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func stamp(meta *FileMetadata, data []byte) {
	h := sha256.Sum256(data)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
}

type storedFile struct {
	metadata FileMetadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*storedFile
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*storedFile)}
}

// Save validates the upload, computes its SHA-256 hash, and stores the file
// in memory under a freshly generated ID.
func (s *MemoryStore) Save(_ context.Context, meta FileMetadata, content io.Reader) (*FileMetadata, error) {
	data, err := validate(meta, content)
	if err != nil {
		return nil, err
	}
	stamp(&meta, data)

	s.mu.Lock()
	s.files[meta.ID] = &storedFile{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

// Open returns an io.ReadCloser over the file content and its metadata.
func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *FileMetadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrFileNotFound
	}
	meta := f.metadata
	return io.NopCloser(bytes.NewReader(f.content)), &meta, nil
}

// Delete removes a file by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

// Stat returns file metadata without content.
func (s *MemoryStore) Stat(_ context.Context, id string) (*FileMetadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrFileNotFound
	}
	meta := f.metadata
	return &meta, nil
}
