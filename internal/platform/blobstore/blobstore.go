// Package blobstore stores visit attachment content. Metadata lives with the
// visit in Postgres; the store only needs enough of it to serve downloads.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the largest attachment accepted (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// AllowedContentTypes lists the attachment types a visit may carry.
var AllowedContentTypes = map[string]bool{
	"image/png":         true,
	"image/jpeg":        true,
	"image/dicom":       true,
	"application/pdf":   true,
	"application/dicom": true,
	"text/plain":        true,
}

type Metadata struct {
	ID          string    `json:"id"`
	VisitID     string    `json:"visit_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is implemented by InMemoryStore and FSStore.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Stat(ctx context.Context, id string) (*Metadata, error)
	Delete(ctx context.Context, id string) error
}

// Validate checks the caller-supplied metadata before any content is read.
func Validate(meta Metadata) error {
	if strings.TrimSpace(meta.FileName) == "" {
		return ErrMissingFileName
	}
	if !AllowedContentTypes[baseContentType(meta.ContentType)] {
		return ErrInvalidContentType
	}
	return nil
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// readAll reads at most MaxFileSize bytes and stamps size, hash and id.
func readAll(meta *Metadata, content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	sum := sha256.Sum256(data)
	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sum)
	meta.ContentType = baseContentType(meta.ContentType)
	meta.CreatedAt = time.Now().UTC()
	return data, nil
}

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore is a thread-safe Store for tests and local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if err := Validate(meta); err != nil {
		return nil, err
	}
	data, err := readAll(&meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryStore) Stat(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return &meta, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// Len reports how many blobs are held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
