package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FSStore keeps each blob as a content file plus a JSON sidecar, sharded by
// the first two characters of the id:
//
//	<root>/ab/ab12...       content
//	<root>/ab/ab12....json  metadata
type FSStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore roots a store at dir on fs, creating the directory if needed.
func NewFSStore(fs afero.Fs, dir string) (*FSStore, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &FSStore{fs: fs, root: dir}, nil
}

// NewOSStore is NewFSStore on the real filesystem.
func NewOSStore(dir string) (*FSStore, error) {
	return NewFSStore(afero.NewOsFs(), dir)
}

func (s *FSStore) paths(id string) (content, sidecar string, err error) {
	if _, perr := uuid.Parse(id); perr != nil {
		return "", "", ErrBlobNotFound
	}
	dir := filepath.Join(s.root, id[:2])
	return filepath.Join(dir, id), filepath.Join(dir, id+".json"), nil
}

func (s *FSStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if err := Validate(meta); err != nil {
		return nil, err
	}
	data, err := readAll(&meta, content)
	if err != nil {
		return nil, err
	}

	contentPath, sidecarPath, err := s.paths(meta.ID)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(filepath.Dir(contentPath), 0o750); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	// Content first, sidecar last: a blob without a sidecar is never served.
	if err := s.writeAtomic(contentPath, data); err != nil {
		return nil, err
	}
	if err := s.writeAtomic(sidecarPath, sidecar); err != nil {
		_ = s.fs.Remove(contentPath)
		return nil, err
	}

	out := meta
	return &out, nil
}

func (s *FSStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FSStore) Stat(_ context.Context, id string) (*Metadata, error) {
	_, sidecarPath, err := s.paths(id)
	if err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(s.fs, sidecarPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

func (s *FSStore) Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	meta, err := s.Stat(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	contentPath, _, _ := s.paths(id)
	f, err := s.fs.Open(contentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, meta, nil
}

// Delete removes the sidecar first so a half-deleted blob reads as missing.
func (s *FSStore) Delete(_ context.Context, id string) error {
	contentPath, sidecarPath, err := s.paths(id)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(sidecarPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := s.fs.Remove(contentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
