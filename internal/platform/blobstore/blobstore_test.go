package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFSStore(afero.NewMemMapFs(), "/blobs")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"fs":     fsStore,
	}
}

func seedBlob(t *testing.T, store Store, visitID, fileName, contentType, content string) *Metadata {
	t.Helper()
	meta := Metadata{
		VisitID:     visitID,
		FileName:    fileName,
		ContentType: contentType,
		CreatedBy:   "doctor-1",
	}
	result, err := store.Put(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestStore_PutAndOpen(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			content := "x-ray findings"
			put := seedBlob(t, store, "visit-1", "xray.txt", "text/plain; charset=utf-8", content)

			if put.ID == "" || put.Hash == "" || put.CreatedAt.IsZero() {
				t.Fatalf("expected stamped metadata, got %+v", put)
			}
			if put.Size != int64(len(content)) {
				t.Errorf("expected Size=%d, got %d", len(content), put.Size)
			}
			if put.ContentType != "text/plain" {
				t.Errorf("expected normalized content type, got %q", put.ContentType)
			}
			want := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
			if put.Hash != want {
				t.Errorf("expected hash %s, got %s", want, put.Hash)
			}

			rc, meta, err := store.Open(context.Background(), put.ID)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != content {
				t.Errorf("expected content %q, got %q", content, data)
			}
			if meta.VisitID != "visit-1" || meta.FileName != "xray.txt" {
				t.Errorf("unexpected metadata %+v", meta)
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.NewString()
			if _, _, err := store.Open(context.Background(), id); err != ErrBlobNotFound {
				t.Errorf("Open: expected ErrBlobNotFound, got %v", err)
			}
			if _, err := store.Stat(context.Background(), id); err != ErrBlobNotFound {
				t.Errorf("Stat: expected ErrBlobNotFound, got %v", err)
			}
			if err := store.Delete(context.Background(), id); err != ErrBlobNotFound {
				t.Errorf("Delete: expected ErrBlobNotFound, got %v", err)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			put := seedBlob(t, store, "visit-1", "scan.pdf", "application/pdf", "%PDF-1.4")
			if err := store.Delete(context.Background(), put.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Stat(context.Background(), put.ID); err != ErrBlobNotFound {
				t.Errorf("expected blob to be gone, got %v", err)
			}
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put(context.Background(), Metadata{ContentType: "text/plain"}, strings.NewReader("x"))
			if err != ErrMissingFileName {
				t.Errorf("expected ErrMissingFileName, got %v", err)
			}
			_, err = store.Put(context.Background(), Metadata{FileName: "a.exe", ContentType: "application/x-msdownload"}, strings.NewReader("x"))
			if err != ErrInvalidContentType {
				t.Errorf("expected ErrInvalidContentType, got %v", err)
			}
		})
	}
}

func TestStore_FileTooLarge(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			big := bytes.NewReader(make([]byte, MaxFileSize+1))
			_, err := store.Put(context.Background(), Metadata{FileName: "huge.pdf", ContentType: "application/pdf"}, big)
			if err != ErrFileTooLarge {
				t.Errorf("expected ErrFileTooLarge, got %v", err)
			}
		})
	}
}

func TestFSStore_Layout(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFSStore(fs, "/data")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	put := seedBlob(t, store, "v", "note.txt", "text/plain", "hello")

	for _, p := range []string{"/data/" + put.ID[:2] + "/" + put.ID, "/data/" + put.ID[:2] + "/" + put.ID + ".json"} {
		if ok, _ := afero.Exists(fs, p); !ok {
			t.Errorf("expected %s to exist", p)
		}
	}
	if ok, _ := afero.Exists(fs, "/data/"+put.ID[:2]+"/"+put.ID+".tmp"); ok {
		t.Error("temporary file left behind")
	}
}

func TestFSStore_RejectsPathLikeIDs(t *testing.T) {
	store, _ := NewFSStore(afero.NewMemMapFs(), "/data")
	if _, err := store.Stat(context.Background(), "../../etc/passwd"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := store.Put(context.Background(), Metadata{FileName: fmt.Sprintf("f%d.txt", i), ContentType: "text/plain"}, strings.NewReader("data"))
			if err != nil {
				t.Errorf("Put: %v", err)
				return
			}
			if _, err := store.Stat(context.Background(), meta.ID); err != nil {
				t.Errorf("Stat: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}
