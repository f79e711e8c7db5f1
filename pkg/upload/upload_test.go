package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// pngHeader is the 8-byte PNG signature plus padding so the sniffer
// reports image/png.
var pngHeader = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandlerSaveAndClaim(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	h := Handler(store)

	body, contentType := multipartBody(t, "image", "tee.png", pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	tempID := resp["temp_id"]
	if tempID == "" {
		t.Fatal("empty temp_id")
	}

	file, err := store.Claim(context.Background(), tempID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	defer file.Close()

	if file.Filename != "tee.png" {
		t.Errorf("Filename = %q, want tee.png", file.Filename)
	}
	if file.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", file.ContentType)
	}
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		t.Fatalf("read claimed file: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Error("claimed content does not match upload")
	}
}

func TestHandlerRejectsNonImage(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	h := Handler(store)

	body, contentType := multipartBody(t, "image", "notes.txt", []byte("plain text, not an image"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestHandlerMissingField(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	h := Handler(store)

	body, contentType := multipartBody(t, "attachment", "tee.png", pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDiskStoreSizeLimit(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	_, err = store.Save(context.Background(), "big.png", "image/png", -1,
		strings.NewReader(strings.Repeat("x", 64)))
	if err != ErrTooLarge {
		t.Errorf("Save err = %v, want ErrTooLarge", err)
	}
}

func TestDiskStoreClaimUnknown(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if _, err := store.Claim(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("Claim err = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreClaimDeletesOnClose(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	tempID, err := store.Save(context.Background(), "tee.png", "image/png", int64(len(pngHeader)),
		bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	file, err := store.Claim(context.Background(), tempID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	file.Close()

	if _, err := os.Stat(filepath.Join(dir, tempID)); !os.IsNotExist(err) {
		t.Error("temp file still on disk after close")
	}
	if _, err := store.Claim(context.Background(), tempID); err != ErrNotFound {
		t.Errorf("second Claim err = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreClaimSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	tempID, err := store.Save(context.Background(), "tee.png", "image/png", int64(len(pngHeader)),
		bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store has no in-memory state but should find the file
	// through its on-disk metadata.
	fresh, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	file, err := fresh.Claim(context.Background(), tempID)
	if err != nil {
		t.Fatalf("Claim after restart: %v", err)
	}
	defer file.Close()

	if file.Filename != "tee.png" {
		t.Errorf("Filename = %q, want tee.png", file.Filename)
	}
}

// countingStore records Cleanup calls.
type countingStore struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
}

func (c *countingStore) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	return "", nil
}

func (c *countingStore) Claim(ctx context.Context, tempID string) (*File, error) {
	return nil, ErrNotFound
}

func (c *countingStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.maxAge = maxAge
	return nil
}

func (c *countingStore) snapshot() (int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.maxAge
}

func TestCleanupLoop(t *testing.T) {
	store := &countingStore{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		CleanupLoop(ctx, store, 5*time.Millisecond, time.Hour, nil)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls, _ := store.snapshot(); calls >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Cleanup never called twice")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CleanupLoop did not stop on cancel")
	}

	if _, maxAge := store.snapshot(); maxAge != time.Hour {
		t.Errorf("maxAge = %v, want 1h", maxAge)
	}
}

func TestDiskStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	tempID, err := store.Save(context.Background(), "tee.png", "image/png", int64(len(pngHeader)),
		bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Age the file past the cutoff.
	old := time.Now().Add(-2 * time.Hour)
	os.Chtimes(filepath.Join(dir, tempID), old, old)
	store.mu.Lock()
	store.files[tempID].CreatedAt = old
	store.mu.Unlock()

	if err := store.Cleanup(context.Background(), time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := store.Claim(context.Background(), tempID); err != ErrNotFound {
		t.Errorf("Claim after cleanup err = %v, want ErrNotFound", err)
	}
}
