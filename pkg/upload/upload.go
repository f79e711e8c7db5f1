// Package upload handles product image uploads.
//
// Images are uploaded over plain HTTP POST and parked in temporary
// storage. The handler returns a temp ID; the product form submits that
// ID, and the product handler calls Claim to take ownership of the file.
// Unclaimed files are removed by periodic Cleanup.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNotFound is returned when a temp file doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrUnsupportedType is returned when a file is not an accepted image type.
var ErrUnsupportedType = errors.New("upload: unsupported content type")

// Store is the interface for image storage backends.
type Store interface {
	// Save stores the uploaded image and returns a temp ID.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (tempID string, err error)

	// Claim retrieves and removes a temp file. After claiming, the temp
	// copy is deleted once the returned File is closed.
	Claim(ctx context.Context, tempID string) (*File, error)

	// Cleanup removes temp files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File is a claimed upload.
type File struct {
	// ID is the temp ID the file was claimed with.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the sniffed MIME type.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Path is the local filesystem path, set by DiskStore.
	Path string

	// URL is a remote URL for the image, set by S3Store.
	URL string

	// Reader provides the file contents.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Config holds configuration for the upload handler.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Default: 5MB.
	MaxFileSize int64

	// AllowedTypes is the list of accepted MIME types, checked against
	// the sniffed type, not the client-provided header.
	// Default: common web image formats.
	AllowedTypes []string
}

// DefaultConfig returns a Config accepting web image formats up to 5MB.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  5 * 1024 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}
}

func (c *Config) typeAllowed(contentType string) bool {
	if len(c.AllowedTypes) == 0 {
		return true
	}
	for _, t := range c.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Handler returns an http.Handler for image uploads with the default
// configuration. Mount it on the router: r.Post("/uploads", upload.Handler(store))
//
// The handler expects a multipart form with an "image" field and
// responds with JSON:
//
//	{"temp_id": "abc123"}
func Handler(store Store) http.Handler {
	return HandlerWithConfig(store, DefaultConfig())
}

// HandlerWithConfig returns an upload handler with custom configuration.
func HandlerWithConfig(store Store, config *Config) http.Handler {
	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxFileSize
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Limit the body before parsing so oversized requests fail fast.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "No image provided", http.StatusBadRequest)
			return
		}
		defer file.Close()

		// Sniff the real type; the part header is client-controlled.
		contentType, reader, err := sniffType(file)
		if err != nil {
			http.Error(w, "Unreadable upload", http.StatusBadRequest)
			return
		}
		if !config.typeAllowed(contentType) {
			http.Error(w, "Unsupported image type", http.StatusUnsupportedMediaType)
			return
		}

		tempID, err := store.Save(r.Context(), header.Filename, contentType, header.Size, reader)
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Upload failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"temp_id": tempID,
		})
	})
}

// CleanupLoop calls store.Cleanup every interval until ctx is
// cancelled. Run it alongside any long-lived Store so abandoned temp
// files don't accumulate.
//
//	go upload.CleanupLoop(ctx, store, 15*time.Minute, time.Hour, logger)
func CleanupLoop(ctx context.Context, store Store, interval, maxAge time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, maxAge); err != nil {
				logger.Warn("upload cleanup failed", "error", err)
			}
		}
	}
}

// sniffType detects the MIME type of the first bytes of r and returns
// a reader that replays them.
func sniffType(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), r), nil
}
