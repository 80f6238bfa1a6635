// Package blobstore stores the photos attached to appointments. Files are
// written under a single directory with a timestamp-prefixed name and served
// back statically under /uploads.
package blobstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	ErrPhotoNotFound      = errors.New("photo not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only image uploads are allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the largest accepted photo in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// AllowedContentTypes lists the sniffed MIME types accepted as photos.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// PhotoStore persists uploaded photos and returns the stored file name.
type PhotoStore interface {
	Save(ctx context.Context, fileName string, content io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
}

const (
	// maxNameBytes is the usual filesystem limit on one path component.
	maxNameBytes = 255
	// collisionSuffix is the room kept for the "-N" DiskStore appends.
	collisionSuffix = len("-99")
	// maxExtBytes bounds the extension kept when a name is shortened.
	maxExtBytes = 16
)

// StoredName builds the on-disk name for an upload: the upload time in unix
// milliseconds, a dash, and the base of the client-supplied name. Long names
// are cut on a rune boundary, keeping the extension, so that the result plus
// a collision suffix fits in maxNameBytes.
func StoredName(now time.Time, original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '/' || r == ':':
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "photo"
	}
	prefix := fmt.Sprintf("%d-", now.UnixMilli())
	return prefix + shorten(base, maxNameBytes-collisionSuffix-len(prefix))
}

func shorten(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtBytes {
		ext = ""
	}
	stem := truncateUTF8(strings.TrimSuffix(name, ext), limit-len(ext))
	if stem == "" {
		stem = "photo"
	}
	return stem + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// sniff reads enough of r to detect its content type and returns a reader
// that replays the consumed bytes.
func sniff(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF {
		return "", nil, fmt.Errorf("reading content: %w", err)
	}
	return http.DetectContentType(head), br, nil
}

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore writes photos into a directory on the local filesystem.
type DiskStore struct {
	dir string
	now func() time.Time
}

// NewDiskStore creates dir if needed and returns a store writing into it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Save validates and writes content. A name collision within the same
// millisecond gets a numeric suffix rather than overwriting.
func (s *DiskStore) Save(ctx context.Context, fileName string, content io.Reader) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", ErrMissingFileName
	}

	ctype, r, err := sniff(content)
	if err != nil {
		return "", err
	}
	if !AllowedContentTypes[ctype] {
		return "", ErrInvalidContentType
	}

	base := StoredName(s.now(), fileName)
	ext := filepath.Ext(base)
	name := base
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	for i := 1; errors.Is(err, os.ErrExist) && i < 100; i++ {
		name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), i, ext)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxFileSize+1))
	closeErr := f.Close()
	if err == nil && n > MaxFileSize {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filepath.Join(s.dir, name))
		if errors.Is(err, ErrFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write photo: %w", err)
	}

	return name, nil
}

// Delete removes a stored photo. It is used to undo a save when the record
// referencing it could not be written.
func (s *DiskStore) Delete(_ context.Context, name string) error {
	if name == "" || name != filepath.Base(name) {
		return ErrPhotoNotFound
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrPhotoNotFound
	}
	return err
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe PhotoStore for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	photos map[string][]byte
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{photos: make(map[string][]byte), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", ErrMissingFileName
	}
	ctype, r, err := sniff(content)
	if err != nil {
		return "", err
	}
	if !AllowedContentTypes[ctype] {
		return "", ErrInvalidContentType
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	base := StoredName(s.now(), fileName)
	name := base
	for i := 1; s.photos[name] != nil; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	s.photos[name] = data
	return name, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[name]; !ok {
		return ErrPhotoNotFound
	}
	delete(s.photos, name)
	return nil
}

// Get returns a stored photo's bytes.
func (s *MemoryStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.photos[name]
	return data, ok
}

// Len returns the number of stored photos.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

// SaveUpload stores a multipart file through store.
func SaveUpload(ctx context.Context, store PhotoStore, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxFileSize {
		return "", ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return store.Save(ctx, fh.Filename, f)
}
