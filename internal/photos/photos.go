// Package photos keeps uploaded application photos on disk.
package photos

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTooLarge    = errors.New("photo exceeds size limit")
	ErrInvalidName = errors.New("invalid photo name")
)

// Store writes photos under dir as <date>/<uuid><ext>.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// New returns a store rooted at dir, creating it when missing.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save copies r to a new file and returns its name relative to the store.
// ext includes the leading dot.
func (s *Store) Save(r io.Reader, ext string) (string, error) {
	dateDir := s.now().UTC().Format("2006-01-02")
	if err := os.MkdirAll(filepath.Join(s.dir, dateDir), 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	name := dateDir + "/" + uuid.New().String() + strings.ToLower(ext)
	full := filepath.Join(s.dir, filepath.FromSlash(name))
	dst, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(full)
		return "", ErrTooLarge
	}
	return name, nil
}

// Path resolves a stored name, refusing anything outside the store.
func (s *Store) Path(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if filepath.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

// Read returns the content of a stored photo.
func (s *Store) Read(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return data, nil
}

// Remove deletes stored photos, ignoring names that no longer exist.
func (s *Store) Remove(names ...string) {
	for _, n := range names {
		if p, err := s.Path(n); err == nil {
			_ = os.Remove(p)
		}
	}
}
