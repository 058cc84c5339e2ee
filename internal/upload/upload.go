// Package upload validates and stores images accepted by POST /api/analyze.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMissingFile     = errors.New("no image file provided")
	ErrUnsupportedType = errors.New("only image files are allowed")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidRef      = errors.New("invalid image reference")
)

// allowedExtensions are matched case-insensitively against the original file name.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	repeatedUnders  = regexp.MustCompile(`_+`)
)

// File describes a stored upload.
type File struct {
	// Ref is the stored file name, relative to the upload directory.
	Ref          string
	OriginalName string
	Size         int64
}

// Storage writes uploads into a single directory under random names.
type Storage struct {
	dir      string
	maxBytes int64
}

// NewStorage creates dir if needed.
func NewStorage(dir string, maxBytes int64) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Storage{dir: dir, maxBytes: maxBytes}, nil
}

func (s *Storage) Dir() string { return s.dir }

func (s *Storage) MaxBytes() int64 { return s.maxBytes }

// CheckName returns the lower-cased extension of filename or ErrUnsupportedType.
func CheckName(filename string) (string, error) {
	if filename == "" {
		return "", ErrMissingFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ext, nil
}

// SanitizeName makes filename safe to log.
func SanitizeName(filename string) string {
	return repeatedUnders.ReplaceAllString(unsafeNameChars.ReplaceAllString(filename, "_"), "_")
}

// Save validates filename and copies r to <uuid><ext>. Partial files are
// removed when the content exceeds the size limit or the copy fails.
func (s *Storage) Save(filename string, r io.Reader) (*File, error) {
	ext, err := CheckName(filename)
	if err != nil {
		return nil, err
	}

	ref := uuid.NewString() + ext
	path := filepath.Join(s.dir, ref)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	case n > s.maxBytes:
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	case closeErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	}

	return &File{Ref: ref, OriginalName: SanitizeName(filename), Size: n}, nil
}

// Read loads a stored upload by reference.
func (s *Storage) Read(ref string) ([]byte, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", ref, err)
	}
	return data, nil
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *Storage) Remove(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", ref, err)
	}
	return nil
}
