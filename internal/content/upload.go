package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize is the upload ceiling for a single image.
const MaxImageSize = 5 * 1024 * 1024

var (
	ErrImageTooLarge = errors.New("Image too large. Maximum size is 5MB.")
	ErrNotAnImage    = errors.New("Please select an image file.")
)

// ValidateImage checks the size ceiling first and then the detected MIME
// type. It returns the MIME type of an accepted image.
func ValidateImage(size int64, data []byte) (string, error) {
	if size > MaxImageSize {
		return "", ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotAnImage
	}
	return mt.String(), nil
}

// NewImageFromFile validates an uploaded file and encodes it as a data URI.
func NewImageFromFile(name string, data []byte, now time.Time) (ImageItem, error) {
	mime, err := ValidateImage(int64(len(data)), data)
	if err != nil {
		return ImageItem{}, err
	}
	return ImageItem{
		ID:     NewImageID(now),
		Base64: DataURI(mime, data),
		Name:   name,
	}, nil
}

// LoadImage reads an image from disk. Oversized files are rejected from
// their stat size without being read.
func LoadImage(path string, now time.Time) (ImageItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ImageItem{}, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > MaxImageSize {
		return ImageItem{}, ErrImageTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageItem{}, fmt.Errorf("read image: %w", err)
	}
	return NewImageFromFile(filepath.Base(path), data, now)
}

// DataURI encodes data as a base64 data URI of the given MIME type.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
