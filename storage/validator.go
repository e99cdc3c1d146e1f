package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/princinho/eldercarebackend/config"
)

// sniffLen matches the amount of header mimetype inspects by default.
const sniffLen = 3072

// FileValidator checks uploads by size, extension and sniffed content type.
type FileValidator struct {
	allowedExt  map[string]bool
	allowedMime map[string]bool
	maxSize     int64
}

func NewImageValidator(cfg config.AvatarConfig) *FileValidator {
	allowedExt := make(map[string]bool)
	for _, ext := range cfg.AllowedExtensions {
		if ext = strings.TrimSpace(strings.ToLower(ext)); ext != "" {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			allowedExt[ext] = true
		}
	}

	allowedMime := make(map[string]bool)
	for _, m := range cfg.AllowedMimeTypes {
		if m = strings.TrimSpace(strings.ToLower(m)); m != "" {
			allowedMime[m] = true
		}
	}

	sizeMB := cfg.MaxUploadSizeMB
	if sizeMB <= 0 {
		sizeMB = 5
	}

	return &FileValidator{
		allowedExt:  allowedExt,
		allowedMime: allowedMime,
		maxSize:     int64(sizeMB) << 20,
	}
}

// MaxSize is the largest accepted upload in bytes.
func (v *FileValidator) MaxSize() int64 { return v.maxSize }

// Validate returns the detected MIME type. r is rewound before returning.
func (v *FileValidator) Validate(filename string, size int64, r io.ReadSeeker) (string, error) {
	if size > v.maxSize {
		return "", fmt.Errorf("file too large (max %d MB)", v.maxSize>>20)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !v.allowedExt[ext] {
		return "", fmt.Errorf("invalid file extension")
	}

	buffer := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read file header")
	}
	if n == 0 {
		return "", fmt.Errorf("empty file")
	}
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file reader")
	}

	detectedMime, _, _ := strings.Cut(strings.ToLower(mimetype.Detect(buffer[:n]).String()), ";")
	if !v.allowedMime[detectedMime] {
		return "", fmt.Errorf("invalid file type")
	}
	return detectedMime, nil
}
