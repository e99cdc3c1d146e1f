// Package storage uploads avatar images to object storage and maps stored
// objects to their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/princinho/eldercarebackend/config"
)

// AvatarStore is implemented by every object storage backend.
type AvatarStore interface {
	// Put stores body under objectName and returns its public URL.
	Put(ctx context.Context, objectName, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, objectName string) error
	// ObjectName reverses Put's public URL. It reports false for URLs this
	// store did not produce, such as the default placeholder avatar.
	ObjectName(publicURL string) (string, bool)
}

// New builds the backend selected by cfg.Backend. An empty backend returns
// a nil store, which disables uploads.
func New(ctx context.Context, cfg config.AvatarConfig) (AvatarStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryStore(""), nil
	case "r2":
		s, err := NewR2Store(ctx, R2Options{
			Bucket:       cfg.R2Bucket,
			AccessKeyID:  cfg.R2AccessKeyID,
			SecretKey:    cfg.R2SecretKey,
			Endpoint:     cfg.R2Endpoint,
			PublicDomain: cfg.R2PublicDomain,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		s, err := NewGCSStore(ctx, cfg.GCSBucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown avatar storage backend %q", cfg.Backend)
	}
}

// AvatarPrefix is the folder holding every avatar uploaded for userID.
func AvatarPrefix(userID string) string {
	return "avatars/" + userID + "/"
}

// AvatarObjectName builds a unique object name for a user's avatar.
func AvatarObjectName(userID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s%d-%s%s", AvatarPrefix(userID), time.Now().UTC().Unix(), uuid.New().String(), ext)
}
