package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores objects in a bucket with public read access.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// BracketArchiveKey is the object key of a tournament's final bracket.
func BracketArchiveKey(tournamentID uuid.UUID) string {
	return fmt.Sprintf("tournaments/%s/bracket.json", tournamentID)
}
