package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the narrow surface this subsystem consumes from the storage
// provider: an existence probe, object IO for the rendering worker, and
// time-limited read-only URL signing.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ThumbnailKey derives the deterministic storage key for a rendered variant.
// The content version is part of the key: new content supersedes old objects
// instead of overwriting them.
func ThumbnailKey(documentID string, variant domain.Variant, sourceHash string) string {
	return fmt.Sprintf("thumbnails/%s/%d/%s.jpg", documentID, int(variant), sourceHash)
}

// Checker answers existence questions about rendered variants.
type Checker struct {
	store ObjectStore
}

func NewChecker(store ObjectStore) *Checker {
	return &Checker{store: store}
}

func (c *Checker) Exists(ctx context.Context, documentID string, variant domain.Variant, sourceHash string) (bool, string, error) {
	key := ThumbnailKey(documentID, variant, sourceHash)
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, key, fmt.Errorf("existence probe for %s: %w", key, err)
	}
	return exists, key, nil
}

// Missing returns the variants without a rendered object. The first reader of
// a never-rendered pair uses this to warm all enumerated variants in one job.
func (c *Checker) Missing(ctx context.Context, documentID, sourceHash string, variants []domain.Variant) ([]domain.Variant, error) {
	missing := make([]domain.Variant, 0, len(variants))
	for _, variant := range variants {
		exists, _, err := c.Exists(ctx, documentID, variant, sourceHash)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, variant)
		}
	}
	return missing, nil
}
