package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/audit"
	"github.com/hearthdocs/thumbnail-service/internal/docs"
	"github.com/hearthdocs/thumbnail-service/internal/domain"
	"github.com/hearthdocs/thumbnail-service/internal/metrics"
	"github.com/hearthdocs/thumbnail-service/internal/storage"
)

// ErrObjectMissing signals that no rendered object exists at the derived key.
// The read path treats it as "needs generation", not as a request failure.
var ErrObjectMissing = errors.New("thumbnail object missing")

// SignedThumbnail is a granted access to one rendered variant.
type SignedThumbnail struct {
	URL        string
	TTL        time.Duration
	Variant    domain.Variant
	SourceHash string
	StorageKey string
}

// Issuer grants time-limited read access to rendered thumbnails: authorize,
// resolve the content version, verify existence, sign, audit.
type Issuer struct {
	directory docs.Directory
	store     storage.ObjectStore
	checker   *storage.Checker
	sink      audit.Sink
	metrics   *metrics.Collector
	logger    *log.Logger
	ttl       time.Duration
}

func NewIssuer(
	directory docs.Directory,
	store storage.ObjectStore,
	sink audit.Sink,
	collector *metrics.Collector,
	logger *log.Logger,
	ttl time.Duration,
) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{
		directory: directory,
		store:     store,
		checker:   storage.NewChecker(store),
		sink:      sink,
		metrics:   collector,
		logger:    logger,
		ttl:       ttl,
	}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// IssueURL runs the grant pipeline for one (user, document, variant).
// Authorization fails closed: an erroring access check is a denial.
func (i *Issuer) IssueURL(ctx context.Context, userID, documentID string, variant domain.Variant) (*SignedThumbnail, error) {
	if !domain.IsSupportedVariant(int(variant)) {
		return nil, domain.NewError(domain.CodeInvalidVariant, fmt.Sprintf("unsupported variant %d", variant))
	}

	doc, err := i.directory.GetDocument(ctx, documentID, userID)
	if err != nil || doc == nil {
		return nil, domain.NewError(domain.CodeDocumentNotFound, "document not found")
	}

	allowed, err := i.directory.CanAccessDocument(ctx, userID, documentID)
	if err != nil {
		if i.logger != nil {
			i.logger.Printf("access check errored, denying user=%s document=%s err=%v", userID, documentID, err)
		}
		return nil, domain.NewError(domain.CodeAccessDenied, "access denied")
	}
	if !allowed {
		return nil, domain.NewError(domain.CodeAccessDenied, "access denied")
	}

	sourceHash := i.ResolveSourceHash(doc)
	key := storage.ThumbnailKey(documentID, variant, sourceHash)

	exists, err := i.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("existence probe: %w", err)
	}
	if !exists {
		return nil, ErrObjectMissing
	}

	url, err := i.store.SignedURL(ctx, key, i.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign url for %s: %w", key, err)
	}
	i.metrics.SignedURLGranted()

	// Audit is best-effort: a sink failure never voids the grant.
	if i.sink != nil {
		if auditErr := i.sink.ThumbnailAccessRequested(ctx, audit.AccessGrant{
			UserID:     userID,
			DocumentID: documentID,
			Variant:    variant,
			SourceHash: sourceHash,
			StorageKey: key,
			TTL:        i.ttl,
		}); auditErr != nil && i.logger != nil {
			i.logger.Printf("audit sink failed user=%s document=%s err=%v", userID, documentID, auditErr)
		}
	}

	return &SignedThumbnail{
		URL:        url,
		TTL:        i.ttl,
		Variant:    variant,
		SourceHash: sourceHash,
		StorageKey: key,
	}, nil
}

// ResolveSourceHash returns the document's canonical content version, or a
// deterministic surrogate derived from stable attributes when it is absent.
// The surrogate keeps cache keys stable across repeat requests; every use is
// logged so the canonical hash can be backfilled upstream.
func (i *Issuer) ResolveSourceHash(doc *domain.Document) string {
	if doc.SourceHash != "" {
		return doc.SourceHash
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", doc.StoragePath, doc.LastModified.Unix())))
	surrogate := "fb-" + hex.EncodeToString(sum[:])[:16]
	if i.logger != nil {
		i.logger.Printf("degraded: document %s missing source hash, using surrogate %s", doc.ID, surrogate)
	}
	return surrogate
}
