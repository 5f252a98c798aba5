package audit

import (
	"context"
	"log"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

// AccessGrant records one signed-URL issuance.
type AccessGrant struct {
	UserID     string
	DocumentID string
	Variant    domain.Variant
	SourceHash string
	StorageKey string
	TTL        time.Duration
}

// Sink receives access-grant records. Delivery is best-effort: callers must
// never fail a request because the sink errored.
type Sink interface {
	ThumbnailAccessRequested(ctx context.Context, grant AccessGrant) error
}

// LogSink writes grants to the process log.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) ThumbnailAccessRequested(_ context.Context, grant AccessGrant) error {
	if s.logger != nil {
		s.logger.Printf(
			"audit thumbnail_access user=%s document=%s variant=%d source_hash=%s key=%s ttl_s=%d",
			grant.UserID,
			grant.DocumentID,
			grant.Variant,
			grant.SourceHash,
			grant.StorageKey,
			int(grant.TTL.Seconds()),
		)
	}
	return nil
}
