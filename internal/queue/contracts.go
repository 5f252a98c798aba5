package queue

import (
	"context"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

// Producer sends generation jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives generation jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}
