package adapter

import (
	"context"

	"tw-license-service/internal/domain/model"
)

// EventPublisher ships license events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.LicenseEvent) error
	Close() error
}
