package events

import (
	"context"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = NoopPublisher{}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.LicenseEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }
