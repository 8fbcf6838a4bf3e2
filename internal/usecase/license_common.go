package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/licensekey"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/logging"
)

// LicenseSettings carries the license tunables from config.
type LicenseSettings struct {
	StoreTimeout           time.Duration
	EnforceChecksum        bool
	KeyRetryLimit          int
	DefaultActivationLimit int
	Dev                    bool // disables log redaction
}

func (s LicenseSettings) withDefaults() LicenseSettings {
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = 5 * time.Second
	}
	if s.KeyRetryLimit <= 0 {
		s.KeyRetryLimit = 5
	}
	if s.DefaultActivationLimit <= 0 {
		s.DefaultActivationLimit = 3
	}
	return s
}

// checkKey normalizes and validates a license key without touching the store.
func (s LicenseSettings) checkKey(raw string) (string, error) {
	key := licensekey.Normalize(raw)
	if !licensekey.WellFormed(key) {
		return "", domain.ErrInvalidLicenseKey
	}
	if s.EnforceChecksum && !licensekey.Verify(key) {
		return "", domain.ErrInvalidLicenseKey
	}
	return key, nil
}

func checkDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !model.ValidDeviceID(id) {
		return "", domain.ErrInvalidDeviceID
	}
	return id, nil
}

// domainErrors pass through storeErr untouched.
var domainErrors = []error{
	domain.ErrInvalidFormat,
	domain.ErrInvalidArgument,
	domain.ErrNotFound,
	domain.ErrStatusRejected,
	domain.ErrActivationLimitReached,
	domain.ErrInvalidTransition,
	domain.ErrRateLimited,
	domain.ErrAlreadyExists,
	domain.ErrDuplicateKey,
	domain.ErrKeyGenerationExhausted,
	domain.ErrStoreUnavailable,
	domain.ErrUnauthorized,
	domain.ErrForbidden,
}

// storeErr keeps business errors as they are and turns everything else into
// ErrStoreUnavailable (or ErrStoreTimeout when the call ran out of time).
// The raw error is logged, never returned.
func storeErr(ctx context.Context, log *zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, de := range domainErrors {
		if errors.Is(err, de) {
			return err
		}
	}
	l := logging.With(ctx, log)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		l.Warn().Err(err).Str("op", op).Msg("store call timed out")
		return fmt.Errorf("%s: %w", op, domain.ErrStoreTimeout)
	}
	l.Error().Err(err).Str("op", op).Msg("store call failed")
	return fmt.Errorf("%s: %w", op, domain.ErrStoreUnavailable)
}

// resultLabel maps an outcome to a bounded metrics label.
func resultLabel(err error) string {
	var limitErr *domain.ActivationLimitError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &limitErr):
		return "limit_reached"
	case errors.Is(err, domain.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, domain.ErrLicenseNotFound):
		return "license_not_found"
	case errors.Is(err, domain.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, domain.ErrLicenseExpired):
		return "expired"
	case errors.Is(err, domain.ErrLicenseRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrStoreTimeout):
		return "store_timeout"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.LicenseEvent) error { return nil }
func (nopPublisher) Close() error                                      { return nil }

func orNopPublisher(p adapter.EventPublisher) adapter.EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// publish is fire-and-forget: a broker problem never fails the request.
func publish(ctx context.Context, log *zerolog.Logger, p adapter.EventPublisher, ev model.LicenseEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		logging.With(ctx, log).Warn().Err(err).Str("event", string(ev.Type)).Msg("publish license event")
	}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
