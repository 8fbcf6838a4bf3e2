package apiv1

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/infra/logging"
)

const storeTimeoutMessage = "the request timed out before completing; validate the license before retrying"

// writeError maps err onto the HTTP error taxonomy. Store failures never leak their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		limitErr *domain.ActivationLimitError
		rateErr  *domain.RateLimitError
		valErrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &rateErr):
		writeRetryAfter(w, rateErr.ResetAt)
		api.Fail(w, r, http.StatusTooManyRequests, api.CodeRateLimited, "too many requests", map[string]any{
			"reset_at": rateErr.ResetAt.UTC().Format(time.RFC3339),
		})
	case errors.As(err, &limitErr):
		api.Fail(w, r, http.StatusForbidden, api.CodeActivationLimit, "activation limit reached", map[string]any{
			"remaining_slots":  limitErr.RemainingSlots(),
			"activation_limit": limitErr.Limit,
		})
	case errors.As(err, &valErrs):
		api.Fail(w, r, http.StatusBadRequest, api.CodeInvalidFormat, validationMessage(valErrs), nil)
	case errors.Is(err, errBadBody):
		api.Fail(w, r, http.StatusBadRequest, api.CodeInvalidFormat, err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidLicenseKey):
		api.Fail(w, r, http.StatusBadRequest, api.CodeInvalidFormat, "invalid license key format", nil)
	case errors.Is(err, domain.ErrInvalidDeviceID):
		api.Fail(w, r, http.StatusBadRequest, api.CodeInvalidFormat, "invalid device id format", nil)
	case errors.Is(err, domain.ErrInvalidFormat), errors.Is(err, domain.ErrInvalidArgument):
		api.Fail(w, r, http.StatusBadRequest, api.CodeInvalidFormat, "invalid request", nil)
	case errors.Is(err, domain.ErrLicenseNotFound):
		api.Fail(w, r, http.StatusNotFound, api.CodeLicenseNotFound, "license not found", nil)
	case errors.Is(err, domain.ErrDeviceNotFound):
		api.Fail(w, r, http.StatusNotFound, api.CodeDeviceNotFound, "device not found", nil)
	case errors.Is(err, domain.ErrNotFound):
		api.Fail(w, r, http.StatusNotFound, api.CodeNotFound, "not found", nil)
	case errors.Is(err, domain.ErrLicenseExpired):
		api.Fail(w, r, http.StatusForbidden, api.CodeLicenseExpired, "license expired", nil)
	case errors.Is(err, domain.ErrLicenseRevoked):
		api.Fail(w, r, http.StatusForbidden, api.CodeLicenseRevoked, "license revoked", nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		api.Fail(w, r, http.StatusConflict, api.CodeInvalidTransition, "device is not in a state that allows this change", nil)
	case errors.Is(err, domain.ErrAlreadyExists):
		api.Fail(w, r, http.StatusConflict, api.CodeConflict, "already exists", nil)
	case errors.Is(err, domain.ErrUnauthorized):
		api.Fail(w, r, http.StatusUnauthorized, api.CodeUnauthorized, "authentication required", nil)
	case errors.Is(err, domain.ErrForbidden):
		api.Fail(w, r, http.StatusForbidden, api.CodeForbidden, "forbidden", nil)
	case errors.Is(err, domain.ErrStoreTimeout):
		api.Fail(w, r, http.StatusServiceUnavailable, api.CodeStoreTimeout, storeTimeoutMessage, nil)
	case errors.Is(err, domain.ErrStoreUnavailable):
		api.Fail(w, r, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "service temporarily unavailable", nil)
	case errors.Is(err, domain.ErrKeyGenerationExhausted):
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("license key generation exhausted")
		api.Fail(w, r, http.StatusInternalServerError, api.CodeInternal, "internal error", nil)
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		api.Fail(w, r, http.StatusInternalServerError, api.CodeInternal, "internal error", nil)
	}
}

func writeRetryAfter(w http.ResponseWriter, resetAt time.Time) {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
