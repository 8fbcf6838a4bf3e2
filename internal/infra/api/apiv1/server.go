// Package apiv1 serves the license HTTP API under /api/v1.
package apiv1

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/usecase"
)

type Server struct {
	activation usecase.ActivationUseCase
	validation usecase.ValidationUseCase
	issuance   usecase.IssuanceUseCase
	guard      *usecase.RateGuard
	auth       *api.AuthManager
	validate   *validator.Validate
	log        *zerolog.Logger
}

func NewServer(
	activation usecase.ActivationUseCase,
	validation usecase.ValidationUseCase,
	issuance usecase.IssuanceUseCase,
	guard *usecase.RateGuard,
	auth *api.AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		activation: activation,
		validation: validation,
		issuance:   issuance,
		guard:      guard,
		auth:       auth,
		validate:   newValidator(),
		log:        &l,
	}
}

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/licenses/activate", s.handleActivate)
		r.Post("/licenses/validate", s.handleValidate)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require(api.RoleOwner))
			r.Get("/me/licenses", s.handleMyLicenses)
			r.Get("/licenses/{key}/devices", s.handleListDevices)
			r.Patch("/licenses/{key}/devices/{deviceID}", s.handleRenameDevice)
			r.Delete("/licenses/{key}/devices/{deviceID}", s.handleRevokeDevice)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Require(api.RoleAdmin))
			r.Post("/licenses", s.handleIssue)
			r.Get("/licenses/{key}", s.handleGetLicense)
			r.Post("/licenses/{key}/revoke", s.handleRevokeLicense)
			r.Post("/licenses/{key}/devices/{deviceID}/deactivate", s.handleDeactivateDevice)
			r.Delete("/licenses/{key}/devices/{deviceID}", s.handleAdminRevokeDevice)
		})
	})
}

// limit applies the rate policy for op and writes the X-RateLimit headers.
// It returns false after writing a 429.
func (s *Server) limit(w http.ResponseWriter, r *http.Request, op usecase.Operation, identifier string) bool {
	d, err := s.guard.Check(r.Context(), op, identifier)
	writeRateHeaders(w, d)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func writeRateHeaders(w http.ResponseWriter, d adapter.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func clientIP(ctx context.Context, r *http.Request) string {
	if ip := logging.ClientIP(ctx); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// pathKey validates the {key} and optional {deviceID} URL parameters.
func (s *Server) pathKey(r *http.Request) (pathParams, error) {
	p := pathParams{
		LicenseKey: chi.URLParam(r, "key"),
		DeviceID:   chi.URLParam(r, "deviceID"),
	}
	return p, s.validate.Struct(p)
}

func owner(r *http.Request) string {
	p, _ := api.PrincipalFrom(r.Context())
	return p.Subject
}
