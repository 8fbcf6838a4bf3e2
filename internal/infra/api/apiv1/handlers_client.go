package apiv1

import (
	"net/http"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/usecase"
)

// POST /api/v1/licenses/activate
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if !s.limit(w, r, usecase.OpActivate, clientIP(r.Context(), r)) {
		return
	}
	var req activateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.activation.Activate(r.Context(), req.LicenseKey, req.DeviceID, model.DeviceInfo{
		Name: req.DeviceName,
		Type: req.DeviceType,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{
		"license":               res.License.ClientView(),
		"device":                res.Device.ClientView(),
		"remaining_activations": res.RemainingActivations,
		"already_active":        res.AlreadyActive,
	})
}

// POST /api/v1/licenses/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !s.limit(w, r, usecase.OpValidate, clientIP(r.Context(), r)) {
		return
	}
	var req validateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.validation.Validate(r.Context(), req.LicenseKey, req.DeviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{
		"valid":   true,
		"license": res.License.ClientView(),
		"device":  res.Device.ClientView(),
	})
}
