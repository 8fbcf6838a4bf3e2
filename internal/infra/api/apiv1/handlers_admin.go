package apiv1

import (
	"net/http"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/usecase"
)

// POST /api/v1/admin/licenses
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.issuance.Issue(r.Context(), usecase.IssueRequest{
		OwnerID:         req.OwnerID,
		ProductID:       req.ProductID,
		ActivationLimit: req.ActivationLimit,
		ExpiresAt:       req.ExpiresAt,
		OrderID:         req.OrderID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	api.OK(w, r, status, map[string]any{
		"license": res.License.AdminView(),
		"created": res.Created,
	})
}

// GET /api/v1/admin/licenses/{key}
func (s *Server) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.issuance.GetLicense(r.Context(), p.LicenseKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	devices := make([]model.AdminDeviceView, 0, len(d.Devices))
	for _, dev := range d.Devices {
		devices = append(devices, dev.AdminView())
	}
	api.OK(w, r, http.StatusOK, map[string]any{
		"license": d.License.AdminView(),
		"devices": devices,
	})
}

// POST /api/v1/admin/licenses/{key}/revoke
func (s *Server) handleRevokeLicense(w http.ResponseWriter, r *http.Request) {
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lic, err := s.issuance.RevokeLicense(r.Context(), p.LicenseKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{"license": lic.AdminView()})
}

// POST /api/v1/admin/licenses/{key}/devices/{deviceID}/deactivate
func (s *Server) handleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.activation.DeactivateDevice(r.Context(), p.LicenseKey, p.DeviceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{"message": "device deactivated"})
}

// DELETE /api/v1/admin/licenses/{key}/devices/{deviceID}
func (s *Server) handleAdminRevokeDevice(w http.ResponseWriter, r *http.Request) {
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.activation.RevokeDeviceAsAdmin(r.Context(), p.LicenseKey, p.DeviceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{"message": "device revoked"})
}
