package apiv1

import (
	"net/http"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/infra/api"
	"tw-license-service/internal/usecase"
)

// GET /api/v1/me/licenses
func (s *Server) handleMyLicenses(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if !s.limit(w, r, usecase.OpList, ownerID) {
		return
	}
	ls, err := s.issuance.ListOwnerLicenses(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]model.OwnerLicenseView, 0, len(ls))
	for _, l := range ls {
		items = append(items, l.OwnerView())
	}
	api.OK(w, r, http.StatusOK, map[string]any{"licenses": items})
}

// GET /api/v1/licenses/{key}/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if !s.limit(w, r, usecase.OpList, ownerID) {
		return
	}
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	devices, err := s.activation.ListDevices(r.Context(), p.LicenseKey, ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]model.OwnerDeviceView, 0, len(devices))
	for _, d := range devices {
		items = append(items, d.OwnerView())
	}
	api.OK(w, r, http.StatusOK, map[string]any{"devices": items})
}

// PATCH /api/v1/licenses/{key}/devices/{deviceID}
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if !s.limit(w, r, usecase.OpRename, ownerID) {
		return
	}
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req renameRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.activation.RenameDevice(r.Context(), p.LicenseKey, p.DeviceID, ownerID, req.DeviceName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{"device": d.OwnerView()})
}

// DELETE /api/v1/licenses/{key}/devices/{deviceID}
func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if !s.limit(w, r, usecase.OpRevoke, ownerID) {
		return
	}
	p, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.activation.RevokeDevice(r.Context(), p.LicenseKey, p.DeviceID, ownerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	api.OK(w, r, http.StatusOK, map[string]any{"message": "device revoked"})
}
