package apiv1

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

type activateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,licensekey"`
	DeviceID   string `json:"device_id" validate:"required,deviceid"`
	DeviceName string `json:"device_name" validate:"max=100"`
	DeviceType string `json:"device_type" validate:"max=50"`
}

type validateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,licensekey"`
	DeviceID   string `json:"device_id" validate:"required,deviceid"`
}

type renameRequest struct {
	DeviceName string `json:"device_name" validate:"required,max=100"`
}

type issueRequest struct {
	OwnerID         string     `json:"owner_id" validate:"required,max=128"`
	ProductID       string     `json:"product_id" validate:"required,max=128"`
	ActivationLimit int        `json:"activation_limit" validate:"gte=0,lte=1000"`
	ExpiresAt       *time.Time `json:"expires_at"`
	OrderID         string     `json:"order_id" validate:"max=128"`
}

type pathParams struct {
	LicenseKey string `json:"license_key" validate:"required,licensekey"`
	DeviceID   string `json:"device_id" validate:"omitempty,deviceid"`
}

const maxBodyBytes = 16 << 10

var errBadBody = errors.New("malformed request body")

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return errBadBody
	}
	return s.validate.Struct(dst)
}
