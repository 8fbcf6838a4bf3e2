package api

import (
	"net/http"

	"github.com/go-chi/render"
)

// Error codes carried in the "code" field of error responses.
const (
	CodeInvalidFormat     = "INVALID_FORMAT"
	CodeLicenseNotFound   = "LICENSE_NOT_FOUND"
	CodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	CodeNotFound          = "NOT_FOUND"
	CodeLicenseExpired    = "LICENSE_EXPIRED"
	CodeLicenseRevoked    = "LICENSE_REVOKED"
	CodeActivationLimit   = "ACTIVATION_LIMIT_REACHED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeStoreTimeout      = "STORE_TIMEOUT"
	CodeInternal          = "INTERNAL"
)

// OK writes {"status":"success", ...data}.
func OK(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["status"] = "success"
	render.Status(r, status)
	render.JSON(w, r, body)
}

// Fail writes {"status":"error","message":...,"code":...} plus any extra fields.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string, extra map[string]any) {
	body := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		body[k] = v
	}
	body["status"] = "error"
	body["message"] = message
	if code != "" {
		body["code"] = code
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}
