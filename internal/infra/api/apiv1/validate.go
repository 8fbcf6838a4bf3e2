package apiv1

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tw-license-service/internal/domain/licensekey"
	"tw-license-service/internal/domain/model"
)

// Public device ids are 8 to 64 characters; the engine itself accepts shorter ones.
const minPublicDeviceIDLen = 8

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("licensekey", func(fl validator.FieldLevel) bool {
		return licensekey.WellFormed(licensekey.Normalize(fl.Field().String()))
	})
	_ = v.RegisterValidation("deviceid", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return len(s) >= minPublicDeviceIDLen && model.ValidDeviceID(s)
	})
	return v
}

// validationMessage turns the first failed field into a short client message.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "licensekey":
		return "invalid license key format"
	case "deviceid":
		return "device_id must be 8-64 characters of letters, digits and hyphens"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
