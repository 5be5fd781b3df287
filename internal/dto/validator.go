package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/madrasah-api/internal/models"
)

// NewValidator returns a validator with the enum tags used by request payloads
// registered: student_status, attendance_status, fee_type and payment_method.
func NewValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "student_status", func(fl validator.FieldLevel) bool {
		return models.StudentStatus(fl.Field().String()).Valid()
	})
	mustRegister(v, "attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	mustRegister(v, "fee_type", func(fl validator.FieldLevel) bool {
		return models.FeeType(fl.Field().String()).Valid()
	})
	mustRegister(v, "payment_method", func(fl validator.FieldLevel) bool {
		return models.PaymentMethod(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}
