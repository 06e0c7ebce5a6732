package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/delayq/internal/domain"
)

// Validate checks request DTOs. It knows the callback_type and job_status
// tags in addition to the built-in ones.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("callback_type", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseCallbackType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("job_status", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseStatus(fl.Field().String())
		return err == nil
	})
	return v
}

// FieldErrors flattens validation errors to field -> failed tag.
func FieldErrors(err error) map[string]any {
	fields := map[string]any{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fields
	}
	for _, e := range verrs {
		fields[e.Field()] = "failed " + e.Tag()
	}
	return fields
}
