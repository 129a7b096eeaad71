package validator

import (
	stdErrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/johnquangdev/meeting-minutes/errors"
)

// CustomValidator implements echo.Validator using go-playground/validator
type CustomValidator struct {
	v *validator.Validate
}

// New creates a new CustomValidator instance
func New() *CustomValidator {
	v := validator.New()
	return &CustomValidator{v: v}
}

// Validate performs struct validation. Field failures are reported as an
// INVALID_ARGUMENT AppError with one detail per field.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return err
	}

	appErr := errors.ErrInvalidArgument("Validation failed")
	for _, fe := range fieldErrs {
		appErr = appErr.WithDetail(fe.Field(), describe(fe))
	}
	return appErr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return fmt.Sprintf("must match %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
