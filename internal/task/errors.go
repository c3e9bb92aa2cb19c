package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedRecord is wrapped when a stored record does not satisfy the
// task schema.
var ErrMalformedRecord = errors.New("malformed task record")

// ValidationError is detected before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// validateStruct runs the validate tags of s and converts the first
// failure to a *ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	case "oneof":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be one of %s, got %q", field, e.Param(), e.Value())}
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s failed %s validation", field, e.Tag())}
	}
}
