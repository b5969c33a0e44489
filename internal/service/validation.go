package service

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name so details match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// fails only for an empty tag or nil func
	_ = v.RegisterValidation("sender", func(fl validator.FieldLevel) bool {
		return types.Sender(fl.Field().String()).Valid()
	})
	return v
}

// ValidateStruct checks the validate tags of s and converts failures into a
// VALIDATION_FAILED error keyed by JSON field name.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return apperrors.NewInternalError("validation failed", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeFieldError(fe)
	}
	return apperrors.NewValidationError(fields)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "sender":
		return fmt.Sprintf("must be one of [%s %s]", types.SenderUser, types.SenderAI)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
