package core

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"yardlink/internal/types"
)

// errCodeValidationFailed is the fallback code for constraint failures
// that have no dedicated domain code. Local to the chassis layer.
const errCodeValidationFailed types.ErrorCode = "validation_failed_constraint"

// Validator wraps go-playground/validator with the domain-specific tags
// used by request structs: "parish" for the closed parish set and
// "lawn_size" for the size buckets.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator() *Validator {
	v := validator.New()

	// Registration only fails for a nil function or empty tag.
	_ = v.RegisterValidation("parish", func(fl validator.FieldLevel) bool {
		return types.ValidParish(types.Parish(fl.Field().String()))
	})
	_ = v.RegisterValidation("lawn_size", func(fl validator.FieldLevel) bool {
		switch types.LawnSize(fl.Field().String()) {
		case types.LawnSmall, types.LawnMedium, types.LawnLarge, types.LawnXLarge:
			return true
		}
		return false
	})

	return &Validator{validate: v}
}

// ValidateStruct validates a request struct and maps the first failed
// constraint to a domain error code, with every violation listed in the
// details map.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fmt.Sprintf("failed '%s' constraint", fe.Tag())
	}

	first := fieldErrs[0]
	code := errCodeValidationFailed
	switch first.Tag() {
	case "required":
		code = types.ErrCodeValidationMissingField
	case "parish":
		code = types.ErrCodeValidationInvalidParish
	case "lawn_size":
		code = types.ErrCodeValidationInvalidSize
	}

	return types.NewAppErrorWithDetails(
		code,
		fmt.Sprintf("field %q failed validation", first.Field()),
		nil,
		details,
	)
}
