package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/richxcame/ride-booking/pkg/models"
)

var (
	// Validate is the global validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Report fields by their JSON names so errors line up with request bodies.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = Validate.RegisterValidation("vehicle_class", validateVehicleClass)
	_ = Validate.RegisterValidation("accessibility_option", validateAccessibilityOption)
	_ = Validate.RegisterValidation("driver_preference", validateDriverPreference)
	_ = Validate.RegisterValidation("promo_code", validatePromoCode)
}

// ValidationError collects per-field messages.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

// NewValidationError converts validator output into a ValidationError.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{Errors: make(map[string]string, len(errs))}
	for _, fe := range errs {
		out.AddError(fe.Field(), messageFor(fe))
	}
	return out
}

// AddError records the first message for field.
func (e *ValidationError) AddError(field, message string) {
	if e.Errors == nil {
		e.Errors = make(map[string]string)
	}
	if _, exists := e.Errors[field]; !exists {
		e.Errors[field] = message
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// GetFieldError returns the message recorded for field.
func (e *ValidationError) GetFieldError(field string) string {
	return e.Errors[field]
}

// Fields returns the failing field names in sorted order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, f := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Errors[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateStruct validates a struct and returns a ValidationError if validation fails
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "vehicle_class":
		return "is not a known vehicle class"
	case "accessibility_option":
		return "is not a known accessibility option"
	case "driver_preference":
		return "is not a known driver preference"
	case "promo_code":
		return "must be 3-32 letters, digits, '-' or '_'"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func validateVehicleClass(fl validator.FieldLevel) bool {
	return models.VehicleClass(fl.Field().String()).Valid()
}

func validateAccessibilityOption(fl validator.FieldLevel) bool {
	value := models.AccessibilityOption(fl.Field().String())
	for _, known := range models.AccessibilityOptions {
		if value == known {
			return true
		}
	}
	return false
}

func validateDriverPreference(fl validator.FieldLevel) bool {
	value := models.DriverPreference(fl.Field().String())
	for _, known := range models.DriverPreferences {
		if value == known {
			return true
		}
	}
	return false
}

// validatePromoCode accepts the character set the ride API issues codes in.
func validatePromoCode(fl validator.FieldLevel) bool {
	code := strings.TrimSpace(fl.Field().String())
	if len(code) < 3 || len(code) > 32 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
