package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	numberPattern  = regexp.MustCompile(`[0-9]`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>_\-+=]`)
	amountPattern  = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// Validator wraps the validator library with custom validation rules
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()

	// Report json field names so errors line up with form fields
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("strong_password", validateStrongPassword)
	_ = v.RegisterValidation("safe_string", validateSafeString)
	_ = v.RegisterValidation("iana_timezone", validateTimezone)
	_ = v.RegisterValidation("amount", validateAmount)

	return &Validator{validate: v}
}

// FieldErrors maps a json field name to a human readable problem
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate validates a struct and returns FieldErrors if validation fails
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; !seen {
			out[fe.Field()] = message(fe)
		}
	}
	return out
}

// Result is either a valid record or the field errors that rejected it
type Result[T any] struct {
	record T
	errors FieldErrors
}

// Check validates record with v
func Check[T any](v *Validator, record T) Result[T] {
	err := v.Validate(record)
	if err == nil {
		return Result[T]{record: record}
	}
	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		return Result[T]{errors: fieldErrs}
	}
	return Result[T]{errors: FieldErrors{"_": err.Error()}}
}

// Valid reports whether the record passed all rules
func (r Result[T]) Valid() bool {
	return len(r.errors) == 0
}

// Record returns the validated record; only meaningful when Valid
func (r Result[T]) Record() T {
	return r.record
}

// Errors returns the field errors; nil when Valid
func (r Result[T]) Errors() FieldErrors {
	return r.errors
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "eqfield":
		return "does not match"
	case "nefield":
		return "must differ from the current value"
	case "strong_password":
		return "must be at least 8 characters with upper and lower case letters, a number and a symbol"
	case "safe_string":
		return "contains characters that are not allowed"
	case "iana_timezone":
		return "must be a valid time zone"
	case "amount":
		return "must be a positive amount with at most two decimals"
	default:
		return "is invalid"
	}
}

// Custom validation functions

// validateStrongPassword validates password strength
func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}
	return upperPattern.MatchString(password) &&
		lowerPattern.MatchString(password) &&
		numberPattern.MatchString(password) &&
		specialPattern.MatchString(password)
}

// validateSafeString rejects markup and script fragments in free text
func validateSafeString(fl validator.FieldLevel) bool {
	lowerStr := strings.ToLower(fl.Field().String())
	for _, pattern := range []string{"<", ">", "javascript:", "vbscript:", "onload=", "onerror="} {
		if strings.Contains(lowerStr, pattern) {
			return false
		}
	}
	return true
}

func validateTimezone(fl validator.FieldLevel) bool {
	tz := fl.Field().String()
	if tz == "" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// validateAmount validates monetary amounts
func validateAmount(fl validator.FieldLevel) bool {
	return amountPattern.MatchString(fl.Field().String())
}

// PaginationRequest validates pagination parameters
type PaginationRequest struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100" json:"limit"`
	Offset int `form:"offset" validate:"omitempty,min=0" json:"offset"`
}
