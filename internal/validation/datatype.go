package validation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// FieldType is the closed set of field types the type validator understands
type FieldType string

const (
	TypeEmail        FieldType = "email"
	TypePhone        FieldType = "phone"
	TypeUUID         FieldType = "uuid"
	TypeDatetime     FieldType = "datetime"
	TypeURL          FieldType = "url"
	TypeJSON         FieldType = "json"
	TypeEnum         FieldType = "enum"
	TypeNumericRange FieldType = "numeric_range"
	TypeStringLength FieldType = "string_length"
)

// TypeOptions carries per-type parameters for the parameterized checkers
type TypeOptions struct {
	Enum      []string
	MinValue  *float64
	MaxValue  *float64
	MinLength *int
	MaxLength *int
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneDigits  = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// TypeValidator validates individual field values against a closed set of
// type checkers. Values of the wrong Go type are rejected outright, never
// coerced.
type TypeValidator struct {
	logger *zap.Logger
}

// NewTypeValidator creates a type validator
func NewTypeValidator(logger *zap.Logger) *TypeValidator {
	return &TypeValidator{logger: logger}
}

// ValidateFieldType checks a single value against the named type. An
// unknown type name is reported as a configuration error on the result.
func (v *TypeValidator) ValidateFieldType(value interface{}, typeName FieldType, opts TypeOptions) *models.ValidationResult {
	result := models.NewValidationResult()

	switch typeName {
	case TypeEmail:
		v.checkEmail(value, result)
	case TypePhone:
		v.checkPhone(value, result)
	case TypeUUID:
		v.checkUUID(value, result)
	case TypeDatetime:
		v.checkDatetime(value, result)
	case TypeURL:
		v.checkURL(value, result)
	case TypeJSON:
		v.checkJSON(value, result)
	case TypeEnum:
		v.checkEnum(value, opts, result)
	case TypeNumericRange:
		v.checkNumericRange(value, opts, result)
	case TypeStringLength:
		v.checkStringLength(value, opts, result)
	default:
		result.AddError(fmt.Sprintf("unknown field type: %s", typeName))
	}

	return result
}

func (v *TypeValidator) checkEmail(value interface{}, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("email value must be a string, got %T", value))
		return
	}
	if !emailPattern.MatchString(str) {
		result.AddError(fmt.Sprintf("invalid email format: %s", str))
	}
}

func (v *TypeValidator) checkPhone(value interface{}, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("phone value must be a string, got %T", value))
		return
	}

	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(str)
	if !phoneDigits.MatchString(cleaned) {
		result.AddError(fmt.Sprintf("invalid phone number format: %s", str))
	}
}

func (v *TypeValidator) checkUUID(value interface{}, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("uuid value must be a string, got %T", value))
		return
	}
	if _, err := uuid.Parse(str); err != nil {
		result.AddError(fmt.Sprintf("invalid uuid: %s", str))
	}
}

func (v *TypeValidator) checkDatetime(value interface{}, result *models.ValidationResult) {
	switch t := value.(type) {
	case time.Time:
		return
	case string:
		// A trailing Z is the RFC3339 UTC designator; normalize it to an
		// explicit offset before falling back to offset-less layouts.
		candidate := t
		if strings.HasSuffix(candidate, "Z") {
			candidate = strings.TrimSuffix(candidate, "Z") + "+00:00"
		}
		if _, err := time.Parse(time.RFC3339, candidate); err == nil {
			return
		}
		if _, err := parseTimestamp(t); err == nil {
			return
		}
		result.AddError(fmt.Sprintf("invalid datetime: %s", t))
	default:
		result.AddError(fmt.Sprintf("datetime value must be a time or ISO-8601 string, got %T", value))
	}
}

func (v *TypeValidator) checkURL(value interface{}, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("url value must be a string, got %T", value))
		return
	}
	parsed, err := url.Parse(str)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.AddError(fmt.Sprintf("invalid url: %s", str))
	}
}

func (v *TypeValidator) checkJSON(value interface{}, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("json value must be a string, got %T", value))
		return
	}
	if !json.Valid([]byte(str)) {
		result.AddError("value is not valid JSON")
	}
}

func (v *TypeValidator) checkEnum(value interface{}, opts TypeOptions, result *models.ValidationResult) {
	if len(opts.Enum) == 0 {
		result.AddError("enum validation requires an enumeration")
		return
	}

	str := fmt.Sprintf("%v", value)
	for _, allowed := range opts.Enum {
		if str == allowed {
			return
		}
	}
	result.AddError(fmt.Sprintf("value '%s' is not in enumeration", str))
}

func (v *TypeValidator) checkNumericRange(value interface{}, opts TypeOptions, result *models.ValidationResult) {
	num, err := toFloat64(value)
	if err != nil {
		result.AddError(fmt.Sprintf("numeric value required, got %T", value))
		return
	}
	if opts.MinValue != nil && num < *opts.MinValue {
		result.AddError(fmt.Sprintf("value %v is less than minimum %v", num, *opts.MinValue))
	}
	if opts.MaxValue != nil && num > *opts.MaxValue {
		result.AddError(fmt.Sprintf("value %v is greater than maximum %v", num, *opts.MaxValue))
	}
}

func (v *TypeValidator) checkStringLength(value interface{}, opts TypeOptions, result *models.ValidationResult) {
	str, ok := value.(string)
	if !ok {
		result.AddError(fmt.Sprintf("string value required, got %T", value))
		return
	}
	if opts.MinLength != nil && len(str) < *opts.MinLength {
		result.AddError(fmt.Sprintf("length %d is less than minimum %d", len(str), *opts.MinLength))
	}
	if opts.MaxLength != nil && len(str) > *opts.MaxLength {
		result.AddError(fmt.Sprintf("length %d is greater than maximum %d", len(str), *opts.MaxLength))
	}
}

// ValidateTypeRules applies a field-to-type rule map to a record and merges
// the per-field outcomes
func (v *TypeValidator) ValidateTypeRules(record map[string]interface{}, rules map[string]FieldType) *models.ValidationResult {
	result := models.NewValidationResult()

	for field, typeName := range rules {
		value, exists := record[field]
		if !exists {
			continue
		}
		fieldResult := v.ValidateFieldType(value, typeName, TypeOptions{})
		for _, e := range fieldResult.Errors {
			result.AddError(fmt.Sprintf("field '%s': %s", field, e))
		}
		for _, w := range fieldResult.Warnings {
			result.AddWarning(fmt.Sprintf("field '%s': %s", field, w))
		}
	}

	return result
}
