package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/veridata/quality-engine/internal/models"
)

// FieldDef describes one field of a typed record schema
type FieldDef struct {
	Type      string              `yaml:"type" json:"type"`
	Required  bool                `yaml:"required" json:"required"`
	Pattern   string              `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Enum      []string            `yaml:"enum,omitempty" json:"enum,omitempty"`
	Min       *float64            `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64            `yaml:"max,omitempty" json:"max,omitempty"`
	MinLength *int                `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength *int                `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Fields    map[string]FieldDef `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// RecordSchema is a typed record definition registered under a name
type RecordSchema struct {
	Name         string              `yaml:"name" json:"name"`
	Fields       map[string]FieldDef `yaml:"fields" json:"fields"`
	AllowUnknown bool                `yaml:"allow_unknown" json:"allow_unknown"`
}

// SchemaValidator validates records against registered schemas. A schema is
// either a typed RecordSchema or a raw JSON-schema style document; both live
// in the same registry.
type SchemaValidator struct {
	logger *zap.Logger
	mu     sync.RWMutex
	typed  map[string]*RecordSchema
	raw    map[string]map[string]interface{}
}

// NewSchemaValidator creates a schema validator with an empty registry
func NewSchemaValidator(logger *zap.Logger) *SchemaValidator {
	return &SchemaValidator{
		logger: logger,
		typed:  make(map[string]*RecordSchema),
		raw:    make(map[string]map[string]interface{}),
	}
}

// RegisterSchema registers a typed record schema
func (v *SchemaValidator) RegisterSchema(schema *RecordSchema) error {
	if schema == nil || schema.Name == "" {
		return fmt.Errorf("schema must have a name")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typed[schema.Name] = schema
	v.logger.Info("Registered record schema", zap.String("schema", schema.Name))
	return nil
}

// RegisterRawSchema registers a raw JSON-schema style document
func (v *SchemaValidator) RegisterRawSchema(name string, doc map[string]interface{}) error {
	if name == "" {
		return fmt.Errorf("schema must have a name")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.raw[name] = doc
	v.logger.Info("Registered raw schema", zap.String("schema", name))
	return nil
}

// LoadSchemasFromFile loads typed record schemas from a YAML document
// containing a top-level "schemas" list.
func (v *SchemaValidator) LoadSchemasFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	var doc struct {
		Schemas []*RecordSchema `yaml:"schemas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse schema file: %w", err)
	}

	for _, schema := range doc.Schemas {
		if err := v.RegisterSchema(schema); err != nil {
			return err
		}
	}

	v.logger.Info("Loaded schemas from file",
		zap.String("path", path),
		zap.Int("count", len(doc.Schemas)))

	return nil
}

// ValidateAgainstSchema validates a record or a batch of records against the
// named schema. An unknown schema name is reported as a validation error,
// never an exception.
func (v *SchemaValidator) ValidateAgainstSchema(data interface{}, schemaName string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	typed, hasTyped := v.typed[schemaName]
	raw, hasRaw := v.raw[schemaName]
	v.mu.RUnlock()

	if !hasTyped && !hasRaw {
		result.AddError(fmt.Sprintf("schema not found: %s", schemaName))
		return result
	}

	records, batch, err := coerceRecords(data)
	if err != nil {
		result.AddError(err.Error())
		return result
	}

	for i, record := range records {
		prefix := ""
		if batch {
			prefix = fmt.Sprintf("[%d].", i)
		}
		if hasTyped {
			v.validateTyped(record, typed, prefix, result)
		} else {
			v.validateRaw(record, raw, prefix, result)
		}
	}

	result.SetMetadata("schema_name", schemaName)
	result.SetMetadata("record_count", len(records))

	return result
}

func coerceRecords(data interface{}) ([]map[string]interface{}, bool, error) {
	switch d := data.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{d}, false, nil
	case []map[string]interface{}:
		return d, true, nil
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(d))
		for i, item := range d {
			record, ok := item.(map[string]interface{})
			if !ok {
				return nil, true, fmt.Errorf("record %d is not a map", i)
			}
			records = append(records, record)
		}
		return records, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported data shape: %T", data)
	}
}

func (v *SchemaValidator) validateTyped(record map[string]interface{}, schema *RecordSchema, prefix string, result *models.ValidationResult) {
	v.validateFields(record, schema.Fields, prefix, result)

	if !schema.AllowUnknown {
		for field := range record {
			if _, known := schema.Fields[field]; !known {
				result.AddWarning(fmt.Sprintf("field '%s%s': not declared in schema '%s'", prefix, field, schema.Name))
			}
		}
	}
}

func (v *SchemaValidator) validateFields(record map[string]interface{}, fields map[string]FieldDef, prefix string, result *models.ValidationResult) {
	for name, def := range fields {
		path := prefix + name
		value, exists := record[name]

		if !exists || value == nil {
			if def.Required {
				result.AddError(fmt.Sprintf("field '%s': required field is missing", path))
			}
			continue
		}

		if !matchesType(value, def.Type) {
			result.AddError(fmt.Sprintf("field '%s': expected type %s, got %T", path, def.Type, value))
			continue
		}

		if def.Type == "object" && len(def.Fields) > 0 {
			if nested, ok := value.(map[string]interface{}); ok {
				v.validateFields(nested, def.Fields, path+".", result)
			}
			continue
		}

		v.validateConstraints(path, value, def, result)
	}
}

func (v *SchemaValidator) validateConstraints(path string, value interface{}, def FieldDef, result *models.ValidationResult) {
	if def.Pattern != "" {
		if str, ok := value.(string); ok {
			matched, err := regexp.MatchString(def.Pattern, str)
			if err != nil {
				result.AddError(fmt.Sprintf("field '%s': invalid pattern '%s'", path, def.Pattern))
			} else if !matched {
				result.AddError(fmt.Sprintf("field '%s': value does not match pattern '%s'", path, def.Pattern))
			}
		}
	}

	if len(def.Enum) > 0 {
		str := fmt.Sprintf("%v", value)
		found := false
		for _, allowed := range def.Enum {
			if str == allowed {
				found = true
				break
			}
		}
		if !found {
			result.AddError(fmt.Sprintf("field '%s': value '%s' is not in allowed set", path, str))
		}
	}

	if def.Min != nil || def.Max != nil {
		if num, err := toFloat64(value); err == nil {
			if def.Min != nil && num < *def.Min {
				result.AddError(fmt.Sprintf("field '%s': value %v is less than minimum %v", path, num, *def.Min))
			}
			if def.Max != nil && num > *def.Max {
				result.AddError(fmt.Sprintf("field '%s': value %v is greater than maximum %v", path, num, *def.Max))
			}
		}
	}

	if def.MinLength != nil || def.MaxLength != nil {
		if str, ok := value.(string); ok {
			if def.MinLength != nil && len(str) < *def.MinLength {
				result.AddError(fmt.Sprintf("field '%s': length %d is less than minimum %d", path, len(str), *def.MinLength))
			}
			if def.MaxLength != nil && len(str) > *def.MaxLength {
				result.AddError(fmt.Sprintf("field '%s': length %d is greater than maximum %d", path, len(str), *def.MaxLength))
			}
		}
	}
}

// validateRaw applies a minimal JSON-schema subset: top-level "required"
// list and "properties" with per-field "type".
func (v *SchemaValidator) validateRaw(record map[string]interface{}, doc map[string]interface{}, prefix string, result *models.ValidationResult) {
	if required, ok := doc["required"].([]interface{}); ok {
		for _, item := range required {
			field, ok := item.(string)
			if !ok {
				continue
			}
			if _, exists := record[field]; !exists {
				result.AddError(fmt.Sprintf("field '%s%s': required field is missing", prefix, field))
			}
		}
	}

	properties, ok := doc["properties"].(map[string]interface{})
	if !ok {
		return
	}

	for field, spec := range properties {
		propSpec, ok := spec.(map[string]interface{})
		if !ok {
			continue
		}
		expectedType, ok := propSpec["type"].(string)
		if !ok {
			continue
		}
		value, exists := record[field]
		if !exists || value == nil {
			continue
		}
		if !matchesJSONType(value, expectedType) {
			result.AddError(fmt.Sprintf("field '%s%s': expected type %s, got %T", prefix, field, expectedType, value))
		}
	}
}

func matchesType(value interface{}, expected string) bool {
	switch strings.ToLower(expected) {
	case "string", "text":
		_, ok := value.(string)
		return ok
	case "int", "integer":
		switch n := value.(type) {
		case int, int8, int16, int32, int64:
			return true
		case float64:
			// JSON numbers decode as float64
			return n == float64(int64(n))
		case string:
			_, err := strconv.Atoi(n)
			return err == nil
		}
		return false
	case "float", "number", "decimal":
		switch n := value.(type) {
		case int, int8, int16, int32, int64, float32, float64:
			return true
		case string:
			_, err := strconv.ParseFloat(n, 64)
			return err == nil
		}
		return false
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "datetime", "timestamp":
		switch t := value.(type) {
		case time.Time:
			return true
		case string:
			_, err := parseTimestamp(t)
			return err == nil
		}
		return false
	case "array", "list":
		return reflect.TypeOf(value).Kind() == reflect.Slice
	case "object", "map":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}

func matchesJSONType(value interface{}, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, float32, float64, json.Number:
			return true
		}
		return false
	case "integer":
		switch n := value.(type) {
		case int, int8, int16, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		return reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func parseTimestamp(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", value)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
