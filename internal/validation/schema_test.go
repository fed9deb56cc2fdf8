package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func userSchema() *RecordSchema {
	return &RecordSchema{
		Name: "user",
		Fields: map[string]FieldDef{
			"id":    {Type: "string", Required: true},
			"email": {Type: "string", Required: true, Pattern: `^[^@\s]+@[^@\s]+$`},
			"age":   {Type: "int", Min: floatPtr(13), Max: floatPtr(120)},
			"profile": {Type: "object", Fields: map[string]FieldDef{
				"display_name": {Type: "string", Required: true, MinLength: intPtr(2)},
			}},
		},
		AllowUnknown: true,
	}
}

func TestSchemaValidator(t *testing.T) {
	v := NewSchemaValidator(zap.NewNop())
	require.NoError(t, v.RegisterSchema(userSchema()))

	t.Run("valid record passes", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id":    "u-1",
			"email": "jane@example.com",
			"age":   34,
			"profile": map[string]interface{}{
				"display_name": "Jane",
			},
		}, "user")
		assert.True(t, result.IsValid, "errors: %v", result.Errors)
	})

	t.Run("missing required field", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id": "u-2",
		}, "user")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "field 'email': required field is missing")
	})

	t.Run("type mismatch", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id":    "u-3",
			"email": "a@b.co",
			"age":   "not a number",
		}, "user")
		assert.False(t, result.IsValid)
	})

	t.Run("range violation", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id":    "u-4",
			"email": "a@b.co",
			"age":   150,
		}, "user")
		assert.False(t, result.IsValid)
	})

	t.Run("nested object fields are validated", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id":    "u-5",
			"email": "a@b.co",
			"profile": map[string]interface{}{
				"display_name": "J",
			},
		}, "user")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "profile.display_name")
	})

	t.Run("batch errors carry record index", func(t *testing.T) {
		result := v.ValidateAgainstSchema([]map[string]interface{}{
			{"id": "u-6", "email": "ok@example.com"},
			{"id": "u-7"},
		}, "user")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "field '[1].email': required field is missing")
	})

	t.Run("unknown schema is an error not a panic", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{}, "no-such-schema")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "schema not found: no-such-schema")
	})
}

func TestSchemaValidatorRawSchema(t *testing.T) {
	v := NewSchemaValidator(zap.NewNop())
	require.NoError(t, v.RegisterRawSchema("event", map[string]interface{}{
		"required": []interface{}{"id", "kind"},
		"properties": map[string]interface{}{
			"id":   map[string]interface{}{"type": "string"},
			"kind": map[string]interface{}{"type": "string"},
			"size": map[string]interface{}{"type": "integer"},
		},
	}))

	t.Run("valid document", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id": "e-1", "kind": "created", "size": float64(3),
		}, "event")
		assert.True(t, result.IsValid)
	})

	t.Run("missing required and wrong type", func(t *testing.T) {
		result := v.ValidateAgainstSchema(map[string]interface{}{
			"id": "e-2", "size": "big",
		}, "event")
		assert.False(t, result.IsValid)
		assert.Len(t, result.Errors, 2)
	})
}

func TestLoadSchemasFromFile(t *testing.T) {
	doc := `schemas:
  - name: meal
    fields:
      name:
        type: string
        required: true
      calories:
        type: float
        min: 0
        max: 5000
`
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	v := NewSchemaValidator(zap.NewNop())
	require.NoError(t, v.LoadSchemasFromFile(path))

	result := v.ValidateAgainstSchema(map[string]interface{}{
		"name":     "breakfast",
		"calories": 12000.0,
	}, "meal")
	assert.False(t, result.IsValid)
}
