package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConstraints(t *testing.T) {
	v := NewConstraintValidator(zap.NewNop())

	cases := []struct {
		name       string
		constraint string
		value      interface{}
		valid      bool
	}{
		{"age in range", "age_range", 30, true},
		{"age below minimum", "age_range", 12, false},
		{"age above maximum", "age_range", 121, false},
		{"weight in range", "weight_range_kg", 72.5, true},
		{"weight below minimum", "weight_range_kg", 10, false},
		{"calories in range", "calorie_range", 2200, true},
		{"calories negative", "calorie_range", -1, false},
		{"calories excessive", "calorie_range", 6000, false},
		{"macro split sums to 100", "macro_split", []interface{}{50.0, 30.0, 20.0}, true},
		{"macro split within tolerance", "macro_split", []interface{}{50.0, 30.0, 24.0}, true},
		{"macro split beyond tolerance", "macro_split", []interface{}{50.0, 30.0, 30.0}, false},
		{"non negative", "non_negative", 0, true},
		{"negative rejected", "non_negative", -0.5, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.ValidateConstraint(tc.value, tc.constraint)
			assert.Equal(t, tc.valid, result.IsValid, "errors: %v", result.Errors)
		})
	}
}

func TestConstraintRegistry(t *testing.T) {
	v := NewConstraintValidator(zap.NewNop())

	t.Run("unknown constraint is an error", func(t *testing.T) {
		result := v.ValidateConstraint(1, "no_such_rule")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "constraint not found: no_such_rule")
	})

	t.Run("registered constraint replaces default", func(t *testing.T) {
		require.NoError(t, v.RegisterConstraint("age_range", func(value interface{}) bool {
			return true
		}))
		assert.True(t, v.ValidateConstraint(999, "age_range").IsValid)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		assert.Error(t, v.RegisterConstraint("", func(interface{}) bool { return true }))
	})

	t.Run("panicking predicate becomes an error", func(t *testing.T) {
		require.NoError(t, v.RegisterConstraint("explosive", func(value interface{}) bool {
			panic("boom")
		}))
		result := v.ValidateConstraint(1, "explosive")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "failed to evaluate")
	})
}

func TestValidateMultipleConstraints(t *testing.T) {
	v := NewConstraintValidator(zap.NewNop())

	record := map[string]interface{}{
		"age":      25,
		"calories": 9000,
	}
	result := v.ValidateMultipleConstraints(record, map[string]string{
		"age":      "age_range",
		"calories": "calorie_range",
		"weight":   "weight_range_kg",
	})

	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "field 'calories'")
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "field 'weight'")
}
