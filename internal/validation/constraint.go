package validation

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// Constraint is a unary business-rule predicate over a field value
type Constraint func(value interface{}) bool

// ConstraintValidator holds a named registry of business-rule predicates.
// A panic inside a predicate is recovered and reported as a validation
// error instead of propagating.
type ConstraintValidator struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	constraints map[string]Constraint
}

// NewConstraintValidator creates a constraint validator with the default
// business rules registered
func NewConstraintValidator(logger *zap.Logger) *ConstraintValidator {
	v := &ConstraintValidator{
		logger:      logger,
		constraints: make(map[string]Constraint),
	}
	v.loadDefaultConstraints()
	return v
}

func (v *ConstraintValidator) loadDefaultConstraints() {
	v.constraints["age_range"] = func(value interface{}) bool {
		age, err := toFloat64(value)
		return err == nil && age >= 13 && age <= 120
	}

	v.constraints["weight_range_kg"] = func(value interface{}) bool {
		weight, err := toFloat64(value)
		return err == nil && weight >= 20 && weight <= 300
	}

	v.constraints["calorie_range"] = func(value interface{}) bool {
		calories, err := toFloat64(value)
		return err == nil && calories >= 0 && calories <= 5000
	}

	// Macro percentages must sum to 100 within a 5 point tolerance.
	v.constraints["macro_split"] = func(value interface{}) bool {
		parts, ok := value.([]interface{})
		if !ok {
			return false
		}
		sum := 0.0
		for _, part := range parts {
			p, err := toFloat64(part)
			if err != nil {
				return false
			}
			sum += p
		}
		return math.Abs(sum-100) <= 5
	}

	v.constraints["non_negative"] = func(value interface{}) bool {
		num, err := toFloat64(value)
		return err == nil && num >= 0
	}
}

// RegisterConstraint registers or replaces a named constraint
func (v *ConstraintValidator) RegisterConstraint(name string, constraint Constraint) error {
	if name == "" || constraint == nil {
		return fmt.Errorf("constraint requires a name and a predicate")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.constraints[name] = constraint
	v.logger.Info("Registered constraint", zap.String("constraint", name))
	return nil
}

// ValidateConstraint evaluates one named constraint against a value
func (v *ConstraintValidator) ValidateConstraint(value interface{}, name string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	constraint, exists := v.constraints[name]
	v.mu.RUnlock()

	if !exists {
		result.AddError(fmt.Sprintf("constraint not found: %s", name))
		return result
	}

	ok, evalErr := v.evaluate(constraint, value)
	if evalErr != nil {
		result.AddError(fmt.Sprintf("constraint '%s' failed to evaluate: %v", name, evalErr))
		return result
	}
	if !ok {
		result.AddError(fmt.Sprintf("constraint '%s' violated by value %v", name, value))
	}

	return result
}

// ValidateMultipleConstraints evaluates a field-to-constraint map against a
// record and merges the per-field outcomes
func (v *ConstraintValidator) ValidateMultipleConstraints(record map[string]interface{}, rules map[string]string) *models.ValidationResult {
	result := models.NewValidationResult()

	for field, constraintName := range rules {
		value, exists := record[field]
		if !exists {
			result.AddWarning(fmt.Sprintf("field '%s': not present, constraint '%s' skipped", field, constraintName))
			continue
		}

		fieldResult := v.ValidateConstraint(value, constraintName)
		for _, e := range fieldResult.Errors {
			result.AddError(fmt.Sprintf("field '%s': %s", field, e))
		}
	}

	return result
}

// evaluate runs a predicate with panic isolation
func (v *ConstraintValidator) evaluate(constraint Constraint, value interface{}) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("Constraint predicate panicked", zap.Any("panic", r))
			ok = false
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return constraint(value), nil
}
