package consistency

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// EntityFetcher retrieves one entity view from a service by id. A nil map
// with a nil error means the entity does not exist on that side.
type EntityFetcher func(ctx context.Context, entityID string) (map[string]interface{}, error)

// ViolationHandler is notified of every consistency violation for side
// effects such as alerting
type ViolationHandler func(violation models.ConsistencyViolation)

// CrossServiceValidator compares two service views of the same entity under
// a configurable consistency level.
type CrossServiceValidator struct {
	logger         *zap.Logger
	defaultTimeout time.Duration
	weakDelta      float64

	mu       sync.RWMutex
	checks   map[string]*models.ConsistencyCheck
	adapters map[string]EntityFetcher
	handlers []ViolationHandler
}

// NewCrossServiceValidator creates a cross-service consistency validator
func NewCrossServiceValidator(defaultTimeout time.Duration, weakDelta float64, logger *zap.Logger) *CrossServiceValidator {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	if weakDelta <= 0 {
		weakDelta = 0.1
	}
	return &CrossServiceValidator{
		logger:         logger,
		defaultTimeout: defaultTimeout,
		weakDelta:      weakDelta,
		checks:         make(map[string]*models.ConsistencyCheck),
		adapters:       make(map[string]EntityFetcher),
	}
}

// RegisterCheck registers a named consistency check
func (v *CrossServiceValidator) RegisterCheck(check *models.ConsistencyCheck) error {
	if check == nil || check.Name == "" {
		return fmt.Errorf("check must have a name")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks[check.Name] = check
	v.logger.Info("Registered consistency check",
		zap.String("check", check.Name),
		zap.String("source", check.SourceService),
		zap.String("target", check.TargetService),
		zap.String("level", string(check.Level)))
	return nil
}

// RegisterAdapter registers the entity fetcher for a service name
func (v *CrossServiceValidator) RegisterAdapter(serviceName string, fetcher EntityFetcher) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.adapters[serviceName] = fetcher
}

// RegisterViolationHandler subscribes a handler to all future violations
func (v *CrossServiceValidator) RegisterViolationHandler(handler ViolationHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = append(v.handlers, handler)
}

// ValidateConsistency fetches each entity from the source and target
// services and compares the configured fields. Fetch timeouts and failures
// are treated as missing data: an error on critical checks, a warning
// otherwise.
func (v *CrossServiceValidator) ValidateConsistency(ctx context.Context, checkName string, entityIDs []string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	check, exists := v.checks[checkName]
	var source, target EntityFetcher
	if exists {
		source = v.adapters[check.SourceService]
		target = v.adapters[check.TargetService]
	}
	v.mu.RUnlock()

	if !exists {
		result.AddError(fmt.Sprintf("consistency check not found: %s", checkName))
		return result
	}
	if source == nil {
		result.AddError(fmt.Sprintf("no adapter registered for service: %s", check.SourceService))
		return result
	}
	if target == nil {
		result.AddError(fmt.Sprintf("no adapter registered for service: %s", check.TargetService))
		return result
	}

	timeout := check.Timeout
	if timeout <= 0 {
		timeout = v.defaultTimeout
	}

	var violations []models.ConsistencyViolation

	for _, entityID := range entityIDs {
		sourceEntity, sourceErr := fetchWithTimeout(ctx, source, entityID, timeout)
		targetEntity, targetErr := fetchWithTimeout(ctx, target, entityID, timeout)

		if sourceErr != nil || targetErr != nil {
			msg := fmt.Sprintf("missing data for entity %s: source=%v target=%v", entityID, sourceErr, targetErr)
			v.reportMissing(check, msg, result)
			continue
		}
		if sourceEntity == nil || targetEntity == nil {
			msg := fmt.Sprintf("entity %s not present on both sides (source=%t target=%t)",
				entityID, sourceEntity != nil, targetEntity != nil)
			v.reportMissing(check, msg, result)
			continue
		}

		violations = append(violations, v.compareEntities(check, entityID, sourceEntity, targetEntity, result)...)
	}

	for _, violation := range violations {
		msg := fmt.Sprintf("check '%s': entity %s field '%s' mismatch (source=%v target=%v)",
			violation.CheckName, violation.EntityID, violation.Field, violation.SourceValue, violation.TargetValue)
		if check.Critical {
			result.AddError(msg)
		} else {
			result.AddWarning(msg)
		}
		v.broadcast(violation)
	}

	result.SetMetadata("check_name", checkName)
	result.SetMetadata("entities_checked", len(entityIDs))
	result.SetMetadata("violation_count", len(violations))

	return result
}

func (v *CrossServiceValidator) reportMissing(check *models.ConsistencyCheck, msg string, result *models.ValidationResult) {
	if check.Critical {
		result.AddError(msg)
	} else {
		result.AddWarning(msg)
	}
}

func (v *CrossServiceValidator) compareEntities(check *models.ConsistencyCheck, entityID string, source, target map[string]interface{}, result *models.ValidationResult) []models.ConsistencyViolation {
	var violations []models.ConsistencyViolation

	for _, field := range check.Fields {
		sourceValue, sourceOK := lookupPath(source, field)
		targetValue, targetOK := lookupPath(target, field)
		if !sourceOK && !targetOK {
			continue
		}

		equal, fellBack := v.equalUnderLevel(check, sourceValue, targetValue, source, target)
		if fellBack {
			result.AddWarning(fmt.Sprintf(
				"check '%s': entity %s has no timestamp field, eventual consistency compared strictly", check.Name, entityID))
		}
		if equal {
			continue
		}

		severity := models.SeverityMedium
		if check.Critical {
			severity = models.SeverityHigh
		}

		violations = append(violations, models.ConsistencyViolation{
			CheckName:   check.Name,
			EntityID:    entityID,
			Field:       field,
			SourceValue: sourceValue,
			TargetValue: targetValue,
			Severity:    severity,
			DetectedAt:  time.Now().UTC(),
		})
	}

	return violations
}

// equalUnderLevel judges field equality under the check's consistency
// level. The second return value reports the EVENTUAL-without-timestamps
// fallback so callers can surface it as a warning.
func (v *CrossServiceValidator) equalUnderLevel(check *models.ConsistencyCheck, sourceValue, targetValue interface{}, source, target map[string]interface{}) (bool, bool) {
	switch check.Level {
	case models.ConsistencyWeak:
		if numericallyClose(sourceValue, targetValue, v.weakDelta) {
			return true, false
		}
		return valuesEqual(sourceValue, targetValue), false

	case models.ConsistencyEventual:
		if valuesEqual(sourceValue, targetValue) {
			return true, false
		}
		sourceTS, sourceOK := entityTimestamp(source)
		targetTS, targetOK := entityTimestamp(target)
		if !sourceOK || !targetOK {
			return false, true
		}
		tolerance := time.Duration(check.ToleranceSeconds) * time.Second
		drift := sourceTS.Sub(targetTS)
		if drift < 0 {
			drift = -drift
		}
		return drift <= tolerance, false

	default: // STRONG
		return valuesEqual(sourceValue, targetValue), false
	}
}

func (v *CrossServiceValidator) broadcast(violation models.ConsistencyViolation) {
	v.mu.RLock()
	handlers := make([]ViolationHandler, len(v.handlers))
	copy(handlers, v.handlers)
	v.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					v.logger.Warn("Violation handler panicked", zap.Any("panic", r))
				}
			}()
			handler(violation)
		}()
	}
}

func fetchWithTimeout(ctx context.Context, fetch EntityFetcher, entityID string, timeout time.Duration) (map[string]interface{}, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		entity map[string]interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		entity, err := fetch(fetchCtx, entityID)
		done <- outcome{entity: entity, err: err}
	}()

	select {
	case out := <-done:
		return out.entity, out.err
	case <-fetchCtx.Done():
		return nil, fetchCtx.Err()
	}
}

// lookupPath resolves a dotted path inside a nested record
func lookupPath(record map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = record
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valuesEqual(a, b interface{}) bool {
	if numericallyClose(a, b, 0) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func numericallyClose(a, b interface{}, delta float64) bool {
	fa, errA := toFloat64(a)
	fb, errB := toFloat64(b)
	if errA != nil || errB != nil {
		return false
	}
	return math.Abs(fa-fb) <= delta
}

func entityTimestamp(record map[string]interface{}) (time.Time, bool) {
	for _, field := range []string{"updated_at", "timestamp"} {
		value, ok := record[field]
		if !ok {
			continue
		}
		switch t := value.(type) {
		case time.Time:
			return t, true
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
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
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
