package privacy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// RetentionPolicy caps how long records of a category may be kept
type RetentionPolicy struct {
	Category      string
	RetentionDays int
}

// DeletionHandler erases one user's data from a single store and reports
// whether anything was actually deleted
type DeletionHandler func(ctx context.Context, userID string) (deleted bool, err error)

// RetentionTester checks records against retention policies and exercises
// the registered deletion path end to end.
type RetentionTester struct {
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.RWMutex
	policies map[string]*RetentionPolicy
	handlers map[string][]DeletionHandler
}

// NewRetentionTester creates a retention tester with no policies
func NewRetentionTester(logger *zap.Logger) *RetentionTester {
	return &RetentionTester{
		logger:   logger,
		now:      time.Now,
		policies: make(map[string]*RetentionPolicy),
		handlers: make(map[string][]DeletionHandler),
	}
}

// RegisterPolicy registers the retention policy for a data category
func (t *RetentionTester) RegisterPolicy(policy *RetentionPolicy) error {
	if policy == nil || policy.Category == "" {
		return fmt.Errorf("policy must name a category")
	}
	if policy.RetentionDays <= 0 {
		return fmt.Errorf("policy for '%s' needs a positive retention period", policy.Category)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies[policy.Category] = policy
	t.logger.Info("Registered retention policy",
		zap.String("category", policy.Category),
		zap.Int("retention_days", policy.RetentionDays))
	return nil
}

// RegisterDeletionHandler adds a deletion handler for a category. A
// category may have one handler per backing store.
func (t *RetentionTester) RegisterDeletionHandler(category string, handler DeletionHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[category] = append(t.handlers[category], handler)
}

// ValidateRetentionCompliance partitions records of a category by their
// created_at against the policy cutoff. Every expired record is an error;
// records with no parseable created_at get a warning.
func (t *RetentionTester) ValidateRetentionCompliance(records []map[string]interface{}, category string) *models.ValidationResult {
	result := models.NewValidationResult()

	t.mu.RLock()
	policy := t.policies[category]
	t.mu.RUnlock()

	if policy == nil {
		result.AddError(fmt.Sprintf("no retention policy for category: %s", category))
		return result
	}

	cutoff := t.now().AddDate(0, 0, -policy.RetentionDays)
	expired := 0
	unknown := 0

	for i, record := range records {
		createdAt, err := recordCreatedAt(record)
		if err != nil {
			unknown++
			result.AddWarning(fmt.Sprintf("record [%d]: %v", i, err))
			continue
		}
		if createdAt.Before(cutoff) {
			expired++
			result.AddError(fmt.Sprintf(
				"record [%d]: created %s, past the %d-day retention period for %s",
				i, createdAt.Format("2006-01-02"), policy.RetentionDays, category))
		}
	}

	result.SetMetadata("category", category)
	result.SetMetadata("record_count", len(records))
	result.SetMetadata("expired_count", expired)
	result.SetMetadata("compliant_count", len(records)-expired-unknown)

	return result
}

// TestDataDeletion runs every registered deletion handler for the given
// categories against a user ID. A handler that errors, panics, or reports
// nothing deleted fails the test.
func (t *RetentionTester) TestDataDeletion(ctx context.Context, userID string, categories []string) *models.ValidationResult {
	result := models.NewValidationResult()

	for _, category := range categories {
		t.mu.RLock()
		handlers := t.handlers[category]
		t.mu.RUnlock()

		if len(handlers) == 0 {
			result.AddError(fmt.Sprintf("no deletion handler registered for category: %s", category))
			continue
		}

		for i, handler := range handlers {
			deleted, err := t.runDeletion(ctx, handler, userID)
			if err != nil {
				result.AddError(fmt.Sprintf("category '%s' handler %d: %v", category, i, err))
				continue
			}
			if !deleted {
				result.AddError(fmt.Sprintf(
					"category '%s' handler %d: reported no data deleted for user %s", category, i, userID))
			}
		}
	}

	return result
}

// ValidateGDPRCompliance checks the record-level markers a data subject
// export must carry: consent, a processing purpose and a retention marker.
// Full compliance needs process evidence beyond the record itself.
func (t *RetentionTester) ValidateGDPRCompliance(userData map[string]interface{}) *models.ValidationResult {
	result := models.NewValidationResult()

	consent, hasConsent := userData["consent_given"]
	if !hasConsent {
		result.AddError("no consent record present")
	} else if granted, ok := consent.(bool); ok && !granted {
		result.AddError("consent was explicitly withheld")
	}

	if _, ok := userData["processing_purpose"]; !ok {
		result.AddError("no processing purpose recorded")
	}

	_, hasPeriod := userData["retention_period_days"]
	_, hasExpiry := userData["retention_expires_at"]
	if !hasPeriod && !hasExpiry {
		result.AddWarning("no retention marker on record")
	}

	result.AddWarning("record-level check only; lawful basis and processor agreements need manual review")

	return result
}

func (t *RetentionTester) runDeletion(ctx context.Context, handler DeletionHandler, userID string) (deleted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("Deletion handler panicked", zap.Any("panic", r))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, userID)
}

func recordCreatedAt(record map[string]interface{}) (time.Time, error) {
	raw, present := record["created_at"]
	if !present {
		return time.Time{}, fmt.Errorf("no created_at field")
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable created_at value %q", v)
	default:
		return time.Time{}, fmt.Errorf("created_at has unsupported type %T", raw)
	}
}
