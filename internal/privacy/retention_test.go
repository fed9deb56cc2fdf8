package privacy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateRetentionCompliance(t *testing.T) {
	newTester := func(t *testing.T) *RetentionTester {
		t.Helper()
		tester := NewRetentionTester(zap.NewNop())
		tester.now = func() time.Time {
			return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		}
		require.NoError(t, tester.RegisterPolicy(&RetentionPolicy{
			Category:      "activity_logs",
			RetentionDays: 30,
		}))
		return tester
	}

	t.Run("records inside the window pass", func(t *testing.T) {
		tester := newTester(t)
		records := []map[string]interface{}{
			{"created_at": "2026-08-20T00:00:00Z"},
			{"created_at": "2026-08-31"},
		}
		result := tester.ValidateRetentionCompliance(records, "activity_logs")
		assert.True(t, result.IsValid)
		assert.Equal(t, 0, result.Metadata["expired_count"])
		assert.Equal(t, 2, result.Metadata["compliant_count"])
	})

	t.Run("expired records are errors", func(t *testing.T) {
		tester := newTester(t)
		records := []map[string]interface{}{
			{"created_at": "2026-06-01T00:00:00Z"},
			{"created_at": "2026-08-30T00:00:00Z"},
		}
		result := tester.ValidateRetentionCompliance(records, "activity_logs")
		assert.False(t, result.IsValid)
		assert.Equal(t, 1, result.Metadata["expired_count"])
		assert.Contains(t, result.Errors[0], "past the 30-day retention period")
	})

	t.Run("missing created_at is a warning", func(t *testing.T) {
		tester := newTester(t)
		records := []map[string]interface{}{
			{"value": 1},
		}
		result := tester.ValidateRetentionCompliance(records, "activity_logs")
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("unknown category is an error", func(t *testing.T) {
		tester := newTester(t)
		result := tester.ValidateRetentionCompliance(nil, "telemetry")
		assert.False(t, result.IsValid)
	})

	t.Run("non-positive retention period is rejected", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		assert.Error(t, tester.RegisterPolicy(&RetentionPolicy{Category: "x", RetentionDays: 0}))
	})
}

func TestTestDataDeletion(t *testing.T) {
	t.Run("all handlers deleting passes", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		tester.RegisterDeletionHandler("profiles", func(ctx context.Context, userID string) (bool, error) {
			return true, nil
		})
		tester.RegisterDeletionHandler("profiles", func(ctx context.Context, userID string) (bool, error) {
			return true, nil
		})

		result := tester.TestDataDeletion(context.Background(), "u-1", []string{"profiles"})
		assert.True(t, result.IsValid)
	})

	t.Run("handler reporting nothing deleted fails", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		tester.RegisterDeletionHandler("profiles", func(ctx context.Context, userID string) (bool, error) {
			return false, nil
		})

		result := tester.TestDataDeletion(context.Background(), "u-1", []string{"profiles"})
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "no data deleted")
	})

	t.Run("handler error fails", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		tester.RegisterDeletionHandler("profiles", func(ctx context.Context, userID string) (bool, error) {
			return false, errors.New("store unavailable")
		})

		result := tester.TestDataDeletion(context.Background(), "u-1", []string{"profiles"})
		assert.False(t, result.IsValid)
	})

	t.Run("panicking handler is contained", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		tester.RegisterDeletionHandler("profiles", func(ctx context.Context, userID string) (bool, error) {
			panic("nil store")
		})

		result := tester.TestDataDeletion(context.Background(), "u-1", []string{"profiles"})
		assert.False(t, result.IsValid)
	})

	t.Run("category without handlers fails", func(t *testing.T) {
		tester := NewRetentionTester(zap.NewNop())
		result := tester.TestDataDeletion(context.Background(), "u-1", []string{"ghost"})
		assert.False(t, result.IsValid)
	})
}

func TestValidateGDPRCompliance(t *testing.T) {
	tester := NewRetentionTester(zap.NewNop())

	t.Run("complete record passes with manual review caveat", func(t *testing.T) {
		result := tester.ValidateGDPRCompliance(map[string]interface{}{
			"consent_given":         true,
			"processing_purpose":    "nutrition tracking",
			"retention_period_days": 365,
		})
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("missing consent is an error", func(t *testing.T) {
		result := tester.ValidateGDPRCompliance(map[string]interface{}{
			"processing_purpose": "analytics",
		})
		assert.False(t, result.IsValid)
	})

	t.Run("withheld consent is an error", func(t *testing.T) {
		result := tester.ValidateGDPRCompliance(map[string]interface{}{
			"consent_given":      false,
			"processing_purpose": "analytics",
		})
		assert.False(t, result.IsValid)
	})

	t.Run("missing retention marker warns", func(t *testing.T) {
		result := tester.ValidateGDPRCompliance(map[string]interface{}{
			"consent_given":      true,
			"processing_purpose": "analytics",
		})
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 2)
	})
}
