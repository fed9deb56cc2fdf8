package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

func staticFetcher(entities map[string]map[string]interface{}) EntityFetcher {
	return func(ctx context.Context, entityID string) (map[string]interface{}, error) {
		return entities[entityID], nil
	}
}

func newTestValidator(t *testing.T, check *models.ConsistencyCheck, source, target map[string]map[string]interface{}) *CrossServiceValidator {
	t.Helper()
	v := NewCrossServiceValidator(time.Second, 0.1, zap.NewNop())
	require.NoError(t, v.RegisterCheck(check))
	v.RegisterAdapter(check.SourceService, staticFetcher(source))
	v.RegisterAdapter(check.TargetService, staticFetcher(target))
	return v
}

func TestCrossServiceStrongConsistency(t *testing.T) {
	check := &models.ConsistencyCheck{
		Name:          "profile-sync",
		SourceService: "users",
		TargetService: "profiles",
		Fields:        []string{"email"},
		Level:         models.ConsistencyStrong,
		Critical:      true,
	}

	t.Run("matching values pass", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"u-1": {"email": "a@b.co"}},
			map[string]map[string]interface{}{"u-1": {"email": "a@b.co"}})

		result := v.ValidateConsistency(context.Background(), "profile-sync", []string{"u-1"})
		assert.True(t, result.IsValid)
		assert.Equal(t, 0, result.Metadata["violation_count"])
	})

	t.Run("mismatch on a critical check is an error", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"u-1": {"email": "a@b.co"}},
			map[string]map[string]interface{}{"u-1": {"email": "stale@b.co"}})

		result := v.ValidateConsistency(context.Background(), "profile-sync", []string{"u-1"})
		assert.False(t, result.IsValid)
		assert.Equal(t, 1, result.Metadata["violation_count"])
	})

	t.Run("numeric representations compare equal", func(t *testing.T) {
		amountCheck := &models.ConsistencyCheck{
			Name:          "amount-sync",
			SourceService: "a",
			TargetService: "b",
			Fields:        []string{"amount"},
			Level:         models.ConsistencyStrong,
		}
		v := newTestValidator(t, amountCheck,
			map[string]map[string]interface{}{"x": {"amount": 10}},
			map[string]map[string]interface{}{"x": {"amount": 10.0}})

		result := v.ValidateConsistency(context.Background(), "amount-sync", []string{"x"})
		assert.True(t, result.IsValid)
	})
}

func TestCrossServiceWeakConsistency(t *testing.T) {
	check := &models.ConsistencyCheck{
		Name:          "score-sync",
		SourceService: "a",
		TargetService: "b",
		Fields:        []string{"score"},
		Level:         models.ConsistencyWeak,
	}

	t.Run("values within delta pass", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"score": 5.00}},
			map[string]map[string]interface{}{"x": {"score": 5.05}})

		result := v.ValidateConsistency(context.Background(), "score-sync", []string{"x"})
		assert.True(t, result.IsValid)
	})

	t.Run("values beyond delta warn on non-critical check", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"score": 5.0}},
			map[string]map[string]interface{}{"x": {"score": 6.0}})

		result := v.ValidateConsistency(context.Background(), "score-sync", []string{"x"})
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 1)
	})
}

func TestCrossServiceEventualConsistency(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	check := &models.ConsistencyCheck{
		Name:             "replica-sync",
		SourceService:    "primary",
		TargetService:    "replica",
		Fields:           []string{"status"},
		Level:            models.ConsistencyEventual,
		ToleranceSeconds: 60,
	}

	t.Run("divergence within tolerance window passes", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"status": "active", "updated_at": base}},
			map[string]map[string]interface{}{"x": {"status": "pending", "updated_at": base.Add(-30 * time.Second)}})

		result := v.ValidateConsistency(context.Background(), "replica-sync", []string{"x"})
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Warnings)
	})

	t.Run("divergence past tolerance is a violation", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"status": "active", "updated_at": base}},
			map[string]map[string]interface{}{"x": {"status": "pending", "updated_at": base.Add(-5 * time.Minute)}})

		result := v.ValidateConsistency(context.Background(), "replica-sync", []string{"x"})
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("missing timestamps fall back to strict comparison with a warning", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"status": "active"}},
			map[string]map[string]interface{}{"x": {"status": "pending"}})

		result := v.ValidateConsistency(context.Background(), "replica-sync", []string{"x"})
		assert.Len(t, result.Warnings, 2)
		assert.Contains(t, result.Warnings[0], "eventual consistency compared strictly")
	})
}

func TestCrossServiceMissingData(t *testing.T) {
	check := &models.ConsistencyCheck{
		Name:          "sync",
		SourceService: "a",
		TargetService: "b",
		Fields:        []string{"v"},
		Level:         models.ConsistencyStrong,
		Critical:      true,
	}

	t.Run("entity absent on one side", func(t *testing.T) {
		v := newTestValidator(t, check,
			map[string]map[string]interface{}{"x": {"v": 1}},
			map[string]map[string]interface{}{})

		result := v.ValidateConsistency(context.Background(), "sync", []string{"x"})
		assert.False(t, result.IsValid)
	})

	t.Run("fetch error on critical check is an error", func(t *testing.T) {
		v := NewCrossServiceValidator(time.Second, 0.1, zap.NewNop())
		require.NoError(t, v.RegisterCheck(check))
		v.RegisterAdapter("a", func(ctx context.Context, id string) (map[string]interface{}, error) {
			return nil, errors.New("connection refused")
		})
		v.RegisterAdapter("b", staticFetcher(map[string]map[string]interface{}{"x": {"v": 1}}))

		result := v.ValidateConsistency(context.Background(), "sync", []string{"x"})
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "missing data")
	})

	t.Run("unknown check name", func(t *testing.T) {
		v := NewCrossServiceValidator(time.Second, 0.1, zap.NewNop())
		result := v.ValidateConsistency(context.Background(), "ghost", nil)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "consistency check not found: ghost")
	})
}

func TestViolationHandlers(t *testing.T) {
	check := &models.ConsistencyCheck{
		Name:          "sync",
		SourceService: "a",
		TargetService: "b",
		Fields:        []string{"v"},
		Level:         models.ConsistencyStrong,
	}
	v := newTestValidator(t, check,
		map[string]map[string]interface{}{"x": {"v": 1}},
		map[string]map[string]interface{}{"x": {"v": 2}})

	var received []models.ConsistencyViolation
	v.RegisterViolationHandler(func(violation models.ConsistencyViolation) {
		received = append(received, violation)
	})
	v.RegisterViolationHandler(func(models.ConsistencyViolation) {
		panic("handler failure must not stop validation")
	})

	result := v.ValidateConsistency(context.Background(), "sync", []string{"x"})
	assert.True(t, result.IsValid)
	require.Len(t, received, 1)
	assert.Equal(t, "x", received[0].EntityID)
	assert.Equal(t, "v", received[0].Field)
}

func TestFetchTimeout(t *testing.T) {
	check := &models.ConsistencyCheck{
		Name:          "slow",
		SourceService: "a",
		TargetService: "b",
		Fields:        []string{"v"},
		Level:         models.ConsistencyStrong,
		Timeout:       20 * time.Millisecond,
	}

	v := NewCrossServiceValidator(time.Second, 0.1, zap.NewNop())
	require.NoError(t, v.RegisterCheck(check))
	v.RegisterAdapter("a", func(ctx context.Context, id string) (map[string]interface{}, error) {
		select {
		case <-time.After(time.Second):
			return map[string]interface{}{"v": 1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	v.RegisterAdapter("b", staticFetcher(map[string]map[string]interface{}{"x": {"v": 1}}))

	result := v.ValidateConsistency(context.Background(), "slow", []string{"x"})
	assert.Len(t, result.Warnings, 1)
}
