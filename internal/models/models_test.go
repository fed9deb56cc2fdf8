package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationResult(t *testing.T) {
	t.Run("starts valid and empty", func(t *testing.T) {
		result := NewValidationResult()
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("adding an error flips validity", func(t *testing.T) {
		result := NewValidationResult()
		result.AddError("something broke")
		assert.False(t, result.IsValid)
		assert.Len(t, result.Errors, 1)
	})

	t.Run("warnings do not affect validity", func(t *testing.T) {
		result := NewValidationResult()
		result.AddWarning("looks odd")
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 1)
	})
}

func TestValidationResultMerge(t *testing.T) {
	t.Run("unions errors and warnings", func(t *testing.T) {
		a := NewValidationResult()
		a.AddError("e1")
		a.AddWarning("w1")

		b := NewValidationResult()
		b.AddError("e2")

		a.Merge(b)
		assert.False(t, a.IsValid)
		assert.Equal(t, []string{"e1", "e2"}, a.Errors)
		assert.Equal(t, []string{"w1"}, a.Warnings)
	})

	t.Run("validity is ANDed", func(t *testing.T) {
		a := NewValidationResult()
		b := NewValidationResult()
		b.AddError("bad")

		a.Merge(b)
		assert.False(t, a.IsValid)
	})

	t.Run("merge order does not change the combined error set", func(t *testing.T) {
		makeResults := func() (*ValidationResult, *ValidationResult, *ValidationResult) {
			a := NewValidationResult()
			a.AddError("a")
			b := NewValidationResult()
			b.AddError("b")
			c := NewValidationResult()
			c.AddWarning("c")
			return a, b, c
		}

		a1, b1, c1 := makeResults()
		a1.Merge(b1)
		a1.Merge(c1)

		a2, b2, c2 := makeResults()
		b2.Merge(c2)
		a2.Merge(b2)

		assert.ElementsMatch(t, a1.Errors, a2.Errors)
		assert.ElementsMatch(t, a1.Warnings, a2.Warnings)
		assert.Equal(t, a1.IsValid, a2.IsValid)
	})

	t.Run("other metadata wins on collision", func(t *testing.T) {
		a := NewValidationResult()
		a.SetMetadata("source", "first")
		b := NewValidationResult()
		b.SetMetadata("source", "second")

		a.Merge(b)
		assert.Equal(t, "second", a.Metadata["source"])
	})

	t.Run("merging nil is a no-op", func(t *testing.T) {
		a := NewValidationResult()
		a.Merge(nil)
		assert.True(t, a.IsValid)
	})
}

func TestDataQualityMetricThresholds(t *testing.T) {
	min := 90.0
	max := 100.0

	t.Run("within bounds", func(t *testing.T) {
		m := DataQualityMetric{Value: 95, ThresholdMin: &min, ThresholdMax: &max}
		assert.True(t, m.IsWithinThreshold())
		assert.Equal(t, SeverityLow, m.BreachSeverity())
	})

	t.Run("below minimum", func(t *testing.T) {
		m := DataQualityMetric{Value: 85, ThresholdMin: &min}
		assert.False(t, m.IsWithinThreshold())
	})

	t.Run("severity scales with breach magnitude", func(t *testing.T) {
		cases := []struct {
			name     string
			value    float64
			expected Severity
		}{
			{"slight breach is medium", 80, SeverityMedium},
			{"breach past twenty percent is high", 65, SeverityHigh},
			{"breach past fifty percent is critical", 40, SeverityCritical},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				m := DataQualityMetric{Value: tc.value, ThresholdMin: &min}
				assert.Equal(t, tc.expected, m.BreachSeverity())
			})
		}
	})

	t.Run("zero bound does not divide by zero", func(t *testing.T) {
		zero := 0.0
		m := DataQualityMetric{Value: 0.6, ThresholdMax: &zero}
		assert.Equal(t, SeverityCritical, m.BreachSeverity())
	})
}

func TestReportSummaries(t *testing.T) {
	failed := NewValidationResult()
	failed.AddError("broken")
	failed.AddWarning("and noisy")

	report := DataQualityReport{
		GeneratedAt: time.Now(),
		ValidationResults: map[string]*ValidationResult{
			"passed": NewValidationResult(),
			"failed": failed,
		},
	}

	summaries := report.Summaries()
	assert.Equal(t, "passed", summaries["passed"].Status)
	assert.Equal(t, "failed", summaries["failed"].Status)
	assert.Equal(t, 1, summaries["failed"].ErrorCount)
	assert.Equal(t, 1, summaries["failed"].WarningCount)
}
