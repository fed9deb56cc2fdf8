package monitoring

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

func seedCalculator(t *testing.T, values ...float64) (*MetricsCalculator, time.Time) {
	t.Helper()
	c := NewMetricsCalculator(testQualityConfig(), zap.NewNop())
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, value := range values {
		ts := now.Add(time.Duration(i-len(values)) * time.Minute)
		c.now = func() time.Time { return ts }
		metric := models.DataQualityMetric{
			Name:      "completeness",
			Type:      models.MetricCompleteness,
			Value:     value,
			Timestamp: ts,
		}
		c.Record(metric)
	}
	c.now = func() time.Time { return now }
	return c, now
}

func newDashboard(t *testing.T, values ...float64) *Dashboard {
	t.Helper()
	c, now := seedCalculator(t, values...)
	d := NewDashboard(c, time.Hour, zap.NewNop())
	d.now = func() time.Time { return now }
	return d
}

func TestDashboardTrend(t *testing.T) {
	t.Run("rising values trend improving", func(t *testing.T) {
		d := newDashboard(t, 90, 91, 92, 96)
		data := d.Generate()
		require.Len(t, data.Metrics, 1)
		assert.Equal(t, TrendImproving, data.Metrics[0].Trend)
	})

	t.Run("falling values trend declining", func(t *testing.T) {
		d := newDashboard(t, 96, 95, 94, 85)
		data := d.Generate()
		assert.Equal(t, TrendDeclining, data.Metrics[0].Trend)
	})

	t.Run("steady values trend stable", func(t *testing.T) {
		d := newDashboard(t, 95, 95.5, 94.8, 95.2)
		data := d.Generate()
		assert.Equal(t, TrendStable, data.Metrics[0].Trend)
	})

	t.Run("single observation is stable", func(t *testing.T) {
		d := newDashboard(t, 95)
		data := d.Generate()
		assert.Equal(t, TrendStable, data.Metrics[0].Trend)
	})
}

func TestDashboardAlertBuckets(t *testing.T) {
	c := NewMetricsCalculator(testQualityConfig(), zap.NewNop())
	min := 95.0

	// One critical breach, one medium.
	c.Record(models.DataQualityMetric{
		Name: "completeness", Type: models.MetricCompleteness,
		Value: 10, ThresholdMin: &min, Timestamp: time.Now(),
	})
	c.Record(models.DataQualityMetric{
		Name: "validity", Type: models.MetricValidity,
		Value: 94, ThresholdMin: &min, Timestamp: time.Now(),
	})

	d := NewDashboard(c, time.Hour, zap.NewNop())
	data := d.Generate()

	assert.Equal(t, 1, data.AlertCounts[models.SeverityCritical])
	assert.Equal(t, 1, data.AlertCounts[models.SeverityMedium])
	assert.Len(t, data.Alerts, 2)
}

func TestDashboardExport(t *testing.T) {
	t.Run("json round trips", func(t *testing.T) {
		d := newDashboard(t, 95, 96)
		payload, err := d.Export("json")
		require.NoError(t, err)

		var decoded DashboardData
		require.NoError(t, json.Unmarshal(payload, &decoded))
		require.Len(t, decoded.Metrics, 1)
		assert.Equal(t, "completeness", decoded.Metrics[0].Name)
	})

	t.Run("csv carries the header and one row per metric", func(t *testing.T) {
		d := newDashboard(t, 95, 96)
		payload, err := d.Export("csv")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "Metric,Current Value,Trend,Within Threshold", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "completeness,96.00"))
	})

	t.Run("unknown format is an error", func(t *testing.T) {
		d := newDashboard(t, 95)
		_, err := d.Export("xml")
		assert.Error(t, err)
	})
}
