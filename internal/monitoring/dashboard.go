package monitoring

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// Trend labels the recent direction of a metric series
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// MetricStatus is the dashboard view of one metric
type MetricStatus struct {
	Name            string            `json:"name"`
	Type            models.MetricType `json:"type"`
	CurrentValue    float64           `json:"current_value"`
	Trend           Trend             `json:"trend"`
	WithinThreshold bool              `json:"within_threshold"`
	LastUpdated     time.Time         `json:"last_updated"`
}

// DashboardData is a point-in-time snapshot of quality state
type DashboardData struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Metrics     []MetricStatus            `json:"metrics"`
	AlertCounts map[models.Severity]int   `json:"alert_counts"`
	Alerts      []models.DataQualityAlert `json:"alerts"`
}

// Dashboard assembles metric history and active alerts into exportable
// snapshots
type Dashboard struct {
	logger      *zap.Logger
	calculator  *MetricsCalculator
	trendWindow time.Duration
	now         func() time.Time
}

// NewDashboard creates a dashboard over a metrics calculator
func NewDashboard(calculator *MetricsCalculator, trendWindow time.Duration, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		logger:      logger,
		calculator:  calculator,
		trendWindow: trendWindow,
		now:         time.Now,
	}
}

// Generate builds the current snapshot. Trend compares the latest value to
// the mean of the earlier samples inside the trend window: a change above
// one point either way moves the label off stable.
func (d *Dashboard) Generate() *DashboardData {
	data := &DashboardData{
		GeneratedAt: d.now(),
		AlertCounts: make(map[models.Severity]int),
	}

	for name, latest := range d.calculator.Latest() {
		data.Metrics = append(data.Metrics, MetricStatus{
			Name:            name,
			Type:            latest.Type,
			CurrentValue:    latest.Value,
			Trend:           d.trendFor(name, latest),
			WithinThreshold: latest.IsWithinThreshold(),
			LastUpdated:     latest.Timestamp,
		})
	}
	sort.Slice(data.Metrics, func(i, j int) bool { return data.Metrics[i].Name < data.Metrics[j].Name })

	data.Alerts = d.calculator.ActiveAlerts()
	for _, alert := range data.Alerts {
		data.AlertCounts[alert.Severity]++
	}

	return data
}

// Export serializes the current snapshot as json or csv
func (d *Dashboard) Export(format string) ([]byte, error) {
	data := d.Generate()

	switch format {
	case "json":
		return json.MarshalIndent(data, "", "  ")

	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"Metric", "Current Value", "Trend", "Within Threshold"}); err != nil {
			return nil, err
		}
		for _, m := range data.Metrics {
			record := []string{
				m.Name,
				strconv.FormatFloat(m.CurrentValue, 'f', 2, 64),
				string(m.Trend),
				strconv.FormatBool(m.WithinThreshold),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func (d *Dashboard) trendFor(name string, latest models.DataQualityMetric) Trend {
	cutoff := d.now().Add(-d.trendWindow)

	var sum float64
	var count int
	for _, sample := range d.calculator.History(name) {
		if sample.Timestamp.Before(cutoff) || sample.Timestamp.Equal(latest.Timestamp) {
			continue
		}
		sum += sample.Value
		count++
	}
	if count == 0 {
		return TrendStable
	}

	delta := latest.Value - sum/float64(count)
	switch {
	case delta > 1.0:
		return TrendImproving
	case delta < -1.0:
		return TrendDeclining
	default:
		return TrendStable
	}
}
