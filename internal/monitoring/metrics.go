package monitoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/config"
	"github.com/veridata/quality-engine/internal/models"
)

// AlertHandler receives alerts raised for threshold breaches and anomalies
type AlertHandler func(alert models.DataQualityAlert)

// MetricsCalculator computes quality metrics over record batches and
// validation outcomes, keeps per-metric history and raises alerts on
// threshold breaches.
type MetricsCalculator struct {
	logger *zap.Logger
	now    func() time.Time

	mu         sync.RWMutex
	thresholds map[models.MetricType]*models.DataQualityMetric
	history    map[string][]models.DataQualityMetric
	alerts     []models.DataQualityAlert
	handlers   []AlertHandler
}

// NewMetricsCalculator creates a calculator seeded with the configured
// minimum targets for the four primary dimensions
func NewMetricsCalculator(cfg config.QualityConfig, logger *zap.Logger) *MetricsCalculator {
	c := &MetricsCalculator{
		logger:     logger,
		now:        time.Now,
		thresholds: make(map[models.MetricType]*models.DataQualityMetric),
		history:    make(map[string][]models.DataQualityMetric),
	}
	c.SetThreshold(models.MetricCompleteness, &cfg.CompletenessTarget, nil)
	c.SetThreshold(models.MetricValidity, &cfg.ValidityTarget, nil)
	c.SetThreshold(models.MetricUniqueness, &cfg.UniquenessTarget, nil)
	c.SetThreshold(models.MetricTimeliness, &cfg.TimelinessTarget, nil)
	return c
}

// SetThreshold sets the default bounds applied to metrics of a type
func (c *MetricsCalculator) SetThreshold(metricType models.MetricType, min, max *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds[metricType] = &models.DataQualityMetric{ThresholdMin: min, ThresholdMax: max}
}

// RegisterAlertHandler adds a callback invoked for every raised alert
func (c *MetricsCalculator) RegisterAlertHandler(handler AlertHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// CalculateCompleteness measures the percentage of required field slots
// that carry a non-nil, non-empty value across the batch
func (c *MetricsCalculator) CalculateCompleteness(name string, records []map[string]interface{}, requiredFields []string) models.DataQualityMetric {
	total := len(records) * len(requiredFields)
	filled := 0
	for _, record := range records {
		for _, field := range requiredFields {
			if value, present := record[field]; present && value != nil {
				if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
					continue
				}
				filled++
			}
		}
	}
	return c.makeMetric(name, models.MetricCompleteness, percentage(filled, total))
}

// CalculateAccuracy measures the percentage of values passing the supplied
// per-field checkers. Fields absent from a record are not counted.
func (c *MetricsCalculator) CalculateAccuracy(name string, records []map[string]interface{}, checkers map[string]func(interface{}) bool) models.DataQualityMetric {
	total := 0
	passed := 0
	for _, record := range records {
		for field, check := range checkers {
			value, present := record[field]
			if !present {
				continue
			}
			total++
			if check(value) {
				passed++
			}
		}
	}
	return c.makeMetric(name, models.MetricAccuracy, percentage(passed, total))
}

// CalculateUniqueness measures, for each key field, the share of its values
// that are distinct within the batch, averaged across the fields
func (c *MetricsCalculator) CalculateUniqueness(name string, records []map[string]interface{}, keyFields ...string) models.DataQualityMetric {
	if len(records) == 0 || len(keyFields) == 0 {
		return c.makeMetric(name, models.MetricUniqueness, 100.0)
	}

	var sum float64
	for _, field := range keyFields {
		distinct := make(map[string]bool, len(records))
		total := 0
		for _, record := range records {
			value, present := record[field]
			if !present {
				continue
			}
			total++
			distinct[fmt.Sprintf("%v", value)] = true
		}
		sum += percentage(len(distinct), total)
	}
	return c.makeMetric(name, models.MetricUniqueness, sum/float64(len(keyFields)))
}

// CalculateTimeliness measures the percentage of records whose timestamp
// field is within the allowed age
func (c *MetricsCalculator) CalculateTimeliness(name string, records []map[string]interface{}, timestampField string, maxAge time.Duration) models.DataQualityMetric {
	cutoff := c.now().Add(-maxAge)
	fresh := 0
	for _, record := range records {
		ts, ok := recordTimestamp(record, timestampField)
		if ok && !ts.Before(cutoff) {
			fresh++
		}
	}
	return c.makeMetric(name, models.MetricTimeliness, percentage(fresh, len(records)))
}

// MetricFromResults converts validator outcomes into a pass-rate metric of
// the given type, one sample per result
func (c *MetricsCalculator) MetricFromResults(name string, metricType models.MetricType, results []*models.ValidationResult) models.DataQualityMetric {
	passed := 0
	for _, result := range results {
		if result != nil && result.IsValid {
			passed++
		}
	}
	return c.makeMetric(name, metricType, percentage(passed, len(results)))
}

// Record stores a metric observation in history and raises an alert when
// the value breaches its threshold. The raised alert, if any, is returned.
func (c *MetricsCalculator) Record(metric models.DataQualityMetric) *models.DataQualityAlert {
	c.mu.Lock()
	c.history[metric.Name] = append(c.history[metric.Name], metric)
	handlers := c.handlers
	c.mu.Unlock()

	if metric.IsWithinThreshold() {
		return nil
	}

	alert := models.DataQualityAlert{
		ID:         uuid.New().String(),
		MetricName: metric.Name,
		Message: fmt.Sprintf("metric '%s' value %.2f breached its threshold",
			metric.Name, metric.Value),
		Severity:  metric.BreachSeverity(),
		Timestamp: metric.Timestamp,
	}

	c.mu.Lock()
	c.alerts = append(c.alerts, alert)
	c.mu.Unlock()

	c.logger.Warn("Quality metric breached threshold",
		zap.String("metric", metric.Name),
		zap.Float64("value", metric.Value),
		zap.String("severity", string(alert.Severity)))

	for _, handler := range handlers {
		c.invokeHandler(handler, alert)
	}

	return &alert
}

// History returns a copy of the recorded observations for a metric
func (c *MetricsCalculator) History(name string) []models.DataQualityMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.DataQualityMetric, len(c.history[name]))
	copy(out, c.history[name])
	return out
}

// Latest returns the most recent observation per metric name
func (c *MetricsCalculator) Latest() map[string]models.DataQualityMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.DataQualityMetric, len(c.history))
	for name, samples := range c.history {
		if len(samples) > 0 {
			out[name] = samples[len(samples)-1]
		}
	}
	return out
}

// ActiveAlerts returns the unresolved alerts, newest last
func (c *MetricsCalculator) ActiveAlerts() []models.DataQualityAlert {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.DataQualityAlert, 0, len(c.alerts))
	for _, alert := range c.alerts {
		if !alert.Resolved {
			out = append(out, alert)
		}
	}
	return out
}

// ResolveAlert marks an alert as resolved by id
func (c *MetricsCalculator) ResolveAlert(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.alerts {
		if c.alerts[i].ID == id {
			c.alerts[i].Resolved = true
			return true
		}
	}
	return false
}

func (c *MetricsCalculator) makeMetric(name string, metricType models.MetricType, value float64) models.DataQualityMetric {
	metric := models.DataQualityMetric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Timestamp: c.now(),
	}
	c.mu.RLock()
	if bounds := c.thresholds[metricType]; bounds != nil {
		metric.ThresholdMin = bounds.ThresholdMin
		metric.ThresholdMax = bounds.ThresholdMax
	}
	c.mu.RUnlock()
	return metric
}

func (c *MetricsCalculator) invokeHandler(handler AlertHandler, alert models.DataQualityAlert) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Alert handler panicked", zap.Any("panic", r))
		}
	}()
	handler(alert)
}

func percentage(passed, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return float64(passed) / float64(total) * 100.0
}

func recordTimestamp(record map[string]interface{}, field string) (time.Time, bool) {
	raw, present := record[field]
	if !present {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
