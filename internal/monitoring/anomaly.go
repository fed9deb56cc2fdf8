package monitoring

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/veridata/quality-engine/internal/config"
)

// Anomaly describes one statistical deviation from a trained baseline
type Anomaly struct {
	MetricName     string    `json:"metric_name"`
	Value          float64   `json:"value"`
	ZScore         float64   `json:"z_score"`
	BaselineMean   float64   `json:"baseline_mean"`
	BaselineStdDev float64   `json:"baseline_std_dev"`
	Reason         string    `json:"reason"`
	DetectedAt     time.Time `json:"detected_at"`
}

type baseline struct {
	mean    float64
	stddev  float64
	samples int
}

// AnomalyDetector flags metric observations that deviate from a trained
// per-metric baseline by more than the configured z-score threshold.
type AnomalyDetector struct {
	logger     *zap.Logger
	threshold  float64
	minSamples int
	now        func() time.Time

	mu        sync.RWMutex
	baselines map[string]baseline
}

// NewAnomalyDetector creates a detector with no trained baselines
func NewAnomalyDetector(cfg config.AnomalyConfig, logger *zap.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		logger:     logger,
		threshold:  cfg.ZScoreThreshold,
		minSamples: cfg.MinBaselineSamples,
		now:        time.Now,
		baselines:  make(map[string]baseline),
	}
}

// TrainBaseline fits a mean/stddev baseline for a metric from historical
// samples. Training replaces any previous baseline for the metric.
func (d *AnomalyDetector) TrainBaseline(metricName string, samples []float64) error {
	if len(samples) < d.minSamples {
		return fmt.Errorf("metric '%s': %d samples given, at least %d required",
			metricName, len(samples), d.minSamples)
	}

	mean := stat.Mean(samples, nil)
	stddev := stat.StdDev(samples, nil)

	d.mu.Lock()
	d.baselines[metricName] = baseline{mean: mean, stddev: stddev, samples: len(samples)}
	d.mu.Unlock()

	d.logger.Info("Trained anomaly baseline",
		zap.String("metric", metricName),
		zap.Float64("mean", mean),
		zap.Float64("stddev", stddev),
		zap.Int("samples", len(samples)))

	return nil
}

// HasBaseline reports whether a baseline was trained for the metric
func (d *AnomalyDetector) HasBaseline(metricName string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.baselines[metricName]
	return exists
}

// DetectAnomaly scores a value against the metric's baseline. It returns a
// non-nil anomaly when the z-score exceeds the threshold, and an error when
// no baseline was trained. A zero-variance baseline flags any value that
// differs from the mean at all.
func (d *AnomalyDetector) DetectAnomaly(metricName string, value float64) (*Anomaly, error) {
	d.mu.RLock()
	b, exists := d.baselines[metricName]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no baseline trained for metric: %s", metricName)
	}

	if b.stddev == 0 {
		if value == b.mean {
			return nil, nil
		}
		return &Anomaly{
			MetricName:     metricName,
			Value:          value,
			ZScore:         math.Inf(1),
			BaselineMean:   b.mean,
			BaselineStdDev: 0,
			Reason:         "baseline has zero variance and the value differs from its mean",
			DetectedAt:     d.now(),
		}, nil
	}

	z := (value - b.mean) / b.stddev
	if math.Abs(z) <= d.threshold {
		return nil, nil
	}

	return &Anomaly{
		MetricName:     metricName,
		Value:          value,
		ZScore:         z,
		BaselineMean:   b.mean,
		BaselineStdDev: b.stddev,
		Reason: fmt.Sprintf("z-score %.2f exceeds threshold %.2f",
			math.Abs(z), d.threshold),
		DetectedAt: d.now(),
	}, nil
}

// DetectVolumeAnomaly scores a record count against the volume baseline of
// a dataset. Counts are just another metric series under the hood.
func (d *AnomalyDetector) DetectVolumeAnomaly(dataset string, count int) (*Anomaly, error) {
	return d.DetectAnomaly("volume:"+dataset, float64(count))
}

// DetectPatternAnomaly inspects a recent window of a metric for shapes the
// point-wise z-score misses: a flatlined series and a sustained drift of
// the window mean away from the baseline.
func (d *AnomalyDetector) DetectPatternAnomaly(metricName string, window []float64) (*Anomaly, error) {
	if len(window) < 3 {
		return nil, fmt.Errorf("metric '%s': pattern detection needs at least 3 samples, got %d",
			metricName, len(window))
	}

	d.mu.RLock()
	b, exists := d.baselines[metricName]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no baseline trained for metric: %s", metricName)
	}

	windowMean := stat.Mean(window, nil)
	windowStdDev := stat.StdDev(window, nil)

	if windowStdDev == 0 && b.stddev > 0 {
		return &Anomaly{
			MetricName:     metricName,
			Value:          windowMean,
			ZScore:         0,
			BaselineMean:   b.mean,
			BaselineStdDev: b.stddev,
			Reason:         fmt.Sprintf("series flatlined at %.2f over %d samples", windowMean, len(window)),
			DetectedAt:     d.now(),
		}, nil
	}

	if b.stddev > 0 {
		drift := (windowMean - b.mean) / b.stddev
		if math.Abs(drift) > d.threshold {
			return &Anomaly{
				MetricName:     metricName,
				Value:          windowMean,
				ZScore:         drift,
				BaselineMean:   b.mean,
				BaselineStdDev: b.stddev,
				Reason: fmt.Sprintf("window mean drifted %.2f standard deviations from baseline",
					math.Abs(drift)),
				DetectedAt: d.now(),
			}, nil
		}
	}

	return nil, nil
}
