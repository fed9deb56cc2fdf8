package models

import (
	"math"
	"time"
)

// Severity represents the severity of a quality issue or alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidationResult represents a composable pass/fail validation outcome.
// IsValid is false whenever Errors is non-empty.
type ValidationResult struct {
	IsValid  bool                   `json:"is_valid"`
	Errors   []string               `json:"errors,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewValidationResult creates an empty, valid result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
		Metadata: make(map[string]interface{}),
	}
}

// AddError records an error and flips the result to invalid
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a warning without affecting validity
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// SetMetadata stores a metadata entry on the result
func (r *ValidationResult) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// Merge combines another result into this one: errors and warnings are
// unioned, validity is ANDed and metadata is shallow-merged with the other
// result's entries taking precedence on key collision.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.IsValid = r.IsValid && other.IsValid
	for k, v := range other.Metadata {
		r.SetMetadata(k, v)
	}
}

// MetricType represents a data quality dimension
type MetricType string

const (
	MetricCompleteness MetricType = "completeness"
	MetricAccuracy     MetricType = "accuracy"
	MetricConsistency  MetricType = "consistency"
	MetricTimeliness   MetricType = "timeliness"
	MetricValidity     MetricType = "validity"
	MetricUniqueness   MetricType = "uniqueness"
	MetricIntegrity    MetricType = "integrity"
)

// DataQualityMetric represents a single metric observation with optional
// threshold bounds
type DataQualityMetric struct {
	Name         string     `json:"name"`
	Type         MetricType `json:"type"`
	Value        float64    `json:"value"`
	ThresholdMin *float64   `json:"threshold_min,omitempty"`
	ThresholdMax *float64   `json:"threshold_max,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// IsWithinThreshold reports whether the value respects both bounds
func (m *DataQualityMetric) IsWithinThreshold() bool {
	if m.ThresholdMin != nil && m.Value < *m.ThresholdMin {
		return false
	}
	if m.ThresholdMax != nil && m.Value > *m.ThresholdMax {
		return false
	}
	return true
}

// BreachSeverity derives severity from the fractional magnitude of the
// threshold violation: >50% critical, >20% high, otherwise medium. A metric
// within threshold is low severity.
func (m *DataQualityMetric) BreachSeverity() Severity {
	if m.IsWithinThreshold() {
		return SeverityLow
	}

	var bound, diff float64
	if m.ThresholdMin != nil && m.Value < *m.ThresholdMin {
		bound = *m.ThresholdMin
		diff = *m.ThresholdMin - m.Value
	} else if m.ThresholdMax != nil {
		bound = *m.ThresholdMax
		diff = m.Value - *m.ThresholdMax
	}

	denom := math.Abs(bound)
	if denom == 0 {
		denom = 1
	}

	fraction := diff / denom
	switch {
	case fraction > 0.5:
		return SeverityCritical
	case fraction > 0.2:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// DataQualityAlert represents an alert raised for a threshold breach or
// detected anomaly
type DataQualityAlert struct {
	ID         string    `json:"id"`
	MetricName string    `json:"metric_name"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
	Resolved   bool      `json:"resolved"`
}

// ConsistencyLevel governs how strictly two data copies must agree
type ConsistencyLevel string

const (
	ConsistencyStrong   ConsistencyLevel = "STRONG"
	ConsistencyEventual ConsistencyLevel = "EVENTUAL"
	ConsistencyWeak     ConsistencyLevel = "WEAK"
)

// ConsistencyCheck configures a cross-service comparison between two views
// of the same entity
type ConsistencyCheck struct {
	Name             string           `json:"name"`
	SourceService    string           `json:"source_service"`
	TargetService    string           `json:"target_service"`
	JoinKey          string           `json:"join_key"`
	Fields           []string         `json:"fields"`
	Level            ConsistencyLevel `json:"level"`
	ToleranceSeconds int              `json:"tolerance_seconds"`
	Critical         bool             `json:"critical"`
	Timeout          time.Duration    `json:"timeout,omitempty"`
}

// ConsistencyViolation records a single field mismatch found by a check
type ConsistencyViolation struct {
	CheckName   string      `json:"check_name"`
	EntityID    string      `json:"entity_id"`
	Field       string      `json:"field"`
	SourceValue interface{} `json:"source_value"`
	TargetValue interface{} `json:"target_value"`
	Severity    Severity    `json:"severity"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// PIIType represents a category of personally identifiable information
type PIIType string

const (
	PIIEmail       PIIType = "email"
	PIIPhone       PIIType = "phone"
	PIISSN         PIIType = "ssn"
	PIICreditCard  PIIType = "credit_card"
	PIIName        PIIType = "name"
	PIIAddress     PIIType = "address"
	PIIDateOfBirth PIIType = "date_of_birth"
	PIIIPAddress   PIIType = "ip_address"
	PIIDeviceID    PIIType = "device_id"
	PIIBiometric   PIIType = "biometric"
	PIIHealthData  PIIType = "health_data"
	PIIFinancial   PIIType = "financial"
)

// PIILevel represents the expected PII classification of a dataset
type PIILevel string

const (
	PIILevelNone          PIILevel = "none"
	PIILevelPseudonymized PIILevel = "pseudonymized"
	PIILevelSensitive     PIILevel = "sensitive"
)

// PIIDetection represents one PII match inside a value
type PIIDetection struct {
	Type       PIIType `json:"pii_type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	FieldPath  string  `json:"field_path,omitempty"`
}

// LineageNodeType classifies a node in the lineage graph
type LineageNodeType string

const (
	LineageSource         LineageNodeType = "source"
	LineageTransformation LineageNodeType = "transformation"
	LineageDestination    LineageNodeType = "destination"
)

// LineageNode represents a node in the data lineage graph. Upstream and
// downstream id lists are kept consistent with the edge list by the tracker.
type LineageNode struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          LineageNodeType        `json:"type"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
	UpstreamIDs   []string               `json:"upstream_ids"`
	DownstreamIDs []string               `json:"downstream_ids"`
}

// LineageEdge connects two lineage nodes with an optional transformation label
type LineageEdge struct {
	SourceID       string `json:"source_id"`
	TargetID       string `json:"target_id"`
	Transformation string `json:"transformation,omitempty"`
}

// ValidationSummary is the per-validator entry of a serialized report
type ValidationSummary struct {
	Status       string `json:"status"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`
}

// DataQualityReport is the outcome of one orchestrated validation run.
// Reports are value objects: never mutated after being returned.
type DataQualityReport struct {
	ID                string                       `json:"id"`
	Timestamp         time.Time                    `json:"timestamp"`
	OverallScore      float64                      `json:"overall_score"`
	ValidationResults map[string]*ValidationResult `json:"validation_results"`
	Metrics           map[string]float64           `json:"metrics"`
	Alerts            []DataQualityAlert           `json:"alerts"`
	Recommendations   []string                     `json:"recommendations"`
	GeneratedAt       time.Time                    `json:"generated_at"`
}

// Summaries returns the compact per-validator view used by the HTTP surface
func (r *DataQualityReport) Summaries() map[string]ValidationSummary {
	out := make(map[string]ValidationSummary, len(r.ValidationResults))
	for name, vr := range r.ValidationResults {
		status := "passed"
		if !vr.IsValid {
			status = "failed"
		}
		out[name] = ValidationSummary{
			Status:       status,
			ErrorCount:   len(vr.Errors),
			WarningCount: len(vr.Warnings),
		}
	}
	return out
}
