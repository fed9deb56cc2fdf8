package framework

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/config"
	"github.com/veridata/quality-engine/internal/consistency"
	"github.com/veridata/quality-engine/internal/metrics"
	"github.com/veridata/quality-engine/internal/models"
	"github.com/veridata/quality-engine/internal/monitoring"
	"github.com/veridata/quality-engine/internal/privacy"
	"github.com/veridata/quality-engine/internal/validation"
)

// Scope selects which engine a validation run exercises
type Scope string

const (
	ScopeValidation  Scope = "validation"
	ScopeConsistency Scope = "consistency"
	ScopePrivacy     Scope = "privacy"
	ScopeMonitoring  Scope = "monitoring"
)

// AllScopes lists every scope in execution order
var AllScopes = []Scope{ScopeValidation, ScopeConsistency, ScopePrivacy, ScopeMonitoring}

// ValidationContext carries the per-run configuration each scope consumes.
// Zero-valued sections switch the corresponding checks off.
type ValidationContext struct {
	// Validation scope
	SchemaName      string                          `json:"schema_name,omitempty"`
	TypeRules       map[string]validation.FieldType `json:"type_rules,omitempty"`
	ConstraintRules map[string]string               `json:"constraint_rules,omitempty"`
	EntityName      string                          `json:"entity_name,omitempty"`

	// Consistency scope
	ConsistencyChecks []string            `json:"consistency_checks,omitempty"`
	EntityIDs         []string            `json:"entity_ids,omitempty"`
	DatabaseChecks    []string            `json:"database_checks,omitempty"`
	CacheRuleKeys     map[string][]string `json:"cache_rule_keys,omitempty"`
	AggregateID       string              `json:"aggregate_id,omitempty"`
	AggregateType     string              `json:"aggregate_type,omitempty"`
	Events            []consistency.Event `json:"events,omitempty"`

	// Privacy scope
	ExpectedPIILevel  models.PIILevel   `json:"expected_pii_level,omitempty"`
	MaskedOriginals   map[string]string `json:"masked_originals,omitempty"`
	EncryptionFields  []string          `json:"encryption_fields,omitempty"`
	RetentionCategory string            `json:"retention_category,omitempty"`
	TestRetention     bool              `json:"test_retention,omitempty"`
	RetentionUserID   string            `json:"retention_user_id,omitempty"`

	// Monitoring scope
	RequiredFields  []string `json:"required_fields,omitempty"`
	UniqueKeyFields []string `json:"unique_key_fields,omitempty"`
	TimestampField  string   `json:"timestamp_field,omitempty"`
}

// DataQualityFramework wires the four engines together and orchestrates
// concurrent validation runs across them.
type DataQualityFramework struct {
	logger    *zap.Logger
	cfg       config.Config
	collector *metrics.Collector

	schema      *validation.SchemaValidator
	types       *validation.TypeValidator
	constraints *validation.ConstraintValidator
	referential *validation.ReferentialValidator

	crossService  *consistency.CrossServiceValidator
	eventSourcing *consistency.EventSourcingValidator
	cache         *consistency.CacheValidator
	database      *consistency.DatabaseValidator

	detector   *privacy.Detector
	masking    *privacy.MaskingValidator
	encryption *privacy.EncryptionValidator
	retention  *privacy.RetentionTester

	calculator *monitoring.MetricsCalculator
	anomalies  *monitoring.AnomalyDetector
	lineage    *monitoring.LineageTracker
	dashboard  *monitoring.Dashboard
}

// New builds a framework with every engine constructed from configuration.
// The collector may be nil when Prometheus export is disabled.
func New(cfg config.Config, collector *metrics.Collector, logger *zap.Logger) *DataQualityFramework {
	calculator := monitoring.NewMetricsCalculator(cfg.Quality, logger)

	return &DataQualityFramework{
		logger:    logger,
		cfg:       cfg,
		collector: collector,

		schema:      validation.NewSchemaValidator(logger),
		types:       validation.NewTypeValidator(logger),
		constraints: validation.NewConstraintValidator(logger),
		referential: validation.NewReferentialValidator(logger),

		crossService:  consistency.NewCrossServiceValidator(cfg.Consistency.DefaultTimeout, cfg.Consistency.WeakNumericDelta, logger),
		eventSourcing: consistency.NewEventSourcingValidator(logger),
		cache:         consistency.NewCacheValidator(cfg.Privacy.ExpirationWarnRate, logger),
		database:      consistency.NewDatabaseValidator(logger),

		detector:   privacy.NewDetector(cfg.Privacy.HighConfidence, logger),
		masking:    privacy.NewMaskingValidator(logger),
		encryption: privacy.NewEncryptionValidator(logger),
		retention:  privacy.NewRetentionTester(logger),

		calculator: calculator,
		anomalies:  monitoring.NewAnomalyDetector(cfg.Anomaly, logger),
		lineage:    monitoring.NewLineageTracker(logger),
		dashboard:  monitoring.NewDashboard(calculator, cfg.Monitoring.TrendWindow, logger),
	}
}

// Engine accessors used for registration and by the HTTP surface.

func (f *DataQualityFramework) Schema() *validation.SchemaValidator           { return f.schema }
func (f *DataQualityFramework) Types() *validation.TypeValidator              { return f.types }
func (f *DataQualityFramework) Constraints() *validation.ConstraintValidator  { return f.constraints }
func (f *DataQualityFramework) Referential() *validation.ReferentialValidator { return f.referential }

func (f *DataQualityFramework) CrossService() *consistency.CrossServiceValidator {
	return f.crossService
}
func (f *DataQualityFramework) EventSourcing() *consistency.EventSourcingValidator {
	return f.eventSourcing
}
func (f *DataQualityFramework) Cache() *consistency.CacheValidator       { return f.cache }
func (f *DataQualityFramework) Database() *consistency.DatabaseValidator { return f.database }

func (f *DataQualityFramework) Detector() *privacy.Detector              { return f.detector }
func (f *DataQualityFramework) Masking() *privacy.MaskingValidator       { return f.masking }
func (f *DataQualityFramework) Encryption() *privacy.EncryptionValidator { return f.encryption }
func (f *DataQualityFramework) Retention() *privacy.RetentionTester      { return f.retention }

func (f *DataQualityFramework) Calculator() *monitoring.MetricsCalculator { return f.calculator }
func (f *DataQualityFramework) Anomalies() *monitoring.AnomalyDetector    { return f.anomalies }
func (f *DataQualityFramework) Lineage() *monitoring.LineageTracker       { return f.lineage }
func (f *DataQualityFramework) Dashboard() *monitoring.Dashboard          { return f.dashboard }

// ValidateDataQuality runs the requested scopes concurrently over the data
// and assembles a report. A panicking scope is converted into a failed
// result for that scope and never takes the run down.
func (f *DataQualityFramework) ValidateDataQuality(ctx context.Context, data interface{}, vc *ValidationContext, scopes []Scope) *models.DataQualityReport {
	if vc == nil {
		vc = &ValidationContext{}
	}
	if len(scopes) == 0 {
		scopes = AllScopes
	}

	started := time.Now().UTC()
	results := make(map[string]*models.ValidationResult)
	metricValues := make(map[string]float64)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, scope := range scopes {
		wg.Add(1)
		go func(scope Scope) {
			defer wg.Done()

			scopeStart := time.Now()
			scopeResults, scopeMetrics := f.runScope(ctx, scope, data, vc)

			mu.Lock()
			for name, result := range scopeResults {
				results[name] = result
			}
			for name, value := range scopeMetrics {
				metricValues[name] = value
			}
			mu.Unlock()

			f.observeScope(scope, scopeResults, time.Since(scopeStart))
		}(scope)
	}
	wg.Wait()

	report := &models.DataQualityReport{
		ID:                uuid.New().String(),
		Timestamp:         started,
		ValidationResults: results,
		Metrics:           metricValues,
		Alerts:            f.calculator.ActiveAlerts(),
		GeneratedAt:       time.Now().UTC(),
	}
	report.OverallScore = computeScore(results, metricValues)
	report.Recommendations = buildRecommendations(results, f.calculator.Latest())

	if f.collector != nil {
		f.collector.QualityScore.Set(report.OverallScore)
		for name, value := range metricValues {
			f.collector.QualityMetricValue.WithLabelValues(name).Set(value)
		}
		f.collector.ActiveAlerts.Set(float64(len(report.Alerts)))
	}

	f.logger.Info("Completed quality validation run",
		zap.String("report_id", report.ID),
		zap.Float64("score", report.OverallScore),
		zap.Int("result_count", len(results)),
		zap.Duration("elapsed", time.Since(started)))

	return report
}

func (f *DataQualityFramework) runScope(ctx context.Context, scope Scope, data interface{}, vc *ValidationContext) (results map[string]*models.ValidationResult, metricValues map[string]float64) {
	results = make(map[string]*models.ValidationResult)
	metricValues = make(map[string]float64)

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Validation scope panicked",
				zap.String("scope", string(scope)),
				zap.Any("panic", r))
			failed := models.NewValidationResult()
			failed.AddError(fmt.Sprintf("scope panicked: %v", r))
			results[string(scope)] = failed
		}
	}()

	switch scope {
	case ScopeValidation:
		f.runValidationScope(ctx, data, vc, results)
	case ScopeConsistency:
		f.runConsistencyScope(ctx, vc, results)
	case ScopePrivacy:
		f.runPrivacyScope(ctx, data, vc, results)
	case ScopeMonitoring:
		f.runMonitoringScope(data, vc, results, metricValues)
	default:
		unknown := models.NewValidationResult()
		unknown.AddError(fmt.Sprintf("unknown validation scope: %s", scope))
		results[string(scope)] = unknown
	}

	return results, metricValues
}

func (f *DataQualityFramework) runValidationScope(ctx context.Context, data interface{}, vc *ValidationContext, results map[string]*models.ValidationResult) {
	if vc.SchemaName != "" {
		results["validation:schema"] = f.schema.ValidateAgainstSchema(data, vc.SchemaName)
	}

	records := asRecords(data)

	if len(vc.TypeRules) > 0 {
		combined := models.NewValidationResult()
		for i, record := range records {
			prefixMerge(combined, f.types.ValidateTypeRules(record, vc.TypeRules), i, len(records))
		}
		results["validation:types"] = combined
	}

	if len(vc.ConstraintRules) > 0 {
		combined := models.NewValidationResult()
		for i, record := range records {
			prefixMerge(combined, f.constraints.ValidateMultipleConstraints(record, vc.ConstraintRules), i, len(records))
		}
		results["validation:constraints"] = combined
	}

	if vc.EntityName != "" {
		combined := models.NewValidationResult()
		for i, record := range records {
			prefixMerge(combined, f.referential.ValidateEntityRelationships(ctx, vc.EntityName, record), i, len(records))
		}
		results["validation:referential"] = combined
	}
}

func (f *DataQualityFramework) runConsistencyScope(ctx context.Context, vc *ValidationContext, results map[string]*models.ValidationResult) {
	for _, checkName := range vc.ConsistencyChecks {
		results["consistency:"+checkName] = f.crossService.ValidateConsistency(ctx, checkName, vc.EntityIDs)
	}

	if len(vc.DatabaseChecks) > 0 {
		results["consistency:database"] = f.database.RunChecks(ctx, vc.DatabaseChecks)
	}

	for ruleName, keys := range vc.CacheRuleKeys {
		results["consistency:cache:"+ruleName] = f.cache.ValidateCacheConsistency(ctx, ruleName, keys)
	}

	if len(vc.Events) > 0 {
		sequence := f.eventSourcing.ValidateEventSequence(vc.AggregateID, vc.AggregateType, vc.Events)
		sequence.Merge(f.eventSourcing.ValidateEventCausality(vc.Events))
		results["consistency:events"] = sequence
	}
}

func (f *DataQualityFramework) runPrivacyScope(ctx context.Context, data interface{}, vc *ValidationContext, results map[string]*models.ValidationResult) {
	if vc.ExpectedPIILevel != "" {
		results["privacy:classification"] = f.detector.ValidateClassification(data, vc.ExpectedPIILevel)
	}

	records := asRecords(data)

	if len(vc.MaskedOriginals) > 0 {
		combined := models.NewValidationResult()
		for i, record := range records {
			prefixMerge(combined, f.masking.ValidateMasking(record, vc.MaskedOriginals), i, len(records))
		}
		results["privacy:masking"] = combined
	}

	if len(vc.EncryptionFields) > 0 {
		combined := models.NewValidationResult()
		for i, record := range records {
			prefixMerge(combined, f.encryption.ValidateRecordFields(record, vc.EncryptionFields), i, len(records))
		}
		results["privacy:encryption"] = combined
	}

	if vc.RetentionCategory != "" {
		results["privacy:retention"] = f.retention.ValidateRetentionCompliance(records, vc.RetentionCategory)
	}

	if vc.TestRetention {
		if vc.RetentionCategory == "" {
			missing := models.NewValidationResult()
			missing.AddError("retention deletion test needs a retention category")
			results["privacy:deletion"] = missing
		} else {
			results["privacy:deletion"] = f.retention.TestDataDeletion(ctx, vc.RetentionUserID, []string{vc.RetentionCategory})
		}
	}
}

func (f *DataQualityFramework) runMonitoringScope(data interface{}, vc *ValidationContext, results map[string]*models.ValidationResult, metricValues map[string]float64) {
	records := asRecords(data)
	summary := models.NewValidationResult()
	summary.SetMetadata("record_count", len(records))

	var computed []models.DataQualityMetric

	if len(vc.RequiredFields) > 0 {
		computed = append(computed, f.calculator.CalculateCompleteness("completeness", records, vc.RequiredFields))
	}
	if len(vc.UniqueKeyFields) > 0 {
		computed = append(computed, f.calculator.CalculateUniqueness("uniqueness", records, vc.UniqueKeyFields...))
	}
	if vc.TimestampField != "" {
		computed = append(computed, f.calculator.CalculateTimeliness("timeliness", records, vc.TimestampField, f.cfg.Quality.MaxRecordAge))
	}

	for _, metric := range computed {
		metricValues[metric.Name] = metric.Value
		if alert := f.calculator.Record(metric); alert != nil {
			summary.AddWarning(fmt.Sprintf("metric '%s' breached threshold with value %.2f", metric.Name, metric.Value))
			if f.collector != nil {
				f.collector.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
			}
		}

		if !f.anomalies.HasBaseline(metric.Name) {
			continue
		}
		anomaly, err := f.anomalies.DetectAnomaly(metric.Name, metric.Value)
		if err != nil {
			continue
		}
		if anomaly != nil {
			summary.AddWarning(fmt.Sprintf("metric '%s': %s", metric.Name, anomaly.Reason))
			if f.collector != nil {
				f.collector.AnomaliesTotal.WithLabelValues(metric.Name).Inc()
			}
		}
	}

	if anomaly, err := f.anomalies.DetectVolumeAnomaly("records", len(records)); err == nil && anomaly != nil {
		summary.AddWarning(fmt.Sprintf("record volume: %s", anomaly.Reason))
	}

	results["monitoring:metrics"] = summary
}

func (f *DataQualityFramework) observeScope(scope Scope, scopeResults map[string]*models.ValidationResult, elapsed time.Duration) {
	if f.collector == nil {
		return
	}

	outcome := "passed"
	errorCount := 0
	for _, result := range scopeResults {
		if !result.IsValid {
			outcome = "failed"
		}
		errorCount += len(result.Errors)
	}
	f.collector.ValidationsTotal.WithLabelValues(string(scope), outcome).Inc()
	if errorCount > 0 {
		f.collector.ValidationErrors.WithLabelValues(string(scope)).Add(float64(errorCount))
	}
	f.collector.ValidationDuration.WithLabelValues(string(scope)).Observe(elapsed.Seconds())
}

// computeScore averages per-result scores with the numeric metric values.
// A result loses 10 points per error capped at 50 and 5 per warning capped
// at 25, so a single noisy validator cannot zero the whole run.
func computeScore(results map[string]*models.ValidationResult, metricValues map[string]float64) float64 {
	var sum float64
	var count int

	for _, result := range results {
		errorPenalty := math.Min(float64(len(result.Errors))*10, 50)
		warningPenalty := math.Min(float64(len(result.Warnings))*5, 25)
		sum += 100 - errorPenalty - warningPenalty
		count++
	}

	for _, value := range metricValues {
		sum += value
		count++
	}

	if count == 0 {
		return 100.0
	}
	return sum / float64(count)
}

func buildRecommendations(results map[string]*models.ValidationResult, latest map[string]models.DataQualityMetric) []string {
	var recommendations []string

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		result := results[name]
		if !result.IsValid {
			recommendations = append(recommendations, fmt.Sprintf(
				"Investigate %s: %d errors reported", name, len(result.Errors)))
		} else if len(result.Warnings) > 3 {
			recommendations = append(recommendations, fmt.Sprintf(
				"Review %s: %d warnings reported", name, len(result.Warnings)))
		}
	}

	metricNames := make([]string, 0, len(latest))
	for name := range latest {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	for _, name := range metricNames {
		metric := latest[name]
		if !metric.IsWithinThreshold() {
			recommendations = append(recommendations, fmt.Sprintf(
				"Improve %s: current value %.2f is outside its threshold", name, metric.Value))
		}
	}

	return recommendations
}

func prefixMerge(target, source *models.ValidationResult, index, total int) {
	if total <= 1 {
		target.Merge(source)
		return
	}
	for _, msg := range source.Errors {
		target.AddError(fmt.Sprintf("[%d] %s", index, msg))
	}
	for _, msg := range source.Warnings {
		target.AddWarning(fmt.Sprintf("[%d] %s", index, msg))
	}
	for k, v := range source.Metadata {
		target.SetMetadata(k, v)
	}
}

func asRecords(data interface{}) []map[string]interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}
	case []map[string]interface{}:
		return v
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if record, ok := item.(map[string]interface{}); ok {
				records = append(records, record)
			}
		}
		return records
	default:
		return nil
	}
}
