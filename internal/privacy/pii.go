package privacy

import (
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// PIIPattern pairs a compiled pattern with its type and confidence
type PIIPattern struct {
	Type        models.PIIType
	Pattern     *regexp.Regexp
	Confidence  float64
	Description string
}

// Detector scans text and nested records for personally identifiable
// information. Built-in patterns are evaluated in order; earlier, higher
// confidence patterns suppress overlapping matches from later ones.
type Detector struct {
	logger         *zap.Logger
	highConfidence float64

	mu        sync.RWMutex
	patterns  []PIIPattern
	whitelist []*regexp.Regexp
}

// NewDetector creates a PII detector with the built-in pattern set
func NewDetector(highConfidence float64, logger *zap.Logger) *Detector {
	if highConfidence <= 0 || highConfidence > 1 {
		highConfidence = 0.8
	}
	d := &Detector{
		logger:         logger,
		highConfidence: highConfidence,
	}
	d.loadBuiltinPatterns()
	return d
}

func (d *Detector) loadBuiltinPatterns() {
	d.patterns = []PIIPattern{
		{
			Type:        models.PIIEmail,
			Pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			Confidence:  0.95,
			Description: "email address",
		},
		{
			Type:        models.PIISSN,
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Confidence:  0.9,
			Description: "US social security number",
		},
		{
			Type:        models.PIICreditCard,
			Pattern:     regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
			Confidence:  0.85,
			Description: "payment card number",
		},
		{
			Type:        models.PIIPhone,
			Pattern:     regexp.MustCompile(`\(?\b\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
			Confidence:  0.8,
			Description: "US phone number",
		},
		{
			Type:        models.PIIIPAddress,
			Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Confidence:  0.75,
			Description: "IPv4 address",
		},
		{
			Type:        models.PIIDateOfBirth,
			Pattern:     regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])/(?:0?[1-9]|[12]\d|3[01])/(?:19|20)\d{2}\b`),
			Confidence:  0.6,
			Description: "US-style date of birth",
		},
		{
			Type:        models.PIIName,
			Pattern:     regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`),
			Confidence:  0.5,
			Description: "possible full name",
		},
	}
}

// RegisterPattern appends a caller-supplied pattern to the detection order
func (d *Detector) RegisterPattern(p PIIPattern) error {
	if p.Pattern == nil {
		return fmt.Errorf("pattern requires a compiled regexp")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, p)
	d.logger.Info("Registered PII pattern",
		zap.String("type", string(p.Type)),
		zap.Float64("confidence", p.Confidence))
	return nil
}

// RegisterWhitelist exempts matches of the given pattern from detection
func (d *Detector) RegisterWhitelist(pattern *regexp.Regexp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.whitelist = append(d.whitelist, pattern)
}

// DetectInText returns every PII match in a text with its span and
// confidence. Whitelisted values are skipped; overlapping spans keep only
// the first (higher priority) match.
func (d *Detector) DetectInText(text string) []models.PIIDetection {
	d.mu.RLock()
	patterns := d.patterns
	whitelist := d.whitelist
	d.mu.RUnlock()

	var detections []models.PIIDetection

	for _, p := range patterns {
		for _, loc := range p.Pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if d.isWhitelisted(whitelist, value) {
				continue
			}
			if overlapsAny(detections, loc[0], loc[1]) {
				continue
			}
			detections = append(detections, models.PIIDetection{
				Type:       p.Type,
				Value:      value,
				Confidence: p.Confidence,
				StartPos:   loc[0],
				EndPos:     loc[1],
			})
		}
	}

	return detections
}

// DetectInData recurses through maps and lists and scans every string leaf,
// recording a dotted/bracketed field path for each detection
func (d *Detector) DetectInData(data interface{}) []models.PIIDetection {
	var detections []models.PIIDetection
	d.walk(data, "", &detections)
	return detections
}

func (d *Detector) walk(value interface{}, path string, detections *[]models.PIIDetection) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, item := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			d.walk(item, childPath, detections)
		}
	case []interface{}:
		for i, item := range v {
			d.walk(item, fmt.Sprintf("%s[%d]", path, i), detections)
		}
	case string:
		for _, detection := range d.DetectInText(v) {
			detection.FieldPath = path
			*detections = append(*detections, detection)
		}
	}
}

// ValidateClassification enforces the dataset's expected PII level:
//   - none: any detection above the whitelist is a finding; high confidence
//     detections are errors, the rest warnings
//   - pseudonymized: direct identifiers at high confidence are errors
//   - sensitive: permissive, but warns when nothing was found since the
//     classification itself may be wrong
func (d *Detector) ValidateClassification(data interface{}, expected models.PIILevel) *models.ValidationResult {
	result := models.NewValidationResult()
	detections := d.DetectInData(data)
	result.SetMetadata("detection_count", len(detections))

	switch expected {
	case models.PIILevelNone:
		for _, det := range detections {
			msg := fmt.Sprintf("field '%s': detected %s (confidence %.2f)", det.FieldPath, det.Type, det.Confidence)
			if det.Confidence > d.highConfidence {
				result.AddError(msg)
			} else {
				result.AddWarning(msg)
			}
		}

	case models.PIILevelPseudonymized:
		direct := map[models.PIIType]bool{
			models.PIIEmail: true,
			models.PIIPhone: true,
			models.PIISSN:   true,
			models.PIIName:  true,
		}
		for _, det := range detections {
			if direct[det.Type] && det.Confidence > d.highConfidence {
				result.AddError(fmt.Sprintf(
					"field '%s': direct identifier %s present in pseudonymized data (confidence %.2f)",
					det.FieldPath, det.Type, det.Confidence))
			}
		}

	case models.PIILevelSensitive:
		if len(detections) == 0 {
			result.AddWarning("no PII detected in data classified as sensitive; classification may be incorrect")
		}

	default:
		result.AddError(fmt.Sprintf("unknown PII level: %s", expected))
	}

	return result
}

func (d *Detector) isWhitelisted(whitelist []*regexp.Regexp, value string) bool {
	for _, pattern := range whitelist {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func overlapsAny(detections []models.PIIDetection, start, end int) bool {
	for _, det := range detections {
		if start < det.EndPos && end > det.StartPos {
			return true
		}
	}
	return false
}
