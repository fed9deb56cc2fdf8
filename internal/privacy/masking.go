package privacy

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// MaskingStrategy names a recognized masking technique
type MaskingStrategy string

const (
	MaskHash       MaskingStrategy = "hash"
	MaskTruncate   MaskingStrategy = "truncate"
	MaskSubstitute MaskingStrategy = "substitute"
	MaskEncrypt    MaskingStrategy = "encrypt"
	MaskCustom     MaskingStrategy = "custom"
)

// MaskCheck is a caller-supplied predicate for custom masking strategies.
// It reports whether masked is an acceptable masking of original.
type MaskCheck func(original, masked string) bool

// MaskingRule binds a field to the strategy its values must be masked with
type MaskingRule struct {
	Field    string
	Strategy MaskingStrategy
	Check    MaskCheck
}

// MaskingValidator verifies that registered fields were actually masked
// according to their declared strategy. Checks are heuristic: they confirm
// the shape of the masked value, not the correctness of the masking
// pipeline that produced it.
type MaskingValidator struct {
	logger *zap.Logger
	mu     sync.RWMutex
	rules  map[string]*MaskingRule
}

// NewMaskingValidator creates a masking validator with no rules
func NewMaskingValidator(logger *zap.Logger) *MaskingValidator {
	return &MaskingValidator{
		logger: logger,
		rules:  make(map[string]*MaskingRule),
	}
}

// RegisterRule registers the masking rule for a field
func (v *MaskingValidator) RegisterRule(rule *MaskingRule) error {
	if rule == nil || rule.Field == "" {
		return fmt.Errorf("rule must name a field")
	}
	if rule.Strategy == MaskCustom && rule.Check == nil {
		return fmt.Errorf("custom rule for field '%s' needs a check function", rule.Field)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[rule.Field] = rule
	return nil
}

// ValidateMasking compares a masked record against its originals field by
// field. Fields with no registered rule are ignored; a registered field
// missing from the masked record is an error.
func (v *MaskingValidator) ValidateMasking(masked map[string]interface{}, originals map[string]string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	rules := make([]*MaskingRule, 0, len(v.rules))
	for _, rule := range v.rules {
		rules = append(rules, rule)
	}
	v.mu.RUnlock()

	checked := 0
	for _, rule := range rules {
		original, hasOriginal := originals[rule.Field]
		if !hasOriginal {
			continue
		}

		raw, present := masked[rule.Field]
		if !present {
			result.AddError(fmt.Sprintf("field '%s': missing from masked record", rule.Field))
			continue
		}
		maskedValue, ok := raw.(string)
		if !ok {
			result.AddError(fmt.Sprintf("field '%s': masked value is not a string", rule.Field))
			continue
		}

		checked++
		if maskedValue == original {
			result.AddError(fmt.Sprintf("field '%s': value is unchanged from the original", rule.Field))
			continue
		}
		if err := v.checkStrategy(rule, original, maskedValue); err != nil {
			result.AddError(fmt.Sprintf("field '%s': %v", rule.Field, err))
		}
	}

	result.SetMetadata("fields_checked", checked)
	return result
}

func (v *MaskingValidator) checkStrategy(rule *MaskingRule, original, masked string) error {
	switch rule.Strategy {
	case MaskHash:
		if !looksLikeHash(masked) {
			return fmt.Errorf("value does not look like a hex digest")
		}
		sum := sha256.Sum256([]byte(original))
		if strings.EqualFold(masked, hex.EncodeToString(sum[:])) {
			return nil
		}
		// Other digest algorithms and salted hashes pass on shape alone.
		return nil

	case MaskTruncate:
		if len(masked) >= len(original) {
			return fmt.Errorf("truncated value is not shorter than the original")
		}
		if !strings.HasPrefix(original, strings.TrimRight(masked, ".")) {
			return fmt.Errorf("truncated value is not a prefix of the original")
		}
		return nil

	case MaskSubstitute:
		if !strings.ContainsAny(masked, "*X#") {
			return fmt.Errorf("substituted value contains no masking characters")
		}
		return nil

	case MaskEncrypt:
		decoded, err := base64.StdEncoding.DecodeString(masked)
		if err != nil {
			return fmt.Errorf("encrypted value is not valid base64")
		}
		if string(decoded) == original {
			return fmt.Errorf("encrypted value is just the base64 encoding of the original")
		}
		return nil

	case MaskCustom:
		if !rule.Check(original, masked) {
			return fmt.Errorf("custom masking check failed")
		}
		return nil

	default:
		return fmt.Errorf("unknown masking strategy: %s", rule.Strategy)
	}
}

// directIdentifiers are fields that must never survive anonymization intact
var directIdentifiers = []string{"name", "email", "phone", "ssn", "address", "date_of_birth"}

// quasiIdentifiers are fields anonymization should generalize rather than
// remove, since k-anonymity grouping depends on them
var quasiIdentifiers = []string{"age", "gender", "zip_code", "city", "country", "occupation"}

// ValidateAnonymization checks that direct identifiers changed between the
// original and anonymized records and that enough quasi-identifiers remain
// for k-anonymity grouping. Actual group sizes need the full dataset and
// are not computed here; the result carries a warning to that effect.
func (v *MaskingValidator) ValidateAnonymization(original, anonymized map[string]interface{}, k int) *models.ValidationResult {
	result := models.NewValidationResult()

	if k < 2 {
		result.AddError(fmt.Sprintf("k must be at least 2, got %d", k))
		return result
	}

	for _, field := range directIdentifiers {
		origValue, inOriginal := original[field]
		anonValue, inAnonymized := anonymized[field]
		if !inOriginal || !inAnonymized {
			continue
		}
		if fmt.Sprintf("%v", origValue) == fmt.Sprintf("%v", anonValue) {
			result.AddError(fmt.Sprintf("field '%s': direct identifier unchanged after anonymization", field))
		}
	}

	remaining := 0
	for _, field := range quasiIdentifiers {
		if _, present := anonymized[field]; present {
			remaining++
		}
	}
	result.SetMetadata("quasi_identifiers_present", remaining)
	if remaining < 2 {
		result.AddError(fmt.Sprintf(
			"only %d quasi-identifiers remain; at least 2 are needed for %d-anonymity grouping", remaining, k))
	}

	result.AddWarning(fmt.Sprintf(
		"%d-anonymity group sizes not verified; single-record check covers identifier handling only", k))
	result.SetMetadata("k", k)

	return result
}

func looksLikeHash(value string) bool {
	switch len(value) {
	case 32, 40, 64, 128:
	default:
		return false
	}
	for _, r := range value {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
