package privacy

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// Decryptor attempts to decrypt a ciphertext, returning the plaintext
type Decryptor func(ciphertext string) (string, error)

// EncryptionRule declares how a field's stored value must look
type EncryptionRule struct {
	Field        string
	Algorithm    string
	ExpectBase64 bool
}

// EncryptionValidator checks that values registered as encrypted do not
// look like plaintext and match the declared encoding and algorithm shape.
type EncryptionValidator struct {
	logger *zap.Logger
	mu     sync.RWMutex
	rules  map[string]*EncryptionRule
}

var commonWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true,
	"this": true, "that": true, "from": true, "have": true, "was": true,
	"you": true, "not": true,
}

// NewEncryptionValidator creates an encryption validator with no rules
func NewEncryptionValidator(logger *zap.Logger) *EncryptionValidator {
	return &EncryptionValidator{
		logger: logger,
		rules:  make(map[string]*EncryptionRule),
	}
}

// RegisterRule registers the encryption expectations for a field
func (v *EncryptionValidator) RegisterRule(rule *EncryptionRule) error {
	if rule == nil || rule.Field == "" {
		return fmt.Errorf("rule must name a field")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[rule.Field] = rule
	return nil
}

// ValidateRecord checks every registered field present in the record
func (v *EncryptionValidator) ValidateRecord(record map[string]interface{}) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	rules := make([]*EncryptionRule, 0, len(v.rules))
	for _, rule := range v.rules {
		rules = append(rules, rule)
	}
	v.mu.RUnlock()

	for _, rule := range rules {
		v.checkField(record, rule, result)
	}

	return result
}

// ValidateRecordFields checks the named fields of a record. A field with a
// registered rule is held to that rule; the rest get the plaintext
// heuristics alone.
func (v *EncryptionValidator) ValidateRecordFields(record map[string]interface{}, fields []string) *models.ValidationResult {
	result := models.NewValidationResult()

	for _, field := range fields {
		v.mu.RLock()
		rule := v.rules[field]
		v.mu.RUnlock()
		if rule == nil {
			rule = &EncryptionRule{Field: field}
		}
		v.checkField(record, rule, result)
	}

	return result
}

func (v *EncryptionValidator) checkField(record map[string]interface{}, rule *EncryptionRule, result *models.ValidationResult) {
	raw, present := record[rule.Field]
	if !present {
		result.AddWarning(fmt.Sprintf("field '%s': not present in record", rule.Field))
		return
	}
	value, ok := raw.(string)
	if !ok {
		result.AddError(fmt.Sprintf("field '%s': encrypted value is not a string", rule.Field))
		return
	}
	prefixInto(result, v.ValidateEncrypted(value, rule.ExpectBase64, rule.Algorithm), rule.Field)
}

// ValidateEncrypted applies plaintext heuristics to a value and, when a
// base64 encoding or an AES block shape is declared, verifies those too.
// Heuristics cannot prove encryption; they catch values that were stored
// unprotected by mistake.
func (v *EncryptionValidator) ValidateEncrypted(value string, expectBase64 bool, algorithm string) *models.ValidationResult {
	result := models.NewValidationResult()

	if len(value) < 10 {
		result.AddError("value is too short to be ciphertext")
		return result
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		result.AddError("value looks like a plaintext email address")
	}
	if countCommonWords(value) >= 3 {
		result.AddError("value reads like plaintext prose")
	}

	if expectBase64 {
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			result.AddError("value is not valid base64")
			return result
		}
		if strings.EqualFold(algorithm, "aes") {
			if len(decoded) < 32 {
				result.AddError(fmt.Sprintf("decoded ciphertext is %d bytes, below the AES minimum of 32", len(decoded)))
			} else if len(decoded)%16 != 0 {
				result.AddError(fmt.Sprintf("decoded ciphertext length %d is not a multiple of the AES block size", len(decoded)))
			}
		}
	}

	return result
}

// ValidateWithDecryption proves round-trip encryption by decrypting the
// value with a caller-supplied decryptor. A decryption failure or a
// plaintext equal to the ciphertext both fail.
func (v *EncryptionValidator) ValidateWithDecryption(ciphertext string, decrypt Decryptor) *models.ValidationResult {
	result := models.NewValidationResult()

	plaintext, err := v.runDecryptor(decrypt, ciphertext)
	if err != nil {
		result.AddError(fmt.Sprintf("decryption failed: %v", err))
		return result
	}
	if plaintext == ciphertext {
		result.AddError("decryption returned the ciphertext unchanged; value was not encrypted")
	}

	return result
}

func (v *EncryptionValidator) runDecryptor(decrypt Decryptor, ciphertext string) (plaintext string, err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("Decryptor panicked", zap.Any("panic", r))
			err = fmt.Errorf("decryptor panicked: %v", r)
		}
	}()
	return decrypt(ciphertext)
}

func countCommonWords(value string) int {
	count := 0
	for _, word := range strings.Fields(strings.ToLower(value)) {
		if commonWords[strings.Trim(word, ".,!?;:")] {
			count++
		}
	}
	return count
}

func prefixInto(target, source *models.ValidationResult, field string) {
	for _, msg := range source.Errors {
		target.AddError(fmt.Sprintf("field '%s': %s", field, msg))
	}
	for _, msg := range source.Warnings {
		target.AddWarning(fmt.Sprintf("field '%s': %s", field, msg))
	}
}
