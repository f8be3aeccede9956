package masking

import "strings"

const maskToken = "****"

// sensitiveKeys lists metadata keys whose values are redacted before persisting.
var sensitiveKeys = map[string]struct{}{
	"certificate_number": {},
	"tax_id_number":      {},
	"bank_account":       {},
}

// MaskSecret redacts a value while keeping the last four characters for reconciliation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy of metadata with sensitive keys redacted. Nested maps are
// walked; other values are copied through.
func MaskMetadata(input map[string]any) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitiveKeys[trimmedKey]; ok {
			if str, ok := value.(string); ok {
				masked[trimmedKey] = MaskSecret(str)
				continue
			}
		}
		if nested, ok := value.(map[string]any); ok {
			masked[trimmedKey] = MaskMetadata(nested)
			continue
		}
		masked[trimmedKey] = value
	}
	return masked
}
