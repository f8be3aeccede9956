package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****6789", MaskSecret("RES-123456789"))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"certificate_number": "RES-123456789",
		"exemption_type":     "resale",
		"":                   "dropped",
		"nested": map[string]any{
			"bank_account": "000111222333",
		},
	})

	assert.Equal(t, "****6789", out["certificate_number"])
	assert.Equal(t, "resale", out["exemption_type"])
	assert.NotContains(t, out, "")
	assert.Equal(t, map[string]any{"bank_account": "****2333"}, out["nested"])
}
