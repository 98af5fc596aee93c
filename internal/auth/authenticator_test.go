package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAPIKey(t *testing.T) {
	raw, hash, err := GenerateAPIKey(TierPaid)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "agenr_paid_"))
	assert.Equal(t, HashAPIKey(raw), hash)

	raw2, _, err := GenerateAPIKey(TierPaid)
	assert.NoError(t, err)
	assert.NotEqual(t, raw, raw2, "each call must mint fresh entropy")
}
