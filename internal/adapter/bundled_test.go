package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		current   string
		want      bool
	}{
		{"strictly newer", "1.2.0", "1.1.0", true},
		{"equal", "1.1.0", "1.1.0", false},
		{"older", "1.0.0", "1.1.0", false},
		{"unparseable current always loses", "1.0.0", "not-a-version", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := isNewerVersion(tt.candidate, tt.current)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsNewerVersion_UnparseableCandidateErrors(t *testing.T) {
	_, err := isNewerVersion("not-a-version", "1.0.0")
	assert.Error(t, err)
}
