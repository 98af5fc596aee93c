package execute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBareOwnerID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"user prefix", "user:abc-123", "abc-123"},
		{"key prefix", "key:abc-123", "abc-123"},
		{"no prefix", "abc-123", "abc-123"},
		{"prefix only, no id", "user:", "user:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bareOwnerID(tt.in))
		})
	}
}
