package genjob

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSkeletonGenerator_ProducesValidManifestForPlatform(t *testing.T) {
	gen := NewSkeletonGenerator(io.Discard)

	var lines []string
	src, err := gen.Generate(context.Background(), "stripe", func(line string) {
		lines = append(lines, line)
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, lines)

	var doc struct {
		Manifest struct {
			Platform string `json:"platform"`
			Version  string `json:"version"`
			Auth     struct {
				Type string `json:"type"`
			} `json:"auth"`
		} `json:"manifest"`
		Handlers map[string]struct {
			Method      string `json:"method"`
			URLTemplate string `json:"urlTemplate"`
		} `json:"handlers"`
	}
	assert.NoError(t, json.Unmarshal([]byte(src), &doc))

	assert.Equal(t, "stripe", doc.Manifest.Platform)
	assert.Equal(t, "api_key", doc.Manifest.Auth.Type)
	assert.Contains(t, doc.Handlers, "discover")
	assert.Contains(t, doc.Handlers, "query")
	assert.Contains(t, doc.Handlers, "execute")
	assert.Equal(t, "POST", doc.Handlers["execute"].Method)
}

func TestSkeletonGenerator_RespectsContextCancellation(t *testing.T) {
	gen := NewSkeletonGenerator(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := gen.Generate(ctx, "stripe", func(string) {})
	assert.Error(t, err)
}
