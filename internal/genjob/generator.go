package genjob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Generator is the external collaborator that produces adapter source for a
// platform. The code-generation LLM itself is out of scope (spec.md §1); this
// interface is the narrow boundary a real implementation plugs into.
type Generator interface {
	Generate(ctx context.Context, platform string, onLog func(line string)) (sourceCode string, err error)
}

// skeletonGenerator is the bundled default Generator: it does not call an
// LLM, it emits a minimal generic-adapter source document (a manifest plus
// placeholder discover/query/execute handlers) so the job queue, the adapter
// registry, and the
// full lifecycle have something real to move through end to end. A
// production deployment swaps this for a client that talks to the actual
// code-generation service.
type skeletonGenerator struct {
	logger zerolog.Logger
}

// NewSkeletonGenerator builds the bundled Generator. out is the subprocess-style
// log sink (typically the worker's stderr or a file); zerolog is used here
// rather than slog because this wrapper models an out-of-process generator
// whose stdout/stderr would be piped line-by-line, and zerolog's
// ConsoleWriter/JSON dual mode suits that shape directly.
func NewSkeletonGenerator(out io.Writer) Generator {
	return &skeletonGenerator{
		logger: zerolog.New(out).With().Timestamp().Str("component", "genjob.generator").Logger(),
	}
}

func (g *skeletonGenerator) Generate(ctx context.Context, platform string, onLog func(line string)) (string, error) {
	log := g.logger.With().Str("platform", platform).Logger()

	log.Info().Msg("generation started")
	onLog(fmt.Sprintf("starting generation for platform %q", platform))

	select {
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("generation cancelled")
		return "", ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	onLog("drafting manifest")
	doc := struct {
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
	}{}
	doc.Manifest.Platform = platform
	doc.Manifest.Version = "0.1.0"
	doc.Manifest.Auth.Type = "api_key"
	doc.Handlers = map[string]struct {
		Method      string `json:"method"`
		URLTemplate string `json:"urlTemplate"`
	}{
		"discover": {Method: "GET", URLTemplate: fmt.Sprintf("https://api.%s.example.com/v1/discover", platform)},
		"query":    {Method: "GET", URLTemplate: fmt.Sprintf("https://api.%s.example.com/v1/query", platform)},
		"execute":  {Method: "POST", URLTemplate: fmt.Sprintf("https://api.%s.example.com/v1/execute", platform)},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		log.Error().Err(err).Msg("marshalling generated source")
		return "", fmt.Errorf("marshalling generated adapter source: %w", err)
	}

	onLog("generation complete")
	log.Info().Msg("generation complete")
	return string(raw), nil
}
