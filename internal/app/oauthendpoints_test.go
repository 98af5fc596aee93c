package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestResolveTokenEndpoint_NoRegisteredAdapterIsNotFound(t *testing.T) {
	registry, err := adapter.NewRegistry(nil, slog.Default())
	assert.NoError(t, err)

	r := newAdapterEndpointResolver(registry, nil)
	_, err = r.ResolveTokenEndpoint(context.Background(), "stripe")

	assert.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
