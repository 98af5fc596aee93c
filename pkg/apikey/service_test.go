package apikey

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreate_RejectsMalformedUserID(t *testing.T) {
	s := &Service{store: nil, logger: slog.Default()}

	badID := "not-a-uuid"
	_, err := s.Create(context.Background(), CreateRequest{Tier: "paid", UserID: &badID})

	assert.Error(t, err)
}

func TestEnsureBootstrapAdmin_NoOpOnEmptyRaw(t *testing.T) {
	s := &Service{store: nil, logger: slog.Default()}

	err := s.EnsureBootstrapAdmin(context.Background(), "")
	assert.NoError(t, err)
}
