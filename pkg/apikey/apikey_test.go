package apikey

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRow_ToResponse(t *testing.T) {
	id := uuid.New()
	userID := uuid.New()
	now := time.Now()

	row := Row{
		ID:        id,
		KeyHash:   "should-not-appear-in-response",
		Tier:      "paid",
		UserID:    &userID,
		Scopes:    []string{"discover", "query"},
		CreatedAt: now,
	}

	resp := row.ToResponse()

	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "paid", resp.Tier)
	assert.Equal(t, &userID, resp.UserID)
	assert.Equal(t, []string{"discover", "query"}, resp.Scopes)
	assert.Equal(t, now, resp.CreatedAt)
}

func TestEnsureSlice_NilBecomesEmpty(t *testing.T) {
	row := Row{Scopes: nil}
	assert.Equal(t, []string{}, row.ToResponse().Scopes)
}

func TestEnsureSlice_PreservesExisting(t *testing.T) {
	row := Row{Scopes: []string{"a"}}
	assert.Equal(t, []string{"a"}, row.ToResponse().Scopes)
}
