// Package apikey manages the lifecycle of ApiKey rows: admin-driven
// creation, listing, and deletion. Authentication itself (hash lookup on
// every request) lives in internal/auth, which reads the same table.
package apikey

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest is the JSON body for POST /v1/api-keys.
type CreateRequest struct {
	Tier   string   `json:"tier" validate:"required,oneof=free paid admin"`
	UserID *string  `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Scopes []string `json:"scopes,omitempty"`
}

// Response is the JSON response for a single API key (never the raw key).
type Response struct {
	ID             uuid.UUID  `json:"id"`
	Tier           string     `json:"tier"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Scopes         []string   `json:"scopes"`
	RateLimitOverride *int    `json:"rate_limit_override,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateResponse includes the raw key, shown exactly once at creation.
type CreateResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// Row represents a row from the api_keys table.
type Row struct {
	ID                uuid.UUID
	KeyHash           string
	Tier              string
	UserID            *uuid.UUID
	Scopes            []string
	RateLimitOverride *int
	LastUsedAt        *time.Time
	CreatedAt         time.Time
}

// ToResponse converts a Row to its public DTO.
func (r *Row) ToResponse() Response {
	return Response{
		ID:                r.ID,
		Tier:              r.Tier,
		UserID:            r.UserID,
		Scopes:            ensureSlice(r.Scopes),
		RateLimitOverride: r.RateLimitOverride,
		LastUsedAt:        r.LastUsedAt,
		CreatedAt:         r.CreatedAt,
	}
}

func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
