// Package adapter implements the platform adapter lifecycle registry: the
// sandbox -> review -> public/rejected/archived state machine, scoped vs
// public resolution, store/filesystem synchronisation, and hot-loading of
// adapter factories keyed by platform.
package adapter

import (
	"context"
	"time"
)

// Lifecycle states a single adapter row can occupy.
const (
	StatusSandbox  = "sandbox"
	StatusReview   = "review"
	StatusPublic   = "public"
	StatusRejected = "rejected"
	StatusArchived = "archived"
)

// SystemOwnerID is the fixed owner of bundled, source-controlled adapters.
const SystemOwnerID = "system"

// Request is the uniform envelope passed into every adapter operation. Its
// shape is intentionally generic: concrete adapters interpret Params however
// their manifest's handler table declares.
type Request struct {
	BusinessID string
	Params     map[string]any
	Credential map[string]any // decrypted credential payload, or nil if the platform needs none
}

// Response is the uniform result of an adapter operation.
type Response struct {
	Data    map[string]any
	Summary string
}

// OAuthConfig describes an adapter's OAuth2 endpoints, present only when
// Auth.Type is "oauth2" and both URLs are HTTPS.
type OAuthConfig struct {
	AuthorizationURL string `json:"authorizationUrl"`
	TokenURL         string `json:"tokenUrl"`
}

// AuthConfig describes how an adapter authenticates outbound calls.
type AuthConfig struct {
	Type  string       `json:"type"` // api_key | oauth2 | client_credentials | cookie | app_oauth | none
	OAuth *OAuthConfig `json:"oauth,omitempty"`
}

// Manifest is the descriptor every adapter factory exposes: its platform
// identifier, semantic version, authentication strategy, and the domains it
// is allowed to call.
type Manifest struct {
	Platform             string     `json:"platform"`
	Version              string     `json:"version"`
	Auth                 AuthConfig `json:"auth"`
	AllowedDomains        []string   `json:"allowedDomains,omitempty"`
	AuthenticatedDomains  []string   `json:"authenticatedDomains,omitempty"`
	Scopes                []string   `json:"scopes,omitempty"`
}

// Adapter is the capability set a platform factory produces: discover, query
// and execute are each independently callable; concrete business logic is an
// external collaborator, never implemented by this package.
type Adapter interface {
	Describe() Manifest
	Discover(ctx context.Context, req Request) (Response, error)
	Query(ctx context.Context, req Request) (Response, error)
	Execute(ctx context.Context, req Request) (Response, error)
}

// Factory constructs a fresh Adapter instance. Factories are cheap and
// stateless; the registry keeps one factory per load and calls it on every
// Resolve.
type Factory func() (Adapter, error)

// Row is the persisted shape of an adapters table row.
type Row struct {
	ID             string
	Platform       string
	OwnerID        string
	Status         string
	FilePath       string
	SourceCode     *string
	SourceHash     string
	CreatedAt      time.Time
	PromotedAt     *time.Time
	SubmittedAt    *time.Time
	ReviewedAt     *time.Time
	ArchivedAt     *time.Time
	PromotedBy     *string
	ReviewMessage  *string
	ReviewFeedback *string
}

// IsTerminal reports whether status is one a row cannot leave via the normal
// submit/promote/demote flow without an explicit restore.
func IsTerminal(status string) bool {
	return status == StatusRejected || status == StatusArchived
}
