// Package execute is the thin orchestration layer binding adapter
// resolution, the execute confirmation policy, and the operation journal
// together behind the /agp discover, query, and execute HTTP operations.
package execute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/confirm"
	"github.com/agenr/gateway/internal/journal"
	"github.com/agenr/gateway/internal/vault"
)

// Registry resolves an adapter factory for a (platform, principalID) pair. It
// is satisfied by *adapter.Registry; declared here so this package depends
// only on the narrow surface it actually calls. principalID scopes sandbox
// adapter ownership to the raw API key — see auth.Identity.PrincipalID.
type Registry interface {
	Resolve(platform, principalID string) (adapter.Adapter, adapter.Manifest, bool)
}

// Service wires adapter resolution, credential retrieval, execute-policy
// enforcement, and journal persistence into the three operation entry points.
type Service struct {
	registry Registry
	vault    *vault.Vault
	confirm  *confirm.Service
	journal  *journal.Store
	audit    *audit.Writer
	logger   *slog.Logger
}

func NewService(registry Registry, v *vault.Vault, confirmSvc *confirm.Service, journalStore *journal.Store, auditWriter *audit.Writer, logger *slog.Logger) *Service {
	return &Service{registry: registry, vault: v, confirm: confirmSvc, journal: journalStore, audit: auditWriter, logger: logger}
}

// Discover resolves the platform adapter and calls its Discover operation.
// No execute-policy check or credential is required. principalID scopes the
// sandbox-adapter lookup and the journal entry to the caller's raw API key.
func (s *Service) Discover(ctx context.Context, platform, principalID, businessID string, params map[string]any) (*journal.Transaction, adapter.Response, error) {
	return s.run(ctx, journal.OperationDiscover, platform, principalID, "", businessID, params, func(a adapter.Adapter, req adapter.Request) (adapter.Response, error) {
		return a.Discover(ctx, req)
	}, false)
}

// Query resolves the platform adapter, attaches the credential owner's
// credential if one exists, and calls Query. principalID scopes the
// sandbox-adapter lookup and the journal entry; credentialOwnerID scopes the
// vault lookup, which is deliberately shared across every API key linked to
// the same user (see auth.Identity.OwnerID).
func (s *Service) Query(ctx context.Context, platform, principalID, credentialOwnerID, businessID string, params map[string]any) (*journal.Transaction, adapter.Response, error) {
	return s.run(ctx, journal.OperationQuery, platform, principalID, credentialOwnerID, businessID, params, func(a adapter.Adapter, req adapter.Request) (adapter.Response, error) {
		return a.Query(ctx, req)
	}, true)
}

// Execute enforces the configured execute policy (open/confirm/strict) before
// calling the adapter's Execute operation. token is the x-confirmation-token
// header value, ignored entirely under the open policy. See Query for the
// principalID/credentialOwnerID split.
func (s *Service) Execute(ctx context.Context, platform, principalID, credentialOwnerID, businessID string, params map[string]any, token string) (*journal.Transaction, adapter.Response, error) {
	if err := s.confirm.Enforce(ctx, businessID, params, token); err != nil {
		return nil, adapter.Response{}, err
	}
	return s.run(ctx, journal.OperationExecute, platform, principalID, credentialOwnerID, businessID, params, func(a adapter.Adapter, req adapter.Request) (adapter.Response, error) {
		return a.Execute(ctx, req)
	}, true)
}

// Prepare delegates to confirm.Service.Prepare so /agp/execute's two-phase
// flow has a single entry point through this package.
func (s *Service) Prepare(ctx context.Context, businessID string, params map[string]any, summary string) (*confirm.PrepareResult, error) {
	return s.confirm.Prepare(ctx, businessID, params, summary)
}

func (s *Service) run(
	ctx context.Context,
	operation, platform, principalID, credentialOwnerID, businessID string,
	params map[string]any,
	call func(adapter.Adapter, adapter.Request) (adapter.Response, error),
	withCredential bool,
) (*journal.Transaction, adapter.Response, error) {
	a, manifest, ok := s.registry.Resolve(platform, principalID)
	if !ok {
		return nil, adapter.Response{}, apperr.NotFound(fmt.Sprintf("no adapter registered for platform %q", platform))
	}

	tx, err := s.journal.Begin(ctx, operation, businessID, principalID, params)
	if err != nil {
		return nil, adapter.Response{}, apperr.Transient("opening transaction journal entry", err)
	}

	req := adapter.Request{BusinessID: businessID, Params: params}
	if withCredential && manifest.Auth.Type != "none" {
		cred, err := s.vault.RetrieveCredential(ctx, credentialOwnerID, platform, false)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			_ = s.journal.Fail(ctx, tx.ID, err.Error())
			return tx, adapter.Response{}, err
		}
		req.Credential = cred
	}

	resp, err := call(a, req)
	owner := bareOwnerID(principalID)
	if err != nil {
		if failErr := s.journal.Fail(ctx, tx.ID, err.Error()); failErr != nil {
			s.logger.Error("recording transaction failure", "transaction_id", tx.ID, "error", failErr)
		}
		if s.audit != nil {
			s.audit.Log(audit.Entry{UserID: &owner, ServiceID: &platform, Action: operation + "_failed"})
		}
		return tx, adapter.Response{}, err
	}

	if completeErr := s.journal.Complete(ctx, tx.ID, resp); completeErr != nil {
		s.logger.Error("recording transaction success", "transaction_id", tx.ID, "error", completeErr)
	}
	if s.audit != nil {
		s.audit.Log(audit.Entry{UserID: &owner, ServiceID: &platform, Action: operation + "_succeeded"})
	}
	return tx, resp, nil
}

// bareOwnerID strips the "user:"/"key:" scope prefix auth.Identity.OwnerID and
// auth.Identity.PrincipalID add, since the audit table's user_id column holds
// a bare identifier.
func bareOwnerID(ownerID string) string {
	for _, prefix := range []string{"user:", "key:"} {
		if len(ownerID) > len(prefix) && ownerID[:len(prefix)] == prefix {
			return ownerID[len(prefix):]
		}
	}
	return ownerID
}

// Get returns a previously journaled transaction, scoped to principalID.
func (s *Service) Get(ctx context.Context, id, principalID string) (*journal.Transaction, error) {
	return s.journal.Get(ctx, id, principalID)
}
