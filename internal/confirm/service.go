package confirm

import (
	"context"
	"fmt"

	"github.com/agenr/gateway/internal/apperr"
)

// Service enforces one of the three execute policies and implements the
// two-phase prepare/consume confirmation-token flow behind it.
type Service struct {
	store          *Store
	policy         Policy
	maxAmountCents int64
}

func NewService(store *Store, policy Policy, maxAmountCents int64) *Service {
	if maxAmountCents <= 0 {
		maxAmountCents = DefaultMaxAmountCents
	}
	return &Service{store: store, policy: policy, maxAmountCents: maxAmountCents}
}

// PrepareResult is returned to the caller of prepareExecuteConfirmation.
type PrepareResult struct {
	ConfirmationToken string `json:"confirmation_token"`
	ExpiresAt         int64  `json:"expires_at"`
	Summary           string `json:"summary"`
}

// Prepare computes the request hash, mints an opaque single-use token, and
// persists it. summary is a caller-supplied human-readable description of
// the pending operation, echoed back unmodified.
func (s *Service) Prepare(ctx context.Context, businessID string, request any, summary string) (*PrepareResult, error) {
	now := nowMs()
	if _, err := s.store.SweepExpired(ctx, now); err != nil {
		return nil, err
	}

	hash, err := RequestHash(businessID, request)
	if err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("hashing execute request: %v", err))
	}
	token, err := newOpaqueToken()
	if err != nil {
		return nil, apperr.Transient("generating confirmation token", err)
	}

	t := Token{
		Token:       token,
		BusinessID:  businessID,
		RequestHash: hash,
		Summary:     summary,
		CreatedAtMs: now,
		ExpiresAtMs: now + DefaultTokenTTL.Milliseconds(),
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, apperr.Transient("persisting confirmation token", err)
	}

	return &PrepareResult{ConfirmationToken: token, ExpiresAt: t.ExpiresAtMs, Summary: summary}, nil
}

// ConfirmError carries a stable Reason alongside the forbidden apperr.Error
// so callers can report exactly why confirmation failed.
type ConfirmError struct {
	*apperr.Error
	Reason Reason
}

// Unwrap overrides the embedded *apperr.Error's own Unwrap so that
// errors.As(err, &apperrErr) resolves to the ConfirmError's Error itself,
// not its (nil) wrapped cause.
func (c *ConfirmError) Unwrap() error { return c.Error }

func confirmFailure(reason Reason) *ConfirmError {
	return &ConfirmError{
		Error:  apperr.Forbidden(fmt.Sprintf("confirmation token %s", reason)),
		Reason: reason,
	}
}

// Enforce validates an execute request against the configured policy. token
// is the raw x-confirmation-token header value (possibly empty).
func (s *Service) Enforce(ctx context.Context, businessID string, request any, token string) error {
	switch s.policy {
	case PolicyOpen:
		return nil
	case PolicyStrict:
		if err := s.checkAmountCeiling(request); err != nil {
			return err
		}
		fallthrough
	case PolicyConfirm:
		return s.consumeToken(ctx, businessID, request, token)
	default:
		return s.consumeToken(ctx, businessID, request, token)
	}
}

func (s *Service) checkAmountCeiling(request any) error {
	amount, ok := extractAmountCents(request)
	if !ok {
		return nil
	}
	if amount > s.maxAmountCents {
		return apperr.Forbidden(fmt.Sprintf("amount %d cents exceeds strict-policy ceiling of %d", amount, s.maxAmountCents))
	}
	return nil
}

func extractAmountCents(request any) (int64, bool) {
	m, ok := request.(map[string]any)
	if !ok {
		return 0, false
	}
	if v, ok := numeric(m["amount_cents"]); ok {
		return v, true
	}
	if v, ok := numeric(m["amount"]); ok {
		return v, true
	}
	return 0, false
}

func numeric(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func (s *Service) consumeToken(ctx context.Context, businessID string, request any, token string) error {
	now := nowMs()
	if _, err := s.store.SweepExpired(ctx, now); err != nil {
		return err
	}

	if token == "" {
		return confirmFailure(ReasonMissing)
	}

	t, err := s.store.Get(ctx, token)
	if err != nil {
		return apperr.Transient("loading confirmation token", err)
	}
	if t == nil {
		return confirmFailure(ReasonInvalid)
	}
	if t.ExpiresAtMs < now {
		return confirmFailure(ReasonExpired)
	}
	if t.BusinessID != businessID {
		return confirmFailure(ReasonMismatch)
	}

	hash, err := RequestHash(businessID, request)
	if err != nil {
		return apperr.Invalid(fmt.Sprintf("hashing execute request: %v", err))
	}
	if hash != t.RequestHash {
		return confirmFailure(ReasonMismatch)
	}

	consumed, err := s.store.Consume(ctx, token)
	if err != nil {
		return apperr.Transient("consuming confirmation token", err)
	}
	if !consumed {
		// Lost the race to a concurrent consume of the same token.
		return confirmFailure(ReasonInvalid)
	}
	return nil
}
