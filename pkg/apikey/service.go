package apikey

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenr/gateway/internal/auth"
)

// Service encapsulates API key lifecycle operations used by admin management
// endpoints. Request-time authentication is a separate concern (auth.Authenticator).
type Service struct {
	store  *Store
	logger *slog.Logger
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{
		store:  NewStore(pool),
		logger: logger,
	}
}

// List returns every API key.
func (s *Service) List(ctx context.Context) ([]Response, error) {
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Create generates a new API key, stores its hash, and returns the raw key once.
// Scopes default to the tier's default set when the caller does not specify any.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	raw, hash, err := auth.GenerateAPIKey(req.Tier)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("generating api key: %w", err)
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = auth.DefaultScopes(req.Tier)
	}

	var userID *uuid.UUID
	if req.UserID != nil {
		parsed, err := uuid.Parse(*req.UserID)
		if err != nil {
			return CreateResponse{}, fmt.Errorf("parsing user id: %w", err)
		}
		userID = &parsed
	}

	row, err := s.store.Create(ctx, CreateParams{
		KeyHash: hash,
		Tier:    req.Tier,
		UserID:  userID,
		Scopes:  scopes,
	})
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating api key: %w", err)
	}

	return CreateResponse{
		Response: row.ToResponse(),
		RawKey:   raw,
	}, nil
}

// Delete permanently removes an API key.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	return nil
}

// EnsureBootstrapAdmin mints an admin key with the given raw value if no key
// with its hash already exists. The bootstrap key participates in the same
// rate limiting and audit logging as any other key once minted.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	hash := auth.HashAPIKey(raw)

	exists, err := s.store.ExistsByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("checking bootstrap key: %w", err)
	}
	if exists {
		return nil
	}

	_, err = s.store.Create(ctx, CreateParams{
		KeyHash: hash,
		Tier:    auth.TierAdmin,
		Scopes:  auth.DefaultScopes(auth.TierAdmin),
	})
	if err != nil {
		return fmt.Errorf("creating bootstrap admin key: %w", err)
	}
	s.logger.Info("bootstrap admin key installed")
	return nil
}
