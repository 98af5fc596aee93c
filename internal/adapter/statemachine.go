package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agenr/gateway/internal/apperr"
	"github.com/jackc/pgx/v5"
)

// Service implements the adapter lifecycle state machine on top of Store and
// Registry: upload/generate, submit, withdraw, promote, demote, reject,
// restore, archive and hard-delete.
type Service struct {
	store      *Store
	registry   *Registry
	sandboxDir string
	publicDir  string
	rejectedDir string
}

func NewService(store *Store, registry *Registry, sandboxDir, publicDir, rejectedDir string) *Service {
	return &Service{store: store, registry: registry, sandboxDir: sandboxDir, publicDir: publicDir, rejectedDir: rejectedDir}
}

// Upload creates (or overwrites) a sandbox adapter row for (platform, ownerID)
// from caller-supplied source, materialises the file, and hot-loads a scoped
// factory immediately.
func (s *Service) Upload(ctx context.Context, platform, ownerID, sourceCode string) (*Row, error) {
	platform = normalizePlatform(platform)

	existing, err := s.store.GetByPlatformOwner(ctx, platform, ownerID)
	if err != nil {
		return nil, apperr.Transient("loading adapter", err)
	}
	if existing != nil && IsTerminal(existing.Status) {
		return nil, apperr.Conflict(fmt.Sprintf("adapter %s is %s; restore it before uploading again", platform, existing.Status))
	}

	filePath := filepath.Join(s.sandboxDir, ownerID, platform+".json")
	if existing != nil {
		if err := s.store.UpdateSource(ctx, existing.ID, filePath, sourceCode); err != nil {
			return nil, apperr.Transient("updating adapter source", err)
		}
	} else {
		row, err := s.store.Insert(ctx, platform, ownerID, filePath, sourceCode)
		if err != nil {
			return nil, apperr.Transient("inserting adapter", err)
		}
		existing = row
	}

	if err := writeFile(filePath, sourceCode); err != nil {
		return nil, apperr.Transient("writing adapter file", err)
	}

	if err := s.registry.Sync(ctx); err != nil {
		return nil, err
	}

	return s.store.GetByPlatformOwner(ctx, platform, ownerID)
}

// Submit moves a sandbox adapter into review.
func (s *Service) Submit(ctx context.Context, platform, ownerID string) error {
	row, err := s.requireOwned(ctx, platform, ownerID, StatusSandbox)
	if err != nil {
		return err
	}
	return s.store.SetStatus(ctx, row.ID, StatusReview, nil, nil, nil, nil, "submitted_at")
}

// Withdraw moves a review adapter back to sandbox.
func (s *Service) Withdraw(ctx context.Context, platform, ownerID string) error {
	row, err := s.requireOwned(ctx, platform, ownerID, StatusReview)
	if err != nil {
		return err
	}
	return s.store.SetStatus(ctx, row.ID, StatusSandbox, nil, nil, nil, nil, "")
}

// Reject rejects a review adapter. A non-empty feedback string keeps it
// reachable for resubmission context; an empty one is a hard "no" per the
// state diagram's "reject (no feedback)" edge. Either way the row lands in
// StatusRejected.
func (s *Service) Reject(ctx context.Context, platform, ownerID, message, feedback string) error {
	row, err := s.requireOwned(ctx, platform, ownerID, StatusReview)
	if err != nil {
		return err
	}
	var msgPtr, fbPtr *string
	if message != "" {
		msgPtr = &message
	}
	if feedback != "" {
		fbPtr = &feedback
	}
	return s.store.SetStatus(ctx, row.ID, StatusRejected, nil, nil, msgPtr, fbPtr, "reviewed_at")
}

// Promote makes (platform, ownerID)'s row the single public entry for
// platform. Any row currently public for the same platform is rejected and
// its file relocated under the rejected directory so only one status='public'
// row can ever exist (enforced by the DB's partial unique index as a
// backstop against a lost race).
func (s *Service) Promote(ctx context.Context, platform, ownerID, promotedBy string) error {
	platform = normalizePlatform(platform)

	row, err := s.store.GetByPlatformOwner(ctx, platform, ownerID)
	if err != nil {
		return apperr.Transient("loading adapter", err)
	}
	if row == nil {
		return apperr.NotFound(fmt.Sprintf("adapter %s not found for owner", platform))
	}
	if row.Status != StatusSandbox && row.Status != StatusReview {
		return apperr.Conflict(fmt.Sprintf("cannot promote adapter in status %s", row.Status))
	}

	prevPublic, err := s.store.GetPublic(ctx, platform)
	if err != nil {
		return apperr.Transient("loading current public adapter", err)
	}
	if prevPublic != nil && prevPublic.ID == row.ID {
		return apperr.Conflict("adapter is already public")
	}

	publicPath := filepath.Join(s.publicDir, platform+".json")

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if prevPublic != nil {
			rejectedPath := filepath.Join(s.rejectedDir, prevPublic.OwnerID, platform+".json")
			if _, err := tx.Exec(ctx,
				`UPDATE adapters SET status = $2, file_path = $3, archived_at = now() WHERE id = $1`,
				prevPublic.ID, StatusRejected, rejectedPath); err != nil {
				return fmt.Errorf("demoting previous public adapter: %w", err)
			}
			if prevPublic.SourceCode != nil {
				if err := writeFile(rejectedPath, *prevPublic.SourceCode); err != nil {
					return fmt.Errorf("relocating previous public adapter file: %w", err)
				}
			}
		}

		by := promotedBy
		if _, err := tx.Exec(ctx,
			`UPDATE adapters SET status = $2, file_path = $3, promoted_at = now(), promoted_by = $4 WHERE id = $1`,
			row.ID, StatusPublic, publicPath, by); err != nil {
			return fmt.Errorf("promoting adapter: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperr.Conflict(err.Error())
	}

	if row.SourceCode != nil {
		if err := writeFile(publicPath, *row.SourceCode); err != nil {
			return apperr.Transient("writing public adapter file", err)
		}
	}

	return s.registry.Sync(ctx)
}

// Demote sends the public row for platform back to its owner's sandbox slot.
func (s *Service) Demote(ctx context.Context, platform string) error {
	platform = normalizePlatform(platform)
	row, err := s.store.GetPublic(ctx, platform)
	if err != nil {
		return apperr.Transient("loading public adapter", err)
	}
	if row == nil {
		return apperr.NotFound(fmt.Sprintf("no public adapter for platform %s", platform))
	}

	sandboxPath := filepath.Join(s.sandboxDir, row.OwnerID, platform+".json")
	if err := s.store.SetStatus(ctx, row.ID, StatusSandbox, &sandboxPath, nil, nil, nil, ""); err != nil {
		return apperr.Transient("demoting adapter", err)
	}
	if row.SourceCode != nil {
		if err := writeFile(sandboxPath, *row.SourceCode); err != nil {
			return apperr.Transient("writing sandbox adapter file", err)
		}
	}
	return s.registry.Sync(ctx)
}

// Archive soft-deletes a sandbox/review/rejected adapter owned by ownerID.
func (s *Service) Archive(ctx context.Context, platform, ownerID string) error {
	row, err := s.store.GetByPlatformOwner(ctx, normalizePlatform(platform), ownerID)
	if err != nil {
		return apperr.Transient("loading adapter", err)
	}
	if row == nil {
		return apperr.NotFound("adapter not found")
	}
	if row.Status == StatusPublic {
		return apperr.Conflict("cannot archive a public adapter; demote it first")
	}
	if err := s.store.SetStatus(ctx, row.ID, StatusArchived, nil, nil, nil, nil, "archived_at"); err != nil {
		return apperr.Transient("archiving adapter", err)
	}
	return s.registry.Sync(ctx)
}

// Restore brings an archived adapter back to sandbox.
func (s *Service) Restore(ctx context.Context, platform, ownerID string) error {
	row, err := s.store.GetByPlatformOwner(ctx, normalizePlatform(platform), ownerID)
	if err != nil {
		return apperr.Transient("loading adapter", err)
	}
	if row == nil {
		return apperr.NotFound("adapter not found")
	}
	if row.Status != StatusArchived && row.Status != StatusRejected {
		return apperr.Conflict(fmt.Sprintf("cannot restore adapter in status %s", row.Status))
	}
	sandboxPath := filepath.Join(s.sandboxDir, ownerID, row.Platform+".json")
	if err := s.store.SetStatus(ctx, row.ID, StatusSandbox, &sandboxPath, nil, nil, nil, ""); err != nil {
		return apperr.Transient("restoring adapter", err)
	}
	if row.SourceCode != nil {
		if err := writeFile(sandboxPath, *row.SourceCode); err != nil {
			return apperr.Transient("writing restored adapter file", err)
		}
	}
	return s.registry.Sync(ctx)
}

// HardDelete permanently removes an adapter row and its file.
func (s *Service) HardDelete(ctx context.Context, platform, ownerID string) error {
	row, err := s.store.GetByPlatformOwner(ctx, normalizePlatform(platform), ownerID)
	if err != nil {
		return apperr.Transient("loading adapter", err)
	}
	if row == nil {
		return apperr.NotFound("adapter not found")
	}
	if err := s.store.Delete(ctx, row.ID); err != nil {
		return apperr.Transient("deleting adapter", err)
	}
	_ = os.Remove(row.FilePath)
	return s.registry.Sync(ctx)
}

func (s *Service) requireOwned(ctx context.Context, platform, ownerID, wantStatus string) (*Row, error) {
	row, err := s.store.GetByPlatformOwner(ctx, normalizePlatform(platform), ownerID)
	if err != nil {
		return nil, apperr.Transient("loading adapter", err)
	}
	if row == nil {
		return nil, apperr.NotFound("adapter not found")
	}
	if row.Status != wantStatus {
		return nil, apperr.Conflict(fmt.Sprintf("adapter is %s, expected %s", row.Status, wantStatus))
	}
	return row, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
