package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/telemetry"
)

// scopedKey identifies a (platform, ownerID) registry slot.
type scopedKey struct {
	platform string
	ownerID  string
}

// cacheEntry is what the registry holds per loaded adapter: its factory,
// manifest, and the source hash it was loaded from (the cache key).
type cacheEntry struct {
	factory    Factory
	manifest   Manifest
	sourceHash string
}

// Registry maps platform -> adapter factory with two layers: a single
// public entry per platform and scoped entries per (platform, ownerID) that
// override public for that owner. It is rebuilt from Store on demand; it
// never diverges from the store by design (spec.md §5's "no in-process
// write-behind").
type Registry struct {
	store  *Store
	logger *slog.Logger

	mu     sync.RWMutex
	public map[string]cacheEntry
	scoped map[scopedKey]cacheEntry

	// loadCache reuses a previously hot-loaded factory when a row's
	// sourceHash is unchanged, avoiding a redundant parse on every Sync.
	// Bounded so a long-lived process with many churned adapter revisions
	// doesn't grow this without end.
	loadCache *lru.Cache[string, cacheEntry]
}

func NewRegistry(store *Store, logger *slog.Logger) (*Registry, error) {
	cache, err := lru.New[string, cacheEntry](512)
	if err != nil {
		return nil, fmt.Errorf("creating adapter load cache: %w", err)
	}
	return &Registry{
		store:     store,
		logger:    logger,
		public:    make(map[string]cacheEntry),
		scoped:    make(map[scopedKey]cacheEntry),
		loadCache: cache,
	}, nil
}

// Resolve implements the scoped-then-public resolution order from spec.md
// §4.1: a scoped (platform, ownerID) entry wins if present, else the public
// entry for platform, else absent.
func (r *Registry) Resolve(platform, ownerID string) (Adapter, Manifest, bool) {
	platform = normalizePlatform(platform)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.scoped[scopedKey{platform: platform, ownerID: ownerID}]; ok {
		a, err := e.factory()
		if err != nil {
			return nil, Manifest{}, false
		}
		return a, e.manifest, true
	}
	if e, ok := r.public[platform]; ok {
		a, err := e.factory()
		if err != nil {
			return nil, Manifest{}, false
		}
		return a, e.manifest, true
	}
	return nil, Manifest{}, false
}

// Restore materialises source files for every non-archived row whose
// filePath lives inside rootDir, when the file is missing on disk. Rows
// whose filePath falls outside rootDir are skipped — an operator may have
// relocated adapters by hand and this call must not clobber that.
func (r *Registry) Restore(ctx context.Context, rootDir string) error {
	rows, err := r.store.ListNonArchived(ctx)
	if err != nil {
		return apperr.Transient("listing adapters for restore", err)
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return fmt.Errorf("resolving adapters root: %w", err)
	}

	for _, row := range rows {
		if row.SourceCode == nil {
			continue
		}
		absPath, err := filepath.Abs(row.FilePath)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) && absPath != absRoot {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			continue // already present
		}
		if err := writeFile(absPath, *row.SourceCode); err != nil {
			r.logger.Warn("adapter restore: writing file", "platform", row.Platform, "owner", row.OwnerID, "error", err)
		}
	}
	return nil
}

// Sync rebuilds the in-memory registry from the store: every non-archived
// row is hot-loaded (reusing the load cache when sourceHash is unchanged),
// scoped entries for rows no longer present or now public are removed, and
// public entries reflect whichever row currently carries status=public.
func (r *Registry) Sync(ctx context.Context) error {
	rows, err := r.store.ListNonArchived(ctx)
	if err != nil {
		return apperr.Transient("listing adapters for sync", err)
	}

	newPublic := make(map[string]cacheEntry)
	newScoped := make(map[scopedKey]cacheEntry)

	for _, row := range rows {
		if row.SourceCode == nil {
			continue
		}

		entry, ok := r.loadCache.Get(row.SourceHash)
		if !ok {
			factory, manifest, err := HotLoad(*row.SourceCode)
			if err != nil {
				r.logger.Warn("adapter sync: failed to load adapter, leaving absent",
					"platform", row.Platform, "owner", row.OwnerID, "error", err)
				continue
			}
			entry = cacheEntry{factory: factory, manifest: manifest, sourceHash: row.SourceHash}
			r.loadCache.Add(row.SourceHash, entry)
		}

		switch row.Status {
		case StatusPublic:
			newPublic[row.Platform] = entry
		default:
			newScoped[scopedKey{platform: row.Platform, ownerID: row.OwnerID}] = entry
		}
	}

	r.mu.Lock()
	r.public = newPublic
	r.scoped = newScoped
	r.mu.Unlock()

	telemetry.AdaptersLoadedGauge.WithLabelValues("public").Set(float64(len(newPublic)))
	telemetry.AdaptersLoadedGauge.WithLabelValues("scoped").Set(float64(len(newScoped)))
	return nil
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
