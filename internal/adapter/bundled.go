package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// LoadBundled walks dir for source-controlled adapter files (one JSON source
// document per platform, see sourceDoc) and ensures each has a public row:
// inserted at ownerID=system/status=public if none exists yet, or its source
// overwritten only when the bundled manifest.version is strictly newer than
// whatever is currently persisted. A bundled adapter that fails to parse is
// skipped with a warning; it never blocks the rest of the bootstrap.
func LoadBundled(ctx context.Context, store *Store, dir string, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading bundled adapters dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("bundled adapter: reading file", "path", path, "error", err)
			continue
		}

		_, manifest, err := HotLoad(string(raw))
		if err != nil {
			logger.Warn("bundled adapter: failed to parse", "path", path, "error", err)
			continue
		}
		if manifest.Platform == "" {
			continue
		}

		if err := upsertBundled(ctx, store, manifest, string(raw), logger); err != nil {
			logger.Warn("bundled adapter: upsert failed", "platform", manifest.Platform, "error", err)
		}
	}
	return nil
}

func upsertBundled(ctx context.Context, store *Store, manifest Manifest, source string, logger *slog.Logger) error {
	existing, err := store.GetPublic(ctx, manifest.Platform)
	if err != nil {
		return fmt.Errorf("loading existing public adapter for %s: %w", manifest.Platform, err)
	}

	publicPath := filepath.Join("bundled", manifest.Platform+".json")

	if existing == nil {
		row, err := store.InsertWithStatus(ctx, manifest.Platform, SystemOwnerID, StatusPublic, publicPath, source)
		if err != nil {
			return fmt.Errorf("inserting bundled adapter %s: %w", manifest.Platform, err)
		}
		if err := writeFile(row.FilePath, source); err != nil {
			return fmt.Errorf("writing bundled adapter file: %w", err)
		}
		logger.Info("bundled adapter installed", "platform", manifest.Platform, "version", manifest.Version)
		return nil
	}

	if existing.SourceCode == nil {
		return nil
	}

	_, existingManifest, err := HotLoad(*existing.SourceCode)
	if err != nil {
		// Existing row doesn't parse; treat the bundled copy as authoritative.
		existingManifest = Manifest{Version: "0.0.0"}
	}

	newer, err := isNewerVersion(manifest.Version, existingManifest.Version)
	if err != nil {
		return fmt.Errorf("comparing adapter versions for %s: %w", manifest.Platform, err)
	}
	if !newer {
		return nil
	}

	if err := store.UpdateSource(ctx, existing.ID, existing.FilePath, source); err != nil {
		return fmt.Errorf("updating bundled adapter %s: %w", manifest.Platform, err)
	}
	if err := writeFile(existing.FilePath, source); err != nil {
		return fmt.Errorf("writing upgraded bundled adapter file: %w", err)
	}
	logger.Info("bundled adapter upgraded", "platform", manifest.Platform,
		"from", existingManifest.Version, "to", manifest.Version)
	return nil
}

// isNewerVersion reports whether candidate is a strictly newer semver than
// current, comparing major.minor.patch numerically. An unparseable current
// version loses to any parseable candidate.
func isNewerVersion(candidate, current string) (bool, error) {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false, fmt.Errorf("parsing bundled version %q: %w", candidate, err)
	}
	existing, err := semver.NewVersion(current)
	if err != nil {
		return true, nil
	}
	return c.GreaterThan(existing), nil
}
