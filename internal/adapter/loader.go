package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SourceHash returns the hex SHA-256 of an adapter's source code, used both
// as the stored sourceHash column and as the registry's load-cache key.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// HotLoad parses adapter source into a Factory and its Manifest. Manifests
// whose auth.type is oauth2 but whose authorizationUrl/tokenUrl are not both
// HTTPS have their oauth block dropped; the rest of the manifest is kept so
// the adapter still loads (it simply can't advertise an OAuth flow).
func HotLoad(source string) (Factory, Manifest, error) {
	var doc sourceDoc
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, Manifest{}, fmt.Errorf("parsing adapter source: %w", err)
	}

	if doc.Manifest.Platform == "" {
		return nil, Manifest{}, fmt.Errorf("adapter manifest missing platform")
	}
	doc.Manifest.Platform = strings.ToLower(strings.TrimSpace(doc.Manifest.Platform))

	if doc.Manifest.Auth.Type == "oauth2" && doc.Manifest.Auth.OAuth != nil {
		if !isHTTPS(doc.Manifest.Auth.OAuth.AuthorizationURL) || !isHTTPS(doc.Manifest.Auth.OAuth.TokenURL) {
			doc.Manifest.Auth.OAuth = nil
		}
	}

	manifest := doc.Manifest
	factory := func() (Adapter, error) {
		return newGenericAdapter(doc), nil
	}
	return factory, manifest, nil
}

func isHTTPS(url string) bool {
	return strings.HasPrefix(strings.ToLower(url), "https://")
}
