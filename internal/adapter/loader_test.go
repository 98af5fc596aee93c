package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceHash_Deterministic(t *testing.T) {
	h1 := SourceHash(`{"manifest":{"platform":"stripe"}}`)
	h2 := SourceHash(`{"manifest":{"platform":"stripe"}}`)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3 := SourceHash(`{"manifest":{"platform":"square"}}`)
	assert.NotEqual(t, h1, h3)
}

func TestHotLoad_NormalizesPlatformCase(t *testing.T) {
	_, manifest, err := HotLoad(`{"manifest":{"platform":"  Stripe  ","version":"1.0.0","auth":{"type":"api_key"}}}`)
	assert.NoError(t, err)
	assert.Equal(t, "stripe", manifest.Platform)
}

func TestHotLoad_MissingPlatformErrors(t *testing.T) {
	_, _, err := HotLoad(`{"manifest":{"version":"1.0.0"}}`)
	assert.Error(t, err)
}

func TestHotLoad_InvalidJSONErrors(t *testing.T) {
	_, _, err := HotLoad(`not json`)
	assert.Error(t, err)
}

func TestHotLoad_DropsNonHTTPSOAuthConfig(t *testing.T) {
	source := `{"manifest":{"platform":"acme","version":"1.0.0","auth":{"type":"oauth2","oauth":{"authorizationUrl":"http://acme.test/authorize","tokenUrl":"https://acme.test/token"}}}}`
	_, manifest, err := HotLoad(source)
	assert.NoError(t, err)
	assert.Nil(t, manifest.Auth.OAuth, "a non-HTTPS authorization URL must drop the whole oauth block")
}

func TestHotLoad_KeepsHTTPSOAuthConfig(t *testing.T) {
	source := `{"manifest":{"platform":"acme","version":"1.0.0","auth":{"type":"oauth2","oauth":{"authorizationUrl":"https://acme.test/authorize","tokenUrl":"https://acme.test/token"}}}}`
	_, manifest, err := HotLoad(source)
	assert.NoError(t, err)
	if assert.NotNil(t, manifest.Auth.OAuth) {
		assert.Equal(t, "https://acme.test/authorize", manifest.Auth.OAuth.AuthorizationURL)
	}
}

func TestHotLoad_FactoryProducesAdapter(t *testing.T) {
	factory, _, err := HotLoad(`{"manifest":{"platform":"acme","version":"1.0.0","auth":{"type":"none"}}}`)
	assert.NoError(t, err)

	a, err := factory()
	assert.NoError(t, err)
	assert.NotNil(t, a)
}
