package user

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		RedirectURL:  "https://gw.test/connect/stripe/callback",
	}
}

type stubAdapterResolver struct {
	manifest adapter.Manifest
	ok       bool
}

func (s *stubAdapterResolver) Resolve(platform, ownerID string) (adapter.Adapter, adapter.Manifest, bool) {
	return nil, s.manifest, s.ok
}

func newTestHandler(resolver AdapterResolver) *Handler {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	return &Handler{adapters: resolver, logger: slog.Default(), baseURL: "https://gw.test", client: client}
}

func TestHandleConnect_RequiresIdentity(t *testing.T) {
	h := newTestHandler(&stubAdapterResolver{})

	req := httptest.NewRequest(http.MethodPost, "/stripe", nil)
	rec := httptest.NewRecorder()
	h.handleConnect(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCallback_RequiresCodeAndState(t *testing.T) {
	h := newTestHandler(&stubAdapterResolver{})

	req := httptest.NewRequest(http.MethodGet, "/stripe/callback", nil)
	rec := httptest.NewRecorder()
	h.handleCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExchangeCode_SuccessfulExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_1","refresh_token":"rt_1","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	h := newTestHandler(&stubAdapterResolver{})
	tok, err := h.exchangeCode(context.Background(), testConfig(srv.URL), "code_1")

	assert.NoError(t, err)
	assert.Equal(t, "at_1", tok.AccessToken)
	assert.Equal(t, "rt_1", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(3600*time.Second), tok.Expiry, 5*time.Second)
}

func TestExchangeCode_RejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	h := newTestHandler(&stubAdapterResolver{})
	_, err := h.exchangeCode(context.Background(), testConfig(srv.URL), "code_1")
	assert.Error(t, err)
}

func TestExchangeCode_RejectsMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer srv.Close()

	h := newTestHandler(&stubAdapterResolver{})
	_, err := h.exchangeCode(context.Background(), testConfig(srv.URL), "code_1")
	assert.Error(t, err)
}

func TestExchangeCode_RejectsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	h := newTestHandler(&stubAdapterResolver{})
	_, err := h.exchangeCode(context.Background(), testConfig(srv.URL), "code_1")
	assert.Error(t, err)
}
