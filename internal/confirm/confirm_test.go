package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestHash_Deterministic(t *testing.T) {
	req := map[string]any{"amount_cents": 500, "to": "acct_1"}

	h1, err := RequestHash("biz_1", req)
	assert.NoError(t, err)
	h2, err := RequestHash("biz_1", req)
	assert.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestRequestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}

	ha, err := RequestHash("biz", a)
	assert.NoError(t, err)
	hb, err := RequestHash("biz", b)
	assert.NoError(t, err)

	assert.Equal(t, ha, hb, "map key order must not affect the canonical hash")
}

func TestRequestHash_NumberNormalisation(t *testing.T) {
	// 1 and 1.0 both decode to the same float64 via encoding/json, so they
	// must collide in the canonical form (documented Open Question decision).
	h1, err := RequestHash("biz", map[string]any{"amount": 1})
	assert.NoError(t, err)
	h2, err := RequestHash("biz", map[string]any{"amount": 1.0})
	assert.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestRequestHash_ArrayOrderMatters(t *testing.T) {
	h1, err := RequestHash("biz", map[string]any{"items": []any{"a", "b"}})
	assert.NoError(t, err)
	h2, err := RequestHash("biz", map[string]any{"items": []any{"b", "a"}})
	assert.NoError(t, err)

	assert.NotEqual(t, h1, h2, "array element order must be preserved")
}

func TestRequestHash_BusinessIDScoped(t *testing.T) {
	req := map[string]any{"amount": 100}

	h1, err := RequestHash("biz_1", req)
	assert.NoError(t, err)
	h2, err := RequestHash("biz_2", req)
	assert.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestNewOpaqueToken_Unique(t *testing.T) {
	a, err := newOpaqueToken()
	assert.NoError(t, err)
	b, err := newOpaqueToken()
	assert.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 48) // 24 random bytes, hex-encoded
}

func TestService_CheckAmountCeiling(t *testing.T) {
	s := &Service{maxAmountCents: 1000}

	tests := []struct {
		name    string
		request any
		wantErr bool
	}{
		{"under ceiling via amount_cents", map[string]any{"amount_cents": 500.0}, false},
		{"at ceiling", map[string]any{"amount_cents": 1000.0}, false},
		{"over ceiling", map[string]any{"amount_cents": 1001.0}, true},
		{"falls back to amount", map[string]any{"amount": 2000.0}, true},
		{"no amount field present", map[string]any{"to": "acct_1"}, false},
		{"non-map request", "not-a-map", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.checkAmountCeiling(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewService_DefaultsZeroCeiling(t *testing.T) {
	s := NewService(nil, PolicyStrict, 0)
	assert.Equal(t, int64(DefaultMaxAmountCents), s.maxAmountCents)
}

func TestEnforce_OpenPolicyNeverConsults(t *testing.T) {
	// nil store is safe here: PolicyOpen returns before touching it.
	s := NewService(nil, PolicyOpen, 100)
	err := s.Enforce(nil, "biz", map[string]any{"amount_cents": 999999.0}, "")
	assert.NoError(t, err)
}
