// Package confirm implements the two-phase execute confirmation flow and
// the three execute policies (open/confirm/strict) that gate it.
package confirm

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Policy selects how much pre-check a /agp/execute call requires.
type Policy string

const (
	PolicyOpen    Policy = "open"
	PolicyConfirm Policy = "confirm"
	PolicyStrict  Policy = "strict"
)

// DefaultTokenTTL is a confirmation token's lifetime from issuance.
const DefaultTokenTTL = 5 * time.Minute

// DefaultMaxAmountCents is the strict-policy ceiling when none is configured.
const DefaultMaxAmountCents = 100

// HeaderToken is the execute-time header carrying a previously issued token.
const HeaderToken = "x-confirmation-token"

// Reason distinguishes why a confirmation check failed, so callers can
// report a specific, stable error rather than a generic 403.
type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonInvalid   Reason = "invalid"
	ReasonExpired   Reason = "expired"
	ReasonMismatch  Reason = "mismatched"
)

// Token is the persisted shape of a confirmation_tokens row.
type Token struct {
	Token       string
	BusinessID  string
	RequestHash string
	Summary     string
	CreatedAtMs int64
	ExpiresAtMs int64
}

// RequestHash computes sha256(businessId + ":" + stableJSON(request)).
func RequestHash(businessID string, request any) (string, error) {
	stable, err := stableJSON(request)
	if err != nil {
		return "", fmt.Errorf("stabilising request for hashing: %w", err)
	}
	return sha256Hex(businessID + ":" + stable), nil
}

// stableJSON marshals a value through encoding/json (normalising numeric
// representations: 1 and 1.0 both decode to the same float64 and remarshal
// identically), then recursively sorts object keys lexicographically while
// preserving array order, and marshals the result back to a canonical string.
func stableJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}
	canon := canonicalize(decoded)
	out, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyValue, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, keyValue{Key: k, Value: canonicalize(val[k])})
		}
		return orderedObject(ordered)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

type keyValue struct {
	Key   string
	Value any
}

// orderedObject marshals as a JSON object preserving the given key order,
// since Go maps would otherwise re-sort (harmlessly, but json.Marshal's own
// map ordering is an implementation detail we don't want to depend on).
type orderedObject []keyValue

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, kv := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newOpaqueToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
