package audit

import (
	"log/slog"
	"net/http/httptest"
	"testing"
)

func TestClientIP_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")

	ip := clientIP(r)
	want := "203.0.113.50"
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")

	ip := clientIP(r)
	want := "198.51.100.23"
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := "192.0.2.1"
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_Precedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := "203.0.113.50"
	if ip != want {
		t.Errorf("clientIP = %v, want %v (X-Forwarded-For should take precedence)", ip, want)
	}
}

func TestClientIP_XRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := "198.51.100.23"
	if ip != want {
		t.Errorf("clientIP = %v, want %v (X-Real-IP should take precedence over RemoteAddr)", ip, want)
	}
}

func TestClientIP_InvalidXFF(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := "192.0.2.1"
	if ip != want {
		t.Errorf("clientIP = %v, want %v (should fall back to RemoteAddr)", ip, want)
	}
}

func TestClientIP_NoneAvailable(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""

	if ip := clientIP(r); ip != "" {
		t.Errorf("clientIP = %q, want empty string", ip)
	}
}

func TestLog_DropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test"})
	}

	// The next log should be dropped (non-blocking), not block the test.
	w.Log(Entry{Action: "dropped"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogFromRequest_ExtractsFields(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start — we'll read from the channel directly.

	r := httptest.NewRequest("POST", "/v1/execute", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")
	execID := "exec_123"

	w.LogFromRequest(r, "stripe", "execute", &execID, map[string]any{"note": "ok"})

	entry := <-w.entries

	if entry.Action != "execute" {
		t.Errorf("Action = %q, want %q", entry.Action, "execute")
	}
	if entry.ServiceID == nil || *entry.ServiceID != "stripe" {
		t.Errorf("ServiceID = %v, want stripe", entry.ServiceID)
	}
	if entry.IPAddress == nil || *entry.IPAddress != "198.51.100.23" {
		t.Errorf("IPAddress = %v, want 198.51.100.23", entry.IPAddress)
	}
	if entry.ExecutionID == nil || *entry.ExecutionID != "exec_123" {
		t.Errorf("ExecutionID = %v, want exec_123", entry.ExecutionID)
	}
}

func TestSanitize_StripsSensitiveKeysCaseInsensitive(t *testing.T) {
	in := map[string]any{
		"Access_Token":  "secret",
		"note":          "fine",
		"nested":        map[string]any{"PASSWORD": "hunter2", "keep": "this"},
		"client_secret": "also-secret",
	}

	out := sanitize(in)

	if _, ok := out["Access_Token"]; ok {
		t.Error("Access_Token should have been stripped")
	}
	if _, ok := out["client_secret"]; ok {
		t.Error("client_secret should have been stripped")
	}
	if out["note"] != "fine" {
		t.Errorf("note = %v, want fine", out["note"])
	}

	nested, ok := out["nested"].(map[string]any)
	if !ok {
		t.Fatal("nested should survive as a map")
	}
	if _, ok := nested["PASSWORD"]; ok {
		t.Error("nested PASSWORD should have been stripped")
	}
	if nested["keep"] != "this" {
		t.Errorf("nested keep = %v, want this", nested["keep"])
	}
}

func TestSanitize_NilMap(t *testing.T) {
	if out := sanitize(nil); out != nil {
		t.Errorf("sanitize(nil) = %v, want nil", out)
	}
}
