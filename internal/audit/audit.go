// Package audit implements the append-only, hash-chained audit log. Every
// write flows through Log/LogFromRequest, which never blocks and never
// returns an error to the caller: audit failures are logged and dropped so a
// business operation is never aborted by an audit-side problem.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/telemetry"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// sensitiveKeys lists metadata field names stripped before persistence,
// matched case-insensitively against any nesting depth.
var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"client_secret": {},
	"api_key":       {},
	"password":      {},
	"cookie_value":  {},
	"token":         {},
	"secret":        {},
}

// Entry is a single audit log write request.
type Entry struct {
	UserID      *string
	ServiceID   *string
	Action      string
	ExecutionID *string
	IPAddress   *string
	Metadata    map[string]any
}

// Writer buffers audit entries and flushes them in hash-chained batches.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	done    chan struct{}
}

func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}
}

// Start launches the background flush loop. Call Close to drain and stop it.
func (w *Writer) Start(ctx context.Context) {
	go w.run(ctx)
}

// Close signals the flush loop to drain remaining entries and stop.
func (w *Writer) Close() {
	close(w.done)
}

// Log enqueues an entry for persistence. If the buffer is full the entry is
// dropped and a warning is logged; callers must never block on audit writes.
func (w *Writer) Log(e Entry) {
	e.Metadata = sanitize(e.Metadata)
	select {
	case w.entries <- e:
	default:
		telemetry.AuditWriteFailuresTotal.Inc()
		w.logger.Warn("audit buffer full, dropping entry", "action", e.Action)
	}
}

// LogFromRequest builds an Entry from the authenticated identity and client
// IP on r and enqueues it.
func (w *Writer) LogFromRequest(r *http.Request, serviceID, action string, executionID *string, metadata map[string]any) {
	var userID *string
	if id := auth.FromContext(r.Context()); id != nil {
		owner := id.OwnerID()
		userID = &owner
	}

	ip := clientIP(r)
	var ipPtr *string
	if ip != "" {
		ipPtr = &ip
	}

	var servicePtr *string
	if serviceID != "" {
		servicePtr = &serviceID
	}

	w.Log(Entry{
		UserID:      userID,
		ServiceID:   servicePtr,
		Action:      action,
		ExecutionID: executionID,
		IPAddress:   ipPtr,
		Metadata:    metadata,
	})
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []Entry

	for {
		select {
		case e := <-w.entries:
			pending = append(pending, e)
			if len(pending) >= flushBatch {
				w.flush(ctx, pending)
				pending = nil
			}
		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(ctx, pending)
				pending = nil
			}
		case <-w.done:
			w.drain(pending)
			return
		case <-ctx.Done():
			w.drain(pending)
			return
		}
	}
}

// drain flushes whatever is left in the channel and the pending slice using a
// background context, bounded by a short deadline, on shutdown.
func (w *Writer) drain(pending []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case e := <-w.entries:
			pending = append(pending, e)
		default:
			if len(pending) > 0 {
				w.flush(ctx, pending)
			}
			return
		}
	}
}

// flush inserts entries one at a time inside a single transaction, chaining
// each new row's prevHash off the previously-inserted (or previously-stored)
// row. Each row is stamped with clock_timestamp() so rows of one batch keep
// their insertion order, and a transaction-scoped advisory lock serialises
// flushes so concurrent batches never interleave within the same chain.
func (w *Writer) flush(ctx context.Context, pending []Entry) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		w.logger.Error("audit flush: begin transaction", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('credential_audit_log'))`); err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		w.logger.Error("audit flush: acquiring chain lock", "error", err)
		return
	}

	for _, e := range pending {
		var prevID uuid.UUID
		var prevTimestamp time.Time
		var hasPrev bool

		row := tx.QueryRow(ctx, `SELECT id, timestamp FROM credential_audit_log ORDER BY timestamp DESC, id DESC LIMIT 1`)
		if err := row.Scan(&prevID, &prevTimestamp); err == nil {
			hasPrev = true
		}

		var prevHash string
		if hasPrev {
			prevHash = chainHash(prevID, prevTimestamp)
		} else {
			sum := sha256.Sum256([]byte("genesis"))
			prevHash = hex.EncodeToString(sum[:])
		}

		metadataJSON, merr := json.Marshal(e.Metadata)
		if merr != nil {
			metadataJSON = []byte("{}")
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO credential_audit_log (id, user_id, service_id, action, execution_id, ip_address, metadata, timestamp, prev_hash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, clock_timestamp(), $8)`,
			uuid.New(), e.UserID, e.ServiceID, e.Action, e.ExecutionID, e.IPAddress, metadataJSON, prevHash,
		)
		if err != nil {
			telemetry.AuditWriteFailuresTotal.Inc()
			w.logger.Error("audit flush: insert entry", "error", err, "action", e.Action)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		w.logger.Error("audit flush: commit transaction", "error", err)
	}
}

// ActivityEntry is the public projection of a credential_audit_log row for a
// single user+service, deliberately omitting user_id, service_id and
// ip_address — the caller already knows who and what it asked about.
type ActivityEntry struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListActivity returns at most limit entries for (userID, serviceID), most
// recent first, optionally only those strictly before the given timestamp.
func ListActivity(ctx context.Context, pool *pgxpool.Pool, userID, serviceID string, before *time.Time, limit int) ([]ActivityEntry, error) {
	query := `SELECT id, action, metadata, timestamp FROM credential_audit_log
	          WHERE user_id = $1 AND service_id = $2`
	args := []any{userID, serviceID}

	if before != nil {
		query += " AND timestamp < $3"
		args = append(args, *before)
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.Action, &metadataJSON, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &e.Metadata)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func chainHash(id uuid.UUID, timestamp time.Time) string {
	sum := sha256.Sum256([]byte(id.String() + timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// sanitize recursively removes any key (case-insensitive) present in
// sensitiveKeys from a metadata map, returning a deep-cleaned copy.
func sanitize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, denied := sensitiveKeys[strings.ToLower(k)]; denied {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			out[k] = sanitize(val)
		default:
			out[k] = v
		}
	}
	return out
}

// clientIP extracts the caller's address using X-Forwarded-For, then
// X-Real-IP, then RemoteAddr, in that order.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		candidate := strings.TrimSpace(parts[0])
		if addr, err := netip.ParseAddr(candidate); err == nil {
			return addr.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.String()
		}
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return ""
}
