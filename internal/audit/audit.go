// Package audit provides an async, buffered append log for admin-gated
// actions (migration runs, data-request approvals), backed by the shared
// KVStore rather than a per-tenant Postgres table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/strixun/edgecore/internal/identity"
	"github.com/strixun/edgecore/internal/kv"
)

// Entry is a single audit log entry to be written.
type Entry struct {
	CustomerID string          `json:"customerId"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	IPAddress  *netip.Addr     `json:"ipAddress,omitempty"`
	UserAgent  *string         `json:"userAgent,omitempty"`
	At         time.Time       `json:"at"`
}

func entryKey(customerID string, at time.Time) string {
	return fmt.Sprintf("audit:%s:%d", customerID, at.UnixNano())
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	kv      kv.Store
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
	entryTTL      = 180 * 24 * time.Hour
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(store kv.Store, logger *slog.Logger) *Writer {
	return &Writer{
		kv:      store,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that flushes audit entries to the
// store and returns immediately. The goroutine exits, after flushing pending
// entries, when ctx is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is
// logged.
func (w *Writer) Log(entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource)
	}
}

// LogFromRequest is a convenience method that extracts the caller identity,
// IP, and user agent from the request, then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, resource, resourceID string, detail json.RawMessage) {
	entry := Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Detail:     detail,
	}

	if id := identity.FromContext(r.Context()); id != nil {
		entry.CustomerID = id.CustomerID
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the KVStore, one key per entry under
// audit:{customerId}:{unixNano}, so one customer's keys sort
// chronologically. kv.Store.List sorts the keys of each page it returns;
// the Redis backend does not order keys across SCAN pages.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		customerID := e.CustomerID
		if customerID == "" {
			customerID = "system"
		}
		if err := kv.PutJSON(ctx, w.kv, entryKey(customerID, e.At), e, kv.PutOptions{TTL: entryTTL}); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "resource", e.Resource)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
