package apiclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/integrity"
)

// Response is the normalised result of an outbound call, decoupled from
// *http.Response so it can be cached, deduped, and replayed across retries
// without re-reading a consumed body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Request is one outbound call. CustomerID, when set, is bound into the
// integrity signature and prevents cross-customer replay (§4.4).
type Request struct {
	Method     string
	URL        string
	Body       []byte
	Header     http.Header
	CustomerID string
	// Priority is passed to Queue.Submit when the Queue feature is enabled;
	// Submit does not use it, so it has no effect on ordering.
	Priority int
}

// Features toggles the opt-in outbound executor behaviours of §4.6, all
// off by default. When enabled they wrap the HTTP round trip in this
// order, outermost first: cache lookup (GETs), dedup (GETs), retry,
// circuit breaker, queue. A failed call is then handed to the offline
// queue and a successful GET is stored in the cache; optimistic updates
// are applied by OptimisticUpdate around Do.
type Features struct {
	Dedup           bool
	Queue           bool
	QueueMaxConcurrent int
	CircuitBreaker  bool
	Retry           bool
	OfflineQueue    bool
	Cache           bool
}

// Client is the outbound typed HTTP client: URL resolution, optional
// service-to-service signing, and the opt-in feature pipeline.
type Client struct {
	http     *http.Client
	signer   *integrity.Signer // nil: no outbound signing (user-bearer calls)
	logger   *slog.Logger
	features Features

	dedup    *Deduplicator
	queue    *Queue
	breaker  *CircuitBreaker
	cache    *Cache
	offline  *OfflineQueue

	mu      sync.Mutex
	inFlight map[string]context.CancelFunc
}

// NewClient creates a Client. signer may be nil when the caller only ever
// makes user-bearer calls that don't need S2S signing.
func NewClient(httpClient *http.Client, signer *integrity.Signer, logger *slog.Logger, features Features) *Client {
	c := &Client{
		http:     httpClient,
		signer:   signer,
		logger:   logger,
		features: features,
		inFlight: make(map[string]context.CancelFunc),
	}
	if features.Dedup {
		c.dedup = NewDeduplicator()
	}
	if features.Queue {
		max := features.QueueMaxConcurrent
		if max <= 0 {
			max = 6
		}
		c.queue = NewQueue(max)
	}
	if features.CircuitBreaker {
		c.breaker = NewCircuitBreaker(5, 30*time.Second)
	}
	if features.Cache {
		c.cache = NewCache()
	}
	if features.OfflineQueue {
		c.offline = NewOfflineQueue(100)
	}
	return c
}

// Do executes req through the enabled feature pipeline and returns its id
// (for Cancel) alongside the response.
func (c *Client) Do(ctx context.Context, req Request) (string, *Response, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.inFlight[id] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
		cancel()
	}()

	resp, err := c.execute(ctx, req)
	return id, resp, err
}

// Cancel aborts the in-flight call for id, if any, and removes it from
// dedup/queue bookkeeping.
func (c *Client) Cancel(id string) {
	c.mu.Lock()
	cancel, ok := c.inFlight[id]
	delete(c.inFlight, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll aborts every in-flight call.
func (c *Client) CancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.inFlight))
	for id, cancel := range c.inFlight {
		cancels = append(cancels, cancel)
		delete(c.inFlight, id)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	fingerprint := Fingerprint(req.Method, req.URL, req.Body)

	if c.features.Cache && req.Method == http.MethodGet {
		if cached, ok := c.cache.Get(fingerprint); ok {
			if c.cache.IsStale(fingerprint) {
				go func() {
					if fresh, err := c.dispatch(context.Background(), req); err == nil {
						c.cache.Set(fingerprint, fresh)
					}
				}()
			}
			return cached, nil
		}
	}

	// dispatchCtx is threaded into the actual HTTP round trip. For deduped
	// GETs it must not be this call's own per-Do cancelable ctx:
	// singleflight.Group.Do only ever invokes the first joining caller's
	// function, so cancelling that one joiner would otherwise abort the
	// shared in-flight request for every other waiter on the same
	// fingerprint. Detach it onto its own lifecycle instead; the request
	// runs until it completes, independent of any single waiter's Cancel.
	dispatchCtx := ctx
	if c.features.Dedup && req.Method == http.MethodGet {
		dispatchCtx = context.Background()
	}

	run := func() (*Response, error) {
		return c.dispatch(dispatchCtx, req)
	}

	if c.features.Queue {
		prevRun := run
		run = func() (*Response, error) {
			return c.queue.Submit(ctx, req.Priority, prevRun)
		}
	}

	if c.features.CircuitBreaker {
		prevRun := run
		run = func() (*Response, error) {
			return c.breaker.Call(prevRun)
		}
	}

	if c.features.Retry {
		prevRun := run
		run = func() (*Response, error) {
			return Retry(ctx, DefaultRetryPolicy, prevRun)
		}
	}

	var resp *Response
	var err error
	if c.features.Dedup && req.Method == http.MethodGet {
		resp, err, _ = c.dedup.Do(fingerprint, run)
	} else {
		resp, err = run()
	}

	if err != nil && c.features.OfflineQueue && isOffline(err) {
		c.offline.Enqueue(req)
		return nil, apperr.New(apperr.KindUpstream, "offline: request queued for replay").WithDetail("queued")
	}

	if err == nil && c.features.Cache && req.Method == http.MethodGet {
		c.cache.Set(fingerprint, resp)
	}

	return resp, err
}

// dispatch performs the actual HTTP round trip, signing the request when a
// Signer is configured.
func (c *Client) dispatch(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if c.signer != nil {
		sig, ts := c.signer.SignRequest(req.Method, httpReq.URL.RequestURI(), req.Body, req.CustomerID)
		httpReq.Header.Set(integrity.RequestIntegrityHeader, sig)
		httpReq.Header.Set(integrity.RequestTimestampHeader, ts)
		if req.CustomerID != "" {
			httpReq.Header.Set(integrity.CustomerIDHeader, req.CustomerID)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "outbound request failed", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "reading response body", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}

	if c.signer != nil {
		sig := httpResp.Header.Get(integrity.ResponseIntegrityHeader)
		if sig == "" {
			return resp, apperr.New(apperr.KindIntegrityFailed, "missing response signature").WithStatus(http.StatusInternalServerError)
		}
		if err := c.signer.VerifyResponse(httpResp.StatusCode, body, sig); err != nil {
			return resp, apperr.New(apperr.KindIntegrityFailed, "response signature mismatch").WithStatus(http.StatusInternalServerError)
		}
	}

	return resp, nil
}

// Fingerprint computes the dedup/cache key for a request: method, URL, and
// a digest of the body.
func Fingerprint(method, url string, body []byte) string {
	sum := sha256.Sum256(body)
	return method + " " + url + " " + hex.EncodeToString(sum[:8])
}

func isOffline(err error) bool {
	ae, ok := apperr.As(err)
	return ok && ae.Kind == apperr.KindUpstream
}
