package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/idhash"
)

// HTTPAdapter fetches observations from a JSON product API. It is the
// reference networked adapter; site-specific HTML scraping implements the
// same Adapter interface in its own package.
//
// Expected endpoint: GET {base}{target.Ref}
//
//	-> {"products":[{...}]} or a bare array
type HTTPAdapter struct {
	source   string
	baseURL  string
	client   *http.Client
	clock    func() time.Time
	maxItems int

	// Anti-detection configuration passed through from the source config:
	// the adapter rotates user agents per request. Delay jitter is handled
	// by the scheduler's rate limiter.
	userAgents []string
	uaIndex    atomic.Uint64
}

// HTTPAdapterOptions contains configuration for creating an HTTPAdapter.
type HTTPAdapterOptions struct {
	Source     string
	BaseURL    string
	UserAgents []string
	Timeout    time.Duration
	MaxItems   int // max observations per target, 0 for unlimited
	Client     *http.Client
}

// NewHTTPAdapter creates a new JSON API adapter for one source.
func NewHTTPAdapter(opts HTTPAdapterOptions) (*HTTPAdapter, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultAttemptTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	userAgents := opts.UserAgents
	if len(userAgents) == 0 {
		userAgents = []string{"pricewatch/1.0"}
	}

	return &HTTPAdapter{
		source:     opts.Source,
		baseURL:    base,
		client:     client,
		clock:      func() time.Time { return time.Now().UTC() },
		maxItems:   opts.MaxItems,
		userAgents: userAgents,
	}, nil
}

// productPayload is the wire shape of one listing in the API response.
type productPayload struct {
	ID           string  `json:"id"`
	URL          string  `json:"url,omitempty"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Availability bool    `json:"availability"`
	ObservedAt   string  `json:"observed_at,omitempty"` // RFC3339, server-side event time
}

// Fetch implements Adapter.
func (a *HTTPAdapter) Fetch(ctx context.Context, target domain.Target) ([]*domain.Observation, error) {
	ref := target.Ref
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+ref, nil)
	if err != nil {
		return nil, Wrap(domain.ErrKindProtocolError, "build request", err)
	}
	req.Header.Set("User-Agent", a.nextUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, Wrap(domain.ErrKindTimeout, "request timed out", err)
		}
		return nil, Wrap(domain.ErrKindUnreachable, "connection failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, Errf(domain.ErrKindNotFound, "target %s not found", target.Ref)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, Errf(domain.ErrKindBlocked, "throttled with status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden:
		return nil, Errf(domain.ErrKindBlocked, "blocked with status %d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, Errf(domain.ErrKindProtocolError, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Wrap(domain.ErrKindProtocolError, "read body", err)
	}

	products, err := decodeProducts(body)
	if err != nil {
		return nil, Wrap(domain.ErrKindProtocolError, "decode body", err)
	}
	if a.maxItems > 0 && len(products) > a.maxItems {
		products = products[:a.maxItems]
	}

	now := a.clock()
	observations := make([]*domain.Observation, 0, len(products))
	for _, p := range products {
		nativeID := p.ID
		if nativeID == "" {
			nativeID = p.URL
		}
		if nativeID == "" {
			continue
		}

		observedAt := now.UnixMilli()
		if p.ObservedAt != "" {
			if ts, err := time.Parse(time.RFC3339, p.ObservedAt); err == nil {
				observedAt = ts.UnixMilli()
			}
		}

		observations = append(observations, &domain.Observation{
			Source:     a.source,
			ProductKey: idhash.ProductKey(a.source, nativeID),
			Price:      p.Price,
			Currency:   p.Currency,
			Available:  p.Availability,
			ObservedAt: observedAt,
		})
	}

	return observations, nil
}

// decodeProducts accepts either {"products":[...]} or a bare array.
func decodeProducts(body []byte) ([]productPayload, error) {
	var wrapped struct {
		Products []productPayload `json:"products"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Products != nil {
		return wrapped.Products, nil
	}

	var bare []productPayload
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// nextUserAgent rotates through the configured user agents.
func (a *HTTPAdapter) nextUserAgent() string {
	i := a.uaIndex.Add(1)
	return a.userAgents[int(i)%len(a.userAgents)]
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// Compile-time interface check.
var _ Adapter = (*HTTPAdapter)(nil)
