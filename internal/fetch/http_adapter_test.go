package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
)

func testHTTPAdapter(t *testing.T, baseURL string) *fetch.HTTPAdapter {
	t.Helper()
	adapter, err := fetch.NewHTTPAdapter(fetch.HTTPAdapterOptions{
		Source:  "amazon",
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("NewHTTPAdapter failed: %v", err)
	}
	return adapter
}

func TestHTTPAdapter_FetchesProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products":[{"id":"p1","price":99.5,"currency":"USD","availability":true}]}`))
	}))
	defer srv.Close()

	adapter := testHTTPAdapter(t, srv.URL)
	observations, err := adapter.Fetch(context.Background(), domain.Target{Source: "amazon", Ref: "/p1"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(observations) != 1 || observations[0].Price != 99.5 {
		t.Fatalf("Observations = %+v, want one at 99.5", observations)
	}
}

func TestHTTPAdapter_RefusedConnectionIsUnreachable(t *testing.T) {
	// A dead host is not a timeout; it still has to stay retryable so a
	// briefly restarting source is picked up on the next attempt.
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	adapter := testHTTPAdapter(t, addr)
	_, err := adapter.Fetch(context.Background(), domain.Target{Source: "amazon", Ref: "/p1"})
	if err == nil {
		t.Fatal("Fetch against a closed port succeeded")
	}

	var fe *fetch.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a classified fetch error, got %v", err)
	}
	if fe.Kind != domain.ErrKindUnreachable {
		t.Errorf("Kind = %s, want %s", fe.Kind, domain.ErrKindUnreachable)
	}
	if !fe.Kind.Retryable() {
		t.Error("Refused connections must stay retryable")
	}
}

func TestHTTPAdapter_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.ErrorKind
	}{
		{http.StatusNotFound, domain.ErrKindNotFound},
		{http.StatusTooManyRequests, domain.ErrKindBlocked},
		{http.StatusForbidden, domain.ErrKindBlocked},
		{http.StatusInternalServerError, domain.ErrKindProtocolError},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			adapter := testHTTPAdapter(t, srv.URL)
			_, err := adapter.Fetch(context.Background(), domain.Target{Source: "amazon", Ref: "/p1"})
			if got := fetch.KindOf(err); got != tc.kind {
				t.Errorf("Status %d classified as %s, want %s", tc.status, got, tc.kind)
			}
		})
	}
}
