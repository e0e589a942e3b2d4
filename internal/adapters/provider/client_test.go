package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reviewpulse/internal/adapters/provider"
)

func testClient() *provider.Client {
	return provider.NewClient("test", provider.Options{RPS: 100, BaseBackoff: 5 * time.Millisecond})
}

func TestClient_Get_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"id":123}`))
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := testClient().Get(ctx, "reviews", ts.URL, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(got) != `{"id":123}` {
		t.Fatalf("unexpected payload: %s", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_Get_SendsHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer k")
	if _, err := testClient().Get(context.Background(), "x", ts.URL, hdr); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_, err := testClient().Get(context.Background(), "x", ts.URL, nil)
	if !errors.Is(err, provider.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_Get_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := testClient().Get(ctx, "x", ts.URL, nil)
	if !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !provider.Unavailable(err) {
		t.Fatalf("404 should count as unavailable")
	}
}

func TestClient_Get_BadStatusNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
	}))
	defer ts.Close()

	_, err := testClient().Get(context.Background(), "x", ts.URL, nil)
	var se *provider.StatusError
	if !errors.As(err, &se) || se.Code != 400 || se.Body != "bad query" {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("400 must not be retried, got %d calls", hits)
	}
}
