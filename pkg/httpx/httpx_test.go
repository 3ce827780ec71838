package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	t.Cleanup(server.Close)

	client := NewClient(WithUserAgent("theo-test/1"))
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if got != "theo-test/1" {
		t.Fatalf("User-Agent = %q", got)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	}))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	err = CheckStatus("demo", resp, 64)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadGateway || statusErr.Body != "upstream down" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if !IsTemporary(err) {
		t.Fatal("5xx must be temporary")
	}
}

func TestIsTemporary(t *testing.T) {
	t.Parallel()

	if !IsTemporary(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Fatal("deadline must be temporary")
	}
	if IsTemporary(&StatusError{Code: http.StatusNotFound}) {
		t.Fatal("404 must not be temporary")
	}
	if IsTemporary(errors.New("boom")) {
		t.Fatal("plain errors are not temporary")
	}
}
