package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestFetchConditional(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(testICS))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), t.TempDir(), zerolog.Nop())
	url := srv.URL + "/private/secret.ics"

	res, err := f.Fetch(context.Background(), url, Validators{})
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if res.NotModified || string(res.Body) != testICS || res.Validators.ETag != `"v1"` {
		t.Fatalf("unexpected first result: %+v", res.Validators)
	}

	res, err = f.Fetch(context.Background(), url, res.Validators)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !res.NotModified || res.Body != nil {
		t.Fatal("expected 304 result")
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}

	cached, ok := f.Cached(url)
	if !ok || string(cached) != testICS {
		t.Fatal("body not cached on disk")
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "", zerolog.Nop())
	if _, err := f.Fetch(context.Background(), srv.URL, Validators{}); err == nil {
		t.Fatal("expected error for 410")
	}
	if _, err := f.Fetch(context.Background(), " ", Validators{}); !errors.Is(err, ErrNoURL) {
		t.Fatalf("err = %v, want ErrNoURL", err)
	}
	if _, ok := f.Cached(srv.URL); ok {
		t.Fatal("cache disabled but body returned")
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()
	got := RedactURL("https://calendar.example.com/ical/abc%40group/private-123/basic.ics?x=1")
	if got != "https://calendar.example.com/...(redacted)" {
		t.Fatalf("RedactURL = %q", got)
	}
	if RedactURL("not a url") != "ics://...(redacted)" {
		t.Fatal("fallback redaction")
	}
}
