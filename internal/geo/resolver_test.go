package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func lookupServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, _, ok := r.BasicAuth()
		if !ok || user != "account" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"country": map[string]any{"names": map[string]string{"en": "Austria"}},
			"city":    map[string]any{"names": map[string]string{"en": "Vienna"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveCachesHits(t *testing.T) {
	var calls atomic.Int32
	srv := lookupServer(t, &calls)
	r := NewResolver(srv.URL, "account", "license", time.Hour)

	for range 3 {
		loc, ok := r.Resolve(context.Background(), "203.0.113.7")
		if !ok {
			t.Fatal("resolution failed")
		}
		if loc.Country != "Austria" || loc.City != "Vienna" {
			t.Fatalf("location = %+v", loc)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestResolveCachesFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	r := NewResolver(srv.URL, "account", "license", time.Hour)

	for range 3 {
		if _, ok := r.Resolve(context.Background(), "203.0.113.7"); ok {
			t.Fatal("failure reported as success")
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("failed lookup retried %d times within the lifetime window", n)
	}
}

func TestCacheResetsAfterLifetime(t *testing.T) {
	var calls atomic.Int32
	srv := lookupServer(t, &calls)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewResolver(srv.URL, "account", "license", time.Hour, WithClock(clock))

	if _, ok := r.Resolve(context.Background(), "203.0.113.7"); !ok {
		t.Fatal("first resolution failed")
	}
	now = now.Add(2 * time.Hour)
	if _, ok := r.Resolve(context.Background(), "203.0.113.7"); !ok {
		t.Fatal("second resolution failed")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("upstream called %d times across two lifetime windows", n)
	}
}

func TestLoopbackResolvesOwnAddress(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	t.Cleanup(srv.Close)
	r := NewResolver(srv.URL, "account", "license", time.Hour)

	r.Resolve(context.Background(), "127.0.0.1")
	if gotPath != "/city/me" {
		t.Fatalf("path = %q", gotPath)
	}

	r.Resolve(context.Background(), "203.0.113.7")
	if gotPath != "/city/203.0.113.7" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestResolveWithoutEndpoint(t *testing.T) {
	r := NewResolver("", "", "", time.Hour)
	if _, ok := r.Resolve(context.Background(), "203.0.113.7"); ok {
		t.Fatal("resolution without endpoint reported success")
	}
}

func TestLocationString(t *testing.T) {
	cases := []struct {
		loc  Location
		want string
	}{
		{Location{"Austria", "Vienna"}, "Austria, Vienna"},
		{Location{"Austria", ""}, "Austria, unknown"},
		{Location{}, "unknown, unknown"},
	}
	for _, tc := range cases {
		if got := tc.loc.String(); got != tc.want {
			t.Fatalf("String(%+v) = %q, want %q", tc.loc, got, tc.want)
		}
	}
}
