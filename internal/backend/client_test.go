package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erauner12/notebridge/internal/noteerr"
)

func newTestClient(t *testing.T, dataHandler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/"+AppID+"/authorize/", func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.Password != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(authResponse{AccessToken: "tok-1", UserID: "u1"})
	})
	mux.HandleFunc("/", dataHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, srv.URL, "note", "user@example.com", "correct", 5*time.Second)
	return client, srv
}

func TestAuthorize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	token, err := client.Authorize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q, want tok-1", token)
	}
}

func TestAuthorizeBadCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.password = "wrong"

	_, err := client.Authorize(context.Background())
	if !noteerr.IsCategory(err, noteerr.CategoryAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestIndexPassesCursorParams(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(IndexPage{
			Entries: []IndexEntry{{ID: "n1", Version: 3}},
			Current: "c9",
			Mark:    "m2",
		})
	})

	page, err := client.Index(context.Background(), IndexOpts{Since: "c1", Limit: 500, Data: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ID != "n1" || page.Entries[0].Version != 3 {
		t.Errorf("unexpected entries: %+v", page.Entries)
	}
	if page.Current != "c9" || page.Mark != "m2" {
		t.Errorf("cursor fields = (%q, %q)", page.Current, page.Mark)
	}
	for _, want := range []string{"since=c1", "limit=500", "data=true"} {
		if !containsParam(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func containsParam(query, param string) bool {
	for _, p := range splitQuery(query) {
		if p == param {
			return true
		}
	}
	return false
}

func splitQuery(q string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(q); i++ {
		if i == len(q) || q[i] == '&' {
			if i > start {
				out = append(out, q[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func TestReauthorizeOnceOn401(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(IndexPage{Current: "c0"})
	})
	// Seed a stale token so the first data call fails.
	client.token = "stale"

	page, err := client.Index(context.Background(), IndexOpts{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if page.Current != "c0" {
		t.Errorf("Current = %q, want c0", page.Current)
	}
	if calls.Load() != 2 {
		t.Errorf("data calls = %d, want 2 (original + replay)", calls.Load())
	}
}

func TestPersistent401SurfacesAuthError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Index(context.Background(), IndexOpts{})
	if !noteerr.IsCategory(err, noteerr.CategoryAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestRateLimitRetriesThenSurfaces(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Index(context.Background(), IndexOpts{})
	var e *noteerr.Error
	if !noteerr.IsCategory(err, noteerr.CategoryBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	e = noteerr.As(err)
	if e.Subcategory != noteerr.SubRateLimit {
		t.Errorf("subcategory = %s, want rate_limit", e.Subcategory)
	}
	// Original attempt plus maxRateLimitRetries replays.
	if calls.Load() != int32(maxRateLimitRetries)+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRateLimitRetries+1)
	}
}

func TestFetchVersionNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchVersion(context.Background(), "gone", 4)
	if !noteerr.IsCategory(err, noteerr.CategoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveConditionalUpdate(t *testing.T) {
	var gotPath, gotIfMatch string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIfMatch = r.Header.Get("If-Match")
		w.Header().Set("X-Version", "6")
		json.NewEncoder(w).Encode(NoteData{Content: "hello", Tags: []string{"x"}})
	})

	base := 5
	result, err := client.Save(context.Background(), "n1", &NoteData{Content: "hello"}, &base)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/note/i/n1/v/5" {
		t.Errorf("path = %q, want versioned save path", gotPath)
	}
	if gotIfMatch != "5" {
		t.Errorf("If-Match = %q, want 5", gotIfMatch)
	}
	if result.Version != 6 {
		t.Errorf("Version = %d, want 6", result.Version)
	}
	if result.Data == nil || result.Data.Content != "hello" {
		t.Errorf("echoed data = %+v", result.Data)
	}
}

func TestSaveConflictNeverRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	})

	base := 5
	_, err := client.Save(context.Background(), "n1", &NoteData{Content: "x"}, &base)
	if !noteerr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if hint := noteerr.As(err).Hint; hint != "re-fetch and re-apply" {
		t.Errorf("hint = %q", hint)
	}
	if calls.Load() != 1 {
		t.Errorf("save attempted %d times, want 1", calls.Load())
	}
}

func TestSaveVersionHeaderFallback(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		baseVersion *int
		want        int
	}{
		{"missing header with known base", "", intp(7), 8},
		{"garbage header with known base", "soon", intp(7), 8},
		{"missing header on new note", "", nil, 0},
		{"valid header wins", "12", intp(7), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("X-Version", tt.header)
				}
				json.NewEncoder(w).Encode(NoteData{Content: "x"})
			})

			result, err := client.Save(context.Background(), "n1", &NoteData{Content: "x"}, tt.baseVersion)
			if err != nil {
				t.Fatal(err)
			}
			if result.Version != tt.want {
				t.Errorf("Version = %d, want %d", result.Version, tt.want)
			}
		})
	}
}

func TestSaveBadRequestIsValidationError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Save(context.Background(), "n1", &NoteData{}, nil)
	if e := noteerr.As(err); e.Category != noteerr.CategoryBackend || e.Subcategory != noteerr.SubValidationError {
		t.Fatalf("expected backend/validation_error, got %v", err)
	}
}

func TestTransportFailureIsTimeout(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "http://127.0.0.1:1", "note", "u", "p", 500*time.Millisecond)
	client.token = "tok"

	_, err := client.Index(context.Background(), IndexOpts{})
	if !noteerr.IsCategory(err, noteerr.CategoryTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func intp(n int) *int { return &n }
