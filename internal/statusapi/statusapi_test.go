package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/syncer"
)

type fakeSync struct {
	status syncer.Status
}

func (f *fakeSync) Status() syncer.Status { return f.status }

func newTestServer(t *testing.T) (*Server, *cache.Store) {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "notes.db"), cache.Options{Username: "tester@example.com"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Server{
		Store:   store,
		Sync:    &fakeSync{status: syncer.Status{State: syncer.StateIdle, LastStatus: "success"}},
		Version: "test",
	}, store
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	sv := 3
	if _, err := store.UpsertLocal(ctx, &cache.Note{ID: "a", ServerVersion: &sv, Text: "x"}); err != nil {
		t.Fatalf("UpsertLocal: %v", err)
	}
	if err := store.SetMeta(ctx, cache.MetaBackendCursor, "c7"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "test" || resp.Cache.TotalNotes != 1 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.BackendCursor != "c7" {
		t.Errorf("cursor = %q", resp.BackendCursor)
	}
	if resp.Sync.LastStatus != "success" {
		t.Errorf("sync = %+v", resp.Sync)
	}
}
