package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventorycmdb/server/internal/cmdb"
	"github.com/inventorycmdb/server/internal/doccache"
	"github.com/inventorycmdb/server/internal/domain"
	"github.com/inventorycmdb/server/internal/fixtures"
)

type fakeRefresher struct {
	triggered atomic.Int32
}

func (f *fakeRefresher) Trigger()               { f.triggered.Add(1) }
func (f *fakeRefresher) LastRefresh() time.Time { return time.Time{} }
func (f *fakeRefresher) IsRefreshing() bool     { return false }

func newTestStore(t *testing.T) *cmdb.Store {
	t.Helper()

	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", fixtures.MainInventory)
	remote.SetEmptyVars("host_vars", "hosttwo")
	remote.SetEmptyVars("group_vars", "groupone", "grouptwo", "groupthree")
	remote.Set("/host_vars/hostone.yml", "zeta: 1\nalpha: two\n")
	remote.Set("/inventory/host_vars/hostone.yml", "")

	cache, err := doccache.New(doccache.Config{Timeout: time.Second})
	require.NoError(t, err)

	store, err := cmdb.New(cmdb.Config{
		Inventories: []cmdb.Source{{
			Name:          "main",
			URL:           remote.URL("/inventory/main.yml"),
			SchemaMapping: map[string]string{"ansible_host": "IP"},
		}},
		Cache:    cache,
		DumpPath: filepath.Join(t.TempDir(), "cmdb_dump.yml"),
	})
	require.NoError(t, err)

	return store
}

func newTestHandlers(t *testing.T, store Store, refresher Refresher) *Handlers {
	t.Helper()
	h, err := NewHandlers(store, refresher, 10, nil)
	require.NoError(t, err)
	return h
}

func serve(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func chiRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", h.mountAPI)
	return r
}

func newTestRouter(t *testing.T, store Store) http.Handler {
	t.Helper()
	router, err := NewRouter(Config{Store: store, RenderCacheSize: 10})
	require.NoError(t, err)
	return router
}

func TestNotReady(t *testing.T) {
	store := newTestStore(t)
	router := newTestRouter(t, store)

	for _, target := range []string{
		"/api/v1/inventories/main",
		"/api/v1/inventories/main/hosts/hostone",
		"/api/v1/inventories/main/groups/groupone?format=yaml",
	} {
		rec := serve(t, router, http.MethodGet, target)
		assert.Equal(t, http.StatusTooEarly, rec.Code, target)

		var resp domain.NotReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Ready)
	}

	rec := serve(t, router, http.MethodGet, "/api/v1/inventories")
	require.Equal(t, http.StatusOK, rec.Code)
	var list domain.InventoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Zero(t, list.Inventories[0].HostCount)
}

func TestHealth(t *testing.T) {
	store := newTestStore(t)
	router := newTestRouter(t, store)

	rec := serve(t, router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Empty(t, resp.SnapshotID)

	require.NoError(t, store.Build(context.Background()))

	rec = serve(t, router, http.MethodGet, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, store.Snapshot().ID, resp.SnapshotID)
	assert.Equal(t, 1, resp.InventoryCount)
	assert.Positive(t, resp.CacheEntries)
}

func TestPing(t *testing.T) {
	rec := serve(t, newTestRouter(t, newTestStore(t)), http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
}

func TestGetInventory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Build(context.Background()))
	router := newTestRouter(t, store)

	rec := serve(t, router, http.MethodGet, "/api/v1/inventories/main")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.InventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "main", resp.Inventory.Name)
	assert.Len(t, resp.Inventory.Hosts, 2)
	assert.Len(t, resp.Inventory.Groups, 3)
	assert.Equal(t, "IP", resp.SchemaMapping["ansible_host"])

	rec = serve(t, router, http.MethodGet, "/api/v1/inventories/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHost(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Build(context.Background()))
	router := newTestRouter(t, store)

	rec := serve(t, router, http.MethodGet, "/api/v1/inventories/main/hosts/hostone")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.HostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hostone", resp.Host)
	assert.Equal(t, []string{"groupone", "groupthree"}, resp.Groups)
	assert.Equal(t, "prod", resp.Vars["env"])

	rec = serve(t, router, http.MethodGet, "/api/v1/inventories/main/hosts/hostone?format=yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "---\nalpha: two\nenv: prod\nzeta: 1\n", rec.Body.String())

	for _, target := range []string{
		"/api/v1/inventories/main/hosts/nohost",
		"/api/v1/inventories/nope/hosts/hostone",
	} {
		rec = serve(t, router, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestGetGroup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Build(context.Background()))
	router := newTestRouter(t, store)

	rec := serve(t, router, http.MethodGet, "/api/v1/inventories/main/groups/grouptwo")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.GroupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "grouptwo", resp.Group)
	assert.Empty(t, resp.Vars)

	rec = serve(t, router, http.MethodGet, "/api/v1/inventories/main/groups/grouptwo?format=yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "---\n", rec.Body.String())

	rec = serve(t, router, http.MethodGet, "/api/v1/inventories/main/groups/nogroup")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderCachedPerSnapshot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Build(context.Background()))

	h := newTestHandlers(t, store, nil)
	r := chiRouter(h)
	serve(t, r, http.MethodGet, "/api/v1/inventories/main/hosts/hostone?format=yaml")
	serve(t, r, http.MethodGet, "/api/v1/inventories/main/hosts/hostone?format=yaml")
	assert.Equal(t, 1, h.renders.len())

	require.NoError(t, store.Build(context.Background()))
	serve(t, r, http.MethodGet, "/api/v1/inventories/main/hosts/hostone?format=yaml")
	assert.Equal(t, 2, h.renders.len(), "a new snapshot renders again")
}

func TestRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	h := newTestHandlers(t, newTestStore(t), refresher)

	rec := serve(t, chiRouter(h), http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), refresher.triggered.Load())

	h = newTestHandlers(t, newTestStore(t), nil)
	rec = serve(t, chiRouter(h), http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshRateLimited(t *testing.T) {
	refresher := &fakeRefresher{}
	r := chiRouter(newTestHandlers(t, newTestStore(t), refresher))

	for i := 0; i < refreshBurst; i++ {
		rec := serve(t, r, http.MethodPost, "/api/v1/refresh")
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := serve(t, r, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, int32(refreshBurst), refresher.triggered.Load())
}

func TestWebhookNeedsSecret(t *testing.T) {
	rec := serve(t, newTestRouter(t, newTestStore(t)), http.MethodPost, "/webhooks/github")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderVars(t *testing.T) {
	out, err := renderVars(nil)
	require.NoError(t, err)
	assert.Equal(t, "---\n", string(out))

	out, err = renderVars(map[string]any{
		"b":    []any{"x", "y"},
		"a":    map[string]any{"nested": true},
		"text": "line one\nline two\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "---\na:\n  nested: true\nb:\n  - x\n  - y\ntext: |\n  line one\n  line two\n", string(out))
}
