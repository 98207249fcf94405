package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/inventorycmdb/server/internal/domain"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Store is the read-only query surface of the CMDB
type Store interface {
	IsReady() bool
	IsRefreshRequired() bool
	Snapshot() *domain.Snapshot
	Inventories() map[string]domain.InventorySummary
	Inventory(name string) (*domain.Inventory, bool)
	Host(inventory, host string) (*domain.Host, bool)
	Group(inventory, group string) (*domain.Group, bool)
	SchemaMapping(name string) (map[string]string, bool)
	CacheEntries() int
}

// Refresher accepts refresh requests and reports refresh state
type Refresher interface {
	Trigger()
	LastRefresh() time.Time
	IsRefreshing() bool
}

// Refresh requests beyond this burst are rejected until tokens refill
const (
	refreshBurst = 5
	refreshEvery = 10 * time.Second
)

// Handlers provides HTTP handlers for the API
type Handlers struct {
	store          Store
	refresher      Refresher
	renders        *renderCache
	refreshLimiter *rate.Limiter
	logger         *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(store Store, refresher Refresher, renderCacheSize int, logger *slog.Logger) (*Handlers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	renders, err := newRenderCache(renderCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handlers{
		store:          store,
		refresher:      refresher,
		renders:        renders,
		refreshLimiter: rate.NewLimiter(rate.Every(refreshEvery), refreshBurst),
		logger:         logger,
	}, nil
}

// Health returns health check information
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ready := h.store.IsReady()

	resp := domain.HealthResponse{
		Status:          "ok",
		Version:         Version,
		Ready:           ready,
		RefreshRequired: h.store.IsRefreshRequired(),
		InventoryCount:  len(h.store.Inventories()),
		CacheEntries:    h.store.CacheEntries(),
	}
	if !ready {
		resp.Status = "not_ready"
	}

	if snap := h.store.Snapshot(); snap != nil {
		resp.SnapshotID = snap.ID
		resp.BuiltAt = snap.BuiltAt.Format(time.RFC3339)
	}

	if h.refresher != nil {
		resp.Refreshing = h.refresher.IsRefreshing()
		if last := h.refresher.LastRefresh(); !last.IsZero() {
			resp.LastRefreshAt = last.Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ping returns a simple pong response
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.PingResponse{Pong: true})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	version := Version
	commit := GitCommit
	buildTime := BuildTime

	// Try to get from build info if not set
	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" {
		version = info.Main.Version
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			}
		}
	}

	writeJSON(w, http.StatusOK, domain.VersionResponse{
		Version:   version,
		GitCommit: commit,
		BuildTime: buildTime,
	})
}

// ListInventories returns a summary of every configured inventory. It is
// served before the first build, with empty counts.
func (h *Handlers) ListInventories(w http.ResponseWriter, r *http.Request) {
	summaries := h.store.Inventories()

	resp := domain.InventoryListResponse{
		Inventories: make([]domain.InventorySummary, 0, len(summaries)),
		Count:       len(summaries),
	}
	for _, s := range summaries {
		resp.Inventories = append(resp.Inventories, s)
	}
	sort.Slice(resp.Inventories, func(i, j int) bool {
		return resp.Inventories[i].Name < resp.Inventories[j].Name
	})

	writeJSON(w, http.StatusOK, resp)
}

// GetInventory returns a full inventory with its schema mapping
func (h *Handlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	name := pathParam(r, "inventory")
	inv, ok := h.store.Inventory(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", "Inventory not found: "+name)
		return
	}

	mapping, _ := h.store.SchemaMapping(name)
	writeJSON(w, http.StatusOK, domain.InventoryResponse{
		Inventory:     inv,
		SchemaMapping: mapping,
	})
}

// GetHost returns the groups and merged vars of a host
func (h *Handlers) GetHost(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	snapshotID := h.snapshotID()
	inventoryName := pathParam(r, "inventory")
	hostName := pathParam(r, "host")

	host, ok := h.store.Host(inventoryName, hostName)
	if !ok {
		h.logger.Debug("host not found", "inventory", inventoryName, "host", hostName)
		writeError(w, http.StatusNotFound, "Not Found", "Host not found: "+hostName)
		return
	}

	if wantsYAML(r) {
		h.writeVars(w, r, snapshotID, host.Vars)
		return
	}

	writeJSON(w, http.StatusOK, domain.HostResponse{
		Inventory: inventoryName,
		Host:      host.Name,
		Groups:    host.Groups,
		Vars:      host.Vars,
	})
}

// GetGroup returns the merged vars of a group
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	snapshotID := h.snapshotID()
	inventoryName := pathParam(r, "inventory")
	groupName := pathParam(r, "group")

	group, ok := h.store.Group(inventoryName, groupName)
	if !ok {
		h.logger.Debug("group not found", "inventory", inventoryName, "group", groupName)
		writeError(w, http.StatusNotFound, "Not Found", "Group not found: "+groupName)
		return
	}

	if wantsYAML(r) {
		h.writeVars(w, r, snapshotID, group.Vars)
		return
	}

	writeJSON(w, http.StatusOK, domain.GroupResponse{
		Inventory: inventoryName,
		Group:     group.Name,
		Vars:      group.Vars,
	})
}

// Refresh asks the scheduler for a refresh and returns immediately
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "Service Unavailable", "Refresh scheduler not running")
		return
	}

	if !h.refreshLimiter.Allow() {
		h.logger.Warn("refresh request rate limited", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusTooManyRequests, "Too Many Requests", "Refresh requested too often, try again later")
		return
	}

	h.refresher.Trigger()
	h.logger.Info("refresh requested", "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, domain.RefreshResponse{Status: "accepted"})
}

// requireReady writes a 425 placeholder until the first build finishes
func (h *Handlers) requireReady(w http.ResponseWriter) bool {
	if h.store.IsReady() {
		return true
	}

	writeJSON(w, http.StatusTooEarly, domain.NotReadyResponse{
		Status: http.StatusTooEarly,
		Title:  "Too Early",
		Detail: "CMDB not ready, please wait a moment and retry.",
		Ready:  false,
	})
	return false
}

// snapshotID is read before any lookup so a render is never cached under a
// newer snapshot than the one it came from
func (h *Handlers) snapshotID() string {
	if snap := h.store.Snapshot(); snap != nil {
		return snap.ID
	}
	return ""
}

func (h *Handlers) writeVars(w http.ResponseWriter, r *http.Request, snapshotID string, vars map[string]any) {
	out, err := h.renders.render(snapshotID, r.URL.Path, vars)
	if err != nil {
		h.logger.Error("failed to render vars", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to render vars")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// Helper functions

func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

func wantsYAML(r *http.Request) bool {
	return r.URL.Query().Get("format") == "yaml"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	resp := domain.ErrorResponse{
		Status: status,
		Title:  title,
		Detail: detail,
	}
	writeJSON(w, status, resp)
}
