package domain

// InventoryListResponse lists the configured inventories
type InventoryListResponse struct {
	Inventories []InventorySummary `json:"inventories"`
	Count       int                `json:"count"`
}

// InventoryResponse wraps an inventory with its presentation schema
type InventoryResponse struct {
	Inventory     *Inventory        `json:"inventory"`
	SchemaMapping map[string]string `json:"schema_mapping,omitempty"`
}

// HostResponse represents a single host lookup
type HostResponse struct {
	Inventory string         `json:"inventory"`
	Host      string         `json:"host"`
	Groups    []string       `json:"groups"`
	Vars      map[string]any `json:"vars"`
}

// GroupResponse represents a single group lookup
type GroupResponse struct {
	Inventory string         `json:"inventory"`
	Group     string         `json:"group"`
	Vars      map[string]any `json:"vars"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Ready           bool   `json:"ready"`
	RefreshRequired bool   `json:"refresh_required"`
	Refreshing      bool   `json:"refreshing"`
	SnapshotID      string `json:"snapshot_id,omitempty"`
	BuiltAt         string `json:"built_at,omitempty"`
	LastRefreshAt   string `json:"last_refresh_at,omitempty"`
	InventoryCount  int    `json:"inventory_count"`
	CacheEntries    int    `json:"cache_entries"`
}

// PingResponse represents the ping response
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// RefreshResponse acknowledges a refresh request
type RefreshResponse struct {
	Status string `json:"status"`
}

// NotReadyResponse is served while the first build is still running
type NotReadyResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Ready  bool   `json:"ready"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
