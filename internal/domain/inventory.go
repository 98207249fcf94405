package domain

import "time"

// Inventory is one named, independently hosted Ansible inventory
type Inventory struct {
	Name    string            `json:"name" yaml:"-"`
	URL     string            `json:"url" yaml:"url"`
	BaseURL string            `json:"base_url" yaml:"base_url"`
	Hosts   map[string]*Host  `json:"hosts" yaml:"hosts"`
	Groups  map[string]*Group `json:"groups" yaml:"groups"`

	// Error carries the failure message when the root document could not be
	// fetched or parsed. The inventory is then empty but still listed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewInventory creates an empty inventory
func NewInventory(name, url, baseURL string) *Inventory {
	return &Inventory{
		Name:    name,
		URL:     url,
		BaseURL: baseURL,
		Hosts:   make(map[string]*Host),
		Groups:  make(map[string]*Group),
	}
}

// Summary returns the listing view of the inventory
func (i *Inventory) Summary() InventorySummary {
	return InventorySummary{
		Name:       i.Name,
		URL:        i.URL,
		BaseURL:    i.BaseURL,
		HostCount:  len(i.Hosts),
		GroupCount: len(i.Groups),
		Error:      i.Error,
	}
}

// Host is a host with its group memberships and merged variables
type Host struct {
	Name   string         `json:"name" yaml:"-"`
	Groups []string       `json:"groups" yaml:"groups"`
	Vars   map[string]any `json:"vars" yaml:"vars"`
}

// NewHost creates a host with no memberships and no vars
func NewHost(name string) *Host {
	return &Host{
		Name:   name,
		Groups: []string{},
		Vars:   make(map[string]any),
	}
}

// Group is a group with its merged variables
type Group struct {
	Name string         `json:"name" yaml:"-"`
	Vars map[string]any `json:"vars" yaml:"vars"`
}

// NewGroup creates a group with no vars
func NewGroup(name string) *Group {
	return &Group{
		Name: name,
		Vars: make(map[string]any),
	}
}

// InventorySummary is the listing view of an inventory
type InventorySummary struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	BaseURL    string `json:"base_url"`
	HostCount  int    `json:"host_count"`
	GroupCount int    `json:"group_count"`
	Error      string `json:"error,omitempty"`
}

// Snapshot is the immutable result of one build or refresh cycle.
// Readers must not modify anything reachable from it.
type Snapshot struct {
	ID          string
	BuiltAt     time.Time
	Inventories map[string]*Inventory
}
