package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/inventorycmdb/server/internal/doccache"
	"github.com/inventorycmdb/server/internal/domain"
)

// Fetcher resolves a URL to a cached document
type Fetcher interface {
	Fetch(ctx context.Context, url string) doccache.Entry
}

// Builder resolves the host/group graph and variable merge of one inventory
type Builder struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewBuilder creates a builder that reads every document through fetcher
func NewBuilder(fetcher Fetcher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		fetcher: fetcher,
		logger:  logger,
	}
}

// BaseURL strips the first "/inventory" path segment and everything after it
func BaseURL(rootURL string) string {
	base, _, _ := strings.Cut(rootURL, "/inventory")
	return base
}

// HostVarsURLs returns the candidate host_vars files in merge order
func HostVarsURLs(baseURL, host string) []string {
	return []string{
		fmt.Sprintf("%s/host_vars/%s.yml", baseURL, host),
		fmt.Sprintf("%s/inventory/host_vars/%s.yml", baseURL, host),
	}
}

// GroupVarsURLs returns the candidate group_vars files in merge order
func GroupVarsURLs(baseURL, group string) []string {
	return []string{
		fmt.Sprintf("%s/group_vars/%s.yml", baseURL, group),
		fmt.Sprintf("%s/inventory/group_vars/%s.yml", baseURL, group),
	}
}

// groupHosts is one group of the root document with its member hosts in
// source order. inline holds the non-empty inline vars of each member.
type groupHosts struct {
	name   string
	hosts  []string
	inline map[string]map[string]any
}

// Build fetches the root document at rootURL and everything it references.
// It never fails: unreachable documents surface as error vars on the
// affected host or group.
func (b *Builder) Build(ctx context.Context, name, rootURL string) *domain.Inventory {
	inv := domain.NewInventory(name, rootURL, BaseURL(rootURL))

	root := b.fetcher.Fetch(ctx, rootURL)
	if !root.OK() {
		b.logger.Error("failed to load root inventory",
			"inventory", name,
			"url", rootURL,
			"error", root.Failure.Message,
		)
		inv.Error = root.Failure.Message
		return inv
	}

	groups := parseGroups(root.Document)

	// Hosts and groups, memberships in root document order
	var hostOrder []string
	for _, g := range groups {
		inv.Groups[g.name] = domain.NewGroup(g.name)
		for _, h := range g.hosts {
			host, ok := inv.Hosts[h]
			if !ok {
				host = domain.NewHost(h)
				inv.Hosts[h] = host
				hostOrder = append(hostOrder, h)
			}
			host.Groups = append(host.Groups, g.name)
		}
	}

	for _, h := range hostOrder {
		b.mergeFiles(ctx, inv.Hosts[h].Vars, HostVarsURLs(inv.BaseURL, h))
	}

	for _, g := range groups {
		b.mergeFiles(ctx, inv.Groups[g.name].Vars, GroupVarsURLs(inv.BaseURL, g.name))
	}

	// Inline vars go last so they win over host_vars files
	for _, g := range groups {
		for _, h := range g.hosts {
			merge(inv.Hosts[h].Vars, g.inline[h])
		}
	}

	b.logger.Info("inventory built",
		"inventory", name,
		"hosts", len(inv.Hosts),
		"groups", len(inv.Groups),
	)

	return inv
}

func (b *Builder) mergeFiles(ctx context.Context, vars map[string]any, urls []string) {
	for _, url := range urls {
		merge(vars, b.fetcher.Fetch(ctx, url).Vars())
	}
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// parseGroups reads the root document shape
//
//	<group>:
//	  hosts:
//	    <host>: <inline vars or null>
//
// Anything that does not match contributes a group with no hosts.
func parseGroups(doc *domain.Document) []groupHosts {
	var groups []groupHosts

	for _, name := range doc.Keys() {
		g := groupHosts{name: name, inline: make(map[string]map[string]any)}

		raw, _ := doc.Get(name)
		body, _ := raw.(map[string]any)
		hosts, _ := body["hosts"].(map[string]any)

		for _, h := range sortedKeys(hosts) {
			g.hosts = append(g.hosts, h)
			if vars, ok := hosts[h].(map[string]any); ok && len(vars) > 0 {
				g.inline[h] = vars
			}
		}

		groups = append(groups, g)
	}

	return groups
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
