package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventorycmdb/server/internal/doccache"
	"github.com/inventorycmdb/server/internal/fixtures"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	cache, err := doccache.New(doccache.Config{Timeout: time.Second})
	require.NoError(t, err)
	return NewBuilder(cache, nil)
}

func TestBaseURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://example.com/inventory/main.yml", "https://example.com"},
		{"https://example.com/repo/refs/heads/main/inventory/main.yml", "https://example.com/repo/refs/heads/main"},
		{"https://example.com/hosts.yml", "https://example.com/hosts.yml"},
		{"https://example.com/inventory.yml", "https://example.com"},
		{"https://example.com/a/inventory/b/inventory/main.yml", "https://example.com/a"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseURL(tt.in), tt.in)
	}
}

func TestBuildEndToEnd(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", `
groupone:
  hosts:
    hostone:
groupthree:
  hosts:
    hostone:
      env: prod
`)
	for _, p := range []string{
		"/host_vars/hostone.yml",
		"/inventory/host_vars/hostone.yml",
		"/group_vars/groupone.yml",
		"/inventory/group_vars/groupone.yml",
		"/group_vars/groupthree.yml",
		"/inventory/group_vars/groupthree.yml",
	} {
		remote.Set(p, "")
	}

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Equal(t, "main", inv.Name)
	assert.Equal(t, remote.Server.URL, inv.BaseURL)
	assert.Empty(t, inv.Error)

	require.Len(t, inv.Hosts, 1)
	host := inv.Hosts["hostone"]
	assert.Equal(t, []string{"groupone", "groupthree"}, host.Groups)
	assert.Equal(t, map[string]any{"env": "prod"}, host.Vars)

	require.Len(t, inv.Groups, 2)
	assert.Empty(t, inv.Groups["groupone"].Vars)
	assert.Empty(t, inv.Groups["groupthree"].Vars)
}

func TestBuildMergePrecedence(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", "web:\n  hosts:\n    h1:\n      a: 3\n")
	remote.Set("/host_vars/h1.yml", "a: 1\n")
	remote.Set("/inventory/host_vars/h1.yml", "a: 2\nb: 1\n")
	remote.Set("/group_vars/web.yml", "x: first\ny: kept\n")
	remote.Set("/inventory/group_vars/web.yml", "x: second\n")

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Equal(t, map[string]any{"a": 3, "b": 1}, inv.Hosts["h1"].Vars)
	assert.Equal(t, map[string]any{"x": "second", "y": "kept"}, inv.Groups["web"].Vars)
}

func TestBuildInlineVarsFollowGroupOrder(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", `
zeta:
  hosts:
    h1:
      role: first
alpha:
  hosts:
    h1:
      role: second
      extra: true
`)

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))
	host := inv.Hosts["h1"]

	assert.Equal(t, []string{"zeta", "alpha"}, host.Groups)
	assert.Equal(t, "second", host.Vars["role"])
	assert.Equal(t, true, host.Vars["extra"])
}

func TestBuildGroupMembership(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", fixtures.MainInventory)

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Equal(t, []string{"groupone", "groupthree"}, inv.Hosts["hostone"].Groups)
	assert.Equal(t, []string{"grouptwo"}, inv.Hosts["hosttwo"].Groups)
	assert.Len(t, inv.Groups, 3)
}

func TestBuildErrorIsolation(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", "good:\n  hosts:\n    h1:\nbad:\n  hosts:\n    h2:\n")
	remote.Set("/group_vars/good.yml", "ok: true\n")
	remote.Set("/inventory/group_vars/good.yml", "")
	remote.Set("/host_vars/h1.yml", "name: one\n")
	remote.Set("/inventory/host_vars/h1.yml", "")
	// nothing is served for group bad or host h2: 404 on both paths

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	bad := inv.Groups["bad"].Vars
	assert.Equal(t, true, bad["error"])
	assert.Equal(t, "error getting inventory, HTTP 404", bad["message"])
	assert.Equal(t, true, inv.Hosts["h2"].Vars["error"])

	assert.Equal(t, map[string]any{"ok": true}, inv.Groups["good"].Vars)
	assert.Equal(t, map[string]any{"name": "one"}, inv.Hosts["h1"].Vars)

	assert.Len(t, inv.Hosts, 2)
	assert.Equal(t, []string{"bad"}, inv.Hosts["h2"].Groups)
}

func TestBuildGroupsWithoutHosts(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", "empty:\nnohosts:\n  hosts:\nweird: 7\nreal:\n  hosts:\n    h1:\n")

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Len(t, inv.Groups, 4)
	assert.Len(t, inv.Hosts, 1)
	assert.Equal(t, []string{"real"}, inv.Hosts["h1"].Groups)
}

func TestBuildFetchesEachURLOnce(t *testing.T) {
	remote := fixtures.NewRemote(t)
	remote.Set("/inventory/main.yml", fixtures.MainInventory)

	b := newBuilder(t)
	b.Build(context.Background(), "main", remote.URL("/inventory/main.yml"))
	b.Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Equal(t, 1, remote.Hits("/inventory/main.yml"))
	assert.Equal(t, 1, remote.Hits("/host_vars/hostone.yml"))
	assert.Equal(t, 1, remote.Hits("/inventory/host_vars/hostone.yml"))
	assert.Equal(t, 1, remote.Hits("/inventory/group_vars/groupthree.yml"))
}

func TestBuildRootFailure(t *testing.T) {
	remote := fixtures.NewRemote(t)

	inv := newBuilder(t).Build(context.Background(), "main", remote.URL("/inventory/main.yml"))

	assert.Equal(t, "error getting inventory, HTTP 404", inv.Error)
	assert.Empty(t, inv.Hosts)
	assert.Empty(t, inv.Groups)
}
