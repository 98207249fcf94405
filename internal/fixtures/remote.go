// Package fixtures provides a fake HTTP inventory host for tests.
package fixtures

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MainInventory is a small root inventory document. hostone is a member of
// two groups and carries inline vars in the second one.
const MainInventory = `---
groupone:
  hosts:
    hostone:
grouptwo:
  hosts:
    hosttwo:
      ansible_host: 10.0.0.2
groupthree:
  hosts:
    hostone:
      env: prod
`

type response struct {
	status int
	body   string
}

// Remote serves YAML documents by path and counts requests. Paths that were
// never registered answer 404.
type Remote struct {
	Server *httptest.Server

	mu    sync.Mutex
	docs  map[string]response
	hooks map[string]func()
	hits  map[string]int
	total int
}

// NewRemote starts a fake inventory host that is closed when the test ends
func NewRemote(t testing.TB) *Remote {
	t.Helper()

	r := &Remote{
		docs:  make(map[string]response),
		hooks: make(map[string]func()),
		hits:  make(map[string]int),
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Server.Close)

	return r
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.hits[req.URL.Path]++
	r.total++
	resp, ok := r.docs[req.URL.Path]
	hook := r.hooks[req.URL.Path]
	r.mu.Unlock()

	if hook != nil {
		hook()
	}

	if !ok {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

// Set serves body with 200 OK at path
func (r *Remote) Set(path, body string) {
	r.SetStatus(path, http.StatusOK, body)
}

// SetStatus serves body with the given status at path
func (r *Remote) SetStatus(path string, status int, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[path] = response{status: status, body: body}
}

// OnRequest runs fn inside the handler for path before the response is
// written, e.g. to stall or to cancel the caller mid-request
func (r *Remote) OnRequest(path string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[path] = fn
}

// URL returns the absolute URL of path on this host
func (r *Remote) URL(path string) string {
	return r.Server.URL + path
}

// Hits returns how many requests were made for path
func (r *Remote) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

// TotalHits returns how many requests were made in total
func (r *Remote) TotalHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// SetEmptyVars serves an empty document at both vars file locations of each
// name. kind is host_vars or group_vars.
func (r *Remote) SetEmptyVars(kind string, names ...string) {
	for _, name := range names {
		r.Set("/"+kind+"/"+name+".yml", "")
		r.Set("/inventory/"+kind+"/"+name+".yml", "")
	}
}
