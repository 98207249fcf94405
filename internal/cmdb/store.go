package cmdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/inventorycmdb/server/internal/atomicfile"
	"github.com/inventorycmdb/server/internal/doccache"
	"github.com/inventorycmdb/server/internal/domain"
	"github.com/inventorycmdb/server/internal/inventory"
	"github.com/inventorycmdb/server/internal/metrics"
)

// ErrNoInventories is returned by Build when nothing is configured
var ErrNoInventories = errors.New("no inventories configured")

var tracer = otel.Tracer("inventory-cmdb")

// Source is one configured inventory
type Source struct {
	Name          string
	URL           string
	SchemaMapping map[string]string
}

// Store owns the configured inventories and the current snapshot.
// Build and Refresh are serialised; readers never block and always see one
// complete snapshot.
type Store struct {
	sources  []Source
	cache    *doccache.Cache
	builder  *inventory.Builder
	dumpPath string
	logger   *slog.Logger

	snapshot        atomic.Pointer[domain.Snapshot]
	ready           atomic.Bool
	refreshRequired atomic.Bool
	buildMu         sync.Mutex
}

// Config holds store configuration
type Config struct {
	Inventories []Source
	Cache       *doccache.Cache
	// DumpPath is where a YAML dump of every snapshot is written. Empty
	// disables the dump.
	DumpPath string
	Logger   *slog.Logger
}

// New creates a store. A cache restored from a previous run marks the store
// as needing a refresh.
func New(cfg Config) (*Store, error) {
	if cfg.Cache == nil {
		return nil, errors.New("document cache is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	sources := make([]Source, len(cfg.Inventories))
	copy(sources, cfg.Inventories)
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})

	s := &Store{
		sources:  sources,
		cache:    cfg.Cache,
		builder:  inventory.NewBuilder(cfg.Cache, cfg.Logger),
		dumpPath: cfg.DumpPath,
		logger:   cfg.Logger,
	}
	s.refreshRequired.Store(cfg.Cache.Restored())
	metrics.Ready.Set(0)

	return s, nil
}

// Build builds every configured inventory from the document cache and swaps
// in the result
func (s *Store) Build(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	return s.build(ctx, "build")
}

// Refresh empties the document cache and rebuilds everything
func (s *Store) Refresh(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	s.logger.Info("refreshing CMDB")
	s.cache.Clear()

	if err := s.build(ctx, "refresh"); err != nil {
		return err
	}

	s.refreshRequired.Store(false)
	s.logger.Info("CMDB refresh complete")
	return nil
}

func (s *Store) build(ctx context.Context, kind string) error {
	if len(s.sources) == 0 {
		metrics.Builds.WithLabelValues(kind, "error").Inc()
		return ErrNoInventories
	}

	ctx, span := tracer.Start(ctx, "cmdb."+kind)
	defer span.End()

	start := time.Now()
	s.logger.Info("building CMDB", "kind", kind, "inventories", len(s.sources))

	inventories := make(map[string]*domain.Inventory, len(s.sources))
	for _, src := range s.sources {
		if err := s.interrupted(ctx, span, kind); err != nil {
			return err
		}

		invCtx, invSpan := tracer.Start(ctx, "inventory.build",
			trace.WithAttributes(attribute.String("inventory", src.Name)),
		)
		inv := s.builder.Build(invCtx, src.Name, src.URL)
		invSpan.SetAttributes(
			attribute.Int("hosts", len(inv.Hosts)),
			attribute.Int("groups", len(inv.Groups)),
		)
		invSpan.End()

		inventories[src.Name] = inv
		metrics.InventoryHosts.WithLabelValues(src.Name).Set(float64(len(inv.Hosts)))
		metrics.InventoryGroups.WithLabelValues(src.Name).Set(float64(len(inv.Groups)))
	}

	// Lookups after a cancel come back as failures, never swap those in
	if err := s.interrupted(ctx, span, kind); err != nil {
		return err
	}

	snap := &domain.Snapshot{
		ID:          uuid.NewString(),
		BuiltAt:     time.Now(),
		Inventories: inventories,
	}

	if err := s.writeDump(snap); err != nil {
		s.logger.Warn("failed to write CMDB dump", "path", s.dumpPath, "error", err)
	}

	s.snapshot.Store(snap)
	s.ready.Store(true)
	metrics.Ready.Set(1)

	duration := time.Since(start)
	metrics.Builds.WithLabelValues(kind, "ok").Inc()
	metrics.BuildDuration.WithLabelValues(kind).Observe(duration.Seconds())
	span.SetAttributes(attribute.String("snapshot_id", snap.ID))

	s.logger.Info("CMDB built",
		"kind", kind,
		"snapshot_id", snap.ID,
		"cache_entries", s.cache.Len(),
		"duration", duration,
	)

	return nil
}

func (s *Store) interrupted(ctx context.Context, span trace.Span, kind string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	span.SetStatus(codes.Error, err.Error())
	metrics.Builds.WithLabelValues(kind, "cancelled").Inc()
	s.logger.Warn("CMDB build interrupted, keeping current snapshot", "kind", kind, "error", err)
	return fmt.Errorf("build interrupted: %w", err)
}

func (s *Store) writeDump(snap *domain.Snapshot) error {
	if s.dumpPath == "" {
		return nil
	}

	data, err := yaml.Marshal(snap.Inventories)
	if err != nil {
		return fmt.Errorf("failed to encode dump: %w", err)
	}

	return atomicfile.Write(s.dumpPath, append([]byte("---\n"), data...), 0644)
}

// Snapshot returns the current snapshot, nil before the first build
func (s *Store) Snapshot() *domain.Snapshot {
	return s.snapshot.Load()
}

// Inventories returns a summary of every configured inventory. Before the
// first build the summaries carry no hosts or groups.
func (s *Store) Inventories() map[string]domain.InventorySummary {
	out := make(map[string]domain.InventorySummary, len(s.sources))

	snap := s.snapshot.Load()
	for _, src := range s.sources {
		if snap != nil {
			if inv, ok := snap.Inventories[src.Name]; ok {
				out[src.Name] = inv.Summary()
				continue
			}
		}
		out[src.Name] = domain.InventorySummary{
			Name:    src.Name,
			URL:     src.URL,
			BaseURL: inventory.BaseURL(src.URL),
		}
	}

	return out
}

// Inventory returns a built inventory by name
func (s *Store) Inventory(name string) (*domain.Inventory, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, false
	}
	inv, ok := snap.Inventories[name]
	return inv, ok
}

// Host returns a host of a built inventory
func (s *Store) Host(inventoryName, hostName string) (*domain.Host, bool) {
	inv, ok := s.Inventory(inventoryName)
	if !ok {
		return nil, false
	}
	host, ok := inv.Hosts[hostName]
	return host, ok
}

// Group returns a group of a built inventory
func (s *Store) Group(inventoryName, groupName string) (*domain.Group, bool) {
	inv, ok := s.Inventory(inventoryName)
	if !ok {
		return nil, false
	}
	group, ok := inv.Groups[groupName]
	return group, ok
}

// SchemaMapping returns the presentation schema configured for an inventory
func (s *Store) SchemaMapping(name string) (map[string]string, bool) {
	for _, src := range s.sources {
		if src.Name == name {
			return src.SchemaMapping, src.SchemaMapping != nil
		}
	}
	return nil, false
}

// IsReady reports whether a snapshot has been built
func (s *Store) IsReady() bool {
	return s.ready.Load()
}

// IsRefreshRequired reports whether the snapshot may have been built from a
// stale persisted cache
func (s *Store) IsRefreshRequired() bool {
	return s.refreshRequired.Load()
}

// CacheEntries returns the number of documents in the cache
func (s *Store) CacheEntries() int {
	return s.cache.Len()
}
