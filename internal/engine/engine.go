// Package engine keeps the local mirror consistent with the remote outline.
//
// The engine owns the full-sync / partial-sync protocols, the rate limiter
// gating the expensive export call, and the lease flag that prevents two
// full syncs from racing. It is the only component that talks to both the
// remote collaborator and the cache store's mutation surface.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wfmirror/internal/cache"
	"wfmirror/internal/workflowy"
)

// ErrSyncInProgress indicates a fresh full sync already holds the lease.
// Callers should treat the existing cache as acceptable.
var ErrSyncInProgress = errors.New("sync already in progress")

// RateLimitError indicates a full sync was requested before the minimum
// interval between export calls elapsed. It carries a wait-time hint and
// is never retried automatically.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %d seconds", int(e.RetryAfter.Seconds()+0.5))
}

// CacheStatus describes how trustworthy the mirror is for a read.
type CacheStatus string

const (
	// StatusPopulated means the mirror is within the staleness threshold.
	StatusPopulated CacheStatus = "populated"
	// StatusStale means a refresh was wanted but couldn't run; reads are
	// served from the existing snapshot.
	StatusStale CacheStatus = "stale"
	// StatusEmpty means there is nothing to serve; the caller should
	// report that a sync is needed.
	StatusEmpty CacheStatus = "empty"
)

// Config holds the engine's tunables.
type Config struct {
	// FullSyncInterval is the minimum spacing between remote export calls.
	FullSyncInterval time.Duration

	// StalenessThreshold is how old the last full sync may be before a
	// read-path freshness check wants a refresh.
	StalenessThreshold time.Duration

	// LeaseTTL is how old a sync_in_progress lease may be before it is
	// treated as abandoned and force-cleared.
	LeaseTTL time.Duration

	// ReconcileDepth is how many child levels a partial children sync
	// walks. 1 reconciles only direct children; deeper values trade
	// remote-call volume for freshness depth.
	ReconcileDepth int

	// Logger for engine activity. Defaults to stderr when nil.
	Logger *log.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FullSyncInterval:   60 * time.Second,
		StalenessThreshold: time.Hour,
		LeaseTTL:           5 * time.Minute,
		ReconcileDepth:     1,
	}
}

// Engine coordinates all sync activity for one mirror.
//
// Rate-limiter and lease state live on the instance, not in globals, so
// tests can construct isolated engines.
type Engine struct {
	store   *cache.DB
	remote  workflowy.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *log.Logger

	// now is the clock; injectable for tests.
	now func() time.Time

	// wg tracks background reconciliation tasks so Wait can drain them.
	wg sync.WaitGroup
}

// New creates an engine over an opened, schema-initialized store.
func New(store *cache.DB, remote workflowy.Client, cfg Config) *Engine {
	if cfg.FullSyncInterval <= 0 {
		cfg.FullSyncInterval = DefaultConfig().FullSyncInterval
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = DefaultConfig().StalenessThreshold
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultConfig().LeaseTTL
	}
	if cfg.ReconcileDepth <= 0 {
		cfg.ReconcileDepth = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:   store,
		remote:  remote,
		limiter: rate.NewLimiter(rate.Every(cfg.FullSyncInterval), 1),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Store exposes the underlying cache for read-only consumers.
func (e *Engine) Store() *cache.DB {
	return e.store
}

// Wait blocks until all background reconciliation tasks finish.
// Used by tests and by shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ===================
// Full sync
// ===================

// FullSync replaces the entire mirror with a fresh remote export.
//
// The call is gated by the rate limiter (RateLimitError with a wait hint)
// and by the sync lease (ErrSyncInProgress). The replace itself is one
// transaction: on any failure the previous snapshot is preserved untouched.
func (e *Engine) FullSync(ctx context.Context) error {
	now := e.now()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return &RateLimitError{RetryAfter: e.cfg.FullSyncInterval}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &RateLimitError{RetryAfter: delay}
	}

	if err := e.acquireLease(ctx, now); err != nil {
		// The export never happened; give the rate budget back.
		res.CancelAt(now)
		return err
	}
	defer e.releaseLease(ctx)

	nodes, err := e.remote.Export(ctx)
	if err != nil {
		return fmt.Errorf("full sync: export failed: %w", err)
	}

	// The export is flat; derive each node's child count up front.
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.ParentID != "" {
			counts[n.ParentID]++
		}
	}

	snapshot := make([]*cache.Node, 0, len(nodes))
	for _, n := range nodes {
		snapshot = append(snapshot, remoteToCache(n, counts[n.ID]))
	}

	if err := e.store.ReplaceAll(ctx, snapshot); err != nil {
		return fmt.Errorf("full sync: replace failed: %w", err)
	}

	err = e.store.SetMetaBatch(ctx, map[string]string{
		cache.MetaLastFullSync:      e.now().UTC().Format(time.RFC3339),
		cache.MetaLastSyncNodeCount: strconv.Itoa(len(snapshot)),
	})
	if err != nil {
		return fmt.Errorf("full sync: meta update failed: %w", err)
	}

	e.logger.Printf("Full sync complete: %d nodes", len(snapshot))
	return nil
}

// acquireLease takes the sync lease, or fails with ErrSyncInProgress when a
// fresh lease is already held. A lease older than LeaseTTL is treated as
// abandoned (a crashed prior run) and taken over rather than blocking
// forever. The process is single-instance, so liveness wins over strict
// mutual exclusion here.
func (e *Engine) acquireLease(ctx context.Context, now time.Time) error {
	inProgress, err := e.store.GetMeta(ctx, cache.MetaSyncInProgress)
	if err != nil {
		return fmt.Errorf("failed to read sync lease: %w", err)
	}

	if inProgress == "1" {
		startedAt, err := e.store.GetMeta(ctx, cache.MetaSyncStartedAt)
		if err != nil {
			return fmt.Errorf("failed to read lease timestamp: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339, startedAt); perr == nil && now.Sub(t) < e.cfg.LeaseTTL {
			return ErrSyncInProgress
		}
		e.logger.Printf("Breaking stale sync lease (started %s)", startedAt)
	}

	return e.store.SetMetaBatch(ctx, map[string]string{
		cache.MetaSyncInProgress: "1",
		cache.MetaSyncStartedAt:  now.UTC().Format(time.RFC3339),
	})
}

// releaseLease always clears the lease, success or failure.
func (e *Engine) releaseLease(ctx context.Context) {
	if err := e.store.SetMeta(ctx, cache.MetaSyncInProgress, "0"); err != nil {
		e.logger.Printf("Warning: failed to clear sync lease: %v", err)
	}
}

// ===================
// Freshness
// ===================

// EnsureFresh runs the opportunistic freshness check before a read.
//
// A sync is needed when the cache is empty, no prior sync timestamp exists,
// or the last full sync is older than the staleness threshold. When needed
// and permitted the full sync runs inline; when the rate limiter or lease
// forbids it the read degrades to the existing snapshot. This never blocks
// a read on a sync failure.
func (e *Engine) EnsureFresh(ctx context.Context) CacheStatus {
	count, err := e.store.CountNodesContext(ctx)
	if err != nil {
		e.logger.Printf("Warning: freshness check failed to count nodes: %v", err)
		return StatusStale
	}

	if !e.syncNeeded(ctx, count) {
		return StatusPopulated
	}

	switch err := e.FullSync(ctx); {
	case err == nil:
		return StatusPopulated
	case errors.Is(err, ErrSyncInProgress):
		e.logger.Printf("Freshness check: sync in progress, using existing cache")
	default:
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.logger.Printf("Freshness check: %v, using existing cache", err)
		} else {
			e.logger.Printf("Warning: freshness sync failed: %v", err)
		}
	}

	if count == 0 {
		return StatusEmpty
	}
	return StatusStale
}

func (e *Engine) syncNeeded(ctx context.Context, nodeCount int) bool {
	if nodeCount == 0 {
		return true
	}
	last, err := e.store.GetMeta(ctx, cache.MetaLastFullSync)
	if err != nil || last == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return true
	}
	return e.now().Sub(t) > e.cfg.StalenessThreshold
}

// ===================
// Partial sync
// ===================

// SyncNode re-fetches one node and overwrites its cache row, preserving the
// locally-known parent_id and children_count (the single-node endpoint does
// not return them). A remote 404 means the node was deleted remotely and
// removes it (and its subtree) locally.
func (e *Engine) SyncNode(ctx context.Context, id string) error {
	fresh, err := e.remote.GetNode(ctx, id)
	if errors.Is(err, workflowy.ErrNotFound) {
		e.logger.Printf("Node %s gone remotely, deleting local subtree", id)
		return e.store.DeleteNodeCascadeContext(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("partial sync: fetch %s failed: %w", id, err)
	}

	node := remoteToCache(*fresh, 0)
	existing, err := e.store.GetNodeContext(ctx, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("partial sync: read %s failed: %w", id, err)
	}
	if existing != nil {
		node.ParentID = existing.ParentID
		node.ChildrenCount = existing.ChildrenCount
	}

	if err := e.store.UpsertNodeContext(ctx, node); err != nil {
		return fmt.Errorf("partial sync: upsert %s failed: %w", id, err)
	}
	return nil
}

// SyncChildren reconciles the cached children of one parent against the
// fresh remote child list: everyone present is upserted, anyone cached but
// absent is cascade-deleted. This is how remote deletions and moves become
// visible locally without a full resync.
//
// parentID may be empty to reconcile the top-level nodes. The walk recurses
// ReconcileDepth levels.
func (e *Engine) SyncChildren(ctx context.Context, parentID string) error {
	return e.syncChildren(ctx, parentID, e.cfg.ReconcileDepth)
}

func (e *Engine) syncChildren(ctx context.Context, parentID string, depth int) error {
	fresh, err := e.remote.ListChildren(ctx, parentID)
	if err != nil {
		return fmt.Errorf("partial sync: list children of %q failed: %w", parentID, err)
	}

	var parentPtr *string
	if parentID != "" {
		parentPtr = &parentID
	}
	cached, err := e.store.ChildrenContext(ctx, parentPtr)
	if err != nil {
		return fmt.Errorf("partial sync: read cached children of %q failed: %w", parentID, err)
	}

	freshIDs := make(map[string]bool, len(fresh))
	for _, n := range fresh {
		freshIDs[n.ID] = true
	}

	for _, c := range cached {
		if !freshIDs[c.ID] {
			e.logger.Printf("Child %s gone from %q, deleting local subtree", c.ID, parentID)
			if err := e.store.DeleteNodeCascadeContext(ctx, c.ID); err != nil {
				return fmt.Errorf("partial sync: cascade delete %s failed: %w", c.ID, err)
			}
		}
	}

	cachedCounts := make(map[string]int, len(cached))
	for _, c := range cached {
		cachedCounts[c.ID] = c.ChildrenCount
	}

	for _, n := range fresh {
		node := remoteToCache(n, cachedCounts[n.ID])
		if node.ParentID == nil && parentID != "" {
			// The list endpoint may omit parent_id; we asked for it.
			node.ParentID = &parentID
		}
		if err := e.store.UpsertNodeContext(ctx, node); err != nil {
			return fmt.Errorf("partial sync: upsert child %s failed: %w", n.ID, err)
		}
	}

	if parentID != "" {
		if err := e.store.SetChildrenCount(ctx, parentID, len(fresh)); err != nil {
			return err
		}
	}

	if depth > 1 {
		for _, n := range fresh {
			if err := e.syncChildren(ctx, n.ID, depth-1); err != nil {
				return err
			}
		}
	}
	return nil
}

// ===================
// Helpers
// ===================

func remoteToCache(n workflowy.Node, childrenCount int) *cache.Node {
	node := &cache.Node{
		ID:            n.ID,
		Name:          n.Name,
		Note:          n.Note,
		Completed:     n.Completed,
		Priority:      n.Priority,
		ChildrenCount: childrenCount,
		CreatedAt:     workflowy.ParseTime(n.CreatedAt),
		UpdatedAt:     workflowy.ParseTime(n.UpdatedAt),
	}
	if n.ParentID != "" {
		parentID := n.ParentID
		node.ParentID = &parentID
	}
	return node
}
