// Package persist keeps the live registry durable.
//
// Every mutation is written synchronously to the local store and then pushed
// to the optional remote mirror on a detached goroutine:
//
//	Idle → LocalWrite → RemoteWrite (best effort) → Idle
//
// Boot hydrates from the local store (or seed data) and, when a mirror is
// configured, refreshes from it in the background:
//
//	ColdStart → LocalHydrate → RemoteRefresh (background) → Ready
//
// A failed mirror push never touches local or in-memory state. It marks the
// mirror dirty; the next mutation, Resync, or the next boot's refresh brings
// it back in line.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/registry"
)

// DefaultMirrorTimeout bounds one background mirror push or refresh.
const DefaultMirrorTimeout = 30 * time.Second

// MirrorStatus is a point-in-time view of the remote mirror.
type MirrorStatus struct {
	Configured  bool      `json:"configured"`
	Syncing     bool      `json:"syncing"`
	Dirty       bool      `json:"dirty"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitzero"`
}

// Coordinator owns the durable copies of a registry.Registry.
type Coordinator struct {
	reg    *registry.Registry
	local  LocalStore
	remote RemoteStore

	seed          func() registry.State
	mirrorTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	// applyMu serializes mutation + local write so snapshots land in order.
	applyMu sync.Mutex
	// pushMu serializes mirror pushes; each push sends the latest state.
	pushMu  sync.Mutex
	version atomic.Uint64

	statusMu sync.Mutex
	status   MirrorStatus
	syncing  int

	// tasksMu guards inflight and idle; idle is closed whenever no
	// background task is running.
	tasksMu  sync.Mutex
	inflight int
	idle     chan struct{}
}

type Option func(c *Coordinator)

// WithRemote configures the remote mirror. A nil store leaves it unset.
func WithRemote(remote RemoteStore) Option {
	return func(c *Coordinator) {
		c.remote = remote
	}
}

// WithSeed replaces registry.Seed as the empty-store fallback.
func WithSeed(seed func() registry.State) Option {
	return func(c *Coordinator) {
		c.seed = seed
	}
}

func WithMirrorTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.mirrorTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New constructs a Coordinator for reg backed by local.
func New(reg *registry.Registry, local LocalStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		reg:           reg,
		local:         local,
		seed:          registry.Seed,
		mirrorTimeout: DefaultMirrorTimeout,
		logger:        slog.Default(),
		idle:          make(chan struct{}),
	}
	close(c.idle)
	for _, opt := range opts {
		opt(c)
	}
	c.status.Configured = c.remote != nil
	return c
}

// Registry returns the handle the coordinator persists.
func (c *Coordinator) Registry() *registry.Registry {
	return c.reg
}

// Hydrate loads the registry from the local store, substituting and
// persisting seed data when the store is empty. With a mirror configured a
// background refresh is started; Hydrate does not wait for it.
func (c *Coordinator) Hydrate(ctx context.Context) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	state, found, err := c.readLocal(ctx)
	if err != nil {
		return fmt.Errorf("hydrate from local store: %w", err)
	}
	if !found {
		state = c.seed()
		if err := c.writeLocal(ctx, state); err != nil {
			return fmt.Errorf("persist seed data: %w", err)
		}
		c.logger.Info("local store empty, seeded registry",
			"members", len(state.Members),
			"accounts", len(state.Accounts),
		)
	}

	c.reg.Load(state)
	hydrated := c.version.Add(1)
	c.metrics.SetRegistrySize(len(state.Members), len(state.Accounts))
	c.logger.Info("registry hydrated",
		"source", sourceName(found),
		"members", len(state.Members),
		"accounts", len(state.Accounts),
	)

	if c.remote != nil {
		c.spawn("refresh", func(ctx context.Context) error {
			return c.refresh(ctx, hydrated)
		})
	}
	return nil
}

func sourceName(found bool) string {
	if found {
		return "local"
	}
	return "seed"
}

// Apply runs fn as one atomic registry mutation and persists the result. If fn
// fails nothing changes and its error is returned. If the local write fails
// the mutation stays applied in memory and an error wrapping ErrLocalWrite is
// returned. The mirror push is never awaited.
func (c *Coordinator) Apply(ctx context.Context, op string, fn func(*registry.State) error) (registry.State, error) {
	if !c.reg.Ready() {
		return registry.State{}, ErrNotHydrated
	}

	c.applyMu.Lock()
	next, err := c.reg.Update(fn)
	if err != nil {
		c.applyMu.Unlock()
		return registry.State{}, err
	}
	c.version.Add(1)
	c.metrics.SetRegistrySize(len(next.Members), len(next.Accounts))

	localErr := c.writeLocal(ctx, next)
	c.applyMu.Unlock()

	c.markDirty()
	c.spawn("push:"+op, c.push)

	if localErr != nil {
		c.logger.Error("local write failed, mutation kept in memory",
			"op", op,
			"error", localErr,
		)
		return next, fmt.Errorf("%w: %s: %v", ErrLocalWrite, op, localErr)
	}
	return next, nil
}

// Reset purges the local store and reloads the registry from the mirror when
// it has data, otherwise from seed data. It returns where the data came from.
func (c *Coordinator) Reset(ctx context.Context) (string, error) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if err := c.local.Clear(ctx); err != nil {
		c.metrics.IncrementLocalWrites(metrics.OutcomeFailure)
		return "", fmt.Errorf("%w: clear: %v", ErrLocalWrite, err)
	}

	state, source := c.seed(), "seed"
	if c.remote != nil {
		remote, ok, err := c.fetchRemote(ctx)
		switch {
		case err != nil:
			c.logger.Warn("mirror unavailable during reset, using seed data", "error", err)
		case ok:
			state, source = remote, "remote"
		}
	}

	c.reg.Load(state)
	c.version.Add(1)
	c.metrics.SetRegistrySize(len(state.Members), len(state.Accounts))
	c.logger.Info("registry reset",
		"source", source,
		"members", len(state.Members),
		"accounts", len(state.Accounts),
	)

	if err := c.writeLocal(ctx, state); err != nil {
		return source, fmt.Errorf("%w: reset: %v", ErrLocalWrite, err)
	}
	if source == "seed" && c.remote != nil {
		c.markDirty()
		c.spawn("push:reset", c.push)
	}
	return source, nil
}

// Resync pushes the current state to the mirror now and waits for the result.
// A clean mirror is left alone unless force is set.
func (c *Coordinator) Resync(ctx context.Context, force bool) error {
	if c.remote == nil {
		return ErrNoMirror
	}
	if !force && !c.Status().Dirty {
		return nil
	}
	return c.push(ctx)
}

// Status returns the current mirror status.
func (c *Coordinator) Status() MirrorStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	s := c.status
	s.Syncing = c.syncing > 0
	return s
}

// Wait blocks until no background task is running or ctx is done. Tasks
// spawned before the running ones finish extend the wait.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.tasksMu.Lock()
	idle := c.idle
	c.tasksMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs task on a detached goroutine with its own deadline. Errors are
// reported through the mirror status, never to the caller.
func (c *Coordinator) spawn(name string, task func(context.Context) error) {
	if c.remote == nil {
		return
	}
	c.tasksMu.Lock()
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++
	c.tasksMu.Unlock()

	go func() {
		defer c.taskDone()
		ctx, cancel := context.WithTimeout(context.Background(), c.mirrorTimeout)
		defer cancel()
		if err := task(ctx); err != nil {
			c.logger.Warn("background mirror task failed", "task", name, "error", err)
		}
	}()
}

func (c *Coordinator) taskDone() {
	c.tasksMu.Lock()
	defer c.tasksMu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		close(c.idle)
	}
}

// push sends the current registry state to the mirror.
func (c *Coordinator) push(ctx context.Context) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	c.beginSync()
	version := c.version.Load()
	state := c.reg.Snapshot()

	err := c.pushState(ctx, state)
	c.endSync(err, version)
	if err != nil {
		c.metrics.IncrementMirrorPushes(metrics.OutcomeFailure)
		return fmt.Errorf("push to mirror: %w", err)
	}
	c.metrics.IncrementMirrorPushes(metrics.OutcomeSuccess)
	c.logger.Debug("mirror push complete",
		"members", len(state.Members),
		"accounts", len(state.Accounts),
	)
	return nil
}

// refresh replaces the registry with the mirror's copy when the mirror has
// data. version is the registry version at hydration: any mutation since then
// wins, the refreshed copy is discarded and the mirror is brought up to date
// instead. An empty mirror is seeded from the local state.
func (c *Coordinator) refresh(ctx context.Context, version uint64) error {
	c.beginSync()
	state, ok, err := c.fetchRemote(ctx)
	c.endFetch(err)
	if err != nil {
		c.markDirty()
		return fmt.Errorf("refresh from mirror: %w", err)
	}
	if !ok {
		c.logger.Info("mirror empty, seeding it from local state")
		c.markDirty()
		return c.push(ctx)
	}

	c.applyMu.Lock()
	if c.version.Load() != version {
		c.applyMu.Unlock()
		c.logger.Info("registry changed during mirror refresh, keeping local state")
		c.markDirty()
		return c.push(ctx)
	}
	c.reg.Load(state)
	c.version.Add(1)
	localErr := c.writeLocal(ctx, state)
	c.applyMu.Unlock()

	c.metrics.SetRegistrySize(len(state.Members), len(state.Accounts))
	c.logger.Info("registry refreshed from mirror",
		"members", len(state.Members),
		"accounts", len(state.Accounts),
	)
	c.markClean(c.version.Load())
	if localErr != nil {
		return fmt.Errorf("%w: refresh: %v", ErrLocalWrite, localErr)
	}
	return nil
}

func (c *Coordinator) markDirty() {
	if c.remote == nil {
		return
	}
	c.statusMu.Lock()
	c.status.Dirty = true
	c.statusMu.Unlock()
	c.metrics.SetMirrorDirty(true)
}

func (c *Coordinator) markClean(version uint64) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.LastSuccess = time.Now().UTC()
	if c.version.Load() == version {
		c.status.Dirty = false
		c.metrics.SetMirrorDirty(false)
	}
}

func (c *Coordinator) beginSync() {
	c.statusMu.Lock()
	c.syncing++
	c.statusMu.Unlock()
}

// endSync records the outcome of a push of the state at version. The mirror
// stays dirty if the registry moved on while the push was in flight.
func (c *Coordinator) endSync(err error, version uint64) {
	c.statusMu.Lock()
	c.syncing--
	if err != nil {
		c.status.Dirty = true
		c.status.LastError = err.Error()
		c.status.LastErrorAt = time.Now().UTC()
		c.statusMu.Unlock()
		c.metrics.SetMirrorDirty(true)
		return
	}
	c.statusMu.Unlock()
	c.markClean(version)
}

func (c *Coordinator) endFetch(err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.syncing--
	if err != nil {
		c.status.LastError = err.Error()
		c.status.LastErrorAt = time.Now().UTC()
	}
}

// IsLocalWriteError reports whether err means a mutation was not made durable.
func IsLocalWriteError(err error) bool {
	return errors.Is(err, ErrLocalWrite)
}
