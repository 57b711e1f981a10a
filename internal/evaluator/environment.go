package evaluator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// Environment owns the resolution caches shared by every scope created from
// it: absolute type lookups and resolved host methods. Both are invalidated
// by ClassLoaderChanged, which also bumps the epoch that scope-local caches
// and name memos compare against.
type Environment struct {
	cap    host.Capability
	cfg    *config.Config
	logger *slog.Logger

	epoch  atomic.Uint64
	nextID atomic.Int64

	mu          sync.RWMutex
	typeCache   map[string]host.Type
	typeMisses  map[string]struct{}
	methodCache map[methodKey]host.Method
	flight      singleflight.Group

	locksMu sync.Mutex
	locks   map[any]*monitor

	global      *Scope
	owned       *host.Chain
	unsubscribe func()
}

type methodKey struct {
	owner string
	name  string
	sig   string
}

// Option configures an Environment.
type Option func(*Environment)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Environment) { e.logger = l }
}

// NewEnvironment creates an environment over a host capability. If the
// capability announces type-system changes, the environment subscribes and
// treats each one as a classloader change.
func NewEnvironment(capability host.Capability, cfg *config.Config, opts ...Option) *Environment {
	if cfg == nil {
		cfg = config.Default()
	}
	var owned *host.Chain
	switch c := capability.(type) {
	case *host.Chain:
	case nil:
		owned = host.NewChain()
	default:
		owned = host.NewChain(c)
	}
	if owned != nil {
		capability = owned
	}
	e := &Environment{
		owned:       owned,
		cap:         capability,
		cfg:         cfg,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		typeCache:   make(map[string]host.Type),
		typeMisses:  make(map[string]struct{}),
		methodCache: make(map[methodKey]host.Method),
		locks:       make(map[any]*monitor),
	}
	for _, opt := range opts {
		opt(e)
	}
	if n, ok := capability.(host.Notifier); ok {
		e.unsubscribe = n.Subscribe(e.ClassLoaderChanged)
	}
	e.global = e.newScope(nil, config.GlobalScopeName)
	e.global.LoadDefaultImports()
	return e
}

// Close detaches the environment from its capability's change notifications.
func (e *Environment) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.owned != nil {
		e.owned.Close()
	}
}

func (e *Environment) Capability() host.Capability { return e.cap }
func (e *Environment) Config() *config.Config      { return e.cfg }
func (e *Environment) Logger() *slog.Logger        { return e.logger }

// Global returns the root scope.
func (e *Environment) Global() *Scope { return e.global }

// Epoch identifies the current generation of resolution caches.
func (e *Environment) Epoch() uint64 { return e.epoch.Load() }

// ClassLoaderChanged invalidates every resolution cache: the environment's
// own maps are cleared and the epoch bump makes scope-local caches and name
// memos stale.
func (e *Environment) ClassLoaderChanged() {
	e.mu.Lock()
	epoch := e.resetLocked()
	e.mu.Unlock()
	e.logc(context.Background(), slog.LevelInfo, "resolution caches cleared", slog.Uint64("epoch", epoch))
}

// resetLocked starts a new epoch and drops the cached resolutions. The epoch
// moves before the maps are replaced, so a fill that started in the old
// epoch never lands in the new maps.
func (e *Environment) resetLocked() uint64 {
	epoch := e.epoch.Add(1)
	e.typeCache = make(map[string]host.Type)
	e.typeMisses = make(map[string]struct{})
	e.methodCache = make(map[methodKey]host.Method)
	return epoch
}

// classForName resolves a fully qualified type name through the capability.
// Hits and misses are cached until the next classloader change.
func (e *Environment) classForName(name string) (host.Type, bool) {
	e.mu.RLock()
	t, hit := e.typeCache[name]
	_, miss := e.typeMisses[name]
	e.mu.RUnlock()
	if hit {
		return t, true
	}
	if miss {
		return nil, false
	}
	epoch := e.Epoch()
	t, ok := e.cap.ResolveType(name)
	e.mu.Lock()
	if e.Epoch() == epoch {
		if ok {
			e.typeCache[name] = t
		} else {
			e.typeMisses[name] = struct{}{}
		}
	}
	e.mu.Unlock()
	return t, ok
}

func sigKey(types []host.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		if t == nil {
			parts[i] = "null"
		} else {
			parts[i] = t.Name()
		}
	}
	return strings.Join(parts, ",")
}

// cachedMethod returns the resolved method for key, computing it at most
// once concurrently. Misses are not cached.
func (e *Environment) cachedMethod(key methodKey, resolve func() (host.Method, error)) (host.Method, error) {
	e.mu.RLock()
	m, ok := e.methodCache[key]
	e.mu.RUnlock()
	if ok {
		e.logc(context.Background(), slog.LevelDebug, "method cache hit", slog.String("owner", key.owner), slog.String("method", key.name))
		return m, nil
	}
	epoch := e.Epoch()
	flightKey := fmt.Sprintf("%d|%s|%s|%s", epoch, key.owner, key.name, key.sig)
	v, err, _ := e.flight.Do(flightKey, func() (interface{}, error) {
		m, err := resolve()
		if err != nil || m == nil {
			return nil, err
		}
		e.mu.Lock()
		if e.Epoch() == epoch {
			e.methodCache[key] = m
		}
		e.mu.Unlock()
		return m, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(host.Method), nil
}

// Synchronized runs fn holding the monitor of key on behalf of cs. The
// monitor is chosen once, before fn runs, and released on every exit path.
// Monitors are reentrant per call stack. A monitor lives in the table only
// while some call holds or waits for it.
func (e *Environment) Synchronized(cs *CallStack, key Object, fn func() (Object, error)) (Object, error) {
	var id any
	switch k := key.(type) {
	case *HostObject:
		id = k.identity()
	case *Primitive:
		if k.IsNull() {
			return nil, throw(host.NullPointerType, "Null Pointer in synchronized block")
		}
		return nil, newError("Can't synchronize on primitive: %s", k.Inspect())
	case *Proxy:
		id = k.This
	default:
		id = key
	}
	mon := e.acquireMonitor(id)
	defer e.releaseMonitor(id, mon)
	var owner any = cs
	if cs == nil {
		owner = new(int)
	}
	mon.enter(owner)
	defer mon.exit()
	return fn()
}

func (e *Environment) acquireMonitor(id any) *monitor {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mon, ok := e.locks[id]
	if !ok {
		mon = newMonitor()
		e.locks[id] = mon
	}
	mon.refs++
	return mon
}

func (e *Environment) releaseMonitor(id any, mon *monitor) {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if mon.refs--; mon.refs == 0 {
		delete(e.locks, id)
	}
}

type monitor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner any
	depth int

	// refs counts the calls holding or waiting for the monitor; guarded by
	// the environment's locksMu.
	refs int
}

func newMonitor() *monitor {
	m := &monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *monitor) enter(owner any) {
	m.mu.Lock()
	for m.owner != nil && m.owner != owner {
		m.cond.Wait()
	}
	m.owner = owner
	m.depth++
	m.mu.Unlock()
}

func (m *monitor) exit() {
	m.mu.Lock()
	m.depth--
	if m.depth == 0 {
		m.owner = nil
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

// logc logs with the engine call site attached as exec_pos.
func (e *Environment) logc(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !e.logger.Enabled(ctx, level) {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append([]any{slog.String("exec_pos", fmt.Sprintf("%s:%d", file, line))}, args...)
	}
	e.logger.Log(ctx, level, msg, args...)
}
