// Package webrequest dispatches network request lifecycle events to
// extension listeners and resolves their competing actions.
//
// Listener callbacks are asynchronous and awaited one at a time in
// registration order. A failing callback is logged and skipped; one
// broken extension must never blind the host to other extensions'
// opinions or to the request's own progress. An extension whose
// callbacks fail repeatedly is short-circuited by a per-extension
// circuit breaker until a cooldown passes.
package webrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/infrastructure/resilience"
	"github.com/lumen-browser/extengine/internal/shared/types"
	"github.com/lumen-browser/extengine/internal/shared/urlmatch"
)

// Breaker tuning for listener callbacks. An extension whose callbacks
// keep failing is short-circuited until the cooldown passes.
const (
	breakerFailureThreshold = 5
	breakerCooldown         = 30 * time.Second
)

// ListenerFunc is an extension's async callback for one lifecycle event.
// It may suspend arbitrarily; the host applies an outer timeout through
// ctx since the engine has no cancellation reach into the network layer.
type ListenerFunc func(ctx context.Context, details types.RequestDetails) (types.RequestAction, error)

// Observer receives every fired event. Used by the host for telemetry
// and event streaming; must not block.
type Observer func(event types.RequestEvent, details types.RequestDetails)

type listener struct {
	seq         uint64
	extensionID string
	filter      types.RequestFilter
	urls        urlmatch.List
	callback    ListenerFunc
	extraInfo   []string
}

// matches applies the listener's filter: URL patterns AND resource-type
// allow-list AND tab scoping. Window scoping would need the host's
// tab-to-window mapping, which the engine does not hold.
func (l *listener) matches(d *types.RequestDetails) bool {
	if len(l.urls) > 0 && !l.urls.MatchAny(d.URL) {
		return false
	}
	if len(l.filter.Types) > 0 {
		found := false
		for _, t := range l.filter.Types {
			if t == d.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if l.filter.TabID != types.AllTabs && l.filter.TabID != d.TabID {
		return false
	}
	return true
}

// Engine is the webRequest listener registry and in-flight request table.
type Engine struct {
	mu        sync.RWMutex
	listeners map[types.RequestEvent][]*listener
	active    map[string]types.RequestDetails
	breakers  map[string]*resilience.Breaker
	nextSeq   uint64
	observers []Observer
	logger    *zap.Logger
}

// NewEngine creates an interception engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		listeners: make(map[types.RequestEvent][]*listener),
		active:    make(map[string]types.RequestDetails),
		breakers:  make(map[string]*resilience.Breaker),
		logger:    logger,
	}
}

// breakerLocked returns the extension's callback breaker, creating it on
// first use. Caller must hold the write lock.
func (e *Engine) breakerLocked(extensionID string) *resilience.Breaker {
	br, ok := e.breakers[extensionID]
	if !ok {
		br = resilience.New(extensionID, resilience.Settings{
			FailureThreshold: breakerFailureThreshold,
			Cooldown:         breakerCooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				e.logger.Warn("listener breaker state change",
					zap.String("extension_id", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		e.breakers[extensionID] = br
	}
	return br
}

// AddListener registers a callback for one event type. Multiple listeners
// per event and per extension are allowed and all run. Returns the
// listener's registration sequence number.
func (e *Engine) AddListener(extensionID string, event types.RequestEvent, filter types.RequestFilter, callback ListenerFunc, extraInfo ...string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSeq++
	l := &listener{
		seq:         e.nextSeq,
		extensionID: extensionID,
		filter:      filter,
		urls:        urlmatch.CompileList(filter.URLs),
		callback:    callback,
		extraInfo:   extraInfo,
	}
	e.listeners[event] = append(e.listeners[event], l)

	e.logger.Debug("webrequest listener added",
		zap.String("extension_id", extensionID),
		zap.String("event", string(event)),
		zap.Uint64("seq", l.seq),
	)
	return l.seq
}

// RemoveExtensionListeners removes every listener for the extension
// across all event types. Called when an extension is disabled or
// uninstalled.
func (e *Engine) RemoveExtensionListeners(extensionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for event, ls := range e.listeners {
		kept := ls[:0]
		for _, l := range ls {
			if l.extensionID != extensionID {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(e.listeners, event)
		} else {
			e.listeners[event] = kept
		}
	}
	delete(e.breakers, extensionID)
}

// AddObserver registers a fire-event observer.
func (e *Engine) AddObserver(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// FireEvent records the request snapshot, invokes every matching listener
// in registration order, and collects their actions. Terminal events
// remove the request from the active table. Resolution is a separate
// step so the host can log all opinions before deciding.
func (e *Engine) FireEvent(ctx context.Context, event types.RequestEvent, details types.RequestDetails) []types.RequestAction {
	type invocation struct {
		l  *listener
		br *resilience.Breaker
	}

	e.mu.Lock()
	e.active[details.RequestID] = details.Clone()
	matching := make([]invocation, 0)
	for _, l := range e.listeners[event] {
		if l.matches(&details) {
			matching = append(matching, invocation{l: l, br: e.breakerLocked(l.extensionID)})
		}
	}
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, obs := range observers {
		obs(event, details.Clone())
	}

	// Callbacks run outside the lock; they may suspend.
	actions := make([]types.RequestAction, 0, len(matching))
	for _, inv := range matching {
		l := inv.l
		if err := inv.br.Allow(); err != nil {
			e.logger.Debug("listener short-circuited",
				zap.String("extension_id", l.extensionID),
				zap.String("event", string(event)),
			)
			continue
		}
		action, err := l.callback(ctx, details.Clone())
		if err != nil {
			inv.br.RecordFailure()
			e.logger.Warn("webrequest listener failed; skipping",
				zap.String("extension_id", l.extensionID),
				zap.String("event", string(event)),
				zap.String("request_id", details.RequestID),
				zap.Error(err),
			)
			continue
		}
		inv.br.RecordSuccess()
		actions = append(actions, action)
	}

	if event.Terminal() {
		e.mu.Lock()
		delete(e.active, details.RequestID)
		e.mu.Unlock()
	}

	return actions
}

// ResolveActions applies the deterministic conflict policy: Cancel beats
// everything; else the first Redirect; else the first ModifyHeaders; else
// the first Auth; else Continue. "First" is listener-registration order,
// which is the collection order of the input.
func ResolveActions(actions []types.RequestAction) types.RequestAction {
	byKind := map[types.ActionKind]*types.RequestAction{}
	for i := range actions {
		a := actions[i]
		if a.Kind == types.ActionCancel {
			return a
		}
		if _, seen := byKind[a.Kind]; !seen {
			byKind[a.Kind] = &actions[i]
		}
	}
	for _, kind := range []types.ActionKind{types.ActionRedirect, types.ActionModifyHeaders, types.ActionAuth} {
		if a, ok := byKind[kind]; ok {
			return *a
		}
	}
	return types.Continue()
}

// RequestDetails returns the active snapshot for a request id.
func (e *Engine) RequestDetails(requestID string) (types.RequestDetails, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.active[requestID]
	if !ok {
		return types.RequestDetails{}, false
	}
	return d.Clone(), true
}

// ActiveRequests returns every in-flight request, sorted by request id
// for deterministic output.
func (e *Engine) ActiveRequests() []types.RequestDetails {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.RequestDetails, 0, len(e.active))
	for _, d := range e.active {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}

// ListenerCount returns the number of listeners registered for an event.
func (e *Engine) ListenerCount(event types.RequestEvent) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}
