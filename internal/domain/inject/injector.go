// Package inject matches page URLs against per-extension content script
// rules and memoizes the results.
//
// Lookup order is deterministic and load-bearing: extensions in
// registration order, then rule order within an extension, then js before
// css within a rule. The host executes returned sources in that order.
package inject

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/shared/types"
	"github.com/lumen-browser/extengine/internal/shared/urlmatch"
)

// compiledRule pairs a content script rule with its precompiled matchers.
type compiledRule struct {
	script   types.ContentScript
	matches  urlmatch.List
	excludes urlmatch.List
}

// matchesURL reports rule applicability: at least one match pattern and
// zero exclude patterns.
func (r *compiledRule) matchesURL(url string) bool {
	return r.matches.MatchAny(url) && !r.excludes.MatchAny(url)
}

type registration struct {
	extensionID string
	rules       []compiledRule
}

// Injector is the content script registry and cache. Reads (lookups) run
// concurrently; writes (register/unregister) are exclusive and clear the
// whole cache atomically with the mutation.
type Injector struct {
	mu            sync.RWMutex
	registrations []registration
	cache         map[string][]types.InjectionScript
	onCache       func(hit bool)
	logger        *zap.Logger
}

// NewInjector creates an injector.
func NewInjector(logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{
		cache:  make(map[string][]types.InjectionScript),
		logger: logger,
	}
}

// RegisterExtension replaces the extension's script list. Re-registering
// keeps the extension's original position in registration order. The
// entire cache is cleared; correctness over precision.
func (inj *Injector) RegisterExtension(extensionID string, scripts []types.ContentScript) {
	rules := make([]compiledRule, 0, len(scripts))
	for _, s := range scripts {
		rules = append(rules, compiledRule{
			script:   s,
			matches:  urlmatch.CompileList(s.Matches),
			excludes: urlmatch.CompileList(s.ExcludeMatches),
		})
	}

	inj.mu.Lock()
	defer inj.mu.Unlock()

	replaced := false
	for i := range inj.registrations {
		if inj.registrations[i].extensionID == extensionID {
			inj.registrations[i].rules = rules
			replaced = true
			break
		}
	}
	if !replaced {
		inj.registrations = append(inj.registrations, registration{extensionID: extensionID, rules: rules})
	}
	inj.clearCacheLocked()

	inj.logger.Debug("content scripts registered",
		zap.String("extension_id", extensionID),
		zap.Int("rules", len(rules)),
	)
}

// UnregisterExtension removes the extension's scripts and clears the cache.
func (inj *Injector) UnregisterExtension(extensionID string) {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	for i := range inj.registrations {
		if inj.registrations[i].extensionID == extensionID {
			inj.registrations = append(inj.registrations[:i], inj.registrations[i+1:]...)
			break
		}
	}
	inj.clearCacheLocked()
}

// SetCacheObserver installs a callback invoked once per lookup with the
// cache outcome. Wiring happens during assembly, before the injector
// serves traffic.
func (inj *Injector) SetCacheObserver(fn func(hit bool)) {
	inj.mu.Lock()
	inj.onCache = fn
	inj.mu.Unlock()
}

// ScriptsForURL returns every injection script applicable to the URL, in
// execution order. Results are memoized per exact URL string until any
// extension's script set changes.
func (inj *Injector) ScriptsForURL(url string) []types.InjectionScript {
	inj.mu.RLock()
	if cached, ok := inj.cache[url]; ok {
		inj.mu.RUnlock()
		inj.noteCache(true)
		return cloneScripts(cached)
	}
	inj.mu.RUnlock()

	inj.mu.Lock()

	// Another writer may have filled the entry while the lock was dropped.
	if cached, ok := inj.cache[url]; ok {
		inj.mu.Unlock()
		inj.noteCache(true)
		return cloneScripts(cached)
	}

	scripts := inj.evaluateLocked(url)
	inj.cache[url] = scripts
	inj.mu.Unlock()
	inj.noteCache(false)
	return cloneScripts(scripts)
}

// ScriptsForTiming filters ScriptsForURL by exact run_at equality.
func (inj *Injector) ScriptsForTiming(url string, runAt types.RunAt) []types.InjectionScript {
	var out []types.InjectionScript
	for _, s := range inj.ScriptsForURL(url) {
		if s.RunAt == runAt {
			out = append(out, s)
		}
	}
	return out
}

// InjectForPageLoad is the single call the host makes at each navigation
// timing checkpoint. Subframes only receive scripts whose rule opted into
// all_frames.
func (inj *Injector) InjectForPageLoad(url string, runAt types.RunAt, isMainFrame bool) []types.InjectionScript {
	scripts := inj.ScriptsForTiming(url, runAt)
	if isMainFrame {
		return scripts
	}
	var out []types.InjectionScript
	for _, s := range scripts {
		if s.AllFrames {
			out = append(out, s)
		}
	}
	return out
}

// CacheSize returns the number of memoized URLs.
func (inj *Injector) CacheSize() int {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return len(inj.cache)
}

// evaluateLocked expands every matching rule into one InjectionScript per
// source file. Caller must hold the write lock.
func (inj *Injector) evaluateLocked(url string) []types.InjectionScript {
	var out []types.InjectionScript
	for _, reg := range inj.registrations {
		for i := range reg.rules {
			rule := &reg.rules[i]
			if !rule.matchesURL(url) {
				continue
			}
			for _, src := range rule.script.JS {
				out = append(out, types.InjectionScript{
					ExtensionID: reg.extensionID,
					Source:      src,
					Kind:        types.ScriptJS,
					RunAt:       rule.script.RunAt,
					AllFrames:   rule.script.AllFrames,
				})
			}
			for _, src := range rule.script.CSS {
				out = append(out, types.InjectionScript{
					ExtensionID: reg.extensionID,
					Source:      src,
					Kind:        types.ScriptCSS,
					RunAt:       rule.script.RunAt,
					AllFrames:   rule.script.AllFrames,
				})
			}
		}
	}
	return out
}

// noteCache reports one lookup outcome outside the registry lock.
func (inj *Injector) noteCache(hit bool) {
	inj.mu.RLock()
	fn := inj.onCache
	inj.mu.RUnlock()
	if fn != nil {
		fn(hit)
	}
}

func (inj *Injector) clearCacheLocked() {
	if len(inj.cache) > 0 {
		inj.cache = make(map[string][]types.InjectionScript)
	}
}

// cloneScripts copies the cached slice so callers cannot mutate the
// memoized entry.
func cloneScripts(in []types.InjectionScript) []types.InjectionScript {
	if in == nil {
		return nil
	}
	out := make([]types.InjectionScript, len(in))
	copy(out, in)
	return out
}
