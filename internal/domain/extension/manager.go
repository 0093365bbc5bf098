// Package extension orchestrates extension lifecycle: install, enable,
// disable, uninstall, and the consent gate for dangerous permissions.
//
// The manager owns every Extension exclusively. Enabling registers the
// extension's content scripts with the injector and attaches its
// background messaging channel; disabling tears down its scripts,
// webRequest listeners, and messaging channels so a disabled extension
// can no longer observe anything.
package extension

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/domain/manifest"
	"github.com/lumen-browser/extengine/internal/shared/types"
)

// ScriptRegistry is the injector surface the manager drives.
type ScriptRegistry interface {
	RegisterExtension(extensionID string, scripts []types.ContentScript)
	UnregisterExtension(extensionID string)
}

// ListenerRegistry is the webRequest surface the manager drives.
type ListenerRegistry interface {
	RemoveExtensionListeners(extensionID string)
}

// ChannelRegistry is the messaging surface the manager drives. Attach
// must leave the extension's background channel with a live consumer;
// Remove drops every channel the extension owns.
type ChannelRegistry interface {
	AttachExtension(extensionID string)
	RemoveExtension(extensionID string)
}

// Manager is the extension registry.
type Manager struct {
	mu        sync.RWMutex
	exts      map[string]*types.Extension
	order     []string
	parser    *manifest.Parser
	scripts   ScriptRegistry
	listeners ListenerRegistry
	channels  ChannelRegistry
	logger    *zap.Logger
}

// Stats summarizes the registry.
type Stats struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
	Errored  int `json:"errored"`
}

// NewManager creates an extension manager wired to the engine registries.
// Any registry may be nil; teardown for it is then skipped.
func NewManager(scripts ScriptRegistry, listeners ListenerRegistry, channels ChannelRegistry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		exts:      make(map[string]*types.Extension),
		parser:    manifest.NewParser(),
		scripts:   scripts,
		listeners: listeners,
		channels:  channels,
		logger:    logger,
	}
}

// Install parses a manifest and registers the resulting extension in the
// disabled state. Installing a package that is already present fails;
// uninstall first.
func (m *Manager) Install(manifestJSON []byte) (*types.Extension, error) {
	ext, err := m.parser.Parse(manifestJSON)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.exts[ext.ID]; exists {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyRegistered, ext.Name)
	}
	// Registration completes the parser's installing state.
	ext.State = types.StateDisabled
	m.exts[ext.ID] = ext
	m.order = append(m.order, ext.ID)

	m.logger.Info("extension installed",
		zap.String("extension_id", ext.ID),
		zap.String("name", ext.Name),
		zap.String("version", ext.Version),
	)
	return m.snapshotLocked(ext), nil
}

// Enable transitions an extension to the enabled state, registers its
// content scripts, and attaches its background messaging channel.
// Extensions carrying dangerous permissions require
// consent; the host is responsible for the consent UX and passes the
// outcome here.
func (m *Manager) Enable(id string, consentGranted bool) error {
	m.mu.Lock()
	ext, ok := m.exts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if ext.State == types.StateError {
		m.mu.Unlock()
		return fmt.Errorf("%w: extension %s is in the error state; reset it first", types.ErrInvalidExtension, id)
	}
	if ext.State == types.StateEnabled {
		m.mu.Unlock()
		return nil
	}
	if ext.RequiresConsent() && !consentGranted {
		m.mu.Unlock()
		return fmt.Errorf("%w: extension %s requires consent for dangerous permissions", types.ErrPermissionDenied, id)
	}
	ext.State = types.StateEnabled
	scripts := append([]types.ContentScript(nil), ext.ContentScripts...)
	m.mu.Unlock()

	if m.scripts != nil {
		m.scripts.RegisterExtension(id, scripts)
	}
	if m.channels != nil {
		m.channels.AttachExtension(id)
	}
	m.logger.Info("extension enabled", zap.String("extension_id", id))
	return nil
}

// Disable transitions an extension back to disabled and tears down its
// scripts, listeners, and channels.
func (m *Manager) Disable(id string) error {
	m.mu.Lock()
	ext, ok := m.exts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if ext.State != types.StateError {
		ext.State = types.StateDisabled
	}
	m.mu.Unlock()

	m.teardown(id)
	m.logger.Info("extension disabled", zap.String("extension_id", id))
	return nil
}

// Uninstall removes the extension entirely. Content scripts and
// permissions are owned by the extension and die with it.
func (m *Manager) Uninstall(id string) error {
	m.mu.Lock()
	if _, ok := m.exts[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	delete(m.exts, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.teardown(id)
	m.logger.Info("extension uninstalled", zap.String("extension_id", id))
	return nil
}

// MarkError puts an extension into the terminal error state and tears it
// down. Only an explicit reset leaves this state.
func (m *Manager) MarkError(id string, cause error) error {
	m.mu.Lock()
	ext, ok := m.exts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	ext.State = types.StateError
	m.mu.Unlock()

	m.teardown(id)
	m.logger.Warn("extension errored",
		zap.String("extension_id", id),
		zap.Error(cause),
	)
	return nil
}

// ResetError moves an errored extension back to disabled.
func (m *Manager) ResetError(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.exts[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if ext.State != types.StateError {
		return fmt.Errorf("%w: extension %s is not in the error state", types.ErrInvalidExtension, id)
	}
	ext.State = types.StateDisabled
	return nil
}

// GrantOptional moves a declared optional permission into the granted
// set at runtime. Dangerous permissions still need consent.
func (m *Manager) GrantOptional(id, token string, consentGranted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.exts[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	perm := types.ParsePermission(token)
	if !ext.OptionalPermissions.Contains(perm.AsOptional()) {
		return fmt.Errorf("%w: %s was not declared optional by %s", types.ErrPermissionDenied, token, ext.Name)
	}
	if perm.IsDangerous() && !consentGranted {
		return fmt.Errorf("%w: %s requires consent", types.ErrPermissionDenied, token)
	}
	ext.Permissions.Add(perm)
	return nil
}

// UpdateAction replaces the extension's browser action descriptor.
func (m *Manager) UpdateAction(id string, action *types.BrowserAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.exts[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	ext.Action = action
	return nil
}

// AddContextMenu appends a context-menu contribution.
func (m *Manager) AddContextMenu(id string, item types.ContextMenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.exts[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	for _, existing := range ext.ContextMenus {
		if existing.ID == item.ID {
			return fmt.Errorf("%w: menu item %s", types.ErrAlreadyRegistered, item.ID)
		}
	}
	ext.ContextMenus = append(ext.ContextMenus, item)
	return nil
}

// RemoveContextMenu removes one contribution by its menu id.
func (m *Manager) RemoveContextMenu(id, menuID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.exts[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	for i, item := range ext.ContextMenus {
		if item.ID == menuID {
			ext.ContextMenus = append(ext.ContextMenus[:i], ext.ContextMenus[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: menu item %s", types.ErrNotFound, menuID)
}

// Get retrieves an extension by id. Returns a copy so callers cannot
// mutate registry state.
func (m *Manager) Get(id string) (*types.Extension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ext, ok := m.exts[id]
	if !ok {
		return nil, false
	}
	return m.snapshotLocked(ext), true
}

// List returns all extensions in installation order, optionally filtered
// by state.
func (m *Manager) List(state *types.ExtensionState) []*types.Extension {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Extension, 0, len(m.order))
	for _, id := range m.order {
		ext := m.exts[id]
		if state == nil || ext.State == *state {
			out = append(out, m.snapshotLocked(ext))
		}
	}
	return out
}

// Stats returns registry statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, ext := range m.exts {
		s.Total++
		switch ext.State {
		case types.StateEnabled:
			s.Enabled++
		case types.StateError:
			s.Errored++
		default:
			s.Disabled++
		}
	}
	return s
}

// teardown detaches the extension from every engine registry.
func (m *Manager) teardown(id string) {
	if m.scripts != nil {
		m.scripts.UnregisterExtension(id)
	}
	if m.listeners != nil {
		m.listeners.RemoveExtensionListeners(id)
	}
	if m.channels != nil {
		m.channels.RemoveExtension(id)
	}
}

// snapshotLocked copies an extension for external consumption.
func (m *Manager) snapshotLocked(ext *types.Extension) *types.Extension {
	cp := *ext
	cp.ContentScripts = append([]types.ContentScript(nil), ext.ContentScripts...)
	cp.ContextMenus = append([]types.ContextMenuItem(nil), ext.ContextMenus...)
	return &cp
}
