// Package http exposes the engine's control API to the embedding shell.
//
// The shell drives every engine operation through these endpoints:
// extension lifecycle, injection lookups at navigation checkpoints,
// webRequest event dispatch, and message routing.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/domain/extension"
	"github.com/lumen-browser/extengine/internal/domain/inject"
	"github.com/lumen-browser/extengine/internal/domain/messaging"
	"github.com/lumen-browser/extengine/internal/domain/webrequest"
	"github.com/lumen-browser/extengine/internal/infrastructure/monitoring"
	"github.com/lumen-browser/extengine/internal/shared/types"
)

// Handlers holds the engine components the control API drives.
type Handlers struct {
	manager         *extension.Manager
	injector        *inject.Injector
	engine          *webrequest.Engine
	bus             *messaging.Bus
	metrics         *monitoring.Metrics
	responseTimeout time.Duration
	logger          *zap.Logger
}

// NewHandlers creates the control API handlers.
func NewHandlers(
	manager *extension.Manager,
	injector *inject.Injector,
	engine *webrequest.Engine,
	bus *messaging.Bus,
	metrics *monitoring.Metrics,
	responseTimeout time.Duration,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responseTimeout <= 0 {
		responseTimeout = 10 * time.Second
	}
	return &Handlers{
		manager:         manager,
		injector:        injector,
		engine:          engine,
		bus:             bus,
		metrics:         metrics,
		responseTimeout: responseTimeout,
		logger:          logger,
	}
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, types.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidManifest),
		errors.Is(err, types.ErrInvalidExtension):
		return http.StatusBadRequest
	case errors.Is(err, messaging.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrMessaging):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// Root returns service information.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "extengine",
		"version": "1.0.0",
		"status":  "running",
	})
}

// Health returns service health and registry statistics.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.manager.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"extensions": stats,
	})
}

// InstallExtension parses the request body as a manifest and installs it.
func (h *Handlers) InstallExtension(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "failed to read request body: " + err.Error(),
		})
		return
	}

	ext, err := h.manager.Install(body)
	if err != nil {
		fail(c, err)
		return
	}
	h.syncExtensionGauges()

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"extension": ext,
	})
}

// ListExtensions lists installed extensions, optionally filtered by state.
func (h *Handlers) ListExtensions(c *gin.Context) {
	var filter *types.ExtensionState
	if s := c.Query("state"); s != "" {
		state := types.ExtensionState(s)
		filter = &state
	}

	exts := h.manager.List(filter)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"extensions": exts,
		"count":      len(exts),
	})
}

// GetExtension retrieves one extension by id.
func (h *Handlers) GetExtension(c *gin.Context) {
	ext, ok := h.manager.Get(c.Param("id"))
	if !ok {
		fail(c, types.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"extension": ext,
	})
}

// EnableExtension enables an extension. Dangerous permissions require
// consent in the request body.
func (h *Handlers) EnableExtension(c *gin.Context) {
	var req struct {
		Consent bool `json:"consent"`
	}
	// An empty body means no consent.
	_ = c.ShouldBindJSON(&req)

	id := c.Param("id")
	if err := h.manager.Enable(id, req.Consent); err != nil {
		fail(c, err)
		return
	}
	h.syncExtensionGauges()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
		"state":   types.StateEnabled,
	})
}

// DisableExtension disables an extension and tears down its hooks.
func (h *Handlers) DisableExtension(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Disable(id); err != nil {
		fail(c, err)
		return
	}
	h.syncExtensionGauges()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
	})
}

// ResetExtension moves an errored extension back to disabled.
func (h *Handlers) ResetExtension(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.ResetError(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
		"state":   types.StateDisabled,
	})
}

// UninstallExtension removes an extension entirely.
func (h *Handlers) UninstallExtension(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Uninstall(id); err != nil {
		fail(c, err)
		return
	}
	h.syncExtensionGauges()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
	})
}

// GrantPermission grants a declared optional permission at runtime.
func (h *Handlers) GrantPermission(c *gin.Context) {
	var req struct {
		Permission string `json:"permission" binding:"required"`
		Consent    bool   `json:"consent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	if err := h.manager.GrantOptional(c.Param("id"), req.Permission, req.Consent); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"permission": req.Permission,
	})
}

// UpdateAction replaces the extension's browser action descriptor.
func (h *Handlers) UpdateAction(c *gin.Context) {
	var action types.BrowserAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	if err := h.manager.UpdateAction(c.Param("id"), &action); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddContextMenu registers a context-menu contribution.
func (h *Handlers) AddContextMenu(c *gin.Context) {
	var item types.ContextMenuItem
	if err := c.ShouldBindJSON(&item); err != nil || item.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "menu item requires an id",
		})
		return
	}

	if err := h.manager.AddContextMenu(c.Param("id"), item); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "menu_id": item.ID})
}

// RemoveContextMenu removes a context-menu contribution.
func (h *Handlers) RemoveContextMenu(c *gin.Context) {
	if err := h.manager.RemoveContextMenu(c.Param("id"), c.Param("menuId")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// InjectionsForURL returns the scripts to inject at one navigation
// timing checkpoint. The shell calls this three times per page load.
func (h *Handlers) InjectionsForURL(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "url query parameter is required",
		})
		return
	}

	mainFrame := c.DefaultQuery("main_frame", "true") != "false"

	var scripts []types.InjectionScript
	if timing := c.Query("run_at"); timing != "" {
		scripts = h.injector.InjectForPageLoad(url, types.ParseRunAt(timing), mainFrame)
	} else {
		scripts = h.injector.ScriptsForURL(url)
	}
	if h.metrics != nil {
		h.metrics.InjectionsServed.Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scripts": scripts,
		"count":   len(scripts),
	})
}

// FireRequestEvent dispatches one request lifecycle event to listeners
// and returns the resolved action. The shell's network layer calls this
// at each stage of a request it wants extensions to see.
func (h *Handlers) FireRequestEvent(c *gin.Context) {
	var req struct {
		Event   types.RequestEvent   `json:"event" binding:"required"`
		Details types.RequestDetails `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}
	if req.Details.RequestID == "" {
		req.Details.RequestID = uuid.NewString()
	}
	if req.Details.Timestamp.IsZero() {
		req.Details.Timestamp = time.Now()
	}

	actions := h.engine.FireEvent(c.Request.Context(), req.Event, req.Details)
	resolved := webrequest.ResolveActions(actions)

	if h.metrics != nil {
		h.metrics.RecordEvent(string(req.Event))
		h.metrics.RecordAction(string(resolved.Kind))
		h.metrics.ActiveRequests.Set(float64(len(h.engine.ActiveRequests())))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": req.Details.RequestID,
		"action":     resolved,
		"opinions":   len(actions),
	})
}

// ActiveRequests lists in-flight tracked requests.
func (h *Handlers) ActiveRequests(c *gin.Context) {
	reqs := h.engine.ActiveRequests()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": reqs,
		"count":    len(reqs),
	})
}

// SendMessage routes a fire-and-forget message.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req struct {
		From    string                 `json:"from" binding:"required"`
		Message types.ExtensionMessage `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	if err := h.bus.Send(c.Request.Context(), req.From, &req.Message); err != nil {
		fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMessage(string(req.Message.Target.Kind))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": req.Message.ID,
	})
}

// SendMessageAndWait routes a message and blocks for its response.
func (h *Handlers) SendMessageAndWait(c *gin.Context) {
	var req struct {
		From    string                 `json:"from" binding:"required"`
		Message types.ExtensionMessage `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	resp, err := h.bus.SendAndWait(c.Request.Context(), req.From, &req.Message, h.responseTimeout)
	if err != nil {
		if h.metrics != nil && errors.Is(err, messaging.ErrTimeout) {
			h.metrics.ResponseTimeouts.Inc()
		}
		fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMessage(string(req.Message.Target.Kind))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": req.Message.ID,
		"response":   resp,
	})
}

// HandleMessageResponse resolves a pending request/response exchange.
func (h *Handlers) HandleMessageResponse(c *gin.Context) {
	var req struct {
		MessageID uint64                `json:"message_id" binding:"required"`
		Response  types.MessageResponse `json:"response"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request: " + err.Error(),
		})
		return
	}

	h.bus.HandleResponse(req.MessageID, req.Response)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MetricsJSON returns aggregate metrics for dashboards that do not
// scrape Prometheus.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.CurrentSnapshot()
	stats := h.manager.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"metrics": gin.H{
			"total_requests":       snap.TotalRequests,
			"total_errors":         snap.TotalErrors,
			"avg_request_seconds":  h.metrics.AverageRequestDuration(),
			"extensions_installed": stats.Total,
			"extensions_enabled":   stats.Enabled,
			"injection_cache_size": h.injector.CacheSize(),
			"active_requests":      len(h.engine.ActiveRequests()),
			"pending_responses":    h.bus.PendingResponses(),
		},
	})
}

func (h *Handlers) syncExtensionGauges() {
	if h.metrics == nil {
		return
	}
	stats := h.manager.Stats()
	h.metrics.SetExtensionCounts(stats.Total, stats.Enabled)
}
