package http

import "github.com/gin-gonic/gin"

// Register mounts every control API route on the router. The WebSocket
// stream and the Prometheus endpoint are mounted by the server since
// they are not part of this handler set.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Extension lifecycle
	r.POST("/extensions", h.InstallExtension)
	r.GET("/extensions", h.ListExtensions)
	r.GET("/extensions/:id", h.GetExtension)
	r.POST("/extensions/:id/enable", h.EnableExtension)
	r.POST("/extensions/:id/disable", h.DisableExtension)
	r.POST("/extensions/:id/reset", h.ResetExtension)
	r.DELETE("/extensions/:id", h.UninstallExtension)
	r.POST("/extensions/:id/permissions", h.GrantPermission)
	r.PUT("/extensions/:id/action", h.UpdateAction)
	r.POST("/extensions/:id/menus", h.AddContextMenu)
	r.DELETE("/extensions/:id/menus/:menuId", h.RemoveContextMenu)

	// Content script injection
	r.GET("/injections", h.InjectionsForURL)

	// WebRequest interception
	r.POST("/requests/events", h.FireRequestEvent)
	r.GET("/requests/active", h.ActiveRequests)

	// Messaging
	r.POST("/messages/send", h.SendMessage)
	r.POST("/messages/send-wait", h.SendMessageAndWait)
	r.POST("/messages/response", h.HandleMessageResponse)

	// Aggregate metrics
	r.GET("/metrics/json", h.MetricsJSON)
}
