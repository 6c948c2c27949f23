package ingest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler exposes the ingest hooks over HTTP in the callback style of
// common media servers (nginx-rtmp on_publish / on_publish_done): the stream
// key arrives as the `name` form field, and a non-2xx status on publish makes
// the media server refuse the stream.
type WebhookHandler struct {
	hooks  Hooks
	logger *zap.Logger
}

// NewWebhookHandler creates the HTTP adapter for ingest callbacks.
func NewWebhookHandler(hooks Hooks, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{hooks: hooks, logger: logger}
}

// Publish handles POST /hooks/publish: validate then activate.
func (h *WebhookHandler) Publish(c *gin.Context) {
	key := c.PostForm("name")
	if key == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := h.hooks.OnPrePublish(c.Request.Context(), key); err != nil {
		h.logger.Info("publish refused", zap.Error(err))
		c.Status(http.StatusForbidden)
		return
	}
	h.hooks.OnPostPublish(c.Request.Context(), key)
	c.Status(http.StatusOK)
}

// PublishDone handles POST /hooks/publish_done: deactivate. Always 200; the
// media server is already done with the stream and must not retry.
func (h *WebhookHandler) PublishDone(c *gin.Context) {
	key := c.PostForm("name")
	if key != "" {
		h.hooks.OnDonePublish(c.Request.Context(), key)
	}
	c.Status(http.StatusOK)
}
