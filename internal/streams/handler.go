package streams

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/middleware"
	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/pkg/response"
)

// PresenceCounter exposes the live distinct-viewer count for a session.
type PresenceCounter interface {
	Count(sessionID uuid.UUID) int
}

// UpdateRequest is the body for PUT /streams/:id.
type UpdateRequest struct {
	Title string `json:"title" binding:"required"`
}

// KeyResponse is the body for POST /streams/key.
type KeyResponse struct {
	StreamKey string `json:"stream_key"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Handler handles stream session HTTP endpoints.
type Handler struct {
	service  *Service
	presence PresenceCounter
	logger   *zap.Logger
}

// NewHandler creates a stream session handler.
func NewHandler(service *Service, presence PresenceCounter, logger *zap.Logger) *Handler {
	return &Handler{service: service, presence: presence, logger: logger}
}

// IssueKey handles POST /streams/key (auth required, idempotent per owner).
func (h *Handler) IssueKey(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	session, err := h.service.IssueKey(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("issue key", zap.Error(err))
		response.Internal(c, "failed to issue stream key")
		return
	}
	response.OK(c, KeyResponse{
		StreamKey: session.StreamKey,
		Status:    string(session.Status),
		StartTime: session.StartTime.UTC().Format(time.RFC3339),
		EndTime:   session.EndTime.UTC().Format(time.RFC3339),
	})
}

// ListActive handles GET /streams/active.
func (h *Handler) ListActive(c *gin.Context) {
	list, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list streams")
		return
	}
	if list == nil {
		list = []models.StreamSession{}
	}
	response.OK(c, list)
}

// GetByID handles GET /streams/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "stream not found")
			return
		}
		response.Internal(c, "failed to load stream")
		return
	}
	response.OK(c, session.Public())
}

// Viewers handles GET /streams/:id/viewers.
func (h *Handler) Viewers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	response.OK(c, gin.H{"count": h.presence.Count(id)})
}

// Update handles PUT /streams/:id (owner only, title change).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	session, err := h.service.UpdateTitle(c.Request.Context(), id, callerID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(c, "stream not found")
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(c, "only the stream owner can update it")
		default:
			response.Internal(c, "failed to update stream")
		}
		return
	}
	if session == nil {
		response.Conflict(c, "stream already ended")
		return
	}
	response.OK(c, session.Public())
}

// End handles POST /streams/:id/end (owner only).
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	session, err := h.service.End(c.Request.Context(), id, callerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(c, "stream not found")
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(c, "only the stream owner can end it")
		default:
			response.Internal(c, "failed to end stream")
		}
		return
	}
	if session == nil {
		// Not active: nothing to end.
		response.OK(c, gin.H{"ended": false})
		return
	}
	response.OK(c, gin.H{"ended": true, "session": session.Public()})
}

// Sweep handles POST /admin/streams/sweep (admin only, on-demand expiry sweep).
func (h *Handler) Sweep(c *gin.Context) {
	if err := h.service.Sweep(c.Request.Context()); err != nil {
		response.Internal(c, "sweep failed")
		return
	}
	response.OK(c, gin.H{"swept": true})
}
