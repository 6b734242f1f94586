package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/middleware"
	"github.com/example/subtracker/internal/models"
)

// SubscriptionHandler handles API endpoints related to subscriptions.
type SubscriptionHandler struct {
	service        *core.SubscriptionService
	sessions       *core.SessionManager
	projectionWait time.Duration
	logger         *zap.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler. projectionWait bounds
// how long the dashboard waits for a freshly opened projection to load.
func NewSubscriptionHandler(service *core.SubscriptionService, sessions *core.SessionManager, projectionWait time.Duration, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{service: service, sessions: sessions, projectionWait: projectionWait, logger: logger}
}

// mapSubscriptionErrorToStatus maps errors from core.SubscriptionService to HTTP status codes.
// fallback is the message used for unexpected failures.
func (h *SubscriptionHandler) mapSubscriptionErrorToStatus(c *gin.Context, err error, fallback string) {
	var validationErr *core.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Message})
	case errors.Is(err, core.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User ID not found in context"})
	case errors.Is(err, core.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Subscription not found."})
	default:
		h.logger.Error("Subscription request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("userID", middleware.UserID(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: fallback})
	}
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req models.SubscriptionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	id, err := h.service.Add(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to add subscription.")
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{Message: "Subscription added successfully!", ID: id})
}

// Get handles GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to load subscription.")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Update handles PUT /subscriptions/:id
func (h *SubscriptionHandler) Update(c *gin.Context) {
	var req models.SubscriptionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.service.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), req); err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to update subscription.")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Subscription updated successfully!"})
}

// SetStatus handles PATCH /subscriptions/:id/status
func (h *SubscriptionHandler) SetStatus(c *gin.Context) {
	var req models.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.service.SetActive(c.Request.Context(), middleware.UserID(c), c.Param("id"), *req.IsActive); err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to update subscription status.")
		return
	}
	message := "Subscription deactivated successfully."
	if *req.IsActive {
		message = "Subscription activated successfully."
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

// Delete handles DELETE /subscriptions/:id
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to delete subscription. Please try again.")
		return
	}
	c.Status(http.StatusNoContent)
}

// Dashboard handles GET /subscriptions. It renders the user's live projection
// through the query filters.
func (h *SubscriptionHandler) Dashboard(c *gin.Context) {
	filters, ok := bindFilters(c)
	if !ok {
		return
	}
	sess, ok := h.openSession(c)
	if !ok {
		return
	}

	waitCtx, cancel := context.WithTimeout(c.Request.Context(), h.projectionWait)
	defer cancel()
	if err := sess.Projection.WaitLoaded(waitCtx); err != nil {
		h.logger.Debug("Projection not loaded in time", zap.String("userID", sess.UserID), zap.Error(err))
	}
	c.JSON(http.StatusOK, sess.View(filters))
}

// Stream handles GET /subscriptions/stream. Every projection change is pushed
// as a "dashboard" server-sent event until the client disconnects or the
// session is closed. An open stream keeps its session from idling out.
func (h *SubscriptionHandler) Stream(c *gin.Context) {
	filters, ok := bindFilters(c)
	if !ok {
		return
	}
	sess, ok := h.openSession(c)
	if !ok {
		return
	}

	release := h.sessions.Hold(sess)
	defer release()

	// Only the newest state matters; a slow client skips intermediate ones.
	updates := make(chan core.ProjectionState, 1)
	stopObserving := sess.Projection.Observe(func(st core.ProjectionState) {
		select {
		case <-updates:
		default:
		}
		updates <- st
	})
	defer stopObserving()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sess.Done():
			return false
		case st := <-updates:
			select {
			case <-sess.Done():
				return false
			default:
			}
			c.SSEvent("dashboard", sess.ViewOf(st, filters))
			return true
		}
	})
}

func (h *SubscriptionHandler) openSession(c *gin.Context) (*core.Session, bool) {
	sess, err := h.sessions.Open(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.mapSubscriptionErrorToStatus(c, err, "Failed to load subscriptions.")
		return nil, false
	}
	return sess, true
}

func bindFilters(c *gin.Context) (core.Filters, bool) {
	var filters core.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid filter parameters", Details: err.Error()})
		return filters, false
	}
	if err := filters.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return filters, false
	}
	return filters, true
}
