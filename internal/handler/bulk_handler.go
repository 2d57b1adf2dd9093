package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/service"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
	"github.com/carelane/therapy-scheduler-api/pkg/response"
)

// BulkHandler exposes bulk rescheduling endpoints.
type BulkHandler struct {
	bulk    *service.BulkService
	tracker *service.OperationTracker
}

// NewBulkHandler constructs handler.
func NewBulkHandler(bulk *service.BulkService, tracker *service.OperationTracker) *BulkHandler {
	return &BulkHandler{bulk: bulk, tracker: tracker}
}

// Execute godoc
// @Summary Start a bulk rescheduling operation
// @Description Accepts a FREEZE, REASSIGN, or MASS_SHIFT over committed sessions and runs it asynchronously. Returns the operation id for status polling.
// @Tags BulkOperations
// @Accept json
// @Produce json
// @Param payload body dto.BulkReschedulingRequest true "Bulk operation request"
// @Success 202 {object} response.Envelope{data=dto.BulkOperationResult}
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /bulk-operations [post]
func (h *BulkHandler) Execute(c *gin.Context) {
	var req dto.BulkReschedulingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload"))
		return
	}
	result, err := h.bulk.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Status godoc
// @Summary Bulk operation status
// @Description Returns the stored operation with its outcome log and live progress counters.
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} response.Envelope{data=dto.OperationStatusResponse}
// @Failure 404 {object} response.Envelope
// @Router /bulk-operations/{id} [get]
func (h *BulkHandler) Status(c *gin.Context) {
	result, err := h.bulk.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a bulk operation
// @Description Requests cooperative cancellation. Sessions already changed keep their new placement; the rest are left untouched.
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 202 {object} response.Envelope{data=dto.BulkOperationResult}
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bulk-operations/{id}/cancel [post]
func (h *BulkHandler) Cancel(c *gin.Context) {
	result, err := h.bulk.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Rollback godoc
// @Summary Roll back a bulk operation
// @Description Replays the outcome log in reverse, restoring prior placements. Sessions modified since the operation are reported as conflicts and skipped.
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} response.Envelope{data=dto.RollbackResponse}
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /bulk-operations/{id}/rollback [post]
func (h *BulkHandler) Rollback(c *gin.Context) {
	result, err := h.bulk.Rollback(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Events godoc
// @Summary Stream bulk operation progress
// @Description Server-sent events with progress snapshots until the operation finishes or the client disconnects.
// @Tags BulkOperations
// @Produce text/event-stream
// @Param id path string true "Operation ID"
// @Success 200 {string} string "SSE stream"
// @Router /bulk-operations/{id}/events [get]
func (h *BulkHandler) Events(c *gin.Context) {
	operationID := c.Param("id")
	updates, cancel := h.tracker.Subscribe(operationID)
	defer cancel()

	if snapshot, ok := h.tracker.Snapshot(c.Request.Context(), operationID); ok {
		c.SSEvent("progress", snapshot)
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case progress, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent("progress", progress)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
