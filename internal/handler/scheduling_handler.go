package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/service"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
	"github.com/carelane/therapy-scheduler-api/pkg/response"
)

// SchedulingHandler exposes schedule generation endpoints.
type SchedulingHandler struct {
	generator *service.ScheduleGeneratorService
}

// NewSchedulingHandler constructs handler.
func NewSchedulingHandler(generator *service.ScheduleGeneratorService) *SchedulingHandler {
	return &SchedulingHandler{generator: generator}
}

// Generate godoc
// @Summary Generate a session calendar for a subscription
// @Description Expands the subscription cadence into dated sessions, resolves conflicts via suggestions, and returns a proposal. Unplaceable slots are reported, not failed.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.SchedulingRequest true "Scheduling request"
// @Success 200 {object} response.Envelope{data=dto.GenerateScheduleResponse}
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *SchedulingHandler) Generate(c *gin.Context) {
	var req dto.SchedulingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Commit godoc
// @Summary Commit a generated proposal
// @Description Re-validates the proposal against current calendar state and persists the clean sessions as SCHEDULED.
// @Tags Scheduling
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 201 {object} response.Envelope{data=dto.CommitScheduleResponse}
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/proposals/{id}/commit [post]
func (h *SchedulingHandler) Commit(c *gin.Context) {
	result, err := h.generator.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
