package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
	"github.com/carelane/therapy-scheduler-api/internal/service"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
	"github.com/carelane/therapy-scheduler-api/pkg/response"
)

const (
	suggestionHorizonDays = 7
	suggestionLimit       = 5
)

// ConflictHandler exposes conflict detection endpoints.
type ConflictHandler struct {
	detector  *service.ConflictService
	contexts  *service.ContextBuilder
	validator *validator.Validate
}

// NewConflictHandler constructs handler.
func NewConflictHandler(detector *service.ConflictService, contexts *service.ContextBuilder, validate *validator.Validate) *ConflictHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ConflictHandler{detector: detector, contexts: contexts, validator: validate}
}

// Detect godoc
// @Summary Detect conflicts for one candidate session
// @Description Evaluates the candidate against an explicit context or, when omitted, against stored sessions and availability. Blocking conflicts come with ranked resolution suggestions.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.DetectConflictsRequest true "Detection request"
// @Success 200 {object} response.Envelope{data=dto.DetectConflictsResponse}
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /conflicts/detect [post]
func (h *ConflictHandler) Detect(c *gin.Context) {
	var req dto.DetectConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid detection request"))
		return
	}

	candidate := req.Session.Session()
	sctx, err := h.buildContext(c, req.Context, req.Constraints, []models.Session{candidate})
	if err != nil {
		response.Error(c, err)
		return
	}

	conflicts := h.detector.Detect(candidate, sctx)
	result := dto.DetectConflictsResponse{Conflicts: conflicts}
	if models.HasBlocking(conflicts) {
		result.Suggestions = h.detector.ResolutionSuggestions(conflicts, candidate, sctx, suggestionHorizonDays, suggestionLimit)
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DetectBatch godoc
// @Summary Detect conflicts across a candidate batch
// @Description Evaluates candidates in submission order against a shared context snapshot, surfacing batch-internal collisions. Independent candidates may be evaluated in parallel.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.DetectBatchRequest true "Batch detection request"
// @Success 200 {object} response.Envelope{data=dto.DetectBatchResponse}
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /conflicts/detect-batch [post]
func (h *ConflictHandler) DetectBatch(c *gin.Context) {
	var req dto.DetectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch detection request"))
		return
	}

	candidates := make([]models.Session, 0, len(req.Sessions))
	for i, in := range req.Sessions {
		candidate := in.Session()
		if candidate.ID == "" {
			candidate.ID = fmt.Sprintf("candidate-%d", i+1)
		}
		candidates = append(candidates, candidate)
	}

	sctx, err := h.buildContext(c, req.Context, req.Constraints, candidates)
	if err != nil {
		response.Error(c, err)
		return
	}

	results := h.detector.DetectBatch(candidates, sctx, req.Options)
	response.JSON(c, http.StatusOK, dto.DetectBatchResponse{Results: results}, nil)
}

func (h *ConflictHandler) buildContext(c *gin.Context, input *dto.ContextInput, constraints *dto.Constraints, candidates []models.Session) (service.SchedulingContext, error) {
	if input != nil {
		return h.contexts.FromInput(input, constraints), nil
	}
	return h.contexts.Materialize(c.Request.Context(), candidates, constraints)
}
