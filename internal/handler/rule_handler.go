package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carelane/therapy-scheduler-api/internal/service"
	"github.com/carelane/therapy-scheduler-api/pkg/response"
)

// RuleHandler exposes optimization rule endpoints.
type RuleHandler struct {
	engine *service.RuleEngineService
}

// NewRuleHandler constructs handler.
func NewRuleHandler(engine *service.RuleEngineService) *RuleHandler {
	return &RuleHandler{engine: engine}
}

// List godoc
// @Summary Active optimization rules
// @Tags Rules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.engine.ActiveRules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// Statistics godoc
// @Summary Rule application statistics
// @Description Applied and discarded counts per rule since process start.
// @Tags Rules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rules/statistics [get]
func (h *RuleHandler) Statistics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.engine.Statistics(), nil)
}
