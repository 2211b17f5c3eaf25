package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

type scrutinyService interface {
	Start(ctx context.Context, applicationID string, actor service.Actor) (*models.Application, error)
	Decide(ctx context.Context, applicationID string, req dto.ScrutinyDecisionRequest, actor service.Actor) (*models.Application, error)
}

// ScrutinyHandler exposes the DRC scrutiny gate.
type ScrutinyHandler struct {
	scrutiny scrutinyService
	queues   queueLister
}

// NewScrutinyHandler constructs ScrutinyHandler.
func NewScrutinyHandler(scrutiny scrutinyService, queues queueLister) *ScrutinyHandler {
	return &ScrutinyHandler{scrutiny: scrutiny, queues: queues}
}

// Pending godoc
// @Summary List applications awaiting scrutiny
// @Tags Scrutiny
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scrutiny/pending [get]
func (h *ScrutinyHandler) Pending(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueScrutiny)
}

// Start godoc
// @Summary Mark an application as under scrutiny
// @Tags Scrutiny
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /scrutiny/{id}/start [post]
func (h *ScrutinyHandler) Start(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	app, err := h.scrutiny.Start(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Decide godoc
// @Summary Approve or reject an application at scrutiny
// @Tags Scrutiny
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ScrutinyDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /scrutiny/{id}/decision [post]
func (h *ScrutinyHandler) Decide(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ScrutinyDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.scrutiny.Decide(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
