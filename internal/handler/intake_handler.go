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

type intakeService interface {
	Approve(ctx context.Context, applicationID string, actor service.Actor) (*models.Application, error)
	Reject(ctx context.Context, applicationID, remarks string, actor service.Actor) (*models.Application, error)
}

// IntakeHandler exposes the admin review of EXTERNAL applications.
type IntakeHandler struct {
	intake intakeService
	queues queueLister
}

// NewIntakeHandler constructs IntakeHandler.
func NewIntakeHandler(intake intakeService, queues queueLister) *IntakeHandler {
	return &IntakeHandler{intake: intake, queues: queues}
}

// Pending godoc
// @Summary List EXTERNAL applications awaiting intake
// @Tags Intake
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /intake/pending [get]
func (h *IntakeHandler) Pending(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueIntake)
}

// Approve godoc
// @Summary Approve an EXTERNAL application and provision the applicant account
// @Tags Intake
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /intake/{id}/approve [post]
func (h *IntakeHandler) Approve(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	app, err := h.intake.Approve(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Reject godoc
// @Summary Reject an EXTERNAL application at intake
// @Tags Intake
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RemarksRequest true "Remarks"
// @Success 200 {object} response.Envelope
// @Router /intake/{id}/reject [post]
func (h *IntakeHandler) Reject(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RemarksRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	app, err := h.intake.Reject(c.Request.Context(), c.Param("id"), req.Remarks, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
