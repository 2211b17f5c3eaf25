package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/middleware"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

type interviewService interface {
	Schedule(ctx context.Context, applicationID string, req dto.ScheduleInterviewRequest, actor service.Actor) (*models.Interview, error)
	Evaluate(ctx context.Context, interviewID string, req dto.EvaluateInterviewRequest, actor service.Actor) (*models.Application, error)
}

// InterviewHandler exposes interview scheduling and evaluation.
type InterviewHandler struct {
	interviews interviewService
	queues     queueLister
}

// NewInterviewHandler constructs InterviewHandler.
func NewInterviewHandler(interviews interviewService, queues queueLister) *InterviewHandler {
	return &InterviewHandler{interviews: interviews, queues: queues}
}

// Eligible godoc
// @Summary List applications eligible for an interview
// @Tags Interviews
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /interviews/eligible [get]
func (h *InterviewHandler) Eligible(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueInterviewEligible)
}

// EvaluationPending godoc
// @Summary List scheduled interviews awaiting evaluation
// @Tags Interviews
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /interviews/evaluation/pending [get]
func (h *InterviewHandler) EvaluationPending(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueEvaluationPending)
}

// Schedule godoc
// @Summary Schedule the interview of an application
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ScheduleInterviewRequest true "Interview slot"
// @Success 201 {object} response.Envelope
// @Router /interviews/{id}/schedule [post]
func (h *InterviewHandler) Schedule(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ScheduleInterviewRequest
	if !bindJSON(c, &req) {
		return
	}
	interview, err := h.interviews.Schedule(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, interview)
}

// Evaluate godoc
// @Summary Record the interview outcome
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Interview ID"
// @Param payload body dto.EvaluateInterviewRequest true "Evaluation"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/evaluate [post]
func (h *InterviewHandler) Evaluate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.EvaluateInterviewRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.interviews.Evaluate(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, app.ID)
	response.JSON(c, http.StatusOK, app, nil)
}
