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

type guideService interface {
	Available(ctx context.Context) ([]models.Guide, error)
	Allocate(ctx context.Context, applicationID string, req dto.AllocateGuideRequest, actor service.Actor) (*models.GuideAllocation, error)
	StudentAccept(ctx context.Context, applicationID string, actor service.Actor) (*models.Application, error)
	Decide(ctx context.Context, applicationID string, req dto.GuideDecisionRequest, actor service.Actor) (*models.Application, error)
	Verify(ctx context.Context, req dto.GuideVerifyRequest, actor service.Actor) (*models.GuideVerification, error)
	PendingVerification(ctx context.Context, actor service.Actor) ([]models.GuideScholar, error)
	Scholars(ctx context.Context, actor service.Actor) ([]models.GuideScholar, error)
	Acceptance(ctx context.Context, applicationID string, actor service.Actor) (*models.GuideAcceptance, error)
}

// GuideHandler exposes guide allocation, dual acceptance and guide verification.
type GuideHandler struct {
	guides guideService
	queues queueLister
}

// NewGuideHandler constructs GuideHandler.
func NewGuideHandler(guides guideService, queues queueLister) *GuideHandler {
	return &GuideHandler{guides: guides, queues: queues}
}

// Available godoc
// @Summary List active faculty guides
// @Tags Guides
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /guides/available [get]
func (h *GuideHandler) Available(c *gin.Context) {
	guides, err := h.guides.Available(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, guides, nil)
}

// Pending godoc
// @Summary List applications awaiting guide allocation
// @Tags Guides
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /guides/pending [get]
func (h *GuideHandler) Pending(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueGuidePending)
}

// Allocate godoc
// @Summary Allocate a faculty guide
// @Tags Guides
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.AllocateGuideRequest true "Guide"
// @Success 201 {object} response.Envelope
// @Router /guides/{id}/allocate [post]
func (h *GuideHandler) Allocate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.AllocateGuideRequest
	if !bindJSON(c, &req) {
		return
	}
	allocation, err := h.guides.Allocate(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, allocation)
}

// StudentAccept godoc
// @Summary Accept the allocated guide as the applicant
// @Tags Guides
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/student-accept [post]
func (h *GuideHandler) StudentAccept(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	app, err := h.guides.StudentAccept(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Confirm godoc
// @Summary Accept or reject the scholar as the allocated guide
// @Tags Guides
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.GuideDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /applications/{id}/guide-confirm [post]
func (h *GuideHandler) Confirm(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.GuideDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.guides.Decide(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Verify godoc
// @Summary Record the guide's verification of an allocated scholar
// @Tags Guides
// @Accept json
// @Produce json
// @Param payload body dto.GuideVerifyRequest true "Verification"
// @Success 201 {object} response.Envelope
// @Router /guide/verify [post]
func (h *GuideHandler) Verify(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.GuideVerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	verification, err := h.guides.Verify(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, req.ApplicationID)
	response.Created(c, verification)
}

// PendingVerification godoc
// @Summary List the caller's allocated scholars not yet verified
// @Tags Guides
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /guide/pending_verification [get]
func (h *GuideHandler) PendingVerification(c *gin.Context) {
	h.listScholars(c, h.guides.PendingVerification)
}

// Scholars godoc
// @Summary List the caller's confirmed scholars
// @Tags Guides
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /guide/scholars [get]
func (h *GuideHandler) Scholars(c *gin.Context) {
	h.listScholars(c, h.guides.Scholars)
}

// Acceptance godoc
// @Summary Get the dual acceptance record of an application
// @Tags Guides
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /guide/acceptance/{id} [get]
func (h *GuideHandler) Acceptance(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	acceptance, err := h.guides.Acceptance(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, acceptance, nil)
}

func (h *GuideHandler) listScholars(c *gin.Context, list func(context.Context, service.Actor) ([]models.GuideScholar, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	scholars, err := list(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scholars, nil)
}
