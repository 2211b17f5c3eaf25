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

type documentService interface {
	Verify(ctx context.Context, applicationID string, req dto.DocumentVerificationRequest, actor service.Actor) (*models.Application, error)
}

// VerificationHandler exposes the document verification gate.
type VerificationHandler struct {
	documents documentService
	queues    queueLister
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(documents documentService, queues queueLister) *VerificationHandler {
	return &VerificationHandler{documents: documents, queues: queues}
}

// Pending godoc
// @Summary List applications awaiting document verification
// @Tags Verification
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /verification/pending [get]
func (h *VerificationHandler) Pending(c *gin.Context) {
	serveQueue(c, h.queues, service.QueueVerification)
}

// Submit godoc
// @Summary Record the document verification outcome
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.DocumentVerificationRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /verification/{id}/submit [post]
func (h *VerificationHandler) Submit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.DocumentVerificationRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.documents.Verify(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
