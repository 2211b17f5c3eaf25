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

type exemptionService interface {
	Request(ctx context.Context, req dto.ExemptionRequest, actor service.Actor) (*models.PetExemption, error)
	Review(ctx context.Context, exemptionID string, req dto.ExemptionReviewRequest, actor service.Actor) (*models.PetExemption, error)
	Pending(ctx context.Context) ([]models.PetExemption, error)
}

// ExemptionHandler exposes PET exemption requests and their review.
type ExemptionHandler struct {
	exemptions exemptionService
}

// NewExemptionHandler constructs ExemptionHandler.
func NewExemptionHandler(exemptions exemptionService) *ExemptionHandler {
	return &ExemptionHandler{exemptions: exemptions}
}

// Request godoc
// @Summary Request exemption from the entrance test
// @Tags Exemptions
// @Accept json
// @Produce json
// @Param payload body dto.ExemptionRequest true "Request"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /pet/exemption/request [post]
func (h *ExemptionHandler) Request(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ExemptionRequest
	if !bindJSON(c, &req) {
		return
	}
	exemption, err := h.exemptions.Request(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, exemption.ID)
	response.Created(c, exemption)
}

// Pending godoc
// @Summary List exemption requests awaiting review
// @Tags Exemptions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /pet/exemption/pending [get]
func (h *ExemptionHandler) Pending(c *gin.Context) {
	exemptions, err := h.exemptions.Pending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exemptions, nil)
}

// Review godoc
// @Summary Approve or reject an exemption request
// @Tags Exemptions
// @Accept json
// @Produce json
// @Param id path string true "Exemption ID"
// @Param payload body dto.ExemptionReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /pet/exemption/{id}/review [post]
func (h *ExemptionHandler) Review(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ExemptionReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	exemption, err := h.exemptions.Review(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exemption, nil)
}
