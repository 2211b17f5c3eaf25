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

type feeService interface {
	Record(ctx context.Context, applicationID string, req dto.RecordFeeRequest, actor service.Actor) (*models.FeePayment, error)
	Initiate(ctx context.Context, req dto.InitiateFeeRequest, actor service.Actor) (*models.FeePayment, error)
	Confirm(ctx context.Context, req dto.ConfirmFeeRequest, actor service.Actor) (*models.Application, error)
	Verify(ctx context.Context, applicationID, remarks string, actor service.Actor) (*models.Application, error)
	Reject(ctx context.Context, applicationID, remarks string, actor service.Actor) (*models.Application, error)
	Info(ctx context.Context, applicationID string, actor service.Actor) (*models.FeeInfo, error)
}

// FeeHandler exposes both fee entry paths and the fee verification gate.
type FeeHandler struct {
	fees   feeService
	queues queueLister
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService, queues queueLister) *FeeHandler {
	return &FeeHandler{fees: fees, queues: queues}
}

// Pending godoc
// @Summary List the fee payment or fee verification queue
// @Tags Fees
// @Produce json
// @Param type query string false "payment (default) or verification"
// @Success 200 {object} response.Envelope
// @Router /fees/pending [get]
func (h *FeeHandler) Pending(c *gin.Context) {
	var query dto.FeeQueueQuery
	_ = c.ShouldBindQuery(&query)
	queue, err := service.FeeQueue(query.Type)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveQueue(c, h.queues, queue)
}

// Pay godoc
// @Summary Record a settled fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RecordFeeRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Router /fees/{id}/pay [post]
func (h *FeeHandler) Pay(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RecordFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.fees.Record(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Initiate godoc
// @Summary Open a pending fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body dto.InitiateFeeRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Router /fee/initiate [post]
func (h *FeeHandler) Initiate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.InitiateFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.fees.Initiate(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, req.ApplicationID)
	response.Created(c, payment)
}

// Confirm godoc
// @Summary Confirm a pending fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmFeeRequest true "Confirmation"
// @Success 200 {object} response.Envelope
// @Router /fee/confirm [post]
func (h *FeeHandler) Confirm(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ConfirmFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.fees.Confirm(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, req.ApplicationID)
	response.JSON(c, http.StatusOK, app, nil)
}

// Info godoc
// @Summary Get the fee state of an application
// @Tags Fees
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /fee/{id} [get]
func (h *FeeHandler) Info(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	info, err := h.fees.Info(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// Verify godoc
// @Summary Accept the settled fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RemarksRequest false "Remarks"
// @Success 200 {object} response.Envelope
// @Router /fee/{id}/verify [post]
func (h *FeeHandler) Verify(c *gin.Context) {
	h.decide(c, h.fees.Verify)
}

// Reject godoc
// @Summary Reject the settled fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RemarksRequest true "Remarks"
// @Success 200 {object} response.Envelope
// @Router /fee/{id}/reject [post]
func (h *FeeHandler) Reject(c *gin.Context) {
	h.decide(c, h.fees.Reject)
}

func (h *FeeHandler) decide(c *gin.Context, decide func(context.Context, string, string, service.Actor) (*models.Application, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RemarksRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	app, err := decide(c.Request.Context(), c.Param("id"), req.Remarks, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
