package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/middleware"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

type applicationService interface {
	Create(ctx context.Context, req dto.CreateApplicationRequest, actor *service.Actor) (*dto.CreateApplicationResponse, error)
	StatusByReference(ctx context.Context, reference string) (*models.ApplicationStatusView, error)
	Get(ctx context.Context, id string, actor service.Actor) (*models.Application, error)
	ListMine(ctx context.Context, actor service.Actor) ([]models.Application, error)
	List(ctx context.Context, query dto.ApplicationListQuery) ([]models.Application, *models.Pagination, error)
	Timeline(ctx context.Context, id string, actor service.Actor) (*models.Timeline, error)
	Delete(ctx context.Context, id string, actor service.Actor) error
	Export(ctx context.Context, query dto.ApplicationListQuery) ([]byte, error)
}

// ApplicationHandler exposes submission and read endpoints of PET applications.
type ApplicationHandler struct {
	apps applicationService
}

// NewApplicationHandler constructs ApplicationHandler.
func NewApplicationHandler(apps applicationService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps}
}

// Apply godoc
// @Summary Submit a PET application
// @Description INTERNAL candidates must be authenticated; EXTERNAL candidates submit anonymously with contact details.
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /pet/apply [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.apps.Create(c.Request.Context(), req, optionalActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, res.ID)
	response.Created(c, res)
}

// StatusByReference godoc
// @Summary Track an application by reference number
// @Tags Applications
// @Produce json
// @Param ref path string true "Reference number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pet/status/{ref} [get]
func (h *ApplicationHandler) StatusByReference(c *gin.Context) {
	view, err := h.apps.StatusByReference(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Mine godoc
// @Summary List the caller's applications
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /my-applications [get]
func (h *ApplicationHandler) Mine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	apps, err := h.apps.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Timeline godoc
// @Summary Get the status history of an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/timeline [get]
func (h *ApplicationHandler) Timeline(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	timeline, err := h.apps.Timeline(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timeline, nil)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param candidateType query string false "INTERNAL or EXTERNAL"
// @Param search query string false "Reference number prefix"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	apps, pagination, err := h.apps.List(c.Request.Context(), listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Export godoc
// @Summary Export the application listing
// @Tags Applications
// @Produce text/csv
// @Param format query string false "Only csv is supported"
// @Success 200 {file} file
// @Router /applications/export [get]
func (h *ApplicationHandler) Export(c *gin.Context) {
	if format := strings.ToLower(c.DefaultQuery("format", "csv")); format != "csv" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported export format"))
		return
	}
	out, err := h.apps.Export(c.Request.Context(), listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("applications-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", out)
}

// Delete godoc
// @Summary Soft delete an application
// @Tags Applications
// @Param id path string true "Application ID"
// @Success 204
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.apps.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func listQuery(c *gin.Context) dto.ApplicationListQuery {
	query := dto.ApplicationListQuery{
		Status:        c.QueryArray("status"),
		CandidateType: c.Query("candidateType"),
		Search:        strings.TrimSpace(c.Query("search")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.PageSize = size
	}
	return query
}
