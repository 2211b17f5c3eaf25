package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

type certificateService interface {
	Issue(ctx context.Context, applicationID string, actor service.Actor) (*models.CertificateView, error)
	Get(ctx context.Context, applicationID string, actor service.Actor) (*models.CertificateView, error)
	Open(token string) (io.ReadCloser, string, error)
}

// CertificateHandler exposes guide allocation certificates.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Issue godoc
// @Summary Issue the guide allocation certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Application ID"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /applications/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	view, err := h.certificates.Issue(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get certificate metadata and a signed download token
// @Tags Certificates
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/certificate [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	view, err := h.certificates.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Download godoc
// @Summary Download a certificate PDF with a signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.certificates.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", file, nil)
}
