package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

// DocumentService owns the document verification gate.
type DocumentService struct {
	engine    *Engine
	validator *validator.Validate
}

// NewDocumentService constructs the service.
func NewDocumentService(engine *Engine, validate *validator.Validate) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentService{engine: engine, validator: validate}
}

// Verify records the document check of an INTERVIEW_PASSED application.
func (s *DocumentService) Verify(ctx context.Context, applicationID string, req dto.DocumentVerificationRequest, actor Actor) (*models.Application, error) {
	req.VerificationStatus = strings.ToUpper(strings.TrimSpace(req.VerificationStatus))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	action := models.ActionVerifyDocuments
	if req.VerificationStatus == models.VerificationRejected {
		action = models.ActionRejectDocuments
	}
	return s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("Documents", req.VerificationStatus, req.Remarks),
		Records: []interface{}{&models.DocumentVerification{
			ApplicationID:      applicationID,
			VerificationStatus: req.VerificationStatus,
			Remarks:            strings.TrimSpace(req.Remarks),
			VerifiedBy:         actor.ID,
		}},
	})
}
