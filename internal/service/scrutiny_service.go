package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

// ScrutinyService owns the eligibility gate.
type ScrutinyService struct {
	engine    *Engine
	validator *validator.Validate
}

// NewScrutinyService constructs the service.
func NewScrutinyService(engine *Engine, validate *validator.Validate) *ScrutinyService {
	if validate == nil {
		validate = validator.New()
	}
	return &ScrutinyService{engine: engine, validator: validate}
}

// Start moves a SUBMITTED application under scrutiny.
func (s *ScrutinyService) Start(ctx context.Context, applicationID string, actor Actor) (*models.Application, error) {
	return s.engine.Apply(ctx, Command{
		Action:        models.ActionStartScrutiny,
		ApplicationID: applicationID,
		Actor:         actor,
		Note:          "Scrutiny started",
	})
}

// Decide records the scrutiny review and advances the application.
func (s *ScrutinyService) Decide(ctx context.Context, applicationID string, req dto.ScrutinyDecisionRequest, actor Actor) (*models.Application, error) {
	req.Decision = strings.ToUpper(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	action := models.ActionApproveScrutiny
	if req.Decision == models.DecisionReject {
		action = models.ActionRejectScrutiny
	}
	return s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("Scrutiny", req.Decision, req.Remarks),
		Records: []interface{}{&models.ScrutinyReview{
			ApplicationID: applicationID,
			ReviewedBy:    actor.ID,
			Decision:      req.Decision,
			Remarks:       strings.TrimSpace(req.Remarks),
		}},
	})
}
