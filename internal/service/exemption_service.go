package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type exemptionStore interface {
	GetExemption(ctx context.Context, id string) (*models.PetExemption, error)
	HasExemption(ctx context.Context, applicationID string) (bool, error)
	ListPendingExemptions(ctx context.Context) ([]models.PetExemption, error)
}

// ExemptionService runs the PET exemption side channel. Its outcome is informational: the main
// sequence is never advanced by it, reviewers see it on queue entries instead.
type ExemptionService struct {
	engine     *Engine
	exemptions exemptionStore
	validator  *validator.Validate
}

// NewExemptionService constructs the service.
func NewExemptionService(engine *Engine, exemptions exemptionStore, validate *validator.Validate) *ExemptionService {
	if validate == nil {
		validate = validator.New()
	}
	return &ExemptionService{engine: engine, exemptions: exemptions, validator: validate}
}

// Request files the single exemption request of an INTERNAL application.
func (s *ExemptionService) Request(ctx context.Context, req dto.ExemptionRequest, actor Actor) (*models.PetExemption, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rule, _ := RuleFor(ActionRequestExemption)
	if err := rule.Permits(actor, ""); err != nil {
		return nil, err
	}
	exists, err := s.exemptions.HasExemption(ctx, req.ApplicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check exemption")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exemption already requested for this application")
	}

	exemption := &models.PetExemption{
		ApplicationID: req.ApplicationID,
		ApplicantID:   actor.ID,
		Reason:        strings.TrimSpace(req.Reason),
		Status:        models.ExemptionPending,
	}
	if url := strings.TrimSpace(req.DocumentURL); url != "" {
		exemption.DocumentURL = &url
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        ActionRequestExemption,
		ApplicationID: req.ApplicationID,
		Actor:         actor,
		Note:          "PET exemption requested: " + exemption.Reason,
		Records:       []interface{}{exemption},
		Check: func(app *models.Application) error {
			if app.CandidateType != models.CandidateInternal {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "exemption is available to INTERNAL applications only")
			}
			return nil
		},
	}); err != nil {
		return nil, err
	}
	return exemption, nil
}

// Review approves or rejects a PENDING exemption.
func (s *ExemptionService) Review(ctx context.Context, exemptionID string, req dto.ExemptionReviewRequest, actor Actor) (*models.PetExemption, error) {
	req.Decision = strings.ToUpper(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	approve := req.Decision == models.DecisionApprove
	action := ActionRejectExemption
	if approve {
		action = ActionApproveExemption
	}
	rule, _ := RuleFor(action)
	if err := rule.Permits(actor, req.Remarks); err != nil {
		return nil, err
	}

	exemption, err := s.exemptions.GetExemption(ctx, exemptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exemption not found")
		}
		return nil, appErrors.Internal(err, "failed to load exemption")
	}
	if exemption.Status != models.ExemptionPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exemption already reviewed")
	}

	if _, err := s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: exemption.ApplicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("PET exemption", req.Decision, req.Remarks),
		Records: []interface{}{&models.ExemptionReview{
			ExemptionID: exemption.ID,
			Approve:     approve,
			ReviewedBy:  actor.ID,
			Remarks:     strings.TrimSpace(req.Remarks),
		}},
	}); err != nil {
		return nil, err
	}

	exemption.Status = models.ExemptionRejected
	if approve {
		exemption.Status = models.ExemptionApproved
	}
	reviewer := actor.ID
	remarks := strings.TrimSpace(req.Remarks)
	exemption.ReviewedBy = &reviewer
	exemption.ReviewRemarks = &remarks
	return exemption, nil
}

// Pending lists exemption requests awaiting review, oldest first.
func (s *ExemptionService) Pending(ctx context.Context) ([]models.PetExemption, error) {
	exemptions, err := s.exemptions.ListPendingExemptions(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list exemptions")
	}
	if exemptions == nil {
		exemptions = []models.PetExemption{}
	}
	return exemptions, nil
}
