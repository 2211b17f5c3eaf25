package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type allocationReader interface {
	GetAllocation(ctx context.Context, applicationID string) (*models.GuideAllocation, error)
	GetAcceptance(ctx context.Context, applicationID string) (*models.GuideAcceptance, error)
	HasGuideVerification(ctx context.Context, applicationID string) (bool, error)
	ListScholars(ctx context.Context, guideID string, statuses []models.ApplicationStatus, unverified bool) ([]models.GuideScholar, error)
}

type guideDirectory interface {
	Guide(ctx context.Context, id string) (*models.User, error)
	ListGuides(ctx context.Context) ([]models.Guide, error)
}

// CertificateDispatcher schedules certificate issuance outside the allocation transaction.
type CertificateDispatcher interface {
	Dispatch(applicationID string, actor Actor)
}

// GuideService allocates guides and collects the dual acceptance.
type GuideService struct {
	engine       *Engine
	apps         applicationReader
	allocations  allocationReader
	guides       guideDirectory
	certificates CertificateDispatcher
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewGuideService constructs the service. certificates may be nil to disable auto issuance.
func NewGuideService(engine *Engine, apps applicationReader, allocations allocationReader, guides guideDirectory, certificates CertificateDispatcher, validate *validator.Validate, logger *zap.Logger) *GuideService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GuideService{
		engine:       engine,
		apps:         apps,
		allocations:  allocations,
		guides:       guides,
		certificates: certificates,
		validator:    validate,
		logger:       logger,
	}
}

// Available lists the faculty a guide can be chosen from.
func (s *GuideService) Available(ctx context.Context) ([]models.Guide, error) {
	return s.guides.ListGuides(ctx)
}

// Allocate links a FEE_VERIFIED application to a guide, then requests the certificate.
func (s *GuideService) Allocate(ctx context.Context, applicationID string, req dto.AllocateGuideRequest, actor Actor) (*models.GuideAllocation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rule, _ := RuleFor(models.ActionAllocateGuide)
	if err := rule.Permits(actor, ""); err != nil {
		return nil, err
	}
	guide, err := s.guides.Guide(ctx, req.GuideFacultyID)
	if err != nil {
		return nil, err
	}

	allocation := &models.GuideAllocation{
		ApplicationID:  applicationID,
		GuideFacultyID: guide.ID,
		Remarks:        strings.TrimSpace(req.Remarks),
		AllocatedBy:    actor.ID,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        models.ActionAllocateGuide,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("Guide", fmt.Sprintf("allocated: %s", guide.FullName), req.Remarks),
		Records:       []interface{}{allocation},
		Check: func(app *models.Application) error {
			allocation.ApplicantID = app.ApplicantID
			return nil
		},
	}); err != nil {
		return nil, err
	}

	if s.certificates != nil {
		s.certificates.Dispatch(applicationID, actor)
	}
	return allocation, nil
}

// StudentAccept records the applicant's acceptance of the allocated guide.
func (s *GuideService) StudentAccept(ctx context.Context, applicationID string, actor Actor) (*models.Application, error) {
	return s.engine.Apply(ctx, Command{
		Action:        models.ActionStudentAcceptGuide,
		ApplicationID: applicationID,
		Actor:         actor,
		Note:          "Guide accepted by student",
		Records: []interface{}{&models.GuideAcceptance{
			ApplicationID:     applicationID,
			StudentAcceptance: true,
		}},
	})
}

// Decide records the allocated guide's answer. Only the guide named on the allocation may call it.
func (s *GuideService) Decide(ctx context.Context, applicationID string, req dto.GuideDecisionRequest, actor Actor) (*models.Application, error) {
	req.Decision = strings.ToUpper(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	action := models.ActionGuideAccept
	if req.Decision == models.DecisionReject {
		action = models.ActionGuideReject
	}
	rule, _ := RuleFor(action)
	if err := rule.Permits(actor, req.Remarks); err != nil {
		return nil, err
	}
	allocation, err := s.allocation(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	return s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("Guide", req.Decision, req.Remarks),
		Records: []interface{}{&models.GuideDecision{
			ApplicationID: applicationID,
			Accept:        action == models.ActionGuideAccept,
			Remarks:       strings.TrimSpace(req.Remarks),
		}},
		Check: allocatedGuide(allocation, actor),
	})
}

// Verify records the allocated guide's verification of the scholar.
func (s *GuideService) Verify(ctx context.Context, req dto.GuideVerifyRequest, actor Actor) (*models.GuideVerification, error) {
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	req.Remark = strings.TrimSpace(req.Remark)
	if req.Status == models.VerificationRejected && req.Remark == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "remark is required when rejecting a scholar")
	}
	rule, _ := RuleFor(ActionVerifyScholar)
	if err := rule.Permits(actor, ""); err != nil {
		return nil, err
	}
	allocation, err := s.allocation(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if allocation.GuideFacultyID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	verified, err := s.allocations.HasGuideVerification(ctx, req.ApplicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check guide verification")
	}
	if verified {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "scholar already verified")
	}

	verification := &models.GuideVerification{
		ApplicationID: req.ApplicationID,
		GuideID:       actor.ID,
		Status:        req.Status,
		Remark:        req.Remark,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        ActionVerifyScholar,
		ApplicationID: req.ApplicationID,
		Actor:         actor,
		Records:       []interface{}{verification},
		Check:         allocatedGuide(allocation, actor),
	}); err != nil {
		return nil, err
	}
	return verification, nil
}

// PendingVerification lists the guide's allocations not yet verified.
func (s *GuideService) PendingVerification(ctx context.Context, actor Actor) ([]models.GuideScholar, error) {
	return s.scholars(ctx, actor, postAllocation, true)
}

// Scholars lists the guide's confirmed scholars.
func (s *GuideService) Scholars(ctx context.Context, actor Actor) ([]models.GuideScholar, error) {
	return s.scholars(ctx, actor, []models.ApplicationStatus{models.StatusAdmissionConfirmed}, false)
}

// Acceptance returns the dual acceptance record to the applicant, the allocated guide or staff.
func (s *GuideService) Acceptance(ctx context.Context, applicationID string, actor Actor) (*models.GuideAcceptance, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if !canRead(app, actor) {
		allocation, err := s.allocations.GetAllocation(ctx, applicationID)
		if err != nil || allocation.GuideFacultyID != actor.ID {
			return nil, appErrors.ErrForbidden
		}
	}
	acceptance, err := s.allocations.GetAcceptance(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "acceptance not recorded")
		}
		return nil, appErrors.Internal(err, "failed to load acceptance")
	}
	return acceptance, nil
}

func (s *GuideService) scholars(ctx context.Context, actor Actor, statuses []models.ApplicationStatus, unverified bool) ([]models.GuideScholar, error) {
	if actor.Role != models.RoleFaculty {
		return nil, appErrors.ErrForbidden
	}
	scholars, err := s.allocations.ListScholars(ctx, actor.ID, statuses, unverified)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list scholars")
	}
	if scholars == nil {
		scholars = []models.GuideScholar{}
	}
	return scholars, nil
}

func (s *GuideService) allocation(ctx context.Context, applicationID string) (*models.GuideAllocation, error) {
	allocation, err := s.allocations.GetAllocation(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no guide allocated for this application")
		}
		return nil, appErrors.Internal(err, "failed to load guide allocation")
	}
	return allocation, nil
}

// allocatedGuide authorizes by identity; the role alone is not enough.
func allocatedGuide(allocation *models.GuideAllocation, actor Actor) func(*models.Application) error {
	return func(*models.Application) error {
		if allocation.GuideFacultyID != actor.ID {
			return appErrors.ErrForbidden
		}
		return nil
	}
}
