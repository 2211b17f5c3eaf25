package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type interviewReader interface {
	GetInterview(ctx context.Context, id string) (*models.Interview, error)
	HasEvaluation(ctx context.Context, interviewID string) (bool, error)
}

// InterviewService schedules and evaluates interviews.
type InterviewService struct {
	engine     *Engine
	interviews interviewReader
	validator  *validator.Validate
}

// NewInterviewService constructs the service.
func NewInterviewService(engine *Engine, interviews interviewReader, validate *validator.Validate) *InterviewService {
	if validate == nil {
		validate = validator.New()
	}
	return &InterviewService{engine: engine, interviews: interviews, validator: validate}
}

// Schedule creates the interview of a SCRUTINY_APPROVED application.
func (s *InterviewService) Schedule(ctx context.Context, applicationID string, req dto.ScheduleInterviewRequest, actor Actor) (*models.Interview, error) {
	req.InterviewMode = strings.ToUpper(strings.TrimSpace(req.InterviewMode))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	interview := &models.Interview{
		ApplicationID:     applicationID,
		InterviewDate:     req.InterviewDate.UTC(),
		InterviewMode:     req.InterviewMode,
		InterviewLocation: strings.TrimSpace(req.InterviewLocation),
		PanelMembers:      req.PanelMembers,
		CreatedBy:         actor.ID,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        models.ActionScheduleInterview,
		ApplicationID: applicationID,
		Actor:         actor,
		Note:          fmt.Sprintf("Interview scheduled for %s (%s)", interview.InterviewDate.Format("2006-01-02 15:04 MST"), interview.InterviewMode),
		Records:       []interface{}{interview},
	}); err != nil {
		return nil, err
	}
	return interview, nil
}

// Evaluate records the outcome of an interview on its owning application.
func (s *InterviewService) Evaluate(ctx context.Context, interviewID string, req dto.EvaluateInterviewRequest, actor Actor) (*models.Application, error) {
	req.Decision = strings.ToUpper(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	action := models.ActionPassInterview
	if req.Decision == models.DecisionFail {
		action = models.ActionFailInterview
	}
	rule, _ := RuleFor(action)
	if err := rule.Permits(actor, req.Remarks); err != nil {
		return nil, err
	}

	interview, err := s.interviews.GetInterview(ctx, interviewID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "interview not found")
		}
		return nil, appErrors.Internal(err, "failed to load interview")
	}
	evaluated, err := s.interviews.HasEvaluation(ctx, interview.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check interview evaluation")
	}
	if evaluated {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "interview already evaluated")
	}

	return s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: interview.ApplicationID,
		Actor:         actor,
		Remarks:       req.Remarks,
		Note:          decisionNote("Interview", fmt.Sprintf("%s (score %d)", req.Decision, req.EvaluationScore), req.Remarks),
		Records: []interface{}{&models.InterviewEvaluation{
			InterviewID:     interview.ID,
			ApplicationID:   interview.ApplicationID,
			EvaluationScore: req.EvaluationScore,
			Recommendation:  strings.TrimSpace(req.Recommendation),
			Remarks:         strings.TrimSpace(req.Remarks),
			EvaluatedBy:     actor.ID,
		}},
	})
}
