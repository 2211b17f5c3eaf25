package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

// Side-channel actions keep the status column unchanged.
const (
	ActionApproveIntake    models.WorkflowAction = "APPROVE_INTAKE"
	ActionInitiateFee      models.WorkflowAction = "INITIATE_FEE"
	ActionIssueCertificate models.WorkflowAction = "ISSUE_CERTIFICATE"
	ActionVerifyScholar    models.WorkflowAction = "VERIFY_SCHOLAR"
	ActionRequestExemption models.WorkflowAction = "REQUEST_EXEMPTION"
	ActionApproveExemption models.WorkflowAction = "APPROVE_EXEMPTION"
	ActionRejectExemption  models.WorkflowAction = "REJECT_EXEMPTION"
)

// Transition metric outcomes.
const (
	outcomeApplied  = "applied"
	outcomeDenied   = "denied"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// Actor is the verified principal invoking an operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

// TransitionRule is one row of the workflow table.
type TransitionRule struct {
	From  []models.ApplicationStatus
	To    models.ApplicationStatus
	Roles []models.UserRole
	// RemarksRequired rejects empty reviewer remarks before any I/O.
	RemarksRequired bool
	// ApplicantOwns requires an APPLICANT actor to be the linked applicant.
	ApplicantOwns bool
	// LogStatus is written to history when To is empty.
	LogStatus   models.ApplicationStatus
	SkipHistory bool
}

var (
	staffRoles = []models.UserRole{models.RoleDRC, models.RoleAdmin, models.RoleSuperAdmin}
	adminRoles = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}
	guideRoles = []models.UserRole{models.RoleFaculty, models.RoleAdmin, models.RoleSuperAdmin, models.RoleDRC}
	ownerRoles = []models.UserRole{models.RoleApplicant}

	scrutinySources = []models.ApplicationStatus{models.StatusSubmitted, models.StatusUnderScrutiny}
	feeSettled      = []models.ApplicationStatus{models.StatusFeePaid, models.StatusFeeVerificationPending}
	postAllocation  = []models.ApplicationStatus{models.StatusGuideAllocated, models.StatusGuideAcceptedByStudent, models.StatusAdmissionConfirmed}

	openStatuses = []models.ApplicationStatus{
		models.StatusSubmitted, models.StatusUnderScrutiny, models.StatusScrutinyApproved,
		models.StatusInterviewScheduled, models.StatusInterviewPassed, models.StatusDocumentsVerified,
		models.StatusFeePaid, models.StatusFeeVerificationPending, models.StatusFeeVerified,
		models.StatusGuideAllocated, models.StatusGuideAcceptedByStudent,
	}
	anyStatus = append(append([]models.ApplicationStatus{}, openStatuses...),
		models.StatusScrutinyRejected, models.StatusInterviewFailed, models.StatusDocumentsRejected,
		models.StatusFeeRejected, models.StatusAdmissionConfirmed, models.StatusGuideRejected, models.StatusIntakeRejected)
)

// transitionRules is the admission state machine.
var transitionRules = map[models.WorkflowAction]TransitionRule{
	models.ActionStartScrutiny:      {From: []models.ApplicationStatus{models.StatusSubmitted}, To: models.StatusUnderScrutiny, Roles: staffRoles},
	models.ActionApproveScrutiny:    {From: scrutinySources, To: models.StatusScrutinyApproved, Roles: staffRoles},
	models.ActionRejectScrutiny:     {From: scrutinySources, To: models.StatusScrutinyRejected, Roles: staffRoles, RemarksRequired: true},
	models.ActionScheduleInterview:  {From: []models.ApplicationStatus{models.StatusScrutinyApproved}, To: models.StatusInterviewScheduled, Roles: staffRoles},
	models.ActionPassInterview:      {From: []models.ApplicationStatus{models.StatusInterviewScheduled}, To: models.StatusInterviewPassed, Roles: staffRoles},
	models.ActionFailInterview:      {From: []models.ApplicationStatus{models.StatusInterviewScheduled}, To: models.StatusInterviewFailed, Roles: staffRoles, RemarksRequired: true},
	models.ActionVerifyDocuments:    {From: []models.ApplicationStatus{models.StatusInterviewPassed}, To: models.StatusDocumentsVerified, Roles: staffRoles},
	models.ActionRejectDocuments:    {From: []models.ApplicationStatus{models.StatusInterviewPassed}, To: models.StatusDocumentsRejected, Roles: staffRoles, RemarksRequired: true},
	models.ActionRecordFee:          {From: []models.ApplicationStatus{models.StatusDocumentsVerified}, To: models.StatusFeePaid, Roles: append([]models.UserRole{models.RoleApplicant}, staffRoles...), ApplicantOwns: true},
	models.ActionConfirmFee:         {From: []models.ApplicationStatus{models.StatusDocumentsVerified}, To: models.StatusFeeVerificationPending, Roles: ownerRoles, ApplicantOwns: true},
	models.ActionVerifyFee:          {From: feeSettled, To: models.StatusFeeVerified, Roles: staffRoles},
	models.ActionRejectFee:          {From: feeSettled, To: models.StatusFeeRejected, Roles: staffRoles, RemarksRequired: true},
	models.ActionAllocateGuide:      {From: []models.ApplicationStatus{models.StatusFeeVerified}, To: models.StatusGuideAllocated, Roles: staffRoles},
	models.ActionStudentAcceptGuide: {From: []models.ApplicationStatus{models.StatusGuideAllocated}, To: models.StatusGuideAcceptedByStudent, Roles: ownerRoles, ApplicantOwns: true},
	models.ActionGuideAccept:        {From: []models.ApplicationStatus{models.StatusGuideAcceptedByStudent}, To: models.StatusAdmissionConfirmed, Roles: guideRoles},
	models.ActionGuideReject:        {From: []models.ApplicationStatus{models.StatusGuideAcceptedByStudent}, To: models.StatusGuideRejected, Roles: guideRoles, RemarksRequired: true},
	models.ActionRejectIntake:       {From: []models.ApplicationStatus{models.StatusSubmitted}, To: models.StatusIntakeRejected, Roles: adminRoles, RemarksRequired: true},

	ActionApproveIntake:    {From: []models.ApplicationStatus{models.StatusSubmitted}, Roles: adminRoles, SkipHistory: true},
	ActionInitiateFee:      {From: []models.ApplicationStatus{models.StatusDocumentsVerified}, Roles: ownerRoles, ApplicantOwns: true, SkipHistory: true},
	ActionIssueCertificate: {From: []models.ApplicationStatus{models.StatusGuideAllocated}, Roles: staffRoles},
	ActionVerifyScholar:    {From: postAllocation, Roles: guideRoles, SkipHistory: true},
	ActionRequestExemption: {From: openStatuses, Roles: ownerRoles, ApplicantOwns: true, LogStatus: models.StatusPetExemptionRequested},
	ActionApproveExemption: {From: anyStatus, Roles: staffRoles, LogStatus: models.StatusPetExemptionApproved},
	ActionRejectExemption:  {From: anyStatus, Roles: staffRoles, RemarksRequired: true, LogStatus: models.StatusPetExemptionRejected},
}

// RuleFor returns the workflow rule of an action.
func RuleFor(action models.WorkflowAction) (TransitionRule, bool) {
	rule, ok := transitionRules[action]
	return rule, ok
}

// Permits evaluates the actor and remarks part of the rule; it needs no stored state.
func (r TransitionRule) Permits(actor Actor, remarks string) error {
	if strings.TrimSpace(actor.ID) == "" {
		return appErrors.ErrUnauthorized
	}
	if !hasRole(r.Roles, actor.Role) {
		return appErrors.ErrForbidden
	}
	if r.RemarksRequired && strings.TrimSpace(remarks) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "remarks are required for this decision")
	}
	return nil
}

// Accepts reports whether the status is a legal source for the rule.
func (r TransitionRule) Accepts(status models.ApplicationStatus) bool {
	for _, from := range r.From {
		if from == status {
			return true
		}
	}
	return false
}

// Guard decides whether the actor may take the action on the application in its current state.
func Guard(app *models.Application, actor Actor, action models.WorkflowAction, remarks string) error {
	rule, ok := transitionRules[action]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow action %s", action))
	}
	if err := rule.Permits(actor, remarks); err != nil {
		return err
	}
	if app == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "application not found")
	}
	if rule.ApplicantOwns && actor.Role == models.RoleApplicant && !app.IsOwnedBy(actor.ID) {
		return appErrors.ErrForbidden
	}
	if !rule.Accepts(app.Status) {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("application is %s; %s requires %s", app.Status, action, joinStatuses(rule.From)))
	}
	return nil
}

// Command asks the engine to apply one action to one application.
type Command struct {
	Action        models.WorkflowAction
	ApplicationID string
	Actor         Actor
	// Remarks are the reviewer-entered remarks checked by the rule.
	Remarks string
	// Note is the history remark; Remarks is used when empty.
	Note    string
	Records []interface{}
	Intake  *repository.IntakePatch
	// Check runs after the guard with the loaded application, for identity or type checks.
	Check func(app *models.Application) error
}

type transitionStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ApplyTransition(ctx context.Context, t repository.Transition) (*models.Application, error)
}

type transitionMetrics interface {
	RecordTransition(action, outcome string)
}

// Engine is the single apply-transition routine every stage service goes through.
type Engine struct {
	store   transitionStore
	metrics transitionMetrics
	logger  *zap.Logger
	hooks   []CommitHook
}

// CommitHook runs after a transition has been committed.
type CommitHook func(ctx context.Context, app *models.Application)

// NewEngine constructs the workflow engine.
func NewEngine(store transitionStore, metrics transitionMetrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, metrics: metrics, logger: logger}
}

// OnCommit registers a hook. Hooks must be registered before the engine serves requests.
func (e *Engine) OnCommit(hook CommitHook) {
	e.hooks = append(e.hooks, hook)
}

// Apply guards and commits the command as one atomic unit.
func (e *Engine) Apply(ctx context.Context, cmd Command) (*models.Application, error) {
	rule, ok := transitionRules[cmd.Action]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow action %s", cmd.Action))
	}
	if err := rule.Permits(cmd.Actor, cmd.Remarks); err != nil {
		e.record(cmd.Action, outcomeDenied)
		return nil, err
	}

	app, err := e.store.GetByID(ctx, cmd.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			e.record(cmd.Action, outcomeDenied)
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application not found")
		}
		e.record(cmd.Action, outcomeError)
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if err := Guard(app, cmd.Actor, cmd.Action, cmd.Remarks); err != nil {
		e.record(cmd.Action, outcomeDenied)
		return nil, err
	}
	if cmd.Check != nil {
		if err := cmd.Check(app); err != nil {
			e.record(cmd.Action, outcomeDenied)
			return nil, err
		}
	}

	note := cmd.Note
	if note == "" {
		note = strings.TrimSpace(cmd.Remarks)
	}
	// Only the observed status is a valid source; a concurrent writer makes the update miss.
	updated, err := e.store.ApplyTransition(ctx, repository.Transition{
		ApplicationID: app.ID,
		From:          []models.ApplicationStatus{app.Status},
		To:            rule.To,
		LogStatus:     rule.LogStatus,
		ChangedBy:     cmd.Actor.ID,
		Remarks:       note,
		SkipHistory:   rule.SkipHistory,
		Intake:        cmd.Intake,
		Records:       cmd.Records,
	})
	if err != nil {
		return nil, e.translate(cmd, app, err)
	}

	e.record(cmd.Action, outcomeApplied)
	e.logger.Info("workflow transition applied",
		zap.String("application_id", app.ID),
		zap.String("action", string(cmd.Action)),
		zap.String("from", string(app.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_id", cmd.Actor.ID),
	)
	for _, hook := range e.hooks {
		hook(ctx, updated)
	}
	return updated, nil
}

func (e *Engine) translate(cmd Command, app *models.Application, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e.record(cmd.Action, outcomeConflict)
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("application %s changed concurrently and is no longer %s", app.ReferenceNumber, app.Status))
	case errors.Is(err, repository.ErrDuplicate):
		e.record(cmd.Action, outcomeConflict)
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "a record for this stage already exists")
	case errors.Is(err, repository.ErrStaleRecord):
		e.record(cmd.Action, outcomeConflict)
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "stage record is not in the expected state")
	default:
		e.record(cmd.Action, outcomeError)
		e.logger.Error("workflow transition failed",
			zap.String("application_id", app.ID),
			zap.String("action", string(cmd.Action)),
			zap.Error(err),
		)
		return appErrors.Internal(err, "failed to apply transition")
	}
}

func (e *Engine) record(action models.WorkflowAction, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(action), outcome)
	}
}

func hasRole(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func joinStatuses(statuses []models.ApplicationStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}

// decisionNote builds the human-readable history remark of a gate decision.
func decisionNote(stage, decision, remarks string) string {
	remarks = strings.TrimSpace(remarks)
	if remarks == "" {
		return fmt.Sprintf("%s %s", stage, decision)
	}
	return fmt.Sprintf("%s %s: %s", stage, decision, remarks)
}
