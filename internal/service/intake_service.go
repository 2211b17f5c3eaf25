package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
	"github.com/noah-isme/phd-admission-api/pkg/crypto"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type applicationReader interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
}

type identityProvisioner interface {
	NewApplicantIdentity(ctx context.Context, req NewIdentityRequest) (*models.User, error)
}

// IntakeService converts EXTERNAL applications into INTERNAL ones.
type IntakeService struct {
	engine          *Engine
	apps            applicationReader
	users           identityProvisioner
	cipher          crypto.Cipher
	defaultPassword string
	logger          *zap.Logger
}

// NewIntakeService constructs the service. defaultPassword is used when the stored credential
// cannot be recovered.
func NewIntakeService(engine *Engine, apps applicationReader, users identityProvisioner, cipher crypto.Cipher, defaultPassword string, logger *zap.Logger) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		engine:          engine,
		apps:            apps,
		users:           users,
		cipher:          cipher,
		defaultPassword: defaultPassword,
		logger:          logger,
	}
}

// Approve provisions the applicant identity and links it. The status stays SUBMITTED.
func (s *IntakeService) Approve(ctx context.Context, applicationID string, actor Actor) (*models.Application, error) {
	rule, _ := RuleFor(ActionApproveIntake)
	if err := rule.Permits(actor, ""); err != nil {
		return nil, err
	}
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if err := pendingIntake(app); err != nil {
		return nil, err
	}

	var snapshot models.ExternalSnapshot
	if !app.ExternalSnapshot.Valid || json.Unmarshal(app.ExternalSnapshot.JSONText, &snapshot) != nil || snapshot.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "external application has no contact email")
	}

	password := s.recoverCredential(app)
	user, err := s.users.NewApplicantIdentity(ctx, NewIdentityRequest{
		Email:    snapshot.Email,
		FullName: snapshot.FullName,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	payload, _, err := models.StripPayloadField(app.Payload, models.PayloadCredentialKey)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to strip applicant credential")
	}

	updated, err := s.engine.Apply(ctx, Command{
		Action:        ActionApproveIntake,
		ApplicationID: app.ID,
		Actor:         actor,
		Intake:        &repository.IntakePatch{ApplicantID: user.ID, Payload: payload},
		Records:       []interface{}{user},
		Check:         pendingIntake,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("external intake approved",
		zap.String("application_id", updated.ID),
		zap.String("applicant_id", user.ID),
	)
	updated.RedactCredentials()
	return updated, nil
}

// Reject closes an EXTERNAL application at intake. No identity is created.
func (s *IntakeService) Reject(ctx context.Context, applicationID, remarks string, actor Actor) (*models.Application, error) {
	return s.engine.Apply(ctx, Command{
		Action:        models.ActionRejectIntake,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       remarks,
		Note:          decisionNote("Intake", models.DecisionReject, remarks),
		Check:         pendingIntake,
	})
}

// recoverCredential opens the sealed one-time password, falling back to the configured default.
func (s *IntakeService) recoverCredential(app *models.Application) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(app.Payload, &payload); err != nil {
		s.logger.Warn("intake using default credential", zap.String("application_id", app.ID), zap.String("reason", "payload unreadable"))
		return s.defaultPassword
	}
	var sealed string
	if raw, ok := payload[models.PayloadCredentialKey]; !ok || json.Unmarshal(raw, &sealed) != nil || sealed == "" {
		s.logger.Warn("intake using default credential", zap.String("application_id", app.ID), zap.String("reason", "no stored credential"))
		return s.defaultPassword
	}
	password, err := crypto.Open(s.cipher, sealed)
	if err != nil || password == "" {
		s.logger.Warn("intake using default credential", zap.String("application_id", app.ID), zap.String("reason", "credential decryption failed"), zap.Error(err))
		return s.defaultPassword
	}
	return password
}

func pendingIntake(app *models.Application) error {
	switch {
	case app.CandidateType != models.CandidateExternal:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("application %s is not an EXTERNAL application", app.ReferenceNumber))
	case app.ApplicantID != nil:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("application %s is already linked to an applicant", app.ReferenceNumber))
	case app.Status != models.StatusSubmitted:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("application %s is %s; intake requires SUBMITTED", app.ReferenceNumber, app.Status))
	}
	return nil
}
