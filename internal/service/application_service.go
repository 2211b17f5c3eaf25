package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
	"github.com/noah-isme/phd-admission-api/pkg/config"
	"github.com/noah-isme/phd-admission-api/pkg/crypto"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/export"
)

const referenceAttempts = 3

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByReference(ctx context.Context, reference string) (*models.Application, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]models.Application, error)
	HasActiveApplication(ctx context.Context, applicantID string, statuses []models.ApplicationStatus) (bool, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	SoftDelete(ctx context.Context, id string) error
}

type historyReader interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ApplicationServiceConfig carries identifiers used at submission.
type ApplicationServiceConfig struct {
	ReferencePrefix  string
	AnonymousActorID string
}

// ApplicationService handles submission and the read side of applications.
type ApplicationService struct {
	apps      applicationStore
	history   historyReader
	cipher    crypto.Cipher
	csv       tableRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ApplicationServiceConfig
	now       func() time.Time
}

// NewApplicationService constructs the service.
func NewApplicationService(apps applicationStore, history historyReader, cipher crypto.Cipher, csv tableRenderer, validate *validator.Validate, logger *zap.Logger, cfg ApplicationServiceConfig) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "PET"
	}
	if cfg.AnonymousActorID == "" {
		cfg.AnonymousActorID = config.AnonymousActorID
	}
	return &ApplicationService{
		apps:      apps,
		history:   history,
		cipher:    cipher,
		csv:       csv,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create submits a new application. actor is nil for unauthenticated EXTERNAL submissions.
func (s *ApplicationService) Create(ctx context.Context, req dto.CreateApplicationRequest, actor *Actor) (*dto.CreateApplicationResponse, error) {
	req.CandidateType = models.CandidateType(strings.ToUpper(strings.TrimSpace(string(req.CandidateType))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(req.Payload, &payload); err != nil || payload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be a JSON object")
	}
	delete(payload, models.PayloadCredentialKey)

	app := &models.Application{
		CandidateType: req.CandidateType,
		Status:        models.StatusSubmitted,
	}
	changedBy := s.cfg.AnonymousActorID

	switch req.CandidateType {
	case models.CandidateInternal:
		if actor == nil || strings.TrimSpace(actor.ID) == "" {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication is required for INTERNAL applications")
		}
		active, err := s.apps.HasActiveApplication(ctx, actor.ID, models.ActiveStatuses)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check active applications")
		}
		if active {
			return nil, appErrors.ErrDuplicateApplication
		}
		applicantID := actor.ID
		app.ApplicantID = &applicantID
		changedBy = actor.ID
	case models.CandidateExternal:
		if missing := missingExternalFields(req); len(missing) > 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s required for EXTERNAL applications", strings.Join(missing, ", ")))
		}
		if req.Password != "" {
			sealed, err := crypto.Seal(s.cipher, req.Password)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to protect applicant credential")
			}
			encoded, _ := json.Marshal(sealed)
			payload[models.PayloadCredentialKey] = encoded
		}
		snapshot, err := json.Marshal(models.ExternalSnapshot{
			Email:            strings.ToLower(strings.TrimSpace(req.Email)),
			Mobile:           strings.TrimSpace(req.Mobile),
			IdentityDocument: strings.TrimSpace(req.IdentityDocument),
			FullName:         strings.TrimSpace(req.FullName),
		})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to encode external snapshot")
		}
		app.ExternalSnapshot = types.NullJSONText{JSONText: snapshot, Valid: true}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode payload")
	}
	app.Payload = types.JSONText(body)

	for attempt := 1; ; attempt++ {
		app.ID = ""
		app.ReferenceNumber = s.referenceNumber()
		entry := &models.StatusHistoryEntry{
			NewStatus: models.StatusSubmitted,
			ChangedBy: changedBy,
			Remarks:   fmt.Sprintf("Application submitted (%s)", app.CandidateType),
		}
		err = s.apps.Create(ctx, app, entry)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrActiveApplicationExists) {
			return nil, appErrors.ErrDuplicateApplication
		}
		if !errors.Is(err, repository.ErrDuplicateReference) || attempt == referenceAttempts {
			return nil, appErrors.Internal(err, "failed to create application")
		}
		s.logger.Warn("reference number collision, retrying", zap.String("reference", app.ReferenceNumber), zap.Int("attempt", attempt))
	}

	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("reference", app.ReferenceNumber),
		zap.String("candidate_type", string(app.CandidateType)),
	)
	return &dto.CreateApplicationResponse{ID: app.ID, ReferenceNumber: app.ReferenceNumber, Status: app.Status}, nil
}

// StatusByReference is the unauthenticated lookup; it never exposes the payload.
func (s *ApplicationService) StatusByReference(ctx context.Context, reference string) (*models.ApplicationStatusView, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reference number is required")
	}
	app, err := s.apps.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	return &models.ApplicationStatusView{
		ID:              app.ID,
		ReferenceNumber: app.ReferenceNumber,
		Status:          app.Status,
		SubmissionDate:  app.CreatedAt,
		CandidateType:   app.CandidateType,
	}, nil
}

// Get returns an application to its owner or to staff.
func (s *ApplicationService) Get(ctx context.Context, id string, actor Actor) (*models.Application, error) {
	app, err := loadReadable(ctx, s.apps, id, actor)
	if err != nil {
		return nil, err
	}
	app.RedactCredentials()
	return app, nil
}

// ListMine returns the actor's own applications.
func (s *ApplicationService) ListMine(ctx context.Context, actor Actor) ([]models.Application, error) {
	apps, err := s.apps.ListByApplicant(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applications")
	}
	for i := range apps {
		apps[i].RedactCredentials()
	}
	return apps, nil
}

// List returns a filtered page for staff.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationListQuery) ([]models.Application, *models.Pagination, error) {
	filter, err := buildFilter(query)
	if err != nil {
		return nil, nil, err
	}
	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applications")
	}
	for i := range apps {
		apps[i].RedactCredentials()
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Timeline returns the current status with the ordered history.
func (s *ApplicationService) Timeline(ctx context.Context, id string, actor Actor) (*models.Timeline, error) {
	app, err := loadReadable(ctx, s.apps, id, actor)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load status history")
	}
	if entries == nil {
		entries = []models.StatusHistoryEntry{}
	}
	return &models.Timeline{
		ApplicationID:   app.ID,
		ReferenceNumber: app.ReferenceNumber,
		CurrentStatus:   app.Status,
		History:         entries,
	}, nil
}

// Delete tombstones an application. History and side records stay for audit.
func (s *ApplicationService) Delete(ctx context.Context, id string, actor Actor) error {
	if !hasRole(adminRoles, actor.Role) {
		return appErrors.ErrForbidden
	}
	if err := s.apps.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Internal(err, "failed to delete application")
	}
	s.logger.Info("application deleted", zap.String("application_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// Export renders the filtered listing as CSV. Paging is ignored.
func (s *ApplicationService) Export(ctx context.Context, query dto.ApplicationListQuery) ([]byte, error) {
	filter, err := buildFilter(query)
	if err != nil {
		return nil, err
	}
	filter.Page = 1
	filter.PageSize = 200

	table := export.Table{Headers: []string{"reference_number", "candidate_type", "status", "applicant_id", "created_at", "updated_at"}}
	for {
		apps, total, err := s.apps.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list applications")
		}
		for _, app := range apps {
			applicant := ""
			if app.ApplicantID != nil {
				applicant = *app.ApplicantID
			}
			table.Rows = append(table.Rows, []string{
				app.ReferenceNumber,
				string(app.CandidateType),
				string(app.Status),
				applicant,
				app.CreatedAt.UTC().Format(time.RFC3339),
				app.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(apps) == 0 || filter.Page*filter.PageSize >= total {
			break
		}
		filter.Page++
	}

	out, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return out, nil
}

func (s *ApplicationService) referenceNumber() string {
	now := s.now().UTC()
	return fmt.Sprintf("%s-%d-%s", s.cfg.ReferencePrefix, now.Year(), strings.ToUpper(strconv.FormatInt(now.UnixMicro(), 36)))
}

func loadReadable(ctx context.Context, apps applicationReader, id string, actor Actor) (*models.Application, error) {
	app, err := apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if !canRead(app, actor) {
		return nil, appErrors.ErrForbidden
	}
	return app, nil
}

func canRead(app *models.Application, actor Actor) bool {
	return actor.Role.IsStaff() || app.IsOwnedBy(actor.ID)
}

func missingExternalFields(req dto.CreateApplicationRequest) []string {
	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(req.Mobile) == "" {
		missing = append(missing, "mobile")
	}
	if strings.TrimSpace(req.IdentityDocument) == "" {
		missing = append(missing, "identityDocument")
	}
	return missing
}

func buildFilter(query dto.ApplicationListQuery) (models.ApplicationFilter, error) {
	filter := models.ApplicationFilter{
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := models.ParseApplicationStatus(part)
			if err != nil {
				return filter, appErrors.Clone(appErrors.ErrValidation, err.Error())
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if query.CandidateType != "" {
		candidate := models.CandidateType(strings.ToUpper(strings.TrimSpace(query.CandidateType)))
		if candidate != models.CandidateInternal && candidate != models.CandidateExternal {
			return filter, appErrors.Clone(appErrors.ErrValidation, "candidateType must be INTERNAL or EXTERNAL")
		}
		filter.CandidateType = candidate
	}
	return filter, nil
}
