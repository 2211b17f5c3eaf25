package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/export"
	"github.com/noah-isme/phd-admission-api/pkg/jobs"
	"github.com/noah-isme/phd-admission-api/pkg/storage"
)

// TaskKindCertificate identifies certificate issuance tasks on the job queue.
const TaskKindCertificate = "certificate"

type certificateStore interface {
	GetCertificate(ctx context.Context, applicationID string) (*models.AllocationCertificate, error)
	HasCertificate(ctx context.Context, applicationID string) (bool, error)
	GetAllocation(ctx context.Context, applicationID string) (*models.GuideAllocation, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type certificateRenderer interface {
	RenderCertificate(doc export.CertificateDocument) ([]byte, error)
}

type artifactStore interface {
	Save(key string, data []byte) (string, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type locatorSigner interface {
	Sign(subjectID, key string) (string, time.Time, error)
	Verify(token string) (*storage.Locator, error)
}

type taskEnqueuer interface {
	Enqueue(task jobs.Task) error
}

// CertificateService issues guide allocation certificates once per application.
type CertificateService struct {
	engine   *Engine
	apps     applicationReader
	records  certificateStore
	users    userLookup
	renderer certificateRenderer
	files    artifactStore
	signer   locatorSigner
	queue    taskEnqueuer
	prefix   string
	logger   *zap.Logger
	now      func() time.Time
}

// CertificateServiceConfig carries the numbering prefix.
type CertificateServiceConfig struct {
	Prefix string
}

// NewCertificateService constructs the service. The queue is attached later with UseQueue
// because the queue handler itself points back at the service.
func NewCertificateService(engine *Engine, apps applicationReader, records certificateStore, users userLookup, renderer certificateRenderer, files artifactStore, signer locatorSigner, cfg CertificateServiceConfig, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "GAC"
	}
	return &CertificateService{
		engine:   engine,
		apps:     apps,
		records:  records,
		users:    users,
		renderer: renderer,
		files:    files,
		signer:   signer,
		prefix:   cfg.Prefix,
		logger:   logger,
		now:      time.Now,
	}
}

// UseQueue attaches the queue that Dispatch enqueues onto.
func (s *CertificateService) UseQueue(queue taskEnqueuer) {
	s.queue = queue
}

// Issue renders, stores and records the certificate of a GUIDE_ALLOCATED application.
func (s *CertificateService) Issue(ctx context.Context, applicationID string, actor Actor) (*models.CertificateView, error) {
	rule, _ := RuleFor(ActionIssueCertificate)
	if err := rule.Permits(actor, ""); err != nil {
		return nil, err
	}
	issued, err := s.records.HasCertificate(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check certificate")
	}
	if issued {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate already issued for this application")
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if err := Guard(app, actor, ActionIssueCertificate, ""); err != nil {
		return nil, err
	}

	number, err := s.certificateNumber()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to generate certificate number")
	}
	issuedAt := s.now().UTC()
	pdf, err := s.renderer.RenderCertificate(export.CertificateDocument{
		CertificateNumber: number,
		ReferenceNumber:   app.ReferenceNumber,
		CandidateName:     s.candidateName(ctx, app),
		GuideName:         s.guideName(ctx, applicationID),
		IssuedAt:          issuedAt,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render certificate")
	}
	key, err := s.files.Save(fmt.Sprintf("%s/%s.pdf", applicationID, number), pdf)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store certificate")
	}

	certificate := &models.AllocationCertificate{
		ApplicationID:     applicationID,
		CertificateNumber: number,
		IssuedBy:          actor.ID,
		FileURL:           key,
		CreatedAt:         issuedAt,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        ActionIssueCertificate,
		ApplicationID: applicationID,
		Actor:         actor,
		Note:          "Guide Allocation Certificate Issued: " + number,
		Records:       []interface{}{certificate},
	}); err != nil {
		if delErr := s.files.Delete(key); delErr != nil {
			s.logger.Warn("failed to remove orphaned certificate", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}
	return s.view(certificate)
}

// Get returns the certificate with a fresh download token to the owner, the guide or staff.
func (s *CertificateService) Get(ctx context.Context, applicationID string, actor Actor) (*models.CertificateView, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if !canRead(app, actor) {
		allocation, err := s.records.GetAllocation(ctx, applicationID)
		if err != nil || allocation.GuideFacultyID != actor.ID {
			return nil, appErrors.ErrForbidden
		}
	}
	certificate, err := s.records.GetCertificate(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not issued")
		}
		return nil, appErrors.Internal(err, "failed to load certificate")
	}
	return s.view(certificate)
}

// Open resolves a signed download token to the stored PDF. The caller closes the reader.
func (s *CertificateService) Open(token string) (io.ReadCloser, string, error) {
	locator, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrExpiredLocator) {
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := s.files.Open(locator.Key)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate file not found")
	}
	return file, locator.SubjectID + ".pdf", nil
}

// Dispatch schedules issuance after an allocation. Failures are logged and never returned.
func (s *CertificateService) Dispatch(applicationID string, actor Actor) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Task{
		ID:      uuid.NewString(),
		Kind:    TaskKindCertificate,
		Subject: applicationID,
		Actor:   actor.ID,
		Role:    string(actor.Role),
	})
	if err != nil {
		s.logger.Warn("certificate issuance not scheduled",
			zap.String("application_id", applicationID),
			zap.Error(err),
		)
	}
}

// HandleTask is the job queue handler for certificate tasks. Precondition failures are final.
func (s *CertificateService) HandleTask(ctx context.Context, task jobs.Task) error {
	if task.Kind != TaskKindCertificate {
		return nil
	}
	actor := Actor{ID: task.Actor, Role: models.UserRole(task.Role)}
	certificate, err := s.Issue(ctx, task.Subject, actor)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrPreconditionFailed) || appErrors.Is(err, appErrors.ErrForbidden) {
			s.logger.Info("certificate issuance skipped", zap.String("application_id", task.Subject), zap.Error(err))
			return nil
		}
		return err
	}
	s.logger.Info("certificate issued",
		zap.String("application_id", task.Subject),
		zap.String("certificate_number", certificate.CertificateNumber),
	)
	return nil
}

func (s *CertificateService) view(certificate *models.AllocationCertificate) (*models.CertificateView, error) {
	view := &models.CertificateView{AllocationCertificate: *certificate}
	if s.signer == nil {
		return view, nil
	}
	token, expiresAt, err := s.signer.Sign(certificate.ApplicationID, certificate.FileURL)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign certificate locator")
	}
	view.DownloadToken = token
	view.ExpiresAt = expiresAt
	return view, nil
}

// certificateNumber is prefix-year-NNNN. Collisions are possible and caught by the unique index.
func (s *CertificateService) certificateNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%d", s.prefix, s.now().UTC().Year(), 1000+n.Int64()), nil
}

func (s *CertificateService) candidateName(ctx context.Context, app *models.Application) string {
	if app.ApplicantID != nil && s.users != nil {
		if user, err := s.users.FindByID(ctx, *app.ApplicantID); err == nil && user.FullName != "" {
			return user.FullName
		}
	}
	var snapshot models.ExternalSnapshot
	if app.ExternalSnapshot.Valid && json.Unmarshal(app.ExternalSnapshot.JSONText, &snapshot) == nil && snapshot.FullName != "" {
		return snapshot.FullName
	}
	return app.ReferenceNumber
}

func (s *CertificateService) guideName(ctx context.Context, applicationID string) string {
	allocation, err := s.records.GetAllocation(ctx, applicationID)
	if err != nil {
		return ""
	}
	if s.users != nil {
		if guide, err := s.users.FindByID(ctx, allocation.GuideFacultyID); err == nil {
			return guide.FullName
		}
	}
	return allocation.GuideFacultyID
}
