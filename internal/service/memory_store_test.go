package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
)

// memoryStore mirrors the repository semantics the services rely on: a conditional status
// update, side records validated before anything is written, and an append-only history.
type memoryStore struct {
	mu    sync.Mutex
	clock time.Time

	apps    map[string]*models.Application
	history []models.StatusHistoryEntry
	users   map[string]*models.User

	scrutiny      []models.ScrutinyReview
	interviews    map[string]*models.Interview
	evaluations   map[string]models.InterviewEvaluation
	documents     []models.DocumentVerification
	payments      []*models.FeePayment
	allocations   map[string]*models.GuideAllocation
	acceptances   map[string]*models.GuideAcceptance
	verifications map[string]*models.GuideVerification
	exemptions    map[string]*models.PetExemption
	certificates  map[string]*models.AllocationCertificate

	applyCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		clock:         time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		apps:          map[string]*models.Application{},
		users:         map[string]*models.User{},
		interviews:    map[string]*models.Interview{},
		evaluations:   map[string]models.InterviewEvaluation{},
		allocations:   map[string]*models.GuideAllocation{},
		acceptances:   map[string]*models.GuideAcceptance{},
		verifications: map[string]*models.GuideVerification{},
		exemptions:    map[string]*models.PetExemption{},
		certificates:  map[string]*models.AllocationCertificate{},
	}
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// seed stores an application directly, bypassing submission.
func (m *memoryStore) seed(app models.Application) *models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.ReferenceNumber == "" {
		app.ReferenceNumber = "PET-2026-" + strings.ToUpper(app.ID[:6])
	}
	if app.CandidateType == "" {
		app.CandidateType = models.CandidateInternal
	}
	if len(app.Payload) == 0 {
		app.Payload = []byte(`{}`)
	}
	now := m.tick()
	app.CreatedAt, app.UpdatedAt = now, now
	stored := app
	m.apps[app.ID] = &stored
	return &app
}

func (m *memoryStore) addUser(user models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Active = true
	m.users[user.ID] = &user
	return &user
}

func (m *memoryStore) historyOf(applicationID string) []models.StatusHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StatusHistoryEntry
	for _, entry := range m.history {
		if entry.ApplicationID == applicationID {
			out = append(out, entry)
		}
	}
	return out
}

func (m *memoryStore) status(applicationID string) models.ApplicationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apps[applicationID].Status
}

// application store

func (m *memoryStore) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.apps {
		if existing.ReferenceNumber == app.ReferenceNumber {
			return repository.ErrDuplicateReference
		}
		if app.ApplicantID != nil && existing.IsOwnedBy(*app.ApplicantID) && existing.DeletedAt == nil &&
			(existing.Status == models.StatusSubmitted || existing.Status == models.StatusUnderScrutiny) {
			return repository.ErrActiveApplicationExists
		}
	}
	app.ID = uuid.NewString()
	now := m.tick()
	app.CreatedAt, app.UpdatedAt = now, now
	stored := *app
	m.apps[app.ID] = &stored
	entry.ApplicationID = app.ID
	entry.CreatedAt = now
	m.history = append(m.history, *entry)
	return nil
}

func (m *memoryStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (m *memoryStore) GetByReference(ctx context.Context, reference string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if app.ReferenceNumber == reference && app.DeletedAt == nil {
			copied := *app
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStore) ListByApplicant(ctx context.Context, applicantID string) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Application
	for _, app := range m.apps {
		if app.IsOwnedBy(applicantID) && app.DeletedAt == nil {
			out = append(out, *app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) HasActiveApplication(ctx context.Context, applicantID string, statuses []models.ApplicationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if app.IsOwnedBy(applicantID) && app.DeletedAt == nil && containsStatus(statuses, app.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Application
	for _, app := range m.apps {
		if app.DeletedAt != nil {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, app.Status) {
			continue
		}
		if filter.CandidateType != "" && app.CandidateType != filter.CandidateType {
			continue
		}
		all = append(all, *app)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(all) {
		return nil, len(all), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memoryStore) ListQueue(ctx context.Context, q repository.QueueQuery) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, app := range m.apps {
		if app.DeletedAt != nil || !containsStatus(q.Statuses, app.Status) {
			continue
		}
		if q.CandidateType != "" && app.CandidateType != q.CandidateType {
			continue
		}
		if q.Unlinked && app.ApplicantID != nil {
			continue
		}
		entry := models.QueueEntry{Application: *app}
		for _, exemption := range m.exemptions {
			if exemption.ApplicationID == app.ID {
				status := exemption.Status
				entry.ExemptionStatus = &status
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Order == repository.OrderByCreated {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memoryStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.DeletedAt != nil {
		return sql.ErrNoRows
	}
	now := m.tick()
	app.DeletedAt = &now
	return nil
}

func (m *memoryStore) ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	return m.historyOf(applicationID), nil
}

func (m *memoryStore) ApplyTransition(ctx context.Context, t repository.Transition) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++

	app, ok := m.apps[t.ApplicationID]
	if !ok || app.DeletedAt != nil || !containsStatus(t.From, app.Status) {
		return nil, sql.ErrNoRows
	}
	if t.Intake != nil && (app.CandidateType != models.CandidateExternal || app.ApplicantID != nil) {
		return nil, sql.ErrNoRows
	}

	now := m.tick()
	writes := make([]func(), 0, len(t.Records))
	for _, record := range t.Records {
		write, err := m.stage(record, now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write)
	}
	for _, write := range writes {
		write()
	}

	switch {
	case t.Intake != nil:
		applicantID := t.Intake.ApplicantID
		app.ApplicantID = &applicantID
		app.CandidateType = models.CandidateInternal
		app.Payload = t.Intake.Payload
		app.UpdatedAt = now
	case t.To != "":
		app.Status = t.To
		app.UpdatedAt = now
	}
	if !t.SkipHistory {
		status := t.LogStatus
		if status == "" {
			status = app.Status
		}
		m.history = append(m.history, models.StatusHistoryEntry{
			ID:            uuid.NewString(),
			ApplicationID: t.ApplicationID,
			NewStatus:     status,
			ChangedBy:     t.ChangedBy,
			Remarks:       t.Remarks,
			CreatedAt:     now,
		})
	}
	copied := *app
	return &copied, nil
}

// stage validates one side record against the stored state and returns its write.
func (m *memoryStore) stage(record interface{}, now time.Time) (func(), error) {
	switch rec := record.(type) {
	case *models.ScrutinyReview:
		for _, review := range m.scrutiny {
			if review.ApplicationID == rec.ApplicationID {
				return nil, repository.ErrDuplicate
			}
		}
		return func() { rec.ID = uuid.NewString(); m.scrutiny = append(m.scrutiny, *rec) }, nil
	case *models.Interview:
		for _, interview := range m.interviews {
			if interview.ApplicationID == rec.ApplicationID {
				return nil, repository.ErrDuplicate
			}
		}
		return func() { rec.ID = uuid.NewString(); rec.CreatedAt = now; stored := *rec; m.interviews[rec.ID] = &stored }, nil
	case *models.InterviewEvaluation:
		if _, ok := m.evaluations[rec.InterviewID]; ok {
			return nil, repository.ErrDuplicate
		}
		return func() { rec.ID = uuid.NewString(); m.evaluations[rec.InterviewID] = *rec }, nil
	case *models.DocumentVerification:
		for _, doc := range m.documents {
			if doc.ApplicationID == rec.ApplicationID {
				return nil, repository.ErrDuplicate
			}
		}
		return func() { m.documents = append(m.documents, *rec) }, nil
	case *models.FeePayment:
		if rec.PaymentStatus != models.PaymentPending {
			for _, payment := range m.payments {
				if payment.ApplicationID == rec.ApplicationID && payment.PaymentStatus != models.PaymentPending {
					return nil, repository.ErrDuplicate
				}
			}
		}
		return func() {
			rec.ID = uuid.NewString()
			rec.CreatedAt, rec.UpdatedAt = now, now
			stored := *rec
			m.payments = append(m.payments, &stored)
		}, nil
	case *models.FeeConfirmation:
		for _, payment := range m.payments {
			if payment.ID == rec.PaymentID && payment.ApplicationID == rec.ApplicationID && payment.PaymentStatus == models.PaymentPending {
				target := payment
				return func() {
					target.PaymentStatus = models.PaymentSuccess
					reference := rec.TransactionReference
					target.TransactionReference = &reference
				}, nil
			}
		}
		return nil, fmt.Errorf("confirm fee payment: %w", repository.ErrStaleRecord)
	case *models.FeeVerification:
		var targets []*models.FeePayment
		for _, payment := range m.payments {
			settled := payment.PaymentStatus == models.PaymentSuccess || payment.PaymentStatus == models.PaymentPaid
			if payment.ApplicationID == rec.ApplicationID && settled && payment.VerificationStatus == nil {
				targets = append(targets, payment)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("verify fee payment: %w", repository.ErrStaleRecord)
		}
		return func() {
			for _, payment := range targets {
				status, by := rec.Status, rec.VerifiedBy
				payment.VerificationStatus = &status
				payment.VerifiedBy = &by
			}
		}, nil
	case *models.GuideAllocation:
		if _, ok := m.allocations[rec.ApplicationID]; ok {
			return nil, repository.ErrDuplicate
		}
		return func() { rec.ID = uuid.NewString(); rec.CreatedAt = now; stored := *rec; m.allocations[rec.ApplicationID] = &stored }, nil
	case *models.GuideAcceptance:
		return func() {
			stored := *rec
			stored.StudentAcceptedAt = &now
			m.acceptances[rec.ApplicationID] = &stored
		}, nil
	case *models.GuideDecision:
		acceptance, ok := m.acceptances[rec.ApplicationID]
		if !ok || !acceptance.StudentAcceptance || acceptance.GuideAcceptance != nil {
			return nil, fmt.Errorf("record guide decision: %w", repository.ErrStaleRecord)
		}
		return func() {
			accept, remarks := rec.Accept, rec.Remarks
			acceptance.GuideAcceptance = &accept
			acceptance.GuideAcceptedAt = &now
			acceptance.Remarks = &remarks
		}, nil
	case *models.GuideVerification:
		if _, ok := m.verifications[rec.ApplicationID]; ok {
			return nil, repository.ErrDuplicate
		}
		return func() { rec.ID = uuid.NewString(); stored := *rec; m.verifications[rec.ApplicationID] = &stored }, nil
	case *models.PetExemption:
		for _, exemption := range m.exemptions {
			if exemption.ApplicationID == rec.ApplicationID {
				return nil, repository.ErrDuplicate
			}
		}
		return func() { rec.ID = uuid.NewString(); rec.CreatedAt = now; stored := *rec; m.exemptions[rec.ID] = &stored }, nil
	case *models.ExemptionReview:
		exemption, ok := m.exemptions[rec.ExemptionID]
		if !ok || exemption.Status != models.ExemptionPending {
			return nil, fmt.Errorf("review pet exemption: %w", repository.ErrStaleRecord)
		}
		return func() {
			exemption.Status = models.ExemptionRejected
			if rec.Approve {
				exemption.Status = models.ExemptionApproved
			}
			reviewer, remarks := rec.ReviewedBy, rec.Remarks
			exemption.ReviewedBy = &reviewer
			exemption.ReviewRemarks = &remarks
		}, nil
	case *models.AllocationCertificate:
		if _, ok := m.certificates[rec.ApplicationID]; ok {
			return nil, repository.ErrDuplicate
		}
		return func() { rec.ID = uuid.NewString(); stored := *rec; m.certificates[rec.ApplicationID] = &stored }, nil
	case *models.User:
		for _, user := range m.users {
			if strings.EqualFold(user.Email, rec.Email) {
				return nil, repository.ErrDuplicate
			}
		}
		return func() { stored := *rec; m.users[rec.ID] = &stored }, nil
	default:
		return nil, fmt.Errorf("unsupported side record %T", record)
	}
}

// stage reads

func (m *memoryStore) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interview, ok := m.interviews[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *interview
	return &copied, nil
}

func (m *memoryStore) HasEvaluation(ctx context.Context, interviewID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.evaluations[interviewID]
	return ok, nil
}

func (m *memoryStore) ListPayments(ctx context.Context, applicationID string) ([]models.FeePayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FeePayment
	for _, payment := range m.payments {
		if payment.ApplicationID == applicationID {
			out = append(out, *payment)
		}
	}
	return out, nil
}

func (m *memoryStore) GetAllocation(ctx context.Context, applicationID string) (*models.GuideAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allocation, ok := m.allocations[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *allocation
	return &copied, nil
}

func (m *memoryStore) GetAcceptance(ctx context.Context, applicationID string) (*models.GuideAcceptance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acceptance, ok := m.acceptances[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *acceptance
	return &copied, nil
}

func (m *memoryStore) HasGuideVerification(ctx context.Context, applicationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.verifications[applicationID]
	return ok, nil
}

func (m *memoryStore) ListScholars(ctx context.Context, guideID string, statuses []models.ApplicationStatus, unverified bool) ([]models.GuideScholar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GuideScholar
	for appID, allocation := range m.allocations {
		app := m.apps[appID]
		if allocation.GuideFacultyID != guideID || !containsStatus(statuses, app.Status) {
			continue
		}
		if _, verified := m.verifications[appID]; unverified && verified {
			continue
		}
		out = append(out, models.GuideScholar{
			ApplicationID:   appID,
			ReferenceNumber: app.ReferenceNumber,
			ApplicantID:     app.ApplicantID,
			Status:          app.Status,
			AllocatedAt:     allocation.CreatedAt,
		})
	}
	return out, nil
}

func (m *memoryStore) GetExemption(ctx context.Context, id string) (*models.PetExemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exemption, ok := m.exemptions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *exemption
	return &copied, nil
}

func (m *memoryStore) HasExemption(ctx context.Context, applicationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exemption := range m.exemptions {
		if exemption.ApplicationID == applicationID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ListPendingExemptions(ctx context.Context) ([]models.PetExemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PetExemption
	for _, exemption := range m.exemptions {
		if exemption.Status == models.ExemptionPending {
			out = append(out, *exemption)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) GetCertificate(ctx context.Context, applicationID string) (*models.AllocationCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	certificate, ok := m.certificates[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *certificate
	return &copied, nil
}

func (m *memoryStore) HasCertificate(ctx context.Context, applicationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.certificates[applicationID]
	return ok, nil
}

// users

func (m *memoryStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *memoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStore) ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.Guide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Guide
	for _, user := range m.users {
		if user.Role == role && user.Active {
			out = append(out, models.Guide{ID: user.ID, FullName: user.FullName, Email: user.Email})
		}
	}
	return out, nil
}

func containsStatus(statuses []models.ApplicationStatus, status models.ApplicationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
