package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/pkg/config"
	"github.com/noah-isme/phd-admission-api/pkg/crypto"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/export"
	"github.com/noah-isme/phd-admission-api/pkg/jobs"
	"github.com/noah-isme/phd-admission-api/pkg/storage"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDispatcher) Dispatch(applicationID string, actor Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, applicationID)
}

type admissionFixture struct {
	store        *memoryStore
	metrics      *countingMetrics
	cipher       crypto.Cipher
	dispatcher   *recordingDispatcher
	applications *ApplicationService
	intake       *IntakeService
	scrutiny     *ScrutinyService
	interviews   *InterviewService
	documents    *DocumentService
	fees         *FeeService
	guides       *GuideService
	exemptions   *ExemptionService
	certificates *CertificateService
	queues       *QueueService
	guide        *models.User
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	store := newMemoryStore()
	metrics := &countingMetrics{}
	cipher, err := crypto.NewCredentialCipher("intake-secret")
	require.NoError(t, err)
	validate := validator.New()
	engine := NewEngine(store, metrics, zap.NewNop())
	users := newTestUserService(store)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	dispatcher := &recordingDispatcher{}

	return &admissionFixture{
		store:        store,
		metrics:      metrics,
		cipher:       cipher,
		dispatcher:   dispatcher,
		applications: NewApplicationService(store, store, cipher, nil, validate, zap.NewNop(), ApplicationServiceConfig{}),
		intake:       NewIntakeService(engine, store, users, cipher, "Default#2026", zap.NewNop()),
		scrutiny:     NewScrutinyService(engine, validate),
		interviews:   NewInterviewService(engine, store, validate),
		documents:    NewDocumentService(engine, validate),
		fees:         NewFeeService(engine, store, store, validate),
		guides:       NewGuideService(engine, store, store, users, dispatcher, validate, zap.NewNop()),
		exemptions:   NewExemptionService(engine, store, validate),
		certificates: NewCertificateService(engine, store, store, store, export.NewPDFExporter("Graduate School"), files,
			storage.NewSignedURLSigner("download-secret", time.Minute), CertificateServiceConfig{}, zap.NewNop()),
		queues: NewQueueService(store),
		guide:  store.addUser(models.User{Email: "guide@example.com", FullName: "Dr. Meera Rao", Role: models.RoleFaculty}),
	}
}

// advance drives a seeded application to the target status through the real services.
func (f *admissionFixture) advance(t *testing.T, app *models.Application, target models.ApplicationStatus) {
	t.Helper()
	ctx := context.Background()
	owner := ownerOf(app)
	steps := []struct {
		status models.ApplicationStatus
		run    func() error
	}{
		{models.StatusScrutinyApproved, func() error {
			_, err := f.scrutiny.Decide(ctx, app.ID, dto.ScrutinyDecisionRequest{Decision: "approve", Remarks: "ok"}, drcActor)
			return err
		}},
		{models.StatusInterviewScheduled, func() error {
			_, err := f.interviews.Schedule(ctx, app.ID, dto.ScheduleInterviewRequest{
				InterviewDate: time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
				InterviewMode: "ONLINE",
				PanelMembers:  []string{"Prof. Iyer", "Prof. Das"},
			}, drcActor)
			return err
		}},
		{models.StatusInterviewPassed, func() error {
			interviewID := f.interviewOf(app.ID)
			_, err := f.interviews.Evaluate(ctx, interviewID, dto.EvaluateInterviewRequest{Decision: "PASS", EvaluationScore: 80}, drcActor)
			return err
		}},
		{models.StatusDocumentsVerified, func() error {
			_, err := f.documents.Verify(ctx, app.ID, dto.DocumentVerificationRequest{VerificationStatus: "VERIFIED"}, drcActor)
			return err
		}},
		{models.StatusFeePaid, func() error {
			_, err := f.fees.Record(ctx, app.ID, dto.RecordFeeRequest{Amount: 1000, PaymentMode: "OFFLINE"}, owner)
			return err
		}},
		{models.StatusFeeVerified, func() error {
			_, err := f.fees.Verify(ctx, app.ID, "", drcActor)
			return err
		}},
		{models.StatusGuideAllocated, func() error {
			_, err := f.guides.Allocate(ctx, app.ID, dto.AllocateGuideRequest{GuideFacultyID: f.guide.ID}, drcActor)
			return err
		}},
		{models.StatusGuideAcceptedByStudent, func() error {
			_, err := f.guides.StudentAccept(ctx, app.ID, owner)
			return err
		}},
		{models.StatusAdmissionConfirmed, func() error {
			_, err := f.guides.Decide(ctx, app.ID, dto.GuideDecisionRequest{Decision: "ACCEPT"}, f.guideActor())
			return err
		}},
	}
	for _, step := range steps {
		if f.store.status(app.ID) == target {
			return
		}
		require.NoError(t, step.run(), "advancing to %s", step.status)
		require.Equal(t, step.status, f.store.status(app.ID))
	}
	require.Equal(t, target, f.store.status(app.ID))
}

func (f *admissionFixture) interviewOf(applicationID string) string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for id, interview := range f.store.interviews {
		if interview.ApplicationID == applicationID {
			return id
		}
	}
	return ""
}

func (f *admissionFixture) guideActor() Actor {
	return Actor{ID: f.guide.ID, Role: models.RoleFaculty}
}

func (f *admissionFixture) seedInternal(status models.ApplicationStatus) *models.Application {
	return f.store.seed(models.Application{Status: status, ApplicantID: strPtr("student-" + string(status))})
}

func TestAdmissionHappyPath(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	student := Actor{ID: "student-1", Role: models.RoleApplicant}

	created, err := f.applications.Create(ctx, dto.CreateApplicationRequest{
		CandidateType: "internal",
		Payload:       json.RawMessage(`{"department":"Physics","research_area":"Condensed matter"}`),
	}, &student)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, created.Status)
	assert.Regexp(t, `^PET-\d{4}-[0-9A-Z]+$`, created.ReferenceNumber)

	app, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	f.advance(t, app, models.StatusAdmissionConfirmed)

	// Submission plus one entry per gate, ten in all; starting scrutiny is optional and was skipped.
	want := []models.ApplicationStatus{
		models.StatusSubmitted,
		models.StatusScrutinyApproved,
		models.StatusInterviewScheduled,
		models.StatusInterviewPassed,
		models.StatusDocumentsVerified,
		models.StatusFeePaid,
		models.StatusFeeVerified,
		models.StatusGuideAllocated,
		models.StatusGuideAcceptedByStudent,
		models.StatusAdmissionConfirmed,
	}
	timeline, err := f.applications.Timeline(ctx, created.ID, student)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAdmissionConfirmed, timeline.CurrentStatus)
	require.Len(t, timeline.History, len(want))
	for i, entry := range timeline.History {
		assert.Equal(t, want[i], entry.NewStatus, "entry %d", i)
		if i > 0 {
			assert.False(t, entry.CreatedAt.Before(timeline.History[i-1].CreatedAt))
		}
	}
	assert.Equal(t, []string{created.ID}, f.dispatcher.calls)
	assert.Equal(t, len(want)-1, f.metrics.count(outcomeApplied))

	fee, err := f.fees.Info(ctx, created.ID, student)
	require.NoError(t, err)
	require.Len(t, fee.Payments, 1)
	assert.Equal(t, 1000.0, fee.Payments[0].Amount)
	assert.Equal(t, "OFFLINE", fee.Payments[0].PaymentMode)

	_, err = f.applications.Create(ctx, dto.CreateApplicationRequest{CandidateType: "INTERNAL", Payload: json.RawMessage(`{}`)}, &student)
	assert.NoError(t, err, "a confirmed admission does not block a new application")
}

func TestSecondActiveInternalApplicationRejected(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	student := Actor{ID: "student-1", Role: models.RoleApplicant}
	req := dto.CreateApplicationRequest{CandidateType: "INTERNAL", Payload: json.RawMessage(`{"department":"Chemistry"}`)}

	_, err := f.applications.Create(ctx, req, &student)
	require.NoError(t, err)
	_, err = f.applications.Create(ctx, req, &student)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateApplication))

	_, err = f.applications.Create(ctx, req, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestRejectionRequiresRemarks(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)

	_, err := f.scrutiny.Decide(ctx, app.ID, dto.ScrutinyDecisionRequest{Decision: "REJECT", Remarks: "   "}, drcActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, models.StatusSubmitted, f.store.status(app.ID))
	assert.Empty(t, f.store.historyOf(app.ID))

	updated, err := f.scrutiny.Decide(ctx, app.ID, dto.ScrutinyDecisionRequest{Decision: "REJECT", Remarks: "Minimum marks not met"}, drcActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScrutinyRejected, updated.Status)
	history := f.store.historyOf(app.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "Scrutiny REJECT: Minimum marks not met", history[0].Remarks)

	_, err = f.scrutiny.Decide(ctx, app.ID, dto.ScrutinyDecisionRequest{Decision: "APPROVE"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestScrutinyStartIsOptional(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)

	started, err := f.scrutiny.Start(ctx, app.ID, drcActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderScrutiny, started.Status)

	approved, err := f.scrutiny.Decide(ctx, app.ID, dto.ScrutinyDecisionRequest{Decision: "APPROVE"}, drcActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScrutinyApproved, approved.Status)
}

func TestInterviewEvaluatedOnce(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusInterviewScheduled)
	interviewID := f.interviewOf(app.ID)

	_, err := f.interviews.Evaluate(ctx, interviewID, dto.EvaluateInterviewRequest{Decision: "FAIL", EvaluationScore: 30}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation), "failing needs remarks")

	_, err = f.interviews.Evaluate(ctx, interviewID, dto.EvaluateInterviewRequest{Decision: "PASS", EvaluationScore: 75}, drcActor)
	require.NoError(t, err)

	_, err = f.interviews.Evaluate(ctx, interviewID, dto.EvaluateInterviewRequest{Decision: "PASS", EvaluationScore: 90}, drcActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.interviews.Evaluate(ctx, "unknown", dto.EvaluateInterviewRequest{Decision: "PASS"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestFeeTwoStepFlowAndPrecedence(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusDocumentsVerified)
	owner := ownerOf(app)

	_, err := f.fees.Initiate(ctx, dto.InitiateFeeRequest{ApplicationID: app.ID, Amount: 1500}, Actor{ID: "intruder", Role: models.RoleApplicant})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	payment, err := f.fees.Initiate(ctx, dto.InitiateFeeRequest{ApplicationID: app.ID, Amount: 1500}, owner)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.PaymentStatus)
	assert.Equal(t, models.StatusDocumentsVerified, f.store.status(app.ID))

	confirmed, err := f.fees.Confirm(ctx, dto.ConfirmFeeRequest{ApplicationID: app.ID, PaymentID: payment.ID, TransactionReference: "TXN-881"}, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFeeVerificationPending, confirmed.Status)

	// The single-step path lost the race: its source status is gone.
	_, err = f.fees.Record(ctx, app.ID, dto.RecordFeeRequest{Amount: 1500, PaymentMode: "OFFLINE"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.fees.Reject(ctx, app.ID, "", drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	verified, err := f.fees.Verify(ctx, app.ID, "Receipt matched", drcActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFeeVerified, verified.Status)

	info, err := f.fees.Info(ctx, app.ID, owner)
	require.NoError(t, err)
	require.Len(t, info.Payments, 1)
	assert.Equal(t, models.PaymentSuccess, info.Payments[0].PaymentStatus)
	require.NotNil(t, info.Payments[0].VerificationStatus)
	assert.Equal(t, models.VerificationVerified, *info.Payments[0].VerificationStatus)

	_, err = f.fees.Info(ctx, app.ID, Actor{ID: "someone", Role: models.RoleApplicant})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestGuideDecisionRequiresAllocatedGuide(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusGuideAcceptedByStudent)

	other := f.store.addUser(models.User{Email: "other@example.com", Role: models.RoleFaculty})
	_, err := f.guides.Decide(ctx, app.ID, dto.GuideDecisionRequest{Decision: "ACCEPT"}, Actor{ID: other.ID, Role: models.RoleFaculty})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	// Staff role alone does not stand in for the guide.
	_, err = f.guides.Decide(ctx, app.ID, dto.GuideDecisionRequest{Decision: "ACCEPT"}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, models.StatusGuideAcceptedByStudent, f.store.status(app.ID))

	rejected, err := f.guides.Decide(ctx, app.ID, dto.GuideDecisionRequest{Decision: "reject", Remarks: "Lab is full"}, f.guideActor())
	require.NoError(t, err)
	assert.Equal(t, models.StatusGuideRejected, rejected.Status)

	acceptance, err := f.guides.Acceptance(ctx, app.ID, f.guideActor())
	require.NoError(t, err)
	require.NotNil(t, acceptance.GuideAcceptance)
	assert.False(t, *acceptance.GuideAcceptance)
}

func TestGuideAllocationValidatesFaculty(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusFeeVerified)

	_, err := f.guides.Allocate(ctx, app.ID, dto.AllocateGuideRequest{GuideFacultyID: "ghost"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.dispatcher.calls)

	allocation, err := f.guides.Allocate(ctx, app.ID, dto.AllocateGuideRequest{GuideFacultyID: f.guide.ID}, drcActor)
	require.NoError(t, err)
	require.NotNil(t, allocation.ApplicantID)
	assert.Equal(t, *app.ApplicantID, *allocation.ApplicantID)
	assert.Equal(t, []string{app.ID}, f.dispatcher.calls)
}

func TestGuideVerification(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusGuideAllocated)

	pending, err := f.guides.PendingVerification(ctx, f.guideActor())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.guides.Verify(ctx, dto.GuideVerifyRequest{ApplicationID: app.ID, Status: "VERIFIED"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.guides.Verify(ctx, dto.GuideVerifyRequest{ApplicationID: app.ID, Status: "REJECTED", Remark: "  "}, f.guideActor())
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	recorded, err := f.store.HasGuideVerification(ctx, app.ID)
	require.NoError(t, err)
	assert.False(t, recorded)

	verification, err := f.guides.Verify(ctx, dto.GuideVerifyRequest{ApplicationID: app.ID, Status: "verified", Remark: "Met the scholar"}, f.guideActor())
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, verification.Status)

	_, err = f.guides.Verify(ctx, dto.GuideVerifyRequest{ApplicationID: app.ID, Status: "VERIFIED"}, f.guideActor())
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	pending, err = f.guides.PendingVerification(ctx, f.guideActor())
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.guides.Scholars(ctx, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestExternalIntakeRoundTrip(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	created, err := f.applications.Create(ctx, dto.CreateApplicationRequest{
		CandidateType:    "EXTERNAL",
		Payload:          json.RawMessage(`{"department":"Mathematics","auth_credentials":"client-supplied"}`),
		Email:            "Outsider@Example.com",
		Mobile:           "+91 90000 00000",
		IdentityDocument: "PASSPORT-77",
		FullName:         "Asha Verma",
		Password:         "first-login-2026",
	}, nil)
	require.NoError(t, err)

	stored, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ApplicantID)
	assert.NotContains(t, string(stored.Payload), "client-supplied")
	assert.NotContains(t, string(stored.Payload), "first-login-2026")
	assert.Contains(t, string(stored.Payload), models.PayloadCredentialKey)
	submitted := f.store.historyOf(created.ID)
	require.Len(t, submitted, 1)
	assert.Equal(t, config.AnonymousActorID, submitted[0].ChangedBy)

	intakeQueue, err := f.queues.List(ctx, QueueIntake, adminActor)
	require.NoError(t, err)
	require.Len(t, intakeQueue, 1)
	assert.NotContains(t, string(intakeQueue[0].Payload), models.PayloadCredentialKey)

	_, err = f.queues.List(ctx, QueueIntake, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	approved, err := f.intake.Approve(ctx, created.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, created.ID, approved.ID)
	assert.Equal(t, created.ReferenceNumber, approved.ReferenceNumber)
	assert.Equal(t, models.CandidateInternal, approved.CandidateType)
	assert.Equal(t, models.StatusSubmitted, approved.Status)
	require.NotNil(t, approved.ApplicantID)
	assert.NotContains(t, string(approved.Payload), models.PayloadCredentialKey)

	user, err := f.store.FindByEmail(ctx, "outsider@example.com")
	require.NoError(t, err)
	assert.Equal(t, *approved.ApplicantID, user.ID)
	assert.Equal(t, models.RoleApplicant, user.Role)
	assert.Equal(t, "Asha Verma", user.FullName)

	scrutinyQueue, err := f.queues.List(ctx, QueueScrutiny, drcActor)
	require.NoError(t, err)
	require.Len(t, scrutinyQueue, 1)
	assert.Equal(t, created.ID, scrutinyQueue[0].ID)

	intakeQueue, err = f.queues.List(ctx, QueueIntake, adminActor)
	require.NoError(t, err)
	assert.Empty(t, intakeQueue)

	_, err = f.intake.Approve(ctx, created.ID, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Len(t, f.store.historyOf(created.ID), 1, "intake approval keeps the status and writes no entry")
}

func TestExternalIntakeFallsBackToDefaultCredential(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	snapshot, err := json.Marshal(models.ExternalSnapshot{Email: "nopass@example.com"})
	require.NoError(t, err)
	app := f.store.seed(models.Application{
		Status:           models.StatusSubmitted,
		CandidateType:    models.CandidateExternal,
		Payload:          []byte(`{"` + models.PayloadCredentialKey + `":"garbage"}`),
		ExternalSnapshot: types.NullJSONText{JSONText: snapshot, Valid: true},
	})

	approved, err := f.intake.Approve(ctx, app.ID, adminActor)
	require.NoError(t, err)
	require.NotNil(t, approved.ApplicantID)
	assert.Equal(t, "{}", string(approved.Payload))
}

func TestExternalIntakeReject(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	internal := f.seedInternal(models.StatusSubmitted)
	external := f.store.seed(models.Application{Status: models.StatusSubmitted, CandidateType: models.CandidateExternal})

	_, err := f.intake.Reject(ctx, internal.ID, "not external", adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.intake.Reject(ctx, external.ID, "", adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	rejected, err := f.intake.Reject(ctx, external.ID, "Incomplete documents", adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIntakeRejected, rejected.Status)
	assert.True(t, rejected.Status.IsTerminal())
}

func TestCertificateIssuedOnce(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusGuideAllocated)
	before := len(f.store.historyOf(app.ID))

	view, err := f.certificates.Issue(ctx, app.ID, drcActor)
	require.NoError(t, err)
	assert.Regexp(t, `^GAC-\d{4}-\d{4}$`, view.CertificateNumber)
	assert.NotEmpty(t, view.DownloadToken)
	assert.Equal(t, models.StatusGuideAllocated, f.store.status(app.ID))

	history := f.store.historyOf(app.ID)
	require.Len(t, history, before+1)
	last := history[len(history)-1]
	assert.Equal(t, models.StatusGuideAllocated, last.NewStatus)
	assert.Equal(t, "Guide Allocation Certificate Issued: "+view.CertificateNumber, last.Remarks)

	_, err = f.certificates.Issue(ctx, app.ID, drcActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Len(t, f.store.historyOf(app.ID), before+1)

	reader, name, err := f.certificates.Open(view.DownloadToken)
	require.NoError(t, err)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
	assert.Equal(t, app.ID+".pdf", name)

	_, _, err = f.certificates.Open(view.DownloadToken + "0")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	fetched, err := f.certificates.Get(ctx, app.ID, f.guideActor())
	require.NoError(t, err)
	assert.Equal(t, view.CertificateNumber, fetched.CertificateNumber)

	_, err = f.certificates.Get(ctx, app.ID, Actor{ID: "stranger", Role: models.RoleApplicant})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestCertificateTaskSkipsWhenStatusMoved(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	f.advance(t, app, models.StatusGuideAcceptedByStudent)

	err := f.certificates.HandleTask(ctx, jobs.Task{Kind: TaskKindCertificate, Subject: app.ID, Actor: drcActor.ID, Role: string(drcActor.Role)})
	assert.NoError(t, err)
	issued, _ := f.store.HasCertificate(ctx, app.ID)
	assert.False(t, issued)
}

func TestExemptionRequestedOnce(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)
	owner := ownerOf(app)
	req := dto.ExemptionRequest{ApplicationID: app.ID, Reason: "Qualified NET-JRF"}

	exemption, err := f.exemptions.Request(ctx, req, owner)
	require.NoError(t, err)
	assert.Equal(t, models.ExemptionPending, exemption.Status)
	assert.Equal(t, models.StatusSubmitted, f.store.status(app.ID))

	_, err = f.exemptions.Request(ctx, req, owner)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	queue, err := f.queues.List(ctx, QueueScrutiny, drcActor)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.NotNil(t, queue[0].ExemptionStatus)
	assert.Equal(t, models.ExemptionPending, *queue[0].ExemptionStatus)

	pending, err := f.exemptions.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.exemptions.Review(ctx, exemption.ID, dto.ExemptionReviewRequest{Decision: "REJECT"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	reviewed, err := f.exemptions.Review(ctx, exemption.ID, dto.ExemptionReviewRequest{Decision: "approve"}, drcActor)
	require.NoError(t, err)
	assert.Equal(t, models.ExemptionApproved, reviewed.Status)

	_, err = f.exemptions.Review(ctx, exemption.ID, dto.ExemptionReviewRequest{Decision: "APPROVE"}, drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	history := f.store.historyOf(app.ID)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusPetExemptionRequested, history[0].NewStatus)
	assert.Equal(t, models.StatusPetExemptionApproved, history[1].NewStatus)
	assert.Equal(t, models.StatusSubmitted, f.store.status(app.ID))
}

func TestExemptionOnlyForInternal(t *testing.T) {
	f := newAdmissionFixture(t)
	app := f.store.seed(models.Application{Status: models.StatusSubmitted, CandidateType: models.CandidateExternal, ApplicantID: strPtr("ext-1")})

	_, err := f.exemptions.Request(context.Background(), dto.ExemptionRequest{ApplicationID: app.ID, Reason: "GATE"}, ownerOf(app))
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestQueuesOrderByWaitAtGate(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	first := f.seedInternal(models.StatusSubmitted)
	second := f.store.seed(models.Application{Status: models.StatusSubmitted, ApplicantID: strPtr("student-b")})

	// second reaches the gate first, so it has waited longest there.
	f.advance(t, second, models.StatusScrutinyApproved)
	f.advance(t, first, models.StatusScrutinyApproved)

	queue, err := f.queues.List(ctx, QueueInterviewEligible, drcActor)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, second.ID, queue[0].ID)
	assert.Equal(t, first.ID, queue[1].ID)

	_, err = f.queues.List(ctx, QueueInterviewEligible, Actor{ID: "s", Role: models.RoleApplicant})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	kind, err := FeeQueue("verification")
	require.NoError(t, err)
	assert.Equal(t, QueueFeeVerification, kind)
	_, err = FeeQueue("refund")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestApplicationReadAuthorization(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	app := f.seedInternal(models.StatusSubmitted)

	_, err := f.applications.Get(ctx, app.ID, ownerOf(app))
	assert.NoError(t, err)
	_, err = f.applications.Get(ctx, app.ID, drcActor)
	assert.NoError(t, err)
	_, err = f.applications.Get(ctx, app.ID, Actor{ID: "other", Role: models.RoleApplicant})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.applications.Get(ctx, "missing", drcActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	view, err := f.applications.StatusByReference(ctx, app.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, view.Status)

	assert.True(t, appErrors.Is(f.applications.Delete(ctx, app.ID, drcActor), appErrors.ErrForbidden))
	require.NoError(t, f.applications.Delete(ctx, app.ID, adminActor))
	_, err = f.applications.StatusByReference(ctx, app.ReferenceNumber)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestApplicationExportCSV(t *testing.T) {
	f := newAdmissionFixture(t)
	f.seedInternal(models.StatusSubmitted)
	f.seedInternal(models.StatusFeePaid)

	out, err := f.applications.Export(context.Background(), dto.ApplicationListQuery{Status: []string{"FEE_PAID"}})
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "reference_number", rows[0][0])
	assert.Equal(t, "FEE_PAID", rows[1][2])

	_, err = f.applications.Export(context.Background(), dto.ApplicationListQuery{Status: []string{"LIMBO"}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
