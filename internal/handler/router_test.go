package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/service"
	"github.com/noah-isme/phd-admission-api/pkg/config"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type testEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var testTokens = tokenTable{
	"applicant": {UserID: "student-1", Role: models.RoleApplicant},
	"drc":       {UserID: "drc-1", Role: models.RoleDRC},
	"admin":     {UserID: "admin-1", Role: models.RoleAdmin},
	"faculty":   {UserID: "guide-1", Role: models.RoleFaculty},
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (r *auditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

type fakeApplications struct {
	createdWith *service.Actor
	exported    dto.ApplicationListQuery
}

func (f *fakeApplications) Create(_ context.Context, req dto.CreateApplicationRequest, actor *service.Actor) (*dto.CreateApplicationResponse, error) {
	if req.CandidateType == models.CandidateInternal && actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "internal applications require a signed-in applicant")
	}
	f.createdWith = actor
	return &dto.CreateApplicationResponse{ID: "app-new", ReferenceNumber: "PET-2026-00001", Status: models.StatusSubmitted}, nil
}

func (f *fakeApplications) StatusByReference(_ context.Context, ref string) (*models.ApplicationStatusView, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
}

func (f *fakeApplications) Get(_ context.Context, id string, _ service.Actor) (*models.Application, error) {
	return &models.Application{ID: id, Status: models.StatusSubmitted}, nil
}

func (f *fakeApplications) ListMine(context.Context, service.Actor) ([]models.Application, error) {
	return []models.Application{}, nil
}

func (f *fakeApplications) List(context.Context, dto.ApplicationListQuery) ([]models.Application, *models.Pagination, error) {
	return []models.Application{}, &models.Pagination{}, nil
}

func (f *fakeApplications) Timeline(context.Context, string, service.Actor) (*models.Timeline, error) {
	return &models.Timeline{}, nil
}

func (f *fakeApplications) Delete(context.Context, string, service.Actor) error { return nil }

func (f *fakeApplications) Export(_ context.Context, query dto.ApplicationListQuery) ([]byte, error) {
	f.exported = query
	return []byte("reference_number,status\nPET-2026-00001,SUBMITTED\n"), nil
}

type fakeScrutiny struct {
	err error
}

func (f *fakeScrutiny) Start(_ context.Context, id string, _ service.Actor) (*models.Application, error) {
	return &models.Application{ID: id, Status: models.StatusUnderScrutiny}, f.err
}

func (f *fakeScrutiny) Decide(_ context.Context, id string, req dto.ScrutinyDecisionRequest, _ service.Actor) (*models.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Application{ID: id, Status: models.StatusScrutinyApproved}, nil
}

type fakeFees struct {
	remarks string
}

func (f *fakeFees) Record(context.Context, string, dto.RecordFeeRequest, service.Actor) (*models.FeePayment, error) {
	return &models.FeePayment{}, nil
}

func (f *fakeFees) Initiate(context.Context, dto.InitiateFeeRequest, service.Actor) (*models.FeePayment, error) {
	return &models.FeePayment{}, nil
}

func (f *fakeFees) Confirm(_ context.Context, req dto.ConfirmFeeRequest, _ service.Actor) (*models.Application, error) {
	return &models.Application{ID: req.ApplicationID, Status: models.StatusFeeVerificationPending}, nil
}

func (f *fakeFees) Verify(_ context.Context, id, remarks string, _ service.Actor) (*models.Application, error) {
	f.remarks = remarks
	return &models.Application{ID: id, Status: models.StatusFeeVerified}, nil
}

func (f *fakeFees) Reject(_ context.Context, id, remarks string, _ service.Actor) (*models.Application, error) {
	if strings.TrimSpace(remarks) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "remarks are required")
	}
	f.remarks = remarks
	return &models.Application{ID: id, Status: models.StatusFeeRejected}, nil
}

func (f *fakeFees) Info(context.Context, string, service.Actor) (*models.FeeInfo, error) {
	return &models.FeeInfo{}, nil
}

type fakeQueues struct {
	last service.Queue
}

func (f *fakeQueues) List(_ context.Context, queue service.Queue, _ service.Actor) ([]models.QueueEntry, error) {
	f.last = queue
	return []models.QueueEntry{}, nil
}

type fakeCertificates struct{}

func (fakeCertificates) Issue(context.Context, string, service.Actor) (*models.CertificateView, error) {
	return &models.CertificateView{}, nil
}

func (fakeCertificates) Get(context.Context, string, service.Actor) (*models.CertificateView, error) {
	return &models.CertificateView{DownloadToken: "signed"}, nil
}

func (fakeCertificates) Open(token string) (io.ReadCloser, string, error) {
	if token != "signed" {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	return io.NopCloser(strings.NewReader("%PDF-1.3 body")), "app-1.pdf", nil
}

type fakeAnalytics struct{}

func (fakeAnalytics) Stats(context.Context) (*models.AdmissionStats, bool, error) {
	return &models.AdmissionStats{Total: 3}, true, nil
}

func (fakeAnalytics) SystemMetrics() models.SystemMetrics { return models.SystemMetrics{} }

type routerFixture struct {
	router   *gin.Engine
	audit    *auditRecorder
	apps     *fakeApplications
	fees     *fakeFees
	queues   *fakeQueues
	scrutiny *fakeScrutiny
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &routerFixture{
		router:   gin.New(),
		audit:    &auditRecorder{},
		apps:     &fakeApplications{},
		fees:     &fakeFees{},
		queues:   &fakeQueues{},
		scrutiny: &fakeScrutiny{},
	}
	RegisterRoutes(f.router.Group("/api/v1"), Handlers{
		Applications: NewApplicationHandler(f.apps),
		Scrutiny:     NewScrutinyHandler(f.scrutiny, f.queues),
		Fees:         NewFeeHandler(f.fees, f.queues),
		Certificates: NewCertificateHandler(fakeCertificates{}),
		Analytics:    NewAnalyticsHandler(fakeAnalytics{}),
	}, RouteDeps{Tokens: testTokens, Audit: f.audit, Logger: zap.NewNop()})
	return f
}

func (f *routerFixture) do(method, path, token, body string) (*httptest.ResponseRecorder, testEnvelope) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestRoutesRequirePrincipal(t *testing.T) {
	f := newRouterFixture(t)

	rec, env := f.do(http.MethodGet, "/my-applications", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)

	rec, _ = f.do(http.MethodGet, "/my-applications", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(http.MethodGet, "/my-applications", "applicant", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutesEnforceRoles(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"decision":"APPROVE"}`

	rec, _ := f.do(http.MethodPost, "/scrutiny/app-1/decision", "applicant", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.do(http.MethodPost, "/scrutiny/app-1/decision", "faculty", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.audit.logs)

	rec, env := f.do(http.MethodPost, "/scrutiny/app-1/decision", "drc", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), string(models.StatusScrutinyApproved))

	require.Len(t, f.audit.logs, 1)
	entry := f.audit.logs[0]
	assert.Equal(t, models.AuditActionScrutinyDecided, entry.Action)
	assert.Equal(t, "drc-1", *entry.UserID)
	assert.Equal(t, "app-1", *entry.ResourceID)
}

func TestRoutesFailedTransitionIsNotAudited(t *testing.T) {
	f := newRouterFixture(t)
	f.scrutiny.err = appErrors.Clone(appErrors.ErrPreconditionFailed, "application is SCRUTINY_APPROVED")

	rec, env := f.do(http.MethodPost, "/scrutiny/app-1/decision", "drc", `{"decision":"APPROVE"}`)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, env.Error.Code)
	assert.Empty(t, f.audit.logs)
}

func TestApplyRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodPost, "/pet/apply", "", `{"candidateType":"EXTERNAL","payload":{},"email":"x@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, f.apps.createdWith)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, config.AnonymousActorID, *f.audit.logs[0].UserID)
	assert.Equal(t, "app-new", *f.audit.logs[0].ResourceID)

	rec, _ = f.do(http.MethodPost, "/pet/apply", "", `{"candidateType":"INTERNAL","payload":{}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(http.MethodPost, "/pet/apply", "applicant", `{"candidateType":"INTERNAL","payload":{}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, f.apps.createdWith)
	assert.Equal(t, "student-1", f.apps.createdWith.ID)
	assert.Len(t, f.audit.logs, 2)

	rec, _ = f.do(http.MethodPost, "/pet/apply", "", `{"candidateType":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicStatusLookup(t *testing.T) {
	f := newRouterFixture(t)

	rec, env := f.do(http.MethodGet, "/pet/status/PET-2026-99999", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
}

func TestExportRouteIsAdminOnlyCSV(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodGet, "/applications/export", "drc", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(http.MethodGet, "/applications/export?status=SUBMITTED&status=FEE_PAID&limit=5", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "applications-")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "reference_number,status"))
	assert.Equal(t, []string{"SUBMITTED", "FEE_PAID"}, f.apps.exported.Status)
	assert.Equal(t, 5, f.apps.exported.PageSize)

	rec, _ = f.do(http.MethodGet, "/applications/export?format=xlsx", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeeRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodPost, "/fee/app-1/verify", "drc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.fees.remarks)

	rec, _ = f.do(http.MethodPost, "/fee/app-1/reject", "drc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(http.MethodPost, "/fee/app-1/reject", "drc", `{"remarks":"amount mismatch"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "amount mismatch", f.fees.remarks)

	rec, _ = f.do(http.MethodPost, "/fee/confirm", "drc", `{"applicationId":"app-1","paymentId":"p","transactionReference":"t"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(http.MethodPost, "/fee/confirm", "applicant", `{"applicationId":"app-1","paymentId":"p","transactionReference":"t"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	actions := make([]string, 0, len(f.audit.logs))
	for _, entry := range f.audit.logs {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{models.AuditActionFeeVerified, models.AuditActionFeeRejected, models.AuditActionFeeConfirmed}, actions)
	assert.Equal(t, "app-1", *f.audit.logs[2].ResourceID)
}

func TestFeeQueueSelection(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodGet, "/fees/pending", "drc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.QueueFeePayment, f.queues.last)

	rec, _ = f.do(http.MethodGet, "/fees/pending?type=verification", "drc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.QueueFeeVerification, f.queues.last)

	rec, _ = f.do(http.MethodGet, "/fees/pending?type=refund", "drc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificateDownload(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodGet, "/certificates/download", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(http.MethodGet, "/certificates/download?token=tampered", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(http.MethodGet, "/certificates/download?token=signed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "app-1.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestAnalyticsStatsCarriesCacheMeta(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(http.MethodGet, "/analytics/stats", "applicant", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(http.MethodGet, "/analytics/stats", "drc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	assert.Contains(t, string(env.Data), `"total":3`)

	rec, _ = f.do(http.MethodGet, "/analytics/system", "drc", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
