package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

// StageRepository reads the side records owned by the stage services.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs the repository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// GetInterview returns an interview by id.
func (r *StageRepository) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	const query = `SELECT id, application_id, interview_date, interview_mode, interview_location, panel_members, created_by, created_at
	FROM admission_interviews WHERE id = $1`
	var interview models.Interview
	if err := r.db.GetContext(ctx, &interview, query, id); err != nil {
		return nil, err
	}
	return &interview, nil
}

// HasEvaluation reports whether the interview was already evaluated.
func (r *StageRepository) HasEvaluation(ctx context.Context, interviewID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM admission_interview_evaluations WHERE interview_id = $1)`, interviewID)
}

// ListPayments returns the fee payments of an application, oldest first.
func (r *StageRepository) ListPayments(ctx context.Context, applicationID string) ([]models.FeePayment, error) {
	const query = `SELECT id, application_id, amount, payment_reference, payment_mode, payment_status, transaction_reference,
       recorded_by, verified_by, verification_status, verification_remarks, created_at, updated_at
	FROM admission_fee_payments WHERE application_id = $1 ORDER BY created_at ASC`
	var payments []models.FeePayment
	if err := r.db.SelectContext(ctx, &payments, query, applicationID); err != nil {
		return nil, fmt.Errorf("list fee payments: %w", err)
	}
	return payments, nil
}

// GetAllocation returns the guide allocation of an application.
func (r *StageRepository) GetAllocation(ctx context.Context, applicationID string) (*models.GuideAllocation, error) {
	const query = `SELECT id, application_id, applicant_id, guide_faculty_id, remarks, allocated_by, created_at
	FROM admission_guide_allocations WHERE application_id = $1`
	var allocation models.GuideAllocation
	if err := r.db.GetContext(ctx, &allocation, query, applicationID); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// GetAcceptance returns the dual acceptance record of an application.
func (r *StageRepository) GetAcceptance(ctx context.Context, applicationID string) (*models.GuideAcceptance, error) {
	const query = `SELECT id, application_id, student_acceptance, student_accepted_at, guide_acceptance, guide_accepted_at, remarks
	FROM admission_guide_acceptance WHERE application_id = $1`
	var acceptance models.GuideAcceptance
	if err := r.db.GetContext(ctx, &acceptance, query, applicationID); err != nil {
		return nil, err
	}
	return &acceptance, nil
}

// HasGuideVerification reports whether the guide already verified the scholar.
func (r *StageRepository) HasGuideVerification(ctx context.Context, applicationID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM admission_guide_verifications WHERE application_id = $1)`, applicationID)
}

// ListScholars returns allocations made to the guide in the given statuses.
// When unverified is set, allocations the guide already verified are excluded.
func (r *StageRepository) ListScholars(ctx context.Context, guideID string, statuses []models.ApplicationStatus, unverified bool) ([]models.GuideScholar, error) {
	query := `SELECT a.id AS application_id, a.reference_number, a.applicant_id, a.status,
       g.created_at AS allocated_at, v.status AS verification_status
	FROM admission_guide_allocations g
	JOIN admission_applications a ON a.id = g.application_id AND a.deleted_at IS NULL
	LEFT JOIN admission_guide_verifications v ON v.application_id = g.application_id
	WHERE g.guide_faculty_id = $1 AND a.status = ANY($2)`
	if unverified {
		query += ` AND v.id IS NULL`
	}
	query += ` ORDER BY a.updated_at ASC`
	var scholars []models.GuideScholar
	if err := r.db.SelectContext(ctx, &scholars, query, guideID, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("list guide scholars: %w", err)
	}
	return scholars, nil
}

// GetExemption returns an exemption request by id.
func (r *StageRepository) GetExemption(ctx context.Context, id string) (*models.PetExemption, error) {
	const query = `SELECT id, application_id, applicant_id, reason, document_url, status, reviewed_by, review_remarks, created_at, reviewed_at
	FROM admission_pet_exemptions WHERE id = $1`
	var exemption models.PetExemption
	if err := r.db.GetContext(ctx, &exemption, query, id); err != nil {
		return nil, err
	}
	return &exemption, nil
}

// HasExemption reports whether an exemption was already requested for the application.
func (r *StageRepository) HasExemption(ctx context.Context, applicationID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM admission_pet_exemptions WHERE application_id = $1)`, applicationID)
}

// ListPendingExemptions returns PENDING exemption requests, oldest first.
func (r *StageRepository) ListPendingExemptions(ctx context.Context) ([]models.PetExemption, error) {
	const query = `SELECT e.id, e.application_id, e.applicant_id, e.reason, e.document_url, e.status, e.reviewed_by,
       e.review_remarks, e.created_at, e.reviewed_at
	FROM admission_pet_exemptions e
	JOIN admission_applications a ON a.id = e.application_id AND a.deleted_at IS NULL
	WHERE e.status = 'PENDING' ORDER BY e.created_at ASC`
	var exemptions []models.PetExemption
	if err := r.db.SelectContext(ctx, &exemptions, query); err != nil {
		return nil, fmt.Errorf("list pending exemptions: %w", err)
	}
	return exemptions, nil
}

// GetCertificate returns the allocation certificate of an application.
func (r *StageRepository) GetCertificate(ctx context.Context, applicationID string) (*models.AllocationCertificate, error) {
	const query = `SELECT id, application_id, certificate_number, issued_by, file_url, created_at
	FROM admission_allocation_certificates WHERE application_id = $1`
	var cert models.AllocationCertificate
	if err := r.db.GetContext(ctx, &cert, query, applicationID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// HasCertificate reports whether a certificate exists for the application.
func (r *StageRepository) HasCertificate(ctx context.Context, applicationID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM admission_allocation_certificates WHERE application_id = $1)`, applicationID)
}

func (r *StageRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := r.db.GetContext(ctx, &found, query, args...); err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return found, nil
}
