package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

// writeRecord persists one stage side record inside a transition.
func writeRecord(ctx context.Context, tx *sqlx.Tx, record interface{}) error {
	now := time.Now().UTC()
	switch rec := record.(type) {
	case *models.ScrutinyReview:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "scrutiny review", `INSERT INTO admission_scrutiny_reviews
	(id, application_id, reviewed_by, decision, remarks, created_at)
	VALUES (:id, :application_id, :reviewed_by, :decision, :remarks, :created_at)`, rec)
	case *models.Interview:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "interview", `INSERT INTO admission_interviews
	(id, application_id, interview_date, interview_mode, interview_location, panel_members, created_by, created_at)
	VALUES (:id, :application_id, :interview_date, :interview_mode, :interview_location, :panel_members, :created_by, :created_at)`, rec)
	case *models.InterviewEvaluation:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "interview evaluation", `INSERT INTO admission_interview_evaluations
	(id, interview_id, application_id, evaluation_score, recommendation, remarks, evaluated_by, created_at)
	VALUES (:id, :interview_id, :application_id, :evaluation_score, :recommendation, :remarks, :evaluated_by, :created_at)`, rec)
	case *models.DocumentVerification:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "document verification", `INSERT INTO admission_document_verifications
	(id, application_id, verification_status, remarks, verified_by, created_at)
	VALUES (:id, :application_id, :verification_status, :remarks, :verified_by, :created_at)`, rec)
	case *models.FeePayment:
		assignID(&rec.ID, &rec.CreatedAt, now)
		rec.UpdatedAt = rec.CreatedAt
		return namedInsert(ctx, tx, "fee payment", `INSERT INTO admission_fee_payments
	(id, application_id, amount, payment_reference, payment_mode, payment_status, transaction_reference, recorded_by, created_at, updated_at)
	VALUES (:id, :application_id, :amount, :payment_reference, :payment_mode, :payment_status, :transaction_reference, :recorded_by, :created_at, :updated_at)`, rec)
	case *models.FeeConfirmation:
		return conditionalExec(ctx, tx, "confirm fee payment", `UPDATE admission_fee_payments
	SET payment_status = 'SUCCESS', transaction_reference = $3, updated_at = $4
	WHERE id = $1 AND application_id = $2 AND payment_status = 'PENDING'`,
			rec.PaymentID, rec.ApplicationID, rec.TransactionReference, now)
	case *models.FeeVerification:
		return conditionalExec(ctx, tx, "verify fee payment", `UPDATE admission_fee_payments
	SET verified_by = $2, verification_status = $3, verification_remarks = $4, updated_at = $5
	WHERE application_id = $1 AND payment_status IN ('SUCCESS', 'PAID') AND verification_status IS NULL`,
			rec.ApplicationID, rec.VerifiedBy, rec.Status, rec.Remarks, now)
	case *models.GuideAllocation:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "guide allocation", `INSERT INTO admission_guide_allocations
	(id, application_id, applicant_id, guide_faculty_id, remarks, allocated_by, created_at)
	VALUES (:id, :application_id, :applicant_id, :guide_faculty_id, :remarks, :allocated_by, :created_at)`, rec)
	case *models.GuideAcceptance:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.StudentAcceptedAt == nil {
			rec.StudentAcceptedAt = &now
		}
		return namedInsert(ctx, tx, "student acceptance", `INSERT INTO admission_guide_acceptance
	(id, application_id, student_acceptance, student_accepted_at)
	VALUES (:id, :application_id, :student_acceptance, :student_accepted_at)
	ON CONFLICT (application_id) DO UPDATE
	SET student_acceptance = EXCLUDED.student_acceptance, student_accepted_at = EXCLUDED.student_accepted_at`, rec)
	case *models.GuideDecision:
		return conditionalExec(ctx, tx, "record guide decision", `UPDATE admission_guide_acceptance
	SET guide_acceptance = $2, guide_accepted_at = $3, remarks = $4
	WHERE application_id = $1 AND student_acceptance = TRUE AND guide_acceptance IS NULL`,
			rec.ApplicationID, rec.Accept, now, rec.Remarks)
	case *models.GuideVerification:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "guide verification", `INSERT INTO admission_guide_verifications
	(id, application_id, guide_id, status, remark, created_at)
	VALUES (:id, :application_id, :guide_id, :status, :remark, :created_at)`, rec)
	case *models.PetExemption:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "pet exemption", `INSERT INTO admission_pet_exemptions
	(id, application_id, applicant_id, reason, document_url, status, created_at)
	VALUES (:id, :application_id, :applicant_id, :reason, :document_url, :status, :created_at)`, rec)
	case *models.ExemptionReview:
		status := models.ExemptionRejected
		if rec.Approve {
			status = models.ExemptionApproved
		}
		return conditionalExec(ctx, tx, "review pet exemption", `UPDATE admission_pet_exemptions
	SET status = $2, reviewed_by = $3, review_remarks = $4, reviewed_at = $5
	WHERE id = $1 AND status = 'PENDING'`,
			rec.ExemptionID, status, rec.ReviewedBy, rec.Remarks, now)
	case *models.AllocationCertificate:
		assignID(&rec.ID, &rec.CreatedAt, now)
		return namedInsert(ctx, tx, "allocation certificate", `INSERT INTO admission_allocation_certificates
	(id, application_id, certificate_number, issued_by, file_url, created_at)
	VALUES (:id, :application_id, :certificate_number, :issued_by, :file_url, :created_at)`, rec)
	case *models.User:
		return provisionUser(ctx, tx, rec)
	default:
		return fmt.Errorf("unsupported side record %T", record)
	}
}

func assignID(id *string, createdAt *time.Time, now time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
}

func namedInsert(ctx context.Context, tx *sqlx.Tx, label, query string, arg interface{}) error {
	if _, err := tx.NamedExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("insert %s: %w", label, translateUnique(err))
	}
	return nil
}

func conditionalExec(ctx context.Context, tx *sqlx.Tx, label, query string, args ...interface{}) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", label, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", label, ErrStaleRecord)
	}
	return nil
}
