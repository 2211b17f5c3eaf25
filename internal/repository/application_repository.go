package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

const applicationColumns = `a.id, a.reference_number, a.applicant_id, a.candidate_type, a.status, a.payload,
       a.external_snapshot, a.created_at, a.updated_at, a.deleted_at`

// ApplicationRepository owns the admission_applications table and the atomic transition unit.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts the application and its first history entry in one transaction.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry) (err error) {
	now := time.Now().UTC()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO admission_applications
	(id, reference_number, applicant_id, candidate_type, status, payload, external_snapshot, created_at, updated_at)
	VALUES (:id, :reference_number, :applicant_id, :candidate_type, :status, :payload, :external_snapshot, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, app); err != nil {
		err = translateUnique(err)
		return fmt.Errorf("create application: %w", err)
	}

	entry.ApplicationID = app.ID
	if err = insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create application: %w", err)
	}
	return nil
}

// GetByID returns a non-deleted application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications a WHERE a.id = $1 AND a.deleted_at IS NULL`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetByReference returns a non-deleted application by its reference number.
func (r *ApplicationRepository) GetByReference(ctx context.Context, reference string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications a WHERE a.reference_number = $1 AND a.deleted_at IS NULL`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, reference); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByApplicant returns the applicant's applications, newest first.
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID string) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications a
	WHERE a.applicant_id = $1 AND a.deleted_at IS NULL ORDER BY a.created_at DESC`
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, applicantID); err != nil {
		return nil, fmt.Errorf("list applicant applications: %w", err)
	}
	return apps, nil
}

// HasActiveApplication reports whether the applicant holds an application in one of the statuses.
func (r *ApplicationRepository) HasActiveApplication(ctx context.Context, applicantID string, statuses []models.ApplicationStatus) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM admission_applications
	WHERE applicant_id = $1 AND deleted_at IS NULL AND status = ANY($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, applicantID, statusArray(statuses)); err != nil {
		return false, fmt.Errorf("check active application: %w", err)
	}
	return exists, nil
}

// List returns a filtered page of applications and the total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{"a.deleted_at IS NULL"}
	args := make([]interface{}, 0, 4)
	if len(filter.Status) > 0 {
		args = append(args, statusArray(filter.Status))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if filter.CandidateType != "" {
		args = append(args, filter.CandidateType)
		conditions = append(conditions, fmt.Sprintf("a.candidate_type = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(a.reference_number) LIKE $%d OR LOWER(a.payload::text) LIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM admission_applications a"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf("SELECT %s FROM admission_applications a%s ORDER BY a.created_at DESC LIMIT %d OFFSET %d",
		applicationColumns, where, size, (page-1)*size)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return apps, total, nil
}

// QueueOrder selects the fairness column of a stage queue.
type QueueOrder string

const (
	OrderByCreated QueueOrder = "created_at"
	OrderByUpdated QueueOrder = "updated_at"
)

// QueueQuery describes one stage queue.
type QueueQuery struct {
	Statuses      []models.ApplicationStatus
	CandidateType models.CandidateType
	Unlinked      bool
	Order         QueueOrder
}

// ListQueue returns applications waiting at a gate, oldest wait first, with gate context joined in.
func (r *ApplicationRepository) ListQueue(ctx context.Context, q QueueQuery) ([]models.QueueEntry, error) {
	order := OrderByUpdated
	if q.Order == OrderByCreated {
		order = OrderByCreated
	}
	args := []interface{}{statusArray(q.Statuses)}
	conditions := []string{"a.deleted_at IS NULL", "a.status = ANY($1)"}
	if q.CandidateType != "" {
		args = append(args, q.CandidateType)
		conditions = append(conditions, fmt.Sprintf("a.candidate_type = $%d", len(args)))
	}
	if q.Unlinked {
		conditions = append(conditions, "a.applicant_id IS NULL")
	}

	query := `SELECT ` + applicationColumns + `,
       e.status AS exemption_status,
       i.id AS interview_id, i.interview_date AS interview_date,
       p.id AS payment_id, p.amount AS payment_amount, p.payment_mode AS payment_mode, p.payment_status AS payment_status
	FROM admission_applications a
	LEFT JOIN admission_pet_exemptions e ON e.application_id = a.id
	LEFT JOIN admission_interviews i ON i.application_id = a.id
	LEFT JOIN LATERAL (
		SELECT id, amount, payment_mode, payment_status FROM admission_fee_payments
		WHERE application_id = a.id ORDER BY created_at DESC LIMIT 1
	) p ON TRUE
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY a.` + string(order) + ` ASC, a.id ASC`

	var entries []models.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return entries, nil
}

// SoftDelete tombstones an application; its history and side records are retained.
func (r *ApplicationRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE admission_applications SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check soft delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IntakePatch converts an EXTERNAL application into an INTERNAL one.
type IntakePatch struct {
	ApplicantID string
	Payload     types.JSONText
}

// Transition is one all-or-nothing workflow step.
type Transition struct {
	ApplicationID string
	// From lists the statuses the row must currently hold.
	From []models.ApplicationStatus
	// To is the new status; empty keeps the current one.
	To models.ApplicationStatus
	// LogStatus overrides the history status; empty logs the resulting status.
	LogStatus   models.ApplicationStatus
	ChangedBy   string
	Remarks     string
	SkipHistory bool
	Intake      *IntakePatch
	Records     []interface{}
}

// ApplyTransition runs the conditional status update, the side-record writes and the history
// append in a single transaction. A status that no longer matches yields sql.ErrNoRows.
func (r *ApplicationRepository) ApplyTransition(ctx context.Context, t Transition) (app *models.Application, err error) {
	if len(t.From) == 0 {
		return nil, fmt.Errorf("transition for %s has no source status", t.ApplicationID)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	from := statusArray(t.From)
	now := time.Now().UTC()
	records := t.Records
	if t.Intake != nil {
		// applicant_id references users, so the provisioned user must exist before the link.
		records = records[:0:0]
		for _, record := range t.Records {
			if user, ok := record.(*models.User); ok {
				if err = writeRecord(ctx, tx, user); err != nil {
					return nil, err
				}
				continue
			}
			records = append(records, record)
		}
	}

	var updated models.Application
	switch {
	case t.Intake != nil:
		query := `UPDATE admission_applications a
	SET candidate_type = $3, applicant_id = $4, payload = $5, updated_at = $6
	WHERE a.id = $1 AND a.status = ANY($2) AND a.deleted_at IS NULL
	  AND a.candidate_type = 'EXTERNAL' AND a.applicant_id IS NULL
	RETURNING ` + applicationColumns
		err = tx.GetContext(ctx, &updated, query, t.ApplicationID, from, models.CandidateInternal, t.Intake.ApplicantID, t.Intake.Payload, now)
	case t.To != "":
		query := `UPDATE admission_applications a SET status = $3, updated_at = $4
	WHERE a.id = $1 AND a.status = ANY($2) AND a.deleted_at IS NULL
	RETURNING ` + applicationColumns
		err = tx.GetContext(ctx, &updated, query, t.ApplicationID, from, t.To, now)
	default:
		query := `SELECT ` + applicationColumns + ` FROM admission_applications a
	WHERE a.id = $1 AND a.status = ANY($2) AND a.deleted_at IS NULL FOR UPDATE`
		err = tx.GetContext(ctx, &updated, query, t.ApplicationID, from)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update application status: %w", err)
	}

	for _, record := range records {
		if err = writeRecord(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if !t.SkipHistory {
		status := t.LogStatus
		if status == "" {
			status = updated.Status
		}
		if err = insertHistory(ctx, tx, &models.StatusHistoryEntry{
			ApplicationID: t.ApplicationID,
			NewStatus:     status,
			ChangedBy:     t.ChangedBy,
			Remarks:       t.Remarks,
			CreatedAt:     now,
		}); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &updated, nil
}

func statusArray(statuses []models.ApplicationStatus) interface{} {
	return pq.Array(statusStrings(statuses))
}

func statusStrings(statuses []models.ApplicationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
