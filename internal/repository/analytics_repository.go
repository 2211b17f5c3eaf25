package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

// AnalyticsRepository exposes read-optimised counts over non-deleted applications.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// CountApplications returns the number of live applications.
func (r *AnalyticsRepository) CountApplications(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admission_applications WHERE deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return total, nil
}

// CountByStatus groups live applications by status.
func (r *AnalyticsRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return r.grouped(ctx, "status")
}

// CountByCandidateType groups live applications by candidate type.
func (r *AnalyticsRepository) CountByCandidateType(ctx context.Context) ([]models.StatusCount, error) {
	return r.grouped(ctx, "candidate_type")
}

// CountCreatedSince counts live applications submitted at or after the instant.
func (r *AnalyticsRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	const query = `SELECT COUNT(*) FROM admission_applications WHERE deleted_at IS NULL AND created_at >= $1`
	if err := r.db.GetContext(ctx, &total, query, since); err != nil {
		return 0, fmt.Errorf("count applications since: %w", err)
	}
	return total, nil
}

func (r *AnalyticsRepository) grouped(ctx context.Context, column string) ([]models.StatusCount, error) {
	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM admission_applications
	WHERE deleted_at IS NULL GROUP BY %s ORDER BY %s`, column, column, column)
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count applications by %s: %w", column, err)
	}
	return counts, nil
}
