package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

// HistoryRepository reads the append-only status ledger. Writes happen only inside transitions.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListByApplication returns the timeline of an application in insertion order.
func (r *HistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT id, application_id, new_status, changed_by, remarks, created_at
	FROM admission_status_history WHERE application_id = $1 ORDER BY created_at ASC, seq ASC`
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admission_status_history (id, application_id, new_status, changed_by, remarks, created_at)
	VALUES (:id, :application_id, :new_status, :changed_by, :remarks, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}
