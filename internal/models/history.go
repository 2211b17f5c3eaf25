package models

import "time"

// StatusHistoryEntry is one append-only row of an application's timeline.
type StatusHistoryEntry struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	NewStatus     ApplicationStatus `db:"new_status" json:"new_status"`
	ChangedBy     string            `db:"changed_by" json:"changed_by"`
	Remarks       string            `db:"remarks" json:"remarks"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// Timeline is the current status with the ordered history that produced it.
type Timeline struct {
	ApplicationID   string               `json:"application_id"`
	ReferenceNumber string               `json:"reference_number"`
	CurrentStatus   ApplicationStatus    `json:"current_status"`
	History         []StatusHistoryEntry `json:"history"`
}
