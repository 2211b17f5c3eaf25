package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate signals a unique constraint violation on a side record.
	ErrDuplicate = errors.New("record already exists")
	// ErrDuplicateReference signals a reference number collision.
	ErrDuplicateReference = errors.New("reference number already in use")
	// ErrActiveApplicationExists signals the applicant already holds an active application.
	ErrActiveApplicationExists = errors.New("active application exists")
	// ErrStaleRecord is returned when a conditional side-record update matched no row.
	ErrStaleRecord = errors.New("side record not in expected state")
)

const (
	constraintReferenceNumber   = "admission_applications_reference_number_key"
	constraintActiveApplication = "admission_applications_active_applicant_idx"
)

const pqUniqueViolation = "23505"

// translateUnique maps lib/pq unique violations onto repository sentinels.
func translateUnique(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintReferenceNumber:
		return ErrDuplicateReference
	case constraintActiveApplication:
		return ErrActiveApplicationExists
	default:
		return ErrDuplicate
	}
}
