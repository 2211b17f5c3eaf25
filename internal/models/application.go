package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ApplicationStatus is the single source of truth for where an application sits in the pipeline.
type ApplicationStatus string

const (
	StatusSubmitted              ApplicationStatus = "SUBMITTED"
	StatusUnderScrutiny          ApplicationStatus = "UNDER_SCRUTINY"
	StatusScrutinyApproved       ApplicationStatus = "SCRUTINY_APPROVED"
	StatusScrutinyRejected       ApplicationStatus = "SCRUTINY_REJECTED"
	StatusInterviewScheduled     ApplicationStatus = "INTERVIEW_SCHEDULED"
	StatusInterviewPassed        ApplicationStatus = "INTERVIEW_PASSED"
	StatusInterviewFailed        ApplicationStatus = "INTERVIEW_FAILED"
	StatusDocumentsVerified      ApplicationStatus = "DOCUMENTS_VERIFIED"
	StatusDocumentsRejected      ApplicationStatus = "DOCUMENTS_REJECTED"
	StatusFeePaid                ApplicationStatus = "FEE_PAID"
	StatusFeeVerificationPending ApplicationStatus = "FEE_VERIFICATION_PENDING"
	StatusFeeVerified            ApplicationStatus = "FEE_VERIFIED"
	StatusFeeRejected            ApplicationStatus = "FEE_REJECTED"
	StatusGuideAllocated         ApplicationStatus = "GUIDE_ALLOCATED"
	StatusGuideAcceptedByStudent ApplicationStatus = "GUIDE_ACCEPTED_BY_STUDENT"
	StatusAdmissionConfirmed     ApplicationStatus = "ADMISSION_CONFIRMED"
	StatusGuideRejected          ApplicationStatus = "GUIDE_REJECTED"
	StatusIntakeRejected         ApplicationStatus = "INTAKE_REJECTED"

	// Side-channel markers; they appear in history but never in the status column.
	StatusPetExemptionRequested ApplicationStatus = "PET_EXEMPTION_REQUESTED"
	StatusPetExemptionApproved  ApplicationStatus = "PET_EXEMPTION_APPROVED"
	StatusPetExemptionRejected  ApplicationStatus = "PET_EXEMPTION_REJECTED"
)

var terminalStatuses = map[ApplicationStatus]struct{}{
	StatusScrutinyRejected:   {},
	StatusInterviewFailed:    {},
	StatusDocumentsRejected:  {},
	StatusFeeRejected:        {},
	StatusAdmissionConfirmed: {},
	StatusGuideRejected:      {},
	StatusIntakeRejected:     {},
}

// ActiveStatuses block a second INTERNAL submission by the same applicant.
var ActiveStatuses = []ApplicationStatus{StatusSubmitted, StatusUnderScrutiny}

// IsTerminal reports whether no further transition can leave the status.
func (s ApplicationStatus) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// CandidateType distinguishes pre-authenticated applicants from external ones.
type CandidateType string

const (
	CandidateInternal CandidateType = "INTERNAL"
	CandidateExternal CandidateType = "EXTERNAL"
)

// PayloadCredentialKey is the payload field carrying the sealed one-time password of an
// EXTERNAL applicant until intake provisions their identity.
const PayloadCredentialKey = "auth_credentials"

// Application is one admission case.
type Application struct {
	ID               string             `db:"id" json:"id"`
	ReferenceNumber  string             `db:"reference_number" json:"reference_number"`
	ApplicantID      *string            `db:"applicant_id" json:"applicant_id,omitempty"`
	CandidateType    CandidateType      `db:"candidate_type" json:"candidate_type"`
	Status           ApplicationStatus  `db:"status" json:"status"`
	Payload          types.JSONText     `db:"payload" json:"payload"`
	ExternalSnapshot types.NullJSONText `db:"external_snapshot" json:"external_snapshot"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time         `db:"deleted_at" json:"-"`
}

// RedactCredentials drops the sealed credential from the payload so it never reaches a reader.
func (a *Application) RedactCredentials() {
	if a == nil || len(a.Payload) == 0 {
		return
	}
	stripped, changed, err := StripPayloadField(a.Payload, PayloadCredentialKey)
	if err != nil || !changed {
		return
	}
	a.Payload = stripped
}

// IsOwnedBy reports whether the principal is the linked applicant.
func (a *Application) IsOwnedBy(userID string) bool {
	return a != nil && a.ApplicantID != nil && userID != "" && *a.ApplicantID == userID
}

// StripPayloadField removes a top-level key from a JSON object payload.
func StripPayloadField(payload types.JSONText, key string) (types.JSONText, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload, false, err
	}
	if _, ok := doc[key]; !ok {
		return payload, false, nil
	}
	delete(doc, key)
	out, err := json.Marshal(doc)
	if err != nil {
		return payload, false, err
	}
	return types.JSONText(out), true, nil
}

// ExternalSnapshot keeps contact details of an EXTERNAL applicant before an identity exists.
type ExternalSnapshot struct {
	Email            string `json:"email"`
	Mobile           string `json:"mobile"`
	IdentityDocument string `json:"identity_document"`
	FullName         string `json:"full_name,omitempty"`
}

// ApplicationStatusView is the minimal projection served on the unauthenticated path.
type ApplicationStatusView struct {
	ID              string            `json:"id"`
	ReferenceNumber string            `json:"reference_number"`
	Status          ApplicationStatus `json:"status"`
	SubmissionDate  time.Time         `json:"submission_date"`
	CandidateType   CandidateType     `json:"candidate_type"`
}

// ApplicationFilter constrains the staff listing.
type ApplicationFilter struct {
	Status        []ApplicationStatus
	CandidateType CandidateType
	Search        string
	Page          int
	PageSize      int
}

// QueueEntry is an application as shown in a stage queue, with the gate-specific context.
type QueueEntry struct {
	Application
	ExemptionStatus *ExemptionStatus `db:"exemption_status" json:"exemption_status,omitempty"`
	InterviewID     *string          `db:"interview_id" json:"interview_id,omitempty"`
	InterviewDate   *time.Time       `db:"interview_date" json:"interview_date,omitempty"`
	PaymentID       *string          `db:"payment_id" json:"payment_id,omitempty"`
	PaymentAmount   *float64         `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentMode     *string          `db:"payment_mode" json:"payment_mode,omitempty"`
	PaymentStatus   *string          `db:"payment_status" json:"payment_status,omitempty"`
}
