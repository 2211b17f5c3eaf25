package models

import "time"

// Audit actions recorded once per mutating call.
const (
	AuditActionLogin                  = "LOGIN"
	AuditActionApplicationSubmitted   = "PET_APPLICATION_SUBMITTED"
	AuditActionApplicationDeleted     = "APPLICATION_DELETED"
	AuditActionIntakeApproved         = "EXTERNAL_INTAKE_APPROVED"
	AuditActionIntakeRejected         = "EXTERNAL_INTAKE_REJECTED"
	AuditActionScrutinyStarted        = "PET_SCRUTINY_STARTED"
	AuditActionScrutinyDecided        = "PET_SCRUTINY_DECIDED"
	AuditActionInterviewScheduled     = "PET_INTERVIEW_SCHEDULED"
	AuditActionInterviewEvaluated     = "PET_INTERVIEW_EVALUATED"
	AuditActionDocumentsVerified      = "PET_DOCS_VERIFIED"
	AuditActionFeePaid                = "PET_FEE_PAID"
	AuditActionFeeInitiated           = "FEE_PAYMENT_INITIATED"
	AuditActionFeeConfirmed           = "FEE_PAYMENT_CONFIRMED"
	AuditActionFeeVerified            = "FEE_VERIFIED"
	AuditActionFeeRejected            = "FEE_REJECTED"
	AuditActionGuideAllocated         = "PET_GUIDE_ALLOCATED"
	AuditActionCertificateIssued      = "GUIDE_ALLOCATION_CERT_ISSUED"
	AuditActionGuideAcceptedByStudent = "GUIDE_ACCEPTED_BY_STUDENT"
	AuditActionGuideDecision          = "GUIDE_DECISION"
	AuditActionGuideVerified          = "GUIDE_VERIFIED"
	AuditActionExemptionRequested     = "PET_EXEMPTION_REQUESTED"
	AuditActionExemptionReviewed      = "PET_EXEMPTION_REVIEWED"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
