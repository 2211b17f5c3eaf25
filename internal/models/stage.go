package models

import (
	"time"

	"github.com/lib/pq"
)

// Decision values accepted by the review gates.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
	DecisionPass    = "PASS"
	DecisionFail    = "FAIL"
	DecisionAccept  = "ACCEPT"
)

// ScrutinyReview records the DRC decision on an application's eligibility.
type ScrutinyReview struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	ReviewedBy    string    `db:"reviewed_by" json:"reviewed_by"`
	Decision      string    `db:"decision" json:"decision"`
	Remarks       string    `db:"remarks" json:"remarks"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Interview is scheduled once per application.
type Interview struct {
	ID                string         `db:"id" json:"id"`
	ApplicationID     string         `db:"application_id" json:"application_id"`
	InterviewDate     time.Time      `db:"interview_date" json:"interview_date"`
	InterviewMode     string         `db:"interview_mode" json:"interview_mode"`
	InterviewLocation string         `db:"interview_location" json:"interview_location"`
	PanelMembers      pq.StringArray `db:"panel_members" json:"panel_members"`
	CreatedBy         string         `db:"created_by" json:"created_by"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// InterviewEvaluation is the single outcome of an interview.
type InterviewEvaluation struct {
	ID              string    `db:"id" json:"id"`
	InterviewID     string    `db:"interview_id" json:"interview_id"`
	ApplicationID   string    `db:"application_id" json:"application_id"`
	EvaluationScore int       `db:"evaluation_score" json:"evaluation_score"`
	Recommendation  string    `db:"recommendation" json:"recommendation"`
	Remarks         string    `db:"remarks" json:"remarks"`
	EvaluatedBy     string    `db:"evaluated_by" json:"evaluated_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Document verification outcomes.
const (
	VerificationVerified = "VERIFIED"
	VerificationRejected = "REJECTED"
)

// DocumentVerification records the document check of an application.
type DocumentVerification struct {
	ID                 string    `db:"id" json:"id"`
	ApplicationID      string    `db:"application_id" json:"application_id"`
	VerificationStatus string    `db:"verification_status" json:"verification_status"`
	Remarks            string    `db:"remarks" json:"remarks"`
	VerifiedBy         string    `db:"verified_by" json:"verified_by"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// PaymentStatus tracks a fee payment record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentPaid    PaymentStatus = "PAID"
)

// Payment modes.
const (
	PaymentModeOffline = "OFFLINE"
	PaymentModeOnline  = "ONLINE"
)

// FeePayment is a payment towards the admission fee.
type FeePayment struct {
	ID                   string        `db:"id" json:"id"`
	ApplicationID        string        `db:"application_id" json:"application_id"`
	Amount               float64       `db:"amount" json:"amount"`
	PaymentReference     string        `db:"payment_reference" json:"payment_reference"`
	PaymentMode          string        `db:"payment_mode" json:"payment_mode"`
	PaymentStatus        PaymentStatus `db:"payment_status" json:"payment_status"`
	TransactionReference *string       `db:"transaction_reference" json:"transaction_reference,omitempty"`
	RecordedBy           *string       `db:"recorded_by" json:"recorded_by,omitempty"`
	VerifiedBy           *string       `db:"verified_by" json:"verified_by,omitempty"`
	VerificationStatus   *string       `db:"verification_status" json:"verification_status,omitempty"`
	VerificationRemarks  *string       `db:"verification_remarks" json:"verification_remarks,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// FeeConfirmation marks a PENDING payment as SUCCESS.
type FeeConfirmation struct {
	PaymentID            string
	ApplicationID        string
	TransactionReference string
}

// FeeVerification is the staff outcome on the settled payment of an application.
type FeeVerification struct {
	ApplicationID string
	VerifiedBy    string
	Status        string
	Remarks       string
}

// FeeInfo summarises the fee state of an application.
type FeeInfo struct {
	ApplicationID string            `json:"application_id"`
	Status        ApplicationStatus `json:"status"`
	Payments      []FeePayment      `json:"payments"`
}

// GuideAllocation links an application to its faculty guide.
type GuideAllocation struct {
	ID             string    `db:"id" json:"id"`
	ApplicationID  string    `db:"application_id" json:"application_id"`
	ApplicantID    *string   `db:"applicant_id" json:"applicant_id,omitempty"`
	GuideFacultyID string    `db:"guide_faculty_id" json:"guide_faculty_id"`
	Remarks        string    `db:"remarks" json:"remarks"`
	AllocatedBy    string    `db:"allocated_by" json:"allocated_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// GuideAcceptance collects the student side and then the guide side of the allocation.
type GuideAcceptance struct {
	ID                string     `db:"id" json:"id"`
	ApplicationID     string     `db:"application_id" json:"application_id"`
	StudentAcceptance bool       `db:"student_acceptance" json:"student_acceptance"`
	StudentAcceptedAt *time.Time `db:"student_accepted_at" json:"student_accepted_at,omitempty"`
	GuideAcceptance   *bool      `db:"guide_acceptance" json:"guide_acceptance,omitempty"`
	GuideAcceptedAt   *time.Time `db:"guide_accepted_at" json:"guide_accepted_at,omitempty"`
	Remarks           *string    `db:"remarks" json:"remarks,omitempty"`
}

// GuideDecision is the guide side of a GuideAcceptance.
type GuideDecision struct {
	ApplicationID string
	Accept        bool
	Remarks       string
}

// GuideVerification records a guide's verification of an allocated scholar.
type GuideVerification struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	GuideID       string    `db:"guide_id" json:"guide_id"`
	Status        string    `db:"status" json:"status"`
	Remark        string    `db:"remark" json:"remark"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// GuideScholar is an allocation as seen by the guide.
type GuideScholar struct {
	ApplicationID      string            `db:"application_id" json:"application_id"`
	ReferenceNumber    string            `db:"reference_number" json:"reference_number"`
	ApplicantID        *string           `db:"applicant_id" json:"applicant_id,omitempty"`
	Status             ApplicationStatus `db:"status" json:"status"`
	AllocatedAt        time.Time         `db:"allocated_at" json:"allocated_at"`
	VerificationStatus *string           `db:"verification_status" json:"verification_status,omitempty"`
}

// ExemptionStatus tracks a PET exemption request.
type ExemptionStatus string

const (
	ExemptionPending  ExemptionStatus = "PENDING"
	ExemptionApproved ExemptionStatus = "APPROVED"
	ExemptionRejected ExemptionStatus = "REJECTED"
)

// PetExemption is a request to be exempted from the entrance test.
type PetExemption struct {
	ID            string          `db:"id" json:"id"`
	ApplicationID string          `db:"application_id" json:"application_id"`
	ApplicantID   string          `db:"applicant_id" json:"applicant_id"`
	Reason        string          `db:"reason" json:"reason"`
	DocumentURL   *string         `db:"document_url" json:"document_url,omitempty"`
	Status        ExemptionStatus `db:"status" json:"status"`
	ReviewedBy    *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewRemarks *string         `db:"review_remarks" json:"review_remarks,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ReviewedAt    *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// ExemptionReview closes a PENDING exemption.
type ExemptionReview struct {
	ExemptionID string
	Approve     bool
	ReviewedBy  string
	Remarks     string
}

// AllocationCertificate is issued once per application after guide allocation.
type AllocationCertificate struct {
	ID                string    `db:"id" json:"id"`
	ApplicationID     string    `db:"application_id" json:"application_id"`
	CertificateNumber string    `db:"certificate_number" json:"certificate_number"`
	IssuedBy          string    `db:"issued_by" json:"issued_by"`
	FileURL           string    `db:"file_url" json:"file_url"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// CertificateView adds a signed download locator to the certificate record.
type CertificateView struct {
	AllocationCertificate
	DownloadToken string    `json:"download_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}
