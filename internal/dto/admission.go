package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

// CreateApplicationRequest is the PET application form. EXTERNAL candidates also send contact
// fields and may send a one-time password used when intake provisions their account.
type CreateApplicationRequest struct {
	CandidateType    models.CandidateType `json:"candidateType" validate:"required,oneof=INTERNAL EXTERNAL"`
	Payload          json.RawMessage      `json:"payload" validate:"required"`
	Email            string               `json:"email" validate:"omitempty,email"`
	Mobile           string               `json:"mobile"`
	IdentityDocument string               `json:"identityDocument"`
	FullName         string               `json:"fullName"`
	Password         string               `json:"password" validate:"omitempty,min=8"`
}

// CreateApplicationResponse echoes the handle the applicant tracks the application by.
type CreateApplicationResponse struct {
	ID              string                   `json:"id"`
	ReferenceNumber string                   `json:"referenceNumber"`
	Status          models.ApplicationStatus `json:"status"`
}

// ApplicationListQuery filters the staff listing.
type ApplicationListQuery struct {
	Status        []string `form:"status"`
	CandidateType string   `form:"candidateType"`
	Search        string   `form:"search"`
	Page          int      `form:"page"`
	PageSize      int      `form:"pageSize"`
}

// RemarksRequest carries reviewer remarks for single-outcome decisions.
type RemarksRequest struct {
	Remarks string `json:"remarks"`
}

// ScrutinyDecisionRequest records the DRC scrutiny outcome.
type ScrutinyDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Remarks  string `json:"remarks"`
}

// ScheduleInterviewRequest fixes the interview slot of an application.
type ScheduleInterviewRequest struct {
	InterviewDate     time.Time `json:"interviewDate" validate:"required"`
	InterviewMode     string    `json:"interviewMode" validate:"required,oneof=ONLINE OFFLINE"`
	InterviewLocation string    `json:"interviewLocation"`
	PanelMembers      []string  `json:"panelMembers" validate:"omitempty,dive,required"`
}

// EvaluateInterviewRequest records the panel outcome of an interview.
type EvaluateInterviewRequest struct {
	Decision        string `json:"decision" validate:"required,oneof=PASS FAIL"`
	EvaluationScore int    `json:"evaluationScore" validate:"min=0,max=100"`
	Recommendation  string `json:"recommendation"`
	Remarks         string `json:"remarks"`
}

// DocumentVerificationRequest records the document check outcome.
type DocumentVerificationRequest struct {
	VerificationStatus string `json:"verificationStatus" validate:"required,oneof=VERIFIED REJECTED"`
	Remarks            string `json:"remarks"`
}

// RecordFeeRequest records a settled payment in one step.
type RecordFeeRequest struct {
	Amount           float64 `json:"amount" validate:"required,gt=0"`
	PaymentMode      string  `json:"paymentMode" validate:"required,oneof=ONLINE OFFLINE"`
	PaymentReference string  `json:"paymentReference"`
}

// InitiateFeeRequest opens a PENDING self-service payment.
type InitiateFeeRequest struct {
	ApplicationID string  `json:"applicationId" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMode   string  `json:"paymentMode" validate:"omitempty,oneof=ONLINE OFFLINE"`
}

// ConfirmFeeRequest settles a PENDING payment.
type ConfirmFeeRequest struct {
	ApplicationID        string `json:"applicationId" validate:"required"`
	PaymentID            string `json:"paymentId" validate:"required"`
	TransactionReference string `json:"transactionReference" validate:"required"`
}

// FeeQueueQuery selects the payment or verification fee queue.
type FeeQueueQuery struct {
	Type string `form:"type"`
}

// AllocateGuideRequest names the faculty guide of an application.
type AllocateGuideRequest struct {
	GuideFacultyID string `json:"guideFacultyId" validate:"required"`
	Remarks        string `json:"remarks"`
}

// GuideDecisionRequest is the allocated guide's answer to the student's acceptance.
type GuideDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=ACCEPT REJECT"`
	Remarks  string `json:"remarks"`
}

// GuideVerifyRequest records the guide's verification of an allocated scholar.
type GuideVerifyRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=VERIFIED REJECTED"`
	Remark        string `json:"remark"`
}

// ExemptionRequest asks for exemption from the entrance test.
type ExemptionRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
	DocumentURL   string `json:"documentUrl" validate:"omitempty,url"`
}

// ExemptionReviewRequest closes an exemption request.
type ExemptionReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Remarks  string `json:"remarks"`
}
