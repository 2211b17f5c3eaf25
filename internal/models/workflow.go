package models

import (
	"fmt"
	"strings"
)

// WorkflowAction names one edge family of the admission state machine.
type WorkflowAction string

const (
	ActionStartScrutiny      WorkflowAction = "START_SCRUTINY"
	ActionApproveScrutiny    WorkflowAction = "APPROVE_SCRUTINY"
	ActionRejectScrutiny     WorkflowAction = "REJECT_SCRUTINY"
	ActionScheduleInterview  WorkflowAction = "SCHEDULE_INTERVIEW"
	ActionPassInterview      WorkflowAction = "PASS_INTERVIEW"
	ActionFailInterview      WorkflowAction = "FAIL_INTERVIEW"
	ActionVerifyDocuments    WorkflowAction = "VERIFY_DOCUMENTS"
	ActionRejectDocuments    WorkflowAction = "REJECT_DOCUMENTS"
	ActionRecordFee          WorkflowAction = "RECORD_FEE"
	ActionConfirmFee         WorkflowAction = "CONFIRM_FEE"
	ActionVerifyFee          WorkflowAction = "VERIFY_FEE"
	ActionRejectFee          WorkflowAction = "REJECT_FEE"
	ActionAllocateGuide      WorkflowAction = "ALLOCATE_GUIDE"
	ActionStudentAcceptGuide WorkflowAction = "STUDENT_ACCEPT_GUIDE"
	ActionGuideAccept        WorkflowAction = "GUIDE_ACCEPT"
	ActionGuideReject        WorkflowAction = "GUIDE_REJECT"
	ActionRejectIntake       WorkflowAction = "REJECT_INTAKE"
)

var knownStatuses = map[ApplicationStatus]struct{}{
	StatusSubmitted:              {},
	StatusUnderScrutiny:          {},
	StatusScrutinyApproved:       {},
	StatusScrutinyRejected:       {},
	StatusInterviewScheduled:     {},
	StatusInterviewPassed:        {},
	StatusInterviewFailed:        {},
	StatusDocumentsVerified:      {},
	StatusDocumentsRejected:      {},
	StatusFeePaid:                {},
	StatusFeeVerificationPending: {},
	StatusFeeVerified:            {},
	StatusFeeRejected:            {},
	StatusGuideAllocated:         {},
	StatusGuideAcceptedByStudent: {},
	StatusAdmissionConfirmed:     {},
	StatusGuideRejected:          {},
	StatusIntakeRejected:         {},
}

// ParseApplicationStatus validates a status name coming from a query string.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	status := ApplicationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownStatuses[status]; !ok {
		return "", fmt.Errorf("unknown application status %q", raw)
	}
	return status, nil
}
