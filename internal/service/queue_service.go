package service

import (
	"context"

	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

// Queue names a stage work list.
type Queue string

const (
	QueueScrutiny          Queue = "scrutiny"
	QueueIntake            Queue = "intake"
	QueueInterviewEligible Queue = "interview-eligible"
	QueueEvaluationPending Queue = "evaluation-pending"
	QueueVerification      Queue = "verification"
	QueueFeePayment        Queue = "fee-payment"
	QueueFeeVerification   Queue = "fee-verification"
	QueueGuidePending      Queue = "guide-pending"
)

type queuePolicy struct {
	query repository.QueueQuery
	roles []models.UserRole
}

// The scrutiny and intake queues are FIFO by submission; downstream gates serve the longest
// wait at the gate first.
var queuePolicies = map[Queue]queuePolicy{
	QueueScrutiny: {
		query: repository.QueueQuery{Statuses: scrutinySources, Order: repository.OrderByCreated},
		roles: staffRoles,
	},
	QueueIntake: {
		query: repository.QueueQuery{
			Statuses:      []models.ApplicationStatus{models.StatusSubmitted},
			CandidateType: models.CandidateExternal,
			Unlinked:      true,
			Order:         repository.OrderByCreated,
		},
		roles: adminRoles,
	},
	QueueInterviewEligible: {
		query: repository.QueueQuery{Statuses: []models.ApplicationStatus{models.StatusScrutinyApproved}, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
	QueueEvaluationPending: {
		query: repository.QueueQuery{Statuses: []models.ApplicationStatus{models.StatusInterviewScheduled}, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
	QueueVerification: {
		query: repository.QueueQuery{Statuses: []models.ApplicationStatus{models.StatusInterviewPassed}, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
	QueueFeePayment: {
		query: repository.QueueQuery{Statuses: []models.ApplicationStatus{models.StatusDocumentsVerified}, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
	QueueFeeVerification: {
		query: repository.QueueQuery{Statuses: feeSettled, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
	QueueGuidePending: {
		query: repository.QueueQuery{Statuses: []models.ApplicationStatus{models.StatusFeeVerified}, Order: repository.OrderByUpdated},
		roles: staffRoles,
	},
}

type queueReader interface {
	ListQueue(ctx context.Context, q repository.QueueQuery) ([]models.QueueEntry, error)
}

// QueueService serves the per-gate work lists.
type QueueService struct {
	apps queueReader
}

// NewQueueService constructs the service.
func NewQueueService(apps queueReader) *QueueService {
	return &QueueService{apps: apps}
}

// List returns the named queue if the actor's role owns that gate.
func (s *QueueService) List(ctx context.Context, queue Queue, actor Actor) ([]models.QueueEntry, error) {
	policy, ok := queuePolicies[queue]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown queue "+string(queue))
	}
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if !hasRole(policy.roles, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	entries, err := s.apps.ListQueue(ctx, policy.query)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list queue")
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	for i := range entries {
		entries[i].RedactCredentials()
	}
	return entries, nil
}

// FeeQueue maps the fee listing type parameter to its queue.
func FeeQueue(kind string) (Queue, error) {
	switch kind {
	case "", "payment":
		return QueueFeePayment, nil
	case "verification":
		return QueueFeeVerification, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "type must be payment or verification")
	}
}
