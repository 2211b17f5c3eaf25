package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/phd-admission-api/internal/dto"
	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type paymentReader interface {
	ListPayments(ctx context.Context, applicationID string) ([]models.FeePayment, error)
}

// FeeService supports the staff single-step and the applicant two-step payment entries, which
// converge on one verification gate.
type FeeService struct {
	engine    *Engine
	apps      applicationReader
	payments  paymentReader
	validator *validator.Validate
	now       func() time.Time
}

// NewFeeService constructs the service.
func NewFeeService(engine *Engine, apps applicationReader, payments paymentReader, validate *validator.Validate) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{engine: engine, apps: apps, payments: payments, validator: validate, now: time.Now}
}

// Record stores a settled payment and marks the application FEE_PAID.
func (s *FeeService) Record(ctx context.Context, applicationID string, req dto.RecordFeeRequest, actor Actor) (*models.FeePayment, error) {
	req.PaymentMode = strings.ToUpper(strings.TrimSpace(req.PaymentMode))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	recordedBy := actor.ID
	payment := &models.FeePayment{
		ApplicationID:    applicationID,
		Amount:           req.Amount,
		PaymentReference: s.paymentReference(req.PaymentReference),
		PaymentMode:      req.PaymentMode,
		PaymentStatus:    models.PaymentPaid,
		RecordedBy:       &recordedBy,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        models.ActionRecordFee,
		ApplicationID: applicationID,
		Actor:         actor,
		Note:          fmt.Sprintf("Fee payment of %.2f recorded (%s, ref %s)", payment.Amount, payment.PaymentMode, payment.PaymentReference),
		Records:       []interface{}{payment},
	}); err != nil {
		return nil, err
	}
	return payment, nil
}

// Initiate opens a PENDING payment for the applicant's own application.
func (s *FeeService) Initiate(ctx context.Context, req dto.InitiateFeeRequest, actor Actor) (*models.FeePayment, error) {
	req.PaymentMode = strings.ToUpper(strings.TrimSpace(req.PaymentMode))
	if req.PaymentMode == "" {
		req.PaymentMode = models.PaymentModeOnline
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	payment := &models.FeePayment{
		ApplicationID:    req.ApplicationID,
		Amount:           req.Amount,
		PaymentReference: s.paymentReference(""),
		PaymentMode:      req.PaymentMode,
		PaymentStatus:    models.PaymentPending,
	}
	if _, err := s.engine.Apply(ctx, Command{
		Action:        ActionInitiateFee,
		ApplicationID: req.ApplicationID,
		Actor:         actor,
		Records:       []interface{}{payment},
	}); err != nil {
		return nil, err
	}
	return payment, nil
}

// Confirm settles a PENDING payment and moves the application to FEE_VERIFICATION_PENDING.
func (s *FeeService) Confirm(ctx context.Context, req dto.ConfirmFeeRequest, actor Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reference := strings.TrimSpace(req.TransactionReference)
	return s.engine.Apply(ctx, Command{
		Action:        models.ActionConfirmFee,
		ApplicationID: req.ApplicationID,
		Actor:         actor,
		Note:          fmt.Sprintf("Fee payment confirmed (txn %s)", reference),
		Records: []interface{}{&models.FeeConfirmation{
			PaymentID:            req.PaymentID,
			ApplicationID:        req.ApplicationID,
			TransactionReference: reference,
		}},
	})
}

// Verify accepts the settled payment.
func (s *FeeService) Verify(ctx context.Context, applicationID, remarks string, actor Actor) (*models.Application, error) {
	return s.decide(ctx, models.ActionVerifyFee, models.VerificationVerified, applicationID, remarks, actor)
}

// Reject refuses the settled payment. Remarks are mandatory.
func (s *FeeService) Reject(ctx context.Context, applicationID, remarks string, actor Actor) (*models.Application, error) {
	return s.decide(ctx, models.ActionRejectFee, models.VerificationRejected, applicationID, remarks, actor)
}

func (s *FeeService) decide(ctx context.Context, action models.WorkflowAction, outcome, applicationID, remarks string, actor Actor) (*models.Application, error) {
	return s.engine.Apply(ctx, Command{
		Action:        action,
		ApplicationID: applicationID,
		Actor:         actor,
		Remarks:       remarks,
		Note:          decisionNote("Fee", outcome, remarks),
		Records: []interface{}{&models.FeeVerification{
			ApplicationID: applicationID,
			VerifiedBy:    actor.ID,
			Status:        outcome,
			Remarks:       strings.TrimSpace(remarks),
		}},
	})
}

// Info returns the fee state of an application to its owner or staff.
func (s *FeeService) Info(ctx context.Context, applicationID string, actor Actor) (*models.FeeInfo, error) {
	app, err := loadReadable(ctx, s.apps, applicationID, actor)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListPayments(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list fee payments")
	}
	if payments == nil {
		payments = []models.FeePayment{}
	}
	return &models.FeeInfo{ApplicationID: app.ID, Status: app.Status, Payments: payments}, nil
}

func (s *FeeService) paymentReference(supplied string) string {
	if ref := strings.TrimSpace(supplied); ref != "" {
		return ref
	}
	return "PAY-" + strings.ToUpper(strconv.FormatInt(s.now().UTC().UnixMicro(), 36))
}
