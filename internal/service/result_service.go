package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labresult"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/domain/patient"
	"github.com/clinicore/labflow/internal/notify"
	"github.com/clinicore/labflow/pkg/metrics"
)

// Wakeable lets the service nudge the outbox dispatcher after a critical
// result commits, instead of waiting for its next poll.
type Wakeable interface {
	Wake()
}

type ResultService struct {
	repo        labresult.Repository
	orderRepo   laborder.Repository
	patientRepo patient.Repository
	userRepo    UserRepository
	catalog     labtest.Catalog
	outbox      notify.Outbox
	dispatcher  Wakeable
	tx          TxRunner
	auditSvc    *AuditService
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewResultService(
	repo labresult.Repository,
	orderRepo laborder.Repository,
	patientRepo patient.Repository,
	userRepo UserRepository,
	catalog labtest.Catalog,
	outbox notify.Outbox,
	dispatcher Wakeable,
	tx TxRunner,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *ResultService {
	return &ResultService{
		repo:        repo,
		orderRepo:   orderRepo,
		patientRepo: patientRepo,
		userRepo:    userRepo,
		catalog:     catalog,
		outbox:      outbox,
		dispatcher:  dispatcher,
		tx:          tx,
		auditSvc:    auditSvc,
		metrics:     m,
		log:         log,
	}
}

// EnterResult records the measured outcome for an order item. The result row,
// the item advancing to completed, the order-completion cascade, and the
// critical-alert outbox row all happen in one transaction,
// so a partially applied result can never be observed and the completion
// check cannot race a concurrent sibling entry into a stale read.
func (s *ResultService) EnterResult(ctx context.Context, cmd *labresult.EnterResultCommand, callerID uuid.UUID, callerRole string, ip string) (*labresult.LabResult, error) {
	if err := validateEnterResult(cmd); err != nil {
		return nil, err
	}

	flag := cmd.Flag
	if flag == "" {
		flag = labresult.FlagNormal
	}
	if !flag.IsValid() {
		return nil, labresult.ErrInvalidFlag
	}

	now := time.Now()
	var (
		result         *labresult.LabResult
		order          *laborder.LabOrder
		orderCompleted bool
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.orderRepo.GetItem(ctx, cmd.OrderItemID)
		if err != nil {
			return err
		}
		// Result references are append-only; corrections go through a new
		// order, not by overwriting a recorded value.
		if item.HasResult() {
			return labresult.ErrResultAlreadyEntered
		}

		order, err = s.orderRepo.GetByID(ctx, item.LabOrderID)
		if err != nil {
			return err
		}

		units := cmd.Units
		refRange := cmd.ReferenceRange
		var testName, testCode string
		if test, err := s.catalog.GetByID(ctx, item.LabTestID); err == nil {
			if units == "" {
				units = test.Units
			}
			if refRange == "" {
				refRange = test.NormalRange
			}
			testName, testCode = test.Name, test.Code
		}

		result = &labresult.LabResult{
			OrderItemID:    item.ID,
			ResultValue:    cmd.ResultValue,
			Units:          units,
			ReferenceRange: refRange,
			Interpretation: cmd.Interpretation,
			Flag:           flag,
			ResultTime:     now,
			PerformedByID:  cmd.PerformedByID,
			IsVerified:     false,
			Comments:       cmd.Comments,
			AdditionalData: cmd.AdditionalData,
		}
		if err := s.repo.Create(ctx, result); err != nil {
			return fmt.Errorf("creating result: %w", err)
		}

		item.ResultID = &result.ID
		item.Status = laborder.StatusCompleted
		if err := s.orderRepo.UpdateItem(ctx, item); err != nil {
			return err
		}

		// Completion cascade: re-read all siblings inside this transaction.
		items, err := s.orderRepo.ListItems(ctx, order.ID)
		if err != nil {
			return err
		}
		if laborder.AllItemsCompleted(items) && order.Status != laborder.StatusCancelled {
			if err := s.orderRepo.UpdateStatus(ctx, order.ID, laborder.StatusCompleted); err != nil {
				return err
			}
			order.Status = laborder.StatusCompleted
			orderCompleted = true
		}

		if flag == labresult.FlagCritical {
			return s.enqueueCriticalAlert(ctx, order, result, testName, testCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ResultsEnteredTotal.WithLabelValues(string(flag)).Inc()
		if orderCompleted {
			s.metrics.OrdersCompletedTotal.Inc()
		}
	}
	if flag == labresult.FlagCritical && s.dispatcher != nil {
		s.dispatcher.Wake()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "lab_result", ResourceID: result.ID.String(), IPAddress: ip,
	})

	s.log.Info("result entered",
		zap.String("result_id", result.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("flag", string(flag)),
		zap.Bool("order_completed", orderCompleted),
	)

	return result, nil
}

// enqueueCriticalAlert writes the alert event in the caller's transaction.
// Lookups that fail degrade the payload rather than abort the result write.
func (s *ResultService) enqueueCriticalAlert(ctx context.Context, order *laborder.LabOrder, result *labresult.LabResult, testName, testCode string) error {
	ev := &notify.CriticalResultEvent{
		ResultID:       result.ID,
		OrderNumber:    order.OrderNumber,
		TestName:       testName,
		TestCode:       testCode,
		Value:          result.ResultValue,
		Units:          result.Units,
		ReferenceRange: result.ReferenceRange,
		Interpretation: result.Interpretation,
		OccurredAt:     result.ResultTime,
	}

	if p, err := s.patientRepo.GetByID(ctx, order.PatientID); err == nil {
		ev.PatientName = p.FullName()
	} else {
		ev.PatientName = order.PatientID.String()
	}

	doctor, err := s.userRepo.GetByID(ctx, order.DoctorID)
	if err != nil {
		// Without a recipient there is nothing to deliver; the result still
		// stands, so log loudly and move on.
		s.log.Error("cannot resolve ordering doctor for critical alert",
			zap.String("order_number", order.OrderNumber),
			zap.String("doctor_id", order.DoctorID.String()),
			zap.Error(err),
		)
		return nil
	}
	ev.DoctorName = doctor.FullName()
	ev.DoctorEmail = doctor.Email

	if err := s.outbox.Enqueue(ctx, notify.EventTypeCriticalResult, ev); err != nil {
		return fmt.Errorf("enqueueing critical alert: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CriticalAlertsQueuedTotal.Inc()
	}
	return nil
}

func (s *ResultService) GetResult(ctx context.Context, id uuid.UUID) (*labresult.LabResult, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ResultService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*labresult.OrderResultRow, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// ListByPatient returns the patient's completed results, one row per
// completed item with order and doctor context.
func (s *ResultService) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*labresult.PatientResultRow, error) {
	return s.repo.ListCompletedByPatient(ctx, patientID)
}

func validateEnterResult(cmd *labresult.EnterResultCommand) error {
	var errs []string

	if cmd.OrderItemID == uuid.Nil {
		errs = append(errs, "order_item_id is required")
	}
	if cmd.ResultValue == "" {
		errs = append(errs, "result_value is required")
	}
	if cmd.PerformedByID == uuid.Nil {
		errs = append(errs, "performed_by_id is required")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
