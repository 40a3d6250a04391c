package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/domain/patient"
	"github.com/clinicore/labflow/internal/sequence"
	"github.com/clinicore/labflow/pkg/metrics"
)

// TxRunner runs a function inside a database transaction. Repository calls
// made with the derived context join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderService struct {
	repo        laborder.Repository
	patientRepo patient.Repository
	userRepo    UserRepository
	catalog     labtest.Catalog
	seq         sequence.Generator
	tx          TxRunner
	auditSvc    *AuditService
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewOrderService(
	repo laborder.Repository,
	patientRepo patient.Repository,
	userRepo UserRepository,
	catalog labtest.Catalog,
	seq sequence.Generator,
	tx TxRunner,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		repo:        repo,
		patientRepo: patientRepo,
		userRepo:    userRepo,
		catalog:     catalog,
		seq:         seq,
		tx:          tx,
		auditSvc:    auditSvc,
		metrics:     m,
		log:         log,
	}
}

// DoctorRef is the trimmed doctor summary embedded in order payloads.
type DoctorRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// PatientRef is the trimmed patient summary embedded in order payloads.
type PatientRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	MRN  string    `json:"mrn"`
}

// OrderDetail is an order with its doctor and patient resolved for display.
type OrderDetail struct {
	*laborder.LabOrder
	Doctor  *DoctorRef  `json:"doctor,omitempty"`
	Patient *PatientRef `json:"patient,omitempty"`
}

// Describe resolves the order's doctor and patient into display summaries.
// A summary that cannot be resolved is left empty; the order itself is
// always returned.
func (s *OrderService) Describe(ctx context.Context, order *laborder.LabOrder) *OrderDetail {
	detail := &OrderDetail{LabOrder: order}
	if doc, err := s.userRepo.GetByID(ctx, order.DoctorID); err == nil {
		detail.Doctor = &DoctorRef{ID: doc.ID, Name: doc.FullName(), Email: doc.Email}
	}
	if p, err := s.patientRepo.GetByID(ctx, order.PatientID); err == nil {
		detail.Patient = &PatientRef{ID: p.ID, Name: p.FullName(), MRN: p.MRN}
	}
	return detail
}

// CreateOrder persists a new order with one item per resolvable test id.
// Test ids that do not resolve in the catalog are skipped (the order is
// still created) and returned so the caller can see what was dropped.
// The order number comes from the per-year atomic counter inside the same
// transaction, so a failed create never burns a number and two concurrent
// creates never share one.
func (s *OrderService) CreateOrder(ctx context.Context, cmd *laborder.CreateOrderCommand, callerID uuid.UUID, callerRole string, ip string) (*laborder.LabOrder, []uuid.UUID, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return nil, nil, err
	}

	if _, err := s.patientRepo.GetByID(ctx, cmd.PatientID); err != nil {
		return nil, nil, fmt.Errorf("verifying patient: %w", err)
	}

	now := time.Now()
	var (
		order   *laborder.LabOrder
		skipped []uuid.UUID
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		seqNum, err := s.seq.Next(ctx, sequence.OrderScope(now))
		if err != nil {
			return err
		}

		var items []laborder.LabOrderItem
		for _, testID := range cmd.TestIDs {
			if _, err := s.catalog.GetByID(ctx, testID); err != nil {
				skipped = append(skipped, testID)
				continue
			}
			items = append(items, laborder.LabOrderItem{
				LabTestID: testID,
				Status:    laborder.StatusOrdered,
			})
		}
		if len(items) == 0 {
			return laborder.ErrNoTestsResolved
		}

		order = &laborder.LabOrder{
			OrderNumber:   sequence.FormatOrderNumber(now.Year(), seqNum),
			DoctorID:      cmd.DoctorID,
			PatientID:     cmd.PatientID,
			OrderDate:     now,
			ClinicalNotes: cmd.ClinicalNotes,
			Diagnosis:     cmd.Diagnosis,
			Status:        laborder.StatusOrdered,
			IsUrgent:      cmd.IsUrgent,
			Items:         items,
			CreatedBy:     cmd.CreatedBy,
		}
		return s.repo.Create(ctx, order)
	})
	if err != nil {
		s.log.Error("failed to create lab order", zap.Error(err))
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreatedTotal.Inc()
	}
	if len(skipped) > 0 {
		ids := make([]string, len(skipped))
		for i, id := range skipped {
			ids[i] = id.String()
		}
		s.log.Warn("unresolved test ids skipped during order creation",
			zap.String("order_number", order.OrderNumber),
			zap.Strings("test_ids", ids),
		)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "lab_order",
		ResourceID:   order.ID.String(),
		IPAddress:    ip,
	})

	s.log.Info("lab order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(order.Items)),
		zap.Bool("urgent", order.IsUrgent),
	)

	return order, skipped, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*laborder.LabOrder, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *OrderService) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*laborder.LabOrder, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *OrderService) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*laborder.LabOrder, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// ListPending returns the technician work queue: not-yet-terminal orders,
// urgent first, then oldest first.
func (s *OrderService) ListPending(ctx context.Context) ([]*laborder.LabOrder, error) {
	return s.repo.ListPending(ctx)
}

func (s *OrderService) ListOrders(ctx context.Context, q *laborder.ListOrdersQuery) (*laborder.PagedOrders, error) {
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// UpdateStatus overwrites the order status directly, without transition
// validation. Completion and cancellation normally arrive through result
// entry and CancelOrder; this is the manual override.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status laborder.Status, callerID uuid.UUID, callerRole string, ip string) (*laborder.LabOrder, error) {
	if !status.IsValid() {
		return nil, laborder.ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "lab_order", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":%q}`, status),
	})

	return s.repo.GetByID(ctx, id)
}

// CancelOrder cancels the order and cascades the cancellation to every item,
// annotating each item's notes with the reason. Items already completed are
// cancelled too; their result rows are untouched.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID, cmd *laborder.CancelOrderCommand, callerID uuid.UUID, callerRole string, ip string) (*laborder.LabOrder, error) {
	var order *laborder.LabOrder

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		order.CancellationReason = cmd.Reason
		if err := s.repo.Cancel(ctx, order); err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.Status = laborder.StatusCancelled
			item.AnnotateCancellation(cmd.Reason)
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "cancel", ResourceType: "lab_order", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"reason":%q}`, cmd.Reason),
	})

	s.log.Info("lab order cancelled",
		zap.String("order_id", id.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items_cascaded", len(order.Items)),
	)

	return order, nil
}

func validateCreateOrder(cmd *laborder.CreateOrderCommand) error {
	var errs []string

	if cmd.DoctorID == uuid.Nil {
		errs = append(errs, "doctor_id is required")
	}
	if cmd.PatientID == uuid.Nil {
		errs = append(errs, "patient_id is required")
	}
	if len(cmd.TestIDs) == 0 {
		errs = append(errs, "at least one test_id is required")
	}
	if len(strings.TrimSpace(cmd.ClinicalNotes)) > 10_000 {
		errs = append(errs, "clinical_notes is too long")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
