package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labsample"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/sequence"
	"github.com/clinicore/labflow/pkg/metrics"
)

type SampleService struct {
	repo      labsample.Repository
	orderRepo laborder.Repository
	catalog   labtest.Catalog
	seq       sequence.Generator
	tx        TxRunner
	auditSvc  *AuditService
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewSampleService(
	repo labsample.Repository,
	orderRepo laborder.Repository,
	catalog labtest.Catalog,
	seq sequence.Generator,
	tx TxRunner,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *SampleService {
	return &SampleService{
		repo:      repo,
		orderRepo: orderRepo,
		catalog:   catalog,
		seq:       seq,
		tx:        tx,
		auditSvc:  auditSvc,
		metrics:   m,
		log:       log,
	}
}

// RegisterSample records specimen collection for an order item. The barcode
// comes from the per-month atomic counter; the sample type defaults from the
// test catalog when the request does not supply one. The item advances to
// sample_collected; the parent order's status is deliberately left alone.
func (s *SampleService) RegisterSample(ctx context.Context, cmd *labsample.RegisterSampleCommand, callerID uuid.UUID, callerRole string, ip string) (*labsample.LabSample, error) {
	now := time.Now()
	var sample *labsample.LabSample

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.orderRepo.GetItem(ctx, cmd.OrderItemID)
		if err != nil {
			return err
		}
		// Sample references are append-only: once an item has one it keeps it.
		if item.HasSample() {
			return labsample.ErrSampleAlreadyRegistered
		}

		sampleType := cmd.SampleType
		if sampleType == "" {
			if test, err := s.catalog.GetByID(ctx, item.LabTestID); err == nil && test.SampleType != "" {
				sampleType = test.SampleType
			} else {
				sampleType = labsample.DefaultSampleType
			}
		}

		seqNum, err := s.seq.Next(ctx, sequence.SampleScope(now))
		if err != nil {
			return err
		}

		sample = &labsample.LabSample{
			Barcode:         sequence.FormatSampleBarcode(now, seqNum),
			OrderItemID:     item.ID,
			SampleType:      sampleType,
			CollectionTime:  now,
			CollectedByID:   cmd.CollectedByID,
			Status:          labsample.StatusCollected,
			StorageLocation: cmd.StorageLocation,
		}
		if err := s.repo.Create(ctx, sample); err != nil {
			return fmt.Errorf("creating sample: %w", err)
		}

		item.SampleID = &sample.ID
		item.Status = laborder.StatusSampleCollected
		return s.orderRepo.UpdateItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SamplesRegisteredTotal.Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "lab_sample", ResourceID: sample.ID.String(), IPAddress: ip,
	})

	s.log.Info("sample registered",
		zap.String("sample_id", sample.ID.String()),
		zap.String("barcode", sample.Barcode),
		zap.String("order_item_id", cmd.OrderItemID.String()),
	)

	return sample, nil
}

func (s *SampleService) GetSample(ctx context.Context, id uuid.UUID) (*labsample.LabSample, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SampleService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*labsample.LabSample, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// UpdateStatus overwrites the sample status directly; no transition validation.
func (s *SampleService) UpdateStatus(ctx context.Context, id uuid.UUID, cmd *labsample.UpdateSampleStatusCommand, callerID uuid.UUID, callerRole string, ip string) (*labsample.LabSample, error) {
	if !cmd.Status.IsValid() {
		return nil, labsample.ErrInvalidSampleStatus
	}

	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sample.Status = cmd.Status
	if cmd.StorageLocation != nil {
		sample.StorageLocation = *cmd.StorageLocation
	}
	if err := s.repo.Update(ctx, sample); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "lab_sample", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":%q}`, cmd.Status),
	})

	return sample, nil
}

// RejectSample marks the specimen unusable (hemolyzed, insufficient volume,
// mislabeled) and records why. The order item is not reset here; re-collection
// is a manual workflow step.
func (s *SampleService) RejectSample(ctx context.Context, id uuid.UUID, reason string, callerID uuid.UUID, callerRole string, ip string) (*labsample.LabSample, error) {
	if reason == "" {
		return nil, labsample.ErrRejectionReasonRequired
	}

	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sample.Reject(reason)
	if err := s.repo.Update(ctx, sample); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SamplesRejectedTotal.Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "lab_sample", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"rejected","reason":%q}`, reason),
	})

	s.log.Warn("sample rejected",
		zap.String("sample_id", id.String()),
		zap.String("barcode", sample.Barcode),
		zap.String("reason", reason),
	)

	return sample, nil
}
