package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labsample"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/sequence"
)

type sampleServiceFixture struct {
	svc        *SampleService
	orderRepo  *fakeOrderRepo
	sampleRepo *fakeSampleRepo
	order      *laborder.LabOrder
	techID     uuid.UUID
}

func newSampleServiceFixture(t *testing.T, test *labtest.LabTest) *sampleServiceFixture {
	t.Helper()

	orderRepo := newFakeOrderRepo()
	sampleRepo := newFakeSampleRepo()

	order := &laborder.LabOrder{
		OrderNumber: "LAB-2026-0001",
		DoctorID:    uuid.New(),
		PatientID:   uuid.New(),
		OrderDate:   time.Now(),
		Status:      laborder.StatusOrdered,
		Items: []laborder.LabOrderItem{
			{LabTestID: test.ID, Status: laborder.StatusOrdered},
		},
		CreatedBy: uuid.New(),
	}
	require.NoError(t, orderRepo.Create(context.Background(), order))

	svc := NewSampleService(
		sampleRepo,
		orderRepo,
		newFakeCatalog(test),
		sequence.NewMemoryGenerator(),
		fakeTx{},
		newTestAuditService(),
		nil,
		zap.NewNop(),
	)

	return &sampleServiceFixture{
		svc:        svc,
		orderRepo:  orderRepo,
		sampleRepo: sampleRepo,
		order:      order,
		techID:     uuid.New(),
	}
}

func TestRegisterSample(t *testing.T) {
	ctx := context.Background()
	test := &labtest.LabTest{ID: uuid.New(), Name: "Serum Potassium", Code: "K", SampleType: "serum"}

	t.Run("links the sample and advances the item", func(t *testing.T) {
		f := newSampleServiceFixture(t, test)
		itemID := f.order.Items[0].ID

		sample, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
			OrderItemID:   itemID,
			SampleType:    "whole blood",
			CollectedByID: f.techID,
		}, f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)

		assert.Equal(t, labsample.StatusCollected, sample.Status)
		assert.Equal(t, "whole blood", sample.SampleType)
		expected := fmt.Sprintf("S%s00001", time.Now().Format("200601"))
		assert.Equal(t, expected, sample.Barcode)

		item, err := f.orderRepo.GetItem(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, laborder.StatusSampleCollected, item.Status)
		require.NotNil(t, item.SampleID)
		assert.Equal(t, sample.ID, *item.SampleID)

		// The parent order status is not touched by sample registration.
		order, err := f.orderRepo.GetByID(ctx, f.order.ID)
		require.NoError(t, err)
		assert.Equal(t, laborder.StatusOrdered, order.Status)
	})

	t.Run("defaults the sample type from the catalog", func(t *testing.T) {
		f := newSampleServiceFixture(t, test)

		sample, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
			OrderItemID:   f.order.Items[0].ID,
			CollectedByID: f.techID,
		}, f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, "serum", sample.SampleType)
	})

	t.Run("falls back to blood when the catalog has no type", func(t *testing.T) {
		bare := &labtest.LabTest{ID: uuid.New(), Name: "Mystery Panel", Code: "MYS"}
		f := newSampleServiceFixture(t, bare)

		sample, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
			OrderItemID:   f.order.Items[0].ID,
			CollectedByID: f.techID,
		}, f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, labsample.DefaultSampleType, sample.SampleType)
	})

	t.Run("rejects a second sample for the same item", func(t *testing.T) {
		f := newSampleServiceFixture(t, test)
		cmd := &labsample.RegisterSampleCommand{
			OrderItemID:   f.order.Items[0].ID,
			CollectedByID: f.techID,
		}

		_, err := f.svc.RegisterSample(ctx, cmd, f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)

		_, err = f.svc.RegisterSample(ctx, cmd, f.techID, "lab_technician", "10.0.0.2")
		assert.ErrorIs(t, err, labsample.ErrSampleAlreadyRegistered)
	})

	t.Run("unknown order item", func(t *testing.T) {
		f := newSampleServiceFixture(t, test)

		_, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
			OrderItemID:   uuid.New(),
			CollectedByID: f.techID,
		}, f.techID, "lab_technician", "10.0.0.2")
		assert.ErrorIs(t, err, laborder.ErrItemNotFound)
	})
}

func TestUpdateSampleStatus(t *testing.T) {
	ctx := context.Background()
	test := &labtest.LabTest{ID: uuid.New(), Name: "CBC", Code: "CBC", SampleType: "blood"}
	f := newSampleServiceFixture(t, test)

	sample, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
		OrderItemID:   f.order.Items[0].ID,
		CollectedByID: f.techID,
	}, f.techID, "lab_technician", "10.0.0.2")
	require.NoError(t, err)

	t.Run("overwrites status and storage location", func(t *testing.T) {
		loc := "rack B-12"
		updated, err := f.svc.UpdateStatus(ctx, sample.ID, &labsample.UpdateSampleStatusCommand{
			Status:          labsample.StatusProcessing,
			StorageLocation: &loc,
		}, f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, labsample.StatusProcessing, updated.Status)
		assert.Equal(t, "rack B-12", updated.StorageLocation)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, sample.ID, &labsample.UpdateSampleStatusCommand{
			Status: labsample.Status("vaporized"),
		}, f.techID, "lab_technician", "10.0.0.2")
		assert.ErrorIs(t, err, labsample.ErrInvalidSampleStatus)
	})
}

func TestRejectSample(t *testing.T) {
	ctx := context.Background()
	test := &labtest.LabTest{ID: uuid.New(), Name: "CBC", Code: "CBC", SampleType: "blood"}
	f := newSampleServiceFixture(t, test)

	sample, err := f.svc.RegisterSample(ctx, &labsample.RegisterSampleCommand{
		OrderItemID:   f.order.Items[0].ID,
		CollectedByID: f.techID,
	}, f.techID, "lab_technician", "10.0.0.2")
	require.NoError(t, err)

	t.Run("requires a reason", func(t *testing.T) {
		_, err := f.svc.RejectSample(ctx, sample.ID, "", f.techID, "lab_technician", "10.0.0.2")
		assert.ErrorIs(t, err, labsample.ErrRejectionReasonRequired)
	})

	t.Run("records status and reason", func(t *testing.T) {
		rejected, err := f.svc.RejectSample(ctx, sample.ID, "hemolyzed", f.techID, "lab_technician", "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, labsample.StatusRejected, rejected.Status)
		assert.Equal(t, "hemolyzed", rejected.RejectionReason)

		stored, err := f.sampleRepo.GetByID(ctx, sample.ID)
		require.NoError(t, err)
		assert.Equal(t, labsample.StatusRejected, stored.Status)
	})
}
