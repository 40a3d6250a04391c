package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain/labsample"
)

type labSampleRepo struct {
	conn *gorm.DB
}

func NewLabSampleRepository(conn *gorm.DB) labsample.Repository {
	return &labSampleRepo{conn: conn}
}

func (r *labSampleRepo) Create(ctx context.Context, s *labsample.LabSample) error {
	return dbFrom(ctx, r.conn).Create(s).Error
}

func (r *labSampleRepo) GetByID(ctx context.Context, id uuid.UUID) (*labsample.LabSample, error) {
	var s labsample.LabSample
	err := dbFrom(ctx, r.conn).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, labsample.ErrSampleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *labSampleRepo) GetByBarcode(ctx context.Context, barcode string) (*labsample.LabSample, error) {
	var s labsample.LabSample
	err := dbFrom(ctx, r.conn).First(&s, "sample_id = ?", barcode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, labsample.ErrSampleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *labSampleRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*labsample.LabSample, error) {
	var samples []*labsample.LabSample
	err := dbFrom(ctx, r.conn).
		Joins("JOIN lab.order_items ON lab.order_items.id = lab.samples.order_item_id").
		Where("lab.order_items.lab_order_id = ?", orderID).
		Order("lab.samples.collection_time ASC").
		Find(&samples).Error
	return samples, err
}

func (r *labSampleRepo) Update(ctx context.Context, s *labsample.LabSample) error {
	return dbFrom(ctx, r.conn).
		Model(&labsample.LabSample{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"status":           s.Status,
			"rejection_reason": s.RejectionReason,
			"storage_location": s.StorageLocation,
		}).Error
}
