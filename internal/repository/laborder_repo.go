package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain/laborder"
)

type labOrderRepo struct {
	conn *gorm.DB
}

func NewLabOrderRepository(conn *gorm.DB) laborder.Repository {
	return &labOrderRepo{conn: conn}
}

func (r *labOrderRepo) Create(ctx context.Context, o *laborder.LabOrder) error {
	// gorm inserts the items through the association in the same statement batch.
	return dbFrom(ctx, r.conn).Create(o).Error
}

func (r *labOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*laborder.LabOrder, error) {
	var o laborder.LabOrder
	err := dbFrom(ctx, r.conn).Preload("Items").First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, laborder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *labOrderRepo) GetItem(ctx context.Context, itemID uuid.UUID) (*laborder.LabOrderItem, error) {
	var it laborder.LabOrderItem
	err := dbFrom(ctx, r.conn).First(&it, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, laborder.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *labOrderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]*laborder.LabOrderItem, error) {
	var items []*laborder.LabOrderItem
	err := dbFrom(ctx, r.conn).
		Where("lab_order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *labOrderRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*laborder.LabOrder, error) {
	var orders []*laborder.LabOrder
	err := dbFrom(ctx, r.conn).
		Preload("Items").
		Where("patient_id = ?", patientID).
		Order("order_date DESC").
		Find(&orders).Error
	return orders, err
}

func (r *labOrderRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*laborder.LabOrder, error) {
	var orders []*laborder.LabOrder
	err := dbFrom(ctx, r.conn).
		Preload("Items").
		Where("doctor_id = ?", doctorID).
		Order("order_date DESC").
		Find(&orders).Error
	return orders, err
}

func (r *labOrderRepo) ListPending(ctx context.Context) ([]*laborder.LabOrder, error) {
	var orders []*laborder.LabOrder
	err := dbFrom(ctx, r.conn).
		Preload("Items").
		Where("status IN ?", laborder.PendingStatuses).
		Order("is_urgent DESC, order_date ASC").
		Find(&orders).Error
	return orders, err
}

func (r *labOrderRepo) List(ctx context.Context, q *laborder.ListOrdersQuery) (*laborder.PagedOrders, error) {
	db := dbFrom(ctx, r.conn).Model(&laborder.LabOrder{})
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.Urgent != nil {
		db = db.Where("is_urgent = ?", *q.Urgent)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	var orders []*laborder.LabOrder
	offset := (q.Page - 1) * q.PageSize
	err := db.Preload("Items").
		Order("order_date DESC").
		Limit(q.PageSize).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &laborder.PagedOrders{
		Orders:     orders,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *labOrderRepo) ListRecentByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*laborder.LabOrder, error) {
	var orders []*laborder.LabOrder
	err := dbFrom(ctx, r.conn).
		Preload("Items").
		Where("patient_id = ?", patientID).
		Order("order_date DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *labOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status laborder.Status) error {
	res := dbFrom(ctx, r.conn).
		Model(&laborder.LabOrder{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return laborder.ErrOrderNotFound
	}
	return nil
}

func (r *labOrderRepo) UpdateItem(ctx context.Context, item *laborder.LabOrderItem) error {
	return dbFrom(ctx, r.conn).
		Model(&laborder.LabOrderItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"status":    item.Status,
			"notes":     item.Notes,
			"sample_id": item.SampleID,
			"result_id": item.ResultID,
		}).Error
}

func (r *labOrderRepo) Cancel(ctx context.Context, o *laborder.LabOrder) error {
	now := time.Now()
	o.CancelledAt = &now
	o.Status = laborder.StatusCancelled
	return dbFrom(ctx, r.conn).
		Model(&laborder.LabOrder{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{
			"status":              o.Status,
			"cancelled_at":        o.CancelledAt,
			"cancellation_reason": o.CancellationReason,
		}).Error
}
