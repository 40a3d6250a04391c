package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labresult"
)

type labResultRepo struct {
	conn *gorm.DB
}

func NewLabResultRepository(conn *gorm.DB) labresult.Repository {
	return &labResultRepo{conn: conn}
}

func (r *labResultRepo) Create(ctx context.Context, res *labresult.LabResult) error {
	return dbFrom(ctx, r.conn).Create(res).Error
}

func (r *labResultRepo) GetByID(ctx context.Context, id uuid.UUID) (*labresult.LabResult, error) {
	var res labresult.LabResult
	err := dbFrom(ctx, r.conn).First(&res, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, labresult.ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *labResultRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*labresult.OrderResultRow, error) {
	items, err := r.itemsWithResults(ctx, "lab.order_items.lab_order_id = ?", orderID)
	if err != nil {
		return nil, err
	}

	rows := make([]*labresult.OrderResultRow, 0, len(items))
	for _, it := range items {
		res, name, code, err := r.resultForItem(ctx, it)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &labresult.OrderResultRow{
			Result:      res,
			OrderItemID: it.ID,
			TestName:    name,
			TestCode:    code,
		})
	}
	return rows, nil
}

func (r *labResultRepo) ListCompletedByPatient(ctx context.Context, patientID uuid.UUID) ([]*labresult.PatientResultRow, error) {
	var orders []*laborder.LabOrder
	err := dbFrom(ctx, r.conn).
		Preload("Items").
		Where("patient_id = ? AND status = ?", patientID, laborder.StatusCompleted).
		Order("order_date DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	var rows []*labresult.PatientResultRow
	for _, o := range orders {
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status != laborder.StatusCompleted || it.ResultID == nil {
				continue
			}
			res, name, code, err := r.resultForItem(ctx, it)
			if err != nil {
				return nil, err
			}
			rows = append(rows, &labresult.PatientResultRow{
				Result:      res,
				OrderID:     o.ID,
				OrderNumber: o.OrderNumber,
				OrderDate:   o.OrderDate,
				DoctorID:    o.DoctorID,
				TestName:    name,
				TestCode:    code,
			})
		}
	}
	return rows, nil
}

func (r *labResultRepo) Verify(ctx context.Context, id uuid.UUID, verifiedByID uuid.UUID, at time.Time) (*labresult.LabResult, error) {
	db := dbFrom(ctx, r.conn)
	res := db.Model(&labresult.LabResult{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_verified":       true,
			"verified_by_id":    verifiedByID,
			"verification_time": at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, labresult.ErrResultNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *labResultRepo) itemsWithResults(ctx context.Context, cond string, args ...any) ([]*laborder.LabOrderItem, error) {
	var items []*laborder.LabOrderItem
	err := dbFrom(ctx, r.conn).
		Table("lab.order_items").
		Where(cond, args...).
		Where("result_id IS NOT NULL").
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// resultForItem loads the item's result joined with its test identity.
func (r *labResultRepo) resultForItem(ctx context.Context, it *laborder.LabOrderItem) (*labresult.LabResult, string, string, error) {
	var res labresult.LabResult
	if err := dbFrom(ctx, r.conn).First(&res, "id = ?", it.ResultID).Error; err != nil {
		return nil, "", "", err
	}

	var test struct {
		Name string
		Code string
	}
	err := dbFrom(ctx, r.conn).
		Table("lab.tests").
		Select("name, code").
		Where("id = ?", it.LabTestID).
		Scan(&test).Error
	if err != nil {
		return nil, "", "", err
	}
	return &res, test.Name, test.Code, nil
}
