package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain/labtest"
)

type labTestCatalog struct {
	conn *gorm.DB
}

func NewLabTestCatalog(conn *gorm.DB) labtest.Catalog {
	return &labTestCatalog{conn: conn}
}

func (r *labTestCatalog) GetByID(ctx context.Context, id uuid.UUID) (*labtest.LabTest, error) {
	var t labtest.LabTest
	err := dbFrom(ctx, r.conn).First(&t, "id = ? AND is_active", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, labtest.ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
