package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain/patient"
)

type patientRepo struct {
	conn *gorm.DB
}

func NewPatientRepository(conn *gorm.DB) patient.Repository {
	return &patientRepo{conn: conn}
}

func (r *patientRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	var p patient.Patient
	err := dbFrom(ctx, r.conn).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepo) GetByMRN(ctx context.Context, mrn string) (*patient.Patient, error) {
	var p patient.Patient
	err := dbFrom(ctx, r.conn).First(&p, "mrn = ?", mrn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
