package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/internal/service"
)

type auditRepo struct {
	conn *gorm.DB
}

func NewAuditRepository(conn *gorm.DB) service.AuditRepository {
	return &auditRepo{conn: conn}
}

func (r *auditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	return dbFrom(ctx, r.conn).Create(entry).Error
}
