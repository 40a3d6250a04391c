package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/internal/service"
)

const maxFailedLogins = 5

const loginLockDuration = 15 * time.Minute

type userRepo struct {
	conn *gorm.DB
}

func NewUserRepository(conn *gorm.DB) service.UserRepository {
	return &userRepo{conn: conn}
}

func (r *userRepo) Create(ctx context.Context, u *domain.User) error {
	return dbFrom(ctx, r.conn).Create(u).Error
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := dbFrom(ctx, r.conn).First(&u, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, service.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := dbFrom(ctx, r.conn).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, service.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	db := dbFrom(ctx, r.conn).Model(&domain.User{}).Where("id = ?", id)
	if success {
		return db.Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      time.Now(),
		}).Error
	}

	var u domain.User
	if err := dbFrom(ctx, r.conn).First(&u, "id = ?", id).Error; err != nil {
		return err
	}
	updates := map[string]any{"failed_login_count": u.FailedLoginCount + 1}
	if u.FailedLoginCount+1 >= maxFailedLogins {
		updates["locked_until"] = time.Now().Add(loginLockDuration)
	}
	return db.Updates(updates).Error
}

func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return dbFrom(ctx, r.conn).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":       hash,
		"password_changed_at": time.Now(),
	}).Error
}
