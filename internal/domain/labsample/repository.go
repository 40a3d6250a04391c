package labsample

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *LabSample) error

	// GetByID returns ErrSampleNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*LabSample, error)

	GetByBarcode(ctx context.Context, barcode string) (*LabSample, error)

	// ListByOrder returns every sample collected for items of the given order.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabSample, error)

	// Update persists status, rejection and storage changes.
	Update(ctx context.Context, s *LabSample) error
}
