package labresult

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *LabResult) error

	// GetByID returns ErrResultNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)

	// ListByOrder returns results for items of the order that have one,
	// joined with the test name and code.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderResultRow, error)

	// ListCompletedByPatient flattens the patient's completed orders to one
	// row per completed item, newest first.
	ListCompletedByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientResultRow, error)

	// Verify sets is_verified, verified_by_id and verification_time in a
	// single update and returns the signed-off result. Re-verification
	// overwrites the previous sign-off rather than erroring.
	Verify(ctx context.Context, id uuid.UUID, verifiedByID uuid.UUID, at time.Time) (*LabResult, error)
}
