package laborder

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists the order together with its items.
	Create(ctx context.Context, o *LabOrder) error

	// GetByID retrieves an order with items preloaded. Returns ErrOrderNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error)

	// GetItem retrieves a single order item. Returns ErrItemNotFound if absent.
	GetItem(ctx context.Context, itemID uuid.UUID) (*LabOrderItem, error)

	// ListItems returns all items under an order.
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabOrder, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*LabOrder, error)

	// ListPending returns orders still needing lab work, urgent first then oldest first.
	ListPending(ctx context.Context) ([]*LabOrder, error)

	List(ctx context.Context, q *ListOrdersQuery) (*PagedOrders, error)

	// ListRecentByPatient feeds the patient timeline, capped and newest first.
	ListRecentByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*LabOrder, error)

	// UpdateStatus overwrites the order status without transition validation.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// UpdateItem persists status, notes and reference changes on an item.
	UpdateItem(ctx context.Context, item *LabOrderItem) error

	// Cancel marks the order cancelled and records when and why.
	Cancel(ctx context.Context, o *LabOrder) error
}
