package laborder

import (
	"time"

	"github.com/google/uuid"
)

// Status is shared by orders and their items. An order's status is derived
// from its items: it becomes completed only when every non-cancelled item is
// completed, and cancellation cascades down to every item.
type Status string

const (
	StatusOrdered         Status = "ordered"
	StatusSampleCollected Status = "sample_collected"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOrdered, StatusSampleCollected, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PendingStatuses are the order states that still need technician work.
var PendingStatuses = []Status{StatusOrdered, StatusSampleCollected, StatusInProgress}

type LabOrder struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	// Human-readable identifier, LAB-<year>-<seq>. Stable once assigned.
	OrderNumber string `gorm:"column:order_number;type:varchar(20);uniqueIndex;not null"`

	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`

	OrderDate     time.Time `gorm:"column:order_date;not null;index"`
	ClinicalNotes string    `gorm:"column:clinical_notes;type:text"`
	Diagnosis     string    `gorm:"column:diagnosis;type:text"`

	Status   Status `gorm:"column:status;type:varchar(30);not null;default:'ordered';index"`
	IsUrgent bool   `gorm:"column:is_urgent;default:false;index"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`

	Items []LabOrderItem `gorm:"foreignKey:LabOrderID"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (LabOrder) TableName() string {
	return "lab.orders"
}

// LabOrderItem is one requested test within an order. SampleID and ResultID
// are append-only references: set once when the sample/result is attached,
// never reassigned.
type LabOrderItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	LabOrderID uuid.UUID `gorm:"column:lab_order_id;type:uuid;not null;index"`
	LabTestID  uuid.UUID `gorm:"column:lab_test_id;type:uuid;not null;index"`

	Status Status `gorm:"column:status;type:varchar(30);not null;default:'ordered';index"`
	Notes  string `gorm:"column:notes;type:text"`

	SampleID *uuid.UUID `gorm:"column:sample_id;type:uuid;index"`
	ResultID *uuid.UUID `gorm:"column:result_id;type:uuid;index"`
}

func (LabOrderItem) TableName() string {
	return "lab.order_items"
}

func (i *LabOrderItem) HasSample() bool { return i.SampleID != nil }
func (i *LabOrderItem) HasResult() bool { return i.ResultID != nil }

// AnnotateCancellation appends the cancellation reason to the item's notes so
// the context survives on items that were already worked.
func (i *LabOrderItem) AnnotateCancellation(reason string) {
	if reason == "" {
		return
	}
	note := "cancelled: " + reason
	if i.Notes == "" {
		i.Notes = note
		return
	}
	i.Notes = i.Notes + "; " + note
}

// AllItemsCompleted reports whether every non-cancelled item is completed.
// An order whose items were all cancelled is not considered completed.
func AllItemsCompleted(items []*LabOrderItem) bool {
	active := 0
	for _, it := range items {
		if it.Status == StatusCancelled {
			continue
		}
		if it.Status != StatusCompleted {
			return false
		}
		active++
	}
	return active > 0
}

type CreateOrderCommand struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	TestIDs       []uuid.UUID
	ClinicalNotes string
	Diagnosis     string
	IsUrgent      bool
	CreatedBy     uuid.UUID
}

type CancelOrderCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}

type ListOrdersQuery struct {
	Status   *Status
	Urgent   *bool
	Page     int
	PageSize int
}

type PagedOrders struct {
	Orders     []*LabOrder
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
