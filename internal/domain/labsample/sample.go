package labsample

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCollected  Status = "collected"
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusAnalyzed   Status = "analyzed"
	StatusRejected   Status = "rejected"
	StatusDiscarded  Status = "discarded"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCollected, StatusReceived, StatusProcessing, StatusAnalyzed, StatusRejected, StatusDiscarded:
		return true
	}
	return false
}

// DefaultSampleType is used when neither the request nor the test catalog
// specifies a specimen type.
const DefaultSampleType = "blood"

// LabSample is a physical specimen collected against a single order item.
// A sample may be rejected (hemolyzed, insufficient volume) independently of
// the owning order's state.
type LabSample struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	// Barcode printed on the tube, S<year><month><seq>. Stable once assigned.
	Barcode string `gorm:"column:sample_id;type:varchar(20);uniqueIndex;not null"`

	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex"`

	SampleType     string    `gorm:"column:sample_type;type:varchar(50);not null"`
	CollectionTime time.Time `gorm:"column:collection_time;not null"`
	CollectedByID  uuid.UUID `gorm:"column:collected_by_id;type:uuid;not null"`

	Status          Status `gorm:"column:status;type:varchar(30);not null;default:'collected';index"`
	RejectionReason string `gorm:"column:rejection_reason;type:text"`
	StorageLocation string `gorm:"column:storage_location;type:varchar(100)"`
}

func (LabSample) TableName() string {
	return "lab.samples"
}

func (s *LabSample) Reject(reason string) {
	s.Status = StatusRejected
	s.RejectionReason = reason
}

type RegisterSampleCommand struct {
	OrderItemID     uuid.UUID
	SampleType      string
	StorageLocation string
	CollectedByID   uuid.UUID
}

type UpdateSampleStatusCommand struct {
	Status          Status
	StorageLocation *string
}
