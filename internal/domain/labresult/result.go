package labresult

import (
	"time"

	"github.com/google/uuid"
)

type Flag string

const (
	FlagNormal   Flag = "normal"
	FlagAbnormal Flag = "abnormal"
	FlagCritical Flag = "critical"
)

func (f Flag) IsValid() bool {
	switch f {
	case FlagNormal, FlagAbnormal, FlagCritical:
		return true
	}
	return false
}

// LabResult is the measured outcome for one order item. Once created it is
// mutated only by verification, which signs it off without altering the value.
type LabResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex"`

	ResultValue    string `gorm:"column:result_value;type:text;not null"`
	Units          string `gorm:"column:units;type:varchar(50)"`
	ReferenceRange string `gorm:"column:reference_range;type:varchar(100)"`
	Interpretation string `gorm:"column:interpretation;type:text"`
	Flag           Flag   `gorm:"column:flag;type:varchar(20);not null;default:'normal';index"`

	ResultTime    time.Time `gorm:"column:result_time;not null;index"`
	PerformedByID uuid.UUID `gorm:"column:performed_by_id;type:uuid;not null"`

	// Verification fields are written together, atomically, by the
	// verification service and by nothing else.
	IsVerified       bool       `gorm:"column:is_verified;default:false;index"`
	VerifiedByID     *uuid.UUID `gorm:"column:verified_by_id;type:uuid"`
	VerificationTime *time.Time `gorm:"column:verification_time"`

	Comments       string         `gorm:"column:comments;type:text"`
	AdditionalData map[string]any `gorm:"column:additional_data;serializer:json"`
}

func (LabResult) TableName() string {
	return "lab.results"
}

func (r *LabResult) IsCritical() bool {
	return r.Flag == FlagCritical
}

type EnterResultCommand struct {
	OrderItemID    uuid.UUID
	ResultValue    string
	Units          string
	ReferenceRange string
	Interpretation string
	Flag           Flag
	Comments       string
	AdditionalData map[string]any
	PerformedByID  uuid.UUID
}

// OrderResultRow is a result joined with its test identity, for per-order listings.
type OrderResultRow struct {
	Result      *LabResult
	OrderItemID uuid.UUID
	TestName    string
	TestCode    string
}

// PatientResultRow flattens one completed item to a row with order and doctor context.
type PatientResultRow struct {
	Result      *LabResult
	OrderID     uuid.UUID
	OrderNumber string
	OrderDate   time.Time
	DoctorID    uuid.UUID
	TestName    string
	TestCode    string
}
