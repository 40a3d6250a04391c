package labtest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTestNotFound = errors.New("lab test not found")

// LabTest is a catalog entry describing an orderable diagnostic test.
// Catalog management is handled elsewhere; this package only reads it to
// default sample types, units and reference ranges.
type LabTest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Name        string `gorm:"column:name;type:varchar(255);not null"`
	Code        string `gorm:"column:code;type:varchar(50);uniqueIndex;not null"`
	Units       string `gorm:"column:units;type:varchar(50)"`
	NormalRange string `gorm:"column:normal_range;type:varchar(100)"`
	SampleType  string `gorm:"column:sample_type;type:varchar(50)"`
	Category    string `gorm:"column:category;type:varchar(100);index"`
	IsActive    bool   `gorm:"column:is_active;default:true;index"`
}

func (LabTest) TableName() string {
	return "lab.tests"
}

// Catalog is the read-only test lookup consumed by the lifecycle services.
type Catalog interface {
	// GetByID returns ErrTestNotFound if the id does not resolve.
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
}
