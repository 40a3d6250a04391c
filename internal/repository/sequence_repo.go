package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/clinicore/labflow/internal/sequence"
)

type sequenceRepo struct {
	conn *gorm.DB
}

func NewSequenceGenerator(conn *gorm.DB) sequence.Generator {
	return &sequenceRepo{conn: conn}
}

// Next increments the scope's counter in a single upsert. The row lock taken
// by the upsert serializes concurrent callers of the same scope, so two
// simultaneous order creations can never observe the same value. When called
// inside WithinTx the increment rolls back with the caller, keeping the
// sequence gapless across failed creates.
func (r *sequenceRepo) Next(ctx context.Context, scope sequence.Scope) (int64, error) {
	var next int64
	err := dbFrom(ctx, r.conn).Raw(`
		INSERT INTO lab.sequence_counters (scope_key, last_value, updated_at)
		VALUES (?, 1, NOW())
		ON CONFLICT (scope_key)
		DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = NOW()
		RETURNING last_value`,
		scope.String(),
	).Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("advancing sequence %s: %w", scope, err)
	}
	return next, nil
}
