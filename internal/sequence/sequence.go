// Package sequence issues the human-readable identifiers the lab hands out:
// order numbers scoped to a calendar year and sample barcodes scoped to a
// year+month. Each scope owns an atomic counter so the numeric suffix is
// unique and gapless even under concurrent callers.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scope identifies one counter: a kind of identifier plus the time window
// within which its suffix must be unique.
type Scope struct {
	Kind string
	Key  string
}

func (s Scope) String() string {
	return s.Kind + ":" + s.Key
}

// OrderScope is the per-year window for order numbers.
func OrderScope(t time.Time) Scope {
	return Scope{Kind: "lab_order", Key: fmt.Sprintf("%04d", t.Year())}
}

// SampleScope is the per-month window for sample barcodes.
func SampleScope(t time.Time) Scope {
	return Scope{Kind: "lab_sample", Key: t.Format("200601")}
}

// Generator returns the next value of a scoped counter. Implementations must
// increment atomically: the legacy read-last-record-then-increment approach
// let two concurrent callers mint the same identifier, so Next must be a
// single atomic operation, typically running inside the caller's transaction
// so an aborted create does not burn a number.
type Generator interface {
	Next(ctx context.Context, scope Scope) (int64, error)
}

// MemoryGenerator is a process-local Generator for tests and local
// development. It holds the same contract as the database-backed
// implementation: one atomic counter per scope.
type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{counters: make(map[string]int64)}
}

func (g *MemoryGenerator) Next(_ context.Context, scope Scope) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[scope.String()]++
	return g.counters[scope.String()], nil
}

// FormatOrderNumber renders LAB-<year>-<seq>, zero-padded to four digits.
// Sequences past 9999 simply widen.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("LAB-%04d-%04d", year, seq)
}

// FormatSampleBarcode renders S<year><month><seq>, zero-padded to five digits.
func FormatSampleBarcode(t time.Time, seq int64) string {
	return fmt.Sprintf("S%s%05d", t.Format("200601"), seq)
}

// Counter is the persisted state of one scope's counter.
type Counter struct {
	ScopeKey  string    `gorm:"column:scope_key;type:varchar(60);primaryKey"`
	LastValue int64     `gorm:"column:last_value;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Counter) TableName() string {
	return "lab.sequence_counters"
}
