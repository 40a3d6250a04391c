package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/laborder"
)

// TimelineEntry is the common shape every source maps into. Sources are
// disjoint by their Source tag, so no deduplication is needed after merging.
type TimelineEntry struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	HasFile   bool      `json:"has_file"`
	Source    string    `json:"source"`
}

// TimelineSource contributes one feed to the patient timeline. The medical
// records and prescriptions features plug their own implementations in at
// wiring time; the lab order source is built in.
type TimelineSource interface {
	Source() string
	ListRecent(ctx context.Context, patientID uuid.UUID, limit int) ([]TimelineEntry, error)
}

const defaultTimelineLimit = 50

// TimelineService assembles the unified patient history consumed by the
// medical-records screens.
type TimelineService struct {
	sources []TimelineSource
	log     *zap.Logger
}

func NewTimelineService(log *zap.Logger, sources ...TimelineSource) *TimelineService {
	return &TimelineService{sources: sources, log: log}
}

// AggregateForPatient fetches each source independently (capped at limit per
// source, newest first), merges the feeds and sorts by date descending.
func (s *TimelineService) AggregateForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]TimelineEntry, error) {
	if limit <= 0 {
		limit = defaultTimelineLimit
	}

	var merged []TimelineEntry
	for _, src := range s.sources {
		entries, err := src.ListRecent(ctx, patientID, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s timeline: %w", src.Source(), err)
		}
		merged = append(merged, entries...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	return merged, nil
}

// LabOrderTimelineSource exposes lab orders as a timeline feed.
type LabOrderTimelineSource struct {
	repo laborder.Repository
}

func NewLabOrderTimelineSource(repo laborder.Repository) *LabOrderTimelineSource {
	return &LabOrderTimelineSource{repo: repo}
}

func (s *LabOrderTimelineSource) Source() string { return "lab_order" }

func (s *LabOrderTimelineSource) ListRecent(ctx context.Context, patientID uuid.UUID, limit int) ([]TimelineEntry, error) {
	orders, err := s.repo.ListRecentByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(orders))
	for _, o := range orders {
		entries = append(entries, TimelineEntry{
			ID:        o.ID,
			Type:      "lab_order",
			Title:     fmt.Sprintf("Lab order %s (%d tests)", o.OrderNumber, len(o.Items)),
			Date:      o.OrderDate,
			DoctorID:  o.DoctorID,
			PatientID: o.PatientID,
			HasFile:   false,
			Source:    s.Source(),
		})
	}
	return entries, nil
}
