package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labresult"
	"github.com/clinicore/labflow/internal/domain/labsample"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/domain/patient"
	"github.com/clinicore/labflow/internal/notify"
)

// fakeTx runs the function directly; the in-memory repositories have no
// transactional semantics, which is fine for the behavior under test.
type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*laborder.LabOrder
	items  map[uuid.UUID]*laborder.LabOrderItem
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[uuid.UUID]*laborder.LabOrder),
		items:  make(map[uuid.UUID]*laborder.LabOrderItem),
	}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *laborder.LabOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.LabOrderID = o.ID
		cp := *item
		r.items[item.ID] = &cp
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*laborder.LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, laborder.ErrOrderNotFound
	}
	cp := *o
	cp.Items = nil
	for _, it := range r.items {
		if it.LabOrderID == id {
			cp.Items = append(cp.Items, *it)
		}
	}
	return &cp, nil
}

func (r *fakeOrderRepo) GetItem(_ context.Context, itemID uuid.UUID) (*laborder.LabOrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[itemID]
	if !ok {
		return nil, laborder.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *fakeOrderRepo) ListItems(_ context.Context, orderID uuid.UUID) ([]*laborder.LabOrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*laborder.LabOrderItem
	for _, it := range r.items {
		if it.LabOrderID == orderID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*laborder.LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*laborder.LabOrder
	for _, o := range r.orders {
		if o.PatientID == patientID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*laborder.LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*laborder.LabOrder
	for _, o := range r.orders {
		if o.DoctorID == doctorID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) ListPending(_ context.Context) ([]*laborder.LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*laborder.LabOrder
	for _, o := range r.orders {
		if !o.Status.IsTerminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsUrgent != out[j].IsUrgent {
			return out[i].IsUrgent
		}
		return out[i].OrderDate.Before(out[j].OrderDate)
	})
	return out, nil
}

func (r *fakeOrderRepo) List(_ context.Context, q *laborder.ListOrdersQuery) (*laborder.PagedOrders, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*laborder.LabOrder
	for _, o := range r.orders {
		if q.Status != nil && o.Status != *q.Status {
			continue
		}
		if q.Urgent != nil && o.IsUrgent != *q.Urgent {
			continue
		}
		cp := *o
		matched = append(matched, &cp)
	}
	return &laborder.PagedOrders{
		Orders:     matched,
		TotalCount: int64(len(matched)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: 1,
	}, nil
}

func (r *fakeOrderRepo) ListRecentByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*laborder.LabOrder, error) {
	orders, err := r.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderDate.After(orders[j].OrderDate)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status laborder.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return laborder.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (r *fakeOrderRepo) UpdateItem(_ context.Context, item *laborder.LabOrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return laborder.ErrItemNotFound
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) Cancel(_ context.Context, o *laborder.LabOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return laborder.ErrOrderNotFound
	}
	now := time.Now()
	stored.Status = laborder.StatusCancelled
	stored.CancelledAt = &now
	stored.CancellationReason = o.CancellationReason
	return nil
}

type fakeSampleRepo struct {
	mu      sync.Mutex
	samples map[uuid.UUID]*labsample.LabSample
}

func newFakeSampleRepo() *fakeSampleRepo {
	return &fakeSampleRepo{samples: make(map[uuid.UUID]*labsample.LabSample)}
}

func (r *fakeSampleRepo) Create(_ context.Context, s *labsample.LabSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	r.samples[s.ID] = &cp
	return nil
}

func (r *fakeSampleRepo) GetByID(_ context.Context, id uuid.UUID) (*labsample.LabSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.samples[id]
	if !ok {
		return nil, labsample.ErrSampleNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSampleRepo) GetByBarcode(_ context.Context, barcode string) (*labsample.LabSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.samples {
		if s.Barcode == barcode {
			cp := *s
			return &cp, nil
		}
	}
	return nil, labsample.ErrSampleNotFound
}

func (r *fakeSampleRepo) ListByOrder(_ context.Context, _ uuid.UUID) ([]*labsample.LabSample, error) {
	return nil, nil
}

func (r *fakeSampleRepo) Update(_ context.Context, s *labsample.LabSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.samples[s.ID]; !ok {
		return labsample.ErrSampleNotFound
	}
	cp := *s
	r.samples[s.ID] = &cp
	return nil
}

type fakeResultRepo struct {
	mu      sync.Mutex
	results map[uuid.UUID]*labresult.LabResult
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: make(map[uuid.UUID]*labresult.LabResult)}
}

func (r *fakeResultRepo) Create(_ context.Context, res *labresult.LabResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	cp := *res
	r.results[res.ID] = &cp
	return nil
}

func (r *fakeResultRepo) GetByID(_ context.Context, id uuid.UUID) (*labresult.LabResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	if !ok {
		return nil, labresult.ErrResultNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *fakeResultRepo) ListByOrder(_ context.Context, _ uuid.UUID) ([]*labresult.OrderResultRow, error) {
	return nil, nil
}

func (r *fakeResultRepo) ListCompletedByPatient(_ context.Context, _ uuid.UUID) ([]*labresult.PatientResultRow, error) {
	return nil, nil
}

func (r *fakeResultRepo) Verify(_ context.Context, id uuid.UUID, verifiedByID uuid.UUID, at time.Time) (*labresult.LabResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	if !ok {
		return nil, labresult.ErrResultNotFound
	}
	res.IsVerified = true
	res.VerifiedByID = &verifiedByID
	res.VerificationTime = &at
	cp := *res
	return &cp, nil
}

type fakeCatalog struct {
	tests map[uuid.UUID]*labtest.LabTest
}

func newFakeCatalog(tests ...*labtest.LabTest) *fakeCatalog {
	c := &fakeCatalog{tests: make(map[uuid.UUID]*labtest.LabTest)}
	for _, t := range tests {
		c.tests[t.ID] = t
	}
	return c
}

func (c *fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (*labtest.LabTest, error) {
	t, ok := c.tests[id]
	if !ok {
		return nil, labtest.ErrTestNotFound
	}
	return t, nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func newFakePatientRepo(patients ...*patient.Patient) *fakePatientRepo {
	r := &fakePatientRepo{patients: make(map[uuid.UUID]*patient.Patient)}
	for _, p := range patients {
		r.patients[p.ID] = p
	}
	return r
}

func (r *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (r *fakePatientRepo) GetByMRN(_ context.Context, mrn string) (*patient.Patient, error) {
	for _, p := range r.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, patient.ErrPatientNotFound
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) UpdateLoginAttempt(_ context.Context, id uuid.UUID, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if success {
		u.FailedLoginCount = 0
		now := time.Now()
		u.LastLoginAt = &now
	} else {
		u.FailedLoginCount++
	}
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

type fakeOutbox struct {
	mu      sync.Mutex
	events  []*notify.OutboxEvent
	failing bool
}

func (o *fakeOutbox) Enqueue(_ context.Context, eventType string, payload any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failing {
		return errors.New("outbox unavailable")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	o.events = append(o.events, &notify.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
	})
	return nil
}

func (o *fakeOutbox) ListUnpublished(_ context.Context, limit int) ([]*notify.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*notify.OutboxEvent
	for _, ev := range o.events {
		if ev.PublishedAt == nil {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range o.events {
		if ev.ID == id {
			now := time.Now()
			ev.PublishedAt = &now
			return nil
		}
	}
	return errors.New("event not found")
}

func (o *fakeOutbox) MarkAttempted(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range o.events {
		if ev.ID == id {
			ev.Attempts++
			return nil
		}
	}
	return errors.New("event not found")
}

func (o *fakeOutbox) CountPending(_ context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var n int64
	for _, ev := range o.events {
		if ev.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	wakes int
}

func (d *fakeDispatcher) Wake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wakes++
}

func (d *fakeDispatcher) wakeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wakes
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (r *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func newTestAuditService() *AuditService {
	return NewAuditService(&fakeAuditRepo{}, zap.NewNop(), nil)
}
