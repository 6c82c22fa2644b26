// Package memory provides an in-process repository.Store for tests and local
// runs. Row locks are emulated with per-row semaphores that give up after the
// configured lock timeout. Writes made inside RunTx are staged on the
// transaction and only become visible to others when it commits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

const defaultLockTimeout = 2 * time.Second

type lockKey struct {
	table string
	id    string
}

func offeringKey(id int64) lockKey  { return lockKey{table: "offerings", id: fmt.Sprint(id)} }
func bookingKey(id uuid.UUID) lockKey { return lockKey{table: "bookings", id: id.String()} }

// confirmedKey stands in for an entry of the one-confirmed-booking index.
// Writers that add or remove such an entry hold it until they finish, the
// way a unique index makes a second writer wait.
func confirmedKey(participantID, offeringID int64) lockKey {
	return lockKey{table: "bookings_confirmed", id: fmt.Sprintf("%d:%d", participantID, offeringID)}
}

type Store struct {
	mu          sync.Mutex
	offerings   map[int64]domain.Offering
	bookings    map[uuid.UUID]domain.Booking
	audit       []domain.AuditRecord
	nextOffer   int64
	nextAudit   int64
	locks       map[lockKey]chan struct{}
	lockTimeout time.Duration
}

func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	return &Store{
		offerings:   make(map[int64]domain.Offering),
		bookings:    make(map[uuid.UUID]domain.Booking),
		locks:       make(map[lockKey]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// AddOffering registers an offering and returns its ID. A zero ID is
// assigned from a sequence.
func (s *Store) AddOffering(o domain.Offering) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		s.nextOffer++
		o.ID = s.nextOffer
	} else if o.ID > s.nextOffer {
		s.nextOffer = o.ID
	}

	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	s.offerings[o.ID] = o

	return o.ID
}

// RemoveOffering drops an offering as if it were deleted by the catalog.
func (s *Store) RemoveOffering(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.offerings, id)
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := newTx(s)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}

	t.commit()
	return nil
}

// autocommit runs a single write outside of RunTx as its own transaction.
func (s *Store) autocommit(fn func(t *tx) error) error {
	t := newTx(s)
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}

	t.commit()
	return nil
}

func (s *Store) Offerings() repository.Offerings { return &offeringRepo{s: s} }
func (s *Store) Bookings() repository.Bookings   { return &bookingRepo{s: s} }
func (s *Store) Audit() repository.Audit         { return &auditRepo{s: s} }

func (s *Store) rowLock(k lockKey) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[k] = ch
	}

	return ch
}

func (s *Store) acquire(ctx context.Context, ch chan struct{}) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return repository.ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tx holds the row locks and the staged rows of one unit of work. A nil *tx
// reads committed state only.
type tx struct {
	s    *Store
	held map[lockKey]chan struct{}

	offerings map[int64]domain.Offering
	bookings  map[uuid.UUID]domain.Booking
	audit     []domain.AuditRecord
}

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		held:      make(map[lockKey]chan struct{}),
		offerings: make(map[int64]domain.Offering),
		bookings:  make(map[uuid.UUID]domain.Booking),
	}
}

func (t *tx) Offerings() repository.Offerings { return &offeringRepo{s: t.s, tx: t} }
func (t *tx) Bookings() repository.Bookings   { return &bookingRepo{s: t.s, tx: t} }
func (t *tx) Audit() repository.Audit         { return &auditRepo{s: t.s, tx: t} }

func (t *tx) lock(ctx context.Context, k lockKey) error {
	if _, ok := t.held[k]; ok {
		return nil
	}

	ch := t.s.rowLock(k)
	if err := t.s.acquire(ctx, ch); err != nil {
		return err
	}

	t.held[k] = ch
	return nil
}

// commit publishes the staged rows. Offerings removed in the meantime stay
// removed.
func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, o := range t.offerings {
		if _, ok := t.s.offerings[id]; ok {
			t.s.offerings[id] = o
		}
	}

	for id, b := range t.bookings {
		t.s.bookings[id] = b
	}

	t.s.audit = append(t.s.audit, t.audit...)
}

func (t *tx) release() {
	for k, ch := range t.held {
		<-ch
		delete(t.held, k)
	}
}

// The view helpers below must be called with s.mu held.

func (t *tx) offering(s *Store, id int64) (domain.Offering, bool) {
	if _, ok := s.offerings[id]; !ok {
		return domain.Offering{}, false
	}

	if t != nil {
		if o, ok := t.offerings[id]; ok {
			return o, true
		}
	}

	o := s.offerings[id]
	return o, true
}

func (t *tx) booking(s *Store, id uuid.UUID) (domain.Booking, bool) {
	if t != nil {
		if b, ok := t.bookings[id]; ok {
			return b, true
		}
	}

	b, ok := s.bookings[id]
	return b, ok
}

func (t *tx) eachBooking(s *Store, fn func(domain.Booking)) {
	for id, b := range s.bookings {
		if t != nil {
			if staged, ok := t.bookings[id]; ok {
				b = staged
			}
		}
		fn(b)
	}

	if t == nil {
		return
	}

	for id, b := range t.bookings {
		if _, ok := s.bookings[id]; !ok {
			fn(b)
		}
	}
}

func (t *tx) confirmed(s *Store, participantID, offeringID int64, except uuid.UUID) (domain.Booking, bool) {
	var (
		found domain.Booking
		ok    bool
	)

	t.eachBooking(s, func(b domain.Booking) {
		if !ok && b.ID != except &&
			b.ParticipantID == participantID &&
			b.OfferingID == offeringID &&
			b.Status == domain.BookingConfirmed {
			found, ok = b, true
		}
	})

	return found, ok
}

// lockRow takes a row lock for the transaction, or for the duration of the
// statement when there is no transaction.
func lockRow(ctx context.Context, s *Store, t *tx, k lockKey) (func(), error) {
	if t != nil {
		return func() {}, t.lock(ctx, k)
	}

	ch := s.rowLock(k)
	if err := s.acquire(ctx, ch); err != nil {
		return nil, err
	}

	return func() { <-ch }, nil
}

type offeringRepo struct {
	s  *Store
	tx *tx
}

func (r *offeringRepo) Get(_ context.Context, id int64) (*domain.Offering, error) {
	const op = "memory.offeringRepo.Get"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.tx.offering(r.s, id)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &o, nil
}

func (r *offeringRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Offering, error) {
	const op = "memory.offeringRepo.GetForUpdate"

	unlock, err := lockRow(ctx, r.s, r.tx, offeringKey(id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	defer unlock()

	return r.Get(ctx, id)
}

func (r *offeringRepo) SetOccupancy(ctx context.Context, id int64, occupancy int) error {
	const op = "memory.offeringRepo.SetOccupancy"

	if r.tx == nil {
		return r.s.autocommit(func(t *tx) error {
			return t.Offerings().SetOccupancy(ctx, id, occupancy)
		})
	}

	if err := r.tx.lock(ctx, offeringKey(id)); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.tx.offering(r.s, id)
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if occupancy < 0 || occupancy > o.Capacity {
		return fmt.Errorf("%s: occupancy %d outside [0, %d]", op, occupancy, o.Capacity)
	}

	o.Occupancy = occupancy
	o.UpdatedAt = time.Now()
	r.tx.offerings[id] = o

	return nil
}

func (r *offeringRepo) ListIDs(_ context.Context) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]int64, 0, len(r.s.offerings))
	for id := range r.s.offerings {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}

type bookingRepo struct {
	s  *Store
	tx *tx
}

func (r *bookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "memory.bookingRepo.Insert"

	if r.tx == nil {
		return r.s.autocommit(func(t *tx) error {
			return t.Bookings().Insert(ctx, b)
		})
	}

	if b.Status == domain.BookingConfirmed {
		if err := r.tx.lock(ctx, confirmedKey(b.ParticipantID, b.OfferingID)); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.tx.offering(r.s, b.OfferingID); !ok {
		return fmt.Errorf("%s: offering %d does not exist", op, b.OfferingID)
	}

	if _, ok := r.tx.booking(r.s, b.ID); ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	if b.Status == domain.BookingConfirmed {
		if _, dup := r.tx.confirmed(r.s, b.ParticipantID, b.OfferingID, b.ID); dup {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	r.tx.bookings[b.ID] = *b

	return nil
}

func (r *bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.bookingRepo.Get"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.tx.booking(r.s, id)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &b, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.bookingRepo.GetForUpdate"

	unlock, err := lockRow(ctx, r.s, r.tx, bookingKey(id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	defer unlock()

	return r.Get(ctx, id)
}

func (r *bookingRepo) FindConfirmed(_ context.Context, participantID, offeringID int64) (*domain.Booking, error) {
	const op = "memory.bookingRepo.FindConfirmed"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.tx.confirmed(r.s, participantID, offeringID, uuid.Nil)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &b, nil
}

func (r *bookingRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.BookingStatus,
	payment domain.PaymentStatus,
) error {
	const op = "memory.bookingRepo.UpdateStatus"

	if r.tx == nil {
		return r.s.autocommit(func(t *tx) error {
			return t.Bookings().UpdateStatus(ctx, id, status, payment)
		})
	}

	if err := r.tx.lock(ctx, bookingKey(id)); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	b, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if (b.Status == domain.BookingConfirmed) != (status == domain.BookingConfirmed) {
		if err := r.tx.lock(ctx, confirmedKey(b.ParticipantID, b.OfferingID)); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if status == domain.BookingConfirmed && b.Status != domain.BookingConfirmed {
		if _, dup := r.tx.confirmed(r.s, b.ParticipantID, b.OfferingID, b.ID); dup {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	next := *b
	next.Status = status
	next.Payment = payment
	next.UpdatedAt = time.Now()
	r.tx.bookings[id] = next

	return nil
}

func (r *bookingRepo) CountCounted(_ context.Context, offeringID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	r.tx.eachBooking(r.s, func(b domain.Booking) {
		if b.OfferingID == offeringID && b.Counted() {
			n++
		}
	})

	return n, nil
}

func (r *bookingRepo) ListByParticipant(_ context.Context, participantID int64) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Booking
	r.tx.eachBooking(r.s, func(b domain.Booking) {
		if b.ParticipantID == participantID {
			out = append(out, b)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

type auditRepo struct {
	s  *Store
	tx *tx
}

// Append takes the next ID from the sequence right away; like a serial
// column, IDs of rolled back records are never reused.
func (r *auditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if r.tx == nil {
		return r.s.autocommit(func(t *tx) error {
			return t.Audit().Append(ctx, rec)
		})
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAudit++
	rec.ID = r.s.nextAudit
	rec.CreatedAt = time.Now()
	r.tx.audit = append(r.tx.audit, *rec)

	return nil
}

func (r *auditRepo) ListByOffering(_ context.Context, offeringID int64, limit int) ([]domain.AuditRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.audit
	if r.tx != nil && len(r.tx.audit) > 0 {
		all = append(append([]domain.AuditRecord(nil), r.s.audit...), r.tx.audit...)
	}

	var out []domain.AuditRecord
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].OfferingID != offeringID {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}
