package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// memoryData holds rows by value so that a shallow map clone is a full snapshot
type memoryData struct {
	events      map[string]domain.Event
	ticketTypes map[string]domain.TicketType
	purchases   map[string]domain.Purchase
	payments    map[string]domain.Payment
	tickets     map[string]domain.Ticket
	revenues    map[string]domain.OrganizerRevenue
	withdrawals map[string]domain.WithdrawalRequest
	profiles    map[string]domain.PaymentProfile
}

func newMemoryData() *memoryData {
	return &memoryData{
		events:      make(map[string]domain.Event),
		ticketTypes: make(map[string]domain.TicketType),
		purchases:   make(map[string]domain.Purchase),
		payments:    make(map[string]domain.Payment),
		tickets:     make(map[string]domain.Ticket),
		revenues:    make(map[string]domain.OrganizerRevenue),
		withdrawals: make(map[string]domain.WithdrawalRequest),
		profiles:    make(map[string]domain.PaymentProfile),
	}
}

func (d *memoryData) clone() *memoryData {
	return &memoryData{
		events:      maps.Clone(d.events),
		ticketTypes: maps.Clone(d.ticketTypes),
		purchases:   maps.Clone(d.purchases),
		payments:    maps.Clone(d.payments),
		tickets:     maps.Clone(d.tickets),
		revenues:    maps.Clone(d.revenues),
		withdrawals: maps.Clone(d.withdrawals),
		profiles:    maps.Clone(d.profiles),
	}
}

// MemoryStore implements Store in memory.
// Transactions are serialized and roll back by restoring a snapshot.
// This is useful for testing and development.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *memoryData

	repos   *Repositories
	txRepos *Repositories
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{data: newMemoryData()}
	s.repos = newMemoryRepositories(memConn{store: s, autoTx: true})
	s.txRepos = newMemoryRepositories(memConn{store: s})
	return s
}

func newMemoryRepositories(c memConn) *Repositories {
	return &Repositories{
		Events:      &memoryEventRepository{c},
		TicketTypes: &memoryTicketTypeRepository{c},
		Purchases:   &memoryPurchaseRepository{c},
		Payments:    &memoryPaymentRepository{c},
		Tickets:     &memoryTicketRepository{c},
		Revenue:     &memoryRevenueRepository{c},
		Withdrawals: &memoryWithdrawalRepository{c},
		Profiles:    &memoryProfileRepository{c},
	}
}

// Repos returns repositories whose writes each run as their own transaction
func (s *MemoryStore) Repos() *Repositories {
	return s.repos
}

// WithinTx runs fn as one serialized transaction
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	rollback := func() {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, s.txRepos); err != nil {
		rollback()
		return err
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// memConn gives a repository access to the store's data
type memConn struct {
	store  *MemoryStore
	autoTx bool
}

func (c memConn) read(fn func(d *memoryData) error) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return fn(c.store.data)
}

func (c memConn) write(fn func(d *memoryData) error) error {
	if c.autoTx {
		c.store.txMu.Lock()
		defer c.store.txMu.Unlock()
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return fn(c.store.data)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func ptrs[T any](items []T) []*T {
	return lo.Map(items, func(v T, _ int) *T { return &v })
}

// ---- events ----

type memoryEventRepository struct{ memConn }

func (r *memoryEventRepository) Create(ctx context.Context, e *domain.Event) error {
	return r.write(func(d *memoryData) error {
		d.events[e.ID] = *e
		return nil
	})
}

func (r *memoryEventRepository) GetByID(ctx context.Context, id string) (out *domain.Event, err error) {
	err = r.read(func(d *memoryData) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrEventNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

// ---- ticket types ----

type memoryTicketTypeRepository struct{ memConn }

func (r *memoryTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	return r.write(func(d *memoryData) error {
		d.ticketTypes[tt.ID] = *tt
		return nil
	})
}

func (r *memoryTicketTypeRepository) GetByID(ctx context.Context, id string) (out *domain.TicketType, err error) {
	err = r.read(func(d *memoryData) error {
		tt, ok := d.ticketTypes[id]
		if !ok {
			return domain.ErrTicketTypeNotFound
		}
		out = &tt
		return nil
	})
	return out, err
}

func (r *memoryTicketTypeRepository) GetForUpdate(ctx context.Context, id string) (*domain.TicketType, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryTicketTypeRepository) UpdateSold(ctx context.Context, tt *domain.TicketType) error {
	return r.write(func(d *memoryData) error {
		cur, ok := d.ticketTypes[tt.ID]
		if !ok {
			return domain.ErrTicketTypeNotFound
		}
		if tt.Sold < 0 || tt.Sold > cur.Capacity {
			return fmt.Errorf("sold %d out of range for capacity %d", tt.Sold, cur.Capacity)
		}
		cur.Sold = tt.Sold
		cur.UpdatedAt = tt.UpdatedAt
		d.ticketTypes[tt.ID] = cur
		return nil
	})
}

// ---- purchases ----

type memoryPurchaseRepository struct{ memConn }

func (r *memoryPurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	return r.write(func(d *memoryData) error {
		if _, exists := d.purchases[p.ID]; exists {
			return fmt.Errorf("purchase %s already exists", p.ID)
		}
		d.purchases[p.ID] = *p
		return nil
	})
}

func (r *memoryPurchaseRepository) GetByID(ctx context.Context, id string) (out *domain.Purchase, err error) {
	err = r.read(func(d *memoryData) error {
		p, ok := d.purchases[id]
		if !ok {
			return domain.ErrPurchaseNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryPurchaseRepository) GetForUpdate(ctx context.Context, id string) (*domain.Purchase, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryPurchaseRepository) Update(ctx context.Context, p *domain.Purchase) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.purchases[p.ID]; !ok {
			return domain.ErrPurchaseNotFound
		}
		d.purchases[p.ID] = *p
		return nil
	})
}

func (r *memoryPurchaseRepository) ListOverdueIDs(ctx context.Context, now time.Time, limit int) (ids []string, err error) {
	err = r.read(func(d *memoryData) error {
		overdue := lo.Filter(lo.Values(d.purchases), func(p domain.Purchase, _ int) bool {
			return p.IsOpen() && p.ExpiresAt.Before(now)
		})
		slices.SortFunc(overdue, func(a, b domain.Purchase) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
		ids = lo.Map(paginate(overdue, limit, 0), func(p domain.Purchase, _ int) string { return p.ID })
		return nil
	})
	return ids, err
}

// ---- payments ----

type memoryPaymentRepository struct{ memConn }

func (r *memoryPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.write(func(d *memoryData) error {
		_, dup := lo.Find(lo.Values(d.payments), func(x domain.Payment) bool {
			return x.Reference == p.Reference || x.PurchaseID == p.PurchaseID
		})
		if dup {
			return fmt.Errorf("payment for purchase %s or reference %s already exists", p.PurchaseID, p.Reference)
		}
		d.payments[p.ID] = *p
		return nil
	})
}

func (r *memoryPaymentRepository) find(pred func(domain.Payment) bool) (out *domain.Payment, err error) {
	err = r.read(func(d *memoryData) error {
		p, ok := lo.Find(lo.Values(d.payments), pred)
		if !ok {
			return domain.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryPaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.Reference == reference })
}

func (r *memoryPaymentRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.GetByReference(ctx, reference)
}

func (r *memoryPaymentRepository) GetByPurchaseID(ctx context.Context, purchaseID string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.PurchaseID == purchaseID })
}

func (r *memoryPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.payments[p.ID]; !ok {
			return domain.ErrPaymentNotFound
		}
		d.payments[p.ID] = *p
		return nil
	})
}

// ---- tickets ----

type memoryTicketRepository struct{ memConn }

func (r *memoryTicketRepository) CreateBatch(ctx context.Context, tickets []*domain.Ticket) error {
	return r.write(func(d *memoryData) error {
		for _, t := range tickets {
			if _, exists := d.tickets[t.ID]; exists {
				return fmt.Errorf("ticket %s already exists", t.ID)
			}
		}
		for _, t := range tickets {
			d.tickets[t.ID] = *t
		}
		return nil
	})
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id string) (out *domain.Ticket, err error) {
	err = r.read(func(d *memoryData) error {
		t, ok := d.tickets[id]
		if !ok {
			return domain.ErrTicketNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *memoryTicketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryTicketRepository) ListByPurchase(ctx context.Context, purchaseID string) (out []*domain.Ticket, err error) {
	err = r.read(func(d *memoryData) error {
		tickets := lo.Filter(lo.Values(d.tickets), func(t domain.Ticket, _ int) bool { return t.PurchaseID == purchaseID })
		slices.SortFunc(tickets, func(a, b domain.Ticket) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return compareStrings(a.ID, b.ID)
		})
		out = ptrs(tickets)
		return nil
	})
	return out, err
}

func (r *memoryTicketRepository) Update(ctx context.Context, t *domain.Ticket) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.tickets[t.ID]; !ok {
			return domain.ErrTicketNotFound
		}
		d.tickets[t.ID] = *t
		return nil
	})
}

// ---- revenue ----

type memoryRevenueRepository struct{ memConn }

func (r *memoryRevenueRepository) Create(ctx context.Context, rev *domain.OrganizerRevenue) error {
	return r.write(func(d *memoryData) error {
		_, dup := lo.Find(lo.Values(d.revenues), func(x domain.OrganizerRevenue) bool { return x.PurchaseID == rev.PurchaseID })
		if dup {
			return fmt.Errorf("revenue for purchase %s already exists", rev.PurchaseID)
		}
		d.revenues[rev.ID] = *rev
		return nil
	})
}

func (r *memoryRevenueRepository) GetByPurchaseID(ctx context.Context, purchaseID string) (out *domain.OrganizerRevenue, err error) {
	err = r.read(func(d *memoryData) error {
		rev, ok := lo.Find(lo.Values(d.revenues), func(x domain.OrganizerRevenue) bool { return x.PurchaseID == purchaseID })
		if !ok {
			return domain.ErrRevenueNotFound
		}
		out = &rev
		return nil
	})
	return out, err
}

func oldestFirst(a, b domain.OrganizerRevenue) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return compareStrings(a.ID, b.ID)
}

func (r *memoryRevenueRepository) ListByOrganizer(ctx context.Context, organizerID string, filter RevenueFilter) (out []*domain.OrganizerRevenue, err error) {
	err = r.read(func(d *memoryData) error {
		entries := lo.Filter(lo.Values(d.revenues), func(x domain.OrganizerRevenue, _ int) bool {
			return x.OrganizerID == organizerID && (filter.Status == nil || x.Status == *filter.Status)
		})
		slices.SortFunc(entries, func(a, b domain.OrganizerRevenue) int { return oldestFirst(b, a) })
		out = ptrs(paginate(entries, filter.Limit, filter.Offset))
		return nil
	})
	return out, err
}

func (r *memoryRevenueRepository) ListAvailableForUpdate(ctx context.Context, organizerID string) (out []*domain.OrganizerRevenue, err error) {
	err = r.read(func(d *memoryData) error {
		entries := lo.Filter(lo.Values(d.revenues), func(x domain.OrganizerRevenue, _ int) bool {
			return x.OrganizerID == organizerID && x.Status == domain.RevenueStatusAvailable && x.WithdrawalID == nil
		})
		slices.SortFunc(entries, oldestFirst)
		out = ptrs(entries)
		return nil
	})
	return out, err
}

func (r *memoryRevenueRepository) ListByWithdrawalForUpdate(ctx context.Context, withdrawalID string) (out []*domain.OrganizerRevenue, err error) {
	err = r.read(func(d *memoryData) error {
		entries := lo.Filter(lo.Values(d.revenues), func(x domain.OrganizerRevenue, _ int) bool {
			return x.WithdrawalID != nil && *x.WithdrawalID == withdrawalID
		})
		slices.SortFunc(entries, oldestFirst)
		out = ptrs(entries)
		return nil
	})
	return out, err
}

func (r *memoryRevenueRepository) Update(ctx context.Context, rev *domain.OrganizerRevenue) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.revenues[rev.ID]; !ok {
			return domain.ErrRevenueNotFound
		}
		d.revenues[rev.ID] = *rev
		return nil
	})
}

func (r *memoryRevenueRepository) ReleaseMatured(ctx context.Context, now time.Time) (n int, err error) {
	err = r.write(func(d *memoryData) error {
		for id, rev := range d.revenues {
			if rev.Release(now) {
				d.revenues[id] = rev
				n++
			}
		}
		return nil
	})
	return n, err
}

// ---- withdrawals ----

type memoryWithdrawalRepository struct{ memConn }

func (r *memoryWithdrawalRepository) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	return r.write(func(d *memoryData) error {
		if w.IsActive() {
			_, busy := lo.Find(lo.Values(d.withdrawals), func(x domain.WithdrawalRequest) bool {
				return x.OrganizerID == w.OrganizerID && x.IsActive()
			})
			if busy {
				return domain.ErrWithdrawalInFlight
			}
		}
		d.withdrawals[w.ID] = *w
		return nil
	})
}

func (r *memoryWithdrawalRepository) GetByID(ctx context.Context, id string) (out *domain.WithdrawalRequest, err error) {
	err = r.read(func(d *memoryData) error {
		w, ok := d.withdrawals[id]
		if !ok {
			return domain.ErrWithdrawalNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *memoryWithdrawalRepository) GetForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryWithdrawalRepository) Update(ctx context.Context, w *domain.WithdrawalRequest) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.withdrawals[w.ID]; !ok {
			return domain.ErrWithdrawalNotFound
		}
		d.withdrawals[w.ID] = *w
		return nil
	})
}

func (r *memoryWithdrawalRepository) Delete(ctx context.Context, id string) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.withdrawals[id]; !ok {
			return domain.ErrWithdrawalNotFound
		}
		delete(d.withdrawals, id)
		return nil
	})
}

// LockOrganizer is a no-op because memory transactions are already serialized
func (r *memoryWithdrawalRepository) LockOrganizer(ctx context.Context, organizerID string) error {
	return nil
}

func (r *memoryWithdrawalRepository) GetActiveByOrganizer(ctx context.Context, organizerID string) (out *domain.WithdrawalRequest, err error) {
	err = r.read(func(d *memoryData) error {
		w, ok := lo.Find(lo.Values(d.withdrawals), func(x domain.WithdrawalRequest) bool {
			return x.OrganizerID == organizerID && x.IsActive()
		})
		if !ok {
			return domain.ErrWithdrawalNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *memoryWithdrawalRepository) ListByOrganizer(ctx context.Context, organizerID string, limit, offset int) (out []*domain.WithdrawalRequest, err error) {
	err = r.read(func(d *memoryData) error {
		items := lo.Filter(lo.Values(d.withdrawals), func(x domain.WithdrawalRequest, _ int) bool { return x.OrganizerID == organizerID })
		slices.SortFunc(items, func(a, b domain.WithdrawalRequest) int { return b.CreatedAt.Compare(a.CreatedAt) })
		out = ptrs(paginate(items, limit, offset))
		return nil
	})
	return out, err
}

func (r *memoryWithdrawalRepository) CountByOrganizer(ctx context.Context, organizerID string) (out map[domain.WithdrawalStatus]int, err error) {
	err = r.read(func(d *memoryData) error {
		out = make(map[domain.WithdrawalStatus]int)
		for _, x := range d.withdrawals {
			if x.OrganizerID == organizerID {
				out[x.Status]++
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryWithdrawalRepository) ListProcessingBefore(ctx context.Context, before time.Time, limit int) (out []*domain.WithdrawalRequest, err error) {
	err = r.read(func(d *memoryData) error {
		items := lo.Filter(lo.Values(d.withdrawals), func(x domain.WithdrawalRequest, _ int) bool {
			return x.Status == domain.WithdrawalStatusProcessing && x.UpdatedAt.Before(before)
		})
		slices.SortFunc(items, func(a, b domain.WithdrawalRequest) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
		out = ptrs(paginate(items, limit, 0))
		return nil
	})
	return out, err
}

// ---- payment profiles ----

type memoryProfileRepository struct{ memConn }

func (r *memoryProfileRepository) Create(ctx context.Context, p *domain.PaymentProfile) error {
	return r.write(func(d *memoryData) error {
		d.profiles[p.ID] = *p
		return nil
	})
}

func (r *memoryProfileRepository) GetByID(ctx context.Context, id string) (out *domain.PaymentProfile, err error) {
	err = r.read(func(d *memoryData) error {
		p, ok := d.profiles[id]
		if !ok {
			return domain.ErrProfileNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryProfileRepository) GetForUpdate(ctx context.Context, id string) (*domain.PaymentProfile, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryProfileRepository) Update(ctx context.Context, p *domain.PaymentProfile) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.profiles[p.ID]; !ok {
			return domain.ErrProfileNotFound
		}
		d.profiles[p.ID] = *p
		return nil
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
