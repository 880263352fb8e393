package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

// MemoryStore implements Store using in-memory maps.
// Intended for demos and testing; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	units     map[string]domain.Unit
	clients   map[string]domain.Client
	owners    map[string]domain.Owner
	contracts map[string]domain.Contract
	schedule  map[string][]domain.ScheduleEntry // by contract
	tenants   map[string][]domain.AdditionalTenant
	payments  map[string]domain.PaymentRecord
	cycles    map[string]string // schedule entry + due date -> payment id
	receipts  map[string]domain.Receipt
	tickets   map[string]domain.MaintenanceTicket
	attempts  map[string]domain.ProvisioningAttempt
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:     make(map[string]domain.Unit),
		clients:   make(map[string]domain.Client),
		owners:    make(map[string]domain.Owner),
		contracts: make(map[string]domain.Contract),
		schedule:  make(map[string][]domain.ScheduleEntry),
		tenants:   make(map[string][]domain.AdditionalTenant),
		payments:  make(map[string]domain.PaymentRecord),
		cycles:    make(map[string]string),
		receipts:  make(map[string]domain.Receipt),
		tickets:   make(map[string]domain.MaintenanceTicket),
		attempts:  make(map[string]domain.ProvisioningAttempt),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func cycleKey(p domain.PaymentRecord) string {
	if p.ScheduleEntryID == nil {
		return ""
	}
	return *p.ScheduleEntryID + "|" + types.FormatDate(p.DueDate)
}

// ── Units, clients ───────────────────────────────────────────────────────────

func (s *MemoryStore) PutUnit(_ context.Context, u domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUnit(_ context.Context, id string) (domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return domain.Unit{}, notFound("unit", id)
	}
	return u, nil
}

func (s *MemoryStore) ListUnits(_ context.Context) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.Unit) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) PutClient(_ context.Context, c domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, id string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.Client{}, notFound("client", id)
	}
	return c, nil
}

// ── Owners ───────────────────────────────────────────────────────────────────

func (s *MemoryStore) CreateOwner(_ context.Context, o domain.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[o.ID]; ok {
		return fmt.Errorf("owner %s: %w", o.ID, domain.ErrConflict)
	}
	s.owners[o.ID] = o
	return nil
}

// ActiveOwner returns the most recently created active owner of a unit. Ties
// on creation time go to the greater id.
func (s *MemoryStore) ActiveOwner(_ context.Context, unitID string) (domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Owner
	for _, o := range s.owners {
		if o.UnitID != unitID || !o.IsActive {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) ||
			(o.CreatedAt.Equal(found.CreatedAt) && o.ID > found.ID) {
			o := o
			found = &o
		}
	}
	if found == nil {
		return domain.Owner{}, notFound("active owner for unit", unitID)
	}
	return *found, nil
}

func (s *MemoryStore) SetOwnerActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	if !ok {
		return notFound("owner", id)
	}
	o.IsActive = active
	s.owners[id] = o
	return nil
}

func (s *MemoryStore) DeleteOwner(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[id]; !ok {
		return notFound("owner", id)
	}
	delete(s.owners, id)
	return nil
}

// ── Contracts, schedule, additional tenants ──────────────────────────────────

func (s *MemoryStore) CreateContract(_ context.Context, c domain.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; ok {
		return fmt.Errorf("contract %s: %w", c.ID, domain.ErrConflict)
	}
	s.contracts[c.ID] = c
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id string) (domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return domain.Contract{}, notFound("contract", id)
	}
	return c, nil
}

func (s *MemoryStore) DeleteContract(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[id]; !ok {
		return notFound("contract", id)
	}
	delete(s.contracts, id)
	return nil
}

func (s *MemoryStore) ListContracts(_ context.Context) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Contract) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *MemoryStore) CreateScheduleEntries(_ context.Context, entries []domain.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.schedule[e.ContractID] = append(s.schedule[e.ContractID], e)
	}
	return nil
}

func (s *MemoryStore) DeleteScheduleEntries(_ context.Context, contractID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedule, contractID)
	return nil
}

func (s *MemoryStore) ListScheduleEntries(_ context.Context, contractID string) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if contractID != "" {
		return slices.Clone(s.schedule[contractID]), nil
	}
	keys := make([]string, 0, len(s.schedule))
	for k := range s.schedule {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []domain.ScheduleEntry
	for _, k := range keys {
		out = append(out, s.schedule[k]...)
	}
	return out, nil
}

func (s *MemoryStore) CreateAdditionalTenant(_ context.Context, t domain.AdditionalTenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[t.ContractID]; !ok {
		return notFound("contract", t.ContractID)
	}
	s.tenants[t.ContractID] = append(s.tenants[t.ContractID], t)
	return nil
}

func (s *MemoryStore) ListAdditionalTenants(_ context.Context, contractID string) ([]domain.AdditionalTenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tenants[contractID]), nil
}

// ── Payments, receipts ───────────────────────────────────────────────────────

func (s *MemoryStore) CreatePayment(_ context.Context, p domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return fmt.Errorf("payment %s: %w", p.ID, domain.ErrConflict)
	}
	if key := cycleKey(p); key != "" {
		if _, ok := s.cycles[key]; ok {
			return fmt.Errorf("payment for cycle %s: %w", key, domain.ErrConflict)
		}
		s.cycles[key] = p.ID
	}
	s.payments[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id string) (domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return domain.PaymentRecord{}, notFound("payment", id)
	}
	return p, nil
}

func (s *MemoryStore) UpdatePayment(_ context.Context, p domain.PaymentRecord) (domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[p.ID]
	if !ok {
		return domain.PaymentRecord{}, notFound("payment", p.ID)
	}
	if cur.Version != p.Version {
		return domain.PaymentRecord{}, fmt.Errorf("payment %s at version %d: %w", p.ID, p.Version, domain.ErrVersionConflict)
	}
	p.Version++
	s.payments[p.ID] = p
	return p, nil
}

func (s *MemoryStore) ListPayments(_ context.Context, f domain.PaymentFilter) ([]domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PaymentRecord
	for _, p := range s.payments {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.PaymentRecord) int {
		return cmp.Or(a.DueDate.Compare(b.DueDate), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *MemoryStore) CreateReceipt(_ context.Context, r domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.ID]; ok {
		return fmt.Errorf("receipt %s: %w", r.ID, domain.ErrConflict)
	}
	s.receipts[r.ID] = r
	return nil
}

func (s *MemoryStore) GetReceipt(_ context.Context, id string) (domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return domain.Receipt{}, notFound("receipt", id)
	}
	return r, nil
}

func (s *MemoryStore) UpdateReceipt(_ context.Context, r domain.Receipt) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.receipts[r.ID]
	if !ok {
		return domain.Receipt{}, notFound("receipt", r.ID)
	}
	if cur.Version != r.Version {
		return domain.Receipt{}, fmt.Errorf("receipt %s at version %d: %w", r.ID, r.Version, domain.ErrVersionConflict)
	}
	r.Version++
	s.receipts[r.ID] = r
	return r, nil
}

func (s *MemoryStore) ListReceipts(_ context.Context, contractID string) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Receipt
	for _, r := range s.receipts {
		if contractID == "" || r.ContractID == contractID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.Receipt) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// ── Tickets, provisioning attempts ───────────────────────────────────────────

func (s *MemoryStore) PutTicket(_ context.Context, t domain.MaintenanceTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *MemoryStore) ListTickets(_ context.Context) ([]domain.MaintenanceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MaintenanceTicket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.MaintenanceTicket) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, key string) (domain.ProvisioningAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[key]
	if !ok {
		return domain.ProvisioningAttempt{}, notFound("provisioning attempt", key)
	}
	return a, nil
}

func (s *MemoryStore) SaveAttempt(_ context.Context, a domain.ProvisioningAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.Key] = a
	return nil
}
