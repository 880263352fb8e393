// Package store persists the rental entities. Two implementations share the
// Store interface: MemoryStore for demos and tests, SQLStore for SQLite.
package store

import (
	"context"

	"github.com/homesapp/rentals/internal/domain"
)

// Store is the full persistence surface. Consumers declare the narrower
// subsets they need.
type Store interface {
	PutUnit(ctx context.Context, u domain.Unit) error
	GetUnit(ctx context.Context, id string) (domain.Unit, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)

	PutClient(ctx context.Context, c domain.Client) error
	GetClient(ctx context.Context, id string) (domain.Client, error)

	CreateOwner(ctx context.Context, o domain.Owner) error
	ActiveOwner(ctx context.Context, unitID string) (domain.Owner, error)
	SetOwnerActive(ctx context.Context, id string, active bool) error
	DeleteOwner(ctx context.Context, id string) error

	CreateContract(ctx context.Context, c domain.Contract) error
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	DeleteContract(ctx context.Context, id string) error
	ListContracts(ctx context.Context) ([]domain.Contract, error)

	CreateScheduleEntries(ctx context.Context, entries []domain.ScheduleEntry) error
	DeleteScheduleEntries(ctx context.Context, contractID string) error
	// ListScheduleEntries returns the entries of one contract, or all entries
	// when contractID is empty.
	ListScheduleEntries(ctx context.Context, contractID string) ([]domain.ScheduleEntry, error)

	CreateAdditionalTenant(ctx context.Context, t domain.AdditionalTenant) error
	ListAdditionalTenants(ctx context.Context, contractID string) ([]domain.AdditionalTenant, error)

	// CreatePayment fails with domain.ErrConflict when a record already
	// exists for the same schedule entry and due date.
	CreatePayment(ctx context.Context, p domain.PaymentRecord) error
	GetPayment(ctx context.Context, id string) (domain.PaymentRecord, error)
	// UpdatePayment writes p if the stored version still equals p.Version and
	// returns the record with its bumped version.
	UpdatePayment(ctx context.Context, p domain.PaymentRecord) (domain.PaymentRecord, error)
	ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.PaymentRecord, error)

	CreateReceipt(ctx context.Context, r domain.Receipt) error
	GetReceipt(ctx context.Context, id string) (domain.Receipt, error)
	UpdateReceipt(ctx context.Context, r domain.Receipt) (domain.Receipt, error)
	ListReceipts(ctx context.Context, contractID string) ([]domain.Receipt, error)

	PutTicket(ctx context.Context, t domain.MaintenanceTicket) error
	ListTickets(ctx context.Context) ([]domain.MaintenanceTicket, error)

	GetAttempt(ctx context.Context, key string) (domain.ProvisioningAttempt, error)
	SaveAttempt(ctx context.Context, a domain.ProvisioningAttempt) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
