package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLStore(t),
	}
}

func seedContract(t *testing.T, s Store) domain.Contract {
	t.Helper()
	ctx := context.Background()
	c := domain.Contract{
		ID:                  "c-1",
		UnitID:              "u-1",
		OwnerID:             ptr("o-1"),
		TenantName:          "Jane Doe",
		TenantEmail:         "jane@example.com",
		TenantPhone:         "555-0100",
		StartDate:           day(2025, 3, 15),
		EndDate:             day(2026, 3, 15),
		MonthlyRent:         types.NewMoney(1200000, "MXN"),
		LeaseDurationMonths: 12,
		Deposit:             types.NewMoney(1200000, "MXN"),
		Pets:                &domain.Pets{HasPets: true, PetCount: 1, PetType: "dog"},
		CreatedBy:           "agent-1",
		CreatedAt:           time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateContract(ctx, c))
	return c
}

func TestStore_ContractRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := seedContract(t, s)

			got, err := s.GetContract(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			err = s.CreateContract(ctx, want)
			assert.True(t, errors.Is(err, domain.ErrConflict), "duplicate id: %v", err)

			require.NoError(t, s.DeleteContract(ctx, "c-1"))
			_, err = s.GetContract(ctx, "c-1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			assert.True(t, errors.Is(s.DeleteContract(ctx, "c-1"), domain.ErrNotFound))
		})
	}
}

func TestStore_ActiveOwner(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.ActiveOwner(ctx, "u-1")
			require.True(t, errors.Is(err, domain.ErrNotFound))

			old := domain.Owner{ID: "o-1", UnitID: "u-1", OwnerName: "Old", IsActive: true, CreatedAt: day(2024, 1, 1)}
			newer := domain.Owner{ID: "o-2", UnitID: "u-1", OwnerName: "New", IsActive: true, CreatedAt: day(2025, 1, 1)}
			require.NoError(t, s.CreateOwner(ctx, old))
			require.NoError(t, s.CreateOwner(ctx, newer))

			got, err := s.ActiveOwner(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, "o-2", got.ID)

			require.NoError(t, s.SetOwnerActive(ctx, "o-2", false))
			got, err = s.ActiveOwner(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, "o-1", got.ID)

			assert.True(t, errors.Is(s.SetOwnerActive(ctx, "missing", true), domain.ErrNotFound))

			for _, id := range []string{"o-b", "o-c", "o-a"} {
				require.NoError(t, s.CreateOwner(ctx, domain.Owner{ID: id, UnitID: "u-2", OwnerName: id, IsActive: true, CreatedAt: day(2025, 2, 1)}))
			}
			for i := 0; i < 5; i++ {
				got, err = s.ActiveOwner(ctx, "u-2")
				require.NoError(t, err)
				assert.Equal(t, "o-c", got.ID, "same-instant owners resolve by id")
			}

			require.NoError(t, s.DeleteOwner(ctx, "o-1"))
			_, err = s.ActiveOwner(ctx, "u-1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			assert.True(t, errors.Is(s.DeleteOwner(ctx, "o-1"), domain.ErrNotFound))
		})
	}
}

func TestStore_ScheduleEntries(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entries := []domain.ScheduleEntry{
				{ID: "e-rent", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceRent, ChargeKind: domain.ChargeFixed,
					Amount: types.NewMoney(1200000, "MXN"), DayOfMonth: 15, Frequency: domain.FrequencyMonthly},
				{ID: "e-water", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceWater, ChargeKind: domain.ChargeVariable,
					Amount: types.NewMoney(0, "MXN"), DayOfMonth: 5, Frequency: domain.FrequencyBimonthly},
				{ID: "e-other", ContractID: "c-2", UnitID: "u-2", ServiceType: domain.ServiceRent, ChargeKind: domain.ChargeFixed,
					Amount: types.NewMoney(500000, "USD"), DayOfMonth: 1, Frequency: domain.FrequencyMonthly},
			}
			require.NoError(t, s.CreateScheduleEntries(ctx, entries))

			got, err := s.ListScheduleEntries(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, entries[:2], got)

			all, err := s.ListScheduleEntries(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			require.NoError(t, s.DeleteScheduleEntries(ctx, "c-1"))
			got, err = s.ListScheduleEntries(ctx, "c-1")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStore_AdditionalTenantRequiresContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.CreateAdditionalTenant(ctx, domain.AdditionalTenant{ID: "t-1", ContractID: "missing", FullName: "X"})
			assert.True(t, errors.Is(err, domain.ErrNotFound))

			seedContract(t, s)
			tenant := domain.AdditionalTenant{ID: "t-1", ContractID: "c-1", FullName: "John Roe", Email: "john@example.com", CreatedAt: day(2025, 3, 2)}
			require.NoError(t, s.CreateAdditionalTenant(ctx, tenant))
			got, err := s.ListAdditionalTenants(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, []domain.AdditionalTenant{tenant}, got)
		})
	}
}

func TestStore_PaymentVersioning(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := domain.PaymentRecord{
				ID: "p-1", ContractID: "c-1", ScheduleEntryID: ptr("e-rent"), Category: domain.ServiceRent,
				Amount: types.NewMoney(1200000, "MXN"), DueDate: day(2025, 4, 15), Status: domain.PaymentPending,
				PayerRole: domain.PayerTenant, Version: 1, CreatedAt: day(2025, 4, 1), UpdatedAt: day(2025, 4, 1),
			}
			require.NoError(t, s.CreatePayment(ctx, p))

			dup := p
			dup.ID = "p-2"
			assert.True(t, errors.Is(s.CreatePayment(ctx, dup), domain.ErrConflict), "same entry and due date")

			p.Status = domain.PaymentPaid
			p.PaidDate = ptr(time.Date(2025, 4, 14, 9, 30, 0, 0, time.UTC))
			p.ReceiptURL = "https://files.example.com/r.pdf"
			updated, err := s.UpdatePayment(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, 2, updated.Version)

			stale := p // still carries version 1
			stale.Status = domain.PaymentRejected
			_, err = s.UpdatePayment(ctx, stale)
			assert.True(t, errors.Is(err, domain.ErrVersionConflict))

			got, err := s.GetPayment(ctx, "p-1")
			require.NoError(t, err)
			assert.Equal(t, updated, got)

			_, err = s.UpdatePayment(ctx, domain.PaymentRecord{ID: "missing"})
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestStore_ListPaymentsFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mk := func(id, contract string, due time.Time, status domain.PaymentStatus, payer domain.PayerRole) {
				require.NoError(t, s.CreatePayment(ctx, domain.PaymentRecord{
					ID: id, ContractID: contract, Category: domain.ServiceRent, Amount: types.NewMoney(100, "MXN"),
					DueDate: due, Status: status, PayerRole: payer, Version: 1, CreatedAt: due, UpdatedAt: due,
				}))
			}
			mk("p-3", "c-1", day(2025, 6, 1), domain.PaymentPaid, domain.PayerTenant)
			mk("p-1", "c-1", day(2025, 4, 1), domain.PaymentPending, domain.PayerTenant)
			mk("p-2", "c-2", day(2025, 5, 1), domain.PaymentPending, domain.PayerOwner)

			ids := func(f domain.PaymentFilter) []string {
				ps, err := s.ListPayments(ctx, f)
				require.NoError(t, err)
				var out []string
				for _, p := range ps {
					out = append(out, p.ID)
				}
				return out
			}
			assert.Equal(t, []string{"p-1", "p-2", "p-3"}, ids(domain.PaymentFilter{}))
			assert.Equal(t, []string{"p-1", "p-3"}, ids(domain.PaymentFilter{ContractID: "c-1"}))
			assert.Equal(t, []string{"p-1", "p-2"}, ids(domain.PaymentFilter{Status: domain.PaymentPending}))
			assert.Equal(t, []string{"p-2"}, ids(domain.PaymentFilter{PayerRole: domain.PayerOwner}))
			assert.Equal(t, []string{"p-2", "p-3"}, ids(domain.PaymentFilter{DueFrom: day(2025, 5, 1), DueTo: day(2025, 6, 30)}))
		})
	}
}

func TestStore_ReceiptVersioning(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := domain.Receipt{ID: "r-1", ContractID: "c-1", Amount: types.NewMoney(50000, "MXN"),
				Status: domain.ReceiptPending, Version: 1, CreatedAt: day(2025, 4, 1)}
			require.NoError(t, s.CreateReceipt(ctx, r))

			r.Status = domain.ReceiptApproved
			r.ReviewedAt = ptr(day(2025, 4, 2))
			updated, err := s.UpdateReceipt(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, 2, updated.Version)

			_, err = s.UpdateReceipt(ctx, r)
			assert.True(t, errors.Is(err, domain.ErrVersionConflict))

			list, err := s.ListReceipts(ctx, "c-1")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, domain.ReceiptApproved, list[0].Status)
		})
	}
}

func TestStore_UnitsTicketsAttempts(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := domain.Unit{ID: "u-1", CondominiumID: "condo-1", Name: "A-101", IsActive: true}
			require.NoError(t, s.PutUnit(ctx, u))
			u.Name = "A-101 renamed"
			require.NoError(t, s.PutUnit(ctx, u))
			got, err := s.GetUnit(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, u, got)
			units, err := s.ListUnits(ctx)
			require.NoError(t, err)
			assert.Len(t, units, 1)

			require.NoError(t, s.PutClient(ctx, domain.Client{ID: "cl-1", Name: "Jane Doe"}))
			cl, err := s.GetClient(ctx, "cl-1")
			require.NoError(t, err)
			assert.Equal(t, "Jane Doe", cl.Name)

			ticket := domain.MaintenanceTicket{ID: "t-1", UnitID: "u-1", Title: "Fix sink", Status: "open",
				ScheduledDate: ptr(day(2025, 5, 2)), ScheduledTime: "09:30"}
			require.NoError(t, s.PutTicket(ctx, ticket))
			tickets, err := s.ListTickets(ctx)
			require.NoError(t, err)
			assert.Equal(t, []domain.MaintenanceTicket{ticket}, tickets)

			_, err = s.GetAttempt(ctx, "key-1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			a := domain.ProvisioningAttempt{Key: "key-1", ContractID: "c-1", Result: []byte(`{"ok":true}`), CreatedAt: day(2025, 3, 1)}
			require.NoError(t, s.SaveAttempt(ctx, a))
			require.NoError(t, s.SaveAttempt(ctx, a))
			gotA, err := s.GetAttempt(ctx, "key-1")
			require.NoError(t, err)
			assert.Equal(t, a, gotA)
		})
	}
}
