// Package seed loads demo data: two condominiums with units, clients, one
// running contract with its schedule, a few payment records in every state,
// maintenance visits and a legacy receipt.
package seed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
)

// Store is the persistence the seeder writes to.
type Store interface {
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	PutUnit(ctx context.Context, u domain.Unit) error
	PutClient(ctx context.Context, c domain.Client) error
	CreateOwner(ctx context.Context, o domain.Owner) error
	CreateContract(ctx context.Context, c domain.Contract) error
	CreateScheduleEntries(ctx context.Context, entries []domain.ScheduleEntry) error
	CreatePayment(ctx context.Context, p domain.PaymentRecord) error
	CreateReceipt(ctx context.Context, r domain.Receipt) error
	PutTicket(ctx context.Context, t domain.MaintenanceTicket) error
}

// Fixed identifiers of the demo data.
const (
	CondoPlaya  = "condo-playa"
	CondoCentro = "condo-centro"
	UnitA101    = "unit-a101"
	UnitA102    = "unit-a102"
	UnitB201    = "unit-b201"
	ClientAna   = "client-ana"
	ClientLuis  = "client-luis"
	OwnerMarta  = "owner-marta"
	ContractAna = "contract-a101"
)

// Seed writes the demo data relative to now. It does nothing when units
// already exist.
func Seed(ctx context.Context, st Store, now time.Time, log *zap.Logger) error {
	units, err := st.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("checking units: %w", err)
	}
	if len(units) > 0 {
		log.Info("demo data already present, skipping", zap.Int("units", len(units)))
		return nil
	}

	today := types.Day(now)
	contractID := ContractAna

	for _, u := range []domain.Unit{
		{ID: UnitA101, CondominiumID: CondoPlaya, Name: "A-101", IsActive: true, CurrentContractID: &contractID},
		{ID: UnitA102, CondominiumID: CondoPlaya, Name: "A-102", IsActive: true},
		{ID: UnitB201, CondominiumID: CondoCentro, Name: "B-201", IsActive: true},
	} {
		if err := st.PutUnit(ctx, u); err != nil {
			return fmt.Errorf("seeding unit %s: %w", u.ID, err)
		}
	}
	for _, c := range []domain.Client{
		{ID: ClientAna, Name: "Ana García", Email: "ana@example.mx", Phone: "+52 998 100 2000"},
		{ID: ClientLuis, Name: "Luis Pérez", Email: "luis@example.mx", Phone: "+52 55 3000 4000"},
	} {
		if err := st.PutClient(ctx, c); err != nil {
			return fmt.Errorf("seeding client %s: %w", c.ID, err)
		}
	}
	if err := st.CreateOwner(ctx, domain.Owner{
		ID: OwnerMarta, UnitID: UnitA101, OwnerName: "Marta Ruiz", OwnerEmail: "marta@example.mx",
		IsActive: true, CreatedAt: today,
	}); err != nil {
		return fmt.Errorf("seeding owner: %w", err)
	}

	// Started three months ago, on the 5th.
	start := time.Date(today.Year(), today.Month()-3, 5, 0, 0, 0, 0, time.UTC)
	gen := schedule.Generate(schedule.Input{
		StartDate:      types.FormatDate(start),
		DurationMonths: 12,
		MonthlyRent:    "15000",
		ExtraCharges: []schedule.Charge{
			{ServiceType: domain.ServiceWater, ChargeKind: domain.ChargeVariable, DayOfMonth: 10},
			{ServiceType: domain.ServiceInternet, Amount: "650", DayOfMonth: 20},
			{ServiceType: domain.ServiceMaintenance, Amount: "1800", DayOfMonth: 1, Frequency: domain.FrequencyBimonthly},
		},
	})
	ownerID, clientID := OwnerMarta, ClientAna
	contract := domain.Contract{
		ID: ContractAna, UnitID: UnitA101, OwnerID: &ownerID, ClientID: &clientID,
		TenantName: "Ana García", TenantEmail: "ana@example.mx", TenantPhone: "+52 998 100 2000",
		StartDate: gen.StartDate, EndDate: gen.EndDate,
		MonthlyRent: types.NewMoney(1500000, "MXN"), LeaseDurationMonths: 12,
		Deposit: types.NewMoney(1500000, "MXN"), Purpose: "living",
		CreatedBy: "seed", CreatedAt: start,
	}
	if err := st.CreateContract(ctx, contract); err != nil {
		return fmt.Errorf("seeding contract: %w", err)
	}
	entries := make([]domain.ScheduleEntry, len(gen.Entries))
	for i, e := range gen.Entries {
		e.ID = fmt.Sprintf("%s-%s", ContractAna, e.ServiceType)
		e.ContractID, e.UnitID = ContractAna, UnitA101
		entries[i] = e
	}
	if err := st.CreateScheduleEntries(ctx, entries); err != nil {
		return fmt.Errorf("seeding schedule: %w", err)
	}

	// Rent history: verified, verified, paid (awaiting review), pending (overdue
	// once its day passes).
	rent := entries[0]
	statuses := []domain.PaymentStatus{domain.PaymentVerified, domain.PaymentVerified, domain.PaymentPaid, domain.PaymentPending}
	for i, due := range schedule.ForContract(rent, contract, start, today) {
		if i >= len(statuses) {
			break
		}
		entryID := rent.ID
		p := domain.PaymentRecord{
			ID:              fmt.Sprintf("pay-rent-%s", due.Format("2006-01")),
			ContractID:      ContractAna,
			ScheduleEntryID: &entryID,
			Category:        domain.ServiceRent,
			Description:     "rent " + due.Format("2006-01"),
			Amount:          rent.Amount,
			DueDate:         due,
			Status:          statuses[i],
			PayerRole:       domain.PayerTenant,
			Version:         1,
			CreatedAt:       due,
			UpdatedAt:       due,
		}
		if p.Status != domain.PaymentPending {
			paid := due.AddDate(0, 0, 1)
			p.PaidDate = &paid
			p.ReceiptURL = "https://files.example.mx/receipts/" + p.ID + ".pdf"
		}
		if p.Status == domain.PaymentVerified {
			at := due.AddDate(0, 0, 2)
			p.VerifiedAt = &at
		}
		if err := st.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("seeding payment %s: %w", p.ID, err)
		}
	}

	if err := st.CreateReceipt(ctx, domain.Receipt{
		ID: "receipt-deposit", ContractID: ContractAna, Amount: contract.Deposit,
		FileURL: "https://files.example.mx/receipts/deposit.pdf", Status: domain.ReceiptPending,
		Version: 1, CreatedAt: start,
	}); err != nil {
		return fmt.Errorf("seeding receipt: %w", err)
	}

	visit := today.AddDate(0, 0, 2)
	later := today.AddDate(0, 0, 4)
	for _, t := range []domain.MaintenanceTicket{
		{ID: "ticket-ac", UnitID: UnitA101, Title: "A/C service", Status: "scheduled", ScheduledDate: &visit, ScheduledTime: "10:00"},
		{ID: "ticket-leak", UnitID: UnitA101, Title: "Kitchen leak", Status: "scheduled", ScheduledDate: &visit, ScheduledTime: "9:30"},
		{ID: "ticket-paint", UnitID: UnitB201, Title: "Paint touch-up", Status: "open", ScheduledDate: &later},
		{ID: "ticket-unscheduled", UnitID: UnitA102, Title: "Replace lock", Status: "open"},
	} {
		if err := st.PutTicket(ctx, t); err != nil {
			return fmt.Errorf("seeding ticket %s: %w", t.ID, err)
		}
	}

	log.Info("demo data seeded",
		zap.Int("units", 3),
		zap.String("contract_id", ContractAna),
		zap.Int("schedule_entries", len(entries)),
	)
	return nil
}
