package provisioning

import (
	"strings"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
)

// Request is everything needed to turn a unit and terms into a contract.
type Request struct {
	// IdempotencyKey makes a retried request return the first result.
	IdempotencyKey    string            `json:"idempotencyKey,omitempty"`
	UnitID            string            `json:"unitId"`
	Tenant            TenantSelection   `json:"tenant"`
	Owner             OwnerSelection    `json:"owner"`
	Terms             Terms             `json:"terms"`
	ExtraCharges      []schedule.Charge `json:"extraCharges,omitempty"`
	Pets              *domain.Pets      `json:"pets,omitempty"`
	AdditionalTenants []TenantInput     `json:"additionalTenants,omitempty"`
}

// TenantSelection picks an existing client or supplies freeform tenant data.
type TenantSelection struct {
	ClientID string `json:"clientId,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// OwnerSelection controls owner resolution. When CreateNew is false and the
// unit has an active owner, that owner is reused.
type OwnerSelection struct {
	CreateNew bool   `json:"isCreatingNewOwner"`
	Name      string `json:"ownerName,omitempty"`
	Email     string `json:"ownerEmail,omitempty"`
	Phone     string `json:"ownerPhone,omitempty"`
}

// Terms are the lease terms. Either DurationMonths or EndDate must be set.
type Terms struct {
	StartDate      string `json:"startDate"`
	DurationMonths int    `json:"durationMonths,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	MonthlyRent    string `json:"monthlyRent"`
	Currency       string `json:"currency,omitempty"`
	Deposit        string `json:"deposit,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
}

// TenantInput is one co-tenant to attach after the contract exists.
type TenantInput struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IDPhotoURL string `json:"idPhotoUrl,omitempty"`
}

func (r Request) scheduleInput() schedule.Input {
	return schedule.Input{
		StartDate:      r.Terms.StartDate,
		DurationMonths: r.Terms.DurationMonths,
		EndDate:        r.Terms.EndDate,
		MonthlyRent:    r.Terms.MonthlyRent,
		Currency:       r.Terms.Currency,
		ExtraCharges:   r.ExtraCharges,
	}
}

// validate checks the request shape. Owner checks that depend on the
// unit's current owner happen in Workflow.resolveOwnerPlan.
func (r Request) validate() error {
	if strings.TrimSpace(r.UnitID) == "" {
		return domain.Invalid("unitId", "is required")
	}
	if _, err := types.ParseDate(r.Terms.StartDate); err != nil {
		return domain.Invalid("terms.startDate", "must be a valid date")
	}
	switch {
	case r.Terms.DurationMonths < 0:
		return domain.Invalid("terms.durationMonths", "must be positive")
	case r.Terms.DurationMonths == 0 && strings.TrimSpace(r.Terms.EndDate) == "":
		return domain.Invalid("terms.durationMonths", "durationMonths or endDate is required")
	case r.Terms.DurationMonths == 0:
		if _, err := types.ParseDate(r.Terms.EndDate); err != nil {
			return domain.Invalid("terms.endDate", "must be a valid date")
		}
	}
	rent, err := types.ParseMoney(r.Terms.MonthlyRent, r.Terms.Currency)
	if err != nil || rent.AmountCents <= 0 {
		return domain.Invalid("terms.monthlyRent", "must be a positive amount")
	}
	if strings.TrimSpace(r.Terms.Deposit) != "" {
		if d, err := types.ParseMoney(r.Terms.Deposit, r.Terms.Currency); err != nil || d.AmountCents < 0 {
			return domain.Invalid("terms.deposit", "must be a valid amount")
		}
	}
	if r.Tenant.ClientID == "" {
		for _, f := range []struct{ name, value string }{
			{"tenant.name", r.Tenant.Name},
			{"tenant.email", r.Tenant.Email},
			{"tenant.phone", r.Tenant.Phone},
		} {
			if strings.TrimSpace(f.value) == "" {
				return domain.Invalid(f.name, "is required")
			}
		}
	}
	if r.Owner.CreateNew && strings.TrimSpace(r.Owner.Name) == "" {
		return domain.Invalid("owner.ownerName", "is required")
	}
	return nil
}
