// Package domain defines the rental entities shared by the provisioning
// workflow, the payment state machine, the calendar and the stores.
package domain

import (
	"time"

	"github.com/homesapp/rentals/internal/types"
)

// ServiceType classifies a recurring charge.
type ServiceType string

const (
	ServiceRent        ServiceType = "rent"
	ServiceWater       ServiceType = "water"
	ServiceElectricity ServiceType = "electricity"
	ServiceInternet    ServiceType = "internet"
	ServiceGas         ServiceType = "gas"
	ServiceMaintenance ServiceType = "maintenance"
	ServiceOther       ServiceType = "other"
)

// ServiceTypes lists every accepted service type.
var ServiceTypes = []ServiceType{
	ServiceRent, ServiceWater, ServiceElectricity, ServiceInternet,
	ServiceGas, ServiceMaintenance, ServiceOther,
}

// ChargeKind distinguishes fixed amounts from metered ones.
type ChargeKind string

const (
	ChargeFixed    ChargeKind = "fixed"
	ChargeVariable ChargeKind = "variable"
)

// Frequency is the billing cadence of a schedule entry.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyBimonthly Frequency = "bimonthly"
)

// Months returns the number of months between two cycles.
func (f Frequency) Months() int {
	if f == FrequencyBimonthly {
		return 2
	}
	return 1
}

// Unit is a rentable space. It is owned by the catalog; the core only reads it.
type Unit struct {
	ID                string  `json:"id"`
	CondominiumID     string  `json:"condominiumId"`
	Name              string  `json:"name"`
	IsActive          bool    `json:"isActive"`
	CurrentContractID *string `json:"currentContractId,omitempty"`
}

// Available reports whether the unit has no current contract.
func (u Unit) Available() bool {
	return u.CurrentContractID == nil || *u.CurrentContractID == ""
}

// Client is an existing tenant identity that a contract may reference.
type Client struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Owner is the person receiving rent for a unit.
type Owner struct {
	ID         string    `json:"id"`
	UnitID     string    `json:"unitId"`
	OwnerName  string    `json:"ownerName"`
	OwnerEmail string    `json:"ownerEmail,omitempty"`
	OwnerPhone string    `json:"ownerPhone,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Pets holds the optional pet-related contract fields.
type Pets struct {
	HasPets     bool   `json:"hasPets"`
	PetCount    int    `json:"petCount,omitempty"`
	PetType     string `json:"petType,omitempty"`
	PetDeposit  int64  `json:"petDepositCents,omitempty"`
	Description string `json:"petDescription,omitempty"`
}

// Contract is a lease on a unit.
type Contract struct {
	ID                  string      `json:"id"`
	UnitID              string      `json:"unitId"`
	OwnerID             *string     `json:"ownerId,omitempty"`
	ClientID            *string     `json:"clientId,omitempty"`
	TenantName          string      `json:"tenantName"`
	TenantEmail         string      `json:"tenantEmail"`
	TenantPhone         string      `json:"tenantPhone"`
	StartDate           time.Time   `json:"startDate"`
	EndDate             time.Time   `json:"endDate"`
	MonthlyRent         types.Money `json:"monthlyRent"`
	LeaseDurationMonths int         `json:"leaseDurationMonths"`
	Deposit             types.Money `json:"deposit"`
	Purpose             string      `json:"purpose,omitempty"`
	Pets                *Pets       `json:"pets,omitempty"`
	CreatedBy           string      `json:"createdBy"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// Currency returns the contract currency.
func (c Contract) Currency() string {
	return types.CurrencyOrDefault(c.MonthlyRent.Currency)
}

// Term returns the lease term; a contract without an end date is open-ended.
func (c Contract) Term() types.DateRange {
	r := types.DateRange{Start: c.StartDate}
	if !c.EndDate.IsZero() {
		end := c.EndDate
		r.End = &end
	}
	return r
}

// AdditionalTenant is a co-tenant attached after contract creation.
type AdditionalTenant struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contractId"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	IDPhotoURL string    `json:"idPhotoUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ScheduleEntry is one recurring charge definition for a contract.
type ScheduleEntry struct {
	ID          string      `json:"id"`
	ContractID  string      `json:"contractId"`
	UnitID      string      `json:"unitId"`
	ServiceType ServiceType `json:"serviceType"`
	ChargeKind  ChargeKind  `json:"chargeKind"`
	Amount      types.Money `json:"amount"`
	DayOfMonth  int         `json:"dayOfMonth"`
	Frequency   Frequency   `json:"paymentFrequency"`
}

// IsRent reports whether the entry bills rent.
func (e ScheduleEntry) IsRent() bool { return e.ServiceType == ServiceRent }

// MaintenanceTicket is a scheduled maintenance visit on a unit.
type MaintenanceTicket struct {
	ID            string     `json:"id"`
	UnitID        string     `json:"unitId"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	ScheduledTime string     `json:"scheduledTime,omitempty"` // "HH:mm"
}

// ProvisioningAttempt records the outcome of a completed provisioning run,
// keyed by the caller's idempotency key. Result holds the serialized result
// returned to the caller.
type ProvisioningAttempt struct {
	Key        string    `json:"key"`
	ContractID string    `json:"contractId"`
	Result     []byte    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
