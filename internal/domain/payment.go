package domain

import (
	"time"

	"github.com/homesapp/rentals/internal/types"
)

// PaymentStatus is the persisted status of a payment record.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

// IsTerminal returns true for verified and rejected.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentVerified || s == PaymentRejected
}

// DisplayStatus is the status shown to users. It adds the time-derived
// overdue classification, which is never stored.
type DisplayStatus string

const (
	DisplayPending  DisplayStatus = "pending"
	DisplayPaid     DisplayStatus = "paid"
	DisplayVerified DisplayStatus = "verified"
	DisplayRejected DisplayStatus = "rejected"
	DisplayOverdue  DisplayStatus = "overdue"
)

// PayerRole identifies who pays a record.
type PayerRole string

const (
	PayerTenant PayerRole = "tenant"
	PayerOwner  PayerRole = "owner"
)

// PayerFor returns the payer of a service type: rent is paid by the tenant,
// the remaining services by the owner.
func PayerFor(t ServiceType) PayerRole {
	if t == ServiceRent {
		return PayerTenant
	}
	return PayerOwner
}

// PaymentRecord is one concrete billing instance.
type PaymentRecord struct {
	ID              string        `json:"id"`
	ContractID      string        `json:"contractId"`
	ScheduleEntryID *string       `json:"scheduleEntryId,omitempty"`
	Category        ServiceType   `json:"category"`
	Description     string        `json:"description,omitempty"`
	Amount          types.Money   `json:"amount"`
	DueDate         time.Time     `json:"dueDate"`
	PaidDate        *time.Time    `json:"paidDate,omitempty"`
	Status          PaymentStatus `json:"status"`
	PayerRole       PayerRole     `json:"payerRole"`
	ReceiptURL      string        `json:"receiptUrl,omitempty"`
	TenantNotes     string        `json:"tenantNotes,omitempty"`
	OwnerNotes      string        `json:"ownerNotes,omitempty"`
	VerifiedAt      *time.Time    `json:"verifiedAt,omitempty"`
	Version         int           `json:"version"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ReceiptStatus is the status of the legacy receipt record kind.
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// IsTerminal returns true for approved and rejected.
func (s ReceiptStatus) IsTerminal() bool {
	return s == ReceiptApproved || s == ReceiptRejected
}

// Receipt is the legacy two-state record kind. It cannot be upgraded into a
// PaymentRecord.
type Receipt struct {
	ID         string        `json:"id"`
	ContractID string        `json:"contractId"`
	Amount     types.Money   `json:"amount"`
	FileURL    string        `json:"fileUrl,omitempty"`
	Status     ReceiptStatus `json:"status"`
	Notes      string        `json:"notes,omitempty"`
	ReviewedAt *time.Time    `json:"reviewedAt,omitempty"`
	Version    int           `json:"version"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// PaymentFilter narrows a payment listing. Zero fields match everything.
type PaymentFilter struct {
	ContractID      string
	ScheduleEntryID string
	Status          PaymentStatus
	PayerRole       PayerRole
	DueFrom         time.Time
	DueTo           time.Time
}

// Match reports whether p satisfies the filter.
func (f PaymentFilter) Match(p PaymentRecord) bool {
	switch {
	case f.ContractID != "" && p.ContractID != f.ContractID:
		return false
	case f.ScheduleEntryID != "" && (p.ScheduleEntryID == nil || *p.ScheduleEntryID != f.ScheduleEntryID):
		return false
	case f.Status != "" && p.Status != f.Status:
		return false
	case f.PayerRole != "" && p.PayerRole != f.PayerRole:
		return false
	case !f.DueFrom.IsZero() && p.DueDate.Before(f.DueFrom):
		return false
	case !f.DueTo.IsZero() && p.DueDate.After(f.DueTo):
		return false
	}
	return true
}
