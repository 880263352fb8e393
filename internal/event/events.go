package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

// Event types.
const (
	TypeContractProvisioned  = "contract_provisioned"
	TypeContractCreated      = "contract_created"
	TypeOwnerAssigned        = "owner_assigned"
	TypeTenantAdded          = "additional_tenant_added"
	TypePaymentSubmitted     = "payment_submitted"
	TypePaymentVerified      = "payment_verified"
	TypePaymentRejected      = "payment_rejected"
	TypeReceiptApproved      = "receipt_approved"
	TypeReceiptRejected      = "receipt_rejected"
	TypePaymentsMaterialized = "payments_materialized"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"eventType"`
	OccurredAt       time.Time         `json:"occurredAt"`
	AffectedEntities []types.SourceRef `json:"affectedEntities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "contract", "payment", "receipt", "billing"
	Weight           string            `json:"weight"`   // "major", "minor", "info"
	Actor            string            `json:"actor,omitempty"`
	CorrelationID    string            `json:"correlationId,omitempty"`
	Payload          json.RawMessage   `json:"payload"`
}

// By stamps the acting identity onto the event.
func (e DomainEvent) By(a domain.Actor) DomainEvent {
	e.Actor = a.ID
	e.CorrelationID = a.CorrelationID
	return e
}

// EntityIDs returns the ids of affected entities of the given type.
func (e DomainEvent) EntityIDs(entityType string) []string {
	var ids []string
	for _, ref := range e.AffectedEntities {
		if ref.EntityType == entityType {
			ids = append(ids, ref.EntityID)
		}
	}
	return ids
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Contract events ──────────────────────────────────────────────────────────

// ContractProvisionedPayload carries event-specific data for ContractProvisioned.
type ContractProvisionedPayload struct {
	ContractID      string      `json:"contractId"`
	UnitID          string      `json:"unitId"`
	OwnerID         string      `json:"ownerId"`
	OwnerCreated    bool        `json:"ownerCreated"`
	ReplacedOwnerID string      `json:"replacedOwnerId,omitempty"`
	TenantName      string      `json:"tenantName"`
	StartDate       string      `json:"startDate"`
	EndDate         string      `json:"endDate,omitempty"`
	MonthlyRent     types.Money `json:"monthlyRent"`
	ScheduleEntries int         `json:"scheduleEntries"`
	TenantsAdded    int         `json:"tenantsAdded"`
	TenantsFailed   int         `json:"tenantsFailed"`
}

func NewContractProvisioned(p ContractProvisionedPayload) DomainEvent {
	refs := []types.SourceRef{
		{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
		{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
	}
	if p.OwnerID != "" {
		refs = append(refs, types.SourceRef{EntityType: "owner", EntityID: p.OwnerID, Role: "related"})
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeContractProvisioned,
		OccurredAt:       time.Now(),
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("Contract %s provisioned for %s on unit %s", short(p.ContractID), p.TenantName, short(p.UnitID)),
		Category:         "contract",
		Weight:           "major",
		Payload:          mustJSON(p),
	}
}

// ContractCreatedPayload describes a contract written directly, outside the
// provisioning workflow.
type ContractCreatedPayload struct {
	ContractID      string      `json:"contractId"`
	UnitID          string      `json:"unitId"`
	TenantName      string      `json:"tenantName"`
	StartDate       string      `json:"startDate"`
	EndDate         string      `json:"endDate,omitempty"`
	MonthlyRent     types.Money `json:"monthlyRent"`
	ScheduleEntries int         `json:"scheduleEntries"`
}

func NewContractCreated(p ContractCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeContractCreated,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Contract %s created for %s on unit %s", short(p.ContractID), p.TenantName, short(p.UnitID)),
		Category: "contract",
		Weight:   "major",
		Payload:  mustJSON(p),
	}
}

// IsContractStart reports whether eventType introduces a new contract.
func IsContractStart(eventType string) bool {
	return eventType == TypeContractProvisioned || eventType == TypeContractCreated
}

// OwnerAssignedPayload carries event-specific data for OwnerAssigned.
type OwnerAssignedPayload struct {
	OwnerID   string `json:"ownerId"`
	UnitID    string `json:"unitId"`
	OwnerName string `json:"ownerName"`
}

func NewOwnerAssigned(p OwnerAssignedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeOwnerAssigned,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "owner", EntityID: p.OwnerID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Owner %s assigned to unit %s", p.OwnerName, short(p.UnitID)),
		Category: "contract",
		Weight:   "minor",
		Payload:  mustJSON(p),
	}
}

// TenantAddedPayload carries event-specific data for an additional tenant.
type TenantAddedPayload struct {
	TenantID   string `json:"tenantId"`
	ContractID string `json:"contractId"`
	FullName   string `json:"fullName"`
}

func NewTenantAdded(p TenantAddedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeTenantAdded,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "additional_tenant", EntityID: p.TenantID, Role: "subject"},
			{EntityType: "contract", EntityID: p.ContractID, Role: "context"},
		},
		Summary:  fmt.Sprintf("%s added to contract %s", p.FullName, short(p.ContractID)),
		Category: "contract",
		Weight:   "info",
		Payload:  mustJSON(p),
	}
}

// ── Payment events ───────────────────────────────────────────────────────────

// PaymentChangedPayload carries the state change of a payment record.
type PaymentChangedPayload struct {
	PaymentID  string               `json:"paymentId"`
	ContractID string               `json:"contractId"`
	Category   domain.ServiceType   `json:"category"`
	Amount     types.Money          `json:"amount"`
	DueDate    string               `json:"dueDate"`
	From       domain.PaymentStatus `json:"from,omitempty"`
	To         domain.PaymentStatus `json:"to"`
	OwnerNotes string               `json:"ownerNotes,omitempty"`
}

func paymentEvent(eventType, verb, weight string, p PaymentChangedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "payment", EntityID: p.PaymentID, Role: "subject"},
			{EntityType: "contract", EntityID: p.ContractID, Role: "context"},
		},
		Summary:  fmt.Sprintf("%s payment of %s %s on contract %s", p.Category, p.Amount, verb, short(p.ContractID)),
		Category: "payment",
		Weight:   weight,
		Payload:  mustJSON(p),
	}
}

func NewPaymentSubmitted(p PaymentChangedPayload) DomainEvent {
	return paymentEvent(TypePaymentSubmitted, "submitted", "minor", p)
}

func NewPaymentVerified(p PaymentChangedPayload) DomainEvent {
	return paymentEvent(TypePaymentVerified, "verified", "minor", p)
}

func NewPaymentRejected(p PaymentChangedPayload) DomainEvent {
	return paymentEvent(TypePaymentRejected, "rejected", "major", p)
}

// ReceiptReviewedPayload carries the decision on a legacy receipt.
type ReceiptReviewedPayload struct {
	ReceiptID  string               `json:"receiptId"`
	ContractID string               `json:"contractId"`
	Status     domain.ReceiptStatus `json:"status"`
	Notes      string               `json:"notes,omitempty"`
}

func NewReceiptReviewed(p ReceiptReviewedPayload) DomainEvent {
	eventType := TypeReceiptApproved
	if p.Status == domain.ReceiptRejected {
		eventType = TypeReceiptRejected
	}
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "receipt", EntityID: p.ReceiptID, Role: "subject"},
			{EntityType: "contract", EntityID: p.ContractID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Receipt %s %s", short(p.ReceiptID), p.Status),
		Category: "receipt",
		Weight:   "minor",
		Payload:  mustJSON(p),
	}
}

// ── Billing events ───────────────────────────────────────────────────────────

// PaymentsMaterializedPayload summarizes one billing cycle run.
type PaymentsMaterializedPayload struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Created     int      `json:"created"`
	ContractIDs []string `json:"contractIds"`
}

func NewPaymentsMaterialized(p PaymentsMaterializedPayload) DomainEvent {
	refs := make([]types.SourceRef, 0, len(p.ContractIDs))
	for _, id := range p.ContractIDs {
		refs = append(refs, types.SourceRef{EntityType: "contract", EntityID: id, Role: "context"})
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypePaymentsMaterialized,
		OccurredAt:       time.Now(),
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("%d payment records created for %s..%s", p.Created, p.From, p.To),
		Category:         "billing",
		Weight:           "info",
		Payload:          mustJSON(p),
	}
}
