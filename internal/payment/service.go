// Package payment drives payment records through the verification state
// machine (pending -> paid -> verified | rejected) and the legacy receipt
// flow, and derives the read-time overdue classification.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/types"
)

// Store is the persistence the service needs.
type Store interface {
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	CreatePayment(ctx context.Context, p domain.PaymentRecord) error
	GetPayment(ctx context.Context, id string) (domain.PaymentRecord, error)
	UpdatePayment(ctx context.Context, p domain.PaymentRecord) (domain.PaymentRecord, error)
	ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.PaymentRecord, error)
	CreateReceipt(ctx context.Context, r domain.Receipt) error
	GetReceipt(ctx context.Context, id string) (domain.Receipt, error)
	UpdateReceipt(ctx context.Context, r domain.Receipt) (domain.Receipt, error)
	ListReceipts(ctx context.Context, contractID string) ([]domain.Receipt, error)
}

// Service implements the payment commands and queries.
type Service struct {
	store    Store
	cache    cache.Cache
	bus      event.Publisher
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	cacheTTL time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCacheTTL sets how long list and summary views are cached.
func WithCacheTTL(ttl time.Duration) Option { return func(s *Service) { s.cacheTTL = ttl } }

// NewService creates a payment service.
func NewService(store Store, c cache.Cache, bus event.Publisher, log *zap.Logger, opts ...Option) *Service {
	if bus == nil {
		bus = event.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    store,
		cache:    c,
		bus:      bus,
		log:      log.Named("payment"),
		tracer:   otel.Tracer("github.com/homesapp/rentals/internal/payment"),
		now:      time.Now,
		cacheTTL: time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Outcome is the result of a state-machine action. Applied is false when the
// record was already terminal and nothing changed.
type Outcome struct {
	Payment domain.PaymentRecord `json:"payment"`
	Applied bool                 `json:"applied"`
}

// ReceiptOutcome is Outcome for the legacy receipt kind.
type ReceiptOutcome struct {
	Receipt domain.Receipt `json:"receipt"`
	Applied bool           `json:"applied"`
}

// SubmitInput is a tenant's proof of payment for a pending record.
type SubmitInput struct {
	ReceiptURL  string     `json:"receiptUrl"`
	TenantNotes string     `json:"tenantNotes,omitempty"`
	PaidDate    *time.Time `json:"paidDate,omitempty"`
	Version     *int       `json:"version,omitempty"`
}

// ReviewInput is an owner's decision on a paid record.
type ReviewInput struct {
	OwnerNotes string `json:"ownerNotes,omitempty"`
	Version    *int   `json:"version,omitempty"`
}

// StandaloneInput is a payment the tenant reports without a prior pending
// record.
type StandaloneInput struct {
	ContractID  string             `json:"contractId"`
	Category    domain.ServiceType `json:"category"`
	Description string             `json:"description,omitempty"`
	Amount      string             `json:"amount"`
	DueDate     string             `json:"dueDate,omitempty"`
	ReceiptURL  string             `json:"receiptUrl,omitempty"`
	TenantNotes string             `json:"tenantNotes,omitempty"`
}

// ReceiptInput creates a legacy receipt.
type ReceiptInput struct {
	ContractID string `json:"contractId"`
	Amount     string `json:"amount"`
	FileURL    string `json:"fileUrl,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// ── Payment records ──────────────────────────────────────────────────────────

// Submit moves a pending record to paid.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, id string, in SubmitInput) (Outcome, error) {
	if !actor.CanSubmit() {
		return Outcome{}, fmt.Errorf("%s may not submit payments: %w", actor.Role, domain.ErrForbidden)
	}
	return s.transition(ctx, actor, id, domain.PaymentPaid, in.Version, func(p *domain.PaymentRecord, now time.Time) {
		paid := now
		if in.PaidDate != nil {
			paid = *in.PaidDate
		}
		p.PaidDate = &paid
		p.ReceiptURL = in.ReceiptURL
		p.TenantNotes = in.TenantNotes
	})
}

// Verify moves a paid record to verified and stamps the verification time.
func (s *Service) Verify(ctx context.Context, actor domain.Actor, id string, in ReviewInput) (Outcome, error) {
	if !actor.CanVerify() {
		return Outcome{}, fmt.Errorf("%s may not verify payments: %w", actor.Role, domain.ErrForbidden)
	}
	return s.transition(ctx, actor, id, domain.PaymentVerified, in.Version, func(p *domain.PaymentRecord, now time.Time) {
		if in.OwnerNotes != "" {
			p.OwnerNotes = in.OwnerNotes
		}
		p.VerifiedAt = &now
	})
}

// Reject moves a paid record to rejected.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id string, in ReviewInput) (Outcome, error) {
	if !actor.CanVerify() {
		return Outcome{}, fmt.Errorf("%s may not reject payments: %w", actor.Role, domain.ErrForbidden)
	}
	return s.transition(ctx, actor, id, domain.PaymentRejected, in.Version, func(p *domain.PaymentRecord, _ time.Time) {
		if in.OwnerNotes != "" {
			p.OwnerNotes = in.OwnerNotes
		}
	})
}

func (s *Service) transition(ctx context.Context, actor domain.Actor, id string, target domain.PaymentStatus,
	version *int, apply func(*domain.PaymentRecord, time.Time)) (out Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "payment."+string(target), trace.WithAttributes(
		attribute.String("payment.id", id),
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if version != nil && *version != p.Version {
		return Outcome{}, fmt.Errorf("payment %s is at version %d, not %d: %w", id, p.Version, *version, domain.ErrVersionConflict)
	}
	if p.Status.IsTerminal() {
		span.SetAttributes(attribute.Bool("payment.noop", true))
		return Outcome{Payment: p, Applied: false}, nil
	}
	if err := domain.ValidateTransition(domain.PaymentTransitions, string(p.Status), string(target)); err != nil {
		return Outcome{}, err
	}

	from := p.Status
	now := s.now().UTC()
	p.Status = target
	p.UpdatedAt = now
	apply(&p, now)

	updated, err := s.store.UpdatePayment(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	s.invalidate(ctx)

	payload := event.PaymentChangedPayload{
		PaymentID:  updated.ID,
		ContractID: updated.ContractID,
		Category:   updated.Category,
		Amount:     updated.Amount,
		DueDate:    types.FormatDate(updated.DueDate),
		From:       from,
		To:         target,
		OwnerNotes: updated.OwnerNotes,
	}
	var evt event.DomainEvent
	switch target {
	case domain.PaymentPaid:
		evt = event.NewPaymentSubmitted(payload)
	case domain.PaymentVerified:
		evt = event.NewPaymentVerified(payload)
	default:
		evt = event.NewPaymentRejected(payload)
	}
	s.bus.Publish(ctx, evt.By(actor))

	s.log.Info("payment transitioned",
		zap.String("payment_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor", actor.ID),
		zap.Int("version", updated.Version),
	)
	return Outcome{Payment: updated, Applied: true}, nil
}

// SubmitStandalone records a tenant payment that has no pending record. The
// new record starts in paid and awaits verification.
func (s *Service) SubmitStandalone(ctx context.Context, actor domain.Actor, in StandaloneInput) (domain.PaymentRecord, error) {
	if !actor.CanSubmit() {
		return domain.PaymentRecord{}, fmt.Errorf("%s may not submit payments: %w", actor.Role, domain.ErrForbidden)
	}
	if strings.TrimSpace(in.ContractID) == "" {
		return domain.PaymentRecord{}, domain.Invalid("contractId", "is required")
	}
	if !validServiceType(in.Category) {
		return domain.PaymentRecord{}, domain.Invalid("category", "unknown service type %q", in.Category)
	}
	contract, err := s.store.GetContract(ctx, in.ContractID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	amount, err := types.ParseMoney(in.Amount, contract.Currency())
	if err != nil || amount.AmountCents <= 0 {
		return domain.PaymentRecord{}, domain.Invalid("amount", "must be a positive amount")
	}
	now := s.now().UTC()
	due := types.Day(now)
	if in.DueDate != "" {
		if due, err = types.ParseDate(in.DueDate); err != nil {
			return domain.PaymentRecord{}, domain.Invalid("dueDate", "must be YYYY-MM-DD")
		}
	}

	p := domain.PaymentRecord{
		ID:          uuid.New().String(),
		ContractID:  contract.ID,
		Category:    in.Category,
		Description: in.Description,
		Amount:      amount,
		DueDate:     due,
		PaidDate:    &now,
		Status:      domain.PaymentPaid,
		PayerRole:   domain.PayerTenant,
		ReceiptURL:  in.ReceiptURL,
		TenantNotes: in.TenantNotes,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return domain.PaymentRecord{}, err
	}
	s.invalidate(ctx)
	s.bus.Publish(ctx, event.NewPaymentSubmitted(event.PaymentChangedPayload{
		PaymentID:  p.ID,
		ContractID: p.ContractID,
		Category:   p.Category,
		Amount:     p.Amount,
		DueDate:    types.FormatDate(p.DueDate),
		To:         domain.PaymentPaid,
	}).By(actor))
	return p, nil
}

func validServiceType(t domain.ServiceType) bool {
	for _, st := range domain.ServiceTypes {
		if st == t {
			return true
		}
	}
	return false
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := cache.InvalidateAll(ctx, s.cache, cache.PrefixPaymentsList, cache.PrefixPaymentsSummary); err != nil {
		s.log.Warn("payment cache invalidation failed", zap.Error(err))
	}
}

// ── Legacy receipts ──────────────────────────────────────────────────────────

// SubmitReceipt creates a pending legacy receipt.
func (s *Service) SubmitReceipt(ctx context.Context, actor domain.Actor, in ReceiptInput) (domain.Receipt, error) {
	if !actor.CanSubmit() {
		return domain.Receipt{}, fmt.Errorf("%s may not submit receipts: %w", actor.Role, domain.ErrForbidden)
	}
	if strings.TrimSpace(in.ContractID) == "" {
		return domain.Receipt{}, domain.Invalid("contractId", "is required")
	}
	contract, err := s.store.GetContract(ctx, in.ContractID)
	if err != nil {
		return domain.Receipt{}, err
	}
	amount, err := types.ParseMoney(in.Amount, contract.Currency())
	if err != nil || amount.AmountCents <= 0 {
		return domain.Receipt{}, domain.Invalid("amount", "must be a positive amount")
	}
	r := domain.Receipt{
		ID:         uuid.New().String(),
		ContractID: contract.ID,
		Amount:     amount,
		FileURL:    in.FileURL,
		Status:     domain.ReceiptPending,
		Notes:      in.Notes,
		Version:    1,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateReceipt(ctx, r); err != nil {
		return domain.Receipt{}, err
	}
	return r, nil
}

// ApproveReceipt moves a pending receipt to approved.
func (s *Service) ApproveReceipt(ctx context.Context, actor domain.Actor, id string, in ReviewInput) (ReceiptOutcome, error) {
	return s.reviewReceipt(ctx, actor, id, domain.ReceiptApproved, in)
}

// RejectReceipt moves a pending receipt to rejected.
func (s *Service) RejectReceipt(ctx context.Context, actor domain.Actor, id string, in ReviewInput) (ReceiptOutcome, error) {
	return s.reviewReceipt(ctx, actor, id, domain.ReceiptRejected, in)
}

func (s *Service) reviewReceipt(ctx context.Context, actor domain.Actor, id string, target domain.ReceiptStatus, in ReviewInput) (ReceiptOutcome, error) {
	if !actor.CanVerify() {
		return ReceiptOutcome{}, fmt.Errorf("%s may not review receipts: %w", actor.Role, domain.ErrForbidden)
	}
	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return ReceiptOutcome{}, err
	}
	if in.Version != nil && *in.Version != r.Version {
		return ReceiptOutcome{}, fmt.Errorf("receipt %s is at version %d, not %d: %w", id, r.Version, *in.Version, domain.ErrVersionConflict)
	}
	if r.Status.IsTerminal() {
		return ReceiptOutcome{Receipt: r}, nil
	}
	if err := domain.ValidateTransition(domain.ReceiptTransitions, string(r.Status), string(target)); err != nil {
		return ReceiptOutcome{}, err
	}
	now := s.now().UTC()
	r.Status = target
	r.ReviewedAt = &now
	if in.OwnerNotes != "" {
		r.Notes = in.OwnerNotes
	}
	updated, err := s.store.UpdateReceipt(ctx, r)
	if err != nil {
		return ReceiptOutcome{}, err
	}
	s.bus.Publish(ctx, event.NewReceiptReviewed(event.ReceiptReviewedPayload{
		ReceiptID:  updated.ID,
		ContractID: updated.ContractID,
		Status:     updated.Status,
		Notes:      updated.Notes,
	}).By(actor))
	return ReceiptOutcome{Receipt: updated, Applied: true}, nil
}

// Receipts lists legacy receipts, optionally for one contract.
func (s *Service) Receipts(ctx context.Context, contractID string) ([]domain.Receipt, error) {
	return s.store.ListReceipts(ctx, contractID)
}
