// Package worker contains background workers that keep derived data current.
// The billing materializer turns recurring schedule entries into concrete
// payment records ahead of their due dates.
package worker

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
)

// Store is the persistence the materializer needs.
type Store interface {
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	ListContracts(ctx context.Context) ([]domain.Contract, error)
	ListScheduleEntries(ctx context.Context, contractID string) ([]domain.ScheduleEntry, error)
	CreatePayment(ctx context.Context, p domain.PaymentRecord) error
}

// Report summarizes one materialization run.
type Report struct {
	From        time.Time
	To          time.Time
	Created     int
	ContractIDs []string
}

// Materializer creates pending payment records for every schedule occurrence
// due within the horizon. Records already materialized are skipped, so runs
// can overlap and repeat.
type Materializer struct {
	store    Store
	cache    cache.Cache
	bus      event.Publisher
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	horizon  int
	interval time.Duration
}

// Option configures a Materializer.
type Option func(*Materializer)

func WithClock(now func() time.Time) Option { return func(m *Materializer) { m.now = now } }

// WithHorizon sets how many days ahead of today records are created.
func WithHorizon(days int) Option {
	return func(m *Materializer) {
		if days >= 0 {
			m.horizon = days
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(m *Materializer) {
		if d > 0 {
			m.interval = d
		}
	}
}

func NewMaterializer(store Store, c cache.Cache, bus event.Publisher, log *zap.Logger, opts ...Option) *Materializer {
	if bus == nil {
		bus = event.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Materializer{
		store:    store,
		cache:    c,
		bus:      bus,
		log:      log.Named("billing"),
		tracer:   otel.Tracer("github.com/homesapp/rentals/internal/worker"),
		now:      time.Now,
		horizon:  31,
		interval: time.Hour,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run materializes once immediately and then on every interval tick until
// ctx is cancelled.
func (m *Materializer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.log.Error("billing cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce materializes every contract.
func (m *Materializer) RunOnce(ctx context.Context) (Report, error) {
	contracts, err := m.store.ListContracts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing contracts: %w", err)
	}
	return m.materialize(ctx, contracts)
}

// MaterializeContract materializes a single contract.
func (m *Materializer) MaterializeContract(ctx context.Context, contractID string) (Report, error) {
	c, err := m.store.GetContract(ctx, contractID)
	if err != nil {
		return Report{}, err
	}
	return m.materialize(ctx, []domain.Contract{c})
}

// HandleEvent materializes a new contract so its first cycles are payable
// without waiting for the next tick.
func (m *Materializer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	if !event.IsContractStart(evt.EventType) {
		return nil
	}
	for _, id := range evt.EntityIDs("contract") {
		if _, err := m.MaterializeContract(ctx, id); err != nil {
			return fmt.Errorf("materializing contract %s: %w", id, err)
		}
	}
	return nil
}

func (m *Materializer) window() (time.Time, time.Time) {
	from := types.Day(m.now())
	return from, from.AddDate(0, 0, m.horizon)
}

func (m *Materializer) materialize(ctx context.Context, contracts []domain.Contract) (rep Report, err error) {
	rep.From, rep.To = m.window()
	ctx, span := m.tracer.Start(ctx, "billing.materialize", trace.WithAttributes(
		attribute.String("billing.from", types.FormatDate(rep.From)),
		attribute.String("billing.to", types.FormatDate(rep.To)),
		attribute.Int("billing.contracts", len(contracts)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("billing.created", rep.Created))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// A failing contract does not stop the others. Records already written
	// are still reported.
	var errs []error
	for _, c := range contracts {
		n, cerr := m.materializeContract(ctx, c, rep.From, rep.To)
		if n > 0 {
			rep.Created += n
			rep.ContractIDs = append(rep.ContractIDs, c.ID)
		}
		if cerr != nil {
			errs = append(errs, cerr)
		}
	}
	err = errors.Join(errs...)

	if rep.Created == 0 {
		return rep, err
	}
	if m.cache != nil {
		if err := cache.InvalidateAll(ctx, m.cache, cache.PrefixPaymentsList, cache.PrefixPaymentsSummary); err != nil {
			m.log.Warn("payment cache invalidation failed", zap.Error(err))
		}
	}
	m.bus.Publish(ctx, event.NewPaymentsMaterialized(event.PaymentsMaterializedPayload{
		From:        types.FormatDate(rep.From),
		To:          types.FormatDate(rep.To),
		Created:     rep.Created,
		ContractIDs: rep.ContractIDs,
	}))
	m.log.Info("payment records materialized",
		zap.Int("created", rep.Created),
		zap.Int("contracts", len(rep.ContractIDs)),
		zap.String("from", types.FormatDate(rep.From)),
		zap.String("to", types.FormatDate(rep.To)),
	)
	return rep, err
}

func (m *Materializer) materializeContract(ctx context.Context, c domain.Contract, from, to time.Time) (int, error) {
	entries, err := m.store.ListScheduleEntries(ctx, c.ID)
	if err != nil {
		return 0, fmt.Errorf("listing schedule of %s: %w", c.ID, err)
	}
	created := 0
	var errs []error
	for _, e := range entries {
		for _, due := range schedule.ForContract(e, c, from, to) {
			if ctx.Err() != nil {
				return created, errors.Join(append(errs, ctx.Err())...)
			}
			err := m.store.CreatePayment(ctx, paymentFor(c, e, due, m.now()))
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrConflict):
			default:
				errs = append(errs, fmt.Errorf("creating %s payment due %s on %s: %w",
					e.ServiceType, types.FormatDate(due), c.ID, err))
			}
		}
	}
	return created, errors.Join(errs...)
}

func paymentFor(c domain.Contract, e domain.ScheduleEntry, due, now time.Time) domain.PaymentRecord {
	entryID := e.ID
	amount := e.Amount
	if e.ChargeKind == domain.ChargeVariable {
		amount = types.NewMoney(0, types.CurrencyOrDefault(e.Amount.Currency))
	}
	return domain.PaymentRecord{
		ID:              uuid.New().String(),
		ContractID:      c.ID,
		ScheduleEntryID: &entryID,
		Category:        e.ServiceType,
		Description:     fmt.Sprintf("%s %s", e.ServiceType, due.Format("2006-01")),
		Amount:          amount,
		DueDate:         due,
		Status:          domain.PaymentPending,
		PayerRole:       domain.PayerFor(e.ServiceType),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
