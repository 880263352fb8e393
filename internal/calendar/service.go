package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
)

// Store is the read access the calendar needs.
type Store interface {
	ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.PaymentRecord, error)
	ListScheduleEntries(ctx context.Context, contractID string) ([]domain.ScheduleEntry, error)
	ListTickets(ctx context.Context) ([]domain.MaintenanceTicket, error)
	ListContracts(ctx context.Context) ([]domain.Contract, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)
}

// Service loads a snapshot from the store and aggregates it.
type Service struct {
	store      Store
	log        *zap.Logger
	now        func() time.Time
	pageSize   int
	agendaDays int
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithPageSize(n int) Option { return func(s *Service) { s.pageSize = n } }

func WithAgendaDays(n int) Option { return func(s *Service) { s.agendaDays = n } }

// NewService creates a calendar service.
func NewService(store Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:      store,
		log:        log.Named("calendar"),
		now:        time.Now,
		pageSize:   DefaultPageSize,
		agendaDays: DefaultAgendaDays,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Window returns the aggregated view of [f.From, f.To]. Both bounds are
// required so schedule entries can be expanded.
func (s *Service) Window(ctx context.Context, f Filters) (View, error) {
	if f.From.IsZero() || f.To.IsZero() {
		return View{}, domain.Invalid("from", "from and to are required")
	}
	if f.To.Before(f.From) {
		return View{}, domain.Invalid("to", "must not be before from")
	}
	src, err := s.load(ctx, types.Day(f.From), types.Day(f.To))
	if err != nil {
		return View{}, err
	}
	return Aggregate(src, f, s.now()), nil
}

// Day returns one page of the events on date.
func (s *Service) Day(ctx context.Context, date time.Time, page int, f Filters) (DayPage, error) {
	f.From, f.To = date, date
	v, err := s.Window(ctx, f)
	if err != nil {
		return DayPage{}, err
	}
	key := types.FormatDate(date)
	dv := NewDayView(v, key, s.pageSize)
	dv.Goto(page)
	return dv.Snapshot(v.Indicators[key]), nil
}

// Agenda returns the agenda starting at start.
func (s *Service) Agenda(ctx context.Context, start time.Time, f Filters) ([]AgendaDay, error) {
	f.From = types.Day(start)
	f.To = f.From.AddDate(0, 0, s.agendaDays-1)
	v, err := s.Window(ctx, f)
	if err != nil {
		return nil, err
	}
	return Agenda(v, f.From, s.agendaDays), nil
}

func (s *Service) load(ctx context.Context, from, to time.Time) (Sources, error) {
	var (
		src Sources
		err error
	)
	if src.Payments, err = s.store.ListPayments(ctx, domain.PaymentFilter{DueFrom: from, DueTo: to}); err != nil {
		return Sources{}, fmt.Errorf("loading payments: %w", err)
	}
	if src.Contracts, err = s.store.ListContracts(ctx); err != nil {
		return Sources{}, fmt.Errorf("loading contracts: %w", err)
	}
	if src.Tickets, err = s.store.ListTickets(ctx); err != nil {
		return Sources{}, fmt.Errorf("loading tickets: %w", err)
	}
	if src.Units, err = s.store.ListUnits(ctx); err != nil {
		return Sources{}, fmt.Errorf("loading units: %w", err)
	}
	entries, err := s.store.ListScheduleEntries(ctx, "")
	if err != nil {
		return Sources{}, fmt.Errorf("loading schedule: %w", err)
	}
	src.Schedule = Expand(entries, src.Contracts, from, to)
	s.log.Debug("calendar snapshot loaded",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("payments", len(src.Payments)),
		zap.Int("occurrences", len(src.Schedule)),
		zap.Int("tickets", len(src.Tickets)),
	)
	return src, nil
}

// Expand turns schedule entries into occurrences within [from, to], bounded
// by each contract's term (end exclusive). Entries of unknown contracts are ignored.
func Expand(entries []domain.ScheduleEntry, contracts []domain.Contract, from, to time.Time) []Occurrence {
	byID := make(map[string]domain.Contract, len(contracts))
	for _, c := range contracts {
		byID[c.ID] = c
	}
	var out []Occurrence
	for _, e := range entries {
		c, ok := byID[e.ContractID]
		if !ok {
			continue
		}
		for _, due := range schedule.ForContract(e, c, from, to) {
			out = append(out, Occurrence{Entry: e, DueDate: due})
		}
	}
	return out
}
