package payment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

// Classify returns the display status of a record at now. A pending record
// whose due date is before today is overdue; the stored status never changes.
func Classify(p domain.PaymentRecord, now time.Time) domain.DisplayStatus {
	if p.Status == domain.PaymentPending && types.Day(p.DueDate).Before(types.Day(now)) {
		return domain.DisplayOverdue
	}
	return domain.DisplayStatus(p.Status)
}

// View is a payment record together with its display status.
type View struct {
	domain.PaymentRecord
	DisplayStatus domain.DisplayStatus `json:"displayStatus"`
}

// Summary aggregates a set of records for the portal dashboard.
type Summary struct {
	Total               int                          `json:"total"`
	Counts              map[domain.DisplayStatus]int `json:"counts"`
	PendingVerification int                          `json:"pendingVerification"`
	Overdue             int                          `json:"overdue"`
	// Totals are summed per currency, keyed by display status.
	Totals map[string]map[domain.DisplayStatus]int64 `json:"totalsCents"`
}

// Summarize counts records by display status. PendingVerification is the
// number of records in paid, awaiting an owner decision.
func Summarize(records []domain.PaymentRecord, now time.Time) Summary {
	s := Summary{
		Counts: make(map[domain.DisplayStatus]int),
		Totals: make(map[string]map[domain.DisplayStatus]int64),
	}
	for _, p := range records {
		st := Classify(p, now)
		s.Total++
		s.Counts[st]++
		switch st {
		case domain.DisplayPaid:
			s.PendingVerification++
		case domain.DisplayOverdue:
			s.Overdue++
		}
		cur := types.CurrencyOrDefault(p.Amount.Currency)
		if s.Totals[cur] == nil {
			s.Totals[cur] = make(map[domain.DisplayStatus]int64)
		}
		s.Totals[cur][st] += p.Amount.AmountCents
	}
	return s
}

// ListQuery filters the portal listing. Status may be any display status,
// including overdue.
type ListQuery struct {
	ContractID string
	Status     domain.DisplayStatus
	PayerRole  domain.PayerRole
	DueFrom    time.Time
	DueTo      time.Time
}

func (q ListQuery) key() string {
	return strings.Join([]string{
		q.ContractID, string(q.Status), string(q.PayerRole),
		types.FormatDate(q.DueFrom), types.FormatDate(q.DueTo),
	}, "|")
}

func (q ListQuery) filter() domain.PaymentFilter {
	f := domain.PaymentFilter{
		ContractID: q.ContractID,
		PayerRole:  q.PayerRole,
		DueFrom:    q.DueFrom,
		DueTo:      q.DueTo,
	}
	switch q.Status {
	case "":
	case domain.DisplayOverdue:
		f.Status = domain.PaymentPending
	default:
		f.Status = domain.PaymentStatus(q.Status)
	}
	return f
}

// records returns stored records for q, going through the list cache. The
// cache holds raw records so classification always uses the current clock.
func (s *Service) records(ctx context.Context, q ListQuery) ([]domain.PaymentRecord, error) {
	load := func(ctx context.Context) ([]domain.PaymentRecord, error) {
		return s.store.ListPayments(ctx, q.filter())
	}
	if s.cache == nil {
		return load(ctx)
	}
	return cache.Remember(ctx, s.cache, cache.PrefixPaymentsList+q.key(), s.cacheTTL, load)
}

// List returns records matching q, sorted by due date, with display status.
func (s *Service) List(ctx context.Context, q ListQuery) ([]View, error) {
	records, err := s.records(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	now := s.now()
	out := make([]View, 0, len(records))
	for _, p := range records {
		st := Classify(p, now)
		if q.Status != "" && st != q.Status {
			continue
		}
		out = append(out, View{PaymentRecord: p, DisplayStatus: st})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// Summary returns the dashboard summary for a contract, or for every
// contract when contractID is empty.
func (s *Service) Summary(ctx context.Context, contractID string) (Summary, error) {
	now := s.now()
	load := func(ctx context.Context) (Summary, error) {
		records, err := s.store.ListPayments(ctx, domain.PaymentFilter{ContractID: contractID})
		if err != nil {
			return Summary{}, fmt.Errorf("summarizing payments: %w", err)
		}
		return Summarize(records, now), nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	// The overdue split depends on the day, so the key carries it.
	key := cache.PrefixPaymentsSummary + contractID + "|" + types.FormatDate(now)
	return cache.Remember(ctx, s.cache, key, s.cacheTTL, load)
}

// Get returns one record with its display status.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return View{}, err
	}
	return View{PaymentRecord: p, DisplayStatus: Classify(p, s.now())}, nil
}
