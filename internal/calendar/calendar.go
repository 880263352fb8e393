// Package calendar merges payments, schedule occurrences, maintenance tickets
// and contract starts into one per-date, filterable timeline. It is read only.
package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/payment"
	"github.com/homesapp/rentals/internal/types"
)

// Kind tags the source of an event.
type Kind string

const (
	KindPayment  Kind = "payment" // rent, paid by the tenant
	KindService  Kind = "service" // non-rent charges, paid by the owner
	KindTicket   Kind = "ticket"
	KindContract Kind = "contract"
)

// Kinds lists every event kind in display order.
var Kinds = []Kind{KindPayment, KindService, KindTicket, KindContract}

// Event is the common projection of every source.
type Event struct {
	Kind       Kind         `json:"type"`
	SourceID   string       `json:"sourceId"`
	Title      string       `json:"title"`
	Time       string       `json:"time"` // zero-padded "HH:mm" or ""
	Status     string       `json:"status"`
	Date       time.Time    `json:"-"`
	DateText   string       `json:"date"`
	UnitID     string       `json:"unitId,omitempty"`
	ContractID string       `json:"contractId,omitempty"`
	Amount     *types.Money `json:"amount,omitempty"`
}

// Occurrence is one concrete due date of a schedule entry.
type Occurrence struct {
	Entry   domain.ScheduleEntry
	DueDate time.Time
}

// Sources is the snapshot to aggregate.
type Sources struct {
	Payments  []domain.PaymentRecord
	Schedule  []Occurrence
	Tickets   []domain.MaintenanceTicket
	Contracts []domain.Contract
	Units     []domain.Unit
}

// Filters narrow the view. All conditions must hold.
type Filters struct {
	// CondominiumID keeps events whose unit belongs to this condominium.
	CondominiumID string
	// Hidden kinds contribute no events and no indicator counts.
	Hidden map[Kind]bool
	// From and To bound the event date when set.
	From, To time.Time
}

// Shows reports whether kind k is visible.
func (f Filters) Shows(k Kind) bool { return !f.Hidden[k] }

// Counts is the per-date indicator tuple.
type Counts struct {
	Payments  int `json:"payments"`
	Services  int `json:"services"`
	Tickets   int `json:"tickets"`
	Contracts int `json:"contracts"`
}

func (c *Counts) add(k Kind) {
	switch k {
	case KindPayment:
		c.Payments++
	case KindService:
		c.Services++
	case KindTicket:
		c.Tickets++
	case KindContract:
		c.Contracts++
	}
}

// Of returns the count for one kind.
func (c Counts) Of(k Kind) int {
	switch k {
	case KindPayment:
		return c.Payments
	case KindService:
		return c.Services
	case KindTicket:
		return c.Tickets
	case KindContract:
		return c.Contracts
	}
	return 0
}

// Total is the sum over all kinds.
func (c Counts) Total() int { return c.Payments + c.Services + c.Tickets + c.Contracts }

// View is the aggregated timeline keyed by "YYYY-MM-DD".
type View struct {
	EventsByDate map[string][]Event `json:"eventsByDate"`
	Indicators   map[string]Counts  `json:"indicators"`
}

// Dates returns the dates that carry events, ascending.
func (v View) Dates() []string {
	out := make([]string, 0, len(v.EventsByDate))
	for d := range v.EventsByDate {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Total is the number of events in the view.
func (v View) Total() int {
	n := 0
	for _, evs := range v.EventsByDate {
		n += len(evs)
	}
	return n
}

// item is implemented by one adapter per source kind.
type item interface {
	project(now time.Time) Event
}

type paymentItem struct{ p domain.PaymentRecord }

func (i paymentItem) project(now time.Time) Event {
	p := i.p
	amount := p.Amount
	return Event{
		Kind:       kindFor(p.Category),
		SourceID:   p.ID,
		Title:      titleFor(p.Category, p.Description),
		Status:     string(payment.Classify(p, now)),
		Date:       p.DueDate,
		ContractID: p.ContractID,
		Amount:     &amount,
	}
}

type occurrenceItem struct{ o Occurrence }

func (i occurrenceItem) project(time.Time) Event {
	e := i.o.Entry
	ev := Event{
		Kind:       kindFor(e.ServiceType),
		SourceID:   e.ID,
		Title:      titleFor(e.ServiceType, ""),
		Status:     "scheduled",
		Date:       i.o.DueDate,
		UnitID:     e.UnitID,
		ContractID: e.ContractID,
	}
	if e.ChargeKind != domain.ChargeVariable {
		amount := e.Amount
		ev.Amount = &amount
	}
	return ev
}

type ticketItem struct{ t domain.MaintenanceTicket }

func (i ticketItem) project(time.Time) Event {
	ev := Event{
		Kind:     KindTicket,
		SourceID: i.t.ID,
		Title:    i.t.Title,
		Time:     normalizeTime(i.t.ScheduledTime),
		Status:   i.t.Status,
		UnitID:   i.t.UnitID,
	}
	if i.t.ScheduledDate != nil {
		ev.Date = *i.t.ScheduledDate
	}
	return ev
}

type contractItem struct{ c domain.Contract }

func (i contractItem) project(now time.Time) Event {
	c := i.c
	status := "active"
	switch {
	case types.Day(c.StartDate).After(types.Day(now)):
		status = "upcoming"
	case !c.EndDate.IsZero() && types.Day(c.EndDate).Before(types.Day(now)):
		status = "ended"
	}
	rent := c.MonthlyRent
	return Event{
		Kind:       KindContract,
		SourceID:   c.ID,
		Title:      "Contract start: " + c.TenantName,
		Status:     status,
		Date:       c.StartDate,
		UnitID:     c.UnitID,
		ContractID: c.ID,
		Amount:     &rent,
	}
}

func kindFor(t domain.ServiceType) Kind {
	if t == domain.ServiceRent {
		return KindPayment
	}
	return KindService
}

func titleFor(t domain.ServiceType, description string) string {
	if description != "" {
		return description
	}
	if t == domain.ServiceRent {
		return "Rent"
	}
	s := string(t)
	if s == "" {
		return "Service"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// normalizeTime zero-pads "H:m" style times to "HH:mm". Unparsable input
// yields "" so the event sorts with the untimed ones.
func normalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return ""
	}
	if len(mm) > 2 {
		mm = mm[:2] // drop seconds or suffixes
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

type occurrenceKey struct {
	entryID string
	due     string
}

// Aggregate merges the sources into a View. Events without a date are
// dropped, hidden kinds are skipped before counting, and schedule
// occurrences already materialized as payment records appear only once.
func Aggregate(src Sources, f Filters, now time.Time) View {
	condoOf := make(map[string]string, len(src.Units))
	for _, u := range src.Units {
		condoOf[u.ID] = u.CondominiumID
	}
	unitOf := make(map[string]string, len(src.Contracts))
	for _, c := range src.Contracts {
		unitOf[c.ID] = c.UnitID
	}

	materialized := make(map[occurrenceKey]bool, len(src.Payments))
	items := make([]item, 0, len(src.Payments)+len(src.Schedule)+len(src.Tickets)+len(src.Contracts))
	for _, p := range src.Payments {
		if p.ScheduleEntryID != nil {
			materialized[occurrenceKey{*p.ScheduleEntryID, types.FormatDate(p.DueDate)}] = true
		}
		items = append(items, paymentItem{p})
	}
	for _, o := range src.Schedule {
		if materialized[occurrenceKey{o.Entry.ID, types.FormatDate(o.DueDate)}] {
			continue
		}
		items = append(items, occurrenceItem{o})
	}
	for _, t := range src.Tickets {
		items = append(items, ticketItem{t})
	}
	for _, c := range src.Contracts {
		items = append(items, contractItem{c})
	}

	v := View{
		EventsByDate: make(map[string][]Event),
		Indicators:   make(map[string]Counts),
	}
	for _, it := range items {
		ev := it.project(now)
		if ev.Date.IsZero() || !f.Shows(ev.Kind) {
			continue
		}
		ev.Date = types.Day(ev.Date)
		if (!f.From.IsZero() && ev.Date.Before(types.Day(f.From))) || (!f.To.IsZero() && ev.Date.After(types.Day(f.To))) {
			continue
		}
		if ev.UnitID == "" {
			ev.UnitID = unitOf[ev.ContractID]
		}
		if f.CondominiumID != "" && condoOf[ev.UnitID] != f.CondominiumID {
			continue
		}
		ev.DateText = types.FormatDate(ev.Date)
		v.EventsByDate[ev.DateText] = append(v.EventsByDate[ev.DateText], ev)
		c := v.Indicators[ev.DateText]
		c.add(ev.Kind)
		v.Indicators[ev.DateText] = c
	}
	for _, evs := range v.EventsByDate {
		sortByTime(evs)
	}
	return v
}

// sortByTime orders events by their "HH:mm" time, keeping the relative
// order of ties. Untimed events sort first.
func sortByTime(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })
}
