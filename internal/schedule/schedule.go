// Package schedule derives a contract's term and recurring billing schedule
// from a start date and a set of charge definitions. Everything here is pure:
// bad input yields empty results rather than errors so that previews never
// block the caller.
package schedule

import (
	"time"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

// Charge is a caller-supplied extra charge definition.
type Charge struct {
	ServiceType domain.ServiceType `json:"serviceType"`
	ChargeKind  domain.ChargeKind  `json:"chargeKind,omitempty"`
	Amount      string             `json:"amount,omitempty"` // decimal text; ignored for variable charges
	DayOfMonth  int                `json:"dayOfMonth"`
	Frequency   domain.Frequency   `json:"paymentFrequency,omitempty"`
	Currency    string             `json:"currency,omitempty"`
}

// Input carries the term and charges of a contract. DurationMonths takes
// precedence over EndDate when both are set.
type Input struct {
	StartDate      string   `json:"startDate"`
	DurationMonths int      `json:"durationMonths,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
	MonthlyRent    string   `json:"monthlyRent"`
	Currency       string   `json:"currency,omitempty"`
	ExtraCharges   []Charge `json:"extraCharges,omitempty"`
}

// Result is the derived term and schedule. Entries carry no identifiers;
// the caller assigns them when persisting.
type Result struct {
	StartDate time.Time              `json:"-"`
	EndDate   time.Time              `json:"-"`
	Entries   []domain.ScheduleEntry `json:"entries"`
}

// Empty reports whether nothing could be derived.
func (r Result) Empty() bool { return r.StartDate.IsZero() }

// TotalDays is the span of the term in days, recomputed on every call.
// It is zero when either date is missing.
func (r Result) TotalDays() int {
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return 0
	}
	return int(r.EndDate.Sub(r.StartDate).Hours() / 24)
}

// Rent returns the rent entry, if any.
func (r Result) Rent() (domain.ScheduleEntry, bool) {
	for _, e := range r.Entries {
		if e.IsRent() {
			return e, true
		}
	}
	return domain.ScheduleEntry{}, false
}

// Generate derives the end date and the schedule entries. The rent entry is
// always first and bills on the start date's day of month.
func Generate(in Input) Result {
	start, err := types.ParseDate(in.StartDate)
	if err != nil {
		return Result{}
	}
	res := Result{StartDate: start}
	switch {
	case in.DurationMonths > 0:
		res.EndDate = AddMonths(start, in.DurationMonths)
	case in.EndDate != "":
		if end, err := types.ParseDate(in.EndDate); err == nil {
			res.EndDate = end
		}
	}

	currency := types.CurrencyOrDefault(in.Currency)
	rent, err := types.ParseMoney(in.MonthlyRent, currency)
	if err != nil {
		rent = types.NewMoney(0, currency)
	}
	res.Entries = append(res.Entries, domain.ScheduleEntry{
		ServiceType: domain.ServiceRent,
		ChargeKind:  domain.ChargeFixed,
		Amount:      rent,
		DayOfMonth:  start.Day(),
		Frequency:   domain.FrequencyMonthly,
	})

	for _, c := range in.ExtraCharges {
		if c.ServiceType == "" {
			continue
		}
		res.Entries = append(res.Entries, entryFor(c, start.Day(), currency))
	}
	return res
}

func entryFor(c Charge, fallbackDay int, contractCurrency string) domain.ScheduleEntry {
	currency := contractCurrency
	if c.Currency != "" {
		currency = types.CurrencyOrDefault(c.Currency)
	}
	kind := c.ChargeKind
	if kind != domain.ChargeVariable {
		kind = domain.ChargeFixed
	}
	freq := c.Frequency
	if freq != domain.FrequencyBimonthly {
		freq = domain.FrequencyMonthly
	}
	day := c.DayOfMonth
	if day < 1 || day > 31 {
		day = fallbackDay
	}

	amount := types.NewMoney(0, currency)
	if kind == domain.ChargeFixed {
		if m, err := types.ParseMoney(c.Amount, currency); err == nil {
			amount = m
		}
	}
	return domain.ScheduleEntry{
		ServiceType: c.ServiceType,
		ChargeKind:  kind,
		Amount:      amount,
		DayOfMonth:  day,
		Frequency:   freq,
	}
}

// AddMonths adds calendar months to t, clamping the day to the last valid day
// of the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	return dueIn(first.Year(), first.Month(), d)
}

func dueIn(year int, month time.Month, day int) time.Time {
	if last := types.DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Occurrences expands an entry into its due dates within [from, to]. Cycles
// are counted from the anchor's month (the contract start); due dates before
// the anchor are skipped.
func Occurrences(e domain.ScheduleEntry, anchor, from, to time.Time) []time.Time {
	if anchor.IsZero() || to.Before(from) || e.DayOfMonth < 1 {
		return nil
	}
	anchor, from, to = types.Day(anchor), types.Day(from), types.Day(to)
	step := e.Frequency.Months()

	var out []time.Time
	ay, am, _ := anchor.Date()
	for i := 0; ; i += step {
		first := time.Date(ay, am+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		due := dueIn(first.Year(), first.Month(), e.DayOfMonth)
		if due.After(to) {
			break
		}
		if due.Before(anchor) || due.Before(from) {
			continue
		}
		out = append(out, due)
	}
	return out
}

// ForContract expands e within [from, to] bounded by the contract term. The
// end date is exclusive: a lease ending on day D bills nothing on D.
func ForContract(e domain.ScheduleEntry, c domain.Contract, from, to time.Time) []time.Time {
	if !c.EndDate.IsZero() {
		if last := types.Day(c.EndDate).AddDate(0, 0, -1); last.Before(to) {
			to = last
		}
	}
	return Occurrences(e, c.StartDate, from, to)
}
