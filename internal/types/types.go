// Package types provides the shared value types used across the rental
// domain: money in integer cents and civil dates.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// DefaultCurrency is applied whenever a caller leaves the currency blank.
const DefaultCurrency = "MXN"

// DateLayout is the wire layout of every civil date ("YYYY-MM-DD").
const DateLayout = "2006-01-02"

// Money represents a monetary amount using integer cents to eliminate
// floating-point errors in financial operations.
type Money struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"` // ISO 4217, e.g. "MXN"
}

// NewMoney builds a Money value, defaulting the currency.
func NewMoney(cents int64, currency string) Money {
	return Money{AmountCents: cents, Currency: CurrencyOrDefault(currency)}
}

// Major returns the amount in major units, the numeric form used on the wire.
func (m Money) Major() float64 {
	return float64(m.AmountCents) / 100
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.AmountCents == 0 }

func (m Money) String() string {
	sign := ""
	cents := m.AmountCents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, m.Currency)
}

// CurrencyOrDefault upper-cases the currency code, falling back to MXN.
func CurrencyOrDefault(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

var moneyCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// ParseMoney converts decimal text such as "12000", "1,250.50" or "$99.9" into
// cents, rounding half-up to two decimal places.
func ParseMoney(text, currency string) (Money, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return Money{}, fmt.Errorf("empty amount")
	}
	d, _, err := apd.NewFromString(cleaned)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	var cents apd.Decimal
	if _, err := moneyCtx.Mul(&cents, d, apd.New(100, 0)); err != nil {
		return Money{}, fmt.Errorf("scaling amount %q: %w", text, err)
	}
	if _, err := moneyCtx.Quantize(&cents, &cents, 0); err != nil {
		return Money{}, fmt.Errorf("rounding amount %q: %w", text, err)
	}
	v, err := cents.Int64()
	if err != nil {
		return Money{}, fmt.Errorf("amount %q out of range: %w", text, err)
	}
	return NewMoney(v, currency), nil
}

// MoneyFromMajor converts a numeric wire amount into cents.
func MoneyFromMajor(amount float64, currency string) (Money, error) {
	return ParseMoney(fmt.Sprintf("%.4f", amount), currency)
}

// ParseDate parses a civil date. Full RFC 3339 timestamps are accepted and
// truncated to their date component.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Day(t), nil
}

// FormatDate renders a civil date; the zero time renders as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Day truncates t to midnight UTC of its own calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateRange represents a lease term with an optional end.
type DateRange struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}
