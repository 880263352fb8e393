package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{"same day", date(2025, 3, 15), 12, date(2026, 3, 15)},
		{"clamp to february", date(2025, 1, 31), 1, date(2025, 2, 28)},
		{"clamp to leap february", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"clamp to 30 day month", date(2025, 5, 31), 1, date(2025, 6, 30)},
		{"year rollover", date(2025, 11, 30), 3, date(2026, 2, 28)},
		{"no clamp needed", date(2025, 1, 28), 1, date(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.start, tt.months))
		})
	}
}

func TestAddMonths_EveryDayOfYear(t *testing.T) {
	for d := date(2024, 1, 1); d.Year() == 2024; d = d.AddDate(0, 0, 1) {
		for m := 1; m <= 24; m++ {
			got := AddMonths(d, m)
			wantMonth := date(d.Year(), d.Month()+time.Month(m), 1)
			require.Equal(t, wantMonth.Month(), got.Month(), "start %s + %d", d, m)
			require.Equal(t, wantMonth.Year(), got.Year())
			wantDay := d.Day()
			if last := types.DaysIn(wantMonth.Year(), wantMonth.Month()); wantDay > last {
				wantDay = last
			}
			require.Equal(t, wantDay, got.Day())
		}
	}
}

func TestGenerate_TwelveMonthLease(t *testing.T) {
	res := Generate(Input{
		StartDate:      "2025-03-15",
		DurationMonths: 12,
		MonthlyRent:    "12000",
	})
	require.False(t, res.Empty())
	assert.Equal(t, date(2026, 3, 15), res.EndDate)
	assert.Equal(t, 365, res.TotalDays())

	require.Len(t, res.Entries, 1)
	rent := res.Entries[0]
	assert.Equal(t, domain.ServiceRent, rent.ServiceType)
	assert.Equal(t, 15, rent.DayOfMonth)
	assert.Equal(t, domain.FrequencyMonthly, rent.Frequency)
	assert.Equal(t, domain.ChargeFixed, rent.ChargeKind)
	assert.Equal(t, int64(1200000), rent.Amount.AmountCents)
	assert.Equal(t, "MXN", rent.Amount.Currency)
}

func TestGenerate_RentDayFollowsStartDate(t *testing.T) {
	for d := date(2025, 1, 1); d.Year() == 2025; d = d.AddDate(0, 0, 1) {
		res := Generate(Input{StartDate: types.FormatDate(d), DurationMonths: 6, MonthlyRent: "100"})
		rent, ok := res.Rent()
		require.True(t, ok)
		require.Equal(t, d.Day(), rent.DayOfMonth)
	}
}

func TestGenerate_ExtraCharges(t *testing.T) {
	res := Generate(Input{
		StartDate:      "2025-01-10",
		DurationMonths: 6,
		MonthlyRent:    "8,500.00",
		Currency:       "usd",
		ExtraCharges: []Charge{
			{ServiceType: domain.ServiceInternet, ChargeKind: domain.ChargeFixed, Amount: "499.90", DayOfMonth: 5},
			{ServiceType: domain.ServiceElectricity, ChargeKind: domain.ChargeVariable, Amount: "1200", DayOfMonth: 20, Frequency: domain.FrequencyBimonthly},
			{ServiceType: "", DayOfMonth: 3},
			{ServiceType: domain.ServiceWater, DayOfMonth: 0, Amount: "bogus"},
		},
	})
	require.Len(t, res.Entries, 4)

	internet := res.Entries[1]
	assert.Equal(t, int64(49990), internet.Amount.AmountCents)
	assert.Equal(t, "USD", internet.Amount.Currency)
	assert.Equal(t, 5, internet.DayOfMonth)
	assert.Equal(t, domain.FrequencyMonthly, internet.Frequency)

	electricity := res.Entries[2]
	assert.Equal(t, domain.ChargeVariable, electricity.ChargeKind)
	assert.True(t, electricity.Amount.IsZero(), "variable charges carry a zero placeholder")
	assert.Equal(t, domain.FrequencyBimonthly, electricity.Frequency)

	water := res.Entries[3]
	assert.Equal(t, 10, water.DayOfMonth, "invalid day falls back to the start day")
	assert.True(t, water.Amount.IsZero())
}

func TestGenerate_ExplicitEndDate(t *testing.T) {
	res := Generate(Input{StartDate: "2025-01-01", EndDate: "2025-01-31", MonthlyRent: "1"})
	assert.Equal(t, date(2025, 1, 31), res.EndDate)
	assert.Equal(t, 30, res.TotalDays())

	// No duration invariant is enforced in explicit mode.
	res = Generate(Input{StartDate: "2025-06-01", EndDate: "2025-01-01", MonthlyRent: "1"})
	assert.Equal(t, date(2025, 1, 1), res.EndDate)
}

func TestGenerate_InvalidStartIsEmpty(t *testing.T) {
	for _, start := range []string{"", "not-a-date", "2025-13-40"} {
		res := Generate(Input{StartDate: start, DurationMonths: 12, MonthlyRent: "100"})
		assert.True(t, res.Empty())
		assert.Empty(t, res.Entries)
		assert.Equal(t, 0, res.TotalDays())
	}
}

func TestGenerate_UnparsableRentIsZero(t *testing.T) {
	res := Generate(Input{StartDate: "2025-02-01", DurationMonths: 1, MonthlyRent: "twelve"})
	rent, ok := res.Rent()
	require.True(t, ok)
	assert.True(t, rent.Amount.IsZero())
}

func TestOccurrences(t *testing.T) {
	anchor := date(2025, 1, 31)
	monthly := domain.ScheduleEntry{DayOfMonth: 31, Frequency: domain.FrequencyMonthly}
	got := Occurrences(monthly, anchor, date(2025, 1, 1), date(2025, 4, 30))
	assert.Equal(t, []time.Time{
		date(2025, 1, 31), date(2025, 2, 28), date(2025, 3, 31), date(2025, 4, 30),
	}, got)

	bimonthly := domain.ScheduleEntry{DayOfMonth: 5, Frequency: domain.FrequencyBimonthly}
	got = Occurrences(bimonthly, date(2025, 1, 10), date(2025, 1, 1), date(2025, 8, 1))
	assert.Equal(t, []time.Time{date(2025, 3, 5), date(2025, 5, 5), date(2025, 7, 5)}, got,
		"the January cycle falls before the anchor and is skipped")

	assert.Nil(t, Occurrences(monthly, time.Time{}, date(2025, 1, 1), date(2025, 2, 1)))
	assert.Nil(t, Occurrences(monthly, anchor, date(2025, 3, 1), date(2025, 2, 1)))
}

func TestOccurrences_WindowStartsLater(t *testing.T) {
	e := domain.ScheduleEntry{DayOfMonth: 15, Frequency: domain.FrequencyMonthly}
	got := Occurrences(e, date(2024, 1, 15), date(2025, 6, 1), date(2025, 7, 31))
	assert.Equal(t, []time.Time{date(2025, 6, 15), date(2025, 7, 15)}, got)
}

func TestForContract_EndIsExclusive(t *testing.T) {
	c := domain.Contract{StartDate: date(2025, 3, 15), EndDate: date(2026, 3, 15)}
	rent := domain.ScheduleEntry{DayOfMonth: 15, Frequency: domain.FrequencyMonthly}

	got := ForContract(rent, c, date(2025, 1, 1), date(2026, 12, 31))
	require.Len(t, got, 12)
	assert.Equal(t, date(2025, 3, 15), got[0])
	assert.Equal(t, date(2026, 2, 15), got[11])

	open := domain.Contract{StartDate: date(2025, 3, 15)}
	assert.Len(t, ForContract(rent, open, date(2025, 3, 1), date(2025, 5, 31)), 3)
}
