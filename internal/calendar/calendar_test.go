package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

var now = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func sampleSources() Sources {
	return Sources{
		Units: []domain.Unit{
			{ID: "u-1", CondominiumID: "condo-a"},
			{ID: "u-2", CondominiumID: "condo-b"},
		},
		Contracts: []domain.Contract{
			{ID: "c-1", UnitID: "u-1", TenantName: "Jane", StartDate: day(2025, 6, 1), EndDate: day(2026, 6, 1),
				MonthlyRent: types.NewMoney(1200000, "MXN")},
			{ID: "c-2", UnitID: "u-2", TenantName: "Luis", StartDate: day(2025, 6, 15)},
		},
		Payments: []domain.PaymentRecord{
			{ID: "p-rent", ContractID: "c-1", ScheduleEntryID: ptr("e-rent"), Category: domain.ServiceRent,
				DueDate: day(2025, 6, 1), Status: domain.PaymentPending, Amount: types.NewMoney(1200000, "MXN")},
			{ID: "p-water", ContractID: "c-2", Category: domain.ServiceWater,
				DueDate: day(2025, 6, 15), Status: domain.PaymentPaid},
			{ID: "p-nodate", ContractID: "c-1", Category: domain.ServiceGas},
		},
		Schedule: []Occurrence{
			{Entry: domain.ScheduleEntry{ID: "e-rent", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceRent}, DueDate: day(2025, 6, 1)},
			{Entry: domain.ScheduleEntry{ID: "e-rent", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceRent}, DueDate: day(2025, 7, 1)},
			{Entry: domain.ScheduleEntry{ID: "e-net", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceInternet,
				ChargeKind: domain.ChargeVariable}, DueDate: day(2025, 6, 15)},
		},
		Tickets: []domain.MaintenanceTicket{
			{ID: "t-late", UnitID: "u-2", Title: "Boiler", ScheduledDate: ptr(day(2025, 6, 15)), ScheduledTime: "14:30"},
			{ID: "t-early", UnitID: "u-1", Title: "Locks", ScheduledDate: ptr(day(2025, 6, 15)), ScheduledTime: "9:05"},
			{ID: "t-unscheduled", UnitID: "u-1", Title: "Paint"},
		},
	}
}

func TestAggregate_ResolvesDatesAndDedupes(t *testing.T) {
	v := Aggregate(sampleSources(), Filters{}, now)

	assert.Equal(t, []string{"2025-06-01", "2025-06-15", "2025-07-01"}, v.Dates())

	june1 := v.EventsByDate["2025-06-01"]
	ids := sourceIDs(june1)
	assert.ElementsMatch(t, []string{"p-rent", "c-1"}, ids, "the materialized rent occurrence is not emitted again")
	assert.Equal(t, Counts{Payments: 1, Contracts: 1}, v.Indicators["2025-06-01"])

	for _, evs := range v.EventsByDate {
		for _, ev := range evs {
			assert.NotEqual(t, "p-nodate", ev.SourceID)
			assert.NotEqual(t, "t-unscheduled", ev.SourceID)
			assert.False(t, ev.Date.IsZero())
		}
	}
}

func TestAggregate_KindsAndStatus(t *testing.T) {
	v := Aggregate(sampleSources(), Filters{}, now)
	byID := map[string]Event{}
	for _, evs := range v.EventsByDate {
		for _, ev := range evs {
			byID[ev.SourceID] = ev
		}
	}
	assert.Equal(t, KindPayment, byID["p-rent"].Kind)
	assert.Equal(t, "overdue", byID["p-rent"].Status)
	assert.Equal(t, KindService, byID["p-water"].Kind)
	assert.Equal(t, "u-2", byID["p-water"].UnitID, "unit resolved through the contract")
	assert.Equal(t, KindService, byID["e-net"].Kind)
	assert.Nil(t, byID["e-net"].Amount, "variable charges carry no amount")
	assert.Equal(t, KindTicket, byID["t-early"].Kind)
	assert.Equal(t, "09:05", byID["t-early"].Time)
	assert.Equal(t, "upcoming", byID["c-2"].Status)
}

func TestAggregate_SortsByTimeWithinDate(t *testing.T) {
	v := Aggregate(sampleSources(), Filters{}, now)
	june15 := v.EventsByDate["2025-06-15"]
	require.Len(t, june15, 5)

	assert.Equal(t, []string{"p-water", "e-net", "c-2", "t-early", "t-late"}, sourceIDs(june15),
		"untimed events keep source order ahead of timed ones")
	for i := 1; i < len(june15); i++ {
		assert.LessOrEqual(t, june15[i-1].Time, june15[i].Time)
	}
}

func TestAggregate_StableForTies(t *testing.T) {
	var src Sources
	for i := 0; i < 20; i++ {
		src.Tickets = append(src.Tickets, domain.MaintenanceTicket{
			ID:            fmt.Sprintf("t-%02d", i),
			ScheduledDate: ptr(day(2025, 6, 1)),
			ScheduledTime: []string{"10:00", "", "08:30"}[i%3],
		})
	}
	evs := Aggregate(src, Filters{}, now).EventsByDate["2025-06-01"]
	require.Len(t, evs, 20)
	for i := 1; i < len(evs); i++ {
		prev, cur := evs[i-1], evs[i]
		if prev.Time > cur.Time {
			t.Fatalf("events %s and %s out of time order", prev.SourceID, cur.SourceID)
		}
		if prev.Time == cur.Time && prev.SourceID > cur.SourceID {
			t.Fatalf("tie between %s and %s lost input order", prev.SourceID, cur.SourceID)
		}
	}
}

func TestAggregate_ToggleZeroesOnlyThatKind(t *testing.T) {
	all := Aggregate(sampleSources(), Filters{}, now)
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			v := Aggregate(sampleSources(), Filters{Hidden: map[Kind]bool{kind: true}}, now)
			for _, evs := range v.EventsByDate {
				for _, ev := range evs {
					assert.NotEqual(t, kind, ev.Kind)
				}
			}
			for date, before := range all.Indicators {
				after := v.Indicators[date]
				assert.Zero(t, after.Of(kind), "%s on %s", kind, date)
				for _, other := range Kinds {
					if other != kind {
						assert.Equal(t, before.Of(other), after.Of(other), "%s on %s", other, date)
					}
				}
			}
			assert.Equal(t, all.Total()-countKind(all, kind), v.Total())
		})
	}
}

func TestAggregate_CondominiumFilter(t *testing.T) {
	v := Aggregate(sampleSources(), Filters{CondominiumID: "condo-b"}, now)
	var ids []string
	for _, d := range v.Dates() {
		ids = append(ids, sourceIDs(v.EventsByDate[d])...)
	}
	assert.ElementsMatch(t, []string{"p-water", "c-2", "t-late"}, ids)
}

func TestAggregate_WindowBounds(t *testing.T) {
	v := Aggregate(sampleSources(), Filters{From: day(2025, 6, 2), To: day(2025, 6, 30)}, now)
	assert.Equal(t, []string{"2025-06-15"}, v.Dates())
}

func TestNormalizeTime(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"9:05":     "09:05",
		"09:05":    "09:05",
		"7:5":      "07:05",
		"23:59:59": "23:59",
		"24:00":    "",
		"noon":     "",
	}
	for in, want := range tests {
		if got := normalizeTime(in); got != want {
			t.Errorf("normalizeTime(%q) = %q, want %q", in, got, want)
		}
	}
}

func sourceIDs(evs []Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.SourceID
	}
	return out
}

func countKind(v View, k Kind) int {
	n := 0
	for _, c := range v.Indicators {
		n += c.Of(k)
	}
	return n
}
