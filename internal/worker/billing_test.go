package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/store"
	"github.com/homesapp/rentals/internal/types"
)

var today = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	m      *Materializer
	store  *store.MemoryStore
	cache  *cache.MemoryCache
	events *event.Collector
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateContract(ctx, domain.Contract{
		ID: "c-1", UnitID: "u-1", TenantName: "Jane Doe",
		StartDate: day(2025, 3, 15), EndDate: day(2026, 3, 15),
		MonthlyRent: types.NewMoney(1200000, "MXN"),
	}))
	require.NoError(t, st.CreateContract(ctx, domain.Contract{
		ID: "c-2", UnitID: "u-2", TenantName: "John Roe",
		StartDate: day(2024, 12, 15), EndDate: day(2025, 6, 15),
		MonthlyRent: types.NewMoney(900000, "MXN"),
	}))
	require.NoError(t, st.CreateScheduleEntries(ctx, []domain.ScheduleEntry{
		{ID: "e-rent", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceRent, ChargeKind: domain.ChargeFixed,
			Amount: types.NewMoney(1200000, "MXN"), DayOfMonth: 15, Frequency: domain.FrequencyMonthly},
		{ID: "e-water", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceWater, ChargeKind: domain.ChargeVariable,
			Amount: types.NewMoney(0, "MXN"), DayOfMonth: 5, Frequency: domain.FrequencyMonthly},
		{ID: "e-net", ContractID: "c-1", UnitID: "u-1", ServiceType: domain.ServiceInternet, ChargeKind: domain.ChargeFixed,
			Amount: types.NewMoney(60000, "MXN"), DayOfMonth: 20, Frequency: domain.FrequencyBimonthly},
		{ID: "e-old", ContractID: "c-2", UnitID: "u-2", ServiceType: domain.ServiceRent, ChargeKind: domain.ChargeFixed,
			Amount: types.NewMoney(900000, "MXN"), DayOfMonth: 15, Frequency: domain.FrequencyMonthly},
	}))
	c := cache.NewMemoryCache()
	events := &event.Collector{}
	m := NewMaterializer(st, c, events, zap.NewNop(),
		WithClock(func() time.Time { return today }),
		WithHorizon(45),
	)
	return fixture{m: m, store: st, cache: c, events: events}
}

func (f fixture) payments(t *testing.T) []domain.PaymentRecord {
	t.Helper()
	ps, err := f.store.ListPayments(context.Background(), domain.PaymentFilter{})
	require.NoError(t, err)
	return ps
}

func TestMaterializer_RunOnce(t *testing.T) {
	f := newFixture(t)

	rep, err := f.m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day(2025, 6, 10), rep.From)
	assert.Equal(t, day(2025, 7, 25), rep.To)
	if rep.Created != 4 {
		t.Errorf("Created = %d, want 4", rep.Created)
	}
	assert.Equal(t, []string{"c-1"}, rep.ContractIDs)

	due := map[string][]string{}
	for _, p := range f.payments(t) {
		assert.Equal(t, domain.PaymentPending, p.Status)
		assert.Equal(t, "c-1", p.ContractID)
		require.NotNil(t, p.ScheduleEntryID)
		due[*p.ScheduleEntryID] = append(due[*p.ScheduleEntryID], types.FormatDate(p.DueDate))

		switch p.Category {
		case domain.ServiceRent:
			assert.Equal(t, domain.PayerTenant, p.PayerRole)
			assert.Equal(t, int64(1200000), p.Amount.AmountCents)
		case domain.ServiceWater:
			assert.Equal(t, domain.PayerOwner, p.PayerRole)
			assert.True(t, p.Amount.IsZero(), "variable charges start at zero")
		}
	}
	assert.ElementsMatch(t, []string{"2025-06-15", "2025-07-15"}, due["e-rent"])
	assert.Equal(t, []string{"2025-07-05"}, due["e-water"])
	assert.Equal(t, []string{"2025-07-20"}, due["e-net"])
	assert.Empty(t, due["e-old"], "contract ending 2025-06-15 bills nothing on its end date")

	assert.Equal(t, []string{event.TypePaymentsMaterialized}, f.events.Types())
	var payload event.PaymentsMaterializedPayload
	require.NoError(t, json.Unmarshal(f.events.Events()[0].Payload, &payload))
	assert.Equal(t, 4, payload.Created)
	assert.Equal(t, "2025-07-25", payload.To)
}

func TestMaterializer_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.RunOnce(ctx)
	require.NoError(t, err)
	rep, err := f.m.RunOnce(ctx)
	require.NoError(t, err)

	if rep.Created != 0 {
		t.Errorf("second run Created = %d, want 0", rep.Created)
	}
	assert.Len(t, f.payments(t), 4)
	assert.Len(t, f.events.Events(), 1, "no event when nothing was created")
}

func TestMaterializer_InvalidatesPaymentCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, cache.PrefixPaymentsList+"c-1", []byte("[]"), time.Minute))
	require.NoError(t, f.cache.Set(ctx, cache.PrefixPaymentsSummary+"c-1", []byte("{}"), time.Minute))

	_, err := f.m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.Len())
}

func TestMaterializer_HandleContractProvisioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.HandleEvent(ctx, event.NewPaymentVerified(event.PaymentChangedPayload{PaymentID: "p-1", ContractID: "c-1"})))
	assert.Empty(t, f.payments(t))

	evt := event.NewContractProvisioned(event.ContractProvisionedPayload{ContractID: "c-1", UnitID: "u-1", TenantName: "Jane Doe"})
	require.NoError(t, f.m.HandleEvent(ctx, evt))
	assert.Len(t, f.payments(t), 4)

	missing := event.NewContractProvisioned(event.ContractProvisionedPayload{ContractID: "nope", UnitID: "u-1"})
	assert.ErrorIs(t, f.m.HandleEvent(ctx, missing), domain.ErrNotFound)
}

func TestMaterializer_HandleContractCreated(t *testing.T) {
	f := newFixture(t)
	evt := event.NewContractCreated(event.ContractCreatedPayload{ContractID: "c-1", UnitID: "u-1", TenantName: "Jane Doe"})
	require.NoError(t, f.m.HandleEvent(context.Background(), evt))
	assert.Len(t, f.payments(t), 4)
}

var errDiskFull = errors.New("disk full")

// flakyStore fails every payment of one category.
type flakyStore struct {
	*store.MemoryStore
	fail domain.ServiceType
}

func (s flakyStore) CreatePayment(ctx context.Context, p domain.PaymentRecord) error {
	if p.Category == s.fail {
		return errDiskFull
	}
	return s.MemoryStore.CreatePayment(ctx, p)
}

func TestMaterializer_PartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewMaterializer(flakyStore{MemoryStore: f.store, fail: domain.ServiceInternet}, f.cache, f.events, zap.NewNop(),
		WithClock(func() time.Time { return today }),
		WithHorizon(45),
	)
	require.NoError(t, f.cache.Set(ctx, cache.PrefixPaymentsList+"c-1", []byte("[]"), time.Minute))

	rep, err := m.RunOnce(ctx)
	require.ErrorIs(t, err, errDiskFull)
	if rep.Created != 3 {
		t.Errorf("Created = %d, want 3", rep.Created)
	}
	assert.Len(t, f.payments(t), 3)
	assert.Equal(t, []string{"c-1"}, rep.ContractIDs)

	_, ok, _ := f.cache.Get(ctx, cache.PrefixPaymentsList+"c-1")
	assert.False(t, ok, "list cache is invalidated after a partial run")
	assert.Equal(t, []string{event.TypePaymentsMaterialized}, f.events.Types())
}

func TestMaterializer_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.m.interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		ps, err := f.store.ListPayments(context.Background(), domain.PaymentFilter{})
		return err == nil && len(ps) == 4
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
