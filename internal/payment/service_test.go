package payment

import (
	"context"
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

var (
	tenant = domain.Actor{ID: "tenant-1", Role: domain.RoleTenant}
	owner  = domain.Actor{ID: "owner-1", Role: domain.RoleOwner}
	today  = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	cache  *cache.MemoryCache
	events *event.Collector
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateContract(context.Background(), domain.Contract{
		ID:          "c-1",
		UnitID:      "u-1",
		TenantName:  "Jane Doe",
		StartDate:   day(2025, 3, 15),
		EndDate:     day(2026, 3, 15),
		MonthlyRent: types.NewMoney(1200000, "MXN"),
	}))
	c := cache.NewMemoryCache()
	events := &event.Collector{}
	svc := NewService(st, c, events, zap.NewNop(), WithClock(func() time.Time { return today }))
	return fixture{svc: svc, store: st, cache: c, events: events}
}

func (f fixture) seed(t *testing.T, id string, status domain.PaymentStatus, due time.Time) domain.PaymentRecord {
	t.Helper()
	p := domain.PaymentRecord{
		ID:         id,
		ContractID: "c-1",
		Category:   domain.ServiceRent,
		Amount:     types.NewMoney(1200000, "MXN"),
		DueDate:    due,
		Status:     status,
		PayerRole:  domain.PayerTenant,
		Version:    1,
	}
	require.NoError(t, f.store.CreatePayment(context.Background(), p))
	return p
}

func TestSubmit_PendingToPaid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", domain.PaymentPending, day(2025, 6, 15))

	out, err := f.svc.Submit(context.Background(), tenant, "p-1", SubmitInput{
		ReceiptURL:  "https://files.example.com/r.pdf",
		TenantNotes: "transfer ref 991",
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, domain.PaymentPaid, out.Payment.Status)
	assert.Equal(t, 2, out.Payment.Version)
	require.NotNil(t, out.Payment.PaidDate)
	assert.Equal(t, "https://files.example.com/r.pdf", out.Payment.ReceiptURL)
	assert.Equal(t, []string{event.TypePaymentSubmitted}, f.events.Types())
}

func TestSubmit_OwnerForbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", domain.PaymentPending, day(2025, 6, 15))

	_, err := f.svc.Submit(context.Background(), owner, "p-1", SubmitInput{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestVerify_FromPaid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", domain.PaymentPaid, day(2025, 6, 1))

	out, err := f.svc.Verify(context.Background(), owner, "p-1", ReviewInput{OwnerNotes: "received"})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, domain.PaymentVerified, out.Payment.Status)
	assert.Equal(t, "received", out.Payment.OwnerNotes)
	require.NotNil(t, out.Payment.VerifiedAt)
	assert.True(t, out.Payment.VerifiedAt.Equal(today))

	evts := f.events.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, event.TypePaymentVerified, evts[0].EventType)
	assert.Equal(t, "owner-1", evts[0].Actor)
	assert.Equal(t, []string{"p-1"}, evts[0].EntityIDs("payment"))
}

func TestVerify_TenantForbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", domain.PaymentPaid, day(2025, 6, 1))

	_, err := f.svc.Verify(context.Background(), tenant, "p-1", ReviewInput{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	p, err := f.store.GetPayment(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, p.Status)
}

func TestVerifyReject_FromPendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p-1", domain.PaymentPending, day(2025, 6, 1))

	_, err := f.svc.Verify(context.Background(), owner, "p-1", ReviewInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Reject(context.Background(), owner, "p-1", ReviewInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, f.events.Types())
}

func TestTerminalRecordsAreNoops(t *testing.T) {
	for _, status := range []domain.PaymentStatus{domain.PaymentVerified, domain.PaymentRejected} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "p-1", status, day(2025, 6, 1))
			ctx := context.Background()

			for _, act := range []func(context.Context, domain.Actor, string, ReviewInput) (Outcome, error){
				f.svc.Verify, f.svc.Reject,
			} {
				out, err := act(ctx, owner, "p-1", ReviewInput{OwnerNotes: "late change"})
				require.NoError(t, err)
				assert.False(t, out.Applied)
				assert.Equal(t, status, out.Payment.Status)
				assert.Equal(t, 1, out.Payment.Version)
				assert.Empty(t, out.Payment.OwnerNotes)
			}
			assert.Empty(t, f.events.Types())
		})
	}
}

func TestReject_InsufficientProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "p-1", domain.PaymentPaid, day(2025, 6, 1))
	f.seed(t, "p-2", domain.PaymentPaid, day(2025, 7, 1))

	before, err := f.svc.Summary(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, before.PendingVerification)

	out, err := f.svc.Reject(ctx, owner, "p-1", ReviewInput{OwnerNotes: "insufficient proof"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRejected, out.Payment.Status)
	assert.Equal(t, "insufficient proof", out.Payment.OwnerNotes)
	assert.Nil(t, out.Payment.VerifiedAt)

	after, err := f.svc.Summary(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1, after.PendingVerification)
	assert.Equal(t, 1, after.Counts[domain.DisplayRejected])
}

func TestVerify_VersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "p-1", domain.PaymentPaid, day(2025, 6, 1))
	seen := 1

	// Two sessions both saw version 1; the first decision wins.
	_, err := f.svc.Verify(ctx, owner, "p-1", ReviewInput{Version: &seen})
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, domain.Actor{ID: "owner-2", Role: domain.RoleOwner}, "p-1", ReviewInput{Version: &seen})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	p, err := f.store.GetPayment(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentVerified, p.Status)
	assert.Equal(t, 2, p.Version)
}

func TestVerify_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Verify(context.Background(), owner, "missing", ReviewInput{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSubmitStandalone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SubmitStandalone(ctx, tenant, StandaloneInput{
		ContractID: "c-1",
		Category:   domain.ServiceWater,
		Amount:     "350.50",
		DueDate:    "2025-06-05",
		ReceiptURL: "https://files.example.com/w.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, p.Status)
	assert.Equal(t, int64(35050), p.Amount.AmountCents)
	assert.Equal(t, "MXN", p.Amount.Currency)
	assert.Equal(t, day(2025, 6, 5), p.DueDate)
	assert.Equal(t, []string{event.TypePaymentSubmitted}, f.events.Types())

	tests := []struct {
		name  string
		in    StandaloneInput
		field string
	}{
		{"no contract", StandaloneInput{Category: domain.ServiceRent, Amount: "1"}, "contractId"},
		{"bad category", StandaloneInput{ContractID: "c-1", Category: "parking", Amount: "1"}, "category"},
		{"zero amount", StandaloneInput{ContractID: "c-1", Category: domain.ServiceRent, Amount: "0"}, "amount"},
		{"bad date", StandaloneInput{ContractID: "c-1", Category: domain.ServiceRent, Amount: "1", DueDate: "06/05"}, "dueDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitStandalone(ctx, tenant, tt.in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestWritesInvalidateCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "p-1", domain.PaymentPaid, day(2025, 6, 1))

	_, err := f.svc.List(ctx, ListQuery{ContractID: "c-1"})
	require.NoError(t, err)
	_, err = f.svc.Summary(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, 2, f.cache.Len())

	_, err = f.svc.Verify(ctx, owner, "p-1", ReviewInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.Len())

	views, err := f.svc.List(ctx, ListQuery{ContractID: "c-1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, domain.DisplayVerified, views[0].DisplayStatus)
}

func TestReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.SubmitReceipt(ctx, tenant, ReceiptInput{ContractID: "c-1", Amount: "12000"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptPending, r.Status)

	out, err := f.svc.ApproveReceipt(ctx, owner, r.ID, ReviewInput{})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, domain.ReceiptApproved, out.Receipt.Status)
	require.NotNil(t, out.Receipt.ReviewedAt)

	again, err := f.svc.RejectReceipt(ctx, owner, r.ID, ReviewInput{OwnerNotes: "changed my mind"})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, domain.ReceiptApproved, again.Receipt.Status)

	assert.Equal(t, []string{event.TypeReceiptApproved}, f.events.Types())

	list, err := f.svc.Receipts(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
