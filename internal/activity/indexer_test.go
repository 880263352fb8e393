package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/types"
)

func TestIndexer_FilesEventUnderEveryEntity(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	idx := NewIndexer(st, zap.NewNop())

	provisioned := event.NewContractProvisioned(event.ContractProvisionedPayload{
		ContractID: "c-1", UnitID: "u-1", OwnerID: "o-1", TenantName: "Ana",
		MonthlyRent: types.NewMoney(1500000, "MXN"),
	}).By(domain.Actor{ID: "admin-1"})
	require.NoError(t, idx.HandleEvent(ctx, provisioned))

	for _, ref := range []struct{ typ, id string }{{"contract", "c-1"}, {"unit", "u-1"}, {"owner", "o-1"}} {
		results, _, total, err := st.QueryByEntity(ctx, ref.typ, ref.id, QueryOptions{})
		require.NoError(t, err)
		if total != 1 {
			t.Fatalf("%s %s: total = %d, want 1", ref.typ, ref.id, total)
		}
		assert.Equal(t, provisioned.ID, results[0].EventID)
		assert.Equal(t, "major", results[0].Weight)
		assert.Equal(t, "admin-1", results[0].Actor)
	}
}

func TestIndexer_Traversal(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	idx := NewIndexer(st, zap.NewNop())
	idx.Link("c-1", "u-1")

	verified := event.NewPaymentVerified(event.PaymentChangedPayload{
		PaymentID: "p-1", ContractID: "c-1", Category: domain.ServiceRent,
		Amount: types.NewMoney(1500000, "MXN"), From: domain.PaymentPaid, To: domain.PaymentVerified,
	})
	require.NoError(t, idx.HandleEvent(ctx, verified))

	results, _, _, err := st.QueryByEntity(ctx, "unit", "u-1", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1, "payment on a contract is filed under its unit")
	assert.Equal(t, "context", results[0].Role)
	assert.Equal(t, event.TypePaymentVerified, results[0].EventType)

	owner := event.NewOwnerAssigned(event.OwnerAssignedPayload{OwnerID: "o-2", UnitID: "u-1", OwnerName: "Jane"})
	require.NoError(t, idx.HandleEvent(ctx, owner))

	results, _, total, err := st.QueryByEntity(ctx, "contract", "c-1", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Contains(t, []string{results[0].EventType, results[1].EventType}, event.TypeOwnerAssigned)
}

func TestIndexer_DeduplicatesRefs(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	idx := NewIndexer(st, zap.NewNop())

	evt := event.NewPaymentsMaterialized(event.PaymentsMaterializedPayload{
		From: "2025-06-10", To: "2025-07-10", Created: 3, ContractIDs: []string{"c-1", "c-1"},
	})
	require.NoError(t, idx.HandleEvent(ctx, evt))

	_, _, total, err := st.QueryByEntity(ctx, "contract", "c-1", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestIndexer_LinksCreatedContracts(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	idx := NewIndexer(st, zap.NewNop())

	created := event.NewContractCreated(event.ContractCreatedPayload{ContractID: "c-9", UnitID: "u-9", TenantName: "Luis"})
	require.NoError(t, idx.HandleEvent(ctx, created))
	require.NoError(t, idx.HandleEvent(ctx, event.NewTenantAdded(event.TenantAddedPayload{
		TenantID: "t-1", ContractID: "c-9", FullName: "Sofía",
	})))

	results, _, total, err := st.QueryByEntity(ctx, "unit", "u-9", QueryOptions{})
	require.NoError(t, err)
	if total != 2 {
		t.Fatalf("unit total = %d, want 2", total)
	}
	got := []string{results[0].EventType, results[1].EventType}
	assert.ElementsMatch(t, []string{event.TypeContractCreated, event.TypeTenantAdded}, got)
}
