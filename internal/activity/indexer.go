package activity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/types"
)

// Indexer consumes domain events and writes one entry per referenced entity.
// Besides the entities an event names, a contract event is also filed under
// the contract's unit and a unit event under the unit's current contract.
type Indexer struct {
	store Store
	log   *zap.Logger

	// Traversal cache, filled from contract_provisioned and contract_created.
	mu           sync.RWMutex
	contractUnit map[string]string
	unitContract map[string]string
}

// NewIndexer creates a new activity indexer.
func NewIndexer(store Store, log *zap.Logger) *Indexer {
	return &Indexer{
		store:        store,
		log:          log.Named("activity"),
		contractUnit: make(map[string]string),
		unitContract: make(map[string]string),
	}
}

// Link records that contract runs on unit.
func (idx *Indexer) Link(contractID, unitID string) {
	if contractID == "" || unitID == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.contractUnit[contractID] = unitID
	idx.unitContract[unitID] = contractID
}

// HandleEvent indexes evt.
func (idx *Indexer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	if event.IsContractStart(evt.EventType) {
		contracts, units := evt.EntityIDs("contract"), evt.EntityIDs("unit")
		if len(contracts) == 1 && len(units) == 1 {
			idx.Link(contracts[0], units[0])
		}
	}

	refs := idx.resolveTraversals(evt.AffectedEntities)
	entries := make([]Entry, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		key := ref.EntityType + ":" + ref.EntityID
		if ref.EntityID == "" || seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, Entry{
			EventID:    evt.ID,
			EventType:  evt.EventType,
			OccurredAt: evt.OccurredAt,
			EntityType: ref.EntityType,
			EntityID:   ref.EntityID,
			Role:       ref.Role,
			SourceRefs: evt.AffectedEntities,
			Summary:    evt.Summary,
			Category:   evt.Category,
			Weight:     evt.Weight,
			Actor:      evt.Actor,
			Payload:    evt.Payload,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	if err := idx.store.WriteEntries(ctx, entries); err != nil {
		return fmt.Errorf("indexing %s %s: %w", evt.EventType, evt.ID, err)
	}
	idx.log.Debug("event indexed",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.EventType),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// resolveTraversals adds one-hop related entities from the traversal cache.
func (idx *Indexer) resolveTraversals(direct []types.SourceRef) []types.SourceRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	all := append([]types.SourceRef(nil), direct...)
	for _, ref := range direct {
		switch ref.EntityType {
		case "contract":
			if unitID, ok := idx.contractUnit[ref.EntityID]; ok {
				all = append(all, types.SourceRef{EntityType: "unit", EntityID: unitID, Role: "context"})
			}
		case "unit":
			if contractID, ok := idx.unitContract[ref.EntityID]; ok {
				all = append(all, types.SourceRef{EntityType: "contract", EntityID: contractID, Role: "related"})
			}
		}
	}
	return all
}
