package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/event"
)

// LogConsumer writes every domain event to the structured log.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(log *zap.Logger) *LogConsumer {
	return &LogConsumer{log: log.Named("events")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.log.Info(evt.Summary,
		zap.String("type", evt.EventType),
		zap.String("category", evt.Category),
		zap.String("weight", evt.Weight),
		zap.String("actor", evt.Actor),
		zap.String("correlation_id", evt.CorrelationID),
		zap.Strings("entities", entities),
	)
	return nil
}
