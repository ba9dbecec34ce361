package gateway

import (
	"context"

	"go.uber.org/zap"

	"collabd/internal/collab"
)

// Fanout relays the coordinator's ordered event stream to every connection of
// the event's assessment. Events arrive already ordered per session, so
// relaying in receipt order satisfies the delivery guarantee without any
// extra sequencing.
type Fanout struct {
	coord    *collab.Coordinator
	registry *Registry
	log      *zap.Logger
}

func NewFanout(coord *collab.Coordinator, registry *Registry, log *zap.Logger) *Fanout {
	return &Fanout{coord: coord, registry: registry, log: log}
}

// Run drains the event stream until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	events := f.coord.Events()
	for {
		select {
		case ev := <-events:
			f.registry.Broadcast(ev.AssessmentID, map[string]any{"type": "event", "event": ev})
		case <-ctx.Done():
			f.log.Info("event fanout stopped")
			return
		}
	}
}
