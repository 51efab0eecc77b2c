package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"narration-pipeline/constant"
)

// Entry is one mutating operation reported to the audit sink. Persistence
// belongs to the collaborator behind the sink, not to this service.
type Entry struct {
	ActorId    uuid.UUID              `json:"actor_id"`
	Action     constant.AuditAction   `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityId   uuid.UUID              `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Sink receives audit entries. Implementations must not fail the calling
// operation: a mutation that already committed stays committed.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// LogSink writes audit entries to the context logger.
type LogSink struct{}

func (LogSink) Record(ctx context.Context, entry Entry) {
	zerolog.Ctx(ctx).Info().
		Str("actor_id", entry.ActorId.String()).
		Str("action", string(entry.Action)).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityId.String()).
		Interface("details", entry.Details).
		Msg("audit")
}
