package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Logger interface {
	Error(msg string, args ...any)
}

type Event struct {
	RunID   uuid.UUID
	Action  string
	Payload map[string]any
}

func LogEvent(ctx context.Context, pool *pgxpool.Pool, logger Logger, event Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	id := uuid.New()
	if _, err := pool.Exec(ctx, `
INSERT INTO audit_events (id, run_id, action, payload)
VALUES ($1, $2, $3, $4)
`, id, event.RunID, event.Action, body); err != nil {
		if logger != nil {
			logger.Error("audit log failed", "action", event.Action, "error", err)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
