// Package events is the append-only routing event log. Every lifecycle
// transition of a routing attempt appends exactly one entry; entries are
// never mutated or deleted.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	"github.com/routeworks/router/internal/model"
)

// Log is the port the executor appends through.
type Log interface {
	Append(ctx context.Context, tenantID, messageID string, typ model.EventType, payload map[string]any) error
}

// Store is the Postgres-backed log. Each append is a single atomic insert;
// ordering within (tenant, message) comes from the seq column.
type Store struct {
	db       *dbpg.DB
	strategy retry.Strategy
}

func NewStore(db *dbpg.DB, strategy retry.Strategy) *Store {
	return &Store{db: db, strategy: strategy}
}

func (s *Store) Append(ctx context.Context, tenantID, messageID string, typ model.EventType, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `INSERT INTO router_events (tenant_id, message_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecWithRetry(
		ctx,
		s.strategy,
		query,
		tenantID,
		messageID,
		string(typ),
		encoded,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append %s event: %w", typ, err)
	}
	return nil
}

// List returns the full ordered event sequence for one message. Used by
// the status API; the executor never reads the log.
func (s *Store) List(ctx context.Context, tenantID, messageID string) ([]model.Event, error) {
	query := `SELECT seq, tenant_id, message_id, type, payload, created_at
		FROM router_events
		WHERE tenant_id = $1 AND message_id = $2
		ORDER BY seq`

	rows, err := s.db.QueryWithRetry(ctx, s.strategy, query, tenantID, messageID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	result := []model.Event{}
	for rows.Next() {
		var (
			event   model.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&event.Seq, &event.TenantID, &event.MessageID, &typ, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		event.Type = model.EventType(typ)
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return result, nil
}
