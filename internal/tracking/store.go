package tracking

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	"github.com/routeworks/router/internal/model"
)

// Store persists tracking records to Postgres. Records are written once
// per attempt and never updated.
type Store struct {
	db       *dbpg.DB
	strategy retry.Strategy
}

func NewStore(db *dbpg.DB, strategy retry.Strategy) *Store {
	return &Store{db: db, strategy: strategy}
}

func (s *Store) Persist(ctx context.Context, records []model.TrackingRecord) error {
	query := `INSERT INTO router_tracking_records
		(id, tenant_id, message_id, channel_id, recipient, type, url, tracking_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, r := range records {
		_, err := s.db.ExecWithRetry(
			ctx,
			s.strategy,
			query,
			r.ID,
			r.TenantID,
			r.MessageID,
			r.ChannelID,
			r.Recipient,
			string(r.Type),
			r.URL,
			r.TrackingURL,
			r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert tracking record %s: %w", r.ID, err)
		}
	}
	return nil
}
