// README: Match action journal backed by PostgreSQL.
package matching

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripmate/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the journal table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_action_events (
			id                BIGSERIAL PRIMARY KEY,
			match_id          TEXT NOT NULL DEFAULT '',
			requester_trip_id TEXT NOT NULL,
			target_trip_id    TEXT NOT NULL,
			action            TEXT NOT NULL,
			from_status       TEXT NOT NULL,
			to_status         TEXT NOT NULL,
			actor_uid         TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO match_action_events (
			match_id, requester_trip_id, target_trip_id, action,
			from_status, to_status, actor_uid, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.MatchID),
		string(e.RequesterTripID),
		string(e.TargetTripID),
		string(e.Action),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorUID,
		e.CreatedAt,
	)
	return err
}

// ListByTrip returns the journal entries where tripID is either side, newest first.
func (s *Store) ListByTrip(ctx context.Context, tripID types.ID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, match_id, requester_trip_id, target_trip_id, action,
		       from_status, to_status, actor_uid, created_at
		FROM match_action_events
		WHERE requester_trip_id = $1 OR target_trip_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(tripID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.MatchID, &e.RequesterTripID, &e.TargetTripID, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.ActorUID, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
