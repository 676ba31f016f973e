package store

import (
	"context"
	"database/sql"
)

// GetWatermark returns the last audit sequence userID has seen, 0 if none.
func (s *Store) GetWatermark(ctx context.Context, userID int64) (int64, error) {
	sqdb, err := s.db()
	if err != nil {
		return 0, err
	}
	var seq int64
	err = sqdb.QueryRowContext(ctx, `SELECT last_seen_seq FROM log_state WHERE user_id=?`, userID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// UpsertWatermark records seq as seen for userID. The stored value never moves
// backwards.
func (s *Store) UpsertWatermark(ctx context.Context, userID, seq int64) error {
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	_, err = sqdb.ExecContext(ctx,
		`INSERT INTO log_state(user_id,last_seen_seq) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET last_seen_seq=MAX(last_seen_seq, excluded.last_seen_seq)`,
		userID, seq,
	)
	return err
}
