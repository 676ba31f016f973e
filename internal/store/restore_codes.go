package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"urbanmobility/internal/db"
	"urbanmobility/internal/models"
)

var errLostRace = errors.New("restore code consumed concurrently")

func (s *Store) InsertRestoreCode(ctx context.Context, backupName string, userID int64, codeHash string) (models.RestoreCode, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.RestoreCode{}, err
	}
	rc := models.RestoreCode{BackupName: backupName, GrantedToUserID: userID, CodeHash: codeHash, CreatedAt: time.Now().UTC()}
	res, err := sqdb.ExecContext(ctx,
		`INSERT INTO restore_codes(backup_name,granted_to_user_id,code_hash,used,created_at) VALUES(?,?,?,0,?)`,
		rc.BackupName, rc.GrantedToUserID, rc.CodeHash, rc.CreatedAt,
	)
	if err != nil {
		return models.RestoreCode{}, err
	}
	if rc.ID, err = res.LastInsertId(); err != nil {
		return models.RestoreCode{}, err
	}
	return rc, nil
}

// ConsumeRestoreCode scans the unused codes granted to userID for backupName
// inside one transaction and flips the first one whose hash satisfies match.
// It reports false, leaving every row untouched, when nothing matches or the
// matched row was used by a concurrent caller.
func (s *Store) ConsumeRestoreCode(ctx context.Context, userID int64, backupName string, match func(codeHash string) bool) (bool, error) {
	sqdb, err := s.db()
	if err != nil {
		return false, err
	}
	consumed := false
	err = db.WithTx(ctx, sqdb, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id,code_hash FROM restore_codes WHERE granted_to_user_id=? AND backup_name=? AND used=0 ORDER BY id`,
			userID, backupName,
		)
		if err != nil {
			return err
		}
		type candidate struct {
			id   int64
			hash string
		}
		var candidates []candidate
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.hash); err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, c := range candidates {
			if !match(c.hash) {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE restore_codes SET used=1, used_at=? WHERE id=? AND used=0`,
				time.Now().UTC(), c.id,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				return errLostRace
			}
			consumed = true
			return nil
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// ListRestoreCodes returns the codes granted to userID, newest first. A zero
// userID lists every code.
func (s *Store) ListRestoreCodes(ctx context.Context, userID int64) ([]models.RestoreCode, error) {
	sqdb, err := s.db()
	if err != nil {
		return nil, err
	}
	query := `SELECT id,backup_name,granted_to_user_id,code_hash,used,created_at,used_at FROM restore_codes`
	var args []any
	if userID != 0 {
		query += ` WHERE granted_to_user_id=?`
		args = append(args, userID)
	}
	rows, err := sqdb.QueryContext(ctx, query+` ORDER BY id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RestoreCode
	for rows.Next() {
		var rc models.RestoreCode
		var used int
		var usedAt sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.BackupName, &rc.GrantedToUserID, &rc.CodeHash, &used, &rc.CreatedAt, &usedAt); err != nil {
			return nil, err
		}
		rc.Used = used == 1
		if usedAt.Valid {
			t := usedAt.Time
			rc.UsedAt = &t
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
