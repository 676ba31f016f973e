package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"urbanmobility/internal/db"
)

// BusinessTables are the tables a backup captures and a restore rolls back.
var BusinessTables = []string{"users", "travellers", "scooters"}

// SessionTables hold operational metadata that survives a restore untouched.
var SessionTables = []string{"restore_codes", "log_state"}

// keyTables are the business tables whose ids key session rows. Their
// AUTOINCREMENT counters travel with the session state so a restore never
// hands a preserved row's user id to a new account.
var keyTables = []string{"users"}

// ExportBusinessSnapshot writes a new SQLite file at dst holding only the
// business tables of the store at src.
func ExportBusinessSnapshot(ctx context.Context, src, dst string, busy time.Duration) error {
	return copyTables(ctx, dst, src, BusinessTables, nil, busy, false)
}

// ExportSessionState writes the session tables of the store at src into a new
// SQLite file at dst, along with the id counters of the tables they reference.
func ExportSessionState(ctx context.Context, src, dst string, busy time.Duration) error {
	return copyTables(ctx, dst, src, SessionTables, keyTables, busy, false)
}

// MergeSessionState replaces the session tables in the restored file at dst
// with the ones preserved in state. Whatever session rows the archive carried
// are dropped. Id counters never move backwards.
func MergeSessionState(ctx context.Context, dst, state string, busy time.Duration) error {
	return copyTables(ctx, dst, state, SessionTables, keyTables, busy, true)
}

// copyTables recreates each table of src (with its indexes) in dst and copies
// every row with INSERT ... SELECT, so values keep their storage class and
// bytes. With replace set, existing tables in dst are dropped first. The
// sqlite_sequence entries named in counters are raised to at least src's.
func copyTables(ctx context.Context, dst, src string, tables, counters []string, busy time.Duration, replace bool) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source store: %w", err)
	}
	sqdb, err := db.OpenSQLite(dst, 1, busy)
	if err != nil {
		return fmt.Errorf("open %s: %w", dst, err)
	}
	defer sqdb.Close()
	conn, err := sqdb.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS src`, src); err != nil {
		return fmt.Errorf("attach source: %w", err)
	}
	defer conn.ExecContext(context.Background(), `DETACH DATABASE src`)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := copyTable(ctx, tx, table, replace); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("copy %s: %w", table, err)
		}
	}
	if err := carrySequences(ctx, tx, counters); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("carry id counters: %w", err)
	}
	return tx.Commit()
}

// carrySequences raises main.sqlite_sequence to src's value for each table.
// The copied session tables are AUTOINCREMENT, so main.sqlite_sequence exists.
func carrySequences(ctx context.Context, tx *sql.Tx, tables []string) error {
	for _, table := range tables {
		var seq int64
		err := tx.QueryRowContext(ctx, `SELECT seq FROM src.sqlite_sequence WHERE name=?`, table).Scan(&seq)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE main.sqlite_sequence SET seq=MAX(seq, ?) WHERE name=?`, seq, table)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO main.sqlite_sequence(name, seq) VALUES(?, ?)`, table, seq); err != nil {
			return err
		}
	}
	return nil
}

func copyTable(ctx context.Context, tx *sql.Tx, table string, replace bool) error {
	var ddl string
	err := tx.QueryRowContext(ctx,
		`SELECT sql FROM src.sqlite_master WHERE type='table' AND name=?`, table,
	).Scan(&ddl)
	if err == sql.ErrNoRows {
		return fmt.Errorf("table missing in source")
	}
	if err != nil {
		return err
	}
	quoted := `"` + table + `"`
	if replace {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS main.`+quoted); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT sql FROM src.sqlite_master WHERE type='index' AND tbl_name=? AND sql IS NOT NULL`, table,
	)
	if err != nil {
		return err
	}
	var indexes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return err
		}
		indexes = append(indexes, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, s := range indexes {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO main.`+quoted+` SELECT * FROM src.`+quoted)
	return err
}

// checkPayload verifies that path is a sound SQLite file carrying every
// business table.
func checkPayload(ctx context.Context, path string, busy time.Duration) error {
	sqdb, err := db.OpenSQLite(path, 1, busy)
	if err != nil {
		return err
	}
	defer sqdb.Close()
	var result string
	if err := sqdb.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	for _, table := range BusinessTables {
		var name string
		err := sqdb.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("payload has no %s table", table)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
