package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/db"
)

var ErrNotFound = fmt.Errorf("record %w", apperr.ErrNotFound)
var ErrConflict = errors.New("conflict")

// Sealer encrypts and decrypts individual column values.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(token string) (string, error)
}

type Store struct {
	h   *db.Handle
	box Sealer
}

func New(h *db.Handle, box Sealer) *Store { return &Store{h: h, box: box} }

func (s *Store) db() (*sql.DB, error) {
	sqdb, err := s.h.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return sqdb, nil
}

func (s *Store) seal(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.box.Seal(v)
}

func (s *Store) open(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.box.Open(v)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
