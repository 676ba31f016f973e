package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"urbanmobility/internal/models"
)

const userColumns = `id,username,password_hash,role,first_name_enc,last_name_enc,registered_at`

func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.User{}, err
	}
	first, err := s.seal(u.FirstName)
	if err != nil {
		return models.User{}, err
	}
	last, err := s.seal(u.LastName)
	if err != nil {
		return models.User{}, err
	}
	u.RegisteredAt = time.Now().UTC()
	res, err := sqdb.ExecContext(ctx,
		`INSERT INTO users(username,password_hash,role,first_name_enc,last_name_enc,registered_at) VALUES(?,?,?,?,?,?)`,
		u.Username, u.PasswordHash, string(u.Role), first, last, u.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	if err != nil {
		return models.User{}, err
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// EnsureSuperAdmin seeds the top-role account on first start. An existing
// account is never touched, so its credential stays whatever was seeded.
func (s *Store) EnsureSuperAdmin(ctx context.Context, passwordHash string) error {
	_, err := s.GetUserByUsername(ctx, models.SuperAdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("%s does not exist and no initial password is configured", models.SuperAdminUsername)
	}
	_, err = s.CreateUser(ctx, models.User{
		Username:     models.SuperAdminUsername,
		PasswordHash: passwordHash,
		Role:         models.RoleSuperAdmin,
		FirstName:    "Super",
		LastName:     "Admin",
	})
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (models.User, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.User{}, err
	}
	u, err := s.scanUser(sqdb.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var role, first, last string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &first, &last, &u.RegisteredAt); err != nil {
		return models.User{}, err
	}
	u.Role = models.Role(role)
	var err error
	if u.FirstName, err = s.open(first); err != nil {
		return models.User{}, fmt.Errorf("decrypt first name: %w", err)
	}
	if u.LastName, err = s.open(last); err != nil {
		return models.User{}, fmt.Errorf("decrypt last name: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	res, err := sqdb.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, passwordHash, userID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// UpdateUserProfile writes the non-nil fields of p.
func (s *Store) UpdateUserProfile(ctx context.Context, userID int64, p models.UserProfilePatch) error {
	if p.Empty() {
		return nil
	}
	var sets []string
	var args []any
	if p.FirstName != nil {
		v, err := s.seal(*p.FirstName)
		if err != nil {
			return err
		}
		sets = append(sets, "first_name_enc=?")
		args = append(args, v)
	}
	if p.LastName != nil {
		v, err := s.seal(*p.LastName)
		if err != nil {
			return err
		}
		sets = append(sets, "last_name_enc=?")
		args = append(args, v)
	}
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	args = append(args, userID)
	res, err := sqdb.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	res, err := sqdb.ExecContext(ctx, `DELETE FROM users WHERE id=?`, userID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// ListUsers returns every user, or only those with role when role is set.
func (s *Store) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	sqdb, err := s.db()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	rows, err := sqdb.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
