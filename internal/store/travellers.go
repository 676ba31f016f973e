package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"urbanmobility/internal/models"
)

const travellerColumns = `id,customer_id,first_name_enc,last_name_enc,birthday_enc,gender,street_enc,house_number_enc,zip_code_enc,city,email_enc,phone_enc,license_enc,registered_at`

func newCustomerID() string {
	return "C" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

func (s *Store) CreateTraveller(ctx context.Context, t models.Traveller) (models.Traveller, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.Traveller{}, err
	}
	t.CustomerID = newCustomerID()
	t.RegisteredAt = time.Now().UTC()

	plain := []string{t.FirstName, t.LastName, t.Birthday, t.Street, t.HouseNumber, t.ZipCode, t.Email, t.Phone, t.License}
	sealed := make([]string, len(plain))
	for i, v := range plain {
		if sealed[i], err = s.seal(v); err != nil {
			return models.Traveller{}, err
		}
	}
	res, err := sqdb.ExecContext(ctx,
		`INSERT INTO travellers(customer_id,first_name_enc,last_name_enc,birthday_enc,gender,street_enc,house_number_enc,zip_code_enc,city,email_enc,phone_enc,license_enc,registered_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.CustomerID, sealed[0], sealed[1], sealed[2], t.Gender, sealed[3], sealed[4], sealed[5], t.City, sealed[6], sealed[7], sealed[8], t.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return models.Traveller{}, ErrConflict
	}
	if err != nil {
		return models.Traveller{}, err
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return models.Traveller{}, err
	}
	return t, nil
}

func (s *Store) ListTravellers(ctx context.Context) ([]models.Traveller, error) {
	sqdb, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := sqdb.QueryContext(ctx, `SELECT `+travellerColumns+` FROM travellers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Traveller
	for rows.Next() {
		var t models.Traveller
		enc := make([]string, 9)
		if err := rows.Scan(&t.ID, &t.CustomerID, &enc[0], &enc[1], &enc[2], &t.Gender, &enc[3], &enc[4], &enc[5], &t.City, &enc[6], &enc[7], &enc[8], &t.RegisteredAt); err != nil {
			return nil, err
		}
		dst := []*string{&t.FirstName, &t.LastName, &t.Birthday, &t.Street, &t.HouseNumber, &t.ZipCode, &t.Email, &t.Phone, &t.License}
		for i, v := range enc {
			if *dst[i], err = s.open(v); err != nil {
				return nil, fmt.Errorf("decrypt traveller %s: %w", t.CustomerID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SearchTravellers matches query case-insensitively against the decrypted
// name, customer id, email and phone. The columns are sealed, so the filter
// runs after decryption.
func (s *Store) SearchTravellers(ctx context.Context, query string) ([]models.Traveller, error) {
	all, err := s.ListTravellers(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var out []models.Traveller
	for _, t := range all {
		for _, v := range []string{t.CustomerID, t.FirstName, t.LastName, t.Email, t.Phone} {
			if strings.Contains(strings.ToLower(v), q) {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteTraveller(ctx context.Context, customerID string) error {
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	res, err := sqdb.ExecContext(ctx, `DELETE FROM travellers WHERE customer_id=?`, customerID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
