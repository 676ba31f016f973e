package store

import (
	"context"
	"database/sql"
	"strings"

	"urbanmobility/internal/models"
)

const scooterColumns = `id,brand,model,serial_number,top_speed,battery_capacity,soc,target_soc_min,target_soc_max,latitude,longitude,out_of_service,mileage,last_maintenance_date,in_service_date,status`

func (s *Store) CreateScooter(ctx context.Context, sc models.Scooter) (models.Scooter, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.Scooter{}, err
	}
	var lastMaint any
	if sc.LastMaintenanceDate != "" {
		lastMaint = sc.LastMaintenanceDate
	}
	res, err := sqdb.ExecContext(ctx,
		`INSERT INTO scooters(brand,model,serial_number,top_speed,battery_capacity,soc,target_soc_min,target_soc_max,latitude,longitude,out_of_service,mileage,last_maintenance_date,in_service_date,status)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.Brand, sc.Model, sc.SerialNumber, sc.TopSpeed, sc.BatteryCapacity, sc.SOC, sc.TargetSOCMin, sc.TargetSOCMax,
		sc.Latitude, sc.Longitude, boolToInt(sc.OutOfService), sc.Mileage, lastMaint, sc.InServiceDate, string(sc.Status),
	)
	if isUniqueViolation(err) {
		return models.Scooter{}, ErrConflict
	}
	if err != nil {
		return models.Scooter{}, err
	}
	if sc.ID, err = res.LastInsertId(); err != nil {
		return models.Scooter{}, err
	}
	return sc, nil
}

func scanScooter(row rowScanner) (models.Scooter, error) {
	var sc models.Scooter
	var oos int
	var lastMaint sql.NullString
	var status string
	err := row.Scan(&sc.ID, &sc.Brand, &sc.Model, &sc.SerialNumber, &sc.TopSpeed, &sc.BatteryCapacity, &sc.SOC,
		&sc.TargetSOCMin, &sc.TargetSOCMax, &sc.Latitude, &sc.Longitude, &oos, &sc.Mileage, &lastMaint, &sc.InServiceDate, &status)
	if err != nil {
		return models.Scooter{}, err
	}
	sc.OutOfService = oos == 1
	sc.LastMaintenanceDate = lastMaint.String
	sc.Status = models.ScooterStatus(status)
	return sc, nil
}

func (s *Store) GetScooter(ctx context.Context, id int64) (models.Scooter, error) {
	sqdb, err := s.db()
	if err != nil {
		return models.Scooter{}, err
	}
	sc, err := scanScooter(sqdb.QueryRowContext(ctx, `SELECT `+scooterColumns+` FROM scooters WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return models.Scooter{}, ErrNotFound
	}
	return sc, err
}

// SearchScooters matches query as a substring of brand, model or serial
// number. An empty query lists all scooters.
func (s *Store) SearchScooters(ctx context.Context, query string) ([]models.Scooter, error) {
	sqdb, err := s.db()
	if err != nil {
		return nil, err
	}
	like := "%" + strings.TrimSpace(query) + "%"
	rows, err := sqdb.QueryContext(ctx,
		`SELECT `+scooterColumns+` FROM scooters WHERE brand LIKE ? OR model LIKE ? OR serial_number LIKE ? ORDER BY id`,
		like, like, like,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Scooter
	for rows.Next() {
		sc, err := scanScooter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateScooter writes the non-nil fields of p. Column names come from the
// patch type, never from caller input.
func (s *Store) UpdateScooter(ctx context.Context, id int64, p models.ScooterPatch) error {
	if p.Empty() {
		return nil
	}
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if p.SOC != nil {
		set("soc", *p.SOC)
	}
	if p.TargetSOCMin != nil {
		set("target_soc_min", *p.TargetSOCMin)
	}
	if p.TargetSOCMax != nil {
		set("target_soc_max", *p.TargetSOCMax)
	}
	if p.Latitude != nil {
		set("latitude", *p.Latitude)
	}
	if p.Longitude != nil {
		set("longitude", *p.Longitude)
	}
	if p.OutOfService != nil {
		set("out_of_service", boolToInt(*p.OutOfService))
	}
	if p.Mileage != nil {
		set("mileage", *p.Mileage)
	}
	if p.LastMaintenanceDate != nil {
		set("last_maintenance_date", *p.LastMaintenanceDate)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	args = append(args, id)
	res, err := sqdb.ExecContext(ctx, `UPDATE scooters SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *Store) DeleteScooter(ctx context.Context, id int64) error {
	sqdb, err := s.db()
	if err != nil {
		return err
	}
	res, err := sqdb.ExecContext(ctx, `DELETE FROM scooters WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
