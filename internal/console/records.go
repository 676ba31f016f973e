package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/validate"
)

type field struct {
	label string
	dst   *string
}

// prompts fills each target in order from operator input.
func (c *Console) prompts(fields []field) error {
	for _, f := range fields {
		v, err := c.ask(f.label + ": ")
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

func (c *Console) addTraveller(ctx context.Context, _ []string) error {
	var t models.Traveller
	err := c.prompts([]field{
		{"First name", &t.FirstName},
		{"Last name", &t.LastName},
		{"Birthday (YYYY-MM-DD)", &t.Birthday},
		{"Gender (male/female)", &t.Gender},
		{"Street", &t.Street},
		{"House number", &t.HouseNumber},
		{"Zip code (DDDDXX)", &t.ZipCode},
		{fmt.Sprintf("City (%s)", strings.Join(validate.Cities, ", ")), &t.City},
		{"Email", &t.Email},
		{"Mobile phone (8 digits after +31-6-)", &t.Phone},
		{"Driving license (XXDDDDDDD or XDDDDDDDD)", &t.License},
	})
	if err != nil {
		return err
	}
	created, err := c.svc.AddTraveller(ctx, *c.user, t)
	if err != nil {
		return err
	}
	c.printf("Traveller registered with customer id %s.\n", created.CustomerID)
	return nil
}

func (c *Console) findTraveller(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	list, err := c.svc.SearchTravellers(ctx, *c.user, query)
	if err != nil {
		return err
	}
	t := newTable("CUSTOMER", "NAME", "CITY", "EMAIL", "PHONE", "LICENSE")
	for _, tr := range list {
		t.add(tr.CustomerID, tr.FirstName+" "+tr.LastName, tr.City, tr.Email, "+31-6-"+tr.Phone, tr.License)
	}
	t.render(c.out)
	return nil
}

func (c *Console) deleteTraveller(ctx context.Context, args []string) error {
	id, err := c.arg(args, 0, "Customer id: ")
	if err != nil {
		return err
	}
	sure, err := c.confirm(fmt.Sprintf("Delete traveller %s?", id))
	if err != nil || !sure {
		return err
	}
	if err := c.svc.DeleteTraveller(ctx, *c.user, id); err != nil {
		return err
	}
	c.printf("Traveller %s deleted.\n", id)
	return nil
}

func (c *Console) addScooter(ctx context.Context, _ []string) error {
	var sc models.Scooter
	var speed, battery, soc, lo, hi, lat, lon, mileage string
	err := c.prompts([]field{
		{"Brand", &sc.Brand},
		{"Model", &sc.Model},
		{"Serial number", &sc.SerialNumber},
		{"Top speed (km/h)", &speed},
		{"Battery capacity (Wh)", &battery},
		{"State of charge (%)", &soc},
		{"Target SoC min (%)", &lo},
		{"Target SoC max (%)", &hi},
		{"Latitude", &lat},
		{"Longitude", &lon},
		{"Mileage (km)", &mileage},
		{"In service date (YYYY-MM-DD)", &sc.InServiceDate},
	})
	if err != nil {
		return err
	}
	for _, p := range []struct {
		name string
		raw  string
		dst  *int
	}{
		{"top speed", speed, &sc.TopSpeed},
		{"battery capacity", battery, &sc.BatteryCapacity},
		{"state of charge", soc, &sc.SOC},
		{"target soc min", lo, &sc.TargetSOCMin},
		{"target soc max", hi, &sc.TargetSOCMax},
		{"mileage", mileage, &sc.Mileage},
	} {
		if *p.dst, err = parseInt(p.name, p.raw); err != nil {
			return err
		}
	}
	if sc.Latitude, err = parseFloat("latitude", lat); err != nil {
		return err
	}
	if sc.Longitude, err = parseFloat("longitude", lon); err != nil {
		return err
	}
	created, err := c.svc.AddScooter(ctx, *c.user, sc)
	if err != nil {
		return err
	}
	c.printf("Scooter %s registered with id %d.\n", created.SerialNumber, created.ID)
	return nil
}

func (c *Console) findScooter(ctx context.Context, args []string) error {
	list, err := c.svc.SearchScooters(ctx, *c.user, strings.Join(args, " "))
	if err != nil {
		return err
	}
	t := newTable("ID", "SERIAL", "BRAND", "MODEL", "SOC", "TARGET", "LOCATION", "STATUS")
	for _, sc := range list {
		status := string(sc.Status)
		if sc.OutOfService {
			status += " (out of service)"
		}
		t.add(strconv.FormatInt(sc.ID, 10), sc.SerialNumber, sc.Brand, sc.Model,
			fmt.Sprintf("%d%%", sc.SOC), fmt.Sprintf("%d-%d%%", sc.TargetSOCMin, sc.TargetSOCMax),
			fmt.Sprintf("%.5f,%.5f", sc.Latitude, sc.Longitude), status)
	}
	t.render(c.out)
	return nil
}

func (c *Console) editScooter(ctx context.Context, args []string) error {
	id, err := c.scooterID(args)
	if err != nil {
		return err
	}
	var p models.ScooterPatch
	for _, f := range []struct {
		label string
		dst   **int
	}{
		{"State of charge (%)", &p.SOC},
		{"Target SoC min (%)", &p.TargetSOCMin},
		{"Target SoC max (%)", &p.TargetSOCMax},
		{"Mileage (km)", &p.Mileage},
	} {
		raw, err := c.optional(f.label)
		if err != nil {
			return err
		}
		if raw != nil {
			v, err := parseInt(strings.ToLower(f.label), *raw)
			if err != nil {
				return err
			}
			*f.dst = &v
		}
	}
	for _, f := range []struct {
		label string
		dst   **float64
	}{
		{"Latitude", &p.Latitude},
		{"Longitude", &p.Longitude},
	} {
		raw, err := c.optional(f.label)
		if err != nil {
			return err
		}
		if raw != nil {
			v, err := parseFloat(strings.ToLower(f.label), *raw)
			if err != nil {
				return err
			}
			*f.dst = &v
		}
	}
	if p.LastMaintenanceDate, err = c.optional("Last maintenance date (YYYY-MM-DD)"); err != nil {
		return err
	}
	raw, err := c.optional("Out of service (yes/no)")
	if err != nil {
		return err
	}
	if raw != nil {
		v, err := parseYesNo(*raw)
		if err != nil {
			return err
		}
		p.OutOfService = &v
	}
	if raw, err = c.optional("Status (active/maintenance/retired)"); err != nil {
		return err
	}
	if raw != nil {
		st := models.ScooterStatus(strings.ToLower(*raw))
		p.Status = &st
	}
	if err := c.svc.UpdateScooter(ctx, *c.user, id, p); err != nil {
		return err
	}
	c.printf("Scooter %d updated.\n", id)
	return nil
}

func (c *Console) deleteScooter(ctx context.Context, args []string) error {
	id, err := c.scooterID(args)
	if err != nil {
		return err
	}
	sure, err := c.confirm(fmt.Sprintf("Delete scooter %d?", id))
	if err != nil || !sure {
		return err
	}
	if err := c.svc.DeleteScooter(ctx, *c.user, id); err != nil {
		return err
	}
	c.printf("Scooter %d deleted.\n", id)
	return nil
}

func (c *Console) scooterID(args []string) (int64, error) {
	raw, err := c.arg(args, 0, "Scooter id: ")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("scooter id must be a positive number")
	}
	return id, nil
}

func parseInt(name, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperr.Validation("%s must be a whole number", name)
	}
	return v, nil
}

func parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", name)
	}
	return v, nil
}

func parseYesNo(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true":
		return true, nil
	case "n", "no", "false":
		return false, nil
	}
	return false, apperr.Validation("answer yes or no")
}
