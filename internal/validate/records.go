package validate

import (
	"regexp"
	"strings"
	"time"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
)

var (
	zipRx     = regexp.MustCompile(`^\d{4}[A-Z]{2}$`)
	phoneRx   = regexp.MustCompile(`^\d{8}$`)
	licenseRx = regexp.MustCompile(`^[A-Z]{2}\d{7}$|^[A-Z]\d{8}$`)
	emailRx   = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
)

var Cities = []string{
	"Amsterdam", "Rotterdam", "The Hague", "Utrecht", "Eindhoven",
	"Tilburg", "Groningen", "Almere", "Breda", "Nijmegen",
}

const (
	latMin, latMax = 51.85, 51.95
	lonMin, lonMax = 4.35, 4.55
)

func Zip(v string) (string, error) {
	if !zipRx.MatchString(v) {
		return "", apperr.Validation("zip code must be DDDDXX")
	}
	return v, nil
}

func Phone(v string) (string, error) {
	if !phoneRx.MatchString(v) {
		return "", apperr.Validation("phone must be exactly 8 digits")
	}
	return v, nil
}

func License(v string) (string, error) {
	if !licenseRx.MatchString(v) {
		return "", apperr.Validation("license must be XXDDDDDDD or XDDDDDDDD")
	}
	return v, nil
}

func Email(v string) (string, error) {
	if !emailRx.MatchString(v) {
		return "", apperr.Validation("email must look like user@domain.tld")
	}
	return v, nil
}

// City returns the canonical spelling of a supported city.
func City(v string) (string, error) {
	for _, c := range Cities {
		if strings.EqualFold(c, strings.TrimSpace(v)) {
			return c, nil
		}
	}
	return "", apperr.Validation("city must be one of: %s", strings.Join(Cities, ", "))
}

func Gender(v string) (string, error) {
	g := strings.ToLower(strings.TrimSpace(v))
	if g != "male" && g != "female" {
		return "", apperr.Validation("gender must be male or female")
	}
	return g, nil
}

func Birthday(v string) (string, error) {
	if _, err := time.Parse("2006-01-02", v); err != nil {
		return "", apperr.Validation("birthday must be YYYY-MM-DD")
	}
	return v, nil
}

func SOC(field string, v int) error {
	if v < 0 || v > 100 {
		return apperr.Validation("%s must be 0-100", field)
	}
	return nil
}

func NonNegative(field string, v int) error {
	if v < 0 {
		return apperr.Validation("%s must be non-negative", field)
	}
	return nil
}

func Latitude(v float64) error {
	if v < latMin || v > latMax {
		return apperr.Validation("latitude must be %.2f-%.2f", latMin, latMax)
	}
	return nil
}

func Longitude(v float64) error {
	if v < lonMin || v > lonMax {
		return apperr.Validation("longitude must be %.2f-%.2f", lonMin, lonMax)
	}
	return nil
}

func ScooterStatus(s models.ScooterStatus) error {
	switch s {
	case models.ScooterActive, models.ScooterMaintenance, models.ScooterRetired:
		return nil
	}
	return apperr.Validation("status must be active, maintenance or retired")
}

// Scooter checks a full record before insert.
func Scooter(s models.Scooter) error {
	for field, v := range map[string]string{"brand": s.Brand, "model": s.Model, "serial number": s.SerialNumber} {
		if _, err := Text(field, v); err != nil {
			return err
		}
	}
	if err := NonNegative("top speed", s.TopSpeed); err != nil {
		return err
	}
	if err := NonNegative("battery capacity", s.BatteryCapacity); err != nil {
		return err
	}
	if err := NonNegative("mileage", s.Mileage); err != nil {
		return err
	}
	if err := SOC("soc", s.SOC); err != nil {
		return err
	}
	if err := SOC("target soc min", s.TargetSOCMin); err != nil {
		return err
	}
	if err := SOC("target soc max", s.TargetSOCMax); err != nil {
		return err
	}
	if s.TargetSOCMin > s.TargetSOCMax {
		return apperr.Validation("target soc min must not exceed max")
	}
	if err := Latitude(s.Latitude); err != nil {
		return err
	}
	if err := Longitude(s.Longitude); err != nil {
		return err
	}
	return ScooterStatus(s.Status)
}

// ScooterPatch checks only the fields a patch sets.
func ScooterPatch(p models.ScooterPatch) error {
	if p.Empty() {
		return apperr.Validation("no updates provided")
	}
	if p.SOC != nil {
		if err := SOC("soc", *p.SOC); err != nil {
			return err
		}
	}
	if p.TargetSOCMin != nil {
		if err := SOC("target soc min", *p.TargetSOCMin); err != nil {
			return err
		}
	}
	if p.TargetSOCMax != nil {
		if err := SOC("target soc max", *p.TargetSOCMax); err != nil {
			return err
		}
	}
	if p.Latitude != nil {
		if err := Latitude(*p.Latitude); err != nil {
			return err
		}
	}
	if p.Longitude != nil {
		if err := Longitude(*p.Longitude); err != nil {
			return err
		}
	}
	if p.Mileage != nil {
		if err := NonNegative("mileage", *p.Mileage); err != nil {
			return err
		}
	}
	if p.LastMaintenanceDate != nil {
		if _, err := Birthday(*p.LastMaintenanceDate); err != nil {
			return apperr.Validation("last maintenance date must be YYYY-MM-DD")
		}
	}
	if p.Status != nil {
		return ScooterStatus(*p.Status)
	}
	return nil
}

// Traveller checks and canonicalizes a record before insert.
func Traveller(t models.Traveller) (models.Traveller, error) {
	var err error
	if t.FirstName, err = Text("first name", t.FirstName); err != nil {
		return t, err
	}
	if t.LastName, err = Text("last name", t.LastName); err != nil {
		return t, err
	}
	if t.Street, err = Text("street", t.Street); err != nil {
		return t, err
	}
	if t.HouseNumber, err = Text("house number", t.HouseNumber); err != nil {
		return t, err
	}
	if t.Birthday, err = Birthday(t.Birthday); err != nil {
		return t, err
	}
	if t.Gender, err = Gender(t.Gender); err != nil {
		return t, err
	}
	if t.ZipCode, err = Zip(t.ZipCode); err != nil {
		return t, err
	}
	if t.City, err = City(t.City); err != nil {
		return t, err
	}
	if t.Email, err = Email(t.Email); err != nil {
		return t, err
	}
	if t.Phone, err = Phone(t.Phone); err != nil {
		return t, err
	}
	if t.License, err = License(t.License); err != nil {
		return t, err
	}
	return t, nil
}
