package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
	"urbanmobility/internal/validate"
)

func (s *Service) AddTraveller(ctx context.Context, caller models.CurrentUser, t models.Traveller) (models.Traveller, error) {
	if err := s.policy.Authorize(caller, policy.ManageRecords); err != nil {
		return models.Traveller{}, err
	}
	t, err := validate.Traveller(t)
	if err != nil {
		return models.Traveller{}, err
	}
	t, err = s.st.CreateTraveller(ctx, t)
	if err != nil {
		return models.Traveller{}, err
	}
	s.record(ctx, seclog.EventTravellerAdded, caller.Username, map[string]string{"customer_id": t.CustomerID}, false)
	return t, nil
}

func (s *Service) SearchTravellers(ctx context.Context, caller models.CurrentUser, query string) ([]models.Traveller, error) {
	if err := s.policy.Authorize(caller, policy.ManageRecords); err != nil {
		return nil, err
	}
	return s.st.SearchTravellers(ctx, query)
}

func (s *Service) DeleteTraveller(ctx context.Context, caller models.CurrentUser, customerID string) error {
	if err := s.policy.Authorize(caller, policy.AdministerRecords); err != nil {
		return err
	}
	if err := s.st.DeleteTraveller(ctx, strings.TrimSpace(customerID)); err != nil {
		return err
	}
	s.record(ctx, seclog.EventTravellerDeleted, caller.Username, map[string]string{"customer_id": customerID}, false)
	return nil
}

func (s *Service) AddScooter(ctx context.Context, caller models.CurrentUser, sc models.Scooter) (models.Scooter, error) {
	if err := s.policy.Authorize(caller, policy.AdministerRecords); err != nil {
		return models.Scooter{}, err
	}
	if sc.Status == "" {
		sc.Status = models.ScooterActive
	}
	if err := validate.Scooter(sc); err != nil {
		return models.Scooter{}, err
	}
	created, err := s.st.CreateScooter(ctx, sc)
	if errors.Is(err, store.ErrConflict) {
		return models.Scooter{}, apperr.Validation("serial number %q already exists", sc.SerialNumber)
	}
	if err != nil {
		return models.Scooter{}, err
	}
	s.record(ctx, seclog.EventScooterAdded, caller.Username, map[string]string{
		"scooter_id": strconv.FormatInt(created.ID, 10), "serial_number": created.SerialNumber,
	}, false)
	return created, nil
}

func (s *Service) SearchScooters(ctx context.Context, caller models.CurrentUser, query string) ([]models.Scooter, error) {
	if err := s.policy.Authorize(caller, policy.ManageRecords); err != nil {
		return nil, err
	}
	return s.st.SearchScooters(ctx, query)
}

// UpdateScooter applies a validated partial update. The resulting target
// range must stay ordered.
func (s *Service) UpdateScooter(ctx context.Context, caller models.CurrentUser, id int64, patch models.ScooterPatch) error {
	if err := s.policy.Authorize(caller, policy.ManageRecords); err != nil {
		return err
	}
	if err := validate.ScooterPatch(patch); err != nil {
		return err
	}
	cur, err := s.st.GetScooter(ctx, id)
	if err != nil {
		return err
	}
	lo, hi := cur.TargetSOCMin, cur.TargetSOCMax
	if patch.TargetSOCMin != nil {
		lo = *patch.TargetSOCMin
	}
	if patch.TargetSOCMax != nil {
		hi = *patch.TargetSOCMax
	}
	if lo > hi {
		return apperr.Validation("target soc min must not exceed max")
	}
	if err := s.st.UpdateScooter(ctx, id, patch); err != nil {
		return err
	}
	s.record(ctx, seclog.EventScooterUpdated, caller.Username, map[string]string{
		"scooter_id": strconv.FormatInt(id, 10), "updates": strings.Join(patchFields(patch), ","),
	}, false)
	return nil
}

func patchFields(p models.ScooterPatch) []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.SOC != nil, "soc")
	add(p.TargetSOCMin != nil, "target_soc_min")
	add(p.TargetSOCMax != nil, "target_soc_max")
	add(p.Latitude != nil, "latitude")
	add(p.Longitude != nil, "longitude")
	add(p.OutOfService != nil, "out_of_service")
	add(p.Mileage != nil, "mileage")
	add(p.LastMaintenanceDate != nil, "last_maintenance_date")
	add(p.Status != nil, "status")
	return out
}

func (s *Service) DeleteScooter(ctx context.Context, caller models.CurrentUser, id int64) error {
	if err := s.policy.Authorize(caller, policy.AdministerRecords); err != nil {
		return err
	}
	sc, err := s.st.GetScooter(ctx, id)
	if err != nil {
		return err
	}
	if err := s.st.DeleteScooter(ctx, id); err != nil {
		return err
	}
	s.record(ctx, seclog.EventScooterDeleted, caller.Username, map[string]string{
		"scooter_id": strconv.FormatInt(id, 10), "serial_number": sc.SerialNumber,
	}, false)
	return nil
}
