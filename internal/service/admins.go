package service

import (
	"context"
	"errors"
	"fmt"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
	"urbanmobility/internal/validate"
)

type NewAccount struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

func (s *Service) CreateSysAdmin(ctx context.Context, caller models.CurrentUser, in NewAccount) (models.User, error) {
	if err := s.policy.Authorize(caller, policy.CreatePrivilegedAdmin); err != nil {
		return models.User{}, err
	}
	u, err := s.createAccount(ctx, in, models.RoleSysAdmin)
	if err != nil {
		return models.User{}, err
	}
	s.record(ctx, seclog.EventSysAdminCreated, caller.Username, map[string]string{"created_username": u.Username}, false)
	return u, nil
}

func (s *Service) CreateEngineer(ctx context.Context, caller models.CurrentUser, in NewAccount) (models.User, error) {
	if err := s.policy.Authorize(caller, policy.ManageEngineers); err != nil {
		return models.User{}, err
	}
	u, err := s.createAccount(ctx, in, models.RoleEngineer)
	if err != nil {
		return models.User{}, err
	}
	s.record(ctx, seclog.EventEngineerCreated, caller.Username, map[string]string{"created_username": u.Username}, false)
	return u, nil
}

func (s *Service) createAccount(ctx context.Context, in NewAccount, role models.Role) (models.User, error) {
	name, err := validate.Username(in.Username)
	if err != nil {
		return models.User{}, err
	}
	if name == models.SuperAdminUsername {
		return models.User{}, apperr.Validation("username is reserved")
	}
	if err := validate.Password(in.Password); err != nil {
		return models.User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.st.CreateUser(ctx, models.User{
		Username:     name,
		PasswordHash: hash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, apperr.Validation("username %q is taken", name)
	}
	return u, err
}

func (s *Service) ListEngineers(ctx context.Context, caller models.CurrentUser) ([]models.User, error) {
	if err := s.policy.Authorize(caller, policy.ManageEngineers); err != nil {
		return nil, err
	}
	users, err := s.st.ListUsers(ctx, models.RoleEngineer)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// engineer resolves username to an account with the engineer role. Other
// roles are reported as not found.
func (s *Service) engineer(ctx context.Context, username string) (models.User, error) {
	u, err := s.st.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, err
	}
	if u.Role != models.RoleEngineer {
		return models.User{}, fmt.Errorf("engineer %q: %w", username, apperr.ErrNotFound)
	}
	return u, nil
}

func (s *Service) UpdateEngineer(ctx context.Context, caller models.CurrentUser, username string, patch models.UserProfilePatch) error {
	if err := s.policy.Authorize(caller, policy.ManageEngineers); err != nil {
		return err
	}
	if patch.Empty() {
		return apperr.Validation("no updates provided")
	}
	for _, v := range []*string{patch.FirstName, patch.LastName} {
		if v != nil {
			if _, err := validate.Text("name", *v); err != nil {
				return err
			}
		}
	}
	u, err := s.engineer(ctx, username)
	if err != nil {
		return err
	}
	if err := s.st.UpdateUserProfile(ctx, u.ID, patch); err != nil {
		return err
	}
	s.record(ctx, seclog.EventEngineerUpdated, caller.Username, map[string]string{"username": u.Username}, false)
	return nil
}

func (s *Service) DeleteEngineer(ctx context.Context, caller models.CurrentUser, username string) error {
	if err := s.policy.Authorize(caller, policy.ManageEngineers); err != nil {
		return err
	}
	u, err := s.engineer(ctx, username)
	if err != nil {
		return err
	}
	if err := s.st.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	s.record(ctx, seclog.EventEngineerDeleted, caller.Username, map[string]string{"username": u.Username}, false)
	return nil
}

// ResetEngineerPassword sets a new password chosen by the administrator.
func (s *Service) ResetEngineerPassword(ctx context.Context, caller models.CurrentUser, username, newPassword string) error {
	if err := s.policy.Authorize(caller, policy.ManageEngineers); err != nil {
		return err
	}
	if err := validate.Password(newPassword); err != nil {
		return err
	}
	u, err := s.engineer(ctx, username)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.st.UpdateUserPasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	s.throttle.Reset(u.Username)
	s.record(ctx, seclog.EventEngineerPasswordReset, caller.Username, map[string]string{"username": u.Username}, false)
	return nil
}
