package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/auth"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
	"urbanmobility/internal/validate"
)

// Login authenticates username. Malformed names, unknown users and wrong
// passwords all return apperr.ErrInvalidCredentials; a cooling-down identity
// gets apperr.ErrThrottled before any credential is looked at.
func (s *Service) Login(ctx context.Context, username, password string) (models.CurrentUser, error) {
	id := strings.TrimSpace(username)
	if s.throttle.InCooldown(id) {
		s.log.Info("login refused during cooldown", zap.String("user", id))
		return models.CurrentUser{}, apperr.ErrThrottled
	}

	name, err := validate.Username(id)
	if err != nil {
		auth.BurnVerify(s.hasher, password)
		return models.CurrentUser{}, apperr.ErrInvalidCredentials
	}
	u, err := s.st.GetUserByUsername(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		auth.BurnVerify(s.hasher, password)
		return models.CurrentUser{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return models.CurrentUser{}, err
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		suspicious := s.throttle.RecordFailure(name)
		s.record(ctx, seclog.EventLoginFailed, name, map[string]string{"attempt": "failed"}, false)
		if suspicious {
			s.record(ctx, seclog.EventSuspiciousActivity, name, map[string]string{"reason": "multiple_failed_logins"}, true)
			s.log.Warn("login cooldown started", zap.String("user", name))
			return models.CurrentUser{}, apperr.ErrThrottled
		}
		return models.CurrentUser{}, apperr.ErrInvalidCredentials
	}

	s.throttle.Reset(name)
	s.record(ctx, seclog.EventLoginSuccess, u.Username, map[string]string{"user_id": strconv.FormatInt(u.ID, 10)}, false)
	return models.CurrentUser{ID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// ChangePassword rotates the caller's own password. The seeded top-role
// credential is immutable.
func (s *Service) ChangePassword(ctx context.Context, caller models.CurrentUser, oldPassword, newPassword string) error {
	if err := s.policy.Authorize(caller, policy.ChangeOwnPassword); err != nil {
		return err
	}
	u, err := s.st.GetUserByID(ctx, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, oldPassword) {
		return apperr.ErrInvalidCredentials
	}
	if err := validate.Password(newPassword); err != nil {
		return fmt.Errorf("new password invalid: %w", err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.st.UpdateUserPasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	s.record(ctx, seclog.EventPasswordChanged, u.Username, map[string]string{"user_id": strconv.FormatInt(u.ID, 10)}, false)
	return nil
}
