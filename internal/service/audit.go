package service

import (
	"context"

	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
)

// ViewAuditLog returns every audit record and moves the caller's watermark
// to the newest one shown.
func (s *Service) ViewAuditLog(ctx context.Context, caller models.CurrentUser) ([]models.SecurityLogEntry, error) {
	if err := s.policy.Authorize(caller, policy.ViewAuditLog); err != nil {
		return nil, err
	}
	entries, err := s.audit.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var latest int64
	for _, e := range entries {
		latest = max(latest, e.Seq)
	}
	if err := s.st.UpsertWatermark(ctx, caller.ID, latest); err != nil {
		return nil, err
	}
	return entries, nil
}

// UnreadSuspiciousCount counts suspicious records newer than the caller's
// watermark.
func (s *Service) UnreadSuspiciousCount(ctx context.Context, caller models.CurrentUser) (int, error) {
	if err := s.policy.Authorize(caller, policy.ViewUnreadCount); err != nil {
		return 0, err
	}
	seen, err := s.st.GetWatermark(ctx, caller.ID)
	if err != nil {
		return 0, err
	}
	entries, err := s.audit.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return seclog.CountSuspiciousAfter(entries, seen), nil
}

func (s *Service) MarkAllSeen(ctx context.Context, caller models.CurrentUser) error {
	if err := s.policy.Authorize(caller, policy.ViewUnreadCount); err != nil {
		return err
	}
	latest, err := s.audit.LatestSequence(ctx)
	if err != nil {
		return err
	}
	return s.st.UpsertWatermark(ctx, caller.ID, latest)
}
