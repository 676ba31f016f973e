package service

import (
	"context"

	"urbanmobility/internal/models"
)

func (s *Service) CreateBackup(ctx context.Context, caller models.CurrentUser) (string, error) {
	return s.recovery.CreateBackup(ctx, caller)
}

func (s *Service) ListBackups(ctx context.Context, caller models.CurrentUser) ([]models.BackupInfo, error) {
	return s.recovery.ListBackups(ctx, caller)
}

func (s *Service) GenerateRestoreCode(ctx context.Context, caller models.CurrentUser, backupName, targetUsername string) (string, error) {
	return s.recovery.GenerateRestoreCode(ctx, caller, backupName, targetUsername)
}

func (s *Service) RestoreWithCode(ctx context.Context, caller models.CurrentUser, backupName, token string) (bool, error) {
	return s.recovery.RestoreWithCode(ctx, caller, backupName, token)
}

func (s *Service) RestoreBackupDirectly(ctx context.Context, caller models.CurrentUser, backupName string) error {
	return s.recovery.RestoreBackupDirectly(ctx, caller, backupName)
}

func (s *Service) ListRestoreCodes(ctx context.Context, caller models.CurrentUser) ([]models.RestoreCode, error) {
	return s.recovery.ListRestoreCodes(ctx, caller)
}
