// Package recovery ties the capability table, the restore-code ledger and the
// backup engine into the backup and restore workflow.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
)

type Authorizer interface {
	Authorize(user models.CurrentUser, action policy.Action) error
}

type CodeLedger interface {
	Issue(ctx context.Context, backupName string, userID int64) (string, error)
	Consume(ctx context.Context, userID int64, backupName, candidate string) (bool, error)
	List(ctx context.Context, userID int64) ([]models.RestoreCode, error)
}

type Engine interface {
	CreateBackup(ctx context.Context, actor string) (string, error)
	ListBackups() ([]models.BackupInfo, error)
	Exists(name string) error
	RestoreFromBackup(ctx context.Context, name, actor string) error
}

type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

type Orchestrator struct {
	policy Authorizer
	ledger CodeLedger
	engine Engine
	users  UserLookup
	audit  seclog.Recorder
	log    *zap.Logger
}

func New(p Authorizer, l CodeLedger, e Engine, users UserLookup, audit seclog.Recorder, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{policy: p, ledger: l, engine: e, users: users, audit: audit, log: log.Named("recovery")}
}

func (o *Orchestrator) CreateBackup(ctx context.Context, caller models.CurrentUser) (string, error) {
	if err := o.policy.Authorize(caller, policy.CreateBackup); err != nil {
		return "", err
	}
	return o.engine.CreateBackup(ctx, caller.Username)
}

func (o *Orchestrator) ListBackups(ctx context.Context, caller models.CurrentUser) ([]models.BackupInfo, error) {
	if err := o.policy.Authorize(caller, policy.ListBackups); err != nil {
		return nil, err
	}
	return o.engine.ListBackups()
}

// GenerateRestoreCode issues a code for backupName bound to targetUsername and
// returns the plaintext to the caller only.
func (o *Orchestrator) GenerateRestoreCode(ctx context.Context, caller models.CurrentUser, backupName, targetUsername string) (string, error) {
	if err := o.policy.Authorize(caller, policy.GenerateRestoreCode); err != nil {
		return "", err
	}
	if err := o.engine.Exists(backupName); err != nil {
		return "", err
	}
	target, err := o.users.GetUserByUsername(ctx, targetUsername)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("user %q: %w", targetUsername, apperr.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	token, err := o.ledger.Issue(ctx, backupName, target.ID)
	if err != nil {
		return "", err
	}
	if err := o.audit.Log(ctx, seclog.EventRestoreCodeGenerated, caller.Username, map[string]string{
		"backup": backupName, "granted_to": target.Username,
	}, false); err != nil {
		o.log.Error("audit restore_code_generated", zap.Error(err))
	}
	return token, nil
}

// ListRestoreCodes returns the metadata of every issued code, newest first.
// Digests are never included.
func (o *Orchestrator) ListRestoreCodes(ctx context.Context, caller models.CurrentUser) ([]models.RestoreCode, error) {
	if err := o.policy.Authorize(caller, policy.GenerateRestoreCode); err != nil {
		return nil, err
	}
	return o.ledger.List(ctx, 0)
}

// RestoreWithCode redeems token and, only if it was valid, restores
// backupName. A rejected code yields false and a suspicious audit record.
func (o *Orchestrator) RestoreWithCode(ctx context.Context, caller models.CurrentUser, backupName, token string) (bool, error) {
	if err := o.policy.Authorize(caller, policy.RestoreWithCode); err != nil {
		return false, err
	}
	if err := o.policy.Authorize(caller, policy.ConsumeRestoreCode); err != nil {
		return false, err
	}
	ok, err := o.ledger.Consume(ctx, caller.ID, backupName, token)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := o.audit.Log(ctx, seclog.EventRestoreCodeRejected, caller.Username, map[string]string{"backup": backupName}, true); err != nil {
			o.log.Error("audit restore_code_rejected", zap.Error(err))
		}
		return false, nil
	}
	if err := o.engine.RestoreFromBackup(ctx, backupName, caller.Username); err != nil {
		return true, err
	}
	return true, nil
}

// RestoreBackupDirectly restores without a code. The policy grants it only
// when direct restore is enabled.
func (o *Orchestrator) RestoreBackupDirectly(ctx context.Context, caller models.CurrentUser, backupName string) error {
	if err := o.policy.Authorize(caller, policy.RestoreBackupDirectly); err != nil {
		return err
	}
	return o.engine.RestoreFromBackup(ctx, backupName, caller.Username)
}
