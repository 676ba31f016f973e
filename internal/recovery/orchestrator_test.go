package recovery

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/auth"
	"urbanmobility/internal/backup"
	"urbanmobility/internal/cryptobox"
	"urbanmobility/internal/db"
	"urbanmobility/internal/ledger"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
)

type harness struct {
	orch     *Orchestrator
	st       *store.Store
	audit    *seclog.Logger
	dir      string
	super    models.CurrentUser
	sysadmin models.CurrentUser
}

func newHarness(t *testing.T, opts policy.Options) *harness {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	h, err := db.Open(ctx, filepath.Join(root, "data", "app.db"), 2, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	box, err := cryptobox.New(make([]byte, 32))
	require.NoError(t, err)
	st := store.New(h, box)
	audit := seclog.New(filepath.Join(root, "logs.enc"), box, nil)
	dir := filepath.Join(root, "backups")

	require.NoError(t, st.EnsureSuperAdmin(ctx, "seeded-hash"))
	super, err := st.GetUserByUsername(ctx, models.SuperAdminUsername)
	require.NoError(t, err)
	sys, err := st.CreateUser(ctx, models.User{Username: "sysadmin1", PasswordHash: "x", Role: models.RoleSysAdmin})
	require.NoError(t, err)

	engine := backup.NewEngine(dir, h, audit, nil)
	orch := New(policy.New(opts), ledger.New(st, auth.Argon2{}), engine, st, audit, nil)
	return &harness{
		orch:     orch,
		st:       st,
		audit:    audit,
		dir:      dir,
		super:    models.CurrentUser{ID: super.ID, Username: super.Username, Role: super.Role},
		sysadmin: models.CurrentUser{ID: sys.ID, Username: sys.Username, Role: sys.Role},
	}
}

// backupAs creates a backup and copies it under name.
func (h *harness) backupAs(t *testing.T, name string) {
	t.Helper()
	created, err := h.orch.CreateBackup(context.Background(), h.super)
	require.NoError(t, err)
	src, err := os.Open(filepath.Join(h.dir, created))
	require.NoError(t, err)
	defer src.Close()
	dst, err := os.Create(filepath.Join(h.dir, name))
	require.NoError(t, err)
	_, err = io.Copy(dst, src)
	require.NoError(t, err)
	require.NoError(t, dst.Close())
}

func TestRecoveryScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, policy.Options{})
	const name = "2024-01-01_um.zip"
	h.backupAs(t, name)

	_, err := h.st.CreateUser(ctx, models.User{Username: "engineer9", PasswordHash: "x", Role: models.RoleEngineer})
	require.NoError(t, err)

	token, err := h.orch.GenerateRestoreCode(ctx, h.super, name, "sysadmin1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := h.orch.RestoreWithCode(ctx, h.sysadmin, name, token)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.st.GetUserByUsername(ctx, "engineer9")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "business tables reflect the archive")

	ok, err = h.orch.RestoreWithCode(ctx, h.sysadmin, name, token)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := h.audit.ReadAll(ctx)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, seclog.EventRestoreCodeRejected, last.Event)
	assert.True(t, last.Suspicious)
	for _, e := range entries {
		for _, v := range e.Details {
			assert.NotContains(t, v, token)
		}
	}
}

func TestTopRoleCannotConsumeOwnCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, policy.Options{})
	const name = "2024-01-01_um.zip"
	h.backupAs(t, name)

	token, err := h.orch.GenerateRestoreCode(ctx, h.super, name, models.SuperAdminUsername)
	require.NoError(t, err)

	ok, err := h.orch.RestoreWithCode(ctx, h.super, name, token)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.False(t, ok)

	codes, err := h.st.ListRestoreCodes(ctx, h.super.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.False(t, codes[0].Used, "authorization precedes any ledger mutation")
}

func TestGenerateRestoreCodeChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, policy.Options{})
	const name = "2024-01-01_um.zip"
	h.backupAs(t, name)

	_, err := h.orch.GenerateRestoreCode(ctx, h.sysadmin, name, "sysadmin1")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.orch.GenerateRestoreCode(ctx, h.super, "missing_um.zip", "sysadmin1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.orch.GenerateRestoreCode(ctx, h.super, name, "nobody_x1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	codes, err := h.st.ListRestoreCodes(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestWrongCodeIsRejectedWithoutRestore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, policy.Options{})
	const name = "2024-01-01_um.zip"
	h.backupAs(t, name)
	_, err := h.st.CreateUser(ctx, models.User{Username: "engineer9", PasswordHash: "x", Role: models.RoleEngineer})
	require.NoError(t, err)

	ok, err := h.orch.RestoreWithCode(ctx, h.sysadmin, name, "not-a-code")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.st.GetUserByUsername(ctx, "engineer9")
	assert.NoError(t, err)
}

func TestDirectRestoreFollowsPolicyFlag(t *testing.T) {
	ctx := context.Background()
	const name = "2024-01-01_um.zip"

	off := newHarness(t, policy.Options{})
	off.backupAs(t, name)
	assert.ErrorIs(t, off.orch.RestoreBackupDirectly(ctx, off.super, name), apperr.ErrForbidden)

	on := newHarness(t, policy.Options{AllowDirectRestore: true})
	on.backupAs(t, name)
	assert.NoError(t, on.orch.RestoreBackupDirectly(ctx, on.super, name))
	assert.ErrorIs(t, on.orch.RestoreBackupDirectly(ctx, on.sysadmin, name), apperr.ErrForbidden)
}

func TestEngineerCannotBackup(t *testing.T) {
	h := newHarness(t, policy.Options{})
	eng := models.CurrentUser{ID: 99, Username: "engineer9", Role: models.RoleEngineer}

	_, err := h.orch.CreateBackup(context.Background(), eng)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = h.orch.ListBackups(context.Background(), eng)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	list, err := h.orch.ListBackups(context.Background(), h.sysadmin)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListRestoreCodesHidesDigests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, policy.Options{})
	const name = "2024-01-01_um.zip"
	h.backupAs(t, name)

	token, err := h.orch.GenerateRestoreCode(ctx, h.super, name, "sysadmin1")
	require.NoError(t, err)

	codes, err := h.orch.ListRestoreCodes(ctx, h.super)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, name, codes[0].BackupName)
	assert.Equal(t, h.sysadmin.ID, codes[0].GrantedToUserID)
	assert.Empty(t, codes[0].CodeHash)
	assert.False(t, codes[0].Used)

	_, err = h.orch.ListRestoreCodes(ctx, h.sysadmin)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	ok, err := h.orch.RestoreWithCode(ctx, h.sysadmin, name, token)
	require.NoError(t, err)
	require.True(t, ok)
	codes, err = h.orch.ListRestoreCodes(ctx, h.super)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.True(t, codes[0].Used, "the ledger survives the restore")
}
