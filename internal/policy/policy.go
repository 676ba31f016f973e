// Package policy is the single capability table deciding which role may
// perform which action.
package policy

import (
	"slices"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
)

type Action string

const (
	CreatePrivilegedAdmin Action = "admin:create_privileged"
	ManageEngineers       Action = "admin:manage_engineers"
	CreateBackup          Action = "backup:create"
	ListBackups           Action = "backup:list"
	GenerateRestoreCode   Action = "restore_code:generate"
	ConsumeRestoreCode    Action = "restore_code:consume"
	RestoreWithCode       Action = "restore:with_code"
	RestoreBackupDirectly Action = "restore:direct"
	ChangeOwnPassword     Action = "password:change_own"
	ViewAuditLog          Action = "audit:view"
	ViewUnreadCount       Action = "audit:unread_count"
	ManageRecords         Action = "records:manage"
	AdministerRecords     Action = "records:administer"
)

var (
	superOnly    = []models.Role{models.RoleSuperAdmin}
	sysOnly      = []models.Role{models.RoleSysAdmin}
	admins       = []models.Role{models.RoleSuperAdmin, models.RoleSysAdmin}
	everyone     = []models.Role{models.RoleSuperAdmin, models.RoleSysAdmin, models.RoleEngineer}
	nonSeeded    = []models.Role{models.RoleSysAdmin, models.RoleEngineer}
	capabilities = map[Action][]models.Role{
		CreatePrivilegedAdmin: superOnly,
		ManageEngineers:       admins,
		CreateBackup:          admins,
		ListBackups:           admins,
		GenerateRestoreCode:   superOnly,
		// Consumption is narrower than issuance: the issuer can never redeem.
		ConsumeRestoreCode: sysOnly,
		RestoreWithCode:    sysOnly,
		ChangeOwnPassword:  nonSeeded,
		ViewAuditLog:       admins,
		ViewUnreadCount:    admins,
		ManageRecords:      everyone,
		AdministerRecords:  admins,
	}
)

type Options struct {
	// AllowDirectRestore lets the top role restore a backup without a
	// restore code. Off unless the product owner decides otherwise.
	AllowDirectRestore bool
}

type Policy struct {
	table map[Action][]models.Role
}

func New(opts Options) *Policy {
	table := make(map[Action][]models.Role, len(capabilities)+1)
	for a, roles := range capabilities {
		table[a] = roles
	}
	if opts.AllowDirectRestore {
		table[RestoreBackupDirectly] = superOnly
	}
	return &Policy{table: table}
}

func (p *Policy) Allowed(role models.Role, action Action) bool {
	return slices.Contains(p.table[action], role)
}

// Authorize returns apperr.ErrForbidden when user's role may not perform
// action. The error never says which rule failed.
func (p *Policy) Authorize(user models.CurrentUser, action Action) error {
	if !p.Allowed(user.Role, action) {
		return apperr.ErrForbidden
	}
	return nil
}

// Actions lists what role may do, in table order of the constants above.
func (p *Policy) Actions(role models.Role) []Action {
	var out []Action
	for _, a := range []Action{
		CreatePrivilegedAdmin, ManageEngineers, CreateBackup, ListBackups,
		GenerateRestoreCode, ConsumeRestoreCode, RestoreWithCode, RestoreBackupDirectly,
		ChangeOwnPassword, ViewAuditLog, ViewUnreadCount, ManageRecords, AdministerRecords,
	} {
		if p.Allowed(role, a) {
			out = append(out, a)
		}
	}
	return out
}
