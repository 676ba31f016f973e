package console

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/service"
)

func (c *Console) commands() []command {
	return []command{
		{name: "passwd", help: "change your password", action: policy.ChangeOwnPassword, run: c.changePassword},

		{name: "backup", help: "create a backup of the business data", action: policy.CreateBackup, run: c.createBackup},
		{name: "backups", help: "list backups", action: policy.ListBackups, run: c.listBackups},
		{name: "restore-code", usage: "<backup> <username>", help: "issue a one-time restore code", action: policy.GenerateRestoreCode, run: c.generateRestoreCode},
		{name: "restore-codes", help: "list issued restore codes", action: policy.GenerateRestoreCode, run: c.listRestoreCodes},
		{name: "restore", usage: "<backup>", help: "restore a backup with a restore code", action: policy.RestoreWithCode, run: c.restoreWithCode},
		{name: "restore-direct", usage: "<backup>", help: "restore a backup without a code", action: policy.RestoreBackupDirectly, run: c.restoreDirectly},

		{name: "audit", help: "show the security log", action: policy.ViewAuditLog, run: c.viewAuditLog},
		{name: "unread", help: "count unread suspicious events", action: policy.ViewUnreadCount, run: c.unread},
		{name: "seen", help: "mark every audit event as seen", action: policy.ViewUnreadCount, run: c.markSeen},

		{name: "add-sysadmin", help: "create a system administrator", action: policy.CreatePrivilegedAdmin, run: c.addSysAdmin},
		{name: "add-engineer", help: "create a service engineer", action: policy.ManageEngineers, run: c.addEngineer},
		{name: "engineers", help: "list service engineers", action: policy.ManageEngineers, run: c.listEngineers},
		{name: "edit-engineer", usage: "<username>", help: "update an engineer's profile", action: policy.ManageEngineers, run: c.editEngineer},
		{name: "delete-engineer", usage: "<username>", help: "delete an engineer", action: policy.ManageEngineers, run: c.deleteEngineer},
		{name: "reset-engineer", usage: "<username>", help: "set a new engineer password", action: policy.ManageEngineers, run: c.resetEngineer},

		{name: "add-traveller", help: "register a traveller", action: policy.ManageRecords, run: c.addTraveller},
		{name: "find-traveller", usage: "<query>", help: "search travellers", action: policy.ManageRecords, run: c.findTraveller},
		{name: "delete-traveller", usage: "<customer id>", help: "delete a traveller", action: policy.AdministerRecords, run: c.deleteTraveller},
		{name: "add-scooter", help: "register a scooter", action: policy.AdministerRecords, run: c.addScooter},
		{name: "find-scooter", usage: "<query>", help: "search scooters", action: policy.ManageRecords, run: c.findScooter},
		{name: "edit-scooter", usage: "<id>", help: "update scooter fields", action: policy.ManageRecords, run: c.editScooter},
		{name: "delete-scooter", usage: "<id>", help: "delete a scooter", action: policy.AdministerRecords, run: c.deleteScooter},
	}
}

func (c *Console) changePassword(ctx context.Context, _ []string) error {
	old, err := c.in.Password("Current password: ")
	if err != nil {
		return err
	}
	pw, err := c.newPassword("New password: ")
	if err != nil {
		return err
	}
	if err := c.svc.ChangePassword(ctx, *c.user, old, pw); err != nil {
		return err
	}
	c.println("Password changed.")
	return nil
}

func (c *Console) createBackup(ctx context.Context, _ []string) error {
	name, err := c.svc.CreateBackup(ctx, *c.user)
	if err != nil {
		return err
	}
	c.printf("Backup created: %s\n", name)
	return nil
}

func (c *Console) listBackups(ctx context.Context, _ []string) error {
	list, err := c.svc.ListBackups(ctx, *c.user)
	if err != nil {
		return err
	}
	t := newTable("NAME", "CREATED", "SIZE")
	for _, b := range list {
		t.add(b.Name, b.CreatedAt.Format(time.DateTime), humanize.Bytes(uint64(b.Size)))
	}
	t.render(c.out)
	return nil
}

func (c *Console) generateRestoreCode(ctx context.Context, args []string) error {
	name, err := c.arg(args, 0, "Backup name: ")
	if err != nil {
		return err
	}
	target, err := c.arg(args, 1, "Grant to username: ")
	if err != nil {
		return err
	}
	token, err := c.svc.GenerateRestoreCode(ctx, *c.user, name, target)
	if err != nil {
		return err
	}
	c.printf("Restore code for %s on %s (shown once):\n  %s\n", target, name, token)
	return nil
}

func (c *Console) listRestoreCodes(ctx context.Context, _ []string) error {
	codes, err := c.svc.ListRestoreCodes(ctx, *c.user)
	if err != nil {
		return err
	}
	t := newTable("ID", "BACKUP", "GRANTED TO", "ISSUED", "USED")
	for _, rc := range codes {
		used := "no"
		if rc.UsedAt != nil {
			used = rc.UsedAt.Local().Format(time.DateTime)
		} else if rc.Used {
			used = "yes"
		}
		t.add(fmt.Sprint(rc.ID), rc.BackupName, fmt.Sprintf("user #%d", rc.GrantedToUserID),
			rc.CreatedAt.Local().Format(time.DateTime), used)
	}
	t.render(c.out)
	return nil
}

func (c *Console) restoreWithCode(ctx context.Context, args []string) error {
	name, err := c.arg(args, 0, "Backup name: ")
	if err != nil {
		return err
	}
	token, err := c.in.Password("Restore code: ")
	if err != nil {
		return err
	}
	ok, err := c.svc.RestoreWithCode(ctx, *c.user, name, strings.TrimSpace(token))
	if !ok && err == nil {
		return apperr.ErrRecovery
	}
	if err != nil {
		if ok {
			c.println("The restore code was used but the restore did not complete.")
		}
		return err
	}
	c.restored(name)
	return nil
}

func (c *Console) restoreDirectly(ctx context.Context, args []string) error {
	name, err := c.arg(args, 0, "Backup name: ")
	if err != nil {
		return err
	}
	sure, err := c.confirm(fmt.Sprintf("Replace all business data with %s?", name))
	if err != nil || !sure {
		return err
	}
	if err := c.svc.RestoreBackupDirectly(ctx, *c.user, name); err != nil {
		return err
	}
	c.restored(name)
	return nil
}

// restored ends the session; the caller's account may differ in the
// restored data.
func (c *Console) restored(name string) {
	c.printf("Restore of %s completed. Please log in again.\n", name)
	c.user = nil
}

func (c *Console) viewAuditLog(ctx context.Context, _ []string) error {
	entries, err := c.svc.ViewAuditLog(ctx, *c.user)
	if err != nil {
		return err
	}
	t := newTable("SEQ", "TIME", "USER", "EVENT", "DETAILS", "SUSPICIOUS")
	for _, e := range entries {
		flag := ""
		if e.Suspicious {
			flag = "yes"
		}
		t.add(fmt.Sprint(e.Seq), e.Timestamp.Local().Format(time.DateTime), e.Actor, e.Event, formatDetails(e.Details), flag)
	}
	t.render(c.out)
	return nil
}

func formatDetails(d map[string]string) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+d[k])
	}
	return strings.Join(parts, " ")
}

func (c *Console) unread(ctx context.Context, _ []string) error {
	n, err := c.svc.UnreadSuspiciousCount(ctx, *c.user)
	if err != nil {
		return err
	}
	c.printf("Unread suspicious events: %d\n", n)
	return nil
}

func (c *Console) markSeen(ctx context.Context, _ []string) error {
	if err := c.svc.MarkAllSeen(ctx, *c.user); err != nil {
		return err
	}
	c.println("All audit events marked as seen.")
	return nil
}

func (c *Console) readAccount() (service.NewAccount, error) {
	var in service.NewAccount
	var err error
	if in.Username, err = c.ask("Username: "); err != nil {
		return in, err
	}
	if in.FirstName, err = c.ask("First name: "); err != nil {
		return in, err
	}
	if in.LastName, err = c.ask("Last name: "); err != nil {
		return in, err
	}
	in.Password, err = c.newPassword("Password: ")
	return in, err
}

func (c *Console) addSysAdmin(ctx context.Context, _ []string) error {
	in, err := c.readAccount()
	if err != nil {
		return err
	}
	u, err := c.svc.CreateSysAdmin(ctx, *c.user, in)
	if err != nil {
		return err
	}
	c.printf("System administrator %s created.\n", u.Username)
	return nil
}

func (c *Console) addEngineer(ctx context.Context, _ []string) error {
	in, err := c.readAccount()
	if err != nil {
		return err
	}
	u, err := c.svc.CreateEngineer(ctx, *c.user, in)
	if err != nil {
		return err
	}
	c.printf("Service engineer %s created.\n", u.Username)
	return nil
}

func (c *Console) listEngineers(ctx context.Context, _ []string) error {
	list, err := c.svc.ListEngineers(ctx, *c.user)
	if err != nil {
		return err
	}
	t := newTable("USERNAME", "FIRST NAME", "LAST NAME", "REGISTERED")
	for _, u := range list {
		t.add(u.Username, u.FirstName, u.LastName, u.RegisteredAt.Format(time.DateOnly))
	}
	t.render(c.out)
	return nil
}

func (c *Console) editEngineer(ctx context.Context, args []string) error {
	username, err := c.arg(args, 0, "Username: ")
	if err != nil {
		return err
	}
	var patch models.UserProfilePatch
	if patch.FirstName, err = c.optional("First name"); err != nil {
		return err
	}
	if patch.LastName, err = c.optional("Last name"); err != nil {
		return err
	}
	if err := c.svc.UpdateEngineer(ctx, *c.user, username, patch); err != nil {
		return err
	}
	c.printf("Engineer %s updated.\n", username)
	return nil
}

func (c *Console) deleteEngineer(ctx context.Context, args []string) error {
	username, err := c.arg(args, 0, "Username: ")
	if err != nil {
		return err
	}
	sure, err := c.confirm(fmt.Sprintf("Delete engineer %s?", username))
	if err != nil || !sure {
		return err
	}
	if err := c.svc.DeleteEngineer(ctx, *c.user, username); err != nil {
		return err
	}
	c.printf("Engineer %s deleted.\n", username)
	return nil
}

func (c *Console) resetEngineer(ctx context.Context, args []string) error {
	username, err := c.arg(args, 0, "Username: ")
	if err != nil {
		return err
	}
	pw, err := c.newPassword("New password: ")
	if err != nil {
		return err
	}
	if err := c.svc.ResetEngineerPassword(ctx, *c.user, username, pw); err != nil {
		return err
	}
	c.printf("Password for %s reset.\n", username)
	return nil
}

// optional prompts for a value; an empty answer leaves the field unset.
func (c *Console) optional(label string) (*string, error) {
	v, err := c.in.Prompt(label + " (blank to keep): ")
	if err != nil {
		return nil, err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	return &v, nil
}
