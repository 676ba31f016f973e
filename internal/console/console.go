// Package console is the interactive front end. It owns the logged-in
// identity, turns typed commands into service calls and renders the results.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/service"
)

// Backend is the service surface the console drives.
type Backend interface {
	Allowed(caller models.CurrentUser, action policy.Action) bool
	Capabilities(caller models.CurrentUser) []policy.Action

	Login(ctx context.Context, username, password string) (models.CurrentUser, error)
	ChangePassword(ctx context.Context, caller models.CurrentUser, oldPassword, newPassword string) error

	CreateBackup(ctx context.Context, caller models.CurrentUser) (string, error)
	ListBackups(ctx context.Context, caller models.CurrentUser) ([]models.BackupInfo, error)
	GenerateRestoreCode(ctx context.Context, caller models.CurrentUser, backupName, targetUsername string) (string, error)
	ListRestoreCodes(ctx context.Context, caller models.CurrentUser) ([]models.RestoreCode, error)
	RestoreWithCode(ctx context.Context, caller models.CurrentUser, backupName, token string) (bool, error)
	RestoreBackupDirectly(ctx context.Context, caller models.CurrentUser, backupName string) error

	ViewAuditLog(ctx context.Context, caller models.CurrentUser) ([]models.SecurityLogEntry, error)
	UnreadSuspiciousCount(ctx context.Context, caller models.CurrentUser) (int, error)
	MarkAllSeen(ctx context.Context, caller models.CurrentUser) error

	CreateSysAdmin(ctx context.Context, caller models.CurrentUser, in service.NewAccount) (models.User, error)
	CreateEngineer(ctx context.Context, caller models.CurrentUser, in service.NewAccount) (models.User, error)
	ListEngineers(ctx context.Context, caller models.CurrentUser) ([]models.User, error)
	UpdateEngineer(ctx context.Context, caller models.CurrentUser, username string, patch models.UserProfilePatch) error
	DeleteEngineer(ctx context.Context, caller models.CurrentUser, username string) error
	ResetEngineerPassword(ctx context.Context, caller models.CurrentUser, username, newPassword string) error

	AddTraveller(ctx context.Context, caller models.CurrentUser, t models.Traveller) (models.Traveller, error)
	SearchTravellers(ctx context.Context, caller models.CurrentUser, query string) ([]models.Traveller, error)
	DeleteTraveller(ctx context.Context, caller models.CurrentUser, customerID string) error
	AddScooter(ctx context.Context, caller models.CurrentUser, sc models.Scooter) (models.Scooter, error)
	SearchScooters(ctx context.Context, caller models.CurrentUser, query string) ([]models.Scooter, error)
	UpdateScooter(ctx context.Context, caller models.CurrentUser, id int64, patch models.ScooterPatch) error
	DeleteScooter(ctx context.Context, caller models.CurrentUser, id int64) error
}

type command struct {
	name   string
	usage  string
	help   string
	action policy.Action
	run    func(ctx context.Context, args []string) error
}

type Console struct {
	svc  Backend
	in   Prompter
	out  io.Writer
	log  *zap.Logger
	user *models.CurrentUser
	cmds map[string]command
}

func New(svc Backend, in Prompter, out io.Writer, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Console{svc: svc, in: in, out: out, log: log.Named("console")}
	c.cmds = make(map[string]command)
	for _, cmd := range c.commands() {
		c.cmds[cmd.name] = cmd
	}
	return c
}

// Run reads commands until exit, end of input or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.println("Urban Mobility backend console. Type 'help' for commands.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.in.Prompt(c.promptLabel())
		if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) {
			c.println("Bye!")
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name, args := strings.ToLower(fields[0]), fields[1:]
		if name == "exit" || name == "quit" {
			c.println("Bye!")
			return nil
		}
		err = c.dispatch(ctx, name, args)
		if errors.Is(err, io.EOF) {
			c.println("Bye!")
			return nil
		}
		if err != nil {
			c.report(err)
		}
	}
}

func (c *Console) promptLabel() string {
	if c.user == nil {
		return "um> "
	}
	return fmt.Sprintf("um[%s]> ", c.user.Username)
}

func (c *Console) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "help":
		c.help()
		return nil
	case "login":
		return c.login(ctx, args)
	}
	if c.user == nil {
		c.println("Please log in first.")
		return nil
	}
	switch name {
	case "logout":
		c.logout()
		return nil
	case "whoami":
		c.whoami()
		return nil
	}
	cmd, ok := c.cmds[name]
	if !ok {
		c.printf("Unknown command: %s\n", name)
		return nil
	}
	if cmd.action != "" && !c.svc.Allowed(*c.user, cmd.action) {
		return apperr.ErrForbidden
	}
	return cmd.run(ctx, args)
}

func (c *Console) help() {
	if c.user == nil {
		c.println("Available commands: login, help, exit")
		return
	}
	names := make([]string, 0, len(c.cmds))
	for name, cmd := range c.cmds {
		if cmd.action == "" || c.svc.Allowed(*c.user, cmd.action) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	t := newTable("COMMAND", "DESCRIPTION")
	for _, name := range names {
		cmd := c.cmds[name]
		t.add(strings.TrimSpace(name+" "+cmd.usage), cmd.help)
	}
	t.add("whoami", "show your role and permissions")
	t.add("logout", "end the session")
	t.add("exit", "leave the console")
	t.render(c.out)
}

func (c *Console) login(ctx context.Context, args []string) error {
	if c.user != nil {
		c.printf("Already logged in as %s. Log out first.\n", c.user.Username)
		return nil
	}
	username, err := c.arg(args, 0, "Username: ")
	if err != nil {
		return err
	}
	password, err := c.in.Password("Password: ")
	if err != nil {
		return err
	}
	u, err := c.svc.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c.user = &u
	c.printf("Welcome, %s (%s).\n", u.Username, u.Role.Label())
	if c.svc.Allowed(u, policy.ViewUnreadCount) {
		n, err := c.svc.UnreadSuspiciousCount(ctx, u)
		if err != nil {
			c.log.Warn("unread count unavailable", zap.Error(err))
		} else if n > 0 {
			c.printf("ALERT: %d unread suspicious event(s) in the audit log.\n", n)
		}
	}
	return nil
}

func (c *Console) whoami() {
	c.printf("%s (%s)\n", c.user.Username, c.user.Role.Label())
	for _, a := range c.svc.Capabilities(*c.user) {
		c.printf("  %s\n", a)
	}
}

func (c *Console) logout() {
	c.printf("Goodbye, %s.\n", c.user.Username)
	c.user = nil
}

// report prints a user-facing message for err. Unclassified errors are
// logged in full and shown generically.
func (c *Console) report(err error) {
	switch {
	case errors.Is(err, ErrAborted):
		c.println("Cancelled.")
	case errors.Is(err, apperr.ErrThrottled):
		c.println("Too many failed attempts. Please wait a moment before trying again.")
	case errors.Is(err, apperr.ErrInvalidCredentials):
		c.println("Error: invalid credentials.")
	case errors.Is(err, apperr.ErrForbidden):
		c.println("Error: access denied.")
	case errors.Is(err, apperr.ErrValidation):
		c.printf("Error: %v\n", err)
	case errors.Is(err, apperr.ErrNotFound):
		c.println("Error: not found.")
	case errors.Is(err, apperr.ErrIntegrity):
		c.println("Error: backup is missing or corrupt. Nothing was changed.")
	case errors.Is(err, apperr.ErrRecovery):
		c.println("Error: restore code is invalid or already used.")
	default:
		c.log.Error("command failed", zap.Error(err))
		c.println("Error: operation failed. See the operational log for details.")
	}
}

// arg returns args[i] or prompts for it.
func (c *Console) arg(args []string, i int, label string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	return c.ask(label)
}

func (c *Console) ask(label string) (string, error) {
	v, err := c.in.Prompt(label)
	return strings.TrimSpace(v), err
}

func (c *Console) confirm(label string) (bool, error) {
	v, err := c.in.Prompt(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "y" || v == "yes", nil
}

// newPassword prompts twice and requires both entries to match.
func (c *Console) newPassword(label string) (string, error) {
	pw, err := c.in.Password(label)
	if err != nil {
		return "", err
	}
	again, err := c.in.Password("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", apperr.Validation("passwords do not match")
	}
	return pw, nil
}

func (c *Console) println(a ...any) { fmt.Fprintln(c.out, a...) }

func (c *Console) printf(format string, a ...any) { fmt.Fprintf(c.out, format, a...) }
