package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"urbanmobility/internal/app"
	"urbanmobility/internal/config"
	"urbanmobility/internal/console"
	"urbanmobility/internal/db"
	"urbanmobility/internal/logging"
	"urbanmobility/internal/models"
	"urbanmobility/internal/version"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML, JSON or TOML config file",
		EnvVars: []string{"UM_CONFIG"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "override the configured log level",
	}
	usernameFlag = &cli.StringFlag{
		Name:     "username",
		Aliases:  []string{"u"},
		Usage:    "account that performs the operation",
		Required: true,
	}
)

func newCLI() *cli.App {
	a := cli.NewApp()
	a.Name = "umconsole"
	a.Usage = "Urban Mobility backend console"
	a.Version = version.Current().String()
	a.Flags = []cli.Flag{configFileFlag, logLevelFlag}
	a.Action = runConsole
	a.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "start the interactive console",
			Action: runConsole,
		},
		{
			Name:   "migrate",
			Usage:  "create or upgrade the database schema",
			Action: runMigrate,
		},
		{
			Name:  "backup",
			Usage: "manage backups without entering the console",
			Subcommands: []*cli.Command{
				{
					Name:   "create",
					Usage:  "create a backup of the business data",
					Flags:  []cli.Flag{usernameFlag},
					Action: runBackupCreate,
				},
				{
					Name:   "list",
					Usage:  "list backups",
					Flags:  []cli.Flag{usernameFlag},
					Action: runBackupList,
				},
			},
		},
		{
			Name:  "version",
			Usage: "print build information",
			Action: func(c *cli.Context) error {
				fmt.Println(version.Current().String())
				return nil
			},
		},
	}
	return a
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String(configFileFlag.Name))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := c.String(logLevelFlag.Name); lvl != "" {
		cfg.LogLevel = lvl
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func openApp(c *cli.Context) (*app.App, error) {
	cfg, log, err := setup(c)
	if err != nil {
		return nil, err
	}
	a, err := app.New(c.Context, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.Warn("close database", zap.Error(err))
	}
	_ = a.Log.Sync()
}

func runConsole(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer closeApp(a)

	in := console.NewPrompter(os.Stdin, os.Stdout)
	defer in.Close()
	return console.New(a.Service, in, os.Stdout, a.Log).Run(c.Context)
}

func runMigrate(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return err
	}
	h, err := db.Open(c.Context, cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBBusyTimeout)
	if err != nil {
		return err
	}
	log.Info("schema up to date", zap.String("db", cfg.DBPath))
	return h.Close()
}

// authenticate logs in the --username account with a password read from the
// terminal.
func authenticate(c *cli.Context, a *app.App) (models.CurrentUser, error) {
	in := console.NewPrompter(os.Stdin, os.Stderr)
	defer in.Close()
	pw, err := in.Password("Password: ")
	if err != nil {
		return models.CurrentUser{}, err
	}
	return a.Service.Login(c.Context, c.String(usernameFlag.Name), pw)
}

func runBackupCreate(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer closeApp(a)
	user, err := authenticate(c, a)
	if err != nil {
		return err
	}
	name, err := a.Service.CreateBackup(c.Context, user)
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

func runBackupList(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer closeApp(a)
	user, err := authenticate(c, a)
	if err != nil {
		return err
	}
	list, err := a.Service.ListBackups(c.Context, user)
	if err != nil {
		return err
	}
	for _, b := range list {
		fmt.Printf("%s\t%s\t%s\n", b.Name, b.CreatedAt.Format(time.DateTime), humanize.Bytes(uint64(b.Size)))
	}
	return nil
}
