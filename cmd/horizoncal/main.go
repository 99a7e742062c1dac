package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"horizoncal/internal/bridge"
	"horizoncal/internal/config"
	"horizoncal/internal/event"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/vault"
)

const version = "0.1.0"

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("horizoncal failed", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "horizoncal",
		Usage:   "Calendar over dated Markdown event notes.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"HORIZONCAL_CONFIG"},
				Value:   defaultConfigPath(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log_level from the config (DEBUG, INFO, WARN, ERROR)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			listCommand(),
			newCommand(),
			checkCommand(),
			importCommand(),
			exportCommand(),
		},
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "horizoncal", "config.yaml")
	}
	return "horizoncal.yaml"
}

// runtime is what every command works against: the loaded config, the vault
// and one bridge over an in-memory calendar.
type runtime struct {
	cfgPath string
	cfg     *config.Config
	fs      *vault.FS
	index   *vault.Index
	cal     *bridge.Calendar
	bridge  *bridge.Bridge
}

func setup(c *cli.Context) (*runtime, error) {
	cfgPath := c.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	if cfg.Timezone != "" {
		if err := event.SetLocalZone(cfg.Timezone); err != nil {
			return nil, err
		}
	}

	fs, err := vault.NewFS(cfg.VaultRoot(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	rt := &runtime{cfgPath: cfgPath, cfg: cfg, fs: fs, cal: bridge.NewCalendar()}
	var store vault.Store = fs
	if cfg.IndexPath != "" {
		idx, err := vault.OpenIndex(cfg.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("open metadata index: %w", err)
		}
		rt.index = idx
		store = vault.NewIndexed(fs, idx)
	}

	rt.bridge = bridge.New(store, cfg.PrefixPath, rt.cal, cfg.Categories)
	loader := rt.bridge.Loader()
	loader.PreMarginDays = cfg.PreMarginDays
	loader.PostMarginDays = cfg.PostMarginDays

	appLog.Info("effective config",
		"vault", fs.Root(),
		"prefix_path", cfg.PrefixPath,
		"timezone", event.LocalZoneName(),
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"rescan", cfg.Rescan,
		"watch", cfg.Watch,
		"index", cfg.IndexPath != "",
		"categories", len(cfg.Categories),
	)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.index == nil {
		return
	}
	if err := rt.index.Close(); err != nil {
		appLog.Error("closing metadata index failed", err)
	}
}

// ensureRoot creates the event folder so watchers and scans have something
// to look at.
func (rt *runtime) ensureRoot(ctx context.Context) error {
	if err := rt.fs.EnsureDir(ctx, rt.cfg.PrefixPath); err != nil {
		return fmt.Errorf("create %s: %w", rt.cfg.PrefixPath, err)
	}
	return nil
}

// withRuntime wraps a command action with setup and teardown.
func withRuntime(fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := setup(c)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}
