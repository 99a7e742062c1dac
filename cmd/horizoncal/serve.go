package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"horizoncal/internal/event"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/model"
	"horizoncal/internal/vault"
	"horizoncal/internal/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and ICS feed, keeping the calendar in step with the vault.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
			&cli.BoolFlag{Name: "no-watch", Usage: "Do not watch the vault for changes"},
		},
		Action: withRuntime(runServe),
	}
}

func runServe(c *cli.Context, rt *runtime) error {
	if l := c.String("listen"); l != "" {
		rt.cfg.Listen = l
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.ensureRoot(ctx); err != nil {
		return err
	}

	loc, err := time.LoadLocation(event.LocalZoneName())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// One consumer applies every change, so widget updates arrive in the
	// order they were observed.
	changes := make(chan model.Change, 256)
	send := func(ch model.Change) {
		select {
		case changes <- ch:
		case <-ctx.Done():
		}
	}
	rt.fs.OnChange(send)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ch := <-changes:
				if err := rt.bridge.Apply(ch); err != nil {
					appLog.Warn("change not shown", "kind", ch.Kind.String(), "path", ch.Path, "error", err.Error())
				}
			}
		}
	})

	if rt.cfg.Watch && !c.Bool("no-watch") {
		w, err := vault.NewWatcher(rt.fs, rt.cfg.PrefixPath, send)
		if err != nil {
			return fmt.Errorf("watch %s: %w", rt.cfg.PrefixPath, err)
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	rescan := func() {
		start, end := window(rt.cfg.BackfillDays, rt.cfg.HorizonDays, time.Now().In(loc))
		n := len(rt.bridge.Refresh(ctx, start, end))
		appLog.Info("rescan completed", "events", n, "version", rt.cal.Version())
	}
	rescan()

	sched := cron.New(cron.WithLocation(loc))
	if _, err := sched.AddFunc(rt.cfg.Rescan, rescan); err != nil {
		return fmt.Errorf("rescan schedule %q: %w", rt.cfg.Rescan, err)
	}
	sched.Start()
	g.Go(func() error {
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	srv := web.NewServer(rt.cfg, rt.bridge, rt.cal)
	g.Go(func() error { return srv.Serve(ctx) })

	err = g.Wait()
	appLog.Info("horizoncal exiting")
	return err
}

// window is the span kept fresh by rescans: backfill days before today to
// horizon days after it.
func window(backfill, horizon int, now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -backfill), today.AddDate(0, 0, horizon)
}
