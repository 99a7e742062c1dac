package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	"horizoncal/internal/ics"
	"horizoncal/internal/loading"
	appLog "horizoncal/internal/log"
)

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "First day (YYYY-MM-DD); defaults to backfill_days ago"},
		&cli.StringFlag{Name: "end", Usage: "Last day (YYYY-MM-DD); defaults to horizon_days ahead"},
	}
}

// rangeOf reads --start/--end as days in the host zone.
func rangeOf(c *cli.Context, rt *runtime) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(event.LocalZoneName())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := window(rt.cfg.BackfillDays, rt.cfg.HorizonDays, time.Now().In(loc))
	if s := c.String("start"); s != "" {
		if start, err = time.ParseInLocation(time.DateOnly, s, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
		}
	}
	if s := c.String("end"); s != "" {
		if end, err = time.ParseInLocation(time.DateOnly, s, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
		}
		end = end.AddDate(0, 0, 1)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("--end is before --start")
	}
	return start, end, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List the events in a range of days.",
		Flags:  rangeFlags(),
		Action: withRuntime(runList),
	}
}

const listLayout = "2006-01-02 15:04 MST"

func runList(c *cli.Context, rt *runtime) error {
	start, end, err := rangeOf(c, rt)
	if err != nil {
		return err
	}
	events := rt.bridge.Refresh(c.Context, start, end)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	loc := start.Location()
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, d := range events {
		// the margin days may bring in events just outside the range
		if !d.Start.Before(end) || d.End.Before(start) {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			d.Start.In(loc).Format(listLayout), d.End.In(loc).Format(listLayout), d.Title, d.ID)
	}
	return tw.Flush()
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Create an event note.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "date", Required: true, Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "time", Usage: "HH:MM; omit for an all-day event"},
			&cli.StringFlag{Name: "tz", Usage: "IANA zone; defaults to the host zone"},
			&cli.StringFlag{Name: "end-date", Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "end-time", Usage: "HH:MM"},
			&cli.StringFlag{Name: "end-tz", Usage: "IANA zone of the end"},
			&cli.StringSliceFlag{Name: "category", Usage: "Category name; may repeat"},
		},
		Action: withRuntime(runNew),
	}
}

func runNew(c *cli.Context, rt *runtime) error {
	md := frontmatter.New()
	set := func(key, flag string) error {
		if v := c.String(flag); v != "" {
			return md.Set(key, v)
		}
		return nil
	}
	for _, kf := range [][2]string{
		{event.KeyTitle, "title"},
		{event.KeyDate, "date"},
		{event.KeyTime, "time"},
		{event.KeyZone, "tz"},
		{event.KeyEndDate, "end-date"},
		{event.KeyEndTime, "end-time"},
		{event.KeyEndZone, "end-tz"},
	} {
		if err := set(kf[0], kf[1]); err != nil {
			return err
		}
	}
	if cats := c.StringSlice("category"); len(cats) > 0 {
		if err := md.Set(event.KeyCategories, cats); err != nil {
			return err
		}
	}

	if err := rt.ensureRoot(c.Context); err != nil {
		return err
	}
	out := rt.bridge.Save(c.Context, event.FromStorage(md))
	if !out.OK() {
		return out.Failed
	}
	if out.Warning != nil {
		fmt.Fprintln(c.App.ErrWriter, "warning:", out.Warning)
	}
	fmt.Fprintln(c.App.Writer, out.ID)
	return nil
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate every event note and report problems.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fix", Usage: "Move valid events that are not at their canonical path"},
		},
		Action: withRuntime(runCheck),
	}
}

func runCheck(c *cli.Context, rt *runtime) error {
	events, problems, err := rt.bridge.Loader().Scan(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, p := range problems {
		fmt.Fprintf(w, "%s: %v\n", p.Path, p.Err)
	}

	misplaced := 0
	for _, ev := range events {
		want := event.DerivePath(ev).Under(rt.cfg.PrefixPath)
		if want == ev.LoadedFrom {
			continue
		}
		misplaced++
		if !c.Bool("fix") {
			fmt.Fprintf(w, "%s: belongs at %s\n", ev.LoadedFrom, want)
			continue
		}
		from := ev.LoadedFrom
		out := rt.bridge.Save(c.Context, ev)
		switch {
		case !out.OK():
			fmt.Fprintf(w, "%s: %v\n", from, out.Failed)
		case out.Warning != nil:
			fmt.Fprintf(w, "%s: %v\n", from, out.Warning)
		default:
			fmt.Fprintf(w, "%s: moved to %s\n", from, out.ID)
		}
	}

	fmt.Fprintf(w, "%d valid, %d invalid, %d misplaced\n", len(events), len(problems), misplaced)
	if len(problems) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create event notes from an .ics file (recurring events are skipped).",
		ArgsUsage: "<file.ics>",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return cli.Exit("import takes exactly one .ics file", 2)
			}
			body, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			if err := rt.ensureRoot(c.Context); err != nil {
				return err
			}
			report, err := ics.Import(c.Context, rt.bridge, body)
			if err != nil {
				return err
			}
			for _, p := range report.Created {
				fmt.Fprintln(c.App.Writer, p)
			}
			for uid, ferr := range report.Failed {
				fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", uid, ferr)
			}
			appLog.Info("import completed", "created", len(report.Created), "failed", len(report.Failed))
			if len(report.Failed) > 0 {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write events as an ICS feed.",
		Flags: append(rangeFlags(),
			&cli.BoolFlag{Name: "all", Usage: "Export every event regardless of date"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		),
		Action: withRuntime(runExport),
	}
}

func runExport(c *cli.Context, rt *runtime) error {
	var events []*event.Event
	if c.Bool("all") {
		all, problems, err := rt.bridge.Loader().Scan(c.Context)
		if err != nil {
			return err
		}
		logProblems(problems)
		events = all
	} else {
		start, end, err := rangeOf(c, rt)
		if err != nil {
			return err
		}
		events = rt.bridge.Loader().Load(c.Context, start, end)
	}

	var w io.Writer = c.App.Writer
	if out := c.String("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := io.WriteString(w, ics.Export(events, time.Now()))
	return err
}

func logProblems(problems []loading.Problem) {
	for _, p := range problems {
		appLog.Warn("event skipped", "path", p.Path, "error", p.Err.Error())
	}
}
