// Package loading finds the event notes relevant to a window of time.
package loading

import (
	"context"
	"errors"
	"path"
	"time"

	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/vault"
)

// Loader reads events from per-day directories under Root.
//
// Events are stored under the day of their start date in their own zone, and
// the widget asks in its own zone, so a margin of days is read on both sides
// of the window.
type Loader struct {
	Store          vault.Store
	Root           string
	PreMarginDays  int
	PostMarginDays int
}

// NewLoader returns a loader over root with a one-day margin each side.
func NewLoader(store vault.Store, root string) *Loader {
	return &Loader{
		Store:          store,
		Root:           root,
		PreMarginDays:  1,
		PostMarginDays: 1,
	}
}

// Problem is an event note that could not be used.
type Problem struct {
	Path string
	Err  error
}

// HasStartDate reports whether md carries a non-empty evtDate. Notes without
// one are not events and are skipped silently.
func HasStartDate(md *frontmatter.Map) bool {
	v, ok := md.Lookup(event.KeyDate)
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}

// DayDirs lists the day directories from the day of from to the day of to,
// inclusive.
func DayDirs(root string, from, to time.Time) []string {
	y, m, d := from.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = to.Date()
	last := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var dirs []string
	for !day.After(last) {
		dirs = append(dirs, event.DayDir(root, day))
		day = day.AddDate(0, 0, 1)
	}
	return dirs
}

// Load returns the valid events stored in the day directories covering
// start to end plus the margins. Unreadable or invalid notes are logged and
// skipped; they never fail the whole load.
func (l *Loader) Load(ctx context.Context, start, end time.Time) []*event.Event {
	from := start.AddDate(0, 0, -l.PreMarginDays)
	to := end.AddDate(0, 0, l.PostMarginDays)

	events := []*event.Event{}
	for _, dir := range DayDirs(l.Root, from, to) {
		if err := ctx.Err(); err != nil {
			appLog.Error("range load interrupted", err, "dir", dir)
			break
		}
		files, err := l.Store.List(ctx, dir)
		if err != nil {
			if !errors.Is(err, vault.ErrNotFound) {
				appLog.Error("range load: could not list directory", err, "dir", dir)
			}
			continue
		}
		for _, p := range files {
			if !event.IsEventFileName(path.Base(p)) {
				continue
			}
			ev, err := l.Read(ctx, p)
			if err != nil {
				appLog.Error("range load: skipping event", err, "path", p)
				continue
			}
			if ev == nil {
				continue
			}
			if err := ev.Validate(); err != nil {
				appLog.Error("range load: skipping invalid event", err, "path", p)
				continue
			}
			events = append(events, ev)
		}
	}
	appLog.Debug("range load", "start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339), "events", len(events))
	return events
}

// Read loads one note as an event. It returns nil, nil for a note without a
// start date. The event is returned whether or not it validates.
func (l *Loader) Read(ctx context.Context, p string) (*event.Event, error) {
	md, err := l.Store.ReadMetadata(ctx, p)
	if err != nil {
		return nil, err
	}
	if !HasStartDate(md) {
		return nil, nil
	}
	ev := event.FromStorage(md)
	ev.LoadedFrom = p
	return ev, nil
}

// Scan visits every event note under Root. Valid events are returned;
// unreadable and invalid ones are reported as problems.
func (l *Loader) Scan(ctx context.Context) ([]*event.Event, []Problem, error) {
	files, err := l.Store.List(ctx, l.Root)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var (
		events   []*event.Event
		problems []Problem
	)
	for _, p := range files {
		if !event.IsEventFileName(path.Base(p)) {
			continue
		}
		ev, err := l.Read(ctx, p)
		if err != nil {
			problems = append(problems, Problem{Path: p, Err: err})
			continue
		}
		if ev == nil {
			continue
		}
		if err := ev.Validate(); err != nil {
			problems = append(problems, Problem{Path: p, Err: err})
			continue
		}
		events = append(events, ev)
	}
	return events, problems, nil
}
