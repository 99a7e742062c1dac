// Package bridge keeps the calendar widget and the event notes in agreement.
//
// Storage notifications flow out to the widget (ContentChanged, Renamed,
// Deleted). User gestures flow in to storage (Reschedule, Save). The widget
// keys events by vault path, so every successful move also rekeys the
// widget event.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	"horizoncal/internal/loading"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/model"
	"horizoncal/internal/vault"
)

var (
	ErrNoID        = errors.New("cannot alter that event; it has no known data source")
	ErrMissingFile = errors.New("event file is missing")
	ErrDuplicate   = errors.New("an event with this title already exists on that day; pick a title unique in its day")
)

// Outcome reports what became of a change made from the widget side.
type Outcome struct {
	// ID is the event's path afterwards: the new one after a move, the old
	// one otherwise.
	ID    string
	Moved bool
	// Failed is set when nothing was saved; the widget must revert the
	// gesture.
	Failed error
	// Warning is set when the event was saved but could not be moved to its
	// canonical path. The widget keeps the change.
	Warning error
}

// OK reports whether the change was saved.
func (o Outcome) OK() bool {
	return o.Failed == nil
}

func failed(err error) Outcome {
	return Outcome{Failed: err}
}

// Bridge reconciles one widget with the events under Root.
type Bridge struct {
	store  vault.Store
	root   string
	widget Widget
	styles event.Styles
	loader *loading.Loader

	// mu makes each handler's widget read-modify-write atomic. Storage I/O
	// happens outside it.
	mu sync.Mutex
}

// New returns a bridge for the events under root, shown in widget with the
// given category styles.
func New(store vault.Store, root string, widget Widget, styles event.Styles) *Bridge {
	return &Bridge{
		store:  store,
		root:   root,
		widget: widget,
		styles: styles,
		loader: loading.NewLoader(store, root),
	}
}

// Loader is the range loader the bridge refreshes from.
func (b *Bridge) Loader() *loading.Loader {
	return b.loader
}

// Root is the vault folder holding event notes.
func (b *Bridge) Root() string {
	return b.root
}

// Styles are the category styles events are shown with.
func (b *Bridge) Styles() event.Styles {
	return b.styles
}

// Apply dispatches one storage notification.
func (b *Bridge) Apply(c model.Change) error {
	switch c.Kind {
	case model.ChangeContent:
		return b.ContentChanged(c.Path, c.Meta)
	case model.ChangeRenamed:
		b.Renamed(c.OldPath, c.Path)
	case model.ChangeDeleted:
		b.Deleted(c.Path)
	}
	return nil
}

// ContentChanged adds or updates the widget event for a note. Notes outside
// the event tree are ignored. An event note that lost its date or no longer
// validates is taken off the widget.
func (b *Bridge) ContentChanged(p string, md *frontmatter.Map) error {
	if !event.IsEventPath(b.root, p) {
		return nil
	}
	if md.Len() == 0 || !loading.HasStartDate(md) {
		b.Deleted(p)
		return nil
	}
	ev := event.FromStorage(md)
	ev.LoadedFrom = p
	disp, err := ev.ToDisplay(b.styles)
	if err != nil {
		appLog.Error("content change: event not shown", err, "path", p)
		b.Deleted(p)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.upsert(disp)
	return nil
}

// upsert must be called with mu held.
func (b *Bridge) upsert(d model.DisplayEvent) {
	if _, ok := b.widget.EventByID(d.ID); !ok {
		b.widget.AddEvent(d)
		return
	}
	b.widget.SetProp(d.ID, PropTitle, d.Title)
	b.widget.SetStart(d.ID, d.Start)
	b.widget.SetEnd(d.ID, d.End)
	b.widget.SetProp(d.ID, PropColor, d.Color)
	b.widget.SetProp(d.ID, PropClassNames, d.ClassNames)
}

// Renamed rekeys the widget event, if there is one.
func (b *Bridge) Renamed(oldPath, newPath string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.widget.EventByID(oldPath); ok {
		b.widget.SetID(oldPath, newPath)
	}
}

// Deleted removes the widget event, if there is one.
func (b *Bridge) Deleted(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.widget.EventByID(p); ok {
		b.widget.RemoveEvent(p)
	}
}

// Reschedule stores a drag or resize of the widget event id. start and end
// may be in any zone; they are converted into the event's own zones before
// being written. Nothing is written unless id is an event note that still
// validates after the change.
func (b *Bridge) Reschedule(ctx context.Context, id string, start, end time.Time) Outcome {
	if id == "" {
		return failed(ErrNoID)
	}
	if !event.IsEventPath(b.root, id) {
		return failed(fmt.Errorf("%w: %s is not an event note", ErrNoID, id))
	}
	if ok, err := b.store.Exists(ctx, id); err != nil {
		return failed(err)
	} else if !ok {
		return failed(fmt.Errorf("%w: %s", ErrMissingFile, id))
	}

	var ev *event.Event
	err := b.store.ProcessMetadata(ctx, id, func(md *frontmatter.Map) error {
		if !loading.HasStartDate(md) {
			return fmt.Errorf("%w: %s has no %s", ErrNoID, id, event.KeyDate)
		}
		ev = event.FromStorage(md)
		ev.LoadedFrom = id
		if err := ev.Reschedule(start, end); err != nil {
			return err
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		return ev.Foist(md)
	})
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrMissingFile, id)
		}
		appLog.Error("reschedule failed", err, "id", id)
		return failed(err)
	}

	out := b.relocate(ctx, ev, id)
	b.show(ev)
	return out
}

// Save writes an edited or new event, then moves it to its canonical path.
// The event is validated first; an invalid event is never written.
func (b *Bridge) Save(ctx context.Context, ev *event.Event) Outcome {
	if err := ev.Validate(); err != nil {
		return failed(err)
	}

	current := ev.LoadedFrom
	if current == "" {
		target := event.DerivePath(ev).Under(b.root)
		if err := b.ensureDir(ctx, path.Dir(target)); err != nil {
			return failed(fmt.Errorf("could not create directory for new event: %w", err))
		}
		if err := b.store.Create(ctx, target, nil); err != nil {
			if errors.Is(err, vault.ErrExists) {
				return failed(fmt.Errorf("%w: %s", ErrDuplicate, target))
			}
			return failed(fmt.Errorf("could not create new event file: %w", err))
		}
		appLog.Info("event created", "path", target)
		ev.LoadedFrom = target
		current = target
	} else if !event.IsEventPath(b.root, current) {
		return failed(fmt.Errorf("%w: %s is not an event note", ErrNoID, current))
	} else if ok, err := b.store.Exists(ctx, current); err != nil {
		return failed(err)
	} else if !ok {
		return failed(fmt.Errorf("%w: %s", ErrMissingFile, current))
	}

	err := b.store.ProcessMetadata(ctx, current, ev.Foist)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrMissingFile, current)
		}
		return Outcome{ID: current, Failed: err}
	}
	out := b.relocate(ctx, ev, current)
	b.show(ev)
	return out
}

// show puts a just-saved event in the widget without waiting for the
// storage notification.
func (b *Bridge) show(ev *event.Event) {
	d, err := ev.ToDisplay(b.styles)
	if err != nil {
		appLog.Error("saved event not shown", err, "path", ev.LoadedFrom)
		return
	}
	b.mu.Lock()
	b.upsert(d)
	b.mu.Unlock()
}

// Open loads the event at p for editing, valid or not.
func (b *Bridge) Open(ctx context.Context, p string) (*event.Event, error) {
	md, err := b.store.ReadMetadata(ctx, p)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, p)
		}
		return nil, err
	}
	ev := event.FromStorage(md)
	ev.LoadedFrom = p
	return ev, nil
}

func (b *Bridge) ensureDir(ctx context.Context, dir string) error {
	if err := b.store.EnsureDir(ctx, dir); err != nil && !errors.Is(err, vault.ErrExists) {
		return err
	}
	return nil
}

// relocate moves a saved event to the path its date and title call for.
// A failed move is not undone: the content is already saved.
func (b *Bridge) relocate(ctx context.Context, ev *event.Event, current string) Outcome {
	target := event.DerivePath(ev).Under(b.root)
	if target == current {
		return Outcome{ID: current}
	}

	warn := func(err error) Outcome {
		err = fmt.Errorf("could not move event file to %s: %w; it may be missed when loading by date", target, err)
		appLog.Error("event saved but not moved", err, "path", current)
		return Outcome{ID: current, Warning: err}
	}
	if err := b.ensureDir(ctx, path.Dir(target)); err != nil {
		return warn(err)
	}
	if err := b.store.Rename(ctx, current, target); err != nil {
		return warn(err)
	}

	ev.LoadedFrom = target
	b.mu.Lock()
	b.widget.SetID(current, target)
	b.mu.Unlock()
	appLog.Info("event moved", "from", current, "to", target)
	return Outcome{ID: target, Moved: true}
}

// Refresh loads the window start to end and brings the widget in line with
// it: loaded events are added or updated, and widget events in the window
// that were not loaded are removed (when the widget can list its events).
func (b *Bridge) Refresh(ctx context.Context, start, end time.Time) []model.DisplayEvent {
	events := b.loader.Load(ctx, start, end)
	displays := make([]model.DisplayEvent, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		d, err := ev.ToDisplay(b.styles)
		if err != nil {
			appLog.Error("refresh: event not shown", err, "path", ev.LoadedFrom)
			continue
		}
		displays = append(displays, d)
		seen[d.ID] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range displays {
		b.upsert(d)
	}
	if l, ok := b.widget.(Lister); ok {
		for _, d := range l.Events() {
			if !seen[d.ID] && d.Start.Before(end) && !d.End.Before(start) {
				b.widget.RemoveEvent(d.ID)
			}
		}
	}
	return displays
}
