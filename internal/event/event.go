// Package event is the in-memory form of one calendar event stored as a note's
// frontmatter: eight validated fields plus the path it was loaded from.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"horizoncal/internal/control"
	"horizoncal/internal/frontmatter"
)

// Frontmatter keys, in the order they are written.
const (
	KeyTitle      = "title"
	KeyCategories = "evtCat"
	KeyDate       = "evtDate"
	KeyTime       = "evtTime"
	KeyZone       = "evtTZ"
	KeyEndDate    = "endDate"
	KeyEndTime    = "endTime"
	KeyEndZone    = "endTZ"
)

// DefaultTitle is used for events created by selecting a time range.
const DefaultTitle = "untitled"

var ErrNotPersisted = errors.New("event has no storage location")

// Event is one calendar event. Every field is a Control, so invalid input is
// kept and reported rather than dropped.
type Event struct {
	Title       *control.Control[string, string]
	Categories  *control.Control[[]string, []string]
	StartDate   *control.Control[string, time.Time]
	StartTime   *control.Control[string, time.Duration]
	TimeZone    *control.Control[string, *time.Location]
	EndDate     *control.Control[string, time.Time]
	EndTime     *control.Control[string, time.Duration]
	EndTimeZone *control.Control[string, *time.Location]

	// LoadedFrom is the vault path of the note; empty until first saved.
	LoadedFrom string
}

// New returns an Event with every field uninitialized.
func New() *Event {
	return &Event{
		Title:       control.New(KeyTitle, ValidateTitle, control.ToString),
		Categories:  control.New(KeyCategories, ValidateCategories, control.ToStringList),
		StartDate:   control.New(KeyDate, ValidateDate, control.ToString),
		StartTime:   control.New(KeyTime, control.Optional(ValidateTime), control.ToString),
		TimeZone:    control.New(KeyZone, ValidateZoneDefaultLocal, control.ToString),
		EndDate:     control.New(KeyEndDate, control.Optional(ValidateDate), control.ToString),
		EndTime:     control.New(KeyEndTime, control.Optional(ValidateTime), control.ToString),
		EndTimeZone: control.New(KeyEndZone, control.Optional(ValidateZone), control.ToString),
	}
}

// FromStorage builds an Event from frontmatter. It never fails: problems are
// recorded in the fields and surface through Validate.
func FromStorage(src control.Lookup) *Event {
	e := New()
	e.Title.UpdateFromField(src, KeyTitle)
	e.Categories.UpdateFromField(src, KeyCategories)
	e.StartDate.UpdateFromField(src, KeyDate)
	e.StartTime.UpdateFromField(src, KeyTime)
	e.TimeZone.UpdateFromField(src, KeyZone)
	e.EndDate.UpdateFromField(src, KeyEndDate)
	e.EndTime.UpdateFromField(src, KeyEndTime)
	e.EndTimeZone.UpdateFromField(src, KeyEndZone)
	return e
}

// Merge updates only the fields src carries a key for.
func (e *Event) Merge(src control.Lookup) {
	merge := func(key string, update func(control.Lookup, string) error) {
		if _, ok := src.Lookup(key); ok {
			_ = update(src, key)
		}
	}
	merge(KeyTitle, e.Title.UpdateFromField)
	merge(KeyCategories, e.Categories.UpdateFromField)
	merge(KeyDate, e.StartDate.UpdateFromField)
	merge(KeyTime, e.StartTime.UpdateFromField)
	merge(KeyZone, e.TimeZone.UpdateFromField)
	merge(KeyEndDate, e.EndDate.UpdateFromField)
	merge(KeyEndTime, e.EndTime.UpdateFromField)
	merge(KeyEndZone, e.EndTimeZone.UpdateFromField)
}

// NewFromSelection builds an unsaved event spanning start to end, keeping the
// zones the instants carry.
func NewFromSelection(start, end time.Time) *Event {
	return FromStorage(frontmatter.FromPairs(
		KeyTitle, DefaultTitle,
		KeyDate, start.Format(time.DateOnly),
		KeyTime, start.Format(clockLayout),
		KeyZone, zoneName(start),
		KeyEndDate, end.Format(time.DateOnly),
		KeyEndTime, end.Format(clockLayout),
		KeyEndZone, zoneName(end),
	))
}

// Fields lists the controls in canonical order.
func (e *Event) Fields() []control.Field {
	return []control.Field{
		e.Title,
		e.Categories,
		e.StartDate,
		e.StartTime,
		e.TimeZone,
		e.EndDate,
		e.EndTime,
		e.EndTimeZone,
	}
}

// IsKnownKey reports whether key is one of the event's own frontmatter keys.
func IsKnownKey(key string) bool {
	switch key {
	case KeyTitle, KeyCategories, KeyDate, KeyTime, KeyZone, KeyEndDate, KeyEndTime, KeyEndZone:
		return true
	}
	return false
}

// MultiError holds two or more field errors.
type MultiError []error

func (m MultiError) Error() string {
	var b strings.Builder
	b.WriteString("multiple validation errors:")
	for _, err := range m {
		b.WriteString("\n - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (m MultiError) Unwrap() []error {
	return m
}

// Validate returns nil when every field is valid, the single error when one
// is not, and a MultiError otherwise.
func (e *Event) Validate() error {
	var errs []error
	for _, f := range e.Fields() {
		errs = f.FoldErrors(errs)
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return MultiError(errs)
}

// StartInstant is the start date at the start time (or midnight) in the
// event's zone.
func (e *Event) StartInstant() (time.Time, error) {
	day, err := e.StartDate.Structured()
	if err != nil {
		return time.Time{}, fmt.Errorf("start date: %w", err)
	}
	loc, err := e.TimeZone.Structured()
	if err != nil {
		return time.Time{}, fmt.Errorf("time zone: %w", err)
	}
	clock, _ := e.StartTime.StructuredOK()
	return wallClock(day, clock, loc), nil
}

// EndInstant uses the end fields, each falling back to its start counterpart
// (the end time falls back to midnight).
func (e *Event) EndInstant() (time.Time, error) {
	day, ok := e.EndDate.StructuredOK()
	if !ok {
		var err error
		if day, err = e.StartDate.Structured(); err != nil {
			return time.Time{}, fmt.Errorf("start date: %w", err)
		}
	}
	loc, ok := e.EndTimeZone.StructuredOK()
	if !ok {
		var err error
		if loc, err = e.TimeZone.Structured(); err != nil {
			return time.Time{}, fmt.Errorf("time zone: %w", err)
		}
	}
	clock, _ := e.EndTime.StructuredOK()
	return wallClock(day, clock, loc), nil
}

func wallClock(day time.Time, clock time.Duration, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(clock/time.Hour), int(clock%time.Hour/time.Minute), 0, 0, loc)
}

// Reschedule moves the event to the given instants. They are converted into
// the event's own zones first, so the stored wall-clock fields stay in the
// zone the user chose.
func (e *Event) Reschedule(start, end time.Time) error {
	if err := requireZone(e.TimeZone); err != nil {
		return err
	}
	if err := requireZone(e.EndTimeZone); err != nil {
		return err
	}
	loc, _ := e.TimeZone.StructuredOK()
	endLoc := loc
	if l, ok := e.EndTimeZone.StructuredOK(); ok {
		endLoc = l
	}

	s, en := start.In(loc), end.In(endLoc)
	e.StartDate.Update(s.Format(time.DateOnly))
	e.StartTime.Update(s.Format(clockLayout))
	e.EndDate.Update(en.Format(time.DateOnly))
	e.EndTime.Update(en.Format(clockLayout))
	return nil
}

func requireZone(c *control.Control[string, *time.Location]) error {
	valid, err := c.IsValid()
	if err != nil {
		return fmt.Errorf("cannot reattach time zone: %w", err)
	}
	if !valid {
		last, _ := c.LastError()
		return fmt.Errorf("cannot reattach time zone: %s: %w", c.Name(), last)
	}
	return nil
}

// Foist writes the event into dst. Event keys are written first in canonical
// order; other keys follow in their original order. Invalid values are
// written as given so user input is never lost. An endDate equal to evtDate
// is dropped from both dst and the event.
func (e *Event) Foist(dst *frontmatter.Map) error {
	var others []string
	for _, k := range dst.Keys() {
		if !IsKnownKey(k) {
			others = append(others, k)
		}
	}
	saved := dst.Clone()
	dst.Clear()

	if e.endDateRedundant() {
		e.EndDate.Update("")
	}
	for _, f := range e.Fields() {
		v, ok := f.Persisted()
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" && optionalKey(f.Name()) {
			continue
		}
		if err := dst.Set(f.Name(), v); err != nil {
			return err
		}
	}
	for _, k := range others {
		n, _ := saved.Node(k)
		dst.SetNode(k, n)
	}
	return nil
}

func (e *Event) endDateRedundant() bool {
	end, ok := e.EndDate.StructuredOK()
	if !ok {
		return false
	}
	start, ok := e.StartDate.StructuredOK()
	return ok && start.Equal(end)
}

func optionalKey(key string) bool {
	switch key {
	case KeyTime, KeyEndDate, KeyEndTime, KeyEndZone:
		return true
	}
	return false
}
