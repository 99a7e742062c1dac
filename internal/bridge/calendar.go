package bridge

import (
	"sort"
	"sync"
	"time"

	"horizoncal/internal/model"
)

// Widget property names understood by SetProp.
const (
	PropTitle      = "title"
	PropColor      = "color"
	PropClassNames = "classNames"
)

// Widget is the calendar widget's event model, keyed by event ID.
type Widget interface {
	AddEvent(ev model.DisplayEvent)
	EventByID(id string) (model.DisplayEvent, bool)
	SetID(oldID, newID string) bool
	SetProp(id, name string, value any)
	SetStart(id string, t time.Time)
	SetEnd(id string, t time.Time)
	RemoveEvent(id string)
}

// Lister is implemented by widgets that can enumerate their events.
type Lister interface {
	Events() []model.DisplayEvent
}

// Calendar is an in-memory Widget. Every mutation bumps Version so clients
// can poll for changes.
type Calendar struct {
	mu      sync.RWMutex
	events  map[string]model.DisplayEvent
	version uint64
}

// NewCalendar returns an empty calendar.
func NewCalendar() *Calendar {
	return &Calendar{events: make(map[string]model.DisplayEvent)}
}

// AddEvent adds ev, replacing any event with the same ID.
func (c *Calendar) AddEvent(ev model.DisplayEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev.ClassNames = append([]string(nil), ev.ClassNames...)
	c.events[ev.ID] = ev
	c.version++
}

// EventByID returns the event keyed id.
func (c *Calendar) EventByID(id string) (model.DisplayEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[id]
	return ev, ok
}

// SetID rekeys an event. It reports false when oldID is unknown.
func (c *Calendar) SetID(oldID, newID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[oldID]
	if !ok {
		return false
	}
	if oldID == newID {
		return true
	}
	delete(c.events, oldID)
	ev.ID = newID
	c.events[newID] = ev
	c.version++
	return true
}

// SetProp sets a display property; unknown names and mistyped values are
// ignored.
func (c *Calendar) SetProp(id, name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[id]
	if !ok {
		return
	}
	switch name {
	case PropTitle:
		s, ok := value.(string)
		if !ok {
			return
		}
		ev.Title = s
	case PropColor:
		s, ok := value.(string)
		if !ok {
			return
		}
		ev.Color = s
	case PropClassNames:
		cls, ok := value.([]string)
		if !ok {
			return
		}
		ev.ClassNames = append([]string(nil), cls...)
	default:
		return
	}
	c.events[id] = ev
	c.version++
}

// SetStart moves the start of event id.
func (c *Calendar) SetStart(id string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := c.events[id]; ok {
		ev.Start = t
		c.events[id] = ev
		c.version++
	}
}

// SetEnd moves the end of event id.
func (c *Calendar) SetEnd(id string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := c.events[id]; ok {
		ev.End = t
		c.events[id] = ev
		c.version++
	}
}

// RemoveEvent drops event id if present.
func (c *Calendar) RemoveEvent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[id]; ok {
		delete(c.events, id)
		c.version++
	}
}

// Events returns every event ordered by start, then ID.
func (c *Calendar) Events() []model.DisplayEvent {
	c.mu.RLock()
	out := make([]model.DisplayEvent, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Version counts mutations since creation.
func (c *Calendar) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
