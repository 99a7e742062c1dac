package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"horizoncal/internal/event"
)

const (
	ProductID = "-//horizoncal//EN"
	uidDomain = "@horizoncal"
	localTime = "20060102T150405"
)

// UIDFor derives a stable UID from an event's path, so repeated exports of
// the same note keep the same identity.
func UIDFor(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("horizoncal:"+path)).String() + uidDomain
}

// Export renders valid, persisted events as an iCalendar feed. Times are
// written in each event's own zone with a TZID. Events that fail validation
// are left out.
func Export(events []*event.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	for _, e := range events {
		if e.LoadedFrom == "" || e.Validate() != nil {
			continue
		}
		start, err := e.StartInstant()
		if err != nil {
			continue
		}
		end, err := e.EndInstant()
		if err != nil {
			continue
		}
		title, _ := e.Title.Primitive()

		ve := cal.AddEvent(UIDFor(e.LoadedFrom))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(title)
		if allDay(e) {
			// DTEND of a DATE event is exclusive
			if !end.After(start) {
				end = start.AddDate(0, 0, 1)
			}
			setDate(ve, ical.ComponentPropertyDtStart, start)
			setDate(ve, ical.ComponentPropertyDtEnd, end)
		} else {
			setZoned(ve, ical.ComponentPropertyDtStart, start)
			setZoned(ve, ical.ComponentPropertyDtEnd, end)
		}
		if cats, ok := e.Categories.StructuredOK(); ok && len(cats) > 0 {
			ve.SetProperty(ical.ComponentPropertyCategories, strings.Join(cats, ","))
		}
	}
	return cal.Serialize()
}

func allDay(e *event.Event) bool {
	st, _ := e.StartTime.Primitive()
	et, _ := e.EndTime.Primitive()
	return st == "" && et == ""
}

func setDate(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	ve.SetProperty(prop, t.Format("20060102"), &ical.KeyValues{Key: "VALUE", Value: []string{"DATE"}})
}

func setZoned(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	name := t.Location().String()
	if name == "UTC" {
		ve.SetProperty(prop, t.UTC().Format(localTime+"Z"))
		return
	}
	ve.SetProperty(prop, t.Format(localTime), &ical.KeyValues{
		Key:   string(ical.ParameterTzid),
		Value: []string{name},
	})
}
