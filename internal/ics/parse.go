package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	appLog "horizoncal/internal/log"
)

// ErrRecurring marks a VEVENT skipped because it repeats.
var ErrRecurring = errors.New("recurring events are not imported")

// ParsedEvent is one VEVENT turned into an unsaved event.
type ParsedEvent struct {
	UID    string
	AllDay bool
	Event  *event.Event
}

// ParseICS reads every VEVENT of an ICS payload. VEVENTs that cannot be
// used are logged and skipped; the rest come back in file order.
//
//   - Times keep the zone named by TZID when it is a known IANA zone.
//   - All-day events (VALUE=DATE or no time part) get no start or end time.
//   - Recurring events (RRULE) are skipped.
func ParseICS(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", ev.UID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
		return out, ErrRecurring
	}

	title := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		title = strings.TrimSpace(p.Value)
	}
	if title == "" {
		title = event.DefaultTitle
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd)
	startZone := zoneFor(dtStart)
	endZone := startZone
	if dtEnd != nil {
		endZone = zoneFor(dtEnd)
	}

	out.AllDay = isDateOnly(dtStart)
	var start, end time.Time
	var err error
	if out.AllDay {
		if start, err = parseDate(dtStart.Value); err != nil {
			return out, fmt.Errorf("DTSTART: %w", err)
		}
		end = start
		if dtEnd != nil {
			if e, err := parseDate(dtEnd.Value); err == nil {
				end = e
			}
		}
	} else {
		if start, err = wallTime(dtStart, startZone, ve.GetStartAt); err != nil {
			return out, fmt.Errorf("DTSTART: %w", err)
		}
		end = start
		if dtEnd != nil {
			if e, err := wallTime(dtEnd, endZone, ve.GetEndAt); err == nil {
				end = e
			}
		}
	}

	md := frontmatter.New()
	var setErr error
	set := func(k string, v any) {
		if setErr == nil {
			setErr = md.Set(k, v)
		}
	}
	set(event.KeyTitle, title)
	if cats := categories(ve); len(cats) > 0 {
		set(event.KeyCategories, cats)
	}

	if out.AllDay {
		// wall dates as written; DTEND is the exclusive next day
		set(event.KeyDate, start.Format(time.DateOnly))
		set(event.KeyZone, event.LocalZoneName())
		if end.After(start) {
			set(event.KeyEndDate, end.Format(time.DateOnly))
		}
	} else {
		s := startZone.at(start)
		e := endZone.at(end)
		set(event.KeyDate, s.Format(time.DateOnly))
		set(event.KeyTime, s.Format("15:04"))
		set(event.KeyZone, startZone.name)
		set(event.KeyEndDate, e.Format(time.DateOnly))
		set(event.KeyEndTime, e.Format("15:04"))
		if endZone.name != startZone.name {
			set(event.KeyEndZone, endZone.name)
		}
	}
	if setErr != nil {
		return out, setErr
	}

	out.Event = event.FromStorage(md)
	return out, nil
}

type zone struct {
	name string
	loc  *time.Location
	// floating times carry no zone; their wall clock is kept as written.
	floating bool
}

func (z zone) at(t time.Time) time.Time {
	if z.floating {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, z.loc)
	}
	return t.In(z.loc)
}

// zoneFor picks the zone a property's time should be stored in: its TZID
// when that names an IANA zone, UTC for UTC times, otherwise the host zone.
func zoneFor(p *ical.IANAProperty) zone {
	if params := p.ICalParameters; params != nil {
		if tzs, ok := params[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
			if loc, err := time.LoadLocation(tzs[0]); err == nil && tzs[0] != "" && tzs[0] != "Local" {
				return zone{name: tzs[0], loc: loc}
			}
		}
	}
	if strings.HasSuffix(p.Value, "Z") {
		return zone{name: "UTC", loc: time.UTC}
	}
	name := event.LocalZoneName()
	loc, err := time.LoadLocation(name)
	if err != nil {
		return zone{name: "UTC", loc: time.UTC, floating: true}
	}
	return zone{name: name, loc: loc, floating: true}
}

func isDateOnly(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// wallTime reads a DATE-TIME value in z, or as UTC when it ends in Z. Other
// forms go through the library's parser.
func wallTime(p *ical.IANAProperty, z zone, fallback func() (time.Time, error)) (time.Time, error) {
	if t, err := time.Parse("20060102T150405Z", p.Value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("20060102T150405", p.Value, z.loc); err == nil {
		return t, nil
	}
	return fallback()
}

// parseDate reads the YYYYMMDD head of a DATE or DATE-TIME value.
func parseDate(v string) (time.Time, error) {
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("%q is not a date", v)
	}
	return time.Parse("20060102", v[:8])
}

func categories(ve *ical.VEvent) []string {
	var out []string
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
