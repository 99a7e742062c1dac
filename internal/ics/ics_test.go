package ics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizoncal/internal/bridge"
	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	"horizoncal/internal/vault"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:one@test
DTSTAMP:20240301T000000Z
DTSTART;TZID=America/New_York:20240310T103000
DTEND;TZID=America/New_York:20240310T110000
SUMMARY:Standup
CATEGORIES:work,travel
END:VEVENT
BEGIN:VEVENT
UID:two@test
DTSTAMP:20240301T000000Z
DTSTART:20240311T150000Z
DTEND:20240311T160000Z
SUMMARY:Call
END:VEVENT
BEGIN:VEVENT
UID:three@test
DTSTAMP:20240301T000000Z
DTSTART;VALUE=DATE:20240312
DTEND;VALUE=DATE:20240313
SUMMARY:Offsite
END:VEVENT
BEGIN:VEVENT
UID:rec@test
DTSTAMP:20240301T000000Z
DTSTART:20240310T090000Z
RRULE:FREQ=DAILY
SUMMARY:Daily
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func prim(t *testing.T, e *event.Event) map[string]string {
	t.Helper()
	get := func(c interface{ Primitive() (string, error) }) string {
		v, err := c.Primitive()
		require.NoError(t, err)
		return v
	}
	return map[string]string{
		event.KeyTitle:   get(e.Title),
		event.KeyDate:    get(e.StartDate),
		event.KeyTime:    get(e.StartTime),
		event.KeyZone:    get(e.TimeZone),
		event.KeyEndDate: get(e.EndDate),
		event.KeyEndTime: get(e.EndTime),
	}
}

func TestParseICS(t *testing.T) {
	require.NoError(t, event.SetLocalZone("Europe/Berlin"))
	t.Cleanup(func() { _ = event.SetLocalZone("UTC") })

	parsed, err := ParseICS(crlf(feed))
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "one@test", parsed[0].UID)
	require.NoError(t, parsed[0].Event.Validate())
	assert.Equal(t, map[string]string{
		event.KeyTitle: "Standup", event.KeyDate: "2024-03-10", event.KeyTime: "10:30",
		event.KeyZone: "America/New_York", event.KeyEndDate: "2024-03-10", event.KeyEndTime: "11:00",
	}, prim(t, parsed[0].Event))
	cats, ok := parsed[0].Event.Categories.StructuredOK()
	require.True(t, ok)
	assert.Equal(t, []string{"travel", "work"}, cats)

	assert.Equal(t, "UTC", prim(t, parsed[1].Event)[event.KeyZone])
	assert.Equal(t, "15:00", prim(t, parsed[1].Event)[event.KeyTime])

	offsite := parsed[2]
	assert.True(t, offsite.AllDay)
	require.NoError(t, offsite.Event.Validate())
	assert.Equal(t, map[string]string{
		event.KeyTitle: "Offsite", event.KeyDate: "2024-03-12", event.KeyTime: "",
		event.KeyZone: "Europe/Berlin", event.KeyEndDate: "2024-03-13", event.KeyEndTime: "",
	}, prim(t, offsite.Event))
}

func TestParseICSRejectsGarbage(t *testing.T) {
	_, err := ParseICS(nil)
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	e := event.FromStorage(frontmatter.FromPairs(
		event.KeyTitle, "Standup",
		event.KeyCategories, []string{"#evt/work"},
		event.KeyDate, "2024-03-10",
		event.KeyTime, "10:30",
		event.KeyZone, "America/New_York",
		event.KeyEndTime, "11:00",
	))
	e.LoadedFrom = "cal/2024/03/10/evt-2024-03-10--Standup.md"
	utc := event.FromStorage(frontmatter.FromPairs(
		event.KeyTitle, "Call", event.KeyDate, "2024-03-11", event.KeyTime, "15:00", event.KeyZone, "UTC",
	))
	utc.LoadedFrom = "cal/2024/03/11/evt-2024-03-11--Call.md"
	offsite := event.FromStorage(frontmatter.FromPairs(
		event.KeyTitle, "Offsite", event.KeyDate, "2024-03-12", event.KeyZone, "Europe/Berlin",
	))
	offsite.LoadedFrom = "cal/2024/03/12/evt-2024-03-12--Offsite.md"
	unsaved := event.FromStorage(frontmatter.FromPairs(event.KeyTitle, "x y", event.KeyDate, "2024-03-10", event.KeyZone, "UTC"))
	invalid := event.FromStorage(frontmatter.FromPairs(event.KeyTitle, "x y", event.KeyDate, "nope"))
	invalid.LoadedFrom = "cal/bad.md"

	out := Export([]*event.Event{e, utc, offsite, unsaved, invalid}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.Contains(t, out, "DTSTART;TZID=America/New_York:20240310T103000")
	assert.Contains(t, out, "DTEND;TZID=America/New_York:20240310T110000")
	assert.Contains(t, out, "DTSTART:20240311T150000Z")
	assert.Contains(t, out, "SUMMARY:Standup")
	assert.Contains(t, out, "CATEGORIES:work")
	assert.Contains(t, out, "UID:"+UIDFor(e.LoadedFrom))
	assert.Equal(t, 3, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240312")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240313")

	back, err := ParseICS([]byte(out))
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.True(t, back[2].AllDay)
	assert.Equal(t, "2024-03-13", prim(t, back[2].Event)[event.KeyEndDate])
	assert.Equal(t, "10:30", prim(t, back[0].Event)[event.KeyTime])
	assert.Equal(t, "America/New_York", prim(t, back[0].Event)[event.KeyZone])
}

func TestUIDForIsStable(t *testing.T) {
	assert.Equal(t, UIDFor("a.md"), UIDFor("a.md"))
	assert.NotEqual(t, UIDFor("a.md"), UIDFor("b.md"))
	assert.True(t, strings.HasSuffix(UIDFor("a.md"), "@horizoncal"))
}

func TestImport(t *testing.T) {
	v, err := vault.NewFS(t.TempDir())
	require.NoError(t, err)
	b := bridge.New(v, "cal", bridge.NewCalendar(), nil)
	ctx := context.Background()

	report, err := Import(ctx, b, crlf(feed))
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Contains(t, report.Created, "cal/2024/03/10/evt-2024-03-10--Standup.md")
	assert.Contains(t, report.Created, "cal/2024/03/11/evt-2024-03-11--Call.md")
	assert.Len(t, report.Created, 3)

	again, err := Import(ctx, b, crlf(feed))
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	require.Len(t, again.Failed, 3)
	assert.ErrorIs(t, again.Failed["one@test"], bridge.ErrDuplicate)
}
