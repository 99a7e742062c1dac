package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizoncal/internal/event"
	"horizoncal/internal/frontmatter"
	"horizoncal/internal/model"
	"horizoncal/internal/vault"
)

const standupPath = "cal/2024/03/10/evt-2024-03-10--Standup.md"

const standupNote = `---
title: Standup
evtCat:
  - '#evt/work'
evtDate: 2024-03-10
evtTime: "10:30"
evtTZ: America/New_York
endTime: "11:00"
owner: sam
---
Agenda stays here.
`

type fixture struct {
	dir    string
	vault  *vault.FS
	cal    *Calendar
	bridge *Bridge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.NewFS(dir)
	require.NoError(t, err)
	cal := NewCalendar()
	styles := event.Styles{"work": {Color: "#00aa00"}}
	return &fixture{dir: dir, vault: v, cal: cal, bridge: New(v, "cal", cal, styles)}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) meta(t *testing.T, rel string) *frontmatter.Map {
	t.Helper()
	md, err := f.vault.ReadMetadata(context.Background(), rel)
	require.NoError(t, err)
	return md
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.write(t, standupPath, standupNote)
	require.NoError(t, f.bridge.ContentChanged(standupPath, f.meta(t, standupPath)))
}

// snapshot flattens widget events to comparable values.
func snapshot(events []model.DisplayEvent) []model.DisplayEvent {
	out := make([]model.DisplayEvent, len(events))
	for i, d := range events {
		d.Start, d.End = d.Start.UTC(), d.End.UTC()
		out[i] = d
	}
	return out
}

func lookup(md *frontmatter.Map, key string) any {
	v, _ := md.Lookup(key)
	return v
}

func TestRescheduleAcrossDayMovesFile(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 16, 0, 0, 0, time.UTC)
	out := f.bridge.Reschedule(ctx, standupPath, start, end)

	require.True(t, out.OK(), "%v", out.Failed)
	assert.NoError(t, out.Warning)
	assert.True(t, out.Moved)
	newPath := "cal/2024/03/11/evt-2024-03-11--Standup.md"
	assert.Equal(t, newPath, out.ID)

	ok, _ := f.vault.Exists(ctx, standupPath)
	assert.False(t, ok)

	md := f.meta(t, newPath)
	assert.Equal(t, "2024-03-11", lookup(md, event.KeyDate))
	assert.Equal(t, "11:00", lookup(md, event.KeyTime))
	assert.Equal(t, "12:00", lookup(md, event.KeyEndTime))
	assert.Equal(t, "America/New_York", lookup(md, event.KeyZone))
	assert.Equal(t, "sam", lookup(md, "owner"))
	assert.False(t, md.Has(event.KeyEndDate), "endDate equal to evtDate is not written")
	assert.Contains(t, f.read(t, newPath), "Agenda stays here.\n")

	_, stale := f.cal.EventByID(standupPath)
	assert.False(t, stale)
	d, ok := f.cal.EventByID(newPath)
	require.True(t, ok)
	assert.True(t, d.Start.Equal(start))
	assert.True(t, d.End.Equal(end))
}

func TestRescheduleSameDayKeepsPath(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	out := f.bridge.Reschedule(context.Background(), standupPath,
		time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC))
	require.True(t, out.OK())
	assert.False(t, out.Moved)
	assert.Equal(t, standupPath, out.ID)
	assert.Equal(t, "14:00", lookup(f.meta(t, standupPath), event.KeyTime))
}

func TestRescheduleFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	out := f.bridge.Reschedule(ctx, "", now, now)
	assert.ErrorIs(t, out.Failed, ErrNoID)

	out = f.bridge.Reschedule(ctx, "cal/2024/03/10/evt-2024-03-10--Gone.md", now, now)
	assert.ErrorIs(t, out.Failed, ErrMissingFile)

	bad := "---\ntitle: Bad\nevtDate: 2024-03-10\nevtTZ: Mars/Olympus\n---\n"
	p := "cal/2024/03/10/evt-2024-03-10--Bad.md"
	f.write(t, p, bad)
	out = f.bridge.Reschedule(ctx, p, now, now)
	assert.ErrorContains(t, out.Failed, "cannot reattach time zone")
	assert.Equal(t, bad, f.read(t, p), "nothing is written on failure")
}

func TestRescheduleRefusesNonEventNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	diary := "Dear diary, nothing happened.\n"
	f.write(t, "notes/diary.md", diary)
	out := f.bridge.Reschedule(ctx, "notes/diary.md", start, end)
	assert.ErrorIs(t, out.Failed, ErrNoID)
	assert.False(t, out.Moved)
	assert.Equal(t, diary, f.read(t, "notes/diary.md"))

	undated := "---\ntitle: Someday\n---\nNo date yet.\n"
	p := "cal/inbox/evt-2024-03-01--Someday.md"
	f.write(t, p, undated)
	out = f.bridge.Reschedule(ctx, p, start, end)
	assert.ErrorIs(t, out.Failed, ErrNoID)
	assert.Equal(t, undated, f.read(t, p))
	assert.Empty(t, f.cal.Events())
}

func TestRescheduleRefusesInvalidEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	blank := "---\ntitle: \"  \"\nevtDate: 2024-03-10\nevtTZ: UTC\n---\n"
	p := "cal/2024/03/10/evt-2024-03-10--Blank.md"
	f.write(t, p, blank)

	out := f.bridge.Reschedule(ctx, p,
		time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC))
	require.Error(t, out.Failed)
	assert.False(t, out.Moved)
	assert.Equal(t, blank, f.read(t, p), "nothing is written on failure")
	files, err := f.vault.List(ctx, "cal/2024/03/12")
	if err == nil {
		assert.Empty(t, files)
	}
	assert.Empty(t, f.cal.Events())
}

func TestRescheduleMoveFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	blocker := "cal/2024/03/11/evt-2024-03-11--Standup.md"
	f.write(t, blocker, "---\ntitle: someone else\n---\n")

	out := f.bridge.Reschedule(context.Background(), standupPath,
		time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 16, 0, 0, 0, time.UTC))

	require.True(t, out.OK())
	require.Error(t, out.Warning)
	assert.ErrorIs(t, out.Warning, vault.ErrExists)
	assert.False(t, out.Moved)
	assert.Equal(t, standupPath, out.ID)
	// the new time is saved at the old path
	assert.Equal(t, "2024-03-11", lookup(f.meta(t, standupPath), event.KeyDate))
	_, ok := f.cal.EventByID(standupPath)
	assert.True(t, ok)
}

func TestContentChangedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	first := snapshot(f.cal.Events())
	require.Len(t, first, 1)
	assert.Equal(t, "#00aa00", first[0].Color)

	require.NoError(t, f.bridge.ContentChanged(standupPath, f.meta(t, standupPath)))
	assert.Equal(t, first, snapshot(f.cal.Events()))
}

func TestContentChangedIgnoresNonEvents(t *testing.T) {
	f := newFixture(t)
	md := frontmatter.FromPairs(event.KeyTitle, "x y", event.KeyDate, "2024-03-10", event.KeyZone, "UTC")

	require.NoError(t, f.bridge.ContentChanged("cal/2024/03/10/notes.md", md))
	require.NoError(t, f.bridge.ContentChanged("elsewhere/evt-2024-03-10--x.md", md))
	require.NoError(t, f.bridge.ContentChanged("cal/2024/03/10/evt-2024-03-10--x.md", nil))
	require.NoError(t, f.bridge.ContentChanged("cal/2024/03/10/evt-2024-03-10--x.md",
		frontmatter.FromPairs(event.KeyTitle, "no date")))
	assert.Empty(t, f.cal.Events())
}

func TestContentChangedInvalidRemovesEvent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	require.Len(t, f.cal.Events(), 1)

	md := f.meta(t, standupPath)
	require.NoError(t, md.Set(event.KeyTime, "25:99"))
	assert.Error(t, f.bridge.ContentChanged(standupPath, md))
	assert.Empty(t, f.cal.Events())

	f.seed(t)
	require.Len(t, f.cal.Events(), 1)
	md = f.meta(t, standupPath)
	md.Delete(event.KeyDate)
	require.NoError(t, f.bridge.ContentChanged(standupPath, md))
	assert.Empty(t, f.cal.Events())
}

func TestRenameAndDeleteAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	moved := "cal/2024/03/10/evt-2024-03-10--Renamed.md"

	require.NoError(t, f.bridge.Apply(model.Change{Kind: model.ChangeRenamed, OldPath: standupPath, Path: moved}))
	require.NoError(t, f.bridge.Apply(model.Change{Kind: model.ChangeRenamed, OldPath: standupPath, Path: moved}))
	_, ok := f.cal.EventByID(moved)
	assert.True(t, ok)
	assert.Len(t, f.cal.Events(), 1)

	require.NoError(t, f.bridge.Apply(model.Change{Kind: model.ChangeDeleted, Path: moved}))
	require.NoError(t, f.bridge.Apply(model.Change{Kind: model.ChangeDeleted, Path: moved}))
	assert.Empty(t, f.cal.Events())
}

func TestSaveNewEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ev := event.NewFromSelection(time.Date(2024, 3, 12, 9, 0, 0, 0, ny), time.Date(2024, 3, 12, 10, 0, 0, 0, ny))
	require.NoError(t, ev.Title.Update("Team Sync!"))

	out := f.bridge.Save(ctx, ev)
	require.True(t, out.OK(), "%v", out.Failed)
	want := "cal/2024/03/12/evt-2024-03-12--Team-Sync.md"
	assert.Equal(t, want, out.ID)
	assert.Equal(t, want, ev.LoadedFrom)

	md := f.meta(t, want)
	assert.Equal(t, []string{event.KeyTitle, event.KeyCategories, event.KeyDate, event.KeyTime, event.KeyZone, event.KeyEndTime, event.KeyEndZone}, md.Keys())
	_, ok := f.cal.EventByID(want)
	assert.True(t, ok)

	dup := event.NewFromSelection(time.Date(2024, 3, 12, 13, 0, 0, 0, ny), time.Date(2024, 3, 12, 14, 0, 0, 0, ny))
	require.NoError(t, dup.Title.Update("Team Sync!"))
	out = f.bridge.Save(ctx, dup)
	assert.ErrorIs(t, out.Failed, ErrDuplicate)
}

func TestSaveRefusesInvalid(t *testing.T) {
	f := newFixture(t)
	ev := event.FromStorage(frontmatter.FromPairs(event.KeyTitle, "x y", event.KeyDate, "2024-02-30"))
	out := f.bridge.Save(context.Background(), ev)
	require.Error(t, out.Failed)
	files, err := f.vault.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSaveRetitleMovesAndRekeys(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	ev, err := f.bridge.Open(ctx, standupPath)
	require.NoError(t, err)
	require.NoError(t, ev.Title.Update("Daily Standup"))

	out := f.bridge.Save(ctx, ev)
	require.True(t, out.OK())
	moved := "cal/2024/03/10/evt-2024-03-10--Daily-Standup.md"
	assert.Equal(t, moved, out.ID)
	d, ok := f.cal.EventByID(moved)
	require.True(t, ok)
	assert.Equal(t, "Daily Standup", d.Title)
	_, ok = f.cal.EventByID(standupPath)
	assert.False(t, ok)

	_, err = f.bridge.Open(ctx, standupPath)
	assert.ErrorIs(t, err, ErrMissingFile)

	loaded := f.bridge.Loader().Load(ctx,
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	require.Len(t, loaded, 1)
	assert.Equal(t, moved, loaded[0].LoadedFrom)
}

func TestSaveRefusesNonEventNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	note := "---\ntitle: Reading list\nevtDate: 2024-03-10\nevtTZ: UTC\n---\n"
	f.write(t, "notes/reading.md", note)

	ev, err := f.bridge.Open(ctx, "notes/reading.md")
	require.NoError(t, err)
	out := f.bridge.Save(ctx, ev)
	assert.ErrorIs(t, out.Failed, ErrNoID)
	assert.Equal(t, note, f.read(t, "notes/reading.md"))
}

func TestRefreshSyncsWindow(t *testing.T) {
	f := newFixture(t)
	f.write(t, standupPath, standupNote)
	f.cal.AddEvent(model.DisplayEvent{
		ID:    "cal/2024/03/10/evt-2024-03-10--Ghost.md",
		Start: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC),
	})
	f.cal.AddEvent(model.DisplayEvent{
		ID:    "cal/2025/01/01/evt-2025-01-01--Later.md",
		Start: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC),
	})

	got := f.bridge.Refresh(context.Background(),
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	require.Len(t, got, 1)
	assert.Equal(t, standupPath, got[0].ID)

	var ids []string
	for _, d := range f.cal.Events() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{standupPath, "cal/2025/01/01/evt-2025-01-01--Later.md"}, ids)
}
