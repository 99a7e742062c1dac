package loading

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizoncal/internal/vault"
)

func writeNote(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.NewFS(dir)
	require.NoError(t, err)
	return NewLoader(v, "cal"), dir
}

func paths(l *Loader, start, end time.Time) []string {
	var out []string
	for _, ev := range l.Load(context.Background(), start, end) {
		out = append(out, ev.LoadedFrom)
	}
	return out
}

func TestDayDirs(t *testing.T) {
	from := time.Date(2024, 2, 28, 22, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"cal/2024/02/28", "cal/2024/02/29", "cal/2024/03/01"}, DayDirs("cal", from, to))
}

func TestMarginsCatchZoneShiftedEvents(t *testing.T) {
	l, dir := newLoader(t)
	// 07:00 in Tokyo on the 11th is 22:00 UTC on the 10th
	writeNote(t, dir, "cal/2024/03/11/evt-2024-03-11--Early.md",
		"---\ntitle: Early\nevtDate: 2024-03-11\nevtTime: \"07:00\"\nevtTZ: Asia/Tokyo\n---\n")

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, []string{"cal/2024/03/11/evt-2024-03-11--Early.md"}, paths(l, start, end))

	l.PostMarginDays = 0
	assert.Empty(t, paths(l, start, end))
}

func TestPreMarginCatchesEventsFiledTheDayBefore(t *testing.T) {
	l, dir := newLoader(t)
	// Lagos is an hour ahead of UTC; 23:30 there on the 9th runs into the
	// 10th in UTC.
	writeNote(t, dir, "cal/2024/03/09/evt-2024-03-09--Late.md",
		"---\ntitle: Late\nevtDate: 2024-03-09\nevtTime: \"23:30\"\nevtTZ: Africa/Lagos\nendDate: 2024-03-10\nendTime: \"01:30\"\n---\n")
	// 23:30 UTC on the 9th is 00:30 on the 10th in Paris
	writeNote(t, dir, "cal/2024/03/09/evt-2024-03-09--Night.md",
		"---\ntitle: Night\nevtDate: 2024-03-09\nevtTime: \"23:30\"\nevtTZ: UTC\n---\n")

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.Contains(t, paths(l, start, end), "cal/2024/03/09/evt-2024-03-09--Late.md")

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	pStart := time.Date(2024, 3, 10, 0, 0, 0, 0, paris)
	pEnd := time.Date(2024, 3, 10, 23, 59, 0, 0, paris)
	assert.Contains(t, paths(l, pStart, pEnd), "cal/2024/03/09/evt-2024-03-09--Night.md")

	l.PreMarginDays = 0
	assert.Empty(t, paths(l, start, end))
	assert.Empty(t, paths(l, pStart, pEnd))
}

func TestDayDirsUseTheCallersCalendarDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	// 01:00 on the 1st in Tokyo is still Feb 29 in UTC
	from := time.Date(2024, 3, 1, 1, 0, 0, 0, tokyo)
	assert.Equal(t, []string{"cal/2024/03/01"}, DayDirs("cal", from, from))
}

func TestLoadSkipsWhatItCannotUse(t *testing.T) {
	l, dir := newLoader(t)
	writeNote(t, dir, "cal/2024/03/10/evt-2024-03-10--Good.md",
		"---\ntitle: Good\nevtDate: 2024-03-10\nevtTZ: UTC\n---\n")
	writeNote(t, dir, "cal/2024/03/10/evt-2024-03-10--Bad.md",
		"---\ntitle: Bad\nevtDate: 2024-03-10\nevtTime: \"25:00\"\nevtTZ: UTC\n---\n")
	writeNote(t, dir, "cal/2024/03/10/evt-2024-03-10--NoDate.md",
		"---\ntitle: NoDate\n---\n")
	writeNote(t, dir, "cal/2024/03/10/evt-2024-03-10--Broken.md",
		"---\ntitle: [unclosed\n---\n")
	writeNote(t, dir, "cal/2024/03/10/meeting-notes.md",
		"---\ntitle: Notes\nevtDate: 2024-03-10\n---\n")

	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"cal/2024/03/10/evt-2024-03-10--Good.md"}, paths(l, day, day))
}

func TestLoadWithNothingStored(t *testing.T) {
	l, _ := newLoader(t)
	got := l.Load(context.Background(), time.Now(), time.Now().Add(48*time.Hour))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScanReportsProblems(t *testing.T) {
	l, dir := newLoader(t)
	writeNote(t, dir, "cal/2024/03/10/evt-2024-03-10--Good.md",
		"---\ntitle: Good\nevtDate: 2024-03-10\nevtTZ: UTC\n---\n")
	writeNote(t, dir, "cal/2031/01/01/evt-2031-01-01--Bad.md",
		"---\ntitle: \"\"\nevtDate: 2031-02-30\nevtTZ: UTC\n---\n")

	events, problems, err := l.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "cal/2024/03/10/evt-2024-03-10--Good.md", events[0].LoadedFrom)
	require.Len(t, problems, 1)
	assert.Equal(t, "cal/2031/01/01/evt-2031-01-01--Bad.md", problems[0].Path)
	assert.Contains(t, problems[0].Err.Error(), "multiple validation errors")
}
