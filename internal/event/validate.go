package event

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"horizoncal/internal/control"
)

// CategoryTagPrefix marks a category when stored in frontmatter.
const CategoryTagPrefix = "#evt/"

const clockLayout = "15:04"

var (
	dateShape = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeShape = regexp.MustCompile(`^\d{2}:\d{2}$`)

	errEmptyTitle = errors.New("title must not be empty")
)

// ValidateTitle trims the title and rejects a blank one.
func ValidateTitle(s string) control.Result[string, string] {
	t := strings.TrimSpace(s)
	if t == "" {
		return control.Result[string, string]{Err: errEmptyTitle}
	}
	return control.Result[string, string]{Structured: t, HasStructured: true, Simplified: t, HasSimplified: true}
}

// ValidateDate accepts YYYY-MM-DD naming a real calendar day. The structured
// value is midnight UTC of that day; only its year, month and day are used.
func ValidateDate(s string) control.Result[string, time.Time] {
	t := strings.TrimSpace(s)
	if !dateShape.MatchString(t) {
		return control.Result[string, time.Time]{Err: fmt.Errorf("%q is not a date in YYYY-MM-DD form", s)}
	}
	d, err := time.ParseInLocation(time.DateOnly, t, time.UTC)
	if err != nil {
		return control.Result[string, time.Time]{Err: fmt.Errorf("%q is not a calendar date", s)}
	}
	return control.Result[string, time.Time]{
		Structured: d, HasStructured: true,
		Simplified: d.Format(time.DateOnly), HasSimplified: true,
	}
}

// ValidateTime accepts 24-hour HH:MM. The structured value is the offset from
// midnight.
func ValidateTime(s string) control.Result[string, time.Duration] {
	t := strings.TrimSpace(s)
	if !timeShape.MatchString(t) {
		return control.Result[string, time.Duration]{Err: fmt.Errorf("%q is not a time in HH:MM form", s)}
	}
	c, err := time.Parse(clockLayout, t)
	if err != nil {
		return control.Result[string, time.Duration]{Err: fmt.Errorf("%q is not a time of day", s)}
	}
	d := time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute
	return control.Result[string, time.Duration]{
		Structured: d, HasStructured: true,
		Simplified: c.Format(clockLayout), HasSimplified: true,
	}
}

// ValidateZone accepts an IANA zone identifier. "Local" is refused because it
// names whatever zone the process happens to run in.
func ValidateZone(s string) control.Result[string, *time.Location] {
	name := strings.TrimSpace(s)
	if name == "" || name == "Local" {
		return control.Result[string, *time.Location]{Err: fmt.Errorf("%q is not a known time zone identifier", s)}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return control.Result[string, *time.Location]{Err: fmt.Errorf("%q is not a known time zone identifier", s)}
	}
	return control.Result[string, *time.Location]{
		Structured: loc, HasStructured: true,
		Simplified: name, HasSimplified: true,
	}
}

// ValidateZoneDefaultLocal is ValidateZone with blank input replaced by the
// host zone name.
func ValidateZoneDefaultLocal(s string) control.Result[string, *time.Location] {
	if strings.TrimSpace(s) == "" {
		return ValidateZone(LocalZoneName())
	}
	return ValidateZone(s)
}

// ValidateCategories normalises category tags: the "#evt/" prefix is stripped,
// names are trimmed and lowercased, one-character names dropped, duplicates
// removed and the rest sorted. The primitive form keeps the prefix; the
// structured form is the bare names.
func ValidateCategories(in []string) control.Result[[]string, []string] {
	seen := make(map[string]bool, len(in))
	names := make([]string, 0, len(in))
	for _, raw := range in {
		n := strings.TrimSpace(raw)
		n = strings.TrimPrefix(n, CategoryTagPrefix)
		n = strings.ToLower(strings.TrimSpace(n))
		if utf8.RuneCountInString(n) <= 1 || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	sort.Strings(names)
	tags := make([]string, len(names))
	for i, n := range names {
		tags[i] = CategoryTagPrefix + n
	}
	return control.Result[[]string, []string]{
		Structured: names, HasStructured: true,
		Simplified: tags, HasSimplified: true,
	}
}
