package event

import (
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Event notes are named evt-YYYY-MM-DD--<slug>.md.
const (
	FilePrefix    = "evt-"
	FileExt       = ".md"
	slugSeparator = "--"
)

var (
	epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

	nonSlug    = regexp.MustCompile(`[^a-zA-Z0-9 -]`)
	whitespace = regexp.MustCompile(`\s+`)
	dashes     = regexp.MustCompile(`-+`)
)

// Path is where an event's note belongs, relative to the event root.
type Path struct {
	Dir      string // YYYY/MM/DD
	BaseName string // evt-YYYY-MM-DD
	Slug     string
}

// FileName is the note's base name with extension.
func (p Path) FileName() string {
	return p.BaseName + slugSeparator + p.Slug + FileExt
}

// WholePath is Dir and FileName joined, relative to the event root.
func (p Path) WholePath() string {
	return p.Dir + "/" + p.FileName()
}

// Under joins the path onto the event root.
func (p Path) Under(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return p.WholePath()
	}
	return root + "/" + p.WholePath()
}

// DerivePath computes the canonical path from the start date and title.
// It never fails; an unusable date falls back to 1970-01-01.
func DerivePath(e *Event) Path {
	day, ok := e.StartDate.StructuredOK()
	if !ok {
		day = epoch
	}
	title, _ := e.Title.Primitive()
	return PathFor(day, title)
}

// PathFor is DerivePath on plain values.
func PathFor(day time.Time, title string) Path {
	return Path{
		Dir:      day.Format("2006/01/02"),
		BaseName: FilePrefix + day.Format(time.DateOnly),
		Slug:     Slugify(title),
	}
}

// DayDir is the directory holding the notes of one calendar day.
func DayDir(root string, day time.Time) string {
	return path.Join(root, day.Format("2006/01/02"))
}

// Slugify turns a title into a file-name fragment: accents are stripped,
// characters other than ASCII letters, digits, spaces and hyphens dropped,
// whitespace runs become a hyphen and repeated hyphens collapse. Case is
// preserved.
func Slugify(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}
	s = strings.TrimSpace(s)
	s = nonSlug.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	return dashes.ReplaceAllString(s, "-")
}

// IsEventFileName reports whether a base name follows the event naming scheme.
func IsEventFileName(name string) bool {
	return strings.HasPrefix(name, FilePrefix) && strings.HasSuffix(name, FileExt)
}

// IsEventPath reports whether p names an event note under root.
func IsEventPath(root, p string) bool {
	root = strings.Trim(root, "/")
	if root != "" && !strings.HasPrefix(p, root+"/") {
		return false
	}
	return IsEventFileName(path.Base(p))
}
