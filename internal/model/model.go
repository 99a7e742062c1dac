package model

import (
	"time"

	"horizoncal/internal/frontmatter"
)

// DisplayEvent is the shape the calendar widget holds for one event.
// ID is the vault-relative path of the event's note.
type DisplayEvent struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Color      string    `json:"color,omitempty"`
	ClassNames []string  `json:"classNames,omitempty"`
}

// ChangeKind classifies a storage notification.
type ChangeKind int

const (
	// ChangeContent: a file's contents or metadata changed (or it appeared).
	ChangeContent ChangeKind = iota + 1
	// ChangeRenamed: a file moved from OldPath to Path.
	ChangeRenamed
	// ChangeDeleted: Path no longer exists.
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeContent:
		return "content"
	case ChangeRenamed:
		return "renamed"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// Change is one notification from the storage layer.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string // ChangeRenamed only

	// Meta is the freshly parsed frontmatter for ChangeContent; it may be nil
	// when the file has none.
	Meta *frontmatter.Map
}
