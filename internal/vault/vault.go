// Package vault is the note storage the calendar lives in: a directory of
// Markdown files addressed by slash-separated, vault-relative paths.
package vault

import (
	"context"
	"errors"

	"horizoncal/internal/frontmatter"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Store is what the calendar needs from note storage.
type Store interface {
	// ReadMetadata returns the parsed frontmatter of a note.
	ReadMetadata(ctx context.Context, path string) (*frontmatter.Map, error)
	// ProcessMetadata lets fn mutate a note's frontmatter in place and writes
	// the result. Nothing is written when fn returns an error.
	ProcessMetadata(ctx context.Context, path string, fn func(*frontmatter.Map) error) error
	// Create makes a new note; ErrExists if path is taken.
	Create(ctx context.Context, path string, body []byte) error
	// Rename moves a note; ErrExists if newPath is taken.
	Rename(ctx context.Context, oldPath, newPath string) error
	// EnsureDir creates a directory and its parents; existing ones are fine.
	EnsureDir(ctx context.Context, path string) error
	// List returns every file under dir, recursively.
	List(ctx context.Context, dir string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
