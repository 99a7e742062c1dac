package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"horizoncal/internal/frontmatter"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/model"
)

// FS is a Store over a directory on disk.
type FS struct {
	root string

	mu        sync.RWMutex
	listeners []func(model.Change)
}

// NewFS opens the vault at dir, which must exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("vault %s: not a directory", dir)
	}
	return &FS{root: abs}, nil
}

// Root is the absolute directory of the vault.
func (v *FS) Root() string {
	return v.root
}

// OnChange registers fn to receive the renames this FS performs itself.
// Edits made by other programs arrive through a Watcher instead.
func (v *FS) OnChange(fn func(model.Change)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

func (v *FS) publish(c model.Change) {
	v.mu.RLock()
	ls := append([]func(model.Change){}, v.listeners...)
	v.mu.RUnlock()
	for _, fn := range ls {
		fn(c)
	}
}

// abs maps a vault path to the OS path. Leading ".." elements are clamped at
// the vault root.
func (v *FS) abs(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("invalid vault path %q", p)
	}
	clean := path.Clean("/" + p)
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

// rel maps an OS path back to a vault path.
func (v *FS) rel(osPath string) (string, bool) {
	r, err := filepath.Rel(v.root, osPath)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func notFound(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return err
}

func (v *FS) readDocument(p string) (*frontmatter.Document, fs.FileMode, error) {
	full, err := v.abs(p)
	if err != nil {
		return nil, 0, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, 0, notFound(p, err)
	}
	if fi.IsDir() {
		return nil, 0, fmt.Errorf("%s: is a directory", p)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, 0, notFound(p, err)
	}
	doc, err := frontmatter.Parse(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", p, err)
	}
	return doc, fi.Mode().Perm(), nil
}

// ReadMetadata returns p's frontmatter; a note without one gives an empty map.
func (v *FS) ReadMetadata(ctx context.Context, p string) (*frontmatter.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, _, err := v.readDocument(p)
	if err != nil {
		return nil, err
	}
	return doc.Meta, nil
}

// ProcessMetadata lets fn edit p's frontmatter and writes the note back
// atomically, body untouched. Nothing is written when fn fails.
func (v *FS) ProcessMetadata(ctx context.Context, p string, fn func(*frontmatter.Map) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, perm, err := v.readDocument(p)
	if err != nil {
		return err
	}
	if err := fn(doc.Meta); err != nil {
		return err
	}
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	full, _ := v.abs(p)
	return writeAtomic(full, data, perm)
}

// writeAtomic writes via a temp file in the same directory and renames it
// over the target.
func writeAtomic(full string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(full)
	tmp, err := os.CreateTemp(dir, ".horizoncal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, full)
}

// Create writes a new note. It fails with ErrExists if p is taken.
func (v *FS) Create(ctx context.Context, p string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := v.abs(p)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", p, ErrExists)
		}
		return notFound(p, err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Rename moves a note. It never overwrites; a taken newPath fails with
// ErrExists.
func (v *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := v.abs(oldPath)
	if err != nil {
		return err
	}
	to, err := v.abs(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("%s: %w", newPath, ErrExists)
	}
	if err := os.Rename(from, to); err != nil {
		return notFound(oldPath, err)
	}
	appLog.Debug("vault rename", "from", oldPath, "to", newPath)
	v.publish(model.Change{Kind: model.ChangeRenamed, Path: newPath, OldPath: oldPath})
	return nil
}

// EnsureDir creates the folder p and its parents.
func (v *FS) EnsureDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := v.abs(p)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(full); err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("%s: %w as a file", p, ErrExists)
		}
		return nil
	}
	return os.MkdirAll(full, 0o755)
}

// List returns every file under dir, sorted. Hidden folders are skipped.
func (v *FS) List(ctx context.Context, dir string) ([]string, error) {
	full, err := v.abs(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != full && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if r, ok := v.rel(p); ok {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, notFound(dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether p is present.
func (v *FS) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := v.abs(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
