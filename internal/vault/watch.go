package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	appLog "horizoncal/internal/log"
	"horizoncal/internal/model"
)

// Watcher turns filesystem events under one vault directory into Changes.
// Only Markdown notes are reported.
type Watcher struct {
	vault *FS
	dir   string
	w     *fsnotify.Watcher
	emit  func(model.Change)
}

// NewWatcher watches dir (vault-relative) and every directory below it.
func NewWatcher(v *FS, dir string, emit func(model.Change)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	wt := &Watcher{vault: v, dir: dir, w: w, emit: emit}
	full, err := v.abs(dir)
	if err != nil {
		w.Close()
		return nil, err
	}
	if err := wt.addTree(full); err != nil {
		w.Close()
		return nil, err
	}
	return wt, nil
}

func (wt *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return wt.w.Add(p)
	})
}

// Run delivers changes until ctx is done.
func (wt *Watcher) Run(ctx context.Context) error {
	defer wt.w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-wt.w.Events:
			if !ok {
				return nil
			}
			wt.handle(ctx, ev)
		case err, ok := <-wt.w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("watcher error", err, "dir", wt.dir)
		}
	}
}

func (wt *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel, ok := wt.vault.rel(ev.Name)
	if !ok {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		fi, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if fi.IsDir() {
			wt.directoryAppeared(ctx, ev.Name)
			return
		}
		wt.contentChanged(ctx, rel)
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if isNote(rel) {
			wt.emit(model.Change{Kind: model.ChangeDeleted, Path: rel})
		}
	}
}

// directoryAppeared watches a new directory and reports the notes already in
// it, which covers a whole day moved in at once.
func (wt *Watcher) directoryAppeared(ctx context.Context, full string) {
	if err := wt.addTree(full); err != nil {
		appLog.Error("watcher could not add directory", err, "dir", full)
		return
	}
	_ = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := wt.vault.rel(p); ok {
			wt.contentChanged(ctx, rel)
		}
		return nil
	})
}

func (wt *Watcher) contentChanged(ctx context.Context, rel string) {
	if !isNote(rel) {
		return
	}
	md, err := wt.vault.ReadMetadata(ctx, rel)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Error("watcher could not read metadata", err, "path", rel)
		}
		return
	}
	wt.emit(model.Change{Kind: model.ChangeContent, Path: rel, Meta: md})
}

func isNote(p string) bool {
	return strings.HasSuffix(p, ".md")
}
