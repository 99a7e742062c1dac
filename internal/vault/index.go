package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"horizoncal/internal/frontmatter"
	appLog "horizoncal/internal/log"
)

const metaBucket = "meta"

// Index caches parsed frontmatter in a bolt database, keyed by vault path
// and checked against the file's modification time and size.
type Index struct {
	d *bolt.DB
}

type indexEntry struct {
	ModTime int64  `json:"mtime"`
	Size    int64  `json:"size"`
	Meta    string `json:"meta"`
}

// OpenIndex opens or creates the index file at path.
func OpenIndex(path string) (*Index, error) {
	d, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open index %s: %w", path, err)
	}
	err = d.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("unable to create bucket %s: %w", metaBucket, err)
		}
		return nil
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	return &Index{d: d}, nil
}

// Close closes the index file. It is safe on a nil Index.
func (i *Index) Close() error {
	if i == nil || i.d == nil {
		return nil
	}
	return i.d.Close()
}

// Get returns the cached metadata for p if it was stored for the same
// modification time and size.
func (i *Index) Get(p string, mod time.Time, size int64) (*frontmatter.Map, bool) {
	var entry indexEntry
	found := false
	err := i.d.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get([]byte(p))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil || !found {
		return nil, false
	}
	if entry.ModTime != mod.UnixNano() || entry.Size != size {
		return nil, false
	}
	m := frontmatter.New()
	if err := yaml.Unmarshal([]byte(entry.Meta), m); err != nil {
		return nil, false
	}
	return m, true
}

// Put caches m for p at the given modification time and size.
func (i *Index) Put(p string, mod time.Time, size int64, m *frontmatter.Map) error {
	meta, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("could not marshal metadata: %w", err)
	}
	entryBytes, err := json.Marshal(indexEntry{ModTime: mod.UnixNano(), Size: size, Meta: string(meta)})
	if err != nil {
		return fmt.Errorf("could not marshal object: %w", err)
	}
	return i.d.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put([]byte(p), entryBytes)
	})
}

// Drop forgets p.
func (i *Index) Drop(p string) error {
	return i.d.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Delete([]byte(p))
	})
}

// Len is the number of cached entries.
func (i *Index) Len() int {
	n := 0
	_ = i.d.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(metaBucket)).Stats().KeyN
		return nil
	})
	return n
}

// Indexed is an FS whose metadata reads go through an Index.
type Indexed struct {
	*FS
	idx *Index
}

// NewIndexed serves metadata reads of fs from idx when the file is unchanged.
func NewIndexed(fs *FS, idx *Index) *Indexed {
	return &Indexed{FS: fs, idx: idx}
}

// ReadMetadata returns the cached metadata for p, reading and caching it
// when the file changed since.
func (s *Indexed) ReadMetadata(ctx context.Context, p string) (*frontmatter.Map, error) {
	full, err := s.abs(p)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		return s.FS.ReadMetadata(ctx, p)
	}
	if m, ok := s.idx.Get(p, fi.ModTime(), fi.Size()); ok {
		return m, nil
	}
	m, err := s.FS.ReadMetadata(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.idx.Put(p, fi.ModTime(), fi.Size(), m); err != nil {
		appLog.Error("metadata index write failed", err, "path", p)
	}
	return m, nil
}

// ProcessMetadata rewrites p and drops its cache entry.
func (s *Indexed) ProcessMetadata(ctx context.Context, p string, fn func(*frontmatter.Map) error) error {
	err := s.FS.ProcessMetadata(ctx, p, fn)
	s.drop(p)
	return err
}

// Rename moves a note and drops the old path's cache entry.
func (s *Indexed) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := s.FS.Rename(ctx, oldPath, newPath); err != nil {
		return err
	}
	s.drop(oldPath)
	return nil
}

func (s *Indexed) drop(p string) {
	if err := s.idx.Drop(p); err != nil {
		appLog.Error("metadata index drop failed", err, "path", p)
	}
}
