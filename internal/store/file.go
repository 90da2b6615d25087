package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/systemshift/coursefs/internal/dag"
)

const (
	courseExt = ".json"
	lockExt   = ".lock"
)

// File keeps one canonical JSON document per course under dir/courses.
// Writes go through a temp file and an atomic rename, so readers never
// see a half-written course. Writers of one course are serialized with
// flock(2) on a sidecar <id>.lock file, which holds across processes
// sharing the directory.
type File struct {
	dir string
}

// NewFile opens (creating if needed) a file store rooted at dir.
func NewFile(dir string) (*File, error) {
	dir = filepath.Join(filepath.Clean(dir), "courses")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create courses dir")
	}
	return &File{dir: dir}, nil
}

// lock takes an exclusive flock on the course's lock file. Each call opens
// its own descriptor, so goroutines and processes exclude each other alike.
func (f *File) lock(id string) (func(), error) {
	lf, err := os.OpenFile(filepath.Join(f.dir, id+lockExt), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock for course %s", id)
	}
	for {
		err = syscall.Flock(int(lf.Fd()), syscall.LOCK_EX)
		if err != syscall.EINTR {
			break
		}
	}
	if err != nil {
		lf.Close()
		return nil, errors.Wrapf(err, "lock course %s", id)
	}
	return func() {
		syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		lf.Close()
	}, nil
}

func (f *File) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", errors.Wrapf(dag.ErrNotFound, "course %q", id)
	}
	return filepath.Join(f.dir, id+courseExt), nil
}

// Create writes a new course at version 1.
func (f *File) Create(_ context.Context, c *dag.Course) error {
	p, err := f.path(c.ID)
	if err != nil {
		return err
	}
	unlock, err := f.lock(c.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(p); err == nil {
		return errors.Wrapf(dag.ErrDuplicateCourse, "course %s", c.ID)
	}
	c.Version = 1
	if err := f.write(p, c); err != nil {
		c.Version = 0
		return err
	}
	return nil
}

// Load reads the course document without taking the lock; renames are atomic.
func (f *File) Load(_ context.Context, id string) (*dag.Course, error) {
	p, err := f.path(id)
	if err != nil {
		return nil, err
	}
	return f.read(p, id)
}

// Save rewrites the course document if the version on disk still matches.
// The read, compare and rename all happen under the course lock.
func (f *File) Save(_ context.Context, c *dag.Course) error {
	p, err := f.path(c.ID)
	if err != nil {
		return err
	}
	unlock, err := f.lock(c.ID)
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := f.read(p, c.ID)
	if err != nil {
		return err
	}
	if cur.Version != c.Version {
		return conflict(c.ID, c.Version, cur.Version)
	}
	c.Version++
	if err := f.write(p, c); err != nil {
		c.Version--
		return err
	}
	return nil
}

// List returns stored course ids in sorted order.
func (f *File) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list courses")
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), courseExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), courseExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op; File holds no open handles between calls.
func (f *File) Close() error { return nil }

func (f *File) write(p string, c *dag.Course) error {
	data, err := dag.CanonicalJSON(c)
	if err != nil {
		return errors.Wrapf(err, "serialize course %s", c.ID)
	}
	if err := renameio.WriteFile(p, data, 0644); err != nil {
		return errors.Wrapf(err, "write course %s", c.ID)
	}
	return nil
}

func (f *File) read(p, id string) (*dag.Course, error) {
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(dag.ErrNotFound, "course %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read course %s", id)
	}
	var c dag.Course
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "decode course %s", id)
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}
