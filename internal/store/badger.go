package store

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack"

	"github.com/systemshift/coursefs/internal/dag"
)

const coursePrefix = "course/"

// BadgerConfig holds settings for a Badger-backed store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64

	// Logger receives Badger's internal messages. Nil silences them.
	Logger *log.Entry
}

// DefaultBadgerConfig returns settings for an on-disk database at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for a throwaway database.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// Badger keeps each course as one msgpack value under "course/<id>".
// Save checks the stored version inside an update transaction; a
// transaction that loses a race to another writer surfaces as
// dag.ErrConflict.
type Badger struct {
	db  *badger.DB
	log *log.Entry

	stop chan struct{}
	done chan struct{}
}

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger: path is required for a persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}

	entry := cfg.Logger
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	b := &Badger{db: db, log: entry}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			db.Close()
			return nil, errors.Errorf("badger: gc discard ratio %v out of range (0,1)", cfg.GCDiscardRatio)
		}
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return b, nil
}

func courseKey(id string) []byte {
	return []byte(coursePrefix + id)
}

func (b *Badger) Create(_ context.Context, c *dag.Course) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(courseKey(c.ID))
		if err == nil {
			return errors.Wrapf(dag.ErrDuplicateCourse, "course %s", c.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		cp := c.Clone()
		cp.Version = 1
		return putCourse(txn, cp)
	})
	if err != nil {
		return mapTxnErr(err, c.ID)
	}
	c.Version = 1
	return nil
}

func (b *Badger) Load(_ context.Context, id string) (*dag.Course, error) {
	var c *dag.Course
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = getCourse(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *Badger) Save(_ context.Context, c *dag.Course) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		cur, err := getCourse(txn, c.ID)
		if err != nil {
			return err
		}
		if cur.Version != c.Version {
			return conflict(c.ID, c.Version, cur.Version)
		}
		cp := c.Clone()
		cp.Version++
		return putCourse(txn, cp)
	})
	if err != nil {
		return mapTxnErr(err, c.ID)
	}
	c.Version++
	return nil
}

func (b *Badger) List(_ context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(coursePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), coursePrefix))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list courses")
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Close stops the GC loop and closes the database.
func (b *Badger) Close() error {
	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop = nil
	}
	return b.db.Close()
}

func (b *Badger) runGC(interval time.Duration, ratio float64) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(ratio)
			switch {
			case err == nil:
				b.log.Debug("badger value log GC completed")
			case !errors.Is(err, badger.ErrNoRewrite):
				b.log.WithError(err).Warn("badger value log GC failed")
			}
		}
	}
}

func getCourse(txn *badger.Txn, id string) (*dag.Course, error) {
	item, err := txn.Get(courseKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(dag.ErrNotFound, "course %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get course %s", id)
	}
	var c dag.Course
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &c)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decode course %s", id)
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func putCourse(txn *badger.Txn, c *dag.Course) error {
	val, err := msgpack.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode course %s", c.ID)
	}
	return txn.Set(courseKey(c.ID), val)
}

func mapTxnErr(err error, id string) error {
	if errors.Is(err, badger.ErrConflict) {
		return errors.Wrapf(dag.ErrConflict, "course %s: transaction conflict", id)
	}
	return err
}
