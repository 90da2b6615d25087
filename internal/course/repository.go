// Package course exposes the course operations. Each mutation loads the
// course document, applies the change in memory and saves it back under
// the version it was loaded at; a lost race is returned as
// dag.ErrConflict and never retried here.
package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/systemshift/coursefs/internal/dag"
)

// Store persists course documents.
type Store interface {
	// Create stores a new course. It fails with dag.ErrDuplicateCourse if
	// the id is taken.
	Create(ctx context.Context, c *dag.Course) error
	// Load returns a private copy of the course or dag.ErrNotFound.
	Load(ctx context.Context, id string) (*dag.Course, error)
	// Save writes c if the stored version equals c.Version, then bumps
	// c.Version. Otherwise it returns dag.ErrConflict and writes nothing.
	Save(ctx context.Context, c *dag.Course) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Repository runs course operations against a Store.
type Repository struct {
	store Store
	now   func() time.Time
	newID func() string
	log   *log.Entry
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the source of commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDs sets the course id generator.
func WithIDs(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// WithLogger sets the entry conflicts and failures are logged to.
func WithLogger(entry *log.Entry) Option {
	return func(r *Repository) { r.log = entry }
}

// New returns a repository backed by store.
func New(store Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		log:   log.WithField("component", "course"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateCourse stores a new course with a master branch pointing at an
// empty tree titled after the course.
func (r *Repository) CreateCourse(ctx context.Context, title, description string) (c *dag.Course, err error) {
	defer func() { observe("create_course", err) }()

	c = dag.NewCourse(r.newID(), title, description, r.now())
	if err := r.store.Create(ctx, c); err != nil {
		return nil, err
	}
	r.log.WithFields(log.Fields{"course": c.ID, "title": title}).Info("course created")
	return c, nil
}

// GetCourse loads one course.
func (r *Repository) GetCourse(ctx context.Context, id string) (*dag.Course, error) {
	return r.store.Load(ctx, id)
}

// Courses loads every stored course, ordered by id.
func (r *Repository) Courses(ctx context.Context) ([]*dag.Course, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dag.Course, 0, len(ids))
	for _, id := range ids {
		c, err := r.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AddBranch creates branch name and returns the updated course. An empty
// parent starts the branch from a fresh empty tree.
func (r *Repository) AddBranch(ctx context.Context, courseID, name, parent string) (*dag.Course, error) {
	c, _, err := r.addBranch(ctx, "add_branch", courseID, name, parent)
	return c, err
}

// CreateBranch is AddBranch returning the new branch's title and root.
func (r *Repository) CreateBranch(ctx context.Context, courseID, name, parent string) (dag.BranchView, error) {
	_, view, err := r.addBranch(ctx, "create_branch", courseID, name, parent)
	return view, err
}

func (r *Repository) addBranch(ctx context.Context, op, courseID, name, parent string) (*dag.Course, dag.BranchView, error) {
	var view dag.BranchView
	c, err := r.mutate(ctx, op, courseID, name, func(c *dag.Course, now time.Time) error {
		var err error
		view, err = c.CreateBranch(name, parent, now)
		return err
	})
	if err != nil {
		return nil, dag.BranchView{}, err
	}
	return c, view, nil
}

// AddNode inserts content under the last element of path on branch and
// returns the updated course.
func (r *Repository) AddNode(ctx context.Context, courseID, branch string, content dag.NodeContent, path []string) (*dag.Course, error) {
	c, _, err := r.addNode(ctx, "add_node", courseID, branch, content, path)
	return c, err
}

// CreateNode is AddNode returning the stored node that was inserted.
func (r *Repository) CreateNode(ctx context.Context, courseID, branch string, content dag.NodeContent, path []string) (dag.Node, error) {
	_, added, err := r.addNode(ctx, "create_node", courseID, branch, content, path)
	return added, err
}

func (r *Repository) addNode(ctx context.Context, op, courseID, branch string, content dag.NodeContent, path []string) (*dag.Course, dag.Node, error) {
	mutationPathDepth.Observe(float64(len(path)))
	var added dag.Node
	c, err := r.mutate(ctx, op, courseID, branch, func(c *dag.Course, now time.Time) error {
		var err error
		added, err = c.AddNode(branch, content, path, now)
		return err
	})
	if err != nil {
		return nil, dag.Node{}, err
	}
	return c, added, nil
}

// DeleteNode detaches the last element of path from its parent on branch
// and returns the updated course.
func (r *Repository) DeleteNode(ctx context.Context, courseID, branch string, path []string) (*dag.Course, error) {
	mutationPathDepth.Observe(float64(len(path)))
	return r.mutate(ctx, "delete_node", courseID, branch, func(c *dag.Course, now time.Time) error {
		_, err := c.DeleteNode(branch, path, now)
		return err
	})
}

// FetchNodes returns the nodes named by checksums, in order. See
// dag.Course.FetchNodes for how missing checksums are reported.
func (r *Repository) FetchNodes(ctx context.Context, courseID string, checksums []string) (nodes []*dag.Node, err error) {
	defer func() { observe("fetch_nodes", err) }()

	c, err := r.store.Load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return c.FetchNodes(checksums)
}

// Log returns branch's commits, newest first.
func (r *Repository) Log(ctx context.Context, courseID, branch string) ([]dag.Commit, error) {
	c, err := r.store.Load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return c.Log(branch)
}

// Verify checks the integrity of a stored course.
func (r *Repository) Verify(ctx context.Context, courseID string) ([]dag.Problem, error) {
	c, err := r.store.Load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	problems, err := dag.Verify(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		r.log.WithFields(log.Fields{"course": courseID, "problems": len(problems)}).Warn("course failed verification")
	}
	return problems, nil
}

// mutate is load, apply, guarded save. fn works on a private copy; if it
// fails nothing is saved.
func (r *Repository) mutate(ctx context.Context, op, courseID, branch string, fn func(*dag.Course, time.Time) error) (c *dag.Course, err error) {
	defer func() { observe(op, err) }()
	entry := r.log.WithFields(log.Fields{"op": op, "course": courseID, "branch": branch})

	c, err = r.store.Load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := fn(c, r.now()); err != nil {
		entry.WithError(err).Debug("mutation rejected")
		return nil, err
	}
	if err := r.store.Save(ctx, c); err != nil {
		if errors.Is(err, dag.ErrConflict) {
			entry.WithError(err).Warn("concurrent write lost")
		}
		return nil, err
	}

	if b, ok := c.Branches[branch]; ok && len(b.Commits) > 0 {
		entry = entry.WithField("root", b.Head().Checksum)
	}
	entry.WithField("version", c.Version).Debug("course saved")
	return c, nil
}
