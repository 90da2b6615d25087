package dag

import (
	"time"

	"github.com/pkg/errors"
)

// Course is the aggregate root: one persisted document holding the node
// store and the branch ledger. Version is the optimistic-concurrency
// token; stores bump it on every successful save.
type Course struct {
	ID          string             `json:"id" msgpack:"id"`
	Title       string             `json:"title" msgpack:"title"`
	Description string             `json:"description" msgpack:"description"`
	Head        string             `json:"head" msgpack:"head"`
	Version     uint64             `json:"version" msgpack:"version"`
	Branches    map[string]*Branch `json:"branches" msgpack:"branches"`
	Nodes       NodeStore          `json:"nodes" msgpack:"nodes"`
}

// NewCourse builds a course whose master branch holds a single commit
// pointing at an empty tree titled after the course.
func NewCourse(id, title, description string, now time.Time) *Course {
	c := &Course{
		ID:          id,
		Title:       title,
		Description: description,
		Head:        DefaultBranch,
		Branches:    make(map[string]*Branch),
		Nodes:       make(NodeStore),
	}
	// cannot fail: the branch map is empty and there is no parent
	c.CreateBranch(DefaultBranch, "", now)
	return c
}

// Root returns the latest root of the head branch.
func (c *Course) Root() (Node, error) {
	return c.BranchRoot(c.Head)
}

// AddNode inserts content under the last element of path on branch and
// commits the new root. It returns the inserted node.
func (c *Course) AddNode(branch string, content NodeContent, path []string, now time.Time) (Node, error) {
	b, err := c.branch(branch)
	if err != nil {
		return Node{}, err
	}
	root, added, err := AddNode(c.Nodes, b.Head().Checksum, content, path)
	if err != nil {
		return Node{}, err
	}
	if err := c.Commit(branch, root, now); err != nil {
		return Node{}, err
	}
	return added, nil
}

// DeleteNode detaches the last element of path on branch and commits the
// new root.
func (c *Course) DeleteNode(branch string, path []string, now time.Time) (Node, error) {
	b, err := c.branch(branch)
	if err != nil {
		return Node{}, err
	}
	root, err := DeleteNode(c.Nodes, b.Head().Checksum, path)
	if err != nil {
		return Node{}, err
	}
	if err := c.Commit(branch, root, now); err != nil {
		return Node{}, err
	}
	return root, nil
}

// FetchNodes returns the nodes named by checksums in the same order. A
// checksum that is not stored leaves a nil entry and is reported in a
// *MissingNodesError alongside the partial result. With no checksums,
// every stored node is returned, ordered by checksum.
func (c *Course) FetchNodes(checksums []string) ([]*Node, error) {
	if checksums == nil {
		keys := c.Nodes.Checksums()
		out := make([]*Node, len(keys))
		for i, k := range keys {
			n := c.Nodes[k]
			out[i] = &n
		}
		return out, nil
	}

	out := make([]*Node, len(checksums))
	var missing []string
	for i, k := range checksums {
		n, ok := c.Nodes[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		out[i] = &n
	}
	if len(missing) > 0 {
		return out, &MissingNodesError{Checksums: missing}
	}
	return out, nil
}

// Clone returns a copy that shares no mutable state with c.
func (c *Course) Clone() *Course {
	out := *c
	out.Branches = make(map[string]*Branch, len(c.Branches))
	for name, b := range c.Branches {
		out.Branches[name] = b.clone()
	}
	out.Nodes = c.Nodes.Clone()
	return &out
}

// Normalize repairs fields a decoder may leave empty.
func (c *Course) Normalize() error {
	if c.Branches == nil {
		c.Branches = make(map[string]*Branch)
	}
	if c.Nodes == nil {
		c.Nodes = make(NodeStore)
	}
	if c.Head == "" {
		c.Head = DefaultBranch
	}
	for k, n := range c.Nodes {
		if n.IsTree() && n.Children == nil {
			n.Children = []string{}
			c.Nodes[k] = n
		}
	}
	for name, b := range c.Branches {
		if b == nil || len(b.Commits) == 0 {
			return errors.Errorf("course %s: branch %q has no commits", c.ID, name)
		}
	}
	return nil
}
