package dag

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// BranchView is the caller-facing description of a branch.
type BranchView struct {
	Title string `json:"title"`
	Root  Node   `json:"root"`
}

// CreateBranch adds branch name to the course. With a parent, the new
// branch starts from the parent's full commit history; the two diverge
// only through later commits. With an empty parent, a fresh empty tree
// titled after the course is minted and committed as the branch's root.
func (c *Course) CreateBranch(name, parent string, now time.Time) (BranchView, error) {
	if _, ok := c.Branches[name]; ok {
		return BranchView{}, errors.Wrapf(ErrDuplicateBranch, "branch %q", name)
	}

	var b *Branch
	if parent != "" {
		p, err := c.branch(parent)
		if err != nil {
			return BranchView{}, errors.Wrap(err, "parent")
		}
		parentName := parent
		n := len(p.Commits)
		b = &Branch{Parent: &parentName, Commits: p.Commits[:n:n]}
	} else {
		root := c.Nodes.Put(NewTree(c.Title))
		b = &Branch{Commits: []Commit{{Timestamp: now.UnixMilli(), Checksum: root}}}
	}
	c.Branches[name] = b

	root, err := c.Nodes.Get(b.Head().Checksum)
	if err != nil {
		return BranchView{}, err
	}
	return BranchView{Title: name, Root: root}, nil
}

// Commit appends a commit pointing at root to branch.
func (c *Course) Commit(branch string, root Node, now time.Time) error {
	b, err := c.branch(branch)
	if err != nil {
		return err
	}
	if !root.IsTree() {
		return errors.Errorf("commit root %s is a %s, want a tree", short(root.Checksum), root.Type)
	}
	b.append(Commit{Timestamp: now.UnixMilli(), Checksum: c.Nodes.Put(root)})
	return nil
}

// Log returns branch's commits, newest first.
func (c *Course) Log(branch string) ([]Commit, error) {
	b, err := c.branch(branch)
	if err != nil {
		return nil, err
	}
	out := make([]Commit, len(b.Commits))
	for i, commit := range b.Commits {
		out[len(out)-1-i] = commit
	}
	return out, nil
}

// BranchRoot returns the root tree of branch's latest commit.
func (c *Course) BranchRoot(branch string) (Node, error) {
	b, err := c.branch(branch)
	if err != nil {
		return Node{}, err
	}
	return c.Nodes.Get(b.Head().Checksum)
}

// BranchNames returns all branch names, sorted.
func (c *Course) BranchNames() []string {
	names := make([]string, 0, len(c.Branches))
	for name := range c.Branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Course) branch(name string) (*Branch, error) {
	b, ok := c.Branches[name]
	if !ok || len(b.Commits) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "branch %q", name)
	}
	return b, nil
}
