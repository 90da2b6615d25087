package dag

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Problem is one integrity failure found by Verify.
type Problem struct {
	Checksum string `json:"checksum"`
	Branch   string `json:"branch,omitempty"`
	Reason   string `json:"reason"`
}

func (p Problem) String() string {
	if p.Branch != "" {
		return fmt.Sprintf("%s (branch %s): %s", short(p.Checksum), p.Branch, p.Reason)
	}
	return fmt.Sprintf("%s: %s", short(p.Checksum), p.Reason)
}

// Verify re-hashes every stored node and checks that every child and
// every commit root resolves. Nodes are checked concurrently. The error
// is non-nil only if ctx is cancelled.
func Verify(ctx context.Context, c *Course) ([]Problem, error) {
	var (
		mu       sync.Mutex
		problems []Problem
	)
	report := func(p Problem) {
		mu.Lock()
		problems = append(problems, p)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for key, n := range c.Nodes {
		key, n := key, n
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, p := range verifyNode(c.Nodes, key, n) {
				report(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, name := range c.BranchNames() {
		b := c.Branches[name]
		for _, commit := range b.Commits {
			n, ok := c.Nodes[commit.Checksum]
			switch {
			case !ok:
				problems = append(problems, Problem{Checksum: commit.Checksum, Branch: name, Reason: "commit root missing"})
			case !n.IsTree():
				problems = append(problems, Problem{Checksum: commit.Checksum, Branch: name, Reason: "commit root is not a tree"})
			}
		}
	}

	sort.Slice(problems, func(i, j int) bool {
		if problems[i].Checksum != problems[j].Checksum {
			return problems[i].Checksum < problems[j].Checksum
		}
		if problems[i].Branch != problems[j].Branch {
			return problems[i].Branch < problems[j].Branch
		}
		return problems[i].Reason < problems[j].Reason
	})
	return problems, nil
}

func verifyNode(store NodeStore, key string, n Node) []Problem {
	var out []Problem
	if n.Checksum != key {
		out = append(out, Problem{Checksum: key, Reason: "stored under wrong key " + short(n.Checksum)})
	}
	if sum := Checksum(n); sum != key {
		out = append(out, Problem{Checksum: key, Reason: "content hashes to " + short(sum)})
	}
	if _, err := n.CID(); err != nil {
		out = append(out, Problem{Checksum: key, Reason: err.Error()})
	}
	switch n.Type {
	case TreeNode:
		for _, child := range n.Children {
			if !store.Has(child) {
				out = append(out, Problem{Checksum: key, Reason: "missing child " + short(child)})
			}
		}
	case BlobNode:
		if !n.BlobType.Valid() {
			out = append(out, Problem{Checksum: key, Reason: "unknown blob type " + string(n.BlobType)})
		}
	default:
		out = append(out, Problem{Checksum: key, Reason: "unknown node type " + string(n.Type)})
	}
	return out
}
