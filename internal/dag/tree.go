package dag

import "github.com/pkg/errors"

// AddNode materializes content, inserts it as the last child of the final
// element of path, and rebuilds every ancestor up to the root. path[0]
// must be root. Nodes are staged and only merged into store once the
// whole chain has been rebuilt, so a failure leaves store untouched.
// It returns the new root and the inserted node.
func AddNode(store NodeStore, root string, content NodeContent, path []string) (Node, Node, error) {
	added, err := content.Materialize()
	if err != nil {
		return Node{}, Node{}, err
	}
	chain, err := resolvePath(store, root, path)
	if err != nil {
		return Node{}, Node{}, err
	}
	parent := chain[len(chain)-1]
	if !parent.IsTree() {
		return Node{}, Node{}, brokenPath(len(chain)-1, parent.Checksum, "cannot insert under a blob")
	}

	staged := NodeStore{}
	staged.Put(added)
	children := append(append([]string{}, parent.Children...), added.Checksum)
	rebuilt := parent.WithChildren(children)
	staged.Put(rebuilt)

	newRoot := rebuildAncestors(chain[:len(chain)-1], parent.Checksum, rebuilt, staged)
	merge(store, staged)
	return newRoot, added, nil
}

// DeleteNode detaches the last element of path from its parent and
// rebuilds every ancestor up to the root. Every occurrence of the
// checksum is removed from the parent. The detached node stays in store
// since older commits may still reach it.
func DeleteNode(store NodeStore, root string, path []string) (Node, error) {
	if len(path) < 2 {
		return Node{}, errors.Wrap(ErrBrokenPath, "path must name a node below the root")
	}
	chain, err := resolvePath(store, root, path)
	if err != nil {
		return Node{}, err
	}
	target := chain[len(chain)-1]
	parent := chain[len(chain)-2]

	children := make([]string, 0, len(parent.Children))
	for _, c := range parent.Children {
		if c != target.Checksum {
			children = append(children, c)
		}
	}

	staged := NodeStore{}
	rebuilt := parent.WithChildren(children)
	staged.Put(rebuilt)

	newRoot := rebuildAncestors(chain[:len(chain)-2], parent.Checksum, rebuilt, staged)
	merge(store, staged)
	return newRoot, nil
}

// rebuildAncestors walks ancestors from the deepest up, swapping the
// previous version of the child for its rebuilt one. Sibling order is
// kept. It returns the new root, or child itself when ancestors is empty.
func rebuildAncestors(ancestors []Node, oldChild string, child Node, staged NodeStore) Node {
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		children := append([]string{}, anc.Children...)
		for j, c := range children {
			if c == oldChild {
				children[j] = child.Checksum
				break
			}
		}
		oldChild = anc.Checksum
		child = anc.WithChildren(children)
		staged.Put(child)
	}
	return child
}

// resolvePath checks that path starts at root, that every element is
// stored, and that each element is a child of the one before it.
func resolvePath(store NodeStore, root string, path []string) ([]Node, error) {
	if len(path) == 0 {
		return nil, errors.Wrap(ErrBrokenPath, "empty path")
	}
	if path[0] != root {
		return nil, brokenPath(0, path[0], "not the current root "+short(root))
	}
	chain := make([]Node, len(path))
	for i, checksum := range path {
		n, ok := store[checksum]
		if !ok {
			return nil, brokenPath(i, checksum, "not in store")
		}
		if i > 0 {
			prev := chain[i-1]
			if !prev.IsTree() {
				return nil, brokenPath(i-1, prev.Checksum, "blob has no children")
			}
			if !prev.HasChild(checksum) {
				return nil, brokenPath(i, checksum, "not a child of "+short(prev.Checksum))
			}
		}
		chain[i] = n
	}
	return chain, nil
}

func merge(dst, src NodeStore) {
	for _, n := range src {
		dst.Put(n)
	}
}

// Walk visits root and its descendants depth-first in child order. path
// holds the checksums from root down to and including n. Returning an
// error from fn stops the walk.
func Walk(store NodeStore, root string, fn func(path []string, n Node) error) error {
	return walk(store, []string{root}, fn)
}

func walk(store NodeStore, path []string, fn func([]string, Node) error) error {
	checksum := path[len(path)-1]
	n, err := store.Get(checksum)
	if err != nil {
		return err
	}
	if err := fn(path, n); err != nil {
		return err
	}
	if !n.IsTree() {
		return nil
	}
	for _, c := range n.Children {
		next := append(path[:len(path):len(path)], c)
		if err := walk(store, next, fn); err != nil {
			return err
		}
	}
	return nil
}
