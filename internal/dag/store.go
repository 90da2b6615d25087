package dag

import (
	"sort"

	"github.com/pkg/errors"
)

// NodeStore maps checksums to nodes. It only grows: a Put of an existing
// checksum stores identical content and is a no-op.
type NodeStore map[string]Node

// Put stores n under its checksum and returns the checksum.
func (s NodeStore) Put(n Node) string {
	if _, ok := s[n.Checksum]; !ok {
		s[n.Checksum] = n
	}
	return n.Checksum
}

// Get returns the node stored under checksum.
func (s NodeStore) Get(checksum string) (Node, error) {
	n, ok := s[checksum]
	if !ok {
		return Node{}, errors.Wrapf(ErrNotFound, "node %s", short(checksum))
	}
	return n, nil
}

// Has checks if a node exists.
func (s NodeStore) Has(checksum string) bool {
	_, ok := s[checksum]
	return ok
}

// Checksums returns every stored key in ascending order.
func (s NodeStore) Checksums() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy. Nodes are values, so sharing them is safe
// as long as nobody edits a Children slice in place.
func (s NodeStore) Clone() NodeStore {
	out := make(NodeStore, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
