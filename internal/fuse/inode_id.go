package fuse

import (
	"hash/fnv"
	"strings"
)

// stableIno returns a stable inode number for a path. Directories backed
// by a tree node include its checksum in the path, so a new version of a
// tree never reuses the inode of an old one.
func stableIno(parts ...string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "/")))
	return h.Sum64()
}
