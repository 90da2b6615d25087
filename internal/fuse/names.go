package fuse

import (
	"fmt"
	"strings"

	"github.com/systemshift/coursefs/internal/dag"
)

// entry is one named child of a tree directory.
type entry struct {
	Name string
	Node dag.Node
}

// sanitize turns a title into something usable as a single path element.
func sanitize(title string) string {
	name := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, title))
	if name == "" || name == "." || name == ".." {
		return "untitled"
	}
	return name
}

func blobExt(t dag.BlobType) string {
	switch t {
	case dag.Video:
		return ".video"
	case dag.Markdown:
		return ".md"
	case dag.Weblink:
		return ".url"
	}
	return ""
}

func stemAndExt(n dag.Node) (string, string) {
	if n.IsTree() {
		return sanitize(n.Title), ""
	}
	return sanitize(n.Title), blobExt(n.BlobType)
}

// childEntries names children in order. Children whose names collide get
// "~" and the first 8 checksum characters before the extension; the same
// node listed twice is further numbered from 2.
func childEntries(children []dag.Node) []entry {
	counts := make(map[string]int, len(children))
	for _, n := range children {
		stem, ext := stemAndExt(n)
		counts[stem+ext]++
	}

	out := make([]entry, 0, len(children))
	seen := make(map[string]int, len(children))
	for _, n := range children {
		stem, ext := stemAndExt(n)
		if counts[stem+ext] > 1 {
			cs := n.Checksum
			if len(cs) > 8 {
				cs = cs[:8]
			}
			stem += "~" + cs
		}
		seen[stem+ext]++
		if k := seen[stem+ext]; k > 1 {
			stem += fmt.Sprintf("-%d", k)
		}
		out = append(out, entry{Name: stem + ext, Node: n})
	}
	return out
}

// branchEntry pairs a branch with its directory name.
type branchEntry struct {
	Name   string
	Branch string
}

// branchEntries names branch directories. Branches whose sanitized names
// collide get "~" and 8 hex digits of a hash of the real branch name.
func branchEntries(branches []string) []branchEntry {
	counts := make(map[string]int, len(branches))
	for _, b := range branches {
		counts[sanitize(b)]++
	}
	out := make([]branchEntry, 0, len(branches))
	for _, b := range branches {
		name := sanitize(b)
		if counts[name] > 1 {
			name += fmt.Sprintf("~%08x", uint32(stableIno(b)))
		}
		out = append(out, branchEntry{Name: name, Branch: b})
	}
	return out
}

// readSlice returns the part of data a read at off of len(dest) covers.
func readSlice(data []byte, dest []byte, off int64) []byte {
	if off >= int64(len(data)) || off < 0 {
		return nil
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}
