package fuse

import (
	"context"
	"encoding/json"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/coursefs/internal/dag"
)

// RootNode is the mountpoint directory: one subdirectory per course.
type RootNode struct {
	fs.Inode
	fsys *filesystem
}

var _ = (fs.NodeLookuper)((*RootNode)(nil))
var _ = (fs.NodeReaddirer)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno("/"))
}

func (r *RootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	courses, err := r.fsys.src.Courses(ctx)
	if err != nil {
		return nil, r.fsys.errno(err, "courses", "")
	}
	entries := make([]fuse.DirEntry, 0, len(courses))
	for _, c := range courses {
		entries = append(entries, fuse.DirEntry{Name: c.ID, Mode: syscall.S_IFDIR, Ino: stableIno(c.ID)})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (r *RootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if _, errno := r.fsys.course(ctx, name); errno != fs.OK {
		return nil, errno
	}
	return newDir(ctx, &r.Inode, stableIno(name), &CourseDir{fsys: r.fsys, courseID: name}), fs.OK
}

// CourseDir holds one course: title, description, branches/ and nodes/.
type CourseDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
}

var _ = (fs.NodeLookuper)((*CourseDir)(nil))
var _ = (fs.NodeReaddirer)((*CourseDir)(nil))
var _ = (fs.NodeGetattrer)((*CourseDir)(nil))

func (d *CourseDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno(d.courseID))
}

func (d *CourseDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return fs.NewListDirStream([]fuse.DirEntry{
		{Name: "title", Mode: syscall.S_IFREG, Ino: stableIno(d.courseID, "title")},
		{Name: "description", Mode: syscall.S_IFREG, Ino: stableIno(d.courseID, "description")},
		{Name: "branches", Mode: syscall.S_IFDIR, Ino: stableIno(d.courseID, "branches")},
		{Name: "nodes", Mode: syscall.S_IFDIR, Ino: stableIno(d.courseID, "nodes")},
	}), fs.OK
}

func (d *CourseDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ino := stableIno(d.courseID, name)
	switch name {
	case "title", "description":
		return newFile(ctx, &d.Inode, ino, false, func(ctx context.Context) ([]byte, syscall.Errno) {
			c, errno := d.fsys.course(ctx, d.courseID)
			if errno != fs.OK {
				return nil, errno
			}
			if name == "title" {
				return line(c.Title), fs.OK
			}
			return line(c.Description), fs.OK
		}), fs.OK
	case "branches":
		return newDir(ctx, &d.Inode, ino, &BranchesDir{fsys: d.fsys, courseID: d.courseID}), fs.OK
	case "nodes":
		return newDir(ctx, &d.Inode, ino, &NodesDir{fsys: d.fsys, courseID: d.courseID}), fs.OK
	}
	return nil, syscall.ENOENT
}

// BranchesDir lists the branches of a course.
type BranchesDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
}

var _ = (fs.NodeLookuper)((*BranchesDir)(nil))
var _ = (fs.NodeReaddirer)((*BranchesDir)(nil))
var _ = (fs.NodeGetattrer)((*BranchesDir)(nil))

func (d *BranchesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno(d.courseID, "branches"))
}

func (d *BranchesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	c, errno := d.fsys.course(ctx, d.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	var entries []fuse.DirEntry
	for _, e := range branchEntries(c.BranchNames()) {
		entries = append(entries, fuse.DirEntry{Name: e.Name, Mode: syscall.S_IFDIR, Ino: stableIno(d.courseID, "branches", e.Name)})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *BranchesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	c, errno := d.fsys.course(ctx, d.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	for _, e := range branchEntries(c.BranchNames()) {
		if e.Name == name {
			bd := &BranchDir{fsys: d.fsys, courseID: d.courseID, branch: e.Branch, dir: name}
			return newDir(ctx, &d.Inode, stableIno(d.courseID, "branches", name), bd), fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// BranchDir holds HEAD, log/ and tree/ for one branch.
type BranchDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
	branch   string
	dir      string
}

var _ = (fs.NodeLookuper)((*BranchDir)(nil))
var _ = (fs.NodeReaddirer)((*BranchDir)(nil))
var _ = (fs.NodeGetattrer)((*BranchDir)(nil))

func (d *BranchDir) path(parts ...string) []string {
	return append([]string{d.courseID, "branches", d.dir}, parts...)
}

func (d *BranchDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno(d.path()...))
}

func (d *BranchDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	_, root, errno := d.head(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	tree := &TreeDir{checksum: root.Checksum, path: d.path("tree")}
	return fs.NewListDirStream([]fuse.DirEntry{
		{Name: "HEAD", Mode: syscall.S_IFREG, Ino: stableIno(d.path("HEAD")...)},
		{Name: "log", Mode: syscall.S_IFDIR, Ino: stableIno(d.path("log")...)},
		{Name: "tree", Mode: syscall.S_IFDIR, Ino: tree.ino()},
	}), fs.OK
}

// head returns the branch's current root.
func (d *BranchDir) head(ctx context.Context) (*dag.Course, dag.Node, syscall.Errno) {
	c, errno := d.fsys.course(ctx, d.courseID)
	if errno != fs.OK {
		return nil, dag.Node{}, errno
	}
	root, err := c.BranchRoot(d.branch)
	if err != nil {
		return nil, dag.Node{}, d.fsys.errno(err, "branch", d.branch)
	}
	return c, root, fs.OK
}

func (d *BranchDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	switch name {
	case "HEAD":
		return newFile(ctx, &d.Inode, stableIno(d.path("HEAD")...), false, func(ctx context.Context) ([]byte, syscall.Errno) {
			_, root, errno := d.head(ctx)
			if errno != fs.OK {
				return nil, errno
			}
			return line(root.Checksum), fs.OK
		}), fs.OK
	case "log":
		ld := &LogDir{fsys: d.fsys, courseID: d.courseID, branch: d.branch, path: d.path("log")}
		return newDir(ctx, &d.Inode, stableIno(ld.path...), ld), fs.OK
	case "tree":
		_, root, errno := d.head(ctx)
		if errno != fs.OK {
			return nil, errno
		}
		td := &TreeDir{fsys: d.fsys, courseID: d.courseID, checksum: root.Checksum, path: d.path("tree")}
		return newDir(ctx, &d.Inode, td.ino(), td), fs.OK
	}
	return nil, syscall.ENOENT
}

// NodesDir exposes every stored node of a course as <checksum>.json.
type NodesDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
}

var _ = (fs.NodeLookuper)((*NodesDir)(nil))
var _ = (fs.NodeReaddirer)((*NodesDir)(nil))
var _ = (fs.NodeGetattrer)((*NodesDir)(nil))

func (n *NodesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno(n.courseID, "nodes"))
}

func (n *NodesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	c, errno := n.fsys.course(ctx, n.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	keys := c.Nodes.Checksums()
	entries := make([]fuse.DirEntry, len(keys))
	for i, k := range keys {
		entries[i] = fuse.DirEntry{Name: k + ".json", Mode: syscall.S_IFREG, Ino: stableIno(n.courseID, "nodes", k)}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (n *NodesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	checksum := strings.TrimSuffix(name, ".json")
	if checksum == name {
		return nil, syscall.ENOENT
	}
	c, errno := n.fsys.course(ctx, n.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	node, err := c.Nodes.Get(checksum)
	if err != nil {
		return nil, syscall.ENOENT
	}
	data, err := nodeDocument(node)
	if err != nil {
		return nil, n.fsys.errno(err, "node", checksum)
	}
	return newFile(ctx, &n.Inode, stableIno(n.courseID, "nodes", checksum), true, func(context.Context) ([]byte, syscall.Errno) {
		return data, fs.OK
	}), fs.OK
}

// nodeDocument renders a node with its CID.
func nodeDocument(n dag.Node) ([]byte, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	doc := struct {
		CID  string          `json:"cid"`
		Node json.RawMessage `json:"node"`
	}{Node: raw}
	if cid, err := n.CID(); err == nil {
		doc.CID = dag.CIDString(cid)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
