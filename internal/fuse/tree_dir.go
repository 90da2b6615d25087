package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/coursefs/internal/dag"
)

// TreeDir is one tree node of a branch. Its children are listed under
// the names childEntries gives them: trees as directories, blobs as
// files holding their URL. A TreeDir is pinned to one checksum and so
// never changes.
type TreeDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
	checksum string
	path     []string
}

var _ = (fs.NodeLookuper)((*TreeDir)(nil))
var _ = (fs.NodeReaddirer)((*TreeDir)(nil))
var _ = (fs.NodeGetattrer)((*TreeDir)(nil))

func (d *TreeDir) ino() uint64 {
	return stableIno(append(d.path[:len(d.path):len(d.path)], "@"+d.checksum)...)
}

func (d *TreeDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, d.ino())
}

func (d *TreeDir) entries(ctx context.Context) ([]entry, syscall.Errno) {
	c, errno := d.fsys.course(ctx, d.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	node, err := c.Nodes.Get(d.checksum)
	if err != nil {
		return nil, d.fsys.errno(err, "node", d.checksum)
	}
	children := make([]dag.Node, 0, len(node.Children))
	for _, cs := range node.Children {
		child, err := c.Nodes.Get(cs)
		if err != nil {
			// a dangling child is a broken course; hide it rather than fail the listing
			d.fsys.log.WithField("node", cs).Warn("missing child")
			continue
		}
		children = append(children, child)
	}
	return childEntries(children), fs.OK
}

func (d *TreeDir) child(e entry) *TreeDir {
	return &TreeDir{
		fsys:     d.fsys,
		courseID: d.courseID,
		checksum: e.Node.Checksum,
		path:     append(d.path[:len(d.path):len(d.path)], e.Name),
	}
}

func (d *TreeDir) fileIno(e entry) uint64 {
	return stableIno(append(d.path[:len(d.path):len(d.path)], e.Name, "@"+e.Node.Checksum)...)
}

func (d *TreeDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ents, errno := d.entries(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	out := make([]fuse.DirEntry, len(ents))
	for i, e := range ents {
		if e.Node.IsTree() {
			out[i] = fuse.DirEntry{Name: e.Name, Mode: syscall.S_IFDIR, Ino: d.child(e).ino()}
		} else {
			out[i] = fuse.DirEntry{Name: e.Name, Mode: syscall.S_IFREG, Ino: d.fileIno(e)}
		}
	}
	return fs.NewListDirStream(out), fs.OK
}

func (d *TreeDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ents, errno := d.entries(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	for _, e := range ents {
		if e.Name != name {
			continue
		}
		if e.Node.IsTree() {
			td := d.child(e)
			return newDir(ctx, &d.Inode, td.ino(), td), fs.OK
		}
		data := line(e.Node.URL)
		return newFile(ctx, &d.Inode, d.fileIno(e), true, func(context.Context) ([]byte, syscall.Errno) {
			return data, fs.OK
		}), fs.OK
	}
	return nil, syscall.ENOENT
}
