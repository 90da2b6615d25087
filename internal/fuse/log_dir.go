package fuse

import (
	"context"
	"encoding/json"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/coursefs/internal/dag"
)

// LogDir exposes a branch's commits as files: 0 is the newest commit.
type LogDir struct {
	fs.Inode
	fsys     *filesystem
	courseID string
	branch   string
	path     []string
}

var _ = (fs.NodeLookuper)((*LogDir)(nil))
var _ = (fs.NodeReaddirer)((*LogDir)(nil))
var _ = (fs.NodeGetattrer)((*LogDir)(nil))

func (d *LogDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(out, stableIno(d.path...))
}

func (d *LogDir) log(ctx context.Context) ([]dag.Commit, syscall.Errno) {
	c, errno := d.fsys.course(ctx, d.courseID)
	if errno != fs.OK {
		return nil, errno
	}
	commits, err := c.Log(d.branch)
	if err != nil {
		return nil, d.fsys.errno(err, "branch", d.branch)
	}
	return commits, fs.OK
}

func (d *LogDir) entryIno(name string) uint64 {
	return stableIno(append(d.path[:len(d.path):len(d.path)], name)...)
}

func (d *LogDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	commits, errno := d.log(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	entries := make([]fuse.DirEntry, len(commits))
	for i := range commits {
		name := strconv.Itoa(i)
		entries[i] = fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: d.entryIno(name)}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *LogDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || strconv.Itoa(idx) != name {
		return nil, syscall.ENOENT
	}
	commits, errno := d.log(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	if idx >= len(commits) {
		return nil, syscall.ENOENT
	}

	// Index 0 moves with every commit, so the content is re-read.
	return newFile(ctx, &d.Inode, d.entryIno(name), false, func(ctx context.Context) ([]byte, syscall.Errno) {
		commits, errno := d.log(ctx)
		if errno != fs.OK {
			return nil, errno
		}
		if idx >= len(commits) {
			return nil, syscall.ENOENT
		}
		return commitDocument(commits[idx]), fs.OK
	}), fs.OK
}

func commitDocument(c dag.Commit) []byte {
	doc := struct {
		dag.Commit
		Time string `json:"time"`
	}{c, c.Time().Format("2006-01-02T15:04:05.000Z07:00")}
	data, _ := json.MarshalIndent(doc, "", "  ")
	return append(data, '\n')
}
