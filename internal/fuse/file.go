package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// roFile is a read-only file whose bytes come from content. Immutable
// files (blobs, node documents) set keepCache; the rest are re-read on
// every open.
type roFile struct {
	fs.Inode
	ino       uint64
	keepCache bool
	content   func(ctx context.Context) ([]byte, syscall.Errno)
}

var _ = (fs.NodeGetattrer)((*roFile)(nil))
var _ = (fs.NodeOpener)((*roFile)(nil))
var _ = (fs.NodeReader)((*roFile)(nil))

func (f *roFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, errno := f.content(ctx)
	if errno != fs.OK {
		return errno
	}
	out.Mode = 0444
	out.Size = uint64(len(data))
	out.Ino = f.ino
	return fs.OK
}

func (f *roFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	if f.keepCache {
		return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
	}
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *roFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := f.content(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	return fuse.ReadResultData(readSlice(data, dest, off)), fs.OK
}

func newFile(ctx context.Context, parent *fs.Inode, ino uint64, keepCache bool, content func(context.Context) ([]byte, syscall.Errno)) *fs.Inode {
	return parent.NewInode(ctx, &roFile{ino: ino, keepCache: keepCache, content: content}, fs.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  ino,
	})
}

func newDir(ctx context.Context, parent *fs.Inode, ino uint64, ops fs.InodeEmbedder) *fs.Inode {
	return parent.NewInode(ctx, ops, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: ino})
}

func dirAttr(out *fuse.AttrOut, ino uint64) syscall.Errno {
	out.Mode = 0555
	out.Ino = ino
	return fs.OK
}

func line(s string) []byte {
	return []byte(s + "\n")
}
