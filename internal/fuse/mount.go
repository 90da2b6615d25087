// Package fuse exposes stored courses as a read-only filesystem.
//
//	<courseID>/title
//	<courseID>/description
//	<courseID>/branches/<name>/HEAD
//	<courseID>/branches/<name>/log/<n>      0 is the newest commit
//	<courseID>/branches/<name>/tree/...     trees as directories, blobs as files
//	<courseID>/nodes/<checksum>.json
package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/systemshift/coursefs/internal/dag"
)

// Source is where the mount reads courses from. Every lookup reads
// fresh state, so commits made while mounted show up on the next lookup.
type Source interface {
	Courses(ctx context.Context) ([]*dag.Course, error)
	GetCourse(ctx context.Context, id string) (*dag.Course, error)
}

// Options tune the mount.
type Options struct {
	Name   string // shown as the filesystem name
	Debug  bool
	Logger *log.Entry
}

// MountFS mounts src read-only at mountpoint. Call Wait on the returned
// server to block and Unmount to stop.
func MountFS(mountpoint string, src Source, opts Options) (*gofuse.Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "fuse")
	}
	name := opts.Name
	if name == "" {
		name = "coursefs"
	}
	root := &RootNode{fsys: &filesystem{src: src, log: logger}}

	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        name,
			Name:          "coursefs",
			DisableXAttrs: true,
			Debug:         opts.Debug,
			Options:       []string{"ro"},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "mount %s", mountpoint)
	}
	logger.WithField("mountpoint", mountpoint).Info("mounted")
	return server, nil
}

// filesystem is shared by every inode of one mount.
type filesystem struct {
	src Source
	log *log.Entry
}

func (f *filesystem) course(ctx context.Context, id string) (*dag.Course, syscall.Errno) {
	c, err := f.src.GetCourse(ctx, id)
	if err != nil {
		return nil, f.errno(err, "course", id)
	}
	return c, fs.OK
}

// errno maps err to a FUSE status, logging anything but a plain miss.
func (f *filesystem) errno(err error, what, name string) syscall.Errno {
	if errors.Is(err, dag.ErrNotFound) {
		return syscall.ENOENT
	}
	f.log.WithError(err).WithField(what, name).Warn("lookup failed")
	return syscall.EIO
}
