package fuse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/coursefs/internal/dag"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Intro":         "Intro",
		"  padded  ":    "padded",
		"a/b":           "a_b",
		"":              "untitled",
		".":             "untitled",
		"..":            "untitled",
		"nul\x00inside": "nul_inside",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitize(in), "sanitize(%q)", in)
	}
}

func TestChildEntries(t *testing.T) {
	intro := dag.NewTree("Intro")
	video := dag.NewBlob("Intro", dag.Video, "http://v")
	notes := dag.NewBlob("Notes", dag.Markdown, "http://n")
	link := dag.NewBlob("Notes", dag.Weblink, "http://l")

	got := childEntries([]dag.Node{intro, video, notes, link})
	names := make([]string, len(got))
	for i, e := range got {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"Intro", "Intro.video", "Notes.md", "Notes.url"}, names)
	assert.Equal(t, video, got[1].Node)
}

func TestChildEntries_Collisions(t *testing.T) {
	a := dag.NewBlob("Clip", dag.Video, "http://a")
	b := dag.NewBlob("Clip", dag.Video, "http://b")

	got := childEntries([]dag.Node{a, b, a})
	require.Len(t, got, 3)
	assert.Equal(t, "Clip~"+a.Checksum[:8]+".video", got[0].Name)
	assert.Equal(t, "Clip~"+b.Checksum[:8]+".video", got[1].Name)
	assert.Equal(t, "Clip~"+a.Checksum[:8]+"-2.video", got[2].Name)

	seen := map[string]bool{}
	for _, e := range got {
		assert.False(t, seen[e.Name], "duplicate name %s", e.Name)
		seen[e.Name] = true
	}
}

func TestBranchEntries(t *testing.T) {
	got := branchEntries([]string{"a/b", "a_b", dag.DefaultBranch})
	require.Len(t, got, 3)
	assert.Equal(t, "a_b~"+fmt.Sprintf("%08x", uint32(stableIno("a/b"))), got[0].Name)
	assert.Equal(t, "a_b~"+fmt.Sprintf("%08x", uint32(stableIno("a_b"))), got[1].Name)
	assert.NotEqual(t, got[0].Name, got[1].Name)
	assert.Equal(t, branchEntry{Name: dag.DefaultBranch, Branch: dag.DefaultBranch}, got[2])

	byName := map[string]string{}
	for _, e := range got {
		byName[e.Name] = e.Branch
	}
	assert.Equal(t, "a/b", byName[got[0].Name])
	assert.Equal(t, "a_b", byName[got[1].Name])
}

func TestReadSlice(t *testing.T) {
	data := []byte("hello")
	assert.Equal(t, []byte("hel"), readSlice(data, make([]byte, 3), 0))
	assert.Equal(t, []byte("lo"), readSlice(data, make([]byte, 10), 3))
	assert.Nil(t, readSlice(data, make([]byte, 3), 5))
	assert.Nil(t, readSlice(data, make([]byte, 3), -1))
}

func TestStableIno(t *testing.T) {
	assert.Equal(t, stableIno("c", "nodes"), stableIno("c/nodes"))
	assert.NotEqual(t, stableIno("c", "title"), stableIno("c", "description"))
}

func TestNodeDocument(t *testing.T) {
	n := dag.NewBlob("b", dag.Video, "http://x")
	data, err := nodeDocument(n)
	require.NoError(t, err)

	var doc struct {
		CID  string   `json:"cid"`
		Node dag.Node `json:"node"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, n, doc.Node)
	c, err := n.CID()
	require.NoError(t, err)
	assert.Equal(t, dag.CIDString(c), doc.CID)
}

func TestCommitDocument(t *testing.T) {
	doc := string(commitDocument(dag.Commit{Timestamp: fixedNow.UnixMilli(), Checksum: "abc"}))
	assert.Contains(t, doc, `"checksum": "abc"`)
	assert.Contains(t, doc, `"timestamp": 1704067200000`)
	assert.Contains(t, doc, `"time": "2024-01-01T00:00:00.000Z"`)
}

type fakeSource struct {
	courses map[string]*dag.Course
}

func (f *fakeSource) Courses(context.Context) ([]*dag.Course, error) {
	var out []*dag.Course
	for _, c := range f.courses {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSource) GetCourse(_ context.Context, id string) (*dag.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, errors.Wrapf(dag.ErrNotFound, "course %s", id)
	}
	return c, nil
}

func newTestFS(t *testing.T, courses ...*dag.Course) (*filesystem, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	src := &fakeSource{courses: map[string]*dag.Course{}}
	for _, c := range courses {
		src.courses[c.ID] = c
	}
	return &filesystem{src: src, log: logrus.NewEntry(logger)}, hook
}

func TestBranchHeadAndTreeEntries(t *testing.T) {
	c := dag.NewCourse("c1", "Course", "", fixedNow)
	root, err := c.Root()
	require.NoError(t, err)
	folder, err := c.AddNode(dag.DefaultBranch, dag.NodeContent{Title: "Week 1", Type: dag.TreeNode}, []string{root.Checksum}, fixedNow)
	require.NoError(t, err)
	root, err = c.Root()
	require.NoError(t, err)
	_, err = c.AddNode(dag.DefaultBranch, dag.NodeContent{Title: "Intro", Type: dag.BlobNode, BlobType: dag.Video, URL: "http://v"}, []string{root.Checksum, folder.Checksum}, fixedNow)
	require.NoError(t, err)

	fsys, _ := newTestFS(t, c)
	bd := &BranchDir{fsys: fsys, courseID: "c1", branch: dag.DefaultBranch, dir: dag.DefaultBranch}
	_, head, errno := bd.head(context.Background())
	require.Equal(t, fs.OK, errno)
	root, err = c.Root()
	require.NoError(t, err)
	assert.Equal(t, root, head)

	td := &TreeDir{fsys: fsys, courseID: "c1", checksum: head.Checksum, path: bd.path("tree")}
	ents, errno := td.entries(context.Background())
	require.Equal(t, fs.OK, errno)
	require.Len(t, ents, 1)
	assert.Equal(t, "Week 1", ents[0].Name)

	sub := td.child(ents[0])
	assert.NotEqual(t, td.ino(), sub.ino())
	ents, errno = sub.entries(context.Background())
	require.Equal(t, fs.OK, errno)
	require.Len(t, ents, 1)
	assert.Equal(t, "Intro.video", ents[0].Name)
	assert.Equal(t, "http://v", ents[0].Node.URL)

	bd.branch = "ghost"
	_, _, errno = bd.head(context.Background())
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestTreeEntries_SkipsDanglingChild(t *testing.T) {
	c := dag.NewCourse("c1", "Course", "", fixedNow)
	root, err := c.Root()
	require.NoError(t, err)
	blob, err := c.AddNode(dag.DefaultBranch, dag.NodeContent{Title: "x", Type: dag.BlobNode, BlobType: dag.Weblink, URL: "u"}, []string{root.Checksum}, fixedNow)
	require.NoError(t, err)
	delete(c.Nodes, blob.Checksum)
	root, err = c.Root()
	require.NoError(t, err)

	fsys, hook := newTestFS(t, c)
	td := &TreeDir{fsys: fsys, courseID: "c1", checksum: root.Checksum, path: []string{"c1", "tree"}}
	ents, errno := td.entries(context.Background())
	require.Equal(t, fs.OK, errno)
	assert.Empty(t, ents)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestErrno(t *testing.T) {
	fsys, hook := newTestFS(t)
	_, errno := fsys.course(context.Background(), "missing")
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Nil(t, hook.LastEntry(), "plain misses are not logged")

	assert.Equal(t, syscall.EIO, fsys.errno(errors.New("disk on fire"), "course", "c1"))
	require.NotNil(t, hook.LastEntry())
	assert.True(t, strings.Contains(hook.LastEntry().Message, "lookup failed"))
}
