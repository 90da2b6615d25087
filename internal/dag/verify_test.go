package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_Clean(t *testing.T) {
	c := newTestCourse(t)
	root := headRoot(t, c, DefaultBranch)
	tree, err := c.AddNode(DefaultBranch, folder, []string{root.Checksum}, fixedNow)
	require.NoError(t, err)
	root = headRoot(t, c, DefaultBranch)
	_, err = c.AddNode(DefaultBranch, clip, []string{root.Checksum, tree.Checksum}, fixedNow)
	require.NoError(t, err)

	problems, err := Verify(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestVerify_TamperedNode(t *testing.T) {
	c := newTestCourse(t)
	root := headRoot(t, c, DefaultBranch)
	blob, err := c.AddNode(DefaultBranch, clip, []string{root.Checksum}, fixedNow)
	require.NoError(t, err)

	tampered := c.Nodes[blob.Checksum]
	tampered.URL = "http://elsewhere"
	c.Nodes[blob.Checksum] = tampered

	problems, err := Verify(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, blob.Checksum, problems[0].Checksum)
	assert.Contains(t, problems[0].Reason, "content hashes to")
}

func TestVerify_MissingChildAndRoot(t *testing.T) {
	c := newTestCourse(t)
	root := headRoot(t, c, DefaultBranch)
	blob, err := c.AddNode(DefaultBranch, clip, []string{root.Checksum}, fixedNow)
	require.NoError(t, err)
	delete(c.Nodes, blob.Checksum)
	delete(c.Nodes, root.Checksum)

	problems, err := Verify(context.Background(), c)
	require.NoError(t, err)

	var reasons []string
	for _, p := range problems {
		reasons = append(reasons, p.Reason)
	}
	assert.Contains(t, reasons, "missing child "+short(blob.Checksum))
	assert.Contains(t, reasons, "commit root missing")
	for _, p := range problems {
		if p.Reason == "commit root missing" {
			assert.Equal(t, DefaultBranch, p.Branch)
			assert.Equal(t, root.Checksum, p.Checksum)
		}
	}
}

func TestVerify_BlobCommitRoot(t *testing.T) {
	c := newTestCourse(t)
	blob := NewBlob("b", Video, "u")
	c.Nodes.Put(blob)
	c.Branches["odd"] = &Branch{Commits: []Commit{{Timestamp: fixedNow.UnixMilli(), Checksum: blob.Checksum}}}

	problems, err := Verify(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "odd", problems[0].Branch)
	assert.Equal(t, "commit root is not a tree", problems[0].Reason)
	assert.Contains(t, problems[0].String(), "branch odd")
}

func TestVerify_Cancelled(t *testing.T) {
	c := newTestCourse(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Verify(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)
}
