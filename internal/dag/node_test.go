package dag

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_KnownVectors(t *testing.T) {
	tree := NewTree("X")
	assert.Equal(t, `{"title":"X","nodeType":"tree","blobType":null,"url":null,"children":[]}`, string(CanonicalBytes(tree)))
	assert.Equal(t, "167fc2c18744531a262875fdda93fd4afd491b5d31ee29e78b6822d70d7b2260", tree.Checksum)

	blob := NewBlob("Learning Promises", Video, "http://learningpromises.com")
	assert.Equal(t, `{"title":"Learning Promises","nodeType":"blob","blobType":"VIDEO","url":"http://learningpromises.com","children":null}`, string(CanonicalBytes(blob)))
	assert.Equal(t, "033f84caf52b9544562108a8c60deac97d728f28343899d4d15ce6b4a0807c5a", blob.Checksum)
}

func TestChecksum_Deterministic(t *testing.T) {
	n := NewTree("Fundamentals").WithChildren([]string{"a", "b"})
	first := Checksum(n)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Checksum(n), "iteration %d", i)
	}
	assert.Len(t, first, 64)
}

func TestChecksum_IgnoresStoredChecksum(t *testing.T) {
	n := NewBlob("a", Markdown, "u")
	tampered := n
	tampered.Checksum = "deadbeef"
	assert.Equal(t, n.Checksum, Checksum(tampered))
}

func TestChecksum_ChildOrderMatters(t *testing.T) {
	ab := NewTree("t").WithChildren([]string{"a", "b"})
	ba := NewTree("t").WithChildren([]string{"b", "a"})
	assert.NotEqual(t, ab.Checksum, ba.Checksum)
}

func TestChecksum_NilAndEmptyChildrenAgree(t *testing.T) {
	n := Node{Title: "t", Type: TreeNode}
	assert.Equal(t, NewTree("t").Checksum, Checksum(n))
}

func TestChecksum_VariantsDiffer(t *testing.T) {
	assert.NotEqual(t, NewTree("same").Checksum, NewBlob("same", Weblink, "").Checksum)
	assert.NotEqual(t, NewBlob("same", Weblink, "u").Checksum, NewBlob("same", Video, "u").Checksum)
}

func TestWithChildren_DoesNotAlias(t *testing.T) {
	children := []string{"a"}
	n := NewTree("t").WithChildren(children)
	children[0] = "z"
	assert.Equal(t, []string{"a"}, n.Children)

	m := n.WithChildren(append(n.Children, "b"))
	assert.Equal(t, []string{"a"}, n.Children)
	assert.Equal(t, []string{"a", "b"}, m.Children)
	assert.NotEqual(t, n.Checksum, m.Checksum)
}

func TestMaterialize(t *testing.T) {
	tree, err := NodeContent{Title: "Folder", Type: TreeNode}.Materialize()
	require.NoError(t, err)
	assert.True(t, tree.IsTree())
	assert.Empty(t, tree.Children)
	assert.NotNil(t, tree.Children)

	blob, err := NodeContent{Title: "Clip", Type: BlobNode, BlobType: Video, URL: "http://v"}.Materialize()
	require.NoError(t, err)
	assert.Equal(t, NewBlob("Clip", Video, "http://v"), blob)
	assert.Nil(t, blob.Children)

	_, err = NodeContent{Title: "x", Type: "folder"}.Materialize()
	assert.True(t, errors.Is(err, ErrInvalidNode))

	_, err = NodeContent{Title: "x", Type: BlobNode, BlobType: "PDF"}.Materialize()
	var inv *InvalidNodeError
	require.True(t, errors.As(err, &inv))
	assert.Contains(t, inv.Reason, "PDF")
}

func TestNodeJSON_Shapes(t *testing.T) {
	data, err := json.Marshal(NewTree("t"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","nodeType":"tree","checksum":"`+NewTree("t").Checksum+`","children":[]}`, string(data))

	blob := NewBlob("b", Weblink, "http://x")
	data, err = json.Marshal(blob)
	require.NoError(t, err)
	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, blob, decoded)
	assert.NotContains(t, string(data), "children")
}

func TestNodeCID_MatchesChecksum(t *testing.T) {
	n := NewBlob("b", Video, "http://x")
	c, err := n.CID()
	require.NoError(t, err)

	decoded, err := multihash.Decode(c.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint64(multihash.SHA2_256), decoded.Code)
	assert.Equal(t, n.Checksum, hex.EncodeToString(decoded.Digest))

	s := CIDString(c)
	assert.Equal(t, byte('b'), s[0], "base32lower multibase prefix")

	_, err = Node{Checksum: "not-hex"}.CID()
	assert.Error(t, err)
}

func TestCanonicalJSON_SortedKeys(t *testing.T) {
	input := map[string]interface{}{"b": 1, "a": 2}
	got, err := CanonicalJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(got))
}

func TestCanonicalJSON_NestedObjects(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"b": 1,
			"a": 2,
		},
		"a": "first",
	}
	got, err := CanonicalJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"first","z":{"a":2,"b":1}}`, string(got))
}

func TestCanonicalJSON_ArraysPreserved(t *testing.T) {
	got, err := CanonicalJSON(map[string]interface{}{"arr": []interface{}{3, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[3,1,2]}`, string(got))
}

func TestCanonicalJSON_Course(t *testing.T) {
	c := NewCourse("c1", "X", "d", fixedNow)
	first, err := CanonicalJSON(c)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		got, err := CanonicalJSON(c)
		require.NoError(t, err)
		require.Equal(t, string(first), string(got))
	}
	assert.Contains(t, string(first), `"head":"master"`)
	assert.Contains(t, string(first), `"parent":null`)
}
