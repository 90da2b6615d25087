package dag

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// NodeType discriminates the two node variants.
type NodeType string

const (
	TreeNode NodeType = "tree"
	BlobNode NodeType = "blob"
)

// BlobType is the kind of content a blob points at.
type BlobType string

const (
	Video    BlobType = "VIDEO"
	Markdown BlobType = "MARKDOWN"
	Weblink  BlobType = "WEBLINK"
)

// Valid reports whether b is one of the known blob types.
func (b BlobType) Valid() bool {
	switch b {
	case Video, Markdown, Weblink:
		return true
	}
	return false
}

// Node is a content-addressed course node. Tree nodes use Children;
// blob nodes use BlobType and URL. A Node is a value: every change goes
// through a constructor or a With* method and yields a new checksum.
type Node struct {
	Title    string   `json:"title" msgpack:"title"`
	Type     NodeType `json:"nodeType" msgpack:"nodeType"`
	BlobType BlobType `json:"blobType,omitempty" msgpack:"blobType,omitempty"`
	URL      string   `json:"url,omitempty" msgpack:"url,omitempty"`
	Checksum string   `json:"checksum" msgpack:"checksum"`
	Children []string `json:"children,omitempty" msgpack:"children,omitempty"`
}

// NodeContent is the caller-supplied description of a node to insert.
type NodeContent struct {
	Title    string   `json:"title" yaml:"title"`
	Type     NodeType `json:"nodeType" yaml:"nodeType"`
	BlobType BlobType `json:"blobType,omitempty" yaml:"blobType,omitempty"`
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// NewTree returns an empty tree node titled title.
func NewTree(title string) Node {
	return seal(Node{Title: title, Type: TreeNode, Children: []string{}})
}

// NewBlob returns a leaf node pointing at url.
func NewBlob(title string, blobType BlobType, url string) Node {
	return seal(Node{Title: title, Type: BlobNode, BlobType: blobType, URL: url})
}

// Materialize turns caller content into a stored node. Trees always start
// without children.
func (c NodeContent) Materialize() (Node, error) {
	switch c.Type {
	case TreeNode:
		return NewTree(c.Title), nil
	case BlobNode:
		if !c.BlobType.Valid() {
			return Node{}, &InvalidNodeError{Reason: "unknown blob type " + string(c.BlobType)}
		}
		return NewBlob(c.Title, c.BlobType, c.URL), nil
	default:
		return Node{}, &InvalidNodeError{Reason: "unknown node type " + string(c.Type)}
	}
}

// IsTree reports whether n is the tree variant.
func (n Node) IsTree() bool {
	return n.Type == TreeNode
}

// WithChildren returns a copy of tree node n holding children, re-hashed.
func (n Node) WithChildren(children []string) Node {
	out := n
	out.Children = append([]string{}, children...)
	return seal(out)
}

// HasChild reports whether checksum is among n's children.
func (n Node) HasChild(checksum string) bool {
	for _, c := range n.Children {
		if c == checksum {
			return true
		}
	}
	return false
}

// MarshalJSON writes the stored shape of each variant: trees always carry
// children, blobs never do.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Type {
	case TreeNode:
		children := n.Children
		if children == nil {
			children = []string{}
		}
		return json.Marshal(struct {
			Title    string   `json:"title"`
			Type     NodeType `json:"nodeType"`
			Checksum string   `json:"checksum"`
			Children []string `json:"children"`
		}{n.Title, n.Type, n.Checksum, children})
	default:
		return json.Marshal(struct {
			Title    string   `json:"title"`
			Type     NodeType `json:"nodeType"`
			BlobType BlobType `json:"blobType"`
			URL      string   `json:"url"`
			Checksum string   `json:"checksum"`
		}{n.Title, n.Type, n.BlobType, n.URL, n.Checksum})
	}
}

// CID returns the CIDv1 (raw codec) of the node's checksum.
func (n Node) CID() (gocid.Cid, error) {
	digest, err := hex.DecodeString(n.Checksum)
	if err != nil {
		return gocid.Undef, errors.Wrapf(err, "decode checksum %q", n.Checksum)
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return gocid.Undef, errors.Wrap(err, "multihash")
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// CIDString returns the base32lower encoding of c.
func CIDString(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

func seal(n Node) Node {
	if n.IsTree() && n.Children == nil {
		n.Children = []string{}
	}
	n.Checksum = Checksum(n)
	return n
}

// checksumFields is the hashed form of a node. Field order is part of
// the checksum and must not change.
type checksumFields struct {
	Title    string    `json:"title"`
	NodeType NodeType  `json:"nodeType"`
	BlobType *BlobType `json:"blobType"`
	URL      *string   `json:"url"`
	Children []string  `json:"children"`
}

// CanonicalBytes returns the serialization Checksum hashes.
func CanonicalBytes(n Node) []byte {
	f := checksumFields{Title: n.Title, NodeType: n.Type}
	switch n.Type {
	case TreeNode:
		f.Children = n.Children
		if f.Children == nil {
			f.Children = []string{}
		}
	case BlobNode:
		bt, url := n.BlobType, n.URL
		f.BlobType = &bt
		f.URL = &url
	}
	// a struct of strings cannot fail to marshal
	data, _ := json.Marshal(f)
	return data
}

// Checksum returns the hex SHA2-256 digest of the node's canonical fields.
// The stored checksum is never part of the input.
func Checksum(n Node) string {
	mh, err := multihash.Sum(CanonicalBytes(n), multihash.SHA2_256, -1)
	if err != nil {
		panic(err) // sha2-256 is always registered
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(decoded.Digest)
}

// CanonicalJSON produces a deterministic JSON encoding with sorted keys.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Re-decode into ordered structure and re-encode. UseNumber keeps
	// millisecond timestamps exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return canonicalEncode(raw)
}

func canonicalEncode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, _ := json.Marshal(k)
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			valBytes, err := canonicalEncode(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemBytes, err := canonicalEncode(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemBytes...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(v)
	}
}
