package dag

import "time"

// DefaultBranch is the branch every course starts with.
const DefaultBranch = "master"

// Commit records one snapshot of a branch: the root tree at a point in time.
type Commit struct {
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"` // epoch milliseconds
	Checksum  string `json:"checksum" msgpack:"checksum"`   // root tree
}

// Time returns the commit timestamp.
func (c Commit) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Branch is a named, append-only sequence of commits. Once created it
// always holds at least one commit.
type Branch struct {
	Parent  *string  `json:"parent" msgpack:"parent"`
	Commits []Commit `json:"commits" msgpack:"commits"`
}

// Head returns the latest commit.
func (b *Branch) Head() Commit {
	return b.Commits[len(b.Commits)-1]
}

// append adds c without touching any backing array another branch may
// share: the capacity is clipped, so append always reallocates.
func (b *Branch) append(c Commit) {
	n := len(b.Commits)
	b.Commits = append(b.Commits[:n:n], c)
}

func (b *Branch) clone() *Branch {
	out := &Branch{Commits: append([]Commit{}, b.Commits...)}
	if b.Parent != nil {
		p := *b.Parent
		out.Parent = &p
	}
	return out
}
