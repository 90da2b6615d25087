package dag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a course, branch or node is absent.
	ErrNotFound = errors.New("not found")

	// ErrBrokenPath is returned when a mutation path does not resolve to a
	// chain of ancestors starting at the branch root.
	ErrBrokenPath = errors.New("broken path")

	// ErrDuplicateBranch is returned when creating a branch whose name is taken.
	ErrDuplicateBranch = errors.New("branch already exists")

	// ErrDuplicateCourse is returned by stores asked to create an existing id.
	ErrDuplicateCourse = errors.New("course already exists")

	// ErrConflict is returned when a save loses a race against another writer.
	// The caller may reload and retry.
	ErrConflict = errors.New("concurrent write lost")

	// ErrInvalidNode is the target of InvalidNodeError.
	ErrInvalidNode = errors.New("invalid node")
)

// InvalidNodeError describes node content that cannot be materialized.
type InvalidNodeError struct {
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return "invalid node: " + e.Reason
}

func (e *InvalidNodeError) Unwrap() error {
	return ErrInvalidNode
}

// MissingNodesError lists checksums a lookup could not resolve.
type MissingNodesError struct {
	Checksums []string
}

func (e *MissingNodesError) Error() string {
	return fmt.Sprintf("%d node(s) not found: %s", len(e.Checksums), strings.Join(e.Checksums, ", "))
}

func (e *MissingNodesError) Unwrap() error {
	return ErrNotFound
}

// brokenPath wraps ErrBrokenPath with the offending position.
func brokenPath(pos int, checksum, reason string) error {
	return errors.Wrapf(ErrBrokenPath, "path[%d] %s: %s", pos, short(checksum), reason)
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
