package team

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHierarchyCycle indicates corrupted invitation edges. The edge
	// set is acyclic by construction, so hitting this is a server bug,
	// not a user error.
	ErrHierarchyCycle = errors.New("cycle detected in team hierarchy")

	// ErrLeaderNotFound is returned when the hierarchy root does not exist
	ErrLeaderNotFound = errors.New("leader not found")
)

// MaxDepth caps hierarchy traversal. Real teams are a handful of levels
// deep; anything past this is treated as corruption.
const MaxDepth = 32

// MemberRow is one user loaded from the invitation-edge closure.
type MemberRow struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Role            string
	InvitedByUserID *uuid.UUID
	CreatedAt       time.Time
}

// TeamNode is the recursive hierarchy shape the client renders.
type TeamNode struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Role            string      `json:"role"`
	InvitedByUserID *uuid.UUID  `json:"invitedByUserId"`
	Children        []*TeamNode `json:"children"`
}

// TeamMember is the flattened member projection.
type TeamMember struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	InvitedByUserID *uuid.UUID `json:"invitedByUserId"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// FlattenedNode is one entry of a pre-order hierarchy traversal.
type FlattenedNode struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Depth int       `json:"depth"`
}

// BuildTree assembles the hierarchy rooted at rootID from loaded rows.
// Rows must include the root and arrive in load order; children keep
// that order. A repeated id or a chain deeper than MaxDepth fails with
// ErrHierarchyCycle instead of looping.
func BuildTree(rootID uuid.UUID, rows []MemberRow) (*TeamNode, error) {
	nodes := make(map[uuid.UUID]*TeamNode, len(rows))
	children := make(map[uuid.UUID][]uuid.UUID, len(rows))

	var root *TeamNode
	for _, row := range rows {
		if _, seen := nodes[row.ID]; seen {
			return nil, ErrHierarchyCycle
		}
		node := &TeamNode{
			ID:              row.ID,
			Name:            row.Name,
			Role:            row.Role,
			InvitedByUserID: row.InvitedByUserID,
			Children:        []*TeamNode{},
		}
		nodes[row.ID] = node
		if row.ID == rootID {
			root = node
			continue
		}
		if row.InvitedByUserID != nil {
			parent := *row.InvitedByUserID
			children[parent] = append(children[parent], row.ID)
		}
	}
	if root == nil {
		return nil, ErrLeaderNotFound
	}

	if err := attach(root, nodes, children, make(map[uuid.UUID]bool), 0); err != nil {
		return nil, err
	}
	return root, nil
}

func attach(node *TeamNode, nodes map[uuid.UUID]*TeamNode, children map[uuid.UUID][]uuid.UUID, visited map[uuid.UUID]bool, depth int) error {
	if depth > MaxDepth {
		return ErrHierarchyCycle
	}
	if visited[node.ID] {
		return ErrHierarchyCycle
	}
	visited[node.ID] = true

	for _, childID := range children[node.ID] {
		child, ok := nodes[childID]
		if !ok {
			continue
		}
		node.Children = append(node.Children, child)
		if err := attach(child, nodes, children, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Flatten walks a tree pre-order, producing {id, name, depth} tuples.
// The root has depth 0, each child the parent's depth plus one, and
// siblings keep their child-array order.
func Flatten(root *TeamNode) []FlattenedNode {
	var out []FlattenedNode
	var walk func(node *TeamNode, depth int)
	walk = func(node *TeamNode, depth int) {
		out = append(out, FlattenedNode{ID: node.ID, Name: node.Name, Depth: depth})
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(root, 0)
	return out
}
