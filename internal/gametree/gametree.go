// Package gametree implements the branching move tree: nodes keyed by
// id, each holding the position reached after its move, with a current
// cursor and variation support.
package gametree

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/walterschell/shogi-analyzer/internal/notation"
	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

func newID() string {
	return uuid.NewString()
}

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Node is one position in the tree, reached via move_usi from its parent.
type Node struct {
	NodeID       string `json:"node_id"`
	GameID       string `json:"game_id"`
	ParentID     string `json:"parent_id,omitempty"`
	OrderIndex   int    `json:"order_index"`
	MoveUSI      string `json:"move_usi,omitempty"`
	MoveLabel    string `json:"move_label"`
	Comment      string `json:"comment"`
	PositionSFEN string `json:"position_sfen"`
	CreatedAt    string `json:"created_at"`
}

// Tree is a complete game: metadata plus every node reachable from the root.
type Tree struct {
	GameID        string            `json:"game_id"`
	Title         string            `json:"title"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	InitialSFEN   string            `json:"initial_sfen"`
	RootNodeID    string            `json:"root_node_id"`
	CurrentNodeID string            `json:"current_node_id"`
	Meta          map[string]any    `json:"meta"`
	UIState       map[string]any    `json:"ui_state"`
	Nodes         map[string]*Node  `json:"nodes"`
}

// New creates a fresh game tree rooted at initialSFEN (DefaultStart if empty).
func New(title, initialSFEN string) (*Tree, error) {
	initial, err := sfen.Normalize(initialSFEN)
	if err != nil {
		return nil, err
	}
	gameID := newID()
	now := nowISO()
	rootID := newID()
	if title == "" {
		title = "Untitled game"
	}
	root := &Node{
		NodeID:       rootID,
		GameID:       gameID,
		OrderIndex:   0,
		MoveLabel:    "root",
		PositionSFEN: initial,
		CreatedAt:    now,
	}
	return &Tree{
		GameID:        gameID,
		Title:         title,
		CreatedAt:     now,
		UpdatedAt:     now,
		InitialSFEN:   initial,
		RootNodeID:    rootID,
		CurrentNodeID: rootID,
		Meta:          map[string]any{},
		UIState:       map[string]any{},
		Nodes:         map[string]*Node{rootID: root},
	}, nil
}

func (t *Tree) touch() {
	t.UpdatedAt = nowISO()
}

// GetNode looks up a node by id.
func (t *Tree) GetNode(nodeID string) (*Node, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("gametree: node not found: %s", nodeID)
	}
	return n, nil
}

// ChildrenOf returns parentID's children, ordered by (OrderIndex, CreatedAt, NodeID).
func (t *Tree) ChildrenOf(parentID string) []*Node {
	var out []*Node
	for _, n := range t.Nodes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.NodeID < b.NodeID
	})
	return out
}

func (t *Tree) nextOrderIndex(parentID string) int {
	children := t.ChildrenOf(parentID)
	max := -1
	for _, c := range children {
		if c.OrderIndex > max {
			max = c.OrderIndex
		}
	}
	return max + 1
}

// Jump moves the current cursor to nodeID.
func (t *Tree) Jump(nodeID string) (*Node, error) {
	n, err := t.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	t.CurrentNodeID = n.NodeID
	t.touch()
	return n, nil
}

// PlayMove applies moveUSI from fromNodeID, reusing an existing child
// with the same move if one exists (idempotent), or creating a new one.
func (t *Tree) PlayMove(fromNodeID, moveUSI string) (*Node, error) {
	parent, err := t.GetNode(fromNodeID)
	if err != nil {
		return nil, err
	}
	for _, child := range t.ChildrenOf(parent.NodeID) {
		if child.MoveUSI == moveUSI {
			t.CurrentNodeID = child.NodeID
			t.touch()
			return child, nil
		}
	}
	positionSFEN, err := sfen.ApplyUSIMove(parent.PositionSFEN, moveUSI)
	if err != nil {
		return nil, err
	}
	label, err := notation.USIToKI2Label(parent.PositionSFEN, moveUSI, nil)
	if err != nil {
		label = moveUSI
	}
	node := &Node{
		NodeID:       newID(),
		GameID:       t.GameID,
		ParentID:     parent.NodeID,
		OrderIndex:   t.nextOrderIndex(parent.NodeID),
		MoveUSI:      moveUSI,
		MoveLabel:    label,
		PositionSFEN: positionSFEN,
		CreatedAt:    nowISO(),
	}
	t.Nodes[node.NodeID] = node
	t.CurrentNodeID = node.NodeID
	t.touch()
	return node, nil
}

// SetComment updates a node's free-text annotation.
func (t *Tree) SetComment(nodeID, comment string) error {
	n, err := t.GetNode(nodeID)
	if err != nil {
		return err
	}
	n.Comment = comment
	t.touch()
	return nil
}

// ReorderChildren rewrites order_index for parentID's children to match
// orderedChildIDs, which must be a permutation of the existing child set.
func (t *Tree) ReorderChildren(parentID string, orderedChildIDs []string) error {
	children := t.ChildrenOf(parentID)
	childSet := make(map[string]bool, len(children))
	for _, c := range children {
		childSet[c.NodeID] = true
	}
	if len(orderedChildIDs) != len(childSet) {
		return fmt.Errorf("gametree: ordered_child_ids must match child set")
	}
	seen := make(map[string]bool, len(orderedChildIDs))
	for _, id := range orderedChildIDs {
		if !childSet[id] || seen[id] {
			return fmt.Errorf("gametree: ordered_child_ids must match child set")
		}
		seen[id] = true
	}
	for idx, id := range orderedChildIDs {
		t.Nodes[id].OrderIndex = idx
	}
	t.touch()
	return nil
}

// PathTo returns the root-to-node chain ending at nodeID (current node
// if nodeID is empty). Detects cycles introduced by corrupted data.
func (t *Tree) PathTo(nodeID string) ([]*Node, error) {
	curID := nodeID
	if curID == "" {
		curID = t.CurrentNodeID
	}
	var chain []*Node
	seen := map[string]bool{}
	for curID != "" {
		if seen[curID] {
			return nil, fmt.Errorf("gametree: cycle detected in node tree")
		}
		seen[curID] = true
		n, err := t.GetNode(curID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, n)
		curID = n.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CurrentPathMoves returns the USI move sequence from the root to the
// current node.
func (t *Tree) CurrentPathMoves() ([]string, error) {
	path, err := t.PathTo("")
	if err != nil {
		return nil, err
	}
	var moves []string
	for _, n := range path {
		if n.MoveUSI != "" {
			moves = append(moves, n.MoveUSI)
		}
	}
	return moves, nil
}

// CurrentPositionSFEN returns the SFEN of the current node.
func (t *Tree) CurrentPositionSFEN() (string, error) {
	n, err := t.GetNode(t.CurrentNodeID)
	if err != nil {
		return "", err
	}
	return n.PositionSFEN, nil
}

// WireNode is the per-node shape sent to clients.
type WireNode struct {
	NodeID       string `json:"node_id"`
	GameID       string `json:"game_id"`
	ParentID     string `json:"parent_id,omitempty"`
	OrderIndex   int    `json:"order_index"`
	MoveUSI      string `json:"move_usi,omitempty"`
	MoveLabel    string `json:"move_label"`
	Comment      string `json:"comment"`
	PositionSFEN string `json:"position_sfen"`
	CreatedAt    string `json:"created_at"`
}

// Wire is the full tree payload sent to clients over the dispatcher.
type Wire struct {
	GameID              string              `json:"game_id"`
	Title               string              `json:"title"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
	InitialSFEN         string              `json:"initial_sfen"`
	RootNodeID          string              `json:"root_node_id"`
	CurrentNodeID       string              `json:"current_node_id"`
	CurrentPositionSFEN string              `json:"current_position_sfen"`
	Meta                map[string]any      `json:"meta"`
	UIState             map[string]any      `json:"ui_state"`
	Nodes               []WireNode          `json:"nodes"`
	ChildrenIndex       map[string][]string `json:"children_index"`
	CurrentPathNodeIDs  []string            `json:"current_path_node_ids"`
	CurrentPathMoves    []string            `json:"current_path_moves"`
}

// ToWire renders the tree into its client-facing representation.
func (t *Tree) ToWire() (*Wire, error) {
	current, err := t.GetNode(t.CurrentNodeID)
	if err != nil {
		return nil, err
	}
	childrenIndex := map[string][]string{}
	for _, n := range t.Nodes {
		if n.ParentID == "" {
			continue
		}
		childrenIndex[n.ParentID] = append(childrenIndex[n.ParentID], n.NodeID)
	}
	for parentID, childIDs := range childrenIndex {
		ids := childIDs
		sort.Slice(ids, func(i, j int) bool {
			a, b := t.Nodes[ids[i]], t.Nodes[ids[j]]
			if a.OrderIndex != b.OrderIndex {
				return a.OrderIndex < b.OrderIndex
			}
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
			return a.NodeID < b.NodeID
		})
		childrenIndex[parentID] = ids
	}

	var nodeRecords []WireNode
	for _, n := range t.Nodes {
		nodeRecords = append(nodeRecords, WireNode(*n))
	}
	sort.Slice(nodeRecords, func(i, j int) bool {
		a, b := nodeRecords[i], nodeRecords[j]
		aRoot, bRoot := a.ParentID == "", b.ParentID == ""
		if aRoot != bRoot {
			return aRoot
		}
		if a.ParentID != b.ParentID {
			return a.ParentID < b.ParentID
		}
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.NodeID < b.NodeID
	})

	path, err := t.PathTo("")
	if err != nil {
		return nil, err
	}
	pathIDs := make([]string, len(path))
	for i, n := range path {
		pathIDs[i] = n.NodeID
	}
	pathMoves, err := t.CurrentPathMoves()
	if err != nil {
		return nil, err
	}

	return &Wire{
		GameID:              t.GameID,
		Title:               t.Title,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		InitialSFEN:         t.InitialSFEN,
		RootNodeID:          t.RootNodeID,
		CurrentNodeID:       t.CurrentNodeID,
		CurrentPositionSFEN: current.PositionSFEN,
		Meta:                t.Meta,
		UIState:             t.UIState,
		Nodes:               nodeRecords,
		ChildrenIndex:       childrenIndex,
		CurrentPathNodeIDs:  pathIDs,
		CurrentPathMoves:    pathMoves,
	}, nil
}
