package gametree

import (
	"testing"

	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

func TestNewCreatesRootAtInitialSFEN(t *testing.T) {
	tree, err := New("", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tree.InitialSFEN != sfen.DefaultStart {
		t.Errorf("expected default start, got %q", tree.InitialSFEN)
	}
	if tree.CurrentNodeID != tree.RootNodeID {
		t.Errorf("expected current node to be root initially")
	}
	if tree.Title != "Untitled game" {
		t.Errorf("expected default title, got %q", tree.Title)
	}
}

func TestPlayMoveCreatesChildAndAdvancesCursor(t *testing.T) {
	tree, _ := New("", "")
	node, err := tree.PlayMove(tree.RootNodeID, "7g7f")
	if err != nil {
		t.Fatalf("PlayMove: %v", err)
	}
	if tree.CurrentNodeID != node.NodeID {
		t.Errorf("expected cursor to advance to new node")
	}
	if node.ParentID != tree.RootNodeID {
		t.Errorf("expected new node's parent to be root")
	}
}

func TestPlayMoveIsIdempotent(t *testing.T) {
	tree, _ := New("", "")
	first, err := tree.PlayMove(tree.RootNodeID, "7g7f")
	if err != nil {
		t.Fatalf("PlayMove: %v", err)
	}
	second, err := tree.PlayMove(tree.RootNodeID, "7g7f")
	if err != nil {
		t.Fatalf("PlayMove (repeat): %v", err)
	}
	if first.NodeID != second.NodeID {
		t.Errorf("expected replaying the same move from the same node to reuse the existing child")
	}
	if len(tree.ChildrenOf(tree.RootNodeID)) != 1 {
		t.Errorf("expected exactly one child after replaying the same move")
	}
}

func TestPlayMoveBranchesOnDifferentMoves(t *testing.T) {
	tree, _ := New("", "")
	if _, err := tree.PlayMove(tree.RootNodeID, "7g7f"); err != nil {
		t.Fatalf("PlayMove: %v", err)
	}
	if _, err := tree.PlayMove(tree.RootNodeID, "2g2f"); err != nil {
		t.Fatalf("PlayMove: %v", err)
	}
	children := tree.ChildrenOf(tree.RootNodeID)
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
}

func TestPlayMoveRejectsIllegalMove(t *testing.T) {
	tree, _ := New("", "")
	if _, err := tree.PlayMove(tree.RootNodeID, "5e5d"); err == nil {
		t.Error("expected error for a move with an empty source square")
	}
}

func TestJumpAndPathTo(t *testing.T) {
	tree, _ := New("", "")
	n1, _ := tree.PlayMove(tree.RootNodeID, "7g7f")
	n2, _ := tree.PlayMove(n1.NodeID, "3c3d")

	if _, err := tree.Jump(tree.RootNodeID); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if tree.CurrentNodeID != tree.RootNodeID {
		t.Errorf("expected cursor at root after jump")
	}

	path, err := tree.PathTo(n2.NodeID)
	if err != nil {
		t.Fatalf("PathTo: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected path length 3 (root, n1, n2), got %d", len(path))
	}
	if path[0].NodeID != tree.RootNodeID || path[2].NodeID != n2.NodeID {
		t.Errorf("unexpected path order: %v", path)
	}
}

func TestJumpRejectsUnknownNode(t *testing.T) {
	tree, _ := New("", "")
	if _, err := tree.Jump("does-not-exist"); err == nil {
		t.Error("expected error for unknown node id")
	}
}

func TestSetCommentAndReorderChildren(t *testing.T) {
	tree, _ := New("", "")
	n1, _ := tree.PlayMove(tree.RootNodeID, "7g7f")
	n2, _ := tree.PlayMove(tree.RootNodeID, "2g2f")

	if err := tree.SetComment(n1.NodeID, "an opening move"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	got, err := tree.GetNode(n1.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Comment != "an opening move" {
		t.Errorf("got comment %q", got.Comment)
	}

	if err := tree.ReorderChildren(tree.RootNodeID, []string{n2.NodeID, n1.NodeID}); err != nil {
		t.Fatalf("ReorderChildren: %v", err)
	}
	children := tree.ChildrenOf(tree.RootNodeID)
	if children[0].NodeID != n2.NodeID || children[1].NodeID != n1.NodeID {
		t.Errorf("reorder did not take effect: %v", children)
	}
}

func TestReorderChildrenRejectsMismatchedSet(t *testing.T) {
	tree, _ := New("", "")
	n1, _ := tree.PlayMove(tree.RootNodeID, "7g7f")
	_ = n1
	if err := tree.ReorderChildren(tree.RootNodeID, []string{"bogus-id"}); err == nil {
		t.Error("expected error for a permutation that does not match the child set")
	}
}

func TestToWireIncludesCurrentPath(t *testing.T) {
	tree, _ := New("", "")
	n1, _ := tree.PlayMove(tree.RootNodeID, "7g7f")
	_, _ = tree.PlayMove(n1.NodeID, "3c3d")

	wire, err := tree.ToWire()
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	if len(wire.CurrentPathNodeIDs) != 3 {
		t.Errorf("expected 3 nodes on current path, got %d", len(wire.CurrentPathNodeIDs))
	}
	if len(wire.CurrentPathMoves) != 2 {
		t.Errorf("expected 2 moves on current path, got %d", len(wire.CurrentPathMoves))
	}
	if len(wire.Nodes) != 3 {
		t.Errorf("expected 3 total nodes, got %d", len(wire.Nodes))
	}
}
