package badgerstore

import (
	"context"
	"errors"
	"testing"

	"github.com/walterschell/shogi-analyzer/internal/engine"
	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndLoadGameRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tree, err := s.CreateGame(ctx, "My Game", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	loaded, err := s.LoadGame(ctx, tree.GameID)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.Title != "My Game" || loaded.RootNodeID != tree.RootNodeID {
		t.Errorf("loaded tree mismatch: %+v", loaded)
	}
}

func TestLoadGameNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadGame(context.Background(), "nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestSaveGameReplacesNodeSet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tree, err := s.CreateGame(ctx, "Game", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := tree.PlayMove(tree.RootNodeID, "7g7f"); err != nil {
		t.Fatalf("PlayMove: %v", err)
	}
	if err := s.SaveGame(ctx, tree); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	afterFirstSave, err := s.LoadGame(ctx, tree.GameID)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if len(afterFirstSave.Nodes) != 2 {
		t.Fatalf("expected 2 nodes after first save, got %d", len(afterFirstSave.Nodes))
	}

	// Save again with only the root node present: SaveGame must fully
	// replace the stored node set rather than merge into it.
	tree.Nodes = map[string]*gametree.Node{tree.RootNodeID: tree.Nodes[tree.RootNodeID]}
	if err := s.SaveGame(ctx, tree); err != nil {
		t.Fatalf("SaveGame (second): %v", err)
	}
	afterSecondSave, err := s.LoadGame(ctx, tree.GameID)
	if err != nil {
		t.Fatalf("LoadGame (final): %v", err)
	}
	if len(afterSecondSave.Nodes) != 1 {
		t.Errorf("expected node set to be fully replaced by the second save, got %d nodes", len(afterSecondSave.Nodes))
	}
}

func TestLastGameID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.GetLastGameID(ctx)
	if err != nil {
		t.Fatalf("GetLastGameID: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty last game id, got %q", id)
	}

	if err := s.SetLastGameID(ctx, "abc"); err != nil {
		t.Fatalf("SetLastGameID: %v", err)
	}
	id, err = s.GetLastGameID(ctx)
	if err != nil {
		t.Fatalf("GetLastGameID: %v", err)
	}
	if id != "abc" {
		t.Errorf("got %q, want abc", id)
	}
}

func TestEnsureLastOrCreate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tree, err := s.EnsureLastOrCreate(ctx)
	if err != nil {
		t.Fatalf("EnsureLastOrCreate: %v", err)
	}
	if tree.Title != "Recovered game" {
		t.Errorf("expected a freshly recovered game, got %q", tree.Title)
	}

	again, err := s.EnsureLastOrCreate(ctx)
	if err != nil {
		t.Fatalf("EnsureLastOrCreate (second call): %v", err)
	}
	if again.GameID != tree.GameID {
		t.Errorf("expected the same game to be returned once one exists")
	}
}

func TestDeleteGameClearsLastGameID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tree, err := s.CreateGame(ctx, "Game", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if err := s.DeleteGame(ctx, tree.GameID); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if _, err := s.LoadGame(ctx, tree.GameID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	id, err := s.GetLastGameID(ctx)
	if err != nil {
		t.Fatalf("GetLastGameID: %v", err)
	}
	if id != "" {
		t.Errorf("expected last game id cleared after deleting the current game, got %q", id)
	}
}

func TestSaveAnalysisSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	lines := []engine.Line{{PVIndex: 1, ScoreType: "cp", ScoreValue: 35, Depth: 12, PVUSI: []string{"7g7f"}}}
	id, err := s.SaveAnalysisSnapshot(ctx, "node-1", 500, 1, lines)
	if err != nil {
		t.Fatalf("SaveAnalysisSnapshot: %v", err)
	}
	if id == "" {
		t.Error("expected a non-empty snapshot id")
	}
}

func TestListGamesOrdersByUpdatedAtDescending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.CreateGame(ctx, "First", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	second, err := s.CreateGame(ctx, "Second", "")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	second.UpdatedAt = "2999-01-01T00:00:00Z"
	if err := s.SaveGame(ctx, second); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	games, err := s.ListGames(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[0].GameID != second.GameID {
		t.Errorf("expected most recently updated game first, got %q (first=%q)", games[0].GameID, first.GameID)
	}
}
