// Package store defines the persistence boundary consumed by the
// runtime and the engine driver.
package store

import (
	"context"
	"errors"

	"github.com/walterschell/shogi-analyzer/internal/engine"
	"github.com/walterschell/shogi-analyzer/internal/gametree"
)

// ErrNotFound is returned when a requested game or node does not exist.
var ErrNotFound = errors.New("store: not found")

// GameSummary is the row shape returned by ListGames.
type GameSummary struct {
	GameID        string `json:"game_id"`
	Title         string `json:"title"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	InitialSFEN   string `json:"initial_sfen"`
	CurrentNodeID string `json:"current_node_id"`
}

// AnalysisSnapshot is a persisted tuple of engine output for one node.
type AnalysisSnapshot struct {
	SnapshotID string        `json:"snapshot_id"`
	NodeID     string        `json:"node_id"`
	ElapsedMS  int           `json:"elapsed_ms"`
	MultiPV    int           `json:"multipv"`
	Lines      []engine.Line `json:"lines"`
	CreatedAt  string        `json:"created_at"`
}

// Store is the persistence interface the runtime and engine driver
// consume. Implementations must provide upsert semantics for games and
// full-replace semantics for that game's node set per SaveGame.
type Store interface {
	ListGames(ctx context.Context, limit, offset int) ([]GameSummary, error)
	LoadGame(ctx context.Context, gameID string) (*gametree.Tree, error)
	SaveGame(ctx context.Context, tree *gametree.Tree) error
	DeleteGame(ctx context.Context, gameID string) error
	GetLastGameID(ctx context.Context) (string, error)
	SetLastGameID(ctx context.Context, gameID string) error
	CreateGame(ctx context.Context, title, initialSFEN string) (*gametree.Tree, error)
	SaveAnalysisSnapshot(ctx context.Context, nodeID string, elapsedMS, multiPV int, lines []engine.Line) (string, error)
	EnsureLastOrCreate(ctx context.Context) (*gametree.Tree, error)
	Close() error
}
