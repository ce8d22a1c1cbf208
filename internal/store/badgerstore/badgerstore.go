// Package badgerstore implements store.Store over an embedded Badger
// key/value database, the way hailam-chessplay/internal/storage
// encodes its preferences and stats as JSON Badger values.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/walterschell/shogi-analyzer/internal/engine"
	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/store"
)

const lastGameKey = "lastgame"

func gameKey(id string) []byte     { return []byte("game:" + id) }
func nodesKey(id string) []byte    { return []byte("nodes:" + id) }
func snapshotKey(id string) []byte { return []byte("snapshot:" + id) }

// gameRecord is the game-metadata half of a gametree.Tree, persisted
// separately from its node set.
type gameRecord struct {
	GameID        string         `json:"game_id"`
	Title         string         `json:"title"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	InitialSFEN   string         `json:"initial_sfen"`
	RootNodeID    string         `json:"root_node_id"`
	CurrentNodeID string         `json:"current_node_id"`
	Meta          map[string]any `json:"meta"`
	UIState       map[string]any `json:"ui_state"`
}

// Store wraps a Badger database as a store.Store.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if absent) a Badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key []byte, out any) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return found, err
}

func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// ListGames returns a page of game summaries ordered by most recently
// updated first.
func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]store.GameSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var all []store.GameSummary
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("game:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec gameRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			all = append(all, store.GameSummary{
				GameID:        rec.GameID,
				Title:         rec.Title,
				CreatedAt:     rec.CreatedAt,
				UpdatedAt:     rec.UpdatedAt,
				InitialSFEN:   rec.InitialSFEN,
				CurrentNodeID: rec.CurrentNodeID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt != all[j].UpdatedAt {
			return all[i].UpdatedAt > all[j].UpdatedAt
		}
		return all[i].CreatedAt > all[j].CreatedAt
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// SaveGame upserts the game's metadata and fully replaces its node set.
func (s *Store) SaveGame(ctx context.Context, tree *gametree.Tree) error {
	rec := gameRecord{
		GameID:        tree.GameID,
		Title:         tree.Title,
		CreatedAt:     tree.CreatedAt,
		UpdatedAt:     tree.UpdatedAt,
		InitialSFEN:   tree.InitialSFEN,
		RootNodeID:    tree.RootNodeID,
		CurrentNodeID: tree.CurrentNodeID,
		Meta:          tree.Meta,
		UIState:       tree.UIState,
	}
	if err := s.set(gameKey(tree.GameID), rec); err != nil {
		return err
	}
	return s.set(nodesKey(tree.GameID), tree.Nodes)
}

// LoadGame reconstructs a gametree.Tree from its stored record and node set.
func (s *Store) LoadGame(ctx context.Context, gameID string) (*gametree.Tree, error) {
	var rec gameRecord
	found, err := s.get(gameKey(gameID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	nodes := map[string]*gametree.Node{}
	if _, err := s.get(nodesKey(gameID), &nodes); err != nil {
		return nil, err
	}
	if _, ok := nodes[rec.RootNodeID]; !ok {
		return nil, errors.New("badgerstore: root node missing")
	}
	currentNodeID := rec.CurrentNodeID
	if _, ok := nodes[currentNodeID]; !ok {
		currentNodeID = rec.RootNodeID
	}
	meta := rec.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	uiState := rec.UIState
	if uiState == nil {
		uiState = map[string]any{}
	}
	return &gametree.Tree{
		GameID:        rec.GameID,
		Title:         rec.Title,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		InitialSFEN:   rec.InitialSFEN,
		RootNodeID:    rec.RootNodeID,
		CurrentNodeID: currentNodeID,
		Meta:          meta,
		UIState:       uiState,
		Nodes:         nodes,
	}, nil
}

// DeleteGame removes a game's metadata and node set, clearing it from
// lastgame if it was current.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(gameKey(gameID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Delete(nodesKey(gameID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	lastID, err := s.GetLastGameID(ctx)
	if err != nil {
		return err
	}
	if lastID == gameID {
		return s.SetLastGameID(ctx, "")
	}
	return nil
}

// GetLastGameID returns the most recently active game id, or "" if none.
func (s *Store) GetLastGameID(ctx context.Context) (string, error) {
	var id string
	found, err := s.get([]byte(lastGameKey), &id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return id, nil
}

// SetLastGameID records the most recently active game id.
func (s *Store) SetLastGameID(ctx context.Context, gameID string) error {
	return s.set([]byte(lastGameKey), gameID)
}

// CreateGame creates, persists, and marks current a new game tree.
func (s *Store) CreateGame(ctx context.Context, title, initialSFEN string) (*gametree.Tree, error) {
	tree, err := gametree.New(title, initialSFEN)
	if err != nil {
		return nil, err
	}
	if err := s.SaveGame(ctx, tree); err != nil {
		return nil, err
	}
	if err := s.SetLastGameID(ctx, tree.GameID); err != nil {
		return nil, err
	}
	return tree, nil
}

// SaveAnalysisSnapshot persists one analysis snapshot and returns its id.
func (s *Store) SaveAnalysisSnapshot(ctx context.Context, nodeID string, elapsedMS, multiPV int, lines []engine.Line) (string, error) {
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	if multiPV < 1 {
		multiPV = 1
	}
	snapshotID := uuid.NewString()
	snap := store.AnalysisSnapshot{
		SnapshotID: snapshotID,
		NodeID:     nodeID,
		ElapsedMS:  elapsedMS,
		MultiPV:    multiPV,
		Lines:      lines,
		CreatedAt:  time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
	}
	if err := s.set(snapshotKey(snapshotID), snap); err != nil {
		return "", err
	}
	return snapshotID, nil
}

// EnsureLastOrCreate loads the last active game, or creates a fresh
// "Recovered game" if there is none or it no longer exists.
func (s *Store) EnsureLastOrCreate(ctx context.Context) (*gametree.Tree, error) {
	lastID, err := s.GetLastGameID(ctx)
	if err != nil {
		return nil, err
	}
	if lastID != "" {
		tree, err := s.LoadGame(ctx, lastID)
		if err == nil {
			return tree, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return s.CreateGame(ctx, "Recovered game", "")
}
