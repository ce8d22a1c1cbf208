// Package runtime owns the single in-memory current game tree and
// serializes every mutation against it, mirroring analysis_service.py's
// companion RuntimeState.
package runtime

import (
	"context"
	"sync"

	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/kifimport"
	"github.com/walterschell/shogi-analyzer/internal/store"
)

// Runtime holds the current game tree behind a mutex and persists every
// mutation through the Store.
type Runtime struct {
	store store.Store

	mu          sync.Mutex
	currentGame *gametree.Tree
}

// New returns a Runtime backed by st. Call EnsureStarted before first use.
func New(st store.Store) *Runtime {
	return &Runtime{store: st}
}

// EnsureStarted loads the last active game, or creates one, as the
// current game.
func (r *Runtime) EnsureStarted(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.store.EnsureLastOrCreate(ctx)
	if err != nil {
		return err
	}
	r.currentGame = tree
	return nil
}

func (r *Runtime) ensureLocked(ctx context.Context) (*gametree.Tree, error) {
	if r.currentGame != nil {
		return r.currentGame, nil
	}
	tree, err := r.store.EnsureLastOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	r.currentGame = tree
	return tree, nil
}

// CurrentGame returns the current game tree, loading/creating one if needed.
func (r *Runtime) CurrentGame(ctx context.Context) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(ctx)
}

// CurrentGameWire renders the current game's wire representation.
func (r *Runtime) CurrentGameWire(ctx context.Context) (*gametree.Wire, error) {
	tree, err := r.CurrentGame(ctx)
	if err != nil {
		return nil, err
	}
	return tree.ToWire()
}

// SetCurrentGame makes tree the current game, persisting it (callers may
// pass a freshly constructed, unsaved tree, e.g. from an import).
func (r *Runtime) SetCurrentGame(ctx context.Context, tree *gametree.Tree) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveGame(ctx, tree); err != nil {
		return nil, err
	}
	r.currentGame = tree
	if err := r.store.SetLastGameID(ctx, tree.GameID); err != nil {
		return nil, err
	}
	return tree, nil
}

// Mutate runs fn against the current game tree under the runtime lock,
// persisting the tree and updating lastgame afterward. fn must be
// synchronous and must not block.
func (r *Runtime) Mutate(ctx context.Context, fn func(*gametree.Tree) error) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.ensureLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(tree); err != nil {
		return nil, err
	}
	if err := r.store.SaveGame(ctx, tree); err != nil {
		return nil, err
	}
	if err := r.store.SetLastGameID(ctx, tree.GameID); err != nil {
		return nil, err
	}
	return tree, nil
}

// LoadGame replaces the current game with the stored game gameID.
func (r *Runtime) LoadGame(ctx context.Context, gameID string) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.store.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	r.currentGame = tree
	if err := r.store.SetLastGameID(ctx, gameID); err != nil {
		return nil, err
	}
	return tree, nil
}

// CreateGame creates a fresh game tree and makes it current.
func (r *Runtime) CreateGame(ctx context.Context, title, initialSFEN string) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.store.CreateGame(ctx, title, initialSFEN)
	if err != nil {
		return nil, err
	}
	r.currentGame = tree
	return tree, nil
}

// ImportText detects the notation format of text and imports it as the
// new current game.
func (r *Runtime) ImportText(ctx context.Context, text, title string) (*gametree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	format := kifimport.DetectFormat(text)
	var tree *gametree.Tree
	var err error
	switch format {
	case "kif":
		tree, err = kifimport.ImportKIFGame(text, title)
	case "kif2":
		tree, err = kifimport.ImportKI2Game(text, title)
	default:
		tree, err = kifimport.ImportUSIGame(text, title)
	}
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveGame(ctx, tree); err != nil {
		return nil, err
	}
	if err := r.store.SetLastGameID(ctx, tree.GameID); err != nil {
		return nil, err
	}
	r.currentGame = tree
	return tree, nil
}
