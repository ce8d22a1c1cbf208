// Package dispatcher owns the single message-handling loop: per
// connection it validates ownership and freshness against the session
// hub, dispatches a decoded message by type against the runtime and
// engine driver, and syncs analysis after any mutation that changes
// the current game or move path.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/walterschell/shogi-analyzer/internal/engine"
	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/runtime"
	"github.com/walterschell/shogi-analyzer/internal/session"
	"github.com/walterschell/shogi-analyzer/internal/store"
)

// Dispatcher wires the session arbiter, the runtime, and the engine
// driver together behind the wire protocol.
type Dispatcher struct {
	rt  *runtime.Runtime
	hub *session.Hub
	eng *engine.Driver
}

// New returns a Dispatcher over the given runtime, session hub, and
// engine driver.
func New(rt *runtime.Runtime, hub *session.Hub, eng *engine.Driver) *Dispatcher {
	return &Dispatcher{rt: rt, hub: hub, eng: eng}
}

// HandleConnect grants ownership to conn if unowned, or reports
// session:busy otherwise.
func (d *Dispatcher) HandleConnect(ctx context.Context, conn Conn) {
	granted, grant, occ := d.hub.TryGrant(conn)
	if !granted {
		_ = conn.Send(TypeSessionBusy, map[string]any{"owner_since": occ.OwnerSince, "owner_hint": occ.Hint})
		return
	}
	d.eng.AttachSender(senderFor(conn))
	_ = d.sendGranted(ctx, conn, grant)
}

// HandleDisconnect releases ownership if conn was the owner, stopping
// analysis and disabling it on the current game.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, conn Conn) {
	if !d.hub.ReleaseIfOwner(conn) {
		return
	}
	d.eng.OwnerDisconnected()
	_, _ = d.rt.Mutate(ctx, func(t *gametree.Tree) error {
		ui := cloneMap(t.UIState)
		ui["analysis_enabled"] = false
		t.UIState = ui
		return nil
	})
}

// HandleMessage decodes and dispatches one inbound frame from conn.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn Conn, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.toast(conn, "error", "invalid JSON")
		return
	}

	if !d.hub.IsOwner(conn) {
		if msg.Type != TypeSessionTakeover {
			_ = conn.Send(TypeSessionBusy, map[string]any{"owner_hint": "send session:takeover to claim session"})
			return
		}
		old, grant := d.hub.Takeover(conn)
		if oldConn, ok := old.(Conn); ok && oldConn != nil {
			_ = oldConn.Send(TypeSessionKicked, map[string]any{"reason": "session takeover"})
			_ = oldConn.Close()
		}
		d.eng.AttachSender(senderFor(conn))
		_ = d.sendGranted(ctx, conn, grant)
		d.toast(conn, "info", "session takeover complete")
		return
	}

	if !d.hub.Fresh(conn, msg.SessionID, msg.OwnerToken) {
		_ = conn.Send(TypeSessionStale, map[string]any{
			"reason":              "stale owner token/session",
			"expected_session_id": d.hub.SessionID(conn),
		})
		return
	}

	d.handleOwnerMessage(ctx, conn, msg)
}

func senderFor(conn Conn) engine.SenderFunc {
	return func(msgType string, payload map[string]any) error {
		return conn.Send(msgType, payload)
	}
}

func (d *Dispatcher) handleOwnerMessage(ctx context.Context, conn Conn, msg InboundMessage) {
	switch msg.Type {
	case TypeGameNew:
		var p gameNewPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if _, err := d.rt.CreateGame(ctx, p.Title, p.InitialSFEN); err != nil {
			d.toast(conn, "error", fmt.Sprintf("create game failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeGameLoad:
		var p gameLoadPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.GameID == "" {
			d.toast(conn, "error", "game_id is required")
			return
		}
		if _, err := d.rt.LoadGame(ctx, p.GameID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				d.toast(conn, "error", "game not found")
			} else {
				d.toast(conn, "error", fmt.Sprintf("load failed: %v", err))
			}
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeGameSave:
		var p gameSavePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			d.toast(conn, "error", "invalid save payload")
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			if p.Title != nil {
				if title := strings.TrimSpace(*p.Title); title != "" {
					t.Title = title
				}
			}
			if p.Meta != nil {
				t.Meta = p.Meta
			}
			if p.UIState != nil {
				t.UIState = p.UIState
			}
			if p.CurrentNodeID != "" {
				if _, err := t.Jump(p.CurrentNodeID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("save failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeNodeJump:
		var p nodeJumpPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.NodeID == "" {
			d.toast(conn, "error", "node_id is required")
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			_, err := t.Jump(p.NodeID)
			return err
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("jump failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeNodePlayMove:
		var p nodePlayMovePayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.FromNodeID == "" || p.MoveUSI == "" {
			d.toast(conn, "error", "from_node_id and move_usi are required")
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			_, err := t.PlayMove(p.FromNodeID, p.MoveUSI)
			return err
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("play_move failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeNodeSetComment:
		var p nodeSetCommentPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.NodeID == "" {
			d.toast(conn, "error", "node_id is required")
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			return t.SetComment(p.NodeID, p.Comment)
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("set_comment failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)

	case TypeNodeReorder:
		var p nodeReorderPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.ParentID == "" {
			d.toast(conn, "error", "invalid reorder payload")
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			return t.ReorderChildren(p.ParentID, p.OrderedChildIDs)
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("reorder failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)

	case TypeAnalysisSetEnabled:
		var p analysisSetEnabledPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.Enabled && !d.eng.IsAvailable() {
			d.toast(conn, "warning", "analysis engine is not configured on the server")
			_ = conn.Send(TypeAnalysisStopped, map[string]any{"reason": "USI engine is not configured"})
			return
		}
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			ui := cloneMap(t.UIState)
			ui["analysis_enabled"] = p.Enabled
			ui["analysis_multipv"] = multiPVFromUIState(ui)
			t.UIState = ui
			return nil
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("save failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		if p.Enabled {
			if tree, err := d.rt.CurrentGame(ctx); err == nil {
				if ok, reason := d.startAnalysis(ctx, tree, ""); !ok {
					d.toast(conn, "warning", reason)
				}
			}
		} else {
			d.eng.Stop("disabled by user")
		}

	case TypeAnalysisSetMultiPV:
		var presence map[string]json.RawMessage
		_ = json.Unmarshal(msg.Payload, &presence)
		if _, ok := presence["multipv"]; !ok {
			d.toast(conn, "error", "multipv is required")
			return
		}
		var p analysisSetMultiPVPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			d.toast(conn, "error", "invalid multipv")
			return
		}
		multiPV := clamp(p.MultiPV, 1, 20)
		_, err := d.rt.Mutate(ctx, func(t *gametree.Tree) error {
			ui := cloneMap(t.UIState)
			ui["analysis_multipv"] = multiPV
			t.UIState = ui
			return nil
		})
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("save failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeAnalysisStart:
		var p analysisStartPayload
		_ = json.Unmarshal(msg.Payload, &p)
		tree, err := d.rt.CurrentGame(ctx)
		if err != nil {
			d.toast(conn, "error", fmt.Sprintf("analysis start failed: %v", err))
			return
		}
		if ok, reason := d.startAnalysis(ctx, tree, p.NodeID); !ok {
			d.toast(conn, "warning", reason)
		}

	case TypeAnalysisStop:
		d.eng.Stop("stopped by user")

	case TypeGameImportText:
		var p gameImportTextPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if strings.TrimSpace(p.Text) == "" {
			d.toast(conn, "error", "text is required")
			return
		}
		if _, err := d.rt.ImportText(ctx, p.Text, p.Title); err != nil {
			d.toast(conn, "error", fmt.Sprintf("import failed: %v", err))
			return
		}
		d.emitGameState(ctx, conn)
		d.syncAnalysis(ctx, conn)

	case TypeSessionTakeover, "":
		return

	default:
		d.toast(conn, "warning", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// startAnalysis resolves the path to nodeID (current node if empty)
// and kicks off the per-analysis sequence on the engine driver.
func (d *Dispatcher) startAnalysis(ctx context.Context, tree *gametree.Tree, nodeID string) (bool, string) {
	target := nodeID
	if target == "" {
		target = tree.CurrentNodeID
	}
	path, err := tree.PathTo(target)
	if err != nil {
		reason := fmt.Sprintf("invalid node for analysis: %v", err)
		return false, reason
	}
	var moves []string
	for _, n := range path {
		if n.MoveUSI != "" {
			moves = append(moves, n.MoveUSI)
		}
	}
	multiPV := multiPVFromUIState(tree.UIState)
	return d.eng.StartForGame(ctx, tree.InitialSFEN, moves, target, multiPV)
}

// syncAnalysis starts or stops analysis to match the current game's
// ui_state.analysis_enabled, per the post-mutation sync rule.
func (d *Dispatcher) syncAnalysis(ctx context.Context, conn Conn) {
	tree, err := d.rt.CurrentGame(ctx)
	if err != nil {
		return
	}
	enabled, _ := tree.UIState["analysis_enabled"].(bool)
	if enabled {
		if ok, reason := d.startAnalysis(ctx, tree, ""); !ok {
			d.toast(conn, "warning", reason)
		}
		return
	}
	if running, _ := d.eng.StatusWire()["analysis_running"].(bool); running {
		d.eng.Stop("analysis disabled")
	}
}

func (d *Dispatcher) emitGameState(ctx context.Context, conn Conn) {
	wire, err := d.rt.CurrentGameWire(ctx)
	if err != nil {
		d.toast(conn, "error", fmt.Sprintf("failed to render game state: %v", err))
		return
	}
	_ = conn.Send(TypeGameState, map[string]any{"game": wire})
}

func (d *Dispatcher) sendGranted(ctx context.Context, conn Conn, grant session.Grant) error {
	tree, err := d.rt.CurrentGame(ctx)
	if err != nil {
		return err
	}
	wire, err := tree.ToWire()
	if err != nil {
		return err
	}
	var notes []string
	if !d.eng.IsAvailable() {
		notes = append(notes, "USI engine analysis is disabled until ENGINE_PATH or ENGINE_CMD is set")
	}
	caps := d.eng.CapabilitiesWire()
	caps["import_formats"] = []string{"usi", "kif", "kif2"}
	caps["export_formats"] = []string{"usi", "kif", "kif2"}
	caps["notes"] = notes

	enabled, _ := tree.UIState["analysis_enabled"].(bool)
	payload := map[string]any{
		"game":                wire,
		"server_capabilities": caps,
		"engine_status":       d.eng.StatusWire(),
		"analysis_state": map[string]any{
			"enabled": enabled,
			"multipv": multiPVFromUIState(tree.UIState),
		},
		"session_id":  grant.SessionID,
		"owner_token": grant.OwnerToken,
	}
	return conn.Send(TypeSessionGranted, payload)
}

func (d *Dispatcher) toast(conn Conn, level, message string) {
	_ = conn.Send(TypeToast, map[string]any{"level": level, "message": message})
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func multiPVFromUIState(ui map[string]any) int {
	n := 1
	if v, ok := ui["analysis_multipv"]; ok {
		switch t := v.(type) {
		case float64:
			n = int(t)
		case int:
			n = t
		}
	}
	return clamp(n, 1, 20)
}
