// Package kifexport renders a game tree back into USI, KIF, or KI2 text.
package kifexport

import (
	"fmt"
	"strings"

	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/notation"
	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

func mainlineNodes(tree *gametree.Tree) []string {
	nodeIDs := []string{tree.RootNodeID}
	cur := tree.RootNodeID
	for {
		children := tree.ChildrenOf(cur)
		if len(children) == 0 {
			break
		}
		nxt := children[0]
		nodeIDs = append(nodeIDs, nxt.NodeID)
		cur = nxt.NodeID
	}
	return nodeIDs
}

func destOf(moveUSI string) (*[2]int, error) {
	if moveUSI == "" {
		return nil, nil
	}
	mv, err := sfen.ParseUSIMove(moveUSI)
	if err != nil {
		return nil, nil
	}
	return &[2]int{mv.ToRow, mv.ToCol}, nil
}

// ExportGameToKIF renders the mainline and its variations as KIF text.
func ExportGameToKIF(tree *gametree.Tree) (string, error) {
	var lines []string
	meta := tree.Meta
	handicap := "平手"
	if v, ok := meta["手合割"].(string); ok && v != "" {
		handicap = v
	}
	lines = append(lines, fmt.Sprintf("手合割：%s", handicap))
	if v, ok := meta["先手"].(string); ok && v != "" {
		lines = append(lines, fmt.Sprintf("先手：%s", v))
	}
	if v, ok := meta["後手"].(string); ok && v != "" {
		lines = append(lines, fmt.Sprintf("後手：%s", v))
	}
	if v, ok := meta["棋戦"].(string); ok && v != "" {
		lines = append(lines, fmt.Sprintf("棋戦：%s", v))
	}
	lines = append(lines, "")
	lines = append(lines, "手数----指手---------")

	mainNodes := mainlineNodes(tree)
	var prevTo *[2]int
	for i := 1; i < len(mainNodes); i++ {
		parent, err := tree.GetNode(mainNodes[i-1])
		if err != nil {
			return "", err
		}
		node, err := tree.GetNode(mainNodes[i])
		if err != nil {
			return "", err
		}
		body, err := notation.USIToKIFBody(parent.PositionSFEN, node.MoveUSI, prevTo)
		if err != nil {
			return "", err
		}
		prevTo, _ = destOf(node.MoveUSI)
		lines = append(lines, fmt.Sprintf("%4d %s", i, body))
	}

	plyByNode := make(map[string]int, len(mainNodes))
	for idx, nid := range mainNodes {
		plyByNode[nid] = idx
	}
	for _, parentID := range mainNodes {
		children := tree.ChildrenOf(parentID)
		if len(children) == 0 {
			continue
		}
		for _, alt := range children[1:] {
			startPly := plyByNode[parentID] + 1
			lines = append(lines, "")
			lines = append(lines, fmt.Sprintf("変化：%d手", startPly))
			curParent := parentID
			pnode, err := tree.GetNode(parentID)
			if err != nil {
				return "", err
			}
			prevTo, _ = destOf(pnode.MoveUSI)
			moveNo := startPly
			cur := alt.NodeID
			for {
				par, err := tree.GetNode(curParent)
				if err != nil {
					return "", err
				}
				nd, err := tree.GetNode(cur)
				if err != nil {
					return "", err
				}
				body, err := notation.USIToKIFBody(par.PositionSFEN, nd.MoveUSI, prevTo)
				if err != nil {
					return "", err
				}
				prevTo, _ = destOf(nd.MoveUSI)
				lines = append(lines, fmt.Sprintf("%4d %s", moveNo, body))
				curParent = cur
				kids := tree.ChildrenOf(cur)
				if len(kids) == 0 {
					break
				}
				cur = kids[0].NodeID
				moveNo++
			}
		}
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n", nil
}

// ExportGameToKI2 renders the mainline and its variations as KI2 text.
func ExportGameToKI2(tree *gametree.Tree) (string, error) {
	title := strings.TrimSpace(tree.Title)
	if title == "" {
		title = "Untitled"
	}
	lines := []string{fmt.Sprintf("表題：%s", title), ""}

	mainNodes := mainlineNodes(tree)
	var prevTo *[2]int
	for i := 1; i < len(mainNodes); i++ {
		parent, err := tree.GetNode(mainNodes[i-1])
		if err != nil {
			return "", err
		}
		node, err := tree.GetNode(mainNodes[i])
		if err != nil {
			return "", err
		}
		label, err := notation.USIToKI2Label(parent.PositionSFEN, node.MoveUSI, prevTo)
		if err != nil {
			return "", err
		}
		lines = append(lines, label)
		prevTo, _ = destOf(node.MoveUSI)
	}

	plyByNode := make(map[string]int, len(mainNodes))
	for idx, nid := range mainNodes {
		plyByNode[nid] = idx
	}
	for _, parentID := range mainNodes {
		children := tree.ChildrenOf(parentID)
		if len(children) == 0 {
			continue
		}
		for _, alt := range children[1:] {
			startPly := plyByNode[parentID] + 1
			lines = append(lines, "")
			lines = append(lines, fmt.Sprintf("変化：%d手", startPly))
			curParent := parentID
			pnode, err := tree.GetNode(parentID)
			if err != nil {
				return "", err
			}
			prevTo, _ = destOf(pnode.MoveUSI)
			cur := alt.NodeID
			for {
				par, err := tree.GetNode(curParent)
				if err != nil {
					return "", err
				}
				nd, err := tree.GetNode(cur)
				if err != nil {
					return "", err
				}
				label, err := notation.USIToKI2Label(par.PositionSFEN, nd.MoveUSI, prevTo)
				if err != nil {
					return "", err
				}
				lines = append(lines, label)
				prevTo, _ = destOf(nd.MoveUSI)
				curParent = cur
				kids := tree.ChildrenOf(cur)
				if len(kids) == 0 {
					break
				}
				cur = kids[0].NodeID
			}
		}
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n", nil
}

// ExportGameToUSI renders the path from the root to the current node as
// a USI "position" command.
func ExportGameToUSI(tree *gametree.Tree) (string, error) {
	moves, err := tree.CurrentPathMoves()
	if err != nil {
		return "", err
	}
	return sfen.PositionCommand(tree.InitialSFEN, moves)
}
