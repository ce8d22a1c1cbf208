// Package kifimport builds a game tree from USI, KIF, or KI2 text.
package kifimport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/walterschell/shogi-analyzer/internal/gametree"
	"github.com/walterschell/shogi-analyzer/internal/movegen"
	"github.com/walterschell/shogi-analyzer/internal/notation"
	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

// DetectFormat guesses the notation format of a pasted game record.
func DetectFormat(text string) string {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "position ") {
		return "usi"
	}
	if strings.Contains(s, "手合割") || strings.Contains(s, "手数----指手") {
		return "kif"
	}
	if strings.Contains(s, "▲") || strings.Contains(s, "△") {
		return "kif2"
	}
	return "unknown"
}

// ParseUSIText parses a "position [startpos|sfen ...] [moves ...]"
// string, or a bare whitespace-separated move list, into an initial
// SFEN and a move sequence.
func ParseUSIText(text string) (string, []string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", nil, fmt.Errorf("kifimport: empty text")
	}
	tokens := strings.Fields(strings.ReplaceAll(s, "\r", "\n"))
	if len(tokens) == 0 {
		return "", nil, fmt.Errorf("kifimport: empty text")
	}

	if tokens[0] != "position" {
		var moves []string
		for _, t := range tokens {
			if _, err := sfen.ParseUSIMove(t); err != nil {
				return "", nil, err
			}
			moves = append(moves, t)
		}
		return sfen.DefaultStart, moves, nil
	}

	if len(tokens) < 2 {
		return "", nil, fmt.Errorf("kifimport: invalid position command")
	}

	idx := 1
	var initialSFEN string
	switch tokens[idx] {
	case "startpos":
		initialSFEN = sfen.DefaultStart
		idx++
	case "sfen":
		if len(tokens) < idx+5 {
			return "", nil, fmt.Errorf("kifimport: position sfen requires 4 SFEN fields")
		}
		var err error
		initialSFEN, err = sfen.Normalize(strings.Join(tokens[idx+1:idx+5], " "))
		if err != nil {
			return "", nil, err
		}
		idx += 5
	default:
		return "", nil, fmt.Errorf("kifimport: position must use startpos or sfen")
	}

	var moves []string
	if idx < len(tokens) {
		if tokens[idx] != "moves" {
			return "", nil, fmt.Errorf("kifimport: unexpected token after position base")
		}
		idx++
		for _, t := range tokens[idx:] {
			if _, err := sfen.ParseUSIMove(t); err != nil {
				return "", nil, err
			}
			moves = append(moves, t)
		}
	}
	return initialSFEN, moves, nil
}

// ImportUSIGame builds a game tree from USI position text.
func ImportUSIGame(text, title string) (*gametree.Tree, error) {
	initialSFEN, moves, err := ParseUSIText(text)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "Imported USI"
	}
	tree, err := gametree.New(title, initialSFEN)
	if err != nil {
		return nil, err
	}
	cur := tree.RootNodeID
	for _, mv := range moves {
		node, err := tree.PlayMove(cur, mv)
		if err != nil {
			return nil, err
		}
		cur = node.NodeID
	}
	return tree, nil
}

var moveLineRE = regexp.MustCompile(`^\s*(\d+)\s+(.*)$`)
var henkaRE = regexp.MustCompile(`^\s*変化\s*：\s*(\d+)手`)

// DetectKIF reports whether text looks like a KIF move-list record.
func DetectKIF(text string) bool {
	s := strings.TrimSpace(text)
	return strings.Contains(s, "手数----指手") || strings.Contains(s, "手合割")
}

func parseHeaderMeta(lines []string) map[string]string {
	meta := map[string]string{}
	for _, line := range lines {
		if strings.Contains(line, "手数----指手") {
			break
		}
		if strings.Contains(line, "：") {
			parts := strings.SplitN(line, "：", 2)
			k, v := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if k != "" && v != "" {
				meta[k] = v
			}
		}
	}
	return meta
}

func initialSFENFromMeta(meta map[string]string) (string, error) {
	handicap := strings.TrimSpace(meta["手合割"])
	if handicap == "" || handicap == "平手" || handicap == "平手　" {
		return sfen.DefaultStart, nil
	}
	return "", fmt.Errorf("kifimport: unsupported handicap: %s", handicap)
}

// ImportKIFGame builds a game tree from KIF move-list text.
func ImportKIFGame(text, title string) (*gametree.Tree, error) {
	rawLines := strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
	meta := parseHeaderMeta(rawLines)
	initialSFEN, err := initialSFENFromMeta(meta)
	if err != nil {
		return nil, err
	}

	gameTitle := title
	if gameTitle == "" {
		for _, k := range []string{"棋戦", "表題", "タイトル"} {
			if v, ok := meta[k]; ok {
				gameTitle = v
				break
			}
		}
	}
	if gameTitle == "" {
		gameTitle = "Imported KIF"
	}

	tree, err := gametree.New(strings.TrimSpace(gameTitle), initialSFEN)
	if err != nil {
		return nil, err
	}
	tree.Meta = make(map[string]any, len(meta))
	for k, v := range meta {
		tree.Meta[k] = v
	}

	inMoves := false
	var mainMoves []string
	type variation struct {
		startN int
		moves  []string
	}
	var variations []*variation
	var currentVar *variation

	for _, line := range rawLines {
		if !inMoves {
			if strings.Contains(line, "手数----指手") {
				inMoves = true
			}
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "*") {
			continue
		}
		if m := henkaRE.FindStringSubmatch(line); m != nil {
			startN, _ := strconv.Atoi(m[1])
			currentVar = &variation{startN: startN}
			variations = append(variations, currentVar)
			continue
		}
		m := moveLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		if notation.IsTerminationToken(body) {
			break
		}
		if currentVar == nil {
			mainMoves = append(mainMoves, body)
		} else {
			currentVar.moves = append(currentVar.moves, body)
		}
	}

	cur := tree.RootNodeID
	nodeIDs := []string{cur}
	var prevToRC *[2]int
	for _, mvText := range mainMoves {
		parsed, toRC, err := notation.ParseKIFBody(mvText, prevToRC)
		if err != nil {
			return nil, err
		}
		prevToRC = &toRC
		mvUSI, err := parsed.ToUSI()
		if err != nil {
			return nil, err
		}
		if _, err := sfen.ParseUSIMove(mvUSI); err != nil {
			return nil, err
		}
		node, err := tree.PlayMove(cur, mvUSI)
		if err != nil {
			return nil, err
		}
		cur = node.NodeID
		nodeIDs = append(nodeIDs, cur)
	}

	for _, v := range variations {
		if v.startN < 1 {
			continue
		}
		baseIdx := v.startN - 1
		if baseIdx > len(nodeIDs)-1 {
			baseIdx = len(nodeIDs) - 1
		}
		baseNodeID := nodeIDs[baseIdx]
		baseNode, err := tree.GetNode(baseNodeID)
		if err != nil {
			return nil, err
		}
		var prevTo *[2]int
		if baseNode.MoveUSI != "" {
			if mvu, err := sfen.ParseUSIMove(baseNode.MoveUSI); err == nil {
				prevTo = &[2]int{mvu.ToRow, mvu.ToCol}
			}
		}
		cur := baseNodeID
		for _, mvText := range v.moves {
			parsed, toRC, err := notation.ParseKIFBody(mvText, prevTo)
			if err != nil {
				if notation.IsTerminationToken(mvText) {
					break
				}
				return nil, err
			}
			prevTo = &toRC
			mvUSI, err := parsed.ToUSI()
			if err != nil {
				return nil, err
			}
			if _, err := sfen.ParseUSIMove(mvUSI); err != nil {
				return nil, err
			}
			node, err := tree.PlayMove(cur, mvUSI)
			if err != nil {
				return nil, err
			}
			cur = node.NodeID
		}
	}

	return tree, nil
}

var ki2TokenRE = regexp.MustCompile(`[▲△][^▲△]+`)

func tokenizeKI2(text string) []string {
	s := strings.ReplaceAll(text, "\r", "\n")
	var tokens []string
	for _, ln := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" || strings.HasPrefix(trimmed, "*") {
			continue
		}
		for _, seg := range ki2TokenRE.FindAllString(ln, -1) {
			t := strings.TrimSpace(seg)
			if t != "" {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// DetectKI2 reports whether text looks like KI2 move notation.
func DetectKI2(text string) bool {
	s := strings.TrimSpace(text)
	return strings.Contains(s, "▲") || strings.Contains(s, "△")
}

// ImportKI2Game builds a game tree from KI2 move-token text.
func ImportKI2Game(text, title string) (*gametree.Tree, error) {
	rawLines := strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")

	type variation struct {
		startN int
		tokens []string
	}
	var mainTokens []string
	var variations []*variation
	var currentVar *variation

	for _, line := range rawLines {
		if m := henkaRE.FindStringSubmatch(line); m != nil {
			startN, _ := strconv.Atoi(m[1])
			currentVar = &variation{startN: startN}
			variations = append(variations, currentVar)
			continue
		}
		toks := tokenizeKI2(line)
		if len(toks) == 0 {
			continue
		}
		if currentVar != nil {
			currentVar.tokens = append(currentVar.tokens, toks...)
		} else {
			mainTokens = append(mainTokens, toks...)
		}
	}

	if title == "" {
		title = "Imported KI2"
	}
	tree, err := gametree.New(strings.TrimSpace(title), sfen.DefaultStart)
	if err != nil {
		return nil, err
	}

	applyTokens := func(baseNodeID string, tokens []string, prevToRC *[2]int) (string, error) {
		cur := baseNodeID
		curNode, err := tree.GetNode(cur)
		if err != nil {
			return "", err
		}
		curSFEN := curNode.PositionSFEN
		prevTo := prevToRC
		for _, tok := range tokens {
			if notation.IsTerminationToken(tok) {
				break
			}
			parsed, toRC, err := notation.ParseKI2Token(tok, prevTo)
			if err != nil {
				return "", err
			}
			prevTo = &toRC
			side := notation.SideFromMark(parsed.SideMark)
			st, err := sfen.ParseSFEN(curSFEN)
			if err != nil {
				return "", err
			}
			if st.Side != side {
				side = st.Side
			}

			pieceNorm, err := notation.PieceNormFromJA(parsed.PieceName)
			if err != nil {
				return "", err
			}

			var mvUSI string
			if parsed.IsDrop {
				dropBase, ok := notation.JAToBase[parsed.PieceName]
				if !ok {
					return "", fmt.Errorf("kifimport: unknown drop piece: %s", parsed.PieceName)
				}
				toSq, err := sfen.RCToSquare(parsed.ToRow, parsed.ToCol)
				if err != nil {
					return "", err
				}
				mvUSI = dropBase + "*" + toSq
			} else {
				cands := movegen.CandidatesForPiece(st.Board, side, pieceNorm, parsed.ToRow, parsed.ToCol)
				cands = movegen.FilterByDisambiguators(side, parsed.ToRow, parsed.ToCol, cands, parsed.Disambig)
				if len(cands) != 1 {
					return "", fmt.Errorf("kifimport: ambiguous KI2 move %q: %d candidates: %w", tok, len(cands), notation.ErrAmbiguous)
				}
				fromSq, err := sfen.RCToSquare(cands[0].FromRow, cands[0].FromCol)
				if err != nil {
					return "", err
				}
				toSq, err := sfen.RCToSquare(parsed.ToRow, parsed.ToCol)
				if err != nil {
					return "", err
				}
				mvUSI = fromSq + toSq
				if parsed.Promote {
					mvUSI += "+"
				}
			}
			if _, err := sfen.ParseUSIMove(mvUSI); err != nil {
				return "", err
			}
			node, err := tree.PlayMove(cur, mvUSI)
			if err != nil {
				return "", err
			}
			cur = node.NodeID
			curSFEN = node.PositionSFEN
		}
		return cur, nil
	}

	endNodeID, err := applyTokens(tree.RootNodeID, mainTokens, nil)
	if err != nil {
		return nil, err
	}
	mainPath, err := tree.PathTo(endNodeID)
	if err != nil {
		return nil, err
	}
	mainPathNodeIDs := make([]string, len(mainPath))
	for i, n := range mainPath {
		mainPathNodeIDs[i] = n.NodeID
	}

	for _, v := range variations {
		if v.startN < 1 {
			continue
		}
		baseIdx := v.startN - 1
		if baseIdx > len(mainPathNodeIDs)-1 {
			baseIdx = len(mainPathNodeIDs) - 1
		}
		baseNodeID := mainPathNodeIDs[baseIdx]
		var prevTo *[2]int
		baseNode, err := tree.GetNode(baseNodeID)
		if err != nil {
			return nil, err
		}
		if baseNode.MoveUSI != "" {
			if mvu, err := sfen.ParseUSIMove(baseNode.MoveUSI); err == nil {
				prevTo = &[2]int{mvu.ToRow, mvu.ToCol}
			}
		}
		if _, err := applyTokens(baseNodeID, v.tokens, prevTo); err != nil {
			return nil, err
		}
	}

	return tree, nil
}
