// Package movegen provides a pseudo-legal move generator used by the
// kifimport package to disambiguate KI2 labels. It does not enforce
// check or mate legality.
package movegen

// Board is a 9x9 grid of piece tokens, "" for empty, matching
// sfen.State.Board's encoding ("P", "p", "+R", ...).
type Board = [9][9]string

// Candidate is a from-square a piece could plausibly have moved from.
type Candidate struct {
	FromRow int
	FromCol int
}

func inBounds(r, c int) bool { return r >= 0 && r <= 8 && c >= 0 && c <= 8 }

func owner(token string) byte {
	last := token[len(token)-1]
	if last >= 'A' && last <= 'Z' {
		return 'b'
	}
	return 'w'
}

func normalizeToken(token string) string {
	if token[0] == '+' {
		last := token[len(token)-1]
		if last >= 'a' && last <= 'z' {
			last -= 'a' - 'A'
		}
		return "+" + string(last)
	}
	last := token[len(token)-1]
	if last >= 'a' && last <= 'z' {
		last -= 'a' - 'A'
	}
	return string(last)
}

func slideOK(board Board, fr, fc, tr, tc, dr, dc int) bool {
	r, c := fr+dr, fc+dc
	for r != tr || c != tc {
		if !inBounds(r, c) {
			return false
		}
		if board[r][c] != "" {
			return false
		}
		r += dr
		c += dc
	}
	return true
}

func stepOK(fr, fc, tr, tc, dr, dc int) bool {
	return fr+dr == tr && fc+dc == tc
}

func knightOK(fr, fc, tr, tc, forward int) bool {
	return (fr+2*forward == tr && fc-1 == tc) || (fr+2*forward == tr && fc+1 == tc)
}

type delta struct{ dr, dc int }

// CandidatesForPiece returns the pseudo-legal from-squares whose piece
// could move to (toRow, toCol), for the given side and normalized
// piece token (e.g. "P", "+R", "G").
func CandidatesForPiece(board Board, side byte, pieceNorm string, toRow, toCol int) []Candidate {
	forward := -1
	if side == 'w' {
		forward = 1
	}

	tokenMatches := func(tok string) bool {
		if tok == "" {
			return false
		}
		if owner(tok) != side {
			return false
		}
		return normalizeToken(tok) == pieceNorm
	}

	seen := make(map[Candidate]bool)
	var out []Candidate
	add := func(fr, fc int) {
		cand := Candidate{fr, fc}
		if !seen[cand] {
			seen[cand] = true
			out = append(out, cand)
		}
	}

	for fr := 0; fr < 9; fr++ {
		for fc := 0; fc < 9; fc++ {
			tok := board[fr][fc]
			if !tokenMatches(tok) {
				continue
			}
			dst := board[toRow][toCol]
			if dst != "" && owner(dst) == side {
				continue
			}

			switch pieceNorm {
			case "P":
				if stepOK(fr, fc, toRow, toCol, forward, 0) {
					add(fr, fc)
				}
			case "L":
				if fc == toCol && (toRow-fr)*forward > 0 {
					if slideOK(board, fr, fc, toRow, toCol, forward, 0) {
						add(fr, fc)
					}
				}
			case "N":
				if knightOK(fr, fc, toRow, toCol, forward) {
					add(fr, fc)
				}
			case "S":
				deltas := []delta{{forward, 0}, {forward, -1}, {forward, 1}, {-forward, -1}, {-forward, 1}}
				for _, d := range deltas {
					if stepOK(fr, fc, toRow, toCol, d.dr, d.dc) {
						add(fr, fc)
						break
					}
				}
			case "G", "+P", "+L", "+N", "+S":
				deltas := []delta{{forward, 0}, {forward, -1}, {forward, 1}, {0, -1}, {0, 1}, {-forward, 0}}
				for _, d := range deltas {
					if stepOK(fr, fc, toRow, toCol, d.dr, d.dc) {
						add(fr, fc)
						break
					}
				}
			case "K":
				deltas := []delta{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
				for _, d := range deltas {
					if stepOK(fr, fc, toRow, toCol, d.dr, d.dc) {
						add(fr, fc)
						break
					}
				}
			case "B", "+B":
				dr := toRow - fr
				dc := toCol - fc
				if dr != 0 && abs(dr) == abs(dc) {
					stepR, stepC := sign(dr), sign(dc)
					if slideOK(board, fr, fc, toRow, toCol, stepR, stepC) {
						add(fr, fc)
					}
				}
				if pieceNorm == "+B" {
					deltas := []delta{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
					for _, d := range deltas {
						if stepOK(fr, fc, toRow, toCol, d.dr, d.dc) {
							add(fr, fc)
							break
						}
					}
				}
			case "R", "+R":
				if fr == toRow && fc != toCol {
					step := sign(toCol - fc)
					if slideOK(board, fr, fc, toRow, toCol, 0, step) {
						add(fr, fc)
					}
				}
				if fc == toCol && fr != toRow {
					step := sign(toRow - fr)
					if slideOK(board, fr, fc, toRow, toCol, step, 0) {
						add(fr, fc)
					}
				}
				if pieceNorm == "+R" {
					deltas := []delta{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
					for _, d := range deltas {
						if stepOK(fr, fc, toRow, toCol, d.dr, d.dc) {
							add(fr, fc)
							break
						}
					}
				}
			}
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	if n > 0 {
		return 1
	}
	return -1
}

func containsToken(disambig []string, token string) bool {
	for _, t := range disambig {
		if t == token {
			return true
		}
	}
	return false
}

// FilterByDisambiguators narrows candidates using KI2 disambiguator
// glyphs (直 寄 上 引 右 左). Each glyph is applied via an independent
// presence check in the fixed canonical order 直→寄→上→引→右→左,
// regardless of the order the glyphs appear in disambig (a compound
// token like "右寄" still filters 寄 before 右).
func FilterByDisambiguators(side byte, toRow, toCol int, candidates []Candidate, disambig []string) []Candidate {
	if len(disambig) == 0 || len(candidates) == 0 {
		return candidates
	}

	fileOf := func(c Candidate) int { return 9 - c.FromCol }
	rankOf := func(c Candidate) int { return c.FromRow + 1 }
	toFile := 9 - toCol
	toRank := toRow + 1
	forwardIsUp := side == 'b'

	filtered := candidates

	if containsToken(disambig, "直") {
		filtered = filterBy(filtered, func(c Candidate) bool { return fileOf(c) == toFile })
	}

	if containsToken(disambig, "寄") {
		filtered = filterBy(filtered, func(c Candidate) bool { return rankOf(c) == toRank })
	}

	if containsToken(disambig, "上") {
		if forwardIsUp {
			filtered = filterBy(filtered, func(c Candidate) bool { return rankOf(c) > toRank })
		} else {
			filtered = filterBy(filtered, func(c Candidate) bool { return rankOf(c) < toRank })
		}
	}

	if containsToken(disambig, "引") {
		if forwardIsUp {
			filtered = filterBy(filtered, func(c Candidate) bool { return rankOf(c) < toRank })
		} else {
			filtered = filterBy(filtered, func(c Candidate) bool { return rankOf(c) > toRank })
		}
	}

	if containsToken(disambig, "右") {
		best, ok := extreme(filtered, fileOf, side == 'b')
		if ok {
			filtered = filterBy(filtered, func(c Candidate) bool { return fileOf(c) == best })
		}
	}

	if containsToken(disambig, "左") {
		best, ok := extreme(filtered, fileOf, side != 'b')
		if ok {
			filtered = filterBy(filtered, func(c Candidate) bool { return fileOf(c) == best })
		}
	}

	return filtered
}

func filterBy(candidates []Candidate, pred func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// extreme returns the minimum (wantMin true) or maximum file value
// among candidates, per the key function.
func extreme(candidates []Candidate, key func(Candidate) int, wantMin bool) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := key(candidates[0])
	for _, c := range candidates[1:] {
		v := key(c)
		if (wantMin && v < best) || (!wantMin && v > best) {
			best = v
		}
	}
	return best, true
}
