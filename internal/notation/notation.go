// Package notation converts between USI move tokens and the
// Japanese-language KIF and KI2 move notations.
package notation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

// ErrAmbiguous marks a KI2 move whose disambiguators did not narrow
// the candidate origins to exactly one square. Wrap it with fmt.Errorf
// and %w so callers can match it with errors.Is.
var ErrAmbiguous = errors.New("notation: ambiguous move")

var fileZenkaku = map[int]string{1: "１", 2: "２", 3: "３", 4: "４", 5: "５", 6: "６", 7: "７", 8: "８", 9: "９"}
var rankKanji = map[int]string{1: "一", 2: "二", 3: "三", 4: "四", 5: "五", 6: "六", 7: "七", 8: "八", 9: "九"}

var fileFromGlyph = reverseStringMap(fileZenkaku)
var rankFromGlyph = reverseStringMap(rankKanji)

func reverseStringMap(m map[int]string) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// PieceJA maps a normalized piece token ("P", "+R", ...) to its kanji name.
var PieceJA = map[string]string{
	"P": "歩", "L": "香", "N": "桂", "S": "銀", "G": "金", "B": "角", "R": "飛", "K": "玉",
	"+P": "と", "+L": "成香", "+N": "成桂", "+S": "成銀", "+B": "馬", "+R": "龍",
}

// JAToBase maps a kanji piece name back to its base USI letter.
var JAToBase = map[string]string{
	"歩": "P", "香": "L", "桂": "N", "銀": "S", "金": "G", "角": "B", "飛": "R", "玉": "K", "王": "K",
	"と": "P", "成香": "L", "成桂": "N", "成銀": "S", "馬": "B", "龍": "R", "竜": "R",
}

// pieceNamesByLength lists KI2/KIF piece names, longest first, for
// greedy prefix matching.
var pieceNamesByLength = []string{"成銀", "成桂", "成香", "龍", "竜", "馬", "と", "玉", "王", "飛", "角", "金", "銀", "桂", "香", "歩"}

var terminationTokens = []string{"投了", "中断", "持将棋", "千日手", "詰み"}

// IsTerminationToken reports whether s contains a game-end marker
// (resignation, abort, impasse, repetition, or mate).
func IsTerminationToken(s string) bool {
	for _, term := range terminationTokens {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func fileRankFromRC(row, col int) (file, rank int) {
	return 9 - col, row + 1
}

func rcFromFileRank(file, rank int) (row, col int, err error) {
	row, col = rank-1, 9-file
	if row < 0 || row > 8 || col < 0 || col > 8 {
		return 0, 0, fmt.Errorf("notation: square out of range")
	}
	return row, col, nil
}

// ParseKIFSquare parses a two-rune KIF square like "７六" or "76".
func ParseKIFSquare(text string) (row, col int, err error) {
	s := strings.TrimSpace(strings.ReplaceAll(text, "　", ""))
	runes := []rune(s)
	if len(runes) < 2 {
		return 0, 0, fmt.Errorf("notation: invalid square: %q", text)
	}
	file, err := glyphToDigit(string(runes[0]), fileFromGlyph)
	if err != nil {
		return 0, 0, fmt.Errorf("notation: invalid file: %q", text)
	}
	rank, err := glyphToDigit(string(runes[1]), rankFromGlyph)
	if err != nil {
		return 0, 0, fmt.Errorf("notation: invalid rank: %q", text)
	}
	return rcFromFileRank(file, rank)
}

func glyphToDigit(ch string, table map[string]int) (int, error) {
	if n, err := strconv.Atoi(ch); err == nil && n >= 1 && n <= 9 {
		return n, nil
	}
	if v, ok := table[ch]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("notation: unknown glyph %q", ch)
}

// FormatKIFSquare renders a (row, col) as a zenkaku-file/kanji-rank pair.
func FormatKIFSquare(row, col int) string {
	file, rank := fileRankFromRC(row, col)
	return fileZenkaku[file] + rankKanji[rank]
}

// FormatFromParen renders the KIF disambiguating "(77)" origin suffix.
func FormatFromParen(row, col int) string {
	file, rank := fileRankFromRC(row, col)
	return fmt.Sprintf("(%d%d)", file, rank)
}

// SideMark returns the KIF/KI2 move-owner glyph for a side ('b'/'w').
func SideMark(side byte) string {
	if side == 'b' {
		return "▲"
	}
	return "△"
}

func normalizePieceToken(token string) string {
	if token == "" {
		return token
	}
	last := token[len(token)-1:]
	lastUpper := strings.ToUpper(last)
	if strings.HasPrefix(token, "+") {
		return "+" + lastUpper
	}
	return lastUpper
}

// JAPieceFromToken maps a raw board token ("P", "p", "+r") to kanji.
func JAPieceFromToken(token string) string {
	norm := normalizePieceToken(token)
	if ja, ok := PieceJA[norm]; ok {
		return ja
	}
	return norm
}

func pieceTokenFromBoard(board [9][9]string, row, col int) string {
	if row < 0 || row > 8 || col < 0 || col > 8 {
		return ""
	}
	return board[row][col]
}

// USIToKI2Label renders the KI2 move label (side mark + square + piece
// + drop/promote suffix) for a move applied to parentSFEN. prevToRC, if
// non-nil, allows rendering the "同" (same square) shorthand.
func USIToKI2Label(parentSFEN, moveUSI string, prevToRC *[2]int) (string, error) {
	st, err := sfen.ParseSFEN(parentSFEN)
	if err != nil {
		return "", err
	}
	mv, err := sfen.ParseUSIMove(moveUSI)
	if err != nil {
		return "", err
	}

	toSq := FormatKIFSquare(mv.ToRow, mv.ToCol)
	if prevToRC != nil && prevToRC[0] == mv.ToRow && prevToRC[1] == mv.ToCol {
		toSq = "同　"
	}

	if mv.IsDrop {
		piece := PieceJA[string(mv.DropPiece)]
		if piece == "" {
			piece = string(mv.DropPiece)
		}
		return fmt.Sprintf("%s%s%s打", SideMark(st.Side), toSq, piece), nil
	}

	token := pieceTokenFromBoard(st.Board, mv.FromRow, mv.FromCol)
	piece := JAPieceFromToken(token)
	suffix := ""
	if mv.Promote {
		suffix = "成"
	}
	return fmt.Sprintf("%s%s%s%s", SideMark(st.Side), toSq, piece, suffix), nil
}

// USIToKIFBody renders the KIF move body (no move number), e.g.
// "７六歩(77)" or "同　歩(77)" or "７六歩打".
func USIToKIFBody(parentSFEN, moveUSI string, prevToRC *[2]int) (string, error) {
	st, err := sfen.ParseSFEN(parentSFEN)
	if err != nil {
		return "", err
	}
	mv, err := sfen.ParseUSIMove(moveUSI)
	if err != nil {
		return "", err
	}

	toSq := FormatKIFSquare(mv.ToRow, mv.ToCol)
	if prevToRC != nil && prevToRC[0] == mv.ToRow && prevToRC[1] == mv.ToCol {
		toSq = "同　"
	}

	if mv.IsDrop {
		piece := PieceJA[string(mv.DropPiece)]
		if piece == "" {
			piece = string(mv.DropPiece)
		}
		return fmt.Sprintf("%s%s打", toSq, piece), nil
	}

	token := pieceTokenFromBoard(st.Board, mv.FromRow, mv.FromCol)
	piece := JAPieceFromToken(token)
	suffix := ""
	if mv.Promote {
		suffix = "成"
	}
	return fmt.Sprintf("%s%s%s%s", toSq, piece, suffix, FormatFromParen(mv.FromRow, mv.FromCol)), nil
}

// ParsedKIFLikeMove is the intermediate result of parsing a KIF move body.
type ParsedKIFLikeMove struct {
	ToRow     int
	ToCol     int
	IsDrop    bool
	DropPiece string
	FromRow   int
	FromCol   int
	HasFrom   bool
	Promote   bool
}

// ToUSI renders a ParsedKIFLikeMove as a USI move token.
func (p ParsedKIFLikeMove) ToUSI() (string, error) {
	toSq, err := sfen.RCToSquare(p.ToRow, p.ToCol)
	if err != nil {
		return "", err
	}
	if p.IsDrop {
		if p.DropPiece == "" {
			return "", fmt.Errorf("notation: drop piece missing")
		}
		return p.DropPiece + "*" + toSq, nil
	}
	if !p.HasFrom {
		return "", fmt.Errorf("notation: from square missing")
	}
	fromSq, err := sfen.RCToSquare(p.FromRow, p.FromCol)
	if err != nil {
		return "", err
	}
	if p.Promote {
		return fromSq + toSq + "+", nil
	}
	return fromSq + toSq, nil
}

var parenRE = regexp.MustCompile(`\((\d)(\d)\)`)
var trailingTimeRE = regexp.MustCompile(`\(\s*\d+:\d+\s*/\s*\d+:\d+:\d+\s*\)\s*$`)

// ParseKIFBody parses a KIF move body like "７六歩(77)" or "同　歩(77)"
// or "７六歩打". prevToRC enables "同" resolution. Returns the parsed
// move and the resolved destination square (for chaining "同").
func ParseKIFBody(moveText string, prevToRC *[2]int) (ParsedKIFLikeMove, [2]int, error) {
	s := strings.TrimSpace(moveText)
	s = trailingTimeRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "　", " ")
	if s == "" {
		return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf("notation: empty move")
	}
	if IsTerminationToken(s) {
		return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf("notation: game end token")
	}

	var toRow, toCol int
	rest := s
	if strings.HasPrefix(rest, "同") {
		if prevToRC == nil {
			return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf(`notation: "同" used but no previous destination`)
		}
		toRow, toCol = prevToRC[0], prevToRC[1]
		rest = strings.TrimLeft(rest[len("同"):], " ")
	} else {
		runes := []rune(rest)
		if len(runes) < 2 {
			return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf("notation: invalid move: %q", moveText)
		}
		var err error
		toRow, toCol, err = ParseKIFSquare(string(runes[:2]))
		if err != nil {
			return ParsedKIFLikeMove{}, [2]int{}, err
		}
		rest = string(runes[2:])
	}
	rest = strings.TrimSpace(rest)

	hasFrom := false
	fromRow, fromCol := 0, 0
	restWithoutParen := rest
	if loc := parenRE.FindStringSubmatchIndex(rest); loc != nil {
		file, _ := strconv.Atoi(rest[loc[2]:loc[3]])
		rank, _ := strconv.Atoi(rest[loc[4]:loc[5]])
		var err error
		fromRow, fromCol, err = rcFromFileRank(file, rank)
		if err != nil {
			return ParsedKIFLikeMove{}, [2]int{}, err
		}
		hasFrom = true
		restWithoutParen = strings.TrimSpace(rest[:loc[0]] + rest[loc[1]:])
	}

	isDrop := strings.Contains(restWithoutParen, "打")
	promote := strings.Contains(restWithoutParen, "成") && !strings.Contains(restWithoutParen, "不成")

	if isDrop {
		found := ""
		for _, name := range sortedByLengthDesc(jaToBaseKeys()) {
			if strings.HasPrefix(restWithoutParen, name) {
				found = name
				break
			}
		}
		if found == "" {
			return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf("notation: cannot detect drop piece: %q", moveText)
		}
		dropPiece := JAToBase[found]
		if dropPiece == "K" {
			return ParsedKIFLikeMove{}, [2]int{}, fmt.Errorf("notation: king drop is invalid")
		}
		return ParsedKIFLikeMove{ToRow: toRow, ToCol: toCol, IsDrop: true, DropPiece: dropPiece}, [2]int{toRow, toCol}, nil
	}

	return ParsedKIFLikeMove{
		ToRow: toRow, ToCol: toCol,
		FromRow: fromRow, FromCol: fromCol, HasFrom: hasFrom,
		Promote: promote,
	}, [2]int{toRow, toCol}, nil
}

func jaToBaseKeys() []string {
	keys := make([]string, 0, len(JAToBase))
	for k := range JAToBase {
		keys = append(keys, k)
	}
	return keys
}

func sortedByLengthDesc(keys []string) []string {
	out := append([]string(nil), keys...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len([]rune(out[j])) > len([]rune(out[j-1])); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ParsedKI2Token is the raw parse of a single KI2 move token, before
// from-square resolution (which requires board state; see the
// kifimport package).
type ParsedKI2Token struct {
	SideMark  string
	ToRow     int
	ToCol     int
	PieceName string
	IsDrop    bool
	Promote   bool
	Disambig  []string
}

// ParseKI2Token parses a single KI2 token like "▲７六歩" or "△同　銀右".
func ParseKI2Token(token string, prevToRC *[2]int) (ParsedKI2Token, [2]int, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return ParsedKI2Token{}, [2]int{}, fmt.Errorf("notation: empty token")
	}
	runes := []rune(t)
	mark := string(runes[0])
	if mark != "▲" && mark != "△" {
		return ParsedKI2Token{}, [2]int{}, fmt.Errorf("notation: missing side mark")
	}
	rest := strings.TrimSpace(strings.ReplaceAll(string(runes[1:]), "　", " "))

	if IsTerminationToken(rest) {
		return ParsedKI2Token{}, [2]int{}, fmt.Errorf("notation: game end token")
	}

	var toRow, toCol int
	if strings.HasPrefix(rest, "同") {
		if prevToRC == nil {
			return ParsedKI2Token{}, [2]int{}, fmt.Errorf(`notation: "同" used but no previous destination`)
		}
		toRow, toCol = prevToRC[0], prevToRC[1]
		rest = strings.TrimLeft(rest[len("同"):], " ")
	} else {
		rr := []rune(rest)
		if len(rr) < 2 {
			return ParsedKI2Token{}, [2]int{}, fmt.Errorf("notation: invalid token: %q", token)
		}
		var err error
		toRow, toCol, err = ParseKIFSquare(string(rr[:2]))
		if err != nil {
			return ParsedKI2Token{}, [2]int{}, err
		}
		rest = strings.TrimSpace(string(rr[2:]))
	}

	pieceName := ""
	for _, name := range pieceNamesByLength {
		if strings.HasPrefix(rest, name) {
			pieceName = name
			rest = rest[len(name):]
			break
		}
	}
	if pieceName == "" {
		return ParsedKI2Token{}, [2]int{}, fmt.Errorf("notation: cannot detect piece name: %q", token)
	}

	isDrop := strings.Contains(rest, "打")
	promote := strings.Contains(rest, "成") && !strings.Contains(rest, "不成")

	var disambig []string
	for _, ch := range []string{"右", "左", "直", "上", "引", "寄"} {
		if strings.Contains(rest, ch) {
			disambig = append(disambig, ch)
		}
	}

	return ParsedKI2Token{
		SideMark:  mark,
		ToRow:     toRow,
		ToCol:     toCol,
		PieceName: pieceName,
		IsDrop:    isDrop,
		Promote:   promote,
		Disambig:  disambig,
	}, [2]int{toRow, toCol}, nil
}

// PieceNormFromJA maps a KI2/KIF piece name to its normalized token
// form ("P", "+P", ...), as used by the movegen candidate generator.
func PieceNormFromJA(pieceName string) (string, error) {
	switch pieceName {
	case "と":
		return "+P", nil
	case "成香":
		return "+L", nil
	case "成桂":
		return "+N", nil
	case "成銀":
		return "+S", nil
	case "馬":
		return "+B", nil
	case "龍", "竜":
		return "+R", nil
	}
	base, ok := JAToBase[pieceName]
	if !ok {
		return "", fmt.Errorf("notation: unknown piece name: %q", pieceName)
	}
	return base, nil
}

// SideFromMark converts a KIF/KI2 side glyph to a 'b'/'w' side byte.
func SideFromMark(mark string) byte {
	if mark == "▲" {
		return 'b'
	}
	return 'w'
}
