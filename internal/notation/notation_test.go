package notation

import (
	"testing"

	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

func TestFormatKIFSquareRoundTrip(t *testing.T) {
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			label := FormatKIFSquare(row, col)
			gotRow, gotCol, err := ParseKIFSquare(label)
			if err != nil {
				t.Fatalf("ParseKIFSquare(%q): %v", label, err)
			}
			if gotRow != row || gotCol != col {
				t.Errorf("round trip (%d,%d) -> %q -> (%d,%d)", row, col, label, gotRow, gotCol)
			}
		}
	}
}

func TestUSIToKI2Label(t *testing.T) {
	cases := []struct {
		name string
		usi  string
		want string
	}{
		{"black pawn push", "7g7f", "▲７六歩"},
		{"drop", "P*5e", "▲５五歩打"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := USIToKI2Label(sfen.DefaultStart, tc.usi, nil)
			if err != nil {
				t.Fatalf("USIToKI2Label: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUSIToKI2LabelSameSquare(t *testing.T) {
	got, err := USIToKI2Label(sfen.DefaultStart, "7g7f", &[2]int{5, 2})
	if err != nil {
		t.Fatalf("USIToKI2Label: %v", err)
	}
	want := "▲同　歩"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUSIToKIFBody(t *testing.T) {
	got, err := USIToKIFBody(sfen.DefaultStart, "7g7f", nil)
	if err != nil {
		t.Fatalf("USIToKIFBody: %v", err)
	}
	want := "７六歩(77)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseKIFBodyRoundTripsWithUSIToKIFBody(t *testing.T) {
	body, err := USIToKIFBody(sfen.DefaultStart, "7g7f", nil)
	if err != nil {
		t.Fatalf("USIToKIFBody: %v", err)
	}
	parsed, _, err := ParseKIFBody(body, nil)
	if err != nil {
		t.Fatalf("ParseKIFBody(%q): %v", body, err)
	}
	usi, err := parsed.ToUSI()
	if err != nil {
		t.Fatalf("ToUSI: %v", err)
	}
	if usi != "7g7f" {
		t.Errorf("got %q, want 7g7f", usi)
	}
}

func TestParseKIFBodyDrop(t *testing.T) {
	parsed, _, err := ParseKIFBody("５五歩打", nil)
	if err != nil {
		t.Fatalf("ParseKIFBody: %v", err)
	}
	if !parsed.IsDrop || parsed.DropPiece != "P" {
		t.Errorf("got %+v, want drop P", parsed)
	}
	usi, err := parsed.ToUSI()
	if err != nil {
		t.Fatalf("ToUSI: %v", err)
	}
	if usi != "P*5e" {
		t.Errorf("got %q, want P*5e", usi)
	}
}

func TestParseKIFBodySameSquareRequiresPrev(t *testing.T) {
	if _, _, err := ParseKIFBody("同　歩(77)", nil); err == nil {
		t.Error("expected error when 同 has no previous destination")
	}
	if _, _, err := ParseKIFBody("同　歩(77)", &[2]int{5, 2}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseKI2Token(t *testing.T) {
	tok, _, err := ParseKI2Token("▲７六歩", nil)
	if err != nil {
		t.Fatalf("ParseKI2Token: %v", err)
	}
	if tok.SideMark != "▲" || tok.PieceName != "歩" || tok.IsDrop {
		t.Errorf("got %+v", tok)
	}
}

func TestParseKI2TokenDisambiguators(t *testing.T) {
	tok, _, err := ParseKI2Token("▲５五銀右", nil)
	if err != nil {
		t.Fatalf("ParseKI2Token: %v", err)
	}
	if len(tok.Disambig) != 1 || tok.Disambig[0] != "右" {
		t.Errorf("expected [右] disambiguator, got %v", tok.Disambig)
	}
}

func TestPieceNormFromJA(t *testing.T) {
	cases := map[string]string{
		"歩": "P", "と": "+P", "馬": "+B", "龍": "+R", "竜": "+R", "玉": "K",
	}
	for ja, want := range cases {
		got, err := PieceNormFromJA(ja)
		if err != nil {
			t.Fatalf("PieceNormFromJA(%q): %v", ja, err)
		}
		if got != want {
			t.Errorf("PieceNormFromJA(%q) = %q, want %q", ja, got, want)
		}
	}
}

func TestIsTerminationToken(t *testing.T) {
	if !IsTerminationToken("投了") {
		t.Error("expected 投了 to be a termination token")
	}
	if IsTerminationToken("７六歩") {
		t.Error("did not expect a normal move to be a termination token")
	}
}
