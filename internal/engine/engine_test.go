package engine

import (
	"context"
	"testing"
)

type fakeSaver struct{}

func (fakeSaver) SaveAnalysisSnapshot(ctx context.Context, nodeID string, elapsedMS, multiPV int, lines []Line) (string, error) {
	return "snap-1", nil
}

func TestNewIsNotConfigured(t *testing.T) {
	d := New(fakeSaver{})
	if d.IsAvailable() {
		t.Error("expected a fresh driver to be unavailable")
	}
	if d.StatusWire()["status"] != string(StatusNotConfigured) {
		t.Errorf("got status %v, want %q", d.StatusWire()["status"], StatusNotConfigured)
	}
}

func TestConfigureWithEmptyCommandStaysNotConfigured(t *testing.T) {
	d := New(fakeSaver{})
	d.Configure(nil, Options{})
	if d.IsAvailable() {
		t.Error("expected empty command to leave the driver unconfigured")
	}
}

func TestConfigureMarksAvailableAndIdle(t *testing.T) {
	d := New(fakeSaver{})
	d.Configure([]string{"/path/to/engine"}, Options{Threads: 4, HashMB: 256})
	if !d.IsAvailable() {
		t.Error("expected driver to be available once configured")
	}
	status := d.StatusWire()
	if status["status"] != string(StatusIdle) {
		t.Errorf("got status %v, want %q", status["status"], StatusIdle)
	}
	if status["threads"] != 4 || status["hash_mb"] != 256 {
		t.Errorf("expected tuning options in status wire, got %+v", status)
	}
}

func TestCapabilitiesWireReflectsAvailability(t *testing.T) {
	d := New(fakeSaver{})
	caps := d.CapabilitiesWire()
	if caps["analysis"] != false {
		t.Errorf("expected analysis capability false when unconfigured, got %+v", caps)
	}

	d.Configure([]string{"/path/to/engine"}, Options{})
	caps = d.CapabilitiesWire()
	if caps["analysis"] != true {
		t.Errorf("expected analysis capability true when configured, got %+v", caps)
	}
	controls, ok := caps["analysis_controls"].([]string)
	if !ok || len(controls) == 0 {
		t.Errorf("expected non-empty analysis_controls, got %+v", caps["analysis_controls"])
	}
}

func TestStartForGameWithoutConfigurationFails(t *testing.T) {
	d := New(fakeSaver{})
	ok, reason := d.StartForGame(context.Background(), "", nil, "node-1", 1)
	if ok {
		t.Error("expected StartForGame to fail on an unconfigured driver")
	}
	if reason == "" {
		t.Error("expected a non-empty failure reason")
	}
}

func TestStartForGameRejectsInvalidPath(t *testing.T) {
	d := New(fakeSaver{})
	d.Configure([]string{"/path/to/engine"}, Options{})
	ok, reason := d.StartForGame(context.Background(), "not a valid sfen", []string{"7g7f"}, "node-1", 1)
	if ok {
		t.Error("expected StartForGame to reject a malformed initial SFEN")
	}
	if reason == "" {
		t.Error("expected a non-empty failure reason")
	}
}

func TestParseOptionName(t *testing.T) {
	cases := []struct {
		name string
		line string
		want string
	}{
		{"simple check", "option name Ponder type check default false", "Ponder"},
		{"multi-word name", "option name Book File type string default book.bin", "Book File"},
		{"spin option", "option name Threads type spin default 1 min 1 max 512", "Threads"},
		{"missing type token", "option name Threads", ""},
		{"not an option line", "info depth 5", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseOptionName(tc.line); got != tc.want {
				t.Errorf("parseOptionName(%q) = %q, want %q", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseInfoLineDiscardsLinesWithoutPV(t *testing.T) {
	if _, ok := parseInfoLine("info depth 10 score cp 35"); ok {
		t.Error("expected a pv-less info line to be discarded")
	}
	if _, ok := parseInfoLine("usiok"); ok {
		t.Error("expected a non-info line to be rejected")
	}
}

func TestParseInfoLineBasic(t *testing.T) {
	line := "info depth 12 seldepth 18 multipv 2 score cp 35 nodes 100000 nps 500000 hashfull 120 pv 7g7f 3c3d 2g2f"
	got, ok := parseInfoLine(line)
	if !ok {
		t.Fatal("expected line to parse")
	}
	if got.PVIndex != 2 {
		t.Errorf("PVIndex = %d, want 2", got.PVIndex)
	}
	if got.Depth != 12 || got.Seldepth != 18 {
		t.Errorf("depth/seldepth = %d/%d, want 12/18", got.Depth, got.Seldepth)
	}
	if got.ScoreType != "cp" || got.ScoreValue != 35 {
		t.Errorf("score = %s %d, want cp 35", got.ScoreType, got.ScoreValue)
	}
	if got.Nodes != 100000 || got.NPS != 500000 || got.Hashfull != 120 {
		t.Errorf("nodes/nps/hashfull = %d/%d/%d", got.Nodes, got.NPS, got.Hashfull)
	}
	want := []string{"7g7f", "3c3d", "2g2f"}
	if len(got.PVUSI) != len(want) {
		t.Fatalf("pv = %v, want %v", got.PVUSI, want)
	}
	for i := range want {
		if got.PVUSI[i] != want[i] {
			t.Errorf("pv[%d] = %q, want %q", i, got.PVUSI[i], want[i])
		}
	}
}

func TestParseInfoLineMateScore(t *testing.T) {
	got, ok := parseInfoLine("info depth 20 score mate 3 pv 8h2b+ 3a2b 2b3a+")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if got.ScoreType != "mate" || got.ScoreValue != 3 {
		t.Errorf("score = %s %d, want mate 3", got.ScoreType, got.ScoreValue)
	}
}

func TestParseInfoLineDefaultsMultiPVToOne(t *testing.T) {
	got, ok := parseInfoLine("info depth 5 score cp 10 pv 7g7f")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if got.PVIndex != 1 {
		t.Errorf("PVIndex = %d, want 1 (default)", got.PVIndex)
	}
}

func TestParseInfoLineWithBoundScoreIsSkippedAsToken(t *testing.T) {
	got, ok := parseInfoLine("info depth 9 score cp 12 upperbound pv 7g7f 3c3d")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if got.ScoreValue != 12 {
		t.Errorf("ScoreValue = %d, want 12", got.ScoreValue)
	}
	if len(got.PVUSI) != 2 {
		t.Errorf("pv = %v, want 2 moves", got.PVUSI)
	}
}

func TestApplyOptionsLockedSkipsRoundTripWhenMultiPVUnchanged(t *testing.T) {
	d := New(fakeSaver{})
	d.optionNames = map[string]bool{"multipv": true}
	d.activeMultiPV = 3

	// No stdin is wired up; if applyOptionsLocked tried to send
	// anything here it would fail with a stdin-not-available error, so
	// a nil error return proves the setoption/isready round trip was
	// skipped entirely.
	d.mu.Lock()
	err := d.applyOptionsLocked(context.Background(), 3)
	d.mu.Unlock()
	if err != nil {
		t.Errorf("expected no-op when multiPV is unchanged, got error: %v", err)
	}
}

func TestApplyOptionsLockedSendsWhenMultiPVChanges(t *testing.T) {
	d := New(fakeSaver{})
	d.optionNames = map[string]bool{"multipv": true}
	d.activeMultiPV = 3

	d.mu.Lock()
	err := d.applyOptionsLocked(context.Background(), 5)
	d.mu.Unlock()
	if err == nil {
		t.Fatal("expected an error from attempting to send to an unavailable stdin, proving the round trip was attempted")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Errorf("expected a *ProtocolError from the unavailable stdin, got %T: %v", err, err)
	}
}

func TestApplyOptionsLockedNoopWhenMultiPVNotSupported(t *testing.T) {
	d := New(fakeSaver{})
	d.mu.Lock()
	err := d.applyOptionsLocked(context.Background(), 5)
	d.mu.Unlock()
	if err != nil {
		t.Errorf("expected no-op when engine does not advertise MultiPV, got error: %v", err)
	}
}

func TestSnapshotSignatureChangesWithLines(t *testing.T) {
	a := []Line{{PVIndex: 1, ScoreType: "cp", ScoreValue: 35, Depth: 10, PVUSI: []string{"7g7f"}}}
	b := []Line{{PVIndex: 1, ScoreType: "cp", ScoreValue: 40, Depth: 10, PVUSI: []string{"7g7f"}}}

	sigA := snapshotSignature("node-1", 1, a)
	sigB := snapshotSignature("node-1", 1, b)
	if sigA == sigB {
		t.Error("expected differing score to produce a differing signature")
	}

	sigARepeat := snapshotSignature("node-1", 1, a)
	if sigA != sigARepeat {
		t.Error("expected identical inputs to produce the same signature")
	}

	sigOtherNode := snapshotSignature("node-2", 1, a)
	if sigA == sigOtherNode {
		t.Error("expected differing node id to produce a differing signature")
	}
}
