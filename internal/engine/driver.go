// Package engine drives at most one external USI shogi engine
// subprocess: the text handshake, one analysis session at a time, a
// streaming info-line parser, and a throttled forwarder of ranked
// principal variations, the way chessanalysis.StockfishEngine drives
// Stockfish but generalized to USI's handshake and multi-PV protocol.
package engine

import (
	"bufio"
	"container/ring"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/walterschell/shogi-analyzer/internal/sfen"
)

var log = slog.Default().With("package", "engine")

// Status is the driver's externally visible lifecycle state.
type Status string

const (
	StatusNotConfigured   Status = "not_configured"
	StatusIdle            Status = "idle"
	StatusStarting        Status = "starting"
	StatusConfiguringBoot Status = "configuring_boot"
	StatusReady           Status = "ready"
	StatusAnalyzing       Status = "analyzing"
	StatusError           Status = "error"
)

// ProtocolError wraps a handshake timeout or process exit with the
// tail of the diagnostic ring for troubleshooting.
type ProtocolError struct {
	Msg string
	Tail string
}

func (e *ProtocolError) Error() string {
	if e.Tail == "" {
		return "engine: " + e.Msg
	}
	return "engine: " + e.Msg + "\n" + e.Tail
}

// ErrNotConfigured is returned when analysis is requested without a
// configured engine command.
type ErrNotConfigured struct{}

func (ErrNotConfigured) Error() string { return "engine: not configured" }

// SenderFunc delivers one outbound message to the attached owner
// channel. Implementations should be non-blocking; the driver treats
// any returned error as best-effort and swallows it.
type SenderFunc func(msgType string, payload map[string]any) error

// SnapshotSaver is the narrow persistence surface the driver needs;
// store.Store satisfies it structurally.
type SnapshotSaver interface {
	SaveAnalysisSnapshot(ctx context.Context, nodeID string, elapsedMS, multiPV int, lines []Line) (string, error)
}

// Options configures boot-time engine tuning.
type Options struct {
	EvalDir string
	Threads int
	HashMB  int

	USIOKTimeout                time.Duration
	ReadyOKTimeout               time.Duration
	PostSetoptionReadyOKTimeout time.Duration
}

// Driver owns one engine subprocess and its analysis lifecycle.
type Driver struct {
	saver SnapshotSaver

	mu sync.Mutex

	cmd     []string
	opts    Options
	configured bool

	proc       *exec.Cmd
	stdin      io.WriteCloser
	readerDone chan struct{}

	ioLog *ring.Ring

	status       Status
	lastError    string
	engineName   string
	optionNames  map[string]bool

	usiokCh    chan struct{}
	readyokCh  chan struct{}
	bestmoveCh chan struct{}

	ownerSender SenderFunc

	analysisRunning      bool
	analysisNodeID       string
	analysisStarted      time.Time
	activeMultiPV        int
	latestByIndex        map[int]Line
	infoVersion          int
	lastSentInfoVersion  int
	lastSentAt           time.Time
	lastSnapshotSig      string

	tickerStop chan struct{}
	tickerDone chan struct{}
}

// New returns an unconfigured Driver. Call Configure before first use.
func New(saver SnapshotSaver) *Driver {
	return &Driver{
		saver:  saver,
		status: StatusNotConfigured,
		ioLog:  ring.New(120),
	}
}

// Configure records the engine command and boot tuning. It does not
// launch the process; the process starts lazily on first analysis.
func (d *Driver) Configure(cmd []string, opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmd = cmd
	d.opts = opts
	d.configured = len(cmd) > 0
	if d.configured {
		d.status = StatusIdle
	} else {
		d.status = StatusNotConfigured
	}
}

// IsAvailable reports whether an engine command has been configured.
func (d *Driver) IsAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configured
}

// CapabilitiesWire renders the server-capabilities fragment that
// depends on engine availability.
func (d *Driver) CapabilitiesWire() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	var controls []string
	if d.configured {
		controls = []string{"enable", "multipv", "start", "stop"}
	}
	return map[string]any{
		"analysis":          d.configured,
		"analysis_controls": controls,
	}
}

// StatusWire renders the current driver status for the client.
func (d *Driver) StatusWire() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"enabled":          d.configured,
		"status":           string(d.status),
		"engine_name":      d.engineName,
		"command":          strings.Join(d.cmd, " "),
		"eval_dir":         d.opts.EvalDir,
		"analysis_running": d.analysisRunning,
		"node_id":          d.analysisNodeID,
		"multipv":          d.activeMultiPV,
		"threads":          d.opts.Threads,
		"hash_mb":          d.opts.HashMB,
		"last_error":       d.lastError,
	}
}

// AttachSender installs sender as the current owner channel and then
// stops any in-flight analysis (a new owner invalidates the old one's
// stream); the resulting analysis:stopped goes to the new sender.
func (d *Driver) AttachSender(sender SenderFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ownerSender = sender
	if d.analysisRunning {
		d.stopLocked("owner changed", true)
	}
}

// ClearSender detaches the owner channel without stopping analysis.
func (d *Driver) ClearSender() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ownerSender = nil
}

// OwnerDisconnected stops analysis and detaches the sender.
func (d *Driver) OwnerDisconnected() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked("owner disconnected", true)
	d.ownerSender = nil
}

// Shutdown stops analysis silently and tears down the subprocess.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	d.stopLocked("server shutdown", false)
	proc := d.proc
	d.proc = nil
	reader := d.readerDone
	d.readerDone = nil
	if d.configured {
		d.status = StatusIdle
	} else {
		d.status = StatusNotConfigured
	}
	d.mu.Unlock()

	if proc != nil && proc.Process != nil {
		_ = proc.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { _ = proc.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = proc.Process.Kill()
			<-done
		}
	}
	if reader != nil {
		<-reader
	}
}

// Stop halts the current analysis, if any, and emits analysis:stopped
// with reason.
func (d *Driver) Stop(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(reason, true)
}

// StartForGame runs the per-analysis sequence: ensure the engine is
// ready, apply MultiPV, send the position and go infinite, and start
// the ticker. path is the root-to-node move sequence (exclusive of
// promotion/drop parsing, already in USI form); multiPV is already
// sanitized to [1, 20].
func (d *Driver) StartForGame(ctx context.Context, initialSFEN string, path []string, nodeID string, multiPV int) (bool, string) {
	position, err := sfen.PositionCommand(initialSFEN, path)
	if err != nil {
		reason := fmt.Sprintf("invalid node for analysis: %v", err)
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}

	d.mu.Lock()
	if !d.configured {
		d.status = StatusNotConfigured
		d.mu.Unlock()
		reason := "USI engine is not configured (set ENGINE_PATH)"
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}

	if err := d.ensureEngineReadyLocked(ctx); err != nil {
		d.lastError = err.Error()
		d.status = StatusError
		reason := fmt.Sprintf("analysis start failed: %v", err)
		d.mu.Unlock()
		log.Error("engine not ready for analysis", "error", err, "node_id", nodeID)
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}

	if d.analysisRunning {
		d.stopLocked("restarting", false)
	}

	if err := d.applyOptionsLocked(ctx, multiPV); err != nil {
		d.lastError = err.Error()
		d.status = StatusError
		reason := fmt.Sprintf("analysis start failed: %v", err)
		d.mu.Unlock()
		log.Error("failed to apply engine options before analysis", "error", err, "node_id", nodeID, "multipv", multiPV)
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}

	d.bestmoveCh = make(chan struct{})
	d.latestByIndex = map[int]Line{}
	d.infoVersion++
	d.lastSentInfoVersion = -1
	d.lastSentAt = time.Time{}
	d.lastSnapshotSig = ""
	d.analysisNodeID = nodeID
	d.analysisStarted = time.Now()
	d.activeMultiPV = multiPV
	d.analysisRunning = true
	d.status = StatusAnalyzing

	if err := d.sendLineLocked(position); err != nil {
		d.mu.Unlock()
		reason := fmt.Sprintf("analysis start failed: %v", err)
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}
	if err := d.sendLineLocked("go infinite"); err != nil {
		d.mu.Unlock()
		reason := fmt.Sprintf("analysis start failed: %v", err)
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		return false, reason
	}

	if d.tickerStop == nil {
		d.tickerStop = make(chan struct{})
		d.tickerDone = make(chan struct{})
		go d.tickerLoop(d.tickerStop, d.tickerDone)
	}
	d.mu.Unlock()
	return true, "started"
}


func (d *Driver) emit(msgType string, payload map[string]any) {
	d.mu.Lock()
	sender := d.ownerSender
	d.mu.Unlock()
	if sender == nil {
		return
	}
	defer func() { recover() }()
	_ = sender(msgType, payload)
}

func (d *Driver) ioTail() string {
	var lines []string
	d.ioLog.Do(func(v any) {
		if v != nil {
			lines = append(lines, v.(string))
		}
	})
	return strings.Join(lines, "\n")
}

func (d *Driver) logIO(line string) {
	d.ioLog.Value = line
	d.ioLog = d.ioLog.Next()
}

func (d *Driver) sendLineLocked(line string) error {
	if d.stdin == nil {
		return &ProtocolError{Msg: "engine stdin is not available"}
	}
	d.logIO("> " + line)
	_, err := io.WriteString(d.stdin, line+"\n")
	return err
}

func (d *Driver) processAlive() bool {
	return d.proc != nil && d.proc.ProcessState == nil
}

// waitEvent polls ch in <=250ms chunks until it fires, ctx is done, or
// the deadline passes, detecting process exit on every chunk.
func (d *Driver) waitEvent(ctx context.Context, ch chan struct{}, timeout time.Duration, label string) error {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ch:
			return nil
		default:
		}
		d.mu.Lock()
		alive := d.processAlive()
		tail := ""
		if !alive {
			tail = d.ioTail()
		}
		d.mu.Unlock()
		if !alive {
			log.Error("engine process exited during handshake wait", "waiting_for", label)
			return &ProtocolError{Msg: fmt.Sprintf("engine process exited while waiting for %s", label), Tail: tail}
		}
		now := time.Now()
		if now.After(deadline) {
			d.mu.Lock()
			tail := d.ioTail()
			d.mu.Unlock()
			log.Error("timed out waiting for engine handshake event", "waiting_for", label, "timeout", timeout)
			return &ProtocolError{Msg: fmt.Sprintf("timeout waiting for %s", label), Tail: tail}
		}
		chunk := 250 * time.Millisecond
		if remaining := deadline.Sub(now); remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ch:
			return nil
		case <-time.After(chunk):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func exeDir(cmd []string) string {
	if len(cmd) != 1 {
		return ""
	}
	return filepath.Dir(cmd[0])
}

func guessEvalDir(configured string, cmd []string) string {
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && info.IsDir() {
			return configured
		}
	}
	dir := exeDir(cmd)
	if dir == "" {
		return ""
	}
	candidates := []string{
		filepath.Join(dir, "eval"),
		filepath.Join(dir, "..", "eval"),
		filepath.Join(dir, "..", "..", "eval"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(filepath.Join(c, "nn.bin")); err == nil && !info.IsDir() {
			return c
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			entries, err := os.ReadDir(c)
			if err == nil {
				for _, e := range entries {
					if !e.IsDir() {
						return c
					}
				}
			}
		}
	}
	return ""
}

func (d *Driver) supportsOption(name string) bool {
	return d.optionNames[strings.ToLower(name)]
}

// ensureEngineReadyLocked runs the startup handshake if the process is
// not already alive, or no-ops if it is already ready/analyzing.
// Caller must hold d.mu.
func (d *Driver) ensureEngineReadyLocked(ctx context.Context) error {
	if !d.configured {
		return ErrNotConfigured{}
	}

	if d.proc != nil && d.proc.ProcessState != nil {
		d.proc = nil
		d.status = StatusIdle
	}

	if d.proc != nil {
		if !d.analysisRunning {
			d.status = StatusReady
		}
		return nil
	}

	d.status = StatusStarting
	d.lastError = ""
	d.usiokCh = make(chan struct{})
	d.readyokCh = make(chan struct{})
	d.bestmoveCh = make(chan struct{})
	d.optionNames = map[string]bool{}
	d.engineName = ""
	d.ioLog = ring.New(120)
	// A freshly booted process starts with the engine's own MultiPV
	// default, not whatever was last applied to a previous process.
	d.activeMultiPV = 0

	if len(d.cmd) == 0 {
		return &ProtocolError{Msg: "missing engine command"}
	}
	if len(d.cmd) == 1 {
		if _, err := os.Stat(d.cmd[0]); err != nil {
			return &ProtocolError{Msg: fmt.Sprintf("engine executable not found: %s", d.cmd[0])}
		}
	}

	cmd := exec.CommandContext(context.Background(), d.cmd[0], d.cmd[1:]...)
	if dir := exeDir(d.cmd); dir != "" && dir != "." {
		cmd.Dir = dir
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("failed to start engine: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("failed to start engine: %v", err)}
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("failed to start engine: %v", err)}
	}
	d.proc = cmd
	d.stdin = stdin

	readerDone := make(chan struct{})
	d.readerDone = readerDone
	go d.readerLoop(stdout, readerDone)

	if err := d.sendLineLocked("usi"); err != nil {
		return err
	}
	usiokCh := d.usiokCh
	d.mu.Unlock()
	err = d.waitEvent(ctx, usiokCh, d.opts.USIOKTimeout, "usiok")
	d.mu.Lock()
	if err != nil {
		return err
	}

	d.status = StatusConfiguringBoot
	if err := d.applyBootOptionsLocked(); err != nil {
		return err
	}

	d.readyokCh = make(chan struct{})
	if err := d.sendLineLocked("isready"); err != nil {
		return err
	}
	readyokCh := d.readyokCh
	d.mu.Unlock()
	err = d.waitEvent(ctx, readyokCh, d.opts.ReadyOKTimeout, "readyok")
	d.mu.Lock()
	if err != nil {
		return err
	}

	if err := d.sendLineLocked("usinewgame"); err != nil {
		return err
	}
	d.status = StatusReady
	return nil
}

func (d *Driver) applyBootOptionsLocked() error {
	if d.supportsOption("EvalDir") {
		if guess := guessEvalDir(d.opts.EvalDir, d.cmd); guess != "" {
			d.opts.EvalDir = guess
			if err := d.sendLineLocked(fmt.Sprintf("setoption name EvalDir value %s", guess)); err != nil {
				return err
			}
		}
	}
	if d.supportsOption("Threads") {
		if err := d.sendLineLocked(fmt.Sprintf("setoption name Threads value %d", d.opts.Threads)); err != nil {
			return err
		}
	}
	if d.supportsOption("USI_Hash") {
		if err := d.sendLineLocked(fmt.Sprintf("setoption name USI_Hash value %d", d.opts.HashMB)); err != nil {
			return err
		}
	} else if d.supportsOption("Hash") {
		if err := d.sendLineLocked(fmt.Sprintf("setoption name Hash value %d", d.opts.HashMB)); err != nil {
			return err
		}
	}
	return nil
}

// applyOptionsLocked sends MultiPV, if advertised and it differs from
// the last value applied to the running process, and waits for the
// resulting readyok. Caller must hold d.mu.
func (d *Driver) applyOptionsLocked(ctx context.Context, multiPV int) error {
	if !d.supportsOption("MultiPV") {
		return nil
	}
	if multiPV == d.activeMultiPV {
		return nil
	}
	if err := d.sendLineLocked(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
		return err
	}
	d.readyokCh = make(chan struct{})
	if err := d.sendLineLocked("isready"); err != nil {
		return err
	}
	readyokCh := d.readyokCh
	d.mu.Unlock()
	err := d.waitEvent(ctx, readyokCh, d.opts.PostSetoptionReadyOKTimeout, "readyok after setoption")
	d.mu.Lock()
	return err
}

// stopLocked halts the running analysis, cancels the ticker, and
// optionally emits analysis:stopped. Caller must hold d.mu; it
// releases and re-acquires the lock around the bestmove wait and
// ticker join.
func (d *Driver) stopLocked(reason string, emit bool) {
	wasRunning := d.analysisRunning
	d.analysisRunning = false
	d.analysisNodeID = ""
	d.latestByIndex = nil
	d.lastSentInfoVersion = -1
	d.lastSnapshotSig = ""

	tickerStop, tickerDone := d.tickerStop, d.tickerDone
	d.tickerStop, d.tickerDone = nil, nil
	if tickerStop != nil {
		close(tickerStop)
	}

	if wasRunning && d.processAlive() {
		d.bestmoveCh = make(chan struct{})
		bestmoveCh := d.bestmoveCh
		_ = d.sendLineLocked("stop")
		d.mu.Unlock()
		select {
		case <-bestmoveCh:
		case <-time.After(2 * time.Second):
		}
		d.mu.Lock()
	}

	if tickerDone != nil {
		d.mu.Unlock()
		<-tickerDone
		d.mu.Lock()
	}

	if d.configured {
		if d.processAlive() {
			d.status = StatusReady
		} else {
			d.status = StatusIdle
		}
	} else {
		d.status = StatusNotConfigured
	}

	if emit {
		d.mu.Unlock()
		d.emit("analysis:stopped", map[string]any{"reason": reason})
		d.mu.Lock()
	}
}

func (d *Driver) tickerLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		if !d.analysisRunning || d.analysisNodeID == "" {
			d.mu.Unlock()
			return
		}

		now := time.Now()
		elapsedMS := int(now.Sub(d.analysisStarted) / time.Millisecond)
		if elapsedMS < 0 {
			elapsedMS = 0
		}
		interval := 500 * time.Millisecond
		if elapsedMS >= 5000 {
			interval = 1000 * time.Millisecond
		}
		if now.Sub(d.lastSentAt) < interval {
			d.mu.Unlock()
			continue
		}
		if d.infoVersion == d.lastSentInfoVersion {
			d.mu.Unlock()
			continue
		}

		var indices []int
		for idx := range d.latestByIndex {
			if idx <= d.activeMultiPV {
				indices = append(indices, idx)
			}
		}
		sort.Ints(indices)
		if len(indices) == 0 {
			d.mu.Unlock()
			continue
		}
		lines := make([]Line, 0, len(indices))
		for _, idx := range indices {
			lines = append(lines, d.latestByIndex[idx])
		}
		d.lastSentAt = now
		d.lastSentInfoVersion = d.infoVersion

		signature := snapshotSignature(d.analysisNodeID, d.activeMultiPV, lines)
		persist := signature != d.lastSnapshotSig
		if persist {
			d.lastSnapshotSig = signature
		}
		nodeID := d.analysisNodeID
		multiPV := d.activeMultiPV
		d.mu.Unlock()

		payload := map[string]any{
			"node_id":   nodeID,
			"elapsed_ms": elapsedMS,
			"multipv":   multiPV,
			"lines":     lines,
			"bestline":  lines[0],
		}
		d.emit("analysis:update", payload)

		if persist {
			if _, err := d.saver.SaveAnalysisSnapshot(context.Background(), nodeID, elapsedMS, multiPV, lines); err != nil {
				log.Error("failed to persist analysis snapshot", "error", err, "node_id", nodeID, "multipv", multiPV)
			}
		}
	}
}

func snapshotSignature(nodeID string, multiPV int, lines []Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", nodeID, multiPV)
	for _, l := range lines {
		fmt.Fprintf(&b, "|%d,%s,%d,%d,%s", l.PVIndex, l.ScoreType, l.ScoreValue, l.Depth, strings.Join(l.PVUSI, " "))
	}
	return b.String()
}

func (d *Driver) readerLoop(stdout io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.mu.Lock()
		d.logIO("< " + line)
		d.mu.Unlock()
		d.handleEngineLine(line)
	}
	if err := scanner.Err(); err != nil {
		log.Error("engine stdout scan failed", "error", err)
	}

	d.mu.Lock()
	emitReason := ""
	if d.analysisRunning {
		d.analysisRunning = false
		d.analysisNodeID = ""
		d.latestByIndex = nil
		emitReason = "engine process exited"
	}
	d.proc = nil
	if d.configured {
		d.status = StatusIdle
	}
	d.mu.Unlock()
	if emitReason != "" {
		log.Warn("engine process exited while analysis was running", "reason", emitReason)
		d.emit("analysis:stopped", map[string]any{"reason": emitReason})
	}
}

func (d *Driver) handleEngineLine(line string) {
	switch {
	case line == "usiok":
		d.mu.Lock()
		closeOnce(d.usiokCh)
		d.mu.Unlock()
		return
	case line == "readyok":
		d.mu.Lock()
		closeOnce(d.readyokCh)
		d.mu.Unlock()
		return
	case strings.HasPrefix(line, "bestmove "):
		d.mu.Lock()
		closeOnce(d.bestmoveCh)
		d.mu.Unlock()
		return
	case strings.HasPrefix(line, "id name "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "id name "))
		d.mu.Lock()
		if name != "" {
			d.engineName = name
		}
		d.mu.Unlock()
		return
	case strings.HasPrefix(line, "option name "):
		name := parseOptionName(line)
		if name == "" {
			return
		}
		d.mu.Lock()
		d.optionNames[strings.ToLower(name)] = true
		d.mu.Unlock()
		return
	case strings.HasPrefix(line, "info "):
		parsed, ok := parseInfoLine(line)
		if !ok {
			return
		}
		d.mu.Lock()
		if d.analysisRunning && d.analysisNodeID != "" {
			d.latestByIndex[parsed.PVIndex] = parsed
			d.infoVersion++
		}
		d.mu.Unlock()
	}
}

// closeOnce closes ch if it has not already fired, without panicking
// on a channel that some earlier waiter already closed.
func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func parseOptionName(line string) string {
	tokens := strings.Fields(line)
	if len(tokens) < 4 || tokens[0] != "option" || tokens[1] != "name" {
		return ""
	}
	var nameTokens []string
	for _, tok := range tokens[2:] {
		if tok == "type" {
			break
		}
		nameTokens = append(nameTokens, tok)
	}
	return strings.TrimSpace(strings.Join(nameTokens, " "))
}

var infoIntFields = map[string]bool{
	"depth": true, "seldepth": true, "multipv": true, "nodes": true, "nps": true, "hashfull": true,
}

// parseInfoLine parses one "info ..." token stream into a Line. Lines
// with an empty or missing pv are discarded.
func parseInfoLine(line string) (Line, bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "info" {
		return Line{}, false
	}

	out := Line{PVIndex: 1, ScoreType: "unknown"}
	i := 1
	for i < len(tokens) {
		tok := tokens[i]
		if tok == "pv" {
			out.PVUSI = append([]string{}, tokens[i+1:]...)
			break
		}
		if infoIntFields[tok] {
			if i+1 < len(tokens) {
				value, err := strconv.Atoi(tokens[i+1])
				if err != nil {
					value = 0
				}
				switch tok {
				case "multipv":
					if value < 1 {
						value = 1
					}
					out.PVIndex = value
				case "depth":
					out.Depth = value
				case "seldepth":
					out.Seldepth = value
				case "nodes":
					out.Nodes = value
				case "nps":
					out.NPS = value
				case "hashfull":
					out.Hashfull = value
				}
				i += 2
				continue
			}
		}
		if tok == "score" && i+2 < len(tokens) {
			scoreType := tokens[i+1]
			value, err := strconv.Atoi(tokens[i+2])
			if err != nil {
				value = 0
			}
			if scoreType == "cp" || scoreType == "mate" {
				out.ScoreType = scoreType
				out.ScoreValue = value
			}
			i += 3
			for i < len(tokens) && (tokens[i] == "upperbound" || tokens[i] == "lowerbound") {
				i++
			}
			continue
		}
		i++
	}

	if len(out.PVUSI) == 0 {
		return Line{}, false
	}
	return out, true
}
