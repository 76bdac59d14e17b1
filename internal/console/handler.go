package console

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/redcon"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/hub"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/pkg/bufpool"
	"github.com/spinwheel/spinwheel/pkg/bytes"
)

const consoleVersion = "0.1.0"

// Board is the view of the run the console exposes. *hub.Board satisfies it.
type Board interface {
	RunID() string
	Sense() bound.Sense
	Uptime() time.Duration
	Version() uint64
	Snapshot() *iterate.Snapshot
	BestInner() (float64, bool)
	BestOuter() (float64, bool)
	Gap() (bound.Gap, bool)
	Holders() (inner, outer string)
	Spokes() []hub.SpokeInfo
	Killed() bool
	KillReason() string
	Kill(reason string)
}

type CommandFunc func(ctx context.Context, conn redcon.Conn, args [][]byte)

type Handler struct {
	board    Board
	commands map[string]CommandFunc
}

func NewHandler(board Board) *Handler {
	h := &Handler{
		board:    board,
		commands: make(map[string]CommandFunc),
	}
	h.registerCommands()
	return h
}

func (h *Handler) registerCommands() {
	h.commands["PING"] = h.cmdPing
	h.commands["ECHO"] = h.cmdEcho
	h.commands["QUIT"] = h.cmdQuit
	h.commands["COMMAND"] = h.cmdCommand
	h.commands["INFO"] = h.cmdInfo

	h.commands["VERSION"] = h.cmdVersion
	h.commands["ITERATE"] = h.cmdIterate
	h.commands["BOUNDS"] = h.cmdBounds
	h.commands["SPOKES"] = h.cmdSpokes
	h.commands["KILL"] = h.cmdKill
}

func (h *Handler) ExecuteBytes(ctx context.Context, conn redcon.Conn, cmdBytes []byte, args [][]byte) {
	ToUpperInPlace(cmdBytes)

	fn, ok := h.commands[bytes.BytesToString(cmdBytes)]
	if !ok {
		conn.WriteError("ERR unknown command '" + bytes.BytesToString(cmdBytes) + "'")
		return
	}
	fn(ctx, conn, args)
}

func (h *Handler) cmdPing(_ context.Context, conn redcon.Conn, args [][]byte) {
	if len(args) == 0 {
		conn.WriteString("PONG")
	} else {
		conn.WriteBulk(args[0])
	}
}

func (h *Handler) cmdEcho(_ context.Context, conn redcon.Conn, args [][]byte) {
	if len(args) != 1 {
		conn.WriteError("ERR wrong number of arguments for 'echo' command")
		return
	}
	conn.WriteBulk(args[0])
}

func (h *Handler) cmdQuit(_ context.Context, conn redcon.Conn, _ [][]byte) {
	conn.WriteString("OK")
	conn.Close()
}

func (h *Handler) cmdCommand(_ context.Context, conn redcon.Conn, _ [][]byte) {
	conn.WriteArray(0)
}

func (h *Handler) cmdInfo(_ context.Context, conn redcon.Conn, _ [][]byte) {
	buf := bufpool.GetBuffer()
	defer bufpool.PutBuffer(buf)

	buf.WriteString("# Run\r\n")
	buf.WriteString("spinwheel_version:" + consoleVersion + "\r\n")
	buf.WriteString("run_id:" + h.board.RunID() + "\r\n")
	buf.WriteString("sense:" + h.board.Sense().String() + "\r\n")
	buf.WriteString("uptime_seconds:")
	buf.WriteString(strconv.FormatInt(int64(h.board.Uptime().Seconds()), 10))
	buf.WriteString("\r\n")
	if h.board.Killed() {
		buf.WriteString("killed:1\r\n")
		buf.WriteString("kill_reason:" + h.board.KillReason() + "\r\n")
	} else {
		buf.WriteString("killed:0\r\n")
	}

	buf.WriteString("\r\n# Iterate\r\n")
	snap := h.board.Snapshot()
	buf.WriteString("version:")
	buf.WriteString(strconv.FormatUint(snap.Version, 10))
	buf.WriteString("\r\n")
	buf.WriteString("variables:")
	buf.WriteString(strconv.Itoa(len(snap.Values)))
	buf.WriteString("\r\n")

	buf.WriteString("\r\n# Bounds\r\n")
	innerHolder, outerHolder := h.board.Holders()
	if v, ok := h.board.BestInner(); ok {
		buf.WriteString("best_inner:" + formatFloat(v) + "\r\n")
		buf.WriteString("inner_holder:" + innerHolder + "\r\n")
	}
	if v, ok := h.board.BestOuter(); ok {
		buf.WriteString("best_outer:" + formatFloat(v) + "\r\n")
		buf.WriteString("outer_holder:" + outerHolder + "\r\n")
	}
	if g, ok := h.board.Gap(); ok {
		buf.WriteString("abs_gap:" + formatFloat(g.Abs) + "\r\n")
		buf.WriteString("rel_gap:" + formatFloat(g.Rel) + "\r\n")
	}

	buf.WriteString("\r\n# Spokes\r\n")
	spokes := h.board.Spokes()
	buf.WriteString("connected:")
	buf.WriteString(strconv.Itoa(len(spokes)))
	buf.WriteString("\r\n")
	for _, sp := range spokes {
		buf.WriteString("spoke" + strconv.Itoa(sp.Rank) + ":id=" + sp.ID)
		buf.WriteString(",kind=" + sp.Kind)
		buf.WriteString(",reports=" + strconv.FormatUint(sp.Reports, 10))
		buf.WriteString(",last_seen=" + strconv.FormatUint(sp.LastSeen, 10))
		buf.WriteString("\r\n")
	}

	conn.WriteBulk(buf.Bytes())
}

func (h *Handler) cmdVersion(_ context.Context, conn redcon.Conn, _ [][]byte) {
	conn.WriteInt64(int64(h.board.Version()))
}

// cmdIterate replies with flat key/value pairs, version first, variables in
// sorted order.
func (h *Handler) cmdIterate(_ context.Context, conn redcon.Conn, _ [][]byte) {
	snap := h.board.Snapshot()

	names := make([]string, 0, len(snap.Values))
	for k := range snap.Values {
		names = append(names, string(k))
	}
	sort.Strings(names)

	conn.WriteArray(2 + 2*len(names))
	conn.WriteBulkString("version")
	conn.WriteBulkString(strconv.FormatUint(snap.Version, 10))
	for _, name := range names {
		conn.WriteBulkString(name)
		conn.WriteBulkString(formatFloat(snap.Values[iterate.Key(name)]))
	}
}

func (h *Handler) cmdBounds(_ context.Context, conn redcon.Conn, _ [][]byte) {
	type pair struct{ k, v string }
	var pairs []pair

	innerHolder, outerHolder := h.board.Holders()
	if v, ok := h.board.BestInner(); ok {
		pairs = append(pairs, pair{"inner", formatFloat(v)}, pair{"inner_holder", innerHolder})
	}
	if v, ok := h.board.BestOuter(); ok {
		pairs = append(pairs, pair{"outer", formatFloat(v)}, pair{"outer_holder", outerHolder})
	}
	if g, ok := h.board.Gap(); ok {
		pairs = append(pairs, pair{"abs_gap", formatFloat(g.Abs)}, pair{"rel_gap", formatFloat(g.Rel)})
	}

	conn.WriteArray(2 * len(pairs))
	for _, p := range pairs {
		conn.WriteBulkString(p.k)
		conn.WriteBulkString(p.v)
	}
}

func (h *Handler) cmdSpokes(_ context.Context, conn redcon.Conn, _ [][]byte) {
	spokes := h.board.Spokes()
	conn.WriteArray(len(spokes))
	for _, sp := range spokes {
		line := "rank=" + strconv.Itoa(sp.Rank) +
			" id=" + sp.ID +
			" kind=" + sp.Kind +
			" reports=" + strconv.FormatUint(sp.Reports, 10) +
			" last_seen=" + strconv.FormatUint(sp.LastSeen, 10)
		conn.WriteBulkString(line)
	}
}

func (h *Handler) cmdKill(_ context.Context, conn redcon.Conn, args [][]byte) {
	reason := "killed from console"
	if len(args) > 0 {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, string(a))
		}
		reason = strings.Join(parts, " ")
	}
	h.board.Kill(reason)
	conn.WriteString("OK")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
