package console

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/tidwall/redcon"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/hub"
	"github.com/spinwheel/spinwheel/internal/iterate"
)

type mockConn struct {
	response    string
	errResponse string
	bulkContent []byte
	bulkStrings []string
	arrayN      int
	int64Val    int64
	closed      bool
}

func (m *mockConn) WriteString(s string) {
	m.response = s
}

func (m *mockConn) WriteError(s string) {
	m.errResponse = s
}

func (m *mockConn) WriteBulk(b []byte) {
	m.bulkContent = b
}

func (m *mockConn) WriteBulkString(s string) {
	m.bulkStrings = append(m.bulkStrings, s)
}

func (m *mockConn) WriteArray(n int) {
	m.arrayN = n
}

func (m *mockConn) WriteInt64(n int64) {
	m.int64Val = n
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) WriteInt(n int)                 {}
func (m *mockConn) WriteUint64(n uint64)           {}
func (m *mockConn) WriteNull()                     {}
func (m *mockConn) WriteRaw(b []byte)              {}
func (m *mockConn) WriteAny(v interface{})         {}
func (m *mockConn) Context() interface{}           { return nil }
func (m *mockConn) SetContext(v interface{})       {}
func (m *mockConn) SetReadBuffer(n int)            {}
func (m *mockConn) Detach() redcon.DetachedConn    { return nil }
func (m *mockConn) ReadPipeline() []redcon.Command { return nil }
func (m *mockConn) PeekPipeline() []redcon.Command { return nil }
func (m *mockConn) NetConn() net.Conn              { return nil }
func (m *mockConn) RemoteAddr() string             { return "127.0.0.1:12345" }

func newTestHandler(t *testing.T) (*Handler, *hub.Board) {
	t.Helper()
	board := hub.NewBoard(hub.BoardConfig{
		Sense:       bound.Minimize,
		Fingerprint: "fp",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return NewHandler(board), board
}

func exec(h *Handler, conn redcon.Conn, cmd string, args ...string) {
	bs := make([][]byte, len(args))
	for i, a := range args {
		bs[i] = []byte(a)
	}
	h.ExecuteBytes(context.Background(), conn, []byte(cmd), bs)
}

func TestExecuteBytesUppercasesCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "ping")

	if conn.response != "PONG" {
		t.Errorf("response = %q, want PONG", conn.response)
	}
}

func TestUnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "nosuch")

	if !strings.HasPrefix(conn.errResponse, "ERR unknown command") {
		t.Errorf("error = %q, want unknown command error", conn.errResponse)
	}
	if !strings.Contains(conn.errResponse, "NOSUCH") {
		t.Errorf("error = %q, want the uppercased command name", conn.errResponse)
	}
}

func TestPingWithArgument(t *testing.T) {
	h, _ := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "PING", "hello")

	if string(conn.bulkContent) != "hello" {
		t.Errorf("bulk = %q, want hello", conn.bulkContent)
	}
}

func TestEcho(t *testing.T) {
	h, _ := newTestHandler(t)

	conn := &mockConn{}
	exec(h, conn, "ECHO", "spin")
	if string(conn.bulkContent) != "spin" {
		t.Errorf("bulk = %q, want spin", conn.bulkContent)
	}

	conn = &mockConn{}
	exec(h, conn, "ECHO")
	if conn.errResponse == "" {
		t.Error("ECHO with no argument did not error")
	}
}

func TestQuitClosesConnection(t *testing.T) {
	h, _ := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "QUIT")

	if conn.response != "OK" {
		t.Errorf("response = %q, want OK", conn.response)
	}
	if !conn.closed {
		t.Error("QUIT did not close the connection")
	}
}

func TestVersionTracksPublishes(t *testing.T) {
	h, board := newTestHandler(t)

	conn := &mockConn{}
	exec(h, conn, "VERSION")
	if conn.int64Val != 0 {
		t.Errorf("version = %d, want 0 before any publish", conn.int64Val)
	}

	board.Publish(iterate.Values{"x": 1})
	board.Publish(iterate.Values{"x": 2})

	conn = &mockConn{}
	exec(h, conn, "VERSION")
	if conn.int64Val != 2 {
		t.Errorf("version = %d, want 2", conn.int64Val)
	}
}

func TestIterateRepliesSortedPairs(t *testing.T) {
	h, board := newTestHandler(t)
	board.Publish(iterate.Values{"b": 2, "a": 1.5})

	conn := &mockConn{}
	exec(h, conn, "ITERATE")

	want := []string{"version", "1", "a", "1.5", "b", "2"}
	if conn.arrayN != len(want) {
		t.Fatalf("array length = %d, want %d", conn.arrayN, len(want))
	}
	for i, w := range want {
		if conn.bulkStrings[i] != w {
			t.Fatalf("reply = %v, want %v", conn.bulkStrings, want)
		}
	}
}

func TestBoundsEmptyThenPopulated(t *testing.T) {
	h, board := newTestHandler(t)

	conn := &mockConn{}
	exec(h, conn, "BOUNDS")
	if conn.arrayN != 0 {
		t.Errorf("array length = %d, want 0 with no bounds yet", conn.arrayN)
	}

	board.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 8})
	board.OfferOuter(2)

	conn = &mockConn{}
	exec(h, conn, "BOUNDS")
	if conn.arrayN != 12 {
		t.Fatalf("array length = %d, want 12: %v", conn.arrayN, conn.bulkStrings)
	}
	joined := strings.Join(conn.bulkStrings, " ")
	for _, want := range []string{"inner 8", "inner_holder s1", "outer 2", "outer_holder hub", "abs_gap 6"} {
		if !strings.Contains(joined, want) {
			t.Errorf("reply %q missing %q", joined, want)
		}
	}
}

func TestSpokesListsRegistry(t *testing.T) {
	h, board := newTestHandler(t)
	board.HandleJoin("s1", "sampling", "fp")
	board.HandleJoin("s2", "fixedset", "fp")

	conn := &mockConn{}
	exec(h, conn, "SPOKES")

	if conn.arrayN != 2 {
		t.Fatalf("array length = %d, want 2", conn.arrayN)
	}
	if !strings.Contains(conn.bulkStrings[0], "rank=1 id=s1 kind=sampling") {
		t.Errorf("first line = %q", conn.bulkStrings[0])
	}
	if !strings.Contains(conn.bulkStrings[1], "rank=2 id=s2 kind=fixedset") {
		t.Errorf("second line = %q", conn.bulkStrings[1])
	}
}

func TestKillJoinsArgumentsAsReason(t *testing.T) {
	h, board := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "KILL", "node", "maintenance")

	if conn.response != "OK" {
		t.Errorf("response = %q, want OK", conn.response)
	}
	if !board.Killed() {
		t.Fatal("board not killed")
	}
	if got := board.KillReason(); got != "node maintenance" {
		t.Errorf("reason = %q, want %q", got, "node maintenance")
	}
}

func TestKillDefaultReason(t *testing.T) {
	h, board := newTestHandler(t)
	conn := &mockConn{}

	exec(h, conn, "KILL")

	if got := board.KillReason(); got != "killed from console" {
		t.Errorf("reason = %q, want the default", got)
	}
}

func TestInfoSections(t *testing.T) {
	h, board := newTestHandler(t)
	board.HandleJoin("s1", "sampling", "fp")
	board.Publish(iterate.Values{"x": 1})

	conn := &mockConn{}
	exec(h, conn, "INFO")

	info := string(conn.bulkContent)
	for _, want := range []string{
		"# Run", "run_id:", "sense:minimize", "killed:0",
		"# Iterate", "version:1", "variables:1",
		"# Spokes", "connected:1", "spoke1:id=s1",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("INFO missing %q:\n%s", want, info)
		}
	}

	board.Kill("operator stop")
	conn = &mockConn{}
	exec(h, conn, "INFO")
	info = string(conn.bulkContent)
	if !strings.Contains(info, "killed:1") || !strings.Contains(info, "kill_reason:operator stop") {
		t.Errorf("INFO after kill missing the reason:\n%s", info)
	}
}
