package group

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/metrics"
)

const (
	// ExchangeTimeout bounds one request/response exchange on the hub side.
	ExchangeTimeout = 5 * time.Second
)

// Handler reacts to spoke exchanges. Implemented by the hub board.
type Handler interface {
	// HandleJoin registers a spoke. A non-empty reject refuses the join.
	HandleJoin(id, kind, fingerprint string) (rank int, runID string, reject string)

	// HandleFetch returns the current snapshot plus the kill flag and reason.
	HandleFetch(id string, lastSeen uint64) (*iterate.Snapshot, bool, string)

	// HandleReport folds a bound report. accepted tells the spoke whether it
	// improved the group-wide best.
	HandleReport(r bound.Report) (accepted bool, killed bool, reason string)

	// HandleAbort terminates the whole run on a spoke's behalf.
	HandleAbort(id, reason string)
}

// Listener accepts spoke exchanges for a hub. One message per connection.
type Listener struct {
	addr    string
	handler Handler
	log     *slog.Logger

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener builds a listener on addr serving handler. Use ":0" style
// addresses to let the kernel pick a port and Addr to discover it.
func NewListener(addr string, handler Handler, log *slog.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		addr:    addr,
		handler: handler,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins accepting exchanges.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.listener = ln

	l.log.Info("group listener started", "addr", ln.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

// Addr returns the bound address after Start.
func (l *Listener) Addr() string {
	if l.listener == nil {
		return l.addr
	}
	return l.listener.Addr().String()
}

// Stop closes the listener and waits for in-flight exchanges.
func (l *Listener) Stop() error {
	l.cancel()
	if l.listener != nil {
		l.listener.Close()
	}
	l.wg.Wait()
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				l.log.Warn("accept error", "err", err)
				continue
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(conn)
		}()
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(ExchangeTimeout))

	data, err := ReadFrame(conn)
	if err != nil {
		return
	}

	msg, err := Decode(data)
	if err != nil {
		l.log.Warn("undecodable frame", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	var reply *Message
	switch msg.Type {
	case MsgJoin:
		rank, runID, reject := l.handler.HandleJoin(msg.Sender, msg.Kind, msg.Fingerprint)
		reply = NewJoinAck(runID, rank, reject)
	case MsgFetch:
		snap, killed, reason := l.handler.HandleFetch(msg.Sender, msg.LastSeen)
		reply = NewIterateMessage(snap, killed, reason)
	case MsgReport:
		if msg.Report == nil {
			l.log.Warn("report message without report", "sender", msg.Sender)
			return
		}
		accepted, killed, reason := l.handler.HandleReport(*msg.Report)
		reply = NewReportAck(accepted, killed, reason)
	case MsgAbort:
		l.handler.HandleAbort(msg.Sender, msg.Reason)
		reply = NewAbortAck()
	default:
		l.log.Warn("unexpected message type", "type", msg.Type.String(), "sender", msg.Sender)
		return
	}

	out, err := reply.Encode()
	if err != nil {
		l.log.Error("encode reply", "type", reply.Type.String(), "err", err)
		return
	}
	err = WriteFrame(conn, out)
	metrics.RecordExchange(strings.ToLower(msg.Type.String()), err)
}
