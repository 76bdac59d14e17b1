package group

import (
	"fmt"
	"net"
	"time"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultIOTimeout   = 5 * time.Second
)

// ClientConfig configures a spoke-side client.
type ClientConfig struct {
	HubAddr     string
	ID          string
	Kind        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Client performs spoke-side exchanges against the hub listener, dialing a
// fresh connection per exchange.
type Client struct {
	hubAddr     string
	id          string
	kind        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// NewClient builds a client. Zero timeouts get defaults.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		hubAddr:     cfg.HubAddr,
		id:          cfg.ID,
		kind:        cfg.Kind,
		dialTimeout: cfg.DialTimeout,
		ioTimeout:   cfg.IOTimeout,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = defaultDialTimeout
	}
	if c.ioTimeout <= 0 {
		c.ioTimeout = defaultIOTimeout
	}
	return c
}

// ID returns the client's spoke id.
func (c *Client) ID() string {
	return c.id
}

// FetchResult is the outcome of one Fetch exchange.
type FetchResult struct {
	Snapshot *iterate.Snapshot
	Killed   bool
	Reason   string
}

// ReportResult is the outcome of one Report exchange.
type ReportResult struct {
	Accepted bool
	Killed   bool
	Reason   string
}

// Join registers this spoke with the hub and returns its assigned rank and
// the run id. A hub-side refusal comes back wrapped in ErrJoinRejected.
func (c *Client) Join(fingerprint string) (int, string, error) {
	reply, err := c.exchange(NewJoinMessage(c.id, c.kind, fingerprint))
	if err != nil {
		return 0, "", err
	}
	if reply.Type != MsgJoinAck {
		return 0, "", fmt.Errorf("%w: got %s to join", pkgerrors.ErrInvalidMessage, reply.Type)
	}
	if reply.Reject != "" {
		return 0, "", fmt.Errorf("%w: %s", pkgerrors.ErrJoinRejected, reply.Reject)
	}
	return reply.Rank, reply.RunID, nil
}

// Fetch returns the hub's current snapshot plus the kill flag. lastSeen is
// advisory; the hub always replies with the latest version.
func (c *Client) Fetch(lastSeen uint64) (*FetchResult, error) {
	reply, err := c.exchange(NewFetchMessage(c.id, lastSeen))
	if err != nil {
		return nil, err
	}
	if reply.Type != MsgIterate {
		return nil, fmt.Errorf("%w: got %s to fetch", pkgerrors.ErrInvalidMessage, reply.Type)
	}
	return &FetchResult{
		Snapshot: &iterate.Snapshot{Version: reply.Version, Values: reply.Values},
		Killed:   reply.Killed,
		Reason:   reply.Reason,
	}, nil
}

// Report delivers a bound report to the hub.
func (c *Client) Report(r bound.Report) (*ReportResult, error) {
	reply, err := c.exchange(NewReportMessage(c.id, r))
	if err != nil {
		return nil, err
	}
	if reply.Type != MsgReportAck {
		return nil, fmt.Errorf("%w: got %s to report", pkgerrors.ErrInvalidMessage, reply.Type)
	}
	return &ReportResult{
		Accepted: reply.Accepted,
		Killed:   reply.Killed,
		Reason:   reply.Reason,
	}, nil
}

// Abort asks the hub to terminate the whole run.
func (c *Client) Abort(reason string) error {
	reply, err := c.exchange(NewAbortMessage(c.id, reason))
	if err != nil {
		return err
	}
	if reply.Type != MsgAbortAck {
		return fmt.Errorf("%w: got %s to abort", pkgerrors.ErrInvalidMessage, reply.Type)
	}
	return nil
}

func (c *Client) exchange(msg *Message) (*Message, error) {
	conn, err := net.DialTimeout("tcp", c.hubAddr, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrHubUnreachable, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.ioTimeout))

	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(conn, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", msg.Type, err)
	}

	respData, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply to %s: %w", msg.Type, err)
	}
	return Decode(respData)
}
