package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/glabrego/canto-ng/internal/protocol"
)

var (
	ErrIncompatibleVersion = errors.New("incompatible daemon version")
	ErrHangup              = errors.New("daemon connection closed")
)

// Client owns one stream connection to the daemon. Writes may come from any
// goroutine; reads belong to whoever is running Serve (or, before that, to
// the handshake calling WaitFor).
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder
	log  *slog.Logger

	mu     sync.Mutex
	hungUp error
}

func Dial(ctx context.Context, socketPath string, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return NewClient(conn, logger), nil
}

func NewClient(conn net.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
		log:  logger.With("component", "daemon"),
	}
}

func (c *Client) Close() error {
	c.markHangup(ErrHangup)
	return c.conn.Close()
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hungUp
}

func (c *Client) markHangup(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hungUp == nil {
		c.hungUp = err
	}
}

// Write sends one request. After a hang-up every write fails fast.
func (c *Client) Write(cmd string, args any) error {
	if err := c.Err(); err != nil {
		c.log.Debug("discarding write after hangup", "cmd", cmd)
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	if args == nil {
		args = ""
	}
	if err := c.enc.Encode(cmd, args); err != nil {
		c.markHangup(fmt.Errorf("%w: %v", ErrHangup, err))
		return err
	}
	c.log.Debug("write", "cmd", cmd)
	return nil
}

// Next reads and decodes one frame. Unknown commands are logged and skipped.
func (c *Client) Next() (protocol.Inbound, error) {
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = ErrHangup
			}
			c.markHangup(err)
			return nil, err
		}
		in, err := protocol.Decode(msg)
		if err != nil {
			c.log.Error("dropping daemon frame", "cmd", msg.Cmd, "error", err)
			continue
		}
		return in, nil
	}
}

// WaitFor reads frames until one of the requested kind arrives, discarding
// the rest. It is only meant for the connect handshake, before Serve runs.
func (c *Client) WaitFor(ctx context.Context, match func(protocol.Inbound) bool) (protocol.Inbound, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	for {
		in, err := c.Next()
		if err != nil {
			return nil, err
		}
		if match(in) {
			return in, nil
		}
		c.log.Debug("waiting: skipped frame", "kind", fmt.Sprintf("%T", in))
	}
}

// CheckVersion performs the VERSION exchange.
func (c *Client) CheckVersion(ctx context.Context) error {
	if err := c.Write(protocol.CmdVersion, ""); err != nil {
		return err
	}
	in, err := c.WaitFor(ctx, func(in protocol.Inbound) bool {
		_, ok := in.(protocol.Version)
		return ok
	})
	if err != nil {
		return fmt.Errorf("wait for VERSION: %w", err)
	}
	got := in.(protocol.Version).Value
	if got != protocol.CompatibleVersion {
		return fmt.Errorf("%w: daemon speaks %v, expected %v", ErrIncompatibleVersion, got, protocol.CompatibleVersion)
	}
	return nil
}

// Serve is the background I/O task. It forwards every decoded frame to out in
// arrival order and finishes with a Hangup once the socket closes.
func (c *Client) Serve(ctx context.Context, out chan<- protocol.Inbound) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		in, err := c.Next()
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			c.log.Debug("response loop exiting", "error", err)
			select {
			case out <- protocol.Hangup{Err: err}:
			case <-time.After(time.Second):
			}
			return
		}
		select {
		case out <- in:
		case <-ctx.Done():
			return
		}
	}
}
