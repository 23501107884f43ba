package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/glabrego/canto-ng/internal/protocol"
)

// Writer is the write half of a daemon connection.
type Writer interface {
	Write(cmd string, args any) error
}

// Pinger pairs each PING it sends with the PONG that answers it. The daemon
// handles requests in order, so a PONG means everything written before its
// PING has been processed.
type Pinger struct {
	mu      sync.Mutex
	w       Writer
	pending []func(error)
	dead    error
}

func NewPinger(w Writer) *Pinger {
	return &Pinger{w: w}
}

// SetWriter points the pinger at a new connection and forgets the old
// hang-up.
func (p *Pinger) SetWriter(w Writer) {
	p.mu.Lock()
	p.w = w
	p.dead = nil
	p.mu.Unlock()
}

// Ping sends a PING and arranges for done to run when its PONG arrives, or
// with an error if the connection drops first.
func (p *Pinger) Ping(done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead != nil {
		return fmt.Errorf("ping: %w", p.dead)
	}
	if err := p.w.Write(protocol.CmdPing, ""); err != nil {
		return err
	}
	if done == nil {
		done = func(error) {}
	}
	p.pending = append(p.pending, done)
	return nil
}

// Pong completes the oldest outstanding PING.
func (p *Pinger) Pong() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	done := p.pending[0]
	p.pending = p.pending[1:]
	p.mu.Unlock()
	done(nil)
}

// Hangup fails every outstanding PING and any later one.
func (p *Pinger) Hangup(err error) {
	if err == nil {
		err = ErrHangup
	}
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.dead = err
	p.mu.Unlock()
	for _, done := range pending {
		done(err)
	}
}

func (p *Pinger) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Sync blocks until everything written so far has been processed.
func (p *Pinger) Sync(ctx context.Context) error {
	done := make(chan error, 1)
	if err := p.Ping(func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
