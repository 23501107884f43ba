package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/glabrego/canto-ng/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePeer plays the daemon side of a net.Pipe.
type fakePeer struct {
	enc *protocol.Encoder
	dec *protocol.Decoder
}

func newPipe(t *testing.T) (*Client, *fakePeer, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return NewClient(local, quietLogger()), &fakePeer{enc: protocol.NewEncoder(remote), dec: protocol.NewDecoder(remote)}, remote
}

func TestCheckVersion_AcceptsCompatibleDaemon(t *testing.T) {
	client, peer, _ := newPipe(t)

	go func() {
		msg, err := peer.dec.Decode()
		if err != nil || msg.Cmd != protocol.CmdVersion {
			return
		}
		_ = peer.enc.Encode(protocol.CmdInfo, "hello")
		_ = peer.enc.Encode(protocol.CmdVersion, protocol.CompatibleVersion)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.CheckVersion(ctx); err != nil {
		t.Fatalf("CheckVersion returned error: %v", err)
	}
}

func TestCheckVersion_RejectsMismatch(t *testing.T) {
	client, peer, _ := newPipe(t)

	go func() {
		if _, err := peer.dec.Decode(); err != nil {
			return
		}
		_ = peer.enc.Encode(protocol.CmdVersion, 0.8)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.CheckVersion(ctx)
	if !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("expected ErrIncompatibleVersion, got %v", err)
	}
}

func TestServe_ForwardsInOrderThenHangsUp(t *testing.T) {
	client, peer, remote := newPipe(t)
	out := make(chan protocol.Inbound, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx, out)

	go func() {
		_ = peer.enc.Encode(protocol.CmdNewTags, []string{"maintag:Slashdot"})
		_ = peer.enc.Encode("BOGUS", "")
		_ = peer.enc.Encode(protocol.CmdPong, "")
		_ = remote.Close()
	}()

	want := []string{"new", "pong", "hangup"}
	for i, w := range want {
		select {
		case in := <-out:
			got := ""
			switch in.(type) {
			case protocol.NewTags:
				got = "new"
			case protocol.Pong:
				got = "pong"
			case protocol.Hangup:
				got = "hangup"
			}
			if got != w {
				t.Fatalf("message %d: got %T, want %s", i, in, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestWrite_FailsFastAfterHangup(t *testing.T) {
	client, _, remote := newPipe(t)
	_ = remote.Close()

	if _, err := client.Next(); err == nil {
		t.Fatal("expected read error after peer closed")
	}
	err := client.Write(protocol.CmdPing, "")
	if !errors.Is(err, ErrHangup) {
		t.Fatalf("expected ErrHangup, got %v", err)
	}
}

func TestDial_UnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := protocol.NewDecoder(conn)
		msg, err := dec.Decode()
		if err != nil {
			return
		}
		_ = protocol.NewEncoder(conn).Encode(protocol.CmdPong, msg.Cmd)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, path, quietLogger())
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer client.Close()

	if err := client.Write(protocol.CmdPing, ""); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	in, err := client.WaitFor(ctx, func(in protocol.Inbound) bool { _, ok := in.(protocol.Pong); return ok })
	if err != nil {
		t.Fatalf("WaitFor returned error: %v", err)
	}
	if _, ok := in.(protocol.Pong); !ok {
		t.Fatalf("expected Pong, got %T", in)
	}
}
