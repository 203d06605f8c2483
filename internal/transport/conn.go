// internal/transport/conn.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// Run connects to the scanner socket and serves it until ctx is done.
// A lost link is re-dialled every Reconnect period; the configuration
// delivered on every connect must match the first one.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		conn, err := b.dial(ctx)
		if err != nil {
			return err
		}

		err = b.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Printf("scanner link lost (socket=%s): %v", b.opts.Socket, err)

		if err := sleep(ctx, b.opts.Reconnect); err != nil {
			return err
		}
	}
}

// dial retries until connected or ctx is done.
// Only the first failure of a streak is logged.
func (b *Bridge) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	logged := false

	for {
		conn, err := d.DialContext(ctx, "unixpacket", b.opts.Socket)
		if err == nil {
			b.log.Printf("scanner connected (socket=%s)", b.opts.Socket)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !logged {
			b.log.Printf("scanner dial failed (socket=%s): %v", b.opts.Socket, err)
			logged = true
		}
		if err := sleep(ctx, b.opts.Reconnect); err != nil {
			return nil, err
		}
	}
}

// serve runs one connection: configuration first, then the receive and
// send loops until either fails or ctx is done.
func (b *Bridge) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, b.opts.MaxMessage)

	// ---- configuration on connect ----

	msg, err := readMessage(conn, buf)
	if err != nil {
		return err
	}
	tag, err := wire.PeekTag(msg)
	if err != nil {
		wire.Fatal("connect", err)
	}
	if tag != wire.TagConfig {
		wire.Fatalf("connect", "expected configuration message, got tag %d", tag)
	}
	b.Configure(msg)

	// ---- receive + send ----

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		// unblocks Read and Write
		conn.Close()
		return nil
	})
	g.Go(func() error { return b.receive(conn, buf) })
	g.Go(func() error { return b.send(gctx, conn) })

	return g.Wait()
}

func (b *Bridge) receive(conn net.Conn, buf []byte) error {
	bus := b.Bus()

	for {
		msg, err := readMessage(conn, buf)
		if err != nil {
			return err
		}

		tag, err := wire.PeekTag(msg)
		if err != nil {
			wire.Fatal("receive", err)
		}

		switch tag {
		case wire.TagPDO:
			f, err := wire.DecodePDO(msg)
			if err != nil {
				wire.Fatal("receive", err)
			}
			bus.Dispatch(&f)

		case wire.TagConfig:
			b.Configure(msg)

		default:
			wire.Fatalf("receive", "unexpected message tag %d", tag)
		}
	}
}

func (b *Bridge) send(ctx context.Context, conn net.Conn) error {
	var out []byte

	for {
		msg, err := b.queue.Next(ctx)
		if err != nil {
			return err
		}

		out, err = wire.AppendMessage(out[:0], msg)
		if err != nil {
			b.log.Printf("outbound message dropped: %v", err)
			continue
		}

		if _, err := conn.Write(out); err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
	}
}

func readMessage(conn net.Conn, buf []byte) ([]byte, error) {
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("transport: read: %w", errPeerClosed)
	}
	return buf[:n], nil
}

var errPeerClosed = errors.New("peer closed")

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
