// cmd/ecat-sim/main.go

// Command ecat-sim serves a simulated scanner on a unixpacket socket.
// It sends the configuration on connect, emits PDO frames with an
// oversampled counter channel and applies received writes to its image.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/ecat-bridge/internal/bitfield"
	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// ---- simulated process image ----

const (
	pdoSize    = 12
	numDevices = 2
	stride     = 4

	offCycle = 0 // ADC1 Inputs.Cycle, uint16
	offBurst = 2 // ADC1 Inputs.Value1, stride x int16

	alStateOP = 8
)

const scannerYAML = `
pdo_size: 12
devices:
  - { name: ADC1, type: EL3702, position: 0, oversampling_rate: 4 }
  - { name: DIO1, type: EL2004, position: 1 }
`

const mappingYAML = `
entries:
  - { device: 0, group: Inputs, entry: Cycle, offset: 0, bits: 16 }
  - { device: 0, group: Inputs, entry: "Value 1", offset: 2, bits: 16 }
  - { device: 1, group: Outputs, entry: Led, offset: 10, bit: 0, bits: 1 }
  - { device: 1, group: Outputs, entry: Level, offset: 11, bits: 8 }
`

type image struct {
	mu    sync.Mutex
	buf   []byte
	cycle uint16
	sub   uint16
}

func newImage() *image {
	img := &image{buf: make([]byte, pdoSize+2*numDevices)}
	for i := 0; i < numDevices; i++ {
		img.buf[pdoSize+2*i] = alStateOP
	}
	return img
}

// next advances one cycle and encodes the PDO message.
func (img *image) next(dst []byte) []byte {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.cycle++
	img.sub++
	bitfield.Insert(img.buf, offCycle, 0, 16, int32(img.sub))
	for i := 0; i < stride; i++ {
		v := int32(int16(int(img.sub)*stride + i))
		bitfield.Insert(img.buf, offBurst+2*i, 0, 16, v)
	}

	return wire.AppendPDO(dst, wire.Frame{
		Cycle:          img.cycle,
		WorkingCounter: numDevices,
		WcState:        2,
		PayloadSize:    pdoSize,
		Buffer:         img.buf,
	})
}

// apply packs w into the image. Requests outside the image are rejected.
func (img *image) apply(w bitfield.WriteRequest) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if err := w.Field().Validate(len(img.buf)); err != nil {
		return err
	}
	w.Apply(img.buf)
	return nil
}

func main() {
	log.SetPrefix("ecat-sim: ")
	log.SetFlags(0)

	var (
		sock   = flag.String("socket", "/tmp/scanner.sock", "unixpacket socket to serve")
		period = flag.Duration("period", 10*time.Millisecond, "PDO frame period")
	)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *sock, *period); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, sock string, period time.Duration) error {
	_ = os.Remove(sock)

	srv, err := net.Listen("unixpacket", sock)
	if err != nil {
		log.Fatalf("could not listen on %q: %+v", sock, err)
	}
	defer srv.Close()

	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	img := newImage()
	cfg := wire.AppendConfig(nil, wire.Config{
		Scanner: []byte(scannerYAML),
		Mapping: []byte(mappingYAML),
	})

	for {
		conn, err := srv.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("could not accept connection: %+v", err)
			continue
		}
		// one bridge at a time
		serve(ctx, conn, img, cfg, period)
	}
}

func serve(ctx context.Context, conn net.Conn, img *image, cfg []byte, period time.Duration) {
	defer conn.Close()
	log.Printf("serving bridge...")

	if _, err := conn.Write(cfg); err != nil {
		log.Printf("could not send configuration: %+v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	// ---- frames ----
	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		var out []byte
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				out = img.next(out[:0])
				if _, err := conn.Write(out); err != nil {
					return err
				}
			}
		}
	})

	// ---- writes + heartbeats ----
	g.Go(func() error {
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return err
			}
			msg, err := wire.DecodeMessage(buf[:n])
			if err != nil {
				log.Printf("could not decode message: %+v", err)
				continue
			}
			switch msg.Tag {
			case wire.TagWrite:
				log.Printf("write: byte=%d bit=%d width=%d value=%d",
					msg.Write.ByteOffset, msg.Write.BitOffset, msg.Write.BitWidth, msg.Write.Value,
				)
				if err := img.apply(msg.Write); err != nil {
					log.Printf("write rejected: %+v", err)
				}
			case wire.TagHeartbeat:
				// keep-alive
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Printf("bridge disconnected: %+v", err)
	}
}
