// cmd/ecat-bridge/main.go
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/ecat-bridge/internal/config"
	"github.com/tamzrod/ecat-bridge/internal/dispatch"
	"github.com/tamzrod/ecat-bridge/internal/mirror"
	"github.com/tamzrod/ecat-bridge/internal/sink"
	"github.com/tamzrod/ecat-bridge/internal/transport"
	"github.com/tamzrod/ecat-bridge/internal/writeq"
)

func main() {
	log.SetPrefix("ecat-bridge: ")

	if len(os.Args) < 2 {
		log.Fatal("usage: ecat-bridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)
	bc := cfg.Bridge

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Optional sample recorder
	// --------------------

	devOpts := dispatch.Options{WaveformLength: bc.WaveformLength}

	var rec *sink.Recorder
	if bc.Record != nil {
		rec, err = sink.CreateRecorder(bc.Record.Dir)
		if err != nil {
			log.Fatalf("recorder create failed (dir=%s): %v", bc.Record.Dir, err)
		}
		log.Printf("recording samples (dir=%s run=%s)", bc.Record.Dir, rec.RunID())

		devOpts.Extra = func(port string, channel int) sink.Sink {
			return rec.Channel(port, channel)
		}
	}

	// --------------------
	// Transport + write queue
	// --------------------

	samplers := make([]dispatch.SamplerConfig, 0, len(bc.Samplers))
	for _, s := range bc.Samplers {
		samplers = append(samplers, dispatch.SamplerConfig{
			Port:    s.Port,
			Channel: s.Channel,
			Sample:  s.Sample,
			Cycle:   s.Cycle,
		})
	}

	q := writeq.New()
	br := transport.New(q, transport.Options{
		Socket:     bc.Socket,
		MaxMessage: bc.MaxMessage,
		Reconnect:  time.Duration(bc.ReconnectMs) * time.Millisecond,
		Samplers:   samplers,
		Device:     devOpts,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		q.Heartbeat(gctx, time.Duration(bc.HeartbeatMs)*time.Millisecond)
		return nil
	})

	g.Go(func() error {
		return br.Run(gctx)
	})

	// --------------------
	// Optional mirror (after the first configuration)
	// --------------------

	if mc := bc.Mirror; mc != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-br.Ready():
			}

			factory, err := mirror.BuildFactory(mc)
			if err != nil {
				return err
			}
			m, err := mirror.New(mirror.BuildPlan(mc), br.Bus(), factory, log.Default())
			if err != nil {
				return err
			}

			log.Printf("mirroring to %s (protocol=%s interval=%dms)", mc.Endpoint, mc.Protocol, mc.IntervalMs)
			m.Run(gctx)
			return nil
		})
	}

	err = g.Wait()

	if rec != nil {
		if rerr := rec.Err(); rerr != nil {
			log.Printf("recorder error: %v", rerr)
		}
		if cerr := rec.Close(); cerr != nil {
			log.Printf("recorder close failed: %v", cerr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bridge stopped: %v", err)
	}
	log.Printf("bridge stopped")
}
