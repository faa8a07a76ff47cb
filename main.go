// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// jbod is a client for JBOD disk arrays speaking the jbod protocol. It
// presents all disks of the array as one linear device with a block cache in
// front of it and replays a trace of reads and writes against it.
//
// Project structure is following:
//
// - internal/jbod contains the geometry of the array, the opcode layout and
// the error kinds shared by all other packages.
//
// - internal/transport implements the protocol over one TCP connection.
//
// - internal/cache contains the LRU block cache.
//
// - internal/mdadm translates the linear device to block operations.
//
// - internal/memdisk is a jbod server with disks in memory. With the local
// option the client runs against it without any external server, which is
// handy for testing and for measuring the client alone.
//
// - internal/trace parses and replays trace files.
//
// - internal/config contains the configuration package.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/asch/jbod/internal/cache"
	"github.com/asch/jbod/internal/config"
	"github.com/asch/jbod/internal/mdadm"
	"github.com/asch/jbod/internal/memdisk"
	"github.com/asch/jbod/internal/trace"
	"github.com/asch/jbod/internal/transport"
)

// Parse configuration from file and environment variables, connects to the
// server (or starts the local one) and replays the trace. The run can be
// interrupted by SIGINT or SIGTERM.
func main() {
	err := config.Configure()
	if err != nil {
		log.Panic().Err(err).Send()
	}

	loggerSetup(config.Cfg.Log.Pretty, config.Cfg.Log.Level)

	// First signal stops the local server, the next one kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	host, port := config.Cfg.Server.Host, config.Cfg.Server.Port
	if config.Cfg.Local {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Panic().Err(err).Send()
		}

		addr := l.Addr().(*net.TCPAddr)
		host, port = addr.IP.String(), addr.Port
		log.Info().Str("addr", addr.String()).Msg("Serving disks from memory")

		g.Go(func() error {
			return memdisk.New(memdisk.Options{}).Serve(ctx, l)
		})
	}

	g.Go(func() error {
		defer cancel()
		return run(host, port)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

// Connects to the server, mounts the device and replays the configured trace.
func run(host string, port int) error {
	tr := transport.New(transport.Options{
		DialTimeout: time.Duration(config.Cfg.Server.DialTimeoutMs) * time.Millisecond,
		Rate:        config.Cfg.Server.Rate,
		Burst:       config.Cfg.Server.Burst,
	})

	if err := tr.Connect(host, port); err != nil {
		return err
	}
	defer tr.Disconnect()

	c := cache.New()
	if config.Cfg.Cache.Size > 0 {
		if err := c.Create(config.Cfg.Cache.Size); err != nil {
			return err
		}
		defer func() {
			if err := c.Destroy(); err != nil {
				log.Warn().Err(err).Msg("Destroying block cache")
			}
		}()
	}

	storage := mdadm.New(tr, c)

	ops, err := loadTrace(config.Cfg.Trace)
	if err != nil {
		return err
	}

	res, err := trace.Run(storage, ops)

	if storage.Mounted() {
		if err := storage.Unmount(); err != nil {
			log.Warn().Err(err).Msg("Unmounting after trace")
		}
	}

	log.Info().Int("ops", res.Ops).Int("reads", res.Reads).Int("writes", res.Writes).Msg("Trace finished")

	if c.Enabled() {
		s := c.Stats()
		log.Info().Uint64("queries", s.Queries).Uint64("hits", s.Hits).Msgf("Hit rate: %5.1f%%", 100*s.HitRate())
	}

	if err != nil {
		return err
	}

	if res.Mismatches > 0 {
		return fmt.Errorf("%d reads returned unexpected data", res.Mismatches)
	}

	return nil
}

// Without trace file just mount and unmount, which checks the server is
// alive.
func loadTrace(path string) ([]trace.Op, error) {
	if path == "" {
		return []trace.Op{{Kind: trace.Mount}, {Kind: trace.Unmount}}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return trace.Parse(f)
}

func loggerSetup(pretty bool, level int) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(zerolog.Level(level))
}
