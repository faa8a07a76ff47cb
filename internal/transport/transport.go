// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package transport implements the client side of the jbod protocol. It owns
// one stream connection to the server and exchanges exactly one request and
// one response at a time. There are no request identifiers in the protocol,
// hence responses are matched to requests only by their order.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/asch/jbod/internal/jbod"
)

// Options to use in New().
type Options struct {
	// Timeout for establishing the connection. Zero means no timeout.
	DialTimeout time.Duration

	// Maximal number of operations per second sent to the server. Zero
	// means unlimited.
	Rate float64

	// Number of operations which can be sent at once above Rate.
	Burst int
}

// Transport is a connection to the jbod server. It is not safe for concurrent
// use, the caller has to serialize all calls.
type Transport struct {
	conn    net.Conn
	dialer  net.Dialer
	limiter *rate.Limiter

	// Scratch space for encoding requests.
	buf [PayloadPacketLen]byte
}

func New(o Options) *Transport {
	t := &Transport{
		dialer: net.Dialer{Timeout: o.DialTimeout},
	}

	if o.Rate > 0 {
		burst := o.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(o.Rate), burst)
	}

	return t
}

// Connect opens the connection to the server listening on host:port. Already
// opened connection is closed and replaced by the new one.
func (t *Transport) Connect(host string, port int) error {
	if host == "" || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: server address %q:%d", jbod.ErrInvalidArgument, host, port)
	}

	t.Disconnect()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := t.dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: connect: %w", jbod.ErrTransport, err)
	}

	t.conn = conn
	log.Debug().Str("addr", addr).Msg("Connected to jbod server")

	return nil
}

// Disconnect closes the connection. It is safe to call it when not connected.
func (t *Transport) Disconnect() {
	if t.conn == nil {
		return
	}

	if err := t.conn.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing jbod connection")
	}
	t.conn = nil
}

func (t *Transport) Connected() bool {
	return t.conn != nil
}

// Execute sends op to the server and waits for the response. For operations
// carrying a block (WRITE_BLOCK) block is the payload. For operations
// returning a block (READ_BLOCK) the payload of the response is stored into
// block. In both cases block has to be BlockSize long, otherwise it is
// ignored and can be nil. Failed send or receive closes the connection.
func (t *Transport) Execute(op jbod.Op, block []byte) error {
	if t.conn == nil {
		return fmt.Errorf("%w: not connected", jbod.ErrTransport)
	}

	if (op.HasPayload() || op.ReturnsPayload()) && len(block) < jbod.BlockSize {
		return fmt.Errorf("%w: %s needs a %d byte block", jbod.ErrInvalidArgument, op, jbod.BlockSize)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("%w: %w", jbod.ErrTransport, err)
		}
	}

	req := Packet{Op: op}
	if op.HasPayload() {
		req.Block = block
	}

	b, err := req.Encode(t.buf[:])
	if err != nil {
		return err
	}

	if err := writeExact(t.conn, b); err != nil {
		t.Disconnect()
		return err
	}

	var dst []byte
	if op.ReturnsPayload() {
		dst = block
	}

	// Responses are matched only by order, a partially transferred or
	// malformed packet leaves the stream unusable.
	resp, err := ReadPacket(t.conn, dst)
	if err != nil {
		t.Disconnect()
		return err
	}

	if resp.Op != op {
		return fmt.Errorf("%w: response to %s received for request %s", jbod.ErrTransport, resp.Op, op)
	}

	if resp.Status != 0 {
		return fmt.Errorf("%w: %s failed with status %d", jbod.ErrTransport, op, resp.Status)
	}

	if op.ReturnsPayload() && resp.Block == nil {
		return fmt.Errorf("%w: %s response without block", jbod.ErrTransport, op)
	}

	return nil
}
