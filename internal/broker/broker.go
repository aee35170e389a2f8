// Package broker bridges a replica's Paxos core and the network: it
// accepts inbound framed connections and turns them into Delivery values
// on a channel, and drains a channel of wire.Outgoing values, opening one
// short-lived outbound connection per destination.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paxoslab/quorum/internal/config"
	"github.com/paxoslab/quorum/internal/wire"
)

const dialTimeout = 2 * time.Second

// Delivery is one inbound message paired with the connection it arrived
// on. The client (replica id 0) has no listen address of its own — it
// dials in, sends a request, and for a Query waits for the reply on that
// same connection — so a reply addressed to the client cannot be sent by
// dialing out like a reply to a peer. ReplyConn carries the connection to
// write that reply back on; it is only ever set when Src is the client
// id, since every other destination has a real address in the table.
type Delivery struct {
	Src       wire.ReplicaId
	Dgram     wire.Datagram
	ReplyConn net.Conn
}

// DirectReply reports whether out must be written back on the connection
// this delivery arrived on rather than dialed out: true only when this
// delivery came from the client and out addresses exactly that client.
func (d Delivery) DirectReply(out wire.Outgoing) (net.Conn, bool) {
	if d.ReplyConn == nil || len(out.Dest) != 1 || out.Dest[0] != 0 {
		return nil, false
	}
	return d.ReplyConn, true
}

// Broker owns one replica's listening socket and its inbound/outbound
// queues. Serve runs until ctx is canceled; Inbound/Outbound are safe to
// use from other goroutines while Serve runs.
type Broker struct {
	id    wire.ReplicaId
	addr  string
	table config.AddressTable

	inbound  chan Delivery
	outbound chan wire.Outgoing

	log *zap.Logger
}

// New builds a Broker for id, whose own listen address is looked up in
// table.
func New(id wire.ReplicaId, table config.AddressTable, log *zap.Logger) *Broker {
	return &Broker{
		id:       id,
		addr:     table[id],
		table:    table,
		inbound:  make(chan Delivery, 256),
		outbound: make(chan wire.Outgoing, 256),
		log:      log,
	}
}

// Inbound delivers framed messages received from peers, in the order their
// connections produced them.
func (b *Broker) Inbound() <-chan Delivery { return b.inbound }

// Outbound accepts messages this replica's core wants sent out.
func (b *Broker) Outbound() chan<- wire.Outgoing { return b.outbound }

// Serve listens on the replica's address and runs the accept loop and the
// outbound send loop concurrently until ctx is canceled, at which point the
// listener is closed. Sends already in progress are not interrupted: Serve
// returns once they finish or their dials time out (dialTimeout).
func (b *Broker) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("broker: listen %s: %w", b.addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error { return b.acceptLoop(gctx, ln) })
	g.Go(func() error { return b.sendLoop(gctx) })
	return g.Wait()
}

func (b *Broker) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker: accept: %w", err)
		}
		go b.handleConn(conn)
	}
}

// handleConn reads frames from one inbound connection until it closes or a
// frame fails to decode; a decode error only ever costs this connection,
// never replica state.
func (b *Broker) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		src, dgram, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Debug("closing connection after decode error", zap.Error(err))
			}
			return
		}
		d := Delivery{Src: src, Dgram: dgram}
		if src == 0 {
			// The client is never in the address table, so a reply
			// addressed back to it can only go out on this connection.
			d.ReplyConn = conn
		}
		b.inbound <- d
	}
}

func (b *Broker) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out, ok := <-b.outbound:
			if !ok {
				return nil
			}
			b.fanOut(ctx, out)
		}
	}
}

// fanOut opens one connection per destination concurrently, so a refused or
// slow peer never delays delivery to the others.
func (b *Broker) fanOut(ctx context.Context, out wire.Outgoing) {
	g, _ := errgroup.WithContext(ctx)
	for _, dest := range out.Dest {
		dest := dest
		g.Go(func() error {
			b.sendOne(dest, out.Dgram)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Broker) sendOne(dest wire.ReplicaId, d wire.Datagram) {
	addr, ok := b.table[dest]
	if !ok {
		b.log.Warn("dropping datagram addressed to unknown replica", zap.Uint32("dest", uint32(dest)))
		return
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		b.log.Debug("dial failed, dropping datagram", zap.String("addr", addr), zap.Error(err))
		return
	}
	defer conn.Close()
	if err := wire.WriteFrame(conn, b.id, d); err != nil {
		b.log.Debug("write failed, dropping datagram", zap.String("addr", addr), zap.Error(err))
	}
}
