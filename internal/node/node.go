// Package node wires one replica's Paxos core to its broker: a single
// goroutine drains the broker's inbound queue and feeds it to the core,
// which is what lets paxos.Replica skip locking entirely (see its doc
// comment). Clients and peers both reach a Node only over the network,
// through its broker's listen address — there is no in-process API for
// proposing or querying a value.
package node

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paxoslab/quorum/internal/broker"
	"github.com/paxoslab/quorum/internal/config"
	"github.com/paxoslab/quorum/internal/paxos"
	"github.com/paxoslab/quorum/internal/wire"
)

// startupGrace is how long Start waits for the broker's listen to fail.
const startupGrace = 100 * time.Millisecond

// Node owns a replica's Paxos core and its broker, and runs the dispatch
// loop that connects them.
type Node struct {
	id      wire.ReplicaId
	replica *paxos.Replica
	broker  *broker.Broker
	log     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the Node for id out of the cluster's address table.
func New(id wire.ReplicaId, table config.AddressTable, log *zap.Logger) *Node {
	return &Node{
		id:      id,
		replica: paxos.NewReplica(id, table.Members(), log),
		broker:  broker.New(id, table, log),
		log:     log,
	}
}

// Start runs the broker and the dispatch loop in the background. It blocks
// only long enough (startupGrace) to surface an immediate listen failure; an
// error Serve returns after that is not reported.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	started := make(chan error, 1)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		started <- n.broker.Serve(ctx)
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatch(ctx)
	}()

	select {
	case err := <-started:
		return err
	case <-time.After(startupGrace):
		return nil
	}
}

// dispatch is the single goroutine that ever touches n.replica: it applies
// each inbound message and forwards whatever the core emits back to the
// broker's outbound queue, except for a reply addressed to the client that
// sent the delivery being handled — the client has no listen address, so
// that one is written directly back on the connection it arrived on.
func (n *Node) dispatch(ctx context.Context) {
	inbound := n.broker.Inbound()
	outbound := n.broker.Outbound()
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-inbound:
			for _, out := range n.replica.Handle(in.Src, in.Dgram) {
				if conn, ok := in.DirectReply(out); ok {
					if err := wire.WriteFrame(conn, n.id, out.Dgram); err != nil {
						n.log.Debug("direct reply to client failed", zap.Error(err))
					}
					continue
				}
				select {
				case outbound <- out:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Stop cancels the broker and dispatch loop and waits for both to exit.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// ID returns the identifier this node was built with.
func (n *Node) ID() wire.ReplicaId { return n.id }
