// Package driver runs the interactive console a human (or a script) drives a
// cluster with: starting replicas, proposing values, and querying what has
// been chosen. The console itself never touches paxos.Replica directly — it
// talks to a running cluster the same way any external client would, by
// dialing in over TCP, so the REPL exercises exactly the wire protocol a
// real client uses.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/paxoslab/quorum/internal/config"
	"github.com/paxoslab/quorum/internal/node"
	"github.com/paxoslab/quorum/internal/wire"
)

const clientDialTimeout = 2 * time.Second

// Console owns the set of replicas started in this process and the prompt
// loop that reads commands for them.
type Console struct {
	basePort int
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	table config.AddressTable
	nodes map[wire.ReplicaId]*node.Node
}

// NewConsole builds a Console whose replicas will listen starting at
// basePort. No replicas are started until the "start" command runs.
func NewConsole(basePort int, log *zap.Logger) *Console {
	return &Console{basePort: basePort, log: log}
}

// Run reads one command per line from r until EOF, "exit", or a read error,
// writing prompts and command output to w.
func (c *Console) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, "quorum> ")
	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(w, err)
			fmt.Fprint(w, "quorum> ")
			continue
		}
		if cmd.Kind == CmdExit {
			c.shutdown()
			return nil
		}
		c.dispatch(cmd, w)
		fmt.Fprint(w, "quorum> ")
	}
	c.shutdown()
	return scanner.Err()
}

func (c *Console) dispatch(cmd Command, w io.Writer) {
	switch cmd.Kind {
	case CmdStart:
		c.start(cmd.Count, w)
	case CmdPropose:
		c.propose(cmd.ReplicaID, cmd.Value, w)
	case CmdQuery:
		c.query(cmd.ReplicaID, w)
	}
}

// start launches a fresh n-replica cluster, replacing any cluster already
// running. Replicas listen on 127.0.0.1:basePort+id for id in 1..=n.
func (c *Console) start(n int, w io.Writer) {
	c.shutdown()

	c.table = config.NewAddressTable(c.basePort, n)
	c.nodes = make(map[wire.ReplicaId]*node.Node, n)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for _, id := range c.table.Members() {
		nd := node.New(id, c.table, c.log)
		if err := nd.Start(c.ctx); err != nil {
			fmt.Fprintf(w, "replica %d failed to start: %v\n", id, err)
			continue
		}
		c.nodes[id] = nd
	}
	fmt.Fprintf(w, "started %d replicas on 127.0.0.1:%d-%d\n", n, c.basePort+1, c.basePort+n)
}

// propose dials replica id and sends a Propose request. Propose never gets a
// reply, matching the wire protocol.
func (c *Console) propose(id uint32, value uint32, w io.Writer) {
	addr, ok := c.replicaAddr(id, w)
	if !ok {
		return
	}
	conn, err := net.DialTimeout("tcp", addr, clientDialTimeout)
	if err != nil {
		fmt.Fprintf(w, "could not reach replica %d: %v\n", id, err)
		return
	}
	defer conn.Close()
	if err := wire.WriteFrame(conn, 0, wire.RequestDatagram(wire.NewPropose(value))); err != nil {
		fmt.Fprintf(w, "propose to replica %d failed: %v\n", id, err)
		return
	}
	fmt.Fprintf(w, "proposed %d to replica %d\n", value, id)
}

// query dials replica id, sends a Query request, and prints the chosen value
// it reports, if any.
func (c *Console) query(id uint32, w io.Writer) {
	addr, ok := c.replicaAddr(id, w)
	if !ok {
		return
	}
	conn, err := net.DialTimeout("tcp", addr, clientDialTimeout)
	if err != nil {
		fmt.Fprintf(w, "could not reach replica %d: %v\n", id, err)
		return
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, 0, wire.RequestDatagram(wire.NewQuery())); err != nil {
		fmt.Fprintf(w, "query to replica %d failed: %v\n", id, err)
		return
	}
	conn.SetReadDeadline(time.Now().Add(clientDialTimeout))
	_, dgram, err := wire.ReadFrame(conn)
	if err != nil {
		fmt.Fprintf(w, "no response from replica %d: %v\n", id, err)
		return
	}
	if dgram.Kind != wire.DatagramResponse || dgram.Response.QueryValue == nil {
		fmt.Fprintf(w, "replica %d has not chosen a value yet\n", id)
		return
	}
	fmt.Fprintf(w, "replica %d reports chosen value %d\n", id, *dgram.Response.QueryValue)
}

func (c *Console) replicaAddr(id uint32, w io.Writer) (string, bool) {
	addr, ok := c.table[wire.ReplicaId(id)]
	if !ok {
		fmt.Fprintf(w, "no replica %d in the running cluster (run \"start\" first)\n", id)
		return "", false
	}
	return addr, true
}

func (c *Console) shutdown() {
	for _, nd := range c.nodes {
		nd.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.nodes = nil
	c.table = nil
}
