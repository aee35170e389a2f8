// Package paxos implements the single-decree Paxos state machine: the
// proposer, acceptor and learner roles colocated on one Replica.
//
// Message shapes live in internal/wire; this package only holds the state
// transitions that react to them.
package paxos
