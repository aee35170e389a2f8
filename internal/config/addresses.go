// Package config builds the static address table each replica needs to
// dial its peers. There is no external config source: the only inputs are
// a base port and a replica count, both supplied on the command line.
package config

import (
	"fmt"

	"github.com/paxoslab/quorum/internal/wire"
)

// AddressTable maps a replica id to the host:port it listens on.
type AddressTable map[wire.ReplicaId]string

// NewAddressTable builds the table for replicas 1..=n, each bound to
// 127.0.0.1:basePort+id.
func NewAddressTable(basePort int, n int) AddressTable {
	table := make(AddressTable, n)
	for i := 1; i <= n; i++ {
		id := wire.ReplicaId(i)
		table[id] = fmt.Sprintf("127.0.0.1:%d", basePort+i)
	}
	return table
}

// Members returns the full replica roster in ascending id order.
func (t AddressTable) Members() []wire.ReplicaId {
	members := make([]wire.ReplicaId, 0, len(t))
	for id := range t {
		members = append(members, id)
	}
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j-1] > members[j]; j-- {
			members[j-1], members[j] = members[j], members[j-1]
		}
	}
	return members
}
