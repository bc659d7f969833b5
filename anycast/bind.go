package anycast

import (
	set "gopkg.in/fatih/set.v0"
)

// bindCapacity is the maximum number of anycast addresses a single
// connection may serve at once (§3 invariant 4).
const bindCapacity = 5

// bindTable is the set of anycast addresses a connection serves.
// Membership bookkeeping is delegated to fatih/set rather than a
// hand-rolled slice scan, the same way the teacher leans on a library
// type (netutil.Netlist) for address-set membership instead of
// reimplementing it.
type bindTable struct {
	addrs *set.Set
}

func newBindTable() *bindTable {
	return &bindTable{addrs: set.New()}
}

// add registers addr, failing with errBindFull once bindCapacity
// distinct addresses are already bound. Adding an address already
// present is a no-op success.
func (b *bindTable) add(addr AnycastAddress) error {
	if b.addrs.Has(addr) {
		return nil
	}
	if b.addrs.Size() >= bindCapacity {
		return errBindFull
	}
	b.addrs.Add(addr)
	return nil
}

func (b *bindTable) contains(addr AnycastAddress) bool {
	return b.addrs.Has(addr)
}

// drain empties the bind table, returning the addresses that were
// bound. Used by Connection.Close.
func (b *bindTable) drain() []AnycastAddress {
	list := b.addrs.List()
	out := make([]AnycastAddress, 0, len(list))
	for _, v := range list {
		out = append(out, v.(AnycastAddress))
	}
	b.addrs.Clear()
	return out
}

func (b *bindTable) size() int {
	return b.addrs.Size()
}

// list returns a snapshot of the bound addresses without clearing the
// table, for the status reporter (§4.G).
func (b *bindTable) list() []AnycastAddress {
	items := b.addrs.List()
	out := make([]AnycastAddress, 0, len(items))
	for _, v := range items {
		out = append(out, v.(AnycastAddress))
	}
	return out
}
