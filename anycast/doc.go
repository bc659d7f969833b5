// Copyright 2015 The MOAC-core Authors
// This file is part of the MOAC-core library.
//
// The MOAC-core library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The MOAC-core library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the MOAC-core library. If not, see <http://www.gnu.org/licenses/>.

// Package anycast implements an anycast protocol layer for a low-power
// multi-hop mesh network. An anycast address identifies a service that
// any number of nodes may serve; a client Send resolves to exactly one
// server, the first to respond, without the client ever learning which.
//
// The layer composes two lower-level primitives, neither of which it
// implements: a network-wide flood (FloodTransport) that every node
// hears once per sequence number, and a best-effort routed mesh
// unicast (MeshTransport) between two node addresses. A Connection
// runs its own goroutine that owns every mutable piece of state
// (the bind table, the pending-send buffer, and — in the cache-enabled
// variant — the server cache), so from the outside a Connection
// behaves like a single cooperative executor: every external call and
// every transport callback is marshaled onto that one goroutine
// through a channel, never touched concurrently.
package anycast
