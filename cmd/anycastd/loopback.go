// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"sync"

	"github.com/gordontoh/nap1/anycast"
)

// loopbackMedium simulates a small radio mesh entirely in one process,
// the demo role example-anycast.c plays for the source: every mote
// runs in the same address space, flood broadcasts reach every other
// registered mote on the channel, and mesh unicast looks a node's
// address up directly instead of routing hop by hop.
type loopbackMedium struct {
	mu    sync.Mutex
	flood map[int][]*loopbackFlood
	mesh  map[anycast.NodeAddress]*loopbackMesh
}

func newLoopbackMedium() *loopbackMedium {
	return &loopbackMedium{
		flood: make(map[int][]*loopbackFlood),
		mesh:  make(map[anycast.NodeAddress]*loopbackMesh),
	}
}

type loopbackFlood struct {
	medium  *loopbackMedium
	self    anycast.NodeAddress
	channel int
	handler anycast.FloodHandler
}

func (f *loopbackFlood) Open(channel int, handler anycast.FloodHandler) error {
	f.channel = channel
	f.handler = handler
	f.medium.mu.Lock()
	f.medium.flood[channel] = append(f.medium.flood[channel], f)
	f.medium.mu.Unlock()
	return nil
}

func (f *loopbackFlood) Send(seq uint8, payload byte) error {
	f.medium.mu.Lock()
	peers := append([]*loopbackFlood(nil), f.medium.flood[f.channel]...)
	f.medium.mu.Unlock()
	for _, p := range peers {
		if p == f {
			continue
		}
		go p.handler.OnFloodRecv(f.self, seq, 1, payload)
	}
	return nil
}

func (f *loopbackFlood) Close() error { return nil }

type loopbackMesh struct {
	medium  *loopbackMedium
	self    anycast.NodeAddress
	handler anycast.MeshHandler
}

func (m *loopbackMesh) Open(channel int, handler anycast.MeshHandler) error {
	m.handler = handler
	m.medium.mu.Lock()
	m.medium.mesh[m.self] = m
	m.medium.mu.Unlock()
	return nil
}

func (m *loopbackMesh) Send(dest anycast.NodeAddress, payload []byte) error {
	go func() {
		m.medium.mu.Lock()
		target := m.medium.mesh[dest]
		m.medium.mu.Unlock()
		if target == nil {
			m.handler.OnMeshTimedout(dest, payload)
			return
		}
		target.handler.OnMeshRecv(m.self, 1, payload)
		m.handler.OnMeshSent(dest, payload)
	}()
	return nil
}

func (m *loopbackMesh) Close() error { return nil }

func newLoopbackNode(medium *loopbackMedium, self anycast.NodeAddress) (*loopbackFlood, *loopbackMesh) {
	return &loopbackFlood{medium: medium, self: self},
		&loopbackMesh{medium: medium, self: self}
}
