package anycast

import (
	"github.com/MOACChain/MoacLib/log"
)

// MeshTransport is the network-wide mesh-unicast primitive this
// package consumes but never implements (§1, §6): point-to-point
// delivery once the client already knows which node to address.
type MeshTransport interface {
	// Open registers the handler that receives every mesh delivery,
	// send confirmation and send timeout addressed to this node, and
	// reserves the given channel number.
	Open(channel int, handler MeshHandler) error
	// Send unicasts payload (an encoded ResponsePacket or DataPacket,
	// §3) to dest.
	Send(dest NodeAddress, payload []byte) error
	Close() error
}

// MeshHandler receives mesh deliveries and send outcomes.
type MeshHandler interface {
	OnMeshRecv(from NodeAddress, hops int, payload []byte)
	OnMeshSent(dest NodeAddress, payload []byte)
	OnMeshTimedout(dest NodeAddress, payload []byte)
}

// onFloodRecv is called on the flood transport's own goroutine (via
// floodHandlerProxy); it marshals onto the run loop and blocks for the
// verdict, the same addPending-style handoff the teacher's udp.go uses
// to keep loop() the sole mutator of bindTable.
func (c *Connection) onFloodRecv(originator NodeAddress, seq uint8, hops int, payload byte) FloodResult {
	result := make(chan FloodResult, 1)
	select {
	case c.floodRecvCh <- floodRecvEvent{originator: originator, seq: seq, hops: hops, payload: payload, result: result}:
	case <-c.closing:
		return FloodPropagate
	}
	select {
	case r := <-result:
		return r
	case <-c.closing:
		return FloodPropagate
	}
}

// handleFloodRecv runs on the loop goroutine (§4.D). A serve verdict
// answers the flood with a RESPONSE mesh-unicast back to the originator.
func (c *Connection) handleFloodRecv(originator NodeAddress, seq uint8, hops int, payload byte) FloodResult {
	resp, serve := handleFlood(c.binds, seq, payload)
	if !serve {
		return FloodPropagate
	}
	if err := c.mesh.Send(originator, encodeResponse(resp)); err != nil {
		log.Debugf("anycast response send failed id=%s err=%v", c.id[:8], err)
	}
	return FloodConsume
}

func (c *Connection) onMeshRecv(from NodeAddress, hops int, payload []byte) {
	select {
	case c.meshRecvCh <- meshRecvEvent{from: from, hops: hops, payload: payload}:
	case <-c.closing:
	}
}

func (c *Connection) onMeshSent(dest NodeAddress, payload []byte) {
	select {
	case c.meshSentCh <- meshSentEvent{dest: dest, payload: payload}:
	case <-c.closing:
	}
}

func (c *Connection) onMeshTimedout(dest NodeAddress, payload []byte) {
	select {
	case c.meshTimeoutCh <- meshTimeoutEvent{dest: dest, payload: payload}:
	case <-c.closing:
	}
}

// handleMeshRecv implements §4.E: a RESPONSE first records its sender
// in the cache (enhanced variant, whether or not it matches), then
// matches a pending entry, cancels its timer and completes the round
// trip with a mesh-unicast DATA send;
// a DATA delivery is handed straight to the Recv callback; anything
// else is dropped.
func (c *Connection) handleMeshRecv(from NodeAddress, hops int, payload []byte) {
	flag, err := peekFlag(payload)
	if err != nil {
		log.Debugf("anycast mesh recv dropped: malformed packet id=%s err=%v", c.id[:8], err)
		return
	}

	switch flag {
	case flagResponse:
		resp, err := decodeResponse(payload)
		if err != nil {
			log.Debugf("anycast mesh recv dropped: bad response id=%s err=%v", c.id[:8], err)
			return
		}
		if c.cacheEnabled {
			c.cache.record(resp.address, from)
		}
		entry, timer, ok := c.pending.take(resp.address, resp.seq)
		if !ok {
			log.Debugf("anycast response dropped: no matching pending entry id=%s address=%v seq=%d", c.id[:8], resp.address, resp.seq)
			return
		}
		if timer != nil {
			timer.Stop()
		}
		c.consecutiveTimeouts = 0
		dp := dataPacket{address: resp.address, payload: entry.payload}
		if err := c.mesh.Send(from, encodeData(dp)); err != nil {
			log.Debugf("anycast data send failed id=%s err=%v", c.id[:8], err)
		}

	case flagData:
		dp, err := decodeData(payload)
		if err != nil {
			log.Debugf("anycast mesh recv dropped: bad data packet id=%s err=%v", c.id[:8], err)
			return
		}
		if !c.binds.contains(dp.address) {
			log.Debugf("anycast data dropped: address not bound here id=%s address=%v", c.id[:8], dp.address)
			return
		}
		if c.callbacks.Recv != nil {
			c.callbacks.Recv(c, from, dp.address, dp.payload)
		}

	default:
		log.Debugf("anycast mesh recv dropped: unknown flag id=%s flag=%d", c.id[:8], flag)
	}
}

// handleMeshSent confirms delivery of a DATA packet this connection
// originated as a client (§4.F Sent callback). RESPONSE sends are not
// acknowledged to the application; only the client-visible round trip is.
func (c *Connection) handleMeshSent(dest NodeAddress, payload []byte) {
	flag, err := peekFlag(payload)
	if err != nil || flag != flagData {
		return
	}
	dp, err := decodeData(payload)
	if err != nil {
		return
	}
	if start, ok := c.sendStarted[dp.address]; ok {
		c.metrics.requestLatency.UpdateSince(start)
		delete(c.sendStarted, dp.address)
	}
	if c.callbacks.Sent != nil {
		c.callbacks.Sent(c, dp.address, dp.payload)
	}
}

// handleMeshTimeout reports ErrNoRoute: a server was found (a RESPONSE
// matched and completed the pending entry) but the follow-up DATA
// unicast never reached it (§4.E, §7).
func (c *Connection) handleMeshTimeout(dest NodeAddress, payload []byte) {
	flag, err := peekFlag(payload)
	if err != nil || flag != flagData {
		return
	}
	dp, err := decodeData(payload)
	if err == nil {
		if start, ok := c.sendStarted[dp.address]; ok {
			c.metrics.requestLatency.UpdateSince(start)
			delete(c.sendStarted, dp.address)
		}
	}
	c.metrics.noRoute.Inc(1)
	if c.callbacks.Timedout != nil {
		c.callbacks.Timedout(c, &TimeoutError{Code: ErrNoRoute})
	}
}
