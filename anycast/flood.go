package anycast

// FloodResult tells the flood primitive whether this node has fully
// handled the flood (Consume, so the primitive stops propagating it
// from here) or has nothing to add (Propagate, so the primitive keeps
// flooding outward).
type FloodResult int

const (
	FloodPropagate FloodResult = iota
	FloodConsume
)

// FloodTransport is the network-wide flood primitive this package
// consumes but never implements (§1, §6). It mirrors the teacher's
// small `conn` interface — a thin, substitutable transport boundary
// that lets tests drive the state machine without real sockets.
type FloodTransport interface {
	// Open registers the handler that receives every flood this node
	// hears, and reserves the given channel number.
	Open(channel int, handler FloodHandler) error
	// Send broadcasts payload (the single-byte requested anycast
	// address, §3 FloodPayload) under sequence number seq.
	Send(seq uint8, payload byte) error
	Close() error
}

// FloodHandler receives flood deliveries. originator is the node that
// began this flood (the client), seq its flood sequence number, hops
// the current hop count (unused by this layer, carried for parity
// with the real primitive's callback shape, §6).
type FloodHandler interface {
	OnFloodRecv(originator NodeAddress, seq uint8, hops int, payload byte) FloodResult
}

// handleFlood implements §4.D: consume (and answer) a flood for an
// address this node serves, otherwise let it propagate. It is kept
// free of any transport so it can be unit tested directly against a
// bind table.
func handleFlood(binds *bindTable, seq uint8, payload byte) (resp responsePacket, serve bool) {
	addr := AnycastAddress(payload)
	if !binds.contains(addr) {
		return responsePacket{}, false
	}
	return responsePacket{seq: seq, address: addr}, true
}
