package anycast

// PayloadMax is the largest payload a single Send may carry. The
// source uses 50 in the implementation and 103 in the header; we pick
// one value and document it here rather than carrying both forward
// (see DESIGN.md, Open Question #3).
const PayloadMax = 64

const (
	flagResponse byte = 0
	flagData     byte = 1
)

// responsePacket is the wire-exact RESPONSE packet (§3): flag(1) |
// seq(1) | address(1).
type responsePacket struct {
	seq     uint8
	address AnycastAddress
}

func encodeResponse(p responsePacket) []byte {
	return []byte{flagResponse, p.seq, uint8(p.address)}
}

func decodeResponse(b []byte) (responsePacket, error) {
	if len(b) < 3 {
		return responsePacket{}, errPacketTooSmall
	}
	if b[0] != flagResponse {
		return responsePacket{}, errBadFlag
	}
	return responsePacket{seq: b[1], address: AnycastAddress(b[2])}, nil
}

// dataPacket is the wire-exact DATA packet (§3): flag(1) | address(1)
// | payload (NUL-terminated, up to PayloadMax).
type dataPacket struct {
	address AnycastAddress
	payload []byte
}

func encodeData(p dataPacket) []byte {
	out := make([]byte, 0, 2+len(p.payload)+1)
	out = append(out, flagData, uint8(p.address))
	out = append(out, p.payload...)
	out = append(out, 0) // NUL terminator
	return out
}

func decodeData(b []byte) (dataPacket, error) {
	if len(b) < 2 {
		return dataPacket{}, errPacketTooSmall
	}
	if b[0] != flagData {
		return dataPacket{}, errBadFlag
	}
	payload := b[2:]
	// Trim the trailing NUL terminator the wire format requires, if present.
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		payload = payload[:n-1]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return dataPacket{address: AnycastAddress(b[1]), payload: out}, nil
}

// peekFlag returns the flag byte of a raw mesh packet, or an error if
// the packet is too small to contain one.
func peekFlag(b []byte) (byte, error) {
	if len(b) < 1 {
		return 0, errPacketTooSmall
	}
	return b[0], nil
}
