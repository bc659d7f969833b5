package anycast

import "fmt"

// AnycastAddress identifies a service that any number of nodes may
// serve. Zero and 255 are reserved and never valid for a user Send
// (§3); ListenOn does not check the range.
type AnycastAddress uint8

// Valid reports whether a is in the usable range 1..254 inclusive.
func (a AnycastAddress) Valid() bool {
	return a != 0 && a != 255
}

func (a AnycastAddress) String() string {
	return fmt.Sprintf("anycast(%d)", uint8(a))
}

// NodeAddress is an opaque link-layer identifier supplied by the lower
// layers. The source represents it as a 2-byte rimeaddr; here it is
// abstracted to any small equatable, copyable value so the package
// does not depend on a particular radio's addressing scheme.
type NodeAddress uint16

func (n NodeAddress) String() string {
	return fmt.Sprintf("node(%04x)", uint16(n))
}
