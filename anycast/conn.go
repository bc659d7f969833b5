package anycast

import (
	"sync"
	"time"

	"github.com/MOACChain/MoacLib/log"
	"github.com/beevik/ntp"
	"github.com/pborman/uuid"
)

// defaultTimeout is the shared expiry duration for pending and cache
// entries (TIMEOUT in the glossary; 10s in the source).
const defaultTimeout = 10 * time.Second

// ntpFailureThreshold triggers a clock-drift probe after this many
// consecutive ERR_NO_SERVER_FOUND timeouts on one connection
// (ERR_NO_ROUTE timeouts are not counted). The teacher's discv4 loop carries the equivalent
// (ntpFailureThreshold = 32) as dead code — checkClockDrift is never
// actually called there. We wire it to a real github.com/beevik/ntp
// probe instead. The threshold is much lower here because the whole
// pending buffer is only 5 entries deep.
const ntpFailureThreshold = 5

// ntpWarningCooldown bounds how often the probe may fire.
const ntpWarningCooldown = 10 * time.Minute

// Callbacks is the application-facing contract (§4.F). Any field may
// be nil; a nil callback is simply not invoked.
type Callbacks struct {
	// Recv fires when DATA arrives for an address this connection serves.
	Recv func(conn *Connection, originator NodeAddress, address AnycastAddress, payload []byte)
	// Sent fires once the DATA carrying a Send is confirmed by the mesh.
	Sent func(conn *Connection, address AnycastAddress, payload []byte)
	// Timedout fires with ErrNoServerFound or ErrNoRoute.
	Timedout func(conn *Connection, err *TimeoutError)
}

// Option configures a Connection at Open time.
type Option func(*Connection)

// WithCache toggles the enhanced variant's response cache (§4.C). Off
// by default, matching the base anycast.c; on makes a second Send to
// the same address skip the flood phase entirely.
func WithCache(enabled bool) Option {
	return func(c *Connection) {
		c.cacheEnabled = enabled
	}
}

// WithTimeout overrides the pending/cache expiry duration. Tests use
// this to shrink TIMEOUT well below 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.timeout = d
	}
}

// connRegistry is the side table the §9 design note asks for: rather
// than recovering the owning Connection from a transport callback via
// pointer arithmetic (the source's approach, explicitly disallowed),
// every Connection registers itself here under a pborman/uuid handle
// and hands that handle, not a pointer, to the transports it opens.
var connRegistry sync.Map // uuid string -> *Connection

type floodHandlerProxy struct{ id string }

func (p floodHandlerProxy) OnFloodRecv(originator NodeAddress, seq uint8, hops int, payload byte) FloodResult {
	v, ok := connRegistry.Load(p.id)
	if !ok {
		return FloodPropagate
	}
	return v.(*Connection).onFloodRecv(originator, seq, hops, payload)
}

type meshHandlerProxy struct{ id string }

func (p meshHandlerProxy) OnMeshRecv(from NodeAddress, hops int, payload []byte) {
	if v, ok := connRegistry.Load(p.id); ok {
		v.(*Connection).onMeshRecv(from, hops, payload)
	}
}

func (p meshHandlerProxy) OnMeshSent(dest NodeAddress, payload []byte) {
	if v, ok := connRegistry.Load(p.id); ok {
		v.(*Connection).onMeshSent(dest, payload)
	}
}

func (p meshHandlerProxy) OnMeshTimedout(dest NodeAddress, payload []byte) {
	if v, ok := connRegistry.Load(p.id); ok {
		v.(*Connection).onMeshTimedout(dest, payload)
	}
}

// Connection is the façade of §4.F: lifecycle, listen registration,
// send orchestration and callback dispatch. Internally it runs a
// single goroutine, run(), that owns every mutable container
// (bindTable, pendingBuffer, serverCache) — the "single logical
// executor" the spec's concurrency model (§5) requires. Every public
// method and every transport callback only ever touches that state by
// handing a message across a channel to run(), the same pattern the
// teacher's udp.loop() uses for addPending/handleReply.
type Connection struct {
	id      string
	timeout time.Duration

	cacheEnabled bool
	binds        *bindTable
	pending      *pendingBuffer
	cache        *serverCache

	flood FloodTransport
	mesh  MeshTransport

	callbacks Callbacks
	metrics   *connMetrics
	status    *statusReporter

	seq uint8

	sendReq        chan sendRequest
	listenReq      chan listenRequest
	floodRecvCh    chan floodRecvEvent
	meshRecvCh     chan meshRecvEvent
	meshSentCh     chan meshSentEvent
	meshTimeoutCh  chan meshTimeoutEvent
	pendingExpired chan int

	closing chan struct{}
	closed  chan struct{}

	consecutiveTimeouts int
	lastNTPWarning      time.Time

	// sendStarted times the Send -> (Sent|Timedout) round trip for
	// connMetrics.requestLatency, keyed by address since the wire's
	// DataPacket carries no sequence number to correlate by (§3). A
	// second concurrent Send to the same address before the first
	// resolves overwrites its start time; the metric is an
	// approximation in that case, not a correctness dependency.
	sendStarted map[AnycastAddress]time.Time
}

type sendRequest struct {
	address AnycastAddress
	payload []byte
}

type listenRequest struct {
	address AnycastAddress
	result  chan error
}

type floodRecvEvent struct {
	originator NodeAddress
	seq        uint8
	hops       int
	payload    byte
	result     chan FloodResult
}

type meshRecvEvent struct {
	from    NodeAddress
	hops    int
	payload []byte
}

type meshSentEvent struct {
	dest    NodeAddress
	payload []byte
}

type meshTimeoutEvent struct {
	dest    NodeAddress
	payload []byte
}

// Open acquires the flood primitive on channels and the mesh primitive
// on channels+1, retains callbacks, and starts the connection's run
// loop (§4.F open). The caller owns flood/mesh: Open only registers
// handlers on them, it never constructs transports itself.
func Open(flood FloodTransport, mesh MeshTransport, channels int, callbacks Callbacks, opts ...Option) (*Connection, error) {
	id := uuid.New()
	c := &Connection{
		id:             id,
		timeout:        defaultTimeout,
		binds:          newBindTable(),
		pending:        newPendingBuffer(),
		flood:          flood,
		mesh:           mesh,
		callbacks:      callbacks,
		metrics:        newConnMetrics(),
		sendReq:        make(chan sendRequest),
		listenReq:      make(chan listenRequest),
		floodRecvCh:    make(chan floodRecvEvent),
		meshRecvCh:     make(chan meshRecvEvent),
		meshSentCh:     make(chan meshSentEvent),
		meshTimeoutCh:  make(chan meshTimeoutEvent),
		pendingExpired: make(chan int),
		closing:        make(chan struct{}),
		closed:         make(chan struct{}),
		sendStarted:    make(map[AnycastAddress]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheEnabled {
		c.cache = newServerCache(c.timeout)
	}
	c.status = newStatusReporter(c)

	connRegistry.Store(id, c)

	if err := flood.Open(channels, floodHandlerProxy{id: id}); err != nil {
		connRegistry.Delete(id)
		return nil, err
	}
	if err := mesh.Open(channels+1, meshHandlerProxy{id: id}); err != nil {
		connRegistry.Delete(id)
		return nil, err
	}

	log.Debugf("anycast connection open id=%s channels=%d", id[:8], channels)
	go c.run()
	return c, nil
}

// ListenOn registers addr in the bind table (§4.A/§4.F). Returns the
// bind-table-full error once bindCapacity distinct addresses are bound.
func (c *Connection) ListenOn(addr AnycastAddress) error {
	result := make(chan error, 1)
	select {
	case c.listenReq <- listenRequest{address: addr, result: result}:
	case <-c.closing:
		return errClosed
	}
	select {
	case err := <-result:
		return err
	case <-c.closing:
		return errClosed
	}
}

// Send issues a client request to addr carrying payload, taken from
// the ambient packet buffer in the source (§6) but passed explicitly
// here. Validation failures (§7) are logged and dropped inside the
// run loop; Send itself only ever fails if the connection is already
// closing.
func (c *Connection) Send(addr AnycastAddress, payload []byte) error {
	select {
	case c.sendReq <- sendRequest{address: addr, payload: payload}:
		return nil
	case <-c.closing:
		return errClosed
	}
}

// Close drains the bind table, stops every armed timer, releases
// pending-entry memory, and closes the underlying transports (§4.F).
func (c *Connection) Close() error {
	select {
	case <-c.closing:
		return nil
	default:
	}
	close(c.closing)
	<-c.closed
	connRegistry.Delete(c.id)
	ferr := c.flood.Close()
	merr := c.mesh.Close()
	if ferr != nil {
		return ferr
	}
	return merr
}

func (c *Connection) nextSeq() uint8 {
	s := c.seq
	c.seq++
	return s
}

func (c *Connection) armPending(idx int, entry pendingEntry) {
	timer := time.AfterFunc(c.timeout, func() {
		select {
		case c.pendingExpired <- idx:
		case <-c.closing:
		}
	})
	c.pending.setTimer(idx, timer)
}

// run is the connection's single logical executor (§5): every piece
// of mutable state above is touched only from inside this loop.
func (c *Connection) run() {
	defer close(c.closed)
	for {
		select {
		case <-c.closing:
			c.drain()
			return

		case req := <-c.sendReq:
			c.handleSend(req.address, req.payload)

		case req := <-c.listenReq:
			err := c.binds.add(req.address)
			if err != nil {
				c.metrics.bindFull.Inc(1)
			}
			req.result <- err

		case ev := <-c.floodRecvCh:
			ev.result <- c.handleFloodRecv(ev.originator, ev.seq, ev.hops, ev.payload)

		case ev := <-c.meshRecvCh:
			c.handleMeshRecv(ev.from, ev.hops, ev.payload)

		case ev := <-c.meshSentCh:
			c.handleMeshSent(ev.dest, ev.payload)

		case ev := <-c.meshTimeoutCh:
			c.handleMeshTimeout(ev.dest, ev.payload)

		case idx := <-c.pendingExpired:
			c.handlePendingExpired(idx)

		case <-c.status.tick():
			c.status.report()
		}
	}
}

// drain stops every armed pending timer and empties the bind table,
// leaving no allocated entries behind (§4.F close, §8 round-trip property).
func (c *Connection) drain() {
	for i := 0; i < pendingCapacity; i++ {
		if t := c.pending.timerAt(i); t != nil {
			t.Stop()
		}
		c.pending.removeAt(i)
	}
	c.binds.drain()
	c.status.stop()
}

// handleSend implements the §4.F validation order.
func (c *Connection) handleSend(addr AnycastAddress, payload []byte) {
	if len(payload) > PayloadMax {
		log.Debugf("anycast send dropped id=%s len=%d err=%v", c.id[:8], len(payload), errPayloadTooLarge)
		return
	}
	if !addr.Valid() {
		log.Debugf("anycast send dropped id=%s address=%v err=%v", c.id[:8], addr, errAddressRange)
		return
	}

	// seq is assigned once validation passes, shared by both the
	// cache-hit direct-delivery path and the flood path below (§5:
	// "incremented on every send attempt that passes validation").
	seq := c.nextSeq()
	c.sendStarted[addr] = time.Now()

	if c.cacheEnabled {
		if node, ok := c.cache.lookup(addr); ok {
			c.metrics.cacheHits.Inc(1)
			c.metrics.sendsCacheHit.Inc(1)
			dp := dataPacket{address: addr, payload: payload}
			if err := c.mesh.Send(node, encodeData(dp)); err != nil {
				log.Debugf("anycast cache-hit mesh send failed id=%s err=%v", c.id[:8], err)
			}
			return
		}
		c.metrics.cacheMisses.Inc(1)
	}

	idx, err := c.pending.reserve(pendingEntry{seq: seq, address: addr, payload: payload})
	if err != nil {
		c.metrics.bufferFull.Inc(1)
		log.Debugf("anycast send dropped: pending buffer full id=%s address=%v", c.id[:8], addr)
		return
	}
	c.armPending(idx, pendingEntry{seq: seq, address: addr, payload: payload})
	c.metrics.sendsFlood.Inc(1)
	if err := c.flood.Send(seq, byte(addr)); err != nil {
		log.Debugf("anycast flood send failed id=%s err=%v", c.id[:8], err)
	}
}

// handlePendingExpired implements §4.B expire: remove from the
// buffer, then notify. Order matters — a reentrant callback must
// never observe a still-listed entry.
func (c *Connection) handlePendingExpired(idx int) {
	entry, ok := c.pending.removeAt(idx)
	if !ok {
		// Lost the race to a response that already took this slot,
		// or to Close. Both are no-ops here (§5).
		return
	}
	if start, ok := c.sendStarted[entry.address]; ok {
		c.metrics.requestLatency.UpdateSince(start)
		delete(c.sendStarted, entry.address)
	}
	c.consecutiveTimeouts++
	c.metrics.noServerFound.Inc(1)
	if c.callbacks.Timedout != nil {
		c.callbacks.Timedout(c, &TimeoutError{Code: ErrNoServerFound})
	}
	c.maybeCheckClockDrift()
}

// ntpReferenceServer is queried when a run of timeouts suggests this
// node's clock may have drifted out of step with the rest of the mesh
// rather than the mesh genuinely having no server. This revives the
// teacher's ntpFailureThreshold/checkClockDrift pairing, which in the
// source is declared but never wired to a real time source.
const ntpReferenceServer = "pool.ntp.org"

// maybeCheckClockDrift fires the probe at most once per
// ntpWarningCooldown, and only after ntpFailureThreshold consecutive
// timeouts. The query itself runs off the loop goroutine since it is
// a blocking network round trip; it only ever logs, never mutates
// connection state, so no handoff back onto run() is needed.
func (c *Connection) maybeCheckClockDrift() {
	if c.consecutiveTimeouts < ntpFailureThreshold {
		return
	}
	if time.Since(c.lastNTPWarning) < ntpWarningCooldown {
		return
	}
	c.lastNTPWarning = time.Now()
	id := c.id
	go checkClockDrift(id)
}

func checkClockDrift(connID string) {
	resp, err := ntp.Query(ntpReferenceServer)
	if err != nil {
		log.Debugf("anycast clock drift check failed id=%s err=%v", connID[:8], err)
		return
	}
	if resp.ClockOffset > time.Second || resp.ClockOffset < -time.Second {
		log.Warnf("anycast local clock drift detected id=%s offset=%v", connID[:8], resp.ClockOffset)
	}
}
