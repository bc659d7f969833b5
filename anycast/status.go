package anycast

import (
	"bytes"
	"os"
	"strconv"
	"time"

	"github.com/MOACChain/MoacLib/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// statusInterval is how often a Connection prints a table of its bind,
// pending and cache occupancy — component G of §4, generalized here
// from the source's scattered debug prints into one periodic tick.
const statusInterval = 30 * time.Second

// statusReporter owns the connection's periodic diagnostic dump. It
// holds no state of its own beyond the ticker; everything it prints
// is read from the Connection on the loop goroutine, never from a
// second goroutine, so there is nothing here to synchronize.
type statusReporter struct {
	conn   *Connection
	ticker *time.Ticker
}

func newStatusReporter(c *Connection) *statusReporter {
	return &statusReporter{
		conn:   c,
		ticker: time.NewTicker(statusInterval),
	}
}

func (s *statusReporter) tick() <-chan time.Time {
	return s.ticker.C
}

func (s *statusReporter) stop() {
	s.ticker.Stop()
}

// report renders one table of live state to stdout via
// olekukonko/tablewriter, and spew-dumps the bound addresses and
// pending entries to the debug log. Both are
// diagnostic only; neither is on any request's critical path.
func (s *statusReporter) report() {
	c := s.conn

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"component", "occupied", "capacity"})
	table.Append([]string{"bind", strconv.Itoa(c.binds.size()), strconv.Itoa(bindCapacity)})
	table.Append([]string{"pending", strconv.Itoa(c.pending.size()), strconv.Itoa(pendingCapacity)})
	if c.cacheEnabled {
		table.Append([]string{"cache", strconv.Itoa(c.cache.size()), strconv.Itoa(cacheCapacity)})
	}
	table.Render()
	buf.WriteTo(os.Stdout)

	log.Debugf("anycast status id=%s binds=%s consecutiveTimeouts=%d pending=%s",
		c.id[:8], spew.Sdump(c.binds.list()), c.consecutiveTimeouts, spew.Sdump(c.pending.all()))

	if hostPct, err := cpu.Percent(0, false); err == nil && len(hostPct) > 0 {
		log.Debugf("anycast host cpu id=%s percent=%v", c.id[:8], hostPct[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		log.Debugf("anycast host mem id=%s usedPercent=%v", c.id[:8], vm.UsedPercent)
	}
}
