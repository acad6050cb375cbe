// Package snowflake generates unique, time-ordered 64-bit ids. The
// server uses them as opaque connection handles; base36 keeps the wire
// form short.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	stepBits = 12

	maxNode   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// Custom epoch: 2025-01-01 00:00:00 UTC.
	epoch int64 = 1735689600000
)

// ID is a snowflake: 41 bits of milliseconds since epoch, 10 bits of
// node, 12 bits of per-millisecond sequence.
type ID int64

// String renders the id in base36.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 36)
}

type Generator struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
}

// NewGenerator returns a generator for the given node number. Node ids
// only matter when multiple processes generate ids concurrently; a
// single server can always use node 0.
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, errors.New("snowflake: node number out of range [0,1023]")
	}
	return &Generator{node: node}, nil
}

// Next returns the next id. Safe for concurrent use.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.last {
		// Clock went backwards; hold at the last timestamp rather than
		// risk duplicate ids.
		now = g.last
	}

	if now == g.last {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			for now <= g.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.step = 0
	}
	g.last = now

	return ID(((now - epoch) << timeShift) | (g.node << nodeShift) | g.step)
}
