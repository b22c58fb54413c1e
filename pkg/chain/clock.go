package chain

import (
	"sync"
	"time"
)

// Clock is the block height and block time seen by the registry. It is
// advanced by whoever drives block production, typically a broadcaster in
// the simulator or the test itself.
type Clock struct {
	mu        sync.RWMutex
	block     uint64
	timestamp time.Time
}

func NewClock(block uint64, at time.Time) *Clock {
	return &Clock{
		block:     block,
		timestamp: at,
	}
}

func (c *Clock) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.block
}

func (c *Clock) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.timestamp
}

// Advance moves the clock forward by the provided number of blocks and the
// provided amount of time, returning the new height.
func (c *Clock) Advance(blocks uint64, elapsed time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.block += blocks
	c.timestamp = c.timestamp.Add(elapsed)

	return c.block
}

// Set moves the clock to an absolute height and time. Moving backwards is
// ignored.
func (c *Clock) Set(block uint64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block < c.block {
		return
	}

	c.block = block

	if at.After(c.timestamp) {
		c.timestamp = at
	}
}
