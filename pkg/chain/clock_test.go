package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	clock := NewClock(10, genesis)

	assert.Equal(t, uint64(10), clock.BlockNumber())
	assert.Equal(t, genesis, clock.Timestamp())

	assert.Equal(t, uint64(15), clock.Advance(5, time.Minute))
	assert.Equal(t, genesis.Add(time.Minute), clock.Timestamp())

	clock.Set(12, genesis)
	assert.Equal(t, uint64(15), clock.BlockNumber(), "clock must not move backwards")

	clock.Set(20, genesis.Add(time.Hour))
	assert.Equal(t, uint64(20), clock.BlockNumber())
	assert.Equal(t, genesis.Add(time.Hour), clock.Timestamp())
}
