package chain

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

func testBlocks() config.Blocks {
	return config.Blocks{
		Genesis:    10,
		Cadence:    config.Duration(5 * time.Millisecond),
		BlockTime:  config.Duration(12 * time.Second),
		Duration:   4,
		EndPadding: 1,
	}
}

func TestBlockBroadcaster_RunsToLimit(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	clock := chain.NewClock(10, genesis)

	var (
		mu     sync.Mutex
		loaded []uint64
	)

	loader := func(_ context.Context, block uint64) {
		mu.Lock()
		defer mu.Unlock()

		// the clock has already moved when loaders run
		assert.Equal(t, block, clock.BlockNumber())
		loaded = append(loaded, block)
	}

	bb := NewBlockBroadcaster(testBlocks(), 0, clock, log.New(io.Discard, "", 0), loader)

	id, ch := bb.SubscribeWithoutDelay()
	defer bb.Unsubscribe(id)

	received := make(chan []uint64, 1)
	go func() {
		var blocks []uint64
		for block := range ch {
			blocks = append(blocks, block)
			if block == 15 {
				break
			}
		}
		received <- blocks
	}()

	select {
	case <-bb.Start(context.Background()):
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not finish")
	}

	mu.Lock()
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15}, loaded)
	mu.Unlock()

	select {
	case blocks := <-received:
		assert.Contains(t, blocks, uint64(15))
		assert.LessOrEqual(t, len(blocks), 6)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the last block")
	}

	assert.Equal(t, uint64(15), clock.BlockNumber())
	assert.Equal(t, genesis.Add(5*12*time.Second), clock.Timestamp())
}

func TestBlockBroadcaster_Stop(t *testing.T) {
	conf := testBlocks()
	conf.Cadence = config.Duration(time.Hour)

	clock := chain.NewClock(10, time.Unix(0, 0))
	bb := NewBlockBroadcaster(conf, 50, clock, log.New(io.Discard, "", 0))

	id, _ := bb.Subscribe()

	done := bb.Start(context.Background())

	bb.Stop()
	bb.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}

	bb.Unsubscribe(id)
	assert.Equal(t, uint64(10), clock.BlockNumber())
}
