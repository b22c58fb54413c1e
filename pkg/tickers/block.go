package tickers

import (
	"context"
	"sync"
)

// BlockSubscriber delivers new block heights.
type BlockSubscriber interface {
	Subscribe() (int, <-chan uint64)
	Unsubscribe(int)
}

// BlockTicker follows the same design as a time ticker but ticks on new
// blocks. A slow reader only ever sees the latest block; heights that were
// superseded before being read are dropped.
type BlockTicker struct {
	C chan uint64

	chID       int
	ch         <-chan uint64
	subscriber BlockSubscriber
	closer     sync.Once
	stop       chan struct{}
}

func NewBlockTicker(subscriber BlockSubscriber) *BlockTicker {
	chID, ch := subscriber.Subscribe()

	return &BlockTicker{
		C:          make(chan uint64, 1),
		chID:       chID,
		ch:         ch,
		subscriber: subscriber,
		stop:       make(chan struct{}),
	}
}

// Start forwards blocks to C until the context ends, Close is called or the
// subscription channel closes.
func (t *BlockTicker) Start(ctx context.Context) error {
	for {
		select {
		case block, open := <-t.ch:
			if !open {
				return nil
			}

			t.forward(block)
		case <-t.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *BlockTicker) forward(block uint64) {
	for {
		select {
		case t.C <- block:
			return
		default:
		}

		// replace the unread block with the newer one
		select {
		case <-t.C:
		default:
		}
	}
}

func (t *BlockTicker) Close() error {
	t.closer.Do(func() {
		close(t.stop)
		t.subscriber.Unsubscribe(t.chID)
	})

	return nil
}
