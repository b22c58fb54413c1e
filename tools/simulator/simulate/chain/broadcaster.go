package chain

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

// BlockLoaderFunc applies the chain events scheduled for a block. Loaders
// run after the clock moves and before any subscriber sees the block.
type BlockLoaderFunc func(ctx context.Context, block uint64)

type subscription struct {
	ch    chan uint64
	quit  chan struct{}
	delay bool
}

// BlockBroadcaster produces blocks on a cadence, moving a shared clock and
// notifying subscribers of every new height.
type BlockBroadcaster struct {
	// provided dependencies
	clock   *chain.Clock
	loaders []BlockLoaderFunc
	logger  *log.Logger

	// configuration
	maxDelay  int
	genesis   uint64
	limit     uint64
	cadence   time.Duration
	jitter    time.Duration
	blockTime time.Duration
	started   time.Time

	// internal state
	mu            sync.RWMutex
	subscriptions map[int]*subscription
	subCount      int

	// service state
	start   sync.Once
	stopper sync.Once
	stop    chan struct{}
	done    chan struct{}
}

func NewBlockBroadcaster(conf config.Blocks, maxDelay int, clock *chain.Clock, logger *log.Logger, loaders ...BlockLoaderFunc) *BlockBroadcaster {
	return &BlockBroadcaster{
		clock:         clock,
		loaders:       loaders,
		logger:        log.New(logger.Writer(), "[block-broadcaster] ", log.Ldate|log.Ltime|log.Lshortfile),
		maxDelay:      maxDelay,
		genesis:       conf.Genesis,
		limit:         conf.End(),
		cadence:       conf.Cadence.Value(),
		jitter:        conf.Jitter.Value(),
		blockTime:     conf.BlockTime.Value(),
		started:       clock.Timestamp(),
		subscriptions: make(map[int]*subscription),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Subscribe registers for every block broadcast after the call.
func (bb *BlockBroadcaster) Subscribe() (int, <-chan uint64) {
	return bb.subscribe(true)
}

// SubscribeWithoutDelay registers a subscriber that is never delayed.
func (bb *BlockBroadcaster) SubscribeWithoutDelay() (int, <-chan uint64) {
	return bb.subscribe(false)
}

func (bb *BlockBroadcaster) subscribe(delay bool) (int, <-chan uint64) {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	bb.subCount++
	bb.subscriptions[bb.subCount] = &subscription{
		ch:    make(chan uint64),
		quit:  make(chan struct{}),
		delay: delay,
	}

	return bb.subCount, bb.subscriptions[bb.subCount].ch
}

func (bb *BlockBroadcaster) Unsubscribe(subscriptionID int) {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	sub, ok := bb.subscriptions[subscriptionID]
	if ok {
		close(sub.quit)
	}

	delete(bb.subscriptions, subscriptionID)
}

// Start begins broadcasting. The returned channel closes once the last
// block was broadcast or Stop was called.
func (bb *BlockBroadcaster) Start(ctx context.Context) <-chan struct{} {
	bb.start.Do(func() {
		go bb.run(ctx)
	})

	return bb.done
}

func (bb *BlockBroadcaster) Stop() {
	bb.stopper.Do(func() {
		close(bb.stop)
	})
}

func (bb *BlockBroadcaster) run(ctx context.Context) {
	defer close(bb.done)

	next := bb.genesis

	// broadcast the first block immediately
	bb.broadcast(ctx, next)

	timer := time.NewTimer(bb.cadenceWithJitter())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			next++

			if next > bb.limit {
				bb.logger.Printf("reached block limit %d", bb.limit)

				return
			}

			bb.broadcast(ctx, next)

			timer.Reset(bb.cadenceWithJitter())
		case <-bb.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (bb *BlockBroadcaster) cadenceWithJitter() time.Duration {
	if bb.jitter > 0 {
		jitter := rand.Intn(int(bb.jitter))
		half := float64(bb.jitter) / 2
		applied := math.Round(float64(jitter) - half)

		// plus or minus jitter amount
		return bb.cadence + time.Duration(int64(applied))
	}

	return bb.cadence
}

func (bb *BlockBroadcaster) broadcast(ctx context.Context, block uint64) {
	at := bb.started.Add(time.Duration(block-bb.genesis) * bb.blockTime)
	bb.clock.Set(block, at)

	bb.logger.Printf("next block: %d", block)

	for _, loader := range bb.loaders {
		loader(ctx, block)
	}

	bb.mu.RLock()
	defer bb.mu.RUnlock()

	for _, sub := range bb.subscriptions {
		go bb.send(sub, block)
	}
}

func (bb *BlockBroadcaster) send(sub *subscription, block uint64) {
	if sub.delay && bb.maxDelay > 0 {
		// add up to `maxDelay` millisecond delay at random
		r := rand.Intn(bb.maxDelay)

		select {
		case <-time.After(time.Duration(int64(r)) * time.Millisecond):
		case <-sub.quit:
			return
		}
	}

	select {
	case sub.ch <- block:
	case <-sub.quit:
	case <-bb.stop:
	}
}
