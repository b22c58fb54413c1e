package node

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/tickers"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Registry is the part of the upkeep registry a keeper node calls.
type Registry interface {
	GetActiveUpkeepIDs(offset, count int) []types.UpkeepID
	CheckUpkeep(ctx context.Context, id types.UpkeepID, from common.Address) (types.UpkeepCheck, error)
	PerformUpkeep(ctx context.Context, from common.Address, id types.UpkeepID, performData []byte, opts types.PerformOptions) (types.PerformResult, error)
}

type KeeperConfig struct {
	Address      common.Address
	Registry     Registry
	Blocks       tickers.BlockSubscriber
	Clock        types.BlockSource
	Stats        *Stats
	Workers      int
	MaxQueueSize int
	Logger       *log.Logger
}

// Keeper is a simulated keeper node. On every new block it checks all
// active upkeeps in parallel and performs the ones that need work.
type Keeper struct {
	ID       string
	Address  common.Address
	registry Registry
	blocks   tickers.BlockSubscriber
	clock    types.BlockSource
	stats    *Stats
	pool     pond.Pool
	logger   *log.Logger

	mu        sync.Mutex
	lastBlock uint64
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewKeeper(conf KeeperConfig) *Keeper {
	id := uuid.New().String()

	return &Keeper{
		ID:       id,
		Address:  conf.Address,
		registry: conf.Registry,
		blocks:   conf.Blocks,
		clock:    conf.Clock,
		stats:    conf.Stats,
		pool:     pond.NewPool(conf.Workers, pond.WithQueueSize(conf.MaxQueueSize)),
		logger:   telemetry.WrapLogger(conf.Logger, "keeper "+id[:8]),
		stop:     make(chan struct{}),
	}
}

// Start blocks until the context ends or Close is called.
func (k *Keeper) Start(ctx context.Context) error {
	ticker := tickers.NewBlockTicker(k.blocks)
	defer ticker.Close()

	go func() {
		_ = ticker.Start(ctx)
	}()

	for {
		select {
		case block := <-ticker.C:
			if !k.advance(block) {
				continue
			}

			k.processBlock(ctx, block)
		case <-k.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (k *Keeper) Close() error {
	k.stopOnce.Do(func() {
		close(k.stop)
		k.pool.StopAndWait()
	})

	return nil
}

// advance reports whether block is newer than anything already processed.
// Delayed blocks can arrive out of order.
func (k *Keeper) advance(block uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if block <= k.lastBlock {
		return false
	}

	k.lastBlock = block

	return true
}

type eligibleUpkeep struct {
	id          types.UpkeepID
	performData []byte
}

func (k *Keeper) processBlock(ctx context.Context, block uint64) {
	ids := k.registry.GetActiveUpkeepIDs(0, 0)

	var (
		mu       sync.Mutex
		eligible []eligibleUpkeep
	)

	group := k.pool.NewGroupContext(ctx)

	for _, id := range ids {
		group.Submit(func() {
			check, err := k.registry.CheckUpkeep(ctx, id, k.Address)

			outOfTurn := errors.Is(err, types.ErrKeepersMustTakeTurns)
			k.stats.RecordCheck(k.Address, k.ID, id, err == nil, outOfTurn)

			if err != nil {
				switch types.KindOf(err) {
				case types.KindTargetFailure, types.KindStateConflict, types.KindInsufficientFunds, types.KindUnauthorized:
				default:
					k.logger.Printf("check of upkeep %s at block %d failed: %s", id, block, err)
				}

				return
			}

			mu.Lock()
			eligible = append(eligible, eligibleUpkeep{id: id, performData: check.PerformData})
			mu.Unlock()
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		k.logger.Printf("checks at block %d did not complete: %s", block, err)

		return
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].id < eligible[j].id
	})

	for _, up := range eligible {
		if ctx.Err() != nil {
			return
		}

		// performs land in whatever block the chain has reached by now
		landed := k.clock.BlockNumber()

		result, err := k.registry.PerformUpkeep(ctx, k.Address, up.id, up.performData, types.PerformOptions{})
		if err != nil {
			k.stats.RecordRejection(up.id)
			k.logger.Printf("perform of upkeep %s at block %d rejected: %s", up.id, landed, err)

			continue
		}

		k.stats.RecordPerform(k.Address, k.ID, up.id, landed, result)
	}
}
