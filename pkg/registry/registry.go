package registry

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/events"
	"github.com/smartcontractkit/keeper-registry/pkg/ledger"
	"github.com/smartcontractkit/keeper-registry/pkg/oracle"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Format is the upkeep encoding this registry produces and accepts when
// migrating.
const Format = types.UpkeepFormatV2

// Options are the dependencies of a registry.
type Options struct {
	// Address identifies the registry as a token holder and migration peer.
	Address common.Address
	Owner   common.Address
	Token   types.FundingLedger
	Oracle  *oracle.Oracle
	Targets types.TargetResolver
	Clock   types.BlockSource
	Config  config.Config
	// Transcoder is the implementation deployed at Config.Transcoder.
	Transcoder types.UpkeepTranscoder
	Logger     *log.Logger
	// Collector receives one JSON line per upkeep status change. Optional.
	Collector io.Writer
}

// Registry schedules and pays for upkeeps. Every state changing operation
// runs under a single registry-wide write lock. Reads share a read lock.
type Registry struct {
	address    common.Address
	token      types.FundingLedger
	oracle     *oracle.Oracle
	targets    types.TargetResolver
	clock      types.BlockSource
	transcoder types.UpkeepTranscoder
	logger     *telemetry.Logger

	// receiveTimeout mirrors conf.PerformTimeout so that migrations can
	// bound their wait for the write lock without reading conf.
	receiveTimeout atomic.Int64

	mu            sync.RWMutex
	owner         common.Address
	proposedOwner common.Address
	paused        bool
	conf          config.Config
	nonce         uint64
	keepers       []common.Address
	ledger        *ledger.Ledger
	peers         map[common.Address]types.MigrationPermission

	events *events.Feed
}

func New(opts Options) (*Registry, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidConfig, err)
	}

	if opts.Token == nil || opts.Oracle == nil || opts.Targets == nil || opts.Clock == nil {
		return nil, fmt.Errorf("%w: token, oracle, targets and clock are required", types.ErrInvalidConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	tLogger := telemetry.NewTelemetryLogger(telemetry.WrapLogger(logger, "registry"), opts.Collector)

	reg := &Registry{
		address:    opts.Address,
		token:      opts.Token,
		oracle:     opts.Oracle,
		targets:    opts.Targets,
		clock:      opts.Clock,
		transcoder: opts.Transcoder,
		logger:     tLogger,
		owner:      opts.Owner,
		conf:       opts.Config.Clone(),
		nonce:      1,
		ledger:     ledger.New(),
		peers:      make(map[common.Address]types.MigrationPermission),
		events:     events.NewFeed(tLogger.GetLogger()),
	}

	reg.receiveTimeout.Store(int64(opts.Config.PerformTimeout.Value()))

	return reg, nil
}

func (r *Registry) Address() common.Address {
	return r.address
}

type reentrancyKey struct {
	registry common.Address
}

// withPerformMarker marks ctx as running inside a perform of this registry.
func (r *Registry) withPerformMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentrancyKey{registry: r.address}, true)
}

func (r *Registry) reentrant(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	v, _ := ctx.Value(reentrancyKey{registry: r.address}).(bool)

	return v
}

// lock takes the write lock unless ctx shows the call comes from a target
// that is being performed by this registry.
func (r *Registry) lock(ctx context.Context) (func(), error) {
	if r.reentrant(ctx) {
		return nil, types.ErrReentrantCall
	}

	r.mu.Lock()

	return r.mu.Unlock, nil
}

// lockWithin acquires the write lock, giving up when ctx ends or when
// timeout passes. It keeps two registries migrating into each other from
// waiting on each other forever.
func (r *Registry) lockWithin(ctx context.Context, timeout time.Duration) (func(), error) {
	if r.reentrant(ctx) {
		return nil, types.ErrReentrantCall
	}

	if r.mu.TryLock() {
		return r.mu.Unlock, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: registry busy: %s", types.ErrMigrationNotPermitted, ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("%w: registry busy", types.ErrMigrationNotPermitted)
		case <-ticker.C:
			if r.mu.TryLock() {
				return r.mu.Unlock, nil
			}
		}
	}
}

// collect writes an upkeep status line to the collector.
func (r *Registry) collect(id types.UpkeepID, block uint64, status telemetry.Status) {
	if err := r.logger.Collect(id.String(), block, status); err != nil {
		r.logger.Printf("failed to collect status %s of upkeep %s: %s", status, id, err)
	}
}

func (r *Registry) emit(evt types.Event) {
	r.events.Publish(evt)
}

// Subscribe returns a channel receiving every event the registry emits.
func (r *Registry) Subscribe() (int, <-chan types.Event) {
	return r.events.Subscribe()
}

func (r *Registry) Unsubscribe(subscriptionID int) {
	r.events.Unsubscribe(subscriptionID)
}

func (r *Registry) meta() types.EventMeta {
	return types.EventMeta{Block: r.clock.BlockNumber()}
}

func (r *Registry) onlyOwner(caller common.Address) error {
	if caller != r.owner {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwner, caller)
	}

	return nil
}

// transfer sends registry funds and wraps any token failure.
func (r *Registry) transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}

	if err := r.token.Transfer(ctx, r.address, to, amount); err != nil {
		return fmt.Errorf("%w: %s", types.ErrTransferFailed, err)
	}

	return nil
}

// TransferOwnership proposes a new owner. It takes effect on
// AcceptOwnership.
func (r *Registry) TransferOwnership(ctx context.Context, caller, to common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	if to == caller {
		return fmt.Errorf("%w: cannot transfer ownership to self", types.ErrValueNotChanged)
	}

	r.proposedOwner = to

	return nil
}

func (r *Registry) AcceptOwnership(ctx context.Context, caller common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if caller != r.proposedOwner || caller == types.ZeroAddress {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByProposedOwner, caller)
	}

	previous := r.owner
	r.owner = caller
	r.proposedOwner = types.ZeroAddress

	r.emit(types.OwnershipTransferred{EventMeta: r.meta(), From: previous, To: caller})

	return nil
}

// Pause stops registrations and performs. Checks, funding and
// administration stay available.
func (r *Registry) Pause(ctx context.Context, caller common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	if r.paused {
		return types.ErrRegistryPaused
	}

	r.paused = true
	r.emit(types.Paused{EventMeta: r.meta(), Account: caller})

	return nil
}

func (r *Registry) Unpause(ctx context.Context, caller common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	if !r.paused {
		return fmt.Errorf("%w: registry is not paused", types.ErrValueNotChanged)
	}

	r.paused = false
	r.emit(types.Unpaused{EventMeta: r.meta(), Account: caller})

	return nil
}

// SetConfig replaces the registry configuration. Performs already in
// progress keep the configuration they started with.
func (r *Registry) SetConfig(ctx context.Context, caller common.Address, conf config.Config) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	if err := conf.Validate(); err != nil {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, err)
	}

	r.conf = conf.Clone()
	r.receiveTimeout.Store(int64(r.conf.PerformTimeout.Value()))
	r.emit(types.ConfigSet{EventMeta: r.meta()})

	return nil
}

// SetTranscoder installs the transcoder implementation and records its
// address in the configuration.
func (r *Registry) SetTranscoder(ctx context.Context, caller, address common.Address, transcoder types.UpkeepTranscoder) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	r.conf.Transcoder = address
	r.transcoder = transcoder
	r.emit(types.ConfigSet{EventMeta: r.meta()})

	return nil
}

func (r *Registry) SetPeerRegistryMigrationPermission(ctx context.Context, caller, peer common.Address, permission types.MigrationPermission) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	r.peers[peer] = permission

	return nil
}

// WithdrawOwnerFunds sends accrued cancellation fees to the owner.
func (r *Registry) WithdrawOwnerFunds(ctx context.Context, caller common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	amount := r.ledger.OwnerBalance()
	if err := r.transfer(ctx, r.owner, amount); err != nil {
		return err
	}

	r.ledger.WithdrawOwner()
	r.emit(types.OwnerFundsWithdrawn{EventMeta: r.meta(), Amount: amount})

	return nil
}

// RecoverFunds sends any token balance above what the registry owes to the
// owner.
func (r *Registry) RecoverFunds(ctx context.Context, caller common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	excess := new(big.Int).Sub(r.token.BalanceOf(r.address), r.ledger.ExpectedBalance())
	if excess.Sign() <= 0 {
		return nil
	}

	return r.transfer(ctx, r.owner, excess)
}
