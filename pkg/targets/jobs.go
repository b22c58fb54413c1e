package targets

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	ErrReverted  = fmt.Errorf("target reverted")
	ErrOutOfGas  = fmt.Errorf("out of gas")
	ErrCancelled = fmt.Errorf("perform cancelled")
)

// Counter records how often a job was checked and performed.
type Counter struct {
	checks   atomic.Int64
	performs atomic.Int64
}

func (c *Counter) Checks() int64   { return c.checks.Load() }
func (c *Counter) Performs() int64 { return c.performs.Load() }

// AlwaysEligible reports that work is needed on every check.
type AlwaysEligible struct {
	Counter
	PerformData []byte
	CheckGas    uint64
	PerformGas  uint64
}

func (j *AlwaysEligible) CheckUpkeep(_ context.Context, _ []byte, gasLimit uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{Needed: true, PerformData: j.PerformData, GasUsed: minGas(j.CheckGas, gasLimit)}, nil
}

func (j *AlwaysEligible) PerformUpkeep(_ context.Context, _ []byte, gasLimit uint64) (uint64, error) {
	j.performs.Add(1)

	return burn(j.PerformGas, gasLimit)
}

// Never reports that no work is needed.
type Never struct {
	Counter
}

func (j *Never) CheckUpkeep(_ context.Context, _ []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{}, nil
}

func (j *Never) PerformUpkeep(_ context.Context, _ []byte, _ uint64) (uint64, error) {
	j.performs.Add(1)

	return 0, nil
}

// Reverting fails its check and/or perform routine with Reason.
type Reverting struct {
	Counter
	OnCheck    bool
	OnPerform  bool
	Reason     string
	PerformGas uint64
}

func (j *Reverting) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	if j.OnCheck {
		return types.CheckResult{}, fmt.Errorf("%w: %s", ErrReverted, j.Reason)
	}

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *Reverting) PerformUpkeep(_ context.Context, _ []byte, gasLimit uint64) (uint64, error) {
	j.performs.Add(1)

	if j.OnPerform {
		return minGas(j.PerformGas, gasLimit), fmt.Errorf("%w: %s", ErrReverted, j.Reason)
	}

	return minGas(j.PerformGas, gasLimit), nil
}

// GasBurner is always eligible and consumes either a fixed amount of gas or
// a sample of Distribution per perform. Consuming more than the limit fails
// the perform with the whole limit used.
type GasBurner struct {
	Counter
	Fixed        uint64
	Distribution distuv.Rander

	mu sync.Mutex
}

// NewNormalGasBurner samples gas use from a normal distribution.
func NewNormalGasBurner(mean, stddev float64) *GasBurner {
	return &GasBurner{
		Distribution: distuv.Normal{Mu: mean, Sigma: stddev},
	}
}

func (j *GasBurner) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *GasBurner) PerformUpkeep(_ context.Context, _ []byte, gasLimit uint64) (uint64, error) {
	j.performs.Add(1)

	return burn(j.sample(), gasLimit)
}

func (j *GasBurner) sample() uint64 {
	if j.Distribution == nil {
		return j.Fixed
	}

	j.mu.Lock()
	v := j.Distribution.Rand()
	j.mu.Unlock()

	if v <= 0 || math.IsNaN(v) {
		return 0
	}

	return uint64(v)
}

// Schedule is eligible only when Eligible returns true for the current
// block.
type Schedule struct {
	Counter
	Clock      types.BlockSource
	Eligible   func(block uint64) bool
	PerformGas uint64
}

func (j *Schedule) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	if j.Eligible == nil || !j.Eligible(j.Clock.BlockNumber()) {
		return types.CheckResult{}, nil
	}

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *Schedule) PerformUpkeep(_ context.Context, _ []byte, gasLimit uint64) (uint64, error) {
	j.performs.Add(1)

	return burn(j.PerformGas, gasLimit)
}

// Funder is the part of the registry a self funding target calls back into.
type Funder interface {
	AddFunds(ctx context.Context, caller common.Address, id types.UpkeepID, amount *big.Int) error
}

// SelfFunding adds funds to its own upkeep from inside its perform routine.
// The outcome of the callback is stored and returned as the perform error.
type SelfFunding struct {
	Counter
	Registry Funder
	Self     common.Address
	ID       types.UpkeepID
	Amount   *big.Int

	mu      sync.Mutex
	lastErr error
}

func (j *SelfFunding) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *SelfFunding) PerformUpkeep(ctx context.Context, _ []byte, _ uint64) (uint64, error) {
	j.performs.Add(1)

	err := j.Registry.AddFunds(ctx, j.Self, j.ID, j.Amount)

	j.mu.Lock()
	j.lastErr = err
	j.mu.Unlock()

	return 0, err
}

func (j *SelfFunding) LastErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.lastErr
}

// Canceller is the part of the registry a self cancelling target calls back
// into.
type Canceller interface {
	CancelUpkeep(ctx context.Context, caller common.Address, id types.UpkeepID) error
}

// SelfCancelling cancels its own upkeep from inside its perform routine,
// acting as the upkeep admin.
type SelfCancelling struct {
	Counter
	Registry Canceller
	Admin    common.Address
	ID       types.UpkeepID

	mu      sync.Mutex
	lastErr error
}

func (j *SelfCancelling) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *SelfCancelling) PerformUpkeep(ctx context.Context, _ []byte, _ uint64) (uint64, error) {
	j.performs.Add(1)

	err := j.Registry.CancelUpkeep(ctx, j.Admin, j.ID)

	j.mu.Lock()
	j.lastErr = err
	j.mu.Unlock()

	return 0, err
}

func (j *SelfCancelling) LastErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.lastErr
}

// Sleeper holds its perform routine for Delay, or until the context ends.
type Sleeper struct {
	Counter
	Delay time.Duration
}

func (j *Sleeper) CheckUpkeep(_ context.Context, checkData []byte, _ uint64) (types.CheckResult, error) {
	j.checks.Add(1)

	return types.CheckResult{Needed: true, PerformData: checkData}, nil
}

func (j *Sleeper) PerformUpkeep(ctx context.Context, _ []byte, gasLimit uint64) (uint64, error) {
	j.performs.Add(1)

	timer := time.NewTimer(j.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return 0, nil
	case <-ctx.Done():
		return gasLimit, fmt.Errorf("%w: %s", ErrCancelled, ctx.Err())
	}
}

func burn(gas, gasLimit uint64) (uint64, error) {
	if gas > gasLimit {
		return gasLimit, fmt.Errorf("%w: needed %d, limit %d", ErrOutOfGas, gas, gasLimit)
	}

	return gas, nil
}

func minGas(gas, gasLimit uint64) uint64 {
	if gas > gasLimit {
		return gasLimit
	}

	return gas
}
