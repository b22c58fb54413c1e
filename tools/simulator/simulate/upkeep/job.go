package upkeep

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/smartcontractkit/keeper-registry/pkg/targets"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Job is the target behind a simulated upkeep. It needs work from each of
// its eligible blocks until the next perform, and burns gas sampled from
// the configured distribution.
type Job struct {
	upkeep SimulatedUpkeep
	clock  types.BlockSource
	burner *targets.GasBurner

	mu            sync.Mutex
	lastPerformed uint64
	performed     bool
	performs      []uint64
}

func NewJob(upkeep SimulatedUpkeep, clock types.BlockSource) *Job {
	burner := &targets.GasBurner{Fixed: uint64(upkeep.PerformGasMean)}
	if upkeep.PerformGasStddev > 0 {
		burner.Distribution = distuv.Normal{Mu: upkeep.PerformGasMean, Sigma: upkeep.PerformGasStddev}
	}

	return &Job{
		upkeep: upkeep,
		clock:  clock,
		burner: burner,
	}
}

func (j *Job) CheckUpkeep(ctx context.Context, checkData []byte, gasLimit uint64) (types.CheckResult, error) {
	// keeps the check counter of the burner accurate
	_, _ = j.burner.CheckUpkeep(ctx, checkData, gasLimit)

	block := j.clock.BlockNumber()

	eligibleAt, ok := j.pendingAt(block)
	if !ok {
		return types.CheckResult{}, nil
	}

	performData := make([]byte, 8)
	binary.BigEndian.PutUint64(performData, eligibleAt)

	return types.CheckResult{Needed: true, PerformData: performData}, nil
}

func (j *Job) PerformUpkeep(ctx context.Context, performData []byte, gasLimit uint64) (uint64, error) {
	gasUsed, err := j.burner.PerformUpkeep(ctx, performData, gasLimit)
	if err != nil {
		return gasUsed, err
	}

	block := j.clock.BlockNumber()

	j.mu.Lock()
	j.lastPerformed = block
	j.performed = true
	j.performs = append(j.performs, block)
	j.mu.Unlock()

	return gasUsed, nil
}

// pendingAt returns the oldest eligible block not yet covered by a perform.
func (j *Job) pendingAt(block uint64) (uint64, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.upkeep.AlwaysEligible {
		return block, true
	}

	eligibles := j.upkeep.EligibleAt

	// first eligible block after the last perform
	idx := sort.Search(len(eligibles), func(i int) bool {
		return !j.performed || eligibles[i] > j.lastPerformed
	})

	if idx < len(eligibles) && eligibles[idx] <= block {
		return eligibles[idx], true
	}

	return 0, false
}

// Performs lists the blocks at which the job was successfully performed.
func (j *Job) Performs() []uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]uint64(nil), j.performs...)
}

func (j *Job) Checks() int64 {
	return j.burner.Checks()
}

func (j *Job) Upkeep() SimulatedUpkeep {
	return j.upkeep
}
