package node

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// UpkeepStats are the observations made for one upkeep over a run.
type UpkeepStats struct {
	Checks      int
	Needed      int
	Performs    int
	Failed      int
	Rejected    int
	Paid        *big.Int
	PerformedAt []uint64
}

// KeeperStats are the observations made for one keeper node over a run.
type KeeperStats struct {
	Node     string
	Checks   int
	Performs int
	// OutOfTurn counts checks rejected because another keeper held the
	// turn or this keeper performed last.
	OutOfTurn int
	Paid      *big.Int
}

// BalancePoint is an upkeep balance sampled at a block.
type BalancePoint struct {
	Block   uint64
	Balance *big.Int
}

// Stats collects observations from every keeper node concurrently.
type Stats struct {
	upkeeps  *xsync.Map[types.UpkeepID, UpkeepStats]
	keepers  *xsync.Map[common.Address, KeeperStats]
	balances *xsync.Map[types.UpkeepID, []BalancePoint]
}

func NewStats() *Stats {
	return &Stats{
		upkeeps:  xsync.NewMap[types.UpkeepID, UpkeepStats](),
		keepers:  xsync.NewMap[common.Address, KeeperStats](),
		balances: xsync.NewMap[types.UpkeepID, []BalancePoint](),
	}
}

func (s *Stats) updateUpkeep(id types.UpkeepID, fn func(*UpkeepStats)) {
	s.upkeeps.Compute(id, func(old UpkeepStats, loaded bool) (UpkeepStats, xsync.ComputeOp) {
		if !loaded {
			old.Paid = new(big.Int)
		}

		fn(&old)

		return old, xsync.UpdateOp
	})
}

func (s *Stats) updateKeeper(keeper common.Address, node string, fn func(*KeeperStats)) {
	s.keepers.Compute(keeper, func(old KeeperStats, loaded bool) (KeeperStats, xsync.ComputeOp) {
		if !loaded {
			old.Paid = new(big.Int)
		}

		old.Node = node
		fn(&old)

		return old, xsync.UpdateOp
	})
}

// RecordCheck records the outcome of a simulated check.
func (s *Stats) RecordCheck(keeper common.Address, node string, id types.UpkeepID, needed, outOfTurn bool) {
	s.updateUpkeep(id, func(st *UpkeepStats) {
		st.Checks++

		if needed {
			st.Needed++
		}
	})

	s.updateKeeper(keeper, node, func(st *KeeperStats) {
		st.Checks++

		if outOfTurn {
			st.OutOfTurn++
		}
	})
}

// RecordPerform records a completed perform and the payment it earned.
func (s *Stats) RecordPerform(keeper common.Address, node string, id types.UpkeepID, block uint64, result types.PerformResult) {
	s.updateUpkeep(id, func(st *UpkeepStats) {
		st.Paid = new(big.Int).Add(st.Paid, result.Payment)

		if result.Success {
			st.Performs++
			st.PerformedAt = append(append([]uint64(nil), st.PerformedAt...), block)
		} else {
			st.Failed++
		}
	})

	s.updateKeeper(keeper, node, func(st *KeeperStats) {
		st.Performs++
		st.Paid = new(big.Int).Add(st.Paid, result.Payment)
	})
}

// RecordRejection records a perform the registry refused.
func (s *Stats) RecordRejection(id types.UpkeepID) {
	s.updateUpkeep(id, func(st *UpkeepStats) {
		st.Rejected++
	})
}

// SampleBalance appends a balance observation for an upkeep.
func (s *Stats) SampleBalance(id types.UpkeepID, block uint64, balance *big.Int) {
	point := BalancePoint{Block: block, Balance: new(big.Int).Set(balance)}

	s.balances.Compute(id, func(old []BalancePoint, _ bool) ([]BalancePoint, xsync.ComputeOp) {
		return append(append([]BalancePoint(nil), old...), point), xsync.UpdateOp
	})
}

func (s *Stats) Upkeep(id types.UpkeepID) UpkeepStats {
	st, ok := s.upkeeps.Load(id)
	if !ok {
		return UpkeepStats{Paid: new(big.Int)}
	}

	return st
}

func (s *Stats) Keeper(keeper common.Address) KeeperStats {
	st, ok := s.keepers.Load(keeper)
	if !ok {
		return KeeperStats{Paid: new(big.Int)}
	}

	return st
}

func (s *Stats) Balances(id types.UpkeepID) []BalancePoint {
	points, _ := s.balances.Load(id)

	return points
}

// TotalPaid is the sum of all payments recorded for keepers.
func (s *Stats) TotalPaid() *big.Int {
	total := new(big.Int)

	s.keepers.Range(func(_ common.Address, st KeeperStats) bool {
		total.Add(total, st.Paid)

		return true
	})

	return total
}

// KeeperAddresses lists every keeper with recorded activity in ascending
// order.
func (s *Stats) KeeperAddresses() []common.Address {
	addresses := make([]common.Address, 0, s.keepers.Size())

	s.keepers.Range(func(keeper common.Address, _ KeeperStats) bool {
		addresses = append(addresses, keeper)

		return true
	})

	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].Cmp(addresses[j]) < 0
	})

	return addresses
}
