package turns

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Offset is the position in the roster that holds turn zero for an upkeep.
// It spreads upkeeps over keepers so that one keeper does not hold the turn
// for every upkeep at once.
func Offset(id types.UpkeepID, keeperCount int) int {
	if keeperCount <= 0 {
		return 0
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(common.BigToHash(id.BigInt()).Bytes())

	sum := new(big.Int).SetBytes(hasher.Sum(nil))

	return int(sum.Mod(sum, big.NewInt(int64(keeperCount))).Int64())
}

// Turn is the turn number a block belongs to.
func Turn(block uint64, blockCountPerTurn uint32) uint64 {
	if blockCountPerTurn == 0 {
		blockCountPerTurn = 1
	}

	return block / uint64(blockCountPerTurn)
}

// TurnWindow returns the first and last block of the turn containing block.
func TurnWindow(block uint64, blockCountPerTurn uint32) (uint64, uint64) {
	if blockCountPerTurn == 0 {
		blockCountPerTurn = 1
	}

	start := Turn(block, blockCountPerTurn) * uint64(blockCountPerTurn)

	return start, start + uint64(blockCountPerTurn) - 1
}

// Eligible returns the keeper that holds the turn for an upkeep at block,
// and its roster index. The index is -1 for an empty roster.
//
//	index = (block / blockCountPerTurn + keccak256(id) mod N) mod N
func Eligible(id types.UpkeepID, block uint64, keepers []common.Address, blockCountPerTurn uint32) (common.Address, int) {
	n := len(keepers)
	if n == 0 {
		return types.ZeroAddress, -1
	}

	turn := Turn(block, blockCountPerTurn) % uint64(n)
	idx := int((turn + uint64(Offset(id, n))) % uint64(n))

	return keepers[idx], idx
}

// Check verifies that keeper may perform upkeep id at block. A keeper can
// never follow itself unless it is the only keeper on the roster.
func Check(id types.UpkeepID, keeper common.Address, block uint64, lastKeeper common.Address, keepers []common.Address, blockCountPerTurn uint32) error {
	if !contains(keepers, keeper) {
		return fmt.Errorf("%w: %s", types.ErrOnlyActiveKeepers, keeper)
	}

	if len(keepers) > 1 && keeper == lastKeeper {
		return fmt.Errorf("%w: %s performed upkeep %s last", types.ErrKeepersMustTakeTurns, keeper, id)
	}

	eligible, _ := Eligible(id, block, keepers, blockCountPerTurn)
	if eligible != keeper {
		return fmt.Errorf("%w: turn for upkeep %s at block %d belongs to %s", types.ErrKeepersMustTakeTurns, id, block, eligible)
	}

	return nil
}

func contains(keepers []common.Address, keeper common.Address) bool {
	for _, k := range keepers {
		if k == keeper {
			return true
		}
	}

	return false
}
