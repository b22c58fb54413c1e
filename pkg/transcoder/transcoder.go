package transcoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var ErrUnsupportedFormat = fmt.Errorf("unsupported upkeep format")

var (
	Uint256Arr, _ = abi.NewType("uint256[]", "", nil)
	AddressArr, _ = abi.NewType("address[]", "", nil)
	Uint32Arr, _  = abi.NewType("uint32[]", "", nil)
	Uint64Arr, _  = abi.NewType("uint64[]", "", nil)
	BytesArr, _   = abi.NewType("bytes[]", "", nil)
	BoolArr, _    = abi.NewType("bool[]", "", nil)

	v1Args = abi.Arguments{
		{Name: "ids", Type: Uint256Arr},
		{Name: "balances", Type: Uint256Arr},
		{Name: "lastKeepers", Type: AddressArr},
		{Name: "executeGas", Type: Uint32Arr},
		{Name: "maxValidBlocknumbers", Type: Uint64Arr},
		{Name: "targets", Type: AddressArr},
		{Name: "amountSpent", Type: Uint256Arr},
		{Name: "admins", Type: AddressArr},
		{Name: "checkDatas", Type: BytesArr},
	}

	// v2 adds the per-upkeep pause flag and the last performed block
	v2Args = append(append(abi.Arguments{}, v1Args...),
		abi.Argument{Name: "paused", Type: BoolArr},
		abi.Argument{Name: "lastPerformedBlocks", Type: Uint64Arr},
	)
)

// Transcoder converts migrated upkeep payloads between formats. Converting
// to a newer format fills new fields with zero values; converting to an
// older one drops them.
type Transcoder struct{}

func New() *Transcoder {
	return &Transcoder{}
}

func (t *Transcoder) TranscodeUpkeeps(from, to types.UpkeepFormat, encoded []byte) ([]byte, error) {
	if from == to {
		return encoded, nil
	}

	upkeeps, err := Decode(from, encoded)
	if err != nil {
		return nil, err
	}

	return Encode(to, upkeeps)
}

// Encode packs upkeeps in the provided format.
func Encode(format types.UpkeepFormat, upkeeps []types.Upkeep) ([]byte, error) {
	var (
		ids         = make([]*big.Int, len(upkeeps))
		balances    = make([]*big.Int, len(upkeeps))
		lastKeepers = make([]common.Address, len(upkeeps))
		executeGas  = make([]uint32, len(upkeeps))
		maxValid    = make([]uint64, len(upkeeps))
		targets     = make([]common.Address, len(upkeeps))
		spent       = make([]*big.Int, len(upkeeps))
		admins      = make([]common.Address, len(upkeeps))
		checkDatas  = make([][]byte, len(upkeeps))
		paused      = make([]bool, len(upkeeps))
		performed   = make([]uint64, len(upkeeps))
	)

	for i, up := range upkeeps {
		up = up.Clone()

		ids[i] = up.ID.BigInt()
		balances[i] = up.Balance
		lastKeepers[i] = up.LastKeeper
		executeGas[i] = up.ExecuteGas
		maxValid[i] = up.MaxValidBlocknumber
		targets[i] = up.Target
		spent[i] = up.AmountSpent
		admins[i] = up.Admin
		checkDatas[i] = up.CheckData
		paused[i] = up.Paused
		performed[i] = up.LastPerformedBlock
	}

	var (
		bts []byte
		err error
	)

	switch format {
	case types.UpkeepFormatV1:
		bts, err = v1Args.Pack(ids, balances, lastKeepers, executeGas, maxValid, targets, spent, admins, checkDatas)
	case types.UpkeepFormatV2:
		bts, err = v2Args.Pack(ids, balances, lastKeepers, executeGas, maxValid, targets, spent, admins, checkDatas, paused, performed)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack upkeeps", err)
	}

	return bts, nil
}

// Decode unpacks upkeeps encoded in the provided format.
func Decode(format types.UpkeepFormat, encoded []byte) ([]types.Upkeep, error) {
	var args abi.Arguments

	switch format {
	case types.UpkeepFormatV1:
		args = v1Args
	case types.UpkeepFormatV2:
		args = v2Args
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}

	m := make(map[string]interface{})
	if err := args.UnpackIntoMap(m, encoded); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidDataLength, err)
	}

	ids, ok := m["ids"].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: upkeep ids of incorrect type", types.ErrInvalidDataLength)
	}

	balances, _ := m["balances"].([]*big.Int)
	lastKeepers, _ := m["lastKeepers"].([]common.Address)
	executeGas, _ := m["executeGas"].([]uint32)
	maxValid, _ := m["maxValidBlocknumbers"].([]uint64)
	targets, _ := m["targets"].([]common.Address)
	spent, _ := m["amountSpent"].([]*big.Int)
	admins, _ := m["admins"].([]common.Address)
	checkDatas, _ := m["checkDatas"].([][]byte)

	n := len(ids)
	for _, l := range []int{len(balances), len(lastKeepers), len(executeGas), len(maxValid), len(targets), len(spent), len(admins), len(checkDatas)} {
		if l != n {
			return nil, fmt.Errorf("%w: upkeep fields should have matching length", types.ErrInvalidDataLength)
		}
	}

	var (
		paused    []bool
		performed []uint64
	)

	if format == types.UpkeepFormatV2 {
		paused, _ = m["paused"].([]bool)
		performed, _ = m["lastPerformedBlocks"].([]uint64)

		if len(paused) != n || len(performed) != n {
			return nil, fmt.Errorf("%w: upkeep fields should have matching length", types.ErrInvalidDataLength)
		}
	}

	upkeeps := make([]types.Upkeep, n)
	for i := 0; i < n; i++ {
		if !ids[i].IsUint64() {
			return nil, fmt.Errorf("%w: upkeep id %s out of range", types.ErrInvalidDataLength, ids[i])
		}

		upkeeps[i] = types.Upkeep{
			ID:                  types.UpkeepID(ids[i].Uint64()),
			Target:              targets[i],
			ExecuteGas:          executeGas[i],
			Admin:               admins[i],
			CheckData:           checkDatas[i],
			Balance:             balances[i],
			AmountSpent:         spent[i],
			LastKeeper:          lastKeepers[i],
			MaxValidBlocknumber: maxValid[i],
		}

		if format == types.UpkeepFormatV2 {
			upkeeps[i].Paused = paused[i]
			upkeeps[i].LastPerformedBlock = performed[i]
		}
	}

	return upkeeps, nil
}
