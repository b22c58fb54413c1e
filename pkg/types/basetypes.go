package types

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// UnlimitedBlock is the expiry of an upkeep that has not been cancelled.
	UnlimitedBlock uint64 = math.MaxUint64
)

var (
	// ZeroAddress is the null identity. It is never a valid admin, payee or
	// recipient.
	ZeroAddress = common.Address{}
	// IgnoreAddress is passed as a payee to SetKeepers to keep the payee a
	// keeper already has.
	IgnoreAddress = common.HexToAddress("0xFFfFfFffFFfffFFfFFfFFFFFffFFFffffFfFFFfF")
)

// UpkeepID identifies an upkeep within and across registries. A registry
// derives ids from its address and a monotonic counter and never reuses
// them.
type UpkeepID uint64

func (id UpkeepID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id UpkeepID) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

// ParseUpkeepID parses a base 10 upkeep id.
func ParseUpkeepID(s string) (UpkeepID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid upkeep id '%s'", ErrUpkeepNotFound, s)
	}

	return UpkeepID(v), nil
}

// Upkeep is a registered unit of recurring work.
type Upkeep struct {
	ID            UpkeepID
	Target        common.Address
	ExecuteGas    uint32
	Admin         common.Address
	ProposedAdmin common.Address
	CheckData     []byte
	// Balance is the amount of juels available to pay for performs.
	Balance *big.Int
	// AmountSpent is the cumulative amount paid to keepers.
	AmountSpent        *big.Int
	LastKeeper         common.Address
	LastPerformedBlock uint64
	// MaxValidBlocknumber is UnlimitedBlock while active and the expiry
	// block once cancelled.
	MaxValidBlocknumber uint64
	Paused              bool
}

// Cancelled reports whether a cancellation was ever requested.
func (u Upkeep) Cancelled() bool {
	return u.MaxValidBlocknumber != UnlimitedBlock
}

// ActiveAt reports whether the upkeep can still be funded and performed at
// the provided block.
func (u Upkeep) ActiveAt(block uint64) bool {
	return u.MaxValidBlocknumber > block
}

// Clone returns a deep copy so callers can never mutate registry state
// through a query result.
func (u Upkeep) Clone() Upkeep {
	out := u
	out.CheckData = append([]byte(nil), u.CheckData...)
	out.Balance = copyBig(u.Balance)
	out.AmountSpent = copyBig(u.AmountSpent)

	return out
}

// KeeperInfo holds payment details for a keeper, active or removed.
type KeeperInfo struct {
	Payee         common.Address
	ProposedPayee common.Address
	Balance       *big.Int
	Active        bool
}

func (k KeeperInfo) Clone() KeeperInfo {
	out := k
	out.Balance = copyBig(k.Balance)

	return out
}

// State is the aggregate view of a registry.
type State struct {
	Owner               common.Address
	Paused              bool
	Nonce               uint64
	NumUpkeeps          int
	ExpectedLinkBalance *big.Int
	OwnerLinkBalance    *big.Int
	Keepers             []common.Address
	BlockNumber         uint64
}

// MigrationPermission is the direction in which upkeeps may move between
// this registry and a peer.
type MigrationPermission uint8

const (
	MigrationNone MigrationPermission = iota
	MigrationOutgoing
	MigrationIncoming
	MigrationBidirectional
)

func (p MigrationPermission) AllowsOutgoing() bool {
	return p == MigrationOutgoing || p == MigrationBidirectional
}

func (p MigrationPermission) AllowsIncoming() bool {
	return p == MigrationIncoming || p == MigrationBidirectional
}

// UpkeepFormat is the encoding version of migrated upkeeps.
type UpkeepFormat uint8

const (
	UpkeepFormatV1 UpkeepFormat = iota
	UpkeepFormatV2
)

// RoundData is the latest answer of a price feed.
type RoundData struct {
	RoundID   uint64
	Answer    *big.Int
	UpdatedAt time.Time
}

// CheckResult is what a target job reports from its check routine.
type CheckResult struct {
	Needed      bool
	PerformData []byte
	GasUsed     uint64
}

// UpkeepCheck is the result of a simulated registry check. It carries
// everything a keeper needs to decide whether a perform is worth sending.
type UpkeepCheck struct {
	PerformData    []byte
	MaxLinkPayment *big.Int
	GasLimit       uint32
	AdjustedGasWei *big.Int
	LinkEth        *big.Int
}

// PerformOptions are per-call parameters of a perform.
type PerformOptions struct {
	// GasPrice is the gas price the keeper paid for the transaction. When
	// set, it caps the gas price used for payment.
	GasPrice *big.Int
}

// PerformResult describes a completed perform. Success is false when the
// target reverted or ran out of budget; payment still happened.
type PerformResult struct {
	Success bool
	Payment *big.Int
	GasUsed uint64
	Err     error
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(v)
}
