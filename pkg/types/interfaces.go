package types

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

//go:generate mockery --quiet --name TargetJob --output ./mocks/ --case=underscore
//go:generate mockery --quiet --name PriceFeed --output ./mocks/ --case=underscore
//go:generate mockery --quiet --name FundingLedger --output ./mocks/ --case=underscore

// TargetJob is the work behind an upkeep. Both routines receive a gas
// budget and must report the gas they consumed. Returning an error is the
// equivalent of a revert.
type TargetJob interface {
	CheckUpkeep(ctx context.Context, checkData []byte, gasLimit uint64) (CheckResult, error)
	PerformUpkeep(ctx context.Context, performData []byte, gasLimit uint64) (uint64, error)
}

// TargetResolver maps an address to the job deployed there. A missing
// entry means the address has no code.
type TargetResolver interface {
	Resolve(common.Address) (TargetJob, bool)
}

// FundingLedger is the token used to fund upkeeps and pay keepers.
// Implementations must apply a transfer completely or not at all.
type FundingLedger interface {
	Address() common.Address
	BalanceOf(common.Address) *big.Int
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	// TransferFrom moves funds from 'from' to 'to' using the allowance
	// 'from' granted to spender.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	// TransferAndCall transfers and then notifies the recipient. If the
	// notification fails the transfer is reverted.
	TransferAndCall(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) error
}

// TokenReceiver is notified by TransferAndCall.
type TokenReceiver interface {
	OnTokenTransfer(ctx context.Context, sender common.Address, amount *big.Int, data []byte) error
}

// PriceFeed is an external oracle answer source.
type PriceFeed interface {
	LatestRoundData(context.Context) (RoundData, error)
}

// BlockSource provides the current block height and block time.
type BlockSource interface {
	BlockNumber() uint64
	Timestamp() time.Time
}

// MigratableRegistry is a registry that can accept migrated upkeeps.
type MigratableRegistry interface {
	Address() common.Address
	UpkeepTranscoderVersion() UpkeepFormat
	ReceiveUpkeeps(ctx context.Context, from common.Address, encoded []byte) error
}

// UpkeepTranscoder converts encoded upkeeps between registry versions.
type UpkeepTranscoder interface {
	TranscodeUpkeeps(from, to UpkeepFormat, encoded []byte) ([]byte, error)
}

// EventSubscriber delivers registry events.
type EventSubscriber interface {
	Subscribe() (int, <-chan Event)
	Unsubscribe(int)
}
