package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is emitted by the registry and registrar on every state change.
type Event interface {
	EventName() string
	BlockNumber() uint64
}

// EventMeta carries the fields shared by all events.
type EventMeta struct {
	Block uint64
}

func (m EventMeta) BlockNumber() uint64 { return m.Block }

type UpkeepRegistered struct {
	EventMeta
	ID         UpkeepID
	ExecuteGas uint32
	Admin      common.Address
}

func (UpkeepRegistered) EventName() string { return "UpkeepRegistered" }

type FundsAdded struct {
	EventMeta
	ID     UpkeepID
	From   common.Address
	Amount *big.Int
}

func (FundsAdded) EventName() string { return "FundsAdded" }

type UpkeepPerformed struct {
	EventMeta
	ID          UpkeepID
	Success     bool
	From        common.Address
	Payment     *big.Int
	GasUsed     uint64
	PerformData []byte
}

func (UpkeepPerformed) EventName() string { return "UpkeepPerformed" }

type UpkeepCanceled struct {
	EventMeta
	ID      UpkeepID
	AtBlock uint64
	ByOwner bool
}

func (UpkeepCanceled) EventName() string { return "UpkeepCanceled" }

type FundsWithdrawn struct {
	EventMeta
	ID              UpkeepID
	Amount          *big.Int
	CancellationFee *big.Int
	To              common.Address
}

func (FundsWithdrawn) EventName() string { return "FundsWithdrawn" }

type OwnerFundsWithdrawn struct {
	EventMeta
	Amount *big.Int
}

func (OwnerFundsWithdrawn) EventName() string { return "OwnerFundsWithdrawn" }

type KeepersUpdated struct {
	EventMeta
	Keepers []common.Address
	Payees  []common.Address
}

func (KeepersUpdated) EventName() string { return "KeepersUpdated" }

type PaymentWithdrawn struct {
	EventMeta
	Keeper common.Address
	Amount *big.Int
	To     common.Address
	Payee  common.Address
}

func (PaymentWithdrawn) EventName() string { return "PaymentWithdrawn" }

type PayeeshipTransferRequested struct {
	EventMeta
	Keeper common.Address
	From   common.Address
	To     common.Address
}

func (PayeeshipTransferRequested) EventName() string { return "PayeeshipTransferRequested" }

type PayeeshipTransferred struct {
	EventMeta
	Keeper common.Address
	From   common.Address
	To     common.Address
}

func (PayeeshipTransferred) EventName() string { return "PayeeshipTransferred" }

type UpkeepAdminTransferRequested struct {
	EventMeta
	ID   UpkeepID
	From common.Address
	To   common.Address
}

func (UpkeepAdminTransferRequested) EventName() string { return "UpkeepAdminTransferRequested" }

type UpkeepAdminTransferred struct {
	EventMeta
	ID   UpkeepID
	From common.Address
	To   common.Address
}

func (UpkeepAdminTransferred) EventName() string { return "UpkeepAdminTransferred" }

type UpkeepGasLimitSet struct {
	EventMeta
	ID       UpkeepID
	GasLimit uint32
}

func (UpkeepGasLimitSet) EventName() string { return "UpkeepGasLimitSet" }

type UpkeepCheckDataUpdated struct {
	EventMeta
	ID        UpkeepID
	CheckData []byte
}

func (UpkeepCheckDataUpdated) EventName() string { return "UpkeepCheckDataUpdated" }

type UpkeepPaused struct {
	EventMeta
	ID UpkeepID
}

func (UpkeepPaused) EventName() string { return "UpkeepPaused" }

type UpkeepUnpaused struct {
	EventMeta
	ID UpkeepID
}

func (UpkeepUnpaused) EventName() string { return "UpkeepUnpaused" }

type UpkeepMigrated struct {
	EventMeta
	ID               UpkeepID
	RemainingBalance *big.Int
	Destination      common.Address
}

func (UpkeepMigrated) EventName() string { return "UpkeepMigrated" }

type UpkeepReceived struct {
	EventMeta
	ID              UpkeepID
	StartingBalance *big.Int
	ImportedFrom    common.Address
}

func (UpkeepReceived) EventName() string { return "UpkeepReceived" }

type ConfigSet struct {
	EventMeta
}

func (ConfigSet) EventName() string { return "ConfigSet" }

type Paused struct {
	EventMeta
	Account common.Address
}

func (Paused) EventName() string { return "Paused" }

type Unpaused struct {
	EventMeta
	Account common.Address
}

func (Unpaused) EventName() string { return "Unpaused" }

type OwnershipTransferred struct {
	EventMeta
	From common.Address
	To   common.Address
}

func (OwnershipTransferred) EventName() string { return "OwnershipTransferred" }

type RegistrationRequested struct {
	EventMeta
	Hash     common.Hash
	Name     string
	Target   common.Address
	GasLimit uint32
	Admin    common.Address
	Amount   *big.Int
	Source   uint8
}

func (RegistrationRequested) EventName() string { return "RegistrationRequested" }

type RegistrationApproved struct {
	EventMeta
	Hash common.Hash
	Name string
	ID   UpkeepID
}

func (RegistrationApproved) EventName() string { return "RegistrationApproved" }

type RegistrationRejected struct {
	EventMeta
	Hash common.Hash
}

func (RegistrationRejected) EventName() string { return "RegistrationRejected" }
