package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// linkDecimals is the number of decimals of one LINK in juels.
const linkDecimals = 18

// Amount is a juel amount with its LINK rendering.
type Amount struct {
	Juels string `json:"juels"`
	LINK  string `json:"link"`
}

func NewAmount(v *big.Int) Amount {
	if v == nil {
		v = new(big.Int)
	}

	return Amount{
		Juels: v.String(),
		LINK:  decimal.NewFromBigInt(v, -linkDecimals).String(),
	}
}

type UpkeepView struct {
	ID                  string         `json:"id"`
	Target              common.Address `json:"target"`
	ExecuteGas          uint32         `json:"executeGas"`
	Admin               common.Address `json:"admin"`
	ProposedAdmin       common.Address `json:"proposedAdmin"`
	CheckData           hexutil.Bytes  `json:"checkData"`
	Balance             Amount         `json:"balance"`
	AmountSpent         Amount         `json:"amountSpent"`
	LastKeeper          common.Address `json:"lastKeeper"`
	LastPerformedBlock  uint64         `json:"lastPerformedBlock"`
	MaxValidBlocknumber hexutil.Uint64 `json:"maxValidBlocknumber"`
	Cancelled           bool           `json:"cancelled"`
	Paused              bool           `json:"paused"`
}

func NewUpkeepView(up types.Upkeep) UpkeepView {
	return UpkeepView{
		ID:                  up.ID.String(),
		Target:              up.Target,
		ExecuteGas:          up.ExecuteGas,
		Admin:               up.Admin,
		ProposedAdmin:       up.ProposedAdmin,
		CheckData:           hexutil.Bytes(up.CheckData),
		Balance:             NewAmount(up.Balance),
		AmountSpent:         NewAmount(up.AmountSpent),
		LastKeeper:          up.LastKeeper,
		LastPerformedBlock:  up.LastPerformedBlock,
		MaxValidBlocknumber: hexutil.Uint64(up.MaxValidBlocknumber),
		Cancelled:           up.ID != 0 && up.Cancelled(),
		Paused:              up.Paused,
	}
}

type KeeperView struct {
	Address       common.Address `json:"address"`
	Payee         common.Address `json:"payee"`
	ProposedPayee common.Address `json:"proposedPayee"`
	Balance       Amount         `json:"balance"`
	Active        bool           `json:"active"`
}

func NewKeeperView(address common.Address, info types.KeeperInfo) KeeperView {
	return KeeperView{
		Address:       address,
		Payee:         info.Payee,
		ProposedPayee: info.ProposedPayee,
		Balance:       NewAmount(info.Balance),
		Active:        info.Active,
	}
}

type StateView struct {
	Owner               common.Address   `json:"owner"`
	Paused              bool             `json:"paused"`
	Nonce               uint64           `json:"nonce"`
	NumUpkeeps          int              `json:"numUpkeeps"`
	ExpectedLinkBalance Amount           `json:"expectedLinkBalance"`
	OwnerLinkBalance    Amount           `json:"ownerLinkBalance"`
	Keepers             []common.Address `json:"keepers"`
	BlockNumber         uint64           `json:"blockNumber"`
	Config              config.Config    `json:"config"`
}

func NewStateView(state types.State, conf config.Config) StateView {
	keepers := state.Keepers
	if keepers == nil {
		keepers = []common.Address{}
	}

	return StateView{
		Owner:               state.Owner,
		Paused:              state.Paused,
		Nonce:               state.Nonce,
		NumUpkeeps:          state.NumUpkeeps,
		ExpectedLinkBalance: NewAmount(state.ExpectedLinkBalance),
		OwnerLinkBalance:    NewAmount(state.OwnerLinkBalance),
		Keepers:             keepers,
		BlockNumber:         state.BlockNumber,
		Config:              conf,
	}
}

type UpkeepIDsView struct {
	Offset int      `json:"offset"`
	Count  int      `json:"count"`
	IDs    []string `json:"ids"`
}
