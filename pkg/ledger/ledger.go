package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Ledger holds upkeep records and every balance owed by a registry: upkeep
// balances, keeper withdrawable balances and the owner's accrued fees. The
// sum of these always equals ExpectedBalance.
//
// Ledger is not safe for concurrent use; the owning registry serializes
// access.
type Ledger struct {
	upkeeps      map[types.UpkeepID]*types.Upkeep
	keepers      map[common.Address]*types.KeeperInfo
	ownerBalance *big.Int
	expected     *big.Int
}

func New() *Ledger {
	return &Ledger{
		upkeeps:      make(map[types.UpkeepID]*types.Upkeep),
		keepers:      make(map[common.Address]*types.KeeperInfo),
		ownerBalance: new(big.Int),
		expected:     new(big.Int),
	}
}

// Create inserts a new upkeep. Its balance is counted towards the expected
// balance, which is how migrated upkeeps bring their funds with them.
func (l *Ledger) Create(up types.Upkeep) error {
	if _, ok := l.upkeeps[up.ID]; ok {
		return fmt.Errorf("%w: upkeep %s already exists", types.ErrDuplicateEntry, up.ID)
	}

	record := up.Clone()
	l.upkeeps[up.ID] = &record
	l.expected.Add(l.expected, record.Balance)

	return nil
}

// Remove deletes an upkeep and returns its final state. The removed balance
// leaves the expected balance.
func (l *Ledger) Remove(id types.UpkeepID) (types.Upkeep, error) {
	up, ok := l.upkeeps[id]
	if !ok {
		return types.Upkeep{}, fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	delete(l.upkeeps, id)
	l.expected.Sub(l.expected, up.Balance)

	return *up, nil
}

// Upkeep returns the live record for id. Callers other than the registry
// must Clone it.
func (l *Ledger) Upkeep(id types.UpkeepID) (*types.Upkeep, bool) {
	up, ok := l.upkeeps[id]

	return up, ok
}

// IDs returns every known upkeep id in ascending order.
func (l *Ledger) IDs() []types.UpkeepID {
	ids := make([]types.UpkeepID, 0, len(l.upkeeps))
	for id := range l.upkeeps {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (l *Ledger) Len() int {
	return len(l.upkeeps)
}

// AddFunds credits an upkeep that has never been cancelled.
func (l *Ledger) AddFunds(id types.UpkeepID, amount *big.Int) error {
	up, ok := l.upkeeps[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if up.Cancelled() {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotActive, id)
	}

	up.Balance.Add(up.Balance, amount)
	l.expected.Add(l.expected, amount)

	return nil
}

// Debit removes amount from an upkeep balance without crediting anyone.
func (l *Ledger) Debit(id types.UpkeepID, amount *big.Int) error {
	up, ok := l.upkeeps[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if amount.Cmp(up.Balance) > 0 {
		return fmt.Errorf("%w: upkeep %s balance %s below %s", types.ErrInsufficientFunds, id, up.Balance, amount)
	}

	up.Balance.Sub(up.Balance, amount)
	l.expected.Sub(l.expected, amount)

	return nil
}

// CreditKeeper adds to a keeper's withdrawable balance.
func (l *Ledger) CreditKeeper(keeper common.Address, amount *big.Int) {
	info := l.Keeper(keeper)
	info.Balance.Add(info.Balance, amount)
	l.expected.Add(l.expected, amount)
}

// Pay moves amount from an upkeep to a keeper and records the spend. It
// either applies completely or not at all.
func (l *Ledger) Pay(id types.UpkeepID, keeper common.Address, amount *big.Int) error {
	if err := l.Debit(id, amount); err != nil {
		return err
	}

	l.CreditKeeper(keeper, amount)

	up := l.upkeeps[id]
	up.AmountSpent.Add(up.AmountSpent, amount)

	return nil
}

// CancellationFee splits the balance of an upkeep into the part returned to
// the admin and the fee kept by the owner. The fee only applies when the
// upkeep spent less than minSpend.
func (l *Ledger) CancellationFee(id types.UpkeepID, minSpend *big.Int) (toAdmin *big.Int, fee *big.Int, err error) {
	up, ok := l.upkeeps[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	fee = new(big.Int)
	if minSpend != nil && up.AmountSpent.Cmp(minSpend) < 0 {
		fee.Sub(minSpend, up.AmountSpent)

		if fee.Cmp(up.Balance) > 0 {
			fee.Set(up.Balance)
		}
	}

	toAdmin = new(big.Int).Sub(up.Balance, fee)

	return toAdmin, fee, nil
}

// SweepCancelled empties an upkeep balance. The fee is credited to the
// owner and the remainder leaves the registry.
func (l *Ledger) SweepCancelled(id types.UpkeepID, minSpend *big.Int) (toAdmin *big.Int, fee *big.Int, err error) {
	toAdmin, fee, err = l.CancellationFee(id, minSpend)
	if err != nil {
		return nil, nil, err
	}

	up := l.upkeeps[id]
	up.Balance.SetInt64(0)

	l.ownerBalance.Add(l.ownerBalance, fee)
	l.expected.Sub(l.expected, toAdmin)

	return toAdmin, fee, nil
}

// Keeper returns the payment record of a keeper, creating an inactive one
// when none exists.
func (l *Ledger) Keeper(keeper common.Address) *types.KeeperInfo {
	info, ok := l.keepers[keeper]
	if !ok {
		info = &types.KeeperInfo{Balance: new(big.Int)}
		l.keepers[keeper] = info
	}

	return info
}

// LookupKeeper returns the payment record of a keeper if one exists.
func (l *Ledger) LookupKeeper(keeper common.Address) (*types.KeeperInfo, bool) {
	info, ok := l.keepers[keeper]

	return info, ok
}

// WithdrawKeeper zeroes a keeper's balance and returns the amount that
// left the registry.
func (l *Ledger) WithdrawKeeper(keeper common.Address) *big.Int {
	info, ok := l.keepers[keeper]
	if !ok {
		return new(big.Int)
	}

	amount := new(big.Int).Set(info.Balance)
	info.Balance.SetInt64(0)
	l.expected.Sub(l.expected, amount)

	return amount
}

// WithdrawOwner zeroes the owner's accrued fees and returns the amount.
func (l *Ledger) WithdrawOwner() *big.Int {
	amount := new(big.Int).Set(l.ownerBalance)
	l.ownerBalance.SetInt64(0)
	l.expected.Sub(l.expected, amount)

	return amount
}

func (l *Ledger) OwnerBalance() *big.Int {
	return new(big.Int).Set(l.ownerBalance)
}

// ExpectedBalance is the amount of LINK the registry must hold to cover
// everything it owes.
func (l *Ledger) ExpectedBalance() *big.Int {
	return new(big.Int).Set(l.expected)
}

// Total recomputes the expected balance from the individual accounts.
func (l *Ledger) Total() *big.Int {
	total := new(big.Int).Set(l.ownerBalance)

	for _, up := range l.upkeeps {
		total.Add(total, up.Balance)
	}

	for _, info := range l.keepers {
		total.Add(total, info.Balance)
	}

	return total
}
