package link

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	ErrInsufficientBalance   = fmt.Errorf("insufficient balance")
	ErrInsufficientAllowance = fmt.Errorf("insufficient allowance")
	ErrTransferRejected      = fmt.Errorf("transfer rejected")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is an in-memory ERC-677 style token. Transfers are atomic and
// TransferAndCall reverts the transfer when the receiver callback fails.
type Token struct {
	address common.Address

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	receivers  map[common.Address]types.TokenReceiver
	failing    map[common.Address]struct{}
}

func NewToken(address common.Address) *Token {
	return &Token{
		address:    address,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		receivers:  make(map[common.Address]types.TokenReceiver),
		failing:    make(map[common.Address]struct{}),
	}
}

func (t *Token) Address() common.Address {
	return t.address
}

// Mint creates amount tokens for account.
func (t *Token) Mint(account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.balanceLocked(account).Add(t.balanceLocked(account), amount)
}

// RegisterReceiver makes TransferAndCall to address invoke receiver.
func (t *Token) RegisterReceiver(address common.Address, receiver types.TokenReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.receivers[address] = receiver
}

// FailTransfersTo makes every transfer to recipient fail until
// ClearFailures is called.
func (t *Token) FailTransfersTo(recipient common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failing[recipient] = struct{}{}
}

func (t *Token) ClearFailures() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failing = make(map[common.Address]struct{})
}

func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return new(big.Int).Set(t.balanceLocked(account))
}

func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allowances[allowanceKey{owner: owner, spender: spender}] = new(big.Int).Set(amount)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(v)
	}

	return new(big.Int)
}

func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transferLocked(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{owner: from, spender: spender}

	allowance, ok := t.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may not spend %s of %s", ErrInsufficientAllowance, spender, amount, from)
	}

	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}

	allowance.Sub(allowance, amount)

	return nil
}

// TransferAndCall transfers and then calls the receiver registered at to,
// if any. The lock is released during the callback so the receiver may
// transfer in turn.
func (t *Token) TransferAndCall(ctx context.Context, from, to common.Address, amount *big.Int, data []byte) error {
	t.mu.Lock()

	if err := t.transferLocked(from, to, amount); err != nil {
		t.mu.Unlock()

		return err
	}

	receiver, ok := t.receivers[to]
	t.mu.Unlock()

	if !ok {
		return nil
	}

	if err := receiver.OnTokenTransfer(types.WithTokenCaller(ctx, t.address), from, amount, data); err != nil {
		t.mu.Lock()
		defer t.mu.Unlock()

		if revertErr := t.moveLocked(to, from, amount); revertErr != nil {
			return fmt.Errorf("%w: callback failed (%s) and revert failed: %s", ErrTransferRejected, err, revertErr)
		}

		return err
	}

	return nil
}

func (t *Token) transferLocked(from, to common.Address, amount *big.Int) error {
	if _, ok := t.failing[to]; ok {
		return fmt.Errorf("%w: recipient %s", ErrTransferRejected, to)
	}

	return t.moveLocked(from, to, amount)
}

func (t *Token) moveLocked(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferRejected)
	}

	fromBalance := t.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, fromBalance, amount)
	}

	fromBalance.Sub(fromBalance, amount)
	t.balanceLocked(to).Add(t.balanceLocked(to), amount)

	return nil
}

func (t *Token) balanceLocked(account common.Address) *big.Int {
	bal, ok := t.balances[account]
	if !ok {
		bal = new(big.Int)
		t.balances[account] = bal
	}

	return bal
}
