package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	Uint256, _ = abi.NewType("uint256", "", nil)

	fundingArgs = abi.Arguments{
		{Name: "id", Type: Uint256},
	}
)

// EncodeFundingData builds the TransferAndCall payload that funds upkeep id.
func EncodeFundingData(id types.UpkeepID) ([]byte, error) {
	return fundingArgs.Pack(id.BigInt())
}

// UpkeepIDFor is the id a registry at address assigns to the upkeep it
// registers with nonce. The upper half comes from the keccak hash of the
// registry address and the lower half is the nonce, so ids grow with the
// nonce and do not collide with upkeeps migrated in from other registries.
func UpkeepIDFor(address common.Address, nonce uint64) types.UpkeepID {
	prefix := binary.BigEndian.Uint32(crypto.Keccak256(address.Bytes())[:4])

	return types.UpkeepID(uint64(prefix)<<32 | nonce&math.MaxUint32)
}

// RegisterUpkeep creates an active upkeep with a zero balance and returns
// its id. Only the owner and the configured registrar may register.
func (r *Registry) RegisterUpkeep(ctx context.Context, caller, target common.Address, gasLimit uint32, admin common.Address, checkData []byte) (types.UpkeepID, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return r.register(ctx, caller, target, gasLimit, admin, checkData, nil)
}

// RegisterFundedUpkeep registers an upkeep and moves amount from caller to
// the registry as its starting balance. Either both happen or neither does.
func (r *Registry) RegisterFundedUpkeep(ctx context.Context, caller, target common.Address, gasLimit uint32, admin common.Address, checkData []byte, amount *big.Int) (types.UpkeepID, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return r.register(ctx, caller, target, gasLimit, admin, checkData, amount)
}

func (r *Registry) register(ctx context.Context, caller, target common.Address, gasLimit uint32, admin common.Address, checkData []byte, amount *big.Int) (types.UpkeepID, error) {
	if r.paused {
		return 0, types.ErrRegistryPaused
	}

	if caller != r.owner && (caller != r.conf.Registrar || caller == types.ZeroAddress) {
		return 0, fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwnerOrRegistrar, caller)
	}

	if _, ok := r.targets.Resolve(target); !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrNotAContract, target)
	}

	if err := r.checkGasLimit(gasLimit); err != nil {
		return 0, err
	}

	if err := r.checkDataSize(checkData); err != nil {
		return 0, err
	}

	if r.nonce > math.MaxUint32 {
		return 0, fmt.Errorf("%w: upkeep nonce exhausted", types.ErrInvalidConfig)
	}

	if amount == nil || amount.Sign() < 0 {
		amount = new(big.Int)
	}

	id := UpkeepIDFor(r.address, r.nonce)

	if amount.Sign() > 0 {
		if err := r.token.Transfer(ctx, caller, r.address, amount); err != nil {
			return 0, fmt.Errorf("%w: %s", types.ErrTransferFailed, err)
		}
	}

	if err := r.ledger.Create(types.Upkeep{
		ID:                  id,
		Target:              target,
		ExecuteGas:          gasLimit,
		Admin:               admin,
		CheckData:           checkData,
		Balance:             new(big.Int).Set(amount),
		MaxValidBlocknumber: types.UnlimitedBlock,
	}); err != nil {
		if refundErr := r.transfer(ctx, caller, amount); refundErr != nil {
			r.logger.Printf("failed to refund %s juels to %s after rejected registration: %s", amount, caller, refundErr)
		}

		return 0, err
	}

	r.nonce++
	prommetrics.RegistryActiveUpkeeps.Inc()

	r.emit(types.UpkeepRegistered{EventMeta: r.meta(), ID: id, ExecuteGas: gasLimit, Admin: admin})

	if amount.Sign() > 0 {
		r.emit(types.FundsAdded{EventMeta: r.meta(), ID: id, From: caller, Amount: new(big.Int).Set(amount)})
	}

	return id, nil
}

func (r *Registry) checkGasLimit(gasLimit uint32) error {
	if gasLimit < r.conf.MinPerformGas || gasLimit > r.conf.MaxPerformGas {
		return fmt.Errorf("%w: %d not in [%d, %d]", types.ErrGasLimitOutsideRange, gasLimit, r.conf.MinPerformGas, r.conf.MaxPerformGas)
	}

	return nil
}

func (r *Registry) checkDataSize(checkData []byte) error {
	if r.conf.MaxCheckDataSize > 0 && len(checkData) > int(r.conf.MaxCheckDataSize) {
		return fmt.Errorf("%w: %d bytes", types.ErrCheckDataExceedsLimit, len(checkData))
	}

	return nil
}

// upkeepForAdmin returns the live record of an upkeep that caller
// administers and that was never cancelled.
func (r *Registry) upkeepForAdmin(id types.UpkeepID, caller common.Address) (*types.Upkeep, error) {
	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if up.Admin != caller {
		return nil, fmt.Errorf("%w: %s", types.ErrOnlyCallableByAdmin, caller)
	}

	if up.Cancelled() {
		return nil, fmt.Errorf("%w: %s", types.ErrUpkeepNotActive, id)
	}

	return up, nil
}

// AddFunds pulls amount from caller using the allowance caller granted the
// registry. Anyone may fund an upkeep that was never cancelled.
func (r *Registry) AddFunds(ctx context.Context, caller common.Address, id types.UpkeepID, amount *big.Int) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if up.Cancelled() {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotActive, id)
	}

	if err := r.token.TransferFrom(ctx, r.address, caller, r.address, amount); err != nil {
		return fmt.Errorf("%w: %s", types.ErrTransferFailed, err)
	}

	if err := r.ledger.AddFunds(id, amount); err != nil {
		return err
	}

	r.emit(types.FundsAdded{EventMeta: r.meta(), ID: id, From: caller, Amount: new(big.Int).Set(amount)})

	return nil
}

// OnTokenTransfer funds the upkeep whose id is ABI encoded in data. The
// funds have already arrived when the token calls it.
func (r *Registry) OnTokenTransfer(ctx context.Context, sender common.Address, amount *big.Int, data []byte) error {
	if caller, ok := types.TokenCaller(ctx); !ok || caller != r.token.Address() {
		return types.ErrOnlyCallableByLINKToken
	}

	if len(data) != 32 {
		return fmt.Errorf("%w: expected 32 bytes, got %d", types.ErrInvalidDataLength, len(data))
	}

	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := fundingArgs.Unpack(data)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrInvalidDataLength, err)
	}

	raw, ok := values[0].(*big.Int)
	if !ok || !raw.IsUint64() {
		return fmt.Errorf("%w: upkeep id out of range", types.ErrUpkeepNotFound)
	}

	id := types.UpkeepID(raw.Uint64())

	if err := r.ledger.AddFunds(id, amount); err != nil {
		return err
	}

	r.emit(types.FundsAdded{EventMeta: r.meta(), ID: id, From: sender, Amount: new(big.Int).Set(amount)})

	return nil
}

func (r *Registry) SetUpkeepGasLimit(ctx context.Context, caller common.Address, id types.UpkeepID, gasLimit uint32) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, err := r.upkeepForAdmin(id, caller)
	if err != nil {
		return err
	}

	if err := r.checkGasLimit(gasLimit); err != nil {
		return err
	}

	up.ExecuteGas = gasLimit
	r.emit(types.UpkeepGasLimitSet{EventMeta: r.meta(), ID: id, GasLimit: gasLimit})

	return nil
}

func (r *Registry) UpdateCheckData(ctx context.Context, caller common.Address, id types.UpkeepID, checkData []byte) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, err := r.upkeepForAdmin(id, caller)
	if err != nil {
		return err
	}

	if err := r.checkDataSize(checkData); err != nil {
		return err
	}

	up.CheckData = append([]byte(nil), checkData...)
	r.emit(types.UpkeepCheckDataUpdated{EventMeta: r.meta(), ID: id, CheckData: append([]byte(nil), checkData...)})

	return nil
}

// TransferUpkeepAdmin proposes a new admin. It takes effect on
// AcceptUpkeepAdmin.
func (r *Registry) TransferUpkeepAdmin(ctx context.Context, caller common.Address, id types.UpkeepID, proposed common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, err := r.upkeepForAdmin(id, caller)
	if err != nil {
		return err
	}

	if proposed == caller {
		return fmt.Errorf("%w: proposed admin is the current admin", types.ErrValueNotChanged)
	}

	if up.ProposedAdmin != proposed {
		up.ProposedAdmin = proposed
		r.emit(types.UpkeepAdminTransferRequested{EventMeta: r.meta(), ID: id, From: caller, To: proposed})
	}

	return nil
}

func (r *Registry) AcceptUpkeepAdmin(ctx context.Context, caller common.Address, id types.UpkeepID) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if up.ProposedAdmin != caller || caller == types.ZeroAddress {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByProposedAdmin, caller)
	}

	if up.Cancelled() {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotActive, id)
	}

	previous := up.Admin
	up.Admin = caller
	up.ProposedAdmin = types.ZeroAddress

	r.emit(types.UpkeepAdminTransferred{EventMeta: r.meta(), ID: id, From: previous, To: caller})

	return nil
}

func (r *Registry) PauseUpkeep(ctx context.Context, caller common.Address, id types.UpkeepID) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, err := r.upkeepForAdmin(id, caller)
	if err != nil {
		return err
	}

	if up.Paused {
		return fmt.Errorf("%w: %s", types.ErrOnlyUnpausedUpkeep, id)
	}

	up.Paused = true
	r.emit(types.UpkeepPaused{EventMeta: r.meta(), ID: id})

	return nil
}

func (r *Registry) UnpauseUpkeep(ctx context.Context, caller common.Address, id types.UpkeepID) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, err := r.upkeepForAdmin(id, caller)
	if err != nil {
		return err
	}

	if !up.Paused {
		return fmt.Errorf("%w: %s", types.ErrOnlyPausedUpkeep, id)
	}

	up.Paused = false
	r.emit(types.UpkeepUnpaused{EventMeta: r.meta(), ID: id})

	return nil
}

// CancelUpkeep sets the expiry of an upkeep. The owner cancels at the
// current block; the admin cancels CancellationDelay blocks from now. Once
// set, an expiry can only be brought forward, and only by the owner while
// it is still pending.
func (r *Registry) CancelUpkeep(ctx context.Context, caller common.Address, id types.UpkeepID) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	block := r.clock.BlockNumber()
	isOwner := caller == r.owner
	cancelled := up.Cancelled()

	if cancelled && !(isOwner && up.MaxValidBlocknumber > block) {
		return fmt.Errorf("%w: upkeep %s expires at block %d", types.ErrCannotCancel, id, up.MaxValidBlocknumber)
	}

	if !isOwner && caller != up.Admin {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwnerOrAdmin, caller)
	}

	height := block
	if !isOwner {
		height += r.conf.CancellationDelay
	}

	up.MaxValidBlocknumber = height

	if !cancelled {
		prommetrics.RegistryActiveUpkeeps.Dec()
	}

	r.collect(id, block, telemetry.Cancelled)
	r.emit(types.UpkeepCanceled{EventMeta: r.meta(), ID: id, AtBlock: height, ByOwner: isOwner})

	return nil
}

// WithdrawFunds sends the balance of an expired upkeep to 'to', keeping a
// cancellation fee for the owner when the upkeep spent less than
// MinUpkeepSpend.
func (r *Registry) WithdrawFunds(ctx context.Context, caller common.Address, id types.UpkeepID, to common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if to == types.ZeroAddress {
		return types.ErrInvalidRecipient
	}

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if up.Admin != caller {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByAdmin, caller)
	}

	block := r.clock.BlockNumber()
	if up.MaxValidBlocknumber > block {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotCanceled, id)
	}

	toAdmin, _, err := r.ledger.CancellationFee(id, r.conf.MinUpkeepSpend)
	if err != nil {
		return err
	}

	if err := r.transfer(ctx, to, toAdmin); err != nil {
		return err
	}

	amount, fee, err := r.ledger.SweepCancelled(id, r.conf.MinUpkeepSpend)
	if err != nil {
		return err
	}

	r.collect(id, block, telemetry.Withdrawn)
	r.emit(types.FundsWithdrawn{EventMeta: r.meta(), ID: id, Amount: amount, CancellationFee: fee, To: to})

	return nil
}
