package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// SetKeepers replaces the keeper roster. payees[i] is the payee of
// keepers[i]; IgnoreAddress keeps the payee a keeper already has. An
// existing payee can only be changed through the payee transfer flow.
// Removed keepers keep their withdrawable balance.
func (r *Registry) SetKeepers(ctx context.Context, caller common.Address, keepers, payees []common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.onlyOwner(caller); err != nil {
		return err
	}

	if len(keepers) != len(payees) {
		return fmt.Errorf("%w: %d keepers, %d payees", types.ErrParameterLengthError, len(keepers), len(payees))
	}

	if len(keepers) == 0 {
		return fmt.Errorf("%w: at least one keeper is required", types.ErrArrayHasNoEntries)
	}

	seen := make(map[common.Address]struct{}, len(keepers))

	for i, keeper := range keepers {
		payee := payees[i]

		if _, ok := seen[keeper]; ok {
			return fmt.Errorf("%w: keeper %s", types.ErrDuplicateEntry, keeper)
		}

		seen[keeper] = struct{}{}

		if payee == types.ZeroAddress {
			return fmt.Errorf("%w: zero payee for keeper %s", types.ErrInvalidPayee, keeper)
		}

		var current common.Address
		if info, ok := r.ledger.LookupKeeper(keeper); ok {
			current = info.Payee
		}

		if payee == types.IgnoreAddress {
			if current == types.ZeroAddress {
				return fmt.Errorf("%w: keeper %s has no payee to keep", types.ErrInvalidPayee, keeper)
			}

			continue
		}

		if current != types.ZeroAddress && current != payee {
			return fmt.Errorf("%w: keeper %s already pays %s", types.ErrInvalidPayee, keeper, current)
		}
	}

	for _, keeper := range r.keepers {
		r.ledger.Keeper(keeper).Active = false
	}

	for i, keeper := range keepers {
		info := r.ledger.Keeper(keeper)
		info.Active = true

		if payees[i] != types.IgnoreAddress {
			info.Payee = payees[i]
		}
	}

	r.keepers = append([]common.Address(nil), keepers...)

	r.emit(types.KeepersUpdated{
		EventMeta: r.meta(),
		Keepers:   append([]common.Address(nil), keepers...),
		Payees:    append([]common.Address(nil), payees...),
	})

	return nil
}

// TransferPayeeship proposes a new payee for keeper. Only the current
// payee may propose.
func (r *Registry) TransferPayeeship(ctx context.Context, caller, keeper, proposed common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	info, ok := r.ledger.LookupKeeper(keeper)
	if !ok || info.Payee != caller || caller == types.ZeroAddress {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByPayee, caller)
	}

	if proposed == caller {
		return fmt.Errorf("%w: proposed payee is the current payee", types.ErrValueNotChanged)
	}

	if info.ProposedPayee != proposed {
		info.ProposedPayee = proposed
		r.emit(types.PayeeshipTransferRequested{EventMeta: r.meta(), Keeper: keeper, From: caller, To: proposed})
	}

	return nil
}

func (r *Registry) AcceptPayeeship(ctx context.Context, caller, keeper common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	info, ok := r.ledger.LookupKeeper(keeper)
	if !ok || info.ProposedPayee != caller || caller == types.ZeroAddress {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByProposedPayee, caller)
	}

	previous := info.Payee
	info.Payee = caller
	info.ProposedPayee = types.ZeroAddress

	r.emit(types.PayeeshipTransferred{EventMeta: r.meta(), Keeper: keeper, From: previous, To: caller})

	return nil
}

// WithdrawPayment sends everything keeper earned to 'to'. Only the keeper's
// payee may withdraw, whether or not the keeper is still active.
func (r *Registry) WithdrawPayment(ctx context.Context, caller, keeper, to common.Address) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if to == types.ZeroAddress {
		return types.ErrInvalidRecipient
	}

	info, ok := r.ledger.LookupKeeper(keeper)
	if !ok || info.Payee != caller || caller == types.ZeroAddress {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByPayee, caller)
	}

	amount := info.Clone().Balance

	if err := r.transfer(ctx, to, amount); err != nil {
		return err
	}

	r.ledger.WithdrawKeeper(keeper)
	r.emit(types.PaymentWithdrawn{EventMeta: r.meta(), Keeper: keeper, Amount: amount, To: to, Payee: caller})

	return nil
}
