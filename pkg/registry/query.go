package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/payment"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// GetUpkeep returns a copy of an upkeep. Unknown ids return a zeroed
// record.
func (r *Registry) GetUpkeep(id types.UpkeepID) types.Upkeep {
	r.mu.RLock()
	defer r.mu.RUnlock()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return types.Upkeep{}.Clone()
	}

	return up.Clone()
}

// GetKeeperInfo returns the payment record of a keeper. Unknown keepers
// return a zeroed record.
func (r *Registry) GetKeeperInfo(keeper common.Address) types.KeeperInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.ledger.LookupKeeper(keeper)
	if !ok {
		return types.KeeperInfo{}.Clone()
	}

	return info.Clone()
}

// GetState returns the aggregate registry state and a copy of its
// configuration.
func (r *Registry) GetState() (types.State, config.Config) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return types.State{
		Owner:               r.owner,
		Paused:              r.paused,
		Nonce:               r.nonce,
		NumUpkeeps:          r.ledger.Len(),
		ExpectedLinkBalance: r.ledger.ExpectedBalance(),
		OwnerLinkBalance:    r.ledger.OwnerBalance(),
		Keepers:             append([]common.Address(nil), r.keepers...),
		BlockNumber:         r.clock.BlockNumber(),
	}, r.conf.Clone()
}

// GetActiveUpkeepIDs pages through the ids of upkeeps that were never
// cancelled, in ascending order. A zero count returns everything from
// offset on.
func (r *Registry) GetActiveUpkeepIDs(offset, count int) []types.UpkeepID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]types.UpkeepID, 0, r.ledger.Len())

	for _, id := range r.ledger.IDs() {
		if up, _ := r.ledger.Upkeep(id); !up.Cancelled() {
			active = append(active, id)
		}
	}

	if offset < 0 || offset >= len(active) {
		return []types.UpkeepID{}
	}

	end := len(active)
	if count > 0 && offset+count < end {
		end = offset + count
	}

	return append([]types.UpkeepID(nil), active[offset:end]...)
}

// GetMinBalanceForUpkeep is the balance an upkeep needs for its next
// perform at current prices. Unknown ids need nothing.
func (r *Registry) GetMinBalanceForUpkeep(ctx context.Context, id types.UpkeepID) (*big.Int, error) {
	r.mu.RLock()
	conf := r.conf.Clone()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		r.mu.RUnlock()

		return new(big.Int), nil
	}

	gasLimit := uint64(up.ExecuteGas)
	r.mu.RUnlock()

	return payment.New(conf).MaxPaymentForGas(gasLimit, r.oracle.Prices(ctx, conf))
}

// GetMaxPaymentForGas is the most a perform with gasLimit can cost at
// current prices.
func (r *Registry) GetMaxPaymentForGas(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	conf := r.GetConfig()

	return payment.New(conf).MaxPaymentForGas(gasLimit, r.oracle.Prices(ctx, conf))
}

func (r *Registry) GetPeerRegistryMigrationPermission(peer common.Address) types.MigrationPermission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.peers[peer]
}

func (r *Registry) GetConfig() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.conf.Clone()
}

func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.owner
}
