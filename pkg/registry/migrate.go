package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/transcoder"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func (r *Registry) UpkeepTranscoderVersion() types.UpkeepFormat {
	return Format
}

// MigrateUpkeeps moves upkeeps administered by caller to destination along
// with their balances. The token transfer happens first; if destination
// rejects the upkeeps the transfer is reversed and this registry is left
// untouched.
func (r *Registry) MigrateUpkeeps(ctx context.Context, caller common.Address, ids []types.UpkeepID, destination types.MigratableRegistry) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if destination == nil || destination.Address() == r.address {
		return fmt.Errorf("%w: invalid destination", types.ErrMigrationNotPermitted)
	}

	if !r.peers[destination.Address()].AllowsOutgoing() {
		return fmt.Errorf("%w: outgoing to %s", types.ErrMigrationNotPermitted, destination.Address())
	}

	if !r.conf.HasTranscoder() || r.transcoder == nil {
		return types.ErrTranscoderNotSet
	}

	if len(ids) == 0 {
		return types.ErrArrayHasNoEntries
	}

	var (
		upkeeps = make([]types.Upkeep, 0, len(ids))
		total   = new(big.Int)
		seen    = make(map[types.UpkeepID]struct{}, len(ids))
	)

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: upkeep %s", types.ErrDuplicateEntry, id)
		}

		seen[id] = struct{}{}

		up, err := r.upkeepForAdmin(id, caller)
		if err != nil {
			return err
		}

		upkeeps = append(upkeeps, up.Clone())
		total.Add(total, up.Balance)
	}

	encoded, err := transcoder.Encode(Format, upkeeps)
	if err != nil {
		return err
	}

	encoded, err = r.transcoder.TranscodeUpkeeps(Format, destination.UpkeepTranscoderVersion(), encoded)
	if err != nil {
		return fmt.Errorf("%w: transcoding failed: %s", types.ErrMigrationNotPermitted, err)
	}

	if err := r.transfer(ctx, destination.Address(), total); err != nil {
		return err
	}

	if err := destination.ReceiveUpkeeps(ctx, r.address, encoded); err != nil {
		if total.Sign() > 0 {
			if refundErr := r.token.Transfer(ctx, destination.Address(), r.address, total); refundErr != nil {
				r.logger.Printf("failed to recover %s juels from %s after rejected migration: %s", total, destination.Address(), refundErr)

				return fmt.Errorf("%w: migration rejected (%s) and refund failed: %s", types.ErrTransferFailed, err, refundErr)
			}
		}

		return err
	}

	block := r.clock.BlockNumber()

	for _, up := range upkeeps {
		if _, err := r.ledger.Remove(up.ID); err != nil {
			return err
		}

		prommetrics.RegistryActiveUpkeeps.Dec()

		r.collect(up.ID, block, telemetry.Migrated)
		r.emit(types.UpkeepMigrated{EventMeta: r.meta(), ID: up.ID, RemainingBalance: new(big.Int).Set(up.Balance), Destination: destination.Address()})
	}

	return nil
}

// ReceiveUpkeeps imports upkeeps migrated from a peer that was granted
// incoming permission. The peer must have transferred the balances of the
// upkeeps before calling. It waits at most PerformTimeout for the registry
// to become free.
func (r *Registry) ReceiveUpkeeps(ctx context.Context, from common.Address, encoded []byte) error {
	unlock, err := r.lockWithin(ctx, time.Duration(r.receiveTimeout.Load()))
	if err != nil {
		return err
	}
	defer unlock()

	if !r.peers[from].AllowsIncoming() {
		return fmt.Errorf("%w: incoming from %s", types.ErrMigrationNotPermitted, from)
	}

	upkeeps, err := transcoder.Decode(Format, encoded)
	if err != nil {
		return err
	}

	if len(upkeeps) == 0 {
		return types.ErrArrayHasNoEntries
	}

	total := new(big.Int)
	seen := make(map[types.UpkeepID]struct{}, len(upkeeps))

	for _, up := range upkeeps {
		if _, ok := seen[up.ID]; ok {
			return fmt.Errorf("%w: upkeep %s", types.ErrDuplicateEntry, up.ID)
		}

		seen[up.ID] = struct{}{}

		if _, ok := r.ledger.Upkeep(up.ID); ok {
			return fmt.Errorf("%w: upkeep %s", types.ErrDuplicateEntry, up.ID)
		}

		total.Add(total, up.Balance)
	}

	held := r.token.BalanceOf(r.address)
	owed := new(big.Int).Add(r.ledger.ExpectedBalance(), total)

	if held.Cmp(owed) < 0 {
		return fmt.Errorf("%w: holding %s, owing %s after import", types.ErrInsufficientFunds, held, owed)
	}

	for _, up := range upkeeps {
		up.ProposedAdmin = types.ZeroAddress

		if err := r.ledger.Create(up); err != nil {
			return err
		}

		if !up.Cancelled() {
			prommetrics.RegistryActiveUpkeeps.Inc()
		}

		r.emit(types.UpkeepReceived{EventMeta: r.meta(), ID: up.ID, StartingBalance: new(big.Int).Set(up.Balance), ImportedFrom: from})
	}

	return nil
}
