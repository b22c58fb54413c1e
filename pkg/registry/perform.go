package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/oracle"
	"github.com/smartcontractkit/keeper-registry/pkg/payment"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/turns"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// CheckUpkeep simulates a perform by keeper 'from' without changing any
// state. The target's check routine runs outside the registry lock.
func (r *Registry) CheckUpkeep(ctx context.Context, id types.UpkeepID, from common.Address) (types.UpkeepCheck, error) {
	r.mu.RLock()

	conf := r.conf.Clone()
	block := r.clock.BlockNumber()
	keepers := append([]common.Address(nil), r.keepers...)

	record, ok := r.ledger.Upkeep(id)
	if !ok {
		r.mu.RUnlock()

		return types.UpkeepCheck{}, fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	up := record.Clone()
	r.mu.RUnlock()

	if err := preflight(up, from, block, keepers, conf); err != nil {
		return types.UpkeepCheck{}, err
	}

	prices := r.oracle.Prices(ctx, conf)
	calc := payment.New(conf)

	maxPayment, err := r.affordable(up, prices, calc)
	if err != nil {
		return types.UpkeepCheck{}, err
	}

	job, ok := r.targets.Resolve(up.Target)
	if !ok {
		return types.UpkeepCheck{}, fmt.Errorf("%w: %s", types.ErrTargetCheckReverted, types.ErrNotAContract)
	}

	checkCtx, cancel := context.WithTimeout(ctx, conf.PerformTimeout.Value())
	defer cancel()

	result, err := job.CheckUpkeep(checkCtx, up.CheckData, uint64(conf.CheckGasLimit))
	if err != nil {
		return types.UpkeepCheck{}, fmt.Errorf("%w: %s", types.ErrTargetCheckReverted, err)
	}

	if !result.Needed {
		return types.UpkeepCheck{}, fmt.Errorf("%w: %s", types.ErrUpkeepNotNeeded, id)
	}

	r.collect(id, block, telemetry.Checked)

	return types.UpkeepCheck{
		PerformData:    result.PerformData,
		MaxLinkPayment: maxPayment,
		GasLimit:       up.ExecuteGas,
		AdjustedGasWei: calc.AdjustedGasWei(prices.GasWei, nil),
		LinkEth:        prices.LinkEth,
	}, nil
}

// preflight applies the state checks shared by check and perform.
func preflight(up types.Upkeep, from common.Address, block uint64, keepers []common.Address, conf config.Config) error {
	if !up.ActiveAt(block) {
		return fmt.Errorf("%w: %s", types.ErrUpkeepNotActive, up.ID)
	}

	if up.Paused {
		return fmt.Errorf("%w: %s", types.ErrOnlyUnpausedUpkeep, up.ID)
	}

	return turns.Check(up.ID, from, block, up.LastKeeper, keepers, conf.BlockCountPerTurn)
}

// affordable returns the max payment for an upkeep, failing when its
// balance cannot cover it.
func (r *Registry) affordable(up types.Upkeep, prices oracle.Prices, calc payment.Calculator) (*big.Int, error) {
	maxPayment, err := calc.MaxPaymentForGas(uint64(up.ExecuteGas), prices)
	if err != nil {
		return nil, err
	}

	if up.Balance.Cmp(maxPayment) < 0 {
		prommetrics.RegistryInsufficientFunds.Inc()

		return nil, fmt.Errorf("%w: upkeep %s balance %s below max payment %s", types.ErrInsufficientFunds, up.ID, up.Balance, maxPayment)
	}

	return maxPayment, nil
}

type performOutcome struct {
	gasUsed uint64
	err     error
}

// PerformUpkeep runs the target's perform routine on behalf of keeper
// 'from' and pays the keeper for the gas used. A failing target does not
// fail the call: the result reports Success false and the keeper is still
// paid. The registry lock is held throughout; the target runs with a
// context that makes any call back into this registry fail.
func (r *Registry) PerformUpkeep(ctx context.Context, from common.Address, id types.UpkeepID, performData []byte, opts types.PerformOptions) (types.PerformResult, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return types.PerformResult{}, err
	}
	defer unlock()

	if r.paused {
		return types.PerformResult{}, types.ErrRegistryPaused
	}

	conf := r.conf.Clone()
	block := r.clock.BlockNumber()

	up, ok := r.ledger.Upkeep(id)
	if !ok {
		return types.PerformResult{}, fmt.Errorf("%w: %s", types.ErrUpkeepNotFound, id)
	}

	if err := preflight(*up, from, block, r.keepers, conf); err != nil {
		prommetrics.RegistryPerforms.WithLabelValues(prommetrics.OutcomeRejected).Inc()

		return types.PerformResult{}, err
	}

	prices := r.oracle.Prices(ctx, conf)
	calc := payment.New(conf)

	if _, err := r.affordable(*up, prices, calc); err != nil {
		prommetrics.RegistryPerforms.WithLabelValues(prommetrics.OutcomeRejected).Inc()

		return types.PerformResult{}, err
	}

	gasUsed, targetErr := r.runTarget(ctx, *up, performData, conf.PerformTimeout.Value())

	amount, err := calc.Payment(gasUsed, calc.AdjustedGasWei(prices.GasWei, opts.GasPrice), prices.LinkEth)
	if err != nil {
		return types.PerformResult{}, err
	}

	if err := r.ledger.Pay(id, from, amount); err != nil {
		return types.PerformResult{}, err
	}

	up.LastKeeper = from
	up.LastPerformedBlock = block

	success := targetErr == nil
	paid, _ := new(big.Float).SetInt(amount).Float64()
	prommetrics.RegistryPaymentJuels.Add(paid)

	if success {
		prommetrics.RegistryPerforms.WithLabelValues(prommetrics.OutcomeSuccess).Inc()
		r.collect(id, block, telemetry.Performed)
	} else {
		prommetrics.RegistryPerforms.WithLabelValues(prommetrics.OutcomeTargetFailure).Inc()
		r.collect(id, block, telemetry.TargetFailed)
		r.logger.Printf("target of upkeep %s failed during perform by %s: %s", id, from, targetErr)
	}

	r.emit(types.UpkeepPerformed{
		EventMeta:   r.meta(),
		ID:          id,
		Success:     success,
		From:        from,
		Payment:     new(big.Int).Set(amount),
		GasUsed:     gasUsed,
		PerformData: append([]byte(nil), performData...),
	})

	return types.PerformResult{
		Success: success,
		Payment: amount,
		GasUsed: gasUsed,
		Err:     targetErr,
	}, nil
}

// runTarget invokes the perform routine of an upkeep's target with its gas
// limit and a wall time budget. Running out of time or panicking counts as
// using the whole gas limit.
func (r *Registry) runTarget(ctx context.Context, up types.Upkeep, performData []byte, budget time.Duration) (uint64, error) {
	limit := uint64(up.ExecuteGas)

	job, ok := r.targets.Resolve(up.Target)
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrNotAContract, up.Target)
	}

	runCtx, cancel := context.WithTimeout(r.withPerformMarker(ctx), budget)
	defer cancel()

	chResult := make(chan performOutcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				chResult <- performOutcome{gasUsed: limit, err: fmt.Errorf("target panicked: %v", rec)}
			}
		}()

		gasUsed, err := job.PerformUpkeep(runCtx, performData, limit)
		chResult <- performOutcome{gasUsed: gasUsed, err: err}
	}()

	select {
	case outcome := <-chResult:
		if outcome.gasUsed > limit {
			outcome.gasUsed = limit
		}

		return outcome.gasUsed, outcome.err
	case <-runCtx.Done():
		return limit, fmt.Errorf("perform exceeded its time budget: %w", runCtx.Err())
	}
}
