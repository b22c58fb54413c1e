package registry

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/payment"
	"github.com/smartcontractkit/keeper-registry/pkg/targets"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func TestPerformUpkeep_PaysKeeper(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	job := &targets.AlwaysEligible{PerformGas: 50_000}
	id := h.register(job)
	h.fund(h.reg, id, oneLink)

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, []byte("work"), types.PerformOptions{})
	require.NoError(t, err)

	expected := h.expectedPayment(50_000)

	assert.True(t, result.Success)
	assert.NoError(t, result.Err)
	assert.Equal(t, uint64(50_000), result.GasUsed)
	assert.Equal(t, expected.String(), result.Payment.String())
	assert.Equal(t, int64(1), job.Performs())

	up := h.reg.GetUpkeep(id)
	assert.Equal(t, new(big.Int).Sub(oneLink, expected).String(), up.Balance.String())
	assert.Equal(t, expected.String(), up.AmountSpent.String())
	assert.Equal(t, keeper1, up.LastKeeper)
	assert.Equal(t, uint64(100), up.LastPerformedBlock)

	info := h.reg.GetKeeperInfo(keeper1)
	assert.Equal(t, expected.String(), info.Balance.String())
	assert.Equal(t, payee1, info.Payee)
	assert.True(t, info.Active)

	h.assertSolvent(h.reg)
}

func TestPerformUpkeep_TransactionGasPriceCapsPayment(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.GasCeilingMultiplier = 3
	})
	h.setKeepers(keeper1)

	id := h.register(&targets.AlwaysEligible{PerformGas: 40_000})
	h.fund(h.reg, id, oneLink)

	txGasPrice := big.NewInt(2_000_000_000)

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{GasPrice: txGasPrice})
	require.NoError(t, err)

	expected, err := payment.New(h.reg.GetConfig()).Payment(40_000, txGasPrice, linkEth)
	require.NoError(t, err)

	assert.Equal(t, expected.String(), result.Payment.String())
}

func TestPerformUpkeep_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	job := &targets.AlwaysEligible{PerformGas: 1}
	id := h.register(job)

	maxPayment, err := h.reg.GetMaxPaymentForGas(h.ctx, uint64(executeGas))
	require.NoError(t, err)

	h.fund(h.reg, id, new(big.Int).Sub(maxPayment, big.NewInt(1)))

	_, err = h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, types.KindInsufficientFunds, types.KindOf(err))

	_, err = h.reg.CheckUpkeep(h.ctx, id, keeper1)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	assert.Equal(t, int64(0), job.Performs(), "target must not run when the upkeep cannot pay")
	assert.Equal(t, int64(0), h.reg.GetKeeperInfo(keeper1).Balance.Int64())

	minBalance, err := h.reg.GetMinBalanceForUpkeep(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, maxPayment.String(), minBalance.String())

	h.fund(h.reg, id, big.NewInt(1))

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	h.assertSolvent(h.reg)
}

func TestPerformUpkeep_KeepersTakeTurns(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1, keeper2, keeper3)

	id := h.register(&targets.AlwaysEligible{PerformGas: 10_000})
	h.fund(h.reg, id, oneLink)

	_, err := h.reg.PerformUpkeep(h.ctx, stranger, id, nil, types.PerformOptions{})
	assert.ErrorIs(t, err, types.ErrOnlyActiveKeepers)
	assert.Equal(t, types.KindUnauthorized, types.KindOf(err))

	h.advanceToTurn(id, keeper1)

	for _, other := range []common.Address{keeper2, keeper3} {
		_, err = h.reg.PerformUpkeep(h.ctx, other, id, nil, types.PerformOptions{})
		assert.ErrorIs(t, err, types.ErrKeepersMustTakeTurns)
	}

	_, err = h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	require.NoError(t, err)

	// the same keeper can never follow itself
	_, err = h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	assert.ErrorIs(t, err, types.ErrKeepersMustTakeTurns)
	assert.Equal(t, types.KindStateConflict, types.KindOf(err))

	h.advanceToTurn(id, keeper2)

	_, err = h.reg.PerformUpkeep(h.ctx, keeper2, id, nil, types.PerformOptions{})
	require.NoError(t, err)

	h.advanceToTurn(id, keeper1)

	_, err = h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	require.NoError(t, err)

	assert.Equal(t, keeper1, h.reg.GetUpkeep(id).LastKeeper)
	h.assertSolvent(h.reg)
}

func TestPerformUpkeep_PausedUpkeep(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	id := h.register(&targets.AlwaysEligible{PerformGas: 10_000})
	h.fund(h.reg, id, oneLink)

	require.NoError(t, h.reg.PauseUpkeep(h.ctx, admin, id))

	_, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	assert.ErrorIs(t, err, types.ErrOnlyUnpausedUpkeep)

	_, err = h.reg.CheckUpkeep(h.ctx, id, keeper1)
	assert.ErrorIs(t, err, types.ErrOnlyUnpausedUpkeep)

	_, err = h.reg.PerformUpkeep(h.ctx, keeper1, 404, nil, types.PerformOptions{})
	assert.ErrorIs(t, err, types.ErrUpkeepNotFound)
}

func TestPerformUpkeep_TargetFailureStillPays(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	job := &targets.Reverting{OnPerform: true, Reason: "boom", PerformGas: 30_000}
	id := h.register(job)
	h.fund(h.reg, id, oneLink)

	subID, events := h.reg.Subscribe()
	defer h.reg.Unsubscribe(subID)

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, []byte{0xaa}, types.PerformOptions{})
	require.NoError(t, err)

	expected := h.expectedPayment(30_000)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, targets.ErrReverted)
	assert.Equal(t, expected.String(), result.Payment.String())
	assert.Equal(t, expected.String(), h.reg.GetKeeperInfo(keeper1).Balance.String())

	evt, ok := (<-events).(types.UpkeepPerformed)
	require.True(t, ok)
	assert.False(t, evt.Success)
	assert.Equal(t, keeper1, evt.From)
	assert.Equal(t, []byte{0xaa}, evt.PerformData)
	assert.Equal(t, uint64(30_000), evt.GasUsed)

	h.assertSolvent(h.reg)
}

func TestPerformUpkeep_TimeBudget(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	id := h.register(&targets.Sleeper{Delay: 10 * time.Second})
	h.fund(h.reg, id, oneLink)

	start := time.Now()

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, uint64(executeGas), result.GasUsed)
	assert.Equal(t, h.expectedPayment(uint64(executeGas)).String(), result.Payment.String())

	h.assertSolvent(h.reg)
}

func TestPerformUpkeep_OutOfGas(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	id := h.register(&targets.GasBurner{Fixed: uint64(executeGas) + 1})
	h.fund(h.reg, id, oneLink)

	result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, targets.ErrOutOfGas)
	assert.Equal(t, uint64(executeGas), result.GasUsed)
}

func TestPerformUpkeep_RejectsReentrantCalls(t *testing.T) {
	t.Run("funding from inside perform", func(t *testing.T) {
		h := newHarness(t)
		h.setKeepers(keeper1)

		job := &targets.SelfFunding{Registry: h.reg, Self: admin, Amount: big.NewInt(5)}
		id := h.register(job)
		job.ID = id

		h.fund(h.reg, id, oneLink)
		h.token.Mint(admin, big.NewInt(5))
		h.token.Approve(admin, registryAddr, big.NewInt(5))

		result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.ErrorIs(t, job.LastErr(), types.ErrReentrantCall)
		assert.Equal(t, int64(5), h.token.BalanceOf(admin).Int64())

		h.assertSolvent(h.reg)
	})

	t.Run("cancelling from inside perform", func(t *testing.T) {
		h := newHarness(t)
		h.setKeepers(keeper1)

		job := &targets.SelfCancelling{Registry: h.reg, Admin: admin}
		id := h.register(job)
		job.ID = id

		h.fund(h.reg, id, oneLink)

		result, err := h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.ErrorIs(t, job.LastErr(), types.ErrReentrantCall)
		assert.False(t, h.reg.GetUpkeep(id).Cancelled())
	})
}

func TestCheckUpkeep(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	eligible := h.register(&targets.AlwaysEligible{PerformData: []byte("go")})
	never := h.register(&targets.Never{})
	reverting := h.register(&targets.Reverting{OnCheck: true, Reason: "nope"})

	for _, id := range []types.UpkeepID{eligible, never, reverting} {
		h.fund(h.reg, id, oneLink)
	}

	check, err := h.reg.CheckUpkeep(h.ctx, eligible, keeper1)
	require.NoError(t, err)

	maxPayment, err := h.reg.GetMaxPaymentForGas(h.ctx, uint64(executeGas))
	require.NoError(t, err)

	assert.Equal(t, []byte("go"), check.PerformData)
	assert.Equal(t, executeGas, check.GasLimit)
	assert.Equal(t, maxPayment.String(), check.MaxLinkPayment.String())
	assert.Equal(t, gwei.String(), check.AdjustedGasWei.String())
	assert.Equal(t, linkEth.String(), check.LinkEth.String())

	_, err = h.reg.CheckUpkeep(h.ctx, never, keeper1)
	assert.ErrorIs(t, err, types.ErrUpkeepNotNeeded)
	assert.Equal(t, types.KindTargetFailure, types.KindOf(err))

	_, err = h.reg.CheckUpkeep(h.ctx, reverting, keeper1)
	assert.ErrorIs(t, err, types.ErrTargetCheckReverted)

	_, err = h.reg.CheckUpkeep(h.ctx, eligible, stranger)
	assert.ErrorIs(t, err, types.ErrOnlyActiveKeepers)

	_, err = h.reg.CheckUpkeep(h.ctx, 1234, keeper1)
	assert.ErrorIs(t, err, types.ErrUpkeepNotFound)

	// checks never change state
	assert.Equal(t, oneLink.String(), h.reg.GetUpkeep(eligible).Balance.String())
	assert.Equal(t, types.ZeroAddress, h.reg.GetUpkeep(eligible).LastKeeper)
}

func TestPerformUpkeep_ConcurrentOperationsStaySolvent(t *testing.T) {
	h := newHarness(t)
	h.setKeepers(keeper1)

	ids := make([]types.UpkeepID, 8)
	for i := range ids {
		ids[i] = h.register(&targets.AlwaysEligible{PerformGas: 20_000})
		h.fund(h.reg, ids[i], oneLink)
	}

	h.token.Mint(admin, new(big.Int).Mul(oneLink, big.NewInt(10)))
	h.token.Approve(admin, registryAddr, new(big.Int).Mul(oneLink, big.NewInt(10)))

	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(2)

		go func(id types.UpkeepID) {
			defer wg.Done()

			for i := 0; i < 5; i++ {
				_, _ = h.reg.PerformUpkeep(h.ctx, keeper1, id, nil, types.PerformOptions{})
				_, _ = h.reg.CheckUpkeep(h.ctx, id, keeper1)
			}
		}(id)

		go func(id types.UpkeepID) {
			defer wg.Done()

			for i := 0; i < 5; i++ {
				_ = h.reg.AddFunds(h.ctx, admin, id, big.NewInt(1_000))
				_ = h.reg.GetUpkeep(id)
			}
		}(id)
	}

	wg.Wait()

	h.assertSolvent(h.reg)

	spent := new(big.Int)
	for _, id := range ids {
		spent.Add(spent, h.reg.GetUpkeep(id).AmountSpent)
	}

	assert.Equal(t, spent.String(), h.reg.GetKeeperInfo(keeper1).Balance.String())
}
