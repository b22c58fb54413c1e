package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var keeper1 = common.HexToAddress("0x1001")

func newUpkeep(id types.UpkeepID) types.Upkeep {
	return types.Upkeep{
		ID:                  id,
		ExecuteGas:          100_000,
		MaxValidBlocknumber: types.UnlimitedBlock,
	}
}

func assertConserved(t *testing.T, l *Ledger) {
	t.Helper()

	assert.Equal(t, 0, l.Total().Cmp(l.ExpectedBalance()), "expected balance %s != sum of accounts %s", l.ExpectedBalance(), l.Total())
}

func TestLedger_CreateAndFund(t *testing.T) {
	l := New()

	require.NoError(t, l.Create(newUpkeep(1)))
	assert.ErrorIs(t, l.Create(newUpkeep(1)), types.ErrDuplicateEntry)

	require.NoError(t, l.AddFunds(1, big.NewInt(100)))
	assert.ErrorIs(t, l.AddFunds(2, big.NewInt(1)), types.ErrUpkeepNotFound)

	up, ok := l.Upkeep(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), up.Balance.Int64())
	assert.Equal(t, int64(100), l.ExpectedBalance().Int64())

	up.MaxValidBlocknumber = 10
	assert.ErrorIs(t, l.AddFunds(1, big.NewInt(1)), types.ErrUpkeepNotActive)

	assertConserved(t, l)
}

func TestLedger_Pay(t *testing.T) {
	l := New()
	require.NoError(t, l.Create(newUpkeep(1)))
	require.NoError(t, l.AddFunds(1, big.NewInt(100)))

	require.NoError(t, l.Pay(1, keeper1, big.NewInt(30)))

	up, _ := l.Upkeep(1)
	assert.Equal(t, int64(70), up.Balance.Int64())
	assert.Equal(t, int64(30), up.AmountSpent.Int64())
	assert.Equal(t, int64(30), l.Keeper(keeper1).Balance.Int64())

	err := l.Pay(1, keeper1, big.NewInt(71))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	// a rejected payment changes nothing
	assert.Equal(t, int64(70), up.Balance.Int64())
	assert.Equal(t, int64(30), l.Keeper(keeper1).Balance.Int64())

	assertConserved(t, l)
}

func TestLedger_SweepCancelled(t *testing.T) {
	for _, tc := range []struct {
		Name            string
		Funded          int64
		Spent           int64
		MinSpend        *big.Int
		ExpectedToAdmin int64
		ExpectedFee     int64
	}{
		{Name: "spent below minimum", Funded: 100, Spent: 10, MinSpend: big.NewInt(50), ExpectedToAdmin: 50, ExpectedFee: 40},
		{Name: "fee capped by balance", Funded: 100, Spent: 90, MinSpend: big.NewInt(500), ExpectedToAdmin: 0, ExpectedFee: 10},
		{Name: "spent above minimum", Funded: 100, Spent: 60, MinSpend: big.NewInt(50), ExpectedToAdmin: 40, ExpectedFee: 0},
		{Name: "no minimum", Funded: 100, Spent: 0, MinSpend: big.NewInt(0), ExpectedToAdmin: 100, ExpectedFee: 0},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			l := New()
			require.NoError(t, l.Create(newUpkeep(1)))
			require.NoError(t, l.AddFunds(1, big.NewInt(tc.Funded)))

			if tc.Spent > 0 {
				require.NoError(t, l.Pay(1, keeper1, big.NewInt(tc.Spent)))
			}

			toAdmin, fee, err := l.SweepCancelled(1, tc.MinSpend)
			require.NoError(t, err)

			assert.Equal(t, tc.ExpectedToAdmin, toAdmin.Int64())
			assert.Equal(t, tc.ExpectedFee, fee.Int64())
			assert.Equal(t, tc.ExpectedFee, l.OwnerBalance().Int64())

			up, _ := l.Upkeep(1)
			assert.Equal(t, int64(0), up.Balance.Int64())

			assertConserved(t, l)
		})
	}
}

func TestLedger_WithdrawKeeperAndOwner(t *testing.T) {
	l := New()
	require.NoError(t, l.Create(newUpkeep(1)))
	require.NoError(t, l.AddFunds(1, big.NewInt(100)))
	require.NoError(t, l.Pay(1, keeper1, big.NewInt(25)))

	_, _, err := l.SweepCancelled(1, big.NewInt(50))
	require.NoError(t, err)

	assert.Equal(t, int64(25), l.WithdrawKeeper(keeper1).Int64())
	assert.Equal(t, int64(0), l.WithdrawKeeper(keeper1).Int64())
	assert.Equal(t, int64(0), l.WithdrawKeeper(common.HexToAddress("0x99")).Int64())

	assert.Equal(t, int64(25), l.WithdrawOwner().Int64())
	assert.Equal(t, int64(0), l.ExpectedBalance().Int64())

	assertConserved(t, l)
}

func TestLedger_RemoveAndCreate(t *testing.T) {
	l := New()
	require.NoError(t, l.Create(newUpkeep(3)))
	require.NoError(t, l.Create(newUpkeep(1)))
	require.NoError(t, l.AddFunds(3, big.NewInt(7)))

	assert.Equal(t, []types.UpkeepID{1, 3}, l.IDs())

	removed, err := l.Remove(3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed.Balance.Int64())
	assert.Equal(t, int64(0), l.ExpectedBalance().Int64())
	assert.Equal(t, 1, l.Len())

	_, err = l.Remove(3)
	assert.ErrorIs(t, err, types.ErrUpkeepNotFound)

	// restoring brings the balance back
	require.NoError(t, l.Create(removed))
	assert.Equal(t, int64(7), l.ExpectedBalance().Int64())

	assertConserved(t, l)
}
