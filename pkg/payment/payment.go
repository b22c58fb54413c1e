package payment

import (
	"fmt"
	"math/big"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/oracle"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	ppbBase = big.NewInt(1_000_000_000)
	// microLink converts millionths of a LINK to juels.
	microLink = big.NewInt(1_000_000_000_000)
	// TotalLinkSupply is 1e9 LINK in juels.
	TotalLinkSupply = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
)

// Calculator computes keeper payments with integer, truncating arithmetic.
// The order of operations is fixed: any reordering changes results.
type Calculator struct {
	conf config.Config
}

func New(conf config.Config) Calculator {
	return Calculator{conf: conf}
}

// AdjustedGasWei multiplies the feed gas price by the ceiling multiplier.
// When the transaction gas price is known it caps the result.
func (c Calculator) AdjustedGasWei(gasWei, txGasPrice *big.Int) *big.Int {
	adjusted := new(big.Int).Mul(gasWei, big.NewInt(int64(c.conf.GasCeilingMultiplier)))

	if txGasPrice != nil && txGasPrice.Sign() > 0 && txGasPrice.Cmp(adjusted) < 0 {
		return new(big.Int).Set(txGasPrice)
	}

	return adjusted
}

// Payment returns the juels owed for gasUsed at the provided prices:
//
//	weiForGas = adjustedGasWei * (gasUsed + gasOverhead)
//	total     = weiForGas * 1e9 * (1e9 + premiumPPB) / linkEth + flatFeeMicroLink * 1e12
func (c Calculator) Payment(gasUsed uint64, adjustedGasWei, linkEth *big.Int) (*big.Int, error) {
	if linkEth == nil || linkEth.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidUnitPrice, linkEth)
	}

	gas := new(big.Int).SetUint64(gasUsed)
	gas.Add(gas, big.NewInt(int64(c.conf.GasOverhead)))

	weiForGas := new(big.Int).Mul(adjustedGasWei, gas)

	premium := new(big.Int).Add(ppbBase, big.NewInt(int64(c.conf.PaymentPremiumPPB)))

	total := new(big.Int).Mul(weiForGas, ppbBase)
	total.Mul(total, premium)
	total.Quo(total, linkEth)

	flatFee := new(big.Int).Mul(big.NewInt(int64(c.conf.FlatFeeMicroLink)), microLink)
	total.Add(total, flatFee)

	if total.Cmp(TotalLinkSupply) > 0 {
		return nil, fmt.Errorf("%w: %s juels", types.ErrPaymentGreaterThanAllLINK, total)
	}

	return total, nil
}

// MaxPaymentForGas is the payment at gasLimit with the uncapped adjusted gas
// price. It bounds any payment a perform of that limit can produce.
func (c Calculator) MaxPaymentForGas(gasLimit uint64, prices oracle.Prices) (*big.Int, error) {
	return c.Payment(gasLimit, c.AdjustedGasWei(prices.GasWei, nil), prices.LinkEth)
}
