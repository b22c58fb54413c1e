package oracle

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Prices is a pair of feed readings taken together.
type Prices struct {
	// GasWei is the fast gas price in wei.
	GasWei *big.Int
	// LinkEth is the price of one LINK in wei.
	LinkEth   *big.Int
	GasStale  bool
	LinkStale bool
}

// Oracle reads the gas and LINK/ETH feeds and substitutes the configured
// fallback for any reading that is stale, non-positive or unavailable. It
// never returns an error.
type Oracle struct {
	gasFeed  types.PriceFeed
	linkFeed types.PriceFeed
	clock    types.BlockSource
	logger   *log.Logger
}

func New(gasFeed, linkFeed types.PriceFeed, clock types.BlockSource, logger *log.Logger) *Oracle {
	return &Oracle{
		gasFeed:  gasFeed,
		linkFeed: linkFeed,
		clock:    clock,
		logger:   log.New(logger.Writer(), "[price-oracle] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// CurrentGasPrice returns the gas price in wei and whether the fallback was
// used.
func (o *Oracle) CurrentGasPrice(ctx context.Context, conf config.Config) (*big.Int, bool) {
	price, stale := o.read(ctx, o.gasFeed, conf.StalenessSeconds, conf.FallbackGasPrice)
	if stale {
		prommetrics.RegistryStaleFeed.WithLabelValues(prommetrics.FeedGas).Inc()
	}

	return price, stale
}

// CurrentUnitPrice returns the LINK/ETH price and whether the fallback was
// used.
func (o *Oracle) CurrentUnitPrice(ctx context.Context, conf config.Config) (*big.Int, bool) {
	price, stale := o.read(ctx, o.linkFeed, conf.StalenessSeconds, conf.FallbackLinkPrice)
	if stale {
		prommetrics.RegistryStaleFeed.WithLabelValues(prommetrics.FeedLink).Inc()
	}

	return price, stale
}

func (o *Oracle) Prices(ctx context.Context, conf config.Config) Prices {
	gas, gasStale := o.CurrentGasPrice(ctx, conf)
	link, linkStale := o.CurrentUnitPrice(ctx, conf)

	return Prices{
		GasWei:    gas,
		LinkEth:   link,
		GasStale:  gasStale,
		LinkStale: linkStale,
	}
}

func (o *Oracle) read(ctx context.Context, feed types.PriceFeed, staleness uint32, fallback *big.Int) (*big.Int, bool) {
	if feed == nil {
		return copyOrZero(fallback), true
	}

	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		o.logger.Printf("feed read failed, using fallback: %s", err)

		return copyOrZero(fallback), true
	}

	if IsStale(round, o.clock.Timestamp(), staleness) {
		return copyOrZero(fallback), true
	}

	return new(big.Int).Set(round.Answer), false
}

// IsStale reports whether a round is too old or carries a non-positive
// answer. A zero staleness disables the age check.
func IsStale(round types.RoundData, now time.Time, staleness uint32) bool {
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return true
	}

	if staleness == 0 {
		return false
	}

	return now.Sub(round.UpdatedAt) > time.Duration(staleness)*time.Second
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(v)
}
