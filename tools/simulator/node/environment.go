package node

import (
	"context"
	"io"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/chain"
	"github.com/smartcontractkit/keeper-registry/pkg/link"
	"github.com/smartcontractkit/keeper-registry/pkg/oracle"
	"github.com/smartcontractkit/keeper-registry/pkg/registrar"
	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/targets"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

var (
	OwnerAddress     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	TokenAddress     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	RegistryAddress  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	RegistrarAddress = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	// RequesterAddress registers, funds and administers every simulated
	// upkeep.
	RequesterAddress = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	keeperBase = big.NewInt(0x1000)
	payeeBase  = big.NewInt(0x2000)
)

func KeeperAddress(idx int) common.Address {
	return common.BigToAddress(new(big.Int).Add(keeperBase, big.NewInt(int64(idx))))
}

func PayeeAddress(idx int) common.Address {
	return common.BigToAddress(new(big.Int).Add(payeeBase, big.NewInt(int64(idx))))
}

// Environment is the simulated chain: a clock, the LINK token, price feeds,
// deployed targets, the registry and its registrar.
type Environment struct {
	Clock     *chain.Clock
	Token     *link.Token
	GasFeed   *oracle.Feed
	LinkFeed  *oracle.Feed
	Targets   *targets.Directory
	Registry  *registry.Registry
	Registrar *registrar.Registrar
}

// NewEnvironment deploys a registry and registrar configured by the plan.
// Collector receives the registry status lines and may be nil.
func NewEnvironment(plan config.SimulationPlan, genesisTime time.Time, logger *log.Logger, collector io.Writer) (*Environment, error) {
	env := &Environment{
		Clock:    chain.NewClock(plan.Blocks.Genesis, genesisTime),
		Token:    link.NewToken(TokenAddress),
		GasFeed:  oracle.NewFeed(plan.Feeds.GasPriceWei, genesisTime),
		LinkFeed: oracle.NewFeed(plan.Feeds.LinkEthWei, genesisTime),
		Targets:  targets.NewDirectory(),
	}

	regConf := plan.Registry.Clone()
	regConf.Registrar = RegistrarAddress

	reg, err := registry.New(registry.Options{
		Address:   RegistryAddress,
		Owner:     OwnerAddress,
		Token:     env.Token,
		Oracle:    oracle.New(env.GasFeed, env.LinkFeed, env.Clock, logger),
		Targets:   env.Targets,
		Clock:     env.Clock,
		Config:    regConf,
		Logger:    logger,
		Collector: collector,
	})
	if err != nil {
		return nil, err
	}

	gateway, err := registrar.New(registrar.Options{
		Address:  RegistrarAddress,
		Owner:    OwnerAddress,
		Token:    env.Token,
		Registry: reg,
		Clock:    env.Clock,
		Config:   plan.Registrar,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	env.Token.RegisterReceiver(RegistryAddress, reg)
	env.Token.RegisterReceiver(RegistrarAddress, gateway)

	env.Registry = reg
	env.Registrar = gateway

	return env, nil
}

// RefreshFeeds republishes the current feed answers at the current block
// time, the way an oracle heartbeat keeps a feed from going stale.
func (e *Environment) RefreshFeeds(ctx context.Context) {
	now := e.Clock.Timestamp()

	for _, feed := range []*oracle.Feed{e.GasFeed, e.LinkFeed} {
		round, err := feed.LatestRoundData(ctx)
		if err != nil {
			continue
		}

		feed.Update(round.Answer, now)
	}
}

// SetGasPrice publishes a new fast gas answer.
func (e *Environment) SetGasPrice(gasPrice *big.Int) {
	e.GasFeed.Update(gasPrice, e.Clock.Timestamp())
}
