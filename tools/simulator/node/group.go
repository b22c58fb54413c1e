package node

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/smartcontractkit/keeper-registry/pkg/registrar"
	"github.com/smartcontractkit/keeper-registry/pkg/registry"
	"github.com/smartcontractkit/keeper-registry/pkg/service"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate/chain"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate/upkeep"
	simtelemetry "github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

const (
	ProgressBlocks        = "broadcast blocks"
	ProgressRegistrations = "registered upkeeps"
	ProgressEvents        = "applied events"
)

type GroupConfig struct {
	Plan     config.SimulationPlan
	Upkeeps  []upkeep.SimulatedUpkeep
	Progress *simtelemetry.ProgressTelemetry
	// Collector receives registry status lines and may be nil.
	Collector io.Writer
	Logger    *log.Logger
	// GenesisTime is the timestamp of the genesis block. Zero means now.
	GenesisTime time.Time
}

// Group runs a set of keeper nodes against one simulated registry.
type Group struct {
	plan     config.SimulationPlan
	upkeeps  []upkeep.SimulatedUpkeep
	progress *simtelemetry.ProgressTelemetry
	logger   *log.Logger

	env         *Environment
	stats       *Stats
	broadcaster *chain.BlockBroadcaster
	keepers     []*Keeper
	jobs        []*upkeep.Job

	// registered maps generation index to the id the registry assigned
	registered *xsync.Map[int, types.UpkeepID]
}

func NewGroup(conf GroupConfig) (*Group, error) {
	genesisTime := conf.GenesisTime
	if genesisTime.IsZero() {
		genesisTime = time.Now()
	}

	logger := conf.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	env, err := NewEnvironment(conf.Plan, genesisTime, logger, conf.Collector)
	if err != nil {
		return nil, err
	}

	g := &Group{
		plan:       conf.Plan,
		upkeeps:    conf.Upkeeps,
		progress:   conf.Progress,
		logger:     telemetry.WrapLogger(logger, "keeper-group"),
		env:        env,
		stats:      NewStats(),
		jobs:       make([]*upkeep.Job, len(conf.Upkeeps)),
		registered: xsync.NewMap[int, types.UpkeepID](),
	}

	g.broadcaster = chain.NewBlockBroadcaster(
		conf.Plan.Blocks,
		conf.Plan.Keepers.MaxBlockDelay,
		env.Clock,
		logger,
		g.loadFeeds,
		g.loadGasPrices,
		g.loadKeeperSets,
		g.loadRegistrations,
		g.loadFundings,
		g.loadCancellations,
		g.sampleBalances,
		g.trackBlock,
	)

	for i := 0; i < conf.Plan.Keepers.Count; i++ {
		g.keepers = append(g.keepers, NewKeeper(KeeperConfig{
			Address:      KeeperAddress(i),
			Registry:     env.Registry,
			Blocks:       g.broadcaster,
			Clock:        env.Clock,
			Stats:        g.stats,
			Workers:      conf.Plan.Keepers.MaxServiceWorkers,
			MaxQueueSize: conf.Plan.Keepers.MaxQueueSize,
			Logger:       logger,
		}))
	}

	return g, nil
}

func (g *Group) Environment() *Environment {
	return g.env
}

func (g *Group) Stats() *Stats {
	return g.stats
}

func (g *Group) Keepers() []*Keeper {
	return g.keepers
}

// Registered returns the registry id of a generated upkeep.
func (g *Group) Registered(index int) (types.UpkeepID, bool) {
	return g.registered.Load(index)
}

// Job returns the target deployed for a generated upkeep.
func (g *Group) Job(index int) *upkeep.Job {
	if index < 0 || index >= len(g.jobs) {
		return nil
	}

	return g.jobs[index]
}

// Upkeeps are the generated upkeeps in generation order.
func (g *Group) Upkeeps() []upkeep.SimulatedUpkeep {
	return g.upkeeps
}

// RegisterProgress adds the trackers the group increments.
func (g *Group) RegisterProgress() error {
	if g.progress == nil {
		return nil
	}

	events := len(g.plan.Cancels) + len(g.plan.Fundings) + len(g.plan.KeeperSet) + len(g.plan.GasPrices)

	totals := []struct {
		namespace string
		total     int64
	}{
		{namespace: ProgressBlocks, total: int64(g.plan.Blocks.End()-g.plan.Blocks.Genesis) + 1},
		{namespace: ProgressRegistrations, total: int64(len(g.upkeeps))},
		{namespace: ProgressEvents, total: int64(events)},
	}

	for _, tracker := range totals {
		if err := g.progress.Register(tracker.namespace, tracker.total); err != nil {
			return err
		}
	}

	return nil
}

// Run installs the full keeper set, runs every node until the last block
// was broadcast and finally withdraws every keeper's earnings to its payee.
func (g *Group) Run(ctx context.Context) error {
	if len(g.keepers) == 0 {
		return fmt.Errorf("%w: simulation needs at least one keeper", types.ErrArrayHasNoEntries)
	}

	if err := g.setKeepers(ctx, len(g.keepers)); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recoverers := make([]*service.Recoverer, 0, len(g.keepers))

	for _, keeper := range g.keepers {
		recoverer := service.NewRecoverer(keeper, g.logger, service.WithRestartWait(time.Second))
		if err := recoverer.Start(runCtx); err != nil {
			return err
		}

		recoverers = append(recoverers, recoverer)
	}

	done := g.broadcaster.Start(runCtx)

	select {
	case <-done:
	case <-ctx.Done():
		g.broadcaster.Stop()
		<-done
	}

	for _, recoverer := range recoverers {
		if err := recoverer.Close(); err != nil {
			g.logger.Printf("keeper shutdown: %s", err)
		}
	}

	cancel()

	g.settle(context.Background())

	return ctx.Err()
}

func (g *Group) setKeepers(ctx context.Context, count int) error {
	if count > len(g.keepers) {
		count = len(g.keepers)
	}

	keepers := make([]common.Address, count)
	payees := make([]common.Address, count)

	for i := 0; i < count; i++ {
		keepers[i] = KeeperAddress(i)
		payees[i] = PayeeAddress(i)
	}

	return g.env.Registry.SetKeepers(ctx, OwnerAddress, keepers, payees)
}

// settle pays out every keeper that earned anything during the run.
func (g *Group) settle(ctx context.Context) {
	for i := range g.keepers {
		info := g.env.Registry.GetKeeperInfo(KeeperAddress(i))
		if info.Balance.Sign() == 0 {
			continue
		}

		payee := PayeeAddress(i)

		if err := g.env.Registry.WithdrawPayment(ctx, payee, KeeperAddress(i), payee); err != nil {
			g.logger.Printf("withdraw for keeper %s failed: %s", KeeperAddress(i), err)
		}
	}
}

func (g *Group) loadFeeds(ctx context.Context, _ uint64) {
	g.env.RefreshFeeds(ctx)
}

func (g *Group) loadGasPrices(_ context.Context, block uint64) {
	for _, event := range g.plan.GasPrices {
		if event.TriggerBlock != block {
			continue
		}

		g.env.SetGasPrice(event.GasPriceWei)
		g.logger.Printf("gas price set to %s wei at block %d", event.GasPriceWei, block)
		g.increment(ProgressEvents)
	}
}

func (g *Group) loadKeeperSets(ctx context.Context, block uint64) {
	for _, event := range g.plan.KeeperSet {
		if event.TriggerBlock != block {
			continue
		}

		if err := g.setKeepers(ctx, event.Count); err != nil {
			g.logger.Printf("set keepers at block %d failed: %s", block, err)
		}

		g.increment(ProgressEvents)
	}
}

func (g *Group) loadRegistrations(ctx context.Context, block uint64) {
	for _, up := range g.upkeeps {
		if up.CreateInBlock != block {
			continue
		}

		if err := g.register(ctx, up); err != nil {
			g.logger.Printf("registration of upkeep %d failed: %s", up.Index, err)

			continue
		}

		g.increment(ProgressRegistrations)
	}
}

// register sends the registration through the registrar and approves it as
// the owner when the registrar held it back.
func (g *Group) register(ctx context.Context, up upkeep.SimulatedUpkeep) error {
	job := upkeep.NewJob(up, g.env.Clock)
	g.env.Targets.Deploy(up.Target, job)
	g.jobs[up.Index] = job

	funding := up.Funding
	if funding == nil {
		funding = new(big.Int)
	}

	req := registrar.Request{
		Name:     up.Name,
		Target:   up.Target,
		GasLimit: up.GasLimit,
		Admin:    RequesterAddress,
		Amount:   funding,
		Sender:   RequesterAddress,
	}

	data, err := registrar.EncodeRegister(req)
	if err != nil {
		return err
	}

	hash, err := req.Params().Hash()
	if err != nil {
		return err
	}

	g.env.Token.Mint(RequesterAddress, funding)

	state, _ := g.env.Registry.GetState()
	id := registry.UpkeepIDFor(RegistryAddress, state.Nonce)

	if err := g.env.Token.TransferAndCall(ctx, RequesterAddress, RegistrarAddress, funding, data); err != nil {
		return err
	}

	if admin, _ := g.env.Registrar.GetPendingRequest(hash); admin != types.ZeroAddress {
		state, _ = g.env.Registry.GetState()
		id = registry.UpkeepIDFor(RegistryAddress, state.Nonce)

		if err := g.env.Registrar.Approve(ctx, OwnerAddress, req.Params(), hash); err != nil {
			return err
		}
	}

	g.registered.Store(up.Index, id)

	return nil
}

func (g *Group) loadFundings(ctx context.Context, block uint64) {
	for _, event := range g.plan.Fundings {
		if event.TriggerBlock != block {
			continue
		}

		for _, index := range event.Upkeeps {
			id, ok := g.registered.Load(index)
			if !ok {
				continue
			}

			g.env.Token.Mint(RequesterAddress, event.Amount)
			g.env.Token.Approve(RequesterAddress, RegistryAddress, event.Amount)

			if err := g.env.Registry.AddFunds(ctx, RequesterAddress, id, event.Amount); err != nil {
				g.logger.Printf("funding upkeep %s at block %d failed: %s", id, block, err)
			}
		}

		g.increment(ProgressEvents)
	}
}

func (g *Group) loadCancellations(ctx context.Context, block uint64) {
	for _, event := range g.plan.Cancels {
		if event.TriggerBlock != block {
			continue
		}

		for _, index := range event.Upkeeps {
			id, ok := g.registered.Load(index)
			if !ok {
				continue
			}

			if err := g.env.Registry.CancelUpkeep(ctx, OwnerAddress, id); err != nil {
				g.logger.Printf("cancel of upkeep %s at block %d failed: %s", id, block, err)
			}
		}

		g.increment(ProgressEvents)
	}
}

func (g *Group) sampleBalances(_ context.Context, block uint64) {
	for _, id := range g.registeredIDs() {
		g.stats.SampleBalance(id, block, g.env.Registry.GetUpkeep(id).Balance)
	}
}

func (g *Group) trackBlock(_ context.Context, _ uint64) {
	g.increment(ProgressBlocks)
}

func (g *Group) registeredIDs() []types.UpkeepID {
	ids := make([]types.UpkeepID, 0, g.registered.Size())

	g.registered.Range(func(_ int, id types.UpkeepID) bool {
		ids = append(ids, id)

		return true
	})

	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	return ids
}

func (g *Group) increment(namespace string) {
	if g.progress != nil {
		g.progress.Increment(namespace, 1)
	}
}
