package config

import (
	"math/big"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	regconfig "github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/registrar"
)

var (
	ErrEncoding      = errors.New("encoding/decoding failure")
	ErrInvalidPlan   = errors.New("invalid simulation plan")
	DefaultGasPrice  = big.NewInt(1_000_000_000)
	DefaultLinkPrice = big.NewInt(5_000_000_000_000_000)
)

// Duration is a Go duration string in JSON.
type Duration = regconfig.Duration

// SimulationPlan is a collection of configurations with which to run a
// simulation.
type SimulationPlan struct {
	Keepers   Keepers               `json:"keepers"`
	Blocks    Blocks                `json:"blocks"`
	Feeds     Feeds                 `json:"feeds"`
	Registry  regconfig.Config      `json:"-"`
	Registrar registrar.Config      `json:"registrar"`
	Generate  []GenerateUpkeepEvent `json:"-"`
	Cancels   []CancelUpkeepEvent   `json:"-"`
	Fundings  []AddFundsEvent       `json:"-"`
	KeeperSet []SetKeepersEvent     `json:"-"`
	GasPrices []GasPriceEvent       `json:"-"`
}

// Keepers is a configuration that applies to the simulated keeper nodes.
type Keepers struct {
	// Count defines the total number of keeper nodes in the simulation. All
	// of them are active from genesis unless a setKeepers event says
	// otherwise.
	Count int `json:"totalNodeCount"`
	// MaxServiceWorkers is the number of go-routines each node may use for
	// parallel check calls.
	MaxServiceWorkers int `json:"maxNodeServiceWorkers"`
	// MaxQueueSize limits the queue size for pending check calls.
	MaxQueueSize int `json:"maxNodeServiceQueueSize"`
	// MaxBlockDelay is the maximum delay in ms before a node sees a block.
	MaxBlockDelay int `json:"maxBlockDelay"`
}

// Blocks is a configuration for simulated block production.
type Blocks struct {
	// Genesis is the starting block number.
	Genesis uint64 `json:"genesisBlock"`
	// Cadence is how fast blocks are produced.
	Cadence Duration `json:"blockCadence"`
	// Jitter is the average amount of variance applied to the cadence.
	Jitter Duration `json:"blockCadenceJitter"`
	// BlockTime is the amount of chain time that passes per block.
	BlockTime Duration `json:"blockTime"`
	// Duration is the number of blocks to simulate before broadcasting
	// stops.
	Duration int `json:"durationInBlocks"`
	// EndPadding is the number of blocks appended to the end of the run so
	// pending performs can land.
	EndPadding int `json:"endPadding"`
}

// End is the last block broadcast.
func (b Blocks) End() uint64 {
	return b.Genesis + uint64(b.Duration) + uint64(b.EndPadding)
}

// Feeds are the initial oracle answers.
type Feeds struct {
	GasPriceWei *big.Int `json:"gasPriceWei"`
	LinkEthWei  *big.Int `json:"linkEthWei"`
}

// Encode applies JSON encoding of a simulation plan to bytes.
func (p SimulationPlan) Encode() ([]byte, error) {
	type encodedOutput struct {
		SimulationPlan
		Registry regconfig.Config `json:"registry"`
		Events   []interface{}    `json:"events"`
	}

	encodable := encodedOutput{
		SimulationPlan: p,
		Registry:       p.Registry,
		Events:         make([]interface{}, 0, len(p.Generate)+len(p.Cancels)+len(p.Fundings)+len(p.KeeperSet)+len(p.GasPrices)),
	}

	for _, event := range p.Generate {
		event.Type = GenerateUpkeepEventType
		encodable.Events = append(encodable.Events, event)
	}

	for _, event := range p.Cancels {
		event.Type = CancelUpkeepEventType
		encodable.Events = append(encodable.Events, event)
	}

	for _, event := range p.Fundings {
		event.Type = AddFundsEventType
		encodable.Events = append(encodable.Events, event)
	}

	for _, event := range p.KeeperSet {
		event.Type = SetKeepersEventType
		encodable.Events = append(encodable.Events, event)
	}

	for _, event := range p.GasPrices {
		event.Type = GasPriceEventType
		encodable.Events = append(encodable.Events, event)
	}

	b, err := json.Marshal(encodable)
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}

	return b, nil
}

// DecodeSimulationPlan uses JSON encoding to decode bytes to a simulation
// plan. Registry parameters that are not present keep their defaults.
func DecodeSimulationPlan(encoded []byte) (SimulationPlan, error) {
	var plan SimulationPlan

	if err := json.Unmarshal(encoded, &plan); err != nil {
		return plan, errors.Wrapf(ErrEncoding, "failed to decode simulation plan: %s", err)
	}

	type sections struct {
		Registry json.RawMessage   `json:"registry"`
		Events   []json.RawMessage `json:"events"`
	}

	var raw sections

	if err := json.Unmarshal(encoded, &raw); err != nil {
		return plan, errors.Wrapf(ErrEncoding, "failed to decode events in simulation plan: %s", err)
	}

	registryConf, err := regconfig.Decode(raw.Registry)
	if err != nil {
		return plan, errors.Wrap(err, "registry section")
	}

	plan.Registry = registryConf

	for idx, rawEvent := range raw.Events {
		if err := plan.decodeEvent(idx, rawEvent); err != nil {
			return plan, err
		}
	}

	if plan.Feeds.GasPriceWei == nil {
		plan.Feeds.GasPriceWei = new(big.Int).Set(DefaultGasPrice)
	}

	if plan.Feeds.LinkEthWei == nil {
		plan.Feeds.LinkEthWei = new(big.Int).Set(DefaultLinkPrice)
	}

	return plan, nil
}

func (p *SimulationPlan) decodeEvent(idx int, rawEvent json.RawMessage) error {
	var event Event
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return errors.Wrapf(ErrEncoding, "failed to decode event at index %d: %s", idx, err)
	}

	var target interface{}

	switch event.Type {
	case GenerateUpkeepEventType:
		var generate GenerateUpkeepEvent
		if err := json.Unmarshal(rawEvent, &generate); err != nil {
			return errors.Wrapf(ErrEncoding, "failed to decode %s event at index %d: %s", event.Type, idx, err)
		}

		if generate.Expected == "" {
			generate.Expected = AllExpected
		}

		p.Generate = append(p.Generate, generate)

		return nil
	case CancelUpkeepEventType:
		p.Cancels = append(p.Cancels, CancelUpkeepEvent{})
		target = &p.Cancels[len(p.Cancels)-1]
	case AddFundsEventType:
		p.Fundings = append(p.Fundings, AddFundsEvent{})
		target = &p.Fundings[len(p.Fundings)-1]
	case SetKeepersEventType:
		p.KeeperSet = append(p.KeeperSet, SetKeepersEvent{})
		target = &p.KeeperSet[len(p.KeeperSet)-1]
	case GasPriceEventType:
		p.GasPrices = append(p.GasPrices, GasPriceEvent{})
		target = &p.GasPrices[len(p.GasPrices)-1]
	default:
		return errors.Wrapf(ErrEncoding, "unrecognized event '%s' at index %d", event.Type, idx)
	}

	if err := json.Unmarshal(rawEvent, target); err != nil {
		return errors.Wrapf(ErrEncoding, "failed to decode %s event at index %d: %s", event.Type, idx, err)
	}

	return nil
}

// TotalUpkeeps is the number of upkeeps all generate events create.
func (p SimulationPlan) TotalUpkeeps() int {
	var total int

	for _, event := range p.Generate {
		total += event.Count
	}

	return total
}

// Validate checks the plan for values the simulation cannot run with.
func (p SimulationPlan) Validate() error {
	if p.Keepers.Count <= 0 {
		return errors.Wrap(ErrInvalidPlan, "at least one keeper node is required")
	}

	if p.Keepers.MaxServiceWorkers <= 0 {
		return errors.Wrap(ErrInvalidPlan, "maxNodeServiceWorkers must be positive")
	}

	if p.Blocks.Duration <= 0 {
		return errors.Wrap(ErrInvalidPlan, "durationInBlocks must be positive")
	}

	if err := p.Registry.Validate(); err != nil {
		return errors.Wrap(err, "registry section")
	}

	total := p.TotalUpkeeps()

	for idx, event := range p.Generate {
		if event.Count <= 0 {
			return errors.Wrapf(ErrInvalidPlan, "generate event %d: count must be positive", idx)
		}

		if event.Expected != AllExpected && event.Expected != NoneExpected {
			return errors.Wrapf(ErrInvalidPlan, "generate event %d: expected must be '%s' or '%s'", idx, AllExpected, NoneExpected)
		}

		if event.Funding == nil || event.Funding.Sign() < 0 {
			return errors.Wrapf(ErrInvalidPlan, "generate event %d: funding must be set", idx)
		}
	}

	for idx, event := range p.Cancels {
		if err := checkIndexes(event.Upkeeps, total); err != nil {
			return errors.Wrapf(err, "cancel event %d", idx)
		}
	}

	for idx, event := range p.Fundings {
		if err := checkIndexes(event.Upkeeps, total); err != nil {
			return errors.Wrapf(err, "add funds event %d", idx)
		}

		if event.Amount == nil || event.Amount.Sign() <= 0 {
			return errors.Wrapf(ErrInvalidPlan, "add funds event %d: amount must be positive", idx)
		}
	}

	for idx, event := range p.KeeperSet {
		if event.Count <= 0 || event.Count > p.Keepers.Count {
			return errors.Wrapf(ErrInvalidPlan, "set keepers event %d: count must be between 1 and %d", idx, p.Keepers.Count)
		}
	}

	for idx, event := range p.GasPrices {
		if event.GasPriceWei == nil || event.GasPriceWei.Sign() <= 0 {
			return errors.Wrapf(ErrInvalidPlan, "gas price event %d: price must be positive", idx)
		}
	}

	return nil
}

func checkIndexes(indexes []int, total int) error {
	for _, idx := range indexes {
		if idx < 0 || idx >= total {
			return errors.Wrapf(ErrInvalidPlan, "upkeep index %d out of range [0, %d)", idx, total)
		}
	}

	return nil
}
