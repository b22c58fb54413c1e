package upkeep

import (
	"fmt"
	"math/big"

	"github.com/Maldris/mathparse"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

var (
	ErrUpkeepGeneration = fmt.Errorf("failed to generate upkeep")
)

const (
	alwaysEligible = "always"
	neverEligible  = "never"
)

// targetBase is the first address simulated targets are deployed at.
var targetBase = big.NewInt(0x10_0000)

// SimulatedUpkeep is an upkeep the simulation registers and watches.
type SimulatedUpkeep struct {
	// Index is the generation order across all generate events.
	Index          int
	Name           string
	Target         common.Address
	CreateInBlock  uint64
	AlwaysEligible bool
	// EligibleAt lists the blocks at which the upkeep starts needing work,
	// in ascending order.
	EligibleAt       []uint64
	GasLimit         uint32
	PerformGasMean   float64
	PerformGasStddev float64
	Funding          *big.Int
	Expected         bool
}

// GenerateAllUpkeeps expands every generate event of the plan.
func GenerateAllUpkeeps(plan config.SimulationPlan) ([]SimulatedUpkeep, error) {
	generated := make([]SimulatedUpkeep, 0, plan.TotalUpkeeps())
	limit := plan.Blocks.Genesis + uint64(plan.Blocks.Duration)

	for idx, event := range plan.Generate {
		simulated, err := generateSimulatedUpkeeps(event, len(generated), limit)
		if err != nil {
			return nil, fmt.Errorf("%w at index %d", err, idx)
		}

		generated = append(generated, simulated...)
	}

	return generated, nil
}

func generateSimulatedUpkeeps(event config.GenerateUpkeepEvent, startIndex int, limit uint64) ([]SimulatedUpkeep, error) {
	generated := make([]SimulatedUpkeep, 0, event.Count)

	applyFunctions := event.EligibilityFunc != alwaysEligible &&
		event.EligibilityFunc != neverEligible &&
		event.EligibilityFunc != ""

	var offset *mathparse.Parser
	if applyFunctions && event.OffsetFunc != "" {
		parser := mathparse.NewParser(event.OffsetFunc)
		offset = &parser
		offset.Resolve()
	}

	for y := 0; y < event.Count; y++ {
		index := startIndex + y

		sym := SimulatedUpkeep{
			Index:            index,
			Name:             fmt.Sprintf("simulated upkeep %d", index),
			Target:           common.BigToAddress(new(big.Int).Add(targetBase, big.NewInt(int64(index)))),
			CreateInBlock:    event.TriggerBlock,
			AlwaysEligible:   event.EligibilityFunc == alwaysEligible,
			EligibleAt:       make([]uint64, 0),
			GasLimit:         event.GasLimit,
			PerformGasMean:   event.PerformGasMean,
			PerformGasStddev: event.PerformGasStddev,
			Funding:          new(big.Int).Set(event.Funding),
			Expected:         event.Expected == config.AllExpected,
		}

		if applyFunctions {
			genesis := int64(event.TriggerBlock)

			if offset != nil {
				if offset.FoundResult() {
					// a constant offset applies to every upkeep
					genesis += int64(offset.GetValueResult())
				} else {
					// offset relative to the upkeep position in the event
					g, err := calcFromTokens(offset.GetTokens(), big.NewInt(int64(y)))
					if err != nil {
						return nil, err
					}

					genesis += g.Round(0).IntPart()
				}
			}

			eligibles, err := generateEligibles(genesis, int64(limit), event.EligibilityFunc)
			if err != nil {
				return nil, err
			}

			sym.EligibleAt = eligibles
		}

		generated = append(generated, sym)
	}

	return generated, nil
}

// generateEligibles evaluates f at x = 0, 1, 2 ... relative to genesis and
// collects every result at or after genesis and before limit.
func generateEligibles(genesis, limit int64, f string) ([]uint64, error) {
	p := mathparse.NewParser(f)
	p.Resolve()

	if p.FoundResult() {
		return nil, fmt.Errorf("%w: simple value unsupported for eligibility function '%s'", ErrUpkeepGeneration, f)
	}

	tokens := p.GetTokens()
	eligibles := make([]uint64, 0)

	var previous int64

	for i := int64(0); ; i++ {
		value, err := calcFromTokens(tokens, big.NewInt(i))
		if err != nil {
			return nil, err
		}

		next := genesis + value.Round(0).IntPart()

		if i > 0 && next <= previous {
			return nil, fmt.Errorf("%w: eligibility function '%s' must be increasing", ErrUpkeepGeneration, f)
		}

		if next >= limit {
			break
		}

		if next >= genesis && next >= 0 {
			eligibles = append(eligibles, uint64(next))
		}

		previous = next
	}

	return eligibles, nil
}

func operate(a, b decimal.Decimal, op string) decimal.Decimal {
	switch op {
	case "+":
		return a.Add(b)
	case "*":
		return a.Mul(b)
	case "-":
		return a.Sub(b)
	default:
	}

	return decimal.Zero
}

func calcFromTokens(tokens []mathparse.Token, x *big.Int) (decimal.Decimal, error) {
	value := decimal.NewFromInt(0)
	action := "+"

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		switch token.Type {
		case 2, 3:
			var tVal decimal.Decimal

			if token.Value == "x" {
				tVal = decimal.NewFromBigInt(x, int32(0))
			} else {
				tVal = decimal.NewFromFloat(token.ParseValue)
			}

			value = operate(value, tVal, action)
		case 4:
			action = token.Value
		default:
		}
	}

	return value, nil
}
