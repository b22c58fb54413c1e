package config

import "math/big"

const (
	AllExpected  = "all"
	NoneExpected = "none"
)

type EventType string

const (
	GenerateUpkeepEventType EventType = "generateUpkeeps"
	CancelUpkeepEventType   EventType = "cancelUpkeeps"
	AddFundsEventType       EventType = "addFunds"
	SetKeepersEventType     EventType = "setKeepers"
	GasPriceEventType       EventType = "gasPrice"
)

type Event struct {
	Type         EventType `json:"type"`
	TriggerBlock uint64    `json:"eventBlockNumber"`
	Comment      string    `json:"comment,omitempty"`
}

// GenerateUpkeepEvent registers upkeeps in bulk through the registrar at the
// trigger block.
type GenerateUpkeepEvent struct {
	Event
	// Count is the total number of upkeeps to create for this event.
	Count int `json:"count"`
	// EligibilityFunc is a basic linear function of x describing the blocks,
	// relative to the offset, at which each upkeep becomes eligible. The
	// values 'always' and 'never' are also valid. Empty is assumed to be
	// 'never'.
	EligibilityFunc string `json:"eligibilityFunc,omitempty"`
	// OffsetFunc is a basic linear function of the upkeep index that
	// determines the block on which the eligibility function starts.
	OffsetFunc string `json:"offsetFunc,omitempty"`
	// GasLimit is the perform gas limit each upkeep registers with.
	GasLimit uint32 `json:"gasLimit"`
	// PerformGasMean and PerformGasStddev describe a normal distribution
	// sampled for the gas each perform consumes. A zero deviation burns
	// exactly the mean.
	PerformGasMean   float64 `json:"performGasMean"`
	PerformGasStddev float64 `json:"performGasStddev,omitempty"`
	// Funding is the amount of juels sent with each registration.
	Funding *big.Int `json:"funding"`
	// Expected is 'all' when every eligible block should be performed and
	// 'none' when the upkeeps are expected to starve.
	Expected string `json:"expected,omitempty"`
}

// CancelUpkeepEvent cancels generated upkeeps, addressed by their
// generation order starting at zero.
type CancelUpkeepEvent struct {
	Event
	Upkeeps []int `json:"upkeepIndexes"`
}

// AddFundsEvent tops up generated upkeeps.
type AddFundsEvent struct {
	Event
	Upkeeps []int    `json:"upkeepIndexes"`
	Amount  *big.Int `json:"amount"`
}

// SetKeepersEvent replaces the active keeper set with the first Count
// simulated keeper nodes.
type SetKeepersEvent struct {
	Event
	Count int `json:"count"`
}

// GasPriceEvent publishes a new answer on the fast gas feed.
type GasPriceEvent struct {
	Event
	GasPriceWei *big.Int `json:"gasPriceWei"`
}
