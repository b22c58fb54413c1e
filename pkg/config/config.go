package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
)

var (
	ErrEncoding      = fmt.Errorf("encoding/decoding failure")
	ErrInvalidConfig = fmt.Errorf("invalid config")
)

const (
	DefaultPaymentPremiumPPB    uint32 = 250_000_000
	DefaultBlockCountPerTurn    uint32 = 20
	DefaultCheckGasLimit        uint32 = 6_500_000
	DefaultStalenessSeconds     uint32 = 43_820
	DefaultGasCeilingMultiplier uint16 = 1
	DefaultMinPerformGas        uint32 = 2_300
	DefaultMaxPerformGas        uint32 = 5_000_000
	// DefaultGasOverhead is the gas charged on top of the target's own
	// usage to account for registry bookkeeping.
	DefaultGasOverhead       uint32 = 80_000
	DefaultCancellationDelay uint64 = 50
	DefaultMaxCheckDataSize  uint32 = 5_000
	DefaultPerformTimeout           = 5 * time.Second
)

var (
	// DefaultFallbackGasPrice is 200 gwei.
	DefaultFallbackGasPrice = big.NewInt(200_000_000_000)
	// DefaultFallbackLinkPrice is 0.005 ETH per LINK.
	DefaultFallbackLinkPrice = big.NewInt(5_000_000_000_000_000)
)

// Config is the global parameter set of a registry. A copy is captured at
// the start of every perform so later changes only apply to subsequent
// performs.
type Config struct {
	// PaymentPremiumPPB is the premium paid to keepers on top of gas cost,
	// in parts per billion.
	PaymentPremiumPPB uint32 `json:"paymentPremiumPPB"`
	// FlatFeeMicroLink is a fixed fee per perform in millionths of a LINK.
	FlatFeeMicroLink  uint32 `json:"flatFeeMicroLink"`
	BlockCountPerTurn uint32 `json:"blockCountPerTurn"`
	CheckGasLimit     uint32 `json:"checkGasLimit"`
	// StalenessSeconds is the maximum age of a feed answer. Zero disables
	// the age check.
	StalenessSeconds     uint32 `json:"stalenessSeconds"`
	GasCeilingMultiplier uint16 `json:"gasCeilingMultiplier"`
	// MinUpkeepSpend is the amount an upkeep must have spent before it is
	// cancelled to avoid a cancellation fee.
	MinUpkeepSpend    *big.Int `json:"minUpkeepSpend"`
	MinPerformGas     uint32   `json:"minPerformGas"`
	MaxPerformGas     uint32   `json:"maxPerformGas"`
	GasOverhead       uint32   `json:"gasOverhead"`
	CancellationDelay uint64   `json:"cancellationDelay"`
	MaxCheckDataSize  uint32   `json:"maxCheckDataSize"`
	FallbackGasPrice  *big.Int `json:"fallbackGasPrice"`
	FallbackLinkPrice *big.Int `json:"fallbackLinkPrice"`
	// PerformTimeout bounds the wall time a target may spend in its
	// perform routine.
	PerformTimeout Duration       `json:"performTimeout"`
	Transcoder     common.Address `json:"transcoder"`
	Registrar      common.Address `json:"registrar"`
}

// Default returns a configuration that passes Validate.
func Default() Config {
	return Config{
		PaymentPremiumPPB:    DefaultPaymentPremiumPPB,
		BlockCountPerTurn:    DefaultBlockCountPerTurn,
		CheckGasLimit:        DefaultCheckGasLimit,
		StalenessSeconds:     DefaultStalenessSeconds,
		GasCeilingMultiplier: DefaultGasCeilingMultiplier,
		MinUpkeepSpend:       new(big.Int),
		MinPerformGas:        DefaultMinPerformGas,
		MaxPerformGas:        DefaultMaxPerformGas,
		GasOverhead:          DefaultGasOverhead,
		CancellationDelay:    DefaultCancellationDelay,
		MaxCheckDataSize:     DefaultMaxCheckDataSize,
		FallbackGasPrice:     new(big.Int).Set(DefaultFallbackGasPrice),
		FallbackLinkPrice:    new(big.Int).Set(DefaultFallbackLinkPrice),
		PerformTimeout:       Duration(DefaultPerformTimeout),
	}
}

// Decode reads a JSON encoded config. Fields not present in the input keep
// their default value.
func Decode(b []byte) (Config, error) {
	conf := Default()

	if len(b) == 0 {
		return conf, nil
	}

	if err := json.Unmarshal(b, &conf); err != nil {
		return conf, fmt.Errorf("%w: failed to decode registry config: %s", ErrEncoding, err.Error())
	}

	return conf, conf.Validate()
}

func (c Config) Encode() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEncoding, err.Error())
	}

	return b, nil
}

func (c Config) Validate() error {
	if c.GasCeilingMultiplier == 0 {
		return fmt.Errorf("%w: gasCeilingMultiplier must be at least 1", ErrInvalidConfig)
	}

	if c.BlockCountPerTurn == 0 {
		return fmt.Errorf("%w: blockCountPerTurn must be at least 1", ErrInvalidConfig)
	}

	if c.FallbackLinkPrice == nil || c.FallbackLinkPrice.Sign() <= 0 {
		return fmt.Errorf("%w: fallbackLinkPrice must be positive", ErrInvalidConfig)
	}

	if c.FallbackGasPrice == nil || c.FallbackGasPrice.Sign() < 0 {
		return fmt.Errorf("%w: fallbackGasPrice must not be negative", ErrInvalidConfig)
	}

	if c.MinUpkeepSpend == nil || c.MinUpkeepSpend.Sign() < 0 {
		return fmt.Errorf("%w: minUpkeepSpend must not be negative", ErrInvalidConfig)
	}

	if c.MinPerformGas > c.MaxPerformGas {
		return fmt.Errorf("%w: minPerformGas %d exceeds maxPerformGas %d", ErrInvalidConfig, c.MinPerformGas, c.MaxPerformGas)
	}

	if c.PerformTimeout.Value() <= 0 {
		return fmt.Errorf("%w: performTimeout must be positive", ErrInvalidConfig)
	}

	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.MinUpkeepSpend = cloneBig(c.MinUpkeepSpend)
	out.FallbackGasPrice = cloneBig(c.FallbackGasPrice)
	out.FallbackLinkPrice = cloneBig(c.FallbackLinkPrice)

	return out
}

// HasTranscoder reports whether a migration transcoder is configured.
func (c Config) HasTranscoder() bool {
	return c.Transcoder != (common.Address{})
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}

	return new(big.Int).Set(v)
}
