package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Feed is an in-memory price feed whose answer is pushed by the caller.
type Feed struct {
	mu    sync.RWMutex
	round types.RoundData
	err   error
}

func NewFeed(answer *big.Int, updatedAt time.Time) *Feed {
	f := &Feed{}
	f.Update(answer, updatedAt)

	return f
}

// Update publishes a new round.
func (f *Feed) Update(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.round = types.RoundData{
		RoundID:   f.round.RoundID + 1,
		Answer:    copyOrZero(answer),
		UpdatedAt: updatedAt,
	}
	f.err = nil
}

// Fail makes every read return err until the next Update.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func (f *Feed) LatestRoundData(_ context.Context) (types.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.err != nil {
		return types.RoundData{}, f.err
	}

	return types.RoundData{
		RoundID:   f.round.RoundID,
		Answer:    new(big.Int).Set(f.round.Answer),
		UpdatedAt: f.round.UpdatedAt,
	}, nil
}
