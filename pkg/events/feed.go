package events

import (
	"log"
	"sync"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

const subscriptionBuffer = 256

// Feed fans events out to subscribers. Publishing never blocks: a
// subscriber that falls a full buffer behind misses events.
type Feed struct {
	mu            sync.Mutex
	subscriptions map[int]chan types.Event
	subCount      int
	logger        *log.Logger
}

func NewFeed(logger *log.Logger) *Feed {
	return &Feed{
		subscriptions: make(map[int]chan types.Event),
		logger:        logger,
	}
}

func (f *Feed) Subscribe() (int, <-chan types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subCount++
	f.subscriptions[f.subCount] = make(chan types.Event, subscriptionBuffer)

	return f.subCount, f.subscriptions[f.subCount]
}

func (f *Feed) Unsubscribe(subscriptionID int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subscriptions[subscriptionID]
	if ok {
		close(sub)
	}

	delete(f.subscriptions, subscriptionID)
}

func (f *Feed) Publish(evt types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subscriptions {
		select {
		case ch <- evt:
		default:
			f.logger.Printf("subscriber %d is full; dropped %s event", id, evt.EventName())
		}
	}
}
