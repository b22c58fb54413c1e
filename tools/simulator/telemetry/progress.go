package telemetry

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

const (
	trackerProgressCheck = 100 * time.Millisecond
)

var (
	ErrTrackerExists = fmt.Errorf("progress tracker already registered")
)

// ProgressTelemetry renders one progress bar per simulation phase, such as
// broadcast blocks or registered upkeeps.
type ProgressTelemetry struct {
	writer progress.Writer

	mu       sync.RWMutex
	trackers map[string]*progress.Tracker

	failed atomic.Int32
	closer sync.Once
}

func NewProgressTelemetry(wOutput io.Writer) *ProgressTelemetry {
	writer := progress.NewWriter()

	writer.SetOutputWriter(wOutput)

	writer.SetAutoStop(false)
	writer.SetTrackerLength(25)
	writer.SetMessageWidth(32)
	writer.SetSortBy(progress.SortByPercentDsc)
	writer.SetStyle(progress.StyleDefault)
	writer.SetTrackerPosition(progress.PositionRight)
	writer.SetUpdateFrequency(trackerProgressCheck)

	writer.Style().Colors = progress.StyleColorsExample
	writer.Style().Options.PercentFormat = "%4.1f%%"
	writer.Style().Visibility.ETA = true
	writer.Style().Visibility.Percentage = true
	writer.Style().Visibility.Time = true
	writer.Style().Visibility.TrackerOverall = true
	writer.Style().Visibility.Value = true

	return &ProgressTelemetry{
		writer:   writer,
		trackers: make(map[string]*progress.Tracker),
	}
}

// Register adds a tracker expected to reach total increments.
func (t *ProgressTelemetry) Register(namespace string, total int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.trackers[namespace]; exists {
		return fmt.Errorf("%w: %s", ErrTrackerExists, namespace)
	}

	tracker := &progress.Tracker{
		Message: namespace,
		Total:   total,
		Units:   progress.UnitsDefault,
	}

	t.trackers[namespace] = tracker
	t.writer.AppendTracker(tracker)

	return nil
}

// Increment advances a tracker. Unknown namespaces are ignored.
func (t *ProgressTelemetry) Increment(namespace string, count int64) {
	t.mu.RLock()
	tracker, exists := t.trackers[namespace]
	t.mu.RUnlock()

	if exists && !tracker.IsDone() {
		tracker.Increment(count)
	}
}

// Value is the current count of a tracker.
func (t *ProgressTelemetry) Value(namespace string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracker, exists := t.trackers[namespace]
	if !exists {
		return 0
	}

	return tracker.Value()
}

func (t *ProgressTelemetry) Start() {
	go t.writer.Render()
}

// Close marks unfinished trackers as errored and stops rendering. It
// reports whether every tracker reached its total.
func (t *ProgressTelemetry) Close() bool {
	t.closer.Do(func() {
		t.mu.RLock()
		for _, tracker := range t.trackers {
			if tracker.IsDone() {
				continue
			}

			if tracker.Value() < tracker.Total {
				t.failed.Add(1)
				tracker.MarkAsErrored()
			} else {
				tracker.MarkAsDone()
			}
		}
		t.mu.RUnlock()

		// allow one last render of the final state
		time.Sleep(trackerProgressCheck)
		t.writer.Stop()
	})

	return t.failed.Load() == 0
}
