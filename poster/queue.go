package poster

import (
	"time"

	"github.com/cepro/plantcontroller/telemetry"
)

// Item is one metric sample awaiting delivery to Flux.
type Item struct {
	Plant       telemetry.PlantID
	Metric      string
	SeriesID    string
	Value       float64
	Timestamp   time.Time
	Attempts    int
	NextAttempt time.Time
}

// Queue is a fixed-capacity FIFO of pending items. When full, pushing drops the
// oldest pending item rather than the new one. It is owned by the posting worker
// alone and is not synchronized.
type Queue struct {
	max   int
	items []*Item
}

// NewQueue creates a queue holding at most max items.
func NewQueue(max int) *Queue {
	return &Queue{max: max}
}

// Push appends an item, evicting and returning the oldest one if the queue is full.
func (q *Queue) Push(item *Item) (evicted *Item) {
	if len(q.items) >= q.max {
		evicted = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
	return evicted
}

// TakeDue removes and returns every item whose next attempt is due at now,
// preserving FIFO order among them.
func (q *Queue) TakeDue(now time.Time) []*Item {
	var due []*Item
	rest := q.items[:0]
	for _, item := range q.items {
		if item.NextAttempt.After(now) {
			rest = append(rest, item)
		} else {
			due = append(due, item)
		}
	}
	q.items = rest
	return due
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Clear discards all pending items.
func (q *Queue) Clear() {
	q.items = nil
}
