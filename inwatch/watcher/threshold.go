//go:build linux

package watcher

// ByteQueue reports how many bytes are waiting to be read from a session
// without consuming them. *inotify.Session and *Watcher both satisfy it.
type ByteQueue interface {
	Queued() (int, error)
}

// DefaultThreshold is the queued-byte count at which Ready fires when no
// explicit threshold is given.
const DefaultThreshold = 1024

// Threshold decides whether enough event data has accumulated on a session
// to justify waking an event loop. It never mutates session state, so it can
// be polled freely between reads.
type Threshold struct {
	queue     ByteQueue
	threshold int
}

// NewThreshold wraps queue with a readiness threshold. A threshold of zero
// or less selects DefaultThreshold.
func NewThreshold(queue ByteQueue, threshold int) *Threshold {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Threshold{queue: queue, threshold: threshold}
}

// Readable returns the number of bytes currently queued.
func (t *Threshold) Readable() (int, error) {
	return t.queue.Queued()
}

// Ready reports whether at least the threshold number of bytes is queued.
func (t *Threshold) Ready() (bool, error) {
	queued, err := t.queue.Queued()
	if err != nil {
		return false, err
	}
	return queued >= t.threshold, nil
}
