// Package notify correlates asynchronous device notifications with the
// command writes that provoked them.
//
// The device delivers at most one outstanding response per command id, so
// the registry keeps a single latest-wins slot per id rather than a queue.
// A Registry is built fresh for each print session; nothing is global.
package notify

import (
	"fmt"
	"sync"
	"time"
)

// TimeoutError reports that no notification for a command arrived in time.
type TimeoutError struct {
	Command byte
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no notification for command 0x%02X within %s", e.Command, e.Timeout)
}

// Registry is safe for use from the transport's notification goroutine
// concurrently with a waiting session driver.
type Registry struct {
	mu      sync.Mutex
	pending map[byte][]byte
	arrived chan struct{} // closed and replaced on every Record, waking all waiters
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[byte][]byte),
		arrived: make(chan struct{}),
	}
}

// Record stores the payload for a command id and wakes all waiters. If a
// previous payload for the same id was never consumed, it is replaced.
// Record never blocks and is the only operation the transport's
// notification callback may perform.
func (r *Registry) Record(command byte, payload []byte) {
	r.mu.Lock()
	r.pending[command] = payload
	close(r.arrived)
	r.arrived = make(chan struct{})
	r.mu.Unlock()
}

// AwaitOne blocks until a notification for command arrives or timeout
// elapses. Any payload left over from before the call is discarded first,
// so only a notification recorded after the wait begins can satisfy it.
// Delivery is at-most-once: the payload is removed atomically as it is
// returned.
func (r *Registry) AwaitOne(command byte, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Clearing the stale slot and capturing the wakeup channel happen
	// under one lock acquisition, so a Record racing with wait entry
	// still closes the channel we are about to block on.
	r.mu.Lock()
	delete(r.pending, command)
	arrived := r.arrived
	r.mu.Unlock()

	for {
		select {
		case <-arrived:
			r.mu.Lock()
			payload, ok := r.pending[command]
			if ok {
				delete(r.pending, command)
				r.mu.Unlock()
				return payload, nil
			}
			arrived = r.arrived
			r.mu.Unlock()
		case <-timer.C:
			return nil, &TimeoutError{Command: command, Timeout: timeout}
		}
	}
}
