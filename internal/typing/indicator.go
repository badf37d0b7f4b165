package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTTL bounds how long a peer is shown typing without a stop signal.
const DefaultTTL = 5 * time.Second

// Indicator is the remote peer's typing flag.
type Indicator struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	active   bool
	expiry   *clock.Timer
	seq      uint64
	onChange func(bool)
}

func NewIndicator(clk clock.Clock, ttl time.Duration) *Indicator {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Indicator{clock: clk, ttl: ttl}
}

// OnChange registers fn to run when the flag flips.
func (i *Indicator) OnChange(fn func(active bool)) {
	i.mu.Lock()
	i.onChange = fn
	i.mu.Unlock()
}

// Set applies a typing signal from the peer.
func (i *Indicator) Set(active bool) {
	i.mu.Lock()
	if i.expiry != nil {
		i.expiry.Stop()
		i.expiry = nil
	}
	i.seq++
	if active {
		seq := i.seq
		i.expiry = i.clock.AfterFunc(i.ttl, func() { i.expire(seq) })
	}
	fn := i.changeLocked(active)
	i.mu.Unlock()
	fn()
}

func (i *Indicator) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Reset clears the flag and any pending expiry.
func (i *Indicator) Reset() {
	i.Set(false)
}

func (i *Indicator) expire(seq uint64) {
	i.mu.Lock()
	if seq != i.seq {
		i.mu.Unlock()
		return
	}
	i.expiry = nil
	fn := i.changeLocked(false)
	i.mu.Unlock()
	fn()
}

func (i *Indicator) changeLocked(active bool) func() {
	if i.active == active {
		return func() {}
	}
	i.active = active
	fn := i.onChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(active) }
}
