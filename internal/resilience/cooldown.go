// Package resilience provides retry, cooldown, and error-classification
// primitives for external service calls.
package resilience

import (
	"sync"
	"time"
)

// Cooldown tracks a do-not-call window for a single endpoint after an
// upstream rate-limit signal. Callers check Ready before issuing a request
// instead of sleeping: a struck endpoint stays closed until the window
// passes and is re-evaluated on the next call, so a cycle never blocks on
// it inline.
type Cooldown struct {
	mu      sync.Mutex
	until   time.Time
	strikes int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCooldown creates an open (ready) cooldown gate.
func NewCooldown() *Cooldown {
	return &Cooldown{nowFunc: time.Now}
}

// Strike closes the gate for d from now. A shorter strike never trims an
// already longer window.
func (c *Cooldown) Strike(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strikes++
	until := c.nowFunc().Add(d)
	if until.After(c.until) {
		c.until = until
	}
}

// Ready reports whether calls may go through.
func (c *Cooldown) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.nowFunc().Before(c.until)
}

// Remaining returns how long until the gate reopens (0 when ready).
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.until.Sub(c.nowFunc())
	if rem < 0 {
		return 0
	}
	return rem
}

// Clear reopens the gate immediately.
func (c *Cooldown) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = time.Time{}
}

// Strikes returns how many times the gate has been struck, for observability.
func (c *Cooldown) Strikes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strikes
}

// EndpointCooldowns manages cooldown gates for multiple endpoints.
type EndpointCooldowns struct {
	mu    sync.RWMutex
	gates map[string]*Cooldown
}

// NewEndpointCooldowns creates a registry of per-endpoint cooldown gates.
func NewEndpointCooldowns() *EndpointCooldowns {
	return &EndpointCooldowns{gates: make(map[string]*Cooldown)}
}

// Get returns the gate for the named endpoint, creating one if needed.
func (ec *EndpointCooldowns) Get(endpoint string) *Cooldown {
	ec.mu.RLock()
	c, ok := ec.gates[endpoint]
	ec.mu.RUnlock()
	if ok {
		return c
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	// Double-check after acquiring write lock.
	if c, ok = ec.gates[endpoint]; ok {
		return c
	}
	c = NewCooldown()
	ec.gates[endpoint] = c
	return c
}

// Remaining returns a snapshot of the closed gates and their remaining
// windows. Open gates are omitted.
func (ec *EndpointCooldowns) Remaining() map[string]time.Duration {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]time.Duration)
	for name, c := range ec.gates {
		if rem := c.Remaining(); rem > 0 {
			out[name] = rem
		}
	}
	return out
}
