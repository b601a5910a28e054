// Package debounce suppresses repeated sighting writes for the same
// identity on the same camera within a cooldown window (spec component
// C8), while still letting the caller fire a live UI event every time.
package debounce

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCooldown matches the default sighting_cooldown_secs setting.
const DefaultCooldown = 30 * time.Second

// DefaultPruneInterval is how often stale entries are swept from the map.
const DefaultPruneInterval = 5 * time.Minute

type key struct {
	identityID uuid.UUID
	cameraID   uuid.UUID
}

// Debouncer tracks, per (identity, camera) pair, the time of the last
// sighting that was allowed to persist. It is memory-only: a restart
// clears all cooldowns, which is acceptable since it only suppresses
// redundant writes, never correctness.
type Debouncer struct {
	mu       sync.Mutex
	last     map[key]time.Time
	cooldown time.Duration

	stop chan struct{}
	once sync.Once
}

// New starts a Debouncer with the given cooldown and a background pruning
// goroutine at DefaultPruneInterval. A zero cooldown uses DefaultCooldown.
func New(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	d := &Debouncer{
		last:     make(map[key]time.Time),
		cooldown: cooldown,
		stop:     make(chan struct{}),
	}
	go d.pruneLoop()
	return d
}

// Allow reports whether a sighting for (identityID, cameraID) at "at"
// should be persisted. If allowed, it records "at" as the new last-seen
// time for that pair; if suppressed, the stored time is left untouched
// so a burst of rapid re-matches doesn't keep pushing the cooldown out.
func (d *Debouncer) Allow(identityID, cameraID uuid.UUID, at time.Time) bool {
	k := key{identityID: identityID, cameraID: cameraID}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.last[k]
	if ok && at.Sub(last) < d.cooldown {
		return false
	}
	d.last[k] = at
	return true
}

// SetCooldown updates the cooldown window, applied to subsequent Allow
// calls, so a live Settings update takes effect without a restart.
func (d *Debouncer) SetCooldown(cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}
	d.mu.Lock()
	d.cooldown = cooldown
	d.mu.Unlock()
}

func (d *Debouncer) pruneLoop() {
	ticker := time.NewTicker(DefaultPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.prune(now)
		}
	}
}

func (d *Debouncer) prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, last := range d.last {
		if now.Sub(last) > d.cooldown {
			delete(d.last, k)
		}
	}
}

// Close stops the background pruning goroutine.
func (d *Debouncer) Close() {
	d.once.Do(func() { close(d.stop) })
}
