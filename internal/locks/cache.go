package locks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/metrics"
)

// DefaultTTL bounds a hold's lifetime when the caller does not supply one.
const DefaultTTL = 15 * time.Minute

// Key identifies one lockable inventory line.
type Key struct {
	ItemID   uuid.UUID
	Kind     enums.ItemKind
	VendorID uuid.UUID
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ItemID, k.Kind, k.VendorID)
}

// Hold is one active reservation. Holds are advisory: stock correctness is
// enforced by guarded inventory updates, the hold only stops two checkouts
// from racing on the same reservation window.
type Hold struct {
	Holder     string
	Quantity   int
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Stats is the observability snapshot of the cache.
type Stats struct {
	ActiveHolds  int `json:"activeHolds"`
	TotalEntries int `json:"totalEntries"`
}

// Cache is the in-process reservation table. At most one unexpired hold may
// exist per key. It is process-local and holds no authoritative state, so it
// is deliberately kept outside database transactions.
type Cache struct {
	mu      sync.Mutex
	holds   map[Key]Hold
	now     func() time.Time
	metrics *metrics.LockCacheMetrics
}

// NewCache builds an empty cache. The metrics collector may be nil.
func NewCache(collector *metrics.LockCacheMetrics) *Cache {
	return &Cache{
		holds:   make(map[Key]Hold),
		now:     time.Now,
		metrics: collector,
	}
}

// Acquire inserts a hold for the key. An unexpired hold by a different holder
// rejects the acquisition with a conflict error; re-acquiring by the same
// holder refreshes the deadline.
func (c *Cache) Acquire(key Key, holder string, qty int, ttl time.Duration) error {
	if holder == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "lock holder is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "lock quantity must be positive")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.holds[key]; ok && existing.ExpiresAt.After(now) && existing.Holder != holder {
		return pkgerrors.New(pkgerrors.CodeConflict, "item is reserved by another order").
			WithDetails(map[string]any{"key": key.String()})
	}

	c.holds[key] = Hold{
		Holder:     holder,
		Quantity:   qty,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	c.publishStatsLocked()
	return nil
}

// Release removes the hold if it belongs to the holder. A missing or
// mismatched hold is reported as not found, never as an error: lock
// bookkeeping must not block order state transitions.
func (c *Cache) Release(key Key, holder string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.holds[key]
	if !ok || existing.Holder != holder {
		return false
	}
	delete(c.holds, key)
	c.publishStatsLocked()
	return true
}

// ReleaseOrderLocks releases every key an order held and reports how many
// were released vs already gone, so callers can log partial failures.
func (c *Cache) ReleaseOrderLocks(keys []Key, holder string) (released, notFound int) {
	for _, key := range keys {
		if c.Release(key, holder) {
			released++
		} else {
			notFound++
		}
	}
	return released, notFound
}

// PurgeExpired drops holds whose deadline has passed and returns how many
// were removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for key, hold := range c.holds {
		if !hold.ExpiresAt.After(now) {
			delete(c.holds, key)
			purged++
		}
	}
	if purged > 0 {
		c.publishStatsLocked()
	}
	return purged
}

// HolderOf returns the current holder for a key, if any unexpired hold exists.
func (c *Cache) HolderOf(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hold, ok := c.holds[key]
	if !ok || !hold.ExpiresAt.After(c.now()) {
		return "", false
	}
	return hold.Holder, true
}

// Stats returns the active-hold and total-entry counts. Read-only.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	active := 0
	for _, hold := range c.holds {
		if hold.ExpiresAt.After(now) {
			active++
		}
	}
	return Stats{ActiveHolds: active, TotalEntries: len(c.holds)}
}

func (c *Cache) publishStatsLocked() {
	if c.metrics == nil {
		return
	}
	now := c.now()
	active := 0
	for _, hold := range c.holds {
		if hold.ExpiresAt.After(now) {
			active++
		}
	}
	c.metrics.SetActive(active)
	c.metrics.SetTotal(len(c.holds))
}
