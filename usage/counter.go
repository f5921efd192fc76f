package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ErrClockRollback is returned when a due reset is refused because the wall
// clock is behind the last externally validated time.
var ErrClockRollback = errors.New("clock is behind last validation")

// Period decides when a counter resets.
type Period int

const (
	// Lifetime counters never reset.
	Lifetime Period = iota
	// Monthly counters reset on the first day of each calendar month.
	Monthly
)

// Next returns the reset boundary following now, or the zero time for Lifetime.
func (p Period) Next(now time.Time) time.Time {
	switch p {
	case Monthly:
		y, m, _ := now.Date()
		return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// Tag returns the integrity tag for count: a polynomial rolling hash
// (hash = hash*31 + b) over "<salt>_<count>", base 36.
// It deters casual edits of the stored count; it is not a security boundary.
func Tag(salt string, count int) string {
	var hash uint64
	for _, b := range []byte(salt + "_" + strconv.Itoa(count)) {
		hash = hash*31 + uint64(b)
	}
	return strconv.FormatUint(hash, 36)
}

// Record is the persisted form of a counter.
type Record struct {
	Count         int       `json:"count"`
	Tag           string    `json:"tag"`
	ResetBoundary time.Time `json:"reset_boundary,omitzero"`
}

// Config configures a Counter.
type Config struct {
	Key    string // store key
	Salt   string
	Period Period
	Limit  int // 0 means unlimited

	// Now defaults to time.Now.
	Now func() time.Time
	// LastValidated returns the last externally validated time, zero if never.
	LastValidated func() time.Time
}

// Counter is a monotonic usage counter whose stored value can be corrected
// upward but never silently rolled back.
type Counter struct {
	cfg   Config
	store Store

	mu       sync.Mutex
	value    int
	boundary time.Time
}

// New creates a counter. Call Load before use.
func New(store Store, cfg Config) *Counter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LastValidated == nil {
		cfg.LastValidated = func() time.Time { return time.Time{} }
	}
	return &Counter{cfg: cfg, store: store}
}

// Load reads the stored count, verifying its tag against the in-memory value.
func (c *Counter) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.verifyLocked(); err != nil {
		return err
	}
	_, err := c.checkResetLocked()
	if errors.Is(err, ErrClockRollback) {
		return nil
	}
	return err
}

// Value returns the current count, applying a due reset first.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.checkResetLocked(); err != nil && !errors.Is(err, ErrClockRollback) {
		slog.Warn("usage reset check", "key", c.cfg.Key, "error", err)
	}
	return c.value
}

// Remaining returns how many uses are left before Limit, or -1 when unlimited.
func (c *Counter) Remaining() int {
	if c.cfg.Limit == 0 {
		return -1
	}
	return max(c.cfg.Limit-c.Value(), 0)
}

// LimitReached reports whether the count has reached Limit.
func (c *Counter) LimitReached() bool {
	return c.cfg.Limit > 0 && c.Value() >= c.cfg.Limit
}

// Limit returns the configured limit.
func (c *Counter) Limit() int { return c.cfg.Limit }

// Increment verifies storage, applies a due reset and adds one use.
func (c *Counter) Increment() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.verifyLocked(); err != nil {
		return c.value, err
	}
	if _, err := c.checkResetLocked(); err != nil && !errors.Is(err, ErrClockRollback) {
		return c.value, err
	}

	c.value++
	return c.value, c.writeLocked()
}

// Reset sets the count to zero. Used when a new trial starts.
func (c *Counter) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = 0
	c.boundary = c.cfg.Period.Next(c.cfg.Now())
	return c.writeLocked()
}

// Sync adopts a server-reported count when it is higher than the local one.
func (c *Counter) Sync(server int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if server <= c.value {
		return nil
	}
	slog.Info("usage synced from server", "key", c.cfg.Key, "local", c.value, "server", server)
	c.value = server
	return c.writeLocked()
}

// CheckReset zeroes the counter if its reset boundary has passed. It refuses
// with ErrClockRollback when now is earlier than the last validated time.
func (c *Counter) CheckReset() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkResetLocked()
}

// Boundary returns the next reset time, zero for Lifetime counters.
func (c *Counter) Boundary() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundary
}

func (c *Counter) checkResetLocked() (bool, error) {
	if c.cfg.Period == Lifetime {
		return false, nil
	}

	now := c.cfg.Now()
	if c.boundary.IsZero() {
		c.boundary = c.cfg.Period.Next(now)
		return false, c.writeLocked()
	}
	if now.Before(c.boundary) {
		return false, nil
	}
	if lv := c.cfg.LastValidated(); !lv.IsZero() && now.Before(lv) {
		slog.Warn("usage reset refused", "key", c.cfg.Key, "now", now, "last_validated", lv)
		return false, ErrClockRollback
	}

	slog.Info("usage counter reset", "key", c.cfg.Key, "previous", c.value, "boundary", c.boundary)
	c.value = 0
	c.boundary = c.cfg.Period.Next(now)
	return true, c.writeLocked()
}

func (c *Counter) verifyLocked() error {
	data, err := c.store.Get(c.cfg.Key)
	if errors.Is(err, ErrNotFound) {
		return c.writeLocked()
	}
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("usage record unreadable, restoring", "key", c.cfg.Key, "error", err)
		return c.writeLocked()
	}
	rec.Count = max(rec.Count, 0)
	if !rec.ResetBoundary.IsZero() {
		c.boundary = rec.ResetBoundary
	}

	switch {
	case rec.Tag != Tag(c.cfg.Salt, rec.Count) && rec.Count < c.value:
		// An empty tag counts as a mismatch here.
		slog.Warn("usage record tampered, restoring", "key", c.cfg.Key, "stored", rec.Count, "trusted", c.value)
		return c.writeLocked()
	case rec.Tag == "":
		// Untagged records come from older installs; accept and stamp.
		c.value = rec.Count
		return c.writeLocked()
	case rec.Tag != Tag(c.cfg.Salt, rec.Count):
		slog.Warn("usage record tag mismatch", "key", c.cfg.Key, "stored", rec.Count)
		c.value = rec.Count
		return c.writeLocked()
	default:
		c.value = rec.Count
		return nil
	}
}

func (c *Counter) writeLocked() error {
	data, err := json.Marshal(Record{
		Count:         c.value,
		Tag:           Tag(c.cfg.Salt, c.value),
		ResetBoundary: c.boundary,
	})
	if err != nil {
		return fmt.Errorf("marshal counter: %w", err)
	}
	if err := c.store.Set(c.cfg.Key, data); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}
