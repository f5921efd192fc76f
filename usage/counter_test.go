package usage

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSalt = "v0x41g0_wh15p3r"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func readRecord(t *testing.T, s Store, key string) Record {
	t.Helper()
	data, err := s.Get(key)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func writeRecord(t *testing.T, s Store, key string, rec Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, s.Set(key, data))
}

func TestTag(t *testing.T) {
	tests := []struct {
		salt  string
		count int
		want  string
	}{
		{"v0x41g0_wh15p3r", 0, "2ynxw0ekkmc5s"},
		{"v0x41g0_wh15p3r", 1, "2ynxw0ekkmc5t"},
		{"v0x41g0_wh15p3r", 75, "2b67wo5sp1r0e"},
		{"v0x41g0_tr14l", 0, "2wtlls2kg3s5d"},
		{"v0x41g0_tr14l", 50, "q1n3htot2ilm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tag(tt.salt, tt.count), "%s_%d", tt.salt, tt.count)
	}
}

func TestCounterIncrement(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	c := New(store, Config{Key: "free", Salt: testSalt, Period: Monthly, Limit: 75, Now: clock.Now})
	require.NoError(t, c.Load())

	const n = 12
	for range n {
		_, err := c.Increment()
		require.NoError(t, err)
	}

	assert.Equal(t, n, c.Value())
	assert.Equal(t, 75-n, c.Remaining())
	rec := readRecord(t, store, "free")
	assert.Equal(t, n, rec.Count)
	assert.Equal(t, Tag(testSalt, n), rec.Tag)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), rec.ResetBoundary)
}

func TestCounterRestoresTamperedLowerValue(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, Config{Key: "free", Salt: testSalt, Period: Lifetime})
	require.NoError(t, c.Load())
	for range 5 {
		_, err := c.Increment()
		require.NoError(t, err)
	}

	writeRecord(t, store, "free", Record{Count: 1, Tag: "bogus"})
	require.NoError(t, c.Load())

	assert.Equal(t, 5, c.Value())
	rec := readRecord(t, store, "free")
	assert.Equal(t, 5, rec.Count)
	assert.Equal(t, Tag(testSalt, 5), rec.Tag)

	// The next increment also verifies before counting.
	writeRecord(t, store, "free", Record{Count: 0, Tag: "bogus"})
	got, err := c.Increment()
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestCounterRestoresUntaggedLowerValue(t *testing.T) {
	tests := []struct {
		name   string
		stored Record
	}{
		{"zeroed without tag", Record{Count: 0, Tag: ""}},
		{"lowered without tag", Record{Count: 12, Tag: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			c := New(store, Config{Key: "trial", Salt: testSalt, Period: Lifetime, Limit: 50})
			require.NoError(t, c.Load())
			for range 40 {
				_, err := c.Increment()
				require.NoError(t, err)
			}

			writeRecord(t, store, "trial", tt.stored)
			got, err := c.Increment()
			require.NoError(t, err)
			assert.Equal(t, 41, got)

			writeRecord(t, store, "trial", tt.stored)
			require.NoError(t, c.Load())
			assert.Equal(t, 41, c.Value())
			rec := readRecord(t, store, "trial")
			assert.Equal(t, 41, rec.Count)
			assert.Equal(t, Tag(testSalt, 41), rec.Tag)
		})
	}
}

func TestCounterLoadCases(t *testing.T) {
	tests := []struct {
		name      string
		stored    *Record
		wantValue int
	}{
		{name: "missing record starts at zero", stored: nil, wantValue: 0},
		{name: "valid record adopted", stored: &Record{Count: 7, Tag: Tag(testSalt, 7)}, wantValue: 7},
		{name: "untagged record adopted and stamped", stored: &Record{Count: 3}, wantValue: 3},
		{name: "mismatched higher record adopted", stored: &Record{Count: 9, Tag: "bogus"}, wantValue: 9},
		{name: "negative count clamped", stored: &Record{Count: -4, Tag: "bogus"}, wantValue: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			if tt.stored != nil {
				writeRecord(t, store, "k", *tt.stored)
			}
			c := New(store, Config{Key: "k", Salt: testSalt, Period: Lifetime})
			require.NoError(t, c.Load())

			assert.Equal(t, tt.wantValue, c.Value())
			rec := readRecord(t, store, "k")
			assert.Equal(t, tt.wantValue, rec.Count)
			assert.Equal(t, Tag(testSalt, tt.wantValue), rec.Tag)
		})
	}
}

func TestCounterMonthlyReset(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)}
	c := New(store, Config{Key: "free", Salt: testSalt, Period: Monthly, Now: clock.Now})
	require.NoError(t, c.Load())
	for range 3 {
		_, err := c.Increment()
		require.NoError(t, err)
	}

	clock.Set(time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC))
	reset, err := c.CheckReset()
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, 0, c.Value())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), c.Boundary())
}

func TestCounterResetRefusedOnClockRollback(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)}
	validated := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	c := New(store, Config{
		Key:           "free",
		Salt:          testSalt,
		Period:        Monthly,
		Now:           clock.Now,
		LastValidated: func() time.Time { return validated },
	})
	require.NoError(t, c.Load())
	for range 4 {
		_, err := c.Increment()
		require.NoError(t, err)
	}
	require.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), c.Boundary())

	// now >= boundary but behind the last validation
	clock.Set(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	reset, err := c.CheckReset()
	assert.ErrorIs(t, err, ErrClockRollback)
	assert.False(t, reset)
	assert.Equal(t, 4, c.Value())

	// once the clock passes the validation time the reset goes through
	clock.Set(time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC))
	reset, err = c.CheckReset()
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, 0, c.Value())
}

func TestCounterLifetimeNeverResets(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(store, Config{Key: "trial", Salt: "v0x41g0_tr14l", Period: Lifetime, Limit: 50, Now: clock.Now})
	require.NoError(t, c.Load())
	_, err := c.Increment()
	require.NoError(t, err)

	clock.Set(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, c.Value())
	assert.True(t, c.Boundary().IsZero())
	assert.False(t, c.LimitReached())
}

func TestCounterSync(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, Config{Key: "free", Salt: testSalt, Period: Lifetime, Limit: 75})
	require.NoError(t, c.Load())
	_, _ = c.Increment()

	require.NoError(t, c.Sync(0))
	assert.Equal(t, 1, c.Value())

	require.NoError(t, c.Sync(75))
	assert.Equal(t, 75, c.Value())
	assert.True(t, c.LimitReached())
	assert.Equal(t, 0, c.Remaining())
}

func TestCounterPersistsAcrossInstances(t *testing.T) {
	store, err := OpenBadger("")
	require.NoError(t, err)
	defer store.Close()

	a := New(store, Config{Key: "trial", Salt: "v0x41g0_tr14l", Period: Lifetime})
	require.NoError(t, a.Load())
	for range 3 {
		_, err := a.Increment()
		require.NoError(t, err)
	}

	b := New(store, Config{Key: "trial", Salt: "v0x41g0_tr14l", Period: Lifetime})
	require.NoError(t, b.Load())
	assert.Equal(t, 3, b.Value())

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
