package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)} }

func foods(names ...string) []models.FoodItem {
	out := make([]models.FoodItem, len(names))
	for i, n := range names {
		out[i] = models.FoodItem{ID: "id-" + n, Name: n, Calories: 100}
	}
	return out
}

func TestCache_FreshUntilTTL(t *testing.T) {
	clk := newClock()
	c := NewCache(5*time.Minute, WithClock(clk.Now))
	c.Put("rice", foods("Rice"))

	clk.Advance(4*time.Minute + 59*time.Second)
	got, ok := c.Fresh("rice")
	require.True(t, ok)
	assert.Equal(t, foods("Rice"), got)

	clk.Advance(time.Second)
	_, ok = c.Fresh("rice")
	assert.False(t, ok, "exactly TTL old is stale")

	stale, at, ok := c.Lookup("rice")
	require.True(t, ok)
	assert.Equal(t, foods("Rice"), stale)
	assert.Equal(t, clk.Now().Add(-5*time.Minute), at)
}

func TestCache_EvictsTenOldestOnOverflow(t *testing.T) {
	clk := newClock()
	c := NewCache(time.Hour, WithClock(clk.Now))

	for i := 0; i < DefaultCapacity; i++ {
		c.Put(fmt.Sprintf("q%02d", i), foods("x"))
		clk.Advance(time.Second)
	}
	require.Equal(t, 50, c.Len())

	c.Put("q50", foods("x"))
	assert.Equal(t, 41, c.Len())
	for i := 0; i < 10; i++ {
		_, _, ok := c.Lookup(fmt.Sprintf("q%02d", i))
		assert.False(t, ok, "q%02d should be evicted", i)
	}
	for _, k := range []string{"q10", "q49", "q50"} {
		_, _, ok := c.Lookup(k)
		assert.True(t, ok, k)
	}
}

func TestCache_RePutRefreshesAge(t *testing.T) {
	clk := newClock()
	c := NewCache(time.Hour, WithClock(clk.Now), WithCapacity(20))

	for i := 0; i < 20; i++ {
		c.Put(fmt.Sprintf("q%02d", i), foods("x"))
		clk.Advance(time.Second)
	}
	// q00 becomes the newest entry.
	c.Put("q00", foods("y"))
	clk.Advance(time.Second)
	c.Put("q20", foods("x"))

	_, _, ok := c.Lookup("q00")
	assert.True(t, ok)
	_, _, ok = c.Lookup("q01")
	assert.False(t, ok)
	assert.Equal(t, 11, c.Len())
}

func TestCache_ReadsDoNotReorder(t *testing.T) {
	clk := newClock()
	c := NewCache(time.Hour, WithClock(clk.Now), WithCapacity(11))
	for i := 0; i < 11; i++ {
		c.Put(fmt.Sprintf("q%02d", i), foods("x"))
		clk.Advance(time.Second)
	}
	_, _ = c.Fresh("q00")
	_, _, _ = c.Lookup("q00")

	c.Put("q11", foods("x"))
	_, _, ok := c.Lookup("q00")
	assert.False(t, ok, "reading must not protect an entry from eviction")
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(time.Hour)
	in := foods("Rice")
	c.Put("rice", in)
	in[0].Name = "mutated"

	got, _ := c.Fresh("rice")
	got[0].Name = "also mutated"

	again, _ := c.Fresh("rice")
	assert.Equal(t, "Rice", again[0].Name)
}

func TestCache_Purge(t *testing.T) {
	c := NewCache(time.Hour)
	c.Put("rice", foods("Rice"))
	c.Purge()
	assert.Zero(t, c.Len())
}
