package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []string
	c.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "a") })
	c.AfterFunc(time.Hour, func() { fired = append(fired, "late") })

	c.Advance(5 * time.Minute)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
}

func TestFake_ChainedTimersWithinWindow(t *testing.T) {
	c := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var at []time.Time
	c.AfterFunc(time.Minute, func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Minute, func() { at = append(at, c.Now()) })
	})

	c.Advance(10 * time.Minute)

	if assert.Len(t, at, 2) {
		assert.Equal(t, time.Minute, at[1].Sub(at[0]))
	}
}

func TestFake_Stop(t *testing.T) {
	c := NewFake(time.Now())

	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, called)
}

func TestFake_NegativeDelayFiresOnZeroAdvance(t *testing.T) {
	c := NewFake(time.Now())

	called := false
	c.AfterFunc(-time.Hour, func() { called = true })
	c.Advance(0)

	assert.True(t, called)
}
