// SPDX-License-Identifier: GPL-3.0-or-later

package vclock_test

import (
	"testing"
	"time"

	"github.com/rbmk-project/pacesim/vclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("events fire in time order", func(t *testing.T) {
		s := vclock.New()
		var got []time.Duration
		record := func() { got = append(got, s.Now()) }
		s.After(3*time.Second, record)
		s.After(1*time.Second, record)
		s.After(2*time.Second, record)

		s.Run()

		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, got)
		assert.Equal(t, 3*time.Second, s.Now())
		assert.Equal(t, 0, s.Pending())
	})

	t.Run("same instant preserves registration order", func(t *testing.T) {
		s := vclock.New()
		var got []int
		for i := 0; i < 5; i++ {
			s.At(time.Second, func() { got = append(got, i) })
		}

		s.Run()

		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	})

	t.Run("callbacks may schedule more callbacks", func(t *testing.T) {
		s := vclock.New()
		count := 0
		var tick func()
		tick = func() {
			count++
			if count < 10 {
				s.After(100*time.Millisecond, tick)
			}
		}
		s.After(0, tick)

		s.Run()

		assert.Equal(t, 10, count)
		assert.Equal(t, 900*time.Millisecond, s.Now())
	})

	t.Run("past times are clamped to now", func(t *testing.T) {
		s := vclock.New()
		s.RunUntil(5 * time.Second)
		ev := s.At(time.Second, func() {})
		assert.Equal(t, 5*time.Second, ev.Time())
		ev = s.After(-time.Second, func() {})
		assert.Equal(t, 5*time.Second, ev.Time())
	})

	t.Run("cancel prevents firing", func(t *testing.T) {
		s := vclock.New()
		fired := false
		ev := s.After(time.Second, func() { fired = true })
		require.True(t, ev.Pending())

		assert.True(t, s.Cancel(ev))
		assert.False(t, s.Cancel(ev))
		assert.False(t, ev.Pending())

		s.Run()
		assert.False(t, fired)
	})

	t.Run("cancel after firing returns false", func(t *testing.T) {
		s := vclock.New()
		ev := s.After(time.Second, func() {})
		s.Run()
		assert.False(t, s.Cancel(ev))
	})

	t.Run("cancel from a callback at the same instant", func(t *testing.T) {
		s := vclock.New()
		fired := false
		var second *vclock.Event
		s.At(time.Second, func() { s.Cancel(second) })
		second = s.At(time.Second, func() { fired = true })

		s.Run()

		assert.False(t, fired)
	})

	t.Run("run until leaves later events pending", func(t *testing.T) {
		s := vclock.New()
		var got []time.Duration
		for _, d := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
			s.At(d, func() { got = append(got, s.Now()) })
		}

		s.RunUntil(2 * time.Second)

		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, got)
		assert.Equal(t, 2*time.Second, s.Now())
		assert.Equal(t, 1, s.Pending())
	})

	t.Run("run until advances an idle clock", func(t *testing.T) {
		s := vclock.New()
		s.RunUntil(20 * time.Second)
		assert.Equal(t, 20*time.Second, s.Now())
	})

	t.Run("stop interrupts run", func(t *testing.T) {
		s := vclock.New()
		count := 0
		for i := 1; i <= 5; i++ {
			s.At(time.Duration(i)*time.Second, func() {
				count++
				if count == 2 {
					s.Stop()
				}
			})
		}

		s.Run()

		assert.Equal(t, 2, count)
		assert.Equal(t, 2*time.Second, s.Now())
		assert.Equal(t, 3, s.Pending())
	})

	t.Run("step on empty queue", func(t *testing.T) {
		s := vclock.New()
		assert.False(t, s.Step())
	})
}
