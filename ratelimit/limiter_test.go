package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Limiter_Allows_Up_To_Max(t *testing.T) {
	req := require.New(t)
	limiter := NewLimiter(60, time.Minute)

	accepted, rejected := 0, 0
	for i := 0; i < 61; i++ {
		if limiter.Allow("carol") {
			accepted++
		} else {
			rejected++
		}
	}
	req.Equal(60, accepted)
	req.Equal(1, rejected)
}

func Test_Limiter_Senders_Are_Independent(t *testing.T) {
	req := require.New(t)
	limiter := NewLimiter(1, time.Minute)

	req.True(limiter.Allow("carol"))
	req.False(limiter.Allow("carol"))
	req.True(limiter.Allow("bob"))
}

func Test_Limiter_Window_Resets(t *testing.T) {
	req := require.New(t)
	limiter := NewLimiter(2, time.Minute)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	req.True(limiter.Allow("carol"))
	req.True(limiter.Allow("carol"))
	req.False(limiter.Allow("carol"))

	// Rejected attempts keep counting inside the window.
	req.False(limiter.Allow("carol"))

	now = now.Add(time.Minute + time.Second)
	req.True(limiter.Allow("carol"))
}

func Test_Sweep_Drops_Idle_Senders(t *testing.T) {
	req := require.New(t)
	limiter := NewLimiter(10, time.Minute)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("carol")
	limiter.Allow("bob")
	req.Zero(limiter.Sweep())

	now = now.Add(4 * time.Minute)
	limiter.Allow("bob") // bob is active again in the new window
	req.Equal(1, limiter.Sweep())
}
