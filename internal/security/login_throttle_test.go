package security

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginThrottle_Threshold(t *testing.T) {
	clock := newFakeClock()
	throttle := NewLoginThrottle(clock.Now)

	for i := 1; i < MaxFailedLoginAttempts; i++ {
		assert.False(t, throttle.RecordFailure("a@x.com"))
		assert.False(t, throttle.IsBlocked("a@x.com"), "failure %d", i)
		assert.Equal(t, time.Duration(0), throttle.RemainingLock("a@x.com"))
	}

	assert.True(t, throttle.RecordFailure("a@x.com"), "the fifth failure locks")
	assert.True(t, throttle.IsBlocked("a@x.com"))
	assert.Equal(t, LoginLockoutDuration, throttle.RemainingLock("a@x.com"))
}

func TestLoginThrottle_LazyExpiry(t *testing.T) {
	clock := newFakeClock()
	throttle := NewLoginThrottle(clock.Now)

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		throttle.RecordFailure("a@x.com")
	}

	clock.Advance(time.Second)
	require.True(t, throttle.IsBlocked("a@x.com"))
	assert.Equal(t, LoginLockoutDuration-time.Second, throttle.RemainingLock("a@x.com"))

	clock.Advance(LoginLockoutDuration - time.Second)
	assert.True(t, throttle.IsBlocked("a@x.com"), "still blocked at the exact unlock instant")
	assert.Equal(t, time.Duration(0), throttle.RemainingLock("a@x.com"))

	clock.Advance(time.Second)
	assert.False(t, throttle.IsBlocked("a@x.com"))
	assert.Equal(t, 0, throttle.Failures("a@x.com"))
	assert.Equal(t, time.Duration(0), throttle.RemainingLock("a@x.com"))
}

func TestLoginThrottle_SuccessResets(t *testing.T) {
	for count := 1; count < MaxFailedLoginAttempts; count++ {
		t.Run(fmt.Sprintf("after %d failures", count), func(t *testing.T) {
			throttle := NewLoginThrottle(newFakeClock().Now)

			for i := 0; i < count; i++ {
				throttle.RecordFailure("a@x.com")
			}
			require.Equal(t, count, throttle.Failures("a@x.com"))

			throttle.RecordSuccess("a@x.com")
			assert.Equal(t, 0, throttle.Failures("a@x.com"))

			throttle.RecordFailure("a@x.com")
			assert.Equal(t, 1, throttle.Failures("a@x.com"))
		})
	}
}

func TestLoginThrottle_SuccessClearsLock(t *testing.T) {
	throttle := NewLoginThrottle(newFakeClock().Now)

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		throttle.RecordFailure("a@x.com")
	}
	require.True(t, throttle.IsBlocked("a@x.com"))

	throttle.RecordSuccess("a@x.com")
	assert.False(t, throttle.IsBlocked("a@x.com"))
	assert.Equal(t, time.Duration(0), throttle.RemainingLock("a@x.com"))
}

func TestLoginThrottle_FailureWhileLockedKeepsLock(t *testing.T) {
	clock := newFakeClock()
	throttle := NewLoginThrottle(clock.Now)

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		throttle.RecordFailure("a@x.com")
	}
	clock.Advance(10 * time.Minute)
	assert.False(t, throttle.RecordFailure("a@x.com"))

	assert.Equal(t, 5*time.Minute, throttle.RemainingLock("a@x.com"))
	assert.Equal(t, MaxFailedLoginAttempts, throttle.Failures("a@x.com"))
}

func TestLoginThrottle_FailureAfterUnobservedExpiryStartsOver(t *testing.T) {
	clock := newFakeClock()
	throttle := NewLoginThrottle(clock.Now)

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		throttle.RecordFailure("a@x.com")
	}
	clock.Advance(LoginLockoutDuration + time.Second)

	throttle.RecordFailure("a@x.com")
	assert.Equal(t, 1, throttle.Failures("a@x.com"))
	assert.False(t, throttle.IsBlocked("a@x.com"))
}

func TestLoginThrottle_KeysAreIndependentAndNormalized(t *testing.T) {
	throttle := NewLoginThrottle(newFakeClock().Now)

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		throttle.RecordFailure("  A@X.com ")
	}

	assert.True(t, throttle.IsBlocked("a@x.com"))
	assert.False(t, throttle.IsBlocked("b@x.com"))
	assert.Equal(t, 0, throttle.Failures("b@x.com"))
}

func TestLoginThrottle_ConcurrentFailuresAreNotLost(t *testing.T) {
	throttle := NewLoginThrottle(newFakeClock().Now)

	var wg sync.WaitGroup
	for i := 0; i < MaxFailedLoginAttempts-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			throttle.RecordFailure("a@x.com")
		}()
	}
	wg.Wait()

	assert.Equal(t, MaxFailedLoginAttempts-1, throttle.Failures("a@x.com"))
	assert.False(t, throttle.IsBlocked("a@x.com"))

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			throttle.RecordFailure("a@x.com")
		}()
	}
	wg.Wait()

	assert.True(t, throttle.IsBlocked("a@x.com"))
	assert.Equal(t, MaxFailedLoginAttempts, throttle.Failures("a@x.com"))
}

func TestLoginThrottle_ConcurrentResetAndFailures(t *testing.T) {
	throttle := NewLoginThrottle(newFakeClock().Now)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			throttle.RecordFailure("a@x.com")
		}()
		go func() {
			defer wg.Done()
			throttle.RecordSuccess("a@x.com")
		}()
	}
	wg.Wait()

	failures := throttle.Failures("a@x.com")
	assert.GreaterOrEqual(t, failures, 0)
	assert.LessOrEqual(t, failures, MaxFailedLoginAttempts)

	throttle.RecordSuccess("a@x.com")
	assert.Equal(t, 0, throttle.Failures("a@x.com"))
	assert.False(t, throttle.IsBlocked("a@x.com"))
}
