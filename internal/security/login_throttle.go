package security

import (
	"strings"
	"sync"
	"time"
)

const (
	MaxFailedLoginAttempts = 5
	LoginLockoutDuration   = 15 * time.Minute
)

// LoginThrottle counts failed logins per identity and locks the identity out
// once the threshold is reached. State lives in process memory only: a
// restart clears every lock, and each server instance keeps its own counters.
//
// Every key owns a mutex, so concurrent attempts against one identity are
// serialized without slowing down attempts against other identities.
type LoginThrottle struct {
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	entries     sync.Map // string -> *throttleEntry
}

type throttleEntry struct {
	mu           sync.Mutex
	failures     int
	blockedUntil time.Time
	removed      bool
}

func NewLoginThrottle(now func() time.Time) *LoginThrottle {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LoginThrottle{
		maxAttempts: MaxFailedLoginAttempts,
		lockout:     LoginLockoutDuration,
		now:         now,
	}
}

// RecordFailure counts a failed attempt and reports whether this failure
// locked the identity.
func (t *LoginThrottle) RecordFailure(identity string) bool {
	key := throttleKey(identity)
	for {
		value, _ := t.entries.LoadOrStore(key, &throttleEntry{})
		entry := value.(*throttleEntry)

		entry.mu.Lock()
		if entry.removed {
			// Lost a race with a reset; retry against the fresh entry.
			entry.mu.Unlock()
			continue
		}

		now := t.now()
		if !entry.blockedUntil.IsZero() {
			if !now.After(entry.blockedUntil) {
				entry.mu.Unlock()
				return false
			}
			entry.failures = 0
			entry.blockedUntil = time.Time{}
		}

		entry.failures++
		locked := entry.failures >= t.maxAttempts
		if locked {
			entry.blockedUntil = now.Add(t.lockout)
		}
		entry.mu.Unlock()
		return locked
	}
}

func (t *LoginThrottle) RecordSuccess(identity string) {
	key := throttleKey(identity)
	value, ok := t.entries.Load(key)
	if !ok {
		return
	}
	entry := value.(*throttleEntry)

	entry.mu.Lock()
	t.removeLocked(key, entry)
	entry.mu.Unlock()
}

// IsBlocked reports whether the identity is locked right now. An expired lock
// is cleared as a side effect.
func (t *LoginThrottle) IsBlocked(identity string) bool {
	key := throttleKey(identity)
	value, ok := t.entries.Load(key)
	if !ok {
		return false
	}
	entry := value.(*throttleEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed || entry.blockedUntil.IsZero() {
		return false
	}
	if !t.now().After(entry.blockedUntil) {
		return true
	}

	t.removeLocked(key, entry)
	return false
}

func (t *LoginThrottle) RemainingLock(identity string) time.Duration {
	value, ok := t.entries.Load(throttleKey(identity))
	if !ok {
		return 0
	}
	entry := value.(*throttleEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed || entry.blockedUntil.IsZero() {
		return 0
	}
	remaining := entry.blockedUntil.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *LoginThrottle) Failures(identity string) int {
	value, ok := t.entries.Load(throttleKey(identity))
	if !ok {
		return 0
	}
	entry := value.(*throttleEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return 0
	}
	return entry.failures
}

// removeLocked must be called with entry.mu held.
func (t *LoginThrottle) removeLocked(key string, entry *throttleEntry) {
	entry.removed = true
	entry.failures = 0
	entry.blockedUntil = time.Time{}
	t.entries.CompareAndDelete(key, entry)
}

func throttleKey(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
