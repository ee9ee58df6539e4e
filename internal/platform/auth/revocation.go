package auth

import (
	"sync"
	"time"
)

// RevocationList remembers logged-out token ids until the tokens would have
// expired anyway. It is process-local: a restart forgets revocations, which
// bounds their lifetime to one token TTL.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	done    chan struct{}
	once    sync.Once
}

// NewRevocationList starts a goroutine that drops expired entries every
// interval. Call Close to stop it.
func NewRevocationList(interval time.Duration) *RevocationList {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := &RevocationList{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go l.cleanupLoop(interval)
	return l
}

func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	l.mu.Lock()
	l.entries[jti] = expiresAt
	l.mu.Unlock()
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok
}

func (l *RevocationList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *RevocationList) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *RevocationList) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.cleanup(now)
		}
	}
}

func (l *RevocationList) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for jti, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, jti)
		}
	}
}
