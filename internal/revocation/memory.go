package revocation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is a process local Store for development and tests. It is not shared
// between instances.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	logger  *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Revoke records the token until expiresAt.
func (s *MemoryStore) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(s.now()) {
		return nil
	}
	key := Key(token)
	s.mu.Lock()
	if current, ok := s.entries[key]; !ok || expiresAt.After(current) {
		s.entries[key] = expiresAt
	}
	s.mu.Unlock()
	return nil
}

// IsRevoked reports membership, dropping the entry if it has already expired.
func (s *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	key := Key(token)
	s.mu.RLock()
	expiresAt, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if s.now().Before(expiresAt) {
		return true, nil
	}

	s.mu.Lock()
	if current, ok := s.entries[key]; ok && !s.now().Before(current) {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return false, nil
}

// Len returns the number of tracked entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Start runs Sweep every interval until Stop is called or ctx ends.
func (s *MemoryStore) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.sweepLoop(ctx, interval)
	})
}

func (s *MemoryStore) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("revocation sweep", zap.Int("removed", n))
			}
		}
	}
}

// Stop halts the sweeper started by Start and waits for it to exit.
func (s *MemoryStore) Stop() {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if started {
		<-s.done
	}
}
