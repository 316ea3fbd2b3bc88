package lock

import (
	"context"
	"sync"
)

// Release ends a critical section.
type Release func()

// Locker obtains exclusive locks by key.
type Locker interface {
	Obtain(ctx context.Context, key string) (Release, error)
}

// New returns a Redis locker when cfg.URL is set and a Local one otherwise.
func New(cfg Config) (Locker, error) {
	if cfg.URL == "" {
		return NewLocal(), nil
	}
	return NewRedis(cfg)
}

// RecordKey is the lock key of a record.
func RecordKey(recordID string) string {
	return "record:" + recordID
}

// BatchKey is the lock key of a merge batch.
func BatchKey(batchID string) string {
	return "batch:" + batchID
}

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Obtain blocks until key is free or ctx is done.
func (l *Local) Obtain(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
