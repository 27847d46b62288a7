package memcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SafetyFraction is the share of an advertised token lifetime we are willing to use.
const SafetyFraction = 0.9

// FetchTimeout bounds one shared token fetch.
const FetchTimeout = 30 * time.Second

// FetchFunc obtains a fresh token and its advertised lifetime.
type FetchFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

type TokenStore interface {
	// Get returns the cached token, refreshing it with fetch when missing or stale.
	Get(ctx context.Context, fetch FetchFunc) (string, time.Time, error)

	// Invalidate drops the cached token (e.g. after a 401).
	Invalidate()
}

type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// AccessTokens caches a single bearer token. Concurrent callers that find it
// stale share one fetch.
type AccessTokens struct {
	mu    sync.RWMutex
	entry tokenEntry
	group singleflight.Group
	now   func() time.Time
}

func NewAccessTokens() *AccessTokens {
	return &AccessTokens{now: time.Now}
}

func NewAccessTokensWithClock(now func() time.Time) *AccessTokens {
	return &AccessTokens{now: now}
}

func (s *AccessTokens) cached() (tokenEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry.value != "" && s.now().Before(s.entry.expiresAt) {
		return s.entry, true
	}
	return tokenEntry{}, false
}

func (s *AccessTokens) Get(ctx context.Context, fetch FetchFunc) (string, time.Time, error) {
	if e, ok := s.cached(); ok {
		return e.value, e.expiresAt, nil
	}

	// The fetch is shared by every waiter, so it must not die with the
	// caller that happened to start it.
	ch := s.group.DoChan("token", func() (any, error) {
		if e, ok := s.cached(); ok {
			return e, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		token, expiresIn, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		usable := time.Duration(float64(expiresIn) * SafetyFraction)
		e := tokenEntry{value: token, expiresAt: s.now().Add(usable)}
		s.mu.Lock()
		s.entry = e
		s.mu.Unlock()
		return e, nil
	})
	select {
	case <-ctx.Done():
		return "", time.Time{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", time.Time{}, r.Err
		}
		e := r.Val.(tokenEntry)
		return e.value, e.expiresAt, nil
	}
}

func (s *AccessTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = tokenEntry{}
}
