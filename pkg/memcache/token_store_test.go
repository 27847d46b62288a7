package memcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokensCachesWithinSafetyWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewAccessTokensWithClock(func() time.Time { return now })

	var calls int32
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		n := atomic.AddInt32(&calls, 1)
		return "tok-" + string(rune('0'+n)), 3600 * time.Second, nil
	}

	tok, expiresAt, err := store.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, now.Add(3240*time.Second), expiresAt)

	now = now.Add(3239 * time.Second)
	tok, _, err = store.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// past 90% of the advertised lifetime the token is refreshed
	now = now.Add(2 * time.Second)
	tok, _, err = store.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestAccessTokensSingleFetchUnderConcurrency(t *testing.T) {
	store := NewAccessTokens()
	var calls int32
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "shared", time.Hour, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, _, err := store.Get(context.Background(), fetch)
			assert.NoError(t, err)
			assert.Equal(t, "shared", tok)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAccessTokensErrorIsNotCached(t *testing.T) {
	store := NewAccessTokens()
	_, _, err := store.Get(context.Background(), func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, errors.New("boom")
	})
	require.Error(t, err)

	tok, _, err := store.Get(context.Background(), func(ctx context.Context) (string, time.Duration, error) {
		return "ok", time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", tok)

	store.Invalidate()
	tok, _, err = store.Get(context.Background(), func(ctx context.Context) (string, time.Duration, error) {
		return "again", time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "again", tok)
}

func TestAccessTokensFetchOutlivesCancelledCaller(t *testing.T) {
	store := NewAccessTokens()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var calls int32
	var fetchErr error
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(started) })
		<-release
		fetchErr = ctx.Err()
		return "shared", time.Hour, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := store.Get(ctx, fetch)
		first <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	second := make(chan string, 1)
	go func() {
		tok, _, err := store.Get(context.Background(), fetch)
		assert.NoError(t, err)
		second <- tok
	}()
	close(release)

	assert.Equal(t, "shared", <-second)
	assert.NoError(t, fetchErr)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
