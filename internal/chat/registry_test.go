package chat

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryOpenGetClose(t *testing.T) {
	var opened []string
	r := NewRegistry(RegistryConfig{
		Greeting:  func() string { return "Welcome!" },
		Completer: reply("ok", false),
		OnOpen: func(_ context.Context, visitorID string) {
			opened = append(opened, visitorID)
		},
	})

	s := r.Open(context.Background(), "visitor-a")
	require.Equal(t, []string{"visitor-a"}, opened)
	require.Equal(t, "Welcome!", s.Messages()[0].Content)

	got, err := r.Get(s.ID(), "visitor-a")
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = r.Get(s.ID(), "visitor-b")
	require.ErrorIs(t, err, ErrSessionNotFound, "sessions are private to their visitor")

	r.Close(s.ID(), "visitor-b")
	require.Equal(t, 1, r.Len())

	r.Close(s.ID(), "visitor-a")
	require.Equal(t, 0, r.Len())
	_, err = r.Get(s.ID(), "visitor-a")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.True(t, s.Snapshot().Closed)
}

func TestRegistryCloseIdle(t *testing.T) {
	r := NewRegistry(RegistryConfig{Completer: reply("ok", false)})
	stale := r.Open(context.Background(), "v1")
	fresh := r.Open(context.Background(), "v2")

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-2 * time.Hour)
	stale.mu.Unlock()

	require.Equal(t, 1, r.CloseIdle(time.Hour))
	require.Equal(t, 1, r.Len())
	_, err := r.Get(fresh.ID(), "v2")
	require.NoError(t, err)
	require.True(t, stale.Snapshot().Closed)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(RegistryConfig{Completer: reply("ok", false)})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			visitor := "v" + strconv.Itoa(i)
			s := r.Open(context.Background(), visitor)
			_, _ = s.Submit(context.Background(), "hello")
			r.Close(s.ID(), visitor)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, r.Len())
}

func TestStartSweeperStopsWithContext(t *testing.T) {
	r := NewRegistry(RegistryConfig{Completer: reply("ok", false)})
	s := r.Open(context.Background(), "v1")
	s.mu.Lock()
	s.lastActive = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartSweeper(ctx, r, time.Minute, 10*time.Millisecond)

	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
