// ABOUTME: Tests for the session manager: thread reuse, reset, and per-session locking.
// ABOUTME: Uses a counting stub thread service to assert external call counts.

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
)

// stubThreadService counts thread creations and deletions.
type stubThreadService struct {
	creates atomic.Int64
	deletes atomic.Int64
	err     error
}

func (s *stubThreadService) CreateThread(ctx context.Context) (*agents.Thread, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := s.creates.Add(1)
	return &agents.Thread{ID: fmt.Sprintf("thread_%d", n)}, nil
}

func (s *stubThreadService) DeleteThread(ctx context.Context, threadID string) error {
	s.deletes.Add(1)
	return nil
}

func TestManager_ConsecutiveTurnsReuseThread(t *testing.T) {
	svc := &stubThreadService{}
	m := NewManager(NewMemoryStore(), svc, nil)
	ctx := context.Background()

	release := m.Acquire("sess-1")
	first, err := m.ResolveOrCreate(ctx, "sess-1")
	release()
	require.NoError(t, err)

	release = m.Acquire("sess-1")
	second, err := m.ResolveOrCreate(ctx, "sess-1")
	release()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Creation performs one external call; resolution performs none
	assert.Equal(t, int64(1), svc.creates.Load())
}

func TestManager_ClearYieldsNewThread(t *testing.T) {
	svc := &stubThreadService{}
	m := NewManager(NewMemoryStore(), svc, nil)
	ctx := context.Background()

	release := m.Acquire("sess-1")
	first, err := m.ResolveOrCreate(ctx, "sess-1")
	release()
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, "sess-1"))
	assert.Equal(t, int64(1), svc.deletes.Load())

	release = m.Acquire("sess-1")
	second, err := m.ResolveOrCreate(ctx, "sess-1")
	release()
	require.NoError(t, err)

	// No reuse of deleted threads
	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), svc.creates.Load())
}

func TestManager_ClearUnknownSessionIsNoop(t *testing.T) {
	svc := &stubThreadService{}
	m := NewManager(NewMemoryStore(), svc, nil)

	require.NoError(t, m.Clear(context.Background(), "never-seen"))
	assert.Equal(t, int64(0), svc.deletes.Load())
}

func TestManager_ConcurrentFirstTurnsCreateOneThread(t *testing.T) {
	svc := &stubThreadService{}
	m := NewManager(NewMemoryStore(), svc, nil)
	ctx := context.Background()

	const workers = 16
	threadIDs := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := m.Acquire("sess-1")
			defer release()
			id, err := m.ResolveOrCreate(ctx, "sess-1")
			require.NoError(t, err)
			threadIDs[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), svc.creates.Load(), "check-then-act must not create two threads")
	for _, id := range threadIDs {
		assert.Equal(t, threadIDs[0], id)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	svc := &stubThreadService{}
	m := NewManager(NewMemoryStore(), svc, nil)
	ctx := context.Background()

	release := m.Acquire("sess-a")
	a, err := m.ResolveOrCreate(ctx, "sess-a")
	release()
	require.NoError(t, err)

	release = m.Acquire("sess-b")
	b, err := m.ResolveOrCreate(ctx, "sess-b")
	release()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, int64(2), svc.creates.Load())
}

func TestManager_CreateThreadFailureSurfaces(t *testing.T) {
	svc := &stubThreadService{err: fmt.Errorf("service down")}
	m := NewManager(NewMemoryStore(), svc, nil)

	release := m.Acquire("sess-1")
	defer release()
	_, err := m.ResolveOrCreate(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")
}
