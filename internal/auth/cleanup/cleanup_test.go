package cleanup

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlibekovAA/safecheck/internal/common/logger"
)

type fakeDeleter struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (f *fakeDeleter) DeleteExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.deleted, f.err
}

func TestStartRefreshTokenCleanup_RunsUntilCancelled(t *testing.T) {
	repo := &fakeDeleter{deleted: 5}
	log := logger.NewWriter(io.Discard, "test", "error")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartRefreshTokenCleanup(ctx, repo, 5*time.Millisecond, log)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("cleanup did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop after cancel")
	}
}

func TestRunOnce_ErrorIsLogged(t *testing.T) {
	repo := &fakeDeleter{err: errors.New("cleanup error")}
	log := logger.NewWriter(io.Discard, "test", "error")

	runOnce(context.Background(), repo, log)

	if repo.calls.Load() != 1 {
		t.Errorf("expected one call, got %d", repo.calls.Load())
	}
}
