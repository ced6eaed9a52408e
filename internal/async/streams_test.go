package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStreamsConsume_RetriesReadErrorsUntilCancelled(t *testing.T) {
	var reads atomic.Int32
	q := &StreamsQueue{
		stream:     "notices",
		logger:     quietLogger(),
		retryDelay: time.Millisecond,
		readGroup: func(ctx context.Context) ([]redis.XStream, error) {
			reads.Add(1)
			return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	handled := false
	err := q.Consume(ctx, func(context.Context, Job) error {
		handled = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := reads.Load(); n < 3 {
		t.Fatalf("expected at least 3 read attempts, got %d", n)
	}
	if handled {
		t.Fatalf("expected handler not to run on failed reads")
	}
}

func TestStreamsConsume_RecoversAfterTransientError(t *testing.T) {
	var reads atomic.Int32
	q := &StreamsQueue{
		stream:     "notices",
		logger:     quietLogger(),
		retryDelay: time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.readGroup = func(ctx context.Context) ([]redis.XStream, error) {
		switch reads.Add(1) {
		case 1:
			return nil, errors.New("i/o timeout")
		case 2:
			return nil, redis.Nil
		default:
			cancel()
			return nil, ctx.Err()
		}
	}

	err := q.Consume(ctx, func(context.Context, Job) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if n := reads.Load(); n != 3 {
		t.Fatalf("expected 3 reads, got %d", n)
	}
}

func TestStreamsBackoff_DoublesAndCaps(t *testing.T) {
	q := &StreamsQueue{retryDelay: time.Second}
	cases := map[int]time.Duration{
		1:  time.Second,
		2:  2 * time.Second,
		3:  4 * time.Second,
		10: maxRetryDelay,
	}
	for failures, want := range cases {
		if got := q.backoff(failures); got != want {
			t.Fatalf("expected %v after %d failures, got %v", want, failures, got)
		}
	}
}
