package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	t.Parallel()
	m := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "user:1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			counter++
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counter != 20 || maxSeen != 1 {
		t.Fatalf("expected serialized access, counter=%d max concurrent=%d", counter, maxSeen)
	}
	if n := m.size(); n != 0 {
		t.Fatalf("expected no tracked keys after release, got %d", n)
	}
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b while a is held: %v", err)
	}
	releaseB()
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	t.Parallel()
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, "k"); err == nil {
		t.Fatalf("expected timeout while key is held")
	}
	release()
	release()
	if n := m.size(); n != 0 {
		t.Fatalf("expected key dropped after release, got %d", n)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("NIBBLES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NIBBLES_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	l := NewRedisLocker(client, "nibbles:test:"+time.Now().Format("150405.000000")+":")
	release, err := l.Acquire(ctx, "user:7")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "user:7"); err == nil {
		t.Fatalf("expected second acquire to block until timeout")
	}
	release()

	again, err := l.Acquire(ctx, "user:7")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}
