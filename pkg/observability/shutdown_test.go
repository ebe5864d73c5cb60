package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"custom timeout", 10 * time.Second, 10 * time.Second},
		{"zero timeout uses default", 0, 30 * time.Second},
		{"negative timeout uses default", -time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewShutdownManager(nil, tt.timeout)
			assert.Equal(t, tt.want, sm.shutdownTimeout)
			assert.NotNil(t, sm.logger)
		})
	}
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(Discard(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	sm.Register("store", record("store"))
	sm.Register("cache", record("cache"))
	sm.Register("server", record("server"))
	sm.Register("ignored", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"server", "cache", "store"}, order)

	// Second call is a no-op
	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownManager_JoinsErrors(t *testing.T) {
	sm := NewShutdownManager(Discard(), time.Second)
	errStore := errors.New("store close failed")
	errOTel := errors.New("exporter unreachable")

	ran := false
	sm.Register("store", func(context.Context) error { return errStore })
	sm.Register("middle", func(context.Context) error { ran = true; return nil })
	sm.Register("otel", func(context.Context) error { return errOTel })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.ErrorIs(t, err, errOTel)
	assert.True(t, ran, "a failing hook does not stop later hooks")
	assert.Contains(t, err.Error(), "store: store close failed")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(Discard(), 20*time.Millisecond)

	skipped := true
	sm.Register("first", func(context.Context) error { skipped = false; return nil })
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped, "hooks after the deadline are not run")
}

func TestShutdownManager_RegisterServer(t *testing.T) {
	server := httptest.NewUnstartedServer(http.NotFoundHandler())
	server.Start()
	defer server.Close()

	sm := NewShutdownManager(Discard(), time.Second)
	sm.RegisterServer("http", server.Config)

	require.NoError(t, sm.Shutdown(context.Background()))

	_, err := http.Get(server.URL)
	assert.Error(t, err)
}

func TestShutdownManager_WaitForSignalContextDone(t *testing.T) {
	sm := NewShutdownManager(Discard(), time.Second)

	called := make(chan struct{})
	sm.Register("store", func(ctx context.Context) error {
		assert.NoError(t, ctx.Err(), "hooks get a live context after the parent is cancelled")
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForSignal(ctx))
	select {
	case <-called:
	default:
		t.Fatal("expected hook to run")
	}
}
