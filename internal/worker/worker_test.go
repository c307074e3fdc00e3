package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWorker struct {
	name    string
	runFunc func(ctx context.Context) error
	mu      sync.Mutex
	started bool
}

func newStubWorker(name string, runFunc func(ctx context.Context) error) *stubWorker {
	return &stubWorker{name: name, runFunc: runFunc}
}

func (w *stubWorker) Name() string { return w.name }

func (w *stubWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	if w.runFunc != nil {
		return w.runFunc(ctx)
	}
	<-ctx.Done()
	return nil
}

func (w *stubWorker) wasStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// blockUntilCanceled is the run func of a well-behaved worker.
func blockUntilCanceled(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("[%s] %s", level, msg))
}

func (l *recordingLogger) Info(msg string, _ ...zap.Field)  { l.log("INFO", msg) }
func (l *recordingLogger) Error(msg string, _ ...zap.Field) { l.log("ERROR", msg) }
func (l *recordingLogger) Debug(msg string, _ ...zap.Field) { l.log("DEBUG", msg) }
func (l *recordingLogger) Warn(msg string, _ ...zap.Field)  { l.log("WARN", msg) }

func (l *recordingLogger) logged(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func TestHealthTracker_MarkHealthy(t *testing.T) {
	t.Parallel()

	tracker := NewHealthTracker()
	tracker.MarkHealthy("dispatcher")

	status := tracker.GetStatus()
	assert.Equal(t, "healthy", status["status"])

	workers := status["workers"].(map[string]WorkerHealth)
	require.Len(t, workers, 1)
	assert.Equal(t, WorkerStatusHealthy, workers["dispatcher"].Status)
	assert.False(t, workers["dispatcher"].LastCheck.IsZero())
}

func TestHealthTracker_MarkFailed(t *testing.T) {
	t.Parallel()

	tracker := NewHealthTracker()
	tracker.MarkFailed("retry-scheduler")

	status := tracker.GetStatus()
	assert.Equal(t, "failed", status["status"])

	workers := status["workers"].(map[string]WorkerHealth)
	assert.Equal(t, WorkerStatusFailed, workers["retry-scheduler"].Status)
}

func TestHealthTracker_OneFailedWorkerFailsTheWhole(t *testing.T) {
	t.Parallel()

	tracker := NewHealthTracker()
	tracker.MarkHealthy("api-server")
	tracker.MarkHealthy("dispatcher")
	assert.True(t, tracker.IsHealthy())

	tracker.MarkFailed("dispatcher")
	assert.False(t, tracker.IsHealthy())
}

func TestHealthTracker_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	tracker := NewHealthTracker()

	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("lane-%d", i)
			if i%2 == 0 {
				tracker.MarkHealthy(name)
			} else {
				tracker.MarkFailed(name)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.IsHealthy()
			_ = tracker.GetStatus()
		}()
	}
	wg.Wait()

	workers := tracker.GetStatus()["workers"].(map[string]WorkerHealth)
	assert.Len(t, workers, n)
}

func TestSupervisor_Register(t *testing.T) {
	logger := &recordingLogger{}
	supervisor := NewWorkerSupervisor(logger)

	supervisor.Register(newStubWorker("api-server", nil))

	assert.Len(t, supervisor.workers, 1)
	assert.True(t, logger.logged("worker registered"))
}

func TestSupervisor_RegisterDuplicatePanics(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{})
	supervisor.Register(newStubWorker("dispatcher", nil))

	assert.Panics(t, func() {
		supervisor.Register(newStubWorker("dispatcher", nil))
	})
}

func TestSupervisor_RunNoWorkers(t *testing.T) {
	logger := &recordingLogger{}
	supervisor := NewWorkerSupervisor(logger)

	err := supervisor.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workers registered")
	assert.True(t, logger.logged("no workers registered"))
}

func TestSupervisor_RunTracksHealthAndStopsOnCancel(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{})

	api := newStubWorker("api-server", blockUntilCanceled)
	dispatcher := newStubWorker("dispatcher", blockUntilCanceled)
	supervisor.Register(api)
	supervisor.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- supervisor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return api.wasStarted() && dispatcher.wasStarted()
	}, time.Second, 10*time.Millisecond)

	tracker := supervisor.GetHealthTracker()
	assert.True(t, tracker.IsHealthy())

	status := tracker.GetStatus()
	workers := status["workers"].(map[string]WorkerHealth)
	assert.Len(t, workers, 2)
	assert.NotZero(t, status["timestamp"])

	cancel()
	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after context cancel")
	}
}

func TestSupervisor_FailedWorkerDoesNotStopTheOthers(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{})

	supervisor.Register(newStubWorker("api-server", blockUntilCanceled))
	supervisor.Register(newStubWorker("retry-scheduler", func(ctx context.Context) error {
		return errors.New("redis connection lost")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- supervisor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !supervisor.GetHealthTracker().IsHealthy()
	}, time.Second, 10*time.Millisecond)

	workers := supervisor.GetHealthTracker().GetStatus()["workers"].(map[string]WorkerHealth)
	assert.Equal(t, WorkerStatusFailed, workers["retry-scheduler"].Status)
	assert.Equal(t, WorkerStatusHealthy, workers["api-server"].Status)

	// The healthy worker keeps the supervisor running.
	select {
	case <-errChan:
		t.Fatal("supervisor returned while a worker was still running")
	default:
	}

	cancel()
	err := <-errChan
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisor_AllWorkersExitedUnexpectedly(t *testing.T) {
	logger := &recordingLogger{}
	supervisor := NewWorkerSupervisor(logger)

	supervisor.Register(newStubWorker("dispatcher", func(ctx context.Context) error {
		return errors.New("queue init failed")
	}))
	supervisor.Register(newStubWorker("retry-scheduler", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("monitor loop broke")
	}))

	err := supervisor.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all workers have exited unexpectedly")
	assert.False(t, supervisor.GetHealthTracker().IsHealthy())
	assert.True(t, logger.logged("all workers have exited"))
}

func TestSupervisor_ShutdownWaitsForSlowestWorker(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{})

	supervisor.Register(newStubWorker("api-server", blockUntilCanceled))
	supervisor.Register(newStubWorker("dispatcher", func(ctx context.Context) error {
		<-ctx.Done()
		// drain in-flight lanes
		time.Sleep(200 * time.Millisecond)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	start := time.Now()
	go func() { errChan <- supervisor.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-errChan
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond,
		"shutdown returns only after the slowest worker drained")
}

func TestSupervisor_ShutdownTimeoutExceeded(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{},
		WithShutdownTimeout(200*time.Millisecond))

	supervisor.Register(newStubWorker("dispatcher", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(2 * time.Second)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	start := time.Now()
	go func() { errChan <- supervisor.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-errChan
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown timeout exceeded")
	assert.Less(t, time.Since(start), time.Second,
		"the timeout cuts the wait short of the worker's drain time")
}

func TestSupervisor_ShutdownTimeoutNotReached(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{},
		WithShutdownTimeout(2*time.Second))

	supervisor.Register(newStubWorker("api-server", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- supervisor.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	cancel()

	// Workers that finish inside the window yield a clean shutdown.
	assert.NoError(t, <-errChan)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSupervisor_StuckWorkerBlocksShutdownWithoutTimeout(t *testing.T) {
	supervisor := NewWorkerSupervisor(&recordingLogger{})

	supervisor.Register(newStubWorker("stuck", func(ctx context.Context) error {
		select {} // ignores cancellation
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- supervisor.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-errChan:
		t.Fatal("supervisor returned while a worker was stuck")
	case <-time.After(300 * time.Millisecond):
		// Without a shutdown timeout the supervisor waits indefinitely.
	}
}
