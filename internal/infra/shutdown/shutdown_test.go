package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestContext_FirstSignalCancels(t *testing.T) {
	exited := make(chan int, 1)
	h := &Handler{exit: func(code int) { exited <- code }}

	ctx, stop := h.Context(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by signal")
	}

	select {
	case code := <-exited:
		t.Fatalf("exit(%d) called after a single signal", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContext_SecondSignalForcesExit(t *testing.T) {
	exited := make(chan int, 1)
	h := &Handler{exit: func(code int) { exited <- code }}

	ctx, stop := h.Context(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	<-ctx.Done()
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case code := <-exited:
		if code != ForceExitCode {
			t.Errorf("exit code = %d, want %d", code, ForceExitCode)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second signal did not force exit")
	}
}

func TestContext_StopCancelsAndIsIdempotent(t *testing.T) {
	h := NewHandler()
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()

	ctx, stop := h.Context(parent)
	stop()
	stop()

	if ctx.Err() == nil {
		t.Error("stop should cancel the context")
	}
}
