package procrunner

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

func TestExecuteEchoCapturesOutput(t *testing.T) {
	r := New(0)
	out, err := r.Execute(context.Background(), []string{"echo", "hello"}, types.ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "hello" {
		t.Fatalf("Stdout = %q, want %q", out.Stdout, "hello")
	}
	if out.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", out.ExitCode)
	}
	if out.TimedOut {
		t.Fatalf("TimedOut = true, want false")
	}
}

func TestExecuteTimeoutKillsProcess(t *testing.T) {
	r := New(0)
	opts := types.ExecOptions{Timeout: 50 * time.Millisecond}
	start := time.Now()
	out, err := r.Execute(context.Background(), []string{"sleep", "5"}, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.TimedOut {
		t.Fatalf("TimedOut = false, want true")
	}
	if out.ExitCode != -1 {
		t.Fatalf("ExitCode = %d, want -1", out.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("took %v, process group was not killed promptly", elapsed)
	}
}

func TestBuildEnvStripsSensitiveVars(t *testing.T) {
	t.Setenv("MY_SECRET_TOKEN", "xyz")
	t.Setenv("SOME_API_KEY", "abc")
	t.Setenv("CORTEX_AUTH_TOKEN", "keep-me")
	env := buildEnv(nil)

	for _, kv := range env {
		if strings.HasPrefix(kv, "MY_SECRET_TOKEN=") || strings.HasPrefix(kv, "SOME_API_KEY=") {
			t.Fatalf("sensitive var leaked into child env: %s", kv)
		}
	}

	var sawAuthToken, sawPath bool
	for _, kv := range env {
		if strings.HasPrefix(kv, "CORTEX_AUTH_TOKEN=") {
			sawAuthToken = true
		}
		if strings.HasPrefix(kv, "PATH=") {
			sawPath = true
		}
	}
	if !sawAuthToken {
		t.Fatalf("CORTEX_AUTH_TOKEN should survive the allowlist")
	}
	if !sawPath && os.Getenv("PATH") != "" {
		t.Fatalf("PATH should survive the allowlist")
	}
}

func TestExecuteInLaneBoundsConcurrency(t *testing.T) {
	r := New(0)
	r.SetLaneConcurrency("test-lane", 1)

	var active int32
	var maxActive int32
	task := func(ctx context.Context) (types.ExecOutput, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return types.ExecOutput{}, nil
	}

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			Run(r.lanes, context.Background(), "test-lane", task)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&maxActive); got > 1 {
		t.Fatalf("max concurrent tasks in lane = %d, want <= 1", got)
	}
}
