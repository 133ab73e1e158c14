package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Outcome captures one finished model process
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner drives one prediction job to completion. The concrete mechanism is
// swappable; the pipeline only depends on the stdin/stdout JSON contract.
type Runner interface {
	Run(ctx context.Context, dataset []byte) (*Outcome, error)
}

// CommandRunner runs the prediction model as a child process. The dataset is
// written to stdin in one shot and stdin is closed: the model treats EOF as
// "dataset complete". Stdout/stderr are accumulated into append-only buffers
// regardless of how the process chunks its writes.
type CommandRunner struct {
	Bin     string
	Args    []string
	Timeout time.Duration // 超时强制终止进程
}

// pipeWaitDelay is how long Wait may linger on inherited output pipes after
// the context kills the child before they are force-closed
const pipeWaitDelay = 2 * time.Second

func NewCommandRunner(bin string, args ...string) *CommandRunner {
	return &CommandRunner{
		Bin:     bin,
		Args:    args,
		Timeout: 300 * time.Second,
	}
}

// Run spawns one process per call. Concurrent calls spawn independent
// processes; serialization is the caller's concern.
func (r *CommandRunner) Run(ctx context.Context, dataset []byte) (*Outcome, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Bin, r.Args...)
	// Killing the direct child does not unblock Wait while orphaned worker
	// processes still hold the output pipes; WaitDelay force-closes them so
	// the deadline really bounds the run.
	cmd.WaitDelay = pipeWaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start model process: %w", err)
	}

	// 数据集一次性写入后关闭stdin
	writeErr := make(chan error, 1)
	go func() {
		_, werr := stdin.Write(dataset)
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}
		writeErr <- werr
	}()

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &Error{
			Code:    CodeProcessTimeout,
			Message: "model process exceeded time limit",
			Detail:  stderr.String(),
			Err:     ctx.Err(),
		}
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("model process wait failed: %w", waitErr)
		}
	}

	// A feed error only matters when the process did not finish on its own
	// terms; a nonzero exit already carries its own diagnostics.
	if werr := <-writeErr; werr != nil && waitErr == nil {
		return nil, fmt.Errorf("failed to feed dataset to model process: %w", werr)
	}

	return &Outcome{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
