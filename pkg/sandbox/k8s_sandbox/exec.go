package k8s_sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/curaious/warden/pkg/sandbox"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// executorFactory opens the transport for one exec call. Swapped out in
// tests.
type executorFactory func(podName, container string, command []string) (remotecommand.Executor, error)

// ExecClient runs commands inside sandbox pods over the cluster's
// exec subresource.
type ExecClient struct {
	namespace   string
	newExecutor executorFactory
}

func NewExecClient(clientset kubernetes.Interface, restCfg *rest.Config, namespace string) *ExecClient {
	return &ExecClient{
		namespace: namespace,
		newExecutor: func(podName, container string, command []string) (remotecommand.Executor, error) {
			req := clientset.CoreV1().RESTClient().Post().
				Resource("pods").
				Name(podName).
				Namespace(namespace).
				SubResource("exec").
				VersionedParams(&corev1.PodExecOptions{
					Container: container,
					Command:   command,
					Stdout:    true,
					Stderr:    true,
				}, scheme.ParameterCodec)
			return remotecommand.NewSPDYExecutor(restCfg, "POST", req.URL())
		},
	}
}

// Exec runs a command to completion, buffering both streams. On timeout
// the context teardown closes the transport, which terminates the remote
// process, and a TimeoutError is returned.
func (e *ExecClient) Exec(ctx context.Context, podName string, command []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	wrapped := wrapCommand(command, opts.WorkingDir, opts.Env)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	exec, err := e.newExecutor(podName, containerName(opts), wrapped)
	if err != nil {
		return nil, fmt.Errorf("open exec channel to pod %s: %w", podName, err)
	}

	var stdout, stderr bytes.Buffer
	streamErr := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})

	if streamErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &sandbox.TimeoutError{Op: "exec", Timeout: opts.Timeout}
		}
		if code, ok := exitStatus(streamErr); ok {
			return &sandbox.ExecResult{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
		}
		// transport failure, not a command failure
		return nil, fmt.Errorf("exec stream to pod %s: %w", podName, streamErr)
	}

	return &sandbox.ExecResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// ExecStream starts a long-running command and returns its live streams.
// Output is piped incrementally; a reader that stops consuming blocks the
// transport rather than growing a buffer.
func (e *ExecClient) ExecStream(ctx context.Context, podName string, command []string, opts sandbox.ExecOptions) (sandbox.Stream, error) {
	wrapped := wrapCommand(command, opts.WorkingDir, opts.Env)

	exec, err := e.newExecutor(podName, containerName(opts), wrapped)
	if err != nil {
		return nil, fmt.Errorf("open exec channel to pod %s: %w", podName, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	s := &execStream{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.stdoutR, s.stdoutW = io.Pipe()
	s.stderrR, s.stderrW = io.Pipe()

	go s.run(streamCtx, exec)
	return s, nil
}

func containerName(opts sandbox.ExecOptions) string {
	if opts.Container != "" {
		return opts.Container
	}
	return defaultContainerName
}

// execStream is the live handle for one streaming exec. The run goroutine
// owns the transport; Wait observers block on done.
type execStream struct {
	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	cancel context.CancelFunc

	killOnce sync.Once

	done     chan struct{}
	exitCode int
	waitErr  error
}

var errKilled = errors.New("exec stream killed")

func (s *execStream) Stdout() io.Reader { return s.stdoutR }
func (s *execStream) Stderr() io.Reader { return s.stderrR }

func (s *execStream) run(ctx context.Context, exec remotecommand.Executor) {
	streamErr := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: s.stdoutW,
		Stderr: s.stderrW,
	})

	switch {
	case streamErr == nil:
		s.exitCode = 0
	case errors.Is(ctx.Err(), context.Canceled):
		s.exitCode = sandbox.ExitCodeUnknown
		s.waitErr = &sandbox.ExecError{ExitCode: sandbox.ExitCodeUnknown, Cause: errKilled}
	default:
		if code, ok := exitStatus(streamErr); ok {
			s.exitCode = code
		} else {
			// transport closed without reporting an exit code; never
			// surface that as a clean zero
			s.exitCode = sandbox.ExitCodeUnknown
			s.waitErr = &sandbox.ExecError{ExitCode: sandbox.ExitCodeUnknown, Cause: streamErr}
		}
	}

	_ = s.stdoutW.Close()
	_ = s.stderrW.Close()
	close(s.done)
}

// Wait resolves exactly once per stream with the real exit code. Abrupt
// transport closure surfaces as an ExecError, not a silent zero.
func (s *execStream) Wait(ctx context.Context) (int, error) {
	select {
	case <-s.done:
		return s.exitCode, s.waitErr
	case <-ctx.Done():
		return sandbox.ExitCodeUnknown, ctx.Err()
	}
}

// Kill tears down the transport and stops further data delivery.
// Idempotent, and a no-op once the process has exited naturally.
func (s *execStream) Kill() {
	s.killOnce.Do(func() {
		select {
		case <-s.done:
			// already finished; nothing to terminate
			return
		default:
		}
		s.cancel()
		// unblock any writer stalled on a slow reader so the transport
		// goroutine can exit
		_ = s.stdoutR.CloseWithError(errKilled)
		_ = s.stderrR.CloseWithError(errKilled)
	})
}

// exitStatus extracts a remote exit code from a stream error. client-go
// surfaces it as exec.CodeExitError, which implements ExitStatus.
func exitStatus(err error) (int, bool) {
	var coder interface{ ExitStatus() int }
	if errors.As(err, &coder) {
		return coder.ExitStatus(), true
	}
	return 0, false
}
