package k8s_sandbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/remotecommand"
	kexec "k8s.io/client-go/util/exec"
)

// fakeExecutor drives one exec through an injected run func instead of a
// real SPDY connection.
type fakeExecutor struct {
	run func(ctx context.Context, opts remotecommand.StreamOptions) error
}

func (f *fakeExecutor) Stream(opts remotecommand.StreamOptions) error {
	return f.run(context.Background(), opts)
}

func (f *fakeExecutor) StreamWithContext(ctx context.Context, opts remotecommand.StreamOptions) error {
	return f.run(ctx, opts)
}

func newTestExecClient(run func(ctx context.Context, opts remotecommand.StreamOptions) error) (*ExecClient, *[]string) {
	var captured []string
	client := &ExecClient{
		namespace: testNamespace,
		newExecutor: func(podName, container string, command []string) (remotecommand.Executor, error) {
			captured = command
			return &fakeExecutor{run: run}, nil
		},
	}
	return client, &captured
}

func TestExecBuffered(t *testing.T) {
	client, captured := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		io.WriteString(opts.Stdout, "hello out")
		io.WriteString(opts.Stderr, "hello err")
		return nil
	})

	result, err := client.Exec(context.Background(), "pod-1", []string{"echo", "hi"}, sandbox.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello out", result.Stdout)
	assert.Equal(t, "hello err", result.Stderr)
	assert.Equal(t, []string{"echo", "hi"}, *captured)
}

func TestExecWrapsWorkdirAndEnv(t *testing.T) {
	client, captured := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		return nil
	})

	_, err := client.Exec(context.Background(), "pod-1", []string{"ls"}, sandbox.ExecOptions{
		WorkingDir: "/src",
		Env:        map[string]string{"FOO": "bar"},
	})
	require.NoError(t, err)

	require.Len(t, *captured, 3)
	assert.Equal(t, "sh", (*captured)[0])
	assert.Equal(t, `cd '/src' && FOO='bar' exec 'ls'`, (*captured)[2])
}

func TestExecNonZeroExit(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		io.WriteString(opts.Stderr, "boom")
		return kexec.CodeExitError{Err: errors.New("command failed"), Code: 3}
	})

	result, err := client.Exec(context.Background(), "pod-1", []string{"false"}, sandbox.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "boom", result.Stderr)
}

func TestExecTimeout(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := client.Exec(context.Background(), "pod-1", []string{"sleep", "60"}, sandbox.ExecOptions{
		Timeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, sandbox.IsTimeout(err))
}

func TestExecTransportError(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		return errors.New("connection refused")
	})

	_, err := client.Exec(context.Background(), "pod-1", []string{"true"}, sandbox.ExecOptions{})
	require.Error(t, err)
	assert.False(t, sandbox.IsTimeout(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecStreamIncremental(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		for _, line := range []string{"one\n", "two\n", "three\n"} {
			if _, err := io.WriteString(opts.Stdout, line); err != nil {
				return err
			}
		}
		return nil
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"cat"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	out, err := io.ReadAll(stream.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(out))

	code, err := stream.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecStreamExitCode(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		io.WriteString(opts.Stderr, "failed\n")
		return kexec.CodeExitError{Err: errors.New("command failed"), Code: 7}
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"false"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	errOut, err := io.ReadAll(stream.Stderr())
	require.NoError(t, err)
	assert.Equal(t, "failed\n", string(errOut))

	code, err := stream.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	// Wait resolves to the same outcome on every call
	again, err := stream.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, again)
}

func TestExecStreamKill(t *testing.T) {
	started := make(chan struct{})
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"sleep", "600"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	<-started
	stream.Kill()
	stream.Kill() // idempotent

	code, err := stream.Wait(context.Background())
	assert.Equal(t, sandbox.ExitCodeUnknown, code)
	require.Error(t, err)
	assert.True(t, sandbox.IsExecError(err))
}

func TestExecStreamKillUnblocksStalledWriter(t *testing.T) {
	wrote := make(chan struct{})
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		close(wrote)
		// nobody reads stdout, so this write blocks until Kill closes
		// the pipe
		_, err := io.WriteString(opts.Stdout, strings.Repeat("x", 1<<16))
		return err
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"yes"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	<-wrote
	time.Sleep(10 * time.Millisecond)
	stream.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, err := stream.Wait(ctx)
	assert.Equal(t, sandbox.ExitCodeUnknown, code)
	assert.True(t, sandbox.IsExecError(err))
}

func TestExecStreamAbruptClosure(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		io.WriteString(opts.Stdout, "partial")
		return errors.New("connection reset by peer")
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"cat"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	out, _ := io.ReadAll(stream.Stdout())
	assert.Equal(t, "partial", string(out))

	// never a silent zero on a dead transport
	code, err := stream.Wait(context.Background())
	assert.Equal(t, sandbox.ExitCodeUnknown, code)
	require.Error(t, err)

	var execErr *sandbox.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, sandbox.ExitCodeUnknown, execErr.ExitCode)
}

func TestExecStreamKillAfterExit(t *testing.T) {
	client, _ := newTestExecClient(func(ctx context.Context, opts remotecommand.StreamOptions) error {
		return nil
	})

	stream, err := client.ExecStream(context.Background(), "pod-1", []string{"true"}, sandbox.ExecOptions{})
	require.NoError(t, err)

	io.ReadAll(stream.Stdout())
	code, err := stream.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	// Kill after natural exit keeps the clean result
	stream.Kill()
	code, err = stream.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}
