package sandbox

// Package sandbox defines the provider contract for ephemeral agent
// execution environments. The concrete Kubernetes-backed implementation
// lives in k8s_sandbox.

import (
	"context"
	"io"
	"time"
)

// Status is the provider-level view of a sandbox lifecycle.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusIdle     Status = "idle"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// SandboxInfo is the immutable description of a provisioned sandbox.
type SandboxInfo struct {
	ID        string
	ProjectID string
	Name      string
	Namespace string
	PodName   string
	// Address is the in-cluster service address, when assigned.
	Address   string
	Image     string
	Status    Status
	CreatedAt time.Time
}

// SandboxConfig describes a sandbox to be created.
type SandboxConfig struct {
	ProjectID string
	Image     string
	Command   []string
	Env       map[string]string
	// WorkingDir is the initial working directory for exec'd commands.
	WorkingDir string
	CPU        string
	Memory     string
	// TTL bounds the sandbox lifetime; zero means no expiry.
	TTL         time.Duration
	Labels      map[string]string
	Annotations map[string]string
}

// ExecOptions tune a single command execution.
type ExecOptions struct {
	Container  string
	WorkingDir string
	Env        map[string]string
	// Timeout applies to buffered exec only; the remote process is
	// terminated when it elapses.
	Timeout time.Duration
}

// ExecResult is the outcome of a buffered exec.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Stream is a live channel to a running remote process. Output flows
// incrementally; reading applies back-pressure to the transport.
type Stream interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait resolves exactly once with the process exit code. An abrupt
	// transport closure surfaces as an ExecError with ExitCodeUnknown.
	Wait(ctx context.Context) (int, error)
	// Kill terminates the remote process. Idempotent, and safe to call
	// concurrently with natural exit.
	Kill()
}

// Handle is a live reference to a provisioned sandbox.
type Handle interface {
	Info() SandboxInfo

	// Exec runs a command to completion and returns its buffered output.
	Exec(ctx context.Context, command []string, opts ExecOptions) (*ExecResult, error)

	// SupportsStreaming reports whether ExecStream is available on this
	// handle. Callers check the capability instead of null-testing.
	SupportsStreaming() bool

	// ExecStream starts a long-running command and returns its live streams.
	ExecStream(ctx context.Context, command []string, opts ExecOptions) (Stream, error)

	// Stop deletes the underlying resource. Idempotent against
	// already-deleted sandboxes.
	Stop(ctx context.Context) error
}

// CleanupFilter selects cached sandboxes for a cleanup sweep.
type CleanupFilter struct {
	// Statuses match any of the listed statuses; empty matches all.
	Statuses []Status
	// OlderThan matches sandboxes created at least this long ago; zero
	// matches any age.
	OlderThan time.Duration
}

// Matches reports whether the filter selects the given sandbox.
func (f CleanupFilter) Matches(info SandboxInfo, now time.Time) bool {
	if f.OlderThan > 0 && now.Sub(info.CreatedAt) < f.OlderThan {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if info.Status == s {
			return true
		}
	}
	return false
}

// WarmPoolHealth is the pool slice of a health report.
type WarmPoolHealth struct {
	Name      string
	Desired   int32
	Ready     int32
	Allocated int32
}

// Health is the aggregated provider health verdict. Message is non-empty
// whenever Healthy is false.
type Health struct {
	Healthy      bool
	Message      string
	SandboxCount int
	WarmPool     *WarmPoolHealth
}

// Provider provisions and manages sandboxes for the agent-execution
// service. Implementations keep an instance-scoped project cache; two
// providers never share state.
type Provider interface {
	// Create provisions a sandbox for the project. At most one active
	// sandbox per project: a second Create without an intervening Stop
	// fails with AlreadyExistsError.
	Create(ctx context.Context, cfg SandboxConfig) (Handle, error)

	// Get returns the active handle for a project, repopulating the cache
	// from the cluster on a miss. Returns (nil, nil) when none exists.
	Get(ctx context.Context, projectID string) (Handle, error)

	// GetByID returns the handle for a sandbox id, or (nil, nil).
	GetById(ctx context.Context, sandboxID string) (Handle, error)

	List(ctx context.Context) ([]SandboxInfo, error)

	// Stop tears down the sandbox with the given id. Idempotent: stopping
	// an unknown or already-deleted sandbox succeeds.
	Stop(ctx context.Context, sandboxID string) error

	// PullImage validates the reference; the cluster pulls lazily.
	PullImage(ctx context.Context, image string) error

	// IsImageAvailable is the same non-emptiness check as PullImage.
	IsImageAvailable(ctx context.Context, image string) (bool, error)

	// Cleanup stops every cached sandbox the filter matches and returns
	// how many were stopped.
	Cleanup(ctx context.Context, filter CleanupFilter) (int, error)

	// HealthCheck never returns an error; transient cluster failures are
	// downgraded to an unhealthy report.
	HealthCheck(ctx context.Context) *Health

	// On subscribes to lifecycle events; the returned func unsubscribes.
	On(listener Listener) func()
}
