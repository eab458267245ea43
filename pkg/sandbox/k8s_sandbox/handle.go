package k8s_sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
)

// handle is the live reference to a managed sandbox. Exec calls go
// through the manager's exec client; Stop tears down the cluster
// resource and evicts the handle from the caches.
type handle struct {
	m *Manager

	mu      sync.Mutex
	info    sandbox.SandboxInfo
	stopped bool
}

var _ sandbox.Handle = (*handle)(nil)

func (h *handle) Info() sandbox.SandboxInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *handle) Exec(ctx context.Context, command []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	pod, err := h.podName()
	if err != nil {
		return nil, err
	}
	return h.m.exec.Exec(ctx, pod, command, opts)
}

func (h *handle) SupportsStreaming() bool { return true }

func (h *handle) ExecStream(ctx context.Context, command []string, opts sandbox.ExecOptions) (sandbox.Stream, error) {
	pod, err := h.podName()
	if err != nil {
		return nil, err
	}
	return h.m.exec.ExecStream(ctx, pod, command, opts)
}

// Stop deletes the sandbox resource. Idempotent: a second Stop, or a
// Stop racing an external deletion, succeeds without error.
func (h *handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.info.Status = sandbox.StatusStopped
	name := h.info.Name
	h.mu.Unlock()

	h.m.deregister(h)

	if err := h.m.sandboxes.Delete(ctx, h.m.cfg.Namespace, name); err != nil && !sandbox.IsNotFound(err) {
		return err
	}
	return nil
}

// Pause scales the sandbox to zero replicas without deleting it.
func (h *handle) Pause(ctx context.Context) error {
	if err := Pause(ctx, h.m.sandboxes, h.m.cfg.Namespace, h.info.Name); err != nil {
		return err
	}
	h.mu.Lock()
	h.info.Status = sandbox.StatusIdle
	h.mu.Unlock()
	return nil
}

// Resume scales the sandbox back up and waits for readiness.
func (h *handle) Resume(ctx context.Context) error {
	sb, err := Resume(ctx, h.m.sandboxes, h.m.cfg.Namespace, h.info.Name, h.m.cfg.ReadyTimeout)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.info.Status = statusFromPhase(sb.Status.Phase)
	h.info.PodName = sb.Status.PodName
	h.mu.Unlock()
	return nil
}

// podName re-reads the pod name from the cluster if the cached info
// predates pod assignment.
func (h *handle) podName() (string, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return "", &sandbox.NotFoundError{Name: h.info.Name}
	}
	if h.info.PodName != "" {
		pod := h.info.PodName
		h.mu.Unlock()
		return pod, nil
	}
	name := h.info.Name
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sb, err := h.m.sandboxes.Get(ctx, h.m.cfg.Namespace, name)
	if err != nil {
		return "", err
	}
	if sb.Status.PodName == "" {
		return "", &sandbox.NotFoundError{Kind: "pod", Name: name}
	}

	h.mu.Lock()
	h.info.PodName = sb.Status.PodName
	h.mu.Unlock()
	return sb.Status.PodName, nil
}
