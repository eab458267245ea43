package k8s_sandbox

import (
	"context"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox/api/v1alpha1"
)

const (
	defaultReadyTimeout = 2 * time.Minute
	defaultPollInterval = 500 * time.Millisecond
)

// replicasPatch is the merge-patch body for pause/resume. Merge semantics
// leave every other spec field and the controller-owned status untouched.
type replicasPatch struct {
	Spec struct {
		Replicas int32 `json:"replicas"`
	} `json:"spec"`
}

func newReplicasPatch(n int32) replicasPatch {
	var p replicasPatch
	p.Spec.Replicas = n
	return p
}

// WaitForReady polls until the sandbox reports the Ready condition and
// returns the final observed object, so callers can read the assigned pod
// name and service address. A sandbox that never becomes ready yields a
// TimeoutError.
func WaitForReady(ctx context.Context, client *ResourceClient[v1alpha1.Sandbox], namespace, name string, timeout, pollInterval time.Duration) (*v1alpha1.Sandbox, error) {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		sb, err := client.Get(ctx, namespace, name)
		if err == nil && sb.IsReady() {
			return sb, nil
		}
		if err != nil && !sandbox.IsNotFound(err) && ctx.Err() == nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, &sandbox.TimeoutError{Op: "wait for sandbox " + name + " ready", Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// Pause scales the sandbox to zero replicas. The pod goes away, volume
// claims and the resource itself stay, which is what distinguishes pause
// from stop.
func Pause(ctx context.Context, client *ResourceClient[v1alpha1.Sandbox], namespace, name string) error {
	_, err := client.Patch(ctx, namespace, name, newReplicasPatch(0))
	return err
}

// Resume scales the sandbox back to one replica and waits for it to
// become ready again, returning the refreshed object.
func Resume(ctx context.Context, client *ResourceClient[v1alpha1.Sandbox], namespace, name string, timeout time.Duration) (*v1alpha1.Sandbox, error) {
	if _, err := client.Patch(ctx, namespace, name, newReplicasPatch(1)); err != nil {
		return nil, err
	}
	return WaitForReady(ctx, client, namespace, name, timeout, 0)
}
