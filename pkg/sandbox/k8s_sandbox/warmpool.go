package k8s_sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox/api/v1alpha1"
	"github.com/google/uuid"
)

const defaultClaimTimeout = 5 * time.Second

// WarmPoolConfig declares the desired pool.
type WarmPoolConfig struct {
	Name     string
	Template string
	Replicas int32
	// MinReplicas/MaxReplicas bound pool autoscaling; zero values are
	// omitted from the manifest.
	MinReplicas int32
	MaxReplicas int32
	// ClaimTimeout bounds how long a claim may wait for Bound before the
	// caller falls back to cold creation.
	ClaimTimeout time.Duration
}

// WarmPool keeps a target count of pre-provisioned, unclaimed sandboxes
// and hands them out via claims. The cluster controller does the
// reconciliation; the engine only declares the pool and claims members.
type WarmPool struct {
	pools     *ResourceClient[v1alpha1.SandboxWarmPool]
	claims    *ResourceClient[v1alpha1.SandboxClaim]
	sandboxes *ResourceClient[v1alpha1.Sandbox]
	namespace string
	cfg       WarmPoolConfig
}

func NewWarmPool(
	pools *ResourceClient[v1alpha1.SandboxWarmPool],
	claims *ResourceClient[v1alpha1.SandboxClaim],
	sandboxes *ResourceClient[v1alpha1.Sandbox],
	namespace string,
	cfg WarmPoolConfig,
) *WarmPool {
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultClaimTimeout
	}
	return &WarmPool{
		pools:     pools,
		claims:    claims,
		sandboxes: sandboxes,
		namespace: namespace,
		cfg:       cfg,
	}
}

// Init creates or updates the SandboxWarmPool resource. Idempotent: an
// existing pool is patched to the desired replica count and template.
func (p *WarmPool) Init(ctx context.Context) error {
	builder := NewWarmPoolBuilder(p.cfg.Name, p.namespace).
		Replicas(p.cfg.Replicas).
		Template(p.cfg.Template)
	if p.cfg.MinReplicas > 0 || p.cfg.MaxReplicas > 0 {
		builder = builder.Bounds(p.cfg.MinReplicas, p.cfg.MaxReplicas)
	}
	desired, err := builder.Build()
	if err != nil {
		return err
	}

	_, err = p.pools.Create(ctx, p.namespace, desired)
	if err == nil {
		slog.Info("warm pool created",
			slog.String("pool", desired.Name),
			slog.Int("replicas", int(p.cfg.Replicas)))
		return nil
	}
	if !sandbox.IsAlreadyExists(err) {
		return err
	}

	// merge patch keeps controller-owned status intact
	_, err = p.pools.Patch(ctx, p.namespace, desired.Name, map[string]any{
		"spec": desired.Spec,
	})
	if err != nil {
		return err
	}
	slog.Info("warm pool updated",
		slog.String("pool", desired.Name),
		slog.Int("replicas", int(p.cfg.Replicas)))
	return nil
}

// Status reads the controller-maintained pool counters.
func (p *WarmPool) Status(ctx context.Context) (*v1alpha1.SandboxWarmPool, error) {
	return p.pools.Get(ctx, p.namespace, slugify(p.cfg.Name))
}

// Claim attempts to adopt an unclaimed pool member for the given project.
// Returns (nil, nil) when the pool is empty or the claim times out, so the
// caller cold-creates; pool exhaustion is never an error. Adoption is a
// label/annotation rewrite on the bound sandbox, not a re-create, and no
// caller-specific spec fields are touched.
func (p *WarmPool) Claim(ctx context.Context, sandboxID, projectID string) (*v1alpha1.Sandbox, error) {
	claimName := "claim-" + uuid.NewString()[:8]
	claim, err := NewClaimBuilder(claimName, p.namespace).
		Template(p.cfg.Template).
		Build()
	if err != nil {
		return nil, err
	}

	if _, err := p.claims.Create(ctx, p.namespace, claim); err != nil {
		if sandbox.IsControllerNotInstalled(err) {
			return nil, err
		}
		slog.Warn("warm claim create failed, falling back to cold create",
			slog.String("claim", claimName), slog.Any("error", err))
		return nil, nil
	}

	bound, err := p.waitForBound(ctx, claim.Name)
	if err != nil || bound == nil {
		// pool empty or claim timed out; release the claim best-effort
		p.releaseClaim(claim.Name)
		return nil, err
	}

	adopted, err := p.adopt(ctx, bound.Status.SandboxName, sandboxID, projectID)
	if err != nil {
		p.releaseClaim(claim.Name)
		slog.Warn("warm adoption failed, falling back to cold create",
			slog.String("sandbox", bound.Status.SandboxName), slog.Any("error", err))
		return nil, nil
	}

	slog.Info("claimed warm sandbox",
		slog.String("sandbox", adopted.Name),
		slog.String("project", projectID))
	return adopted, nil
}

// waitForBound polls the claim until Bound, Failed, or timeout. A nil
// result without error means the caller should go cold.
func (p *WarmPool) waitForBound(ctx context.Context, claimName string) (*v1alpha1.SandboxClaim, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ClaimTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		claim, err := p.claims.Get(ctx, p.namespace, claimName)
		if err == nil {
			switch claim.Status.Phase {
			case v1alpha1.ClaimPhaseBound:
				if claim.Status.SandboxName != "" {
					return claim, nil
				}
			case v1alpha1.ClaimPhaseFailed:
				return nil, nil
			}
		} else if !sandbox.IsNotFound(err) && ctx.Err() == nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}
	}
}

// adopt rewrites the bound sandbox's bookkeeping labels so it stops
// counting toward the pool's ready replicas and belongs to the caller.
func (p *WarmPool) adopt(ctx context.Context, sandboxName, sandboxID, projectID string) (*v1alpha1.Sandbox, error) {
	return p.sandboxes.Patch(ctx, p.namespace, sandboxName, map[string]any{
		"metadata": map[string]any{
			// nil removes the pool membership label under merge-patch
			// semantics; the controller stops counting this member as ready
			"labels": map[string]any{
				LabelSandboxID: sandboxID,
				LabelProjectID: slugify(projectID),
				LabelWarmPool:  nil,
			},
			"annotations": map[string]string{
				AnnotationClaimedAt: time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

func (p *WarmPool) releaseClaim(claimName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.claims.Delete(ctx, p.namespace, claimName); err != nil && !sandbox.IsNotFound(err) {
		slog.Warn("failed to release warm claim",
			slog.String("claim", claimName), slog.Any("error", err))
	}
}
