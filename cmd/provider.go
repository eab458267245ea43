package cmd

import (
	"github.com/curaious/warden/internal/config"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox"
)

// newManager wires the provider from environment configuration. Shared by
// every subcommand that talks to the cluster.
func newManager(conf *config.Config) (*k8s_sandbox.Manager, error) {
	cfg := k8s_sandbox.Config{
		Namespace:    conf.SANDBOX_NAMESPACE,
		Image:        conf.SANDBOX_IMAGE,
		CPU:          conf.SANDBOX_CPU,
		Memory:       conf.SANDBOX_MEMORY,
		RuntimeClass: conf.SANDBOX_RUNTIME_CLASS,
		StorageClass: conf.SANDBOX_STORAGE_CLASS,
		StorageSize:  conf.SANDBOX_STORAGE_SIZE,
		TTL:          conf.SANDBOX_TTL,
		ReadyTimeout: conf.SANDBOX_READY_TIMEOUT,
	}

	if conf.WARM_POOL_ENABLED {
		cfg.WarmPool = &k8s_sandbox.WarmPoolConfig{
			Name:        conf.WARM_POOL_NAME,
			Template:    conf.WARM_POOL_TEMPLATE,
			Replicas:    int32(conf.WARM_POOL_REPLICAS),
			MinReplicas: int32(conf.WARM_POOL_MIN_REPLICAS),
			MaxReplicas: int32(conf.WARM_POOL_MAX_REPLICAS),
		}
	}

	return k8s_sandbox.NewManager(cfg)
}
