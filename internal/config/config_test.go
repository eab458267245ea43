package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadConfigDefaults(t *testing.T) {
	conf := ReadConfig()

	assert.Equal(t, "warden-sandbox", conf.SANDBOX_NAMESPACE)
	assert.Equal(t, "1Gi", conf.SANDBOX_STORAGE_SIZE)
	assert.Equal(t, time.Hour, conf.SANDBOX_TTL)
	assert.Equal(t, 2*time.Minute, conf.SANDBOX_READY_TIMEOUT)
	assert.False(t, conf.WARM_POOL_ENABLED)
	assert.Equal(t, 3, conf.WARM_POOL_REPLICAS)
}

func TestReadConfigOverrides(t *testing.T) {
	t.Setenv("SANDBOX_NAMESPACE", "custom-ns")
	t.Setenv("SANDBOX_TTL", "30m")
	t.Setenv("WARM_POOL_ENABLED", "true")
	t.Setenv("WARM_POOL_REPLICAS", "7")

	conf := ReadConfig()

	assert.Equal(t, "custom-ns", conf.SANDBOX_NAMESPACE)
	assert.Equal(t, 30*time.Minute, conf.SANDBOX_TTL)
	assert.True(t, conf.WARM_POOL_ENABLED)
	assert.Equal(t, 7, conf.WARM_POOL_REPLICAS)
}

func TestReadConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SANDBOX_TTL", "not-a-duration")
	t.Setenv("WARM_POOL_REPLICAS", "many")

	conf := ReadConfig()

	assert.Equal(t, time.Hour, conf.SANDBOX_TTL)
	assert.Equal(t, 3, conf.WARM_POOL_REPLICAS)
}
