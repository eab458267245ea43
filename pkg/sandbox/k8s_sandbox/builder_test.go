package k8s_sandbox

import (
	"testing"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func TestSlugifyPassthrough(t *testing.T) {
	assert.Equal(t, "my-project", slugify("my-project"))
	assert.Equal(t, "abc123", slugify("abc123"))
}

func TestSlugifyScrubs(t *testing.T) {
	slug := slugify("My Project!")
	assert.Regexp(t, `^my-project-[0-9a-f]{8}$`, slug)

	// deterministic
	assert.Equal(t, slug, slugify("My Project!"))

	// distinct inputs that scrub identically stay distinct
	assert.NotEqual(t, slugify("My Project!"), slugify("my_project_"))
}

func TestSlugifyLength(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "Abcdefghij"
	}
	slug := slugify(long)
	assert.LessOrEqual(t, len(slug), 63)
	assert.Regexp(t, `^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`, slug)
}

func TestSlugifyAllInvalid(t *testing.T) {
	slug := slugify("!!!")
	assert.Regexp(t, `^sbx-[0-9a-f]{8}$`, slug)
}

func TestMergeLabelsBookkeepingWins(t *testing.T) {
	merged := mergeLabels(
		map[string]string{"team": "infra", LabelManagedBy: "someone-else"},
		map[string]string{LabelManagedBy: ManagedByValue},
	)
	assert.Equal(t, ManagedByValue, merged[LabelManagedBy])
	assert.Equal(t, "infra", merged["team"])
}

func TestSandboxBuilderDefaults(t *testing.T) {
	sb, err := NewSandboxBuilder("sbx-test", "default").
		IDs("id-1", "proj-1").
		Image("python:3.12").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "sbx-test", sb.Name)
	assert.Equal(t, "default", sb.Namespace)
	assert.Equal(t, ManagedByValue, sb.Labels[LabelManagedBy])
	assert.Equal(t, "id-1", sb.Labels[LabelSandboxID])
	assert.Equal(t, "proj-1", sb.Labels[LabelProjectID])

	podSpec := sb.Spec.PodTemplate.Spec
	require.Len(t, podSpec.Containers, 1)
	container := podSpec.Containers[0]
	assert.Equal(t, defaultContainerName, container.Name)
	assert.Equal(t, corev1.PullIfNotPresent, container.ImagePullPolicy)
	assert.Equal(t, corev1.RestartPolicyNever, podSpec.RestartPolicy)
	require.NotNil(t, podSpec.AutomountServiceAccountToken)
	assert.False(t, *podSpec.AutomountServiceAccountToken)

	sc := container.SecurityContext
	require.NotNil(t, sc)
	require.NotNil(t, sc.RunAsNonRoot)
	assert.True(t, *sc.RunAsNonRoot)
	assert.EqualValues(t, 65534, *sc.RunAsUser)
	assert.False(t, *sc.AllowPrivilegeEscalation)
	require.NotNil(t, sc.Capabilities)
	assert.Equal(t, []corev1.Capability{"ALL"}, sc.Capabilities.Drop)
	require.NotNil(t, sc.SeccompProfile)
	assert.Equal(t, corev1.SeccompProfileTypeRuntimeDefault, sc.SeccompProfile.Type)

	assert.Nil(t, sb.Spec.ShutdownTime)
}

func TestSandboxBuilderValidation(t *testing.T) {
	_, err := NewSandboxBuilder("x", "default").Build()
	var cfgErr *sandbox.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "image", cfgErr.Field)

	_, err = NewSandboxBuilder("x", "default").Image("img").Resources("not-a-quantity", "").Build()
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "cpu", cfgErr.Field)
}

func TestSandboxBuilderTTL(t *testing.T) {
	before := time.Now()
	sb, err := NewSandboxBuilder("x", "default").
		Image("img").
		TTL(time.Hour).
		Build()
	require.NoError(t, err)

	require.NotNil(t, sb.Spec.ShutdownTime)
	assert.WithinDuration(t, before.Add(time.Hour), sb.Spec.ShutdownTime.Time, 5*time.Second)
}

func TestSandboxBuilderEnvSorted(t *testing.T) {
	sb, err := NewSandboxBuilder("x", "default").
		Image("img").
		Env(map[string]string{"B": "2", "A": "1"}).
		Build()
	require.NoError(t, err)

	env := sb.Spec.PodTemplate.Spec.Containers[0].Env
	require.Len(t, env, 2)
	assert.Equal(t, "A", env[0].Name)
	assert.Equal(t, "B", env[1].Name)
}

func TestSandboxBuilderVolumeClaim(t *testing.T) {
	sb, err := NewSandboxBuilder("x", "default").
		Image("img").
		VolumeClaim("workspace", "fast", "10Gi").
		Build()
	require.NoError(t, err)

	require.Len(t, sb.Spec.VolumeClaimTemplates, 1)
	claim := sb.Spec.VolumeClaimTemplates[0]
	assert.Equal(t, "workspace", claim.Name)
	require.NotNil(t, claim.Spec.StorageClassName)
	assert.Equal(t, "fast", *claim.Spec.StorageClassName)
	storage := claim.Spec.Resources.Requests[corev1.ResourceStorage]
	assert.Equal(t, "10Gi", storage.String())
}

func TestWarmPoolBuilder(t *testing.T) {
	pool, err := NewWarmPoolBuilder("pool", "default").
		Replicas(3).
		Template("base").
		Bounds(1, 5).
		Build()
	require.NoError(t, err)

	assert.EqualValues(t, 3, pool.Spec.Replicas)
	assert.Equal(t, "base", pool.Spec.TemplateRef.Name)
	assert.EqualValues(t, 1, *pool.Spec.MinReplicas)
	assert.EqualValues(t, 5, *pool.Spec.MaxReplicas)

	_, err = NewWarmPoolBuilder("pool", "default").Replicas(1).Build()
	var cfgErr *sandbox.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewWarmPoolBuilder("pool", "default").Template("base").Bounds(5, 1).Build()
	require.ErrorAs(t, err, &cfgErr)
}

func TestClaimBuilder(t *testing.T) {
	claim, err := NewClaimBuilder("claim-abc", "default").
		Template("base").
		TTL(time.Minute).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "base", claim.Spec.TemplateRef.Name)
	require.NotNil(t, claim.Spec.Lifecycle)
	assert.NotNil(t, claim.Spec.Lifecycle.ShutdownTime)

	_, err = NewClaimBuilder("claim-abc", "default").Build()
	var cfgErr *sandbox.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
