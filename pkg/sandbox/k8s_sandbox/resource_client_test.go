package k8s_sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox/api/v1alpha1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

const testNamespace = "test-ns"

func newFakeDynamic() dynamic.Interface {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			v1alpha1.SandboxGVR:         v1alpha1.SandboxKind + "List",
			v1alpha1.SandboxTemplateGVR: v1alpha1.SandboxTemplateKind + "List",
			v1alpha1.SandboxClaimGVR:    v1alpha1.SandboxClaimKind + "List",
			v1alpha1.SandboxWarmPoolGVR: v1alpha1.SandboxWarmPoolKind + "List",
		},
	)
}

func newSandboxClient(dyn dynamic.Interface) *ResourceClient[v1alpha1.Sandbox] {
	return NewResourceClient[v1alpha1.Sandbox](dyn, Kind{
		GroupVersionResource: v1alpha1.SandboxGVR,
		Name:                 v1alpha1.SandboxKind,
	})
}

func testSandbox(name string, labels map[string]string) *v1alpha1.Sandbox {
	return &v1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: testNamespace,
			Labels:    labels,
		},
	}
}

func TestResourceClientCreateGet(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	created, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", map[string]string{"k": "v"}))
	require.NoError(t, err)
	assert.Equal(t, "sbx-a", created.Name)

	got, err := client.Get(ctx, testNamespace, "sbx-a")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Labels["k"])
}

func TestResourceClientCreateConflict(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	_, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", nil))
	require.NoError(t, err)

	_, err = client.Create(ctx, testNamespace, testSandbox("sbx-a", nil))
	require.Error(t, err)
	assert.True(t, sandbox.IsAlreadyExists(err))

	var conflict *sandbox.AlreadyExistsError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "sbx-a", conflict.Name)
}

func TestResourceClientGetMissing(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())

	_, err := client.Get(context.Background(), testNamespace, "absent")
	require.Error(t, err)
	assert.True(t, sandbox.IsNotFound(err))
	assert.False(t, sandbox.IsControllerNotInstalled(err))
}

func TestResourceClientPatchMerge(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	_, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", map[string]string{"keep": "yes"}))
	require.NoError(t, err)

	patched, err := client.Patch(ctx, testNamespace, "sbx-a", map[string]any{
		"metadata": map[string]any{
			"labels": map[string]any{"extra": "added"},
		},
	})
	require.NoError(t, err)

	// merge semantics: untouched fields survive
	assert.Equal(t, "yes", patched.Labels["keep"])
	assert.Equal(t, "added", patched.Labels["extra"])
}

func TestResourceClientPatchRemovesLabel(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	_, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", map[string]string{
		LabelWarmPool: "pool",
		"keep":        "yes",
	}))
	require.NoError(t, err)

	patched, err := client.Patch(ctx, testNamespace, "sbx-a", map[string]any{
		"metadata": map[string]any{
			"labels": map[string]any{LabelWarmPool: nil},
		},
	})
	require.NoError(t, err)

	_, present := patched.Labels[LabelWarmPool]
	assert.False(t, present)
	assert.Equal(t, "yes", patched.Labels["keep"])
}

func TestResourceClientDelete(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	_, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", nil))
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, testNamespace, "sbx-a"))

	exists, err := client.Exists(ctx, testNamespace, "sbx-a")
	require.NoError(t, err)
	assert.False(t, exists)

	err = client.Delete(ctx, testNamespace, "sbx-a")
	assert.True(t, sandbox.IsNotFound(err))
}

func TestResourceClientListSelector(t *testing.T) {
	client := newSandboxClient(newFakeDynamic())
	ctx := context.Background()

	_, err := client.Create(ctx, testNamespace, testSandbox("sbx-a", map[string]string{LabelProjectID: "p1"}))
	require.NoError(t, err)
	_, err = client.Create(ctx, testNamespace, testSandbox("sbx-b", map[string]string{LabelProjectID: "p2"}))
	require.NoError(t, err)

	res, err := client.List(ctx, testNamespace, ListOptions{LabelSelector: LabelProjectID + "=p1"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "sbx-a", res.Items[0].Name)
}

func TestResourceClientWatch(t *testing.T) {
	dyn := newFakeDynamic()
	client := newSandboxClient(dyn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.Watch(ctx, testNamespace, WatchOptions{})
	require.NoError(t, err)
	defer stream.Stop()

	_, err = client.Create(ctx, testNamespace, testSandbox("sbx-w", nil))
	require.NoError(t, err)

	select {
	case ev := <-stream.Events():
		assert.Equal(t, WatchAdded, ev.Type)
		require.NotNil(t, ev.Object)
		assert.Equal(t, "sbx-w", ev.Object.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no watch event received")
	}

	stream.Stop()
	for range stream.Events() {
	}
}
