package k8s_sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/curaious/warden/pkg/sandbox"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

// Kind describes a declarative resource collection served by the cluster.
type Kind struct {
	schema.GroupVersionResource

	// Name is the CamelCase kind written into manifests, e.g. Sandbox.
	Name string
}

func (k Kind) APIVersion() string {
	return k.GroupVersion().String()
}

// ListOptions select and page a List call.
type ListOptions struct {
	LabelSelector string
	Limit         int64
	Continue      string
}

// ListResult is one page of a paginated list. A non-empty Continue token
// means the server has more items; the page may be partial.
type ListResult[T any] struct {
	Items           []T
	Continue        string
	ResourceVersion string
}

// ResourceClient is a typed CRUD + watch client over one declarative
// resource kind. All calls are synchronous request/response against the
// cluster API.
type ResourceClient[T any] struct {
	dyn  dynamic.Interface
	kind Kind
}

func NewResourceClient[T any](dyn dynamic.Interface, kind Kind) *ResourceClient[T] {
	return &ResourceClient[T]{dyn: dyn, kind: kind}
}

func (c *ResourceClient[T]) Kind() Kind { return c.kind }

func (c *ResourceClient[T]) Create(ctx context.Context, namespace string, obj *T) (*T, error) {
	u, err := c.toUnstructured(obj)
	if err != nil {
		return nil, err
	}
	created, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Create(ctx, u, metav1.CreateOptions{})
	if err != nil {
		return nil, c.mapError(err, u.GetName())
	}
	return fromUnstructured[T](created)
}

func (c *ResourceClient[T]) Get(ctx context.Context, namespace, name string) (*T, error) {
	u, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, c.mapError(err, name)
	}
	return fromUnstructured[T](u)
}

func (c *ResourceClient[T]) List(ctx context.Context, namespace string, opts ListOptions) (*ListResult[T], error) {
	list, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: opts.LabelSelector,
		Limit:         opts.Limit,
		Continue:      opts.Continue,
	})
	if err != nil {
		return nil, c.mapError(err, "")
	}

	res := &ListResult[T]{
		Items:           make([]T, 0, len(list.Items)),
		Continue:        list.GetContinue(),
		ResourceVersion: list.GetResourceVersion(),
	}
	for i := range list.Items {
		obj, err := fromUnstructured[T](&list.Items[i])
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, *obj)
	}
	return res, nil
}

// Update replaces the whole object.
func (c *ResourceClient[T]) Update(ctx context.Context, namespace, name string, obj *T) (*T, error) {
	u, err := c.toUnstructured(obj)
	if err != nil {
		return nil, err
	}
	u.SetName(name)
	updated, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Update(ctx, u, metav1.UpdateOptions{})
	if err != nil {
		return nil, c.mapError(err, name)
	}
	return fromUnstructured[T](updated)
}

// Patch applies a merge patch. Fields absent from the patch are left
// untouched, so controller-owned status fields survive partial updates.
func (c *ResourceClient[T]) Patch(ctx context.Context, namespace, name string, patch any) (*T, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal patch for %s %s: %w", c.kind.Name, name, err)
	}
	patched, err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return nil, c.mapError(err, name)
	}
	return fromUnstructured[T](patched)
}

func (c *ResourceClient[T]) Delete(ctx context.Context, namespace, name string) error {
	propagation := metav1.DeletePropagationBackground
	err := c.dyn.Resource(c.kind.GroupVersionResource).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return c.mapError(err, name)
	}
	return nil
}

func (c *ResourceClient[T]) Exists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.Get(ctx, namespace, name)
	if err == nil {
		return true, nil
	}
	if sandbox.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *ResourceClient[T]) toUnstructured(obj *T) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("convert %s to unstructured: %w", c.kind.Name, err)
	}
	u := &unstructured.Unstructured{Object: content}
	u.SetAPIVersion(c.kind.APIVersion())
	u.SetKind(c.kind.Name)
	return u, nil
}

func fromUnstructured[T any](u *unstructured.Unstructured) (*T, error) {
	obj := new(T)
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, obj); err != nil {
		return nil, fmt.Errorf("convert unstructured %s: %w", u.GetKind(), err)
	}
	return obj, nil
}

// mapError translates cluster API errors into the engine taxonomy.
func (c *ResourceClient[T]) mapError(err error, name string) error {
	switch {
	case apierrors.IsNotFound(err):
		// an object-level 404 names the missing object in its details; a
		// bare 404 means the resource kind itself is not served
		if statusDetailsName(err) == "" {
			return &sandbox.ControllerNotInstalledError{Resource: c.kind.Resource}
		}
		return &sandbox.NotFoundError{Kind: c.kind.Name, Name: name}
	case apierrors.IsAlreadyExists(err):
		return &sandbox.AlreadyExistsError{Kind: c.kind.Name, Name: name}
	default:
		return fmt.Errorf("%s %s: %w", c.kind.Resource, name, err)
	}
}

func statusDetailsName(err error) string {
	status, ok := err.(apierrors.APIStatus)
	if !ok {
		return ""
	}
	if details := status.Status().Details; details != nil {
		return details.Name
	}
	return ""
}
