package k8s_sandbox

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox/api/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Engine bookkeeping labels. Caller-supplied labels never override these.
const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	ManagedByValue = "warden"

	LabelSandboxID = "warden.curaious.dev/sandbox-id"
	LabelProjectID = "warden.curaious.dev/project-id"
	LabelWarmPool  = "warden.curaious.dev/warm-pool"

	AnnotationClaimedAt = "warden.curaious.dev/claimed-at"
	AnnotationTaskID    = "warden.curaious.dev/task-id"
)

const defaultContainerName = "sandbox"

const maxNameLength = 63

var dns1123 = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// slugify maps an arbitrary identifier onto the cluster's DNS-1123 naming
// constraints. Valid names pass through unchanged; anything else is
// lowered, scrubbed, and suffixed with a short hash of the original so
// the result stays deterministic and collision-resistant.
func slugify(name string) string {
	if dns1123.MatchString(name) && len(name) <= maxNameLength {
		return name
	}

	lowered := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	scrubbed := strings.Trim(b.String(), "-")
	for strings.Contains(scrubbed, "--") {
		scrubbed = strings.ReplaceAll(scrubbed, "--", "-")
	}

	h := fnv.New32a()
	h.Write([]byte(name))
	suffix := fmt.Sprintf("%08x", h.Sum32())

	const budget = maxNameLength - 9 // room for "-" + hash
	if len(scrubbed) > budget {
		scrubbed = strings.TrimRight(scrubbed[:budget], "-")
	}
	if scrubbed == "" {
		return "sbx-" + suffix
	}
	return scrubbed + "-" + suffix
}

// mergeLabels layers caller labels under engine bookkeeping labels.
func mergeLabels(caller, bookkeeping map[string]string) map[string]string {
	out := make(map[string]string, len(caller)+len(bookkeeping))
	for k, v := range caller {
		out[k] = v
	}
	for k, v := range bookkeeping {
		out[k] = v
	}
	return out
}

func defaultSecurityContext() *corev1.SecurityContext {
	return &corev1.SecurityContext{
		RunAsNonRoot:             ptr(true),
		RunAsUser:                ptr(int64(65534)),
		RunAsGroup:               ptr(int64(65534)),
		AllowPrivilegeEscalation: ptr(false),
		Capabilities: &corev1.Capabilities{
			Drop: []corev1.Capability{"ALL"},
		},
		SeccompProfile: &corev1.SeccompProfile{
			Type: corev1.SeccompProfileTypeRuntimeDefault,
		},
	}
}

// SandboxBuilder accumulates a sandbox manifest. Nothing is validated
// until Build.
type SandboxBuilder struct {
	name             string
	namespace        string
	sandboxID        string
	projectID        string
	image            string
	command          []string
	workingDir       string
	env              map[string]string
	cpu              string
	memory           string
	runtimeClass     string
	ttl              time.Duration
	labels           map[string]string
	annotations      map[string]string
	claims           []v1alpha1.PersistentVolumeClaimTemplate
	networkPolicyRef string
	securityCtx      *corev1.SecurityContext
}

func NewSandboxBuilder(name, namespace string) *SandboxBuilder {
	return &SandboxBuilder{name: name, namespace: namespace}
}

func (b *SandboxBuilder) IDs(sandboxID, projectID string) *SandboxBuilder {
	b.sandboxID = sandboxID
	b.projectID = projectID
	return b
}

func (b *SandboxBuilder) Image(image string) *SandboxBuilder {
	b.image = image
	return b
}

func (b *SandboxBuilder) Command(command ...string) *SandboxBuilder {
	b.command = command
	return b
}

func (b *SandboxBuilder) WorkingDir(dir string) *SandboxBuilder {
	b.workingDir = dir
	return b
}

func (b *SandboxBuilder) Env(env map[string]string) *SandboxBuilder {
	b.env = env
	return b
}

func (b *SandboxBuilder) Resources(cpu, memory string) *SandboxBuilder {
	b.cpu = cpu
	b.memory = memory
	return b
}

func (b *SandboxBuilder) RuntimeClass(name string) *SandboxBuilder {
	b.runtimeClass = name
	return b
}

func (b *SandboxBuilder) TTL(ttl time.Duration) *SandboxBuilder {
	b.ttl = ttl
	return b
}

func (b *SandboxBuilder) Labels(labels map[string]string) *SandboxBuilder {
	b.labels = labels
	return b
}

func (b *SandboxBuilder) Annotations(annotations map[string]string) *SandboxBuilder {
	b.annotations = annotations
	return b
}

func (b *SandboxBuilder) VolumeClaim(name string, storageClass, size string) *SandboxBuilder {
	spec := corev1.PersistentVolumeClaimSpec{
		AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
		Resources: corev1.VolumeResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceStorage: resource.MustParse(size),
			},
		},
	}
	if storageClass != "" {
		spec.StorageClassName = &storageClass
	}
	b.claims = append(b.claims, v1alpha1.PersistentVolumeClaimTemplate{Name: name, Spec: spec})
	return b
}

func (b *SandboxBuilder) NetworkPolicyRef(name string) *SandboxBuilder {
	b.networkPolicyRef = name
	return b
}

// SecurityContext overrides the hardened defaults.
func (b *SandboxBuilder) SecurityContext(sc *corev1.SecurityContext) *SandboxBuilder {
	b.securityCtx = sc
	return b
}

func (b *SandboxBuilder) Build() (*v1alpha1.Sandbox, error) {
	if b.image == "" {
		return nil, &sandbox.ConfigError{Field: "image", Reason: "must not be empty"}
	}
	if b.namespace == "" {
		return nil, &sandbox.ConfigError{Field: "namespace", Reason: "must not be empty"}
	}
	if b.name == "" {
		return nil, &sandbox.ConfigError{Field: "name", Reason: "must not be empty"}
	}

	bookkeeping := map[string]string{LabelManagedBy: ManagedByValue}
	if b.sandboxID != "" {
		bookkeeping[LabelSandboxID] = b.sandboxID
	}
	if b.projectID != "" {
		bookkeeping[LabelProjectID] = slugify(b.projectID)
	}
	labels := mergeLabels(b.labels, bookkeeping)

	sc := b.securityCtx
	if sc == nil {
		sc = defaultSecurityContext()
	}

	container := corev1.Container{
		Name:            defaultContainerName,
		Image:           b.image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		SecurityContext: sc,
	}
	if len(b.command) > 0 {
		container.Command = b.command
	}
	if b.workingDir != "" {
		container.WorkingDir = b.workingDir
	}
	for _, k := range sortedKeys(b.env) {
		container.Env = append(container.Env, corev1.EnvVar{Name: k, Value: b.env[k]})
	}
	if b.cpu != "" || b.memory != "" {
		limits := corev1.ResourceList{}
		if b.cpu != "" {
			q, err := resource.ParseQuantity(b.cpu)
			if err != nil {
				return nil, &sandbox.ConfigError{Field: "cpu", Reason: err.Error()}
			}
			limits[corev1.ResourceCPU] = q
		}
		if b.memory != "" {
			q, err := resource.ParseQuantity(b.memory)
			if err != nil {
				return nil, &sandbox.ConfigError{Field: "memory", Reason: err.Error()}
			}
			limits[corev1.ResourceMemory] = q
		}
		container.Resources = corev1.ResourceRequirements{Limits: limits}
	}

	podSpec := corev1.PodSpec{
		RestartPolicy:                corev1.RestartPolicyNever,
		AutomountServiceAccountToken: ptr(false),
		EnableServiceLinks:           ptr(false),
		Containers:                   []corev1.Container{container},
	}
	if b.runtimeClass != "" {
		podSpec.RuntimeClassName = &b.runtimeClass
	}

	spec := v1alpha1.SandboxSpec{
		PodTemplate: v1alpha1.PodTemplate{
			ObjectMeta: v1alpha1.PodMetadata{Labels: labels},
			Spec:       podSpec,
		},
		VolumeClaimTemplates: b.claims,
		NetworkPolicyRef:     b.networkPolicyRef,
	}
	if b.ttl > 0 {
		shutdown := metav1.NewTime(time.Now().Add(b.ttl))
		spec.ShutdownTime = &shutdown
	}

	return &v1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{
			Name:        slugify(b.name),
			Namespace:   b.namespace,
			Labels:      labels,
			Annotations: b.annotations,
		},
		Spec: spec,
	}, nil
}

// WarmPoolBuilder constructs a SandboxWarmPool manifest.
type WarmPoolBuilder struct {
	name      string
	namespace string
	replicas  int32
	template  string
	min, max  *int32
	labels    map[string]string
}

func NewWarmPoolBuilder(name, namespace string) *WarmPoolBuilder {
	return &WarmPoolBuilder{name: name, namespace: namespace}
}

func (b *WarmPoolBuilder) Replicas(n int32) *WarmPoolBuilder {
	b.replicas = n
	return b
}

func (b *WarmPoolBuilder) Template(name string) *WarmPoolBuilder {
	b.template = name
	return b
}

func (b *WarmPoolBuilder) Bounds(min, max int32) *WarmPoolBuilder {
	b.min, b.max = &min, &max
	return b
}

func (b *WarmPoolBuilder) Labels(labels map[string]string) *WarmPoolBuilder {
	b.labels = labels
	return b
}

func (b *WarmPoolBuilder) Build() (*v1alpha1.SandboxWarmPool, error) {
	if b.template == "" {
		return nil, &sandbox.ConfigError{Field: "template", Reason: "warm pool requires a template reference"}
	}
	if b.replicas < 0 {
		return nil, &sandbox.ConfigError{Field: "replicas", Reason: "must not be negative"}
	}
	if b.min != nil && b.max != nil && *b.min > *b.max {
		return nil, &sandbox.ConfigError{Field: "minReplicas", Reason: "must not exceed maxReplicas"}
	}

	return &v1alpha1.SandboxWarmPool{
		ObjectMeta: metav1.ObjectMeta{
			Name:      slugify(b.name),
			Namespace: b.namespace,
			Labels:    mergeLabels(b.labels, map[string]string{LabelManagedBy: ManagedByValue}),
		},
		Spec: v1alpha1.SandboxWarmPoolSpec{
			Replicas:    b.replicas,
			TemplateRef: v1alpha1.TemplateRef{Name: b.template},
			MinReplicas: b.min,
			MaxReplicas: b.max,
		},
	}, nil
}

// ClaimBuilder constructs a SandboxClaim manifest.
type ClaimBuilder struct {
	name      string
	namespace string
	template  string
	ttl       time.Duration
	labels    map[string]string
}

func NewClaimBuilder(name, namespace string) *ClaimBuilder {
	return &ClaimBuilder{name: name, namespace: namespace}
}

func (b *ClaimBuilder) Template(name string) *ClaimBuilder {
	b.template = name
	return b
}

func (b *ClaimBuilder) TTL(ttl time.Duration) *ClaimBuilder {
	b.ttl = ttl
	return b
}

func (b *ClaimBuilder) Labels(labels map[string]string) *ClaimBuilder {
	b.labels = labels
	return b
}

func (b *ClaimBuilder) Build() (*v1alpha1.SandboxClaim, error) {
	if b.template == "" {
		return nil, &sandbox.ConfigError{Field: "template", Reason: "claim requires a template reference"}
	}

	spec := v1alpha1.SandboxClaimSpec{
		TemplateRef: v1alpha1.TemplateRef{Name: b.template},
	}
	if b.ttl > 0 {
		shutdown := metav1.NewTime(time.Now().Add(b.ttl))
		spec.Lifecycle = &v1alpha1.ClaimLifecycle{
			ShutdownTime:   &shutdown,
			ShutdownPolicy: v1alpha1.ShutdownPolicyDelete,
		}
	}

	return &v1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      slugify(b.name),
			Namespace: b.namespace,
			Labels:    mergeLabels(b.labels, map[string]string{LabelManagedBy: ManagedByValue}),
		},
		Spec: spec,
	}, nil
}

// TemplateBuilder constructs a SandboxTemplate manifest.
type TemplateBuilder struct {
	name             string
	namespace        string
	image            string
	cpu              string
	memory           string
	runtimeClass     string
	networkPolicyRef string
	labels           map[string]string
}

func NewTemplateBuilder(name, namespace string) *TemplateBuilder {
	return &TemplateBuilder{name: name, namespace: namespace}
}

func (b *TemplateBuilder) Image(image string) *TemplateBuilder {
	b.image = image
	return b
}

func (b *TemplateBuilder) Resources(cpu, memory string) *TemplateBuilder {
	b.cpu = cpu
	b.memory = memory
	return b
}

func (b *TemplateBuilder) RuntimeClass(name string) *TemplateBuilder {
	b.runtimeClass = name
	return b
}

func (b *TemplateBuilder) NetworkPolicyRef(name string) *TemplateBuilder {
	b.networkPolicyRef = name
	return b
}

func (b *TemplateBuilder) Labels(labels map[string]string) *TemplateBuilder {
	b.labels = labels
	return b
}

func (b *TemplateBuilder) Build() (*v1alpha1.SandboxTemplate, error) {
	sb, err := NewSandboxBuilder(b.name, b.namespace).
		Image(b.image).
		Resources(b.cpu, b.memory).
		RuntimeClass(b.runtimeClass).
		Labels(b.labels).
		Build()
	if err != nil {
		return nil, err
	}

	return &v1alpha1.SandboxTemplate{
		ObjectMeta: metav1.ObjectMeta{
			Name:      slugify(b.name),
			Namespace: b.namespace,
			Labels:    sb.Labels,
		},
		Spec: v1alpha1.SandboxTemplateSpec{
			PodTemplate:      sb.Spec.PodTemplate,
			NetworkPolicyRef: b.networkPolicyRef,
		},
	}, nil
}

func ptr[T any](v T) *T { return &v }
