package k8s_sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
	"github.com/curaious/warden/pkg/sandbox/k8s_sandbox/api/v1alpha1"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Config defines how the provider creates and manages sandboxes.
type Config struct {
	// Namespace where sandbox resources are created.
	Namespace string

	// Image is the default sandbox image when a create request names none.
	Image string

	// Resource hints (K8s quantities, e.g. "500m", "1Gi").
	CPU    string
	Memory string

	RuntimeClass string

	// Storage configuration for workspace volume claims.
	StorageClass string
	StorageSize  string

	// TTL is the default sandbox lifetime written into the manifest;
	// expiry itself is enforced by the cluster controller.
	TTL time.Duration

	ReadyTimeout time.Duration
	PollInterval time.Duration

	// WarmPool enables warm-pool allocation when non-nil.
	WarmPool *WarmPoolConfig
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "warden-sandbox"
	}
	if c.StorageSize == "" {
		c.StorageSize = "1Gi"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

// Manager is the Kubernetes-backed sandbox provider. The project and id
// caches are instance-scoped: two managers never share state.
type Manager struct {
	cfg       Config
	clientset kubernetes.Interface

	sandboxes *ResourceClient[v1alpha1.Sandbox]
	templates *ResourceClient[v1alpha1.SandboxTemplate]

	pool   *WarmPool
	exec   *ExecClient
	events *sandbox.Emitter
	tracer trace.Tracer

	mu        sync.Mutex
	byID      map[string]*handle
	byProject map[string]string
	projectMu map[string]*sync.Mutex
}

var _ sandbox.Provider = (*Manager)(nil)

// NewManager creates a provider using the in-cluster configuration,
// falling back to the local kubeconfig.
func NewManager(cfg Config) (*Manager, error) {
	restCfg, err := buildRESTConfig()
	if err != nil {
		return nil, &sandbox.ConfigError{Field: "kubeconfig", Reason: err.Error()}
	}

	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	cfg.applyDefaults()
	return newManager(cfg, dyn, clientset, NewExecClient(clientset, restCfg, cfg.Namespace)), nil
}

func buildRESTConfig() (*rest.Config, error) {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

func newManager(cfg Config, dyn dynamic.Interface, clientset kubernetes.Interface, exec *ExecClient) *Manager {
	cfg.applyDefaults()

	sandboxes := NewResourceClient[v1alpha1.Sandbox](dyn, Kind{GroupVersionResource: v1alpha1.SandboxGVR, Name: v1alpha1.SandboxKind})
	templates := NewResourceClient[v1alpha1.SandboxTemplate](dyn, Kind{GroupVersionResource: v1alpha1.SandboxTemplateGVR, Name: v1alpha1.SandboxTemplateKind})

	m := &Manager{
		cfg:       cfg,
		clientset: clientset,
		sandboxes: sandboxes,
		templates: templates,
		exec:      exec,
		events:    sandbox.NewEmitter(),
		tracer:    otel.Tracer("warden/k8s_sandbox"),
		byID:      make(map[string]*handle),
		byProject: make(map[string]string),
		projectMu: make(map[string]*sync.Mutex),
	}

	if cfg.WarmPool != nil {
		pools := NewResourceClient[v1alpha1.SandboxWarmPool](dyn, Kind{GroupVersionResource: v1alpha1.SandboxWarmPoolGVR, Name: v1alpha1.SandboxWarmPoolKind})
		claims := NewResourceClient[v1alpha1.SandboxClaim](dyn, Kind{GroupVersionResource: v1alpha1.SandboxClaimGVR, Name: v1alpha1.SandboxClaimKind})
		m.pool = NewWarmPool(pools, claims, sandboxes, cfg.Namespace, *cfg.WarmPool)
	}

	return m
}

// InitWarmPool declares the warm pool on the cluster. Idempotent; a no-op
// when warm pooling is disabled.
func (m *Manager) InitWarmPool(ctx context.Context) error {
	if m.pool == nil {
		return nil
	}
	return m.pool.Init(ctx)
}

// EnsureTemplate declares the SandboxTemplate warm-pool members are built
// from. Idempotent: an existing template is patched to the desired spec.
func (m *Manager) EnsureTemplate(ctx context.Context, name, image string) error {
	if image == "" {
		image = m.cfg.Image
	}
	tpl, err := NewTemplateBuilder(name, m.cfg.Namespace).
		Image(image).
		Resources(m.cfg.CPU, m.cfg.Memory).
		RuntimeClass(m.cfg.RuntimeClass).
		Build()
	if err != nil {
		return err
	}

	_, err = m.templates.Create(ctx, m.cfg.Namespace, tpl)
	if err == nil {
		slog.Info("sandbox template created", slog.String("template", tpl.Name))
		return nil
	}
	if !sandbox.IsAlreadyExists(err) {
		return err
	}
	_, err = m.templates.Patch(ctx, m.cfg.Namespace, tpl.Name, map[string]any{
		"spec": tpl.Spec,
	})
	return err
}

// On subscribes to lifecycle events.
func (m *Manager) On(l sandbox.Listener) func() {
	return m.events.On(l)
}

// Create provisions a sandbox for the project. Creation for the same
// project is serialized, so two concurrent calls cannot both pass the
// existence check.
func (m *Manager) Create(ctx context.Context, cfg sandbox.SandboxConfig) (sandbox.Handle, error) {
	if cfg.ProjectID == "" {
		return nil, &sandbox.ConfigError{Field: "projectId", Reason: "must not be empty"}
	}
	image := cfg.Image
	if image == "" {
		image = m.cfg.Image
	}
	if image == "" {
		return nil, &sandbox.ConfigError{Field: "image", Reason: "must not be empty"}
	}

	ctx, span := m.tracer.Start(ctx, "sandbox.create",
		trace.WithAttributes(attribute.String("project.id", cfg.ProjectID)))
	defer span.End()

	unlock := m.lockProject(cfg.ProjectID)
	defer unlock()

	if h := m.activeForProject(cfg.ProjectID); h != nil {
		return nil, &sandbox.AlreadyExistsError{Name: h.info.ID}
	}

	sandboxID := uuid.NewString()
	m.emit(sandbox.EventCreating, sandboxID, cfg.ProjectID, sandbox.StatusCreating, nil)

	sb, err := m.provision(ctx, sandboxID, cfg, image)
	if err != nil {
		m.emit(sandbox.EventError, sandboxID, cfg.ProjectID, sandbox.StatusError, err)
		return nil, err
	}

	m.emit(sandbox.EventCreated, sandboxID, cfg.ProjectID, statusFromPhase(sb.Status.Phase), nil)

	ready, err := WaitForReady(ctx, m.sandboxes, m.cfg.Namespace, sb.Name, m.cfg.ReadyTimeout, m.cfg.PollInterval)
	if err != nil {
		// failed creation must not leak a cluster resource or a cache entry
		m.deleteResource(sb.Name)
		m.emit(sandbox.EventError, sandboxID, cfg.ProjectID, sandbox.StatusError, err)
		return nil, err
	}

	h := m.newHandle(sandboxID, cfg.ProjectID, image, ready)
	m.register(h)

	m.emit(sandbox.EventStarted, sandboxID, cfg.ProjectID, sandbox.StatusRunning, nil)
	slog.Info("sandbox started",
		slog.String("sandbox", h.info.Name),
		slog.String("project", cfg.ProjectID))
	return h, nil
}

// provision claims a warm pool member when possible, otherwise builds and
// applies a fresh manifest. Pool exhaustion silently takes the cold path.
func (m *Manager) provision(ctx context.Context, sandboxID string, cfg sandbox.SandboxConfig, image string) (*v1alpha1.Sandbox, error) {
	if m.pool != nil {
		warm, err := m.pool.Claim(ctx, sandboxID, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		if warm != nil {
			return warm, nil
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	cpu, memory := cfg.CPU, cfg.Memory
	if cpu == "" {
		cpu = m.cfg.CPU
	}
	if memory == "" {
		memory = m.cfg.Memory
	}

	manifest, err := NewSandboxBuilder("sbx-"+sandboxID[:8], m.cfg.Namespace).
		IDs(sandboxID, cfg.ProjectID).
		Image(image).
		Command(cfg.Command...).
		WorkingDir(cfg.WorkingDir).
		Env(cfg.Env).
		Resources(cpu, memory).
		RuntimeClass(m.cfg.RuntimeClass).
		TTL(ttl).
		Labels(cfg.Labels).
		Annotations(cfg.Annotations).
		VolumeClaim("workspace", m.cfg.StorageClass, m.cfg.StorageSize).
		Build()
	if err != nil {
		return nil, err
	}

	return m.sandboxes.Create(ctx, m.cfg.Namespace, manifest)
}

// Get returns the project's active handle. On a cache miss the cluster is
// consulted, which makes the cache self-healing after a process restart.
func (m *Manager) Get(ctx context.Context, projectID string) (sandbox.Handle, error) {
	m.mu.Lock()
	if id, ok := m.byProject[projectID]; ok {
		if h, ok := m.byID[id]; ok {
			m.mu.Unlock()
			return h, nil
		}
	}
	m.mu.Unlock()

	list, err := m.sandboxes.List(ctx, m.cfg.Namespace, ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", LabelManagedBy, ManagedByValue, LabelProjectID, slugify(projectID)),
	})
	if err != nil {
		return nil, err
	}

	for i := range list.Items {
		sb := &list.Items[i]
		status := statusFromPhase(sb.Status.Phase)
		if status == sandbox.StatusStopped {
			continue
		}
		h := m.newHandle(sb.Labels[LabelSandboxID], projectID, imageOf(sb), sb)
		m.register(h)
		return h, nil
	}
	return nil, nil
}

// GetById returns the handle for a sandbox id, consulting the cluster on
// a cache miss. Returns (nil, nil) when it does not exist.
func (m *Manager) GetById(ctx context.Context, sandboxID string) (sandbox.Handle, error) {
	m.mu.Lock()
	if h, ok := m.byID[sandboxID]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	list, err := m.sandboxes.List(ctx, m.cfg.Namespace, ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelSandboxID, sandboxID),
	})
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, nil
	}

	sb := &list.Items[0]
	h := m.newHandle(sandboxID, sb.Labels[LabelProjectID], imageOf(sb), sb)
	m.register(h)
	return h, nil
}

// List enumerates managed sandboxes from the cluster, paging through the
// full collection.
func (m *Manager) List(ctx context.Context) ([]sandbox.SandboxInfo, error) {
	var infos []sandbox.SandboxInfo
	opts := ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelManagedBy, ManagedByValue),
		Limit:         100,
	}
	for {
		page, err := m.sandboxes.List(ctx, m.cfg.Namespace, opts)
		if err != nil {
			return nil, err
		}
		for i := range page.Items {
			infos = append(infos, infoOf(&page.Items[i]))
		}
		if page.Continue == "" {
			return infos, nil
		}
		opts.Continue = page.Continue
	}
}

// Stop tears down the sandbox with the given id. Unknown ids are treated
// as already stopped.
func (m *Manager) Stop(ctx context.Context, sandboxID string) error {
	h, err := m.GetById(ctx, sandboxID)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	return h.Stop(ctx)
}

// PullImage validates the reference; the cluster pulls images lazily at
// pod admission.
func (m *Manager) PullImage(_ context.Context, image string) error {
	if image == "" {
		return &sandbox.ConfigError{Field: "image", Reason: "must not be empty"}
	}
	return nil
}

func (m *Manager) IsImageAvailable(_ context.Context, image string) (bool, error) {
	return image != "", nil
}

// Cleanup stops every sandbox the filter matches: cached handles first,
// then labeled cluster sandboxes the cache no longer knows about.
func (m *Manager) Cleanup(ctx context.Context, filter sandbox.CleanupFilter) (int, error) {
	now := time.Now()
	stopped := 0

	m.mu.Lock()
	cached := make([]*handle, 0, len(m.byID))
	for _, h := range m.byID {
		cached = append(cached, h)
	}
	m.mu.Unlock()

	seen := make(map[string]bool, len(cached))
	for _, h := range cached {
		seen[h.info.Name] = true
		if !filter.Matches(h.Info(), now) {
			continue
		}
		if err := h.Stop(ctx); err != nil {
			slog.Warn("cleanup: stop failed",
				slog.String("sandbox", h.info.Name), slog.Any("error", err))
			continue
		}
		stopped++
	}

	// orphans: cluster resources carrying our labels but absent from the
	// cache, e.g. left behind by a previous process
	list, err := m.sandboxes.List(ctx, m.cfg.Namespace, ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelManagedBy, ManagedByValue),
	})
	if err != nil {
		return stopped, err
	}
	for i := range list.Items {
		sb := &list.Items[i]
		if seen[sb.Name] || !filter.Matches(infoOf(sb), now) {
			continue
		}
		if err := m.sandboxes.Delete(ctx, m.cfg.Namespace, sb.Name); err != nil && !sandbox.IsNotFound(err) {
			slog.Warn("cleanup: delete orphan failed",
				slog.String("sandbox", sb.Name), slog.Any("error", err))
			continue
		}
		stopped++
	}

	return stopped, nil
}

// HealthCheck aggregates cluster reachability, controller installation,
// namespace existence, sandbox counts, and warm-pool status into a single
// verdict. It never returns an error: transient failures downgrade to an
// unhealthy report.
func (m *Manager) HealthCheck(ctx context.Context) *sandbox.Health {
	health := &sandbox.Health{Healthy: true}

	if _, err := m.clientset.CoreV1().Namespaces().Get(ctx, m.cfg.Namespace, metav1.GetOptions{}); err != nil {
		health.Healthy = false
		health.Message = fmt.Sprintf("namespace %s unavailable: %v", m.cfg.Namespace, err)
		return health
	}

	list, err := m.sandboxes.List(ctx, m.cfg.Namespace, ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelManagedBy, ManagedByValue),
	})
	if err != nil {
		health.Healthy = false
		if sandbox.IsControllerNotInstalled(err) {
			health.Message = err.Error()
		} else {
			health.Message = fmt.Sprintf("listing sandboxes: %v", err)
		}
		return health
	}
	health.SandboxCount = len(list.Items)

	if m.pool != nil {
		pool, err := m.pool.Status(ctx)
		if err != nil {
			health.Healthy = false
			health.Message = fmt.Sprintf("warm pool unavailable: %v", err)
			return health
		}
		health.WarmPool = &sandbox.WarmPoolHealth{
			Name:      pool.Name,
			Desired:   pool.Spec.Replicas,
			Ready:     pool.Status.ReadyReplicas,
			Allocated: pool.Status.AllocatedReplicas,
		}
	}

	return health
}

func (m *Manager) emit(t sandbox.EventType, sandboxID, projectID string, status sandbox.Status, err error) {
	m.events.Emit(sandbox.Event{
		Type:      t,
		SandboxID: sandboxID,
		ProjectID: projectID,
		Status:    status,
		Err:       err,
	})
}

// lockProject serializes Create calls per project.
func (m *Manager) lockProject(projectID string) func() {
	m.mu.Lock()
	lock, ok := m.projectMu[projectID]
	if !ok {
		lock = &sync.Mutex{}
		m.projectMu[projectID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *Manager) activeForProject(projectID string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byProject[projectID]
	if !ok {
		return nil
	}
	return m.byID[id]
}

func (m *Manager) register(h *handle) {
	m.mu.Lock()
	m.byID[h.info.ID] = h
	if h.info.ProjectID != "" {
		m.byProject[h.info.ProjectID] = h.info.ID
	}
	m.mu.Unlock()
}

func (m *Manager) deregister(h *handle) {
	m.mu.Lock()
	delete(m.byID, h.info.ID)
	if id, ok := m.byProject[h.info.ProjectID]; ok && id == h.info.ID {
		delete(m.byProject, h.info.ProjectID)
	}
	m.mu.Unlock()
}

// deleteResource is the best-effort teardown used on failed creations.
func (m *Manager) deleteResource(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.sandboxes.Delete(ctx, m.cfg.Namespace, name); err != nil && !sandbox.IsNotFound(err) {
		slog.Warn("failed to delete sandbox after failed creation",
			slog.String("sandbox", name), slog.Any("error", err))
	}
}

func (m *Manager) newHandle(sandboxID, projectID, image string, sb *v1alpha1.Sandbox) *handle {
	if sandboxID == "" {
		sandboxID = sb.Name
	}
	return &handle{
		m: m,
		info: sandbox.SandboxInfo{
			ID:        sandboxID,
			ProjectID: projectID,
			Name:      sb.Name,
			Namespace: sb.Namespace,
			PodName:   sb.Status.PodName,
			Address:   sb.Status.ServiceFQDN,
			Image:     image,
			Status:    statusFromPhase(sb.Status.Phase),
			CreatedAt: sb.CreationTimestamp.Time,
		},
	}
}

// statusFromPhase is the fixed phase mapping. Unknown phases report
// creating: never claim more confidence than "still initializing".
func statusFromPhase(phase v1alpha1.SandboxPhase) sandbox.Status {
	switch phase {
	case v1alpha1.SandboxPhaseRunning:
		return sandbox.StatusRunning
	case v1alpha1.SandboxPhasePending:
		return sandbox.StatusCreating
	case v1alpha1.SandboxPhasePaused:
		return sandbox.StatusIdle
	case v1alpha1.SandboxPhaseFailed:
		return sandbox.StatusError
	case v1alpha1.SandboxPhaseSucceeded:
		return sandbox.StatusStopped
	default:
		return sandbox.StatusCreating
	}
}

func imageOf(sb *v1alpha1.Sandbox) string {
	containers := sb.Spec.PodTemplate.Spec.Containers
	if len(containers) == 0 {
		return ""
	}
	return containers[0].Image
}

func infoOf(sb *v1alpha1.Sandbox) sandbox.SandboxInfo {
	return sandbox.SandboxInfo{
		ID:        sb.Labels[LabelSandboxID],
		ProjectID: sb.Labels[LabelProjectID],
		Name:      sb.Name,
		Namespace: sb.Namespace,
		PodName:   sb.Status.PodName,
		Address:   sb.Status.ServiceFQDN,
		Image:     imageOf(sb),
		Status:    statusFromPhase(sb.Status.Phase),
		CreatedAt: sb.CreationTimestamp.Time,
	}
}
