package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SandboxPhase is the coarse lifecycle phase reported by the controller.
type SandboxPhase string

const (
	SandboxPhasePending   SandboxPhase = "Pending"
	SandboxPhaseRunning   SandboxPhase = "Running"
	SandboxPhasePaused    SandboxPhase = "Paused"
	SandboxPhaseSucceeded SandboxPhase = "Succeeded"
	SandboxPhaseFailed    SandboxPhase = "Failed"
	SandboxPhaseUnknown   SandboxPhase = "Unknown"
)

// ConditionReady is the condition type the controller sets once the
// sandbox workload is schedulable and reachable.
const ConditionReady = "Ready"

// PodMetadata carries the labels and annotations applied to the sandbox pod.
type PodMetadata struct {
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// PodTemplate describes the pod created for a sandbox.
type PodTemplate struct {
	ObjectMeta PodMetadata    `json:"metadata,omitempty"`
	Spec       corev1.PodSpec `json:"spec"`
}

// PersistentVolumeClaimTemplate is a claim the sandbox pod may reference.
type PersistentVolumeClaimTemplate struct {
	Name string                           `json:"name,omitempty"`
	Spec corev1.PersistentVolumeClaimSpec `json:"spec"`
}

// SandboxSpec defines the desired state of a Sandbox.
type SandboxSpec struct {
	PodTemplate PodTemplate `json:"podTemplate"`

	VolumeClaimTemplates []PersistentVolumeClaimTemplate `json:"volumeClaimTemplates,omitempty"`

	// NetworkPolicyRef names a namespace-scoped NetworkPolicy applied to the
	// sandbox pod in addition to any namespace-wide policy. The controller
	// computes the effective intersection.
	NetworkPolicyRef string `json:"networkPolicyRef,omitempty"`

	// ShutdownTime is the absolute time at which the controller deletes the
	// sandbox. A time in the past deletes it immediately.
	ShutdownTime *metav1.Time `json:"shutdownTime,omitempty"`

	// Replicas is 0 (paused) or 1 (running). Defaults to 1.
	Replicas *int32 `json:"replicas,omitempty"`
}

// SandboxStatus is maintained by the controller. The engine only reads it.
type SandboxStatus struct {
	Phase SandboxPhase `json:"phase,omitempty"`

	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// PodName is the backing pod, once scheduled.
	PodName string `json:"podName,omitempty"`

	// Service and ServiceFQDN address the sandbox inside the cluster,
	// e.g. sandbox-example.default.svc.cluster.local.
	Service     string `json:"service,omitempty"`
	ServiceFQDN string `json:"serviceFQDN,omitempty"`

	Replicas int32 `json:"replicas"`

	// ReadyTime is when the Ready condition first became true.
	ReadyTime *metav1.Time `json:"readyTime,omitempty"`
}

// Sandbox is a single ephemeral execution environment.
type Sandbox struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SandboxSpec   `json:"spec"`
	Status SandboxStatus `json:"status,omitempty"`
}

// SandboxList contains a list of Sandbox.
type SandboxList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Sandbox `json:"items"`
}

// IsReady reports whether the Ready condition is true.
func (s *Sandbox) IsReady() bool {
	for _, c := range s.Status.Conditions {
		if c.Type == ConditionReady && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}
