package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SandboxWarmPoolSpec declares a pool of pre-provisioned, unclaimed
// sandboxes built from a template, reconciled by the controller.
type SandboxWarmPoolSpec struct {
	// Replicas is the desired number of unclaimed sandboxes kept ready.
	Replicas int32 `json:"replicas"`

	TemplateRef TemplateRef `json:"sandboxTemplateRef"`

	// MinReplicas and MaxReplicas bound autoscaling of the pool.
	MinReplicas *int32 `json:"minReplicas,omitempty"`
	MaxReplicas *int32 `json:"maxReplicas,omitempty"`
}

// SandboxWarmPoolStatus is maintained by the controller.
type SandboxWarmPoolStatus struct {
	// ReadyReplicas counts unclaimed members with the Ready condition.
	ReadyReplicas int32 `json:"readyReplicas,omitempty"`

	// AllocatedReplicas counts members bound to a claim.
	AllocatedReplicas int32 `json:"allocatedReplicas,omitempty"`

	TotalReplicas int32 `json:"totalReplicas,omitempty"`
}

// SandboxWarmPool is the Schema for the sandbox warm pool API.
type SandboxWarmPool struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SandboxWarmPoolSpec   `json:"spec"`
	Status SandboxWarmPoolStatus `json:"status,omitempty"`
}

// SandboxWarmPoolList contains a list of SandboxWarmPool.
type SandboxWarmPoolList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SandboxWarmPool `json:"items"`
}
