package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ClaimPhase tracks the binding of a claim to a warm-pool member.
type ClaimPhase string

const (
	ClaimPhasePending ClaimPhase = "Pending"
	ClaimPhaseBound   ClaimPhase = "Bound"
	ClaimPhaseFailed  ClaimPhase = "Failed"
)

// ShutdownPolicy describes what happens to the claim when it expires.
type ShutdownPolicy string

const (
	// ShutdownPolicyDelete deletes the claim and, cascadingly, the sandbox.
	ShutdownPolicyDelete ShutdownPolicy = "Delete"
	// ShutdownPolicyRetain keeps the claim object; the sandbox resources are
	// still torn down.
	ShutdownPolicyRetain ShutdownPolicy = "Retain"
)

// ClaimLifecycle defines when and how the claim is shut down.
type ClaimLifecycle struct {
	ShutdownTime   *metav1.Time   `json:"shutdownTime,omitempty"`
	ShutdownPolicy ShutdownPolicy `json:"shutdownPolicy,omitempty"`
}

// TemplateRef references a SandboxTemplate by name.
type TemplateRef struct {
	Name string `json:"name"`
}

// SandboxClaimSpec requests that an unclaimed warm-pool member built from
// the referenced template be bound to the caller.
type SandboxClaimSpec struct {
	TemplateRef TemplateRef     `json:"sandboxTemplateRef"`
	Lifecycle   *ClaimLifecycle `json:"lifecycle,omitempty"`
}

// SandboxClaimStatus is maintained by the controller.
type SandboxClaimStatus struct {
	Phase      ClaimPhase         `json:"phase,omitempty"`
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// SandboxName is the bound Sandbox, set once Phase is Bound.
	SandboxName string `json:"sandboxName,omitempty"`
}

// SandboxClaim is the Schema for the sandbox claim API.
type SandboxClaim struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SandboxClaimSpec   `json:"spec"`
	Status SandboxClaimStatus `json:"status,omitempty"`
}

// SandboxClaimList contains a list of SandboxClaim.
type SandboxClaimList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SandboxClaim `json:"items"`
}
