package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SandboxTemplateSpec is a reusable blueprint referenced by name from
// warm pools and claims. Immutable once applied except by explicit update.
type SandboxTemplateSpec struct {
	PodTemplate PodTemplate `json:"podTemplate"`

	VolumeClaimTemplates []PersistentVolumeClaimTemplate `json:"volumeClaimTemplates,omitempty"`

	NetworkPolicyRef string `json:"networkPolicyRef,omitempty"`
}

// SandboxTemplate is the Schema for reusable sandbox blueprints.
type SandboxTemplate struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec SandboxTemplateSpec `json:"spec"`
}

// SandboxTemplateList contains a list of SandboxTemplate.
type SandboxTemplateList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SandboxTemplate `json:"items"`
}
