// Package v1alpha1 mirrors the agent-sandbox CRD family served by the
// cluster control plane. The structs here carry only json tags; they are
// read and written through the dynamic client and converted with
// runtime.DefaultUnstructuredConverter, so no scheme registration or
// generated deepcopy code is needed.
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	Group   = "agents.x-k8s.io"
	Version = "v1alpha1"
)

// GroupVersion is the API group/version served by the sandbox controller.
var GroupVersion = schema.GroupVersion{Group: Group, Version: Version}

var (
	SandboxGVR         = GroupVersion.WithResource("sandboxes")
	SandboxTemplateGVR = GroupVersion.WithResource("sandboxtemplates")
	SandboxClaimGVR    = GroupVersion.WithResource("sandboxclaims")
	SandboxWarmPoolGVR = GroupVersion.WithResource("sandboxwarmpools")
)

const (
	SandboxKind         = "Sandbox"
	SandboxTemplateKind = "SandboxTemplate"
	SandboxClaimKind    = "SandboxClaim"
	SandboxWarmPoolKind = "SandboxWarmPool"
)
