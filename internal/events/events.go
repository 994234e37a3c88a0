package events

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/events"
)

const (
	// ReasonNewerTag indicates a newer version tag exists in the registry.
	ReasonNewerTag = "NewerTagAvailable"

	// ReasonContentDrift indicates the registry content for a running tag
	// has changed since the container started.
	ReasonContentDrift = "RegistryContentDrift"

	actionAudited = "Audited"
)

// Emitter emits Kubernetes events for tagwatch findings.
type Emitter struct {
	Recorder events.EventRecorder
}

// NewEmitter creates an Emitter with the given recorder.
func NewEmitter(recorder events.EventRecorder) *Emitter {
	return &Emitter{Recorder: recorder}
}

// EmitNewerTag emits a Warning event on the workload declaring image:current.
func (e *Emitter) EmitNewerTag(obj runtime.Object, image, current, newest string) {
	e.Recorder.Eventf(
		obj, nil, corev1.EventTypeWarning, ReasonNewerTag, actionAudited,
		"Newer tag available for %s:%s -> %s",
		image, current, newest,
	)
}

// EmitContentDrift emits a Warning event on the workload running image on
// node whose tag now resolves to registryDigest.
func (e *Emitter) EmitContentDrift(obj runtime.Object, image, node, registryDigest string) {
	e.Recorder.Eventf(
		obj, nil, corev1.EventTypeWarning, ReasonContentDrift, actionAudited,
		"Registry image has been updated (%s) for %s on node %s; restart to pick up the new content.",
		registryDigest, image, node,
	)
}
