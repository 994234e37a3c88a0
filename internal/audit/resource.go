package audit

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ErrIncompleteContainer is returned when a container status lacks a field
// required for a digest comparison.
var ErrIncompleteContainer = errors.New("incomplete container status")

// Resource is a top-level workload and the containers it currently runs.
type Resource struct {
	Kind      string
	Namespace string
	Name      string
	UID       types.UID

	// TagPattern restricts which tags count as upgrades. Empty means any
	// version tag.
	TagPattern string

	// Images are the declared image references, de-duplicated.
	Images []string

	// Containers are the running container instances owned by the workload.
	Containers []ObservedContainer

	// Object is the underlying API object, used as the event regarding
	// object. Nil in tests that do not publish.
	Object client.Object
}

// String returns "Kind: namespace/name (uid)".
func (r Resource) String() string {
	name := r.Name
	if r.Namespace != "" {
		name = r.Namespace + "/" + r.Name
	}
	return fmt.Sprintf("%s: %s (%s)", r.Kind, name, r.UID)
}

// ObservedContainer is one running container instance.
type ObservedContainer struct {
	// Node is the node the container runs on.
	Node string
	// Image is the declared image reference of the container.
	Image string
	// ImageID is the runtime's image locator, "<scheme>://<repo>@<digest>".
	ImageID string
}

// NewObservedContainer returns an ObservedContainer, failing when any field
// is empty.
func NewObservedContainer(node, image, imageID string) (ObservedContainer, error) {
	switch {
	case node == "":
		return ObservedContainer{}, fmt.Errorf("%w: no node for image %q", ErrIncompleteContainer, image)
	case image == "":
		return ObservedContainer{}, fmt.Errorf("%w: no image on node %q", ErrIncompleteContainer, node)
	case imageID == "":
		return ObservedContainer{}, fmt.Errorf("%w: no image ID for %q on node %q", ErrIncompleteContainer, image, node)
	}
	return ObservedContainer{Node: node, Image: image, ImageID: imageID}, nil
}
