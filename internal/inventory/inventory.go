package inventory

import (
	"context"
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ppiankov/tagwatch/internal/audit"
	"github.com/ppiankov/tagwatch/internal/config"
)

// Collector enumerates top-level workloads and their running containers.
type Collector struct {
	Client client.Reader
}

// NewCollector creates a Collector with the given client.
func NewCollector(c client.Reader) *Collector {
	return &Collector{Client: c}
}

// Collect returns every top-level, non-ignored Deployment, DaemonSet,
// StatefulSet, Pod and CronJob in namespace (all namespaces when empty).
func (c *Collector) Collect(ctx context.Context, namespace string) ([]audit.Resource, error) {
	var opts []client.ListOption
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}

	var pods corev1.PodList
	if err := c.Client.List(ctx, &pods, opts...); err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}
	var replicaSets appsv1.ReplicaSetList
	if err := c.Client.List(ctx, &replicaSets, opts...); err != nil {
		return nil, fmt.Errorf("listing replicasets: %w", err)
	}
	var deployments appsv1.DeploymentList
	if err := c.Client.List(ctx, &deployments, opts...); err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	var daemonSets appsv1.DaemonSetList
	if err := c.Client.List(ctx, &daemonSets, opts...); err != nil {
		return nil, fmt.Errorf("listing daemonsets: %w", err)
	}
	var statefulSets appsv1.StatefulSetList
	if err := c.Client.List(ctx, &statefulSets, opts...); err != nil {
		return nil, fmt.Errorf("listing statefulsets: %w", err)
	}
	var cronJobs batchv1.CronJobList
	if err := c.Client.List(ctx, &cronJobs, opts...); err != nil {
		return nil, fmt.Errorf("listing cronjobs: %w", err)
	}

	var resources []audit.Resource
	for i := range deployments.Items {
		d := &deployments.Items[i]
		if !c.include(ctx, d) {
			continue
		}
		res := newResource("Deployment", d, &d.Spec.Template.Spec)
		for j := range replicaSets.Items {
			rs := &replicaSets.Items[j]
			if metav1.IsControlledBy(rs, d) {
				res.Containers = append(res.Containers, c.containersOf(ctx, controlledPods(pods.Items, rs))...)
			}
		}
		resources = append(resources, res)
	}
	for i := range daemonSets.Items {
		ds := &daemonSets.Items[i]
		if !c.include(ctx, ds) {
			continue
		}
		res := newResource("DaemonSet", ds, &ds.Spec.Template.Spec)
		res.Containers = c.containersOf(ctx, controlledPods(pods.Items, ds))
		resources = append(resources, res)
	}
	for i := range statefulSets.Items {
		sts := &statefulSets.Items[i]
		if !c.include(ctx, sts) {
			continue
		}
		res := newResource("StatefulSet", sts, &sts.Spec.Template.Spec)
		res.Containers = c.containersOf(ctx, controlledPods(pods.Items, sts))
		resources = append(resources, res)
	}
	for i := range pods.Items {
		pod := &pods.Items[i]
		if !c.include(ctx, pod) {
			continue
		}
		res := newResource("Pod", pod, &pod.Spec)
		res.Containers = c.containersOf(ctx, []*corev1.Pod{pod})
		resources = append(resources, res)
	}
	for i := range cronJobs.Items {
		cj := &cronJobs.Items[i]
		if !c.include(ctx, cj) {
			continue
		}
		// Jobs are short-lived; only declared images are checked.
		resources = append(resources, newResource("CronJob", cj, &cj.Spec.JobTemplate.Spec.Template.Spec))
	}

	log.FromContext(ctx).V(1).Info("collected inventory", "resources", len(resources), "namespace", namespace)
	return resources, nil
}

// include reports whether obj is top-level and not ignored.
func (c *Collector) include(ctx context.Context, obj client.Object) bool {
	if len(obj.GetOwnerReferences()) > 0 {
		return false
	}
	value, ok := obj.GetAnnotations()[config.AnnotationIgnore]
	if !ok {
		return true
	}
	ignore, err := strconv.ParseBool(value)
	if err != nil {
		log.FromContext(ctx).Info("invalid ignore annotation, including resource",
			"namespace", obj.GetNamespace(), "name", obj.GetName(), "value", value)
		return true
	}
	return !ignore
}

func newResource(kind string, obj client.Object, spec *corev1.PodSpec) audit.Resource {
	return audit.Resource{
		Kind:       kind,
		Namespace:  obj.GetNamespace(),
		Name:       obj.GetName(),
		UID:        obj.GetUID(),
		TagPattern: obj.GetAnnotations()[config.AnnotationTagRegex],
		Images:     declaredImages(spec),
		Object:     obj,
	}
}

// declaredImages returns the container and init container images of spec,
// de-duplicated in spec order.
func declaredImages(spec *corev1.PodSpec) []string {
	seen := make(map[string]bool)
	var images []string
	for _, containers := range [][]corev1.Container{spec.Containers, spec.InitContainers} {
		for _, ct := range containers {
			if ct.Image == "" || seen[ct.Image] {
				continue
			}
			seen[ct.Image] = true
			images = append(images, ct.Image)
		}
	}
	return images
}

func controlledPods(pods []corev1.Pod, owner metav1.Object) []*corev1.Pod {
	var out []*corev1.Pod
	for i := range pods {
		if metav1.IsControlledBy(&pods[i], owner) {
			out = append(out, &pods[i])
		}
	}
	return out
}

// containersOf maps container statuses to observed containers. The declared
// image is taken from the spec container of the same name, since the status
// image is the runtime's normalized form.
func (c *Collector) containersOf(ctx context.Context, pods []*corev1.Pod) []audit.ObservedContainer {
	logger := log.FromContext(ctx)

	var out []audit.ObservedContainer
	for _, pod := range pods {
		for _, pair := range []struct {
			statuses []corev1.ContainerStatus
			specs    []corev1.Container
		}{
			{pod.Status.ContainerStatuses, pod.Spec.Containers},
			{pod.Status.InitContainerStatuses, pod.Spec.InitContainers},
		} {
			specImage := make(map[string]string, len(pair.specs))
			for _, ct := range pair.specs {
				specImage[ct.Name] = ct.Image
			}
			for _, cs := range pair.statuses {
				image := specImage[cs.Name]
				if image == "" {
					image = cs.Image
				}
				oc, err := audit.NewObservedContainer(pod.Spec.NodeName, image, cs.ImageID)
				if err != nil {
					logger.V(1).Info("skipping container status", "pod", pod.Namespace+"/"+pod.Name,
						"container", cs.Name, "reason", err.Error())
					continue
				}
				out = append(out, oc)
			}
		}
	}
	return out
}
