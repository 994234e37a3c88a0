package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ppiankov/tagwatch/internal/audit"
	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/events"
	"github.com/ppiankov/tagwatch/internal/metrics"
	"github.com/ppiankov/tagwatch/internal/notify"
	"github.com/ppiankov/tagwatch/internal/registry"
	"github.com/ppiankov/tagwatch/internal/suppress"
)

// Inventory lists the workloads to audit.
type Inventory interface {
	Collect(ctx context.Context, namespace string) ([]audit.Resource, error)
}

// Runner performs audit runs, once or periodically.
// It implements manager.Runnable and manager.LeaderElectionRunnable.
type Runner struct {
	Inventory Inventory
	Registry  *registry.Client
	Config    config.Config

	// Optional publishers; nil disables each.
	Emitter  *events.Emitter
	Notifier *notify.Notifier
	Metrics  *metrics.Counters
	Suppress *suppress.Store
}

// NeedLeaderElection returns true so only the leader audits.
func (r *Runner) NeedLeaderElection() bool {
	return true
}

// Start runs an audit immediately and then every interval until ctx is
// cancelled. Failed runs are logged and retried on the next tick.
func (r *Runner) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("runner")
	ctx = log.IntoContext(ctx, logger)
	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Error(err, "audit run failed")
		}
		r.Suppress.Cleanup()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce collects the inventory, checks it against the registry with a
// fresh run cache and publishes the findings. Only an inventory failure is
// returned as an error; registry failures are part of the report.
func (r *Runner) RunOnce(ctx context.Context) (audit.Report, error) {
	runID := uuid.NewString()
	logger := log.FromContext(ctx).WithValues("runID", runID)
	ctx = log.IntoContext(ctx, logger)
	start := time.Now()

	resources, err := r.Inventory.Collect(ctx, r.Config.Namespace)
	if err != nil {
		return audit.Report{}, fmt.Errorf("collecting inventory: %w", err)
	}

	cache := registry.NewCache(r.Config.CacheSize)
	driver := &audit.Driver{
		Tags:        registry.NewTagLister(r.Registry, cache),
		Digests:     registry.NewDigestResolver(r.Registry, cache, r.Config.DigestTrustedHosts),
		Metrics:     r.Metrics,
		Concurrency: r.Config.Concurrency,
	}
	report := driver.Run(ctx, resources)

	r.publish(ctx, logger, runID, report)
	if r.Metrics != nil {
		r.Metrics.RecordRun()
	}

	logger.Info("audit complete",
		"resources", len(resources),
		"findings", len(report.Findings),
		"failures", len(report.Failures),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return report, nil
}

func (r *Runner) publish(ctx context.Context, logger logr.Logger, runID string, report audit.Report) {
	for _, f := range report.Findings {
		switch f := f.(type) {
		case audit.NewerTagAvailable:
			logger.Info(f.String(), "severity", "warning", "finding", notify.EventNewerTag)
			for _, owner := range f.Owners {
				key := fmt.Sprintf("%s|%s|%s:%s->%s", notify.EventNewerTag, owner.UID, f.Image, f.CurrentTag, f.NewestTag)
				if !r.Suppress.Allow(key) {
					logger.V(1).Info("finding already published", "owner", owner.String())
					continue
				}
				if r.Emitter != nil && owner.Object != nil {
					r.Emitter.EmitNewerTag(owner.Object, f.Image, f.CurrentTag, f.NewestTag)
				}
				r.notify(ctx, logger, notify.Event{
					Type:       notify.EventNewerTag,
					RunID:      runID,
					Kind:       owner.Kind,
					Namespace:  owner.Namespace,
					Name:       owner.Name,
					Image:      f.Image,
					CurrentTag: f.CurrentTag,
					NewestTag:  f.NewestTag,
					Message:    f.String(),
				})
			}
		case audit.ContentDrift:
			logger.Info(f.String(), "severity", "warning", "finding", notify.EventContentDrift)
			key := fmt.Sprintf("%s|%s|%s|%s|%s", notify.EventContentDrift, f.Owner.UID, f.Container.Node, f.Container.Image, f.RegistryDigest)
			if !r.Suppress.Allow(key) {
				logger.V(1).Info("finding already published", "owner", f.Owner.String())
				continue
			}
			if r.Emitter != nil && f.Owner.Object != nil {
				r.Emitter.EmitContentDrift(f.Owner.Object, f.Container.Image, f.Container.Node, f.RegistryDigest.String())
			}
			r.notify(ctx, logger, notify.Event{
				Type:           notify.EventContentDrift,
				RunID:          runID,
				Kind:           f.Owner.Kind,
				Namespace:      f.Owner.Namespace,
				Name:           f.Owner.Name,
				Image:          f.Container.Image,
				Node:           f.Container.Node,
				RegistryDigest: f.RegistryDigest.String(),
				ObservedDigest: f.ObservedDigest.String(),
				Message:        f.String(),
			})
		}
	}
}

func (r *Runner) notify(ctx context.Context, logger logr.Logger, evt notify.Event) {
	if err := r.Notifier.Notify(ctx, evt); err != nil {
		logger.Error(err, "webhook notification failed", "type", evt.Type, "name", evt.Name)
	}
}
