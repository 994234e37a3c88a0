package audit

import (
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/metrics"
	"github.com/ppiankov/tagwatch/internal/registry"
	"github.com/ppiankov/tagwatch/internal/resolver"
	"github.com/ppiankov/tagwatch/internal/tagversion"
)

// TagSource finds the newest version tag of an image.
type TagSource interface {
	NewestTag(ctx context.Context, image, pattern string) (tagversion.Version, bool, error)
}

// DigestSource resolves an image tag to the registry's content digest.
type DigestSource interface {
	TagDigest(ctx context.Context, image, tag string) (digest.Digest, error)
}

// Driver checks an inventory against the registry.
type Driver struct {
	Tags        TagSource
	Digests     DigestSource
	Metrics     *metrics.Counters
	Concurrency int
}

// tagCheck is one distinct (image, tag, pattern) combination.
type tagCheck struct {
	image   string
	tag     string
	pattern string
	owners  []Resource
}

// digestCheck is one running container.
type digestCheck struct {
	owner     Resource
	container ObservedContainer
	image     string
	tag       string
}

type outcome struct {
	finding Finding
	failure *Failure
}

// Run checks every declared image for a newer version tag and every running
// container for registry content drift. A failed check is recorded in the
// report and does not stop the run. Findings are ordered as the inventory.
func (d *Driver) Run(ctx context.Context, resources []Resource) Report {
	logger := log.FromContext(ctx)

	tagChecks := d.planTagChecks(ctx, resources)
	digestChecks := d.planDigestChecks(ctx, resources)
	logger.V(1).Info("planned checks", "tagChecks", len(tagChecks), "digestChecks", len(digestChecks))

	outcomes := make([]outcome, len(tagChecks)+len(digestChecks))

	limit := d.Concurrency
	if limit < 1 {
		limit = config.DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, c := range tagChecks {
		g.Go(func() error {
			outcomes[i] = d.checkTag(ctx, c)
			return nil
		})
	}
	for i, c := range digestChecks {
		g.Go(func() error {
			outcomes[len(tagChecks)+i] = d.checkDigest(ctx, c)
			return nil
		})
	}
	// Checks never return errors; failures are carried in outcomes.
	_ = g.Wait()

	var report Report
	for _, o := range outcomes {
		if o.finding != nil {
			report.Findings = append(report.Findings, o.finding)
		}
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
		}
	}
	return report
}

func (d *Driver) planTagChecks(ctx context.Context, resources []Resource) []*tagCheck {
	logger := log.FromContext(ctx)

	var checks []*tagCheck
	index := make(map[[3]string]*tagCheck)
	for _, res := range resources {
		for _, image := range res.Images {
			if resolver.Resolve(image).Pinned {
				logger.V(1).Info("skipping digest-pinned image", "image", image, "resource", res.String())
				continue
			}
			name, tag, _ := registry.SplitImage(image)
			if !tagversion.IsVersion(tag) {
				logger.V(1).Info("skipping non-version tag", "image", image, "resource", res.String())
				continue
			}

			key := [3]string{name, tag, res.TagPattern}
			c, ok := index[key]
			if !ok {
				c = &tagCheck{image: name, tag: tag, pattern: res.TagPattern}
				index[key] = c
				checks = append(checks, c)
			}
			c.owners = append(c.owners, res)
		}
	}
	return checks
}

func (d *Driver) planDigestChecks(ctx context.Context, resources []Resource) []digestCheck {
	logger := log.FromContext(ctx)

	var checks []digestCheck
	for _, res := range resources {
		for _, c := range res.Containers {
			name, tag, pinned := registry.SplitImage(c.Image)
			if pinned != "" {
				logger.V(1).Info("skipping digest-pinned container", "image", c.Image, "node", c.Node)
				continue
			}
			checks = append(checks, digestCheck{owner: res, container: c, image: name, tag: tag})
		}
	}
	return checks
}

func (d *Driver) checkTag(ctx context.Context, c *tagCheck) outcome {
	logger := log.FromContext(ctx).WithValues("image", c.image, "tag", c.tag)
	d.record(func(m *metrics.Counters) { m.RecordTagCheck() })

	current, err := tagversion.Parse(c.tag)
	if err != nil {
		return d.fail(ctx, c.image+":"+c.tag, err)
	}
	newest, ok, err := d.Tags.NewestTag(ctx, c.image, c.pattern)
	if err != nil {
		return d.fail(ctx, c.image+":"+c.tag, fmt.Errorf("finding newest tag: %w", err))
	}
	if !ok || !newest.GreaterThan(current) {
		logger.V(1).Info("tag is current")
		return outcome{}
	}

	d.record(func(m *metrics.Counters) { m.RecordNewerTag() })
	return outcome{finding: NewerTagAvailable{
		Image:      c.image,
		CurrentTag: c.tag,
		NewestTag:  newest.String(),
		Owners:     c.owners,
	}}
}

func (d *Driver) checkDigest(ctx context.Context, c digestCheck) outcome {
	subject := c.container.Image + " on " + c.container.Node
	d.record(func(m *metrics.Counters) { m.RecordDigestCheck() })

	observed, err := resolver.DigestFromImageStatus(c.container.ImageID)
	if err != nil {
		return d.fail(ctx, subject, err)
	}
	current, err := d.Digests.TagDigest(ctx, c.image, c.tag)
	if err != nil {
		return d.fail(ctx, subject, fmt.Errorf("resolving tag digest: %w", err))
	}
	if current == "" || current == observed {
		return outcome{}
	}

	d.record(func(m *metrics.Counters) { m.RecordContentDrift() })
	return outcome{finding: ContentDrift{
		Owner:          c.owner,
		Container:      c.container,
		RegistryDigest: current,
		ObservedDigest: observed,
	}}
}

func (d *Driver) fail(ctx context.Context, subject string, err error) outcome {
	log.FromContext(ctx).Error(err, "check failed", "subject", subject)
	d.record(func(m *metrics.Counters) { m.RecordCheckFailure() })
	return outcome{failure: &Failure{Subject: subject, Err: err}}
}

func (d *Driver) record(fn func(*metrics.Counters)) {
	if d.Metrics != nil {
		fn(d.Metrics)
	}
}
