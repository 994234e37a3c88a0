package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds all tagwatch Prometheus metrics.
type Counters struct {
	Runs             prometheus.Counter
	TagChecks        prometheus.Counter
	DigestChecks     prometheus.Counter
	NewerTags        prometheus.Counter
	ContentDrift     prometheus.Counter
	CheckFailures    prometheus.Counter
	RegistryRequests *prometheus.CounterVec
}

// NewCounters creates and registers Prometheus counters with the given registry.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_runs_total",
			Help: "Total number of completed audit runs.",
		}),
		TagChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_tag_checks_total",
			Help: "Total number of image tag checks against a registry.",
		}),
		DigestChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_digest_checks_total",
			Help: "Total number of running container digest checks against a registry.",
		}),
		NewerTags: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_newer_tags_total",
			Help: "Total number of images found with a newer version tag available.",
		}),
		ContentDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_content_drift_total",
			Help: "Total number of running containers whose tag points to new registry content.",
		}),
		CheckFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagwatch_check_failures_total",
			Help: "Total number of image or container checks that failed.",
		}),
		RegistryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tagwatch_registry_requests_total",
			Help: "Total number of registry HTTP requests by response status class.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		c.Runs,
		c.TagChecks,
		c.DigestChecks,
		c.NewerTags,
		c.ContentDrift,
		c.CheckFailures,
		c.RegistryRequests,
	)

	return c
}

// RecordRun increments the completed runs counter.
func (c *Counters) RecordRun() {
	c.Runs.Inc()
}

// RecordTagCheck increments the tag checks counter.
func (c *Counters) RecordTagCheck() {
	c.TagChecks.Inc()
}

// RecordDigestCheck increments the digest checks counter.
func (c *Counters) RecordDigestCheck() {
	c.DigestChecks.Inc()
}

// RecordNewerTag increments the newer tags counter.
func (c *Counters) RecordNewerTag() {
	c.NewerTags.Inc()
}

// RecordContentDrift increments the content drift counter.
func (c *Counters) RecordContentDrift() {
	c.ContentDrift.Inc()
}

// RecordCheckFailure increments the check failures counter.
func (c *Counters) RecordCheckFailure() {
	c.CheckFailures.Inc()
}

// RecordRegistryRequest counts a registry response by status class ("2xx",
// "4xx", ...). A status of 0 records a transport error.
func (c *Counters) RecordRegistryRequest(status int) {
	c.RegistryRequests.WithLabelValues(statusClass(status)).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}
