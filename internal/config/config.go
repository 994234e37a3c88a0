package config

import (
	"fmt"
	"time"
)

const (
	// AnnotationIgnore excludes a workload from auditing when set to "true".
	AnnotationIgnore = "tagwatch.dev/ignore"

	// AnnotationTagRegex restricts the tags considered when looking for a
	// newer version. Matched against the start of each tag.
	AnnotationTagRegex = "tagwatch.dev/tag-regex"

	// DefaultRegistryHost serves images without an explicit registry host.
	DefaultRegistryHost = "registry-1.docker.io"

	// ClientID is sent as client_id to registry token endpoints.
	ClientID = "tagwatch"

	// DefaultConcurrency is the default number of registry checks run in parallel.
	DefaultConcurrency = 4

	// DefaultRegistryTimeout bounds a single registry HTTP request.
	DefaultRegistryTimeout = 30 * time.Second

	// DefaultCacheSize is the per-run entry limit of each registry cache.
	DefaultCacheSize = 1024

	// DefaultInterval is the audit period in watch mode.
	DefaultInterval = time.Hour

	// DefaultRenotifyAfter is how long watch mode waits before publishing
	// the same finding again.
	DefaultRenotifyAfter = 24 * time.Hour
)

// DefaultDigestTrustedHosts report a correct Docker-Content-Digest even for
// schema v1 manifests.
var DefaultDigestTrustedHosts = []string{
	"quay.io",
}

// Config holds runtime configuration shared by the check and watch commands.
type Config struct {
	// Namespace restricts the inventory. Empty means all namespaces.
	Namespace string

	// Concurrency is the worker pool size for registry checks.
	Concurrency int

	// RegistryTimeout bounds each registry HTTP request.
	RegistryTimeout time.Duration

	// CacheSize bounds the tag and digest caches of one run.
	CacheSize int

	// DigestTrustedHosts are registries whose schema v1 digests are usable.
	DigestTrustedHosts map[string]bool

	// InsecureHosts are registries contacted over plain HTTP.
	InsecureHosts map[string]bool

	// RegistryCA is an optional PEM bundle trusted in addition to the system pool.
	RegistryCA string

	// RegistryAuthFile is an optional dockerconfigjson file with credentials
	// for registry token endpoints.
	RegistryAuthFile string

	// Interval is the audit period in watch mode.
	Interval time.Duration

	// RenotifyAfter suppresses repeated events and webhooks for an unchanged
	// finding in watch mode. Zero publishes every run.
	RenotifyAfter time.Duration
}

// New creates a Config with default values.
func New() Config {
	return Config{
		Concurrency:        DefaultConcurrency,
		RegistryTimeout:    DefaultRegistryTimeout,
		CacheSize:          DefaultCacheSize,
		DigestTrustedHosts: HostSet(DefaultDigestTrustedHosts),
		InsecureHosts:      map[string]bool{},
		Interval:           DefaultInterval,
		RenotifyAfter:      DefaultRenotifyAfter,
	}
}

// HostSet converts a host list into a lookup set, skipping empty entries.
func HostSet(hosts []string) map[string]bool {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h != "" {
			set[h] = true
		}
	}
	return set
}

// Validate rejects settings the auditor cannot run with.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RegistryTimeout <= 0 {
		return fmt.Errorf("registry timeout must be positive, got %s", c.RegistryTimeout)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache size must be at least 1, got %d", c.CacheSize)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.RenotifyAfter < 0 {
		return fmt.Errorf("renotify-after must not be negative, got %s", c.RenotifyAfter)
	}
	return nil
}
