package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DigestResolver resolves tags to manifest digests.
type DigestResolver struct {
	client  *Client
	cache   *Cache
	trusted map[string]bool
}

// NewDigestResolver returns a DigestResolver memoizing into cache. Hosts in
// trusted report usable digests even for schema version 1 manifests.
func NewDigestResolver(client *Client, cache *Cache, trusted map[string]bool) *DigestResolver {
	return &DigestResolver{client: client, cache: cache, trusted: trusted}
}

// TagDigest returns the registry's content digest for image:tag. An empty
// digest means the registry's answer is not reliable enough to compare.
func (r *DigestResolver) TagDigest(ctx context.Context, image, tag string) (digest.Digest, error) {
	ref, err := ParseReference(image)
	if err != nil {
		return "", err
	}
	return r.cache.digests.Do(ref.String()+":"+tag, func() (digest.Digest, error) {
		return r.fetchDigest(ctx, ref, tag)
	})
}

func (r *DigestResolver) fetchDigest(ctx context.Context, ref Reference, tag string) (digest.Digest, error) {
	header := http.Header{}
	header.Set("Accept", string(types.DockerManifestSchema2))

	resp, err := r.client.Get(ctx, r.client.URL(ref, "manifests/"+tag), header)
	if err != nil {
		return "", fmt.Errorf("fetching manifest %s:%s: %w", ref, tag, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching manifest %s:%s: %w: status %d", ref, tag, ErrManifestNotFound, resp.StatusCode)
	}

	var versioned specs.Versioned
	if err := resp.DecodeJSON(&versioned); err != nil {
		return "", fmt.Errorf("fetching manifest %s:%s: %w", ref, tag, err)
	}

	if versioned.SchemaVersion != 2 && !r.trusted[ref.Host] {
		log.FromContext(ctx).V(1).Info("ignoring digest of untrusted schema",
			"repository", ref.String(), "tag", tag, "schemaVersion", versioned.SchemaVersion)
		return "", nil
	}

	// The header is compared verbatim against the observed digest.
	return digest.Digest(resp.Header.Get("Docker-Content-Digest")), nil
}
