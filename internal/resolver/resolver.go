package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrInvalidImageStatus is returned when a container status image locator is
// not of the form "<scheme>://<repository>@<digest>".
var ErrInvalidImageStatus = errors.New("invalid container image status")

// Resolution holds a declared image reference and its pinned digest.
type Resolution struct {
	// Original is the raw image string from the pod spec.
	Original string

	// Digest is the pinned content digest, empty if tag-only.
	Digest digest.Digest

	// Pinned is true when the image reference includes a valid digest.
	Pinned bool
}

// Resolve parses a declared image reference and extracts the digest if
// present.
//
// Supported formats:
//   - "registry/repo@sha256:abc123..."  -> pinned
//   - "registry/repo:tag@sha256:abc..." -> pinned
//   - "registry/repo:tag"               -> not pinned
//   - "registry/repo"                   -> not pinned (implies :latest)
func Resolve(image string) Resolution {
	r := Resolution{Original: image}

	idx := strings.LastIndex(image, "@")
	if idx == -1 {
		return r
	}

	d, err := digest.Parse(image[idx+1:])
	if err != nil {
		return r
	}
	r.Digest = d
	r.Pinned = true
	return r
}

// DigestFromImageStatus extracts the content digest from a container status
// image locator such as
//
//	docker-pullable://registry.example.com/app@sha256:e3b0...
func DigestFromImageStatus(locator string) (digest.Digest, error) {
	scheme, rest, ok := strings.Cut(locator, "://")
	if !ok || scheme == "" {
		return "", fmt.Errorf("%w: %q has no scheme", ErrInvalidImageStatus, locator)
	}
	repo, encoded, ok := strings.Cut(rest, "@")
	if !ok || repo == "" || encoded == "" {
		return "", fmt.Errorf("%w: %q has no digest", ErrInvalidImageStatus, locator)
	}
	algorithm, hex, ok := strings.Cut(encoded, ":")
	if !ok || algorithm == "" || hex == "" {
		return "", fmt.Errorf("%w: %q has a malformed digest", ErrInvalidImageStatus, locator)
	}
	return digest.Digest(encoded), nil
}
