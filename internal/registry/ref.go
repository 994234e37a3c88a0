package registry

import (
	"fmt"
	"strings"

	"github.com/ppiankov/tagwatch/internal/config"
)

// dockerHubAliases name Docker Hub but do not serve the registry API.
var dockerHubAliases = map[string]bool{
	"docker.io":       true,
	"index.docker.io": true,
}

// Reference locates a repository on a registry.
type Reference struct {
	Host       string
	Repository string
}

// String returns "host/repository".
func (r Reference) String() string {
	return r.Host + "/" + r.Repository
}

// ParseReference maps an image name without tag or digest to its registry
// host and repository path.
//
// Examples:
//
//	ParseReference("postgresql")                      → registry-1.docker.io, library/postgresql
//	ParseReference("test/image")                      → registry-1.docker.io, test/image
//	ParseReference("k8s.gcr.io/etcd")                 → k8s.gcr.io, etcd
//	ParseReference("registry.example.com/repo/image") → registry.example.com, repo/image
func ParseReference(image string) (Reference, error) {
	parts := strings.Split(image, "/")
	for _, p := range parts {
		if p == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReferenceFormat, image)
		}
	}

	switch len(parts) {
	case 1:
		return Reference{Host: config.DefaultRegistryHost, Repository: "library/" + image}, nil
	case 2:
		// A leading segment with a dot or port is a registry host.
		if strings.ContainsAny(parts[0], ".:") {
			return hostReference(parts[0], parts[1]), nil
		}
		return Reference{Host: config.DefaultRegistryHost, Repository: image}, nil
	case 3:
		return hostReference(parts[0], parts[1]+"/"+parts[2]), nil
	default:
		return Reference{}, fmt.Errorf("%w: %q has more than three path segments", ErrInvalidReferenceFormat, image)
	}
}

func hostReference(host, repository string) Reference {
	if dockerHubAliases[host] {
		if !strings.Contains(repository, "/") {
			repository = "library/" + repository
		}
		return Reference{Host: config.DefaultRegistryHost, Repository: repository}
	}
	return Reference{Host: host, Repository: repository}
}

// SplitImage splits a declared image reference into its name, tag and
// digest. The tag separator is the last ":" after the last "/", so registry
// ports are kept in the name. A reference with neither tag nor digest gets
// the implicit "latest" tag.
//
//	SplitImage("registry.internal:5000/app/api:v1.0") → "registry.internal:5000/app/api", "v1.0", ""
//	SplitImage("nginx@sha256:abc")                    → "nginx", "", "sha256:abc"
//	SplitImage("nginx")                               → "nginx", "latest", ""
func SplitImage(image string) (name, tag, digest string) {
	name = image
	if idx := strings.Index(name, "@"); idx != -1 {
		digest = name[idx+1:]
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, ":"); idx > strings.LastIndex(name, "/") {
		tag = name[idx+1:]
		name = name[:idx]
	}
	if tag == "" && digest == "" {
		tag = "latest"
	}
	return name, tag, digest
}
