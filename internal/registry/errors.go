package registry

import "errors"

var (
	// ErrInvalidReferenceFormat is returned for image strings that cannot be
	// mapped to a registry host and repository.
	ErrInvalidReferenceFormat = errors.New("invalid image reference format")

	// ErrAuthProtocol is returned when a 401 response carries a missing or
	// malformed bearer challenge.
	ErrAuthProtocol = errors.New("malformed registry auth challenge")

	// ErrAuthFailed is returned when the token endpoint rejects a request.
	ErrAuthFailed = errors.New("registry token request failed")

	// ErrMalformedResponse is returned when a registry response lacks an
	// expected field.
	ErrMalformedResponse = errors.New("malformed registry response")

	// ErrManifestNotFound is returned when a manifest fetch does not succeed.
	ErrManifestNotFound = errors.New("registry manifest not found")

	// ErrInvalidTagPattern is returned when a tag filter does not compile.
	ErrInvalidTagPattern = errors.New("invalid tag pattern")
)
