package audit

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Finding is a single audit result.
type Finding interface {
	fmt.Stringer
	finding()
}

// NewerTagAvailable reports a declared version tag with a newer version
// available in the registry.
type NewerTagAvailable struct {
	Image      string
	CurrentTag string
	NewestTag  string

	// Owners are the resources declaring Image:CurrentTag.
	Owners []Resource
}

func (NewerTagAvailable) finding() {}

func (f NewerTagAvailable) String() string {
	return fmt.Sprintf("Newer tag available for %s:%s -> %s", f.Image, f.CurrentTag, f.NewestTag)
}

// ContentDrift reports a running container whose tag now points to different
// content in the registry.
type ContentDrift struct {
	Owner          Resource
	Container      ObservedContainer
	RegistryDigest digest.Digest
	ObservedDigest digest.Digest
}

func (ContentDrift) finding() {}

func (f ContentDrift) String() string {
	return fmt.Sprintf("Registry image has been updated (%s) for pod %s on %s (owned by %s)",
		f.RegistryDigest, f.Container.Image, f.Container.Node, f.Owner)
}

// Failure is a check that could not be completed.
type Failure struct {
	// Subject names the image or container that failed.
	Subject string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Subject, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report collects the outcome of one audit run.
type Report struct {
	Findings []Finding
	Failures []Failure
}

// NewerTags returns the NewerTagAvailable findings.
func (r Report) NewerTags() []NewerTagAvailable {
	var out []NewerTagAvailable
	for _, f := range r.Findings {
		if nt, ok := f.(NewerTagAvailable); ok {
			out = append(out, nt)
		}
	}
	return out
}

// Drifts returns the ContentDrift findings.
func (r Report) Drifts() []ContentDrift {
	var out []ContentDrift
	for _, f := range r.Findings {
		if cd, ok := f.(ContentDrift); ok {
			out = append(out, cd)
		}
	}
	return out
}
