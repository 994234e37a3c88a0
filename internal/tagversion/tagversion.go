// Package tagversion classifies image tags as release versions and orders them.
//
// A version tag is an optional leading "v", a dot-separated run of numeric
// release components, and an optional "-qualifier" made of letters and
// digits ("rc1", "5"). Anything else, including "latest" or architecture
// suffixes such as "1.23.4_amd64", is not a version.
//
// Qualifiers compare as strings, so numeric qualifiers order lexically:
// 1.0-10 sorts below 1.0-9.
package tagversion

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var versionRegexp = regexp.MustCompile(`^v?([0-9]+(?:\.[0-9]+)*)(?:-([A-Za-z0-9]+))?$`)

// Version is a parsed version tag.
type Version struct {
	raw       string
	release   []string
	qualifier string
}

// Parse parses a tag into a Version.
func Parse(tag string) (Version, error) {
	m := versionRegexp.FindStringSubmatch(tag)
	if m == nil {
		return Version{}, fmt.Errorf("tag %q is not a version", tag)
	}
	parts := strings.Split(m[1], ".")
	release := make([]string, len(parts))
	for i, p := range parts {
		release[i] = trimZeros(p)
	}
	return Version{raw: tag, release: release, qualifier: m[2]}, nil
}

// MustParse is like Parse but panics on an invalid tag. Intended for tests.
func MustParse(tag string) Version {
	v, err := Parse(tag)
	if err != nil {
		panic(err)
	}
	return v
}

// IsVersion reports whether tag is a version tag.
func IsVersion(tag string) bool {
	return versionRegexp.MatchString(tag)
}

// String returns the tag the version was parsed from.
func (v Version) String() string {
	return v.raw
}

// Qualifier returns the pre-release qualifier, empty for a final release.
func (v Version) Qualifier() string {
	return v.qualifier
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.raw == ""
}

// Compare returns -1, 0 or +1 depending on whether v orders before, equal to
// or after o. Release components compare numerically with missing trailing
// components treated as zero. For equal releases a final release orders after
// any qualified one, and qualifiers compare lexically.
func (v Version) Compare(o Version) int {
	n := max(len(v.release), len(o.release))
	for i := 0; i < n; i++ {
		if c := compareNumeric(component(v.release, i), component(o.release, i)); c != 0 {
			return c
		}
	}
	switch {
	case v.qualifier == o.qualifier:
		return 0
	case v.qualifier == "":
		return 1
	case o.qualifier == "":
		return -1
	}
	return strings.Compare(v.qualifier, o.qualifier)
}

// GreaterThan reports whether v orders strictly after o.
func (v Version) GreaterThan(o Version) bool {
	return v.Compare(o) > 0
}

// Compare orders a and b. See Version.Compare.
func Compare(a, b Version) int {
	return a.Compare(b)
}

// SortDescending sorts versions newest first. Equal versions keep their
// relative order.
func SortDescending(versions []Version) {
	slices.SortStableFunc(versions, func(a, b Version) int {
		return b.Compare(a)
	})
}

func component(release []string, i int) string {
	if i < len(release) {
		return release[i]
	}
	return "0"
}

// compareNumeric compares two decimal strings without leading zeros. Works
// for components too large for an integer type, such as timestamp tags.
func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}
