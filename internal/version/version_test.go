package version

import "testing"

func TestDefaultVersion(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", Version)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "tagwatch/dev" {
		t.Errorf("expected user agent %q, got %q", "tagwatch/dev", got)
	}
}
