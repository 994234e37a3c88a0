package registry

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestNewestTag(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["myapp"] = []string{"1.2.0", "1.3.0", "latest", "1.3.0-rc1"}
	lister := NewTagLister(reg.client(), NewCache(16))

	newest, ok, err := lister.NewestTag(context.Background(), reg.host()+"/myapp", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || newest.String() != "1.3.0" {
		t.Errorf("newest = %q (%v), want 1.3.0", newest, ok)
	}
}

func TestNewestTag_Pattern(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["myapp"] = []string{"1.2.0-alpine", "1.4.0", "1.3.0-alpine", "2.0.0-debian", "1.3.0_amd64"}
	lister := NewTagLister(reg.client(), NewCache(16))

	tests := []struct {
		pattern string
		want    string
		wantOK  bool
	}{
		{`.*-alpine`, "1.3.0-alpine", true},
		{`1\.`, "1.4.0", true},
		// Prefix-anchored: "alpine" does not match at the start of any tag.
		{`alpine`, "", false},
		{`3\.`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			newest, ok, err := lister.NewestTag(context.Background(), reg.host()+"/myapp", tt.pattern)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK || newest.String() != tt.want {
				t.Errorf("got %q (%v), want %q (%v)", newest, ok, tt.want, tt.wantOK)
			}
		})
	}
	if got := reg.count("/token"); got != 1 {
		t.Errorf("token requests = %d, want 1 (tag list memoized)", got)
	}
}

func TestNewestTag_InvalidPattern(t *testing.T) {
	reg := newFakeRegistry(t)
	lister := NewTagLister(reg.client(), NewCache(16))

	_, _, err := lister.NewestTag(context.Background(), reg.host()+"/myapp", "([")
	if !errors.Is(err, ErrInvalidTagPattern) {
		t.Fatalf("expected ErrInvalidTagPattern, got %v", err)
	}
	if reg.total() != 0 {
		t.Errorf("expected no registry requests, got %d", reg.total())
	}
}

func TestNewestTag_NoVersions(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["myapp"] = []string{"latest", "dev", "main"}
	lister := NewTagLister(reg.client(), NewCache(16))

	_, ok, err := lister.NewestTag(context.Background(), reg.host()+"/myapp", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no eligible tag")
	}
}

func TestNewestTag_Idempotent(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["myapp"] = []string{"1.2.0", "1.3.0"}
	lister := NewTagLister(reg.client(), NewCache(16))
	ctx := context.Background()

	first, _, err := lister.NewestTag(ctx, reg.host()+"/myapp", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	requests := reg.total()

	second, _, err := lister.NewestTag(ctx, reg.host()+"/myapp", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Compare(second) != 0 {
		t.Errorf("repeated call returned %q, want %q", second, first)
	}
	if reg.total() != requests {
		t.Errorf("repeated call issued %d requests", reg.total()-requests)
	}
}

func TestListTags_MalformedResponse(t *testing.T) {
	reg := newFakeRegistry(t)
	lister := NewTagLister(reg.client(), NewCache(16))

	// Unknown repositories answer with an error body that has no tags field.
	_, err := lister.ListTags(context.Background(), Reference{Host: reg.host(), Repository: "missing"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestListTags_ErrorsNotCached(t *testing.T) {
	reg := newFakeRegistry(t)
	lister := NewTagLister(reg.client(), NewCache(16))
	ref := Reference{Host: reg.host(), Repository: "later"}

	if _, err := lister.ListTags(context.Background(), ref); err == nil {
		t.Fatal("expected error before repository exists")
	}
	reg.mu.Lock()
	reg.tags["later"] = []string{"1.0"}
	reg.mu.Unlock()

	tags, err := lister.ListTags(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tags, []string{"1.0"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestListTags_NullTags(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["empty"] = nil
	lister := NewTagLister(reg.client(), NewCache(16))

	tags, err := lister.ListTags(context.Background(), Reference{Host: reg.host(), Repository: "empty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("tags = %v, want empty", tags)
	}
}

func TestListTags_Pagination(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.tags["paged"] = []string{"1.0", "1.1", "1.2", "2.0", "2.1"}
	reg.pageSize = 2
	lister := NewTagLister(reg.client(), NewCache(16))

	tags, err := lister.ListTags(context.Background(), Reference{Host: reg.host(), Repository: "paged"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tags, reg.tags["paged"]) {
		t.Errorf("tags = %v, want %v", tags, reg.tags["paged"])
	}
	if got := reg.count("/token"); got != 3 {
		t.Errorf("token requests = %d, want 3 (one per page)", got)
	}
}

func TestCompilePattern(t *testing.T) {
	re, err := CompilePattern(`1\.2|1\.3`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !re.MatchString("1.3.0") || re.MatchString("v1.3.0") {
		t.Error("alternation must be anchored as a whole at the start")
	}
	if _, err := CompilePattern("(unclosed"); !errors.Is(err, ErrInvalidTagPattern) {
		t.Errorf("expected ErrInvalidTagPattern, got %v", err)
	}
}
