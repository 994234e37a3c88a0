package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ppiankov/tagwatch/internal/tagversion"
)

// maxTagPages bounds Link pagination for a single repository.
const maxTagPages = 100

var linkNext = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="?next"?`)

// TagLister lists repository tags and picks the newest version tag.
type TagLister struct {
	client *Client
	cache  *Cache
}

// NewTagLister returns a TagLister memoizing into cache.
func NewTagLister(client *Client, cache *Cache) *TagLister {
	return &TagLister{client: client, cache: cache}
}

// ListTags returns every tag of the repository, following pagination.
// Results are memoized per repository.
func (l *TagLister) ListTags(ctx context.Context, ref Reference) ([]string, error) {
	return l.cache.tags.Do(ref.String(), func() ([]string, error) {
		return l.fetchTags(ctx, ref)
	})
}

func (l *TagLister) fetchTags(ctx context.Context, ref Reference) ([]string, error) {
	logger := log.FromContext(ctx).WithValues("repository", ref.String())
	next := l.client.URL(ref, "tags/list")

	var tags []string
	for page := 0; next != "" && page < maxTagPages; page++ {
		resp, err := l.client.Get(ctx, next, nil)
		if err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w", ref, err)
		}

		var body map[string]json.RawMessage
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w: status %d", ref, ErrMalformedResponse, resp.StatusCode)
		}
		raw, ok := body["tags"]
		if !ok {
			return nil, fmt.Errorf("listing tags for %s: %w: status %d, no tags field", ref, ErrMalformedResponse, resp.StatusCode)
		}
		var pageTags []string
		if err := json.Unmarshal(raw, &pageTags); err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w: %v", ref, ErrMalformedResponse, err)
		}
		tags = append(tags, pageTags...)

		next, err = nextPage(next, resp.Header)
		if err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w", ref, err)
		}
	}
	if next != "" {
		logger.Info("tag list truncated", "pages", maxTagPages)
	}

	logger.V(1).Info("listed tags", "count", len(tags))
	return tags, nil
}

// nextPage resolves the rel="next" Link header against the current URL.
func nextPage(current string, header http.Header) (string, error) {
	for _, link := range header.Values("Link") {
		m := linkNext.FindStringSubmatch(link)
		if m == nil {
			continue
		}
		base, err := url.Parse(current)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(m[1])
		if err != nil {
			return "", fmt.Errorf("%w: invalid Link header %q", ErrMalformedResponse, link)
		}
		return base.ResolveReference(ref).String(), nil
	}
	return "", nil
}

// CompilePattern compiles a tag filter. The pattern must match at the start
// of a tag but may leave a suffix unmatched.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTagPattern, pattern, err)
	}
	return re, nil
}

// NewestTag returns the greatest version tag of image, optionally restricted
// to tags matching pattern. The boolean is false when no tag qualifies.
func (l *TagLister) NewestTag(ctx context.Context, image, pattern string) (tagversion.Version, bool, error) {
	var filter *regexp.Regexp
	if strings.TrimSpace(pattern) != "" {
		re, err := CompilePattern(pattern)
		if err != nil {
			return tagversion.Version{}, false, err
		}
		filter = re
	}

	ref, err := ParseReference(image)
	if err != nil {
		return tagversion.Version{}, false, err
	}
	tags, err := l.ListTags(ctx, ref)
	if err != nil {
		return tagversion.Version{}, false, err
	}

	var candidates []tagversion.Version
	for _, tag := range tags {
		if filter != nil && !filter.MatchString(tag) {
			continue
		}
		v, err := tagversion.Parse(tag)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return tagversion.Version{}, false, nil
	}
	tagversion.SortDescending(candidates)
	return candidates[0], true, nil
}
