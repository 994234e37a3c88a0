package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const testToken = "test-token"

// fakeRegistry serves a bearer-challenged registry API over TLS.
type fakeRegistry struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	requests     map[string]int
	tokenQueries []url.Values
	tokenAuth    []string
	accepts      []string

	tags      map[string][]string
	manifests map[string]fakeManifest
	// tokenStatus overrides the token endpoint status when non-zero.
	tokenStatus int
	// challenge overrides the WWW-Authenticate header when non-empty.
	challenge string
	// pageSize splits tag lists into Link-paginated pages when non-zero.
	pageSize int
}

type fakeManifest struct {
	schemaVersion int
	digest        string
	status        int
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		t:         t,
		requests:  make(map[string]int),
		tags:      make(map[string][]string),
		manifests: make(map[string]fakeManifest),
	}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// host returns the registry host as used in image references.
func (f *fakeRegistry) host() string {
	return strings.TrimPrefix(f.srv.URL, "https://")
}

func (f *fakeRegistry) client(opts ...Option) *Client {
	return NewClient(append([]Option{WithHTTPClient(f.srv.Client())}, opts...)...)
}

func (f *fakeRegistry) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeRegistry) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		n += c
	}
	return n
}

func (f *fakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests[r.URL.Path]++
	if strings.Contains(r.URL.Path, "/manifests/") {
		f.accepts = append(f.accepts, r.Header.Get("Accept"))
	}
	f.mu.Unlock()

	if r.URL.Path == "/token" {
		f.serveToken(w, r)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		challenge := f.challenge
		if challenge == "" {
			challenge = `Bearer realm="` + f.srv.URL + `/token",service="fake-registry",scope="repository:` + repoFromPath(r.URL.Path) + `:pull"`
		}
		w.Header().Set("Www-Authenticate", challenge)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"code":"UNAUTHORIZED"}]}`))
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v2/")
	switch {
	case strings.HasSuffix(rest, "/tags/list"):
		f.serveTags(w, r, strings.TrimSuffix(rest, "/tags/list"))
	case strings.Contains(rest, "/manifests/"):
		idx := strings.Index(rest, "/manifests/")
		f.serveManifest(w, r, rest[:idx], rest[idx+len("/manifests/"):])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRegistry) serveToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokenQueries = append(f.tokenQueries, r.URL.Query())
	f.tokenAuth = append(f.tokenAuth, r.Header.Get("Authorization"))
	status := f.tokenStatus
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"token": testToken})
}

func (f *fakeRegistry) serveTags(w http.ResponseWriter, r *http.Request, repo string) {
	f.mu.Lock()
	tags, ok := f.tags[repo]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"code":"NAME_UNKNOWN"}]}`))
		return
	}

	page := tags
	if f.pageSize > 0 {
		start := 0
		if last := r.URL.Query().Get("last"); last != "" {
			for i, tag := range tags {
				if tag == last {
					start = i + 1
				}
			}
		}
		end := min(start+f.pageSize, len(tags))
		page = tags[start:end]
		if end < len(tags) {
			w.Header().Set("Link", `</v2/`+repo+`/tags/list?n=`+strconv.Itoa(f.pageSize)+`&last=`+tags[end-1]+`>; rel="next"`)
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"name": repo, "tags": page})
}

func (f *fakeRegistry) serveManifest(w http.ResponseWriter, r *http.Request, repo, tag string) {
	f.mu.Lock()
	m, ok := f.manifests[repo+":"+tag]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if m.status != 0 {
		w.WriteHeader(m.status)
		return
	}
	if m.digest != "" {
		w.Header().Set("Docker-Content-Digest", m.digest)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"schemaVersion": m.schemaVersion})
}

func repoFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/v2/")
	for _, marker := range []string{"/tags/", "/manifests/"} {
		if idx := strings.Index(rest, marker); idx != -1 {
			return rest[:idx]
		}
	}
	return rest
}
