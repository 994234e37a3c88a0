package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

var challengeParam = regexp.MustCompile(`([a-zA-Z_]+)="([^"]*)"`)

// challenge holds the parameters of a WWW-Authenticate bearer challenge.
type challenge struct {
	Realm   string
	Service string
	Scope   string
}

// parseChallenge reads a header of the form
//
//	Bearer realm="https://auth.example.com/token",service="registry.example.com",scope="repository:app:pull"
//
// realm, service and scope are all required.
func parseChallenge(header string) (challenge, error) {
	rest, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return challenge{}, fmt.Errorf("%w: expected bearer challenge, got %q", ErrAuthProtocol, header)
	}

	params := make(map[string]string)
	for _, m := range challengeParam.FindAllStringSubmatch(rest, -1) {
		params[strings.ToLower(m[1])] = m[2]
	}

	realm, hasRealm := params["realm"]
	service, hasService := params["service"]
	scope, hasScope := params["scope"]
	if !hasRealm || realm == "" || !hasService || !hasScope {
		return challenge{}, fmt.Errorf("%w: challenge %q missing realm, service or scope", ErrAuthProtocol, header)
	}
	return challenge{Realm: realm, Service: service, Scope: scope}, nil
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// fetchToken requests a bearer token from the challenge realm. Static
// credentials for the registry host are sent as basic auth when present.
func (c *Client) fetchToken(ctx context.Context, registryHost string, ch challenge) (string, error) {
	realm, err := url.Parse(ch.Realm)
	if err != nil {
		return "", fmt.Errorf("%w: invalid realm %q: %v", ErrAuthProtocol, ch.Realm, err)
	}
	q := realm.Query()
	q.Set("service", ch.Service)
	q.Set("scope", ch.Scope)
	q.Set("client_id", c.ClientID)
	realm.RawQuery = q.Encode()

	header := http.Header{}
	if cred, ok := c.Keychain.Lookup(registryHost); ok {
		basic := base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
		header.Set("Authorization", "Basic "+basic)
	}

	log.FromContext(ctx).V(1).Info("requesting token", "realm", ch.Realm, "scope", ch.Scope)
	resp, err := c.do(ctx, realm.String(), header, maxTokenBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuthFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := resp.DecodeJSON(&tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrAuthFailed)
	}
	return token, nil
}
