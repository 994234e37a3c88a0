package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/tagwatch/internal/config"
)

// dockerConfig represents the structure of a .dockerconfigjson secret or a
// docker config.json file.
type dockerConfig struct {
	Auths map[string]dockerAuth `json:"auths"`
}

type dockerAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     string `json:"auth"` // base64(username:password)
}

// Credential is a static username and password for a registry token endpoint.
type Credential struct {
	Username string
	Password string
}

// Keychain maps registry hosts to credentials.
type Keychain map[string]Credential

// Lookup returns the credential for a registry host.
func (k Keychain) Lookup(host string) (Credential, bool) {
	cred, ok := k[host]
	return cred, ok
}

// ParseKeychain reads every usable entry of dockerconfigjson data. Keys are
// normalized to bare hosts, so "https://index.docker.io/v1/" serves the
// default registry host.
func ParseKeychain(data []byte) (Keychain, error) {
	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing dockerconfigjson: %w", err)
	}

	keychain := make(Keychain, len(cfg.Auths))
	for key, auth := range cfg.Auths {
		cred, ok, err := auth.credential()
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", key, err)
		}
		// Entries backed by a credential helper carry no static secret.
		if ok {
			keychain[normalizeHost(key)] = cred
		}
	}
	return keychain, nil
}

// LoadKeychain reads a dockerconfigjson file.
func LoadKeychain(path string) (Keychain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry auth file: %w", err)
	}
	return ParseKeychain(data)
}

// ExtractCredentials extracts username and password for a registry host from
// dockerconfigjson secret data. Scheme-prefixed and Docker Hub alias keys
// match their bare host.
func ExtractCredentials(secretData []byte, registryHost string) (string, string, error) {
	keychain, err := ParseKeychain(secretData)
	if err != nil {
		return "", "", err
	}
	cred, ok := keychain.Lookup(normalizeHost(registryHost))
	if !ok {
		return "", "", fmt.Errorf("no credentials found for registry %s", registryHost)
	}
	return cred.Username, cred.Password, nil
}

func (a dockerAuth) credential() (Credential, bool, error) {
	if a.Username != "" && a.Password != "" {
		return Credential{Username: a.Username, Password: a.Password}, true, nil
	}

	if a.Auth != "" {
		decoded, err := base64.StdEncoding.DecodeString(a.Auth)
		if err != nil {
			return Credential{}, false, fmt.Errorf("decoding auth field: %w", err)
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 {
			return Credential{}, false, fmt.Errorf("invalid auth field format")
		}
		return Credential{Username: parts[0], Password: parts[1]}, true, nil
	}

	return Credential{}, false, nil
}

func normalizeHost(key string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(key, "https://"), "http://")
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if dockerHubAliases[host] {
		return config.DefaultRegistryHost
	}
	return host
}
