package registry

import (
	"os"
	"testing"
)

func TestExtractCredentials_UsernamePassword(t *testing.T) {
	data := []byte(`{"auths":{"registry.example.com:5000":{"username":"admin","password":"s3cret"}}}`)
	u, p, err := ExtractCredentials(data, "registry.example.com:5000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "admin" || p != "s3cret" {
		t.Errorf("got %s:%s, want admin:s3cret", u, p)
	}
}

func TestExtractCredentials_AuthField(t *testing.T) {
	// base64("admin:s3cret") = "YWRtaW46czNjcmV0"
	data := []byte(`{"auths":{"registry.example.com:5000":{"auth":"YWRtaW46czNjcmV0"}}}`)
	u, p, err := ExtractCredentials(data, "registry.example.com:5000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "admin" || p != "s3cret" {
		t.Errorf("got %s:%s, want admin:s3cret", u, p)
	}
}

func TestExtractCredentials_NotFound(t *testing.T) {
	data := []byte(`{"auths":{"other.registry.com":{"username":"x","password":"y"}}}`)
	_, _, err := ExtractCredentials(data, "registry.example.com:5000")
	if err == nil {
		t.Fatal("expected error for missing registry")
	}
}

func TestExtractCredentials_HttpsPrefix(t *testing.T) {
	data := []byte(`{"auths":{"https://registry.example.com:5000":{"username":"admin","password":"s3cret"}}}`)
	u, p, err := ExtractCredentials(data, "registry.example.com:5000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "admin" || p != "s3cret" {
		t.Errorf("got %s:%s, want admin:s3cret", u, p)
	}
}

func TestExtractCredentials_InvalidJSON(t *testing.T) {
	_, _, err := ExtractCredentials([]byte("not json"), "registry.example.com:5000")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestExtractCredentials_DockerHubAlias(t *testing.T) {
	data := []byte(`{"auths":{"https://index.docker.io/v1/":{"username":"hub","password":"pw"}}}`)
	u, p, err := ExtractCredentials(data, "docker.io")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "hub" || p != "pw" {
		t.Errorf("got %s:%s, want hub:pw", u, p)
	}
}

func TestParseKeychain_NormalizesHosts(t *testing.T) {
	data := []byte(`{"auths":{
		"https://index.docker.io/v1/":{"username":"hub","password":"pw"},
		"quay.io":{"auth":"YWRtaW46czNjcmV0"},
		"helper.example.com":{}
	}}`)
	keychain, err := ParseKeychain(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred, ok := keychain.Lookup("registry-1.docker.io"); !ok || cred.Username != "hub" {
		t.Errorf("docker hub credential = %+v, %v", cred, ok)
	}
	if cred, ok := keychain.Lookup("quay.io"); !ok || cred.Password != "s3cret" {
		t.Errorf("quay credential = %+v, %v", cred, ok)
	}
	if _, ok := keychain.Lookup("helper.example.com"); ok {
		t.Error("entry without static credentials should be skipped")
	}
}

func TestParseKeychain_BadAuthField(t *testing.T) {
	data := []byte(`{"auths":{"quay.io":{"auth":"!!!not-base64"}}}`)
	if _, err := ParseKeychain(data); err == nil {
		t.Fatal("expected error for undecodable auth field")
	}
}

func TestLoadKeychain(t *testing.T) {
	path := t.TempDir() + "/config.json"
	if err := os.WriteFile(path, []byte(`{"auths":{"ghcr.io":{"username":"u","password":"p"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	keychain, err := LoadKeychain(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := keychain.Lookup("ghcr.io"); !ok {
		t.Error("expected ghcr.io credential")
	}

	if _, err := LoadKeychain(t.TempDir() + "/missing.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
