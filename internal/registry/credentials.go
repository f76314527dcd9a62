package registry

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

// Credential is a resolved set of auth material for one registry/repo
// pair. Zero value means anonymous access.
type Credential struct {
	Username string
	Password string
	Token    string
}

func (c Credential) empty() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

// rawCreds mirrors one entry of the credentials file (§6, §12): either
// {username,password} or {token}.
type rawCreds struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// CredentialStore holds the parsed credentials file (SPEC_FULL.md §12,
// grounded on registries/auth.py's RegistryAuthManager).
type CredentialStore struct {
	Enabled      bool
	registries   map[string]rawCreds // keyed by normalized registry URL
	repositories map[string]rawCreds // keyed by repository name
}

// LoadCredentialStore reads the credentials file schema from §6:
// {registries: {url -> {username,password}|{token}}, repositories: {name -> ...}}.
// A missing file is not an error; it simply yields an empty, disabled-like store.
func LoadCredentialStore(path string, enabled bool) (*CredentialStore, error) {
	store := &CredentialStore{Enabled: enabled, registries: map[string]rawCreds{}, repositories: map[string]rawCreds{}}
	if !enabled || path == "" {
		return store, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CredentialsInvalid, err, "reading credentials file "+path)
	}

	var parsed struct {
		Registries   map[string]rawCreds `json:"registries"`
		Repositories map[string]rawCreds `json:"repositories"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.CredentialsInvalid, err, "parsing credentials file "+path)
	}
	if parsed.Registries != nil {
		store.registries = parsed.Registries
	}
	if parsed.Repositories != nil {
		store.repositories = parsed.Repositories
	}
	return store, nil
}

// Resolve returns credentials for host/repository in priority order:
// repository-specific, then registry-level (exact, then subdomain
// match), then anonymous (§4.3, §12).
func (s *CredentialStore) Resolve(host, repository string) Credential {
	if s == nil || !s.Enabled {
		return Credential{}
	}

	if repository != "" {
		if c, ok := s.repositories[repository]; ok {
			return Credential{Username: c.Username, Password: c.Password, Token: c.Token}
		}
	}

	normalized := normalizeRegistryURL(host)
	if c, ok := s.registries[normalized]; ok {
		return Credential{Username: c.Username, Password: c.Password, Token: c.Token}
	}
	for candidate, c := range s.registries {
		if urlsMatch(normalized, candidate) {
			return Credential{Username: c.Username, Password: c.Password, Token: c.Token}
		}
	}
	return Credential{}
}

func normalizeRegistryURL(host string) string {
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return host
	}
	normalized := u.Scheme + "://" + strings.TrimSuffix(u.Host, "/")
	if u.Path != "" && u.Path != "/" {
		normalized += strings.TrimSuffix(u.Path, "/")
	}
	return normalized
}

// urlsMatch reports whether one registry URL's host is a subdomain (or
// superdomain) of the other's, mirroring registries/auth.py's
// urls_match fallback.
func urlsMatch(a, b string) bool {
	ah := hostOf(a)
	bh := hostOf(b)
	if ah == "" || bh == "" {
		return false
	}
	ap := strings.Split(ah, ".")
	bp := strings.Split(bh, ".")
	if len(ap) >= len(bp) {
		return strings.Join(ap[len(ap)-len(bp):], ".") == bh
	}
	return strings.Join(bp[len(bp)-len(ap):], ".") == ah
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	return parsed.Host
}

// EncodeDockerAuth builds the base64-encoded JSON value the Container
// Driver passes as the Engine API's X-Registry-Auth for pullImage, so
// the Run Coordinator can hand credentials resolved here straight to
// C6 without C6 knowing about the credentials file shape.
func EncodeDockerAuth(c Credential) string {
	if c.empty() {
		return ""
	}
	payload := struct {
		Username      string `json:"username,omitempty"`
		Password      string `json:"password,omitempty"`
		IdentityToken string `json:"identitytoken,omitempty"`
	}{Username: c.Username, Password: c.Password}
	if c.Token != "" && c.Username == "" {
		payload.IdentityToken = c.Token
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// AuthHeader builds the Authorization header value for a credential,
// matching registries/auth.py's registry-type-dependent scheme: Bearer
// for GHCR/github.com hosts, Basic for everything else.
func AuthHeader(host string, c Credential) (string, bool) {
	if c.empty() {
		return "", false
	}
	if strings.Contains(host, "ghcr.io") || strings.Contains(host, "github.com") {
		if c.Token != "" {
			return "Bearer " + c.Token, true
		}
		return "", false
	}
	user := c.Username
	pass := c.Password
	if pass == "" {
		pass = c.Token
	}
	if user != "" && pass != "" {
		return "Basic " + basicAuth(user, pass), true
	}
	return "", false
}
