// Package secrets provides the secret reference conventions of the
// expression language and an in-memory, environment-scoped secret store
// used by the CLI and tests.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// OAuthSuffix marks a secret name as an OAuth integration reference.
// OAuth references resolve against provider grants instead of stored
// secrets.
const OAuthSuffix = "_oauth"

// OAuth grant types.
const (
	GrantService = "service"
	GrantUser    = "user"
)

// IsOAuthRef reports whether a secret name is an OAuth integration
// reference.
func IsOAuthRef(name string) bool {
	return strings.HasSuffix(name, OAuthSuffix) && len(name) > len(OAuthSuffix)
}

// ParseOAuthKey maps an OAuth secret reference (name and key) to its
// provider and grant type. For a provider P the only valid keys are
// <P>_SERVICE_TOKEN and <P>_USER_TOKEN, with P uppercased.
func ParseOAuthKey(name, key string) (provider, grant string, err error) {
	if !IsOAuthRef(name) {
		return "", "", fmt.Errorf("%q is not an OAuth secret reference", name)
	}
	provider = strings.TrimSuffix(name, OAuthSuffix)
	upper := strings.ToUpper(provider)
	switch key {
	case upper + "_SERVICE_TOKEN":
		return provider, GrantService, nil
	case upper + "_USER_TOKEN":
		return provider, GrantUser, nil
	}
	return "", "", fmt.Errorf(
		"invalid OAuth token key %q for provider %q: expected %s_SERVICE_TOKEN or %s_USER_TOKEN",
		key, provider, upper, upper)
}

// Ref formats a secret reference as stored in template metadata.
func Ref(name, key string) string {
	return name + "." + key
}

// OAuthRef formats an OAuth reference as stored in template metadata.
func OAuthRef(provider, grant string) string {
	return provider + ":" + grant
}

// Store is an in-memory secret store scoped by environment. Safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex
	// environment -> secret name -> key -> value
	envs map[string]map[string]map[string]string
	// provider -> grant type -> present
	grants map[string]map[string]bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		envs:   make(map[string]map[string]map[string]string),
		grants: make(map[string]map[string]bool),
	}
}

// Put stores a secret key/value under a name in an environment.
func (s *Store) Put(environment, name, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envs[environment]
	if !ok {
		env = make(map[string]map[string]string)
		s.envs[environment] = env
	}
	secret, ok := env[name]
	if !ok {
		secret = make(map[string]string)
		env[name] = secret
	}
	secret[key] = value
}

// Get retrieves a secret value.
func (s *Store) Get(environment, name, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if secret, ok := s.envs[environment][name]; ok {
		v, ok := secret[key]
		return v, ok
	}
	return "", false
}

// Delete removes a whole secret from an environment.
func (s *Store) Delete(environment, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.envs[environment], name)
}

// LookupSecret returns the key names of a secret, or nil when the
// secret does not exist in the environment.
func (s *Store) LookupSecret(ctx context.Context, name, environment string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.envs[environment][name]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(secret))
	for k := range secret {
		keys = append(keys, k)
	}
	return keys, nil
}

// GrantOAuth records an OAuth grant for a provider.
func (s *Store) GrantOAuth(provider, grant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[provider]
	if !ok {
		g = make(map[string]bool)
		s.grants[provider] = g
	}
	g[grant] = true
}

// HasGrant reports whether a provider has an OAuth grant of the given
// type.
func (s *Store) HasGrant(ctx context.Context, provider, grant string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[provider][grant], nil
}
