package secrets

import (
	"context"
	"testing"
)

func TestParseOAuthKey(t *testing.T) {
	tests := []struct {
		name         string
		secretName   string
		key          string
		wantProvider string
		wantGrant    string
		wantErr      bool
	}{
		{"service token", "github_oauth", "GITHUB_SERVICE_TOKEN", "github", GrantService, false},
		{"user token", "github_oauth", "GITHUB_USER_TOKEN", "github", GrantUser, false},
		{"wrong provider in key", "github_oauth", "SLACK_SERVICE_TOKEN", "", "", true},
		{"arbitrary key", "github_oauth", "API_KEY", "", "", true},
		{"not an oauth name", "github", "GITHUB_SERVICE_TOKEN", "", "", true},
		{"bare suffix", "_oauth", "OAUTH_SERVICE_TOKEN", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, grant, err := ParseOAuthKey(tt.secretName, tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseOAuthKey(%q, %q) succeeded, want error", tt.secretName, tt.key)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOAuthKey error: %v", err)
			}
			if provider != tt.wantProvider || grant != tt.wantGrant {
				t.Errorf("got (%q, %q), want (%q, %q)", provider, grant, tt.wantProvider, tt.wantGrant)
			}
		})
	}
}

func TestStoreEnvironmentScoping(t *testing.T) {
	s := NewStore()
	s.Put("prod", "api", "KEY", "prod-value")
	s.Put("dev", "api", "KEY", "dev-value")

	if v, ok := s.Get("prod", "api", "KEY"); !ok || v != "prod-value" {
		t.Errorf("prod value = (%q, %v)", v, ok)
	}
	if _, ok := s.Get("staging", "api", "KEY"); ok {
		t.Error("secret leaked into an environment it was never stored in")
	}
}

func TestStoreLookupSecret(t *testing.T) {
	s := NewStore()
	s.Put("prod", "api", "KEY", "v")
	s.Put("prod", "api", "TOKEN", "t")

	keys, err := s.LookupSecret(context.Background(), "api", "prod")
	if err != nil {
		t.Fatalf("LookupSecret error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("keys = %v, want 2 entries", keys)
	}

	keys, err = s.LookupSecret(context.Background(), "missing", "prod")
	if err != nil || keys != nil {
		t.Errorf("missing secret = (%v, %v), want (nil, nil)", keys, err)
	}
}

func TestStoreOAuthGrants(t *testing.T) {
	s := NewStore()
	s.GrantOAuth("github", GrantService)

	ok, err := s.HasGrant(context.Background(), "github", GrantService)
	if err != nil || !ok {
		t.Errorf("HasGrant(github, service) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, _ = s.HasGrant(context.Background(), "github", GrantUser)
	if ok {
		t.Error("HasGrant(github, user) = true, want false")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	s.Put("prod", "api", "KEY", "v")
	s.Delete("prod", "api")
	if _, ok := s.Get("prod", "api", "KEY"); ok {
		t.Error("deleted secret still readable")
	}
}
