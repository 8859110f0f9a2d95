package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shellboxhq/shellbox/metadata"
)

// TestGetAuthConfigDev will get the dev app environment
func TestGetAuthConfigDev(t *testing.T) {
	// getAuthConfig should return authConfigDev
	config := getAuthConfig(metadata.EnvDev)

	if config.Aud != authConfigDev.Aud || config.Iss != authConfigDev.Iss {
		t.Fatalf("error getting auth config for dev. Expected %v, got %v", authConfigDev, config)
	}
}

// TestGetAuthConfigStaging will get the staging app environment
func TestGetAuthConfigStaging(t *testing.T) {
	// getAuthConfig should return authConfigStaging
	config := getAuthConfig(metadata.EnvStaging)

	if config.Aud != authConfigStaging.Aud || config.Iss != authConfigStaging.Iss {
		t.Fatalf("error getting auth config for staging. Expected %v, got %v", authConfigStaging, config)
	}
}

// TestGetAuthConfigProd will get the prod app environment
func TestGetAuthConfigProd(t *testing.T) {
	// getAuthConfig should return authConfigProd
	config := getAuthConfig(metadata.EnvProd)

	if config.Aud != authConfigProd.Aud || config.Iss != authConfigProd.Iss {
		t.Fatalf("error getting auth config for prod. Expected %v, got %v", authConfigProd, config)
	}
}

// TestGetAuthConfigLocalDev falls back to the dev config
func TestGetAuthConfigLocalDev(t *testing.T) {
	config := getAuthConfig(metadata.EnvLocalDev)

	if config.Aud != authConfigDev.Aud || config.Iss != authConfigDev.Iss {
		t.Fatalf("error getting auth config for localdev. Expected %v, got %v", authConfigDev, config)
	}
}

func TestVerify(t *testing.T) {
	defer func(saved authConfig) {
		config = saved
	}(config)
	config = authConfig{
		Aud: "https://api.shellbox.dev",
		Iss: "https://issuer.test/",
	}

	var tests = []struct {
		name, aud, iss string
		wantErr        bool
	}{
		{"valid claims", "https://api.shellbox.dev", "https://issuer.test/", false},
		{"bad audience", "https://api.other.dev", "https://issuer.test/", true},
		{"bad issuer", "https://api.shellbox.dev", "https://other.test/", true},
		{"missing audience", "", "https://issuer.test/", true},
		{"missing issuer", "https://api.shellbox.dev", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &ShellboxClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: tt.iss},
			}
			if tt.aud != "" {
				claims.Audience = Audience{tt.aud}
			}

			err := Verify(claims)
			if tt.wantErr && err == nil {
				t.Errorf("expected Verify to fail for %s", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("did not expect error, got: %s", err)
			}
		})
	}
}
