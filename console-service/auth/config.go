package auth

import (
	"github.com/shellboxhq/shellbox/metadata"
)

type authConfig struct {
	// JWT audience. Identifies the service that accepts the token.
	Aud string
	// JWT issuer. The issuing server.
	Iss string
}

func (a authConfig) getJwksURL() string {
	return a.Iss + ".well-known/jwks.json"
}

var authConfigDev = authConfig{
	Aud: "https://api.shellbox.dev",
	Iss: "https://shellbox-dev.us.auth0.com/",
}

var authConfigStaging = authConfig{
	Aud: "https://api.shellbox.dev",
	Iss: "https://shellbox-staging.us.auth0.com/",
}

var authConfigProd = authConfig{
	Aud: "https://api.shellbox.dev",
	Iss: "https://login.shellbox.dev/",
}

func getAuthConfig(env metadata.AppEnvironment) authConfig {
	switch env {
	case metadata.EnvDev:
		return authConfigDev
	case metadata.EnvStaging:
		return authConfigStaging
	case metadata.EnvProd:
		return authConfigProd
	default:
		return authConfigDev
	}
}
