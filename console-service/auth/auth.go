/*
Package auth provides functions for validating JWTs sent by the gateway and
by command-line clients.

Currently, it has been tested with JWTs generated with our Auth0
configuration. It should work with other JWTs too, provided that they are
signed with the RS256 algorithm.
*/
package auth // import "github.com/shellboxhq/shellbox/console-service/auth"

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/shellboxhq/shellbox/metadata"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/utils"
)

// Audience is an alias for []string with some custom deserialization behavior.
// It is used to store the value of an access token's "aud" claim.
type Audience []string

// Scopes is an alias for []string with some custom deserialization behavior.
// It is used to store the value of an access token's "scope" claim.
type Scopes []string

// Capabilities is an alias for []string with the same tolerant
// deserialization behavior as Audience. It stores the value of the access
// token's "capabilities" claim, i.e. the role names the subject holds on the
// chat platform.
type Capabilities []string

// ShellboxClaims is a struct type that models the claims that must be present
// in an Auth0-issued Shellbox access token.
type ShellboxClaims struct {
	jwt.RegisteredClaims

	// Audience stores the value of the access token's "aud" claim. Inside the
	// token's payload, the value of the "aud" claim can be either a JSON
	// string or list of strings. We implement custom deserialization on the
	// Audience type to handle both of these cases.
	Audience Audience `json:"aud"`

	// Scopes stores the value of the access token's "scope" claim. The value
	// of the "scope" claim is a string of one or more space-separated words.
	// The *Scopes type implements the encoding.TextUnmarshaler interface such
	// that the string of space-separated words is deserialized into a string
	// slice.
	Scopes Scopes `json:"scope"`

	// Capabilities stores the role names granted to the subject. Plans whose
	// catalog entry names a required capability are checked against it.
	Capabilities Capabilities `json:"capabilities"`

	// Admin marks tokens that may manage roles and other owners' consoles.
	Admin bool `json:"admin"`
}

var config authConfig = getAuthConfig(metadata.GetAppEnvironment())
var jwks *keyfunc.JWKS

func init() {
	// Request authentication is disabled in local environments, so we don't
	// reach out for the JWKS there. ParseToken guards against a nil jwks.
	if metadata.IsLocalEnv() {
		return
	}

	var err error // don't want to shadow jwks accidentally

	jwks, err = keyfunc.Get(config.getJwksURL(), keyfunc.Options{
		RefreshInterval: time.Hour * 1,
		RefreshErrorHandler: func(err error) {
			logger.Errorf("Error refreshing JWKs: %s", err)
		},
		RefreshUnknownKID: true,
	})
	if err != nil {
		// Can do a "real" panic since we're in an init function
		logger.Panicf(nil, "Error getting JWKs on startup: %s", err)
	}
	logger.Infof("Successfully got JWKs from %s on startup.", config.getJwksURL())
}

// UnmarshalJSON unmarshals a JSON string or list of strings into an *Audience
// type. It overwrites the contents of *audience with the unmarshalled data.
func (audience *Audience) UnmarshalJSON(data []byte) error {
	var aud string

	// Try to unmarshal the input data into a string slice.
	err := json.Unmarshal(data, (*[]string)(audience))

	switch v := err.(type) {
	case *json.UnmarshalTypeError:
		// Ignore *json.UnmarshalTypeErrors, which are returned when the input
		// data cannot be unmarshalled into a string slice. Instead, we will
		// try to unmarshal the data into a string type below.
	default:
		// Return an error if err was non-nil or nil otherwise.
		return v
	}

	// Try to unmarshal the input data into a string.
	if err := json.Unmarshal(data, &aud); err != nil {
		return err
	}

	// Overwrite any pre-existing data in *audience. Avoid creating a new
	// allocation if possible by truncating and reusing the existing slice.
	*audience = append((*audience)[0:0], aud)

	return nil
}

// UnmarshalJSON unmarshals a space-separate string of words into a *Scopes
// type. It overwrites the contents of *scopes with the unmarshalled data.
func (scopes *Scopes) UnmarshalJSON(data []byte) error {
	var s string

	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// The (*scopes)[0:0] syntax decreases the likelihood that new memory
	// must be allocated for the data that are written to the slice.
	*scopes = append((*scopes)[0:0], strings.Fields(s)...)

	return nil
}

// UnmarshalJSON unmarshals a JSON string or list of strings into a
// *Capabilities type. Role names usually arrive as a list, but a plain
// string is accepted too.
func (capabilities *Capabilities) UnmarshalJSON(data []byte) error {
	var c string

	// Try to unmarshal the input data into a string slice.
	err := json.Unmarshal(data, (*[]string)(capabilities))

	switch v := err.(type) {
	case *json.UnmarshalTypeError:
		// Fall through to try unmarshalling into a string below.
	default:
		return v
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}

	*capabilities = append((*capabilities)[0:0], c)

	return nil
}

// ParseToken parses a raw access token string and verifies the token's
// signature against the JWKS. It returns the claims without checking the
// audience or issuer; use Verify for that.
func ParseToken(tokenString string) (*ShellboxClaims, error) {
	if jwks == nil {
		return nil, utils.MakeError("the JWKS is not initialized (running in a local environment?)")
	}

	claims := new(ShellboxClaims)
	_, err := jwt.ParseWithClaims(tokenString, claims, jwks.Keyfunc)
	if err != nil {
		return nil, err
	}

	return claims, nil
}

// Verify ensures that the given claims were issued by the proper issuer for
// the proper audience.
func Verify(claims *ShellboxClaims) error {
	if !claims.VerifyAudience(config.Aud, true) {
		return jwt.NewValidationError(
			utils.Sprintf("Bad audience %s", claims.Audience),
			jwt.ValidationErrorAudience,
		)
	}

	if !claims.VerifyIssuer(config.Iss, true) {
		return jwt.NewValidationError(
			utils.Sprintf("Bad issuer %s", claims.Issuer),
			jwt.ValidationErrorIssuer,
		)
	}

	return nil
}

// VerifyAudience compares the "aud" claim against cmp. If req is false, this
// method will return true if the value of the "aud" claim matches cmp or is
// unset.
func (claims *ShellboxClaims) VerifyAudience(cmp string, req bool) bool {
	c := &jwt.MapClaims{"aud": []string(claims.Audience)}
	return c.VerifyAudience(cmp, req)
}

// VerifyScope returns true if claims.Scopes contains the requested scope and
// false otherwise. This function's name and type signature is inspired by
// those of the Verify* methods defined on jwt.RegisteredClaims.
func (claims *ShellboxClaims) VerifyScope(scope string) bool {
	return utils.StringSliceContains([]string(claims.Scopes), scope)
}

// VerifyCapability returns true if claims.Capabilities contains the requested
// capability. Role names are compared case-insensitively, matching how the
// chat platform treats them.
func (claims *ShellboxClaims) VerifyCapability(capability string) bool {
	for _, c := range claims.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}

	return false
}
