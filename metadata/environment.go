package metadata // import "github.com/shellboxhq/shellbox/metadata"

import (
	"os"
	"strings"
)

func init() {
	// Note: we use panic here to exit from the `metadata` package, since it is one of the rare
	// packages that does not have access to the global context, or the `logger.Panicf` function.
	// Additionally, we need to verify that the console service is running on a valid environment early
	// in the process, before doing any setup/logging. Due to the special conditions needed, the use of
	// `panic` is acceptable here, but it should not be used anywhere else in the code.
	if IsRunningInCI() && !IsLocalEnv() {
		// Running on a non-local environment with CI enabled is an invalid configuration.
		panic("Running on non-local environment with CI enabled.")
	}
}

// Variable for hash of last Git commit --- filled in by linker
var gitCommit string

// GetGitCommit returns the git commit hash of this build.
func GetGitCommit() string {
	return gitCommit
}

// An AppEnvironment represents either localdev (i.e. an engineer's
// development machine), dev (i.e. talking to the dev gateway), staging, or
// prod
type AppEnvironment string

// Constants for the various AppEnvironments. DO NOT CHANGE THESE without
// understanding how any consumers of GetAppEnvironment() and
// GetAppEnvironmentLowercase() are using them!
const (
	EnvLocalDev AppEnvironment = "localdev"
	EnvDev      AppEnvironment = "dev"
	EnvStaging  AppEnvironment = "staging"
	EnvProd     AppEnvironment = "prod"
)

// GetAppEnvironment returns the AppEnvironment of the current instance. It
// is a memoizing variable (rather than a plain function) so tests can throw
// away the cache by reassigning it.
var GetAppEnvironment func() AppEnvironment = memoizeAppEnvironment()

func memoizeAppEnvironment() func() AppEnvironment {
	// This nested function syntax is used to memoize the result of the first call
	// to GetAppEnvironment() and cache the result for all future calls.

	var isCached = false
	var cache AppEnvironment

	unmemoized := func() AppEnvironment {
		// Caching-agnostic logic goes here
		env := strings.ToLower(os.Getenv("APP_ENV"))
		switch env {
		case "development", "dev":
			return EnvDev
		case "staging":
			return EnvStaging
		case "production", "prod":
			return EnvProd
		default:
			return EnvLocalDev
		}
	}

	return func() AppEnvironment {
		if isCached {
			return cache
		}
		cache = unmemoized()
		isCached = true
		return cache
	}
}

// IsLocalEnv returns true if this console service is running locally for
// development.
func IsLocalEnv() bool {
	env := GetAppEnvironment()
	return env == EnvLocalDev
}

// GetAppEnvironmentLowercase returns the app environment string, but just
// converted to lowercase. This is helpful to construct larger strings (i.e.
// Docker image names) that depend on the current environment.
func GetAppEnvironmentLowercase() string {
	return strings.ToLower(string(GetAppEnvironment()))
}

// IsRunningInCI returns true if the console service is running in continuous
// integration (i.e. for tests), and false otherwise.
func IsRunningInCI() bool {
	strCI := strings.ToLower(os.Getenv("CI"))
	switch strCI {
	case "1", "yes", "true", "on", "yep":
		return true
	case "0", "no", "false", "off", "nope":
		return false
	default:
		return false
	}
}
