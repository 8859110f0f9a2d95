package metadata

import (
	"os"
	"testing"

	"github.com/shellboxhq/shellbox/utils"
)

var environmentTests = []struct {
	environmentVar string
	want           AppEnvironment
}{
	{"localdev", "localdev"},
	{"LocalDev", "localdev"},
	{"LOCALDEV", "localdev"},

	{"DEV", "dev"},
	{"dev", "dev"},
	{"Dev", "dev"},
	{"development", "dev"},

	{"staging", "staging"},
	{"Staging", "staging"},
	{"STAGING", "staging"},

	{"prod", "prod"},
	{"Prod", "prod"},
	{"PROD", "prod"},
	{"production", "prod"},

	{"unknown", "localdev"},
	{"Random", "localdev"},
	{"DEFAULT", "localdev"},
}

// resetAppEnvironmentCache throws away the memoized environment so each
// subtest sees its own APP_ENV value.
func resetAppEnvironmentCache() {
	GetAppEnvironment = memoizeAppEnvironment()
}

func TestGetAppEnvironment(t *testing.T) {
	for _, tt := range environmentTests {
		testname := utils.Sprintf("%s,%s", tt.environmentVar, tt.want)
		t.Run(testname, func(t *testing.T) {
			resetAppEnvironmentCache()

			// Set the APP_ENV environment variable to the test environment
			os.Setenv("APP_ENV", tt.environmentVar)
			got := GetAppEnvironment()

			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetAppEnvironmentMemoizes(t *testing.T) {
	resetAppEnvironmentCache()

	os.Setenv("APP_ENV", "staging")
	if got := GetAppEnvironment(); got != EnvStaging {
		t.Fatalf("got %s, want %s", got, EnvStaging)
	}

	// Later changes to APP_ENV must not be observed by the same cache.
	os.Setenv("APP_ENV", "prod")
	if got := GetAppEnvironment(); got != EnvStaging {
		t.Errorf("memoized environment changed, got %s, want %s", got, EnvStaging)
	}
}

func TestIsLocalEnv(t *testing.T) {
	for _, tt := range environmentTests {
		want := tt.want == EnvLocalDev

		testname := utils.Sprintf("%s,%v", tt.environmentVar, want)
		t.Run(testname, func(t *testing.T) {
			resetAppEnvironmentCache()

			// Set the APP_ENV environment variable to the test environment
			os.Setenv("APP_ENV", tt.environmentVar)
			got := IsLocalEnv()

			if got != want {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestGetAppEnvironmentLowercase(t *testing.T) {
	var environmentTests = []struct {
		environmentVar string
		want           string
	}{
		{"LOCALDEV", "localdev"},
		{"DEV", "dev"},
		{"STAGING", "staging"},
		{"PROD", "prod"},
		{"UNKNOWN", "localdev"},
	}

	for _, tt := range environmentTests {
		testname := utils.Sprintf("%s,%s", tt.environmentVar, tt.want)
		t.Run(testname, func(t *testing.T) {
			resetAppEnvironmentCache()

			// Set the APP_ENV environment variable to the test environment
			os.Setenv("APP_ENV", tt.environmentVar)
			got := GetAppEnvironmentLowercase()

			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRunningInCI(t *testing.T) {
	var CITests = []struct {
		environmentVar string
		want           bool
	}{
		{"1", true},
		{"yes", true},
		{"YES", true},
		{"Yes", true},
		{"true", true},
		{"True", true},
		{"TRUE", true},
		{"on", true},
		{"On", true},
		{"ON", true},
		{"yep", true},
		{"Yep", true},
		{"YEP", true},
		{"0", false},
		{"no", false},
		{"No", false},
		{"NO", false},
		{"false", false},
		{"False", false},
		{"FALSE", false},
		{"off", false},
		{"Off", false},
		{"OFF", false},
		{"nope", false},
		{"Nope", false},
		{"NOPE", false},
		{"unknown", false},
		{"Unknown", false},
		{"UNKNOWN", false},
	}

	for _, tt := range CITests {
		testname := utils.Sprintf("%s,%v", tt.environmentVar, tt.want)
		t.Run(testname, func(t *testing.T) {

			// Set the CI environment variable to the test environment
			os.Setenv("CI", tt.environmentVar)
			got := IsRunningInCI()

			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
