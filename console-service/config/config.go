// Package config assembles the console service's process configuration from
// SHELLBOX_-prefixed environment variables, and loads the plan catalog from
// an optional YAML file. Load() should be called as close as possible to the
// top of the main function.
package config // import "github.com/shellboxhq/shellbox/console-service/config"

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/shellboxhq/shellbox/console-service/policy"
	"github.com/shellboxhq/shellbox/constants"
	"github.com/shellboxhq/shellbox/utils"
)

// envPrefix is stripped from every variable name below, i.e. ListenAddr is
// read from SHELLBOX_LISTEN_ADDR.
const envPrefix = "shellbox"

// Config holds every process-level setting of the console service. Fields
// without an explicit environment override keep their defaults.
type Config struct {
	// ListenAddr is the address the HTTPS server binds to.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:4679"`

	// RegistryFile is the flat file holding one line per live console.
	RegistryFile string `envconfig:"REGISTRY_FILE" default:"/var/lib/shellbox/consoles.txt"`

	// ArchiveFile receives compressed batches of expired console records.
	ArchiveFile string `envconfig:"ARCHIVE_FILE" default:"/var/lib/shellbox/reaped.lz4"`

	// PlansFile is an optional YAML plan catalog. Empty means the built-in
	// catalog.
	PlansFile string `envconfig:"PLANS_FILE"`

	// QuotaCeiling is the maximum number of live consoles per owner.
	QuotaCeiling int `envconfig:"QUOTA_CEILING" default:"12"`

	// ConsoleTTL is how long a console may live before the sweeper reaps it.
	ConsoleTTL time.Duration `envconfig:"CONSOLE_TTL" default:"720h"`

	// SweepPeriod is the interval between expiry sweeps.
	SweepPeriod time.Duration `envconfig:"SWEEP_PERIOD" default:"6h"`

	// DeployCaptureTimeout bounds the first wait for a connection line after
	// a deploy.
	DeployCaptureTimeout time.Duration `envconfig:"DEPLOY_CAPTURE_TIMEOUT" default:"25s"`

	// RetryCaptureTimeout bounds the second, last-chance wait during deploy.
	RetryCaptureTimeout time.Duration `envconfig:"RETRY_CAPTURE_TIMEOUT" default:"10s"`

	// ControlCaptureTimeout bounds the reconnection wait after start,
	// restart and regenerate.
	ControlCaptureTimeout time.Duration `envconfig:"CONTROL_CAPTURE_TIMEOUT" default:"15s"`

	// GatewayURL is the websocket endpoint of the chat gateway. Empty
	// disables notifications.
	GatewayURL string `envconfig:"GATEWAY_URL"`

	// DMAckTimeout is how long to wait for the gateway to acknowledge a
	// direct message before falling back to a broadcast.
	DMAckTimeout time.Duration `envconfig:"DM_ACK_TIMEOUT" default:"5s"`

	// TunnelHost is the public SSH relay used for port and HTTP forwarding.
	TunnelHost string `envconfig:"TUNNEL_HOST" default:"serveo.net"`

	// DockerHost is the daemon address. Empty means the local socket.
	DockerHost string `envconfig:"DOCKER_HOST"`

	// DockerCertPath is a directory of TLS material for a remote daemon.
	DockerCertPath string `envconfig:"DOCKER_CERT_PATH"`

	// DeploysPerMinute throttles the deploy endpoint.
	DeploysPerMinute int `envconfig:"DEPLOYS_PER_MINUTE" default:"6"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, utils.MakeError("couldn't process environment config: %s", err)
	}
	return &c, nil
}

// plansFile is the on-disk shape of a plan catalog.
type plansFile struct {
	Ceiling int           `yaml:"ceiling"`
	Plans   []policy.Plan `yaml:"plans"`
}

// LoadCatalog builds the plan catalog for this process. With no plans file
// configured it returns the built-in catalog, adjusted to the configured
// quota ceiling.
func (c *Config) LoadCatalog() (*policy.Catalog, error) {
	if c.PlansFile == "" {
		if c.QuotaCeiling != constants.MaxConsolesPerOwner {
			return policy.NewCatalog(policy.DefaultCatalog().Plans(), c.QuotaCeiling), nil
		}
		return policy.DefaultCatalog(), nil
	}

	raw, err := afero.ReadFile(utils.Fs, c.PlansFile)
	if err != nil {
		return nil, utils.MakeError("couldn't read plans file %s: %s", c.PlansFile, err)
	}

	var pf plansFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, utils.MakeError("couldn't parse plans file %s: %s", c.PlansFile, err)
	}
	if len(pf.Plans) == 0 {
		return nil, utils.MakeError("plans file %s defines no plans", c.PlansFile)
	}
	for _, p := range pf.Plans {
		if p.Name == "" {
			return nil, utils.MakeError("plans file %s contains a plan with no name", c.PlansFile)
		}
		if p.MemoryGB <= 0 {
			return nil, utils.MakeError("plan %s in %s has a non-positive memory size", p.Name, c.PlansFile)
		}
	}

	// The file's ceiling wins over the environment when both are set.
	ceiling := pf.Ceiling
	if ceiling <= 0 {
		ceiling = c.QuotaCeiling
	}
	return policy.NewCatalog(pf.Plans, ceiling), nil
}
