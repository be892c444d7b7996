package protomer

import (
	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/ledger"
	"github.com/protomerlab/protomer/internal/science"
	"github.com/protomerlab/protomer/internal/steps"
	"github.com/protomerlab/protomer/internal/tools"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	cfg            *config.Config
	configFile     string
	configFromDisk bool

	logger  *zap.Logger
	store   steps.Store
	led     ledger.Ledger
	science *science.Library
	runner  tools.Runner
}

// WithConfig supplies an assembled configuration. Defaults are applied
// and the configuration is validated during New.
func WithConfig(cfg *config.Config) Option {
	return func(c *clientConfig) {
		c.cfg = cfg
	}
}

// WithConfigFile loads the configuration from path. An empty path
// probes the standard locations (protomer.yaml, ~/.protomer,
// ~/.config/protomer, /etc/protomer).
func WithConfigFile(path string) Option {
	return func(c *clientConfig) {
		c.configFile = path
		c.configFromDisk = true
	}
}

// WithLogger sets the client's logger. The default is a no-op logger;
// libraries stay quiet unless asked.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithStore overrides the artifact store. The configured storage
// backends are not built; the caller owns the store's lifecycle.
func WithStore(s steps.Store) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithLedger overrides the run ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(c *clientConfig) {
		c.led = l
	}
}

// WithScience overrides the science routine bundle. Tests substitute
// in-memory fakes for the sciops helper binary.
func WithScience(lib science.Library) Option {
	return func(c *clientConfig) {
		c.science = &lib
	}
}

// WithRunner substitutes the external command runner every tool wrapper
// executes through.
func WithRunner(r tools.Runner) Option {
	return func(c *clientConfig) {
		c.runner = r
	}
}
