// Package config loads and validates protomer configuration from a YAML
// file. Values may reference environment variables with ${VAR} or
// ${VAR:-default} syntax; references are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a protomer process. One Config
// describes the environment a pipeline runs in (tool binaries, reference
// databases, storage backends); per-run inputs such as the sequence and
// model preset travel separately as domain.RunParams.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"databases"`
	Tools    ToolsConfig    `yaml:"tools"`
	Search   SearchConfig   `yaml:"search"`
	Predict  PredictConfig  `yaml:"predict"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig wires artifact URIs to concrete backends. Each backend
// claims one URI scheme; the output prefix is where runs write their
// artifact trees.
type StorageConfig struct {
	Backends     []BackendConfig `yaml:"backends"`
	OutputPrefix string          `yaml:"output_prefix"`
	Redis        RedisConfig     `yaml:"redis"`
}

// BackendConfig binds a URI scheme to a storage driver. The fs driver
// maps bucket/key paths under Root; mem and redis ignore Root.
type BackendConfig struct {
	Scheme string `yaml:"scheme"`
	Driver string `yaml:"driver"`
	Root   string `yaml:"root"`
}

// RedisConfig carries connection settings shared by the redis storage
// backend and the redis run ledger.
type RedisConfig struct {
	InitAddress []string `yaml:"init_address"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	SelectDB    int      `yaml:"select_db"`
}

// DatabaseConfig locates the reference databases used by the sequence
// search tools. Paths are relative to MountPath unless absolute.
type DatabaseConfig struct {
	MountPath   string `yaml:"mount_path"`
	Uniref90    string `yaml:"uniref90"`
	Mgnify      string `yaml:"mgnify"`
	BFD         string `yaml:"bfd"`
	SmallBFD    string `yaml:"small_bfd"`
	Uniref30    string `yaml:"uniref30"`
	PDB70       string `yaml:"pdb70"`
	PDBMMCIF    string `yaml:"pdb_mmcif"`
	PDBObsolete string `yaml:"pdb_obsolete"`
	PDBSeqres   string `yaml:"pdb_seqres"`
	Uniprot     string `yaml:"uniprot"`
}

// Resolve joins a database path with the mount path. Absolute paths are
// returned unchanged so individual databases can live outside the mount.
func (d DatabaseConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.MountPath, path)
}

// ToolsConfig names the external executables the pipeline shells out to.
// Bare names are resolved on PATH; absolute paths are used as-is.
type ToolsConfig struct {
	Jackhmmer string `yaml:"jackhmmer"`
	HHblits   string `yaml:"hhblits"`
	Hmmsearch string `yaml:"hmmsearch"`
	Hmmbuild  string `yaml:"hmmbuild"`
	HHsearch  string `yaml:"hhsearch"`
	SciOps    string `yaml:"sciops"`
	Predictor string `yaml:"predictor"`
	Relaxer   string `yaml:"relaxer"`
	NumCPU    int    `yaml:"num_cpu"`
}

// SearchConfig caps how many alignments each database search keeps.
type SearchConfig struct {
	Uniref90MaxHits int `yaml:"uniref90_max_hits"`
	MgnifyMaxHits   int `yaml:"mgnify_max_hits"`
	UniprotMaxHits  int `yaml:"uniprot_max_hits"`
	MaxTemplateHits int `yaml:"max_template_hits"`
}

// PredictConfig holds runtime knobs forwarded to the predictor process
// environment.
type PredictConfig struct {
	TFForceUnifiedMemory           string `yaml:"tf_force_unified_memory"`
	XLAClientMemFraction           string `yaml:"xla_client_mem_fraction"`
	BenchmarkMode                  bool   `yaml:"benchmark_mode"`
	ModelsToRelax                  string `yaml:"models_to_relax"`
	RelaxUseGPU                    bool   `yaml:"relax_use_gpu"`
	RandomSeed                     int64  `yaml:"random_seed"`
	NumMultimerPredictionsPerModel int    `yaml:"num_predictions_per_model"`
}

// PipelineConfig bounds pipeline execution. Parallelism caps concurrent
// fan-out branches; MSADepthPadding is the row count multimer MSAs are
// padded to before prediction.
type PipelineConfig struct {
	Parallelism     int                     `yaml:"parallelism"`
	MSADepthPadding int                     `yaml:"msa_depth_padding"`
	WorkDir         string                  `yaml:"work_dir"`
	Resources       map[string]ResourceSpec `yaml:"resources"`
}

// ResourceSpec declares the machine shape a step class wants. The specs
// are advisory placement metadata recorded on the run; the local executor
// does not enforce them.
type ResourceSpec struct {
	MachineType      string     `yaml:"machine_type"`
	AcceleratorType  string     `yaml:"accelerator_type"`
	AcceleratorCount int        `yaml:"accelerator_count"`
	BootDiskType     string     `yaml:"boot_disk_type"`
	BootDiskSizeGB   int        `yaml:"boot_disk_size_gb"`
	NFSMounts        []NFSMount `yaml:"nfs_mounts"`
}

// NFSMount declares a network volume a step class expects at MountPoint.
type NFSMount struct {
	Server     string `yaml:"server"`
	Path       string `yaml:"path"`
	MountPoint string `yaml:"mount_point"`
}

// LedgerConfig selects where run state is recorded.
type LedgerConfig struct {
	Driver string `yaml:"driver"`
}

// HTTPConfig configures the optional status server.
type HTTPConfig struct {
	Enabled         bool `yaml:"enabled"`
	Port            int  `yaml:"port"`
	ReadTimeoutSec  int  `yaml:"read_timeout_sec"`
	WriteTimeoutSec int  `yaml:"write_timeout_sec"`
	ShutdownSec     int  `yaml:"shutdown_sec"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, expands, parses, defaults and validates the configuration
// at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references with
// values from the process environment. Unset variables without a default
// expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := match[2 : len(match)-1]

		name, def, hasDefault := strings.Cut(expr, ":-")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// ApplyDefaults fills in zero values with working defaults. Tool names
// default to their conventional binary names so a PATH install needs no
// configuration.
func (c *Config) ApplyDefaults() {
	if len(c.Storage.Backends) == 0 {
		c.Storage.Backends = []BackendConfig{
			{Scheme: "file", Driver: "fs", Root: "/"},
			{Scheme: "mem", Driver: "mem"},
		}
	}
	if c.Tools.Jackhmmer == "" {
		c.Tools.Jackhmmer = "jackhmmer"
	}
	if c.Tools.HHblits == "" {
		c.Tools.HHblits = "hhblits"
	}
	if c.Tools.Hmmsearch == "" {
		c.Tools.Hmmsearch = "hmmsearch"
	}
	if c.Tools.Hmmbuild == "" {
		c.Tools.Hmmbuild = "hmmbuild"
	}
	if c.Tools.HHsearch == "" {
		c.Tools.HHsearch = "hhsearch"
	}
	if c.Tools.SciOps == "" {
		c.Tools.SciOps = "protomer-sciops"
	}
	if c.Tools.Predictor == "" {
		c.Tools.Predictor = "protomer-predict"
	}
	if c.Tools.Relaxer == "" {
		c.Tools.Relaxer = "protomer-relax"
	}
	if c.Tools.NumCPU == 0 {
		c.Tools.NumCPU = 8
	}

	if c.Search.Uniref90MaxHits == 0 {
		c.Search.Uniref90MaxHits = 10000
	}
	if c.Search.MgnifyMaxHits == 0 {
		c.Search.MgnifyMaxHits = 501
	}
	if c.Search.UniprotMaxHits == 0 {
		c.Search.UniprotMaxHits = 50000
	}
	if c.Search.MaxTemplateHits == 0 {
		c.Search.MaxTemplateHits = 20
	}

	if c.Predict.TFForceUnifiedMemory == "" {
		c.Predict.TFForceUnifiedMemory = "1"
	}
	if c.Predict.XLAClientMemFraction == "" {
		c.Predict.XLAClientMemFraction = "4.0"
	}
	if c.Predict.ModelsToRelax == "" {
		c.Predict.ModelsToRelax = "best"
	}
	if c.Predict.NumMultimerPredictionsPerModel == 0 {
		c.Predict.NumMultimerPredictionsPerModel = 1
	}

	if c.Pipeline.Parallelism == 0 {
		c.Pipeline.Parallelism = 8
	}
	if c.Pipeline.MSADepthPadding == 0 {
		c.Pipeline.MSADepthPadding = 512
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "memory"
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8672
	}
	if c.HTTP.ReadTimeoutSec == 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec == 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec == 0 {
		c.HTTP.ShutdownSec = 15
	}

	if c.Logging.Env == "" {
		c.Logging.Env = os.Getenv("PROTOMER_ENV")
	}
}

// Validate rejects configurations that cannot produce a working process.
func (c *Config) Validate() error {
	if !strings.Contains(c.Storage.OutputPrefix, "://") {
		return fmt.Errorf("storage.output_prefix must be a scheme://bucket URI, got %q", c.Storage.OutputPrefix)
	}

	seen := make(map[string]bool, len(c.Storage.Backends))
	for _, b := range c.Storage.Backends {
		if b.Scheme == "" {
			return fmt.Errorf("storage backend is missing a scheme")
		}
		if seen[b.Scheme] {
			return fmt.Errorf("storage scheme %q is configured twice", b.Scheme)
		}
		seen[b.Scheme] = true

		switch b.Driver {
		case "fs", "mem", "redis":
		default:
			return fmt.Errorf("storage scheme %q: unknown driver %q", b.Scheme, b.Driver)
		}
		if b.Driver == "redis" && len(c.Storage.Redis.InitAddress) == 0 {
			return fmt.Errorf("storage scheme %q: redis driver requires storage.redis.init_address", b.Scheme)
		}
	}

	switch c.Ledger.Driver {
	case "memory":
	case "redis":
		if len(c.Storage.Redis.InitAddress) == 0 {
			return fmt.Errorf("ledger driver redis requires storage.redis.init_address")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}

	switch c.Predict.ModelsToRelax {
	case "all", "best", "none":
	default:
		return fmt.Errorf("predict.models_to_relax must be all, best or none, got %q", c.Predict.ModelsToRelax)
	}

	if c.Pipeline.Parallelism < 1 {
		return fmt.Errorf("pipeline.parallelism must be positive, got %d", c.Pipeline.Parallelism)
	}
	if c.Pipeline.MSADepthPadding < 1 {
		return fmt.Errorf("pipeline.msa_depth_padding must be positive, got %d", c.Pipeline.MSADepthPadding)
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}

// FindPath returns the configuration file to load. An explicit path wins;
// otherwise well-known locations are probed in order.
func FindPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	candidates := []string{"protomer.yaml", "protomer.yml"}
	if home, err := homedir.Dir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".protomer", "config.yaml"),
			filepath.Join(home, ".config", "protomer", "config.yaml"),
		)
	}
	candidates = append(candidates, "/etc/protomer/config.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found; pass --config or create protomer.yaml")
}
