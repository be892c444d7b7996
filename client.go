// Package protomer runs AlphaFold-style protein structure prediction
// pipelines: per-chain sequence and template search, feature building,
// cross-chain merging, model inference fan-out and relaxation, with
// every artifact addressed through a URI-based store.
//
// The Client is the entry point:
//
//	client, err := protomer.New(protomer.WithConfigFile("protomer.yaml"))
//	if err != nil { ... }
//	defer client.Close()
//
//	report, err := client.Run(ctx, protomer.RunParams{
//	    Stem:        "dimer",
//	    FastaURI:    "file://data/in/dimer.fasta",
//	    ModelPreset: protomer.PresetMultimer,
//	    DBPreset:    protomer.DBFull,
//	})
//
// The report carries the merged feature record, the ranking summary
// and every prediction ranked best first.
package protomer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/ledger"
	logpkg "github.com/protomerlab/protomer/internal/logger"
	"github.com/protomerlab/protomer/internal/metrics"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/science"
	"github.com/protomerlab/protomer/internal/steps"
	"github.com/protomerlab/protomer/internal/storage"
	redisstore "github.com/protomerlab/protomer/internal/storage/redis"
	"github.com/protomerlab/protomer/internal/tools"
)

const defaultReadinessTimeout = 10 * time.Second

// pinger is a backend with a liveness probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// Client owns the storage backends, the external tool wrappers and the
// run ledger, and executes folding runs against them.
type Client struct {
	cfg    *config.Config
	logger *zap.Logger
	led    ledger.Ledger
	deps   *steps.Deps

	pingers map[string]pinger
	closers []func()
}

// New creates a protomer Client from options. A configuration is
// required, either assembled (WithConfig) or loaded from a file
// (WithConfigFile).
func New(opts ...Option) (*Client, error) {
	o := &clientConfig{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		if !o.configFromDisk {
			return nil, errors.New("protomer: configuration required (use WithConfig or WithConfigFile)")
		}
		path, err := config.FindPath(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("protomer: %w", err)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("protomer: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("protomer: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.RegisterPipelineMetrics()

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		pingers: make(map[string]pinger),
	}

	rstore, err := dialRedis(cfg, o)
	if err != nil {
		return nil, err
	}
	if rstore != nil {
		c.closers = append(c.closers, rstore.Close)
		c.pingers["redis"] = rstore
		if err := rstore.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			c.Close()
			return nil, fmt.Errorf("protomer: redis not ready: %w", err)
		}
	}

	store := o.store
	if store == nil {
		resolver, err := buildBackends(cfg, rstore)
		if err != nil {
			c.Close()
			return nil, err
		}
		store = resolver
	}

	led := o.led
	if led == nil {
		led, err = buildLedger(cfg, rstore)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	c.led = led
	c.deps = buildDeps(cfg, store, logger, o)
	c.deps.Exec = &pipeline.Executor{Recorder: led, Logger: logger}
	if err := c.deps.Validate(); err != nil {
		c.Close()
		return nil, fmt.Errorf("protomer: %w", err)
	}
	return c, nil
}

// dialRedis creates the shared redis connection when any configured
// component needs one: a redis storage backend, or the redis ledger.
// Option overrides remove the corresponding need.
func dialRedis(cfg *config.Config, o *clientConfig) (*redisstore.Store, error) {
	needed := cfg.Ledger.Driver == "redis" && o.led == nil
	if o.store == nil {
		for _, b := range cfg.Storage.Backends {
			if b.Driver == "redis" {
				needed = true
			}
		}
	}
	if !needed {
		return nil, nil
	}

	s, err := redisstore.NewStore(redisstore.Config{
		InitAddress: cfg.Storage.Redis.InitAddress,
		Username:    cfg.Storage.Redis.Username,
		Password:    cfg.Storage.Redis.Password,
		SelectDB:    cfg.Storage.Redis.SelectDB,
	})
	if err != nil {
		return nil, fmt.Errorf("protomer: create redis store: %w", err)
	}
	return s, nil
}

// buildBackends constructs the URI resolver from the configured storage
// backends.
func buildBackends(cfg *config.Config, rstore *redisstore.Store) (*storage.Resolver, error) {
	resolver := storage.NewResolver()
	for _, b := range cfg.Storage.Backends {
		switch b.Driver {
		case "fs":
			resolver.Register(b.Scheme, storage.NewFS(b.Root))
		case "mem":
			resolver.Register(b.Scheme, storage.NewMem())
		case "redis":
			resolver.Register(b.Scheme, rstore)
		default:
			return nil, fmt.Errorf("protomer: unknown storage driver %q", b.Driver)
		}
	}
	return resolver, nil
}

// buildLedger constructs the run ledger over the shared redis
// connection, so artifacts on fs with run state in redis still works.
func buildLedger(cfg *config.Config, rstore *redisstore.Store) (ledger.Ledger, error) {
	switch cfg.Ledger.Driver {
	case "memory":
		return ledger.NewMemory(), nil
	case "redis":
		return ledger.NewRedis(rstore, ""), nil
	default:
		return nil, fmt.Errorf("protomer: unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// buildDeps wires the tool wrappers and science routines into the step
// dependency set. Option overrides substitute test fakes.
func buildDeps(cfg *config.Config, store steps.Store, logger *zap.Logger, o *clientConfig) *steps.Deps {
	runner := o.runner
	if runner == nil {
		runner = tools.NewExecRunner(logger)
	}

	sci := science.NewExec(&science.ExecConfig{
		Binary:  cfg.Tools.SciOps,
		WorkDir: cfg.Pipeline.WorkDir,
		Runner:  runner,
		Logger:  logger,
	}).Library()
	if o.science != nil {
		sci = *o.science
	}

	return &steps.Deps{
		Config:  cfg,
		Store:   store,
		Science: sci,
		Jackhmmer: tools.NewJackhmmer(&tools.JackhmmerConfig{
			Binary: cfg.Tools.Jackhmmer,
			NumCPU: cfg.Tools.NumCPU,
			Runner: runner,
			Logger: logger,
		}),
		HHblits: tools.NewHHblits(&tools.HHblitsConfig{
			Binary: cfg.Tools.HHblits,
			NumCPU: cfg.Tools.NumCPU,
			Runner: runner,
			Logger: logger,
		}),
		Hmmsearch: tools.NewHmmsearch(&tools.HmmsearchConfig{
			Binary:      cfg.Tools.Hmmsearch,
			BuildBinary: cfg.Tools.Hmmbuild,
			NumCPU:      cfg.Tools.NumCPU,
			Runner:      runner,
			Logger:      logger,
		}),
		HHsearch: tools.NewHHsearch(&tools.HHsearchConfig{
			Binary: cfg.Tools.HHsearch,
			Runner: runner,
			Logger: logger,
		}),
		Predictor: tools.NewPredictor(&tools.PredictorConfig{
			Binary:               cfg.Tools.Predictor,
			TFForceUnifiedMemory: cfg.Predict.TFForceUnifiedMemory,
			XLAClientMemFraction: cfg.Predict.XLAClientMemFraction,
			Benchmark:            cfg.Predict.BenchmarkMode,
			Runner:               runner,
			Logger:               logger,
		}),
		Relaxer: tools.NewRelaxer(&tools.RelaxerConfig{
			Binary: cfg.Tools.Relaxer,
			UseGPU: cfg.Predict.RelaxUseGPU,
			Runner: runner,
			Logger: logger,
		}),
		Logger: logger,
	}
}

// Close releases backend connections.
func (c *Client) Close() {
	for _, f := range c.closers {
		f()
	}
	c.closers = nil
}

// Ping checks connectivity of every backend that supports it. Backends
// without a liveness probe (fs, mem) always pass.
func (c *Client) Ping(ctx context.Context) error {
	for name, p := range c.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ping %s: %w", name, err)
		}
	}
	return nil
}

// Runs exposes the run ledger for status lookups.
func (c *Client) Runs() ledger.Ledger {
	return c.led
}

// Fetch copies the artifact at uri into a local file at dest, creating
// parent directories as needed.
func (c *Client) Fetch(ctx context.Context, uri, dest string) error {
	return storage.Fetch(ctx, c.deps.Store, uri, dest)
}

// Upload copies a local file into the store at uri, typically to stage
// the query FASTA before a run.
func (c *Client) Upload(ctx context.Context, path, uri string) error {
	return storage.Upload(ctx, c.deps.Store, path, uri)
}

// Run executes one folding run to completion and returns its report.
// The run is recorded in the ledger under a derived run id; artifacts
// land under <output_prefix>/runs/<run-id>/ in the store.
func (c *Client) Run(ctx context.Context, params RunParams) (*Report, error) {
	params = c.withDefaults(params)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("protomer: %w", err)
	}

	g, err := steps.Multimer(c.deps)
	if err != nil {
		return nil, fmt.Errorf("protomer: %w", err)
	}

	runID := domain.NewRunID(params, time.Now())
	workDir, err := c.makeWorkDir(runID)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	if err := c.led.CreateRun(ctx, ledger.Run{
		ID:          runID,
		Stem:        params.Stem,
		ModelPreset: string(params.ModelPreset),
	}); err != nil {
		return nil, fmt.Errorf("protomer: record run: %w", err)
	}

	c.logger.Info("run started",
		logpkg.Run(runID),
		zap.String("stem", params.Stem),
		zap.String("model_preset", string(params.ModelPreset)),
		zap.String("db_preset", string(params.DBPreset)),
	)

	rc := pipeline.NewRunContext(c.cfg, params, runID, workDir, c.logger)
	execErr := c.deps.Exec.Execute(ctx, g, rc)

	status, detail, outcome := ledger.StatusDone, "", "succeeded"
	if execErr != nil {
		status, detail, outcome = ledger.StatusFailed, execErr.Error(), "failed"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	if err := c.led.SetRunStatus(ctx, runID, status, detail); err != nil {
		c.logger.Warn("run status not recorded", logpkg.Run(runID), zap.Error(err))
	}

	if execErr != nil {
		return nil, fmt.Errorf("run %s: %w", runID, execErr)
	}
	c.logger.Info("run finished", logpkg.Run(runID))
	return report(rc), nil
}

// Plan renders the run's step graph and resource classes without
// executing anything.
func (c *Client) Plan(params RunParams) (string, error) {
	params = c.withDefaults(params)
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("protomer: %w", err)
	}
	g, err := steps.Multimer(c.deps)
	if err != nil {
		return "", fmt.Errorf("protomer: %w", err)
	}
	return pipeline.Render(g, c.cfg.Pipeline.Resources), nil
}

// withDefaults fills unset run parameters from the configuration and
// the conventions: stem from the FASTA file name, the multimer preset,
// full databases and relaxation enabled.
func (c *Client) withDefaults(p RunParams) RunParams {
	if p.Stem == "" && p.FastaURI != "" {
		if u, err := storage.Parse(p.FastaURI); err == nil {
			base := u.Base()
			p.Stem = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	if p.ModelPreset == "" {
		p.ModelPreset = domain.PresetMultimer
	}
	if p.DBPreset == "" {
		p.DBPreset = domain.DBFull
	}
	if p.RelaxMode == "" {
		p.RelaxMode = domain.RelaxEnabled
	}
	if p.NumPredictionsPerModel == 0 {
		p.NumPredictionsPerModel = c.cfg.Predict.NumMultimerPredictionsPerModel
	}
	if p.RandomSeed == 0 {
		p.RandomSeed = c.cfg.Predict.RandomSeed
	}
	return p
}

func (c *Client) makeWorkDir(runID string) (string, error) {
	root := c.cfg.Pipeline.WorkDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "protomer", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("protomer: create work dir: %w", err)
	}
	return dir, nil
}

// report assembles the public report from a finished run context.
func report(rc *pipeline.RunContext) *Report {
	rep := &Report{
		RunID:       rc.RunID,
		Predictions: rc.Predictions(),
	}
	if run := rc.RunConfig(); run != nil {
		rep.NumChains = len(run.Chains)
		rep.IsHomomerOrMonomer = run.IsHomomerOrMonomer
	}
	if a, ok := rc.Artifact(steps.KeyMerged); ok {
		rep.Merged = a
	}
	if a, ok := rc.Artifact(steps.KeyRanking); ok {
		rep.Ranking = a
	}
	return rep
}
