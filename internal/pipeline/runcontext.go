package pipeline

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/domain"
)

// RunContext carries one run's state through the graph. Config, Params,
// RunID and WorkDir are fixed before execution; the slots below them
// are filled by early steps and read by later ones, guarded by a lock
// because fan-out regions run steps concurrently.
type RunContext struct {
	Config  *config.Config
	Params  domain.RunParams
	RunID   string
	WorkDir string
	Logger  *zap.Logger

	mu        sync.RWMutex
	run       *domain.RunConfig
	manifest  *domain.Manifest
	pending   []domain.Chain
	artifacts map[string]domain.Artifact
	preds     []domain.Prediction
}

// NewRunContext creates the context for one run. WorkDir is the local
// scratch root; steps stage tool inputs and outputs beneath it.
func NewRunContext(cfg *config.Config, params domain.RunParams, runID, workDir string, logger *zap.Logger) *RunContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunContext{
		Config:    cfg,
		Params:    params,
		RunID:     runID,
		WorkDir:   workDir,
		Logger:    logger,
		artifacts: make(map[string]domain.Artifact),
	}
}

// Dir returns a path under the run's local scratch root.
func (rc *RunContext) Dir(parts ...string) string {
	return filepath.Join(append([]string{rc.WorkDir}, parts...)...)
}

// SetRunConfig stores the configure step's product.
func (rc *RunContext) SetRunConfig(run *domain.RunConfig) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.run = run
}

// RunConfig returns the resolved run plan, nil before configuration.
func (rc *RunContext) RunConfig() *domain.RunConfig {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.run
}

// SetManifest stores the chain manifest.
func (rc *RunContext) SetManifest(m *domain.Manifest) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.manifest = m
}

// Manifest returns the chain manifest, nil before it is created.
func (rc *RunContext) Manifest() *domain.Manifest {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.manifest
}

// SetChainsToProcess stores the chains the search fan-out must cover.
func (rc *RunContext) SetChainsToProcess(chains []domain.Chain) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pending = chains
}

// ChainsToProcess returns the chains without precomputed features.
func (rc *RunContext) ChainsToProcess() []domain.Chain {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]domain.Chain, len(rc.pending))
	copy(out, rc.pending)
	return out
}

// RecordArtifact registers a produced artifact under a registry key,
// by convention "<category>/<chain-or-runner>/<label>". Later steps
// discover their inputs through the registry instead of guessing paths.
func (rc *RunContext) RecordArtifact(key string, a domain.Artifact) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.artifacts[key] = a
}

// Artifact looks up one registered artifact.
func (rc *RunContext) Artifact(key string) (domain.Artifact, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	a, ok := rc.artifacts[key]
	return a, ok
}

// ArtifactsUnder returns the artifacts whose registry key starts with
// prefix, ordered by key so callers see a deterministic sequence.
func (rc *RunContext) ArtifactsUnder(prefix string) []domain.Artifact {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	keys := make([]string, 0, len(rc.artifacts))
	for k := range rc.artifacts {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]domain.Artifact, len(keys))
	for i, k := range keys {
		out[i] = rc.artifacts[k]
	}
	return out
}

// AddPrediction collects one model runner's outcome for ranking.
func (rc *RunContext) AddPrediction(p domain.Prediction) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.preds = append(rc.preds, p)
}

// SetRelaxedURI records the relaxed structure location on an already
// collected prediction.
func (rc *RunContext) SetRelaxedURI(runnerName, uri string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := range rc.preds {
		if rc.preds[i].RunnerName == runnerName {
			rc.preds[i].RelaxedURI = uri
			return
		}
	}
}

// Predictions returns collected predictions sorted by descending
// ranking confidence, ties broken by runner name. Fan-out completion
// order is not deterministic, so callers must not rely on arrival
// order.
func (rc *RunContext) Predictions() []domain.Prediction {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make([]domain.Prediction, len(rc.preds))
	copy(out, rc.preds)
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankingConfidence != out[j].RankingConfidence {
			return out[i].RankingConfidence > out[j].RankingConfidence
		}
		return out[i].RunnerName < out[j].RunnerName
	})
	return out
}
