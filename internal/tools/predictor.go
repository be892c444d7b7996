package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/metrics"
)

// Predictor wraps the protomer-predict helper binary, which loads the
// model weights and runs inference on a merged feature record. The
// helper owns all numerics; this wrapper owns argv, environment and
// result parsing.
type Predictor struct {
	runner    Runner
	binary    string
	env       []string
	benchmark bool
	logger    *zap.Logger
}

// PredictorConfig configures the predictor wrapper. The two memory
// settings are forwarded to the helper's environment, where the GPU
// runtime reads them. Benchmark makes the helper time a second,
// compilation-free inference pass.
type PredictorConfig struct {
	Binary               string
	TFForceUnifiedMemory string
	XLAClientMemFraction string
	Benchmark            bool
	Runner               Runner
	Logger               *zap.Logger
}

// NewPredictor creates a predictor wrapper.
func NewPredictor(cfg *PredictorConfig) *Predictor {
	var env []string
	if cfg.TFForceUnifiedMemory != "" {
		env = append(env, "TF_FORCE_UNIFIED_MEMORY="+cfg.TFForceUnifiedMemory)
	}
	if cfg.XLAClientMemFraction != "" {
		env = append(env, "XLA_PYTHON_CLIENT_MEM_FRACTION="+cfg.XLAClientMemFraction)
	}
	return &Predictor{
		runner:    cfg.Runner,
		binary:    cfg.Binary,
		env:       env,
		benchmark: cfg.Benchmark,
		logger:    cfg.Logger,
	}
}

// PredictRequest names one inference task over a staged feature file.
type PredictRequest struct {
	// FeaturesPath is the local merged feature record.
	FeaturesPath string
	// Model names the weight set, RunnerName the unique prediction
	// (model plus prediction index).
	Model      string
	RunnerName string
	Seed       int64
	// NumEnsemble and Multimer select the model system.
	NumEnsemble int
	Multimer    bool
	OutputDir   string
}

// PredictResult locates the helper's outputs.
type PredictResult struct {
	StructurePath     string
	ResultPath        string
	RankingPath       string
	RankingConfidence float64
}

// Predict runs one model runner over the staged features.
func (p *Predictor) Predict(ctx context.Context, req PredictRequest) (PredictResult, error) {
	res := PredictResult{
		StructurePath: filepath.Join(req.OutputDir, "unrelaxed_"+req.RunnerName+".pdb"),
		ResultPath:    filepath.Join(req.OutputDir, "result_"+req.RunnerName+".pkl"),
		RankingPath:   filepath.Join(req.OutputDir, "ranking_"+req.RunnerName+".json"),
	}

	args := []string{
		"--features", req.FeaturesPath,
		"--model", req.Model,
		"--name", req.RunnerName,
		"--seed", strconv.FormatInt(req.Seed, 10),
		"--num-ensemble", strconv.Itoa(req.NumEnsemble),
		"--output-dir", req.OutputDir,
	}
	if req.Multimer {
		args = append(args, "--multimer")
	}
	if p.benchmark {
		args = append(args, "--benchmark")
	}
	cmd := Command{Path: p.binary, Args: args, Env: p.env}
	if err := p.runner.Run(ctx, cmd); err != nil {
		return PredictResult{}, fmt.Errorf("predict %s: %w", req.RunnerName, err)
	}

	confidence, err := readRankingConfidence(res.RankingPath)
	if err != nil {
		return PredictResult{}, fmt.Errorf("predict %s: %w", req.RunnerName, err)
	}
	res.RankingConfidence = confidence

	p.logger.Info("prediction finished",
		zap.String("runner", req.RunnerName),
		zap.Float64("ranking_confidence", confidence),
	)
	metrics.RankingConfidence.WithLabelValues(req.Model).Observe(confidence)

	return res, nil
}

func readRankingConfidence(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read ranking: %w", err)
	}
	var parsed struct {
		RankingConfidence float64 `json:"ranking_confidence"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("parse ranking: %w", err)
	}
	return parsed.RankingConfidence, nil
}
