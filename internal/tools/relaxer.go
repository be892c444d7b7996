package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Relaxer wraps the protomer-relax helper binary, which runs restrained
// energy minimization on a predicted structure.
type Relaxer struct {
	runner Runner
	binary string
	useGPU bool
	logger *zap.Logger
}

// RelaxerConfig configures the relaxer wrapper.
type RelaxerConfig struct {
	Binary string
	UseGPU bool
	Runner Runner
	Logger *zap.Logger
}

// NewRelaxer creates a relaxer wrapper.
func NewRelaxer(cfg *RelaxerConfig) *Relaxer {
	return &Relaxer{
		runner: cfg.Runner,
		binary: cfg.Binary,
		useGPU: cfg.UseGPU,
		logger: cfg.Logger,
	}
}

// Relax minimizes the structure at inPDB and writes the result to outPDB.
func (r *Relaxer) Relax(ctx context.Context, inPDB, outPDB string) error {
	args := []string{
		"--input", inPDB,
		"--output", outPDB,
	}
	if r.useGPU {
		args = append(args, "--use-gpu")
	}

	if err := r.runner.Run(ctx, Command{Path: r.binary, Args: args}); err != nil {
		return fmt.Errorf("relax: %w", err)
	}

	r.logger.Info("relaxation finished", zap.String("output", outPDB))
	return nil
}
