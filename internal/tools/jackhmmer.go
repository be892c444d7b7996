package tools

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/metrics"
	"github.com/protomerlab/protomer/pkg/stockholm"
)

// Jackhmmer searches a query sequence against a FASTA database and
// writes a Stockholm alignment.
type Jackhmmer struct {
	runner Runner
	binary string
	numCPU int
	logger *zap.Logger
}

// JackhmmerConfig configures the jackhmmer wrapper.
type JackhmmerConfig struct {
	Binary string
	NumCPU int
	Runner Runner
	Logger *zap.Logger
}

// NewJackhmmer creates a jackhmmer wrapper.
func NewJackhmmer(cfg *JackhmmerConfig) *Jackhmmer {
	return &Jackhmmer{
		runner: cfg.Runner,
		binary: cfg.Binary,
		numCPU: cfg.NumCPU,
		logger: cfg.Logger,
	}
}

// Search runs jackhmmer for queryFasta against the named database,
// writing the alignment to outSto. Filter thresholds match the values
// AlphaFold's data pipeline uses.
func (j *Jackhmmer) Search(ctx context.Context, queryFasta, database, dbPath, outSto string) (SearchResult, error) {
	args := []string{
		"-o", os.DevNull,
		"-A", outSto,
		"--noali",
		"--F1", "0.0005",
		"--F2", "5e-05",
		"--F3", "5e-07",
		"--incE", "0.0001",
		"-E", "0.0001",
		"--cpu", strconv.Itoa(j.numCPU),
		"-N", "1",
		queryFasta,
		dbPath,
	}

	if err := j.runner.Run(ctx, Command{Path: j.binary, Args: args}); err != nil {
		return SearchResult{}, fmt.Errorf("jackhmmer %s: %w", database, err)
	}

	hits, err := countStockholm(outSto)
	if err != nil {
		return SearchResult{}, fmt.Errorf("jackhmmer %s: %w", database, err)
	}

	j.logger.Info("jackhmmer search finished",
		zap.String("database", database),
		zap.Int("hits", hits),
	)
	metrics.SearchAlignments.WithLabelValues(database).Observe(float64(hits))

	return SearchResult{
		Database:   database,
		OutputPath: outSto,
		Format:     "sto",
		NumHits:    hits,
	}, nil
}

func countStockholm(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open alignment: %w", err)
	}
	defer f.Close()

	n, err := stockholm.Count(f)
	if err != nil {
		return 0, fmt.Errorf("count alignment: %w", err)
	}
	return n, nil
}
