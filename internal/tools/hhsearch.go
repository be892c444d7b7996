package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/TuftsBCB/io/hhr"
	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/metrics"
)

// HHsearch finds template hits for monomer presets by scanning a query
// A3M against PDB70.
type HHsearch struct {
	runner Runner
	binary string
	logger *zap.Logger
}

// HHsearchConfig configures the hhsearch wrapper.
type HHsearchConfig struct {
	Binary string
	Runner Runner
	Logger *zap.Logger
}

// NewHHsearch creates an hhsearch wrapper.
func NewHHsearch(cfg *HHsearchConfig) *HHsearch {
	return &HHsearch{
		runner: cfg.Runner,
		binary: cfg.Binary,
		logger: cfg.Logger,
	}
}

// Search scans the query alignment in queryA3M against dbPath and
// writes hits to outHHR.
func (h *HHsearch) Search(ctx context.Context, queryA3M, database, dbPath, outHHR string) (SearchResult, error) {
	args := []string{
		"-i", queryA3M,
		"-o", outHHR,
		"-maxseq", "1000000",
		"-d", dbPath,
	}
	if err := h.runner.Run(ctx, Command{Path: h.binary, Args: args}); err != nil {
		return SearchResult{}, fmt.Errorf("hhsearch %s: %w", database, err)
	}

	hits, err := countHHR(outHHR)
	if err != nil {
		return SearchResult{}, fmt.Errorf("hhsearch %s: %w", database, err)
	}

	h.logger.Info("hhsearch finished",
		zap.String("database", database),
		zap.Int("hits", hits),
	)
	metrics.SearchAlignments.WithLabelValues(database).Observe(float64(hits))

	return SearchResult{
		Database:   database,
		OutputPath: outHHR,
		Format:     "hhr",
		NumHits:    hits,
	}, nil
}

func countHHR(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open hhr: %w", err)
	}
	defer f.Close()

	result, err := hhr.Read(f)
	if err != nil {
		return 0, fmt.Errorf("parse hhr: %w", err)
	}
	return len(result.Hits), nil
}
