package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/metrics"
)

// Hmmsearch finds template hits for a query MSA: hmmbuild turns the
// Stockholm alignment into a profile, hmmsearch scans it against the
// PDB seqres database.
type Hmmsearch struct {
	runner      Runner
	binary      string
	buildBinary string
	numCPU      int
	logger      *zap.Logger
}

// HmmsearchConfig configures the hmmsearch wrapper.
type HmmsearchConfig struct {
	Binary      string
	BuildBinary string
	NumCPU      int
	Runner      Runner
	Logger      *zap.Logger
}

// NewHmmsearch creates an hmmsearch wrapper.
func NewHmmsearch(cfg *HmmsearchConfig) *Hmmsearch {
	return &Hmmsearch{
		runner:      cfg.Runner,
		binary:      cfg.Binary,
		buildBinary: cfg.BuildBinary,
		numCPU:      cfg.NumCPU,
		logger:      cfg.Logger,
	}
}

// Search builds a profile from the query alignment in msaSto and scans
// it against dbPath, writing template hits to outSto. The permissive
// E-value thresholds mirror AlphaFold's template stage, which filters
// hits downstream instead.
func (h *Hmmsearch) Search(ctx context.Context, msaSto, database, dbPath, outSto string) (SearchResult, error) {
	profile := profilePath(outSto)
	buildArgs := []string{
		"--hand",
		"--amino",
		profile,
		msaSto,
	}
	if err := h.runner.Run(ctx, Command{Path: h.buildBinary, Args: buildArgs}); err != nil {
		return SearchResult{}, fmt.Errorf("hmmbuild: %w", err)
	}

	args := []string{
		"--noali",
		"--cpu", strconv.Itoa(h.numCPU),
		"--F1", "0.1",
		"--F2", "0.1",
		"--F3", "0.1",
		"--incE", "100",
		"-E", "100",
		"--domE", "100",
		"--incdomE", "100",
		"-A", outSto,
		profile,
		dbPath,
	}
	if err := h.runner.Run(ctx, Command{Path: h.binary, Args: args}); err != nil {
		return SearchResult{}, fmt.Errorf("hmmsearch %s: %w", database, err)
	}

	hits, err := countStockholm(outSto)
	if err != nil {
		return SearchResult{}, fmt.Errorf("hmmsearch %s: %w", database, err)
	}

	h.logger.Info("hmmsearch finished",
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

// profilePath derives the hmm profile location from the output path.
func profilePath(outSto string) string {
	base := strings.TrimSuffix(outSto, filepath.Ext(outSto))
	return base + ".hmm"
}
