package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/metrics"
)

// HHblits searches a query against one or more hh-suite databases and
// writes an A3M alignment. The pipeline points it at BFD plus UniRef30
// for the full database preset.
type HHblits struct {
	runner Runner
	binary string
	numCPU int
	logger *zap.Logger
}

// HHblitsConfig configures the hhblits wrapper.
type HHblitsConfig struct {
	Binary string
	NumCPU int
	Runner Runner
	Logger *zap.Logger
}

// NewHHblits creates an hhblits wrapper.
func NewHHblits(cfg *HHblitsConfig) *HHblits {
	return &HHblits{
		runner: cfg.Runner,
		binary: cfg.Binary,
		numCPU: cfg.NumCPU,
		logger: cfg.Logger,
	}
}

// Search runs hhblits for queryFasta against dbPaths, writing the
// alignment to outA3M. database names the combined search for metadata.
func (h *HHblits) Search(ctx context.Context, queryFasta, database string, dbPaths []string, outA3M string) (SearchResult, error) {
	args := []string{
		"-i", queryFasta,
		"-cpu", strconv.Itoa(h.numCPU),
		"-oa3m", outA3M,
		"-o", os.DevNull,
		"-n", "3",
		"-e", "0.001",
		"-maxseq", "1000000",
		"-realign_max", "100000",
		"-maxfilt", "100000",
		"-min_prefilter_hits", "1000",
	}
	for _, db := range dbPaths {
		args = append(args, "-d", db)
	}

	if err := h.runner.Run(ctx, Command{Path: h.binary, Args: args}); err != nil {
		return SearchResult{}, fmt.Errorf("hhblits %s: %w", database, err)
	}

	hits, err := countA3M(outA3M)
	if err != nil {
		return SearchResult{}, fmt.Errorf("hhblits %s: %w", database, err)
	}

	h.logger.Info("hhblits search finished",
		zap.String("database", database),
		zap.Int("hits", hits),
	)
	metrics.SearchAlignments.WithLabelValues(database).Observe(float64(hits))

	return SearchResult{
		Database:   database,
		OutputPath: outA3M,
		Format:     "a3m",
		NumHits:    hits,
	}, nil
}

// countA3M counts sequences in an A3M file. A3M is FASTA-shaped with
// lowercase insert states, so counting headers is enough.
func countA3M(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open alignment: %w", err)
	}
	defer f.Close()

	n := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if strings.HasPrefix(line, ">") {
			n++
		}
		if err != nil {
			break
		}
	}
	return n, nil
}
