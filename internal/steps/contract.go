// Package steps implements the folding pipeline's steps: run
// configuration, per-chain sequence and template search, feature
// building, cross-chain merging, structure prediction and relaxation.
// Steps exchange data through the artifact store and the run context;
// external tools are reached through the narrow interfaces declared
// here so tests can substitute fakes.
package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/science"
	"github.com/protomerlab/protomer/internal/tools"
)

// Store is the artifact store face the steps use. storage.Resolver
// satisfies it.
type Store interface {
	Get(ctx context.Context, uri string) ([]byte, error)
	Put(ctx context.Context, uri string, data []byte) error
	Exists(ctx context.Context, uri string) (bool, error)
}

// SequenceSearcher searches a query sequence against a FASTA database,
// writing a Stockholm alignment. tools.Jackhmmer satisfies it.
type SequenceSearcher interface {
	Search(ctx context.Context, queryFasta, database, dbPath, outSto string) (tools.SearchResult, error)
}

// ProfileSearcher searches a query against profile HMM databases,
// writing an A3M alignment. tools.HHblits satisfies it.
type ProfileSearcher interface {
	Search(ctx context.Context, queryFasta, database string, dbPaths []string, outA3M string) (tools.SearchResult, error)
}

// TemplateSearcher scans a query MSA profile against a sequence
// database for template hits. tools.Hmmsearch satisfies it.
type TemplateSearcher interface {
	Search(ctx context.Context, msaSto, database, dbPath, outSto string) (tools.SearchResult, error)
}

// TemplateScanner scans a query A3M against a structure profile
// database. tools.HHsearch satisfies it.
type TemplateScanner interface {
	Search(ctx context.Context, queryA3M, database, dbPath, outHHR string) (tools.SearchResult, error)
}

// StructurePredictor runs model inference over merged features.
// tools.Predictor satisfies it.
type StructurePredictor interface {
	Predict(ctx context.Context, req tools.PredictRequest) (tools.PredictResult, error)
}

// StructureRelaxer minimizes a predicted structure. tools.Relaxer
// satisfies it.
type StructureRelaxer interface {
	Relax(ctx context.Context, inPDB, outPDB string) error
}

// Deps gathers everything the pipeline steps call out to.
type Deps struct {
	Config    *config.Config
	Store     Store
	Science   science.Library
	Jackhmmer SequenceSearcher
	HHblits   ProfileSearcher
	Hmmsearch TemplateSearcher
	HHsearch  TemplateScanner
	Predictor StructurePredictor
	Relaxer   StructureRelaxer

	// Exec runs the fan-out sub-graphs.
	Exec   *pipeline.Executor
	Logger *zap.Logger
}

// Validate rejects a dependency set that cannot run the pipeline.
func (d *Deps) Validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("steps: config is required")
	case d.Store == nil:
		return fmt.Errorf("steps: store is required")
	case d.Science.Builder == nil || d.Science.Converter == nil ||
		d.Science.Annotator == nil || d.Science.Merger == nil || d.Science.Padder == nil:
		return fmt.Errorf("steps: science library is incomplete")
	case d.Jackhmmer == nil || d.HHblits == nil || d.Hmmsearch == nil || d.HHsearch == nil:
		return fmt.Errorf("steps: search tools are required")
	case d.Predictor == nil:
		return fmt.Errorf("steps: predictor is required")
	case d.Relaxer == nil:
		return fmt.Errorf("steps: relaxer is required")
	case d.Exec == nil:
		return fmt.Errorf("steps: executor is required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return nil
}

// step adapts a named closure to pipeline.Step.
type step struct {
	name string
	run  func(ctx context.Context, rc *pipeline.RunContext) error
}

// Compile-time check: step implements pipeline.Step.
var _ pipeline.Step = step{}

func (s step) Name() string { return s.name }

func (s step) Run(ctx context.Context, rc *pipeline.RunContext) error {
	return s.run(ctx, rc)
}
