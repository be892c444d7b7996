// Package science declares the numerical feature routines the pipeline
// depends on but does not implement: monomer conversion, assembly
// annotation, cross-chain pairing and MSA padding. The pipeline treats
// them as injected pure functions over feature records; Exec bridges
// them to the protomer-sciops helper binary. Tests substitute
// in-memory fakes.
package science

import (
	"context"

	"github.com/protomerlab/protomer/internal/features"
)

// ChainFeatureBuilder derives a chain's feature record from raw search
// output files (alignments plus template hits).
type ChainFeatureBuilder interface {
	BuildChainFeatures(ctx context.Context, req BuildRequest) (features.Dict, error)
}

// BuildRequest stages the local files feature building reads.
type BuildRequest struct {
	// FastaPath holds the single-chain query.
	FastaPath string
	// MSAPaths are alignment files from sequence search, sto or a3m.
	MSAPaths []string
	// TemplateHitsPath is the template search output, empty when the
	// run skips templates.
	TemplateHitsPath string
	// MMCIFDir and ObsoletePath locate template structures.
	MMCIFDir     string
	ObsoletePath string
	// MaxTemplateDate caps template release dates, YYYY-MM-DD.
	MaxTemplateDate string
	// MaxTemplateHits caps how many templates are featurized.
	MaxTemplateHits int
	// MaxMSASequences caps the featurized alignment depth.
	MaxMSASequences int
}

// MonomerConverter reshapes single-chain features for multimer use.
type MonomerConverter interface {
	ConvertMonomerFeatures(ctx context.Context, chainID string, chain features.Dict) (features.Dict, error)
}

// AssemblyAnnotator stamps assembly-level features (chain indices,
// entity ids) onto every chain of the complex.
type AssemblyAnnotator interface {
	AddAssemblyFeatures(ctx context.Context, perChain map[string]features.Dict) (map[string]features.Dict, error)
}

// PairMerger pairs MSAs across chains and merges per-chain records
// into one assembly record.
type PairMerger interface {
	PairAndMerge(ctx context.Context, perChain map[string]features.Dict) (features.Dict, error)
}

// MSAPadder pads the merged MSA to a fixed row count so downstream
// model shapes stay static.
type MSAPadder interface {
	PadMSA(ctx context.Context, merged features.Dict, depth int) (features.Dict, error)
}

// Library bundles the routines a pipeline run needs.
type Library struct {
	Builder   ChainFeatureBuilder
	Converter MonomerConverter
	Annotator AssemblyAnnotator
	Merger    PairMerger
	Padder    MSAPadder
}
