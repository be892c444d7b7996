package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ModelPreset selects the family of trained model weights.
type ModelPreset string

// Model presets.
const (
	PresetMonomer       ModelPreset = "monomer"
	PresetMonomerCasp14 ModelPreset = "monomer_casp14"
	PresetMonomerPTM    ModelPreset = "monomer_ptm"
	PresetMultimer      ModelPreset = "multimer"
)

// DBPreset selects the reference database tier for sequence search.
type DBPreset string

// Database presets. Reduced swaps BFD+UniRef30 for small BFD.
const (
	DBFull    DBPreset = "full_dbs"
	DBReduced DBPreset = "reduced_dbs"
)

// Relax modes for RunParams.RelaxMode.
const (
	RelaxEnabled = "relax"
	RelaxNone    = "none"
)

// modelNames lists the weight sets each preset enumerates.
var modelNames = map[ModelPreset][]string{
	PresetMonomer:       {"model_1", "model_2", "model_3", "model_4", "model_5"},
	PresetMonomerCasp14: {"model_1", "model_2", "model_3", "model_4", "model_5"},
	PresetMonomerPTM:    {"model_1_ptm", "model_2_ptm", "model_3_ptm", "model_4_ptm", "model_5_ptm"},
	PresetMultimer:      {"model_1_multimer_v3", "model_2_multimer_v3", "model_3_multimer_v3", "model_4_multimer_v3", "model_5_multimer_v3"},
}

// RunParams are the per-run inputs, fixed at configure time. Everything
// environmental (tool paths, databases, storage) lives in config.
type RunParams struct {
	// Stem names the run; by convention the FASTA file name without
	// extension.
	Stem string
	// FastaURI locates the query FASTA with one entry per chain.
	FastaURI string
	// ModelPreset and DBPreset select weights and reference databases.
	ModelPreset ModelPreset
	DBPreset    DBPreset
	// MaxTemplateDate caps template search, YYYY-MM-DD.
	MaxTemplateDate string
	// SkipMSA reuses per-chain features already present in the store
	// instead of running sequence search.
	SkipMSA bool
	// RelaxMode controls whether predicted structures are relaxed.
	RelaxMode string
	// NumPredictionsPerModel fans each multimer model out into this
	// many seeded predictions.
	NumPredictionsPerModel int
	// RandomSeed is the base seed; runner seeds are derived from it.
	RandomSeed int64
}

// Validate rejects parameter combinations the pipeline cannot run.
func (p *RunParams) Validate() error {
	if p.Stem == "" {
		return fmt.Errorf("run stem is required")
	}
	if p.FastaURI == "" {
		return fmt.Errorf("fasta uri is required")
	}
	if _, ok := modelNames[p.ModelPreset]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModelPreset, p.ModelPreset)
	}
	switch p.DBPreset {
	case DBFull, DBReduced:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDBPreset, p.DBPreset)
	}
	switch p.RelaxMode {
	case RelaxEnabled, RelaxNone:
	default:
		return fmt.Errorf("relax mode must be %q or %q, got %q", RelaxEnabled, RelaxNone, p.RelaxMode)
	}
	if p.NumPredictionsPerModel < 1 {
		return fmt.Errorf("num predictions per model must be positive, got %d", p.NumPredictionsPerModel)
	}
	return nil
}

// IsMultimer reports whether the run folds a multi-chain assembly.
func (p *RunParams) IsMultimer() bool {
	return p.ModelPreset == PresetMultimer
}

// ModelRunner is one prediction task: a weight set plus a seeded
// prediction index. Runners fan out in parallel during prediction.
type ModelRunner struct {
	// Name is unique within the run, model plus prediction index.
	Name string
	// Model names the weight set.
	Model string
	// PredictionIndex orders predictions of the same model.
	PredictionIndex int
	// Seed feeds the model's sampler.
	Seed int64
}

// NumEnsemble returns how many times the predictor evaluates each model
// before averaging. CASP14 settings use 8 passes; everything else 1.
func NumEnsemble(preset ModelPreset) int {
	if preset == PresetMonomerCasp14 {
		return 8
	}
	return 1
}

// NewRunID derives the run identifier: the stem, a UTC timestamp and a
// short digest of the parameters, so re-submitting the same inputs in
// the same second still yields distinct artifact trees only when the
// parameters differ.
func NewRunID(p RunParams, now time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%t|%s|%d|%d",
		p.Stem, p.FastaURI, p.ModelPreset, p.DBPreset, p.MaxTemplateDate,
		p.SkipMSA, p.RelaxMode, p.NumPredictionsPerModel, p.RandomSeed,
	)
	digest := hex.EncodeToString(h.Sum(nil))[:8]
	return fmt.Sprintf("%s-%s-%s", p.Stem, now.UTC().Format("20060102-150405"), digest)
}

// RunConfig is the resolved plan for one run, produced by the configure
// step from the parameters and the parsed FASTA input.
type RunConfig struct {
	// Chains are the parsed input chains, IDs assigned in file order.
	Chains []Chain
	// IsHomomerOrMonomer is true when every chain shares one sequence.
	IsHomomerOrMonomer bool
	// RunMultimerSystem selects the multimer model system.
	RunMultimerSystem bool
	// NumEnsemble is forwarded to the predictor.
	NumEnsemble int
	// ModelRunners are the prediction tasks to fan out.
	ModelRunners []ModelRunner
}

// Prediction is the outcome of one model runner, collected for ranking.
type Prediction struct {
	RunnerName        string  `json:"runner_name"`
	Model             string  `json:"model"`
	PredictionIndex   int     `json:"prediction_index"`
	Seed              int64   `json:"seed"`
	RankingConfidence float64 `json:"ranking_confidence"`
	StructureURI      string  `json:"structure_uri"`
	ResultURI         string  `json:"result_uri"`
	RelaxedURI        string  `json:"relaxed_uri,omitempty"`
}

// EnumerateRunners expands a preset into its model runners. Multimer
// presets produce numPredictions runners per model; monomer presets one
// per model. Seeds are assigned as baseSeed plus the runner's position
// so a fixed base seed reproduces the same predictions.
func EnumerateRunners(preset ModelPreset, numPredictions int, baseSeed int64) ([]ModelRunner, error) {
	models, ok := modelNames[preset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelPreset, preset)
	}
	perModel := 1
	if preset == PresetMultimer && numPredictions > 1 {
		perModel = numPredictions
	}

	runners := make([]ModelRunner, 0, len(models)*perModel)
	for _, model := range models {
		for i := 0; i < perModel; i++ {
			runners = append(runners, ModelRunner{
				Name:            fmt.Sprintf("%s_pred_%d", model, i),
				Model:           model,
				PredictionIndex: i,
				Seed:            baseSeed + int64(len(runners)),
			})
		}
	}
	return runners, nil
}
