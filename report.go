package protomer

import (
	"github.com/protomerlab/protomer/internal/domain"
)

// RunParams are the per-run inputs: the query FASTA, the model and
// database presets and the prediction knobs. Aliased from the domain
// package so callers work entirely with root-level names.
type RunParams = domain.RunParams

// ModelPreset selects the family of trained model weights.
type ModelPreset = domain.ModelPreset

// DBPreset selects the reference database tier for sequence search.
type DBPreset = domain.DBPreset

// Artifact is a stored blob plus descriptive metadata.
type Artifact = domain.Artifact

// Prediction is one ranked model output.
type Prediction = domain.Prediction

// Model presets.
const (
	PresetMonomer       = domain.PresetMonomer
	PresetMonomerCasp14 = domain.PresetMonomerCasp14
	PresetMonomerPTM    = domain.PresetMonomerPTM
	PresetMultimer      = domain.PresetMultimer
)

// Database presets.
const (
	DBFull    = domain.DBFull
	DBReduced = domain.DBReduced
)

// Relax modes.
const (
	RelaxEnabled = domain.RelaxEnabled
	RelaxNone    = domain.RelaxNone
)

// Report summarizes a finished run: the headline artifacts and every
// prediction, ranked by descending model confidence.
type Report struct {
	// RunID identifies the run's artifact tree and ledger record.
	RunID string
	// NumChains counts the input chains; IsHomomerOrMonomer is true
	// when they all share one sequence.
	NumChains          int
	IsHomomerOrMonomer bool
	// Merged is the assembly feature record all models consumed.
	Merged Artifact
	// Ranking is the ranking summary document.
	Ranking Artifact
	// Predictions are ranked best first. Best() is Predictions[0].
	Predictions []Prediction
}

// Best returns the top-ranked prediction, false when the run produced
// none.
func (r *Report) Best() (Prediction, bool) {
	if len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	return r.Predictions[0], true
}
