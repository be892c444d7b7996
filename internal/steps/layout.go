package steps

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/metrics"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
	"github.com/protomerlab/protomer/pkg/stockholm"
)

// Step names. Per-chain and per-runner instances are suffixed with
// ":<chain>" or ":<runner>".
const (
	StepConfigureRun    = "configure_run"
	StepCreateManifest  = "create_manifest"
	StepFilterChains    = "filter_chains"
	StepChainFeatures   = "chain_features"
	StepStageChain      = "stage_chain"
	StepSearchUniref90  = "search_uniref90"
	StepSearchMgnify    = "search_mgnify"
	StepSearchBFD       = "search_bfd"
	StepSearchTemplates = "search_templates"
	StepBuildFeatures   = "build_features"
	StepMergeFeatures   = "merge_features"
	StepPredict         = "predict_structures"
	StepPredictOne      = "predict"
	StepRelaxOne        = "relax"
	StepWriteRanking    = "write_ranking"
	StepRelaxBest       = "relax_best"
)

// Database names used as artifact metadata and metrics labels.
const (
	dbUniref90    = "uniref90"
	dbMgnify      = "mgnify"
	dbSmallBFD    = "small_bfd"
	dbBFDUniref30 = "bfd_uniref30"
	dbPDBSeqres   = "pdb_seqres"
	dbPDB70       = "pdb70"
)

// Search output file names, mirroring the layout downstream feature
// stores already expect.
const (
	uniref90HitsFile  = "uniref90_hits.sto"
	uniref90A3MFile   = "uniref90_hits.a3m"
	mgnifyHitsFile    = "mgnify_hits.sto"
	smallBFDHitsFile  = "small_bfd_hits.sto"
	bfdUnirefHitsFile = "bfd_uniref_hits.a3m"
	pdbSeqresHitsFile = "pdb_hits.sto"
	pdb70HitsFile     = "pdb70_hits.hhr"
	msaSubdir         = "msas"
	fullProteinSubdir = "full_protein"
	predictionsSubdir = "predictions"
)

// errRunNotConfigured signals a step scheduled before the configure and
// manifest steps populated the run context.
var errRunNotConfigured = errors.New("run is not configured")

// Run-level artifact registry keys, exported so the client can pull
// the headline artifacts out of a finished run context.
const (
	KeyManifest = "manifest"
	KeyMerged   = "features/merged"
	KeyRanking  = "ranking"
)

func fastaKey(chainID string) string     { return "fasta/" + chainID }
func msaKey(chainID, db string) string   { return "msa/" + chainID + "/" + db }
func msaPrefix(chainID string) string    { return "msa/" + chainID + "/" }
func templatesKey(chainID string) string { return "templates/" + chainID }
func featuresKey(chainID string) string  { return "features/" + chainID }
func structureKey(runner string) string  { return "model/" + runner + "/structure" }
func resultKey(runner string) string     { return "model/" + runner + "/result" }
func relaxedKey(runner string) string    { return "relaxed/" + runner }

// runPrefix is the store prefix all of a run's artifacts live under.
func runPrefix(rc *pipeline.RunContext) (string, error) {
	return storage.Join(rc.Config.Storage.OutputPrefix, "runs", rc.RunID)
}

// chainStorePrefix is the default prefix for one chain's artifacts. The
// manifest records it, so later steps resolve chains through the
// manifest rather than recomputing it.
func chainStorePrefix(rc *pipeline.RunContext, chainID string) (string, error) {
	return storage.Join(rc.Config.Storage.OutputPrefix, "runs", rc.RunID, "chains", chainID)
}

// predictionPrefix is the store prefix for one model runner's outputs.
func predictionPrefix(rc *pipeline.RunContext, runnerName string) (string, error) {
	prefix, err := runPrefix(rc)
	if err != nil {
		return "", err
	}
	return storage.Join(prefix, predictionsSubdir, runnerName)
}

// chainDir is the local scratch directory for one chain.
func chainDir(rc *pipeline.RunContext, chainID string) string {
	return rc.Dir("chains", chainID)
}

// putArtifact writes in-memory artifact bytes to the store and counts
// them, matching what storage.Upload records for file uploads.
func putArtifact(ctx context.Context, s Store, uri string, data []byte) error {
	if err := s.Put(ctx, uri, data); err != nil {
		return err
	}
	metrics.ArtifactBytes.WithLabelValues("put").Add(float64(len(data)))
	return nil
}

// truncateStockholm rewrites the alignment at path keeping at most max
// sequences, returning how many remain. max <= 0 leaves the file as is.
func truncateStockholm(path string, max int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	n, err := stockholm.Truncate(bytes.NewReader(data), &buf, max)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, err
	}
	return n, nil
}

// stockholmToA3M converts the alignment at src into an A3M file at dest.
func stockholmToA3M(src, dest string) (int, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	n, err := stockholm.ToA3M(bytes.NewReader(data), &buf, 0)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return 0, err
	}
	return n, nil
}

// localName returns the artifact's file name for use as a local staging
// path component.
func localName(a domain.Artifact) (string, error) {
	u, err := storage.Parse(a.URI)
	if err != nil {
		return "", err
	}
	return u.Base(), nil
}
