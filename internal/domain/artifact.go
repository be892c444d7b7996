package domain

// Artifact file names within a run prefix. The .pkl names are kept for
// drop-in compatibility with existing feature stores; the payload is
// the features binary encoding, treated as opaque bytes by storage.
const (
	ManifestFileName       = "manifest.json"
	ChainFASTAFileName     = "chain.fasta"
	FeaturesFileName       = "features.pkl"
	MergedFeaturesFileName = "all_chain_features.pkl"
	RankingFileName        = "ranking_debug.json"
	UnrelaxedFileName      = "unrelaxed_protein.pdb"
	RawPredictionFileName  = "raw_prediction.pkl"
	RelaxedFileName        = "relaxed_protein.pdb"
)

// Metadata keys recorded on artifacts and mirrored into the run ledger.
const (
	MetaChainInfo          = "chain_info"
	MetaDataFormat         = "data_format"
	MetaCategory           = "category"
	MetaDatabase           = "database"
	MetaNumHits            = "num_hits"
	MetaIsHomomerOrMonomer = "is_homomer_or_monomer"
	MetaNumChains          = "num_chains"
	MetaPredictionIndex    = "prediction_index"
	MetaRankingConfidence  = "ranking_confidence"
	MetaModelName          = "model_name"
)

// MetaDataFormat values.
const (
	FormatFeatures = "pkl"
	FormatFASTA    = "fasta"
	FormatSto      = "sto"
	FormatA3M      = "a3m"
	FormatHHR      = "hhr"
	FormatPDB      = "pdb"
	FormatJSON     = "json"
)

// MetaCategory values.
const (
	CategoryMSA       = "msa"
	CategoryTemplates = "templates"
	CategoryFeatures  = "features"
	CategoryModel     = "model"
	CategoryRelaxed   = "relaxed_protein"
)

// Artifact is a stored blob plus descriptive metadata.
type Artifact struct {
	URI      string
	Metadata map[string]string
}

// NewArtifact creates an artifact handle with an empty metadata map.
func NewArtifact(uri string) Artifact {
	return Artifact{URI: uri, Metadata: make(map[string]string)}
}

// WithMeta sets a metadata key and returns the artifact for chaining.
func (a Artifact) WithMeta(key, value string) Artifact {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string)
	}
	a.Metadata[key] = value
	return a
}
