package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/features"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/science"
	"github.com/protomerlab/protomer/internal/storage"
	"github.com/protomerlab/protomer/internal/tools"
)

const testOutputPrefix = "mem://scratch/out"

// testEnv wires the steps against an in-memory store and spy tools
// that fabricate plausible outputs.
type testEnv struct {
	deps  *Deps
	mem   *storage.Mem
	jack  *fakeSequenceSearcher
	hhb   *fakeProfileSearcher
	hmm   *fakeTemplateSearcher
	hhs   *fakeTemplateScanner
	pred  *fakePredictor
	relax *fakeRelaxer
	sci   *fakeScience
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := storage.NewMem()
	resolver := storage.NewResolver()
	resolver.Register("mem", mem)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Storage.OutputPrefix = testOutputPrefix
	cfg.Database.MountPath = "/mnt/refdata"
	cfg.Database.Uniref90 = "uniref90/uniref90.fasta"
	cfg.Database.Mgnify = "mgnify/mgy_clusters.fa"
	cfg.Database.BFD = "bfd/bfd_metaclust"
	cfg.Database.SmallBFD = "small_bfd/sequences.fasta"
	cfg.Database.Uniref30 = "uniref30/UniRef30_2021_03"
	cfg.Database.PDB70 = "pdb70/pdb70"
	cfg.Database.PDBSeqres = "pdb_seqres/pdb_seqres.txt"
	cfg.Database.PDBMMCIF = "pdb_mmcif/mmcif_files"
	cfg.Database.PDBObsolete = "pdb_mmcif/obsolete.dat"

	env := &testEnv{
		mem:   mem,
		jack:  &fakeSequenceSearcher{hits: 5},
		hhb:   &fakeProfileSearcher{hits: 7},
		hmm:   &fakeTemplateSearcher{hits: 3},
		hhs:   &fakeTemplateScanner{hits: 2},
		pred:  &fakePredictor{confidence: map[string]float64{}},
		relax: &fakeRelaxer{},
		sci:   &fakeScience{},
	}
	env.deps = &Deps{
		Config:    cfg,
		Store:     resolver,
		Science:   env.sci.Library(),
		Jackhmmer: env.jack,
		HHblits:   env.hhb,
		Hmmsearch: env.hmm,
		HHsearch:  env.hhs,
		Predictor: env.pred,
		Relaxer:   env.relax,
		Exec:      &pipeline.Executor{Logger: zap.NewNop()},
		Logger:    zap.NewNop(),
	}
	return env
}

func (e *testEnv) runContext(t *testing.T, params domain.RunParams) *pipeline.RunContext {
	t.Helper()
	return pipeline.NewRunContext(e.deps.Config, params, "run-test", t.TempDir(), zap.NewNop())
}

func multimerParams() domain.RunParams {
	return domain.RunParams{
		Stem:                   "dimer",
		FastaURI:               "mem://scratch/in/dimer.fasta",
		ModelPreset:            domain.PresetMultimer,
		DBPreset:               domain.DBFull,
		MaxTemplateDate:        "2024-01-01",
		RelaxMode:              domain.RelaxNone,
		NumPredictionsPerModel: 1,
		RandomSeed:             7,
	}
}

// seedRun populates the run context the way configure_run and
// create_manifest would, without running them.
func seedRun(rc *pipeline.RunContext, chains []domain.Chain) {
	runners, _ := domain.EnumerateRunners(rc.Params.ModelPreset, rc.Params.NumPredictionsPerModel, rc.Params.RandomSeed)
	rc.SetRunConfig(&domain.RunConfig{
		Chains:             chains,
		IsHomomerOrMonomer: domain.IsHomomerOrMonomer(chains),
		RunMultimerSystem:  rc.Params.IsMultimer(),
		NumEnsemble:        domain.NumEnsemble(rc.Params.ModelPreset),
		ModelRunners:       runners,
	})
	rc.SetManifest(domain.NewManifest(chains, func(chainID string) string {
		return testOutputPrefix + "/runs/" + rc.RunID + "/chains/" + chainID
	}))
	rc.SetChainsToProcess(chains)
}

// msaDict builds a record whose msa array has the given shape.
func msaDict(depth, width int64) features.Dict {
	return features.Dict{
		features.KeyMSA: features.NewInt32([]int64{depth, width}, make([]int32, depth*width)),
	}
}

// putChainFeatures stores an encoded record at the chain's manifest
// prefix.
func putChainFeatures(t *testing.T, env *testEnv, rc *pipeline.RunContext, chainID string, dict features.Dict) string {
	t.Helper()
	prefix, err := rc.Manifest().ChainPrefix(chainID)
	if err != nil {
		t.Fatalf("ChainPrefix(%s) error = %v", chainID, err)
	}
	uri, err := storage.Join(prefix, domain.FeaturesFileName)
	if err != nil {
		t.Fatalf("Join error = %v", err)
	}
	data, err := features.Encode(dict)
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}
	if err := env.deps.Store.Put(context.Background(), uri, data); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	return uri
}

// stoDoc fabricates a Stockholm alignment with n sequences.
func stoDoc(n int) string {
	var sb strings.Builder
	sb.WriteString("# STOCKHOLM 1.0\n\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "seq%d MKVLATGG\n", i)
	}
	sb.WriteString("//\n")
	return sb.String()
}

type searchCall struct {
	query    string
	database string
	dbPath   string
	dbPaths  []string
	out      string
}

type fakeSequenceSearcher struct {
	mu    sync.Mutex
	hits  int
	err   error
	calls []searchCall
}

func (f *fakeSequenceSearcher) Search(_ context.Context, queryFasta, database, dbPath, outSto string) (tools.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{query: queryFasta, database: database, dbPath: dbPath, out: outSto})
	f.mu.Unlock()
	if f.err != nil {
		return tools.SearchResult{}, f.err
	}
	if err := writeOut(outSto, stoDoc(f.hits)); err != nil {
		return tools.SearchResult{}, err
	}
	return tools.SearchResult{Database: database, OutputPath: outSto, Format: "sto", NumHits: f.hits}, nil
}

type fakeProfileSearcher struct {
	mu    sync.Mutex
	hits  int
	calls []searchCall
}

func (f *fakeProfileSearcher) Search(_ context.Context, queryFasta, database string, dbPaths []string, outA3M string) (tools.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{query: queryFasta, database: database, dbPaths: dbPaths, out: outA3M})
	f.mu.Unlock()
	var sb strings.Builder
	for i := 0; i < f.hits; i++ {
		fmt.Fprintf(&sb, ">seq%d\nMKVLATGG\n", i)
	}
	if err := writeOut(outA3M, sb.String()); err != nil {
		return tools.SearchResult{}, err
	}
	return tools.SearchResult{Database: database, OutputPath: outA3M, Format: "a3m", NumHits: f.hits}, nil
}

type fakeTemplateSearcher struct {
	mu    sync.Mutex
	hits  int
	calls []searchCall
}

func (f *fakeTemplateSearcher) Search(_ context.Context, msaSto, database, dbPath, outSto string) (tools.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{query: msaSto, database: database, dbPath: dbPath, out: outSto})
	f.mu.Unlock()
	if err := writeOut(outSto, stoDoc(f.hits)); err != nil {
		return tools.SearchResult{}, err
	}
	return tools.SearchResult{Database: database, OutputPath: outSto, Format: "sto", NumHits: f.hits}, nil
}

type fakeTemplateScanner struct {
	mu    sync.Mutex
	hits  int
	calls []searchCall
}

func (f *fakeTemplateScanner) Search(_ context.Context, queryA3M, database, dbPath, outHHR string) (tools.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{query: queryA3M, database: database, dbPath: dbPath, out: outHHR})
	f.mu.Unlock()
	if err := writeOut(outHHR, "No 1 template hit\n"); err != nil {
		return tools.SearchResult{}, err
	}
	return tools.SearchResult{Database: database, OutputPath: outHHR, Format: "hhr", NumHits: f.hits}, nil
}

type fakePredictor struct {
	mu         sync.Mutex
	confidence map[string]float64
	err        error
	calls      []tools.PredictRequest
}

func (f *fakePredictor) Predict(_ context.Context, req tools.PredictRequest) (tools.PredictResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	conf, ok := f.confidence[req.RunnerName]
	f.mu.Unlock()
	if f.err != nil {
		return tools.PredictResult{}, f.err
	}
	if !ok {
		conf = 0.5
	}
	res := tools.PredictResult{
		StructurePath:     filepath.Join(req.OutputDir, "unrelaxed_"+req.RunnerName+".pdb"),
		ResultPath:        filepath.Join(req.OutputDir, "result_"+req.RunnerName+".pkl"),
		RankingPath:       filepath.Join(req.OutputDir, "ranking_"+req.RunnerName+".json"),
		RankingConfidence: conf,
	}
	if err := writeOut(res.StructurePath, "ATOM "+req.RunnerName); err != nil {
		return tools.PredictResult{}, err
	}
	if err := writeOut(res.ResultPath, "result "+req.RunnerName); err != nil {
		return tools.PredictResult{}, err
	}
	return res, nil
}

type fakeRelaxer struct {
	mu    sync.Mutex
	err   error
	calls [][2]string
}

func (f *fakeRelaxer) Relax(_ context.Context, inPDB, outPDB string) error {
	f.mu.Lock()
	f.calls = append(f.calls, [2]string{inPDB, outPDB})
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(inPDB)
	if err != nil {
		return err
	}
	return writeOut(outPDB, "RELAXED "+string(data))
}

// fakeScience implements the science routines with shape-level
// arithmetic: conversion and annotation tag the record, pairing stacks
// MSA rows and padding resizes the stack to the requested depth.
type fakeScience struct {
	mu         sync.Mutex
	buildDepth int64
	built      []science.BuildRequest
	converted  []string
	annotated  bool
	pairedIn   int64
	padded     int
	err        error
}

func (f *fakeScience) Library() science.Library {
	return science.Library{Builder: f, Converter: f, Annotator: f, Merger: f, Padder: f}
}

func (f *fakeScience) BuildChainFeatures(_ context.Context, req science.BuildRequest) (features.Dict, error) {
	f.mu.Lock()
	f.built = append(f.built, req)
	depth := f.buildDepth
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if depth == 0 {
		depth = 4
	}
	return msaDict(depth, 8), nil
}

func (f *fakeScience) ConvertMonomerFeatures(_ context.Context, chainID string, chain features.Dict) (features.Dict, error) {
	f.mu.Lock()
	f.converted = append(f.converted, chainID)
	f.mu.Unlock()
	out := chain.Clone()
	out[features.KeyAuthChainID] = features.NewBytes([]byte(chainID))
	return out, nil
}

func (f *fakeScience) AddAssemblyFeatures(_ context.Context, perChain map[string]features.Dict) (map[string]features.Dict, error) {
	f.mu.Lock()
	f.annotated = true
	f.mu.Unlock()
	out := make(map[string]features.Dict, len(perChain))
	for id, d := range perChain {
		c := d.Clone()
		c[features.KeyAssemblyNumChains] = features.NewInt64([]int64{1}, []int64{int64(len(perChain))})
		out[id] = c
	}
	return out, nil
}

func (f *fakeScience) PairAndMerge(_ context.Context, perChain map[string]features.Dict) (features.Dict, error) {
	var depth, width int64
	for _, d := range perChain {
		a := d[features.KeyMSA]
		depth += a.Shape[0]
		if a.Shape[1] > width {
			width = a.Shape[1]
		}
	}
	f.mu.Lock()
	f.pairedIn = depth
	f.mu.Unlock()
	return msaDict(depth, width), nil
}

func (f *fakeScience) PadMSA(_ context.Context, merged features.Dict, depth int) (features.Dict, error) {
	f.mu.Lock()
	f.padded = depth
	f.mu.Unlock()
	return msaDict(int64(depth), merged[features.KeyMSA].Shape[1]), nil
}

func writeOut(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// mustExist fails the test when the store has no blob at uri.
func mustExist(t *testing.T, s Store, uri string) {
	t.Helper()
	ok, err := s.Exists(context.Background(), uri)
	if err != nil {
		t.Fatalf("Exists(%s) error = %v", uri, err)
	}
	if !ok {
		t.Fatalf("expected artifact at %s", uri)
	}
}
