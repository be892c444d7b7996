package science

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/features"
	"github.com/protomerlab/protomer/internal/tools"
)

// Compile-time checks: Exec implements the full library.
var (
	_ ChainFeatureBuilder = (*Exec)(nil)
	_ MonomerConverter    = (*Exec)(nil)
	_ AssemblyAnnotator   = (*Exec)(nil)
	_ PairMerger          = (*Exec)(nil)
	_ MSAPadder           = (*Exec)(nil)
)

// Exec implements the science routines by invoking the protomer-sciops
// helper binary. Records cross the process boundary as encoded feature
// files in a scratch directory.
type Exec struct {
	runner  tools.Runner
	binary  string
	workDir string
	logger  *zap.Logger
}

// ExecConfig configures the sciops bridge. WorkDir hosts per-call
// scratch directories; empty means the system temp dir.
type ExecConfig struct {
	Binary  string
	WorkDir string
	Runner  tools.Runner
	Logger  *zap.Logger
}

// NewExec creates the sciops bridge.
func NewExec(cfg *ExecConfig) *Exec {
	return &Exec{
		runner:  cfg.Runner,
		binary:  cfg.Binary,
		workDir: cfg.WorkDir,
		logger:  cfg.Logger,
	}
}

// Library returns the bundle with every routine backed by this bridge.
func (e *Exec) Library() Library {
	return Library{
		Builder:   e,
		Converter: e,
		Annotator: e,
		Merger:    e,
		Padder:    e,
	}
}

// BuildChainFeatures runs sciops build-features over staged search
// outputs.
func (e *Exec) BuildChainFeatures(ctx context.Context, req BuildRequest) (features.Dict, error) {
	dir, err := e.scratch()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "features.pfr")
	args := []string{"build-features", "--fasta", req.FastaPath, "--out", out}
	for _, m := range req.MSAPaths {
		args = append(args, "--msa", m)
	}
	if req.MaxMSASequences > 0 {
		args = append(args, "--max-msa-seqs", strconv.Itoa(req.MaxMSASequences))
	}
	if req.TemplateHitsPath != "" {
		args = append(args,
			"--template-hits", req.TemplateHitsPath,
			"--mmcif-dir", req.MMCIFDir,
			"--obsolete-path", req.ObsoletePath,
			"--max-template-date", req.MaxTemplateDate,
			"--max-template-hits", strconv.Itoa(req.MaxTemplateHits),
		)
	}

	if err := e.run(ctx, "build-features", args); err != nil {
		return nil, err
	}
	return readRecord(out)
}

// ConvertMonomerFeatures runs sciops convert-monomer on one chain.
func (e *Exec) ConvertMonomerFeatures(ctx context.Context, chainID string, chain features.Dict) (features.Dict, error) {
	dir, err := e.scratch()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pfr")
	out := filepath.Join(dir, "out.pfr")
	if err := writeRecord(in, chain); err != nil {
		return nil, err
	}

	args := []string{"convert-monomer", "--chain-id", chainID, "--in", in, "--out", out}
	if err := e.run(ctx, "convert-monomer", args); err != nil {
		return nil, err
	}
	return readRecord(out)
}

// AddAssemblyFeatures runs sciops add-assembly over all chains at once.
func (e *Exec) AddAssemblyFeatures(ctx context.Context, perChain map[string]features.Dict) (map[string]features.Dict, error) {
	dir, err := e.scratch()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("sciops add-assembly: %w", err)
	}

	args := []string{"add-assembly", "--out-dir", outDir}
	args, err = appendChainArgs(args, dir, perChain)
	if err != nil {
		return nil, err
	}
	if err := e.run(ctx, "add-assembly", args); err != nil {
		return nil, err
	}

	out := make(map[string]features.Dict, len(perChain))
	for id := range perChain {
		rec, err := readRecord(filepath.Join(outDir, id+".pfr"))
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", id, err)
		}
		out[id] = rec
	}
	return out, nil
}

// PairAndMerge runs sciops pair-merge, producing the assembly record.
func (e *Exec) PairAndMerge(ctx context.Context, perChain map[string]features.Dict) (features.Dict, error) {
	dir, err := e.scratch()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "merged.pfr")
	args := []string{"pair-merge", "--out", out}
	args, err = appendChainArgs(args, dir, perChain)
	if err != nil {
		return nil, err
	}
	if err := e.run(ctx, "pair-merge", args); err != nil {
		return nil, err
	}
	return readRecord(out)
}

// PadMSA runs sciops pad-msa to the requested depth.
func (e *Exec) PadMSA(ctx context.Context, merged features.Dict, depth int) (features.Dict, error) {
	dir, err := e.scratch()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pfr")
	out := filepath.Join(dir, "out.pfr")
	if err := writeRecord(in, merged); err != nil {
		return nil, err
	}

	args := []string{"pad-msa", "--in", in, "--depth", strconv.Itoa(depth), "--out", out}
	if err := e.run(ctx, "pad-msa", args); err != nil {
		return nil, err
	}
	return readRecord(out)
}

func (e *Exec) run(ctx context.Context, op string, args []string) error {
	if err := e.runner.Run(ctx, tools.Command{Path: e.binary, Args: args}); err != nil {
		return fmt.Errorf("sciops %s: %w", op, err)
	}
	e.logger.Debug("sciops routine finished", zap.String("op", op))
	return nil
}

func (e *Exec) scratch() (string, error) {
	dir, err := os.MkdirTemp(e.workDir, "sciops-*")
	if err != nil {
		return "", fmt.Errorf("sciops scratch dir: %w", err)
	}
	return dir, nil
}

// appendChainArgs stages each chain record to a file and appends
// --chain id=path pairs in sorted chain order, keeping argv
// deterministic.
func appendChainArgs(args []string, dir string, perChain map[string]features.Dict) ([]string, error) {
	ids := make([]string, 0, len(perChain))
	for id := range perChain {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		path := filepath.Join(dir, "in_"+id+".pfr")
		if err := writeRecord(path, perChain[id]); err != nil {
			return nil, fmt.Errorf("chain %s: %w", id, err)
		}
		args = append(args, "--chain", id+"="+path)
	}
	return args, nil
}

func writeRecord(path string, d features.Dict) error {
	data, err := features.Encode(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func readRecord(path string) (features.Dict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return features.Decode(data)
}
