package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
	"github.com/protomerlab/protomer/internal/tools"
)

// stageChain fetches one chain's FASTA into the local scratch tree,
// where the search tools read it.
func stageChain(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepStageChain + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		a, ok := rc.Artifact(fastaKey(c.ID))
		if !ok {
			return fmt.Errorf("chain %s fasta is not recorded", c.ID)
		}
		dest := filepath.Join(chainDir(rc, c.ID), domain.ChainFASTAFileName)
		return storage.Fetch(ctx, d.Store, a.URI, dest)
	}}
}

// searchUniref90 runs jackhmmer against UniRef90 and keeps at most the
// configured number of alignments. Later template search reuses the
// truncated alignment as its query profile.
func searchUniref90(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepSearchUniref90 + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		dir := chainDir(rc, c.ID)
		db := d.Config.Database
		res, err := d.Jackhmmer.Search(ctx,
			filepath.Join(dir, domain.ChainFASTAFileName),
			dbUniref90, db.Resolve(db.Uniref90),
			filepath.Join(dir, uniref90HitsFile),
		)
		if err != nil {
			return err
		}
		res.NumHits, err = truncateStockholm(res.OutputPath, d.Config.Search.Uniref90MaxHits)
		if err != nil {
			return fmt.Errorf("truncate %s alignment: %w", res.Database, err)
		}
		return uploadSearchResult(ctx, d, rc, c.ID, msaKey(c.ID, res.Database), domain.CategoryMSA, res)
	}}
}

// searchMgnify runs jackhmmer against MGnify, capped the same way.
func searchMgnify(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepSearchMgnify + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		dir := chainDir(rc, c.ID)
		db := d.Config.Database
		res, err := d.Jackhmmer.Search(ctx,
			filepath.Join(dir, domain.ChainFASTAFileName),
			dbMgnify, db.Resolve(db.Mgnify),
			filepath.Join(dir, mgnifyHitsFile),
		)
		if err != nil {
			return err
		}
		res.NumHits, err = truncateStockholm(res.OutputPath, d.Config.Search.MgnifyMaxHits)
		if err != nil {
			return fmt.Errorf("truncate %s alignment: %w", res.Database, err)
		}
		return uploadSearchResult(ctx, d, rc, c.ID, msaKey(c.ID, res.Database), domain.CategoryMSA, res)
	}}
}

// searchBFD picks the deep-search tier by database preset: reduced runs
// jackhmmer over small BFD, full runs hhblits over BFD plus UniRef30.
func searchBFD(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepSearchBFD + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		dir := chainDir(rc, c.ID)
		query := filepath.Join(dir, domain.ChainFASTAFileName)
		db := d.Config.Database

		var res tools.SearchResult
		var err error
		if rc.Params.DBPreset == domain.DBReduced {
			res, err = d.Jackhmmer.Search(ctx, query,
				dbSmallBFD, db.Resolve(db.SmallBFD),
				filepath.Join(dir, smallBFDHitsFile),
			)
		} else {
			res, err = d.HHblits.Search(ctx, query,
				dbBFDUniref30,
				[]string{db.Resolve(db.BFD), db.Resolve(db.Uniref30)},
				filepath.Join(dir, bfdUnirefHitsFile),
			)
		}
		if err != nil {
			return err
		}
		return uploadSearchResult(ctx, d, rc, c.ID, msaKey(c.ID, res.Database), domain.CategoryMSA, res)
	}}
}

// searchTemplates finds structural templates. The multimer system scans
// the UniRef90 alignment against PDB seqres with hmmsearch; monomer
// systems convert it to A3M and scan PDB70 with hhsearch.
func searchTemplates(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepSearchTemplates + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		dir := chainDir(rc, c.ID)
		uniref := filepath.Join(dir, uniref90HitsFile)
		db := d.Config.Database

		var res tools.SearchResult
		var err error
		if rc.Params.IsMultimer() {
			res, err = d.Hmmsearch.Search(ctx, uniref,
				dbPDBSeqres, db.Resolve(db.PDBSeqres),
				filepath.Join(dir, pdbSeqresHitsFile),
			)
		} else {
			a3m := filepath.Join(dir, uniref90A3MFile)
			if _, cerr := stockholmToA3M(uniref, a3m); cerr != nil {
				return fmt.Errorf("convert uniref90 alignment: %w", cerr)
			}
			res, err = d.HHsearch.Search(ctx, a3m,
				dbPDB70, db.Resolve(db.PDB70),
				filepath.Join(dir, pdb70HitsFile),
			)
		}
		if err != nil {
			return err
		}
		return uploadSearchResult(ctx, d, rc, c.ID, templatesKey(c.ID), domain.CategoryTemplates, res)
	}}
}

// uploadSearchResult publishes one search output under the chain's
// manifest prefix and records it in the artifact registry.
func uploadSearchResult(ctx context.Context, d *Deps, rc *pipeline.RunContext, chainID, key, category string, res tools.SearchResult) error {
	m := rc.Manifest()
	if m == nil {
		return errRunNotConfigured
	}
	prefix, err := m.ChainPrefix(chainID)
	if err != nil {
		return err
	}
	uri, err := storage.Join(prefix, msaSubdir, filepath.Base(res.OutputPath))
	if err != nil {
		return err
	}
	if err := storage.Upload(ctx, d.Store, res.OutputPath, uri); err != nil {
		return err
	}
	rc.RecordArtifact(key, domain.NewArtifact(uri).
		WithMeta(domain.MetaCategory, category).
		WithMeta(domain.MetaChainInfo, chainID).
		WithMeta(domain.MetaDatabase, res.Database).
		WithMeta(domain.MetaDataFormat, res.Format).
		WithMeta(domain.MetaNumHits, strconv.Itoa(res.NumHits)))
	return nil
}
