package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/features"
	logpkg "github.com/protomerlab/protomer/internal/logger"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/science"
	"github.com/protomerlab/protomer/internal/storage"
)

// buildFeatures turns one chain's search outputs into its feature
// record. Inputs come from the artifact registry, so skipped searches
// simply leave nothing to stage and the record is built from the bare
// sequence.
func buildFeatures(d *Deps, c domain.Chain) pipeline.Step {
	return step{name: StepBuildFeatures + ":" + c.ID, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		dir := filepath.Join(chainDir(rc, c.ID), "build")

		fastaArt, ok := rc.Artifact(fastaKey(c.ID))
		if !ok {
			return fmt.Errorf("chain %s fasta is not recorded", c.ID)
		}
		query := filepath.Join(dir, domain.ChainFASTAFileName)
		if err := storage.Fetch(ctx, d.Store, fastaArt.URI, query); err != nil {
			return err
		}

		req := science.BuildRequest{
			FastaPath:       query,
			MaxMSASequences: d.Config.Search.UniprotMaxHits,
		}
		for _, a := range rc.ArtifactsUnder(msaPrefix(c.ID)) {
			name, err := localName(a)
			if err != nil {
				return err
			}
			dest := filepath.Join(dir, name)
			if err := storage.Fetch(ctx, d.Store, a.URI, dest); err != nil {
				return err
			}
			req.MSAPaths = append(req.MSAPaths, dest)
		}
		if a, ok := rc.Artifact(templatesKey(c.ID)); ok {
			name, err := localName(a)
			if err != nil {
				return err
			}
			dest := filepath.Join(dir, name)
			if err := storage.Fetch(ctx, d.Store, a.URI, dest); err != nil {
				return err
			}
			req.TemplateHitsPath = dest
			req.MMCIFDir = d.Config.Database.Resolve(d.Config.Database.PDBMMCIF)
			req.ObsoletePath = d.Config.Database.Resolve(d.Config.Database.PDBObsolete)
			req.MaxTemplateDate = rc.Params.MaxTemplateDate
			req.MaxTemplateHits = d.Config.Search.MaxTemplateHits
		}

		dict, err := d.Science.Builder.BuildChainFeatures(ctx, req)
		if err != nil {
			return fmt.Errorf("chain %s: %w", c.ID, err)
		}
		data, err := features.Encode(dict)
		if err != nil {
			return fmt.Errorf("chain %s: %w", c.ID, err)
		}

		m := rc.Manifest()
		if m == nil {
			return errRunNotConfigured
		}
		prefix, err := m.ChainPrefix(c.ID)
		if err != nil {
			return err
		}
		uri, err := storage.Join(prefix, domain.FeaturesFileName)
		if err != nil {
			return err
		}
		if err := putArtifact(ctx, d.Store, uri, data); err != nil {
			return fmt.Errorf("upload chain %s features to %s: %w", c.ID, uri, err)
		}
		rc.RecordArtifact(featuresKey(c.ID), domain.NewArtifact(uri).
			WithMeta(domain.MetaCategory, domain.CategoryFeatures).
			WithMeta(domain.MetaChainInfo, c.ID).
			WithMeta(domain.MetaDataFormat, domain.FormatFeatures))

		depth, _ := dict.MSADepth()
		d.Logger.Info("chain features built",
			logpkg.Chain(c.ID),
			zap.Int("msa_files", len(req.MSAPaths)),
			zap.Int64("msa_depth", depth),
		)
		return nil
	}}
}
