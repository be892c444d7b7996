package steps

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/domain"
	logpkg "github.com/protomerlab/protomer/internal/logger"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
)

// configureRun fetches the query FASTA, parses it into chains and
// resolves the run plan: homomer detection, model system, ensemble
// count and the model runners to fan out. Each chain is also written
// back to the store as a single-entry FASTA so the search fan-out can
// stage it per branch.
func configureRun(d *Deps) pipeline.Step {
	return step{name: StepConfigureRun, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		data, err := d.Store.Get(ctx, rc.Params.FastaURI)
		if err != nil {
			return fmt.Errorf("fetch query fasta %s: %w", rc.Params.FastaURI, err)
		}
		chains, err := domain.ChainsFromFASTA(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if !rc.Params.IsMultimer() && len(chains) > 1 {
			return fmt.Errorf("model preset %q folds a single chain, input has %d",
				rc.Params.ModelPreset, len(chains))
		}

		runners, err := domain.EnumerateRunners(rc.Params.ModelPreset,
			rc.Params.NumPredictionsPerModel, rc.Params.RandomSeed)
		if err != nil {
			return err
		}

		for _, c := range chains {
			doc, err := c.FASTA()
			if err != nil {
				return fmt.Errorf("chain %s: %w", c.ID, err)
			}
			prefix, err := chainStorePrefix(rc, c.ID)
			if err != nil {
				return err
			}
			uri, err := storage.Join(prefix, domain.ChainFASTAFileName)
			if err != nil {
				return err
			}
			if err := putArtifact(ctx, d.Store, uri, doc); err != nil {
				return fmt.Errorf("upload chain %s fasta to %s: %w", c.ID, uri, err)
			}
			rc.RecordArtifact(fastaKey(c.ID), domain.NewArtifact(uri).
				WithMeta(domain.MetaChainInfo, c.ID).
				WithMeta(domain.MetaDataFormat, domain.FormatFASTA))
		}

		run := &domain.RunConfig{
			Chains:             chains,
			IsHomomerOrMonomer: domain.IsHomomerOrMonomer(chains),
			RunMultimerSystem:  rc.Params.IsMultimer(),
			NumEnsemble:        domain.NumEnsemble(rc.Params.ModelPreset),
			ModelRunners:       runners,
		}
		rc.SetRunConfig(run)

		d.Logger.Info("run configured",
			logpkg.Run(rc.RunID),
			zap.Int("chains", len(chains)),
			zap.Bool("is_homomer_or_monomer", run.IsHomomerOrMonomer),
			zap.Bool("multimer_system", run.RunMultimerSystem),
			zap.Int("model_runners", len(runners)),
		)
		return nil
	}}
}

// createManifest records where each chain's features will live and
// persists the mapping, the contract between this run and any later
// run reusing its per-chain features.
func createManifest(d *Deps) pipeline.Step {
	return step{name: StepCreateManifest, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		run := rc.RunConfig()
		if run == nil {
			return errRunNotConfigured
		}
		prefix, err := runPrefix(rc)
		if err != nil {
			return err
		}

		m := domain.NewManifest(run.Chains, func(chainID string) string {
			return prefix + "/chains/" + chainID
		})
		m.FullProtein = prefix + "/" + fullProteinSubdir

		data, err := m.Encode()
		if err != nil {
			return err
		}
		uri, err := storage.Join(prefix, domain.ManifestFileName)
		if err != nil {
			return err
		}
		if err := putArtifact(ctx, d.Store, uri, data); err != nil {
			return fmt.Errorf("upload manifest to %s: %w", uri, err)
		}

		rc.SetManifest(m)
		rc.RecordArtifact(KeyManifest, domain.NewArtifact(uri).
			WithMeta(domain.MetaDataFormat, domain.FormatJSON))

		d.Logger.Info("manifest created",
			zap.String("uri", uri),
			zap.Int("chains", m.NumChains()),
		)
		return nil
	}}
}

// filterChains drops chains whose features already exist in the store,
// so re-running a partially finished target only searches what is
// missing.
func filterChains(d *Deps) pipeline.Step {
	return step{name: StepFilterChains, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		run := rc.RunConfig()
		m := rc.Manifest()
		if run == nil || m == nil {
			return errRunNotConfigured
		}

		pending := make([]domain.Chain, 0, len(run.Chains))
		for _, c := range run.Chains {
			prefix, err := m.ChainPrefix(c.ID)
			if err != nil {
				return err
			}
			uri, err := storage.Join(prefix, domain.FeaturesFileName)
			if err != nil {
				return err
			}
			ok, err := d.Store.Exists(ctx, uri)
			if err != nil {
				return fmt.Errorf("check chain %s features: %w", c.ID, err)
			}
			if ok {
				d.Logger.Info("chain features are precomputed",
					logpkg.Chain(c.ID),
					zap.String("uri", uri),
				)
				rc.RecordArtifact(featuresKey(c.ID), domain.NewArtifact(uri).
					WithMeta(domain.MetaCategory, domain.CategoryFeatures).
					WithMeta(domain.MetaChainInfo, c.ID).
					WithMeta(domain.MetaDataFormat, domain.FormatFeatures))
				continue
			}
			pending = append(pending, c)
		}
		rc.SetChainsToProcess(pending)

		d.Logger.Info("chains filtered",
			zap.Int("pending", len(pending)),
			zap.Int("total", len(run.Chains)),
		)
		return nil
	}}
}
