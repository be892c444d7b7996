package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/features"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
)

// mergeFeatures combines per-chain feature records into the one record
// prediction consumes. Every chain's record is fetched through the
// manifest and converted to the multimer format; assembly features are
// stamped across the set; then a true single-chain target passes its
// record through unchanged while everything else is paired, merged and
// padded to the configured MSA depth. Any missing chain aborts the
// whole merge.
func mergeFeatures(d *Deps) pipeline.Step {
	return step{name: StepMergeFeatures, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		run := rc.RunConfig()
		m := rc.Manifest()
		if run == nil || m == nil {
			return errRunNotConfigured
		}

		perChain := make(map[string]features.Dict, len(run.Chains))
		for _, c := range run.Chains {
			prefix, err := m.ChainPrefix(c.ID)
			if err != nil {
				return err
			}
			uri, err := storage.Join(prefix, domain.FeaturesFileName)
			if err != nil {
				return err
			}
			data, err := d.Store.Get(ctx, uri)
			if err != nil {
				return fmt.Errorf("chain %s features at %s: %w", c.ID, uri, err)
			}
			dict, err := features.Decode(data)
			if err != nil {
				return fmt.Errorf("chain %s features at %s: %w", c.ID, uri, err)
			}
			converted, err := d.Science.Converter.ConvertMonomerFeatures(ctx, c.ID, dict)
			if err != nil {
				return fmt.Errorf("convert chain %s: %w", c.ID, err)
			}
			perChain[c.ID] = converted
		}

		annotated, err := d.Science.Annotator.AddAssemblyFeatures(ctx, perChain)
		if err != nil {
			return fmt.Errorf("assembly features: %w", err)
		}

		var merged features.Dict
		if run.IsHomomerOrMonomer && len(annotated) == 1 {
			// A single distinct chain needs no pairing; its record is
			// already the assembly record.
			for _, dict := range annotated {
				merged = dict
			}
		} else {
			merged, err = d.Science.Merger.PairAndMerge(ctx, annotated)
			if err != nil {
				return fmt.Errorf("pair and merge: %w", err)
			}
			merged, err = d.Science.Padder.PadMSA(ctx, merged, d.Config.Pipeline.MSADepthPadding)
			if err != nil {
				return fmt.Errorf("pad msa: %w", err)
			}
		}

		data, err := features.Encode(merged)
		if err != nil {
			return err
		}

		dest, err := mergedDestination(rc, m)
		if err != nil {
			return err
		}
		if err := putArtifact(ctx, d.Store, dest, data); err != nil {
			return fmt.Errorf("write merged features to %s: %w", dest, err)
		}

		homomer := strconv.FormatBool(run.IsHomomerOrMonomer)
		rc.RecordArtifact(KeyMerged, domain.NewArtifact(dest).
			WithMeta(domain.MetaCategory, domain.CategoryFeatures).
			WithMeta(domain.MetaDataFormat, domain.FormatFeatures).
			WithMeta(domain.MetaChainInfo, strings.Join(m.ChainIDs(), ",")).
			WithMeta(domain.MetaIsHomomerOrMonomer, homomer).
			WithMeta(domain.MetaNumChains, strconv.Itoa(m.NumChains())))

		d.Logger.Info("chain features merged",
			zap.String("uri", dest),
			zap.Int("num_chains", m.NumChains()),
			zap.Bool("is_homomer_or_monomer", run.IsHomomerOrMonomer),
		)
		return nil
	}}
}

// mergedDestination picks the merged record's home: the manifest's
// full_protein prefix when set, the run prefix otherwise.
func mergedDestination(rc *pipeline.RunContext, m *domain.Manifest) (string, error) {
	if m.FullProtein != "" {
		return storage.Join(m.FullProtein, domain.MergedFeaturesFileName)
	}
	prefix, err := runPrefix(rc)
	if err != nil {
		return "", err
	}
	return storage.Join(prefix, domain.MergedFeaturesFileName)
}
