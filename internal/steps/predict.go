package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
	"github.com/protomerlab/protomer/internal/tools"
)

// predictOne runs one model runner: stage the merged features, infer,
// publish the unrelaxed structure and raw result, and collect the
// prediction for ranking.
func predictOne(d *Deps, r domain.ModelRunner) pipeline.Step {
	return step{name: StepPredictOne + ":" + r.Name, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		run := rc.RunConfig()
		if run == nil {
			return errRunNotConfigured
		}
		merged, ok := rc.Artifact(KeyMerged)
		if !ok {
			return fmt.Errorf("merged features are not recorded")
		}

		dir := rc.Dir("predict", r.Name)
		featPath := rc.Dir("predict", r.Name, domain.MergedFeaturesFileName)
		if err := storage.Fetch(ctx, d.Store, merged.URI, featPath); err != nil {
			return err
		}

		res, err := d.Predictor.Predict(ctx, tools.PredictRequest{
			FeaturesPath: featPath,
			Model:        r.Model,
			RunnerName:   r.Name,
			Seed:         r.Seed,
			NumEnsemble:  run.NumEnsemble,
			Multimer:     run.RunMultimerSystem,
			OutputDir:    dir,
		})
		if err != nil {
			return err
		}

		prefix, err := predictionPrefix(rc, r.Name)
		if err != nil {
			return err
		}
		structURI, err := storage.Join(prefix, domain.UnrelaxedFileName)
		if err != nil {
			return err
		}
		resultURI, err := storage.Join(prefix, domain.RawPredictionFileName)
		if err != nil {
			return err
		}
		if err := storage.Upload(ctx, d.Store, res.StructurePath, structURI); err != nil {
			return err
		}
		if err := storage.Upload(ctx, d.Store, res.ResultPath, resultURI); err != nil {
			return err
		}

		idx := strconv.Itoa(r.PredictionIndex)
		conf := strconv.FormatFloat(res.RankingConfidence, 'g', -1, 64)
		rc.RecordArtifact(structureKey(r.Name), domain.NewArtifact(structURI).
			WithMeta(domain.MetaCategory, domain.CategoryModel).
			WithMeta(domain.MetaModelName, r.Model).
			WithMeta(domain.MetaPredictionIndex, idx).
			WithMeta(domain.MetaDataFormat, domain.FormatPDB))
		rc.RecordArtifact(resultKey(r.Name), domain.NewArtifact(resultURI).
			WithMeta(domain.MetaCategory, domain.CategoryModel).
			WithMeta(domain.MetaModelName, r.Model).
			WithMeta(domain.MetaPredictionIndex, idx).
			WithMeta(domain.MetaRankingConfidence, conf).
			WithMeta(domain.MetaDataFormat, domain.FormatFeatures))

		rc.AddPrediction(domain.Prediction{
			RunnerName:        r.Name,
			Model:             r.Model,
			PredictionIndex:   r.PredictionIndex,
			Seed:              r.Seed,
			RankingConfidence: res.RankingConfidence,
			StructureURI:      structURI,
			ResultURI:         resultURI,
		})
		return nil
	}}
}
