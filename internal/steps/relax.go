package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
)

// relaxOne relaxes one runner's prediction in its fan-out branch. The
// branch runs when relaxation is on and the policy relaxes every model.
func relaxOne(d *Deps, r domain.ModelRunner) pipeline.Step {
	return step{name: StepRelaxOne + ":" + r.Name, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		return relaxPrediction(ctx, d, rc, r.Name)
	}}
}

// relaxBest relaxes only the highest-confidence prediction, after
// ranking has seen every runner finish.
func relaxBest(d *Deps) pipeline.Step {
	return step{name: StepRelaxBest, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		preds := rc.Predictions()
		if len(preds) == 0 {
			return fmt.Errorf("no predictions to relax")
		}
		return relaxPrediction(ctx, d, rc, preds[0].RunnerName)
	}}
}

// relaxPrediction stages a runner's unrelaxed structure, minimizes it
// and publishes the relaxed structure beside the prediction outputs.
func relaxPrediction(ctx context.Context, d *Deps, rc *pipeline.RunContext, runnerName string) error {
	a, ok := rc.Artifact(structureKey(runnerName))
	if !ok {
		return fmt.Errorf("runner %s structure is not recorded", runnerName)
	}

	dir := rc.Dir("relax", runnerName)
	in := filepath.Join(dir, domain.UnrelaxedFileName)
	if err := storage.Fetch(ctx, d.Store, a.URI, in); err != nil {
		return err
	}
	out := filepath.Join(dir, domain.RelaxedFileName)
	if err := d.Relaxer.Relax(ctx, in, out); err != nil {
		return fmt.Errorf("runner %s: %w", runnerName, err)
	}

	prefix, err := predictionPrefix(rc, runnerName)
	if err != nil {
		return err
	}
	uri, err := storage.Join(prefix, domain.RelaxedFileName)
	if err != nil {
		return err
	}
	if err := storage.Upload(ctx, d.Store, out, uri); err != nil {
		return err
	}

	rc.RecordArtifact(relaxedKey(runnerName), domain.NewArtifact(uri).
		WithMeta(domain.MetaCategory, domain.CategoryRelaxed).
		WithMeta(domain.MetaDataFormat, domain.FormatPDB))
	rc.SetRelaxedURI(runnerName, uri)
	return nil
}
