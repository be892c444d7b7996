package steps

import (
	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
)

// Resource classes steps are tagged with. Specs for them live under
// pipeline.resources in the configuration.
const (
	ClassSearchHighmem = "search_highmem"
	ClassMergeHighmem  = "merge_highmem"
	ClassPredictGPU    = "predict_gpu"
	ClassRelaxGPU      = "relax_gpu"
)

// Relax policies, the predict.models_to_relax configuration values.
const (
	relaxPolicyAll  = "all"
	relaxPolicyBest = "best"
)

// Multimer assembles the folding pipeline graph. The name follows the
// flagship multimer configuration; monomer presets run the same graph
// with the template and pairing branches selecting their monomer
// variants at run time.
//
// Top level:
//
//	configure_run -> create_manifest -> filter_chains
//	  -> chain_features (fan-out per chain: stage, searches, build)
//	  -> merge_features
//	  -> predict_structures (fan-out per model runner: predict, relax)
//	  -> write_ranking
//	  -> relax_best (only under the "best" relax policy)
//
// Search legs are guarded by the skip-MSA switch and template search by
// the template date cutoff; skipped legs still release their
// dependents, so a skip-MSA run builds features from bare sequences.
func Multimer(d *Deps) (*pipeline.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	chainFan := &pipeline.FanOut[domain.Chain]{
		StepName:    StepChainFeatures,
		Parallelism: d.Config.Pipeline.Parallelism,
		Items: func(rc *pipeline.RunContext) ([]domain.Chain, error) {
			if rc.RunConfig() == nil {
				return nil, errRunNotConfigured
			}
			return rc.ChainsToProcess(), nil
		},
		Build: func(c domain.Chain) (*pipeline.Graph, error) {
			return chainGraph(d, c)
		},
		Legs: []string{
			StepStageChain, StepSearchUniref90, StepSearchMgnify,
			StepSearchBFD, StepSearchTemplates, StepBuildFeatures,
		},
		Exec: d.Exec,
	}

	predictFan := &pipeline.FanOut[domain.ModelRunner]{
		StepName:    StepPredict,
		Parallelism: d.Config.Pipeline.Parallelism,
		Items: func(rc *pipeline.RunContext) ([]domain.ModelRunner, error) {
			run := rc.RunConfig()
			if run == nil {
				return nil, errRunNotConfigured
			}
			return run.ModelRunners, nil
		},
		Build: func(r domain.ModelRunner) (*pipeline.Graph, error) {
			return runnerGraph(d, r)
		},
		Legs: []string{StepPredictOne, StepRelaxOne},
		Exec: d.Exec,
	}

	g := pipeline.NewGraph()
	if err := g.Add(configureRun(d)); err != nil {
		return nil, err
	}
	if err := g.Add(createManifest(d), StepConfigureRun); err != nil {
		return nil, err
	}
	if err := g.Add(filterChains(d), StepCreateManifest); err != nil {
		return nil, err
	}
	if err := g.Add(chainFan, StepFilterChains); err != nil {
		return nil, err
	}
	if err := g.Add(mergeFeatures(d), StepChainFeatures); err != nil {
		return nil, err
	}
	if err := g.Add(predictFan, StepMergeFeatures); err != nil {
		return nil, err
	}
	if err := g.Add(writeRanking(d), StepPredict); err != nil {
		return nil, err
	}
	if err := g.AddGuarded(relaxBest(d), relaxBestGuard(d), StepWriteRanking); err != nil {
		return nil, err
	}

	for name, class := range map[string]string{
		StepChainFeatures: ClassSearchHighmem,
		StepMergeFeatures: ClassMergeHighmem,
		StepPredict:       ClassPredictGPU,
		StepRelaxBest:     ClassRelaxGPU,
	} {
		if err := g.SetResourceClass(name, class); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// chainGraph builds one chain's search-and-build sub-graph.
func chainGraph(d *Deps, c domain.Chain) (*pipeline.Graph, error) {
	g := pipeline.NewGraph()

	stage := stageChain(d, c)
	if err := g.Add(stage); err != nil {
		return nil, err
	}

	uniref := searchUniref90(d, c)
	mgnify := searchMgnify(d, c)
	bfd := searchBFD(d, c)
	for _, s := range []pipeline.Step{uniref, mgnify, bfd} {
		if err := g.AddGuarded(s, searchGuard, stage.Name()); err != nil {
			return nil, err
		}
	}

	templates := searchTemplates(d, c)
	if err := g.AddGuarded(templates, templateGuard, uniref.Name()); err != nil {
		return nil, err
	}

	build := buildFeatures(d, c)
	err := g.Add(build, uniref.Name(), mgnify.Name(), bfd.Name(), templates.Name())
	if err != nil {
		return nil, err
	}
	return g, nil
}

// runnerGraph builds one model runner's predict-and-relax sub-graph.
func runnerGraph(d *Deps, r domain.ModelRunner) (*pipeline.Graph, error) {
	g := pipeline.NewGraph()

	predict := predictOne(d, r)
	if err := g.Add(predict); err != nil {
		return nil, err
	}
	if err := g.AddGuarded(relaxOne(d, r), relaxAllGuard(d), predict.Name()); err != nil {
		return nil, err
	}
	return g, nil
}

// searchGuard skips sequence search when the run reuses existing MSAs.
func searchGuard(rc *pipeline.RunContext) bool {
	return !rc.Params.SkipMSA
}

// templateGuard additionally requires a template date cutoff; without
// one the run folds template-free.
func templateGuard(rc *pipeline.RunContext) bool {
	return !rc.Params.SkipMSA && rc.Params.MaxTemplateDate != ""
}

// relaxAllGuard relaxes every prediction in its own branch.
func relaxAllGuard(d *Deps) pipeline.Guard {
	return func(rc *pipeline.RunContext) bool {
		return rc.Params.RelaxMode == domain.RelaxEnabled &&
			d.Config.Predict.ModelsToRelax == relaxPolicyAll
	}
}

// relaxBestGuard relaxes only the ranked best prediction.
func relaxBestGuard(d *Deps) pipeline.Guard {
	return func(rc *pipeline.RunContext) bool {
		return rc.Params.RelaxMode == domain.RelaxEnabled &&
			d.Config.Predict.ModelsToRelax == relaxPolicyBest
	}
}
