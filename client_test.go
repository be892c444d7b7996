package protomer

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/steps"
)

// memConfig is a fully offline configuration: in-memory artifacts,
// in-memory ledger, no redis.
func memConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Storage.Backends = []config.BackendConfig{{Scheme: "mem", Driver: "mem"}}
	cfg.Storage.OutputPrefix = "mem://scratch/out"
	return cfg
}

func TestNew_NoConfig(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error when no configuration provided")
	}
	if !strings.Contains(err.Error(), "WithConfig") {
		t.Errorf("error = %v, want hint at config options", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := memConfig()
	cfg.Ledger.Driver = "etcd"
	if _, err := New(WithConfig(cfg)); err == nil {
		t.Fatal("expected error for unknown ledger driver")
	}
}

func TestNew_MemBackends(t *testing.T) {
	c, err := New(WithConfig(memConfig()))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping error = %v, want nil without redis", err)
	}
	if c.Runs() == nil {
		t.Error("Runs() = nil, want memory ledger")
	}
}

func TestClient_Close_Idempotent(t *testing.T) {
	c, err := New(WithConfig(memConfig()))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	c.Close()
	c.Close()
}

func TestClient_WithDefaults(t *testing.T) {
	cfg := memConfig()
	cfg.Predict.NumMultimerPredictionsPerModel = 3
	cfg.Predict.RandomSeed = 41
	c, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer c.Close()

	p := c.withDefaults(RunParams{FastaURI: "mem://scratch/in/dimer.fasta"})
	if p.Stem != "dimer" {
		t.Errorf("Stem = %q, want dimer from fasta name", p.Stem)
	}
	if p.ModelPreset != PresetMultimer {
		t.Errorf("ModelPreset = %q, want multimer", p.ModelPreset)
	}
	if p.DBPreset != DBFull {
		t.Errorf("DBPreset = %q, want full_dbs", p.DBPreset)
	}
	if p.RelaxMode != RelaxEnabled {
		t.Errorf("RelaxMode = %q, want relax", p.RelaxMode)
	}
	if p.NumPredictionsPerModel != 3 {
		t.Errorf("NumPredictionsPerModel = %d, want 3 from config", p.NumPredictionsPerModel)
	}
	if p.RandomSeed != 41 {
		t.Errorf("RandomSeed = %d, want 41 from config", p.RandomSeed)
	}
}

func TestClient_WithDefaults_ExplicitWins(t *testing.T) {
	c, err := New(WithConfig(memConfig()))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer c.Close()

	p := c.withDefaults(RunParams{
		Stem:                   "custom",
		FastaURI:               "mem://scratch/in/dimer.fasta",
		ModelPreset:            PresetMonomer,
		DBPreset:               DBReduced,
		RelaxMode:              RelaxNone,
		NumPredictionsPerModel: 2,
		RandomSeed:             7,
	})
	if p.Stem != "custom" || p.ModelPreset != PresetMonomer || p.DBPreset != DBReduced {
		t.Errorf("explicit params overridden: %+v", p)
	}
	if p.RelaxMode != RelaxNone || p.NumPredictionsPerModel != 2 || p.RandomSeed != 7 {
		t.Errorf("explicit params overridden: %+v", p)
	}
}

func TestClient_Run_RejectsInvalidParams(t *testing.T) {
	c, err := New(WithConfig(memConfig()))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer c.Close()

	_, err = c.Run(context.Background(), RunParams{Stem: "x"})
	if err == nil {
		t.Fatal("expected error for params without fasta uri")
	}
	if runs, lerr := c.Runs().ListRuns(context.Background()); lerr != nil || len(runs) != 0 {
		t.Errorf("ledger runs = %d (err %v), want none recorded", len(runs), lerr)
	}
}

func TestClient_Plan(t *testing.T) {
	cfg := memConfig()
	cfg.Pipeline.Resources = map[string]config.ResourceSpec{
		steps.ClassPredictGPU: {MachineType: "a2-highgpu-1g", AcceleratorType: "nvidia-tesla-a100", AcceleratorCount: 1},
	}
	c, err := New(WithConfig(cfg), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer c.Close()

	out, err := c.Plan(RunParams{FastaURI: "mem://scratch/in/dimer.fasta"})
	if err != nil {
		t.Fatalf("Plan error = %v", err)
	}
	for _, want := range []string{
		steps.StepConfigureRun,
		steps.StepMergeFeatures,
		steps.StepPredict,
		"fan-out",
		"a2-highgpu-1g",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestReport_FromRunContext(t *testing.T) {
	cfg := memConfig()
	rc := pipeline.NewRunContext(cfg, RunParams{}, "run-1", t.TempDir(), zap.NewNop())
	rc.SetRunConfig(&domain.RunConfig{
		Chains: []domain.Chain{
			{ID: "A", Sequence: "MKV"},
			{ID: "B", Sequence: "PQR"},
		},
		IsHomomerOrMonomer: false,
	})
	rc.RecordArtifact(steps.KeyMerged, domain.NewArtifact("mem://scratch/out/merged.pkl"))
	rc.RecordArtifact(steps.KeyRanking, domain.NewArtifact("mem://scratch/out/ranking.json"))
	rc.AddPrediction(domain.Prediction{RunnerName: "model_1_multimer_v3_pred_0", RankingConfidence: 0.4})
	rc.AddPrediction(domain.Prediction{RunnerName: "model_2_multimer_v3_pred_0", RankingConfidence: 0.9})

	rep := report(rc)
	if rep.RunID != "run-1" || rep.NumChains != 2 || rep.IsHomomerOrMonomer {
		t.Errorf("report header = %+v", rep)
	}
	if rep.Merged.URI != "mem://scratch/out/merged.pkl" {
		t.Errorf("Merged.URI = %q", rep.Merged.URI)
	}
	if rep.Ranking.URI != "mem://scratch/out/ranking.json" {
		t.Errorf("Ranking.URI = %q", rep.Ranking.URI)
	}
	best, ok := rep.Best()
	if !ok || best.RunnerName != "model_2_multimer_v3_pred_0" {
		t.Errorf("Best() = %+v, %v; want model_2 first", best, ok)
	}
}

func TestReport_Best_Empty(t *testing.T) {
	rep := &Report{}
	if _, ok := rep.Best(); ok {
		t.Error("Best() ok = true on empty report")
	}
}
