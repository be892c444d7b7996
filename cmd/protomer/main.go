// Command protomer folds protein targets from the command line: run the
// full pipeline, print its execution plan, or inspect recorded runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/cheggaaa/pb/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/protomerlab/protomer"
	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/ledger"
	logpkg "github.com/protomerlab/protomer/internal/logger"
	"github.com/protomerlab/protomer/internal/server"
	"github.com/protomerlab/protomer/internal/version"
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "configuration file (default: search the standard locations)",
	EnvVars: []string{"PROTOMER_CONFIG"},
}

// paramFlags mirror RunParams; run and plan share them.
var paramFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "fasta",
		Usage:    "URI of the query FASTA, one entry per chain",
		EnvVars:  []string{"PROTOMER_FASTA"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "stem",
		Usage:   "run name (default: FASTA file name without extension)",
		EnvVars: []string{"PROTOMER_STEM"},
	},
	&cli.StringFlag{
		Name:    "model-preset",
		Usage:   "weight family: monomer, monomer_casp14, monomer_ptm or multimer",
		EnvVars: []string{"PROTOMER_MODEL_PRESET"},
		Value:   string(protomer.PresetMultimer),
	},
	&cli.StringFlag{
		Name:    "db-preset",
		Usage:   "reference database tier: full_dbs or reduced_dbs",
		EnvVars: []string{"PROTOMER_DB_PRESET"},
		Value:   string(protomer.DBFull),
	},
	&cli.StringFlag{
		Name:    "max-template-date",
		Usage:   "cap template search at this date, YYYY-MM-DD",
		EnvVars: []string{"PROTOMER_MAX_TEMPLATE_DATE"},
	},
	&cli.BoolFlag{
		Name:    "skip-msa",
		Usage:   "reuse per-chain features already in the store instead of searching",
		EnvVars: []string{"PROTOMER_SKIP_MSA"},
	},
	&cli.BoolFlag{
		Name:    "relax",
		Usage:   "relax predicted structures",
		EnvVars: []string{"PROTOMER_RELAX"},
		Value:   true,
	},
	&cli.IntFlag{
		Name:    "num-predictions",
		Usage:   "seeded predictions per multimer model (default: from config)",
		EnvVars: []string{"PROTOMER_NUM_PREDICTIONS"},
	},
	&cli.Int64Flag{
		Name:    "seed",
		Usage:   "base random seed (default: from config)",
		EnvVars: []string{"PROTOMER_SEED"},
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "fold a target: sequence search, feature merge, prediction, relaxation",
	Flags: append(paramFlags,
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "download the ranking and ranked structures into this directory",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress the download progress bar",
		},
	),
	Action: runAction,
}

var planCmd = &cli.Command{
	Name:   "plan",
	Usage:  "print the execution plan without running anything",
	Flags:  paramFlags,
	Action: planAction,
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "show recorded runs and their step events",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "run",
			Usage: "run id; lists all runs when omitted",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "emit JSON instead of a table",
		},
	},
	Action: statusAction,
}

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "print version information",
	Action: func(cctx *cli.Context) error {
		fmt.Fprintf(cctx.App.Writer, "protomer %s\n", version.String())
		return nil
	},
}

func main() {
	app := &cli.App{
		Name:    "protomer",
		Usage:   "multi-chain protein structure prediction pipeline",
		Version: version.Version,
		Flags:   []cli.Flag{flagConfig},
		Commands: []*cli.Command{
			runCmd,
			planCmd,
			statusCmd,
			versionCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func runAction(cctx *cli.Context) error {
	client, cfg, logger, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HTTP.Enabled {
		stopServer := startStatusServer(ctx, client, logger, cfg.HTTP)
		defer stopServer()
	}

	report, err := client.Run(ctx, runParams(cctx))
	if err != nil {
		return err
	}

	if out := cctx.String("out"); out != "" {
		if err := download(ctx, client, report, out, cctx.Bool("quiet"), cctx.App.Writer); err != nil {
			return err
		}
	}
	return printReport(cctx.App.Writer, report)
}

func planAction(cctx *cli.Context) error {
	client, _, logger, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { _ = logger.Sync() }()

	plan, err := client.Plan(runParams(cctx))
	if err != nil {
		return err
	}
	fmt.Fprint(cctx.App.Writer, plan)
	return nil
}

func statusAction(cctx *cli.Context) error {
	client, _, logger, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { _ = logger.Sync() }()

	ctx := cctx.Context
	w := cctx.App.Writer

	if runID := cctx.String("run"); runID != "" {
		run, events, err := client.Runs().GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if cctx.Bool("json") {
			return json.NewEncoder(w).Encode(struct {
				ledger.Run
				Steps []ledger.StepEvent `json:"steps"`
			}{run, events})
		}
		fmt.Fprintf(w, "run %s: %s", run.ID, run.Status)
		if run.Error != "" {
			fmt.Fprintf(w, " (%s)", run.Error)
		}
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		for _, ev := range events {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", ev.Name, ev.Status, ev.Detail)
		}
		return tw.Flush()
	}

	runs, err := client.Runs().ListRuns(ctx)
	if err != nil {
		return err
	}
	if cctx.Bool("json") {
		return json.NewEncoder(w).Encode(runs)
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tPRESET\tUPDATED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			run.ID, run.Status, run.ModelPreset, run.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// newClient loads configuration, builds the logger it names and wires
// the pipeline client every subcommand shares.
func newClient(cctx *cli.Context) (*protomer.Client, *config.Config, *zap.Logger, error) {
	path, err := config.FindPath(cctx.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logpkg.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("protomer starting",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("config", path),
	)
	client, err := protomer.New(protomer.WithConfig(cfg), protomer.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return client, cfg, logger, nil
}

func runParams(cctx *cli.Context) protomer.RunParams {
	relax := protomer.RelaxEnabled
	if !cctx.Bool("relax") {
		relax = protomer.RelaxNone
	}
	return protomer.RunParams{
		Stem:                   cctx.String("stem"),
		FastaURI:               cctx.String("fasta"),
		ModelPreset:            protomer.ModelPreset(cctx.String("model-preset")),
		DBPreset:               protomer.DBPreset(cctx.String("db-preset")),
		MaxTemplateDate:        cctx.String("max-template-date"),
		SkipMSA:                cctx.Bool("skip-msa"),
		RelaxMode:              relax,
		NumPredictionsPerModel: cctx.Int("num-predictions"),
		RandomSeed:             cctx.Int64("seed"),
	}
}

// startStatusServer exposes /healthz, /metrics and the run ledger while
// the pipeline executes. The returned stop function shuts the server
// down and waits for it to exit.
func startStatusServer(ctx context.Context, client *protomer.Client, logger *zap.Logger, cfg config.HTTPConfig) func() {
	srv := server.New(client.Runs(), logger).WithCheck("storage", client)
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, cfg); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

const downloadBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }}`

// download fetches the ranking document and every ranked structure into
// dir. Structures are written ranked_0.pdb, ranked_1.pdb, ... best
// first; relaxed structures win over unrelaxed when both exist.
func download(ctx context.Context, client *protomer.Client, rep *protomer.Report, dir string, quiet bool, w io.Writer) error {
	type item struct{ uri, dest string }
	items := make([]item, 0, len(rep.Predictions)+1)
	if rep.Ranking.URI != "" {
		items = append(items, item{rep.Ranking.URI, filepath.Join(dir, "ranking_debug.json")})
	}
	for i, p := range rep.Predictions {
		items = append(items, item{bestStructure(p), filepath.Join(dir, fmt.Sprintf("ranked_%d.pdb", i))})
	}

	var bar *pb.ProgressBar
	if !quiet {
		bar = downloadBar.New(len(items))
		bar.SetWriter(w)
		bar.Set("prefix", fmt.Sprintf("Downloading to %s:", dir))
		bar.Start()
		defer bar.Finish()
	}
	for _, it := range items {
		if err := client.Fetch(ctx, it.uri, it.dest); err != nil {
			return err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}

// printReport writes a one-screen summary of a finished run.
func printReport(w io.Writer, rep *protomer.Report) error {
	unit := "chains"
	if rep.NumChains == 1 {
		unit = "chain"
	}
	fmt.Fprintf(w, "run %s finished: %d %s, %d predictions\n",
		rep.RunID, rep.NumChains, unit, len(rep.Predictions))
	if rep.Ranking.URI != "" {
		fmt.Fprintf(w, "ranking: %s\n", rep.Ranking.URI)
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	for i, p := range rep.Predictions {
		fmt.Fprintf(tw, "  %d\t%s\t%.4f\t%s\n", i, p.RunnerName, p.RankingConfidence, bestStructure(p))
	}
	return tw.Flush()
}

func bestStructure(p protomer.Prediction) string {
	if p.RelaxedURI != "" {
		return p.RelaxedURI
	}
	return p.StructureURI
}
