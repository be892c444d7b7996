package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/pipeline"
	"github.com/protomerlab/protomer/internal/storage"
)

// rankingDoc is the ranking summary persisted beside the predictions.
type rankingDoc struct {
	RankingConfidence map[string]float64 `json:"ranking_confidence"`
	Order             []string           `json:"order"`
}

// writeRanking publishes the run's ranking: every runner's confidence
// plus the descending order downstream consumers pick the best model
// from.
func writeRanking(d *Deps) pipeline.Step {
	return step{name: StepWriteRanking, run: func(ctx context.Context, rc *pipeline.RunContext) error {
		preds := rc.Predictions()
		if len(preds) == 0 {
			return fmt.Errorf("no predictions to rank")
		}

		doc := rankingDoc{
			RankingConfidence: make(map[string]float64, len(preds)),
			Order:             make([]string, 0, len(preds)),
		}
		for _, p := range preds {
			doc.RankingConfidence[p.RunnerName] = p.RankingConfidence
			doc.Order = append(doc.Order, p.RunnerName)
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode ranking: %w", err)
		}

		prefix, err := runPrefix(rc)
		if err != nil {
			return err
		}
		uri, err := storage.Join(prefix, domain.RankingFileName)
		if err != nil {
			return err
		}
		if err := putArtifact(ctx, d.Store, uri, data); err != nil {
			return fmt.Errorf("upload ranking to %s: %w", uri, err)
		}
		rc.RecordArtifact(KeyRanking, domain.NewArtifact(uri).
			WithMeta(domain.MetaCategory, domain.CategoryModel).
			WithMeta(domain.MetaDataFormat, domain.FormatJSON))

		d.Logger.Info("predictions ranked",
			zap.String("best", preds[0].RunnerName),
			zap.Float64("ranking_confidence", preds[0].RankingConfidence),
		)
		return nil
	}}
}
