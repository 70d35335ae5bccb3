package match

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rxbridge/rxmatch/internal/models"
)

// ScoreCandidates scores the candidate ids against the query, fanning out
// across at most parallelism goroutines. Candidates are independent during
// scoring; results are merged positionally so the output order (and therefore
// downstream ranking) never depends on goroutine scheduling. Zero-score
// candidates are dropped.
func (s *Scorer) ScoreCandidates(
	ctx context.Context,
	q models.NormalizedText,
	ids []string,
	routeHint models.Route,
	drugWords []string,
	parallelism int,
) []models.MatchResult {
	if parallelism < 1 {
		parallelism = 1
	}

	scored := make([]models.MatchResult, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			c := s.idx.Concept(id)
			if c == nil {
				return nil
			}
			scored[i] = models.MatchResult{
				ConceptID: id,
				Score:     s.Score(q, c, routeHint, drugWords),
				Type:      c.Type,
			}
			return nil
		})
	}
	_ = g.Wait() // scoring goroutines never return errors

	results := make([]models.MatchResult, 0, len(scored))
	for _, r := range scored {
		if r.ConceptID != "" && r.Score > 0 {
			results = append(results, r)
		}
	}
	return results
}
