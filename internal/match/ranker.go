package match

import (
	"sort"
	"strings"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

// Ranker orders match results deterministically: score descending, then
// concept-type priority descending, then canonical-name length ascending,
// then concept id ascending. No tie is ever left to arbitrary order.
type Ranker struct {
	idx *catalog.Index
}

// NewRanker creates a ranker over the given catalog index.
func NewRanker(idx *catalog.Index) *Ranker {
	return &Ranker{idx: idx}
}

// Rank sorts results in place.
func (r *Ranker) Rank(results []models.MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
			return pa > pb
		}
		la, lb := r.nameLen(a.ConceptID), r.nameLen(b.ConceptID)
		if la != lb {
			return la < lb
		}
		return a.ConceptID < b.ConceptID
	})
}

func (r *Ranker) nameLen(id string) int {
	if c := r.idx.Concept(id); c != nil {
		return len(c.Name)
	}
	return 0
}

// BrandResort stably reorders results when the query names a brand, without
// altering scores: concepts whose extracted brand equals the query brand sort
// first, then concepts whose normalized name contains the brand tokens, then
// the remainder in their prior relative order.
func (r *Ranker) BrandResort(results []models.MatchResult, brand string) {
	// Concept brands are stored as normalized token joins, so the query brand
	// gets the same treatment before comparing.
	key := strings.Join(normalize.Tokens(brand), " ")
	if key == "" {
		return
	}
	band := func(id string) int {
		c := r.idx.Concept(id)
		if c == nil {
			return 2
		}
		if c.Brand == key {
			return 0
		}
		if strings.Contains(strings.Join(c.Tokens, " "), key) {
			return 1
		}
		return 2
	}
	sort.SliceStable(results, func(i, j int) bool {
		return band(results[i].ConceptID) < band(results[j].ConceptID)
	})
}
