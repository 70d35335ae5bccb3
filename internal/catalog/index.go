package catalog

import (
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

// Posting is one inverted-index entry: a concept id and the term frequency of
// the token in that concept's name.
type Posting struct {
	ID string
	TF int
}

// Index owns all loaded concepts plus the token postings, numeric-key
// postings, and per-token inverse document frequencies. Built once per catalog
// snapshot and read-only thereafter; concurrent queries share one instance
// without locking. Rebuilding requires a fresh instance.
type Index struct {
	concepts map[string]*models.Concept
	ids      []string
	byName   map[string]string
	postings map[string][]Posting
	numeric  map[string][]string
	idf      map[string]float64
}

// BuildOption configures Build.
type BuildOption func(*builder)

type builder struct {
	logger *zap.Logger
}

// WithLogger sets a logger for build diagnostics.
func WithLogger(l *zap.Logger) BuildOption {
	return func(b *builder) { b.logger = l }
}

// Build constructs an Index from source records. Per record it normalizes the
// name, infers route and form from fixed keyword rules, extracts a bracketed
// brand and the ingredient drug words, and indexes tokens and numeric keys.
// Records deduplicate by normalized canonical string; when two records share a
// concept id, a branded or clinical drug-level record supersedes any weaker
// type. Building is O(total tokens).
func Build(records []SourceRecord, opts ...BuildOption) *Index {
	var b builder
	for _, opt := range opts {
		opt(&b)
	}

	idx := &Index{
		concepts: make(map[string]*models.Concept, len(records)),
		byName:   make(map[string]string, len(records)),
		postings: make(map[string][]Posting),
		numeric:  make(map[string][]string),
		idf:      make(map[string]float64),
	}

	for _, rec := range records {
		c := newConcept(rec)
		key := strings.Join(c.Tokens, " ")
		if prevID, dup := idx.byName[key]; dup && prevID != c.ID {
			continue
		}
		if prev, ok := idx.concepts[c.ID]; ok {
			// Drug-level records win id collisions.
			if !supersedes(c.Type, prev.Type) {
				continue
			}
			idx.removeConcept(prev)
		} else {
			idx.ids = append(idx.ids, c.ID)
		}
		idx.concepts[c.ID] = c
		idx.byName[key] = c.ID
		idx.addPostings(c)
	}

	sort.Strings(idx.ids)
	idx.computeIDF()

	if b.logger != nil {
		b.logger.Info("catalog index built",
			zap.Int("concepts", len(idx.ids)),
			zap.Int("tokens", len(idx.postings)),
			zap.Int("numeric_keys", len(idx.numeric)),
		)
	}
	return idx
}

func newConcept(rec SourceRecord) *models.Concept {
	nt := normalize.Normalize(rec.Name)
	form, route := inferRouteForm(rec.Name)
	return &models.Concept{
		ID:          rec.ConceptID,
		Name:        rec.Name,
		Type:        rec.Type,
		Route:       route,
		Form:        form,
		Brand:       extractBrand(rec.Name),
		Ingredients: extractDrugWords(rec.Name),
		Tokens:      nt.Tokens,
		Numeric:     nt.Numeric,
		DrugWords:   extractDrugWords(rec.Name),
	}
}

// supersedes reports whether a record of type next replaces one of type prev
// under the same concept id.
func supersedes(next, prev models.ConceptType) bool {
	if next.IsDrugLevel() && !prev.IsDrugLevel() {
		return true
	}
	return next.Priority() > prev.Priority()
}

func (idx *Index) addPostings(c *models.Concept) {
	tf := make(map[string]int, len(c.Tokens))
	for _, t := range c.Tokens {
		tf[t]++
	}
	for _, t := range c.Tokens {
		if tf[t] == 0 {
			continue
		}
		idx.postings[t] = append(idx.postings[t], Posting{ID: c.ID, TF: tf[t]})
		tf[t] = 0
	}
	for _, f := range c.Numeric {
		key := normalize.FeatureKey(f)
		idx.numeric[key] = append(idx.numeric[key], c.ID)
	}
}

func (idx *Index) removeConcept(c *models.Concept) {
	key := strings.Join(c.Tokens, " ")
	if idx.byName[key] == c.ID {
		delete(idx.byName, key)
	}
	for _, t := range c.Tokens {
		idx.postings[t] = removeID(idx.postings[t], c.ID)
		if len(idx.postings[t]) == 0 {
			delete(idx.postings, t)
		}
	}
	for _, f := range c.Numeric {
		k := normalize.FeatureKey(f)
		idx.numeric[k] = removeStr(idx.numeric[k], c.ID)
		if len(idx.numeric[k]) == 0 {
			delete(idx.numeric, k)
		}
	}
}

func removeID(ps []Posting, id string) []Posting {
	out := ps[:0]
	for _, p := range ps {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func removeStr(ss []string, id string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

// computeIDF fills idf with ln((N+1)/(df+1)) + 1 per token.
func (idx *Index) computeIDF() {
	n := float64(len(idx.ids))
	for tok, ps := range idx.postings {
		idx.idf[tok] = math.Log((n+1)/(float64(len(ps))+1)) + 1
	}
}

// Len returns the number of concepts in the index.
func (idx *Index) Len() int { return len(idx.ids) }

// IDs returns all concept ids in ascending order. The caller must not mutate
// the returned slice.
func (idx *Index) IDs() []string { return idx.ids }

// Concept returns the concept with the given id, or nil.
func (idx *Index) Concept(id string) *models.Concept { return idx.concepts[id] }

// IDF returns the inverse document frequency of a token. Tokens absent from
// the catalog get the maximum weight, ln(N+1)+1.
func (idx *Index) IDF(token string) float64 {
	if w, ok := idx.idf[token]; ok {
		return w
	}
	return math.Log(float64(len(idx.ids))+1) + 1
}

// Postings returns the postings list for a token.
func (idx *Index) Postings(token string) []Posting { return idx.postings[token] }

// ExactByName returns the concept whose normalized name equals the normalized
// query exactly, or nil.
func (idx *Index) ExactByName(q models.NormalizedText) *models.Concept {
	if id, ok := idx.byName[strings.Join(q.Tokens, " ")]; ok {
		return idx.concepts[id]
	}
	return nil
}

// Recall returns the union of token postings and numeric-key postings for the
// query, as ascending concept ids. An empty result means no candidates, not an
// error.
func (idx *Index) Recall(q models.NormalizedText) []string {
	seen := make(map[string]bool)
	for _, t := range q.Tokens {
		for _, p := range idx.postings[t] {
			seen[p.ID] = true
		}
	}
	for _, f := range q.Numeric {
		for _, id := range idx.numeric[normalize.FeatureKey(f)] {
			seen[id] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Provider holds the current catalog snapshot and swaps it atomically on
// rebuild. Queries read a consistent immutable Index.
type Provider struct {
	mu  sync.RWMutex
	idx *Index
}

// NewProvider creates a provider holding idx.
func NewProvider(idx *Index) *Provider {
	return &Provider{idx: idx}
}

// Get returns the current index snapshot.
func (p *Provider) Get() *Index {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idx
}

// Swap replaces the current index with a freshly built one.
func (p *Provider) Swap(idx *Index) {
	p.mu.Lock()
	p.idx = idx
	p.mu.Unlock()
}
