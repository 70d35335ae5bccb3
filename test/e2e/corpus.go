// Package e2e exercises the full resolution stack over a generated catalog.
package e2e

import (
	"fmt"
	"strings"
)

// SeedConcept is one generated catalog feed entry.
type SeedConcept struct {
	ID   string
	TTY  string
	Name string
}

// QueryTestCase defines a query and the concept ID(s) that must appear in the
// resolution. At least one of ExpectedIDs must be the generic or branded side.
type QueryTestCase struct {
	Query       string
	ExpectedIDs []string
	Description string
}

// Corpus holds generated concepts and query test cases for end-to-end tests.
type Corpus struct {
	Concepts      []SeedConcept
	TestCases     []QueryTestCase
	TotalConcepts int
	TotalQueries  int
}

// drugSeeds generate the catalog: one ingredient concept per seed, one
// clinical drug per strength, and one branded drug per strength when the seed
// carries a brand.
var drugSeeds = []struct {
	ingredient string
	brand      string
	strengths  []string
	form       string
}{
	{"lisinopril", "Zestril", []string{"10 MG", "20 MG"}, "Oral Tablet"},
	{"metformin", "Glucophage", []string{"500 MG", "850 MG", "1000 MG"}, "Oral Tablet"},
	{"atorvastatin", "Lipitor", []string{"10 MG", "20 MG", "40 MG"}, "Oral Tablet"},
	{"amlodipine", "Norvasc", []string{"5 MG", "10 MG"}, "Oral Tablet"},
	{"sertraline", "Zoloft", []string{"50 MG", "100 MG"}, "Oral Tablet"},
	{"omeprazole", "Prilosec", []string{"20 MG", "40 MG"}, "Oral Capsule"},
	{"levothyroxine", "Synthroid", []string{"0.05 MG", "0.1 MG"}, "Oral Tablet"},
	{"albuterol", "Ventolin", []string{"0.83 MG/ML"}, "Inhalation Solution"},
	{"gabapentin", "Neurontin", []string{"100 MG", "300 MG"}, "Oral Capsule"},
	{"losartan", "Cozaar", []string{"25 MG", "50 MG", "100 MG"}, "Oral Tablet"},
	{"hydrochlorothiazide", "", []string{"12.5 MG", "25 MG"}, "Oral Tablet"},
	{"simvastatin", "Zocor", []string{"10 MG", "20 MG", "40 MG"}, "Oral Tablet"},
	{"montelukast", "Singulair", []string{"10 MG"}, "Oral Tablet"},
	{"fluoxetine", "Prozac", []string{"10 MG", "20 MG"}, "Oral Capsule"},
	{"prednisone", "", []string{"5 MG", "10 MG", "20 MG"}, "Oral Tablet"},
	{"amoxicillin", "", []string{"250 MG", "500 MG"}, "Oral Capsule"},
	{"azithromycin", "Zithromax", []string{"250 MG", "500 MG"}, "Oral Tablet"},
	{"ibuprofen", "Advil", []string{"200 MG", "400 MG", "600 MG"}, "Oral Tablet"},
	{"acetaminophen", "Tylenol", []string{"325 MG", "500 MG"}, "Oral Tablet"},
	{"warfarin", "Coumadin", []string{"1 MG", "2 MG", "5 MG"}, "Oral Tablet"},
}

// BuildCorpus returns a deterministic catalog of roughly a hundred concepts
// plus query test cases. Every branded drug has a generic counterpart with the
// same strength and form so counterpart resolution can be asserted.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	nextID := 100000
	id := func() string {
		nextID++
		return fmt.Sprintf("%d", nextID)
	}

	for _, seed := range drugSeeds {
		inID := id()
		c.Concepts = append(c.Concepts, SeedConcept{ID: inID, TTY: "IN", Name: seed.ingredient})

		var firstSCD, firstSBD string
		for i, strength := range seed.strengths {
			scdID := id()
			c.Concepts = append(c.Concepts, SeedConcept{
				ID:   scdID,
				TTY:  "SCD",
				Name: fmt.Sprintf("%s %s %s", seed.ingredient, strength, seed.form),
			})
			if i == 0 {
				firstSCD = scdID
			}
			if seed.brand != "" {
				sbdID := id()
				c.Concepts = append(c.Concepts, SeedConcept{
					ID:   sbdID,
					TTY:  "SBD",
					Name: fmt.Sprintf("%s %s %s [%s]", seed.ingredient, strength, seed.form, seed.brand),
				})
				if i == 0 {
					firstSBD = sbdID
				}
			}
		}

		formWord := lastWord(seed.form)
		strengthLower := strings.ToLower(seed.strengths[0])
		c.TestCases = append(c.TestCases, QueryTestCase{
			Query:       fmt.Sprintf("%s %s %s", seed.ingredient, strengthLower, formWord),
			ExpectedIDs: []string{firstSCD},
			Description: fmt.Sprintf("generic %s by ingredient and strength", seed.ingredient),
		})
		if seed.brand != "" {
			c.TestCases = append(c.TestCases, QueryTestCase{
				Query:       fmt.Sprintf("%s %s", strings.ToLower(seed.brand), strengthLower),
				ExpectedIDs: []string{firstSBD},
				Description: fmt.Sprintf("branded %s by brand name", seed.brand),
			})
		}
		c.TestCases = append(c.TestCases, QueryTestCase{
			Query:       seed.ingredient,
			ExpectedIDs: []string{inID},
			Description: fmt.Sprintf("bare ingredient %s", seed.ingredient),
		})
	}

	c.TotalConcepts = len(c.Concepts)
	c.TotalQueries = len(c.TestCases)
	return c
}

// ToFeed renders the corpus as a pipe-delimited concept feed.
func (c *Corpus) ToFeed() string {
	var b strings.Builder
	for _, sc := range c.Concepts {
		fmt.Fprintf(&b, "%s|%s|%s|RXNORM\n", sc.ID, sc.TTY, sc.Name)
	}
	return b.String()
}

func lastWord(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
