package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rxbridge/rxmatch/internal/models"
)

func sampleResolution() *models.Resolution {
	return &models.Resolution{
		ID:    "res-1",
		Query: "amlodipine 10 mg tablet",
		Generic: &models.ResolvedConcept{
			ConceptID: "308136",
			Name:      "amlodipine 10 MG Oral Tablet",
			Type:      models.ConceptTypeClinicalDrug,
			Assurity:  100,
			Status:    models.MatchStatusExact,
		},
		Branded: &models.ResolvedConcept{
			ConceptID:      "212549",
			Name:           "amlodipine 10 MG Oral Tablet [Norvasc]",
			Type:           models.ConceptTypeBrandedDrug,
			Assurity:       62.5,
			Status:         models.MatchStatusBrandEquivalent,
			BelowThreshold: true,
		},
		AttemptsLog: []string{"exact: matched amlodipine 10 MG Oral Tablet (308136)"},
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, valid := range []string{"text", "compact", "json"} {
		if _, err := ParseOutputFormat(valid); err != nil {
			t.Errorf("ParseOutputFormat(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("ParseOutputFormat(yaml) should fail")
	}
}

func TestWriteResolutionText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResolution(&buf, sampleResolution(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Query: amlodipine 10 mg tablet",
		"Generic: amlodipine 10 MG Oral Tablet [clinical_drug]",
		"ID: 308136 | Assurity: 100.0 | Status: exact",
		"(below threshold)",
		"Attempts:",
		"exact: matched",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResolutionTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	res := &models.Resolution{Query: "unknown thing", AttemptsLog: []string{"no candidates"}}
	if err := WriteResolution(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No concept resolved.") {
		t.Errorf("empty resolution output = %q", buf.String())
	}
}

func TestWriteResolutionCompact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResolution(&buf, sampleResolution(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("compact output lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "generic\t308136\t100.0\texact") {
		t.Errorf("compact generic line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "branded\t212549\t62.5\tbrand_equivalent") {
		t.Errorf("compact branded line = %q", lines[1])
	}
}

func TestWriteResolutionJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResolution(&buf, sampleResolution(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var got models.Resolution
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("JSON output not parseable: %v", err)
	}
	if got.Generic == nil || got.Generic.ConceptID != "308136" {
		t.Errorf("round-trip generic = %+v", got.Generic)
	}
	if got.Branded == nil || got.Branded.Status != models.MatchStatusBrandEquivalent {
		t.Errorf("round-trip branded = %+v", got.Branded)
	}
}

func TestWriteCandidates(t *testing.T) {
	list := &CandidateList{
		Query: "amoxicillin 500 mg",
		Count: 2,
		Candidates: []Candidate{
			{ConceptID: "197806", Name: "amoxicillin 500 MG Oral Capsule", Type: models.ConceptTypeClinicalDrug, Score: 0.912},
			{ConceptID: "723", Name: "amoxicillin", Type: models.ConceptTypeIngredient, Score: 0.404},
		},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteCandidates(&buf, list, OutputText); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "Found 2 candidate(s)") || !strings.Contains(out, "Score: 0.912") {
			t.Errorf("text output = %q", out)
		}
	})

	t.Run("compact", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteCandidates(&buf, list, OutputCompact); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "197806\t0.912") {
			t.Errorf("compact output = %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteCandidates(&buf, list, OutputJSON); err != nil {
			t.Fatal(err)
		}
		var got CandidateList
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Count != 2 || len(got.Candidates) != 2 {
			t.Errorf("round-trip = %+v", got)
		}
	})
}
