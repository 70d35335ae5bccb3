// Package cli renders rxmatch results for terminal consumption.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rxbridge/rxmatch/internal/models"
)

// OutputFormat is the format for CLI result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one result per line, field-separated.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteResolution writes a resolution to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteResolution(w io.Writer, res *models.Resolution, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case OutputCompact:
		writeResolutionCompact(w, res)
		return nil
	default:
		writeResolutionText(w, res)
		return nil
	}
}

func writeResolutionText(w io.Writer, res *models.Resolution) {
	fmt.Fprintf(w, "\nQuery: %s\n\n", res.Query)
	if res.Generic == nil && res.Branded == nil {
		fmt.Fprintln(w, "No concept resolved.")
	}
	if res.Generic != nil {
		writeOneConcept(w, "Generic", res.Generic)
	}
	if res.Branded != nil {
		writeOneConcept(w, "Branded", res.Branded)
	}
	if len(res.AttemptsLog) > 0 {
		fmt.Fprintln(w, "\nAttempts:")
		for _, a := range res.AttemptsLog {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
	fmt.Fprintln(w)
}

func writeOneConcept(w io.Writer, side string, c *models.ResolvedConcept) {
	flag := ""
	if c.BelowThreshold {
		flag = " (below threshold)"
	}
	fmt.Fprintf(w, "%s: %s [%s]\n", side, c.Name, c.Type)
	fmt.Fprintf(w, "  ID: %s | Assurity: %.1f | Status: %s%s\n", c.ConceptID, c.Assurity, c.Status, flag)
}

func writeResolutionCompact(w io.Writer, res *models.Resolution) {
	if res.Generic != nil {
		writeCompactLine(w, "generic", res.Generic)
	}
	if res.Branded != nil {
		writeCompactLine(w, "branded", res.Branded)
	}
}

func writeCompactLine(w io.Writer, side string, c *models.ResolvedConcept) {
	fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\n", side, c.ConceptID, c.Assurity, c.Status, c.Name)
}

// Candidate is one ranked match for candidate listing output. Field names
// mirror the /api/v1/match response.
type Candidate struct {
	ConceptID string             `json:"concept_id"`
	Name      string             `json:"name"`
	Type      models.ConceptType `json:"type"`
	Score     float64            `json:"score"`
}

// CandidateList is the match subcommand's result set.
type CandidateList struct {
	Query      string      `json:"query"`
	Count      int         `json:"count"`
	Candidates []Candidate `json:"candidates"`
}

// WriteCandidates writes a ranked candidate list to w in the given format.
func WriteCandidates(w io.Writer, list *CandidateList, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case OutputCompact:
		for _, c := range list.Candidates {
			fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", c.ConceptID, c.Score, c.Type, c.Name)
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d candidate(s) for %q\n\n", list.Count, list.Query)
		for i, c := range list.Candidates {
			fmt.Fprintf(w, "%2d. %s [%s]\n    ID: %s | Score: %.3f\n", i+1, c.Name, c.Type, c.ConceptID, c.Score)
		}
		fmt.Fprintln(w)
		return nil
	}
}
