// Package e2e provides end-to-end tests; this file writes feed fixtures to disk.
package e2e

import (
	"os"
	"path/filepath"
)

// WriteFeedFile writes the corpus feed to dir/concepts.psv and returns the
// path. Used by tests that exercise the file-based catalog load path.
func (c *Corpus) WriteFeedFile(dir string) (string, error) {
	path := filepath.Join(dir, "concepts.psv")
	if err := os.WriteFile(path, []byte(c.ToFeed()), 0600); err != nil {
		return "", err
	}
	return path, nil
}

// MalformedFeed returns a feed with valid, short, and foreign-authority lines
// for asserting the parser's skip and reject accounting.
func MalformedFeed() string {
	return "197806|SCD|amoxicillin 500 MG Oral Capsule|RXNORM\n" +
		"bad line without delimiters\n" +
		"308136|SCD\n" +
		"999|SCD|foreign product 10 MG Oral Tablet|SNOMED\n" +
		"17767|IN|amlodipine|RXNORM\n"
}
