// Package catalog loads vocabulary concepts and builds the immutable index
// used for candidate recall and scoring.
package catalog

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/models"
)

// DefaultAuthority is the canonical vocabulary authority. Records from other
// authorities are rejected at load time.
const DefaultAuthority = "RXNORM"

// SourceRecord is one raw catalog feed record.
type SourceRecord struct {
	ConceptID string
	Type      models.ConceptType
	Name      string
	Authority string
}

// FeedStats summarizes a feed parse. Malformed and foreign-authority records
// are counted, never fatal.
type FeedStats struct {
	Lines    int
	Loaded   int
	Skipped  int
	Rejected int
}

// ParseFeed reads a pipe-delimited concept feed:
//
//	concept_id|concept_type|canonical_name|authority
//
// Records from authorities other than authority are rejected; malformed or
// short records are skipped without failing the load. logger may be nil.
func ParseFeed(r io.Reader, authority string, logger *zap.Logger) ([]SourceRecord, FeedStats, error) {
	if authority == "" {
		authority = DefaultAuthority
	}
	var (
		records []SourceRecord
		stats   FeedStats
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++

		fields := strings.Split(line, "|")
		if len(fields) < 4 {
			stats.Skipped++
			if logger != nil {
				logger.Debug("catalog feed: short record skipped", zap.Int("line", stats.Lines))
			}
			continue
		}
		rec := SourceRecord{
			ConceptID: strings.TrimSpace(fields[0]),
			Type:      models.ParseConceptType(fields[1]),
			Name:      strings.TrimSpace(fields[2]),
			Authority: strings.TrimSpace(fields[3]),
		}
		if rec.ConceptID == "" || rec.Name == "" {
			stats.Skipped++
			if logger != nil {
				logger.Debug("catalog feed: malformed record skipped", zap.Int("line", stats.Lines))
			}
			continue
		}
		if !strings.EqualFold(rec.Authority, authority) {
			stats.Rejected++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	stats.Loaded = len(records)
	if logger != nil {
		logger.Info("catalog feed parsed",
			zap.Int("lines", stats.Lines),
			zap.Int("loaded", stats.Loaded),
			zap.Int("skipped", stats.Skipped),
			zap.Int("rejected", stats.Rejected),
		)
	}
	return records, stats, nil
}
