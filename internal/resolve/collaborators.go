package resolve

import (
	"context"

	"github.com/rxbridge/rxmatch/internal/models"
)

// AttributeNormalizer extracts structured attributes from free-text input.
// Implementations may call an external service; the pipeline degrades to
// text-only matching when extraction fails.
type AttributeNormalizer interface {
	NormalizeAttributes(ctx context.Context, rawText string) (*models.StructuredAttributes, error)
}

// ValidityStatus is what a validity collaborator reports about one concept.
type ValidityStatus struct {
	// Active is true when the concept is current and unsuppressed in the
	// authoritative vocabulary.
	Active bool `json:"active"`
	// Type is the authoritative concept type, when known.
	Type models.ConceptType `json:"type"`
	// Name is the authoritative preferred name, when known.
	Name string `json:"name,omitempty"`
}

// ValidityChecker confirms a candidate concept against an authoritative
// source. Errors and timeouts leave the candidate unverified rather than
// failing the resolution.
type ValidityChecker interface {
	CheckValidity(ctx context.Context, conceptID string) (*ValidityStatus, error)
}

// SynonymExpander produces alternative phrasings for a query whose literal
// form recalled too few candidates.
type SynonymExpander interface {
	Expand(ctx context.Context, attrs *models.StructuredAttributes) ([]string, error)
}
