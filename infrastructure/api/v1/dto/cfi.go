package dto

import (
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/infrastructure/sanitize"
)

// CompareRequest is the body of POST /api/v1/cfi/compare.
type CompareRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// IdentifierInfo describes one compared identifier.
type IdentifierInfo struct {
	CFI     string `json:"cfi"`
	Valid   bool   `json:"valid"`
	Section string `json:"section,omitempty"`
	IsPoint bool   `json:"is_point"`
}

// CompareResponse relates two identifiers.
type CompareResponse struct {
	A           IdentifierInfo `json:"a"`
	B           IdentifierInfo `json:"b"`
	SameSection bool           `json:"same_section"`
	Overlaps    bool           `json:"overlaps"`
	AContainsB  bool           `json:"a_contains_b"`
	BContainsA  bool           `json:"b_contains_a"`
}

// NewCompareResponse converts a comparator relation.
func NewCompareResponse(a, b string, r cfi.Relation) CompareResponse {
	return CompareResponse{
		A:           IdentifierInfo{CFI: a, Valid: r.ValidA, Section: r.SectionA, IsPoint: r.PointA},
		B:           IdentifierInfo{CFI: b, Valid: r.ValidB, Section: r.SectionB, IsPoint: r.PointB},
		SameSection: r.SameSection,
		Overlaps:    r.Overlaps,
		AContainsB:  r.AContainsB,
		BContainsA:  r.BContainsA,
	}
}

// SanitizeResponse is the result of POST /api/v1/sanitize.
type SanitizeResponse struct {
	HTML   string          `json:"html"`
	Report sanitize.Report `json:"report"`
}
