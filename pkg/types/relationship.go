package types

import "time"

// Relationship type vocabulary. Directed edges store the forward type on
// the source record and the reverse type on the target record.
const (
	RelSimilarTo    = "similar_to"
	RelRelatesTo    = "relates_to"
	RelContradicts  = "contradicts"
	RelSupersedes   = "supersedes"
	RelSupersededBy = "superseded_by"
	RelPartOf       = "part_of"
	RelContains     = "contains"
	RelSupports     = "supports"
	RelSupportedBy  = "supported_by"
)

// Relationship is one outgoing edge in a memory's relationship list.
type Relationship struct {
	TargetID  string    `json:"target_id" bson:"target_id"`
	Type      string    `json:"type" bson:"type"`
	Strength  float64   `json:"strength" bson:"strength"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

var reverseRelType = map[string]string{
	RelSimilarTo:    RelSimilarTo,
	RelRelatesTo:    RelRelatesTo,
	RelContradicts:  RelContradicts,
	RelSupersedes:   RelSupersededBy,
	RelSupersededBy: RelSupersedes,
	RelPartOf:       RelContains,
	RelContains:     RelPartOf,
	RelSupports:     RelSupportedBy,
	RelSupportedBy:  RelSupports,
}

// ReverseRelType returns the type stored on the target side of an edge.
// Unknown types reverse to themselves.
func ReverseRelType(t string) string {
	if r, ok := reverseRelType[t]; ok {
		return r
	}
	return t
}

// IsValidRelType reports whether t is part of the relationship vocabulary.
func IsValidRelType(t string) bool {
	_, ok := reverseRelType[t]
	return ok
}
