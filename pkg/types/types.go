// Package types defines the core data structures for the Engram memory
// system: memory records, their lifecycle enums, relationship edges, and
// the candidate shapes produced by the extraction pipeline.
package types

// MemoryType classifies what kind of information a memory captures.
type MemoryType string

// Memory type constants.
const (
	TypePreference         MemoryType = "preference"
	TypeFact               MemoryType = "fact"
	TypeTopic              MemoryType = "topic"
	TypeInteractionPattern MemoryType = "interaction_pattern"
	TypeSkill              MemoryType = "skill"
	TypeContext            MemoryType = "context"
)

// ValidMemoryTypes lists every accepted memory type.
var ValidMemoryTypes = []MemoryType{
	TypePreference,
	TypeFact,
	TypeTopic,
	TypeInteractionPattern,
	TypeSkill,
	TypeContext,
}

// IsValidMemoryType reports whether t is a known memory type.
func IsValidMemoryType(t MemoryType) bool {
	for _, v := range ValidMemoryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// MemoryStatus represents the verification status of a memory.
type MemoryStatus string

// Verification status constants.
const (
	// StatusPending indicates the memory was created but not yet reviewed.
	StatusPending MemoryStatus = "pending"

	// StatusConfirmed indicates the user verified the memory as accurate.
	StatusConfirmed MemoryStatus = "confirmed"

	// StatusRejected indicates the user rejected the memory. Rejected
	// memories are retained for audit but excluded from retrieval and
	// from similarity comparisons.
	StatusRejected MemoryStatus = "rejected"

	// StatusCorrected indicates the user replaced the memory content.
	StatusCorrected MemoryStatus = "corrected"
)

// ValidStatuses lists every accepted memory status.
var ValidStatuses = []MemoryStatus{
	StatusPending,
	StatusConfirmed,
	StatusRejected,
	StatusCorrected,
}

// IsValidStatus reports whether s is a known memory status.
func IsValidStatus(s MemoryStatus) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ExtractionMethod records how a memory entered the system.
type ExtractionMethod string

// Extraction method constants.
const (
	MethodManual        ExtractionMethod = "manual"
	MethodAIExtraction  ExtractionMethod = "ai_extraction"
	MethodImport        ExtractionMethod = "import"
	MethodConsolidation ExtractionMethod = "consolidation"
)

// ExpirationType classifies how long a memory stays meaningful.
type ExpirationType string

// Expiration type constants.
const (
	// ExpirationTemporary marks short-lived facts ("currently", "this week").
	ExpirationTemporary ExpirationType = "temporary"

	// ExpirationSeasonal marks facts tied to a season or year.
	ExpirationSeasonal ExpirationType = "seasonal"

	// ExpirationPermanent marks durable facts with no expiry.
	ExpirationPermanent ExpirationType = "permanent"
)

// Conversation context vocabulary. Contexts tag the situations in which a
// memory applies and boost retrieval when the active conversation matches.
const (
	ContextWork           = "work"
	ContextPersonal       = "personal"
	ContextTechnical      = "technical"
	ContextCasual         = "casual"
	ContextLearning       = "learning"
	ContextCreative       = "creative"
	ContextProblemSolving = "problem_solving"
)

// ValidContexts lists the fixed context vocabulary.
var ValidContexts = []string{
	ContextWork,
	ContextPersonal,
	ContextTechnical,
	ContextCasual,
	ContextLearning,
	ContextCreative,
	ContextProblemSolving,
}

// IsValidContext reports whether c belongs to the context vocabulary.
func IsValidContext(c string) bool {
	for _, v := range ValidContexts {
		if c == v {
			return true
		}
	}
	return false
}

// Clamp01 clamps v to the [0.0, 1.0] range. Importance, confidence and
// relevance scores are always stored clamped.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
