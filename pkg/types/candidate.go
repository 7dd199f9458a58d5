package types

// CandidateMemory is a memory proposed by the extraction pipeline before
// deduplication and persistence. Field names match the JSON schema the
// extraction prompt asks the model to produce.
type CandidateMemory struct {
	MemoryType      MemoryType `json:"memory_type"`
	Content         string     `json:"content"`
	Importance      float64    `json:"importance"`
	Confidence      float64    `json:"confidence"`
	Tags            []string   `json:"tags,omitempty"`
	Category        string     `json:"category,omitempty"`
	Contexts        []string   `json:"contexts,omitempty"`
	LocationContext string     `json:"location_context,omitempty"`
}

// ConversationMessage is one turn of the conversation handed to the
// extraction pipeline.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
