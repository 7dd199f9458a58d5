package llm

import (
	"fmt"
	"strings"

	"github.com/engramdb/engram/pkg/types"
)

const extractionPromptTemplate = `Analyze this conversation and extract important information about the user that should be remembered for future interactions.

Extract memories in these categories:
1. PREFERENCES: User's likes, dislikes, preferred tools, coding styles, etc.
2. FACTS: Concrete facts about the user (profession, projects, skills, etc.)
3. TOPICS: Topics the user is interested in or frequently discusses
4. INTERACTION_PATTERNS: How the user likes to communicate or work

Conversation:
%s

Return ONLY a JSON array of memories. Each memory should have:
- memory_type: one of ["preference", "fact", "topic", "interaction_pattern"]
- content: clear, concise description (one sentence)
- importance: 0.0 to 1.0 (how important is this to remember)
- confidence: 0.0 to 1.0 (how confident are you about this)
- tags: array of relevant keywords
- category: general category (e.g., "coding", "personal", "professional")
- contexts: array of applicable contexts ["work", "personal", "technical", "casual", "learning", "creative", "problem_solving"]
- location_context: where this memory applies ("home", "office", "travel", "unknown")

Example format:
[
  {
    "memory_type": "preference",
    "content": "Prefers Python over JavaScript for backend development",
    "importance": 0.8,
    "confidence": 0.9,
    "tags": ["python", "javascript", "backend"],
    "category": "coding",
    "contexts": ["work", "technical", "learning"],
    "location_context": "office"
  },
  {
    "memory_type": "fact",
    "content": "Working on a ChatBot project using FastAPI and Next.js",
    "importance": 0.9,
    "confidence": 1.0,
    "tags": ["chatbot", "fastapi", "nextjs", "project"],
    "category": "professional"
  }
]

IMPORTANT: Return ONLY the JSON array, no other text.`

// BuildExtractionPrompt renders the extraction prompt for a conversation
// transcript. Messages are formatted one per line as "role: content".
func BuildExtractionPrompt(messages []types.ConversationMessage) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return fmt.Sprintf(extractionPromptTemplate, b.String())
}
