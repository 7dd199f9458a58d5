package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/engramdb/engram/pkg/types"
)

// Keyword patterns for heuristic context detection. Patterns are matched
// case-insensitively against the conversation text.
var contextPatterns = map[string][]*regexp.Regexp{
	types.ContextTechnical: compilePatterns(
		`\bcode\b`, `\bapi\b`, `\bbug\b`, `\berror\b`, `\bfunction\b`,
		`\bdatabase\b`, `\balgorithm\b`, `\bserver\b`, `\bframework\b`,
		`\bpython\b`, `\bjavascript\b`, `\breact\b`, `\bgolang\b`,
	),
	types.ContextWork: compilePatterns(
		`\bproject\b`, `\bdeadline\b`, `\bmeeting\b`, `\bclient\b`,
		`\bproduction\b`, `\bdeployment\b`, `\btask\b`, `\bwork\b`,
	),
	types.ContextLearning: compilePatterns(
		`\blearn\b`, `\btutorial\b`, `\bexample\b`, `\bwhat is\b`,
		`\bhow to\b`, `\bexplain\b`, `\bunderstand\b`, `\bteach\b`,
	),
	types.ContextProblemSolving: compilePatterns(
		`\bhelp\b`, `\bissue\b`, `\bproblem\b`, `\bfix\b`, `\bdebug\b`,
		`\bnot working\b`, `\bfailed\b`, `\berror\b`,
	),
	types.ContextCreative: compilePatterns(
		`\bdesign\b`, `\bcreate\b`, `\bbuild\b`, `\bidea\b`,
		`\bbrainstorm\b`, `\binnovate\b`,
	),
	types.ContextPersonal: compilePatterns(
		`\bi like\b`, `\bi prefer\b`, `\bmy \b`, `\bpersonal\b`,
		`\bhobby\b`, `\bfavorite\b`,
	),
}

var casualPatterns = compilePatterns(`\blol\b`, `\bthanks\b`, `\bhey\b`, `\bcool\b`, `!+`, `\?+`)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectContexts infers conversation contexts from text using keyword
// heuristics. Conversations with no work or technical signal default to
// casual, and the result is never empty.
func DetectContexts(text string) []string {
	lowered := strings.ToLower(text)
	detected := make(map[string]bool)

	for name, patterns := range contextPatterns {
		if matchesAny(lowered, patterns) {
			detected[name] = true
		}
	}

	if matchesAny(lowered, casualPatterns) {
		detected[types.ContextCasual] = true
	} else if !detected[types.ContextWork] && !detected[types.ContextTechnical] {
		detected[types.ContextCasual] = true
	}

	if len(detected) == 0 {
		return []string{types.ContextCasual}
	}

	contexts := make([]string, 0, len(detected))
	for name := range detected {
		contexts = append(contexts, name)
	}
	sort.Strings(contexts)
	return contexts
}

// DetectConversationContexts runs detection over the tail of a
// conversation, weighting the newest message.
func DetectConversationContexts(messages []types.ConversationMessage) []string {
	if len(messages) == 0 {
		return []string{types.ContextCasual}
	}

	start := len(messages) - 4
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, msg := range messages[start:] {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return DetectContexts(b.String())
}
