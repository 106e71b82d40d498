package assembler

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// continuationUtterances are the recognised "keep going" forms, English and
// Chinese. Matching is exact after trimming and lowercasing, with a
// Jaro-Winkler near-match pass so minor misspellings ("continu", "go onn")
// still count.
var continuationUtterances = []string{
	"continue",
	"go on",
	"keep going",
	"请继续",
	"继续",
}

// continuationThreshold is the Jaro-Winkler score at or above which a short
// utterance counts as a near-miss continuation.
const continuationThreshold = 0.92

// IsContinuation reports whether text is a continuation utterance rather
// than new content.
func IsContinuation(text string) bool {
	t := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(text), ".!?。！？")))
	if t == "" {
		return false
	}
	for _, u := range continuationUtterances {
		if t == u {
			return true
		}
	}
	// Near-match pass only makes sense for short latin-script inputs; a long
	// sentence containing "continue" is new content, not a continuation.
	if len([]rune(t)) > 12 {
		return false
	}
	for _, u := range continuationUtterances {
		if matchr.JaroWinkler(t, u, false) >= continuationThreshold {
			return true
		}
	}
	return false
}

// ExtractTopic walks the history newest to oldest and returns the most
// recent substantive human utterance, skipping continuation utterances so
// that a run of "continue" inputs still resolves to the real topic.
func ExtractTopic(turns []types.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role != types.RoleHuman {
			continue
		}
		if IsContinuation(t.Content) {
			continue
		}
		if s := strings.TrimSpace(t.Content); s != "" {
			return clip(s, 120)
		}
	}
	return ""
}
