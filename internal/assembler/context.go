package assembler

import (
	"fmt"
	"sort"
	"strings"
)

// ContextItem is one typed block of caller-supplied context attached to a
// dialogue input.
type ContextItem struct {
	// Type selects the formatting processor. Unknown types fall back to the
	// general processor rather than being dropped.
	Type string `json:"type"`

	// Data holds the item payload. Keys are rendered in sorted order so the
	// same payload always formats identically.
	Data map[string]any `json:"data"`
}

// Recognised context item types.
const (
	ContextGeneral     = "general"
	ContextUserProfile = "user_profile"
	ContextDomain      = "domain"
	ContextSystem      = "system"
	ContextLocation    = "location"
	ContextCustom      = "custom"
)

// processors maps item types to their header line. Every processor except
// custom renders the payload as sorted "key: value" lines under the header;
// what differs per type is only the framing. Custom payloads carry their own
// prose in the "text" field and pass through verbatim.
var processors = map[string]string{
	ContextGeneral:     "User context:",
	ContextUserProfile: "About the user:",
	ContextDomain:      "Relevant domain knowledge:",
	ContextSystem:      "Current system state:",
	ContextLocation:    "User is located at:",
}

// FormatContext renders caller context items into the system-message block.
// Items render in input order; an empty input produces an empty string.
func FormatContext(items []ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if item.Type == ContextCustom {
			if text, ok := item.Data["text"].(string); ok && text != "" {
				b.WriteString(text)
				continue
			}
		}
		header, ok := processors[item.Type]
		if !ok {
			header = processors[ContextGeneral]
		}
		b.WriteString(header)
		for _, line := range payloadLines(item.Data) {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	return b.String()
}

// payloadLines renders a payload map as "key: value" lines with sorted keys.
func payloadLines(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, renderValue(data[k])))
	}
	return lines
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = renderValue(e)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return strings.Join(payloadLines(val), "; ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
