// Package types defines the shared types used across all Colloquy packages.
//
// These types form the lingua franca between the store, the context assembler,
// the dialogue orchestrator, and the proactive scheduler. Each package defines
// its own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// Role identifies who produced a turn inside a session.
type Role string

const (
	// RoleHuman marks an utterance typed (or spoken) by a human participant.
	RoleHuman Role = "human"

	// RoleAI marks an utterance generated by the model on behalf of the server.
	RoleAI Role = "ai"

	// RoleSystem marks an injected directive, such as a self-reflection prompt.
	RoleSystem Role = "system"

	// RoleTool marks the serialized result of a tool invocation.
	RoleTool Role = "tool"
)

// IsValid reports whether r is one of the four recognised roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleSystem, RoleTool:
		return true
	}
	return false
}

// MessageRole maps a turn role to the corresponding model-facing message role.
func (r Role) MessageRole() string {
	switch r {
	case RoleHuman:
		return "user"
	case RoleAI:
		return "assistant"
	case RoleTool:
		return "tool"
	default:
		return "system"
	}
}

// DialogueType describes the participant structure of a session. The literals
// are the exact wire values.
type DialogueType string

const (
	DialogueHumanAIPrivate    DialogueType = "HUMAN_AI_PRIVATE"
	DialogueHumanHumanPrivate DialogueType = "HUMAN_HUMAN_PRIVATE"
	DialogueHumanHumanGroup   DialogueType = "HUMAN_HUMAN_GROUP"
	DialogueAIAI              DialogueType = "AI_AI"
	DialogueAISelfReflection  DialogueType = "AI_SELF_REFLECTION"
	DialogueHumanAIGroup      DialogueType = "HUMAN_AI_GROUP"
	DialogueAIMultiHumanGroup DialogueType = "AI_MULTI_HUMAN_GROUP"
)

// IsValid reports whether t is one of the seven recognised dialogue types.
func (t DialogueType) IsValid() bool {
	switch t {
	case DialogueHumanAIPrivate, DialogueHumanHumanPrivate, DialogueHumanHumanGroup,
		DialogueAIAI, DialogueAISelfReflection, DialogueHumanAIGroup, DialogueAIMultiHumanGroup:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session. Transitions are monotone:
// active sessions may be archived, archived sessions never return to active.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// Session is one persisted conversation between a user and an AI counterpart
// (or a small set of participants). UserID, DialogueType, and ID are immutable
// after creation.
type Session struct {
	// ID is an opaque globally unique string assigned at creation.
	ID string `json:"id"`

	// UserID identifies the creating user.
	UserID string `json:"userId"`

	// Title is the user-visible free-form title.
	Title string `json:"title"`

	// DialogueType describes the participant structure.
	DialogueType DialogueType `json:"dialogueType"`

	// Status is "active" or "archived".
	Status SessionStatus `json:"status"`

	// Metadata is an opaque key→value map the caller may attach.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Turn is one committed utterance inside a session, immutable once written.
type Turn struct {
	// ID is an opaque unique string. Turn ids sort in creation order.
	ID string `json:"id"`

	// SessionID references the owning Session and never changes.
	SessionID string `json:"sessionId"`

	// Role attributes the utterance.
	Role Role `json:"role"`

	// Content is the text payload; for tool turns, the serialized tool result.
	Content string `json:"content"`

	// Metadata may carry is_proactive, tool-call details, fallback markers, and
	// other per-turn annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single entry in a model-facing conversation.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name is an optional participant name for multi-party contexts.
	Name string `json:"name,omitempty"`
}

// ToolDescriptor is the wire-facing summary of a registered tool, used both in
// prompt construction and on the /api/dialogue/tools endpoint.
type ToolDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Usage       string   `json:"usage,omitempty"`
	Version     string   `json:"version"`
	Status      string   `json:"status"`
	Modalities  []string `json:"modalities,omitempty"`

	// Chain is true when the descriptor names a tool chain rather than a
	// single tool. Chains win confidence ties against single tools.
	Chain bool `json:"chain,omitempty"`
}
