// Package proactive implements server-initiated expressions: greetings,
// follow-ups, and care messages planned on a schedule instead of in reply to
// user input. A single tick loop evaluates known users against their
// relationship stage and per-user settings, plans content, and dispatches
// through the push boundary.
package proactive

import (
	"sync"
	"time"
)

// ExpressionType classifies a proactive expression.
type ExpressionType string

const (
	TypeGreeting    ExpressionType = "greeting"
	TypeCare        ExpressionType = "care"
	TypeShare       ExpressionType = "share"
	TypeSuggestion  ExpressionType = "suggestion"
	TypeReflection  ExpressionType = "reflection"
	TypeCelebration ExpressionType = "celebration"
	TypeFarewell    ExpressionType = "farewell"
	TypeReminder    ExpressionType = "reminder"
)

// IsValid reports whether t is a recognised expression type.
func (t ExpressionType) IsValid() bool {
	switch t {
	case TypeGreeting, TypeCare, TypeShare, TypeSuggestion,
		TypeReflection, TypeCelebration, TypeFarewell, TypeReminder:
		return true
	}
	return false
}

// Settings are the per-user controls over proactive behaviour.
type Settings struct {
	// Enabled gates all proactive expressions except forced triggers.
	Enabled bool `json:"enabled"`

	// Timezone is the IANA zone used for time-of-day decisions. Empty means
	// UTC.
	Timezone string `json:"timezone,omitempty"`

	// QuietStart and QuietEnd bound the do-not-disturb window in local hours.
	// Equal values mean no quiet window. A window may wrap midnight.
	QuietStart int `json:"quietStart"`
	QuietEnd   int `json:"quietEnd"`

	// Disabled lists expression types the user has opted out of.
	Disabled []ExpressionType `json:"disabled,omitempty"`
}

// DefaultSettings is applied to users who never changed anything: enabled,
// UTC, quiet from 23:00 to 07:00.
func DefaultSettings() Settings {
	return Settings{Enabled: true, QuietStart: 23, QuietEnd: 7}
}

// allows reports whether t is permitted by s.
func (s Settings) allows(t ExpressionType) bool {
	if !s.Enabled {
		return false
	}
	for _, d := range s.Disabled {
		if d == t {
			return false
		}
	}
	return true
}

// inQuietWindow reports whether the local hour falls inside the
// do-not-disturb window.
func (s Settings) inQuietWindow(localHour int) bool {
	if s.QuietStart == s.QuietEnd {
		return false
	}
	if s.QuietStart < s.QuietEnd {
		return localHour >= s.QuietStart && localHour < s.QuietEnd
	}
	return localHour >= s.QuietStart || localHour < s.QuietEnd
}

// location resolves the configured timezone, falling back to UTC.
func (s Settings) location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SettingsStore holds per-user settings in memory. Safe for concurrent use.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

// NewSettingsStore returns an empty store; unknown users get
// [DefaultSettings].
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{settings: make(map[string]Settings)}
}

// Get returns the user's settings or the defaults.
func (s *SettingsStore) Get(userID string) Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[userID]; ok {
		return st
	}
	return DefaultSettings()
}

// Put replaces the user's settings.
func (s *SettingsStore) Put(userID string, settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[userID] = settings
}
