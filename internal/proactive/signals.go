package proactive

import (
	"sync"
	"time"
)

// Stage is the relationship stage derived from the lifetime interaction
// count. It gates how many proactive expressions a user receives per day.
type Stage string

const (
	StageNew        Stage = "new"
	StageDeveloping Stage = "developing"
	StageFamiliar   Stage = "familiar"
	StageClose      Stage = "close"
)

// StageFor maps an interaction count to its stage: 0-5 new, 6-20 developing,
// 21-50 familiar, 51+ close.
func StageFor(interactions int) Stage {
	switch {
	case interactions <= 5:
		return StageNew
	case interactions <= 20:
		return StageDeveloping
	case interactions <= 50:
		return StageFamiliar
	default:
		return StageClose
	}
}

// defaultDailyCaps orders caps by stage: new, developing, familiar, close.
var defaultDailyCaps = []int{1, 3, 5, 8}

// capFor returns the daily expression cap for stage under caps (which must
// have four entries; shorter slices fall back to the defaults).
func capFor(stage Stage, caps []int) int {
	if len(caps) != 4 {
		caps = defaultDailyCaps
	}
	switch stage {
	case StageNew:
		return caps[0]
	case StageDeveloping:
		return caps[1]
	case StageFamiliar:
		return caps[2]
	default:
		return caps[3]
	}
}

// Signals is everything the decision pass knows about one user at one tick.
type Signals struct {
	UserID       string
	SessionID    string
	Silence      time.Duration
	LocalHour    int
	Stage        Stage
	FiredToday   int
	LastTopic    string
	Interactions int
}

// userState is the tracker's per-user record.
type userState struct {
	sessionID    string
	lastTurnAt   time.Time
	lastTopic    string
	interactions int

	firedToday int
	capDay     string // YYYY-MM-DD in the user's local zone
}

// Tracker accumulates per-user activity observations from the request path.
// It is the scheduler's only view of users; a user the tracker never saw is
// never messaged.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*userState
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*userState)}
}

// RecordActivity notes one user turn. topic may be empty when the utterance
// carried no substantive topic.
func (t *Tracker) RecordActivity(userID, sessionID, topic string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.users[userID]
	if u == nil {
		u = &userState{}
		t.users[userID] = u
	}
	u.sessionID = sessionID
	u.lastTurnAt = at
	u.interactions++
	if topic != "" {
		u.lastTopic = topic
	}
}

// snapshot builds the decision signals for every tracked user.
func (t *Tracker) snapshot(now time.Time, settings *SettingsStore) []Signals {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Signals, 0, len(t.users))
	for userID, u := range t.users {
		local := now.In(settings.Get(userID).location())
		day := local.Format("2006-01-02")
		if u.capDay != day {
			u.capDay = day
			u.firedToday = 0
		}
		out = append(out, Signals{
			UserID:       userID,
			SessionID:    u.sessionID,
			Silence:      now.Sub(u.lastTurnAt),
			LocalHour:    local.Hour(),
			Stage:        StageFor(u.interactions),
			FiredToday:   u.firedToday,
			LastTopic:    u.lastTopic,
			Interactions: u.interactions,
		})
	}
	return out
}

// lastActivity returns when the user last spoke, for firing-time de-dup.
func (t *Tracker) lastActivity(userID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u := t.users[userID]; u != nil {
		return u.lastTurnAt
	}
	return time.Time{}
}

// countFired charges one expression against the user's daily cap.
func (t *Tracker) countFired(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u := t.users[userID]; u != nil {
		u.firedToday++
	}
}
